package cache

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

const (
	testTTL       = time.Minute
	testRetention = time.Second
)

func newTestCache(t *testing.T, size int) (*MessageCache[string], *clock.Mock) {
	clk := clock.NewMock()
	// Move away from the zero time so unset timestamps are distinguishable.
	clk.Add(time.Hour)

	c, err := New[string](size, testTTL, testRetention, clk)
	require.NoError(t, err)

	return c, clk
}

func TestInsertDeduplicates(t *testing.T) {
	c, _ := newTestCache(t, 10)

	require.True(t, c.Insert("m1", []byte("payload"), 0))
	require.False(t, c.Insert("m1", []byte("payload"), 1), "second insert of same id")
	require.True(t, c.Contains("m1"))
	require.False(t, c.Contains("m2"))

	rec, ok := c.Get("m1")
	require.True(t, ok)
	require.Equal(t, []byte("payload"), rec.Payload)
	require.Equal(t, 0, rec.Round, "round of first insertion wins")
}

func TestCapacityEviction(t *testing.T) {
	c, _ := newTestCache(t, 2)

	c.Insert("m1", nil, 0)
	c.Insert("m2", nil, 0)
	c.Insert("m3", nil, 0)

	require.False(t, c.Contains("m1"), "oldest entry should be evicted")
	require.True(t, c.Contains("m2"))
	require.True(t, c.Contains("m3"))
	require.Equal(t, 2, c.Len())
}

func TestSweepTTL(t *testing.T) {
	c, clk := newTestCache(t, 10)

	c.Insert("m1", nil, 0)
	clk.Add(testTTL / 2)
	c.Insert("m2", nil, 0)

	require.Empty(t, c.Sweep(), "nothing expired yet")

	clk.Add(testTTL / 2)
	evicted := c.Sweep()

	require.Equal(t, []string{"m1"}, evicted)
	require.False(t, c.Contains("m1"))
	require.True(t, c.Contains("m2"))
}

func TestAnnouncedSurvivesTTL(t *testing.T) {
	c, clk := newTestCache(t, 10)

	c.Insert("m1", nil, 0)
	clk.Add(testTTL)
	c.MarkAnnounced("m1")

	require.Empty(t, c.Sweep(), "announced entry should survive the TTL")
	require.True(t, c.Contains("m1"))

	clk.Add(testRetention)
	evicted := c.Sweep()

	require.Equal(t, []string{"m1"}, evicted, "retention window passed")
	require.False(t, c.Contains("m1"))
}

func TestAnnouncedSurvivesCapacityEviction(t *testing.T) {
	c, clk := newTestCache(t, 2)

	c.Insert("m1", []byte("payload"), 0)
	c.MarkAnnounced("m1")

	// Push m1 out of the LRU.
	c.Insert("m2", nil, 0)
	c.Insert("m3", nil, 0)

	require.True(t, c.Contains("m1"), "announced entry should be parked, not dropped")
	rec, ok := c.Get("m1")
	require.True(t, ok)
	require.Equal(t, []byte("payload"), rec.Payload)
	require.Equal(t, 3, c.Len())

	clk.Add(testRetention)
	c.Sweep()

	require.False(t, c.Contains("m1"), "parked entry dropped after retention")
	require.Equal(t, 2, c.Len())
}
