package node

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/treecast/treecast/src/common"
	"github.com/treecast/treecast/src/hyparview"
	"github.com/treecast/treecast/src/plumtree"
)

// Config contains the tunable parameters of a node. All protocol timing
// constants live here; nothing is hard-coded at the call sites.
type Config struct {
	// Membership view parameters.
	ActiveViewSize          int `mapstructure:"active-view-size"`
	PassiveViewSize         int `mapstructure:"passive-view-size"`
	ActiveRandomWalkLength  int `mapstructure:"active-walk-length"`
	PassiveRandomWalkLength int `mapstructure:"passive-walk-length"`
	ShuffleActiveSize       int `mapstructure:"shuffle-active-size"`
	ShufflePassiveSize      int `mapstructure:"shuffle-passive-size"`

	// TickInterval is the resolution of all protocol timers.
	TickInterval time.Duration `mapstructure:"tick-interval"`

	// Periodic cycle intervals. Actual firing times are jittered by up to
	// 10% to avoid cluster-wide synchronization.
	ShuffleInterval time.Duration `mapstructure:"shuffle-interval"`
	FillInterval    time.Duration `mapstructure:"fill-interval"`
	SyncInterval    time.Duration `mapstructure:"sync-interval"`
	SweepInterval   time.Duration `mapstructure:"sweep-interval"`

	// Broadcast tree parameters.
	IHaveDelay   time.Duration `mapstructure:"ihave-delay"`
	GraftTimeout time.Duration `mapstructure:"graft-timeout"`
	GraftRetry   time.Duration `mapstructure:"graft-retry"`

	// Message cache bounds.
	CacheSize int           `mapstructure:"cache-size"`
	CacheTTL  time.Duration `mapstructure:"cache-ttl"`

	// DeliveryBufferSize is the capacity of the channel returned by
	// Messages(). A slow subscriber eventually backpressures the event loop.
	DeliveryBufferSize int `mapstructure:"delivery-buffer"`

	// Seed for the protocol's randomness source. Zero means seed from the
	// system clock; tests set it for deterministic peer selection.
	Seed int64

	Logger *logrus.Logger

	// Clock is the node's time source. Nil means the system clock.
	Clock clock.Clock
}

// NewConfig returns a fully specified configuration.
func NewConfig(
	activeViewSize int,
	passiveViewSize int,
	shuffleInterval time.Duration,
	graftTimeout time.Duration,
	cacheSize int,
	logger *logrus.Logger,
) *Config {
	conf := DefaultConfig()
	conf.ActiveViewSize = activeViewSize
	conf.PassiveViewSize = passiveViewSize
	conf.ShuffleInterval = shuffleInterval
	conf.GraftTimeout = graftTimeout
	conf.GraftRetry = graftTimeout
	conf.CacheSize = cacheSize
	conf.Logger = logger
	return conf
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		ActiveViewSize:          5,
		PassiveViewSize:         30,
		ActiveRandomWalkLength:  6,
		PassiveRandomWalkLength: 3,
		ShuffleActiveSize:       3,
		ShufflePassiveSize:      4,
		TickInterval:            100 * time.Millisecond,
		ShuffleInterval:         10 * time.Second,
		FillInterval:            5 * time.Second,
		SyncInterval:            60 * time.Second,
		SweepInterval:           10 * time.Second,
		IHaveDelay:              100 * time.Millisecond,
		GraftTimeout:            500 * time.Millisecond,
		GraftRetry:              500 * time.Millisecond,
		CacheSize:               10000,
		CacheTTL:                2 * time.Minute,
		DeliveryBufferSize:      1024,
		Logger:                  logger,
	}
}

// TestConfig returns a configuration suited to in-process cluster tests:
// short timers and a logger wired to the test output.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.TickInterval = 10 * time.Millisecond
	config.ShuffleInterval = 100 * time.Millisecond
	config.FillInterval = 50 * time.Millisecond
	config.SyncInterval = 500 * time.Millisecond
	config.SweepInterval = 500 * time.Millisecond
	config.IHaveDelay = 20 * time.Millisecond
	config.GraftTimeout = 50 * time.Millisecond
	config.GraftRetry = 50 * time.Millisecond
	config.Logger = common.NewTestLogger(t)
	return config
}

func (c *Config) hyparviewOptions() hyparview.Options {
	return hyparview.Options{
		ActiveViewSize:          c.ActiveViewSize,
		PassiveViewSize:         c.PassiveViewSize,
		ActiveRandomWalkLength:  c.ActiveRandomWalkLength,
		PassiveRandomWalkLength: c.PassiveRandomWalkLength,
		ShuffleActiveSize:       c.ShuffleActiveSize,
		ShufflePassiveSize:      c.ShufflePassiveSize,
	}
}

func (c *Config) plumtreeOptions() plumtree.Options {
	return plumtree.Options{
		IHaveDelay:   c.IHaveDelay,
		GraftTimeout: c.GraftTimeout,
		GraftRetry:   c.GraftRetry,
	}
}
