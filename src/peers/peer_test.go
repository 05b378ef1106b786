package peers

import (
	"math/rand"
	"reflect"
	"sort"
	"testing"
)

func TestPeerID(t *testing.T) {
	p := NewPeer("127.0.0.1:1337")
	q := NewPeer("127.0.0.1:1338")

	if p.ID() != NewPeer("127.0.0.1:1337").ID() {
		t.Fatal("ID should be deterministic")
	}
	if p.ID() == q.ID() {
		t.Fatal("distinct addresses should hash to distinct IDs")
	}
	if p.IsZero() {
		t.Fatal("non-empty peer should not be zero")
	}
	if !(Peer{}).IsZero() {
		t.Fatal("empty peer should be zero")
	}
}

func TestExcludePeer(t *testing.T) {
	localhost := "localhost"
	peers := []Peer{
		{NetAddr: localhost + ":9990"},
		{NetAddr: localhost + ":9991"},
		{NetAddr: localhost + ":9992"},
	}

	exclude := peers[1]
	res := ExcludePeer(peers, exclude)

	if len(res) != 2 {
		t.Fatalf("Wrong length of peers, expected 2, got %d", len(res))
	}
	for _, p := range res {
		if p == exclude {
			t.Fatalf("Should not contain excluded peer %s", exclude)
		}
	}
}

func TestSetToSliceSorted(t *testing.T) {
	set := map[Peer]struct{}{
		{NetAddr: "c"}: {},
		{NetAddr: "a"}: {},
		{NetAddr: "b"}: {},
	}

	res := SetToSlice(set)

	if !sort.IsSorted(ByNetAddr(res)) {
		t.Fatalf("slice should be sorted, got %v", res)
	}
	if len(res) != 3 {
		t.Fatalf("Wrong length, expected 3, got %d", len(res))
	}
}

func TestSampleDeterministic(t *testing.T) {
	set := make(map[Peer]struct{})
	for _, addr := range []string{"a", "b", "c", "d", "e"} {
		set[Peer{NetAddr: addr}] = struct{}{}
	}

	s1 := Sample(rand.New(rand.NewSource(42)), set, 3)
	s2 := Sample(rand.New(rand.NewSource(42)), set, 3)

	if !reflect.DeepEqual(s1, s2) {
		t.Fatalf("same seed should produce same sample: %v != %v", s1, s2)
	}
	if len(s1) != 3 {
		t.Fatalf("Wrong sample size, expected 3, got %d", len(s1))
	}

	seen := make(map[Peer]struct{})
	for _, p := range s1 {
		if _, dup := seen[p]; dup {
			t.Fatalf("sample contains duplicate %s", p)
		}
		seen[p] = struct{}{}
	}
}

func TestSampleSmallSet(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	set := map[Peer]struct{}{{NetAddr: "a"}: {}}

	if s := Sample(rng, set, 5); len(s) != 1 {
		t.Fatalf("Wrong sample size, expected 1, got %d", len(s))
	}
	if s := Sample(rng, map[Peer]struct{}{}, 5); len(s) != 0 {
		t.Fatalf("Wrong sample size, expected 0, got %d", len(s))
	}
	if p := SampleOne(rng, map[Peer]struct{}{}); !p.IsZero() {
		t.Fatalf("SampleOne of empty set should be zero, got %s", p)
	}
}
