package peers

import (
	"math/rand"
	"sort"
)

// SetToSlice returns the members of a peer set sorted by address.
func SetToSlice(set map[Peer]struct{}) []Peer {
	res := make([]Peer, 0, len(set))
	for p := range set {
		res = append(res, p)
	}
	sort.Sort(ByNetAddr(res))
	return res
}

// Sample returns up to n distinct peers from the set, chosen with the given
// randomness source. The set is sorted before shuffling so that a seeded
// source always produces the same selection.
func Sample(rng *rand.Rand, set map[Peer]struct{}, n int) []Peer {
	res := SetToSlice(set)
	rng.Shuffle(len(res), func(i, j int) {
		res[i], res[j] = res[j], res[i]
	})
	if len(res) > n {
		res = res[:n]
	}
	return res
}

// SampleOne returns a random member of the set, or the zero Peer when the set
// is empty.
func SampleOne(rng *rand.Rand, set map[Peer]struct{}) Peer {
	s := Sample(rng, set, 1)
	if len(s) == 0 {
		return Peer{}
	}
	return s[0]
}
