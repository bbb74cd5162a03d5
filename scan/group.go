package scan

import (
	"sort"

	"memhound/process"
)

// Group is one tuple of candidates, one per member session, whose addresses
// lie within the requested proximity window.
type Group struct {
	Members []Candidate
}

// Span returns the address distance between the lowest and highest member.
func (g Group) Span() process.Size {
	if len(g.Members) == 0 {
		return 0
	}
	lo, hi := g.Members[0].Addr, g.Members[0].Addr
	for _, m := range g.Members[1:] {
		if m.Addr < lo {
			lo = m.Addr
		}
		if m.Addr > hi {
			hi = m.Addr
		}
	}
	return process.Size(hi - lo)
}

// GroupSearch combines independently seeded sessions by address proximity:
// for every candidate of the first session it selects, per other session,
// the nearest candidate within the window, and emits the tuple when every
// session contributes and the whole tuple spans at most window bytes.
//
// Member selection is a nearest-first heuristic. When a session has several
// candidates inside the window, only the one closest to the anchor is
// considered; a tuple that would satisfy the span only with a farther
// member is not reported. In practice grouped values live in one struct and
// a window sized to that struct keeps the nearest member the right one.
func GroupSearch(sessions []*Session, window process.Size) []Group {
	if len(sessions) == 0 {
		return nil
	}

	sets := make([][]Candidate, len(sessions))
	for i, s := range sessions {
		sets[i] = s.Candidates()
		sort.Slice(sets[i], func(a, b int) bool { return sets[i][a].Addr < sets[i][b].Addr })
	}

	var groups []Group
	for _, anchor := range sets[0] {
		members := make([]Candidate, 0, len(sessions))
		members = append(members, anchor)
		ok := true
		for _, set := range sets[1:] {
			m, found := nearestWithin(set, anchor.Addr, window)
			if !found {
				ok = false
				break
			}
			members = append(members, m)
		}
		if !ok {
			continue
		}
		g := Group{Members: members}
		if g.Span() <= window {
			groups = append(groups, g)
		}
	}
	return groups
}

// nearestWithin finds the candidate closest to addr among those within
// [addr-window, addr+window], by binary search over the sorted set.
func nearestWithin(set []Candidate, addr process.Address, window process.Size) (Candidate, bool) {
	i := sort.Search(len(set), func(i int) bool { return set[i].Addr >= addr })

	best := -1
	var bestDist process.Size
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(set) {
			continue
		}
		d := dist(set[j].Addr, addr)
		if d > window {
			continue
		}
		if best == -1 || d < bestDist {
			best, bestDist = j, d
		}
	}
	if best == -1 {
		return Candidate{}, false
	}
	return set[best], true
}

func dist(a, b process.Address) process.Size {
	if a > b {
		return process.Size(a - b)
	}
	return process.Size(b - a)
}
