// Package memory_map enumerates and classifies the mapped memory regions of
// a target process. Catalogs are rebuilt wholesale on every refresh and
// published as immutable snapshots; regions are never mutated in place
// because maps may merge or split between refreshes.
package memory_map

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// PermSet is the permission bitmask of a region.
type PermSet uint8

const (
	Read PermSet = 1 << iota
	Write
	Exec
	Shared
)

// ParsePerms parses the 4-character permission column of /proc/<pid>/maps
// (e.g. "rw-p").
func ParsePerms(s string) PermSet {
	var p PermSet
	if len(s) > 0 && s[0] == 'r' {
		p |= Read
	}
	if len(s) > 1 && s[1] == 'w' {
		p |= Write
	}
	if len(s) > 2 && s[2] == 'x' {
		p |= Exec
	}
	if len(s) > 3 && s[3] == 's' {
		p |= Shared
	}
	return p
}

// Has reports whether every bit in want is set.
func (p PermSet) Has(want PermSet) bool {
	return p&want == want
}

func (p PermSet) String() string {
	b := []byte("---p")
	if p&Read != 0 {
		b[0] = 'r'
	}
	if p&Write != 0 {
		b[1] = 'w'
	}
	if p&Exec != 0 {
		b[2] = 'x'
	}
	if p&Shared != 0 {
		b[3] = 's'
	}
	return string(b)
}

// Kind classifies a region by its backing.
type Kind int

const (
	KindAnonymous Kind = iota
	KindHeap
	KindStack
	KindLibrary
	KindDevice
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindAnonymous:
		return "anonymous"
	case KindHeap:
		return "heap"
	case KindStack:
		return "stack"
	case KindLibrary:
		return "library"
	case KindDevice:
		return "device"
	default:
		return "other"
	}
}

// ClassifyPath derives the region kind from the maps pathname column.
func ClassifyPath(path string) Kind {
	switch {
	case path == "":
		return KindAnonymous
	case path == "[heap]":
		return KindHeap
	case path == "[stack]" || strings.HasPrefix(path, "[stack:"):
		return KindStack
	case strings.HasPrefix(path, "[anon:"):
		return KindAnonymous
	case strings.HasPrefix(path, "["):
		return KindOther
	case strings.HasPrefix(path, "/dev/"):
		return KindDevice
	default:
		return KindLibrary
	}
}

// Region is one mapped range of the target's address space. Start is
// inclusive, End exclusive.
type Region struct {
	Start  uint64
	End    uint64
	Perms  PermSet
	Kind   Kind
	Path   string
	Offset uint64
	Inode  uint64
}

// Size returns the region length in bytes.
func (r Region) Size() uint64 {
	return r.End - r.Start
}

// Contains reports whether addr falls inside the region.
func (r Region) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

// ContainsRange reports whether [addr, addr+size) falls inside the region.
func (r Region) ContainsRange(addr, size uint64) bool {
	return addr >= r.Start && addr+size <= r.End && addr+size >= addr
}

// Swappable reports whether the region's backing may be paged out or
// lazily committed, where the fault-tolerant access path is preferred.
func (r Region) Swappable() bool {
	return r.Inode != 0 || r.Kind == KindDevice
}

func (r Region) String() string {
	return fmt.Sprintf("%x-%x %s %s %s", r.Start, r.End, r.Perms, r.Kind, r.Path)
}

// ParseMaps parses /proc/<pid>/maps formatted text. Lines that do not parse
// are skipped, matching how the kernel file is consumed in practice.
func ParseMaps(r io.Reader) ([]Region, error) {
	var regions []Region
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}

		addrRange := strings.SplitN(fields[0], "-", 2)
		if len(addrRange) != 2 {
			continue
		}
		start, err := strconv.ParseUint(addrRange[0], 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(addrRange[1], 16, 64)
		if err != nil || end <= start {
			continue
		}

		offset, _ := strconv.ParseUint(fields[2], 16, 64)
		inode, _ := strconv.ParseUint(fields[4], 10, 64)

		path := ""
		if len(fields) > 5 {
			path = strings.Join(fields[5:], " ")
		}

		regions = append(regions, Region{
			Start:  start,
			End:    end,
			Perms:  ParsePerms(fields[1]),
			Kind:   ClassifyPath(path),
			Path:   path,
			Offset: offset,
			Inode:  inode,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return regions, nil
}

// Criteria selects a subsequence of a snapshot's regions.
type Criteria struct {
	// Require keeps only regions with all of these permission bits.
	Require PermSet
	// Forbid drops regions with any of these permission bits.
	Forbid PermSet
	// Kinds, when non-empty, keeps only the listed kinds.
	Kinds []Kind
	// MaxAddress, when non-zero, drops regions starting at or above it.
	MaxAddress uint64
}

// Match reports whether a region satisfies the criteria.
func (c Criteria) Match(r Region) bool {
	if !r.Perms.Has(c.Require) {
		return false
	}
	if r.Perms&c.Forbid != 0 {
		return false
	}
	if c.MaxAddress != 0 && r.Start >= c.MaxAddress {
		return false
	}
	if len(c.Kinds) > 0 {
		ok := false
		for _, k := range c.Kinds {
			if r.Kind == k {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Snapshot is an immutable, address-sorted region catalog. A snapshot is
// published atomically; readers never observe a partially rebuilt catalog.
type Snapshot struct {
	regions []Region
}

// NewSnapshot copies and sorts regions into a snapshot.
func NewSnapshot(regions []Region) *Snapshot {
	rs := make([]Region, len(regions))
	copy(rs, regions)
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].Start < rs[j].Start
	})
	return &Snapshot{regions: rs}
}

// Len returns the number of regions.
func (s *Snapshot) Len() int {
	return len(s.regions)
}

// Regions returns a copy of the region list.
func (s *Snapshot) Regions() []Region {
	rs := make([]Region, len(s.regions))
	copy(rs, s.regions)
	return rs
}

// Find returns the region containing addr, or nil. Binary search over the
// sorted list.
func (s *Snapshot) Find(addr uint64) *Region {
	i := sort.Search(len(s.regions), func(i int) bool {
		return s.regions[i].End > addr
	})
	if i < len(s.regions) && s.regions[i].Contains(addr) {
		r := s.regions[i]
		return &r
	}
	return nil
}

// FindRange returns the region fully containing [addr, addr+size), or nil.
// Ranges spanning two adjacent regions are rejected; maps may merge or
// split between refreshes and a spanning access is not verifiable.
func (s *Snapshot) FindRange(addr, size uint64) *Region {
	r := s.Find(addr)
	if r == nil || !r.ContainsRange(addr, size) {
		return nil
	}
	return r
}

// Filter returns the subsequence matching the criteria, address-ascending.
func (s *Snapshot) Filter(c Criteria) []Region {
	var out []Region
	for _, r := range s.regions {
		if c.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// TotalBytes sums the sizes of matching regions.
func (s *Snapshot) TotalBytes(c Criteria) uint64 {
	var total uint64
	for _, r := range s.regions {
		if c.Match(r) {
			total += r.Size()
		}
	}
	return total
}
