package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"memhound/process"
)

// ErrNotSeeded is returned by Refine before an initial search has populated
// the session.
var ErrNotSeeded = errors.New("session has no candidate set")

// ErrTypeMismatch is returned when a comparator or literal does not fit the
// session's value type.
var ErrTypeMismatch = errors.New("value type mismatch")

// refineBatch is how many candidate re-reads are issued per batch, with a
// cancellation check in between.
const refineBatch = 512

// Candidate is one surviving address of a search session, with its current
// and previously observed raw value.
type Candidate struct {
	Addr  process.Address
	Value []byte
	Prev  []byte
}

// Session owns one candidate set across an initial search and its
// refinements. The value type is fixed at creation; a different type needs a
// new session. The candidate set is replaced atomically on each pass, never
// edited in place, so observers see either the old or the new set in full.
type Session struct {
	target process.Target
	typ    process.ValueType
	opts   Options

	// width is the candidate byte width: the type's width, or the seed
	// literal's length for variable-width types.
	width process.Size

	mu         sync.Mutex
	seeded     bool
	candidates []Candidate
	generation uint64
}

// Type returns the session's immutable value type.
func (s *Session) Type() process.ValueType {
	return s.typ
}

// Width returns the candidate byte width.
func (s *Session) Width() process.Size {
	return s.width
}

// Mode returns the access mode every read the session issues uses.
func (s *Session) Mode() process.AccessMode {
	return s.opts.Mode
}

// Generation returns the refine counter, monotonically increasing.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Len returns the current candidate count.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidates)
}

// Candidates returns a copy of the current candidate set.
func (s *Session) Candidates() []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Candidate, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Addresses returns the current candidate addresses.
func (s *Session) Addresses() []process.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]process.Address, len(s.candidates))
	for i, c := range s.candidates {
		out[i] = c.Addr
	}
	return out
}

// publish swaps in a freshly computed candidate set.
func (s *Session) publish(candidates []Candidate, bumpGeneration bool) {
	s.mu.Lock()
	s.candidates = candidates
	s.seeded = true
	if bumpGeneration {
		s.generation++
	}
	s.mu.Unlock()
}

// Reset discards the candidate set, returning the session to its empty
// state. A subsequent seed starts a fresh narrowing.
func (s *Session) Reset() {
	s.mu.Lock()
	s.candidates = nil
	s.seeded = false
	s.generation = 0
	s.mu.Unlock()
}

// Refine re-reads only the current candidate addresses, applies the
// comparator against each candidate's previous value and keeps survivors.
// It never re-scans memory outside the candidate set: one pass costs
// O(candidates), not O(region bytes). The new set is computed fully before
// being published; a cancelled or failed pass leaves the old set intact.
func (s *Session) Refine(ctx context.Context, cmp Comparator) error {
	if !cmp.Valid(s.typ) {
		return fmt.Errorf("%w: %s comparator on %s session", ErrTypeMismatch, cmp, s.typ)
	}

	s.mu.Lock()
	if !s.seeded {
		s.mu.Unlock()
		return ErrNotSeeded
	}
	current := make([]Candidate, len(s.candidates))
	copy(current, s.candidates)
	s.mu.Unlock()

	survivors := make([]Candidate, 0, len(current))
	for start := 0; start < len(current); start += refineBatch {
		if err := ctx.Err(); err != nil {
			return process.ErrCancelled
		}

		end := start + refineBatch
		if end > len(current) {
			end = len(current)
		}
		batch := current[start:end]

		reqs := make([]process.ReadRequest, len(batch))
		for i, c := range batch {
			reqs[i] = process.ReadRequest{Addr: c.Addr, Size: s.width}
		}

		for i, res := range s.target.ReadBatch(reqs, s.opts.Mode) {
			if res.Err != nil {
				if errors.Is(res.Err, process.ErrAttachLost) {
					return res.Err
				}
				// candidate's backing went away: drop it
				continue
			}
			prev := batch[i].Value
			if !cmp.Apply(s.typ, prev, res.Data) {
				continue
			}
			survivors = append(survivors, Candidate{
				Addr:  batch[i].Addr,
				Value: res.Data,
				Prev:  prev,
			})
		}
	}

	s.publish(survivors, true)
	return nil
}
