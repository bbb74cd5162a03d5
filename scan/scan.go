// Package scan implements typed value search over a target's memory:
// parallel seeding scans across the region catalog and monotonic refinement
// of the resulting candidate sets.
package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"memhound/process"
	"memhound/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.NewLogger(coloransi.Color(coloransi.ColorLimeGreen, coloransi.ColorOrange, "scan"))

const defaultChunkSize = 1 << 20

// Options configures an initial search.
type Options struct {
	// Type fixes the session's value type.
	Type process.ValueType

	// Alignment is the scan step in bytes; 0 selects the type's natural
	// alignment, 1 scans unaligned.
	Alignment process.Size

	// Regions selects which catalog regions to scan. The read permission
	// is always required on top of these criteria.
	Regions memory_map.Criteria

	// ChunkSize splits large regions into units of parallel work.
	ChunkSize process.Size

	// Workers bounds the scan pool; 0 selects the core count.
	Workers int

	// Limit caps the candidate set; 0 is unlimited.
	Limit int

	// Mode is the access mode used for every read the session issues.
	Mode process.AccessMode

	// Progress, when set, receives completed and total chunk counts.
	Progress func(done, total int)
}

func (o Options) withDefaults() Options {
	if o.Alignment == 0 {
		o.Alignment = o.Type.Alignment()
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	o.Regions.Require |= memory_map.Read
	return o
}

type chunk struct {
	addr process.Address
	size process.Size
}

// splitRegions cuts the filtered region set into chunks, overlapping
// neighbours by width-1 bytes so values straddling a chunk boundary are not
// missed.
func splitRegions(regions []memory_map.Region, chunkSize, width process.Size) []chunk {
	var chunks []chunk
	for _, r := range regions {
		if r.Size() < uint64(width) {
			continue
		}
		for base := r.Start; base < r.End; base += uint64(chunkSize) {
			size := uint64(chunkSize)
			if base+size < r.End {
				size += uint64(width) - 1
			}
			if base+size > r.End {
				size = r.End - base
			}
			chunks = append(chunks, chunk{addr: process.Address(base), size: process.Size(size)})
		}
	}
	return chunks
}

// NewSearch seeds a new session by scanning the filtered region set. A
// non-nil seed keeps only offsets whose decoded window equals the literal
// (exact search); a nil seed records the value at every scanned offset
// (unknown search) so a later refine can apply a comparator.
//
// Cancellation is cooperative, checked at chunk boundaries: a cancelled scan
// returns the partial candidate set found so far together with ErrCancelled.
func NewSearch(ctx context.Context, target process.Target, opts Options, seed *process.Value) (*Session, error) {
	opts = opts.withDefaults()

	width := opts.Type.Width()
	if seed != nil {
		if seed.Type != opts.Type {
			return nil, fmt.Errorf("%w: %s seed for %s search", ErrTypeMismatch, seed.Type, opts.Type)
		}
		if width == 0 {
			width = seed.Len()
		}
		if width == 0 || seed.Len() != width {
			return nil, fmt.Errorf("%w: seed is %d bytes, type wants %d", ErrTypeMismatch, seed.Len(), width)
		}
	} else if width == 0 {
		return nil, fmt.Errorf("%w: unknown-value search needs a fixed-width type, not %s", ErrTypeMismatch, opts.Type)
	}

	// Candidates are only ever seeded from a snapshot taken for this scan;
	// stale catalogs never justify expanding a candidate set.
	snap, err := target.RefreshRegions()
	if err != nil {
		return nil, err
	}

	regions := snap.Filter(opts.Regions)
	chunks := splitRegions(regions, opts.ChunkSize, width)
	total := len(chunks)

	log.Debugln("Seeding scan:", len(regions), "regions,", total, "chunks, width", uint64(width))

	session := &Session{target: target, typ: opts.Type, opts: opts, width: width}

	var (
		mu      sync.Mutex
		found   []Candidate
		fatal   error
		done    atomic.Int64
		full    atomic.Bool
		scanned = func() {
			n := int(done.Add(1))
			if opts.Progress != nil {
				opts.Progress(n, total)
			}
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, c := range chunks {
		if gctx.Err() != nil {
			break
		}
		c := c
		g.Go(func() error {
			if gctx.Err() != nil || full.Load() {
				scanned()
				return nil
			}

			data, err := target.ReadMemory(c.addr, c.size, opts.Mode)
			if err != nil {
				if errors.Is(err, process.ErrAttachLost) {
					// workers race here with differently wrapped forms of
					// the same sentinel; the first one in is kept
					mu.Lock()
					if fatal == nil {
						fatal = err
					}
					mu.Unlock()
					return err
				}
				// racy region shrink or protection change: skip the chunk
				log.Debugln("Skipping unreadable chunk at", c.addr, err)
				scanned()
				return nil
			}

			var local []Candidate
			align := uint64(opts.Alignment)
			start := uint64(0)
			if rem := uint64(c.addr) % align; rem != 0 {
				start = align - rem
			}
			for off := start; off+uint64(width) <= uint64(len(data)); off += align {
				window := data[off : off+uint64(width)]
				if seed != nil && !bytes.Equal(seed.Raw, window) {
					continue
				}
				val := make([]byte, width)
				copy(val, window)
				local = append(local, Candidate{
					Addr:  c.addr + process.Address(off),
					Value: val,
					Prev:  val,
				})
			}

			if len(local) > 0 {
				mu.Lock()
				found = append(found, local...)
				if opts.Limit > 0 && len(found) >= opts.Limit {
					full.Store(true)
				}
				mu.Unlock()
			}
			scanned()
			return nil
		})
	}

	waitErr := g.Wait()
	mu.Lock()
	fatalErr := fatal
	mu.Unlock()
	if fatalErr != nil {
		return nil, fatalErr
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Addr < found[j].Addr })
	if opts.Limit > 0 && len(found) > opts.Limit {
		found = found[:opts.Limit]
	}
	session.publish(found, false)

	if waitErr != nil || ctx.Err() != nil {
		log.Infoln("Scan cancelled after", done.Load(), "of", total, "chunks,", len(found), "candidates")
		return session, process.ErrCancelled
	}

	log.Infoln("Scan complete:", len(found), "candidates over", total, "chunks")
	return session, nil
}
