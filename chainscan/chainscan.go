package chainscan

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"memhound/process"
	"memhound/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sync/errgroup"
)

var log = logger.NewLogger(coloransi.Color(coloransi.ColorIndigo, coloransi.ColorOrange, "chainscan"))

const (
	defaultMaxDepth  = 3
	defaultMaxOffset = 0x200
	defaultSnapshots = 3
	defaultInterval  = 50 * time.Millisecond
	readChunkSize    = 1 << 20

	// maxChainsPerPass caps discovery so a pathological pointer mesh
	// cannot exhaust memory.
	maxChainsPerPass = 100000
)

// Options configures a chain scan.
type Options struct {
	// MaxDepth bounds the dereference depth D.
	MaxDepth int

	// MaxOffset bounds the offset magnitude M at every step.
	MaxOffset process.Size

	// Snapshots is the number of independent passes used for stability
	// scoring; only chains reproduced by every pass are retained.
	Snapshots int

	// Interval separates the passes in real time, letting the live
	// target's memory churn between them.
	Interval time.Duration

	// Regions selects which regions may hold base pointers. Empty selects
	// writable, readable regions.
	Regions memory_map.Criteria

	// Align is the pointer slot alignment, default the target word size.
	Align process.Size

	// Workers bounds the slot-collection pool.
	Workers int

	// Mode is the access mode for all reads.
	Mode process.AccessMode

	// Progress, when set, receives completed and total pass counts.
	Progress func(done, total int)
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = defaultMaxDepth
	}
	if o.MaxOffset == 0 {
		o.MaxOffset = defaultMaxOffset
	}
	if o.Snapshots <= 0 {
		o.Snapshots = defaultSnapshots
	}
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	if o.Align == 0 {
		o.Align = process.PointerSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Regions.Require == 0 {
		o.Regions.Require = memory_map.Read | memory_map.Write
	}
	return o
}

// slot is one aligned pointer-sized location and its decoded value.
type slot struct {
	addr  process.Address
	value uint64
}

// Scan discovers pointer chains resolving to targetAddr. It fails with
// ErrTargetUnresolvable when the target address is unmapped before the
// first pass completes, distinguishing invalid input from an empty result.
func Scan(ctx context.Context, target process.Target, targetAddr process.Address, opts Options) ([]Chain, error) {
	opts = opts.withDefaults()

	counts := make(map[string]Chain)
	passes := 0

	for pass := 0; pass < opts.Snapshots; pass++ {
		if pass > 0 {
			select {
			case <-ctx.Done():
				return nil, process.ErrCancelled
			case <-time.After(opts.Interval):
			}
		}

		found, err := onePass(ctx, target, targetAddr, opts, pass == 0)
		if err != nil {
			return nil, err
		}
		passes++

		for _, c := range found {
			k := c.key()
			prev, ok := counts[k]
			if !ok {
				prev = c
			}
			prev.Score++
			counts[k] = prev
		}

		if opts.Progress != nil {
			opts.Progress(passes, opts.Snapshots)
		}
		log.Debugln("Pass", passes, "of", opts.Snapshots, "found", len(found), "chains")
	}

	// single-snapshot scans over live, mutating memory produce coincidental
	// hits at a high rate; only chains every pass reproduced are trusted
	var stable []Chain
	for _, c := range counts {
		if c.Score == passes {
			stable = append(stable, c)
		}
	}

	sort.Slice(stable, func(i, j int) bool {
		if stable[i].Score != stable[j].Score {
			return stable[i].Score > stable[j].Score
		}
		if stable[i].Depth() != stable[j].Depth() {
			return stable[i].Depth() < stable[j].Depth()
		}
		if stable[i].TotalOffset() != stable[j].TotalOffset() {
			return stable[i].TotalOffset() < stable[j].TotalOffset()
		}
		return stable[i].key() < stable[j].key()
	})

	log.Infoln("Chain scan complete:", len(stable), "stable chains after", passes, "passes")
	return stable, nil
}

// onePass takes a fresh catalog snapshot, collects every candidate pointer
// slot, and walks the dereference graph from the target address.
func onePass(ctx context.Context, target process.Target, targetAddr process.Address, opts Options, first bool) ([]Chain, error) {
	snap, err := target.RefreshRegions()
	if err != nil {
		return nil, err
	}

	if snap.Find(uint64(targetAddr)) == nil {
		if first {
			return nil, fmt.Errorf("%w: %s", process.ErrTargetUnresolvable, targetAddr)
		}
		// target vanished mid-scan: this pass cannot reproduce anything
		return nil, nil
	}

	slots, err := collectSlots(ctx, target, snap, opts)
	if err != nil {
		return nil, err
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].value < slots[j].value })

	keys := regionKeys(snap)

	var chains []Chain

	// depth-first walk: each matching slot becomes the next depth's target
	var walk func(t process.Address, depth int, suffix []int64, onPath map[process.Address]bool)
	walk = func(t process.Address, depth int, suffix []int64, onPath map[process.Address]bool) {
		if depth > opts.MaxDepth || len(chains) >= maxChainsPerPass || ctx.Err() != nil {
			return
		}

		lo := uint64(t) - uint64(opts.MaxOffset)
		if lo > uint64(t) {
			lo = 0
		}
		hi := uint64(t) + uint64(opts.MaxOffset)

		i := sort.Search(len(slots), func(i int) bool { return slots[i].value >= lo })
		for ; i < len(slots) && slots[i].value <= hi; i++ {
			s := slots[i]
			if onPath[s.addr] {
				continue
			}

			region := snap.Find(uint64(s.addr))
			if region == nil {
				continue
			}

			offsets := make([]int64, 0, len(suffix)+1)
			offsets = append(offsets, int64(s.value)-int64(t))
			offsets = append(offsets, suffix...)

			chains = append(chains, Chain{
				BaseRegion: keys[region.Start],
				BaseOffset: process.Size(uint64(s.addr) - region.Start),
				Offsets:    offsets,
			})
			if len(chains) >= maxChainsPerPass {
				return
			}

			if depth < opts.MaxDepth {
				onPath[s.addr] = true
				walk(s.addr, depth+1, offsets, onPath)
				delete(onPath, s.addr)
			}
		}
	}

	walk(targetAddr, 1, nil, make(map[process.Address]bool))

	if err := ctx.Err(); err != nil {
		return nil, process.ErrCancelled
	}
	return chains, nil
}

// collectSlots reads the selected regions chunkwise on a bounded pool and
// returns every aligned slot whose decoded word points into mapped memory.
func collectSlots(ctx context.Context, target process.Target, snap *memory_map.Snapshot, opts Options) ([]slot, error) {
	regions := snap.Filter(opts.Regions)

	var (
		mu    sync.Mutex
		slots []slot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for _, r := range regions {
		r := r
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for base := r.Start; base < r.End; base += readChunkSize {
				if gctx.Err() != nil {
					return nil
				}
				size := uint64(readChunkSize)
				if base+size > r.End {
					size = r.End - base
				}
				if size < process.PointerSize {
					break
				}

				data, err := target.ReadMemory(process.Address(base), process.Size(size), opts.Mode)
				if err != nil {
					if errors.Is(err, process.ErrAttachLost) {
						return err
					}
					log.Debugln("Skipping unreadable span at", process.Address(base), err)
					continue
				}

				var local []slot
				align := uint64(opts.Align)
				start := uint64(0)
				if rem := base % align; rem != 0 {
					start = align - rem
				}
				for off := start; off+process.PointerSize <= uint64(len(data)); off += align {
					v := uint64(process.DecodePointer(data[off:]))
					if v == 0 || snap.Find(v) == nil {
						continue
					}
					local = append(local, slot{addr: process.Address(base + off), value: v})
				}

				if len(local) > 0 {
					mu.Lock()
					slots = append(slots, local...)
					mu.Unlock()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, process.ErrCancelled
	}
	return slots, nil
}
