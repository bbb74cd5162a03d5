// Package engine is the boundary consumed by the control surface: attach and
// detach, searches and refinement, candidate I/O, frozen writes, and pointer
// chain scans, all exchanged as plain structured data.
package engine

import (
	"context"
	"fmt"
	"sync"

	"memhound/chainscan"
	"memhound/process"
	"memhound/scan"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// SessionID identifies a search session owned by a handle.
type SessionID uint64

// Engine creates and configures handles. Handles are independent; the
// engine carries only shared tuning.
type Engine struct {
	cfg Config
}

// New creates an engine with the given config (zero fields take defaults).
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// AttachTarget wraps an already-opened target in a handle. The live attach
// entry point is Attach in the platform build; offline snapshots and tests
// come through here directly.
func (e *Engine) AttachTarget(t process.Target) *Handle {
	h := &Handle{
		engine:   e,
		target:   t,
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("engine-%d", t.PID()))),
		sessions: make(map[SessionID]*scan.Session),
		ops:      make(map[OperationID]*Operation),
	}
	h.freezer = newFreezer(h, h.log, e.cfg.FreezeInterval)
	return h
}

// Handle owns one attach session: the target, its search sessions, its
// frozen writes and its in-flight operations. All dependent state dies with
// the handle.
type Handle struct {
	engine *Engine
	target process.Target
	log    *logger.Logger

	mu          sync.Mutex
	closed      bool
	sessions    map[SessionID]*scan.Session
	nextSession SessionID
	ops         map[OperationID]*Operation
	nextOp      OperationID

	freezer *freezer

	// addrLocks serializes writes to the same address between the freeze
	// ticker and caller-issued writes.
	addrLocks sync.Map // uint64 -> *sync.Mutex
}

// Target exposes the underlying target for direct reads by the control
// surface (hex views etc.). All access still goes through the validating
// access layer.
func (h *Handle) Target() process.Target {
	return h.target
}

// Detach tears down the handle: operations are cancelled, frozen writes and
// sessions dropped, the target closed.
func (h *Handle) Detach() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	ops := make([]*Operation, 0, len(h.ops))
	for _, op := range h.ops {
		ops = append(ops, op)
	}
	h.sessions = make(map[SessionID]*scan.Session)
	h.mu.Unlock()

	for _, op := range ops {
		op.Cancel()
	}
	h.freezer.shutdown()
	h.log.Infoln("Detached")
	return h.target.Close()
}

func (h *Handle) alive() error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed || !h.target.Alive() {
		return process.ErrAttachLost
	}
	return nil
}

func (h *Handle) newOperation(cancel context.CancelFunc) *Operation {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextOp++
	op := newOperation(h.nextOp, cancel)
	h.ops[op.ID()] = op
	return op
}

func (h *Handle) dropOperation(id OperationID) {
	h.mu.Lock()
	delete(h.ops, id)
	h.mu.Unlock()
}

// Cancel requests cancellation of an operation; reports whether the id was
// known and still running.
func (h *Handle) Cancel(id OperationID) bool {
	h.mu.Lock()
	op, ok := h.ops[id]
	h.mu.Unlock()
	if ok {
		op.Cancel()
	}
	return ok
}

// Search launches an initial search asynchronously and returns the session
// id it will populate plus the operation handle. A cancelled search commits
// the partial candidate set to the session.
func (h *Handle) Search(opts scan.Options, literal *process.Value) (SessionID, *Operation, error) {
	if err := h.alive(); err != nil {
		return 0, nil, err
	}

	if opts.Workers <= 0 {
		opts.Workers = h.engine.cfg.Workers
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = h.engine.cfg.ChunkSize
	}
	if opts.Limit == 0 {
		opts.Limit = h.engine.cfg.SearchLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	op := h.newOperation(cancel)

	h.mu.Lock()
	h.nextSession++
	id := h.nextSession
	h.mu.Unlock()

	observer := opts.Progress
	opts.Progress = func(done, total int) {
		if total > 0 {
			op.setProgress(float64(done) / float64(total))
		}
		if observer != nil {
			observer(done, total)
		}
	}

	go func() {
		defer cancel()
		session, err := scan.NewSearch(ctx, h.target, opts, literal)
		if session != nil {
			h.mu.Lock()
			if !h.closed {
				h.sessions[id] = session
			}
			h.mu.Unlock()
		}
		h.dropOperation(op.ID())
		op.finish(id, err)
	}()

	return id, op, nil
}

// Session resolves a session id.
func (h *Handle) Session(id SessionID) (*scan.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", process.ErrSessionNotFound, id)
	}
	return s, nil
}

// DropSession destroys a session and its candidate set.
func (h *Handle) DropSession(id SessionID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[id]; !ok {
		return fmt.Errorf("%w: %d", process.ErrSessionNotFound, id)
	}
	delete(h.sessions, id)
	return nil
}

// Refine narrows a session's candidate set with the comparator.
func (h *Handle) Refine(ctx context.Context, id SessionID, cmp scan.Comparator) error {
	if err := h.alive(); err != nil {
		return err
	}
	s, err := h.Session(id)
	if err != nil {
		return err
	}
	return s.Refine(ctx, cmp)
}

// ReadCandidates returns the session's candidate set with freshly read
// current values. The set itself is not narrowed by reading.
func (h *Handle) ReadCandidates(id SessionID) ([]scan.Candidate, error) {
	s, err := h.Session(id)
	if err != nil {
		return nil, err
	}
	if err := h.alive(); err != nil {
		return nil, err
	}

	out := s.Candidates()
	reqs := make([]process.ReadRequest, len(out))
	for i, c := range out {
		reqs[i] = process.ReadRequest{Addr: c.Addr, Size: s.Width()}
	}
	for i, res := range h.target.ReadBatch(reqs, s.Mode()) {
		if res.Err == nil {
			out[i].Prev = out[i].Value
			out[i].Value = res.Data
		}
	}
	return out, nil
}

// WriteCandidates writes one value to every candidate address of a session.
// Per-address outcomes are independent.
func (h *Handle) WriteCandidates(id SessionID, value process.Value, mode process.AccessMode) ([]error, error) {
	s, err := h.Session(id)
	if err != nil {
		return nil, err
	}
	if err := h.alive(); err != nil {
		return nil, err
	}

	addrs := s.Addresses()
	errs := make([]error, len(addrs))
	for i, addr := range addrs {
		errs[i] = h.writeSerialized(addr, value.Raw, mode)
	}
	return errs, nil
}

// WriteSet writes an explicit set of address/value pairs once.
func (h *Handle) WriteSet(pairs []scan.WritePair, mode process.AccessMode) ([]error, error) {
	if err := h.alive(); err != nil {
		return nil, err
	}
	errs := make([]error, len(pairs))
	for i, p := range pairs {
		errs[i] = h.writeSerialized(p.Addr, p.Value.Raw, mode)
	}
	return errs, nil
}

// writeSerialized is the single write path shared by the facade and the
// freeze ticker; conflicting writes to one address are serialized here.
func (h *Handle) writeSerialized(addr process.Address, data []byte, mode process.AccessMode) error {
	v, _ := h.addrLocks.LoadOrStore(uint64(addr), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return h.target.WriteMemory(addr, data, mode)
}

// Freeze registers a write re-applied on the freeze ticker until
// unregistered or the handle detaches.
func (h *Handle) Freeze(addr process.Address, value process.Value, mode process.AccessMode) (FreezeID, error) {
	if err := h.alive(); err != nil {
		return 0, err
	}
	return h.freezer.register(addr, value, mode), nil
}

// Unfreeze removes a frozen write; reports whether the id existed.
func (h *Handle) Unfreeze(id FreezeID) bool {
	return h.freezer.unregister(id)
}

// ScanChains launches a pointer chain scan asynchronously. The operation's
// result is the stable []chainscan.Chain.
func (h *Handle) ScanChains(targetAddr process.Address, opts chainscan.Options) (*Operation, error) {
	if err := h.alive(); err != nil {
		return nil, err
	}

	if opts.Workers <= 0 {
		opts.Workers = h.engine.cfg.Workers
	}

	ctx, cancel := context.WithCancel(context.Background())
	op := h.newOperation(cancel)

	observer := opts.Progress
	opts.Progress = func(done, total int) {
		if total > 0 {
			op.setProgress(float64(done) / float64(total))
		}
		if observer != nil {
			observer(done, total)
		}
	}

	go func() {
		defer cancel()
		chains, err := chainscan.Scan(ctx, h.target, targetAddr, opts)
		h.dropOperation(op.ID())
		op.finish(chains, err)
	}()

	return op, nil
}
