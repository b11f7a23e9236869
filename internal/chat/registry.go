package chat

import (
	"log/slog"
	"sync"
	"time"
)

type registryOp int

const (
	opAdd registryOp = iota
	opRemove
	opSnapshot
)

func (op registryOp) String() string {
	switch op {
	case opAdd:
		return "add"
	case opRemove:
		return "remove"
	case opSnapshot:
		return "snapshot"
	}
	return "unknown"
}

type registryRequest struct {
	op      registryOp
	session *Session
	reply   chan registryReply
}

type registryReply struct {
	err      error
	removed  bool
	sessions []*Session
}

// Registry is the roster of authenticated sessions. A single goroutine
// (Run) owns the membership list, so every Add, Remove and Snapshot call is
// serialized against every other one.
type Registry struct {
	requests chan registryRequest
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		// Unbuffered: a request is either taken by Run or refused after Stop.
		requests: make(chan registryRequest),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

// Stop signals the Run loop to exit. Safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Wait blocks until the Run loop has completely finished.
func (r *Registry) Wait() {
	<-r.doneCh
}

func (r *Registry) Run() {
	defer close(r.doneCh)
	// Single-writer ownership: members and present are only touched here.
	var members []*Session
	present := make(map[*Session]struct{})

	for {
		select {
		case req := <-r.requests:
			start := time.Now()
			var rep registryReply

			switch req.op {
			case opAdd:
				if _, ok := present[req.session]; ok {
					rep.err = ErrAlreadyPresent
					break
				}
				present[req.session] = struct{}{}
				members = append(members, req.session)
				OnlineUsers.Set(float64(len(members)))
			case opRemove:
				if _, ok := present[req.session]; !ok {
					break
				}
				delete(present, req.session)
				for i, s := range members {
					if s == req.session {
						members = append(members[:i], members[i+1:]...)
						break
					}
				}
				rep.removed = true
				OnlineUsers.Set(float64(len(members)))
			case opSnapshot:
				rep.sessions = make([]*Session, len(members))
				copy(rep.sessions, members)
			}

			req.reply <- rep
			RegistryOpDuration.WithLabelValues(req.op.String()).Observe(time.Since(start).Seconds())
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) do(op registryOp, s *Session) (registryReply, error) {
	req := registryRequest{op: op, session: s, reply: make(chan registryReply, 1)}
	select {
	case r.requests <- req:
	case <-r.stopCh:
		return registryReply{}, ErrRegistryStopped
	}
	return <-req.reply, nil
}

// Add inserts s. Adding a session that is already registered returns
// ErrAlreadyPresent and leaves the roster unchanged.
func (r *Registry) Add(s *Session) error {
	rep, err := r.do(opAdd, s)
	if err != nil {
		return err
	}
	if rep.err != nil {
		r.logger.Error("registry add rejected", "session", s.ID.String(), "error", rep.err)
	}
	return rep.err
}

// Remove deletes s if present and reports whether it was. Removing an
// absent session is a no-op.
func (r *Registry) Remove(s *Session) bool {
	rep, err := r.do(opRemove, s)
	if err != nil {
		return false
	}
	return rep.removed
}

// Snapshot returns the members in join order. The slice is a private copy
// and may be iterated without any lock held.
func (r *Registry) Snapshot() []*Session {
	rep, err := r.do(opSnapshot, nil)
	if err != nil {
		return nil
	}
	return rep.sessions
}
