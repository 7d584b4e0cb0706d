package gateway

import (
	"context"
	"sync"

	"github.com/dyluth/tally/internal/reconciler"
)

// sessionPool shares one running reconciler per session between connections.
type sessionPool struct {
	store reconciler.Store
	opts  []reconciler.Option

	mu       sync.Mutex
	sessions map[string]*pooledSession
}

type pooledSession struct {
	recon *reconciler.Reconciler
	refs  int
}

func newSessionPool(store reconciler.Store, opts ...reconciler.Option) *sessionPool {
	return &sessionPool{
		store:    store,
		opts:     opts,
		sessions: make(map[string]*pooledSession),
	}
}

// acquire returns the session's reconciler, starting it on first use. The
// release function must be called exactly once; the last release stops it.
func (p *sessionPool) acquire(ctx context.Context, sessionID string) (*reconciler.Reconciler, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ps, ok := p.sessions[sessionID]
	if !ok {
		recon, err := reconciler.New(p.store, sessionID, p.opts...)
		if err != nil {
			return nil, nil, err
		}
		// The reconciler outlives the request that started it.
		if err := recon.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, nil, err
		}
		ps = &pooledSession{recon: recon}
		p.sessions[sessionID] = ps
	}
	ps.refs++

	var once sync.Once
	release := func() {
		once.Do(func() { p.release(sessionID, ps) })
	}
	return ps.recon, release, nil
}

func (p *sessionPool) release(sessionID string, ps *pooledSession) {
	p.mu.Lock()
	ps.refs--
	last := ps.refs == 0
	if last && p.sessions[sessionID] == ps {
		delete(p.sessions, sessionID)
	}
	p.mu.Unlock()

	if last {
		ps.recon.Close()
	}
}

// active returns the number of running reconcilers.
func (p *sessionPool) active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// closeAll stops every reconciler regardless of references.
func (p *sessionPool) closeAll() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*pooledSession)
	p.mu.Unlock()

	for _, ps := range sessions {
		ps.recon.Close()
	}
}
