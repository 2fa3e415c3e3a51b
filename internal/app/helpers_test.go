package app

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ventline/ventline/internal/core"
	"github.com/ventline/ventline/internal/domain"
)

// fakeConn records every frame pushed to a client so tests can assert on
// the outbound event stream.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// events decodes the recorded frames into generic maps, in order.
func (f *fakeConn) events() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, fr := range f.frames {
		var m map[string]any
		if err := json.Unmarshal(fr, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeConn) ofType(typ string) []map[string]any {
	var out []map[string]any
	for _, ev := range f.events() {
		if ev["type"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeConn) lastOfType(typ string) (map[string]any, bool) {
	evs := f.ofType(typ)
	if len(evs) == 0 {
		return nil, false
	}
	return evs[len(evs)-1], true
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func newTestRegistry() *Registry {
	return NewRegistry(20 * time.Millisecond)
}

// addConn registers a connection directly against the registry, bypassing
// the orchestrator's auto-match.
func addConn(t *testing.T, r *Registry, sid string, name string, role domain.Role) *fakeConn {
	t.Helper()
	user, err := domain.NewUser(name, role)
	require.NoError(t, err)
	conn := &fakeConn{}
	r.Register(core.SessionID(sid), user, core.NewMemberSession(user, conn))
	return conn
}

// join runs the full orchestrator join path.
func join(o *Orchestrator, sid, name string, role domain.Role) *fakeConn {
	conn := &fakeConn{}
	o.Join(core.SessionID(sid), name, role, conn)
	return conn
}
