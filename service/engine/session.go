package engine

import "sync"

// sessionGuard serializes operations per user. A user gets at most one
// in-flight operation; a second command while one is running is
// rejected rather than queued, so two commands can never race to spend
// the same balance.
type sessionGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newSessionGuard() *sessionGuard {
	return &sessionGuard{active: make(map[string]struct{})}
}

// begin marks the user as busy. Returns false if an operation is
// already in flight for this user.
func (g *sessionGuard) begin(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[userID]; busy {
		return false
	}
	g.active[userID] = struct{}{}
	return true
}

// end clears the user's in-flight marker.
func (g *sessionGuard) end(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, userID)
}
