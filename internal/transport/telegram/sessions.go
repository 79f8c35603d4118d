package telegram

import "sync"

// pendingAction is the per-chat conversation state: what the next plain-text
// message from that chat means.
type pendingAction int

const (
	pendingNone pendingAction = iota
	pendingFollowSearch
)

// sessionStore is the single source of truth for pending conversation state.
// All set/clear paths go through it; there is no ambient per-chat state
// anywhere else.
type sessionStore struct {
	mu      sync.Mutex
	pending map[int64]pendingAction
}

func newSessionStore() sessionStore {
	return sessionStore{pending: map[int64]pendingAction{}}
}

func (s *sessionStore) set(chatID int64, a pendingAction) {
	s.mu.Lock()
	s.pending[chatID] = a
	s.mu.Unlock()
}

func (s *sessionStore) get(chatID int64) pendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[chatID]
}

func (s *sessionStore) clear(chatID int64) {
	s.mu.Lock()
	delete(s.pending, chatID)
	s.mu.Unlock()
}
