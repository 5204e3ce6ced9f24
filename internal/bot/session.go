package bot

import (
	"fmt"
	"sync"
)

// pendingImage records where the next photo from the user belongs once the
// agent has asked for one.
type pendingImage struct {
	ProposalDir string
	Position    string
}

type session struct {
	id      string
	waiting *pendingImage
}

// sessions tracks conversation state per Telegram user. A user is idle until
// /proposal opens a session; /reset returns them to idle. Photo handling
// flips the session into awaiting-attachment and back.
type sessions struct {
	mu sync.Mutex
	m  map[int64]*session
}

func newSessions() *sessions {
	return &sessions{m: make(map[int64]*session)}
}

// sessionID is the stable history and ledger key for one Telegram user.
func sessionID(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// start opens a fresh session for the user, dropping any pending image wait.
func (s *sessions) start(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := sessionID(userID)
	s.m[userID] = &session{id: id}
	return id
}

// id returns the active session id, if the user has one.
func (s *sessions) id(userID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[userID]
	if !ok {
		return "", false
	}
	return sess.id, true
}

// clear ends the user's session.
func (s *sessions) clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}

// markAwaiting flags that the agent asked for an image and where it belongs.
// No-op when the session is gone.
func (s *sessions) markAwaiting(userID int64, proposalDir, position string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.m[userID]; ok {
		sess.waiting = &pendingImage{ProposalDir: proposalDir, Position: position}
	}
}

// pending reports the image the session is waiting for, if any.
func (s *sessions) pending(userID int64) (pendingImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[userID]
	if !ok || sess.waiting == nil {
		return pendingImage{}, false
	}
	return *sess.waiting, true
}

// clearAwaiting drops the pending wait after the photo arrived.
func (s *sessions) clearAwaiting(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.m[userID]; ok {
		sess.waiting = nil
	}
}
