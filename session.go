package main

import (
	"sync"
	"time"
)

const maxSessions = 100

// SessionIdleTimeout is how long an empty session may linger before the
// sweeper reaps it. A var so tests can shorten it.
var SessionIdleTimeout = 5 * time.Minute

const sweepInterval = 15 * time.Second

// Session is one isolated race with its own state and timeline
type Session struct {
	ID   string
	Name string
	Game *Game

	lastActive time.Time
}

// SessionManager handles creation and lookup of sessions
type SessionManager struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	analytics *Analytics
	stop      chan struct{}
}

// NewSessionManager creates a SessionManager and starts its idle sweeper
func NewSessionManager(analytics *Analytics) *SessionManager {
	sm := &SessionManager{
		sessions:  make(map[string]*Session),
		analytics: analytics,
		stop:      make(chan struct{}),
	}
	go sm.sweep()
	return sm
}

// CreateSession creates a race session. Returns nil if the limit is reached.
func (sm *SessionManager) CreateSession(name, difficulty string, db *DB) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= maxSessions {
		return nil
	}

	id := GenerateUUID()
	sess := &Session{
		ID:         id,
		Name:       name,
		Game:       NewGame(id, difficulty, db, sm.analytics),
		lastActive: time.Now(),
	}
	sm.sessions[id] = sess
	go sess.Game.Run()

	metricSessions.Set(float64(len(sm.sessions)))
	if sm.analytics != nil {
		sm.analytics.Track(EvtSessionStart, 0, id, "")
	}
	return sess
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// MarkActive refreshes a session's idle clock
func (sm *SessionManager) MarkActive(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sess, ok := sm.sessions[id]; ok {
		sess.lastActive = time.Now()
	}
}

// RemovePlayer removes a racer from a session and disposes the session
// once it empties out
func (sm *SessionManager) RemovePlayer(sessionID, playerID string) {
	sm.mu.RLock()
	sess, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if !ok {
		return
	}
	sess.Game.RemovePlayer(playerID)

	if sess.Game.PlayerCount() == 0 {
		sm.remove(sessionID)
	}
}

// ListSessions returns info about all active sessions
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	list := make([]SessionInfo, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		list = append(list, SessionInfo{
			ID:         sess.ID,
			Name:       sess.Name,
			Players:    sess.Game.PlayerCount(),
			Phase:      sess.Game.Phase(),
			Difficulty: sess.Game.StageDifficulty(),
		})
	}
	return list
}

// Close stops the sweeper and all session loops
func (sm *SessionManager) Close() {
	close(sm.stop)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, sess := range sm.sessions {
		sess.Game.Stop()
		delete(sm.sessions, id)
	}
	metricSessions.Set(0)
}

func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sess, ok := sm.sessions[id]
	if !ok {
		return
	}
	sess.Game.Stop()
	delete(sm.sessions, id)

	metricSessions.Set(float64(len(sm.sessions)))
	if sm.analytics != nil {
		sm.analytics.Track(EvtSessionEnd, 0, id, "")
	}
}

// sweep reaps empty sessions that have been idle past the timeout
func (sm *SessionManager) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-SessionIdleTimeout)
			sm.mu.RLock()
			var stale []string
			for id, sess := range sm.sessions {
				if sess.Game.PlayerCount() == 0 && sess.lastActive.Before(cutoff) {
					stale = append(stale, id)
				}
			}
			sm.mu.RUnlock()
			for _, id := range stale {
				sm.remove(id)
			}
		case <-sm.stop:
			return
		}
	}
}
