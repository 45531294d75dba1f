// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package client

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/waconnect/waconnect-go/internal/webhook"
)

// SessionManager manages the set of named sessions an API process
// exposes, each backed by its own on-disk SQLite store under dataDir.
type SessionManager struct {
	sessions   map[string]*WAClient
	mu         sync.RWMutex
	logger     *zap.SugaredLogger
	dataDir    string
	dispatcher *webhook.Dispatcher
}

// SetDispatcher wires a webhook dispatcher into every session created
// from this point forward.
func (sm *SessionManager) SetDispatcher(d *webhook.Dispatcher) {
	sm.mu.Lock()
	sm.dispatcher = d
	sm.mu.Unlock()
}

// NewSessionManager creates a new session manager rooted at
// SESSION_DIR (default ./sessions).
func NewSessionManager(logger *zap.SugaredLogger) *SessionManager {
	dataDir := os.Getenv("SESSION_DIR")
	if dataDir == "" {
		dataDir = "./sessions"
	}
	os.MkdirAll(dataDir, 0755)

	return &SessionManager{
		sessions: make(map[string]*WAClient),
		logger:   logger,
		dataDir:  dataDir,
	}
}

func (sm *SessionManager) dbPath(sessionID string) string {
	dir := filepath.Join(sm.dataDir, sessionID)
	os.MkdirAll(dir, 0755)
	return "sqlite://" + filepath.Join(dir, "store.db")
}

// CreateSession creates a new session and starts dialing it in the
// background; callers poll GetStatus/GetQRCode for pairing progress.
func (sm *SessionManager) CreateSession(sessionID string) (*WAClient, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sessions[sessionID]; exists {
		return nil, ErrSessionExists
	}

	c, err := New(sessionID, sm.dbPath(sessionID), sm.logger)
	if err != nil {
		return nil, fmt.Errorf("client: create session %s: %w", sessionID, err)
	}
	if sm.dispatcher != nil {
		c.SetDispatcher(sm.dispatcher)
	}
	sm.sessions[sessionID] = c

	go func() {
		if err := c.Connect(); err != nil {
			sm.logger.Errorw("session connect failed", "session", sessionID, "error", err)
		}
	}()

	return c, nil
}

// GetSession returns a session by ID.
func (sm *SessionManager) GetSession(sessionID string) (*WAClient, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	c, exists := sm.sessions[sessionID]
	return c, exists
}

// DeleteSession disconnects a session, removes it from the in-memory
// table, and deletes its on-disk store.
func (sm *SessionManager) DeleteSession(sessionID string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	c, exists := sm.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	c.Disconnect()
	delete(sm.sessions, sessionID)

	return os.RemoveAll(filepath.Join(sm.dataDir, sessionID))
}

// GetAllSessions returns every known session.
func (sm *SessionManager) GetAllSessions() []*WAClient {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*WAClient, 0, len(sm.sessions))
	for _, c := range sm.sessions {
		sessions = append(sessions, c)
	}
	return sessions
}

// GetStats summarizes session counts by lifecycle bucket.
func (sm *SessionManager) GetStats() SessionStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	stats := SessionStats{Total: len(sm.sessions)}
	for _, c := range sm.sessions {
		switch c.GetStatus() {
		case StatusReady:
			stats.Ready++
			stats.Active++
		case StatusConnecting, StatusQRReady:
			stats.Initializing++
		case StatusDisconnected:
		}
	}
	return stats
}

// LoadPersistedSessions reconnects every session directory under
// dataDir that already has a store.db, restoring sessions that
// survived a process restart.
func (sm *SessionManager) LoadPersistedSessions() error {
	entries, err := os.ReadDir(sm.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sessionID := entry.Name()
		dbFile := filepath.Join(sm.dataDir, sessionID, "store.db")
		if _, err := os.Stat(dbFile); err != nil {
			continue
		}
		sm.logger.Infow("loading persisted session", "session", sessionID)
		if _, err := sm.CreateSession(sessionID); err != nil {
			sm.logger.Errorw("failed to load persisted session", "session", sessionID, "error", err)
		}
	}

	return nil
}

// DisconnectAll disconnects every session without removing its
// on-disk store.
func (sm *SessionManager) DisconnectAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, c := range sm.sessions {
		c.Disconnect()
	}
}

// SessionStats holds aggregate session counts.
type SessionStats struct {
	Total        int `json:"total"`
	Active       int `json:"active"`
	Ready        int `json:"ready"`
	Initializing int `json:"initializing"`
}
