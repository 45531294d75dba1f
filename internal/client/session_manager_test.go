// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSessionManager(t *testing.T) *SessionManager {
	t.Helper()
	t.Setenv("SESSION_DIR", t.TempDir())
	return NewSessionManager(zap.NewNop().Sugar())
}

func TestCreateSessionRejectsDuplicateID(t *testing.T) {
	sm := newTestSessionManager(t)

	_, err := sm.CreateSession("dup")
	require.NoError(t, err)

	_, err = sm.CreateSession("dup")
	require.ErrorIs(t, err, ErrSessionExists)
}

func TestCreateSessionPersistsAStoreFile(t *testing.T) {
	sm := newTestSessionManager(t)

	_, err := sm.CreateSession("alice")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(sm.dataDir, "alice", "store.db"))
	require.NoError(t, err)
}

func TestGetSessionFindsCreatedSession(t *testing.T) {
	sm := newTestSessionManager(t)

	created, err := sm.CreateSession("bob")
	require.NoError(t, err)

	found, ok := sm.GetSession("bob")
	require.True(t, ok)
	require.Same(t, created, found)

	_, ok = sm.GetSession("ghost")
	require.False(t, ok)
}

func TestDeleteSessionRemovesEntryAndStoreDir(t *testing.T) {
	sm := newTestSessionManager(t)

	_, err := sm.CreateSession("carol")
	require.NoError(t, err)

	require.NoError(t, sm.DeleteSession("carol"))
	_, ok := sm.GetSession("carol")
	require.False(t, ok)

	_, statErr := os.Stat(filepath.Join(sm.dataDir, "carol"))
	require.True(t, os.IsNotExist(statErr))
}

func TestDeleteSessionReturnsNotFoundForUnknownID(t *testing.T) {
	sm := newTestSessionManager(t)
	err := sm.DeleteSession("nobody")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGetAllSessionsReturnsEveryCreatedSession(t *testing.T) {
	sm := newTestSessionManager(t)
	_, err := sm.CreateSession("one")
	require.NoError(t, err)
	_, err = sm.CreateSession("two")
	require.NoError(t, err)

	all := sm.GetAllSessions()
	require.Len(t, all, 2)
}

func TestGetStatsBucketsByStatus(t *testing.T) {
	sm := newTestSessionManager(t)
	ready, err := sm.CreateSession("ready-session")
	require.NoError(t, err)
	ready.mu.Lock()
	ready.status = StatusReady
	ready.mu.Unlock()

	connecting, err := sm.CreateSession("connecting-session")
	require.NoError(t, err)
	connecting.mu.Lock()
	connecting.status = StatusQRReady
	connecting.mu.Unlock()

	stats := sm.GetStats()
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.Ready)
	require.Equal(t, 1, stats.Active)
	require.Equal(t, 1, stats.Initializing)
}

func TestLoadPersistedSessionsReconnectsDirsWithAStoreFile(t *testing.T) {
	sm := newTestSessionManager(t)

	_, err := sm.CreateSession("persisted")
	require.NoError(t, err)
	sm.DisconnectAll()

	fresh := NewSessionManager(zap.NewNop().Sugar())
	fresh.dataDir = sm.dataDir

	require.NoError(t, fresh.LoadPersistedSessions())
	_, ok := fresh.GetSession("persisted")
	require.True(t, ok)
}

func TestLoadPersistedSessionsIgnoresEmptyDataDir(t *testing.T) {
	sm := newTestSessionManager(t)
	require.NoError(t, sm.LoadPersistedSessions())
	require.Empty(t, sm.GetAllSessions())
}
