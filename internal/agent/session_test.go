package agent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magicagent/internal/config"
	"magicagent/internal/llm"
	"magicagent/internal/testutils"
	"magicagent/pkg/agenttypes"
)

func newTestManager(t *testing.T, cfg *config.Config) *SessionManager {
	t.Helper()
	r := NewRegistry()
	RegisterDefault(r)
	m, err := NewSessionManager(cfg, r, llm.NewMockClient())
	require.NoError(t, err)
	return m
}

func TestSessionManager_CreateGeneratesID(t *testing.T) {
	m := newTestManager(t, testutils.NewTestConfig(t))

	a, err := m.CreateSession(context.Background(), "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID())

	// Metadata is recorded on disk for the new session.
	sessions := m.ListSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, a.ID(), sessions[0].SessionID)
	assert.True(t, sessions[0].Active)
	assert.Equal(t, AgentTypeDefault, sessions[0].Metadata.AgentType)
}

func TestSessionManager_DefaultIDReplaced(t *testing.T) {
	m := newTestManager(t, testutils.NewTestConfig(t))

	a, err := m.CreateSession(context.Background(), "", "default")
	require.NoError(t, err)
	assert.NotEqual(t, "default", a.ID())

	_, err = m.GetSession(context.Background(), "default")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_CreateExistingReturnsLiveAgent(t *testing.T) {
	m := newTestManager(t, testutils.NewTestConfig(t))
	sessionID := testutils.DeterministicID()

	a, err := m.CreateSession(context.Background(), "", sessionID)
	require.NoError(t, err)
	b, err := m.CreateSession(context.Background(), "", sessionID)
	require.NoError(t, err)
	assert.Same(t, a.(*DefaultAgent), b.(*DefaultAgent))
}

func TestSessionManager_GetUnknownSession(t *testing.T) {
	m := newTestManager(t, testutils.NewTestConfig(t))

	_, err := m.GetSession(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_RestoreAcrossRestart(t *testing.T) {
	cfg := testutils.NewTestConfig(t)
	sessionID := testutils.DeterministicID()

	m1 := newTestManager(t, cfg)
	a, err := m1.CreateSession(context.Background(), "", sessionID)
	require.NoError(t, err)
	_, err = a.Process(context.Background(), "hello")
	require.NoError(t, err)
	m1.Cleanup(context.Background())

	// A fresh manager over the same directories restores the session.
	m2 := newTestManager(t, cfg)
	restored, err := m2.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, restored.ID())
	assert.NotSame(t, a.(*DefaultAgent), restored.(*DefaultAgent))
}

func TestSessionManager_GetUpdatesLastActive(t *testing.T) {
	cfg := testutils.NewTestConfig(t)
	m := newTestManager(t, cfg)

	_, err := m.CreateSession(context.Background(), "", "touched")
	require.NoError(t, err)

	// Backdate the metadata, then restore through a fresh manager.
	stale := agenttypes.SessionMetadata{
		AgentType:  AgentTypeDefault,
		CreatedAt:  time.Now().Add(-48 * time.Hour),
		LastActive: time.Now().Add(-48 * time.Hour),
	}
	require.True(t, m.saveMetadata("touched", stale))

	m2 := newTestManager(t, cfg)
	_, err = m2.GetSession(context.Background(), "touched")
	require.NoError(t, err)

	meta, ok := m2.loadMetadata("touched")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), meta.LastActive, time.Minute)
}

func TestSessionManager_DeleteSession(t *testing.T) {
	cfg := testutils.NewTestConfig(t)
	m := newTestManager(t, cfg)

	a, err := m.CreateSession(context.Background(), "", "doomed")
	require.NoError(t, err)
	_, err = a.Process(context.Background(), "hello")
	require.NoError(t, err)

	assert.True(t, m.DeleteSession(context.Background(), "doomed"))

	_, err = m.GetSession(context.Background(), "doomed")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, statErr := os.Stat(StateFilePath(cfg.Agent.DataDir, "doomed"))
	assert.True(t, os.IsNotExist(statErr))

	// Deleting again still succeeds: both files are already gone.
	assert.True(t, m.DeleteSession(context.Background(), "doomed"))
}

func TestSessionManager_ExpirySweep(t *testing.T) {
	cfg := testutils.NewTestConfig(t)
	cfg.Agent.SessionRetention = 24 * time.Hour
	m := newTestManager(t, cfg)

	_, err := m.CreateSession(context.Background(), "", "expired")
	require.NoError(t, err)
	_, err = m.CreateSession(context.Background(), "", "fresh")
	require.NoError(t, err)
	m.Cleanup(context.Background())

	old := agenttypes.SessionMetadata{
		AgentType:  AgentTypeDefault,
		CreatedAt:  time.Now().Add(-72 * time.Hour),
		LastActive: time.Now().Add(-72 * time.Hour),
	}
	require.True(t, m.saveMetadata("expired", old))

	// Construction runs the sweep.
	m2 := newTestManager(t, cfg)

	_, err = m2.GetSession(context.Background(), "expired")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m2.GetSession(context.Background(), "fresh")
	assert.NoError(t, err)
}

func TestSessionManager_OrphanSweep(t *testing.T) {
	cfg := testutils.NewTestConfig(t)
	m := newTestManager(t, cfg)
	_ = m

	// A state file with no metadata record is an orphan.
	orphan := StateFilePath(cfg.Agent.DataDir, "ghost")
	state, err := json.Marshal(agenttypes.NewAgentState(5))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(orphan, state, 0o644))

	m2 := newTestManager(t, cfg)
	_ = m2

	_, statErr := os.Stat(orphan)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSessionManager_LegacyFilesRemovedAtStartup(t *testing.T) {
	cfg := testutils.NewTestConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Agent.SessionsDir, 0o755))
	require.NoError(t, os.MkdirAll(cfg.Agent.DataDir, 0o755))

	legacyMeta := filepath.Join(cfg.Agent.SessionsDir, "default.json")
	require.NoError(t, os.WriteFile(legacyMeta, []byte("{}"), 0o644))
	legacyState := StateFilePath(cfg.Agent.DataDir, "default")
	require.NoError(t, os.WriteFile(legacyState, []byte("{}"), 0o644))

	newTestManager(t, cfg)

	_, err := os.Stat(legacyMeta)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(legacyState)
	assert.True(t, os.IsNotExist(err))
}

func TestSessionManager_CleanupStopsLiveAgents(t *testing.T) {
	cfg := testutils.NewTestConfig(t)
	m := newTestManager(t, cfg)

	a, err := m.CreateSession(context.Background(), "", "live")
	require.NoError(t, err)

	m.Cleanup(context.Background())
	assert.Equal(t, "STOPPED", a.Status())

	// The session is no longer live but still restorable from disk.
	sessions := m.ListSessions()
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].Active)
}
