package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"magicagent/internal/config"
	"magicagent/internal/logger"
	"magicagent/pkg/agenttypes"
)

// ErrSessionNotFound reports that a session id has neither a live runtime
// nor a persisted metadata record. A fresh id hitting this is the normal
// "no such session" case, not a failure.
var ErrSessionNotFound = errors.New("session not found")

// legacySessionID is a retired identifier. Requests for it get a freshly
// generated id instead, and leftover files under it are removed at startup.
const legacySessionID = "default"

// SessionInfo is one entry of a session listing.
type SessionInfo struct {
	SessionID string                     `json:"session_id"`
	Active    bool                       `json:"active"`
	Metadata  agenttypes.SessionMetadata `json:"metadata"`
}

// SessionManager multiplexes concurrently active agents keyed by session id,
// with at most one live agent per id. It owns the id-to-agent map; agents
// never reach into it.
type SessionManager struct {
	cfg      *config.Config
	registry *Registry
	backend  agenttypes.LLM

	sessionsDir string
	dataDir     string
	retention   time.Duration

	mu     sync.Mutex
	active map[string]agenttypes.Agent

	logger *log.Logger
}

// NewSessionManager creates a session manager and sweeps stale on-disk
// sessions: expired metadata (older than the retention window), orphaned
// state files, and anything left under the retired "default" id.
func NewSessionManager(cfg *config.Config, registry *Registry, backend agenttypes.LLM) (*SessionManager, error) {
	m := &SessionManager{
		cfg:         cfg,
		registry:    registry,
		backend:     backend,
		sessionsDir: cfg.Agent.SessionsDir,
		dataDir:     cfg.Agent.DataDir,
		retention:   cfg.Agent.SessionRetention,
		active:      make(map[string]agenttypes.Agent),
		logger:      logger.NewStyledLogger("Session"),
	}

	for _, dir := range []string{m.sessionsDir, m.dataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session dir %s: %w", dir, err)
		}
	}

	m.cleanupLegacySession()
	m.expirySweep()
	m.orphanSweep()

	return m, nil
}

// CreateSession creates a new session, generating an id when none is given.
// The retired "default" id is replaced by a generated one. If the id already
// has a live agent, that agent is returned; sessions are never silently
// overwritten.
func (m *SessionManager) CreateSession(ctx context.Context, agentType, sessionID string) (agenttypes.Agent, error) {
	if sessionID == legacySessionID {
		m.logger.Warn("session id 'default' is no longer supported, generating a new id")
		sessionID = ""
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	m.mu.Lock()
	if existing, ok := m.active[sessionID]; ok {
		m.mu.Unlock()
		m.logger.Warn("session already exists, returning existing agent", "session", sessionID)
		return existing, nil
	}
	m.mu.Unlock()

	if agentType == "" {
		agentType = m.cfg.Agent.Type
	}

	a, err := m.registry.Create(ctx, agentType, sessionID, m.cfg, m.backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create session %s: %w", sessionID, err)
	}

	m.mu.Lock()
	m.active[sessionID] = a
	m.mu.Unlock()

	now := time.Now()
	if !m.saveMetadata(sessionID, agenttypes.SessionMetadata{
		AgentType:  agentType,
		CreatedAt:  now,
		LastActive: now,
	}) {
		m.logger.Error("failed to record session metadata", "session", sessionID)
	}

	m.logger.Info("created session", "session", sessionID, "type", agentType)
	return a, nil
}

// GetSession returns the live agent for the id, restoring it from persisted
// metadata and state when it is not in memory. An unknown id yields
// ErrSessionNotFound.
func (m *SessionManager) GetSession(ctx context.Context, sessionID string) (agenttypes.Agent, error) {
	if sessionID == legacySessionID {
		m.logger.Warn("session id 'default' is no longer supported")
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	if a, ok := m.active[sessionID]; ok {
		m.mu.Unlock()
		return a, nil
	}
	m.mu.Unlock()

	meta, ok := m.loadMetadata(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	a, err := m.registry.Create(ctx, meta.AgentType, sessionID, m.cfg, m.backend)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", sessionID, err)
	}

	meta.LastActive = time.Now()
	if !m.saveMetadata(sessionID, meta) {
		m.logger.Error("failed to update session metadata", "session", sessionID)
	}

	m.mu.Lock()
	m.active[sessionID] = a
	m.mu.Unlock()

	m.logger.Info("restored session", "session", sessionID)
	return a, nil
}

// DeleteSession removes a session: it cleans up the live agent if loaded and
// deletes both the metadata file and the state file. Cleanup is best-effort;
// a failed step is logged and the remaining steps still run. The result is
// true only when the session is no longer resolvable afterwards.
func (m *SessionManager) DeleteSession(ctx context.Context, sessionID string) bool {
	m.mu.Lock()
	a, live := m.active[sessionID]
	delete(m.active, sessionID)
	m.mu.Unlock()

	if live {
		if err := a.Cleanup(ctx); err != nil {
			m.logger.Error("session cleanup failed", "session", sessionID, "error", err)
		}
	}

	ok := true
	if err := os.Remove(m.metadataFile(sessionID)); err != nil && !os.IsNotExist(err) {
		m.logger.Error("failed to delete session metadata", "session", sessionID, "error", err)
		ok = false
	}
	if err := os.Remove(StateFilePath(m.dataDir, sessionID)); err != nil && !os.IsNotExist(err) {
		m.logger.Error("failed to delete session state", "session", sessionID, "error", err)
		ok = false
	}

	if ok {
		m.logger.Info("deleted session", "session", sessionID)
	}
	return ok
}

// ListSessions returns metadata for every persisted session, flagging the
// ones currently live.
func (m *SessionManager) ListSessions() []SessionInfo {
	entries, err := os.ReadDir(m.sessionsDir)
	if err != nil {
		m.logger.Error("failed to list sessions", "dir", m.sessionsDir, "error", err)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var sessions []SessionInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		sessionID := strings.TrimSuffix(entry.Name(), ".json")
		meta, ok := m.loadMetadata(sessionID)
		if !ok {
			continue
		}
		_, live := m.active[sessionID]
		sessions = append(sessions, SessionInfo{
			SessionID: sessionID,
			Active:    live,
			Metadata:  meta,
		})
	}
	return sessions
}

// Cleanup shuts down every live session, clears the cache, and removes
// orphaned state files.
func (m *SessionManager) Cleanup(ctx context.Context) {
	m.mu.Lock()
	live := make(map[string]agenttypes.Agent, len(m.active))
	for id, a := range m.active {
		live[id] = a
	}
	m.active = make(map[string]agenttypes.Agent)
	m.mu.Unlock()

	for id, a := range live {
		if err := a.Cleanup(ctx); err != nil {
			m.logger.Error("session cleanup failed", "session", id, "error", err)
		}
	}

	m.orphanSweep()
	m.logger.Info("all sessions cleaned up")
}

// expirySweep deletes sessions whose last activity is older than the
// retention window, removing both the metadata and the paired state file.
func (m *SessionManager) expirySweep() {
	if m.retention <= 0 {
		return
	}

	cutoff := time.Now().Add(-m.retention)
	for _, info := range m.ListSessions() {
		if info.Metadata.LastActive.After(cutoff) {
			continue
		}
		m.logger.Info("expiring session", "session", info.SessionID,
			"last_active", info.Metadata.LastActive.Format(time.RFC3339))
		if err := os.Remove(m.metadataFile(info.SessionID)); err != nil && !os.IsNotExist(err) {
			m.logger.Error("failed to expire session metadata", "session", info.SessionID, "error", err)
		}
		if err := os.Remove(StateFilePath(m.dataDir, info.SessionID)); err != nil && !os.IsNotExist(err) {
			m.logger.Error("failed to expire session state", "session", info.SessionID, "error", err)
		}
	}
}

// orphanSweep deletes state files whose session id has no metadata record.
// Orphans are left behind when one of a session's two files is deleted and
// the other step failed.
func (m *SessionManager) orphanSweep() {
	entries, err := os.ReadDir(m.dataDir)
	if err != nil {
		m.logger.Error("failed to scan data dir", "dir", m.dataDir, "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_state.json") {
			continue
		}
		sessionID := strings.TrimSuffix(entry.Name(), "_state.json")
		if _, err := os.Stat(m.metadataFile(sessionID)); err == nil {
			continue
		}
		m.logger.Info("removing orphaned state file", "session", sessionID)
		if err := os.Remove(filepath.Join(m.dataDir, entry.Name())); err != nil {
			m.logger.Error("failed to remove orphaned state file", "file", entry.Name(), "error", err)
		}
	}
}

// cleanupLegacySession removes files left behind under the retired "default"
// session id.
func (m *SessionManager) cleanupLegacySession() {
	for _, path := range []string{
		m.metadataFile(legacySessionID),
		StateFilePath(m.dataDir, legacySessionID),
	} {
		if err := os.Remove(path); err == nil {
			m.logger.Info("removed legacy default session file", "file", path)
		} else if !os.IsNotExist(err) {
			m.logger.Error("failed to remove legacy session file", "file", path, "error", err)
		}
	}
}

func (m *SessionManager) metadataFile(sessionID string) string {
	return filepath.Join(m.sessionsDir, sessionID+".json")
}

func (m *SessionManager) saveMetadata(sessionID string, meta agenttypes.SessionMetadata) bool {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		m.logger.Error("failed to encode session metadata", "session", sessionID, "error", err)
		return false
	}
	if err := os.WriteFile(m.metadataFile(sessionID), data, 0o644); err != nil {
		m.logger.Error("failed to write session metadata", "session", sessionID, "error", err)
		return false
	}
	return true
}

func (m *SessionManager) loadMetadata(sessionID string) (agenttypes.SessionMetadata, bool) {
	data, err := os.ReadFile(m.metadataFile(sessionID))
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Error("failed to read session metadata", "session", sessionID, "error", err)
		}
		return agenttypes.SessionMetadata{}, false
	}

	var meta agenttypes.SessionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		m.logger.Error("failed to decode session metadata", "session", sessionID, "error", err)
		return agenttypes.SessionMetadata{}, false
	}
	return meta, true
}
