// Package agent implements the agent runtime: conversation state, lifecycle
// management, durable persistence, and session multiplexing.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"magicagent/internal/logger"
	"magicagent/pkg/agenttypes"
)

// saveTimeout bounds how long a state write may take. A save that exceeds it
// is treated as failed; the previous state file is left intact.
const saveTimeout = 3 * time.Second

// persistedState is the on-disk form of AgentState: the state fields plus a
// save timestamp that is stripped on load.
type persistedState struct {
	agenttypes.AgentState
	SavedAt string `json:"_saved_at"`
}

// StatePersistence durably saves and restores one agent's state to a
// per-agent JSON file. It holds no state of its own beyond the target path.
type StatePersistence struct {
	agentID string
	dataDir string
	logger  *log.Logger
}

// NewStatePersistence creates a persistence handle for the given agent,
// ensuring the data directory exists.
func NewStatePersistence(agentID, dataDir string) (*StatePersistence, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", dataDir, err)
	}
	return &StatePersistence{
		agentID: agentID,
		dataDir: dataDir,
		logger:  logger.NewStyledLogger("Persistence"),
	}, nil
}

// StateFile returns the path of the agent's state file.
func (p *StatePersistence) StateFile() string {
	return StateFilePath(p.dataDir, p.agentID)
}

// StateFilePath returns the state file path for an agent id under dataDir.
func StateFilePath(dataDir, agentID string) string {
	return filepath.Join(dataDir, agentID+"_state.json")
}

// SaveState writes the state to disk, attaching a save timestamp. The write
// goes to a temporary file that is renamed into place, so a timeout or crash
// never corrupts the previous good file. Failures are logged and reported as
// false; they do not propagate.
func (p *StatePersistence) SaveState(ctx context.Context, state *agenttypes.AgentState) bool {
	data, err := json.MarshalIndent(persistedState{
		AgentState: *state,
		SavedAt:    time.Now().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		p.logger.Error("failed to encode state", "agent", p.agentID, "error", err)
		return false
	}

	done := make(chan error, 1)
	go func() {
		done <- p.writeFile(data)
	}()

	select {
	case err := <-done:
		if err != nil {
			p.logger.Error("failed to write state file", "file", p.StateFile(), "error", err)
			return false
		}
		p.logger.Debug("state saved", "file", p.StateFile())
		return true
	case <-time.After(saveTimeout):
		p.logger.Error("state save timed out", "file", p.StateFile(), "timeout", saveTimeout)
		return false
	case <-ctx.Done():
		p.logger.Error("state save cancelled", "file", p.StateFile(), "error", ctx.Err())
		return false
	}
}

func (p *StatePersistence) writeFile(data []byte) error {
	tmp, err := os.CreateTemp(p.dataDir, "."+p.agentID+"-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p.StateFile()); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// LoadState reads the agent's state from disk. A missing file is the normal
// first-run case and returns (nil, false) without logging an error. Decode
// failures are logged and also reported as (nil, false).
func (p *StatePersistence) LoadState() (*agenttypes.AgentState, bool) {
	data, err := os.ReadFile(p.StateFile())
	if err != nil {
		if os.IsNotExist(err) {
			p.logger.Debug("no state file", "file", p.StateFile())
			return nil, false
		}
		p.logger.Error("failed to read state file", "file", p.StateFile(), "error", err)
		return nil, false
	}

	var stored persistedState
	if err := json.Unmarshal(data, &stored); err != nil {
		p.logger.Error("failed to decode state file", "file", p.StateFile(), "error", err)
		return nil, false
	}

	// SavedAt stays on the persisted form only.
	state := stored.AgentState
	if state.Metadata == nil {
		state.Metadata = make(map[string]any)
	}
	p.logger.Debug("state loaded", "file", p.StateFile())
	return &state, true
}

// DeleteState removes the agent's state file. Absence counts as success.
func (p *StatePersistence) DeleteState() bool {
	err := os.Remove(p.StateFile())
	if err != nil && !os.IsNotExist(err) {
		p.logger.Error("failed to delete state file", "file", p.StateFile(), "error", err)
		return false
	}
	return true
}
