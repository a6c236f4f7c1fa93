package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/cellsense/internal/conversation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Manager keeps live workspaces keyed by session ID.
type Manager struct {
	asker conversation.Asker
	log   zerolog.Logger

	mu         sync.RWMutex
	workspaces map[string]*Workspace
}

// NewManager creates a manager whose workspaces ask questions through asker.
func NewManager(asker conversation.Asker, log zerolog.Logger) *Manager {
	return &Manager{
		asker:      asker,
		log:        log,
		workspaces: make(map[string]*Workspace),
	}
}

// Create starts a new empty workspace.
func (m *Manager) Create() *Workspace {
	w := NewWorkspace(uuid.New().String(), m.asker, m.log)

	m.mu.Lock()
	m.workspaces[w.ID()] = w
	m.mu.Unlock()

	m.log.Info().Str("session_id", w.ID()).Msg("Session created")
	return w
}

// Get returns the workspace with the given ID.
func (m *Manager) Get(id string) (*Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("Get %s: %w", id, ErrSessionNotFound)
	}
	return w, nil
}

// Delete resets and forgets a workspace.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	w, ok := m.workspaces[id]
	delete(m.workspaces, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("Delete %s: %w", id, ErrSessionNotFound)
	}
	w.Reset()
	return nil
}

// IDs returns the live session IDs in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.workspaces))
	for id := range m.workspaces {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
