package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/papercomputeco/streampump/pkg/llm"
)

const (
	conversationFile = "conversation.json"
)

// ConversationState is the persisted history of a chat client session.
type ConversationState struct {
	// Dialect and Model identify the upstream the conversation was held with.
	Dialect string `json:"dialect"`
	Model   string `json:"model"`

	// Messages is the conversation history in chronological order.
	Messages []llm.Message `json:"messages"`
}

// LoadConversation loads the conversation from a target .streampump/conversation.json.
// Returns nil, nil if no conversation exists (new conversation).
func (m *Manager) LoadConversation(overrideDir string) (*ConversationState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, conversationFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading conversation: %w", err)
	}

	state := &ConversationState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing conversation: %w", err)
	}

	return state, nil
}

// SaveConversation persists the conversation to a target .streampump/conversation.json.
func (m *Manager) SaveConversation(state *ConversationState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil conversation")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling conversation: %w", err)
	}

	path := filepath.Join(dir, conversationFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing conversation: %w", err)
	}

	return nil
}

// ClearConversation removes the conversation file so that the next chat
// session starts fresh. Returns nil if the file doesn't exist.
func (m *Manager) ClearConversation(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, conversationFile)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing conversation: %w", err)
	}

	return nil
}
