// Package storage persists conversation state and the tool-call audit
// log. Conversations live in a single schema-versioned JSON document;
// writes are debounced so streaming turns don't hammer the disk.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pfagent/model"
)

const (
	documentVersion = 2
	persistDelay    = 400 * time.Millisecond
)

type document struct {
	Version       int                  `json:"version"`
	ActiveID      string               `json:"activeId,omitempty"`
	Conversations []model.Conversation `json:"conversations"`
}

// legacyDocument is the pre-versioned single-conversation layout.
type legacyDocument struct {
	Conversation []model.Message    `json:"conversation"`
	PendingPlan  *model.PendingPlan `json:"pendingPlan"`
}

// ConversationStore manages the conversation document. All methods are
// safe for concurrent use; persistence happens on a 400ms quiet-period
// debounce with Flush forcing an immediate write.
type ConversationStore struct {
	mu          sync.Mutex
	path        string
	doc         document
	memoryLimit int
	timer       *time.Timer
}

// NewConversationStore loads (or migrates, or initializes) the
// conversation document at path. memoryLimit bounds the context window
// handed to providers; 0 disables history entirely.
func NewConversationStore(path string, memoryLimit int) (*ConversationStore, error) {
	if memoryLimit < 0 {
		memoryLimit = 0
	}
	store := &ConversationStore{path: path, memoryLimit: memoryLimit}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		store.doc = document{Version: documentVersion}
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation store: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err == nil && doc.Version > 0 {
		store.doc = doc
		return store, nil
	}

	// Pre-versioned layout: one anonymous conversation at the top level.
	var legacy legacyDocument
	if err := json.Unmarshal(data, &legacy); err == nil && (len(legacy.Conversation) > 0 || legacy.PendingPlan != nil) {
		migrated := newConversation()
		migrated.Messages = legacy.Conversation
		migrated.PendingPlan = legacy.PendingPlan
		migrated.Title = deriveTitle(legacy.Conversation)
		store.doc = document{
			Version:       documentVersion,
			ActiveID:      migrated.ID,
			Conversations: []model.Conversation{migrated},
		}
		return store, nil
	}

	// Unreadable document: start fresh rather than refuse to run.
	store.doc = document{Version: documentVersion}
	return store, nil
}

func newConversation() model.Conversation {
	now := time.Now()
	return model.Conversation{
		ID:        uuid.New().String(),
		Title:     "New conversation",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func deriveTitle(messages []model.Message) string {
	for _, msg := range messages {
		if msg.Role == model.RoleUser && strings.TrimSpace(msg.Content) != "" {
			return titleFrom(msg.Content)
		}
	}
	return "New conversation"
}

// titleFrom derives a display title from the first user message: first
// 30 characters, newlines flattened.
func titleFrom(firstMessage string) string {
	name := firstMessage
	if len(name) > 30 {
		name = name[:30] + "..."
	}
	name = strings.ReplaceAll(name, "\n", " ")
	name = strings.ReplaceAll(name, "\r", " ")
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Sprintf("Conversation %s", time.Now().Format("Jan 2, 3:04 PM"))
	}
	return name
}

// activeLocked returns the active conversation, creating one lazily.
func (s *ConversationStore) activeLocked() *model.Conversation {
	for i := range s.doc.Conversations {
		if s.doc.Conversations[i].ID == s.doc.ActiveID {
			return &s.doc.Conversations[i]
		}
	}
	conv := newConversation()
	s.doc.Conversations = append(s.doc.Conversations, conv)
	s.doc.ActiveID = conv.ID
	return &s.doc.Conversations[len(s.doc.Conversations)-1]
}

// Active returns a copy of the active conversation.
func (s *ConversationStore) Active() model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.activeLocked()
}

// List returns all conversations, most recently updated first.
func (s *ConversationStore) List() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Conversation, len(s.doc.Conversations))
	copy(out, s.doc.Conversations)
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Create starts a new conversation and makes it active.
func (s *ConversationStore) Create() model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := newConversation()
	s.doc.Conversations = append(s.doc.Conversations, conv)
	s.doc.ActiveID = conv.ID
	s.scheduleLocked()
	return conv
}

// Switch makes the identified conversation active.
func (s *ConversationStore) Switch(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Conversations {
		if s.doc.Conversations[i].ID == id {
			s.doc.ActiveID = id
			s.scheduleLocked()
			return nil
		}
	}
	return fmt.Errorf("conversation not found: %s", id)
}

// Rename retitles the active conversation.
func (s *ConversationStore) Rename(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.activeLocked()
	conv.Title = strings.TrimSpace(title)
	conv.UpdatedAt = time.Now()
	s.scheduleLocked()
}

// Remove deletes a conversation. When the active one is removed the
// most recently updated survivor becomes active.
func (s *ConversationStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i := range s.doc.Conversations {
		if s.doc.Conversations[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	s.doc.Conversations = append(s.doc.Conversations[:idx], s.doc.Conversations[idx+1:]...)
	if s.doc.ActiveID == id {
		s.doc.ActiveID = ""
		var latest *model.Conversation
		for i := range s.doc.Conversations {
			if latest == nil || s.doc.Conversations[i].UpdatedAt.After(latest.UpdatedAt) {
				latest = &s.doc.Conversations[i]
			}
		}
		if latest != nil {
			s.doc.ActiveID = latest.ID
		}
	}
	s.scheduleLocked()
	return nil
}

// Clear empties the active conversation's transcript and plan.
func (s *ConversationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.activeLocked()
	conv.Messages = nil
	conv.PendingPlan = nil
	conv.Title = "New conversation"
	conv.UpdatedAt = time.Now()
	s.scheduleLocked()
}

// Append adds a message to the active conversation. The first user
// message names an untitled conversation.
func (s *ConversationStore) Append(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.activeLocked()
	if msg.Role == model.RoleUser && conv.Title == "New conversation" {
		conv.Title = titleFrom(msg.Content)
	}
	conv.Messages = append(conv.Messages, model.Message{
		Role:       msg.Role,
		Content:    msg.Content,
		Name:       msg.Name,
		ToolCallID: msg.ToolCallID,
	})
	conv.UpdatedAt = time.Now()
	s.scheduleLocked()
}

// Window returns the trailing memoryLimit messages of the active
// conversation. A zero limit means no history is carried.
func (s *ConversationStore) Window() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memoryLimit == 0 {
		return nil
	}
	conv := s.activeLocked()
	msgs := conv.Messages
	if len(msgs) > s.memoryLimit {
		msgs = msgs[len(msgs)-s.memoryLimit:]
	}
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}

// PendingPlan returns the active conversation's pending plan, nil when
// none is staged.
func (s *ConversationStore) PendingPlan() *model.PendingPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.activeLocked()
	if conv.PendingPlan == nil {
		return nil
	}
	plan := *conv.PendingPlan
	return &plan
}

// SetPendingPlan stages or clears the active conversation's plan.
func (s *ConversationStore) SetPendingPlan(plan *model.PendingPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.activeLocked()
	if plan == nil {
		conv.PendingPlan = nil
	} else {
		copied := *plan
		conv.PendingPlan = &copied
	}
	conv.UpdatedAt = time.Now()
	s.scheduleLocked()
}

func (s *ConversationStore) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(persistDelay, func() {
		// Errors here have no caller to report to; the next Flush retries.
		_ = s.Flush()
	})
}

// Flush writes the document immediately, cancelling any pending
// debounced write.
func (s *ConversationStore) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal conversation store: %w", err)
	}
	// Conversation history is sensitive; keep it user-only.
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write conversation store: %w", err)
	}
	return nil
}
