// Package store persists recording sessions through a key-value backend.
// All session state lives in one JSON document under a fixed key; every
// mutation is a whole-document read-modify-write. Callers get
// atomic-by-replacement semantics but no isolation: two concurrent writers
// race and the later write wins. That gap is deliberate — see the ordering
// notes on the recorder.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stepcap/stepcap/internal/protocol"
)

// dataKey is the fixed key the whole session document is stored under.
const dataKey = "stepcap:data"

// Store provides CRUD over sessions, the current-session pointer, and
// settings.
type Store struct {
	kv KV
}

// New wraps a KV backend in a Store.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// GetData loads the full document, returning a default document (no
// sessions, default settings) when none has been stored yet.
func (s *Store) GetData(ctx context.Context) (*protocol.Document, error) {
	raw, ok, err := s.kv.Get(ctx, dataKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load session data: %w", err)
	}
	if !ok {
		return &protocol.Document{Settings: protocol.DefaultSettings()}, nil
	}
	var doc protocol.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode session data: %w", err)
	}
	return &doc, nil
}

// SaveData replaces the full document.
func (s *Store) SaveData(ctx context.Context, doc *protocol.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}
	if err := s.kv.Set(ctx, dataKey, raw); err != nil {
		return fmt.Errorf("failed to save session data: %w", err)
	}
	return nil
}

// GetSessions returns all stored sessions.
func (s *Store) GetSessions(ctx context.Context) ([]protocol.Session, error) {
	doc, err := s.GetData(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Sessions, nil
}

// GetSession returns the session with the given id, or nil when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*protocol.Session, error) {
	doc, err := s.GetData(ctx)
	if err != nil {
		return nil, err
	}
	for i := range doc.Sessions {
		if doc.Sessions[i].ID == id {
			return &doc.Sessions[i], nil
		}
	}
	return nil, nil
}

// GetCurrentSession dereferences the current-session pointer. Returns nil
// when the pointer is unset or dangling.
func (s *Store) GetCurrentSession(ctx context.Context) (*protocol.Session, error) {
	doc, err := s.GetData(ctx)
	if err != nil {
		return nil, err
	}
	if doc.CurrentSession == "" {
		return nil, nil
	}
	for i := range doc.Sessions {
		if doc.Sessions[i].ID == doc.CurrentSession {
			return &doc.Sessions[i], nil
		}
	}
	return nil, nil
}

// SaveSession upserts a session by id: replaces the stored session when the
// id exists, appends otherwise.
func (s *Store) SaveSession(ctx context.Context, sess protocol.Session) error {
	doc, err := s.GetData(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range doc.Sessions {
		if doc.Sessions[i].ID == sess.ID {
			doc.Sessions[i] = sess
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Sessions = append(doc.Sessions, sess)
	}
	return s.SaveData(ctx, doc)
}

// SetCurrentSession points the current-session pointer at id.
func (s *Store) SetCurrentSession(ctx context.Context, id string) error {
	doc, err := s.GetData(ctx)
	if err != nil {
		return err
	}
	doc.CurrentSession = id
	return s.SaveData(ctx, doc)
}

// ClearCurrentSession unsets the current-session pointer.
func (s *Store) ClearCurrentSession(ctx context.Context) error {
	return s.SetCurrentSession(ctx, "")
}

// DeleteSession removes one session by id. If the current-session pointer
// referenced it, the pointer is cleared in the same write.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	doc, err := s.GetData(ctx)
	if err != nil {
		return err
	}
	kept := doc.Sessions[:0]
	for _, sess := range doc.Sessions {
		if sess.ID != id {
			kept = append(kept, sess)
		}
	}
	doc.Sessions = kept
	if doc.CurrentSession == id {
		doc.CurrentSession = ""
	}
	return s.SaveData(ctx, doc)
}

// DeleteAllSessions removes every session and clears the pointer. Settings
// survive.
func (s *Store) DeleteAllSessions(ctx context.Context) error {
	doc, err := s.GetData(ctx)
	if err != nil {
		return err
	}
	doc.Sessions = nil
	doc.CurrentSession = ""
	return s.SaveData(ctx, doc)
}

// GetSettings returns the stored settings (defaults when nothing stored).
func (s *Store) GetSettings(ctx context.Context) (protocol.Settings, error) {
	doc, err := s.GetData(ctx)
	if err != nil {
		return protocol.Settings{}, err
	}
	return doc.Settings, nil
}

// SaveSettings replaces the stored settings.
func (s *Store) SaveSettings(ctx context.Context, settings protocol.Settings) error {
	doc, err := s.GetData(ctx)
	if err != nil {
		return err
	}
	doc.Settings = settings
	return s.SaveData(ctx, doc)
}
