package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/hmcts/document-viewer/internal/domain"
)

// Session is one viewer of one document: the notes engine plus the dirty flag of its editing surface.
type Session struct {
	ID    string
	Notes *Notes
	Edit  *EditState

	persistMutex sync.Mutex
}

// Sessions keeps the live sessions of the process and persists their snapshots at the storage.
//
// A live session is always preferred over the stored snapshot, so requests of one session need to reach the same
// replica while it is alive there.
type Sessions struct {
	Storage        sessionStorage
	Gateway        notesGateway
	Logger         zerolog.Logger
	SerializeSaves bool
	CacheSize      int

	live *lru.Cache[string, *Session]
}

// Init the internal state.
func (s *Sessions) Init() error {
	if s.Storage == nil {
		return errors.New("internal/service/Sessions.Storage can't be nil")
	}
	if s.Gateway == nil {
		return errors.New("internal/service/Sessions.Gateway can't be nil")
	}
	if s.CacheSize <= 0 {
		return errors.New("internal/service/Sessions.CacheSize must be bigger than zero")
	}
	live, err := lru.New[string, *Session](s.CacheSize)
	if err != nil {
		return fmt.Errorf("fail to create the session cache: %w", err)
	}
	s.live = live
	return nil
}

// NewID generates a session id.
func (*Sessions) NewID() string {
	return uuid.New().String()
}

// Open returns the session of the document. A session that is neither live nor stored is created and starts loading
// its notes; the channel delivers the outcome of the load. For the other sessions the channel is already closed.
func (s *Sessions) Open(ctx context.Context, id, documentURL string) (*Session, <-chan error, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, newClientError(fmt.Errorf("invalid session id: %w", err))
	}
	key := s.key(id, documentURL)
	if entry, ok := s.live.Get(key); ok {
		return entry, closedResult(), nil
	}

	notes := &Notes{
		DocumentURL:    documentURL,
		Gateway:        s.Gateway,
		Logger:         s.Logger,
		SerializeSaves: s.SerializeSaves,
	}
	if err := notes.Init(); err != nil {
		return nil, nil, fmt.Errorf("fail to initialize the notes: %w", err)
	}
	entry := &Session{ID: id, Notes: notes, Edit: &EditState{}}

	snapshot, found, err := s.fetch(ctx, key)
	if err != nil {
		s.Logger.Error().Err(err).Str("sessionID", id).Msg("Fail to restore the session, starting a new one")
	}

	var result <-chan error
	if found {
		notes.Restore(snapshot)
		if snapshot.Dirty {
			entry.Edit.MarkDirty()
		}
		result = closedResult()
	} else {
		result = notes.Attach(context.WithoutCancel(ctx))
	}

	if previous, ok, _ := s.live.PeekOrAdd(key, entry); ok {
		return previous, closedResult(), nil
	}
	return entry, result, nil
}

// Persist stores the snapshot of the session. Calls for the same session are serialized, so a snapshot never
// overwrites a newer one.
func (s *Sessions) Persist(ctx context.Context, entry *Session) error {
	entry.persistMutex.Lock()
	defer entry.persistMutex.Unlock()

	snapshot := entry.Notes.Snapshot()
	snapshot.Dirty = entry.Edit.Dirty()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("fail to marshal the session: %w", err)
	}
	if err := s.Storage.Put(ctx, s.key(entry.ID, snapshot.DocumentURL), bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("fail to store the session: %w", err)
	}
	return nil
}

// Close drops the session from the process and from the storage.
func (s *Sessions) Close(ctx context.Context, id, documentURL string) error {
	if _, err := uuid.Parse(id); err != nil {
		return newClientError(fmt.Errorf("invalid session id: %w", err))
	}
	key := s.key(id, documentURL)
	s.live.Remove(key)
	if err := s.Storage.Delete(ctx, key); err != nil {
		return fmt.Errorf("fail to delete the session: %w", err)
	}
	return nil
}

func (s *Sessions) fetch(ctx context.Context, key string) (domain.NotesSnapshot, bool, error) {
	reader, err := s.Storage.Get(ctx, key)
	if err != nil {
		return domain.NotesSnapshot{}, false, err
	}
	if reader == nil {
		return domain.NotesSnapshot{}, false, nil
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return domain.NotesSnapshot{}, false, fmt.Errorf("fail to read the session: %w", err)
	}

	var snapshot domain.NotesSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return domain.NotesSnapshot{}, false, fmt.Errorf("fail to unmarshal the session: %w", err)
	}
	return snapshot, true, nil
}

func (*Sessions) key(id, documentURL string) string {
	return id + ":" + documentURL
}

func closedResult() <-chan error {
	result := make(chan error)
	close(result)
	return result
}
