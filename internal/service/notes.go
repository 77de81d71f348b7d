package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hmcts/document-viewer/internal/domain"
)

// ErrSaveInFlight is returned by Notes.Save, when SerializeSaves is on, while the page has a save in flight. It is a
// ErrConflict.
var ErrSaveInFlight = newConflictError(errors.New("a save is already in flight for the page"))

type saveState interface {
	Revision() uint64
	MarkPristine(uint64) bool
}

type notesGateway interface {
	FetchAnnotationSets(context.Context, string) ([]domain.AnnotationSet, error)
	CreateAnnotationSet(context.Context, string) (domain.AnnotationSet, error)
	SaveNote(context.Context, string, domain.Note) (domain.Note, error)
}

// Notes keeps the page notes of a document in sync with the annotation service.
//
// The collection is sparse and indexed by page. Reading a page that has no note materializes a blank one, so
// navigation never fails. Navigation and writes to the current note happen under the lock, in call order. Loading and
// saving run on their own goroutines and never block navigation.
//
// Overlapping saves of the same page are not serialized unless SerializeSaves is set. Without it, two saves issued
// back to back can reach the annotation service out of order, and two saves of a note that was never persisted can
// both create a remote annotation.
type Notes struct {
	DocumentURL    string
	Gateway        notesGateway
	Logger         zerolog.Logger
	SerializeSaves bool

	mutex    sync.Mutex
	page     int
	current  domain.Note
	notes    map[int]domain.Note
	addLink  string
	loaded   bool
	inFlight map[int]struct{}
}

// Init the internal state. The cursor starts at the first page.
func (n *Notes) Init() error {
	if n.DocumentURL == "" {
		return errors.New("internal/service/Notes.DocumentURL can't be empty")
	}
	if n.Gateway == nil {
		return errors.New("internal/service/Notes.Gateway can't be nil")
	}
	n.notes = make(map[int]domain.Note)
	n.inFlight = make(map[int]struct{})
	n.setPage(1)
	return nil
}

// Attach loads the annotation sets of the document in the background. A failure is logged and leaves the collection
// as it was; the error is still delivered at the channel so the caller can observe it.
func (n *Notes) Attach(ctx context.Context) <-chan error {
	result := make(chan error, 1)
	go func() {
		defer close(result)
		sets, err := n.Gateway.FetchAnnotationSets(ctx, n.DocumentURL)
		if err != nil {
			n.Logger.Error().Err(err).Str("documentURL", n.DocumentURL).Msg("Fail to load the notes")
			result <- fmt.Errorf("fail to load the notes: %w", err)
			return
		}
		n.load(sets)
		result <- nil
	}()
	return result
}

// load replaces the collection with the page notes from the sets. Drafts written before the load finished are kept:
// a draft for a page that already has a remote note takes over its content and keeps the remote identity. When a page
// has more than one page note the first one wins.
func (n *Notes) load(sets []domain.AnnotationSet) {
	notes := make(map[int]domain.Note)
	for _, note := range domain.ProjectNotes(sets) {
		if _, ok := notes[note.Page]; ok {
			n.Logger.Debug().Str("documentURL", n.DocumentURL).Int("page", note.Page).Msg("Duplicated page note ignored")
			continue
		}
		notes[note.Page] = note
	}

	var addLink string
	for _, set := range sets {
		if set.Links.AddAnnotation.Href != "" {
			addLink = set.Links.AddAnnotation.Href
			break
		}
	}

	n.mutex.Lock()
	defer n.mutex.Unlock()
	for page, draft := range n.notes {
		if draft.Empty() || draft.Persisted() {
			continue
		}
		if remote, ok := notes[page]; ok {
			remote.Content = draft.Content
			draft = remote
		}
		notes[page] = draft
	}
	n.notes = notes
	if addLink != "" {
		n.addLink = addLink
	}
	n.loaded = true
	n.setPage(n.page)
}

// Loaded reports if the annotation sets were loaded at least once.
func (n *Notes) Loaded() bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.loaded
}

// Page returns the current page.
func (n *Notes) Page() int {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.page
}

// SetPage moves the cursor and returns the note of the page, materializing a blank one when the page has none.
func (n *Notes) SetPage(page int) domain.Note {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.setPage(page)
	return n.current
}

func (n *Notes) setPage(page int) {
	n.page = page
	note, ok := n.notes[page]
	if !ok {
		note = domain.NewNote(page)
		n.notes[page] = note
	}
	n.current = note
}

// CurrentNote returns the note of the current page.
func (n *Notes) CurrentNote() domain.Note {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.current
}

// SetCurrentNote replaces the note at the current page. A note without page is stamped with the current one.
func (n *Notes) SetCurrentNote(note domain.Note) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if note.Page <= 0 {
		note.Page = n.page
	}
	n.current = note
	n.notes[n.page] = note
}

// SetContent changes the content of the current note, keeping its remote identity.
func (n *Notes) SetContent(content string) domain.Note {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.current.Content = content
	n.notes[n.page] = n.current
	return n.current
}

// Notes returns the materialized notes sorted by page.
func (n *Notes) Notes() []domain.Note {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.sortedNotes()
}

func (n *Notes) sortedNotes() []domain.Note {
	result := make([]domain.Note, 0, len(n.notes))
	for _, note := range n.notes {
		result = append(result, note)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Page < result[j].Page })
	return result
}

// Len is the quantity of materialized notes, blank ones included.
func (n *Notes) Len() int {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return len(n.notes)
}

// Save submits the current note in the background. On success the edit state goes back to pristine, unless it was
// edited again while the save was in flight. On failure the error is logged and the edit state is left dirty. The
// outcome is delivered at the channel.
func (n *Notes) Save(ctx context.Context, state saveState) <-chan error {
	result := make(chan error, 1)

	// The revision is read before the note is captured, so an edit racing with the capture keeps the state dirty.
	var revision uint64
	if state != nil {
		revision = state.Revision()
	}

	n.mutex.Lock()
	note, page, addLink := n.current, n.page, n.addLink
	if n.SerializeSaves {
		if _, ok := n.inFlight[page]; ok {
			n.mutex.Unlock()
			result <- ErrSaveInFlight
			close(result)
			return result
		}
	}
	n.inFlight[page] = struct{}{}
	n.mutex.Unlock()

	go func() {
		defer close(result)
		defer func() {
			n.mutex.Lock()
			delete(n.inFlight, page)
			n.mutex.Unlock()
		}()

		err := n.save(ctx, page, note, addLink)
		if err != nil {
			n.Logger.Error().Err(err).Str("documentURL", n.DocumentURL).Int("page", page).Msg("Fail to save the note")
			result <- err
			return
		}
		if state != nil {
			state.MarkPristine(revision)
		}
		result <- nil
	}()
	return result
}

func (n *Notes) save(ctx context.Context, page int, note domain.Note, addLink string) error {
	if !note.Persisted() && addLink == "" {
		set, err := n.Gateway.CreateAnnotationSet(ctx, n.DocumentURL)
		if err != nil {
			return fmt.Errorf("fail to create the annotation set: %w", err)
		}
		addLink = set.Links.AddAnnotation.Href

		n.mutex.Lock()
		if n.addLink == "" {
			n.addLink = addLink
		}
		n.mutex.Unlock()
	}

	saved, err := n.Gateway.SaveNote(ctx, addLink, note)
	if err != nil {
		return err
	}
	n.confirm(page, saved)
	return nil
}

// confirm stamps the identity given by the server at the page note, so the next save updates instead of creating.
func (n *Notes) confirm(page int, saved domain.Note) {
	if !saved.Persisted() {
		return
	}
	n.mutex.Lock()
	defer n.mutex.Unlock()
	note, ok := n.notes[page]
	if !ok || note.Persisted() {
		return
	}
	note.RemoteID = saved.RemoteID
	note.SelfLink = saved.SelfLink
	n.notes[page] = note
	if n.page == page {
		n.current = note
	}
}

// Snapshot returns the state needed to rebuild the engine at another request.
func (n *Notes) Snapshot() domain.NotesSnapshot {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return domain.NotesSnapshot{
		DocumentURL: n.DocumentURL,
		Page:        n.page,
		AddLink:     n.addLink,
		Notes:       n.sortedNotes(),
	}
}

// Restore replaces the state with the snapshot. The engine counts as loaded.
func (n *Notes) Restore(snapshot domain.NotesSnapshot) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.notes = make(map[int]domain.Note, len(snapshot.Notes))
	for _, note := range snapshot.Notes {
		n.notes[note.Page] = note
	}
	n.addLink = snapshot.AddLink
	n.loaded = true
	n.setPage(snapshot.Page)
}
