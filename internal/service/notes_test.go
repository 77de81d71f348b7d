package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hmcts/document-viewer/internal/domain"
)

const (
	documentURL = "https://doc123"
	addLink     = "https://anno-url/annotation-sets/1234/annotation"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) FetchAnnotationSets(ctx context.Context, documentURL string) ([]domain.AnnotationSet, error) {
	args := m.Called(ctx, documentURL)
	sets, _ := args.Get(0).([]domain.AnnotationSet)
	return sets, args.Error(1)
}

func (m *mockGateway) CreateAnnotationSet(ctx context.Context, documentURL string) (domain.AnnotationSet, error) {
	args := m.Called(ctx, documentURL)
	return args.Get(0).(domain.AnnotationSet), args.Error(1)
}

func (m *mockGateway) SaveNote(ctx context.Context, link string, note domain.Note) (domain.Note, error) {
	args := m.Called(ctx, link, note)
	return args.Get(0).(domain.Note), args.Error(1)
}

func loadedSets() []domain.AnnotationSet {
	return []domain.AnnotationSet{{
		UUID: "1234",
		Annotations: []domain.Annotation{
			{
				UUID:     "1",
				Page:     2,
				Type:     domain.AnnotationTypePageNote,
				Comments: []domain.AnnotationComment{{Content: "Page 2 note"}},
				Links:    domain.AnnotationLinks{Self: domain.Link{Href: "https://anno-url/annotation-sets/1234/annotation/1"}},
			},
			{
				UUID:     "2",
				Page:     1,
				Type:     domain.AnnotationTypePageNote,
				Comments: []domain.AnnotationComment{{Content: "Page 1 note"}},
				Links:    domain.AnnotationLinks{Self: domain.Link{Href: "https://anno-url/annotation-sets/1234/annotation/2"}},
			},
			{
				UUID:     "3",
				Page:     1,
				Type:     "COMMENT",
				Comments: []domain.AnnotationComment{{Content: "Page 1 comment"}},
				Links:    domain.AnnotationLinks{Self: domain.Link{Href: "https://anno-url/annotation-sets/1234/annotation/3"}},
			},
		},
		Links: domain.AnnotationSetLinks{
			Self:          domain.Link{Href: "https://anno-url/annotation-sets/1234"},
			AddAnnotation: domain.Link{Href: addLink},
		},
	}}
}

func newNotes(t *testing.T, gateway *mockGateway, sets []domain.AnnotationSet, fetchErr error) *Notes {
	t.Helper()
	gateway.On("FetchAnnotationSets", mock.Anything, documentURL).Return(sets, fetchErr).Once()
	n := &Notes{DocumentURL: documentURL, Gateway: gateway, Logger: zerolog.Nop()}
	require.NoError(t, n.Init())
	err := wait(t, n.Attach(context.Background()))
	require.Equal(t, fetchErr == nil, err == nil)
	return n
}

func wait(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for the result")
		return nil
	}
}

func TestNotesInit(t *testing.T) {
	var n Notes
	require.EqualError(t, n.Init(), "internal/service/Notes.DocumentURL can't be empty")
	n.DocumentURL = documentURL
	require.EqualError(t, n.Init(), "internal/service/Notes.Gateway can't be nil")
	n.Gateway = &mockGateway{}
	require.NoError(t, n.Init())
	require.Equal(t, 1, n.Page())
	require.Equal(t, domain.NewNote(1), n.CurrentNote())
}

func TestNotesWithoutLoadedNotes(t *testing.T) {
	t.Parallel()
	gateway := &mockGateway{}
	n := newNotes(t, gateway, []domain.AnnotationSet{}, nil)

	n.SetPage(0)
	require.Equal(t, 0, n.Page())
	require.Equal(t, domain.NewNote(0), n.CurrentNote())

	n.SetCurrentNote(domain.Note{Content: "A note"})
	require.Equal(t, "A note", n.CurrentNote().Content)

	n.SetPage(1)
	require.Equal(t, "", n.CurrentNote().Content)

	n.SetPage(0)
	require.Equal(t, "A note", n.CurrentNote().Content)
	gateway.AssertExpectations(t)
}

func TestNotesBlankPages(t *testing.T) {
	t.Parallel()
	n := newNotes(t, &mockGateway{}, loadedSets(), nil)

	for _, page := range []int{3, 7, 42, -1} {
		note := n.SetPage(page)
		require.Equal(t, domain.Note{Page: page}, note)
		require.Equal(t, note, n.CurrentNote())
	}
}

func TestNotesWithLoadedNotes(t *testing.T) {
	t.Parallel()
	n := newNotes(t, &mockGateway{}, loadedSets(), nil)

	require.True(t, n.Loaded())
	require.Equal(t, 2, n.Len())
	require.Equal(t, "Page 1 note", n.CurrentNote().Content)
	require.Equal(t, "2", n.CurrentNote().RemoteID)
	require.Equal(t, "Page 2 note", n.SetPage(2).Content)
	for _, note := range n.Notes() {
		require.NotEqual(t, "Page 1 comment", note.Content)
	}
}

func TestNotesLoadFailure(t *testing.T) {
	t.Parallel()
	n := newNotes(t, &mockGateway{}, nil, errors.New("connection refused"))

	require.False(t, n.Loaded())
	require.Equal(t, domain.NewNote(1), n.CurrentNote())
	require.Equal(t, domain.NewNote(5), n.SetPage(5))
}

func TestNotesLoadKeepsDrafts(t *testing.T) {
	t.Parallel()
	gateway := &mockGateway{}
	gateway.On("FetchAnnotationSets", mock.Anything, documentURL).Return(loadedSets(), nil).Once()
	n := &Notes{DocumentURL: documentURL, Gateway: gateway, Logger: zerolog.Nop()}
	require.NoError(t, n.Init())

	n.SetPage(1)
	n.SetContent("draft for page 1")
	n.SetPage(4)
	n.SetContent("draft for page 4")
	require.NoError(t, wait(t, n.Attach(context.Background())))

	require.Equal(t, "draft for page 4", n.CurrentNote().Content)
	page1 := n.SetPage(1)
	require.Equal(t, "draft for page 1", page1.Content)
	require.Equal(t, "2", page1.RemoteID)
	require.Equal(t, "Page 2 note", n.SetPage(2).Content)
	require.Equal(t, 3, n.Len())
}

func TestNotesLoadDuplicatedPage(t *testing.T) {
	t.Parallel()
	sets := loadedSets()
	sets = append(sets, domain.AnnotationSet{
		UUID: "5678",
		Annotations: []domain.Annotation{{
			UUID:     "4",
			Page:     1,
			Type:     domain.AnnotationTypePageNote,
			Comments: []domain.AnnotationComment{{Content: "Another page 1 note"}},
		}},
	})
	n := newNotes(t, &mockGateway{}, sets, nil)
	require.Equal(t, "Page 1 note", n.CurrentNote().Content)
	require.Equal(t, 2, n.Len())
}

func TestNotesSave(t *testing.T) {
	t.Parallel()
	gateway := &mockGateway{}
	n := newNotes(t, gateway, loadedSets(), nil)

	note := domain.Note{Content: "New page 1 note", Page: 1}
	created := domain.Note{
		RemoteID: "9",
		Content:  "New page 1 note",
		SelfLink: "https://anno-url/annotation-sets/1234/annotation/9",
		Page:     1,
	}
	gateway.On("SaveNote", mock.Anything, addLink, note).Return(created, nil).Once()

	var state EditState
	n.SetCurrentNote(note)
	state.MarkDirty()
	require.NoError(t, wait(t, n.Save(context.Background(), &state)))
	require.False(t, state.Dirty())
	require.Equal(t, created, n.CurrentNote())

	updated := created
	updated.Content = "Changed page 1 note"
	gateway.On("SaveNote", mock.Anything, addLink, updated).Return(updated, nil).Once()
	n.SetContent("Changed page 1 note")
	state.MarkDirty()
	require.NoError(t, wait(t, n.Save(context.Background(), &state)))
	require.False(t, state.Dirty())
	gateway.AssertExpectations(t)
}

func TestNotesSaveFailure(t *testing.T) {
	t.Parallel()
	gateway := &mockGateway{}
	n := newNotes(t, gateway, loadedSets(), nil)
	gateway.On("SaveNote", mock.Anything, addLink, mock.Anything).Return(domain.Note{}, errors.New("502")).Once()

	var state EditState
	n.SetContent("unsaved")
	state.MarkDirty()
	require.Error(t, wait(t, n.Save(context.Background(), &state)))
	require.True(t, state.Dirty())
	require.Equal(t, "unsaved", n.CurrentNote().Content)
	require.Equal(t, "2", n.CurrentNote().RemoteID)
}

func TestNotesSaveEditedWhileInFlight(t *testing.T) {
	t.Parallel()
	gateway := &mockGateway{}
	n := newNotes(t, gateway, loadedSets(), nil)

	release := make(chan time.Time)
	gateway.On("SaveNote", mock.Anything, addLink, mock.Anything).
		WaitUntil(release).
		Return(domain.Note{}, nil).
		Once()

	var state EditState
	n.SetContent("first")
	state.MarkDirty()
	result := n.Save(context.Background(), &state)

	n.SetContent("second")
	state.MarkDirty()
	n.SetPage(2)
	require.Equal(t, "Page 2 note", n.CurrentNote().Content)
	close(release)

	require.NoError(t, wait(t, result))
	require.True(t, state.Dirty())
	require.Equal(t, "second", n.SetPage(1).Content)
}

// editingState edits the note the first time the revision is read, the same way a write arriving while Save
// captures the note would.
type editingState struct {
	*EditState
	once sync.Once
	edit func()
}

func (es *editingState) Revision() uint64 {
	es.once.Do(es.edit)
	return es.EditState.Revision()
}

func TestNotesSaveEditedWhileCapturing(t *testing.T) {
	t.Parallel()
	gateway := &mockGateway{}
	n := newNotes(t, gateway, loadedSets(), nil)

	var saved string
	gateway.On("SaveNote", mock.Anything, addLink, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(2).(domain.Note).Content }).
		Return(domain.Note{}, nil).
		Once()

	n.SetContent("first")
	state := &editingState{EditState: &EditState{}}
	state.MarkDirty()
	state.edit = func() {
		n.SetContent("second")
		state.MarkDirty()
	}

	require.NoError(t, wait(t, n.Save(context.Background(), state)))
	if !state.Dirty() {
		require.Equal(t, "second", saved, "the state can't be pristine while the latest content is unsaved")
	}
	require.Equal(t, "second", n.CurrentNote().Content)
	gateway.AssertExpectations(t)
}

func TestNotesSaveCreatesAnnotationSet(t *testing.T) {
	t.Parallel()
	gateway := &mockGateway{}
	n := newNotes(t, gateway, []domain.AnnotationSet{}, nil)

	set := domain.AnnotationSet{
		UUID:  "5678",
		Links: domain.AnnotationSetLinks{AddAnnotation: domain.Link{Href: "https://anno-url/annotation-sets/5678/annotation"}},
	}
	gateway.On("CreateAnnotationSet", mock.Anything, documentURL).Return(set, nil).Once()
	gateway.On("SaveNote", mock.Anything, set.Links.AddAnnotation.Href, domain.Note{Content: "first", Page: 1}).
		Return(domain.Note{}, nil).
		Once()
	gateway.On("SaveNote", mock.Anything, set.Links.AddAnnotation.Href, domain.Note{Content: "first", Page: 2}).
		Return(domain.Note{}, nil).
		Once()

	n.SetContent("first")
	require.NoError(t, wait(t, n.Save(context.Background(), nil)))
	n.SetPage(2)
	n.SetContent("first")
	require.NoError(t, wait(t, n.Save(context.Background(), nil)))
	gateway.AssertExpectations(t)
}

func TestNotesSerializeSaves(t *testing.T) {
	t.Parallel()
	gateway := &mockGateway{}
	n := newNotes(t, gateway, loadedSets(), nil)
	n.SerializeSaves = true

	release := make(chan time.Time)
	gateway.On("SaveNote", mock.Anything, addLink, mock.Anything).
		WaitUntil(release).
		Return(domain.Note{}, nil).
		Once()

	first := n.Save(context.Background(), nil)
	require.ErrorIs(t, wait(t, n.Save(context.Background(), nil)), ErrSaveInFlight)
	close(release)
	require.NoError(t, wait(t, first))
	gateway.AssertExpectations(t)
}

func TestNotesSnapshot(t *testing.T) {
	t.Parallel()
	n := newNotes(t, &mockGateway{}, loadedSets(), nil)
	n.SetPage(3)
	n.SetContent("draft")

	snapshot := n.Snapshot()
	require.Equal(t, 3, snapshot.Page)
	require.Equal(t, addLink, snapshot.AddLink)
	require.Len(t, snapshot.Notes, 3)

	restored := &Notes{DocumentURL: documentURL, Gateway: &mockGateway{}, Logger: zerolog.Nop()}
	require.NoError(t, restored.Init())
	restored.Restore(snapshot)
	require.True(t, restored.Loaded())
	require.Equal(t, "draft", restored.CurrentNote().Content)
	require.Equal(t, "Page 2 note", restored.SetPage(2).Content)

	restored.SetPage(3)
	require.Equal(t, snapshot, restored.Snapshot())
}
