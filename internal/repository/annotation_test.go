package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hmcts/document-viewer/internal/domain"
)

type recordedRequest struct {
	method        string
	path          string
	query         string
	authorization string
	body          map[string]any
}

func newAnnotationServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rr := recordedRequest{
			method:        r.Method,
			path:          r.URL.Path,
			query:         r.URL.Query().Get("url"),
			authorization: r.Header.Get("Authorization"),
		}
		payload, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if len(payload) > 0 {
			require.NoError(t, json.Unmarshal(payload, &rr.body))
		}
		requests = append(requests, rr)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func newAnnotationClient(t *testing.T, baseURL string) AnnotationClient {
	t.Helper()
	c := AnnotationClient{HTTPClient: http.DefaultClient, BaseURL: baseURL + "/"}
	require.NoError(t, c.Init())
	return c
}

func TestAnnotationClientInit(t *testing.T) {
	var c AnnotationClient
	require.EqualError(t, c.Init(), "internal/repository/AnnotationClient.HTTPClient can't be nil")
	c.HTTPClient = http.DefaultClient
	require.EqualError(t, c.Init(), "internal/repository/AnnotationClient.BaseURL can't be empty")
}

func TestAnnotationClientFetchAnnotationSets(t *testing.T) {
	response := `{
		"_embedded": {
			"annotationSets": [{
				"uuid": "1234",
				"annotations": [
					{"uuid":"1","page":2,"type":"PAGENOTE","comments":[{"content":"Page 2 note"}],"_links":{"self":"https://anno-url/annotation-sets/1234/annotation/1"}},
					{"uuid":"3","page":1,"type":"COMMENT","comments":[{"content":"Page 1 comment"}],"_links":{"self":"https://anno-url/annotation-sets/1234/annotation/3"}}
				],
				"_links": {
					"self": {"href": "https://anno-url/annotation-sets/1234"},
					"add-annotation": {"href": "https://anno-url/annotation-sets/1234/annotation"}
				}
			}]
		}
	}`
	server, requests := newAnnotationServer(t, http.StatusOK, response)
	c := newAnnotationClient(t, server.URL)

	sets, err := c.FetchAnnotationSets(WithToken(context.Background(), "12345"), "https://doc123")
	require.NoError(t, err)
	require.Len(t, sets, 1)
	require.Len(t, sets[0].Annotations, 2)
	require.Equal(t, "https://anno-url/annotation-sets/1234/annotation", sets[0].Links.AddAnnotation.Href)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	require.Equal(t, http.MethodGet, req.method)
	require.Equal(t, "/annotation-sets/find-all-by-document-url", req.path)
	require.Equal(t, "https://doc123", req.query)
	require.Equal(t, "Bearer 12345", req.authorization)
}

func TestAnnotationClientFetchAnnotationSetsFailure(t *testing.T) {
	tests := []struct {
		message  string
		status   int
		response string
	}{
		{message: "return the status on a server error", status: http.StatusInternalServerError},
		{message: "return the status on a missing document", status: http.StatusNotFound},
		{message: "fail on a malformed body", status: http.StatusOK, response: "{"},
	}
	for _, tt := range tests {
		t.Run("Should "+tt.message, func(t *testing.T) {
			server, _ := newAnnotationServer(t, tt.status, tt.response)
			c := newAnnotationClient(t, server.URL)
			_, err := c.FetchAnnotationSets(context.Background(), "https://doc123")
			require.Error(t, err)

			var se StatusError
			if tt.status == http.StatusOK {
				require.False(t, errors.As(err, &se))
				return
			}
			require.ErrorAs(t, err, &se)
			require.Equal(t, tt.status, se.StatusCode)
		})
	}
}

func TestAnnotationClientSaveNote(t *testing.T) {
	tests := []struct {
		message        string
		note           domain.Note
		addLink        string
		response       string
		expectedMethod string
		expectedPath   string
		expectedNote   domain.Note
	}{
		{
			message:        "create a note without self link",
			note:           domain.Note{Content: "New page 1 note", Page: 1},
			addLink:        "/annotation-sets/1234/annotation",
			response:       `{}`,
			expectedMethod: http.MethodPost,
			expectedPath:   "/annotation-sets/1234/annotation",
			expectedNote:   domain.Note{Content: "New page 1 note", Page: 1},
		},
		{
			message:        "stamp the identity assigned by the server",
			note:           domain.Note{Content: "New page 3 note", Page: 3},
			addLink:        "/annotation-sets/1234/annotation",
			response:       `{"uuid":"9","_links":{"self":{"href":"https://anno-url/annotation-sets/1234/annotation/9"}}}`,
			expectedMethod: http.MethodPost,
			expectedPath:   "/annotation-sets/1234/annotation",
			expectedNote: domain.Note{
				RemoteID: "9",
				Content:  "New page 3 note",
				SelfLink: "https://anno-url/annotation-sets/1234/annotation/9",
				Page:     3,
			},
		},
		{
			message:        "update a note with self link",
			note:           domain.Note{RemoteID: "2", Content: "Changed", SelfLink: "/annotation-sets/1234/annotation/2", Page: 1},
			expectedMethod: http.MethodPut,
			expectedPath:   "/annotation-sets/1234/annotation/2",
			expectedNote:   domain.Note{RemoteID: "2", Content: "Changed", SelfLink: "/annotation-sets/1234/annotation/2", Page: 1},
		},
	}
	for _, tt := range tests {
		t.Run("Should "+tt.message, func(t *testing.T) {
			server, requests := newAnnotationServer(t, http.StatusOK, tt.response)
			c := newAnnotationClient(t, server.URL)

			note := tt.note
			if note.SelfLink != "" {
				note.SelfLink = server.URL + note.SelfLink
				tt.expectedNote.SelfLink = server.URL + tt.expectedNote.SelfLink
			}
			addLink := ""
			if tt.addLink != "" {
				addLink = server.URL + tt.addLink
			}

			saved, err := c.SaveNote(context.Background(), addLink, note)
			require.NoError(t, err)
			require.Equal(t, tt.expectedNote, saved)

			require.Len(t, *requests, 1)
			req := (*requests)[0]
			require.Equal(t, tt.expectedMethod, req.method)
			require.Equal(t, tt.expectedPath, req.path)
			require.Equal(t, domain.AnnotationTypePageNote, req.body["type"])
			require.EqualValues(t, note.Page, req.body["page"])
			comments, ok := req.body["comments"].([]any)
			require.True(t, ok)
			require.Equal(t, map[string]any{"content": note.Content}, comments[0])
		})
	}
}

func TestAnnotationClientSaveNoteFailure(t *testing.T) {
	t.Run("Should require an annotation set for new notes", func(t *testing.T) {
		c := newAnnotationClient(t, "https://anno-url")
		_, err := c.SaveNote(context.Background(), "", domain.NewNote(1))
		require.ErrorIs(t, err, ErrMissingAnnotationSet)
	})

	t.Run("Should surface the status", func(t *testing.T) {
		server, _ := newAnnotationServer(t, http.StatusBadGateway, "")
		c := newAnnotationClient(t, server.URL)
		_, err := c.SaveNote(context.Background(), server.URL+"/annotation-sets/1/annotation", domain.NewNote(1))
		var se StatusError
		require.ErrorAs(t, err, &se)
		require.Equal(t, http.StatusBadGateway, se.StatusCode)
		require.Equal(t, "Bad Gateway", se.StatusText)
	})

	t.Run("Should fail on a malformed body", func(t *testing.T) {
		server, _ := newAnnotationServer(t, http.StatusCreated, "not json")
		c := newAnnotationClient(t, server.URL)
		_, err := c.SaveNote(context.Background(), server.URL+"/annotation-sets/1/annotation", domain.NewNote(1))
		require.Error(t, err)
	})
}

func TestAnnotationClientCreateAnnotationSet(t *testing.T) {
	server, requests := newAnnotationServer(t, http.StatusCreated, `{"uuid":"5678","_links":{"self":{"href":"https://anno-url/annotation-sets/5678"}}}`)
	c := newAnnotationClient(t, server.URL)

	set, err := c.CreateAnnotationSet(context.Background(), "https://doc123")
	require.NoError(t, err)
	require.Equal(t, "5678", set.UUID)
	require.Equal(t, "https://anno-url/annotation-sets/5678/annotation", set.Links.AddAnnotation.Href)

	require.Len(t, *requests, 1)
	require.Equal(t, http.MethodPost, (*requests)[0].method)
	require.Equal(t, "/annotation-sets", (*requests)[0].path)
	require.Equal(t, "https://doc123", (*requests)[0].body["documentUri"])
}
