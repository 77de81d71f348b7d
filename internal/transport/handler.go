package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hmcts/document-viewer/internal/domain"
	"github.com/hmcts/document-viewer/internal/service"
)

const sessionCookie = "viewer-session"

type handlerShell interface {
	Open(context.Context, string, string) (service.View, error)
}

type handlerSessions interface {
	NewID() string
	Open(context.Context, string, string) (*service.Session, <-chan error, error)
	Persist(context.Context, *service.Session) error
	Close(context.Context, string, string) error
}

type handlerBinary interface {
	Fetch(context.Context, string, string) ([]byte, error)
}

type notesResponse struct {
	Page   int           `json:"page"`
	Note   domain.Note   `json:"note"`
	Dirty  bool          `json:"dirty"`
	Loaded bool          `json:"loaded"`
	Notes  []domain.Note `json:"notes"`
}

type handler struct {
	writer         writer
	logger         zerolog.Logger
	traceExtractor traceExtractor
	shell          handlerShell
	sessions       handlerSessions
	binary         handlerBinary
}

func (h handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.writer.error(r.Context(), w, "Endpoint not found", nil, http.StatusNotFound)
}

func (h handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writer.error(r.Context(), w, "Method not allowed", nil, http.StatusMethodNotAllowed)
}

func (h handler) health(w http.ResponseWriter, r *http.Request) {
	h.writer.response(r.Context(), w, map[string]interface{}{"status": "healthy"}, http.StatusOK)
}

func (h handler) viewer(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}

	documentURL, ok := h.documentURL(w, r, logger)
	if !ok {
		return
	}

	view, err := h.shell.Open(r.Context(), h.sessionID(w, r), documentURL)
	if err != nil {
		h.fail(w, r, logger, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		h.writer.response(r.Context(), w, view, http.StatusOK)
		return
	}
	h.writer.html(r.Context(), w, view, http.StatusOK)
}

func (h handler) notes(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}

	entry, ok := h.session(w, r, logger)
	if !ok {
		return
	}

	if rawPage := r.URL.Query().Get("page"); rawPage != "" {
		page, err := strconv.Atoi(rawPage)
		if err != nil {
			logger.Err(err).Str("requestID", chiMiddleware.GetReqID(r.Context())).Msg("Invalid 'page' parameter")
			h.writer.error(r.Context(), w, "Invalid 'page' parameter", nil, http.StatusBadRequest)
			return
		}
		entry.Notes.SetPage(page)
		h.persist(r.Context(), logger, entry)
	}
	h.writer.response(r.Context(), w, newNotesResponse(entry), http.StatusOK)
}

func (h handler) writeNote(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}

	var payload struct {
		Content *string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writer.error(r.Context(), w, "Fail to parse the request body", err, http.StatusBadRequest)
		return
	}
	if payload.Content == nil {
		h.writer.error(r.Context(), w, "Missing 'content' attribute", nil, http.StatusBadRequest)
		return
	}

	entry, ok := h.session(w, r, logger)
	if !ok {
		return
	}
	entry.Notes.SetContent(*payload.Content)
	entry.Edit.MarkDirty()
	h.persist(r.Context(), logger, entry)
	h.writer.response(r.Context(), w, newNotesResponse(entry), http.StatusOK)
}

func (h handler) saveNote(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}

	entry, ok := h.session(w, r, logger)
	if !ok {
		return
	}

	ctx := context.WithoutCancel(r.Context())
	result := entry.Notes.Save(ctx, entry.Edit)
	if r.URL.Query().Get("wait") != "true" {
		go func() {
			<-result
			h.persist(ctx, logger, entry)
		}()
		h.writer.response(r.Context(), w, newNotesResponse(entry), http.StatusAccepted)
		return
	}

	err := <-result
	h.persist(ctx, logger, entry)
	if errors.Is(err, service.ErrConflict) {
		h.writer.error(r.Context(), w, "Save already in flight", err, http.StatusConflict)
		return
	}
	if err != nil {
		h.writer.error(r.Context(), w, "Fail to save the note", err, http.StatusBadGateway)
		return
	}
	h.writer.response(r.Context(), w, newNotesResponse(entry), http.StatusOK)
}

// closeNotes drops the session of the document. Unsaved drafts are lost.
func (h handler) closeNotes(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}

	documentURL, ok := h.documentURL(w, r, logger)
	if !ok {
		return
	}

	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.sessions.Close(r.Context(), cookie.Value, documentURL); err != nil {
		h.fail(w, r, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h handler) binaryProxy(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}

	source := r.URL.Query().Get("src")
	if source == "" {
		h.writer.error(r.Context(), w, "Missing 'src' parameter", nil, http.StatusBadRequest)
		return
	}

	payload, err := h.binary.Fetch(r.Context(), r.URL.String(), source)
	if err != nil {
		h.fail(w, r, logger, err)
		return
	}

	w.Header().Set("content-length", strconv.Itoa(len(payload)))
	w.Header().Set("content-type", http.DetectContentType(payload))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		logger.Err(err).Str("requestID", chiMiddleware.GetReqID(r.Context())).Msg("Fail to write the response back to the client")
	}
}

func (h handler) requestLogger(w http.ResponseWriter, r *http.Request) (zerolog.Logger, bool) {
	reqID := chiMiddleware.GetReqID(r.Context())
	logger, err := h.traceExtractor(r.Context(), h.logger)
	if err != nil {
		logger.Err(err).Str("requestID", reqID).Msg("Could not extract tracing id")
		h.writer.error(r.Context(), w, fmt.Sprintf("Request ID '%s'", reqID), nil, http.StatusInternalServerError)
		return logger, false
	}
	return logger, true
}

func (h handler) documentURL(w http.ResponseWriter, r *http.Request, logger zerolog.Logger) (string, bool) {
	documentURL := r.URL.Query().Get("url")
	if documentURL == "" {
		logger.Error().Str("requestID", chiMiddleware.GetReqID(r.Context())).Msg("Missing 'url' parameter")
		h.writer.error(r.Context(), w, "Missing 'url' parameter", nil, http.StatusBadRequest)
		return "", false
	}
	return documentURL, true
}

// sessionID reads the session cookie. A missing or malformed cookie starts a new session.
func (h handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			return cookie.Value
		}
	}

	id := h.sessions.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// session opens the session of the document and waits for its notes to load. A load failure leaves the notes blank.
func (h handler) session(w http.ResponseWriter, r *http.Request, logger zerolog.Logger) (*service.Session, bool) {
	documentURL, ok := h.documentURL(w, r, logger)
	if !ok {
		return nil, false
	}

	entry, result, err := h.sessions.Open(r.Context(), h.sessionID(w, r), documentURL)
	if err != nil {
		h.fail(w, r, logger, err)
		return nil, false
	}
	select {
	case <-result:
	case <-r.Context().Done():
		h.fail(w, r, logger, r.Context().Err())
		return nil, false
	}
	return entry, true
}

func (h handler) persist(ctx context.Context, logger zerolog.Logger, entry *service.Session) {
	if err := h.sessions.Persist(ctx, entry); err != nil {
		logger.Err(err).Str("sessionID", entry.ID).Msg("Fail to persist the session")
	}
}

func (h handler) fail(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	reqID := chiMiddleware.GetReqID(r.Context())
	if ctxErr := r.Context().Err(); ctxErr != nil {
		logger.Err(ctxErr).Str("requestID", reqID).Msg("Context error")
		if ctxErr == context.Canceled {
			return
		}
		h.writer.error(r.Context(), w, fmt.Sprintf("Request ID '%s'", reqID), nil, http.StatusRequestTimeout)
		return
	}

	status := http.StatusInternalServerError
	if errors.Is(err, service.ErrClient) {
		status = http.StatusBadRequest
	} else if errors.Is(err, service.ErrNotFound) {
		status = http.StatusNotFound
	} else if errors.Is(err, service.ErrConflict) {
		status = http.StatusConflict
	}
	logger.Err(err).Str("requestID", reqID).Msg("Error")
	h.writer.error(r.Context(), w, fmt.Sprintf("Request ID '%s'", reqID), nil, status)
}

func newNotesResponse(entry *service.Session) notesResponse {
	return notesResponse{
		Page:   entry.Notes.Page(),
		Note:   entry.Notes.CurrentNote(),
		Dirty:  entry.Edit.Dirty(),
		Loaded: entry.Notes.Loaded(),
		Notes:  entry.Notes.Notes(),
	}
}
