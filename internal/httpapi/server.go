// Package httpapi exposes the curriculum, the merged view and the edit
// operations over HTTP, plus a websocket feed of view refreshes.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/p-n-ai/study-tracker/internal/curriculum"
	"github.com/p-n-ai/study-tracker/internal/progress"
	"github.com/p-n-ai/study-tracker/internal/reconcile"
	"github.com/p-n-ai/study-tracker/internal/report"
)

const maxBodyBytes = 1 << 20

// Server holds the handlers' dependencies.
type Server struct {
	curriculum *curriculum.Store
	ledger     *progress.Ledger
	reconciler *reconcile.Reconciler
	debouncer  *reconcile.Debouncer
	hub        *Hub
}

// New wires the handlers and forwards reconciler refreshes to the hub.
func New(c *curriculum.Store, l *progress.Ledger, r *reconcile.Reconciler, d *reconcile.Debouncer, hub *Hub) *Server {
	r.OnRefresh(func(ev reconcile.Refresh) {
		hub.Broadcast(Message{Type: MessageViewRefreshed, Version: ev.Version, SubtopicID: ev.SubtopicID})
	})
	return &Server{curriculum: c, ledger: l, reconciler: r, debouncer: d, hub: hub}
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/subjects", s.handleGetSubjects)
	mux.HandleFunc("POST /api/subjects", s.handlePostSubjects)
	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("PUT /api/subtopics/{subjectId}/{topicId}/{subtopicId}/notes", s.handleNotes)
	mux.HandleFunc("PUT /api/subtopics/{subjectId}/{topicId}/{subtopicId}/progress", s.handleProgress)
	mux.HandleFunc("PUT /api/subtopics/{subjectId}/{topicId}/{subtopicId}/target-time", s.handleTargetTime)
	mux.HandleFunc("POST /api/subtopics/{subjectId}/{topicId}/{subtopicId}/draft", s.handleDraft)
	mux.HandleFunc("POST /api/subtopics/{subjectId}/{topicId}/{subtopicId}/flush", s.handleFlush)
	mux.HandleFunc("GET /api/ledger/{subtopicId}", s.handleLedger)
	mux.HandleFunc("GET /api/session", s.handleGetSession)
	mux.HandleFunc("POST /api/session", s.handlePostSession)
	mux.HandleFunc("POST /api/session/reset", s.handleResetSession)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/export.xlsx", s.handleExport)
	mux.Handle("GET /ws", s.hub)
}

func (s *Server) handleGetSubjects(w http.ResponseWriter, r *http.Request) {
	snap := s.curriculum.Snapshot()
	etag := `"` + snap.Version + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, snap.Subjects)
}

func (s *Server) handlePostSubjects(w http.ResponseWriter, r *http.Request) {
	var req curriculum.UpdateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	_, err := s.curriculum.Update(r.Context(), req)
	switch {
	case errors.Is(err, curriculum.ErrInvalidUpdate):
		slog.Warn("invalid curriculum update", "subject_id", req.SubjectID, "topic_id", req.TopicID, "subtopic_id", req.SubtopicID, "progress", req.Progress)
		writeError(w, http.StatusBadRequest, "Invalid subjectId, topicId, subtopicId, or progress")
		return
	case errors.Is(err, curriculum.ErrNotFound):
		writeError(w, http.StatusNotFound, "Subtopic not found")
		return
	case err != nil:
		slog.Error("failed to update curriculum", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update subjects")
		return
	}

	// The baseline changed; rebuild so the view reflects it.
	if _, err := s.reconciler.BuildView(r.Context()); err != nil {
		slog.Warn("failed to rebuild view after curriculum update", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Subtopic updated"})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reconciler.View())
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes *string `json:"notes"`
	}
	if err := decodeBody(w, r, &body); err != nil || body.Notes == nil {
		writeError(w, http.StatusBadRequest, "notes is required")
		return
	}
	subjectID, topicID, subtopicID := address(r)
	sv, err := s.reconciler.UpdateNotes(r.Context(), subjectID, topicID, subtopicID, *body.Notes)
	writeEditResult(w, sv, err)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Progress string `json:"progress"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	subjectID, topicID, subtopicID := address(r)
	sv, err := s.reconciler.UpdateProgress(r.Context(), subjectID, topicID, subtopicID, body.Progress)
	writeEditResult(w, sv, err)
}

func (s *Server) handleTargetTime(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TargetTime *int `json:"targetTime"`
	}
	if err := decodeBody(w, r, &body); err != nil || body.TargetTime == nil {
		writeError(w, http.StatusBadRequest, "targetTime is required")
		return
	}
	subjectID, topicID, subtopicID := address(r)
	sv, err := s.reconciler.UpdateTargetTime(r.Context(), subjectID, topicID, subtopicID, *body.TargetTime)
	writeEditResult(w, sv, err)
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	subjectID, topicID, subtopicID := address(r)
	if _, err := s.curriculum.Find(subjectID, topicID, subtopicID); err != nil {
		writeError(w, http.StatusNotFound, "Subtopic not found")
		return
	}

	addr := curriculum.Address{SubjectID: subjectID, TopicID: topicID, SubtopicID: subtopicID}
	if err := s.debouncer.Type(addr, body.Notes); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(reconcile.StatePending)})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	subjectID, topicID, subtopicID := address(r)
	if _, err := s.curriculum.Find(subjectID, topicID, subtopicID); err != nil {
		writeError(w, http.StatusNotFound, "Subtopic not found")
		return
	}

	err := s.debouncer.Flush(r.Context(), subtopicID)
	sv, _ := s.reconciler.View().Subtopic(subjectID, topicID, subtopicID)
	writeEditResult(w, sv, err)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("subtopicId")
	rec, exists, err := s.ledger.Lookup(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	key, _ := progress.Key(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"key":    key,
		"exists": exists,
		"record": rec,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reconciler.Session().Snapshot())
}

func (s *Server) handlePostSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PrioritySubjects []string `json:"prioritySubjects"`
		CompletionMonths int      `json:"completionMonths"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session := s.reconciler.Session()
	if err := session.Complete(body.PrioritySubjects, body.CompletionMonths); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Info("onboarding completed", "priorities", session.Snapshot().PrioritySubjects, "months", body.CompletionMonths)
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	s.reconciler.Session().Reset()
	slog.Info("session reset")
	writeJSON(w, http.StatusOK, s.reconciler.Session().Snapshot())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.curriculum.Search(r.URL.Query().Get("q")))
}

// writeWorkbook is swapped in tests.
var writeWorkbook = report.WriteWorkbook

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := writeWorkbook(&buf, s.reconciler.View()); err != nil {
		slog.Error("failed to export workbook", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="progress.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to send workbook", "error", err)
	}
}

// Close commits pending drafts.
func (s *Server) Close(ctx context.Context) error {
	return s.debouncer.Close(ctx)
}

func address(r *http.Request) (subjectID, topicID, subtopicID string) {
	return r.PathValue("subjectId"), r.PathValue("topicId"), r.PathValue("subtopicId")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// writeEditResult maps reconciler errors onto status codes. A failed write
// still returns the subtopic so the client can show the failed field.
func writeEditResult(w http.ResponseWriter, sv reconcile.SubtopicView, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sv)
	case errors.Is(err, reconcile.ErrValidation), errors.Is(err, progress.ErrEmptyKey), errors.Is(err, progress.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, reconcile.ErrNotFound):
		writeError(w, http.StatusNotFound, "Subtopic not found")
	case errors.Is(err, progress.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":    err.Error(),
			"subtopic": sv,
		})
	default:
		slog.Error("edit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, progress.ErrEmptyKey):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, progress.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("ledger lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
