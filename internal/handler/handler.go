package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/screener/internal/blob"
	"github.com/pavelanni/screener/internal/exam"
	"github.com/pavelanni/screener/internal/model"
	"github.com/pavelanni/screener/internal/scorer"
	"github.com/pavelanni/screener/internal/store"
)

const maxUploadBytes = 64 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc   *exam.Service
	store *store.Store
	blobs *blob.Store
}

// New creates a new Handler.
func New(svc *exam.Service, st *store.Store, blobs *blob.Store) *Handler {
	return &Handler{svc: svc, store: st, blobs: blobs}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleHome)
	r.Post("/admin/login", h.handleAdminLogin)
	r.Post("/validate-pin", h.handleValidatePin)
	r.Post("/submit-text-answer", h.handleSubmitText)
	r.Post("/submit-image-answer", h.mediaSubmitHandler(model.ModalityImage))
	r.Post("/submit-audio-answer", h.mediaSubmitHandler(model.ModalityAudio))
	r.Post("/submit-video-answer", h.mediaSubmitHandler(model.ModalityVideo))
	r.Post("/mark-submitted", h.handleMarkSubmitted)
	r.Get("/submission-status/{candidateID}", h.handleSubmissionStatus)

	r.Group(func(admin chi.Router) {
		admin.Use(h.requireAdmin)
		admin.Post("/generate-invite", h.handleGenerateInvite)
		admin.Get("/admin/all-results", h.handleAllResults)
		admin.Get("/admin/final-verdict/{candidateID}", h.handleFinalVerdict)
		admin.Get("/admin/media/{key}", h.handleMedia)
	})
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Backend running successfully"})
}

func (h *Handler) handleValidatePin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pin string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pin == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Invalid access code"})
		return
	}

	snapshot, err := h.svc.Redeem(req.Pin)
	if err != nil {
		var notFound *model.NotFoundError
		var denied *model.DeniedError
		switch {
		case errors.As(err, &notFound):
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Invalid access code"})
		case errors.As(err, &denied):
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": denied.Reason})
		default:
			h.writeDomainError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"user_id":    snapshot.CandidateID,
		"email":      snapshot.Email,
		"test_start": snapshot.WindowStart.Format(time.RFC3339),
		"test_end":   snapshot.WindowEnd.Format(time.RFC3339),
	})
}

func (h *Handler) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   json.Number `json:"user_id"`
		Question string      `json:"question"`
		Answer   string      `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDomainError(w, &model.ValidationError{Msg: "invalid request body"})
		return
	}
	candidateID, err := req.UserID.Int64()
	if err != nil {
		h.writeDomainError(w, &model.ValidationError{Msg: "invalid user_id"})
		return
	}
	if req.Answer == "" {
		h.writeDomainError(w, &model.ValidationError{Msg: "answer is required"})
		return
	}

	verdict, err := h.svc.Submit(r.Context(), exam.SubmitRequest{
		CandidateID: candidateID,
		Modality:    model.ModalityText,
		Question:    req.Question,
		Answer:      req.Answer,
		Content:     scorer.Content{Text: req.Answer},
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ai_result": verdict})
}

// mediaSubmitHandler returns the multipart submission handler for one
// media modality. The four endpoints differ only in modality, so one
// handler parametrized by it covers them all.
func (h *Handler) mediaSubmitHandler(m model.Modality) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			h.writeDomainError(w, &model.ValidationError{Msg: "invalid multipart form"})
			return
		}

		candidateID, err := strconv.ParseInt(r.FormValue("user_id"), 10, 64)
		if err != nil {
			h.writeDomainError(w, &model.ValidationError{Msg: "invalid user_id"})
			return
		}
		question := r.FormValue("question")

		file, header, err := r.FormFile("file")
		if err != nil {
			h.writeDomainError(w, &model.ValidationError{Msg: "No file uploaded"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			h.writeDomainError(w, &model.ValidationError{Msg: "failed to read uploaded file"})
			return
		}

		key, err := h.blobs.Save(header.Filename, bytes.NewReader(data))
		if err != nil {
			h.writeDomainError(w, err)
			return
		}

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = defaultMIME(m)
		}

		verdict, err := h.svc.Submit(r.Context(), exam.SubmitRequest{
			CandidateID: candidateID,
			Modality:    m,
			Question:    question,
			Answer:      key,
			Content:     scorer.Content{Data: data, MIMEType: mimeType},
		})
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ai_result": verdict})
	}
}

func (h *Handler) handleMarkSubmitted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID json.Number `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDomainError(w, &model.ValidationError{Msg: "invalid request body"})
		return
	}
	candidateID, err := req.UserID.Int64()
	if err != nil {
		h.writeDomainError(w, &model.ValidationError{Msg: "invalid user_id"})
		return
	}

	if err := h.svc.Finalize(candidateID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	candidateID, err := strconv.ParseInt(chi.URLParam(r, "candidateID"), 10, 64)
	if err != nil {
		h.writeDomainError(w, &model.ValidationError{Msg: "invalid candidate id"})
		return
	}

	candidate, err := h.svc.Status(candidateID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{
		"text":  candidate.TextDone,
		"image": candidate.ImageDone,
		"audio": candidate.AudioDone,
		"video": candidate.VideoDone,
		"final": candidate.FinalLocked,
	})
}

func defaultMIME(m model.Modality) string {
	switch m {
	case model.ModalityImage:
		return "image/png"
	case model.ModalityAudio:
		return "audio/wav"
	case model.ModalityVideo:
		return "video/mp4"
	}
	return "application/octet-stream"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

// writeDomainError maps the error taxonomy to HTTP status codes:
// not found 404, guard denial 403, logical conflict 400, scorer outage
// 502 (marked retryable so clients can offer a retry), validation 400.
// Anything else is a store-level failure: logged, answered with 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var notFound *model.NotFoundError
	var denied *model.DeniedError
	var rejected *model.RejectedError
	var unavailable *model.ScorerUnavailableError
	var invalid *model.ValidationError

	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFound.Error()})
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": denied.Reason})
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": rejected.Reason})
	case errors.As(err, &unavailable):
		slog.Error("scorer unavailable", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":     "AI analysis temporarily unavailable, please retry",
			"retryable": true,
		})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": invalid.Msg})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
