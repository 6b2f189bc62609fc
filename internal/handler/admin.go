package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/screener/internal/model"
)

// Accepted invite timestamp layouts: RFC3339 from API clients, plus the
// formats an HTML datetime-local input produces.
var windowLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseWindowTime(s string) (time.Time, bool) {
	for _, layout := range windowLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (h *Handler) handleGenerateInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDomainError(w, &model.ValidationError{Msg: "invalid request body"})
		return
	}

	windowStart, ok := parseWindowTime(req.StartTime)
	if !ok {
		h.writeDomainError(w, &model.ValidationError{Msg: "invalid start_time"})
		return
	}
	windowEnd, ok := parseWindowTime(req.EndTime)
	if !ok {
		h.writeDomainError(w, &model.ValidationError{Msg: "invalid end_time"})
		return
	}

	if _, err := h.svc.Invite(req.Email, windowStart, windowEnd); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Invite sent successfully"})
}

func (h *Handler) handleAllResults(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.ListAll()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) handleFinalVerdict(w http.ResponseWriter, r *http.Request) {
	candidateID, err := strconv.ParseInt(chi.URLParam(r, "candidateID"), 10, 64)
	if err != nil {
		h.writeDomainError(w, &model.ValidationError{Msg: "invalid candidate id"})
		return
	}

	verdict, err := h.svc.FinalVerdict(r.Context(), candidateID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"final_verdict": verdict})
}

// handleMedia streams a stored upload back to the reviewer.
func (h *Handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	f, err := h.blobs.Open(key)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "media not found"})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, f)
}
