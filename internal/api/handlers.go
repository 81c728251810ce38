package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BTreeMap/LuckyPipe/internal/messaging"
	"github.com/BTreeMap/LuckyPipe/internal/models"
	"github.com/BTreeMap/LuckyPipe/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	out, err := s.chat.HandleMessage(r.Context(), messaging.InboundMessage{
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		Text:      req.Message,
	})
	if err != nil {
		slog.Error("Server.chatHandler: message handling failed", "error", err, "sessionID", req.SessionID)
		writeError(w, http.StatusInternalServerError, "Failed to handle message")
		return
	}

	writeJSON(w, http.StatusOK, models.Success(models.ChatResult{
		SessionID: out.SessionID,
		MessageID: out.MessageID,
		Handled:   out.Handled,
		Duplicate: out.Duplicate,
		Reply:     out.Text,
		Step:      out.Step,
	}))
}

func (s *Server) clearSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.chat.ClearSession(sessionID)
	slog.Debug("Server.clearSessionHandler: session cleared", "sessionID", sessionID)
	writeJSON(w, http.StatusOK, models.SuccessWithMessage("Session cleared", nil))
}

func (s *Server) listEntriesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EntryFilter{
		PhoneNumber: q.Get("phone"),
		Status:      models.EntryStatus(q.Get("status")),
		Limit:       DefaultListLimit,
	}
	if filter.Status != "" && !models.IsValidEntryStatus(filter.Status) {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.ParseUint(v, 10, 64)
		if err != nil || limit == 0 || limit > MaxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = limit
	}

	entries, err := s.ledger.ListEntries(r.Context(), filter)
	if err != nil {
		slog.Error("Server.listEntriesHandler: failed to list entries", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list entries")
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, models.Success(entries))
}

func (s *Server) getEntryHandler(w http.ResponseWriter, r *http.Request) {
	receiptNo, err := strconv.ParseInt(chi.URLParam(r, "receiptNo"), 10, 64)
	if err != nil || receiptNo <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid receipt number")
		return
	}

	entry, err := s.ledger.GetEntryByReceipt(r.Context(), receiptNo)
	if err != nil {
		slog.Error("Server.getEntryHandler: failed to get entry", "error", err, "receiptNo", receiptNo)
		writeError(w, http.StatusInternalServerError, "Failed to get entry")
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "Entry not found")
		return
	}
	writeJSON(w, http.StatusOK, models.Success(entry))
}
