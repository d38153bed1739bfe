package api

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/BTreeMap/RagePipe/internal/models"
	"github.com/BTreeMap/RagePipe/internal/rage"
	"github.com/BTreeMap/RagePipe/internal/store"
	"github.com/BTreeMap/RagePipe/internal/trigger"
)

// Health is the result of GET /healthz.
type Health struct {
	Scheduler     string `json:"scheduler"`
	Conversations int    `json:"conversations"`
}

// AddRageResult is the result of POST /rage/{conversation}/add.
type AddRageResult struct {
	Category  trigger.Category  `json:"category"`
	Intensity trigger.Intensity `json:"intensity"`
	State     rage.State        `json:"state"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	h := Health{Scheduler: "disabled", Conversations: len(s.engine.Conversations())}
	if s.decay != nil {
		h.Scheduler = s.decay.State().String()
	}
	writeJSONResponse(w, http.StatusOK, models.Success(h))
}

func (s *Server) listRageHandler(w http.ResponseWriter, r *http.Request) {
	ids := s.engine.Conversations()
	sort.Strings(ids)
	out := make([]models.ConversationRage, 0, len(ids))
	for _, id := range ids {
		st, err := s.engine.Get(id)
		if err != nil {
			slog.Error("Server.listRageHandler: failed to read state", "conversation", id, "error", err)
			continue
		}
		out = append(out, models.ConversationRage{ConversationID: id, State: st})
	}
	writeJSONResponse(w, http.StatusOK, models.Success(out))
}

func (s *Server) getRageHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("conversation")
	st, err := s.engine.Get(id)
	if err != nil {
		slog.Warn("Server.getRageHandler: lookup failed", "conversation", id, "error", err)
		writeEngineError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(models.ConversationRage{ConversationID: id, State: st}))
}

func (s *Server) setRageHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("conversation")
	var req models.SetRageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.setRageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	st, err := s.engine.Set(id, *req.Value)
	if err != nil {
		slog.Warn("Server.setRageHandler: set failed", "conversation", id, "error", err)
		writeEngineError(w, err)
		return
	}
	slog.Info("Server.setRageHandler: rage set", "conversation", id, "value", st.Value)
	writeJSONResponse(w, http.StatusOK, models.Success(models.ConversationRage{ConversationID: id, State: st}))
}

func (s *Server) resetRageHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("conversation")
	st, err := s.engine.Reset(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	slog.Info("Server.resetRageHandler: rage reset", "conversation", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Rage has been reset", models.ConversationRage{ConversationID: id, State: st}))
}

func (s *Server) addRageHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("conversation")
	var req models.AddRageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.addRageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	category, err := trigger.ParseCategory(req.Category)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	adapter, ok := s.dispatcher.Adapter(category)
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(trigger.ErrUnknownCategory.Error()))
		return
	}

	intensity := trigger.NormalizeIntensity(req.Intensity)
	applied, msg := adapter.Execute(id, intensity)
	if !applied {
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(msg))
		return
	}
	st, err := s.engine.Get(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(msg, AddRageResult{Category: category, Intensity: intensity, State: st}))
}

func (s *Server) decayHandler(w http.ResponseWriter, r *http.Request) {
	if s.decay == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Decay scheduler not configured"))
		return
	}
	report := s.decay.RunCycle()
	slog.Info("Server.decayHandler: manual decay cycle", "decayed", report.Decayed, "failed", report.Failed, "skipped", report.Skipped)
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("conversation")
	limit := store.DefaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = n
	}
	events, err := s.st.ListRageEvents(id, limit)
	if err != nil {
		slog.Error("Server.eventsHandler: failed to list events", "conversation", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read rage events"))
		return
	}
	if events == nil {
		events = []models.RageEvent{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(events))
}

func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.st.GetReceipts()
	if err != nil {
		slog.Error("Server.receiptsHandler: failed to get receipts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read receipts"))
		return
	}
	if receipts == nil {
		receipts = []models.Receipt{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(receipts))
}
