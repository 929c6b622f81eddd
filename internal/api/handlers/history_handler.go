package handlers

import (
	"net/http"
	"strconv"
	"time"

	"riskhub/internal/models"
)

// EventHistory - доступ к кольцу недавних событий шины
// (реализуется bus.History)
type EventHistory interface {
	RecentSince(limit int, typePattern string, since time.Time) []models.Event
}

// HistoryHandler отвечает за чтение истории событий
//
// Endpoints:
// - GET /api/v1/events/history - недавние события, новые первыми
// - GET /api/v1/events/history?type=signal.* - фильтр по типу (wildcard)
// - GET /api/v1/events/history?since=2026-01-02T15:04:05Z - нижняя граница времени
// - GET /api/v1/events/history?limit=50 - с ограничением количества
type HistoryHandler struct {
	history EventHistory
}

// NewHistoryHandler создает новый HistoryHandler с внедрением зависимости
func NewHistoryHandler(history EventHistory) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// GetHistoryResponse представляет ответ истории событий
type GetHistoryResponse struct {
	Events []models.Event `json:"events"`
	Total  int            `json:"total"`
}

// GetHistory возвращает недавние события шины, новые первыми
//
// GET /api/v1/events/history
//
// Query параметры:
// - type (string): фильтр по типу события; поддерживает точное
//   совпадение, префикс с wildcard (signal.*) и * для всех
// - since (string, RFC3339): события не старше указанного времени
// - limit (int): количество записей (по умолчанию 100)
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	typePattern := r.URL.Query().Get("type")
	if typePattern == "" {
		typePattern = "*"
	}

	limit := 100
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var since time.Time
	if sinceParam := r.URL.Query().Get("since"); sinceParam != "" {
		parsed, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "since must be RFC3339: "+err.Error())
			return
		}
		since = parsed
	}

	events := h.history.RecentSince(limit, typePattern, since)
	if events == nil {
		events = []models.Event{}
	}

	respondWithJSON(w, http.StatusOK, GetHistoryResponse{
		Events: events,
		Total:  len(events),
	})
}
