package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"riskhub/internal/executor"
	"riskhub/internal/models"
)

// AlertService - операции диспетчера алертов, нужные API
// (реализуется dispatcher.Dispatcher)
type AlertService interface {
	ListActive(limit int) []models.Alert
	Get(alertID string) (models.Alert, bool)
	Dismiss(alertID string)
}

// ActionExecutor - шлюз исполнения рекомендованных действий
// (реализуется executor.Gate)
type ActionExecutor interface {
	Execute(ctx context.Context, alert models.Alert) (models.ExecuteResult, error)
}

// AlertHandler отвечает за управление алертами
//
// Endpoints:
// - GET /api/v1/alerts - активные алерты, новые первыми
// - GET /api/v1/alerts?limit=10 - с явным ограничением количества
// - POST /api/v1/alerts/{id}/dismiss - отклонить алерт (идемпотентно)
// - POST /api/v1/alerts/{id}/execute - исполнить рекомендованное действие
type AlertHandler struct {
	alerts   AlertService
	executor ActionExecutor
}

// NewAlertHandler создает новый AlertHandler с внедрением зависимостей
func NewAlertHandler(alerts AlertService, exec ActionExecutor) *AlertHandler {
	return &AlertHandler{
		alerts:   alerts,
		executor: exec,
	}
}

// GetAlertsResponse представляет ответ списка алертов
type GetAlertsResponse struct {
	Alerts []models.Alert `json:"alerts"`
	Total  int            `json:"total"`
}

// GetAlerts возвращает активные алерты, новые первыми
//
// GET /api/v1/alerts
//
// Query параметры:
// - limit (int): количество записей; 0 или отсутствие - настроенное
//   видимое окно
//
// HTTP коды:
// - 200 OK: успешно, возвращает массив алертов
func (h *AlertHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	alerts := h.alerts.ListActive(limit)
	if alerts == nil {
		alerts = []models.Alert{}
	}

	respondWithJSON(w, http.StatusOK, GetAlertsResponse{
		Alerts: alerts,
		Total:  len(alerts),
	})
}

// DismissAlert отклоняет алерт
//
// POST /api/v1/alerts/{id}/dismiss
//
// Операция идемпотентна: повторный dismiss и dismiss неизвестного id
// возвращают 200 без побочных эффектов.
func (h *AlertHandler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["id"]
	if alertID == "" {
		respondWithError(w, http.StatusBadRequest, "alert id is required")
		return
	}

	h.alerts.Dismiss(alertID)
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "alert dismissed"})
}

// ExecuteAlert запускает исполнение рекомендованного действия алерта
//
// POST /api/v1/alerts/{id}/execute
//
// Действие исполняется не более одного раза: конкурентные запросы
// получают 409 Conflict.
//
// HTTP коды:
// - 200 OK: действие исполнено, возвращает результат с external_reference
// - 404 Not Found: алерт неизвестен
// - 409 Conflict: действие уже исполняется или исполнено
// - 410 Gone: действие покинуто после исчерпания попыток
// - 422 Unprocessable Entity: рекомендация do_nothing неисполнима
// - 502 Bad Gateway: внешняя система вернула ошибку
// - 504 Gateway Timeout: ответ внешней системы не пришёл вовремя
func (h *AlertHandler) ExecuteAlert(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["id"]

	alert, ok := h.alerts.Get(alertID)
	if !ok {
		respondWithError(w, http.StatusNotFound, "alert not found")
		return
	}

	result, err := h.executor.Execute(r.Context(), alert)
	if err != nil {
		switch {
		case errors.Is(err, executor.ErrAlreadyExecuting), errors.Is(err, executor.ErrAlreadyExecuted):
			respondWithError(w, http.StatusConflict, err.Error())
		case errors.Is(err, executor.ErrAbandoned):
			respondWithError(w, http.StatusGone, err.Error())
		case errors.Is(err, executor.ErrNotExecutable):
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, executor.ErrResultTimeout):
			respondWithError(w, http.StatusGatewayTimeout, err.Error())
		default:
			respondWithError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
