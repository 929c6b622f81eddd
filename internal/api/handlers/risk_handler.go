package handlers

import (
	"net/http"

	"riskhub/internal/models"
)

// RiskProvider - read-only поверхность риск-движка
// (реализуется risk.Engine)
type RiskProvider interface {
	Portfolio() models.PortfolioRisk
	Assessments() []models.RiskAssessment
}

// RiskHandler отвечает за чтение оценок риска
//
// Endpoints:
// - GET /api/v1/risk/portfolio - агрегированный риск портфеля
// - GET /api/v1/risk/assessments - оценки по открытым позициям
type RiskHandler struct {
	risk RiskProvider
}

// NewRiskHandler создает новый RiskHandler с внедрением зависимости
func NewRiskHandler(risk RiskProvider) *RiskHandler {
	return &RiskHandler{risk: risk}
}

// GetPortfolio возвращает агрегированный риск портфеля
//
// GET /api/v1/risk/portfolio
//
// Пустой портфель возвращает score 0 / level low, не ошибку.
func (h *RiskHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.risk.Portfolio())
}

// GetAssessmentsResponse представляет ответ списка оценок
type GetAssessmentsResponse struct {
	Assessments []models.RiskAssessment `json:"assessments"`
	Total       int                     `json:"total"`
}

// GetAssessments возвращает оценки риска по всем открытым позициям.
// Оценки по устаревшим снимкам помечены is_stale.
//
// GET /api/v1/risk/assessments
func (h *RiskHandler) GetAssessments(w http.ResponseWriter, r *http.Request) {
	assessments := h.risk.Assessments()
	if assessments == nil {
		assessments = []models.RiskAssessment{}
	}

	respondWithJSON(w, http.StatusOK, GetAssessmentsResponse{
		Assessments: assessments,
		Total:       len(assessments),
	})
}
