package handlers

import (
	"context"
	"errors"
	"time"

	"riskhub/internal/models"
)

// ErrMockExternal - ошибка внешней системы для тестов
var ErrMockExternal = errors.New("mock external system error")

// ============ Mock AlertService ============

type mockAlertService struct {
	alerts     map[string]models.Alert
	active     []models.Alert
	lastLimit  int
	dismissals []string
}

func newMockAlertService() *mockAlertService {
	return &mockAlertService{alerts: make(map[string]models.Alert)}
}

func (m *mockAlertService) ListActive(limit int) []models.Alert {
	m.lastLimit = limit
	return m.active
}

func (m *mockAlertService) Get(alertID string) (models.Alert, bool) {
	alert, ok := m.alerts[alertID]
	return alert, ok
}

func (m *mockAlertService) Dismiss(alertID string) {
	m.dismissals = append(m.dismissals, alertID)
}

// ============ Mock ActionExecutor ============

type mockExecutor struct {
	result models.ExecuteResult
	err    error
	calls  int
}

func (m *mockExecutor) Execute(ctx context.Context, alert models.Alert) (models.ExecuteResult, error) {
	m.calls++
	if m.err != nil {
		return models.ExecuteResult{}, m.err
	}
	return m.result, nil
}

// ============ Mock RiskProvider ============

type mockRiskProvider struct {
	portfolio   models.PortfolioRisk
	assessments []models.RiskAssessment
}

func (m *mockRiskProvider) Portfolio() models.PortfolioRisk {
	return m.portfolio
}

func (m *mockRiskProvider) Assessments() []models.RiskAssessment {
	return m.assessments
}

// ============ Mock EventHistory ============

type mockHistory struct {
	events      []models.Event
	lastLimit   int
	lastPattern string
	lastSince   time.Time
}

func (m *mockHistory) RecentSince(limit int, typePattern string, since time.Time) []models.Event {
	m.lastLimit = limit
	m.lastPattern = typePattern
	m.lastSince = since
	return m.events
}
