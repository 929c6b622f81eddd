package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"riskhub/internal/models"
)

// ============================================================
// AlertRepository Tests
// ============================================================

func newMockRepo(t *testing.T) (*AlertRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	repo := NewAlertRepository(db)
	return repo, mock, db
}

func sampleAlert() models.Alert {
	return models.Alert{
		ID:             "alert-1",
		PositionTicket: 42,
		Title:          "EURUSD risk escalated to high",
		Description:    "position 42: score 60.0, unrealized PnL -120.00",
		Urgency:        4,
		Recommended: models.RecommendedAction{
			Type:       models.ActionPartialClose,
			Parameters: map[string]float64{"fraction": 0.5},
		},
		CreatedAt: time.Now(),
		ExecState: models.ExecStatePending,
	}
}

func TestAlertRepositoryCreate(t *testing.T) {
	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO alerts`).
					WithArgs("alert-1", int64(42), "EURUSD risk escalated to high",
						sqlmock.AnyArg(), 4, "partial_close", sqlmock.AnyArg(),
						sqlmock.AnyArg(), false, nil, "PENDING", 0, "", "").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			expectError: false,
		},
		{
			name: "database error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO alerts`).
					WillReturnError(errors.New("database error"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, db := newMockRepo(t)
			defer db.Close()
			tt.mockSetup(mock)

			err := repo.Create(context.Background(), sampleAlert())
			if tt.expectError && err == nil {
				t.Error("ожидали ошибку")
			}
			if !tt.expectError && err != nil {
				t.Errorf("неожиданная ошибка: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("неисполненные ожидания: %v", err)
			}
		})
	}
}

func alertRows(alerts ...models.Alert) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "position_ticket", "title", "description", "urgency",
		"action_type", "action_params", "created_at", "dismissed", "dismissed_at",
		"exec_state", "retry_count", "failure_reason", "external_ref",
	})
	for _, a := range alerts {
		rows.AddRow(a.ID, a.PositionTicket, a.Title, a.Description, a.Urgency,
			string(a.Recommended.Type), []byte(`{"fraction":0.5}`), a.CreatedAt,
			a.Dismissed, a.DismissedAt, string(a.ExecState), a.RetryCount,
			a.FailureReason, a.ExternalRef)
	}
	return rows
}

func TestAlertRepositoryGetByID(t *testing.T) {
	repo, mock, db := newMockRepo(t)
	defer db.Close()

	want := sampleAlert()
	mock.ExpectQuery(`SELECT .+ FROM alerts WHERE id = \$1`).
		WithArgs("alert-1").
		WillReturnRows(alertRows(want))

	got, err := repo.GetByID(context.Background(), "alert-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ID != want.ID || got.Urgency != want.Urgency {
		t.Errorf("GetByID вернул %+v", got)
	}
	if got.Recommended.Type != models.ActionPartialClose {
		t.Errorf("action_type = %s", got.Recommended.Type)
	}
	if got.Recommended.Parameters["fraction"] != 0.5 {
		t.Errorf("action_params = %v", got.Recommended.Parameters)
	}
}

func TestAlertRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock, db := newMockRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM alerts WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("ожидали ErrAlertNotFound, получили %v", err)
	}
}

func TestAlertRepositoryGetActive(t *testing.T) {
	repo, mock, db := newMockRepo(t)
	defer db.Close()

	a1 := sampleAlert()
	a2 := sampleAlert()
	a2.ID = "alert-2"

	mock.ExpectQuery(`SELECT .+ FROM alerts WHERE dismissed = false ORDER BY created_at DESC`).
		WillReturnRows(alertRows(a2, a1))

	got, err := repo.GetActive(context.Background())
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetActive вернул %d алертов", len(got))
	}
	if got[0].ID != "alert-2" {
		t.Errorf("порядок нарушен: первым %s", got[0].ID)
	}
}

func TestAlertRepositoryMarkDismissed(t *testing.T) {
	repo, mock, db := newMockRepo(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`UPDATE alerts`).
		WithArgs(now, "alert-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkDismissed(context.Background(), "alert-1", now); err != nil {
		t.Errorf("MarkDismissed: %v", err)
	}
}

func TestAlertRepositoryMarkDismissedNotFound(t *testing.T) {
	repo, mock, db := newMockRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE alerts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkDismissed(context.Background(), "ghost", time.Now())
	if !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("ожидали ErrAlertNotFound, получили %v", err)
	}
}

func TestAlertRepositoryUpdateExecution(t *testing.T) {
	repo, mock, db := newMockRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE alerts`).
		WithArgs("EXECUTED", 1, "deal-77", "", "alert-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateExecution(context.Background(), models.ExecutionUpdate{
		AlertID:     "alert-1",
		State:       models.ExecStateExecuted,
		RetryCount:  1,
		ExternalRef: "deal-77",
	})
	if err != nil {
		t.Errorf("UpdateExecution: %v", err)
	}
}

func TestAlertRepositoryDelete(t *testing.T) {
	repo, mock, db := newMockRepo(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM alerts WHERE id = \$1`).
		WithArgs("alert-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), "alert-1"); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestAlertRepositoryCount(t *testing.T) {
	repo, mock, db := newMockRepo(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM alerts`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 7 {
		t.Errorf("Count = %d, ожидали 7", count)
	}
}
