package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"riskhub/internal/models"
)

// Ошибки репозитория алертов
var (
	ErrAlertNotFound = errors.New("alert not found")
)

// AlertRepository - работа с таблицей alerts
//
// Durable копия алертов: источник истины живёт в памяти диспетчера,
// таблица служит тёплому рестарту и аудиту.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository создает новый экземпляр репозитория
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create сохраняет новый алерт
func (r *AlertRepository) Create(ctx context.Context, alert models.Alert) error {
	paramsJSON, err := json.Marshal(alert.Recommended.Parameters)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alerts (id, position_ticket, title, description, urgency,
			action_type, action_params, created_at, dismissed, dismissed_at,
			exec_state, retry_count, failure_reason, external_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.db.ExecContext(ctx, query,
		alert.ID,
		alert.PositionTicket,
		alert.Title,
		alert.Description,
		alert.Urgency,
		string(alert.Recommended.Type),
		paramsJSON,
		alert.CreatedAt,
		alert.Dismissed,
		alert.DismissedAt,
		string(alert.ExecState),
		alert.RetryCount,
		alert.FailureReason,
		alert.ExternalRef,
	)
	return err
}

// GetByID возвращает алерт по id
func (r *AlertRepository) GetByID(ctx context.Context, alertID string) (*models.Alert, error) {
	query := selectAlerts + ` WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, alertID)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return alert, nil
}

// GetActive возвращает не dismissed алерты, новые первыми
func (r *AlertRepository) GetActive(ctx context.Context) ([]models.Alert, error) {
	query := selectAlerts + ` WHERE dismissed = false ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

// MarkDismissed помечает алерт отклонённым
func (r *AlertRepository) MarkDismissed(ctx context.Context, alertID string, at time.Time) error {
	query := `
		UPDATE alerts
		SET dismissed = true, dismissed_at = $1
		WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, at, alertID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateExecution обновляет аннотации исполнения алерта
func (r *AlertRepository) UpdateExecution(ctx context.Context, upd models.ExecutionUpdate) error {
	query := `
		UPDATE alerts
		SET exec_state = $1, retry_count = $2, external_ref = $3, failure_reason = $4
		WHERE id = $5`

	result, err := r.db.ExecContext(ctx, query,
		string(upd.State),
		upd.RetryCount,
		upd.ExternalRef,
		upd.FailureReason,
		upd.AlertID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete удаляет алерт (вызывается сборкой мусора)
func (r *AlertRepository) Delete(ctx context.Context, alertID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, alertID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Count возвращает общее количество алертов в таблице
func (r *AlertRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&count)
	return count, err
}

// ============ Вспомогательные ============

const selectAlerts = `
	SELECT id, position_ticket, title, description, urgency,
		action_type, action_params, created_at, dismissed, dismissed_at,
		exec_state, retry_count, failure_reason, external_ref
	FROM alerts`

// rowScanner покрывает *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	alert := &models.Alert{}
	var actionType, execState string
	var paramsJSON []byte
	var dismissedAt sql.NullTime

	err := row.Scan(
		&alert.ID,
		&alert.PositionTicket,
		&alert.Title,
		&alert.Description,
		&alert.Urgency,
		&actionType,
		&paramsJSON,
		&alert.CreatedAt,
		&alert.Dismissed,
		&dismissedAt,
		&execState,
		&alert.RetryCount,
		&alert.FailureReason,
		&alert.ExternalRef,
	)
	if err != nil {
		return nil, err
	}

	alert.Recommended.Type = models.ActionType(actionType)
	alert.ExecState = models.ExecutionState(execState)
	if dismissedAt.Valid {
		alert.DismissedAt = &dismissedAt.Time
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &alert.Recommended.Parameters); err != nil {
			return nil, err
		}
	}
	return alert, nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAlertNotFound
	}
	return nil
}
