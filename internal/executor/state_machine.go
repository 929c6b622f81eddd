package executor

import "riskhub/internal/models"

// ValidTransitions определяет допустимые переходы состояния исполнения
var ValidTransitions = map[models.ExecutionState][]models.ExecutionState{
	models.ExecStatePending:   {models.ExecStateExecuting},
	models.ExecStateExecuting: {models.ExecStateExecuted, models.ExecStateFailed},
	models.ExecStateFailed:    {models.ExecStatePending, models.ExecStateAbandoned}, // Pending при retry
	models.ExecStateExecuted:  {},                                                   // терминальное
	models.ExecStateAbandoned: {},                                                   // терминальное
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to models.ExecutionState) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для состояний без исходящих переходов
func IsTerminal(s models.ExecutionState) bool {
	return s == models.ExecStateExecuted || s == models.ExecStateAbandoned
}
