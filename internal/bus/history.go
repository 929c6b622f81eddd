package bus

import (
	"strings"
	"sync"
	"time"

	"riskhub/internal/models"
)

// History - кольцевой буфер последних опубликованных событий
//
// Диагностический инструмент ("что происходило в последнюю минуту"):
// при переполнении старейшие события молча вытесняются. Payload хранится
// как есть, копирование не выполняется - события на шине immutable.
type History struct {
	mu     sync.RWMutex
	buf    []models.Event
	head   int // позиция следующей записи
	filled bool
}

// NewHistory создаёт буфер истории указанной ёмкости
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		buf: make([]models.Event, capacity),
	}
}

// Append добавляет событие, вытесняя старейшее при переполнении
func (h *History) Append(evt models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.head] = evt
	h.head = (h.head + 1) % len(h.buf)
	if h.head == 0 {
		h.filled = true
	}
}

// Len возвращает количество событий в буфере
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.filled {
		return len(h.buf)
	}
	return h.head
}

// Recent возвращает до limit последних событий, новые первыми.
// typePattern фильтрует по типу события ("" или "*" = все типы,
// поддерживается суффикс ".*" как в Subscribe).
func (h *History) Recent(limit int, typePattern string) []models.Event {
	return h.RecentSince(limit, typePattern, time.Time{})
}

// RecentSince дополнительно отсекает события старше since
// (нулевое since = без нижней границы). Буфер упорядочен по времени
// записи, поэтому обход останавливается на первом событии за границей.
func (h *History) RecentSince(limit int, typePattern string, since time.Time) []models.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.head
	if h.filled {
		size = len(h.buf)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]models.Event, 0, limit)
	// Идём от новейшего к старейшему
	for i := 1; i <= size && len(out) < limit; i++ {
		idx := (h.head - i + len(h.buf)) % len(h.buf)
		evt := h.buf[idx]
		if !since.IsZero() && evt.Timestamp.Before(since) {
			break
		}
		if typePattern != "" && typePattern != "*" && !matchPattern(typePattern, evt.Type) {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// matchPattern проверяет соответствие типа события шаблону подписки.
// Поддерживаются: точное совпадение, "prefix.*" и "*" (все события).
func matchPattern(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return pattern == eventType
}
