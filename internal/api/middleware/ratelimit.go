package middleware

import (
	"net/http"
	"strings"

	"riskhub/pkg/ratelimit"
)

// Категории лимитов запросов
const (
	CategoryRead    = "read"
	CategoryExecute = "execute"
)

// NewAPILimiter создаёт limiter с дефолтными лимитами API:
// чтение дёшево, исполнение уходит во внешнюю систему и ограничено жёстко.
func NewAPILimiter() *ratelimit.MultiLimiter {
	ml := ratelimit.NewMultiLimiter()
	ml.Add(CategoryRead, 50, 100)
	ml.Add(CategoryExecute, 2, 4)
	return ml
}

// RateLimit - middleware ограничения частоты запросов
//
// Запросы /execute попадают в категорию execute, остальные - read.
// Превышение лимита возвращает 429 Too Many Requests без ожидания:
// UI должен отступить, а не копить очередь.
func RateLimit(ml *ratelimit.MultiLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			category := CategoryRead
			if strings.HasSuffix(r.URL.Path, "/execute") {
				category = CategoryExecute
			}

			if !ml.Allow(category) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
