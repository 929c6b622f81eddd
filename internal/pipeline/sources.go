package pipeline

import (
	"context"
	"sync"
	"time"
)

// sourceCache - кэш данных одного коллаборатора с ожиданием
//
// Put сохраняет свежие данные по символу и будит ожидающих.
// Wait возвращает свежие данные сразу, либо блокируется до их появления
// или истечения контекста. Так стадия обогащения честно ждёт медленного
// коллаборатора ровно до своего таймаута: опоздавшие данные не теряются,
// а остаются в кэше для следующего сигнала.
type sourceCache[T any] struct {
	mu      sync.Mutex
	data    map[string]cacheEntry[T]
	waiters map[string][]chan T
	ttl     time.Duration
}

type cacheEntry[T any] struct {
	val T
	at  time.Time
}

func newSourceCache[T any](ttl time.Duration) *sourceCache[T] {
	return &sourceCache[T]{
		data:    make(map[string]cacheEntry[T]),
		waiters: make(map[string][]chan T),
		ttl:     ttl,
	}
}

// Put сохраняет данные и доставляет их всем ожидающим по символу
func (c *sourceCache[T]) Put(symbol string, v T) {
	c.mu.Lock()
	c.data[symbol] = cacheEntry[T]{val: v, at: time.Now()}
	waiting := c.waiters[symbol]
	delete(c.waiters, symbol)
	c.mu.Unlock()

	// Каналы ожидающих буферизованы - send не блокируется
	for _, ch := range waiting {
		ch <- v
	}
}

// Get возвращает данные, если они есть и не устарели
func (c *sourceCache[T]) Get(symbol string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[symbol]
	if !ok || (c.ttl > 0 && time.Since(e.at) > c.ttl) {
		var zero T
		return zero, false
	}
	return e.val, true
}

// Wait возвращает свежие данные либо блокируется до Put или отмены ctx
func (c *sourceCache[T]) Wait(ctx context.Context, symbol string) (T, bool) {
	c.mu.Lock()
	if e, ok := c.data[symbol]; ok && (c.ttl <= 0 || time.Since(e.at) <= c.ttl) {
		c.mu.Unlock()
		return e.val, true
	}

	ch := make(chan T, 1)
	c.waiters[symbol] = append(c.waiters[symbol], ch)
	c.mu.Unlock()

	select {
	case v := <-ch:
		return v, true
	case <-ctx.Done():
		c.removeWaiter(symbol, ch)
		// Put мог успеть до removeWaiter - последняя проверка без блокировки
		select {
		case v := <-ch:
			return v, true
		default:
		}
		var zero T
		return zero, false
	}
}

func (c *sourceCache[T]) removeWaiter(symbol string, ch chan T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiting := c.waiters[symbol]
	for i, w := range waiting {
		if w == ch {
			c.waiters[symbol] = append(waiting[:i], waiting[i+1:]...)
			break
		}
	}
	if len(c.waiters[symbol]) == 0 {
		delete(c.waiters, symbol)
	}
}
