package websocket

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"riskhub/internal/models"
)

// jsonFast - drop-in замена encoding/json без рефлексии на горячем пути
var jsonFast = jsoniter.ConfigCompatibleWithStandardLibrary

// ============ ОПТИМИЗАЦИЯ: sync.Pool для JSON буферов ============
// Убирает аллокации при каждом Broadcast

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512)) // начальный размер 512 байт
	},
}

// envelope - сериализованное сообщение для рассылки.
//
// dedupKey непустой для сообщений-алертов: цикл Run использует его,
// чтобы не отправить алерт в одном и том же состоянии дважды в одно
// соединение. Это закрывает гонку между replay backlog'а при
// подключении и живым broadcast того же алерта. Изменение статуса
// исполнения меняет ключ и проходит дедупликацию свободно.
type envelope struct {
	dedupKey string
	data     []byte
}

// alertDedupKey строит ключ дедупликации по id и состоянию исполнения
func alertDedupKey(alert models.Alert) string {
	return fmt.Sprintf("%s/%s/%d", alert.ID, alert.ExecState, alert.RetryCount)
}

// BacklogProvider возвращает активные алерты для replay новому подписчику
type BacklogProvider func() []models.Alert

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Центральный менеджер для push-доставки алертов и риска портфеля
// на frontend без необходимости polling.
//
// Функции:
// - Регистрация новых WebSocket клиентов
// - Replay backlog'а активных алертов новому подписчику
// - Broadcast сообщений всем активным клиентам
// - Дедупликация алертов per-соединение (гонка backlog/broadcast)
// - Очистка отключенных и медленных соединений
// - Потокобезопасная работа с клиентами (sync.RWMutex)
//
// Типы сообщений:
// - alert: новый алерт или обновление статуса исполнения
// - alertDismissed: алерт отклонён
// - portfolioRisk: агрегированный риск портфеля
//
// Использование:
// 1. Создать hub: hub := NewHub(log)
// 2. Запустить в горутине: go hub.Run(ctx)
// 3. Отправлять сообщения: hub.BroadcastAlert(alert)
type Hub struct {
	log *zap.Logger

	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan envelope

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex

	// Источник backlog'а (диспетчер алертов), может быть nil
	backlogMu sync.RWMutex
	backlog   BacklogProvider
}

// NewHub создает новый Hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetBacklogProvider задаёт источник активных алертов для replay
// новым подписчикам. Вызывается один раз при сборке сервера.
func (h *Hub) SetBacklogProvider(p BacklogProvider) {
	h.backlogMu.Lock()
	h.backlog = p
	h.backlogMu.Unlock()
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run(ctx)
// Обрабатывает регистрацию, отмену регистрации и broadcast.
// Карты seen клиентов трогает только эта горутина.
//
// ОПТИМИЗАЦИЯ: при broadcast копируем список под коротким RLock,
// отправляем без блокировки, медленных клиентов удаляем под Write Lock
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			client.seen = make(map[string]struct{})
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.replayBacklog(client)
			ClientsConnected.Set(float64(total))
			h.log.Info("websocket клиент подключен", zap.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			ClientsConnected.Set(float64(total))
			h.log.Info("websocket клиент отключен", zap.Int("clients", total))

		case env := <-h.broadcast:
			// Копируем список клиентов под коротким RLock
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			// Отправляем без блокировки (не блокируем register/unregister)
			var toRemove []*Client
			for _, client := range clients {
				if env.dedupKey != "" {
					if _, dup := client.seen[env.dedupKey]; dup {
						continue
					}
					client.seen[env.dedupKey] = struct{}{}
				}
				select {
				case client.send <- env.data:
					MessagesSent.Inc()
				default:
					// Клиент не успевает - помечаем для удаления
					toRemove = append(toRemove, client)
				}
			}

			// Удаляем медленных клиентов под Write Lock
			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				SlowClientsDropped.Add(float64(len(toRemove)))
				ClientsConnected.Set(float64(total))
				h.log.Warn("удалены медленные websocket клиенты",
					zap.Int("removed", len(toRemove)), zap.Int("clients", total))
			}
		}
	}
}

// replayBacklog отправляет активные алерты только что подключенному
// клиенту и помечает их seen, чтобы параллельный broadcast не продублировал
func (h *Hub) replayBacklog(client *Client) {
	h.backlogMu.RLock()
	provider := h.backlog
	h.backlogMu.RUnlock()
	if provider == nil {
		return
	}

	for _, alert := range provider() {
		data, err := marshalMessage(NewAlertMessage(alert))
		if err != nil {
			h.log.Error("backlog алерт не сериализован", zap.String("alert_id", alert.ID), zap.Error(err))
			continue
		}
		client.seen[alertDedupKey(alert)] = struct{}{}
		select {
		case client.send <- data:
			MessagesSent.Inc()
		default:
			// Буфер полон сразу после подключения: остаток backlog'а
			// клиент доберёт через REST
			return
		}
	}
}

// ============ Broadcast API (реализация dispatcher.AlertBroadcaster) ============

// BroadcastAlert отправляет алерт всем клиентам.
// Один и тот же алерт в одном состоянии не попадает в соединение дважды.
func (h *Hub) BroadcastAlert(alert models.Alert) {
	h.publish(alertDedupKey(alert), NewAlertMessage(alert))
}

// BroadcastAlertDismissed отправляет уведомление об отклонении алерта
func (h *Hub) BroadcastAlertDismissed(alertID string) {
	h.publish("", NewAlertDismissedMessage(alertID))
}

// BroadcastPortfolioRisk отправляет агрегированный риск портфеля
func (h *Hub) BroadcastPortfolioRisk(p models.PortfolioRisk) {
	h.publish("", NewPortfolioRiskMessage(p))
}

func (h *Hub) publish(dedupKey string, msg interface{}) {
	data, err := marshalMessage(msg)
	if err != nil {
		h.log.Error("websocket сообщение не сериализовано", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- envelope{dedupKey: dedupKey, data: data}:
	default:
		// Канал рассылки переполнен: push теряется, UI догонит через REST
		MessagesDropped.Inc()
	}
}

// marshalMessage сериализует сообщение через буфер из пула
// ОПТИМИЗАЦИЯ: jsoniter + sync.Pool убирают аллокации на горячем пути
func marshalMessage(msg interface{}) ([]byte, error) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := jsonFast.NewEncoder(buf).Encode(msg); err != nil {
		jsonBufferPool.Put(buf)
		return nil, err
	}

	// Убираем trailing newline от Encode
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Копируем данные (буфер вернётся в пул)
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)

	jsonBufferPool.Put(buf)
	return msgCopy, nil
}

// closeAll закрывает все соединения при остановке сервера
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	ClientsConnected.Set(0)
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
