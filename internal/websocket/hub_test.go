package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"riskhub/internal/models"
	"riskhub/pkg/logger"
)

// ============================================================
// Hub Tests
// ============================================================

type wireMessage struct {
	Type    string       `json:"type"`
	Data    models.Alert `json:"data"`
	AlertID string       `json:"alert_id"`
}

func newTestHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	return hub, cancel
}

// newTestClient создает клиента без реального соединения:
// тесты читают напрямую из канала send
func newTestClient(bufferSize int) *Client {
	return &Client{send: make(chan []byte, bufferSize)}
}

func registerAndWait(t *testing.T, hub *Hub, client *Client, wantClients int) {
	t.Helper()
	hub.register <- client
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != wantClients {
		if time.Now().After(deadline) {
			t.Fatalf("клиент не зарегистрирован: %d вместо %d", hub.ClientCount(), wantClients)
		}
		time.Sleep(time.Millisecond)
	}
}

func receiveMessage(t *testing.T, client *Client) wireMessage {
	t.Helper()
	select {
	case raw, ok := <-client.send:
		if !ok {
			t.Fatal("канал клиента закрыт")
		}
		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("невалидный JSON в сообщении: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("сообщение не пришло за секунду")
	}
	return wireMessage{}
}

func expectSilence(t *testing.T, client *Client) {
	t.Helper()
	select {
	case raw := <-client.send:
		t.Fatalf("неожиданное сообщение: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func testAlert(id string) models.Alert {
	return models.Alert{
		ID:        id,
		Title:     "risk alert " + id,
		Urgency:   3,
		CreatedAt: time.Now(),
		ExecState: models.ExecStatePending,
	}
}

func TestHubBroadcastAlertReachesClients(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	c1 := newTestClient(clientSendBufferSize)
	c2 := newTestClient(clientSendBufferSize)
	registerAndWait(t, hub, c1, 1)
	registerAndWait(t, hub, c2, 2)

	hub.BroadcastAlert(testAlert("a-1"))

	for _, c := range []*Client{c1, c2} {
		msg := receiveMessage(t, c)
		if msg.Type != string(MessageTypeAlert) {
			t.Errorf("type = %s", msg.Type)
		}
		if msg.Data.ID != "a-1" {
			t.Errorf("алерт %s вместо a-1", msg.Data.ID)
		}
	}
}

func TestHubAlertDedupPerConnection(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	client := newTestClient(clientSendBufferSize)
	registerAndWait(t, hub, client, 1)

	alert := testAlert("a-1")
	hub.BroadcastAlert(alert)
	hub.BroadcastAlert(alert) // то же состояние - дубль подавляется

	receiveMessage(t, client)
	expectSilence(t, client)

	// Смена статуса исполнения проходит дедупликацию
	alert.ExecState = models.ExecStateExecuting
	hub.BroadcastAlert(alert)
	msg := receiveMessage(t, client)
	if msg.Data.ExecState != models.ExecStateExecuting {
		t.Errorf("exec_state = %s", msg.Data.ExecState)
	}
}

func TestHubBacklogReplayOnRegister(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	backlog := []models.Alert{testAlert("b-1"), testAlert("b-2")}
	hub.SetBacklogProvider(func() []models.Alert { return backlog })

	client := newTestClient(clientSendBufferSize)
	registerAndWait(t, hub, client, 1)

	got := map[string]bool{}
	got[receiveMessage(t, client).Data.ID] = true
	got[receiveMessage(t, client).Data.ID] = true
	if !got["b-1"] || !got["b-2"] {
		t.Errorf("backlog replay вернул %v", got)
	}

	// Живой broadcast алерта из backlog'а не дублируется
	hub.BroadcastAlert(backlog[0])
	expectSilence(t, client)
}

func TestHubSlowClientRemoved(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	client := newTestClient(1)
	registerAndWait(t, hub, client, 1)

	// Первое сообщение заполняет буфер, второе переполняет
	hub.BroadcastPortfolioRisk(models.PortfolioRisk{Score: 10})
	hub.BroadcastPortfolioRisk(models.PortfolioRisk{Score: 20})

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("медленный клиент не удалён")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHubMessageTypes(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	client := newTestClient(clientSendBufferSize)
	registerAndWait(t, hub, client, 1)

	hub.BroadcastAlertDismissed("a-1")
	msg := receiveMessage(t, client)
	if msg.Type != string(MessageTypeAlertDismissed) || msg.AlertID != "a-1" {
		t.Errorf("dismissed сообщение: %+v", msg)
	}

	hub.BroadcastPortfolioRisk(models.PortfolioRisk{Score: 42, Level: models.RiskMedium})
	if msg := receiveMessage(t, client); msg.Type != string(MessageTypePortfolioRisk) {
		t.Errorf("type = %s", msg.Type)
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub, cancel := newTestHub(t)

	client := newTestClient(clientSendBufferSize)
	registerAndWait(t, hub, client, 1)

	cancel()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("ожидали закрытый канал, получили сообщение")
		}
	case <-time.After(time.Second):
		t.Error("канал клиента не закрыт после остановки")
	}
}

func TestOriginCheckerCheck(t *testing.T) {
	restricted := &OriginChecker{
		allowedOrigins: map[string]struct{}{"https://example.com": {}},
	}

	tests := []struct {
		name    string
		checker *OriginChecker
		origin  string
		want    bool
	}{
		{"empty origin allowed", restricted, "", true},
		{"listed origin", restricted, "https://example.com", true},
		{"unknown origin", restricted, "https://evil.com", false},
		{"allow all", &OriginChecker{allowAll: true}, "https://anything.io", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.checker.Check(tt.origin); got != tt.want {
				t.Errorf("Check(%q) = %v, ожидали %v", tt.origin, got, tt.want)
			}
		})
	}
}
