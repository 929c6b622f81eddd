package bus

import (
	"testing"
	"time"

	"riskhub/internal/models"
)

func TestHistory_EvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Append(models.Event{Type: "test.event", Payload: i})
	}

	if h.Len() != 3 {
		t.Fatalf("Len() = %d, ожидали 3", h.Len())
	}

	recent := h.Recent(10, "")
	// Остались 4, 3, 2 (новые первыми), 0 и 1 вытеснены
	want := []int{4, 3, 2}
	for i, w := range want {
		if recent[i].Payload.(int) != w {
			t.Errorf("позиция %d: payload %v, ожидали %d", i, recent[i].Payload, w)
		}
	}
}

func TestHistory_Limit(t *testing.T) {
	h := NewHistory(10)
	for i := 0; i < 6; i++ {
		h.Append(models.Event{Type: "test.event", Payload: i})
	}

	recent := h.Recent(2, "")
	if len(recent) != 2 {
		t.Fatalf("Recent(2): %d событий", len(recent))
	}
	if recent[0].Payload.(int) != 5 || recent[1].Payload.(int) != 4 {
		t.Errorf("ожидали [5 4], получили [%v %v]", recent[0].Payload, recent[1].Payload)
	}
}

func TestHistory_TypeFilter(t *testing.T) {
	h := NewHistory(10)
	h.Append(models.Event{Type: "signal.created"})
	h.Append(models.Event{Type: "risk.portfolio"})
	h.Append(models.Event{Type: "signal.enriched"})

	signals := h.Recent(10, "signal.*")
	if len(signals) != 2 {
		t.Errorf("фильтр signal.*: %d событий вместо 2", len(signals))
	}

	exact := h.Recent(10, "risk.portfolio")
	if len(exact) != 1 || exact[0].Type != "risk.portfolio" {
		t.Errorf("точный фильтр вернул %v", exact)
	}
}

func TestHistory_RecentSince(t *testing.T) {
	h := NewHistory(10)
	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.Append(models.Event{
			Type:      "test.event",
			Payload:   i,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	recent := h.RecentSince(10, "", base.Add(3*time.Minute))
	if len(recent) != 2 {
		t.Fatalf("RecentSince: %d событий вместо 2", len(recent))
	}
	if recent[0].Payload.(int) != 4 || recent[1].Payload.(int) != 3 {
		t.Errorf("ожидали [4 3], получили [%v %v]", recent[0].Payload, recent[1].Payload)
	}

	all := h.RecentSince(10, "", time.Time{})
	if len(all) != 5 {
		t.Errorf("нулевое since должно вернуть всё: %d событий", len(all))
	}
}

func TestHistory_Empty(t *testing.T) {
	h := NewHistory(5)
	if got := h.Recent(10, ""); len(got) != 0 {
		t.Errorf("пустая история вернула %d событий", len(got))
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"*", "anything.at.all", true},
		{"signal.created", "signal.created", true},
		{"signal.created", "signal.enriched", false},
		{"signal.*", "signal.created", true},
		{"signal.*", "signals.created", false},
		{"signal.*", "risk.portfolio", false},
		{"action.*", "action.execute_request", true},
	}

	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.eventType); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, ожидали %v", tt.pattern, tt.eventType, got, tt.want)
		}
	}
}
