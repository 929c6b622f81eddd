package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() с дефолтами вернул ошибку: %v", err)
	}

	if cfg.Bus.QueueSize != 1024 {
		t.Errorf("Bus.QueueSize = %d, ожидали 1024", cfg.Bus.QueueSize)
	}
	if cfg.Enrichment.StageTimeout != 200*time.Millisecond {
		t.Errorf("Enrichment.StageTimeout = %v, ожидали 200ms", cfg.Enrichment.StageTimeout)
	}
	if cfg.Enrichment.DedupWindow != 5*time.Minute {
		t.Errorf("Enrichment.DedupWindow = %v, ожидали 5m", cfg.Enrichment.DedupWindow)
	}
	if cfg.Alerts.VisibleLimit != 5 {
		t.Errorf("Alerts.VisibleLimit = %d, ожидали 5", cfg.Alerts.VisibleLimit)
	}
	if cfg.Executor.MaxRetries != 3 {
		t.Errorf("Executor.MaxRetries = %d, ожидали 3", cfg.Executor.MaxRetries)
	}

	th := cfg.Risk.Thresholds
	if th.Medium != 25 || th.High != 50 || th.Critical != 75 {
		t.Errorf("пороги риска = %v/%v/%v, ожидали 25/50/75", th.Medium, th.High, th.Critical)
	}
}

func TestLoad_InvalidThresholdOrder(t *testing.T) {
	os.Setenv("RISK_THRESHOLD_MEDIUM", "80")
	defer os.Unsetenv("RISK_THRESHOLD_MEDIUM")

	if _, err := Load(); err == nil {
		t.Error("ожидали ошибку при medium > high")
	}
}

func TestLoad_ZeroWeights(t *testing.T) {
	for _, k := range []string{"RISK_WEIGHT_EXPOSURE", "RISK_WEIGHT_LOSS", "RISK_WEIGHT_VOLATILITY", "RISK_WEIGHT_SIGNAL"} {
		os.Setenv(k, "0")
		defer os.Unsetenv(k)
	}

	if _, err := Load(); err == nil {
		t.Error("ожидали ошибку при всех нулевых весах")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("BUS_QUEUE_SIZE", "64")
	os.Setenv("ENRICH_STAGE_TIMEOUT", "150ms")
	defer os.Unsetenv("BUS_QUEUE_SIZE")
	defer os.Unsetenv("ENRICH_STAGE_TIMEOUT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.Bus.QueueSize != 64 {
		t.Errorf("Bus.QueueSize = %d, ожидали 64", cfg.Bus.QueueSize)
	}
	if cfg.Enrichment.StageTimeout != 150*time.Millisecond {
		t.Errorf("StageTimeout = %v, ожидали 150ms", cfg.Enrichment.StageTimeout)
	}
}

func TestGetEnvAsInt_Malformed(t *testing.T) {
	os.Setenv("TEST_INT_VALUE", "not-a-number")
	defer os.Unsetenv("TEST_INT_VALUE")

	if got := getEnvAsInt("TEST_INT_VALUE", 7); got != 7 {
		t.Errorf("некорректное значение: ожидали дефолт 7, получили %d", got)
	}
}
