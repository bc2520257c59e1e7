package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "STORE", "KAFKA_BROKERS", "SESSION_TTL", "LOCK_TIMEOUT", "AUDIT_WORKERS", "SEED_FILE"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 3*time.Second, cfg.LockTimeout)
	assert.Equal(t, 4, cfg.AuditWorkers)
	assert.Empty(t, cfg.SeedFile)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("LOCK_TIMEOUT", "not-a-duration")
	t.Setenv("AUDIT_WORKERS", "-2")
	t.Setenv("SEED_FILE", "/etc/pos/seed.json")
	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 3*time.Second, cfg.LockTimeout)
	assert.Equal(t, 4, cfg.AuditWorkers)
	assert.Equal(t, "/etc/pos/seed.json", cfg.SeedFile)
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.Local, Config{ReportTZ: "Local"}.Location())
	assert.Equal(t, time.Local, Config{ReportTZ: "Nowhere/Invalid"}.Location())
	assert.Equal(t, "UTC", Config{ReportTZ: "UTC"}.Location().String())
}
