package config

import (
	"errors"
	"testing"
	"time"

	"github.com/citafacil/citafacil/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func baseEnv() map[string]string {
	return map[string]string{"SESSION_SECRET": testSecret}
}

func TestLoadFrom_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(baseEnv())
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.AppEnv != "development" {
		t.Errorf("AppEnv = %q, want development", cfg.AppEnv)
	}
	if cfg.AppPort != 8080 {
		t.Errorf("AppPort = %d, want 8080", cfg.AppPort)
	}
	if cfg.StorageBackend != storage.BackendMemory {
		t.Errorf("StorageBackend = %q, want memory", cfg.StorageBackend)
	}
	if cfg.StorageNamespace != "citaFacil" {
		t.Errorf("StorageNamespace = %q, want citaFacil", cfg.StorageNamespace)
	}
	if cfg.ReminderLead != 15*time.Minute {
		t.Errorf("ReminderLead = %s, want 15m", cfg.ReminderLead)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %s, want 24h", cfg.SessionTTL)
	}
	if cfg.ElaborationModel != "gemini-2.0-flash" {
		t.Errorf("ElaborationModel = %q", cfg.ElaborationModel)
	}
	if cfg.MaxRequestBodySize != 1<<20 {
		t.Errorf("MaxRequestBodySize = %d, want 1MB", cfg.MaxRequestBodySize)
	}
	if cfg.WebhookEnabled() {
		t.Error("WebhookEnabled() = true, want false")
	}
	if len(cfg.WebhookEvents) != 1 || cfg.WebhookEvents[0] != "reminder" {
		t.Errorf("WebhookEvents = %v, want [reminder]", cfg.WebhookEvents)
	}
}

func TestLoadFrom_MissingSecret(t *testing.T) {
	t.Parallel()

	if _, err := LoadFrom(map[string]string{}); err == nil {
		t.Fatal("expected error for missing SESSION_SECRET, got nil")
	}
}

func TestLoadFrom_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		set  map[string]string
		want error
	}{
		{"weak secret", map[string]string{"SESSION_SECRET": "short"}, ErrWeakSecret},
		{"redis without url", map[string]string{"STORAGE_BACKEND": "redis"}, ErrMissingRedis},
		{"postgres without url", map[string]string{"STORAGE_BACKEND": "postgres"}, ErrMissingDatabase},
		{"unknown backend", map[string]string{"STORAGE_BACKEND": "sqlite"}, storage.ErrUnknownBackend},
		{"bad timezone", map[string]string{"TIMEZONE": "Mars/Olympus"}, ErrInvalidTimezone},
		{"bad port", map[string]string{"APP_PORT": "70000"}, ErrInvalidValue},
		{"negative lead", map[string]string{"REMINDER_LEAD": "-1m"}, ErrInvalidValue},
		{"zero lead", map[string]string{"REMINDER_LEAD": "0s"}, ErrInvalidValue},
		{"webhook without secret", map[string]string{"WEBHOOK_URL": "https://hooks.example.com/citas"}, ErrMissingWebhook},
		{"webhook with secret", map[string]string{"WEBHOOK_URL": "https://hooks.example.com/citas", "WEBHOOK_SECRET": "whsec"}, nil},
		{"redis with url", map[string]string{"STORAGE_BACKEND": "redis", "REDIS_URL": "redis://localhost:6379"}, nil},
		{"postgres with url", map[string]string{"STORAGE_BACKEND": "postgres", "DATABASE_URL": "postgres://localhost/citas"}, nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			environ := baseEnv()
			for k, v := range tt.set {
				environ[k] = v
			}
			_, err := LoadFrom(environ)
			if tt.want == nil {
				if err != nil {
					t.Errorf("LoadFrom() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("LoadFrom() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("APP_PORT", "9090")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AppPort != 9090 {
		t.Errorf("AppPort = %d, want 9090", cfg.AppPort)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Errorf("Location() = %v, %v", loc, err)
	}
}

func TestConfig_Location_DefaultsToLocal(t *testing.T) {
	t.Parallel()

	loc, err := (&Config{}).Location()
	if err != nil || loc != time.Local {
		t.Errorf("Location() = %v, %v; want Local", loc, err)
	}
}

func TestConfig_GetCORSAllowedOrigins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"http://localhost:3000", []string{"http://localhost:3000"}},
		{" http://localhost:3000 , *.citafacil.app ,", []string{"http://localhost:3000", "*.citafacil.app"}},
	}

	for _, tt := range tests {
		got := (&Config{CORSAllowedOrigins: tt.input}).GetCORSAllowedOrigins()
		if len(got) != len(tt.want) {
			t.Errorf("GetCORSAllowedOrigins(%q) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("GetCORSAllowedOrigins(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

func TestConfig_StorageOptions(t *testing.T) {
	t.Parallel()

	cfg := &Config{StorageBackend: "postgres", DatabaseURL: "postgres://x", StorageTable: "kv"}
	opts := cfg.StorageOptions()
	if opts.Backend != "postgres" || opts.DatabaseURL != "postgres://x" || opts.Table != "kv" {
		t.Errorf("StorageOptions() = %+v", opts)
	}
}

func TestConfig_Environment(t *testing.T) {
	t.Parallel()

	cfg := &Config{AppEnv: "production"}
	if !cfg.IsProduction() || cfg.IsDevelopment() {
		t.Error("production config misreported")
	}
}
