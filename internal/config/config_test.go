package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.MaxConns != 10 {
		t.Errorf("Database.MaxConns = %d, want %d", cfg.Database.MaxConns, 10)
	}
	if cfg.Upload.MaxRows != 100000 {
		t.Errorf("Upload.MaxRows = %d, want %d", cfg.Upload.MaxRows, 100000)
	}
	if cfg.Upload.Timeout != 10*time.Minute {
		t.Errorf("Upload.Timeout = %v, want %v", cfg.Upload.Timeout, 10*time.Minute)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("UPLOAD_MAX_ROWS", "500")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.URL != "postgres://localhost/test" {
		t.Errorf("Database.URL = %q, want %q", cfg.Database.URL, "postgres://localhost/test")
	}
	if cfg.Database.MaxConns != 25 {
		t.Errorf("Database.MaxConns = %d, want %d", cfg.Database.MaxConns, 25)
	}
	if cfg.Upload.MaxRows != 500 {
		t.Errorf("Upload.MaxRows = %d, want %d", cfg.Upload.MaxRows, 500)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	t.Setenv("DB_URL", "postgres://alt/test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "postgres://alt/test" {
		t.Errorf("Database.URL = %q, want %q", cfg.Database.URL, "postgres://alt/test")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "zero max rows",
			env:  map[string]string{"UPLOAD_MAX_ROWS": "0"},
		},
		{
			name: "bad log level",
			env:  map[string]string{"LOG_LEVEL": "loud"},
		},
		{
			name: "max conns below min conns",
			env: map[string]string{
				"DATABASE_URL": "postgres://localhost/test",
				"DB_MAX_CONNS": "1",
				"DB_MIN_CONNS": "5",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Errorf("Load() succeeded, want validation error")
			}
		})
	}
}
