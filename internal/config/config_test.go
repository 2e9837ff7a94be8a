package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFLUENCE_URL", "https://example.atlassian.net")
	t.Setenv("OPENWEBUI_URL", "http://localhost:8080")
	t.Setenv("OPENWEBUI_API_KEY", "sk-test")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Backend != "openwebui" {
		t.Errorf("Expected openwebui backend, got %s", cfg.Backend)
	}
	if cfg.Export.AttachmentExtensions != DefaultAttachmentExtensions {
		t.Errorf("Expected default extensions, got %s", cfg.Export.AttachmentExtensions)
	}
	if !cfg.Export.BatchAdd {
		t.Error("Expected batch add enabled by default")
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("Expected 5 retries, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.MaxBackoff() != time.Minute {
		t.Errorf("Expected 60s ceiling, got %v", cfg.Retry.MaxBackoff())
	}
	codes, err := cfg.Retry.RetryableStatusCodes()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !reflect.DeepEqual(codes, []int{413, 429, 502, 503, 504}) {
		t.Errorf("Unexpected status codes: %v", codes)
	}
	if cfg.HTTP.Timeout() != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", cfg.HTTP.Timeout())
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("EXPORT_ATTACHMENT_EXTENSIONS", "md,pdf")
	t.Setenv("EXPORT_MAX_ATTACHMENT_SIZE_MB", "10")
	t.Setenv("EXPORT_BATCH_ADD", "false")
	t.Setenv("EXPORT_CONCURRENCY", "4")
	t.Setenv("RETRY_STATUS_CODES", "429, 503")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Export.AttachmentExtensions != "md,pdf" {
		t.Errorf("Expected overridden extensions, got %s", cfg.Export.AttachmentExtensions)
	}
	if cfg.Export.MaxAttachmentSizeMB != 10 {
		t.Errorf("Expected 10MB, got %d", cfg.Export.MaxAttachmentSizeMB)
	}
	if cfg.Export.BatchAdd {
		t.Error("Expected batch add disabled")
	}
	if cfg.Export.Concurrency != 4 {
		t.Errorf("Expected concurrency 4, got %d", cfg.Export.Concurrency)
	}
	codes, _ := cfg.Retry.RetryableStatusCodes()
	if !reflect.DeepEqual(codes, []int{429, 503}) {
		t.Errorf("Unexpected status codes: %v", codes)
	}
}

func TestLoadConfigFile(t *testing.T) {
	setBaseEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
export:
  output_path: /srv/export
retry:
  max_retries: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Export.OutputPath != "/srv/export" {
		t.Errorf("Expected output path from file, got %s", cfg.Export.OutputPath)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("Expected 3 retries from file, got %d", cfg.Retry.MaxRetries)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
	}{
		{
			name: "Missing API key",
			envVars: map[string]string{
				"CONFLUENCE_URL": "https://example.atlassian.net",
				"OPENWEBUI_URL":  "http://localhost:8080",
			},
		},
		{
			name: "Missing Confluence URL",
			envVars: map[string]string{
				"OPENWEBUI_URL":     "http://localhost:8080",
				"OPENWEBUI_API_KEY": "sk-test",
			},
		},
		{
			name: "Unknown backend",
			envVars: map[string]string{
				"CONFLUENCE_URL": "https://example.atlassian.net",
				"TARGET_BACKEND": "dropbox",
			},
		},
		{
			name: "Notion without parent page",
			envVars: map[string]string{
				"CONFLUENCE_URL": "https://example.atlassian.net",
				"TARGET_BACKEND": "notion",
				"NOTION_API_KEY": "secret",
			},
		},
		{
			name: "Bad status code list",
			envVars: map[string]string{
				"CONFLUENCE_URL":     "https://example.atlassian.net",
				"OPENWEBUI_URL":      "http://localhost:8080",
				"OPENWEBUI_API_KEY":  "sk-test",
				"RETRY_STATUS_CODES": "429,abc",
			},
		},
		{
			name: "Negative size",
			envVars: map[string]string{
				"CONFLUENCE_URL":                "https://example.atlassian.net",
				"OPENWEBUI_URL":                 "http://localhost:8080",
				"OPENWEBUI_API_KEY":             "sk-test",
				"EXPORT_MAX_ATTACHMENT_SIZE_MB": "-1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"CONFLUENCE_URL", "OPENWEBUI_URL", "OPENWEBUI_API_KEY"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			if _, err := Load(""); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoadLocal(t *testing.T) {
	for _, k := range []string{"CONFLUENCE_URL", "OPENWEBUI_URL", "OPENWEBUI_API_KEY"} {
		t.Setenv(k, "")
	}
	t.Setenv("HISTORY_DB", filepath.Join(t.TempDir(), "history.db"))

	if _, err := Load(""); err == nil {
		t.Fatal("Expected export configuration to require credentials")
	}

	cfg, err := LoadLocal("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.History.DB == "" {
		t.Error("Expected history database path to be loaded")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level, got %s", cfg.Log.Level)
	}

	t.Setenv("LOG_LEVEL", "loud")
	if _, err := LoadLocal(""); err == nil {
		t.Error("Expected invalid log level to be rejected")
	}
}
