package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STUCK_TIMEOUT_MINUTES", "")
	t.Setenv("MAX_PROCESSING_RETRIES", "")
	t.Setenv("MIN_EXTRACTED_CHARS", "")
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("AUTH_ENABLED", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StuckTimeoutMinutes != 10 || cfg.MaxProcessingRetries != 3 {
		t.Fatalf("unexpected retry defaults: %d %d", cfg.StuckTimeoutMinutes, cfg.MaxProcessingRetries)
	}
	if cfg.MinExtractedChars != 50 {
		t.Fatalf("expected default min extracted chars 50, got %d", cfg.MinExtractedChars)
	}
	if cfg.EmbeddingDimensions != 1536 {
		t.Fatalf("expected default embedding dimensions 1536, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.StorageBackend != "local" || cfg.AuthEnabled {
		t.Fatalf("unexpected storage/auth defaults: %q %v", cfg.StorageBackend, cfg.AuthEnabled)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STUCK_TIMEOUT_MINUTES", "15")
	t.Setenv("SEARCH_MIN_SCORE", "0.35")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("CHUNK_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StuckTimeout().Minutes() != 15 {
		t.Fatalf("expected stuck timeout 15m, got %v", cfg.StuckTimeout())
	}
	if cfg.SearchMinScore != 0.35 || !cfg.AuthEnabled || cfg.MaxUploadBytes != 1024 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ChunkSize != 900 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.ChunkSize)
	}
}

func TestLoadAppliesYAMLBeforeEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docvault.yaml")
	content := "STORAGE_BACKEND: gcs\nGCS_BUCKET: course-files\nOCR_MAX_PAGES: 7\nvision_enabled: true\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("GCS_BUCKET", "")
	t.Setenv("VISION_ENABLED", "")
	t.Setenv("OCR_MAX_PAGES", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StorageBackend != "gcs" || cfg.GCSBucket != "course-files" || !cfg.VisionEnabled {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.OCRMaxPages != 3 {
		t.Fatalf("environment should win over file, got %d", cfg.OCRMaxPages)
	}
}

func TestLoadScheduleCanBeDisabled(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STUCK_SWEEP_SCHEDULE", "")
	t.Setenv("SESSION_CLEANUP_SCHEDULE", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StuckSweepSchedule != "" {
		t.Fatalf("empty STUCK_SWEEP_SCHEDULE should disable the sweep, got %q", cfg.StuckSweepSchedule)
	}
	if cfg.SessionCleanupSchedule != "" {
		t.Fatalf("off should disable session cleanup, got %q", cfg.SessionCleanupSchedule)
	}
}

func TestLoadScheduleDefaultsWhenUnset(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STUCK_SWEEP_SCHEDULE", "")
	t.Setenv("SESSION_CLEANUP_SCHEDULE", "")
	if err := os.Unsetenv("STUCK_SWEEP_SCHEDULE"); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if err := os.Unsetenv("SESSION_CLEANUP_SCHEDULE"); err != nil {
		t.Fatalf("unset: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StuckSweepSchedule != "@every 1m" || cfg.SessionCleanupSchedule != "@hourly" {
		t.Fatalf("unexpected schedule defaults: %q %q", cfg.StuckSweepSchedule, cfg.SessionCleanupSchedule)
	}
}

func TestLoadScheduleFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docvault.yaml")
	content := "STUCK_SWEEP_SCHEDULE: \"\"\nSESSION_CLEANUP_SCHEDULE: \"@every 30m\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STUCK_SWEEP_SCHEDULE", "")
	t.Setenv("SESSION_CLEANUP_SCHEDULE", "")
	if err := os.Unsetenv("STUCK_SWEEP_SCHEDULE"); err != nil {
		t.Fatalf("unset: %v", err)
	}
	if err := os.Unsetenv("SESSION_CLEANUP_SCHEDULE"); err != nil {
		t.Fatalf("unset: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StuckSweepSchedule != "" {
		t.Fatalf("empty schedule in file should disable the sweep, got %q", cfg.StuckSweepSchedule)
	}
	if cfg.SessionCleanupSchedule != "@every 30m" {
		t.Fatalf("expected file schedule, got %q", cfg.SessionCleanupSchedule)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("a: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		StorageBackend:       "local",
		StoragePath:          "./data",
		EmbeddingDimensions:  1536,
		ChunkSize:            900,
		ChunkOverlap:         150,
		MaxUploadBytes:       1,
		MaxProcessBytes:      1,
		MaxProcessingRetries: 3,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	gcs := base
	gcs.StorageBackend = "gcs"
	if err := gcs.Validate(); err == nil || !strings.Contains(err.Error(), "GCS_BUCKET") {
		t.Fatalf("expected bucket error, got %v", err)
	}

	bad := base
	bad.StorageBackend = "s3"
	bad.ChunkOverlap = 900
	bad.SearchMinScore = 2
	err := bad.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{"STORAGE_BACKEND", "CHUNK_OVERLAP", "SEARCH_MIN_SCORE"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %s in %v", want, err)
		}
	}
}
