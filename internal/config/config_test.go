package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		if err == nil {
			t.Fatal("expected error for explicit missing config file")
		}

		// No explicit file: defaults apply.
		cfg, err = loadIsolated(t, "")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.PDFDPI != 200 {
			t.Errorf("PDFDPI = %d, want 200", cfg.PDFDPI)
		}
		if cfg.MaxBatchSize != 20 {
			t.Errorf("MaxBatchSize = %d, want 20", cfg.MaxBatchSize)
		}
		if cfg.Timeout() != 60*time.Second {
			t.Errorf("Timeout() = %v, want 60s", cfg.Timeout())
		}
	})

	t.Run("config file values", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		content := "pdf_dpi: 150\nmodel_name: test-model\nmax_concurrency: 2\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.PDFDPI != 150 {
			t.Errorf("PDFDPI = %d, want 150", cfg.PDFDPI)
		}
		if cfg.ModelName != "test-model" {
			t.Errorf("ModelName = %q, want test-model", cfg.ModelName)
		}
		// Unset keys fall back to defaults.
		if cfg.MaxRetries != 3 {
			t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(path, []byte("pdf_dpi: 150\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		t.Setenv("PDF_DPI", "300")
		t.Setenv("VLM_API_KEY", "secret")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.PDFDPI != 300 {
			t.Errorf("PDFDPI = %d, want 300 (env wins)", cfg.PDFDPI)
		}
		if cfg.VLMAPIKey != "secret" {
			t.Errorf("VLMAPIKey = %q, want secret", cfg.VLMAPIKey)
		}
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(path, []byte("pdf_dpi: 10\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		if _, err := Load(path); err == nil {
			t.Error("expected validation error for pdf_dpi=10")
		}
	})
}

// loadIsolated runs Load from an empty working directory so a developer's
// local config.yaml cannot leak into the test.
func loadIsolated(t *testing.T, cfgFile string) (*Config, error) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
	t.Setenv("HOME", t.TempDir())
	return Load(cfgFile)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"dpi too low", func(c *Config) { c.PDFDPI = 10 }, true},
		{"dpi too high", func(c *Config) { c.PDFDPI = 1200 }, true},
		{"quality zero", func(c *Config) { c.ImageQuality = 0 }, true},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, true},
		{"zero retries ok", func(c *Config) { c.MaxRetries = 0 }, false},
		{"zero batch", func(c *Config) { c.MaxBatchSize = 0 }, true},
		{"zero concurrency", func(c *Config) { c.MaxConcurrency = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	// Round-trips through Load.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PDFDPI != 200 {
		t.Errorf("PDFDPI = %d, want 200", cfg.PDFDPI)
	}

	// Refuses to overwrite.
	if err := WriteDefault(path); err == nil {
		t.Error("expected error when config file already exists")
	}
}
