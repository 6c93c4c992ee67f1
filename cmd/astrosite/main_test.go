package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "secret")
	t.Setenv("SESSION_SECRET", "session")
	t.Setenv("SITE_NAME", "Stars")
	t.Setenv("BLOB_READ_WRITE_TOKEN", "tok")
	t.Setenv("CONTENT_TTL", "30s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, public, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Name != "Stars" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.Storage.BlobToken != "tok" {
		t.Errorf("BlobToken = %q", cfg.Storage.BlobToken)
	}
	if cfg.Storage.BlobAPIURL == "" {
		t.Error("BlobAPIURL should default")
	}
	if cfg.ContentTTL != 30*time.Second {
		t.Errorf("ContentTTL = %v", cfg.ContentTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.Addr != ":3000" || public != "public" {
		t.Errorf("defaults: addr %q public %q", cfg.Addr, public)
	}
}

func TestLoadConfigFlagsWin(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "secret")
	t.Setenv("SESSION_SECRET", "session")
	t.Setenv("ADDR", ":4000")

	cfg, public, err := loadConfig([]string{"--addr", ":5000", "--public", "static"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Addr != ":5000" {
		t.Errorf("Addr = %q, want flag value", cfg.Addr)
	}
	if public != "static" {
		t.Errorf("public = %q", public)
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("SESSION_SECRET", "session")
	path := filepath.Join(t.TempDir(), "astrosite.yaml")
	body := "ADMIN_PASSWORD_HASH: \"$2a$10$abcdefghijklmnopqrstuv\"\nSITE_URL: https://stars.example\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := loadConfig([]string{"--config", path})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.URL != "https://stars.example" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.AdminPasswordHash == "" {
		t.Error("AdminPasswordHash not read from file")
	}
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("ADMIN_PASSWORD_HASH", "")
	t.Setenv("SESSION_SECRET", "session")
	if _, _, err := loadConfig(nil); err == nil {
		t.Fatal("expected error without an admin secret")
	}

	t.Setenv("ADMIN_PASSWORD", "secret")
	t.Setenv("SESSION_SECRET", "")
	if _, _, err := loadConfig(nil); err == nil {
		t.Fatal("expected error without a session secret")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitList = %v", got)
	}
}
