package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestGraphConfig_EmptyDriverDefaultsSQLite(t *testing.T) {
	cfg := GraphConfig{Driver: "", Path: "./g.db"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty driver should default: %v", err)
	}
	if cfg.Driver != GraphDriverSQLite {
		t.Errorf("driver = %q, want %q", cfg.Driver, GraphDriverSQLite)
	}
}

func TestGraphConfig_SQLiteRequiresPath(t *testing.T) {
	cfg := GraphConfig{Driver: "sqlite", Path: ""}
	if err := cfg.Validate(); err == nil {
		t.Fatal("sqlite driver without path should fail")
	}
}

func TestGraphConfig_MemoryNeedsNoPath(t *testing.T) {
	cfg := GraphConfig{Driver: "memory"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory driver should pass without path: %v", err)
	}
}

func TestEmbeddingConfig_DisabledWhenNoBaseURL(t *testing.T) {
	cfg := EmbeddingConfig{}
	if cfg.Enabled() {
		t.Error("empty base_url should be disabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled embedding should validate: %v", err)
	}
}

func TestEmbeddingConfig_EnabledRequiresModelAndDims(t *testing.T) {
	cfg := EmbeddingConfig{BaseURL: "http://localhost:11434/v1"}
	if !cfg.Enabled() {
		t.Fatal("base_url set should mean enabled")
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled embedding without model should fail")
	}

	cfg.Model = "nomic-embed-text"
	cfg.Dimensions = 768
	if err := cfg.Validate(); err != nil {
		t.Fatalf("complete embedding config should pass: %v", err)
	}
}

func TestSyncConfig_NegativeDebounce(t *testing.T) {
	cfg := SyncConfig{Debounce: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative debounce should fail")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}
