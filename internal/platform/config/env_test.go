package config

import "testing"

type testEnvConfig struct {
	Addr string `env:"HANDRAISE_TEST_ADDR" envDefault:":8080"`
	Name string `env:"HANDRAISE_TEST_NAME"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg testEnvConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %q", cfg.Addr)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("HANDRAISE_TEST_ADDR", ":9999")
	t.Setenv("HANDRAISE_TEST_NAME", "queue")

	var cfg testEnvConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("expected addr override :9999, got %q", cfg.Addr)
	}
	if cfg.Name != "queue" {
		t.Fatalf("expected name queue, got %q", cfg.Name)
	}
}

func TestParseEnvNilTarget(t *testing.T) {
	if err := ParseEnv(nil); err == nil {
		t.Fatal("expected error for nil target")
	}
}
