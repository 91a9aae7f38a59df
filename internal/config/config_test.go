package config

import "testing"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("GATEWAY_URL", "https://gw.hospital.local/api")
	t.Setenv("WS_BASE_URL", "wss://gw.hospital.local/ws")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8090" {
		t.Errorf("expected default port 8090, got %s", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("expected development default")
	}
}

func TestLoad_MissingGatewayURL(t *testing.T) {
	t.Setenv("GATEWAY_URL", "")
	t.Setenv("WS_BASE_URL", "wss://gw.hospital.local/ws")

	if _, err := Load(); err == nil {
		t.Error("expected error without GATEWAY_URL")
	}
}

func TestLoad_MissingWSBaseURL(t *testing.T) {
	t.Setenv("GATEWAY_URL", "https://gw.hospital.local/api")
	t.Setenv("WS_BASE_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected error without WS_BASE_URL")
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := &Config{
		GatewayURL: "https://gw.hospital.local/api",
		WSBaseURL:  "wss://gw.hospital.local/ws",
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_BadGatewayScheme(t *testing.T) {
	cfg := &Config{
		GatewayURL: "ftp://gw.hospital.local",
		WSBaseURL:  "wss://gw.hospital.local/ws",
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-http gateway scheme")
	}
}

func TestValidate_BadWSScheme(t *testing.T) {
	cfg := &Config{
		GatewayURL: "https://gw.hospital.local/api",
		WSBaseURL:  "https://gw.hospital.local/ws",
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-ws scheme")
	}
}

func TestValidate_TrailingSlash(t *testing.T) {
	cfg := &Config{
		GatewayURL: "https://gw.hospital.local/api",
		WSBaseURL:  "wss://gw.hospital.local/ws/",
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for trailing slash on WS_BASE_URL")
	}
}
