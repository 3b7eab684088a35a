package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return p
}

// TestGetConfig tests the singleton pattern
func TestGetConfig(t *testing.T) {
	Reset()

	config1 := GetConfig()
	config2 := GetConfig()
	if config1 != config2 {
		t.Error("GetConfig should return the same singleton instance")
	}

	if config1.Server.Port != 8000 {
		t.Errorf("Expected default port 8000, got %d", config1.Server.Port)
	}
	if config1.Checker.UniformTraversal {
		t.Error("Expected arithmetic-only traversal by default")
	}
	if config1.Checker.MaxDepth != 256 {
		t.Errorf("Expected default max depth 256, got %d", config1.Checker.MaxDepth)
	}
	if err := config1.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

// TestDecodeInvalidExtension tests file extension validation
func TestDecodeInvalidExtension(t *testing.T) {
	Reset()

	tests := []struct {
		name     string
		filename string
	}{
		{"JSON extension", "config.json"},
		{"TXT extension", "config.txt"},
		{"No extension", "config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Decode(tt.filename)
			if err == nil {
				t.Fatalf("Expected error for %s, got nil", tt.filename)
			}
			expectedMsg := "file must be a .yaml or .yml file"
			if err.Error() != expectedMsg {
				t.Errorf("Expected error '%s', got '%s'", expectedMsg, err.Error())
			}
		})
	}
}

func TestDecodeMissingFile(t *testing.T) {
	Reset()
	if err := Decode("nonexistent.yaml"); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestDecodeInvalidYAML(t *testing.T) {
	Reset()
	p := writeTemp(t, "invalid.yaml", "server: [port: 1\n")
	if err := Decode(p); err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

// TestDecodePartialOverride tests that keys missing from the file keep their defaults
func TestDecodePartialOverride(t *testing.T) {
	Reset()
	p := writeTemp(t, "partial.yml", `
server:
  port: 9090
checker:
  uniform_traversal: true
`)
	if err := Decode(p); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	config := GetConfig()
	if config.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", config.Server.Port)
	}
	if config.Server.Host != "localhost" {
		t.Errorf("Expected host to stay 'localhost', got %s", config.Server.Host)
	}
	if !config.Checker.UniformTraversal {
		t.Error("Expected uniform traversal to be enabled")
	}
	if config.Checker.MaxDepth != 256 {
		t.Errorf("Expected max depth to stay 256, got %d", config.Checker.MaxDepth)
	}
}

// TestDecodeFullOverride tests that all values can be overridden
func TestDecodeFullOverride(t *testing.T) {
	Reset()
	p := writeTemp(t, "full.yaml", `
server:
  port: 7000
  host: 0.0.0.0
  max_request_size_mb: 16
catalog:
  paths:
    - ./catalog.yaml
    - s3://schemas/orders.parquet
  object_store:
    provider: minio
    endpoint: localhost:9000
    region: eu-west-1
    access_key: key
    secret_key: secret
    use_ssl: false
    max_download_size_mb: 2
checker:
  fail_fast: true
  uniform_traversal: true
  max_depth: 32
log:
  level: debug
  format: json
  output: stdout
`)
	if err := Decode(p); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	config := GetConfig()

	if config.Server.Port != 7000 || config.Server.Host != "0.0.0.0" || config.Server.MaxRequestSizeMB != 16 {
		t.Errorf("server section not applied: %+v", config.Server)
	}
	if len(config.Catalog.Paths) != 2 || config.Catalog.Paths[1] != "s3://schemas/orders.parquet" {
		t.Errorf("catalog paths not applied: %v", config.Catalog.Paths)
	}
	store := config.Catalog.ObjectStore
	if store.Provider != "minio" || store.Endpoint != "localhost:9000" || store.Region != "eu-west-1" ||
		store.AccessKey != "key" || store.SecretKey != "secret" || store.UseSSL || store.MaxDownloadSizeMB != 2 {
		t.Errorf("object store section not applied: %+v", store)
	}
	if !config.Checker.FailFast || !config.Checker.UniformTraversal || config.Checker.MaxDepth != 32 {
		t.Errorf("checker section not applied: %+v", config.Checker)
	}
	if config.Log.Level != "debug" || config.Log.Format != "json" || config.Log.Output != "stdout" {
		t.Errorf("log section not applied: %+v", config.Log)
	}
	if config.MaxRequestBytes() != 16*1024*1024 {
		t.Errorf("Expected 16MB in bytes, got %d", config.MaxRequestBytes())
	}
	if config.MaxDownloadBytes() != 2*1024*1024 {
		t.Errorf("Expected 2MB in bytes, got %d", config.MaxDownloadBytes())
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	Reset()
	env := map[string]string{
		"SEMA_SERVER_PORT":               "9191",
		"SEMA_CATALOG_PATHS":             "a.yaml, s3://b/c.csv ,",
		"SEMA_OBJECT_STORE_SECRET_KEY":   "hunter2",
		"SEMA_CHECKER_FAIL_FAST":         "true",
		"SEMA_CHECKER_UNIFORM_TRAVERSAL": "1",
		"SEMA_LOG_LEVEL":                 "warn",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	config := GetConfig()
	if err := applyEnv(config, lookup); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if config.Server.Port != 9191 {
		t.Errorf("Expected port 9191, got %d", config.Server.Port)
	}
	if len(config.Catalog.Paths) != 2 || config.Catalog.Paths[1] != "s3://b/c.csv" {
		t.Errorf("Expected two trimmed paths, got %v", config.Catalog.Paths)
	}
	if config.Catalog.ObjectStore.SecretKey != "hunter2" {
		t.Errorf("secret key not applied")
	}
	if !config.Checker.FailFast || !config.Checker.UniformTraversal {
		t.Errorf("checker flags not applied: %+v", config.Checker)
	}
	if config.Log.Level != "warn" {
		t.Errorf("Expected level warn, got %s", config.Log.Level)
	}

	bad := func(k string) (string, bool) {
		if k == "SEMA_SERVER_PORT" {
			return "eighty", true
		}
		return "", false
	}
	if err := applyEnv(config, bad); err == nil {
		t.Error("Expected error for non numeric port")
	}
}

func TestLoadEnvFile(t *testing.T) {
	Reset()
	p := writeTemp(t, "test.env", "SEMA_CHECKER_MAX_DEPTH=12\nSEMA_OBJECT_STORE_PROVIDER=minio\n")
	t.Cleanup(func() {
		os.Unsetenv("SEMA_CHECKER_MAX_DEPTH")
		os.Unsetenv("SEMA_OBJECT_STORE_PROVIDER")
		Reset()
	})
	if err := LoadEnv(p); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	config := GetConfig()
	if config.Checker.MaxDepth != 12 {
		t.Errorf("Expected max depth 12, got %d", config.Checker.MaxDepth)
	}
	if config.Catalog.ObjectStore.Provider != "minio" {
		t.Errorf("Expected provider minio, got %s", config.Catalog.ObjectStore.Provider)
	}
	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("Expected error for missing env file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"zero request size", func(c *Config) { c.Server.MaxRequestSizeMB = 0 }},
		{"negative request size", func(c *Config) { c.Server.MaxRequestSizeMB = -1 }},
		{"oversized request size", func(c *Config) { c.Server.MaxRequestSizeMB = 4096 }},
		{"unknown provider", func(c *Config) { c.Catalog.ObjectStore.Provider = "gcs" }},
		{"negative depth", func(c *Config) { c.Checker.MaxDepth = -1 }},
		{"unknown level", func(c *Config) { c.Log.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaultConfig()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}

func TestDecodeNegativeRequestSize(t *testing.T) {
	Reset()
	p := writeTemp(t, "negative.yaml", `
server:
  max_request_size_mb: -1
`)
	if err := Decode(p); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	config := GetConfig()
	if config.Server.MaxRequestSizeMB != -1 {
		t.Errorf("Expected -1 to be kept for validation, got %d", config.Server.MaxRequestSizeMB)
	}
	if err := config.Validate(); err == nil {
		t.Error("Expected negative max_request_size_mb to fail validation")
	}
	Reset()
}
