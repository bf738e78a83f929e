package server

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Addr != ":3000" {
		t.Fatalf("addr = %q, want :3000", cfg.Addr)
	}
	if cfg.Store.Driver != DriverFile || cfg.Store.Path != "data/triggers.json" {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("request timeout = %v", cfg.RequestTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	cfg, err := LoadConfig("testdata/callrelay.yaml")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Addr != ":8181" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Errorf("log = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Metrics {
		t.Error("metrics should be disabled")
	}
	if cfg.Concurrency != 4 {
		t.Errorf("concurrency = %d", cfg.Concurrency)
	}
	if cfg.RequestTimeout != 5*time.Second || cfg.ShutdownTimeout != 15*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.RequestTimeout, cfg.ShutdownTimeout)
	}
	if cfg.UserAgent != "TestRelay/2.0" {
		t.Errorf("user agent = %q", cfg.UserAgent)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("driver = %q", cfg.Store.Driver)
	}
	// Unset keys keep their defaults.
	if cfg.Store.Database != "callrelay" {
		t.Errorf("database = %q", cfg.Store.Database)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("testdata/nope.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CALLRELAY_STORE_DRIVER", "redis")
	t.Setenv("CALLRELAY_STORE_URL", "redis://localhost:6379/2")
	t.Setenv("CALLRELAY_REQUEST_TIMEOUT", "2s")
	t.Setenv("CALLRELAY_CONCURRENCY", "8")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.Store.Driver != DriverRedis || cfg.Store.URL != "redis://localhost:6379/2" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("request timeout = %v", cfg.RequestTimeout)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("concurrency = %d", cfg.Concurrency)
	}
}

func TestLoadConfig_EnvAddrWinsOverPort(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CALLRELAY_ADDR", "127.0.0.1:7000")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "127.0.0.1:7000" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
}

func TestLoadConfig_BadEnv(t *testing.T) {
	t.Setenv("CALLRELAY_REQUEST_TIMEOUT", "soon")
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected duration parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "etcd" }, "unknown store driver"},
		{"redis without url", func(c *Config) { c.Store.Driver = DriverRedis }, "store.url is required"},
		{"mongo without url", func(c *Config) { c.Store.Driver = DriverMongo }, "store.url is required"},
		{"file without path", func(c *Config) { c.Store.Path = "" }, "store.path is required"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "unknown log format"},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }, "concurrency"},
		{"empty addr", func(c *Config) { c.Addr = "" }, "addr is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestToRelayOptions(t *testing.T) {
	cfg := Config{}
	if n := len(cfg.ToRelayOptions()); n != 0 {
		t.Fatalf("zero config produced %d options", n)
	}

	cfg = DefaultConfig()
	cfg.Concurrency = 2
	if n := len(cfg.ToRelayOptions()); n != 4 {
		t.Fatalf("expected 4 options, got %d", n)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{
		"debug":   "DEBUG",
		"WARN":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"loud":    "INFO",
	} {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
