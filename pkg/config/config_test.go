package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name     string        `yaml:"name"`
	Port     int           `yaml:"port"`
	Interval time.Duration `yaml:"interval"`
	fail     bool
}

func (s *sample) Validate() error {
	if s.fail || s.Port == 0 {
		return errors.New("port is required")
	}
	return nil
}

func TestExpand(t *testing.T) {
	t.Setenv("HEIRLOOM_TEST_SET", "value")
	t.Setenv("HEIRLOOM_TEST_EMPTY", "")

	cases := map[string]string{
		"${HEIRLOOM_TEST_SET}":              "value",
		"$HEIRLOOM_TEST_SET":                "value",
		"${HEIRLOOM_TEST_SET:-fallback}":    "value",
		"${HEIRLOOM_TEST_EMPTY:-fallback}":  "fallback",
		"${HEIRLOOM_TEST_UNSET:-fallback}":  "fallback",
		"${HEIRLOOM_TEST_UNSET}":            "",
		"${HEIRLOOM_TEST_UNSET:-}":          "",
		"http://${HEIRLOOM_TEST_SET}:8545/": "http://value:8545/",
	}
	for in, want := range cases {
		if got := Expand(in); got != want {
			t.Errorf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoad_KeepsDefaults(t *testing.T) {
	t.Setenv("HEIRLOOM_TEST_PORT", "9090")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: ${HEIRLOOM_TEST_PORT}\ninterval: 30s\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &sample{Name: "default"}
	if err := Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "default" || cfg.Port != 9090 || cfg.Interval != 30*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestParse_UnknownField(t *testing.T) {
	err := Parse([]byte("port: 1\nprot: 2\n"), &sample{})
	if err == nil || !strings.Contains(err.Error(), "prot") {
		t.Fatalf("unknown field error = %v", err)
	}
}

func TestParse_Validation(t *testing.T) {
	err := Parse([]byte("name: x\n"), &sample{})
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("validation error = %v", err)
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg := &sample{Port: 1}
	if err := Parse(nil, cfg); err != nil {
		t.Fatalf("empty document: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &sample{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
