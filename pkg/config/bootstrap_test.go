package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/blueprint/pkg/engine"
)

func TestLoad_Defaults(t *testing.T) {
	b, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if b.Settings.Scheduler.MaxParallel != 10 {
		t.Errorf("MaxParallel = %d, want 10", b.Settings.Scheduler.MaxParallel)
	}
	if b.Settings.Catalog.ManualAdditionsWait != 10*time.Second {
		t.Errorf("ManualAdditionsWait = %v, want 10s", b.Settings.Catalog.ManualAdditionsWait)
	}
	if b.Settings.Home == "" {
		t.Error("Home should default to the working directory")
	}
	if v, ok := b.Properties.Get("blueprint.home"); !ok || v != b.Settings.Home {
		t.Errorf("blueprint.home = %q, %v", v, ok)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blueprint.yaml")
	content := `
home: /srv/blueprint
catalog:
  source: catalog.bom
  manual_additions_wait: 2s
scheduler:
  max_parallel: 4
external.myprovider: inplace
external.myprovider.mykey: myval
external:
  vault:
    type: file
    path: secrets.yaml
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if b.File != path {
		t.Errorf("File = %q", b.File)
	}
	if b.Settings.Home != "/srv/blueprint" {
		t.Errorf("Home = %q", b.Settings.Home)
	}
	if b.Settings.Catalog.Source != "catalog.bom" {
		t.Errorf("Catalog.Source = %q", b.Settings.Catalog.Source)
	}
	if b.Settings.Catalog.ManualAdditionsWait != 2*time.Second {
		t.Errorf("ManualAdditionsWait = %v", b.Settings.Catalog.ManualAdditionsWait)
	}
	if b.Settings.Scheduler.MaxParallel != 4 {
		t.Errorf("MaxParallel = %d", b.Settings.Scheduler.MaxParallel)
	}

	want := map[string]string{
		"external.myprovider":       "inplace",
		"external.myprovider.mykey": "myval",
		"external.vault.type":       "file",
		"external.vault.path":       "secrets.yaml",
		"catalog.source":            "catalog.bom",
	}
	for key, value := range want {
		if got, ok := b.Properties.Get(key); !ok || got != value {
			t.Errorf("Properties[%s] = %q, %v; want %q", key, got, ok, value)
		}
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BLUEPRINT_SCHEDULER_MAX_PARALLEL", "3")

	b, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if b.Settings.Scheduler.MaxParallel != 3 {
		t.Errorf("MaxParallel = %d, want 3", b.Settings.Scheduler.MaxParallel)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load("/nonexistent/blueprint.yaml"); !engine.IsConfiguration(err) {
		t.Errorf("missing file: expected configuration error, got %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("scheduler:\n  max_parallel: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !engine.IsConfiguration(err) {
		t.Errorf("invalid settings: expected configuration error, got %v", err)
	}
}

func TestFromMap(t *testing.T) {
	b, err := FromMap(map[string]interface{}{
		"external.myprovider":       "inplace",
		"external.myprovider.mykey": "myval",
		"scheduler::max_parallel":   2,
	})
	if err != nil {
		t.Fatalf("FromMap() error = %v", err)
	}

	if b.Settings.Scheduler.MaxParallel != 2 {
		t.Errorf("MaxParallel = %d", b.Settings.Scheduler.MaxParallel)
	}
	if v, _ := b.Properties.Get("external.myprovider.mykey"); v != "myval" {
		t.Errorf("external.myprovider.mykey = %q", v)
	}
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"defaults", func(s *Settings) {}, false},
		{"zero workers", func(s *Settings) { s.Scheduler.MaxParallel = 0 }, true},
		{"bad log level", func(s *Settings) { s.Telemetry.LogLevel = "loud" }, true},
		{"bad log format", func(s *Settings) { s.Telemetry.LogFormat = "xml" }, true},
		{"database without path", func(s *Settings) { s.Database.Enabled = true; s.Database.Path = "" }, true},
		{"negative wait", func(s *Settings) { s.Catalog.ManualAdditionsWait = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := ValidateSettings(s)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSettings() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !engine.IsConfiguration(err) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}
