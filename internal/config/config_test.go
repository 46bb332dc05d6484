package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jacentio/onetomany/store"
)

func TestLoad(t *testing.T) {
	t.Setenv("TABLES", "hoverkraft=hoverkraft_table, crew=crew_table,cargo=cargo_table")
	t.Setenv("RELATIONS", "hoverkraft:crew:positioned,hoverkraft:cargo")
	t.Setenv("NUM_SHARDS", "16")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(NewViper(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Store.Tables["crew"] != "crew_table" || len(cfg.Store.Tables) != 3 {
		t.Errorf("unexpected tables %v", cfg.Store.Tables)
	}
	if cfg.Store.NumShards != 16 {
		t.Errorf("expected 16 shards, got %d", cfg.Store.NumShards)
	}
	if cfg.Store.IndexPrefix != "by_" {
		t.Errorf("expected default prefix by_, got %q", cfg.Store.IndexPrefix)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel)
	}

	want := []store.Relation{
		{ParentType: "hoverkraft", ChildType: "crew", RelativePosition: true},
		{ParentType: "hoverkraft", ChildType: "cargo"},
	}
	if len(cfg.Relations) != len(want) {
		t.Fatalf("expected %d relations, got %v", len(want), cfg.Relations)
	}
	for i := range want {
		if cfg.Relations[i] != want[i] {
			t.Errorf("relation %d: expected %+v, got %+v", i, want[i], cfg.Relations[i])
		}
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	if rel, ok := reg.Lookup("hoverkraft", "crew"); !ok || !rel.RelativePosition {
		t.Errorf("expected positioned hoverkraft->crew, got %+v", rel)
	}
	if len(cfg.Types()) != 3 {
		t.Errorf("expected 3 types, got %v", cfg.Types())
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TABLES", "crew=crew")

	cfg, err := Load(NewViper(""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.NumShards != 1 {
		t.Errorf("expected 1 shard, got %d", cfg.Store.NumShards)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("expected info level, got %v", cfg.LogLevel)
	}
	if len(cfg.Relations) != 0 {
		t.Errorf("expected no relations, got %v", cfg.Relations)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.test")
	content := "TABLES=hoverkraft=h,crew=c\nRELATIONS=hoverkraft:crew\nINDEX_PREFIX=gsi_\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Environment wins over the file
	t.Setenv("INDEX_PREFIX", "env_")

	cfg, err := Load(NewViper(path))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Tables["hoverkraft"] != "h" {
		t.Errorf("expected tables from file, got %v", cfg.Store.Tables)
	}
	if cfg.Store.IndexPrefix != "env_" {
		t.Errorf("expected env prefix, got %q", cfg.Store.IndexPrefix)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("TABLES", "crew=crew")

	if _, err := Load(NewViper(filepath.Join(t.TempDir(), "missing.env"))); err != nil {
		t.Errorf("expected missing file to be ignored, got %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no tables", map[string]string{}},
		{"bad table entry", map[string]string{"TABLES": "crew"}},
		{"bad table type", map[string]string{"TABLES": "Crew=crew"}},
		{"bad relation entry", map[string]string{"TABLES": "crew=crew", "RELATIONS": "crew"}},
		{"bad relation option", map[string]string{"TABLES": "a=a,b=b", "RELATIONS": "a:b:sorted"}},
		{"relation type without table", map[string]string{"TABLES": "a=a", "RELATIONS": "a:b"}},
		{"bad relation type", map[string]string{"TABLES": "a=a", "RELATIONS": "a:B"}},
		{"zero shards", map[string]string{"TABLES": "a=a", "NUM_SHARDS": "0"}},
		{"too many shards", map[string]string{"TABLES": "a=a", "NUM_SHARDS": "512"}},
		{"bad log level", map[string]string{"TABLES": "a=a", "LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"TABLES", "RELATIONS", "NUM_SHARDS", "LOG_LEVEL"} {
				t.Setenv(key, tt.env[key])
			}
			if _, err := Load(NewViper("")); err == nil {
				t.Error("expected error")
			}
		})
	}
}
