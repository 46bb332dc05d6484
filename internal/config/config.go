// Package config loads the relation store configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/jacentio/onetomany/store"
)

// Config represents the application configuration
type Config struct {
	Store     store.Config
	Relations []store.Relation
	LogLevel  slog.Level
}

// NewViper returns a viper instance reading the environment and, when configFile
// is non-empty, an optional env-format file. Environment variables take precedence.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("env")
		// The file is optional
		_ = v.ReadInConfig()
	}
	v.AutomaticEnv()

	v.SetDefault("NUM_SHARDS", 1)
	v.SetDefault("INDEX_PREFIX", "by_")
	v.SetDefault("LOG_LEVEL", "info")
	return v
}

// Load builds the configuration from v.
//
//	TABLES=hoverkraft=hoverkraft,crew=crew
//	RELATIONS=hoverkraft:crew:positioned,hoverkraft:cargo
func Load(v *viper.Viper) (*Config, error) {
	tables, err := parseTables(v.GetString("TABLES"))
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("TABLES is required (set via environment variable or .env file)")
	}

	relations, err := parseRelations(v.GetString("RELATIONS"))
	if err != nil {
		return nil, err
	}
	for _, rel := range relations {
		for _, typ := range []string{rel.ParentType, rel.ChildType} {
			if _, ok := tables[typ]; !ok {
				return nil, fmt.Errorf("RELATIONS: %s has no entry in TABLES", typ)
			}
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	numShards := v.GetInt("NUM_SHARDS")
	if numShards < 1 || numShards > 256 {
		return nil, fmt.Errorf("NUM_SHARDS must be between 1 and 256, got %d", numShards)
	}

	return &Config{
		Store: store.Config{
			Tables:      tables,
			IndexPrefix: v.GetString("INDEX_PREFIX"),
			NumShards:   numShards,
		},
		Relations: relations,
		LogLevel:  level,
	}, nil
}

// Registry returns a registry holding the configured relations.
func (c *Config) Registry() (*store.Registry, error) {
	reg := store.NewRegistry()
	for _, rel := range c.Relations {
		if err := reg.Register(rel); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Types returns the configured record types.
func (c *Config) Types() []string {
	types := make([]string, 0, len(c.Store.Tables))
	for typ := range c.Store.Tables {
		types = append(types, typ)
	}
	return types
}

func parseTables(s string) (map[string]string, error) {
	tables := make(map[string]string)
	for _, entry := range splitList(s) {
		typ, table, ok := strings.Cut(entry, "=")
		typ, table = strings.TrimSpace(typ), strings.TrimSpace(table)
		if !ok || table == "" {
			return nil, fmt.Errorf("TABLES: entry %q is not type=table", entry)
		}
		if err := store.ValidateType(typ); err != nil {
			return nil, fmt.Errorf("TABLES: %w", err)
		}
		tables[typ] = table
	}
	return tables, nil
}

func parseRelations(s string) ([]store.Relation, error) {
	var relations []store.Relation
	for _, entry := range splitList(s) {
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("RELATIONS: entry %q is not parent:child[:positioned]", entry)
		}
		rel := store.Relation{
			ParentType: strings.TrimSpace(parts[0]),
			ChildType:  strings.TrimSpace(parts[1]),
		}
		if len(parts) == 3 {
			if strings.TrimSpace(parts[2]) != "positioned" {
				return nil, fmt.Errorf("RELATIONS: unknown option %q in %q", parts[2], entry)
			}
			rel.RelativePosition = true
		}
		if err := rel.Validate(); err != nil {
			return nil, fmt.Errorf("RELATIONS: %w", err)
		}
		relations = append(relations, rel)
	}
	return relations, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
