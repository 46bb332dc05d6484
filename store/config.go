package store

// Config holds configuration for the DynamoDB Store.
type Config struct {
	// Tables maps a record type to its DynamoDB table name.
	// Types without an entry are unknown to the store.
	Tables map[string]string

	// IndexPrefix prefixes the per-parent-type GSI name ("<prefix><parentType>").
	// Default: "by_"
	IndexPrefix string

	// NumShards is the number of shards for each parent index.
	// Higher values spread hot parents over more partitions but require more parallel queries.
	// Default: 1 (no sharding, single query)
	// Max: 256
	NumShards int
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		Tables:      map[string]string{},
		IndexPrefix: "by_",
		NumShards:   1,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Tables == nil {
		c.Tables = map[string]string{}
	}
	if c.IndexPrefix == "" {
		c.IndexPrefix = "by_"
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
}

// IndexName returns the GSI name for children of parentType.
func (c Config) IndexName(parentType string) string {
	return c.IndexPrefix + parentType
}
