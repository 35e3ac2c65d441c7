package dynamo

import "dario.cat/mergo"

// Config holds configuration for the DynamoDB backend.
type Config struct {
	// Table is the DynamoDB table holding every document of the project.
	Table string

	// PartitionKey is the hash key attribute name.
	// Default: "pk"
	PartitionKey string

	// SortKey is the range key attribute name. It holds the document id.
	// Default: "sk"
	SortKey string

	// TTLAttribute is the attribute DynamoDB TTL is configured on.
	// Items whose TTL has passed read as absent even before DynamoDB reaps them.
	// Default: "ttl"
	TTLAttribute string

	// NumShards spreads the documents of one collection over several partitions.
	// Default: 1 (no sharding)
	// Max: 256
	NumShards int

	// EventualReads disables strongly consistent reads.
	EventualReads bool
}

// DefaultConfig returns the key layout used by Dial.
func DefaultConfig() Config {
	return Config{
		PartitionKey: "pk",
		SortKey:      "sk",
		TTLAttribute: "ttl",
		NumShards:    1,
	}
}

// validate fills unset fields from DefaultConfig and clamps NumShards.
func (c *Config) validate() {
	// Merge only fails on mismatched types.
	_ = mergo.Merge(c, DefaultConfig())

	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
}
