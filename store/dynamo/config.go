package dynamo

import "time"

// Config holds configuration for the DynamoDB adapter.
type Config struct {
	// Table is the name of the document table. Its hash key must be the
	// string attribute "pk"; no range key.
	// Default: "refguard_documents"
	Table string

	// Timeout bounds every single DynamoDB call.
	// Default: 5s
	Timeout time.Duration

	// ConsistentRead makes Get use strongly consistent reads. Reading the
	// version of the last committed write is what Update relies on, so this
	// should only be disabled for read-mostly tooling.
	// Default: true
	ConsistentRead bool
}

// DefaultConfig returns the defaults used when fields are left empty.
func DefaultConfig() Config {
	return Config{
		Table:          "refguard_documents",
		Timeout:        5 * time.Second,
		ConsistentRead: true,
	}
}

// validate fills in defaults for empty fields.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "refguard_documents"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}
