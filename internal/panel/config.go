// Package panel implements the patron blocks panel: it loads a patron's manual and
// automated blocks, retires manual blocks as they expire, and serves the sorted,
// formatted list together with its navigation targets.
package panel

import "time"

// Config holds the panel's fetch policies and routes. Remote resource paths belong
// to the record store client.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	// AutomatedLimit caps the automated blocks fetched per patron.
	AutomatedLimit int
	// Permission is the capability required to open or create a block.
	Permission string
	// EditRoute and CreateRoute are fmt templates; EditRoute takes the patron and
	// block ids, CreateRoute the patron id.
	EditRoute   string
	CreateRoute string
	// MaxExpiryAttempts bounds how often a failing delete is retried before the block
	// is left alone.
	MaxExpiryAttempts int
	ExpiryConcurrency int
	ExpiryTimeout     time.Duration
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		AutomatedLimit:    100,
		Permission:        "ui-users.patron_blocks",
		EditRoute:         "/users/%s/patronblocks/edit/%s",
		CreateRoute:       "/users/%s/patronblocks/create",
		MaxExpiryAttempts: 3,
		ExpiryConcurrency: 8,
		ExpiryTimeout:     30 * time.Second,
	}
}
