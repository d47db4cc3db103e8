package server

import "time"

// Config configuration parameters
type Config struct {
	TokenType string // scheme expected in the Authorization header
	// TicketEvery and TicketBurst shape the per-user ticket rate limit:
	// one ticket per TicketEvery with bursts of TicketBurst.
	TicketEvery time.Duration
	TicketBurst int
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

// NewConfig create to configuration instance
func NewConfig() *Config {
	return &Config{
		TokenType:    "Bearer",
		TicketEvery:  2 * time.Second,
		TicketBurst:  5,
		MaxBodyBytes: 1 << 20,
	}
}
