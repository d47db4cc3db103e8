package manage

import "time"

// Config token engine configuration parameters
type Config struct {
	Issuer   string
	Audience string

	// AccessSecret and RefreshSecret sign the two halves of a pair. They must differ.
	AccessSecret  []byte
	RefreshSecret []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// TicketTTL is the lifetime of a connection ticket.
	TicketTTL time.Duration
	// StoreTimeout bounds every call into the expiring store.
	StoreTimeout time.Duration
}

var (
	DefaultAccessTTL    = 15 * time.Minute
	DefaultRefreshTTL   = 7 * 24 * time.Hour
	DefaultTicketTTL    = 30 * time.Second
	DefaultStoreTimeout = 2 * time.Second
)

func (c Config) withDefaults() Config {
	if c.AccessTTL <= 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.TicketTTL <= 0 {
		c.TicketTTL = DefaultTicketTTL
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	return c
}
