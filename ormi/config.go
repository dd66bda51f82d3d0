package ormi

import (
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

// Config holds session parameters. It is plain data: configure it
// before first use, from one goroutine.
type Config struct {
	Driver string
	DSN    string

	SessionID uuid.UUID

	// OnConnect is session SQL replayed after every reconnect, for
	// session-level flags like datetime format or soft-commit mode.
	OnConnect []string

	// QuoteChar / NameSep override the negotiated identifier quoting.
	QuoteChar byte
	NameSep   string

	DisableStatementCache bool

	Logger  *logrus.Logger
	Metrics tally.Scope
}

func newConfig() *Config {
	return &Config{
		Driver:    os.Getenv("ORMIGO_DRIVER"),
		DSN:       os.Getenv("ORMIGO_DSN"),
		SessionID: uuid.New(),
	}
}

func (c *Config) SetDSN(driver, dsn string) {
	c.Driver = driver
	c.DSN = dsn
}
