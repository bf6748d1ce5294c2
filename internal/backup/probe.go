package backup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"backitup/internal/config"
	appErrors "backitup/internal/errors"

	"github.com/go-sql-driver/mysql"
)

const defaultProbeTimeout = 10 * time.Second

// Prober checks that the database accepts connections before the dump
type Prober interface {
	Ping(ctx context.Context) error
}

// MySQLProber pings the server with the same credentials the dump tool uses
type MySQLProber struct {
	dsn     string
	timeout time.Duration
	open    func(driverName, dsn string) (*sql.DB, error)
}

// NewMySQLProber creates a prober for the configured server
func NewMySQLProber(cfg config.DBConfig) *MySQLProber {
	return &MySQLProber{
		dsn:     probeDSN(cfg),
		timeout: defaultProbeTimeout,
		open:    sql.Open,
	}
}

func probeDSN(cfg config.DBConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if !cfg.AllDatabases() {
		mc.DBName = cfg.Name
	}
	mc.Timeout = defaultProbeTimeout
	return mc.FormatDSN()
}

// Ping opens a connection and pings the server. Failures are classified by
// MySQL error number into an external tool error.
func (p *MySQLProber) Ping(ctx context.Context) error {
	db, err := p.open("mysql", p.dsn)
	if err != nil {
		return appErrors.ClassifyMySQLError(err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return appErrors.ClassifyMySQLError(err)
	}
	return nil
}
