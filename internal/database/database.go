// Package database centralises the SQL Server connection helpers used by
// the live-monitoring endpoints.  The driver is microsoft/go-mssqldb behind
// sqlx.
//
// Public entry points:
//
//	ConnectionString(s)  – turn a DatabaseSettings snapshot into a DSN.
//	Open(ctx, s)         – small pool with conservative limits, pinged.
//	NewCollector(db)     – DMV queries over an open pool.
//
// Callers should Close() the returned *sqlx.DB when no longer needed.
package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/yanizio/sqlscope/internal/config"
)

const (
	driverName     = "sqlserver"
	connectTimeout = "5"
)

// ConnectionString returns the driver DSN for s.  A configured DSN wins and
// is passed through untouched, provided go-mssqldb can parse it: a
// `sqlserver://` URL, `odbc:` form, or ADO `key=value;` pairs.  A bare ODBC
// data source name is rejected.  Without a DSN, Server is required.
func ConnectionString(s config.DatabaseSettings) (string, error) {
	if s.DSN != "" {
		if isBareName(s.DSN) {
			return "", &config.Error{
				Kind: config.KindTargetUnspecified,
				Op:   "database connect",
				Err: fmt.Errorf("%w: sqlserver.dsn %q is a bare ODBC data source name, which the driver cannot look up; "+
					"use a sqlserver:// URL, odbc:server=...;user id=... pairs, or set sqlserver.server",
					config.ErrTargetUnspecified, s.DSN),
			}
		}
		return s.DSN, nil
	}
	if s.Server == "" {
		return "", &config.Error{
			Kind: config.KindTargetUnspecified,
			Op:   "database connect",
			Err:  fmt.Errorf("%w: set sqlserver.server or sqlserver.dsn", config.ErrTargetUnspecified),
		}
	}

	u := &url.URL{Scheme: "sqlserver"}
	host := s.Server
	// SERVER\INSTANCE becomes the URL path; SERVER,PORT becomes host:port.
	if h, inst, ok := strings.Cut(host, `\`); ok {
		host, u.Path = h, "/"+inst
	}
	u.Host = strings.Replace(host, ",", ":", 1)

	if s.Username != "" && s.Password != "" {
		u.User = url.UserPassword(s.Username, s.Password)
	}

	q := url.Values{}
	q.Set("database", s.Database)
	if s.Encrypt {
		q.Set("encrypt", "true")
		if s.TrustServerCertificate {
			q.Set("TrustServerCertificate", "true")
		}
	} else {
		q.Set("encrypt", "false")
	}
	q.Set("connection timeout", connectTimeout)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open returns a pinged *sqlx.DB with a small pool: 4 max open, 2 idle,
// and a 10-minute connection lifetime.
func Open(ctx context.Context, s config.DatabaseSettings) (*sqlx.DB, error) {
	dsn, err := ConnectionString(s)
	if err != nil {
		return nil, err
	}

	zap.S().Debugw("connecting to SQL Server",
		"server", s.Server, "database", s.Database, "dsn", s.DSN != "")

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlserver: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}
	return db, nil
}

// isBareName reports whether dsn is a lone name with no scheme or keys.
func isBareName(dsn string) bool {
	return !strings.Contains(dsn, "://") &&
		!strings.HasPrefix(dsn, "odbc:") &&
		!strings.Contains(dsn, "=")
}
