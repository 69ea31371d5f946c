package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/sqlscope/internal/metrics"
)

const WaitStatsSQL = `
SELECT TOP (@limit)
    GETDATE() AS collection_time,
    wait_type,
    waiting_tasks_count,
    wait_time_ms,
    max_wait_time_ms,
    signal_wait_time_ms
FROM sys.dm_os_wait_stats
ORDER BY wait_time_ms DESC;`

const BlockingSQL = `
SELECT TOP (@limit)
    GETDATE() AS collection_time,
    session_id,
    blocking_session_id,
    wait_type,
    wait_duration_ms,
    resource_description
FROM sys.dm_exec_requests
WHERE blocking_session_id <> 0
ORDER BY wait_duration_ms DESC;`

const SessionsSQL = `
SELECT TOP (@limit)
    GETDATE() AS collection_time,
    s.session_id,
    s.login_name,
    r.status,
    r.cpu_time,
    r.logical_reads,
    r.wait_type,
    r.blocking_session_id
FROM sys.dm_exec_sessions AS s
LEFT JOIN sys.dm_exec_requests AS r ON s.session_id = r.session_id
WHERE s.is_user_process = 1
ORDER BY r.cpu_time DESC;`

// Row is one result row keyed by column name.
type Row = map[string]any

// Collector runs the live DMV queries.
type Collector struct {
	db *sqlx.DB
}

func NewCollector(db *sqlx.DB) *Collector { return &Collector{db: db} }

// Close releases the underlying pool.
func (c *Collector) Close() error { return c.db.Close() }

func (c *Collector) WaitStats(ctx context.Context, limit int) ([]Row, error) {
	return c.query(ctx, WaitStatsSQL, limit)
}

func (c *Collector) Blocking(ctx context.Context, limit int) ([]Row, error) {
	return c.query(ctx, BlockingSQL, limit)
}

func (c *Collector) ActiveSessions(ctx context.Context, limit int) ([]Row, error) {
	return c.query(ctx, SessionsSQL, limit)
}

func (c *Collector) query(ctx context.Context, q string, limit int) (out []Row, err error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamDuration.WithLabelValues("sqlserver", metrics.Result(err)).
			Observe(time.Since(start).Seconds())
	}()

	rows, err := c.db.QueryxContext(ctx, q, sql.Named("limit", limit))
	if err != nil {
		return nil, fmt.Errorf("dmv query: %w", err)
	}
	defer rows.Close()

	out = []Row{}
	for rows.Next() {
		r := Row{}
		if err := rows.MapScan(r); err != nil {
			return nil, fmt.Errorf("dmv scan: %w", err)
		}
		// decimals and varchar columns can arrive as []byte
		for k, v := range r {
			if b, ok := v.([]byte); ok {
				r[k] = string(b)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dmv rows: %w", err)
	}
	return out, nil
}
