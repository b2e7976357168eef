// Package chstore adapts ClickHouse candle storage to the engine: bars in,
// finished reports out. The core packages never import it.
package chstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"backtest-validation/services/engine"
)

type Config struct {
	DSN      string
	Database string
	Table    string
	User     string
	Password string
}

type Store struct {
	conn driver.Conn
	cfg  Config
	log  *zap.Logger
}

func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{dsnHost(cfg.DSN)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return &Store{conn: conn, cfg: cfg, log: log}, nil
}

func (s *Store) Close() error { return s.conn.Close() }

// barRow keeps OHLCV exact at the storage edge; the simulation core works
// in float64.
type barRow struct {
	Timestamp uint64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// LoadBars reads the candle range for one symbol/interval, oldest first.
func (s *Store) LoadBars(ctx context.Context, symbol, interval string, fromMs, toMs uint64) ([]engine.Bar, error) {
	q := fmt.Sprintf(`
		SELECT open_time, open, high, low, close, volume
		FROM %s.%s
		WHERE symbol = ? AND interval = ? AND open_time >= ? AND open_time <= ?
		ORDER BY open_time`, s.cfg.Database, s.cfg.Table)

	rows, err := s.conn.Query(ctx, q, symbol, interval, fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	defer rows.Close()

	var bars []engine.Bar
	for rows.Next() {
		var r barRow
		if err := rows.Scan(&r.Timestamp, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, engine.Bar{
			Timestamp: r.Timestamp,
			Open:      r.Open.InexactFloat64(),
			High:      r.High.InexactFloat64(),
			Low:       r.Low.InexactFloat64(),
			Close:     r.Close.InexactFloat64(),
			Volume:    r.Volume.InexactFloat64(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	s.log.Info("bars loaded", zap.String("symbol", symbol), zap.Int("count", len(bars)))
	return bars, nil
}

// SaveReport persists any finished report as a JSON row keyed by its ID.
func (s *Store) SaveReport(ctx context.Context, kind, reportID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s report: %w", kind, err)
	}
	q := fmt.Sprintf(`INSERT INTO %s.reports (report_id, kind, created_at, body) VALUES (?, ?, ?, ?)`, s.cfg.Database)
	if err := s.conn.Exec(ctx, q, reportID, kind, time.Now().UTC(), string(body)); err != nil {
		return fmt.Errorf("insert %s report: %w", kind, err)
	}
	return nil
}

// EnsureReportTable creates the report sink table if missing.
func (s *Store) EnsureReportTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.reports (
			report_id String,
			kind String,
			created_at DateTime,
			body String
		) ENGINE = MergeTree ORDER BY (kind, created_at)`, s.cfg.Database)
	return s.conn.Exec(ctx, ddl)
}

// dsnHost extracts host:port from a DSN-like URL for driver bootstrap.
func dsnHost(dsn string) string {
	host := "localhost:9000"
	if i := strings.Index(dsn, "@"); i != -1 {
		rest := dsn[i+1:]
		if j := strings.Index(rest, "?"); j != -1 {
			host = rest[:j]
		} else {
			host = rest
		}
		host = strings.TrimPrefix(host, "/")
		host = strings.TrimPrefix(host, "//")
	}
	return host
}
