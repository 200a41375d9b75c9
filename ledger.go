package glance

import (
	"context"
	"database/sql"
	_ "embed"
	"sync"
	"time"

	"github.com/tailscale/squibble"
	_ "modernc.org/sqlite"
)

//go:embed db/latest_schema.sql
var ledgerSchema string

var schema = &squibble.Schema{
	Current: ledgerSchema,
}

// MemoryLedger keeps the ledger in process memory only.
const MemoryLedger = ":memory:"

// Ledger records metadata about every analysis. It never stores the image, its
// data URL or the returned description.
type Ledger struct {
	mu sync.Mutex
	db *sql.DB

	filepath string
}

// Analysis is one row of the ledger.
type Analysis struct {
	Id          int
	RequestedAt time.Time
	MIMEType    string
	SizeBytes   int
	Describer   string
	Model       string
	Succeeded   bool
	Error       string
	Duration    time.Duration
}

// Counts summarizes the outcomes recorded so far.
type Counts struct {
	Succeeded int
	Failed    int
}

func NewLedger(ctx context.Context, fname string) (*Ledger, error) {
	// Open the DB but flip on the cleaner timestamps from Go
	sqldb, err := sql.Open("sqlite", fname+"?_time_format=sqlite")
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: gets a private database, so keep to one.
	sqldb.SetMaxOpenConns(1)
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, err
	}
	if err := schema.Apply(ctx, sqldb); err != nil {
		sqldb.Close()
		return nil, err
	}

	return &Ledger{db: sqldb, filepath: fname}, nil
}

func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.db.Close()
}

// Record inserts a new row and sets a.Id.
func (l *Ledger) Record(ctx context.Context, a *Analysis) error {
	var errmsg sql.NullString
	if a.Error != "" {
		errmsg = sql.NullString{String: a.Error, Valid: true}
	}

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO analyses
		(requested_at, mime_type, size_bytes, describer, model, succeeded, error_message, duration_ms)
		VALUES (?,?,?,?,?,?,?,?)
		`,
		a.RequestedAt, a.MIMEType, a.SizeBytes, a.Describer, a.Model, a.Succeeded, errmsg, a.Duration.Milliseconds(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.Id = int(id)

	return nil
}

// Recent returns up to n analyses, newest first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]*Analysis, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, requested_at, mime_type, size_bytes, describer, model,
			   succeeded, error_message, duration_ms
		FROM analyses
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*Analysis
	for rows.Next() {
		a := &Analysis{}

		var (
			errmsg sql.NullString
			ms     int64
		)
		err := rows.Scan(
			&a.Id,
			&a.RequestedAt,
			&a.MIMEType,
			&a.SizeBytes,
			&a.Describer,
			&a.Model,
			&a.Succeeded,
			&errmsg,
			&ms,
		)
		if err != nil {
			return nil, err
		}
		a.Error = errmsg.String
		a.Duration = time.Duration(ms) * time.Millisecond

		analyses = append(analyses, a)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return analyses, nil
}

// Counts returns the number of successful and failed analyses.
func (l *Ledger) Counts(ctx context.Context) (Counts, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN succeeded THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN succeeded THEN 0 ELSE 1 END), 0)
		FROM analyses`)

	var c Counts
	if err := row.Scan(&c.Succeeded, &c.Failed); err != nil {
		return Counts{}, err
	}
	return c, nil
}
