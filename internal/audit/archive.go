package audit

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

// Archive persists audit records to Postgres for long-term retention. The
// in-memory Log stays authoritative for the paginated read API; the archive
// is fed asynchronously by the service main from the event stream.
type Archive struct {
	db *sql.DB
}

// OpenArchive connects to Postgres and ensures the schema exists.
func OpenArchive(ctx context.Context, dsn string) (*Archive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	a := &Archive{db: db}
	if err := a.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) ensureSchema(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS request_records (
			id         UUID PRIMARY KEY,
			vault      TEXT NOT NULL,
			type       TEXT NOT NULL,
			sender     TEXT NOT NULL,
			receiver   TEXT NOT NULL,
			ts         TIMESTAMPTZ NOT NULL,
			amount     NUMERIC NOT NULL
		);
		CREATE TABLE IF NOT EXISTS processed_records (
			id         UUID PRIMARY KEY,
			vault      TEXT NOT NULL,
			type       TEXT NOT NULL,
			receiver   TEXT NOT NULL,
			ts         TIMESTAMPTZ NOT NULL,
			amount_in  NUMERIC NOT NULL,
			amount_out NUMERIC NOT NULL,
			fees_paid  NUMERIC NOT NULL
		);
		CREATE INDEX IF NOT EXISTS request_records_sender_idx ON request_records (sender, ts);
		CREATE INDEX IF NOT EXISTS processed_records_receiver_idx ON processed_records (receiver, ts);
	`)
	return err
}

// SaveRequest inserts a request record. Replays of the same id are ignored.
func (a *Archive) SaveRequest(ctx context.Context, rec RequestRecord) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO request_records (id, vault, type, sender, receiver, ts, amount)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, string(rec.Vault), rec.Type.String(), string(rec.Sender),
		string(rec.Receiver), rec.Timestamp, rec.Amount.String(),
	)
	return err
}

// SaveProcessed inserts a processed record.
func (a *Archive) SaveProcessed(ctx context.Context, rec ProcessedRecord) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO processed_records (id, vault, type, receiver, ts, amount_in, amount_out, fees_paid)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, string(rec.Vault), rec.Type.String(), string(rec.Receiver),
		rec.Timestamp, rec.AmountIn.String(), rec.AmountOut.String(), rec.FeesPaid.String(),
	)
	return err
}

// RequestCountSince counts archived requests for operational dashboards.
func (a *Archive) RequestCountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM request_records WHERE ts >= $1`, since).Scan(&n)
	return n, err
}

// Close closes the underlying connection pool.
func (a *Archive) Close() error {
	return a.db.Close()
}
