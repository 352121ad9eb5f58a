package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i474232898/air-quality-forecast/internal/aqi"
)

const (
	createRecordsTable = `CREATE TABLE IF NOT EXISTS aqi_records (
	seq        BIGSERIAL PRIMARY KEY,
	collection TEXT        NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	location   TEXT        NOT NULL,
	body       JSONB       NOT NULL
)`
	createRecordsIndex = `CREATE INDEX IF NOT EXISTS aqi_records_collection_ts_idx ON aqi_records (collection, ts)`

	insertRecord  = `INSERT INTO aqi_records (collection, ts, location, body) VALUES ($1, $2, $3, $4)`
	deleteRecords = `DELETE FROM aqi_records WHERE collection = $1 AND ($2 = '' OR location = $2)`
)

// PostgresStore keeps every collection in one JSONB table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and makes sure the records table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool init: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	for _, stmt := range []string{createRecordsTable, createRecordsIndex} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// InsertMany queues every document in one batch round-trip.
func (s *PostgresStore) InsertMany(ctx context.Context, coll aqi.Collection, docs []aqi.Document) error {
	return insertBatch(ctx, s.pool, coll, docs)
}

// DeleteAll removes the documents of coll matching f.
func (s *PostgresStore) DeleteAll(ctx context.Context, coll aqi.Collection, f aqi.Filter) (int64, error) {
	tag, err := s.pool.Exec(ctx, deleteRecords, string(coll), f.Location)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Replace deletes and re-inserts inside one transaction.
func (s *PostgresStore) Replace(ctx context.Context, coll aqi.Collection, f aqi.Filter, docs []aqi.Document) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteRecords, string(coll), f.Location); err != nil {
		return err
	}
	if err := insertBatch(ctx, tx, coll, docs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Find runs a sorted, limited range query.
func (s *PostgresStore) Find(ctx context.Context, coll aqi.Collection, q aqi.Query) ([]aqi.Document, error) {
	direction := "ASC"
	if q.Order == aqi.Descending {
		direction = "DESC"
	}
	query := fmt.Sprintf(`
SELECT ts, location, body
FROM aqi_records
WHERE collection = $1
  AND ($2 = '' OR location = $2)
  AND ($3::timestamptz IS NULL OR ts >= $3)
  AND ($4::timestamptz IS NULL OR ts <= $4)
ORDER BY ts %s, seq %s
LIMIT $5`, direction, direction)

	rows, err := s.pool.Query(ctx, query, string(coll), q.Location, optionalTime(q.From), optionalTime(q.To), optionalLimit(q.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []aqi.Document
	for rows.Next() {
		var doc aqi.Document
		if err := rows.Scan(&doc.Timestamp, &doc.Location, &doc.Body); err != nil {
			return nil, err
		}
		doc.Timestamp = doc.Timestamp.UTC()
		result = append(result, doc)
	}
	return result, rows.Err()
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func insertBatch(ctx context.Context, conn batchSender, coll aqi.Collection, docs []aqi.Document) error {
	if len(docs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, d := range docs {
		batch.Queue(insertRecord, string(coll), d.Timestamp.UTC(), d.Location, d.Body)
	}

	res := conn.SendBatch(ctx, batch)
	defer res.Close()

	for range docs {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// LIMIT NULL means no limit in Postgres.
func optionalLimit(n int) *int64 {
	if n <= 0 {
		return nil
	}
	v := int64(n)
	return &v
}
