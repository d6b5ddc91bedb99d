package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"jurisync/pkg/platform/sentinel"
)

// PostgresStore keeps each collection in its own single-table JSONB
// collection: (id TEXT PRIMARY KEY, doc JSONB). Equality filters translate
// to JSONB containment, the "_id" key to the primary key.
type PostgresStore struct {
	db       *sql.DB
	readOnly bool
	logger   *slog.Logger
}

// OpenPostgres connects, tunes the pool, and creates the collection tables.
func OpenPostgres(ctx context.Context, dsn string, readOnly bool, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open docstore: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping docstore: %w: %w", sentinel.ErrUnavailable, err)
	}

	store := &PostgresStore{db: db, readOnly: readOnly, logger: logger}
	if !readOnly {
		if err := store.ensureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	for _, name := range []string{ColMirror, ColDecisions, ColAffaires, ColLifecycle, ColTaxonomy, ColZoningErrors} {
		ddl := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %q (id TEXT PRIMARY KEY, doc JSONB NOT NULL)`, name)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure collection %s: %w", name, err)
		}
	}
	return nil
}

// Collection returns a handle on the named collection.
func (s *PostgresStore) Collection(name string) Collection {
	return &pgCollection{store: s, table: name}
}

// Health pings the database.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type pgCollection struct {
	store *PostgresStore
	table string
}

// rejectWrite implements read-only mode: the write is dropped, logged, and
// reported through the sentinel so callers can count it.
func (c *pgCollection) rejectWrite(op string) error {
	c.store.logger.Warn("write rejected, store is read-only",
		"collection", c.table, "op", op)
	return sentinel.ErrReadOnly
}

func (c *pgCollection) whereClause(filter Filter) (string, []any, error) {
	if id, ok := filter["_id"].(string); ok && len(filter) == 1 {
		return "id = $1", []any{id}, nil
	}
	match, err := json.Marshal(filter)
	if err != nil {
		return "", nil, fmt.Errorf("marshal filter: %w", err)
	}
	return "doc @> $1::jsonb", []any{string(match)}, nil
}

func (c *pgCollection) FindOne(ctx context.Context, filter Filter) (json.RawMessage, error) {
	where, args, err := c.whereClause(filter)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT doc FROM %q WHERE %s LIMIT 1`, c.table, where)

	var doc []byte
	err = c.store.db.QueryRowContext(ctx, query, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one in %s: %w", c.table, err)
	}
	return json.RawMessage(doc), nil
}

func (c *pgCollection) InsertOne(ctx context.Context, doc any) error {
	if c.store.readOnly {
		return c.rejectWrite("insert")
	}
	id, raw, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %q (id, doc) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, c.table)
	res, err := c.store.db.ExecContext(ctx, query, id, raw)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", c.table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (c *pgCollection) ReplaceOne(ctx context.Context, filter Filter, doc any) error {
	if c.store.readOnly {
		return c.rejectWrite("replace")
	}
	id, ok := filter["_id"].(string)
	if !ok {
		return fmt.Errorf("replace in %s: filter must carry _id", c.table)
	}
	_, raw, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`INSERT INTO %q (id, doc) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		c.table)
	if _, err := c.store.db.ExecContext(ctx, query, id, raw); err != nil {
		return fmt.Errorf("replace in %s: %w", c.table, err)
	}
	return nil
}

func (c *pgCollection) DeleteOne(ctx context.Context, filter Filter) error {
	if c.store.readOnly {
		return c.rejectWrite("delete")
	}
	where, args, err := c.whereClause(filter)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %q WHERE id IN (SELECT id FROM %q WHERE %s LIMIT 1)`,
		c.table, c.table, where)
	if _, err := c.store.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete from %s: %w", c.table, err)
	}
	return nil
}

func (c *pgCollection) Find(ctx context.Context, filter Filter) (Cursor, error) {
	where, args := "TRUE", []any(nil)
	if len(filter) > 0 {
		var err error
		where, args, err = c.whereClause(filter)
		if err != nil {
			return nil, err
		}
	}
	query := fmt.Sprintf(`SELECT doc FROM %q WHERE %s ORDER BY id`, c.table, where)
	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", c.table, err)
	}
	return &pgCursor{rows: rows}, nil
}

func marshalDoc(doc any) (string, []byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", nil, fmt.Errorf("marshal document: %w", err)
	}
	var envelope struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.ID == "" {
		return "", nil, fmt.Errorf("document has no _id")
	}
	return envelope.ID, raw, nil
}

type pgCursor struct {
	rows    *sql.Rows
	current []byte
	err     error
}

func (c *pgCursor) Next(ctx context.Context) bool {
	if c.err != nil || ctx.Err() != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}
	return c.rows.Scan(&c.current) == nil
}

func (c *pgCursor) Decode(v any) error {
	return json.Unmarshal(c.current, v)
}

func (c *pgCursor) Err() error { return c.err }

func (c *pgCursor) Close() error { return c.rows.Close() }
