package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// schema if needed.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS facts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	signature TEXT NOT NULL,
	functor TEXT NOT NULL,
	arg0 TEXT,
	arg1 TEXT,
	args TEXT NOT NULL,
	weight REAL NOT NULL DEFAULT 0,
	UNIQUE(signature, args)
);

CREATE INDEX IF NOT EXISTS facts_arg0 ON facts(signature, arg0);
CREATE INDEX IF NOT EXISTS facts_arg1 ON facts(signature, arg1);

CREATE TABLE IF NOT EXISTS groundings (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	query TEXT NOT NULL,
	line TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS groundings_run ON groundings(run_id, id);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

func nullableArg(args []string, i int) sql.NullString {
	if i < len(args) {
		return sql.NullString{String: args[i], Valid: true}
	}
	return sql.NullString{}
}

// AddFact inserts a fact or replaces the weight of an existing one.
func (s *sqliteStore) AddFact(ctx context.Context, f store.Fact) error {
	if err := f.Validate(); err != nil {
		return err
	}
	args, err := json.Marshal(nonNil(f.Args))
	if err != nil {
		return err
	}

	const stmt = `
INSERT INTO facts (signature, functor, arg0, arg1, args, weight)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(signature, args) DO UPDATE SET weight=excluded.weight;
`
	_, err = s.db.ExecContext(ctx, stmt,
		f.Signature(),
		f.Functor,
		nullableArg(f.Args, 0),
		nullableArg(f.Args, 1),
		string(args),
		f.Weight,
	)
	return err
}

// FactsFor returns every fact of a predicate in insertion order.
func (s *sqliteStore) FactsFor(ctx context.Context, signature string) ([]store.Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT functor, args, weight FROM facts WHERE signature = ? ORDER BY id`, signature)
	if err != nil {
		return nil, err
	}
	return scanFacts(rows, -1, "")
}

// Lookup returns the facts of a predicate whose argument at position equals
// value. The first two positions are served from an index.
func (s *sqliteStore) Lookup(ctx context.Context, signature string, position int, value string) ([]store.Fact, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch position {
	case 0:
		rows, err = s.db.QueryContext(ctx,
			`SELECT functor, args, weight FROM facts WHERE signature = ? AND arg0 = ? ORDER BY id`, signature, value)
	case 1:
		rows, err = s.db.QueryContext(ctx,
			`SELECT functor, args, weight FROM facts WHERE signature = ? AND arg1 = ? ORDER BY id`, signature, value)
	default:
		rows, err = s.db.QueryContext(ctx,
			`SELECT functor, args, weight FROM facts WHERE signature = ? ORDER BY id`, signature)
	}
	if err != nil {
		return nil, err
	}
	return scanFacts(rows, position, value)
}

// scanFacts decodes fact rows, keeping only those with value at position
// when position is non-negative.
func scanFacts(rows *sql.Rows, position int, value string) ([]store.Fact, error) {
	defer rows.Close()

	var out []store.Fact
	for rows.Next() {
		var (
			f    store.Fact
			args string
		)
		if err := rows.Scan(&f.Functor, &args, &f.Weight); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(args), &f.Args); err != nil {
			return nil, fmt.Errorf("decode fact args: %w", err)
		}
		if position >= 0 && (position >= len(f.Args) || f.Args[position] != value) {
			continue
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Signatures lists the stored predicates in lexical order.
func (s *sqliteStore) Signatures(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT signature FROM facts ORDER BY signature`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sig string
		if err := rows.Scan(&sig); err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// SaveGrounding archives one grounded line.
func (s *sqliteStore) SaveGrounding(ctx context.Context, g store.Grounding) error {
	if g.ID == "" || g.RunID == "" {
		return fmt.Errorf("%w: grounding needs an id and a run id", internalerr.ErrInvalidInput)
	}
	created := g.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groundings (id, run_id, query, line, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.ID, g.RunID, g.Query, g.Line, created.UTC().Format(time.RFC3339Nano))
	return err
}

// Groundings returns a run's lines ordered by ID.
func (s *sqliteStore) Groundings(ctx context.Context, runID string) ([]store.Grounding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, query, line, created_at FROM groundings WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Grounding
	for rows.Next() {
		var (
			g       store.Grounding
			created string
		)
		if err := rows.Scan(&g.ID, &g.RunID, &g.Query, &g.Line, &created); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			g.CreatedAt = t
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func nonNil(args []string) []string {
	if args == nil {
		return []string{}
	}
	return args
}
