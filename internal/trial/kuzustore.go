//go:build cgo

package trial

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements the Store interface using KuzuDB as the ledger
// backend. It requires CGO because the go-kuzu driver wraps KuzuDB's C
// library.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at
// the given directory path, so the ledger survives across runs. KuzuDB
// creates the leaf directory itself for new databases.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ddlStatements defines the Cypher DDL executed by InitSchema.
// Node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Pseudo(
		name STRING,
		PRIMARY KEY(name)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Trial(
		id STRING,
		pseudo STRING,
		level INT64,
		dojo_key STRING,
		ok BOOLEAN,
		started_at INT64,
		ended_at INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS TRIED(FROM Pseudo TO Trial)`,
}

// InitSchema creates the node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// AddTrial inserts a Trial node linked to its Pseudo node, creating the
// Pseudo node on first sight.
func (s *KuzuStore) AddTrial(ctx context.Context, rec Record) error {
	known, err := s.pseudoExists(rec.Pseudo)
	if err != nil {
		return err
	}
	if !known {
		if err := s.exec(
			"CREATE (p:Pseudo {name: $name})",
			map[string]any{"name": rec.Pseudo},
		); err != nil {
			return err
		}
	}

	if err := s.exec(
		`CREATE (t:Trial {
			id: $id,
			pseudo: $pseudo,
			level: $level,
			dojo_key: $key,
			ok: $ok,
			started_at: $started,
			ended_at: $ended
		})`,
		map[string]any{
			"id":      rec.ID,
			"pseudo":  rec.Pseudo,
			"level":   int64(rec.Level),
			"key":     rec.Key,
			"ok":      rec.OK,
			"started": rec.StartedAt.UnixMilli(),
			"ended":   rec.EndedAt.UnixMilli(),
		},
	); err != nil {
		return err
	}

	return s.exec(
		`MATCH (p:Pseudo {name: $name}), (t:Trial {id: $id})
		 CREATE (p)-[:TRIED]->(t)`,
		map[string]any{"name": rec.Pseudo, "id": rec.ID},
	)
}

// ListTrials returns all trials of one pseudopotential, oldest first.
func (s *KuzuStore) ListTrials(_ context.Context, pseudoName string) ([]Record, error) {
	rows, err := s.query(
		`MATCH (p:Pseudo {name: $name})-[:TRIED]->(t:Trial)
		 RETURN t.id, t.pseudo, t.level, t.dojo_key, t.ok, t.started_at, t.ended_at
		 ORDER BY t.started_at`,
		map[string]any{"name": pseudoName},
	)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToRecord(r))
	}
	return out, nil
}

// LastTrial returns the most recent trial, or nil when there is none.
func (s *KuzuStore) LastTrial(_ context.Context, pseudoName string) (*Record, error) {
	rows, err := s.query(
		`MATCH (p:Pseudo {name: $name})-[:TRIED]->(t:Trial)
		 RETURN t.id, t.pseudo, t.level, t.dojo_key, t.ok, t.started_at, t.ended_at
		 ORDER BY t.started_at DESC
		 LIMIT 1`,
		map[string]any{"name": pseudoName},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rowToRecord(rows[0])
	return &rec, nil
}

// Stats returns ledger-wide counts.
func (s *KuzuStore) Stats(_ context.Context) (*Stats, error) {
	pseudos, err := s.countQuery("MATCH (p:Pseudo) RETURN count(p)")
	if err != nil {
		return nil, err
	}
	trials, err := s.countQuery("MATCH (t:Trial) RETURN count(t)")
	if err != nil {
		return nil, err
	}
	passed, err := s.countQuery("MATCH (t:Trial) WHERE t.ok RETURN count(t)")
	if err != nil {
		return nil, err
	}
	return &Stats{Pseudos: pseudos, Trials: trials, Passed: passed}, nil
}

func (s *KuzuStore) pseudoExists(name string) (bool, error) {
	rows, err := s.query(
		"MATCH (p:Pseudo {name: $name}) RETURN p.name",
		map[string]any{"name": name},
	)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func (s *KuzuStore) countQuery(cypher string) (int, error) {
	rows, err := s.query(cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// rowToRecord converts a 7-column result row into a Record.
// Column order: id, pseudo, level, dojo_key, ok, started_at, ended_at.
func rowToRecord(r []any) Record {
	return Record{
		ID:        toString(r[0]),
		Pseudo:    toString(r[1]),
		Level:     toInt(r[2]),
		Key:       toString(r[3]),
		OK:        toBool(r[4]),
		StartedAt: time.UnixMilli(int64(toInt(r[5]))).UTC(),
		EndedAt:   time.UnixMilli(int64(toInt(r[6]))).UTC(),
	}
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string).
// These helpers safely coerce any -> concrete type.

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
