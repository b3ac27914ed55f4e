// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/vaspdb/internal/vaspio"
	"github.com/pdiddy/vaspdb/pkg/types"
)

// DefaultSQLitePath is used when no database path is configured.
const DefaultSQLitePath = "vaspdb.sqlite"

// SQLite stores task documents as JSON rows with the query fields
// broken out into columns.
type SQLite struct {
	db *sql.DB
}

var _ TaskStore = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path and its schema.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer keeps counter increments and dedup lookups serialized.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id INTEGER PRIMARY KEY,
			dir_name TEXT NOT NULL UNIQUE,
			chemsys TEXT,
			pretty_formula TEXT,
			state TEXT,
			run_type TEXT,
			elements TEXT,
			last_updated TEXT,
			doc TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_chemsys ON tasks(chemsys)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_formula ON tasks(pretty_formula)`,
		`CREATE TABLE IF NOT EXISTS counter (
			id TEXT PRIMARY KEY,
			c INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dos_fs (
			id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			created TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Atomic runs fn inside one database transaction.
func (s *SQLite) Atomic(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) FindByDir(ctx context.Context, dirName string) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `SELECT task_id FROM tasks WHERE dir_name = ?`, dirName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *sqliteTx) NextTaskID(ctx context.Context) (int64, error) {
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO counter (id, c) VALUES (?, 1) ON CONFLICT(id) DO NOTHING`, counterID); err != nil {
		return 0, err
	}
	var c int64
	if err := t.tx.QueryRowContext(ctx, `SELECT c FROM counter WHERE id = ?`, counterID).Scan(&c); err != nil {
		return 0, err
	}
	// Databases written before presets reserved their ids can hold a
	// task at the counter's value.
	for {
		var taken bool
		if err := t.tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM tasks WHERE task_id = ?)`, c).Scan(&taken); err != nil {
			return 0, err
		}
		if !taken {
			break
		}
		c++
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE counter SET c = ? WHERE id = ?`, c+1, counterID); err != nil {
		return 0, err
	}
	return c, nil
}

func (t *sqliteTx) ReserveTaskID(ctx context.Context, taskID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO counter (id, c) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET c = max(c, excluded.c)`,
		counterID, taskID+1)
	return err
}

func (t *sqliteTx) Insert(ctx context.Context, doc *types.TaskDoc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}
	cols, err := columnsOf(doc)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO tasks (task_id, dir_name, chemsys, pretty_formula, state, run_type, elements, last_updated, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.TaskID, doc.DirName, cols.chemsys, cols.formula, cols.state, cols.runType,
		cols.elements, cols.lastUpdated, string(data))
	return err
}

func (t *sqliteTx) Update(ctx context.Context, doc *types.TaskDoc) error {
	var stored string
	if err := t.tx.QueryRowContext(ctx,
		`SELECT doc FROM tasks WHERE dir_name = ?`, doc.DirName).Scan(&stored); err != nil {
		return err
	}
	merged, err := mergeTopLevel([]byte(stored), doc)
	if err != nil {
		return err
	}
	var full types.TaskDoc
	if err := json.Unmarshal(merged, &full); err != nil {
		return fmt.Errorf("decoding merged task: %w", err)
	}
	cols, err := columnsOf(&full)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE tasks SET task_id = ?, chemsys = ?, pretty_formula = ?, state = ?, run_type = ?,
			elements = ?, last_updated = ?, doc = ?
		WHERE dir_name = ?`,
		doc.TaskID, cols.chemsys, cols.formula, cols.state, cols.runType,
		cols.elements, cols.lastUpdated, string(merged), doc.DirName)
	return err
}

func (t *sqliteTx) PutDOS(ctx context.Context, dos *vaspio.DOS) (string, error) {
	data, err := json.Marshal(dos)
	if err != nil {
		return "", fmt.Errorf("marshaling dos: %w", err)
	}
	id := uuid.NewString()
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO dos_fs (id, data, created) VALUES (?, ?, ?)`,
		id, data, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return "", err
	}
	return id, nil
}

// mergeTopLevel overlays doc's top-level keys onto the stored JSON, the
// way a $set update does.
func mergeTopLevel(stored []byte, doc *types.TaskDoc) ([]byte, error) {
	var base map[string]json.RawMessage
	if err := json.Unmarshal(stored, &base); err != nil {
		return nil, fmt.Errorf("decoding stored task: %w", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling task: %w", err)
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(data, &patch); err != nil {
		return nil, err
	}
	for k, v := range patch {
		base[k] = v
	}
	return json.Marshal(base)
}

type taskColumns struct {
	chemsys, formula, state, runType, elements, lastUpdated string
}

func columnsOf(doc *types.TaskDoc) (taskColumns, error) {
	els := doc.Elements
	if els == nil {
		els = []string{}
	}
	elJSON, err := json.Marshal(els)
	if err != nil {
		return taskColumns{}, err
	}
	return taskColumns{
		chemsys:     doc.Chemsys,
		formula:     doc.PrettyFormula,
		state:       string(doc.State),
		runType:     doc.RunType,
		elements:    string(elJSON),
		lastUpdated: doc.LastUpdated.Format(time.RFC3339Nano),
	}, nil
}

// Get returns the task with the given id.
func (s *SQLite) Get(ctx context.Context, taskID int64) (*types.TaskDoc, error) {
	return s.getOne(ctx, `SELECT doc FROM tasks WHERE task_id = ?`, taskID)
}

// GetByDir returns the task stored for dirName.
func (s *SQLite) GetByDir(ctx context.Context, dirName string) (*types.TaskDoc, error) {
	return s.getOne(ctx, `SELECT doc FROM tasks WHERE dir_name = ?`, dirName)
}

func (s *SQLite) getOne(ctx context.Context, query string, arg any) (*types.TaskDoc, error) {
	var data string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying task: %w", err)
	}
	var doc types.TaskDoc
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	return &doc, nil
}

// Retrieve returns the tasks matching opts ordered by task id.
func (s *SQLite) Retrieve(ctx context.Context, opts QueryOptions) ([]*types.TaskDoc, error) {
	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`SELECT t.doc FROM tasks t WHERE 1=1`)

	if opts.Chemsys != "" {
		qb.WriteString(` AND t.chemsys = ?`)
		args = append(args, opts.Chemsys)
	}
	if opts.Formula != "" {
		qb.WriteString(` AND t.pretty_formula = ?`)
		args = append(args, opts.Formula)
	}
	if opts.State != "" {
		qb.WriteString(` AND t.state = ?`)
		args = append(args, string(opts.State))
	}
	if opts.RunType != "" {
		qb.WriteString(` AND t.run_type = ?`)
		args = append(args, opts.RunType)
	}
	for _, el := range opts.Elements {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(t.elements) WHERE value = ?)`)
		args = append(args, el)
	}
	qb.WriteString(` ORDER BY t.task_id LIMIT ?`)
	args = append(args, opts.limit())

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var docs []*types.TaskDoc
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		var doc types.TaskDoc
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, fmt.Errorf("decoding task: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// DOS loads a stored density of states.
func (s *SQLite) DOS(ctx context.Context, id string) (*vaspio.DOS, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM dos_fs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dos %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying dos: %w", err)
	}
	var dos vaspio.DOS
	if err := json.Unmarshal(data, &dos); err != nil {
		return nil, fmt.Errorf("decoding dos: %w", err)
	}
	return &dos, nil
}
