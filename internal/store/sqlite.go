package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dgallion1/pagetree/internal/doctree"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore persists the tree in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	q    querier
	inTx bool
	log  *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path string, log *slog.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps in-memory databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("opened tree store", "path", path)
	return &SQLiteStore{db: db, q: db, log: log}, nil
}

func migrate(db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.inTx {
		return nil
	}
	return s.db.Close()
}

const nodeColumns = `id, kind, tag, name, document_id, parent_id, shared_component_id, linkable_id,
	path, checksum, visible_to_public, visible_to_auth, props, grants, created_at`

func (s *SQLiteStore) insert(ctx context.Context, n *doctree.Node, key sql.NullString) (int64, error) {
	props, err := json.Marshal(n.Props)
	if err != nil {
		return 0, fmt.Errorf("encode props of %s: %w", n.ID, err)
	}
	grants, err := json.Marshal(n.Grants)
	if err != nil {
		return 0, fmt.Errorf("encode grants of %s: %w", n.ID, err)
	}
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx, `INSERT INTO nodes (`+nodeColumns+`, unique_key)
		VALUES (?, ?, ?, ?, ?, '', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unique_key) DO NOTHING`,
		n.ID, string(n.Kind), n.Tag, n.Name, n.DocumentID, n.SharedComponentID, n.LinkableID,
		n.Path, n.Checksum, n.VisibleToPublic, n.VisibleToAuth, string(props), string(grants),
		created.Format(time.RFC3339Nano), key)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("create node %s: %w", n.ID, ErrConflict)
		}
		return 0, fmt.Errorf("create node %s: %w", n.ID, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) CreateNode(ctx context.Context, n *doctree.Node) error {
	if n.ID == "" {
		return fmt.Errorf("create node: empty id")
	}
	_, err := s.insert(ctx, n, sql.NullString{})
	return err
}

func (s *SQLiteStore) CreateUniqueNode(ctx context.Context, n *doctree.Node, key string) (*doctree.Node, bool, error) {
	affected, err := s.insert(ctx, n, sql.NullString{String: key, Valid: true})
	if err != nil {
		return nil, false, err
	}
	if affected == 1 {
		created, err := s.GetNode(ctx, n.ID)
		return created, true, err
	}
	row := s.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE unique_key = ?`, key)
	existing, err := scanNode(row)
	if err != nil {
		return nil, false, fmt.Errorf("load unique node %q: %w", key, err)
	}
	return existing, false, nil
}

func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*doctree.Node, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	return n, nil
}

func (s *SQLiteStore) UpdateNode(ctx context.Context, n *doctree.Node) error {
	props, err := json.Marshal(n.Props)
	if err != nil {
		return fmt.Errorf("encode props of %s: %w", n.ID, err)
	}
	grants, err := json.Marshal(n.Grants)
	if err != nil {
		return fmt.Errorf("encode grants of %s: %w", n.ID, err)
	}
	res, err := s.q.ExecContext(ctx, `UPDATE nodes SET kind = ?, tag = ?, name = ?, document_id = ?,
		shared_component_id = ?, linkable_id = ?, path = ?, checksum = ?,
		visible_to_public = ?, visible_to_auth = ?, props = ?, grants = ?
		WHERE id = ?`,
		string(n.Kind), n.Tag, n.Name, n.DocumentID, n.SharedComponentID, n.LinkableID,
		n.Path, n.Checksum, n.VisibleToPublic, n.VisibleToAuth, string(props), string(grants), n.ID)
	if err != nil {
		return fmt.Errorf("update node %s: %w", n.ID, err)
	}
	return expectOne(res, fmt.Sprintf("update node %s", n.ID))
}

func (s *SQLiteStore) DeleteNode(ctx context.Context, id string) error {
	if _, err := s.q.ExecContext(ctx, `UPDATE nodes SET parent_id = ''
		WHERE id IN (SELECT child_id FROM children WHERE parent_id = ?)`, id); err != nil {
		return fmt.Errorf("detach children of %s: %w", id, err)
	}
	for _, stmt := range []string{
		`DELETE FROM children WHERE parent_id = ? OR child_id = ?`,
		`DELETE FROM action_mappings WHERE element_id = ? OR element_id = ?`,
	} {
		if _, err := s.q.ExecContext(ctx, stmt, id, id); err != nil {
			return fmt.Errorf("delete node %s: %w", id, err)
		}
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("delete node %s", id))
}

func (s *SQLiteStore) FindNodes(ctx context.Context, q Query) ([]*doctree.Node, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		where = append(where, clause)
		args = append(args, v)
	}
	if q.DocumentID != "" {
		add("document_id = ?", q.DocumentID)
	}
	if q.Name != "" {
		add("name = ?", q.Name)
	}
	if q.Path != "" {
		add("path = ?", q.Path)
	}
	if q.Checksum != "" {
		add("checksum = ?", q.Checksum)
	}
	if q.SharedComponentID != "" {
		add("shared_component_id = ?", q.SharedComponentID)
	}
	if q.TopLevel {
		where = append(where, "parent_id = ''")
	}
	if len(q.Kinds) > 0 {
		marks := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			marks[i] = "?"
			args = append(args, string(k))
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + nodeColumns + ` FROM nodes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find nodes: %w", err)
	}
	defer rows.Close()

	var out []*doctree.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("find nodes: %w", err)
		}
		// Property filters run on the decoded map.
		if q.Matches(n) {
			out = append(out, n)
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Children(ctx context.Context, parentID string) ([]Relationship, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT parent_id, child_id, position FROM children
		WHERE parent_id = ? ORDER BY position, rowid`, parentID)
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", parentID, err)
	}
	defer rows.Close()

	var out []Relationship
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.ParentID, &r.ChildID, &r.Position); err != nil {
			return nil, fmt.Errorf("children of %s: %w", parentID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Link(ctx context.Context, parentID, childID string, position int) error {
	var exists int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes WHERE id = ?`, parentID).Scan(&exists); err != nil {
		return fmt.Errorf("link parent %s: %w", parentID, err)
	}
	if exists == 0 {
		return fmt.Errorf("link parent %s: %w", parentID, ErrNotFound)
	}
	var current string
	err := s.q.QueryRowContext(ctx, `SELECT parent_id FROM nodes WHERE id = ?`, childID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("link child %s: %w", childID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("link child %s: %w", childID, err)
	}
	if current != "" {
		return fmt.Errorf("link %s: already a child of %s: %w", childID, current, ErrConflict)
	}
	if _, err := s.q.ExecContext(ctx, `INSERT INTO children (parent_id, child_id, position) VALUES (?, ?, ?)`,
		parentID, childID, position); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("link %s: %w", childID, ErrConflict)
		}
		return fmt.Errorf("link %s to %s: %w", childID, parentID, err)
	}
	if _, err := s.q.ExecContext(ctx, `UPDATE nodes SET parent_id = ? WHERE id = ?`, parentID, childID); err != nil {
		return fmt.Errorf("link %s to %s: %w", childID, parentID, err)
	}
	return nil
}

func (s *SQLiteStore) Unlink(ctx context.Context, parentID, childID string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM children WHERE parent_id = ? AND child_id = ?`, parentID, childID)
	if err != nil {
		return fmt.Errorf("unlink %s from %s: %w", childID, parentID, err)
	}
	if err := expectOne(res, fmt.Sprintf("unlink %s from %s", childID, parentID)); err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx, `UPDATE nodes SET parent_id = '' WHERE id = ?`, childID); err != nil {
		return fmt.Errorf("unlink %s from %s: %w", childID, parentID, err)
	}
	return nil
}

func (s *SQLiteStore) SetPosition(ctx context.Context, parentID, childID string, position int) error {
	res, err := s.q.ExecContext(ctx, `UPDATE children SET position = ? WHERE parent_id = ? AND child_id = ?`,
		position, parentID, childID)
	if err != nil {
		return fmt.Errorf("set position of %s: %w", childID, err)
	}
	return expectOne(res, fmt.Sprintf("set position of %s under %s", childID, parentID))
}

func (s *SQLiteStore) SaveActionMapping(ctx context.Context, m *doctree.ActionMapping) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode action mapping %s: %w", m.ID, err)
	}
	if _, err := s.q.ExecContext(ctx, `INSERT INTO action_mappings (id, element_id, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET element_id = excluded.element_id, data = excluded.data`,
		m.ID, m.ElementID, string(data)); err != nil {
		return fmt.Errorf("save action mapping %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ActionMappings(ctx context.Context, elementID string) ([]*doctree.ActionMapping, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT data FROM action_mappings WHERE element_id = ? ORDER BY rowid`, elementID)
	if err != nil {
		return nil, fmt.Errorf("action mappings of %s: %w", elementID, err)
	}
	defer rows.Close()

	var out []*doctree.ActionMapping
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("action mappings of %s: %w", elementID, err)
		}
		var m doctree.ActionMapping
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("decode action mapping: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// WithTx runs fn inside a database transaction. Nested calls join the
// outer transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txStore := &SQLiteStore{db: s.db, q: tx, inTx: true, log: s.log}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*doctree.Node, error) {
	var (
		n              doctree.Node
		kind           string
		props, grants  string
		created        string
		public, authed bool
	)
	if err := row.Scan(&n.ID, &kind, &n.Tag, &n.Name, &n.DocumentID, &n.ParentID, &n.SharedComponentID,
		&n.LinkableID, &n.Path, &n.Checksum, &public, &authed, &props, &grants, &created); err != nil {
		return nil, err
	}
	n.Kind = doctree.Kind(kind)
	n.VisibleToPublic = public
	n.VisibleToAuth = authed
	if err := json.Unmarshal([]byte(props), &n.Props); err != nil {
		return nil, fmt.Errorf("decode props of %s: %w", n.ID, err)
	}
	if err := json.Unmarshal([]byte(grants), &n.Grants); err != nil {
		return nil, fmt.Errorf("decode grants of %s: %w", n.ID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, fmt.Errorf("decode created_at of %s: %w", n.ID, err)
	}
	n.CreatedAt = t
	return &n, nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
