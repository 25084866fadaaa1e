// Package sqlshare reads share records from the file service's relational
// sharing table:
//
//	<prefix>sharing(uid_owner, source, target, uid_shared_with)
//
// The package does not register any driver; import one (go-sqlite3, lib/pq,
// go-sql-driver/mysql) next to it and pass the opened *sql.DB to New.
package sqlshare

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rbaliyan/keymanager"
)

// Placeholder is the bind variable style of a SQL dialect.
type Placeholder int

const (
	// Question binds with "?" (SQLite, MySQL).
	Question Placeholder = iota
	// Dollar binds with "$1", "$2", ... (PostgreSQL).
	Dollar
)

// PlaceholderFor returns the placeholder style of a database/sql driver name.
func PlaceholderFor(driver string) Placeholder {
	switch driver {
	case "postgres", "pgx":
		return Dollar
	}
	return Question
}

// DefaultTable is the sharing table name without prefix.
const DefaultTable = "sharing"

const columns = "uid_owner, source, target, uid_shared_with"

// Index is a keymanager.ShareIndex backed by a SQL table. It never orders
// results itself: records come back in the database's return order.
type Index struct {
	db          *sql.DB
	table       string
	placeholder Placeholder
	err         error

	byTarget string
	bySource string
	insert   string
}

// Option configures an Index.
type Option func(*Index)

// WithTablePrefix prepends prefix to the sharing table name, e.g. "oc_" gives "oc_sharing".
func WithTablePrefix(prefix string) Option {
	return func(ix *Index) {
		ix.table = prefix + DefaultTable
	}
}

// WithTable sets the full table name.
func WithTable(name string) Option {
	return func(ix *Index) {
		ix.table = name
	}
}

// WithPlaceholder sets the bind variable style. The default is Question.
func WithPlaceholder(p Placeholder) Option {
	return func(ix *Index) {
		if p != Question && p != Dollar {
			ix.err = fmt.Errorf("sqlshare: unknown placeholder style %d", p)
			return
		}
		ix.placeholder = p
	}
}

// New creates an Index over db.
func New(db *sql.DB, opts ...Option) (*Index, error) {
	if db == nil {
		return nil, errors.New("sqlshare: db is nil")
	}
	ix := &Index{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.err != nil {
		return nil, ix.err
	}
	if !validIdent(ix.table) {
		return nil, fmt.Errorf("sqlshare: invalid table name %q", ix.table)
	}

	ix.byTarget = ix.bind("SELECT " + columns + " FROM " + ix.table + " WHERE target = ? AND uid_shared_with = ?")
	ix.bySource = ix.bind("SELECT " + columns + " FROM " + ix.table + " WHERE source = ?")
	ix.insert = ix.bind("INSERT INTO " + ix.table + " (" + columns + ") VALUES (?, ?, ?, ?)")
	return ix, nil
}

// Compile-time interface check.
var _ keymanager.ShareIndex = (*Index)(nil)

// Table returns the table name in use.
func (ix *Index) Table() string {
	return ix.table
}

// SharesByTarget returns the records that expose target to sharedWith.
func (ix *Index) SharesByTarget(ctx context.Context, target string, sharedWith keymanager.Identity) ([]keymanager.ShareRecord, error) {
	return ix.query(ctx, ix.byTarget, target, string(sharedWith))
}

// SharesBySource returns every record sharing source.
func (ix *Index) SharesBySource(ctx context.Context, source string) ([]keymanager.ShareRecord, error) {
	return ix.query(ctx, ix.bySource, source)
}

// Insert adds a share record. The sharing subsystem owns this table; Insert
// exists for provisioning and tests.
func (ix *Index) Insert(ctx context.Context, rec keymanager.ShareRecord) error {
	_, err := ix.db.ExecContext(ctx, ix.insert,
		string(rec.Owner), rec.Source, rec.Target, string(rec.SharedWith))
	if err != nil {
		return fmt.Errorf("sqlshare: insert into %s: %w", ix.table, err)
	}
	return nil
}

// CreateSchema creates the sharing table when it does not exist.
func (ix *Index) CreateSchema(ctx context.Context) error {
	stmt := "CREATE TABLE IF NOT EXISTS " + ix.table + ` (
        uid_owner VARCHAR(64) NOT NULL,
        source VARCHAR(512) NOT NULL,
        target VARCHAR(512) NOT NULL,
        uid_shared_with VARCHAR(64) NOT NULL)`
	if _, err := ix.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlshare: create %s: %w", ix.table, err)
	}
	return nil
}

func (ix *Index) query(ctx context.Context, q string, args ...any) ([]keymanager.ShareRecord, error) {
	rows, err := ix.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlshare: query %s: %w", ix.table, err)
	}
	defer rows.Close()

	var out []keymanager.ShareRecord
	for rows.Next() {
		var owner, source, target, sharedWith string
		if err := rows.Scan(&owner, &source, &target, &sharedWith); err != nil {
			return nil, fmt.Errorf("sqlshare: scan %s: %w", ix.table, err)
		}
		out = append(out, keymanager.ShareRecord{
			Owner:      keymanager.Identity(owner),
			Source:     source,
			Target:     target,
			SharedWith: keymanager.Identity(sharedWith),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlshare: read %s: %w", ix.table, err)
	}
	return out, nil
}

// bind rewrites "?" placeholders for the configured dialect.
func (ix *Index) bind(q string) string {
	if ix.placeholder != Dollar {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
