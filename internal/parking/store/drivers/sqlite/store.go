package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/store"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:  db,
		dsn: dsn,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Nodes() store.Nodes { return &nodesRepo{db: s.db, now: s.now} }
func (s *Store) Users() store.Users { return &usersRepo{db: s.db, now: s.now} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapConstraint(err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return store.ErrAlreadyExists
		}
	}
	return err
}

// update collects the SET and WHERE fragments of a conditional update.
type update struct {
	sets  []string
	args  []any
	conds []string
	cargs []any
}

func (u *update) set(column string, v any) {
	u.sets = append(u.sets, column+" = ?")
	u.args = append(u.args, v)
}

func (u *update) where(clause string, args ...any) {
	u.conds = append(u.conds, clause)
	u.cargs = append(u.cargs, args...)
}

func (u *update) query(table, id string) (string, []any) {
	q := "UPDATE " + table + " SET " + strings.Join(u.sets, ", ") + " WHERE id = ?"
	args := append(append([]any{}, u.args...), id)
	for _, c := range u.conds {
		q += " AND " + c
	}
	return q, append(args, u.cargs...)
}

// exec runs the update and tells a missing row apart from a guard miss.
func (u *update) exec(ctx context.Context, db *sql.DB, table, id string) error {
	q, args := u.query(table, id)
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var one int
	err = db.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if err != nil {
		return mapNotFound(err)
	}
	return store.ErrConflict
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixNano(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnixNano(n int64) time.Time { return time.Unix(0, n).UTC() }
