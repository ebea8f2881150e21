package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the stored version moved since it was read.
	ErrConflict = errors.New("version conflict")
)

// Load returns the blob stored under key or ErrNotFound.
func (s *Store) Load(ctx context.Context, key string) (Blob, error) {
	q := s.sql.Select("value", "version").
		From("kv_blobs").
		Where(sq.Eq{"store_key": key})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return Blob{}, fmt.Errorf("build load blob query: %w", err)
	}

	var value string
	var version int64
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&value, &version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Blob{}, ErrNotFound
		}
		return Blob{}, fmt.Errorf("load blob %q: %w", key, err)
	}
	return Blob{Key: key, Value: []byte(value), Version: version}, nil
}

// Put writes value under key. expectVersion 0 means the key must not exist
// yet; any other value must match the stored version. The new version is
// returned.
func (s *Store) Put(ctx context.Context, key string, value []byte, expectVersion int64) (int64, error) {
	if expectVersion == 0 {
		return s.insertBlob(ctx, key, value)
	}

	q := s.sql.Update("kv_blobs").
		Set("value", string(value)).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", nowExpr(s.driver)).
		Where(sq.Eq{"store_key": key, "version": expectVersion})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update blob query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("update blob %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update blob %q: %w", key, err)
	}
	if n == 0 {
		return 0, ErrConflict
	}
	return expectVersion + 1, nil
}

func (s *Store) insertBlob(ctx context.Context, key string, value []byte) (int64, error) {
	q := s.sql.Insert("kv_blobs").
		Columns("store_key", "value", "version", "updated_at").
		Values(key, string(value), 1, nowExpr(s.driver)).
		Suffix("ON CONFLICT(store_key) DO NOTHING")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert blob query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("insert blob %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert blob %q: %w", key, err)
	}
	if n == 0 {
		return 0, ErrConflict
	}
	return 1, nil
}

func (s *Store) LogAction(ctx context.Context, e AuditEntry) error {
	if strings.TrimSpace(e.MetaJSON) == "" || !json.Valid([]byte(e.MetaJSON)) {
		e.MetaJSON = "{}"
	}

	q := s.sql.Insert("audit_log").
		Columns("actor", "action", "target", "meta_json").
		Values(e.Actor, e.Action, e.Target, e.MetaJSON)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListActions returns the newest audit entries first.
func (s *Store) ListActions(ctx context.Context, limit uint64) ([]AuditEntry, error) {
	if limit == 0 {
		limit = 50
	}
	q := s.sql.Select("id", "actor", "action", "target", "meta_json", "created_at").
		From("audit_log").
		OrderBy("id DESC").
		Limit(limit)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]AuditEntry, 0)
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Target, &e.MetaJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return out, nil
}

func nowExpr(driver string) any {
	if driver == "postgres" {
		return sq.Expr("NOW()")
	}
	return sq.Expr("CURRENT_TIMESTAMP")
}
