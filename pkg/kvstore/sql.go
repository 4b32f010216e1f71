package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type sqlStore struct {
	db *sql.DB
}

// NewSQLStore returns a Store over the kv_hashes, kv_zsets and kv_counters tables.
// Queries use $n placeholders and ON CONFLICT upserts, valid for both PostgreSQL and SQLite.
func NewSQLStore(db *sql.DB) *sqlStore {
	return &sqlStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// HSet writes all fields in one transaction.
func (s *sqlStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	return s.Exec(ctx, NewBatch().HSet(key, fields))
}

func hset(ctx context.Context, ex execer, key string, fields map[string]string) error {
	const query = `
		INSERT INTO kv_hashes (name, field, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, field)
		DO UPDATE SET value = EXCLUDED.value
	`

	for field, value := range fields {
		if _, err := ex.ExecContext(ctx, query, key, field, value); err != nil {
			return fmt.Errorf("setting %s.%s: %w", key, field, err)
		}
	}
	return nil
}

func (s *sqlStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	const query = `
		SELECT field, value
		FROM kv_hashes
		WHERE name = $1
	`

	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("fetching hash %s: %w", key, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scanning hash %s: %w", key, err)
		}
		out[field] = value
	}
	return out, rows.Err()
}

func (s *sqlStore) ZAdd(ctx context.Context, key string, members ...Z) error {
	return s.Exec(ctx, NewBatch().ZAdd(key, members...))
}

func zadd(ctx context.Context, ex execer, key string, members []Z) error {
	const query = `
		INSERT INTO kv_zsets (name, member, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, member)
		DO UPDATE SET score = EXCLUDED.score
	`

	for _, m := range members {
		if _, err := ex.ExecContext(ctx, query, key, m.Member, m.Score); err != nil {
			return fmt.Errorf("adding %s to %s: %w", m.Member, key, err)
		}
	}
	return nil
}

func zaddNX(ctx context.Context, ex execer, key string, members []Z) error {
	const query = `
		INSERT INTO kv_zsets (name, member, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, member)
		DO NOTHING
	`

	for _, m := range members {
		if _, err := ex.ExecContext(ctx, query, key, m.Member, m.Score); err != nil {
			return fmt.Errorf("adding %s to %s: %w", m.Member, key, err)
		}
	}
	return nil
}

func zrem(ctx context.Context, ex execer, key string, members []Z) error {
	const query = `
		DELETE FROM kv_zsets
		WHERE name = $1 AND member = $2
	`

	for _, m := range members {
		if _, err := ex.ExecContext(ctx, query, key, m.Member); err != nil {
			return fmt.Errorf("removing %s from %s: %w", m.Member, key, err)
		}
	}
	return nil
}

func (s *sqlStore) ZRange(ctx context.Context, key string, offset, limit int) ([]Z, error) {
	return s.zrange(ctx, key, offset, limit, "ASC")
}

func (s *sqlStore) ZRevRange(ctx context.Context, key string, offset, limit int) ([]Z, error) {
	return s.zrange(ctx, key, offset, limit, "DESC")
}

func (s *sqlStore) zrange(ctx context.Context, key string, offset, limit int, direction string) ([]Z, error) {
	query := `
		SELECT member, score
		FROM kv_zsets
		WHERE name = $1
		ORDER BY score ` + direction + `, member ` + direction

	args := []any{key}
	if limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, max(offset, 0))
	}

	zs, err := s.queryZ(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ranging %s: %w", key, err)
	}
	if limit <= 0 {
		return page(zs, offset, 0), nil
	}
	return zs, nil
}

func (s *sqlStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]Z, error) {
	const query = `
		SELECT member, score
		FROM kv_zsets
		WHERE name = $1 AND score >= $2 AND score <= $3
		ORDER BY score ASC, member ASC
	`

	zs, err := s.queryZ(ctx, query, key, min, max)
	if err != nil {
		return nil, fmt.Errorf("ranging %s by score: %w", key, err)
	}
	return zs, nil
}

func (s *sqlStore) queryZ(ctx context.Context, query string, args ...any) ([]Z, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Z{}
	for rows.Next() {
		var z Z
		if err := rows.Scan(&z.Member, &z.Score); err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func (s *sqlStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	const query = `
		SELECT score
		FROM kv_zsets
		WHERE name = $1 AND member = $2
	`

	var score float64
	err := s.db.QueryRowContext(ctx, query, key, member).Scan(&score)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("fetching score of %s in %s: %w", member, key, err)
	}
	return score, true, nil
}

func (s *sqlStore) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	const query = `
		INSERT INTO kv_counters (name, value)
		VALUES ($1, $2)
		ON CONFLICT (name)
		DO UPDATE SET value = kv_counters.value + EXCLUDED.value
		RETURNING value
	`

	var value int64
	if err := s.db.QueryRowContext(ctx, query, key, n).Scan(&value); err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", key, err)
	}
	return value, nil
}

func (s *sqlStore) Exec(ctx context.Context, b *Batch) (err error) {
	if b.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, g := range b.guards() {
		if err = compareAndSet(ctx, tx, g); err != nil {
			return err
		}
	}

	for _, o := range b.writes() {
		switch o.kind {
		case opHSet:
			err = hset(ctx, tx, o.key, o.fields)
		case opZAdd:
			err = zadd(ctx, tx, o.key, o.members)
		case opZAddNX:
			err = zaddNX(ctx, tx, o.key, o.members)
		case opZRem:
			err = zrem(ctx, tx, o.key, o.members)
		}
		if err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

func compareAndSet(ctx context.Context, tx *sql.Tx, g op) error {
	const query = `
		UPDATE kv_hashes
		SET value = $1
		WHERE name = $2 AND field = $3 AND value = $4
	`

	res, err := tx.ExecContext(ctx, query, g.value, g.key, g.field, g.expected)
	if err != nil {
		return fmt.Errorf("checking %s.%s: %w", g.key, g.field, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking %s.%s: %w", g.key, g.field, err)
	}
	if n != 1 {
		return ErrConditionFailed
	}
	return nil
}

func (s *sqlStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
