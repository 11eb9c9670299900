package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/NordCoder/Puntos/internal/domain/kv"
)

var _ kv.Store = (*KVRepo)(nil)

// KVRepo keeps scheduler state in the kv_store table.
type KVRepo struct{ db *DB }

func NewKVRepo(db *DB) *KVRepo { return &KVRepo{db: db} }

const (
	qKVGet = `SELECT value FROM kv_store WHERE key = $1;`

	qKVSet = `
INSERT INTO kv_store (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now();`

	qKVDelete = `DELETE FROM kv_store WHERE key = ANY($1);`

	qKVKeys = `SELECT key FROM kv_store WHERE key LIKE $1 ESCAPE '\' ORDER BY key;`
)

func (r *KVRepo) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var v string
	if err := r.db.Pool.QueryRow(ctx, qKVGet, key).Scan(&v); err != nil {
		if isNoRows(err) {
			return "", kv.ErrNotFound
		}
		return "", fmt.Errorf("kv get %q: %w", key, err)
	}
	return v, nil
}

func (r *KVRepo) Set(ctx context.Context, key, value string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qKVSet, key, value); err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (r *KVRepo) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qKVDelete, keys); err != nil {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

func (r *KVRepo) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qKVKeys, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("kv keys scan: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) string { return likeEscaper.Replace(prefix) + "%" }
