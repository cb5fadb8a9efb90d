package valueset

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/measurekit/measurekit/internal/platform/db"
	"github.com/measurekit/measurekit/pkg/criteria"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type valueSetRepoPG struct{ pool *pgxpool.Pool }

func NewValueSetRepoPG(pool *pgxpool.Pool) ValueSetRepository {
	return &valueSetRepoPG{pool: pool}
}

func (r *valueSetRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const valueSetCols = `id, oid, name, codes, created_at, updated_at`

func (r *valueSetRepoPG) scanRow(row pgx.Row) (*ValueSet, error) {
	var vs ValueSet
	var codes []byte
	if err := row.Scan(&vs.ID, &vs.OID, &vs.Name, &codes, &vs.CreatedAt, &vs.UpdatedAt); err != nil {
		return nil, err
	}
	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &vs.Codes); err != nil {
			return nil, fmt.Errorf("decode codes for value set %s: %w", vs.OID, err)
		}
	}
	return &vs, nil
}

func (r *valueSetRepoPG) Upsert(ctx context.Context, vs *ValueSet) error {
	if vs.ID == uuid.Nil {
		vs.ID = uuid.New()
	}
	if vs.Codes == nil {
		vs.Codes = []criteria.Code{}
	}
	codes, err := json.Marshal(vs.Codes)
	if err != nil {
		return fmt.Errorf("encode codes for value set %s: %w", vs.OID, err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO value_set (id, oid, name, codes)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (oid) DO UPDATE SET name = EXCLUDED.name, codes = EXCLUDED.codes, updated_at = NOW()`,
		vs.ID, vs.OID, vs.Name, codes)
	return err
}

func (r *valueSetRepoPG) GetByOID(ctx context.Context, oid string) (*ValueSet, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+valueSetCols+` FROM value_set WHERE oid = $1`, oid))
}

func (r *valueSetRepoPG) List(ctx context.Context, limit, offset int) ([]*ValueSet, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM value_set`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+valueSetCols+` FROM value_set ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ValueSet
	for rows.Next() {
		vs, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, vs)
	}
	return items, total, rows.Err()
}
