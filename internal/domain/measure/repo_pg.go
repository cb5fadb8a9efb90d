package measure

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

type measureRepoPG struct{ pool *pgxpool.Pool }

func NewMeasureRepoPG(pool *pgxpool.Pool) MeasureRepository {
	return &measureRepoPG{pool: pool}
}

func (r *measureRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const measureCols = `id, title, steward, description, status, period_start, period_end,
	populations, value_sets, version_id, created_at, updated_at`

func (r *measureRepoPG) scanRow(row pgx.Row) (*MeasureSpec, error) {
	var m MeasureSpec
	var populations, valueSets []byte
	err := row.Scan(&m.ID, &m.Title, &m.Steward, &m.Description, &m.Status,
		&m.PeriodStart, &m.PeriodEnd, &populations, &valueSets,
		&m.VersionID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(populations) > 0 {
		if err := json.Unmarshal(populations, &m.Populations); err != nil {
			return nil, fmt.Errorf("decode populations for measure %s: %w", m.ID, err)
		}
	}
	if len(valueSets) > 0 {
		if err := json.Unmarshal(valueSets, &m.ValueSets); err != nil {
			return nil, fmt.Errorf("decode value sets for measure %s: %w", m.ID, err)
		}
	}
	return &m, nil
}

func encodeTrees(m *MeasureSpec) (populations, valueSets []byte, err error) {
	if m.Populations == nil {
		m.Populations = []criteria.PopulationDefinition{}
	}
	populations, err = json.Marshal(m.Populations)
	if err != nil {
		return nil, nil, fmt.Errorf("encode populations: %w", err)
	}
	valueSets, err = json.Marshal(m.ValueSets)
	if err != nil {
		return nil, nil, fmt.Errorf("encode value sets: %w", err)
	}
	return populations, valueSets, nil
}

func (r *measureRepoPG) Create(ctx context.Context, m *MeasureSpec) error {
	m.ID = uuid.New()
	populations, valueSets, err := encodeTrees(m)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO measure_spec (id, title, steward, description, status, period_start, period_end, populations, value_sets)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.Title, m.Steward, m.Description, m.Status, m.PeriodStart, m.PeriodEnd, populations, valueSets)
	return err
}

func (r *measureRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MeasureSpec, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+measureCols+` FROM measure_spec WHERE id = $1`, id))
}

func (r *measureRepoPG) Update(ctx context.Context, m *MeasureSpec) error {
	populations, valueSets, err := encodeTrees(m)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE measure_spec SET title=$2, steward=$3, description=$4, status=$5,
			period_start=$6, period_end=$7, populations=$8, value_sets=$9,
			version_id=version_id+1, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Title, m.Steward, m.Description, m.Status, m.PeriodStart, m.PeriodEnd, populations, valueSets)
	return err
}

func (r *measureRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM measure_spec WHERE id = $1`, id)
	return err
}

func (r *measureRepoPG) List(ctx context.Context, limit, offset int) ([]*MeasureSpec, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM measure_spec`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+measureCols+` FROM measure_spec ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *measureRepoPG) ListAll(ctx context.Context) ([]*MeasureSpec, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+measureCols+` FROM measure_spec ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *measureRepoPG) collect(rows pgx.Rows) ([]*MeasureSpec, error) {
	var items []*MeasureSpec
	for rows.Next() {
		m, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
