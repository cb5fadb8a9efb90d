package component

import (
	"context"
	"encoding/json"
	"fmt"

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

type componentRepoPG struct{ pool *pgxpool.Pool }

func NewComponentRepoPG(pool *pgxpool.Pool) ComponentRepository {
	return &componentRepoPG{pool: pool}
}

func (r *componentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const componentCols = `id, kind, name, category, oid, value_set_name, timing_expression,
	negation, codes, operator, children, complexity,
	version_info, measure_ids, usage_count, created_at, updated_at`

func (r *componentRepoPG) scanRow(row pgx.Row) (*Component, error) {
	var c Component
	var codes, children, versionInfo, measureIDs []byte
	err := row.Scan(&c.ID, &c.Kind, &c.Name, &c.Category, &c.OID, &c.ValueSetName,
		&c.TimingExpression, &c.Negation, &codes, &c.Operator, &children,
		&c.Complexity, &versionInfo, &measureIDs, &c.Usage.UsageCount,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &c.Codes); err != nil {
			return nil, fmt.Errorf("decode codes for component %s: %w", c.ID, err)
		}
	}
	if len(children) > 0 {
		if err := json.Unmarshal(children, &c.Children); err != nil {
			return nil, fmt.Errorf("decode children for component %s: %w", c.ID, err)
		}
	}
	if len(versionInfo) > 0 {
		if err := json.Unmarshal(versionInfo, &c.Version); err != nil {
			return nil, fmt.Errorf("decode version info for component %s: %w", c.ID, err)
		}
	}
	if len(measureIDs) > 0 {
		if err := json.Unmarshal(measureIDs, &c.Usage.MeasureIDs); err != nil {
			return nil, fmt.Errorf("decode measure ids for component %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func encode(c *Component) (codes, children, versionInfo, measureIDs []byte, err error) {
	if c.Codes == nil {
		c.Codes = []criteria.Code{}
	}
	if c.Usage.MeasureIDs == nil {
		c.Usage.MeasureIDs = []string{}
	}
	if codes, err = json.Marshal(c.Codes); err != nil {
		return
	}
	if children, err = json.Marshal(c.Children); err != nil {
		return
	}
	if versionInfo, err = json.Marshal(c.Version); err != nil {
		return
	}
	measureIDs, err = json.Marshal(c.Usage.MeasureIDs)
	return
}

func (r *componentRepoPG) Create(ctx context.Context, c *Component) error {
	codes, children, versionInfo, measureIDs, err := encode(c)
	if err != nil {
		return fmt.Errorf("encode component %s: %w", c.ID, err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO library_component (id, kind, name, category, oid, value_set_name,
			timing_expression, negation, codes, operator, children, complexity,
			version_info, measure_ids, usage_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.Kind, c.Name, c.Category, c.OID, c.ValueSetName,
		c.TimingExpression, c.Negation, codes, c.Operator, children, c.Complexity,
		versionInfo, measureIDs, c.Usage.UsageCount)
	return err
}

func (r *componentRepoPG) GetByID(ctx context.Context, id string) (*Component, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+componentCols+` FROM library_component WHERE id = $1`, id))
}

func (r *componentRepoPG) Update(ctx context.Context, c *Component) error {
	codes, children, versionInfo, measureIDs, err := encode(c)
	if err != nil {
		return fmt.Errorf("encode component %s: %w", c.ID, err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE library_component SET kind=$2, name=$3, category=$4, oid=$5, value_set_name=$6,
			timing_expression=$7, negation=$8, codes=$9, operator=$10, children=$11,
			complexity=$12, version_info=$13, measure_ids=$14, usage_count=$15, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Kind, c.Name, c.Category, c.OID, c.ValueSetName,
		c.TimingExpression, c.Negation, codes, c.Operator, children,
		c.Complexity, versionInfo, measureIDs, c.Usage.UsageCount)
	return err
}

func (r *componentRepoPG) Delete(ctx context.Context, id string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM library_component WHERE id = $1`, id)
	return err
}

func (r *componentRepoPG) List(ctx context.Context, limit, offset int) ([]*Component, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM library_component`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+componentCols+` FROM library_component ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *componentRepoPG) ListAll(ctx context.Context) ([]*Component, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+componentCols+` FROM library_component ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *componentRepoPG) collect(rows pgx.Rows) ([]*Component, error) {
	var items []*Component
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
