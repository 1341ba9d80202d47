package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
)

// Catalog is the persistence behind the registry.
type Catalog interface {
	BySlug(ctx context.Context, slug string) (*Record, error)
	ByID(ctx context.Context, id uuid.UUID) (*Record, error)
	Insert(ctx context.Context, r *Record) error
	Update(ctx context.Context, r *Record, columns ...string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q ListQuery) ([]Record, int, error)
}

type BunCatalog struct {
	db *bun.DB
}

var _ Catalog = (*BunCatalog)(nil)

func NewBunCatalog(db *bun.DB) *BunCatalog {
	return &BunCatalog{db: db}
}

// EnsureSchema creates the restaurants table when it is missing.
func (c *BunCatalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.NewCreateTable().Model((*Record)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("%w: create restaurants table: %v", contractx.ErrInfrastructure, err)
	}
	return nil
}

func (c *BunCatalog) BySlug(ctx context.Context, slug string) (*Record, error) {
	r := new(Record)
	if err := c.db.NewSelect().Model(r).Where("r.slug = ?", slug).Scan(ctx); err != nil {
		return nil, lookupErr("select restaurant by slug", err)
	}
	return r, nil
}

func (c *BunCatalog) ByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	r := new(Record)
	if err := c.db.NewSelect().Model(r).Where("r.id = ?", id).Scan(ctx); err != nil {
		return nil, lookupErr("select restaurant by id", err)
	}
	return r, nil
}

func (c *BunCatalog) Insert(ctx context.Context, r *Record) error {
	if _, err := c.db.NewInsert().Model(r).Exec(ctx); err != nil {
		return writeErr("insert restaurant", err)
	}
	return nil
}

func (c *BunCatalog) Update(ctx context.Context, r *Record, columns ...string) error {
	q := c.db.NewUpdate().Model(r).WherePK()
	if len(columns) > 0 {
		q = q.Column(columns...)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return writeErr("update restaurant", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (c *BunCatalog) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := c.db.NewDelete().Model((*Record)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return writeErr("delete restaurant", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (c *BunCatalog) List(ctx context.Context, q ListQuery) ([]Record, int, error) {
	var records []Record
	sel := c.db.NewSelect().Model(&records).OrderExpr("r.created_at DESC").
		Limit(q.Limit).Offset((q.Page - 1) * q.Limit)
	if s := strings.TrimSpace(q.Search); s != "" {
		pattern := "%" + escapeLike(s) + "%"
		sel = sel.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Where("r.slug ILIKE ?", pattern).
				WhereOr("r.name ILIKE ?", pattern).
				WhereOr("r.location ILIKE ?", pattern)
		})
	}
	total, err := sel.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list restaurants: %v", contractx.ErrInfrastructure, err)
	}
	return records, total, nil
}

func lookupErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTenantNotFound
	}
	return fmt.Errorf("%w: %s: %v", contractx.ErrInfrastructure, op, err)
}

func writeErr(op string, err error) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == "23505" {
		return ErrSlugTaken
	}
	return fmt.Errorf("%w: %s: %v", contractx.ErrInfrastructure, op, err)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func touch(r *Record, now time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}
