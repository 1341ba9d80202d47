package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	databasex "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/database"
	logx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/logger"
)

// schemaLockKey serialises schema creation across processes sharing a
// tenant database.
const schemaLockKey int64 = 0x7265737461757261

type tableSpec struct {
	model       any
	foreignKeys []string
}

var tables = []tableSpec{
	{model: (*Session)(nil)},
	{model: (*Message)(nil), foreignKeys: []string{`("session_id") REFERENCES "sessions" ("id") ON DELETE CASCADE`}},
	{model: (*TokenUsage)(nil), foreignKeys: []string{`("session_id") REFERENCES "sessions" ("id") ON DELETE CASCADE`}},
	{model: (*Menu)(nil)},
	{model: (*MenuItem)(nil), foreignKeys: []string{`("menu_id") REFERENCES "menus" ("id") ON DELETE SET NULL`}},
	{model: (*Order)(nil), foreignKeys: []string{`("session_id") REFERENCES "sessions" ("id")`}},
	{model: (*OrderItem)(nil), foreignKeys: []string{
		`("order_id") REFERENCES "orders" ("id") ON DELETE CASCADE`,
		`("menu_item_id") REFERENCES "menu_items" ("id")`,
	}},
	{model: (*Settings)(nil)},
}

type indexSpec struct {
	model   any
	name    string
	columns []string
}

var indexes = []indexSpec{
	{model: (*Message)(nil), name: "messages_session_created_idx", columns: []string{"session_id", "created_at"}},
	{model: (*TokenUsage)(nil), name: "token_usage_session_created_idx", columns: []string{"session_id", "created_at"}},
	{model: (*MenuItem)(nil), name: "menu_items_available_name_idx", columns: []string{"available", "name"}},
	{model: (*Order)(nil), name: "orders_session_idx", columns: []string{"session_id"}},
	{model: (*OrderItem)(nil), name: "order_items_order_idx", columns: []string{"order_id"}},
}

// EnsureSchema creates every tenant table and index that does not exist yet,
// in one transaction under an advisory lock. Running it again is a no-op.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", schemaLockKey); err != nil {
			return fmt.Errorf("acquire schema lock: %w", err)
		}

		for _, t := range tables {
			q := tx.NewCreateTable().Model(t.model).IfNotExists()
			for _, fk := range t.foreignKeys {
				q = q.ForeignKey(fk)
			}
			if _, err := q.Exec(ctx); err != nil {
				return fmt.Errorf("create table %T: %w", t.model, err)
			}
		}

		for _, idx := range indexes {
			if _, err := tx.NewCreateIndex().
				Model(idx.model).
				Index(idx.name).
				Column(idx.columns...).
				IfNotExists().
				Exec(ctx); err != nil {
				return fmt.Errorf("create index %s: %w", idx.name, err)
			}
		}

		defaults := DefaultSettings()
		if _, err := tx.NewInsert().Model(&defaults).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
		return nil
	})
}

// Open connects to a tenant database and applies the schema. On any failure
// the pool is closed and nothing is returned.
func Open(ctx context.Context, cfg databasex.Config, locator string) (*BunStore, error) {
	masked := logx.MaskDSN(locator)

	db, err := databasex.Open(ctx, cfg, locator)
	if err != nil {
		return nil, fmt.Errorf("%w: open tenant store %s: %v", contractx.ErrInfrastructure, masked, err)
	}

	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: apply tenant schema %s: %v", contractx.ErrInfrastructure, masked, err)
	}

	log.Ctx(ctx).Info().Str("locator", masked).Msg("tenant store ready")
	return NewBunStore(db), nil
}
