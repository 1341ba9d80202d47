package store

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

// BunStore implements Store on a PostgreSQL pool.
type BunStore struct {
	queries
	db *bun.DB
}

var _ Store = (*BunStore)(nil)

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{queries: queries{db: db}, db: db}
}

func (s *BunStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Queries) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, queries{db: tx, inTx: true})
	})
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

func (s *BunStore) DB() *bun.DB {
	return s.db
}

type queries struct {
	db   bun.IDB
	inTx bool
}

func infra(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", contractx.ErrInfrastructure, op, err)
}

func notFoundOr(op, what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", contractx.ErrNotFound, what)
	}
	return infra(op, err)
}

const pgUniqueViolation = "23505"

// pgFieldError matches pgdriver.Error without pinning the concrete type.
type pgFieldError interface {
	error
	Field(k byte) string
}

var _ pgFieldError = pgdriver.Error{}

// conflictOr reports a unique violation as ErrConflict.
func conflictOr(op, what string, err error) error {
	var pgErr pgFieldError
	if errors.As(err, &pgErr) && pgErr.Field('C') == pgUniqueViolation {
		return fmt.Errorf("%w: %s exists", contractx.ErrConflict, what)
	}
	return infra(op, err)
}

func (q queries) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	s := new(Session)
	if err := q.db.NewSelect().Model(s).Where("s.id = ?", id).Scan(ctx); err != nil {
		return nil, notFoundOr("select session", "session", err)
	}
	return s, nil
}

func (q queries) CreateSession(ctx context.Context, s *Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = s.CreatedAt
	if _, err := q.db.NewInsert().Model(s).Exec(ctx); err != nil {
		return conflictOr("insert session", "session "+s.ID.String(), err)
	}
	return nil
}

func (q queries) UpdateSession(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now().UTC()
	res, err := q.db.NewUpdate().Model(s).
		Column("customer_name", "phone", "email", "delivery_address", "notes", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return infra("update session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session", contractx.ErrNotFound)
	}
	return nil
}

func (q queries) InsertMessage(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if _, err := q.db.NewInsert().Model(m).Exec(ctx); err != nil {
		return infra("insert message", err)
	}
	return nil
}

func (q queries) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	if _, err := q.db.NewDelete().Model((*Message)(nil)).Where("id = ?", id).Exec(ctx); err != nil {
		return infra("delete message", err)
	}
	return nil
}

func (q queries) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int, exclude uuid.UUID) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	var msgs []Message
	sel := q.db.NewSelect().Model(&msgs).
		Where("m.session_id = ?", sessionID).
		OrderExpr("m.created_at DESC, m.id DESC").
		Limit(limit)
	if exclude != uuid.Nil {
		sel = sel.Where("m.id <> ?", exclude)
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, infra("select messages", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (q queries) InsertTokenUsage(ctx context.Context, u *TokenUsage) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if _, err := q.db.NewInsert().Model(u).Exec(ctx); err != nil {
		return infra("insert token usage", err)
	}
	return nil
}

func (q queries) SumTokensSince(ctx context.Context, sessionID uuid.UUID, from, to time.Time) (int, error) {
	var total int
	err := q.db.NewSelect().
		Model((*TokenUsage)(nil)).
		ColumnExpr("COALESCE(SUM(tu.tokens), 0)").
		Where("tu.session_id = ?", sessionID).
		Where("tu.created_at > ?", from).
		Where("tu.created_at <= ?", to).
		Scan(ctx, &total)
	if err != nil {
		return 0, infra("sum token usage", err)
	}
	return total, nil
}

func (q queries) ListMenuItems(ctx context.Context, search string) ([]MenuItem, error) {
	var items []MenuItem
	sel := q.db.NewSelect().Model(&items).
		Where("mi.available = TRUE").
		OrderExpr("mi.category ASC, mi.name ASC")
	if s := strings.TrimSpace(search); s != "" {
		sel = sel.Where("mi.name ILIKE ?", "%"+escapeLike(s)+"%")
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, infra("select menu items", err)
	}
	return items, nil
}

func (q queries) GetMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]MenuItem, error) {
	out := make(map[uuid.UUID]MenuItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var items []MenuItem
	if err := q.db.NewSelect().Model(&items).Where("mi.id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, infra("select menu items by id", err)
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (q queries) InsertOrder(ctx context.Context, o *Order) error {
	if _, err := q.db.NewInsert().Model(o).Exec(ctx); err != nil {
		return infra("insert order", err)
	}
	if len(o.Items) == 0 {
		return nil
	}
	for _, item := range o.Items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = o.ID
	}
	if _, err := q.db.NewInsert().Model(&o.Items).Exec(ctx); err != nil {
		return infra("insert order items", err)
	}
	return nil
}

func (q queries) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o := new(Order)
	err := q.db.NewSelect().Model(o).
		Relation("Items", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.OrderExpr("oi.name ASC")
		}).
		Where("o.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr("select order", "order", err)
	}
	return o, nil
}

func (q queries) LockOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o := new(Order)
	sel := q.db.NewSelect().Model(o).Where("o.id = ?", id)
	if q.inTx {
		sel = sel.For("UPDATE")
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, notFoundOr("lock order", "order", err)
	}
	return o, nil
}

func (q queries) UpdateOrder(ctx context.Context, o *Order, columns ...string) error {
	upd := q.db.NewUpdate().Model(o).WherePK()
	if len(columns) > 0 {
		upd = upd.Column(columns...)
	}
	res, err := upd.Exec(ctx)
	if err != nil {
		return infra("update order", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: order", contractx.ErrNotFound)
	}
	return nil
}

func (q queries) GetSettings(ctx context.Context) (Settings, error) {
	var s Settings
	err := q.db.NewSelect().Model(&s).Where("st.id = TRUE").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, infra("select settings", err)
	}
	if s.Timezone == "" {
		s.Timezone = DefaultTimezone
	}
	return s, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
