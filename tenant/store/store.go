// Package store is the data access layer of one tenant database.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Queries is the set of operations available both on a Store and inside one
// of its transactions.
type Queries interface {
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	CreateSession(ctx context.Context, s *Session) error
	UpdateSession(ctx context.Context, s *Session) error

	InsertMessage(ctx context.Context, m *Message) error
	DeleteMessage(ctx context.Context, id uuid.UUID) error
	// RecentMessages returns up to limit messages of the session, the newest
	// ones, ordered oldest first. exclude may be uuid.Nil.
	RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int, exclude uuid.UUID) ([]Message, error)

	InsertTokenUsage(ctx context.Context, u *TokenUsage) error
	// SumTokensSince sums usage rows with from < created_at <= to.
	SumTokensSince(ctx context.Context, sessionID uuid.UUID, from, to time.Time) (int, error)

	ListMenuItems(ctx context.Context, search string) ([]MenuItem, error)
	GetMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]MenuItem, error)

	InsertOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	// LockOrder reads the order row without items; inside a transaction the
	// row stays locked until commit.
	LockOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateOrder(ctx context.Context, o *Order, columns ...string) error

	GetSettings(ctx context.Context) (Settings, error)
}

// Store is a handle on one tenant database.
type Store interface {
	Queries
	// RunInTx commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Queries) error) error
	Close() error
}
