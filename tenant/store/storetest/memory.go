// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

// Store keeps all tenant data in maps. Transactions hold the store lock for
// their whole duration, work on a copy and publish it on success.
type Store struct {
	view

	mu     sync.Mutex
	data   *dataset
	fail   map[string]error
	closed bool
	now    func() time.Time
}

var _ storex.Store = (*Store)(nil)

func New() *Store {
	s := &Store{
		data: newDataset(),
		fail: map[string]error{},
		now:  time.Now,
	}
	s.view = view{s: s}
	return s
}

// SetNow fixes the clock used for default timestamps.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes every later call of op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storex.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail["RunInTx"]; err != nil {
		return err
	}

	work := s.data.clone()
	if err := fn(ctx, view{s: s, tx: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// AddMenuItem stores item, assigning an id when it has none.
func (s *Store) AddMenuItem(item storex.MenuItem) storex.MenuItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	s.data.menuItems[item.ID] = item
	return item
}

func (s *Store) PutSettings(st storex.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.ID = true
	s.data.settings = &st
}

func (s *Store) PutOrder(o storex.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.orders[o.ID] = cloneOrder(&o)
}

// AddUsage appends a ledger row at the given time.
func (s *Store) AddUsage(sessionID uuid.UUID, tokens int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.usage = append(s.data.usage, storex.TokenUsage{
		ID: uuid.New(), SessionID: sessionID, Tokens: tokens, CreatedAt: at,
	})
}

func (s *Store) Orders() []storex.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storex.Order, 0, len(s.data.orders))
	for _, o := range s.data.orders {
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Messages(sessionID uuid.UUID) []storex.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storex.Message
	for _, m := range s.data.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) Usage(sessionID uuid.UUID) []storex.TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storex.TokenUsage
	for _, u := range s.data.usage {
		if u.SessionID == sessionID {
			out = append(out, u)
		}
	}
	return out
}

func (s *Store) Session(id uuid.UUID) (storex.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.data.sessions[id]
	return sess, ok
}

type dataset struct {
	sessions  map[uuid.UUID]storex.Session
	messages  []storex.Message
	usage     []storex.TokenUsage
	menuItems map[uuid.UUID]storex.MenuItem
	orders    map[uuid.UUID]*storex.Order
	settings  *storex.Settings
}

func newDataset() *dataset {
	return &dataset{
		sessions:  map[uuid.UUID]storex.Session{},
		menuItems: map[uuid.UUID]storex.MenuItem{},
		orders:    map[uuid.UUID]*storex.Order{},
	}
}

func (d *dataset) clone() *dataset {
	out := newDataset()
	for k, v := range d.sessions {
		out.sessions[k] = v
	}
	out.messages = append([]storex.Message(nil), d.messages...)
	out.usage = append([]storex.TokenUsage(nil), d.usage...)
	for k, v := range d.menuItems {
		out.menuItems[k] = v
	}
	for k, v := range d.orders {
		out.orders[k] = cloneOrder(v)
	}
	if d.settings != nil {
		st := *d.settings
		out.settings = &st
	}
	return out
}

func cloneOrder(o *storex.Order) *storex.Order {
	c := *o
	c.Items = make([]*storex.OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		it := *item
		c.Items = append(c.Items, &it)
	}
	return &c
}

// view runs queries either on the committed data (tx == nil, taking the
// lock per call) or on a transaction copy (lock already held).
type view struct {
	s  *Store
	tx *dataset
}

func (v view) do(op string, fn func(d *dataset, now time.Time) error) error {
	if v.tx != nil {
		if err := v.s.fail[op]; err != nil {
			return err
		}
		return fn(v.tx, v.s.now().UTC())
	}

	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.closed {
		return fmt.Errorf("%w: store closed", contractx.ErrInfrastructure)
	}
	if err := v.s.fail[op]; err != nil {
		return err
	}
	return fn(v.s.data, v.s.now().UTC())
}

func (v view) GetSession(ctx context.Context, id uuid.UUID) (*storex.Session, error) {
	var out *storex.Session
	err := v.do("GetSession", func(d *dataset, _ time.Time) error {
		s, ok := d.sessions[id]
		if !ok {
			return fmt.Errorf("%w: session", contractx.ErrNotFound)
		}
		out = &s
		return nil
	})
	return out, err
}

func (v view) CreateSession(ctx context.Context, s *storex.Session) error {
	return v.do("CreateSession", func(d *dataset, now time.Time) error {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if _, exists := d.sessions[s.ID]; exists {
			return fmt.Errorf("%w: session %s exists", contractx.ErrConflict, s.ID)
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		s.UpdatedAt = s.CreatedAt
		d.sessions[s.ID] = *s
		return nil
	})
}

func (v view) UpdateSession(ctx context.Context, s *storex.Session) error {
	return v.do("UpdateSession", func(d *dataset, now time.Time) error {
		if _, ok := d.sessions[s.ID]; !ok {
			return fmt.Errorf("%w: session", contractx.ErrNotFound)
		}
		s.UpdatedAt = now
		d.sessions[s.ID] = *s
		return nil
	})
}

func (v view) InsertMessage(ctx context.Context, m *storex.Message) error {
	return v.do("InsertMessage", func(d *dataset, now time.Time) error {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		d.messages = append(d.messages, *m)
		return nil
	})
}

func (v view) DeleteMessage(ctx context.Context, id uuid.UUID) error {
	return v.do("DeleteMessage", func(d *dataset, _ time.Time) error {
		kept := d.messages[:0]
		for _, m := range d.messages {
			if m.ID != id {
				kept = append(kept, m)
			}
		}
		d.messages = kept
		return nil
	})
}

func (v view) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int, exclude uuid.UUID) ([]storex.Message, error) {
	var out []storex.Message
	err := v.do("RecentMessages", func(d *dataset, _ time.Time) error {
		for _, m := range d.messages {
			if m.SessionID == sessionID && m.ID != exclude {
				out = append(out, m)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		if limit <= 0 {
			out = nil
			return nil
		}
		if len(out) > limit {
			out = out[len(out)-limit:]
		}
		return nil
	})
	return out, err
}

func (v view) InsertTokenUsage(ctx context.Context, u *storex.TokenUsage) error {
	return v.do("InsertTokenUsage", func(d *dataset, now time.Time) error {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = now
		}
		d.usage = append(d.usage, *u)
		return nil
	})
}

func (v view) SumTokensSince(ctx context.Context, sessionID uuid.UUID, from, to time.Time) (int, error) {
	total := 0
	err := v.do("SumTokensSince", func(d *dataset, _ time.Time) error {
		for _, u := range d.usage {
			if u.SessionID != sessionID {
				continue
			}
			if u.CreatedAt.After(from) && !u.CreatedAt.After(to) {
				total += u.Tokens
			}
		}
		return nil
	})
	return total, err
}

func (v view) ListMenuItems(ctx context.Context, search string) ([]storex.MenuItem, error) {
	var out []storex.MenuItem
	needle := strings.ToLower(strings.TrimSpace(search))
	err := v.do("ListMenuItems", func(d *dataset, _ time.Time) error {
		for _, item := range d.menuItems {
			if !item.Available {
				continue
			}
			if needle != "" && !strings.Contains(strings.ToLower(item.Name), needle) {
				continue
			}
			out = append(out, item)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Category != out[j].Category {
				return out[i].Category < out[j].Category
			}
			return out[i].Name < out[j].Name
		})
		return nil
	})
	return out, err
}

func (v view) GetMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]storex.MenuItem, error) {
	out := make(map[uuid.UUID]storex.MenuItem, len(ids))
	err := v.do("GetMenuItems", func(d *dataset, _ time.Time) error {
		for _, id := range ids {
			if item, ok := d.menuItems[id]; ok {
				out[id] = item
			}
		}
		return nil
	})
	return out, err
}

func (v view) InsertOrder(ctx context.Context, o *storex.Order) error {
	return v.do("InsertOrder", func(d *dataset, _ time.Time) error {
		if _, exists := d.orders[o.ID]; exists {
			return fmt.Errorf("%w: order %s exists", contractx.ErrConflict, o.ID)
		}
		for _, item := range o.Items {
			if item.ID == uuid.Nil {
				item.ID = uuid.New()
			}
			item.OrderID = o.ID
		}
		d.orders[o.ID] = cloneOrder(o)
		return nil
	})
}

func (v view) GetOrder(ctx context.Context, id uuid.UUID) (*storex.Order, error) {
	var out *storex.Order
	err := v.do("GetOrder", func(d *dataset, _ time.Time) error {
		o, ok := d.orders[id]
		if !ok {
			return fmt.Errorf("%w: order", contractx.ErrNotFound)
		}
		out = cloneOrder(o)
		return nil
	})
	return out, err
}

func (v view) LockOrder(ctx context.Context, id uuid.UUID) (*storex.Order, error) {
	var out *storex.Order
	err := v.do("LockOrder", func(d *dataset, _ time.Time) error {
		o, ok := d.orders[id]
		if !ok {
			return fmt.Errorf("%w: order", contractx.ErrNotFound)
		}
		out = cloneOrder(o)
		out.Items = nil
		return nil
	})
	return out, err
}

func (v view) UpdateOrder(ctx context.Context, o *storex.Order, columns ...string) error {
	return v.do("UpdateOrder", func(d *dataset, _ time.Time) error {
		cur, ok := d.orders[o.ID]
		if !ok {
			return fmt.Errorf("%w: order", contractx.ErrNotFound)
		}
		items := cur.Items
		next := cloneOrder(o)
		next.Items = items
		d.orders[o.ID] = next
		return nil
	})
}

func (v view) GetSettings(ctx context.Context) (storex.Settings, error) {
	var out storex.Settings
	err := v.do("GetSettings", func(d *dataset, _ time.Time) error {
		if d.settings == nil {
			out = storex.DefaultSettings()
			return nil
		}
		out = *d.settings
		return nil
	})
	return out, err
}
