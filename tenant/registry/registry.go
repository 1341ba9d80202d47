// Package registry resolves restaurant routing keys to tenant records.
package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
)

var (
	ErrTenantNotFound = fmt.Errorf("%w: tenant not found", contractx.ErrNotFound)
	ErrSlugTaken      = fmt.Errorf("%w: slug already in use", contractx.ErrConflict)
)

const (
	maxSlugLen   = 80
	defaultLimit = 20
	maxLimit     = 100
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// NormalizeSlug trims and lower-cases s and reports whether the result is a
// well formed routing key.
func NormalizeSlug(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || len(s) > maxSlugLen || !slugPattern.MatchString(s) {
		return s, false
	}
	return s, true
}

type Registry struct {
	catalog  Catalog
	validate *validator.Validate
	now      func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func New(catalog Catalog, opts ...Option) *Registry {
	r := &Registry{
		catalog:  catalog,
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("bun"), ",")
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		norm, ok := NormalizeSlug(s)
		return ok && norm == s
	})
	return v
}

// Resolve returns the tenant for a routing key. Malformed and unknown keys
// fail the same way so callers cannot probe which tenants exist.
func (r *Registry) Resolve(ctx context.Context, slug string) (*Record, error) {
	norm, ok := NormalizeSlug(slug)
	if !ok {
		return nil, ErrTenantNotFound
	}

	rec, err := r.catalog.BySlug(ctx, norm)
	if err != nil {
		if errors.Is(err, contractx.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		log.Ctx(ctx).Error().Err(err).Str("slug", norm).Msg("resolve tenant failed")
		return nil, err
	}
	return rec, nil
}

func (r *Registry) ResolveID(ctx context.Context, id uuid.UUID) (*Record, error) {
	if id == uuid.Nil {
		return nil, ErrTenantNotFound
	}
	rec, err := r.catalog.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, contractx.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *Registry) Create(ctx context.Context, rec Record) (*Record, error) {
	rec.Slug, _ = NormalizeSlug(rec.Slug)
	rec.Name = strings.TrimSpace(rec.Name)
	rec.StoreLocator = strings.TrimSpace(rec.StoreLocator)
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if err := r.check(&rec); err != nil {
		return nil, err
	}
	touch(&rec, r.now().UTC())

	if err := r.catalog.Insert(ctx, &rec); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("tenant", rec.String()).Msg("tenant created")
	return &rec, nil
}

// Update applies p to the tenant. The store locator only changes when the
// patch sets it explicitly.
func (r *Registry) Update(ctx context.Context, id uuid.UUID, p Patch) (*Record, error) {
	rec, err := r.ResolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	var columns []string
	set := func(dst *string, v *string, column string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
			columns = append(columns, column)
		}
	}
	set(&rec.Name, p.Name, "name")
	set(&rec.Description, p.Description, "description")
	set(&rec.Location, p.Location, "location")
	set(&rec.ImageURL, p.ImageURL, "image_url")
	set(&rec.StoreLocator, p.StoreLocator, "store_locator")
	set(&rec.AIAPIKey, p.AIAPIKey, "ai_api_key")
	if p.MediaConfig != nil {
		if err := p.MediaConfig.Validate(); err != nil {
			return nil, err
		}
		rec.MediaConfig = p.MediaConfig
		columns = append(columns, "media_config")
	}
	if len(columns) == 0 {
		return rec, nil
	}

	if err := r.check(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = r.now().UTC()
	columns = append(columns, "updated_at")

	if err := r.catalog.Update(ctx, rec, columns...); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("tenant", rec.String()).Strs("columns", columns).Msg("tenant updated")
	return rec, nil
}

func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.catalog.Delete(ctx, id); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("tenant_id", id.String()).Msg("tenant deleted")
	return nil
}

// List pages through the catalog. Page starts at 1; limit is clamped to
// [1, 100].
func (r *Registry) List(ctx context.Context, q ListQuery) (Page, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit == 0:
		q.Limit = defaultLimit
	case q.Limit < 1:
		q.Limit = 1
	case q.Limit > maxLimit:
		q.Limit = maxLimit
	}
	q.Search = strings.TrimSpace(q.Search)

	records, total, err := r.catalog.List(ctx, q)
	if err != nil {
		return Page{}, err
	}
	return Page{Records: records, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

func (r *Registry) check(rec *Record) error {
	if err := r.validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %s", contractx.ErrValidation, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", contractx.ErrValidation, err)
	}
	if rec.MediaConfig != nil {
		if err := rec.MediaConfig.Validate(); err != nil {
			return err
		}
	}
	return nil
}
