package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	logx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/logger"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/media"
)

// Record is one tenant in the catalog. StoreLocator and the credentials
// never leave the process: they are hidden from JSON and redacted by String.
type Record struct {
	bun.BaseModel `bun:"table:restaurants,alias:r"`

	ID           uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	Slug         string        `bun:"slug,notnull,unique,type:varchar(80)" json:"slug" validate:"required,max=80,slug"`
	Name         string        `bun:"name,notnull" json:"name" validate:"required,max=200"`
	Description  string        `bun:"description,nullzero" json:"description,omitempty" validate:"max=2000"`
	Location     string        `bun:"location,nullzero" json:"location,omitempty" validate:"max=300"`
	ImageURL     string        `bun:"image_url,nullzero" json:"image_url,omitempty" validate:"omitempty,url,max=2048"`
	StoreLocator string        `bun:"store_locator,notnull" json:"-" validate:"required,startswith=postgres"`
	AIAPIKey     string        `bun:"ai_api_key,nullzero" json:"-"`
	MediaConfig  *media.Config `bun:"media_config,type:jsonb,nullzero" json:"-"`
	CreatedAt    time.Time     `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time     `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

func (r Record) String() string {
	key := "none"
	if r.AIAPIKey != "" {
		key = logx.MaskSecret(r.AIAPIKey)
	}
	return fmt.Sprintf("Record{id=%s slug=%s locator=%s ai_key=%s media=%t}",
		r.ID, r.Slug, logx.MaskDSN(r.StoreLocator), key, r.MediaConfig != nil && r.MediaConfig.Enabled())
}

// Summary is the public face of a tenant.
type Summary struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
}

func (r Record) Summary() Summary {
	return Summary{
		ID:          r.ID,
		Slug:        r.Slug,
		Name:        r.Name,
		Description: r.Description,
		Location:    r.Location,
		ImageURL:    r.ImageURL,
	}
}

// Patch carries the fields an update may change. Nil means unchanged.
type Patch struct {
	Name         *string
	Description  *string
	Location     *string
	ImageURL     *string
	StoreLocator *string
	AIAPIKey     *string
	MediaConfig  *media.Config
}

// ListQuery selects one page of the catalog.
type ListQuery struct {
	Page   int
	Limit  int
	Search string
}

type Page struct {
	Records []Record
	Total   int
	Page    int
	Limit   int
}
