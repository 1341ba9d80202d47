// Package media stores customer uploads in S3-compatible object storage.
package media

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
)

const MaxImageBytes = 10 << 20

var (
	ErrNotImage    = fmt.Errorf("%w: file must be an image", contractx.ErrValidation)
	ErrTooLarge    = fmt.Errorf("%w: file exceeds 10 MiB", contractx.ErrValidation)
	ErrEmptyUpload = fmt.Errorf("%w: file is empty", contractx.ErrValidation)
	ErrDisabled    = fmt.Errorf("%w: media storage is not configured", contractx.ErrInfrastructure)
)

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// DetectImage sniffs data and returns its content type and file extension.
// The client supplied content type is never trusted.
func DetectImage(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "", ErrEmptyUpload
	}
	if len(data) > MaxImageBytes {
		return "", "", ErrTooLarge
	}
	ct := http.DetectContentType(data)
	ext, ok := imageExt[ct]
	if !ok {
		return "", "", ErrNotImage
	}
	return ct, ext, nil
}

type Uploader struct {
	client *s3.Client
	cfg    Config
	now    func() time.Time
}

func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load s3 config: %v", contractx.ErrInfrastructure, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Uploader{client: client, cfg: cfg, now: time.Now}, nil
}

// UploadImage validates data as an image and stores it under the tenant's
// prefix. It returns the public URL of the object.
func (u *Uploader) UploadImage(ctx context.Context, tenant string, data []byte) (string, error) {
	contentType, ext, err := DetectImage(data)
	if err != nil {
		return "", err
	}

	key := path.Join(
		strings.Trim(u.cfg.Prefix, "/"),
		strings.Trim(tenant, "/"),
		u.now().UTC().Format("2006/01/02"),
		uuid.NewString()+ext,
	)

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("bucket", u.cfg.Bucket).Str("key", key).Msg("upload image failed")
		return "", fmt.Errorf("%w: upload image: %v", contractx.ErrInfrastructure, err)
	}

	log.Ctx(ctx).Info().Str("bucket", u.cfg.Bucket).Str("key", key).Int("bytes", len(data)).Msg("image uploaded")
	return u.cfg.PublicURL(key), nil
}

// Provider hands out uploaders, preferring a tenant's own bucket over the
// process default. Clients are reused per distinct config.
type Provider struct {
	fallback Config
	clients  *lru.Cache[string, *Uploader]
}

func NewProvider(fallback Config) (*Provider, error) {
	clients, err := lru.New[string, *Uploader](64)
	if err != nil {
		return nil, fmt.Errorf("create uploader cache: %w", err)
	}
	return &Provider{fallback: fallback, clients: clients}, nil
}

func (p *Provider) ForTenant(ctx context.Context, tenant *Config) (*Uploader, error) {
	cfg := p.fallback
	if tenant != nil && tenant.Enabled() {
		cfg = *tenant
		if cfg.Region == "" {
			cfg.Region = p.fallback.Region
		}
		if cfg.Prefix == "" {
			cfg.Prefix = p.fallback.Prefix
		}
	}
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}

	key := cfg.fingerprint()
	if up, ok := p.clients.Get(key); ok {
		return up, nil
	}
	up, err := NewUploader(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.clients.Add(key, up)
	return up, nil
}
