package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
)

// Config points at an S3-compatible bucket. The process default comes from
// MEDIA_* variables; a tenant may carry its own copy as JSON.
type Config struct {
	Endpoint        string `json:"endpoint,omitempty" envconfig:"ENDPOINT"`
	Region          string `json:"region,omitempty" envconfig:"REGION" default:"us-east-1"`
	Bucket          string `json:"bucket" envconfig:"BUCKET"`
	AccessKeyID     string `json:"access_key_id" envconfig:"ACCESS_KEY_ID" split_words:"true"`
	SecretAccessKey string `json:"secret_access_key" envconfig:"SECRET_ACCESS_KEY" split_words:"true"`
	PublicBaseURL   string `json:"public_base_url,omitempty" envconfig:"PUBLIC_BASE_URL" split_words:"true"`
	Prefix          string `json:"prefix,omitempty" envconfig:"PREFIX" default:"payment-proofs"`
	UsePathStyle    bool   `json:"use_path_style,omitempty" envconfig:"USE_PATH_STYLE" split_words:"true"`
}

// Enabled reports whether uploads can be attempted at all.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if strings.TrimSpace(c.AccessKeyID) == "" || strings.TrimSpace(c.SecretAccessKey) == "" {
		return fmt.Errorf("%w: media credentials are required when a bucket is set", contractx.ErrValidation)
	}
	for _, raw := range []string{c.Endpoint, c.PublicBaseURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: invalid media url %q", contractx.ErrValidation, raw)
		}
	}
	return nil
}

// fingerprint identifies a config without exposing its secret.
func (c Config) fingerprint() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		c.Endpoint, c.Region, c.Bucket, c.AccessKeyID, c.SecretAccessKey, c.PublicBaseURL, c.Prefix,
		fmt.Sprint(c.UsePathStyle),
	}, "\x00")))
	return hex.EncodeToString(sum[:8])
}

// PublicURL is the durable address of an uploaded object.
func (c Config) PublicURL(key string) string {
	key = strings.TrimLeft(key, "/")
	if base := strings.TrimRight(c.PublicBaseURL, "/"); base != "" {
		return base + "/" + key
	}
	if endpoint := strings.TrimRight(c.Endpoint, "/"); endpoint != "" {
		if c.UsePathStyle {
			return endpoint + "/" + c.Bucket + "/" + key
		}
		if u, err := url.Parse(endpoint); err == nil {
			return u.Scheme + "://" + c.Bucket + "." + u.Host + "/" + key
		}
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.Bucket, c.Region, key)
}
