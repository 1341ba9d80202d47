package orderagent

import (
	"fmt"
	"time"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
)

type Config struct {
	HistoryLimit    int           `envconfig:"HISTORY_LIMIT" split_words:"true" default:"15"`
	MaxToolRounds   int           `envconfig:"MAX_TOOL_ROUNDS" split_words:"true" default:"4"`
	MaxAttempts     int           `envconfig:"MAX_ATTEMPTS" split_words:"true" default:"3"`
	RetryBackoff    time.Duration `envconfig:"RETRY_BACKOFF" split_words:"true" default:"1s"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" split_words:"true" default:"25s"`
}

func DefaultConfig() Config {
	return Config{
		HistoryLimit:    15,
		MaxToolRounds:   4,
		MaxAttempts:     3,
		RetryBackoff:    time.Second,
		ProviderTimeout: 25 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.HistoryLimit < 0:
		return fmt.Errorf("%w: history limit must not be negative", contractx.ErrValidation)
	case c.MaxToolRounds < 1:
		return fmt.Errorf("%w: max tool rounds must be at least 1", contractx.ErrValidation)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1", contractx.ErrValidation)
	case c.RetryBackoff < 0:
		return fmt.Errorf("%w: retry backoff must not be negative", contractx.ErrValidation)
	case c.ProviderTimeout <= 0:
		return fmt.Errorf("%w: provider timeout must be positive", contractx.ErrValidation)
	}
	return nil
}

// FitsWithin reports whether one provider call ends before the request that
// carries it times out.
func (c Config) FitsWithin(requestTimeout time.Duration) error {
	if requestTimeout > 0 && c.ProviderTimeout >= requestTimeout {
		return fmt.Errorf("%w: provider timeout %s must be shorter than request timeout %s",
			contractx.ErrValidation, c.ProviderTimeout, requestTimeout)
	}
	return nil
}
