package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool   `split_words:"true" default:"false"`
	PrettyFormat bool   `split_words:"true" default:"false"`
	Service      string `split_words:"true" default:"restaurant-ordering"`
}

var DefaultConfig = &Config{
	Service: "restaurant-ordering",
}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

// Init replaces the global zerolog logger.
func Init(opts ...Config) {
	conf := safe(opts...)
	log.Logger = New(os.Stdout, *conf)
	zerolog.DefaultContextLogger = &log.Logger
}

// New builds a logger writing to w. Tests pass a buffer here.
func New(w io.Writer, conf Config) zerolog.Logger {
	if conf.PrettyFormat {
		w = zerolog.ConsoleWriter{Out: w}
	}

	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if service := strings.TrimSpace(conf.Service); service != "" {
		ctx = ctx.Str("service", service)
	}
	return ctx.Caller().Logger()
}
