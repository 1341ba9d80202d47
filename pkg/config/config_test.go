package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sampleConfig struct {
	Addr    string        `envconfig:"ADDR" default:":8080"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
	Limit   int           `envconfig:"LIMIT" default:"10"`
}

type checkedConfig struct {
	Short time.Duration `envconfig:"SHORT" default:"30s"`
	Long  time.Duration `envconfig:"LONG" default:"10s"`
}

var errShortTooLong = errors.New("short must be below long")

func (c checkedConfig) Validate() error {
	if c.Short >= c.Long {
		return errShortTooLong
	}
	return nil
}

func TestNewAppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("CFGTEST_LIMIT", "42")

	conf, err := New[sampleConfig]("CFGTEST")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", conf.Addr)
	}
	if conf.Timeout != 5*time.Second {
		t.Fatalf("unexpected timeout: %s", conf.Timeout)
	}
	if conf.Limit != 42 {
		t.Fatalf("unexpected limit: %d", conf.Limit)
	}
}

func TestNewRunsValidate(t *testing.T) {
	_, err := New[checkedConfig]("CFGCHECK")
	if !errors.Is(err, errShortTooLong) {
		t.Fatalf("expected validation error, got %v", err)
	}

	t.Setenv("CFGCHECK_SHORT", "1s")
	conf, err := New[checkedConfig]("CFGCHECK")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Short != time.Second {
		t.Fatalf("unexpected short: %s", conf.Short)
	}
}

func TestExportEnvironmentKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CFGFILE_A=from-file\nCFGFILE_B=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("CFGFILE_A", "from-env")
	t.Setenv("CFGFILE_B", "")
	os.Unsetenv("CFGFILE_B")
	t.Cleanup(func() { os.Unsetenv("CFGFILE_B") })

	if err := exportEnvironment(path); err != nil {
		t.Fatalf("exportEnvironment() error = %v", err)
	}
	if got := os.Getenv("CFGFILE_A"); got != "from-env" {
		t.Fatalf("existing value overwritten: %s", got)
	}
	if got := os.Getenv("CFGFILE_B"); got != "from-file" {
		t.Fatalf("file value not exported: %s", got)
	}
}
