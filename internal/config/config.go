// Package config parses the broker's command-line flags into a Config,
// following the teacher's defaultConfig()-plus-overrides shape but with
// flags as the sole configuration surface (no config file: the CLI is
// this server's whole interface).
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/ducktracker/server/internal/coordwrap"
)

// Config bundles every CLI-configurable setting of the broker.
type Config struct {
	Address string
	Port    int

	PasswordFile string
	DatabaseFile string

	DefaultPublicTag string
	DefaultTag       string
	Scheme           string
	ServerName       string

	MaxPoints             uint64
	DefaultPoints         uint64
	DefaultExpireDuration time.Duration
	UpdateInterval        time.Duration

	BoxCoords string
	CoordWrap *coordwrap.Box // nil unless BoxCoords was set

	PrometheusUser     string
	PrometheusPassword string
}

// Parse parses args (normally os.Args[1:]) into a Config, applying the
// same defaults as §6's flag table. Returns an error on an unparseable
// flag set or a malformed --box-coords value.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("ducktracker-server", flag.ContinueOnError)

	cfg := defaultConfig()

	fs.StringVar(&cfg.Address, "address", cfg.Address, "listen address")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "listen port")
	fs.StringVar(&cfg.PasswordFile, "password-file", cfg.PasswordFile, "path to the user:password credentials file")
	fs.StringVar(&cfg.DatabaseFile, "database-file", cfg.DatabaseFile, "path to the SQLite session database")
	fs.StringVar(&cfg.DefaultPublicTag, "default-public-tag", cfg.DefaultPublicTag, "tag injected when a session specifies none")
	fs.StringVar(&cfg.Scheme, "scheme", cfg.Scheme, "scheme used when constructing share links")
	fs.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "host used when constructing share links")
	fs.StringVar(&cfg.DefaultTag, "default-tag", cfg.DefaultTag, "accepted for CLI-surface parity; not used by the server")
	fs.Uint64Var(&cfg.MaxPoints, "max-points", cfg.MaxPoints, "global ceiling on a session's point ring capacity")
	fs.Uint64Var(&cfg.DefaultPoints, "default-points", cfg.DefaultPoints, "default point ring capacity for a session")
	fs.DurationVar(&cfg.DefaultExpireDuration, "default-expire-duration", cfg.DefaultExpireDuration, "fallback session lifetime when none is requested")
	fs.DurationVar(&cfg.UpdateInterval, "update-interval", cfg.UpdateInterval, "heartbeat/coalescer window")
	fs.StringVar(&cfg.BoxCoords, "box-coords", cfg.BoxCoords, `bounding box "lat1,lng1,lat2,lng2"; empty disables coordinate wrapping`)
	fs.StringVar(&cfg.PrometheusUser, "prometheus-user", cfg.PrometheusUser, "basic auth user for /metrics")
	fs.StringVar(&cfg.PrometheusPassword, "prometheus-password", cfg.PrometheusPassword, "basic auth password for /metrics")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.BoxCoords != "" {
		box, err := coordwrap.Parse(cfg.BoxCoords)
		if err != nil {
			return nil, fmt.Errorf("config: --box-coords: %w", err)
		}
		cfg.CoordWrap = &box
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Address:          "127.0.0.1",
		Port:             8080,
		PasswordFile:     "ducktracker.passwd",
		DatabaseFile:     "ducktracker.db",
		DefaultPublicTag: "duck",
		Scheme:           "http",
		DefaultTag:       "duck",
		MaxPoints:        1000,
		DefaultPoints:    200,
		UpdateInterval:   time.Second,
	}
}
