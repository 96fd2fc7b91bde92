package main

import (
	"encoding"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type config struct {
	Auth    authConfig    `json:"auth" envPrefix:"AUTH_"`
	Store   storeConfig   `json:"store" envPrefix:"STORE_"`
	Cache   cacheConfig   `json:"cache" envPrefix:"CACHE_"`
	Locks   locksConfig   `json:"locks" envPrefix:"LOCKS_"`
	Retry   retryConfig   `json:"retry" envPrefix:"RETRY_"`
	Metrics metricsConfig `json:"metrics" envPrefix:"METRICS_"`
	MDNS    mdnsConfig    `json:"mdns" envPrefix:"MDNS_"`
}

type authConfig struct {
	Enabled bool              `json:"enabled" env:"ENABLED"`
	Realm   string            `json:"realm" env:"REALM"`
	Users   map[string]string `json:"users" env:"USERS,expand"`
	// Rules apply to every user
	Rules []string `json:"rules" env:"RULES,expand" envSeparator:";"`
	// UserRules apply to a single user, in addition to Rules
	UserRules map[string][]string `json:"userRules"`
}

type storeConfig struct {
	Type    string   `json:"type" env:"TYPE,expand" validate:"required"`
	Options *rawJSON `json:"options" env:"OPTIONS,expand"`
}

type cacheConfig struct {
	Enabled    bool     `json:"enabled" env:"ENABLED"`
	TTL        duration `json:"ttl" env:"TTL"`
	MaxEntries int64    `json:"maxEntries" env:"MAX_ENTRIES" validate:"gte=0"`
}

type locksConfig struct {
	Store         string   `json:"store" env:"STORE" validate:"oneof=memory badger"`
	Path          string   `json:"path" env:"PATH,expand"`
	SweepInterval duration `json:"sweepInterval" env:"SWEEP_INTERVAL"`
	MaxTimeout    duration `json:"maxTimeout" env:"MAX_TIMEOUT"`
}

type retryConfig struct {
	MaxRetries      uint64   `json:"maxRetries" env:"MAX_RETRIES"`
	InitialInterval duration `json:"initialInterval" env:"INITIAL_INTERVAL"`
	MaxInterval     duration `json:"maxInterval" env:"MAX_INTERVAL"`
}

type metricsConfig struct {
	Enabled bool   `json:"enabled" env:"ENABLED"`
	Address string `json:"address" env:"ADDRESS"`
}

type mdnsConfig struct {
	Enabled  bool   `json:"enabled" env:"ENABLED"`
	Instance string `json:"instance" env:"INSTANCE"`
}

func defaultConfig() config {
	return config{
		Auth: authConfig{
			Enabled: true,
			Realm:   "remotedav",
			Users:   map[string]string{},
			Rules:   []string{"true"},
		},
		Store: storeConfig{
			Type: "memory",
		},
		Cache: cacheConfig{
			Enabled:    false,
			TTL:        duration(30 * time.Second),
			MaxEntries: 10000,
		},
		Locks: locksConfig{
			Store:         "memory",
			Path:          "data/locks",
			SweepInterval: duration(time.Minute),
			MaxTimeout:    duration(24 * time.Hour),
		},
		Retry: retryConfig{
			MaxRetries:      3,
			InitialInterval: duration(100 * time.Millisecond),
			MaxInterval:     duration(2 * time.Second),
		},
		Metrics: metricsConfig{
			Enabled: false,
			Address: ":9090",
		},
		MDNS: mdnsConfig{
			Enabled:  false,
			Instance: "RemoteDAV",
		},
	}
}

type rawJSON struct {
	Value any
}

// UnmarshalJSON implements [json.Unmarshaler].
func (j *rawJSON) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &j.Value); err != nil {
		return err
	}

	return nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (j *rawJSON) UnmarshalText(text []byte) error {
	if err := json.Unmarshal(text, &j.Value); err != nil {
		return err
	}

	return nil
}

var _ encoding.TextUnmarshaler = &rawJSON{}
var _ json.Unmarshaler = &rawJSON{}

// duration accepts Go duration strings such as "30s" in both the
// configuration file and the environment.
type duration time.Duration

func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *duration) UnmarshalText(text []byte) error {
	value, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.WithStack(err)
	}

	*d = duration(value)

	return nil
}

// UnmarshalJSON implements [json.Unmarshaler].
func (d *duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.WithStack(err)
	}

	return d.UnmarshalText([]byte(raw))
}

var _ encoding.TextUnmarshaler = new(duration)
var _ json.Unmarshaler = new(duration)
