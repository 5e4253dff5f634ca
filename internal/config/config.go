// Package config loads and watches guardrail client configuration.
// It supports a YAML config file, GUARDRAIL_* environment overrides, and
// change notification so components can react to edits without re-reading
// ambient state.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Configuration keys.
const (
	KeyEnabled         = "enabled"
	KeyServerURL       = "server_url"
	KeyAPIKey          = "api_key"
	KeyProjectSlug     = "project_slug"
	KeyValidateOnSave  = "validate_on_save"
	KeyRequestTimeout  = "request_timeout"
	KeyRetryAttempts   = "retry.max_attempts"
	KeyRetryBaseDelay  = "retry.base_delay"
	KeyRetryMaxDelay   = "retry.max_delay"
	KeyRetryMultiplier = "retry.multiplier"
)

// ErrNotLoaded indicates Options were requested before Load.
var ErrNotLoaded = errors.New("configuration not loaded")

// RetryOptions tunes backoff for transient failures.
type RetryOptions struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// Options holds all recognized configuration for the validation client.
type Options struct {
	Enabled        bool          `mapstructure:"enabled"`
	ServerURL      string        `mapstructure:"server_url"`
	APIKey         string        `mapstructure:"api_key"`
	ProjectSlug    string        `mapstructure:"project_slug"`
	ValidateOnSave bool          `mapstructure:"validate_on_save"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Retry          RetryOptions  `mapstructure:"retry"`
}

// DefaultOptions returns the defaults applied before file and environment
// values are merged in.
func DefaultOptions() Options {
	return Options{
		Enabled:        true,
		ValidateOnSave: true,
		RequestTimeout: 10 * time.Second,
		Retry: RetryOptions{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Multiplier:  2.0,
		},
	}
}

// Validate checks the options for use. Enabled configurations require a
// server URL and a project slug.
func (o Options) Validate() error {
	if !o.Enabled {
		return nil
	}
	if o.ServerURL == "" {
		return fmt.Errorf("%s must not be empty when enabled", KeyServerURL)
	}
	if o.ProjectSlug == "" {
		return fmt.Errorf("%s must not be empty when enabled", KeyProjectSlug)
	}
	if o.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", KeyRetryAttempts)
	}
	return nil
}

// IdentityChanged reports whether other points at a different server
// identity. Cached validation results do not survive an identity change.
func (o Options) IdentityChanged(other Options) bool {
	return o.ServerURL != other.ServerURL || o.ProjectSlug != other.ProjectSlug
}

// Provider loads configuration and notifies observers on change.
type Provider struct {
	mu       sync.RWMutex
	v        *viper.Viper
	current  Options
	loaded   bool
	watching bool
	notifier *Notifier
}

// NewProvider creates an unloaded provider.
func NewProvider() *Provider {
	v := viper.New()

	v.SetDefault(KeyEnabled, true)
	v.SetDefault(KeyValidateOnSave, true)
	v.SetDefault(KeyRequestTimeout, "10s")
	v.SetDefault(KeyRetryAttempts, 3)
	v.SetDefault(KeyRetryBaseDelay, "500ms")
	v.SetDefault(KeyRetryMaxDelay, "10s")
	v.SetDefault(KeyRetryMultiplier, 2.0)

	v.SetEnvPrefix("GUARDRAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so bind every
	// recognized key explicitly for the env-only case.
	for _, key := range []string{
		KeyEnabled, KeyServerURL, KeyAPIKey, KeyProjectSlug,
		KeyValidateOnSave, KeyRequestTimeout,
		KeyRetryAttempts, KeyRetryBaseDelay, KeyRetryMaxDelay, KeyRetryMultiplier,
	} {
		_ = v.BindEnv(key)
	}

	return &Provider{v: v, notifier: NewNotifier()}
}

// Load reads configuration from the given file path, or searches the
// standard locations (working directory, then ~/.config/guardrail) when
// path is empty. A missing file is not an error; defaults and environment
// variables still apply.
func (p *Provider) Load(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if path != "" {
		p.v.SetConfigFile(path)
	} else {
		p.v.SetConfigName("guardrail")
		p.v.SetConfigType("yaml")
		p.v.AddConfigPath(".")
		p.v.AddConfigPath("$HOME/.config/guardrail")
	}

	if err := p.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	opts, err := p.unmarshalLocked()
	if err != nil {
		return err
	}
	p.current = opts
	p.loaded = true
	return nil
}

func (p *Provider) unmarshalLocked() (Options, error) {
	opts := DefaultOptions()
	if err := p.v.Unmarshal(&opts); err != nil {
		return Options{}, fmt.Errorf("parse config: %w", err)
	}
	return opts, nil
}

// Options returns a copy of the current options.
func (p *Provider) Options() (Options, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.loaded {
		return Options{}, ErrNotLoaded
	}
	return p.current, nil
}

// Subscribe registers an observer called with the old and new options after
// every reload.
func (p *Provider) Subscribe(obs Observer) *ObserverSubscription {
	return p.notifier.Subscribe(obs)
}

// Watch starts watching the loaded config file for edits and reloads on
// change. Observers are notified with the old and new options.
func (p *Provider) Watch() {
	p.mu.Lock()
	if p.watching || !p.loaded {
		p.mu.Unlock()
		return
	}
	p.watching = true
	p.mu.Unlock()

	p.v.OnConfigChange(func(_ fsnotify.Event) {
		p.reload()
	})
	p.v.WatchConfig()
}

func (p *Provider) reload() {
	p.mu.Lock()
	opts, err := p.unmarshalLocked()
	if err != nil {
		// A broken edit keeps the last good options in place.
		p.mu.Unlock()
		return
	}
	old := p.current
	p.current = opts
	p.mu.Unlock()

	p.notifier.Notify(old, opts)
}
