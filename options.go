package asmref

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/albertocavalcante/go-asmref/finder"
	"github.com/albertocavalcante/go-asmref/metadata"
)

// Option configures a Session.
type Option func(*sessionConfig) error

// sessionConfig holds all session configuration.
type sessionConfig struct {
	finderFactory  FinderFactory
	finderConfig   *finder.Config
	delegate       DelegateResolver
	readModule     func(path string) (*metadata.File, error)
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider

	// logger is the structured logger for diagnostics. Nil means silent.
	logger *slog.Logger
}

// WithLogger sets a structured logger for load and resolution diagnostics.
// If not set, logging is disabled (silent mode).
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "asmref")
//	s, err := asmref.NewSession(asmref.WithLogger(logger))
func WithLogger(l *slog.Logger) Option {
	return func(c *sessionConfig) error {
		c.logger = l
		return nil
	}
}

// WithFinderFactory replaces the default file-search collaborator.
func WithFinderFactory(f FinderFactory) Option {
	return func(c *sessionConfig) error {
		if f == nil {
			return errors.New("finder factory must not be nil")
		}
		c.finderFactory = f
		return nil
	}
}

// WithFinderConfig configures the default file-search collaborator.
// It is ignored when WithFinderFactory is also given.
func WithFinderConfig(cfg finder.Config) Option {
	return func(c *sessionConfig) error {
		c.finderConfig = &cfg
		return nil
	}
}

// WithDelegateResolver installs a resolver consulted before any other
// strategy.
func WithDelegateResolver(d DelegateResolver) Option {
	return func(c *sessionConfig) error {
		c.delegate = d
		return nil
	}
}

// WithModuleReader replaces metadata.Open as the function that reads an
// assembly file.
func WithModuleReader(read func(path string) (*metadata.File, error)) Option {
	return func(c *sessionConfig) error {
		if read == nil {
			return errors.New("module reader must not be nil")
		}
		c.readModule = read
		return nil
	}
}

// WithRegisterer registers the session's load and resolution counters.
// Without it the counters are kept but never exported.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(c *sessionConfig) error {
		c.registerer = r
		return nil
	}
}

// WithTracerProvider sets the provider for load and resolution spans.
// The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *sessionConfig) error {
		c.tracerProvider = tp
		return nil
	}
}

// validate checks the configuration for logical consistency.
func (c *sessionConfig) validate() error {
	if c.finderFactory == nil && c.finderConfig != nil {
		if err := c.finderConfig.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// log returns the configured logger, or a no-op logger if none was set.
func (c *sessionConfig) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(discardHandler{})
}

func (c *sessionConfig) tracer() trace.Tracer {
	tp := c.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

const tracerName = "github.com/albertocavalcante/go-asmref"

// discardHandler is a slog.Handler that discards all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// newSessionConfig applies the options, fills defaults and validates the
// result.
func newSessionConfig(opts ...Option) (*sessionConfig, error) {
	c := &sessionConfig{}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	if c.readModule == nil {
		c.readModule = metadata.Open
	}
	if c.finderFactory == nil {
		cfg := finder.DefaultConfig()
		if c.finderConfig != nil {
			cfg = *c.finderConfig
		}
		c.finderFactory = DefaultFinderFactory(cfg, c.log())
	}
	return c, nil
}
