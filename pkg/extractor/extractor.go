// Package extractor is the library entry point: image in, results.csv out.
package extractor

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spherical/table-extractor/internal/cache"
	"github.com/spherical/table-extractor/internal/config"
	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/extract"
	"github.com/spherical/table-extractor/internal/llm"
	"github.com/spherical/table-extractor/internal/observability"
	"github.com/spherical/table-extractor/internal/sink"
	"github.com/spherical/table-extractor/internal/source"
	"github.com/spherical/table-extractor/internal/storage"
)

// Re-export core types for the public API
type (
	StageEvent     = domain.StageEvent
	Stage          = domain.Stage
	Table          = domain.Table
	Row            = domain.Row
	HeaderSet      = domain.HeaderSet
	ColumnSelector = domain.ColumnSelector
	SelectorFunc   = domain.SelectorFunc
	Result         = extract.Result
)

// Selectors usable without a terminal.
var AllColumns = extract.AllColumns

// Columns selects columns by name; an empty list keeps all of them.
func Columns(names ...string) ColumnSelector {
	return extract.ColumnsSelector(names)
}

// Client is the main entry point for the table extractor library
type Client struct {
	cfg       *config.Config
	logger    *observability.Logger
	service   *extract.Service
	validator *source.Validator
	history   *storage.History
	cache     cache.Client
}

// Config holds the minimal options for library use.
type Config struct {
	APIKey  string // OpenAI compatible API key
	BaseURL string // Optional: endpoint override
	Model   string // Optional: model override
}

// NewClient creates a client from .env, $TABLE_EXTRACTOR_CONFIG and the
// environment.
func NewClient(ctx context.Context) (*Client, error) {
	config.LoadDotEnv()

	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	return NewClientFromConfig(ctx, cfg, logger)
}

// NewClientWithConfig creates a client with an in-memory cache and no
// history.
func NewClientWithConfig(ctx context.Context, c *Config) (*Client, error) {
	if c == nil || c.APIKey == "" {
		return nil, domain.ConfigError("API key is required", nil)
	}

	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = c.APIKey
	if c.BaseURL != "" {
		cfg.LLM.BaseURL = c.BaseURL
	}
	if c.Model != "" {
		cfg.LLM.Model = c.Model
	}
	cfg.History.Enabled = false
	cfg.Output.Clipboard = false

	return NewClientFromConfig(ctx, cfg, observability.NopLogger())
}

// NewClientFromConfig wires every component described by cfg. A missing
// API key is allowed; such a client can only Parse.
func NewClientFromConfig(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Client, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	c := &Client{
		cfg:       cfg,
		logger:    logger,
		validator: source.NewValidator(logger),
	}

	var model domain.VisionModel
	if cfg.LLM.APIKey != "" {
		llmClient, err := llm.NewClient(llm.Config{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			Prompt:    cfg.LLM.Prompt,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, err
		}
		model = llmClient

		cacheClient, err := cache.Open(ctx, cache.Options{
			Driver:     cfg.Cache.Driver,
			MaxEntries: cfg.Cache.MaxEntries,
			Redis: cache.RedisConfig{
				URL:      cfg.Cache.Redis.URL,
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
				PoolSize: cfg.Cache.Redis.PoolSize,
				Prefix:   cfg.Cache.Redis.Prefix,
			},
		})
		if err != nil {
			logger.Warn().Err(err).Str("driver", cfg.Cache.Driver).Msg("Response cache unavailable, continuing without it")
		} else if cacheClient != nil {
			c.cache = cacheClient
			model = cache.NewCachedModel(llmClient, cacheClient, llmClient.Model(), cfg.Cache.TTL, logger)
		}
	}

	opts := []extract.Option{extract.WithModelName(cfg.LLM.Model)}
	if cfg.History.Enabled {
		history, err := storage.Open(ctx, storage.Options{
			Driver:      cfg.History.Driver,
			SQLitePath:  cfg.History.SQLite.Path,
			PostgresDSN: cfg.History.Postgres.DSN,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Extraction history unavailable, continuing without it")
		} else {
			c.history = history
			opts = append(opts, extract.WithRecorder(history))
		}
	}

	c.service = extract.NewService(model, logger, opts...)
	return c, nil
}

// Process extracts the table in imagePath and writes results.csv into
// outDir, or next to the image when outDir is empty. Stage events are sent
// to events without blocking; events may be nil.
func (c *Client) Process(ctx context.Context, imagePath string, selector ColumnSelector, outDir string, events chan<- StageEvent) (*Result, error) {
	if err := c.cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	if outDir == "" {
		outDir = c.cfg.Output.Dir
	}
	if outDir == "" {
		outDir = filepath.Dir(imagePath)
	}

	return c.service.Process(ctx, extract.Request{
		Source: &source.FileSource{
			Path:         imagePath,
			MaxDimension: c.cfg.Image.MaxDimension,
			Validator:    c.validator,
		},
		Selector: selector,
		Sink:     sink.NewFileSink(outDir, c.cfg.Output.Clipboard, c.logger),
	}, events)
}

// ProcessUpload extracts the table from an image held in memory. The
// result is not written to disk.
func (c *Client) ProcessUpload(ctx context.Context, name string, data []byte, selector ColumnSelector, events chan<- StageEvent) (*Result, error) {
	if err := c.cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	if err := source.ValidateExtension(name); err != nil {
		return nil, err
	}

	return c.service.Process(ctx, extract.Request{
		Source: &source.BytesSource{
			Name:         filepath.Base(name),
			Data:         data,
			MaxDimension: c.cfg.Image.MaxDimension,
		},
		Selector: selector,
		Sink:     &sink.MemorySink{},
	}, events)
}

// Parse runs the parsing pipeline on a saved model response.
func (c *Client) Parse(ctx context.Context, raw string, selector ColumnSelector) (Table, error) {
	return c.service.Extract(ctx, raw, selector, nil)
}

// Service exposes the underlying extraction service.
func (c *Client) Service() *extract.Service {
	return c.service
}

// History returns the history store, or nil when disabled.
func (c *Client) History() *storage.History {
	return c.history
}

// Cache returns the response cache, or nil when disabled.
func (c *Client) Cache() cache.Client {
	return c.cache
}

// Config returns the configuration the client was built from.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Close cleans up resources
func (c *Client) Close() error {
	var errs []error
	if c.history != nil {
		errs = append(errs, c.history.Close())
	}
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	return errors.Join(errs...)
}
