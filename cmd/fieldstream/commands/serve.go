package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/haivivi/fieldstream/pkg/cli"
	"github.com/haivivi/fieldstream/pkg/fieldx"
	"github.com/haivivi/fieldstream/pkg/records"
	"github.com/haivivi/fieldstream/pkg/relay"
	"github.com/haivivi/fieldstream/pkg/upstream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long: `Run an HTTP relay that forwards each POSTed instruction to the upstream
model and streams the record fields back as NDJSON.

The server is configured by a YAML or JSON file:

  listen: ":8080"
  path: /v1/generate
  tokens: [secret]            # accepted bearer credentials, empty = open
  repair: true                # repair a truncated final object
  upstream:
    kind: http                # http | openai | gemini
    provider: gemini          # envelope preset for kind http
    url: https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:streamGenerateContent?alt=sse
    api_key: KEY
    auth_header: x-goog-api-key
    idle_timeout: 60s
  store:
    dir: /var/lib/fieldstream/records
  export:
    dir: /var/lib/fieldstream/export
    s3:
      bucket: my-records
      prefix: fieldstream
      region: us-east-1

Examples:
  fieldstream serve -f serve.yaml
  fieldstream serve -f serve.yaml --listen :9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides the config file)")
}

type serveConfig struct {
	Listen              string         `yaml:"listen" json:"listen"`
	Path                string         `yaml:"path" json:"path"`
	Tokens              []string       `yaml:"tokens" json:"tokens"`
	MaxInstructionBytes int64          `yaml:"max_instruction_bytes" json:"max_instruction_bytes"`
	Repair              bool           `yaml:"repair" json:"repair"`
	Upstream            upstreamConfig `yaml:"upstream" json:"upstream"`
	Store               storeConfig    `yaml:"store" json:"store"`
	Export              exportConfig   `yaml:"export" json:"export"`
}

type upstreamConfig struct {
	Kind        string   `yaml:"kind" json:"kind"`
	Provider    string   `yaml:"provider" json:"provider"`
	DeltaPath   string   `yaml:"delta_path" json:"delta_path"`
	ErrorPath   string   `yaml:"error_path" json:"error_path"`
	URL         string   `yaml:"url" json:"url"`
	APIKey      string   `yaml:"api_key" json:"api_key"`
	AuthHeader  string   `yaml:"auth_header" json:"auth_header"`
	AuthPrefix  *string  `yaml:"auth_prefix" json:"auth_prefix"`
	Headers     []header `yaml:"headers" json:"headers"`
	IdleTimeout string   `yaml:"idle_timeout" json:"idle_timeout"`
	Model       string   `yaml:"model" json:"model"`
	System      string   `yaml:"system" json:"system"`
	SchemaFile  string   `yaml:"schema_file" json:"schema_file"`
}

type header struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

type storeConfig struct {
	Dir      string `yaml:"dir" json:"dir"`
	InMemory bool   `yaml:"in_memory" json:"in_memory"`
	Disabled bool   `yaml:"disabled" json:"disabled"`
}

type exportConfig struct {
	Dir string    `yaml:"dir" json:"dir"`
	S3  *s3Config `yaml:"s3" json:"s3"`
}

type s3Config struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style" json:"path_style"`
}

func runServe(cmd *cobra.Command, args []string) error {
	if inputFile == "" {
		return fmt.Errorf("-f serve config is required")
	}
	var cfg serveConfig
	if err := cli.LoadRequest(inputFile, &cfg); err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Path == "" {
		cfg.Path = "/v1/generate"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := buildSource(ctx, cfg.Upstream)
	if err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	exporter, err := buildExporter(ctx, cfg.Export)
	if err != nil {
		return err
	}

	h := &relay.Handler{
		Source:              src,
		MaxInstructionBytes: cfg.MaxInstructionBytes,
		Repair:              cfg.Repair,
		OnComplete:          persist(store, exporter),
	}
	if len(cfg.Tokens) > 0 {
		h.Authenticator = relay.StaticTokens(cfg.Tokens...)
	} else {
		cli.PrintWarning("no tokens configured; the relay accepts every request")
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("relay listening", "addr", cfg.Listen, "path", cfg.Path, "upstream", cfg.Upstream.Kind)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("relay shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildSource creates the upstream Source described by c.
func buildSource(ctx context.Context, c upstreamConfig) (upstream.Source, error) {
	idle, err := c.idleTimeout()
	if err != nil {
		return nil, err
	}
	switch c.Kind {
	case "", "http":
		return buildHTTPSource(c, idle)
	case "openai":
		if c.Model == "" {
			return nil, fmt.Errorf("model is required for kind openai")
		}
		opts := []option.RequestOption{option.WithAPIKey(c.APIKey)}
		if c.URL != "" {
			opts = append(opts, option.WithBaseURL(c.URL))
		}
		client := openai.NewClient(opts...)
		src := &upstream.OpenAISource{Client: &client, Model: c.Model, System: c.System, IdleTimeout: idle}
		if c.SchemaFile != "" {
			schema, err := loadSchema(c.SchemaFile)
			if err != nil {
				return nil, err
			}
			src.Schema = schema
		}
		return src, nil
	case "gemini":
		if c.Model == "" {
			return nil, fmt.Errorf("model is required for kind gemini")
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.APIKey})
		if err != nil {
			return nil, err
		}
		return &upstream.GeminiSource{Client: client, Model: c.Model, System: c.System, IdleTimeout: idle}, nil
	}
	return nil, fmt.Errorf("unknown kind %q", c.Kind)
}

// idleTimeout parses idle_timeout, a Go duration such as "90s". Empty means
// the upstream default.
func (c upstreamConfig) idleTimeout() (time.Duration, error) {
	if c.IdleTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.IdleTimeout)
	if err != nil {
		return 0, fmt.Errorf("idle_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("idle_timeout: negative duration %s", d)
	}
	return d, nil
}

func buildHTTPSource(c upstreamConfig, idle time.Duration) (*upstream.Client, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("url is required for kind http")
	}
	var (
		provider *upstream.Provider
		err      error
	)
	if c.DeltaPath != "" {
		provider, err = upstream.ParseProvider("custom", c.DeltaPath, c.ErrorPath)
	} else {
		name := c.Provider
		if name == "" {
			name = "gemini"
		}
		provider, err = upstream.LookupProvider(name)
	}
	if err != nil {
		return nil, err
	}

	opts := []upstream.Option{upstream.WithProvider(provider), upstream.WithAPIKey(c.APIKey)}
	if c.AuthHeader != "" {
		prefix := ""
		if c.AuthPrefix != nil {
			prefix = *c.AuthPrefix
		}
		opts = append(opts, upstream.WithAuthHeader(c.AuthHeader, prefix))
	} else if c.AuthPrefix != nil {
		opts = append(opts, upstream.WithAuthHeader("Authorization", *c.AuthPrefix))
	}
	for _, h := range c.Headers {
		opts = append(opts, upstream.WithHeader(h.Name, h.Value))
	}
	if idle > 0 {
		opts = append(opts, upstream.WithIdleTimeout(idle))
	}
	return upstream.NewClient(c.URL, opts...), nil
}

func loadSchema(path string) (*jsonschema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return &s, nil
}

func openStore(c storeConfig) (records.Store, error) {
	if c.Disabled {
		return nil, nil
	}
	if c.InMemory {
		return records.NewMemory(), nil
	}
	dir := c.Dir
	if dir == "" {
		paths, err := cli.NewPaths(appName)
		if err != nil {
			return nil, err
		}
		dir = paths.RecordsDir()
	}
	return records.NewBadger(records.BadgerOptions{Dir: dir})
}

func buildExporter(ctx context.Context, c exportConfig) (*records.Exporter, error) {
	switch {
	case c.S3 != nil:
		s := c.S3
		if s.Bucket == "" {
			return nil, fmt.Errorf("export.s3.bucket is required")
		}
		opts := s3.Options{
			Region:       s.Region,
			UsePathStyle: s.PathStyle,
		}
		if s.Endpoint != "" {
			opts.BaseEndpoint = aws.String(s.Endpoint)
		}
		if s.AccessKeyID != "" {
			opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
				func(context.Context) (aws.Credentials, error) {
					return aws.Credentials{
						AccessKeyID:     s.AccessKeyID,
						SecretAccessKey: s.SecretAccessKey,
						Source:          "fieldstream serve config",
					}, nil
				}))
		}
		return &records.Exporter{Files: records.NewS3(s3.New(opts), s.Bucket, s.Prefix)}, nil
	case c.Dir != "":
		files, err := records.NewLocal(c.Dir)
		if err != nil {
			return nil, err
		}
		return &records.Exporter{Files: files}, nil
	}
	return nil, nil
}

// persist stores and exports every completed record.
func persist(store records.Store, exporter *records.Exporter) func(context.Context, string, []fieldx.Member) error {
	if store == nil && exporter == nil {
		return nil
	}
	return func(ctx context.Context, id string, fields []fieldx.Member) error {
		rec := records.New(id, fields)
		if store != nil {
			if err := store.Put(ctx, rec); err != nil {
				return fmt.Errorf("store record: %w", err)
			}
		}
		if exporter != nil {
			if err := exporter.Export(ctx, rec); err != nil {
				return fmt.Errorf("export record: %w", err)
			}
		}
		slog.Info("record saved", "id", id, "fields", len(fields))
		return nil
	}
}
