package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/cache"
	"github.com/desertthunder/mixtape/internal/consensus"
	"github.com/desertthunder/mixtape/internal/llm"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/resolver"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tasks"
	"github.com/desertthunder/mixtape/internal/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
)

const analysisBuffer = 64

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Services left nil in [RunnerOpts] are built from the configuration in [Runner.Load].
type Runner struct {
	config     *shared.Config
	configPath string
	catalog    services.Catalog
	publisher  services.Publisher
	completer  llm.Completer
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	registry   *prometheus.Registry
	db         *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Catalog    services.Catalog
	Publisher  services.Publisher
	Completer  llm.Completer
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		catalog:    opts.Catalog,
		publisher:  opts.Publisher,
		completer:  opts.Completer,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		generateCommand, resolveCommand, consensusCommand, toolsCommand,
		setupCommand, authCommand, serveCommand, tuiCommand, cacheCommand, runsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Load reads the config file named by --config, when it exists, and builds
// the catalog and completer that were not injected.
func (r *Runner) Load(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); err == nil {
			config, err := shared.LoadConfig(r.configPath)
			if err != nil {
				return ctx, err
			}
			r.config = config
		} else {
			r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		}
	}

	level := r.config.LogLevel
	if cmd.IsSet("log-level") || level == "" {
		level = cmd.String("log-level")
	}
	shared.SetLogLevel(r.logger, shared.ParseLevel(level))

	if r.catalog == nil {
		if err := r.connectSpotify(ctx); err != nil {
			r.logger.Warn("Spotify unavailable", "error", err)
		}
	}

	if r.completer == nil && r.llmConfigured() {
		client, err := llm.NewOpenAIClient(r.config.LLM, r.httpClient, shared.WithLogger(r.logger, "component", "llm"))
		if err != nil {
			r.logger.Warn("LLM unavailable", "error", err)
		} else {
			r.completer = client
		}
	}

	return ctx, nil
}

// llmConfigured reports whether an API key is set or the endpoint is a
// self-hosted OpenAI-compatible server that needs none.
func (r *Runner) llmConfigured() bool {
	cfg := r.config.LLM
	return cfg.APIKey != "" || (cfg.BaseURL != "" && !strings.Contains(cfg.BaseURL, "api.openai.com"))
}

func (r *Runner) connectSpotify(ctx context.Context) error {
	creds := r.config.Credentials.Spotify
	if !creds.Configured() {
		return fmt.Errorf("%w: set credentials.spotify client_id and client_secret in %s", shared.ErrMissingCredentials, r.configName())
	}
	svc, err := services.NewSpotifyService(creds.Map(),
		services.WithRateLimit(r.config.Catalog.RateLimit, r.config.Catalog.Burst),
		services.WithRetry(r.config.Catalog.Retry()),
		services.WithLogger(shared.WithLogger(r.logger, "component", "spotify")),
	)
	if err != nil {
		return err
	}
	if err := svc.Authenticate(ctx, creds.Map()); err != nil {
		return err
	}

	r.catalog = svc
	if r.publisher == nil && creds.RefreshToken != "" {
		r.publisher = svc
	}
	return nil
}

// Close releases the database handle opened for the sqlite cache or run history.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// database opens and migrates the configured database once per process.
func (r *Runner) database() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}
	db, err := shared.OpenMigrated(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	r.db = db
	return db, nil
}

func (r *Runner) requireCatalog() error {
	if r.catalog == nil {
		return fmt.Errorf("%w: Spotify catalog not configured (set credentials.spotify in %s)", shared.ErrServiceUnavailable, r.configName())
	}
	return nil
}

func (r *Runner) configName() string {
	if r.configPath == "" {
		return "config.toml"
	}
	return r.configPath
}

// resolutionCache returns the configured cache backend.
func (r *Runner) resolutionCache() (cache.Cache, error) {
	switch r.config.Cache.Driver {
	case "sqlite":
		db, err := r.database()
		if err != nil {
			return nil, err
		}
		return repositories.NewResolutionStore(db, r.config.Cache.TTL(), shared.WithLogger(r.logger, "component", "cache")), nil
	default:
		return cache.NewMemory(r.config.Cache.TTL(), r.config.Cache.MaxEntries), nil
	}
}

func (r *Runner) newResolver() (*resolver.Resolver, error) {
	c, err := r.resolutionCache()
	if err != nil {
		return nil, err
	}
	return resolver.New(r.catalog,
		resolver.WithCache(c),
		resolver.WithAliases(resolver.NewMapAliases(r.config.Aliases)),
		resolver.WithLogger(shared.WithLogger(r.logger, "component", "resolver")),
	), nil
}

func (r *Runner) newCollector() *consensus.Collector {
	return consensus.NewCollector(r.catalog, consensus.NewKeywordClassifier(r.config.Events),
		consensus.WithLogger(shared.WithLogger(r.logger, "component", "consensus")))
}

// metricsRegistry returns the process registry, creating it with the Go and process collectors.
func (r *Runner) metricsRegistry() *prometheus.Registry {
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r.registry
}

// analysisSink records run summaries in the database when the sqlite cache is
// enabled, and logs them otherwise.
func (r *Runner) analysisSink() tasks.AnalysisSink {
	if r.config.Cache.Driver == "sqlite" {
		db, err := r.database()
		if err == nil {
			return repositories.NewRunRepository(db)
		}
		r.logger.Warn("run history unavailable", "error", err)
	}
	return tasks.LogSink{Logger: shared.WithLogger(r.logger, "component", "analysis")}
}

// newEngine wires the generation engine. The returned func drains the analysis queue.
func (r *Runner) newEngine() (*tasks.Engine, func(context.Context), error) {
	if err := r.requireCatalog(); err != nil {
		return nil, nil, err
	}

	catalog, err := tools.DefaultCatalog()
	if err != nil {
		return nil, nil, err
	}
	res, err := r.newResolver()
	if err != nil {
		return nil, nil, err
	}

	metrics := tasks.NewMetrics(r.metricsRegistry())
	execOpts := []tools.Option{
		tools.WithConfig(tools.ConfigFromEngine(r.config.Engine)),
		tools.WithObserver(metrics),
		tools.WithLogger(shared.WithLogger(r.logger, "component", "tools")),
	}

	engineLogger := shared.WithLogger(r.logger, "component", "engine")
	var planner tasks.Planner
	var fallback tasks.FallbackGenerator
	if r.completer != nil {
		execOpts = append(execOpts, tools.WithCompleter(r.completer))
		planner = tasks.NewLLMPlanner(r.completer, catalog, engineLogger)
		fallback = tasks.NewLLMFallbackGenerator(r.completer, r.catalog, r.config.Engine.GenerativeInflation, engineLogger)
	} else {
		r.logger.Warn("no LLM configured: planning and generative fallbacks are disabled")
	}

	executor := tools.NewExecutor(r.catalog, res, r.newCollector(), execOpts...)
	queue := tasks.NewAnalysisQueue(r.analysisSink(), r.config.Engine.AnalysisWorkers, analysisBuffer, engineLogger)

	engine := tasks.NewEngine(r.catalog, executor, planner,
		tasks.WithFallback(fallback),
		tasks.WithEngineConfig(r.config.Engine),
		tasks.WithMarket(r.config.Catalog.Market),
		tasks.WithMetrics(metrics),
		tasks.WithAnalysis(queue),
		tasks.WithUsage(tasks.LogUsageSink{Logger: shared.WithLogger(r.logger, "component", "usage")}),
		tasks.WithEngineLogger(engineLogger),
	)

	shutdown := func(ctx context.Context) {
		if err := queue.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Warn("analysis queue did not drain", "error", err)
		}
	}
	return engine, shutdown, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
