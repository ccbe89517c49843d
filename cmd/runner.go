package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/lifecycle"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/repositories"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/services"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/shared"
	"github.com/gwherrett/mako-sync-ai-sub002/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Most commands build the lifecycle manager lazily from the config file on
// first use; tests inject a pre-built manager and engine instead.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	db         *sql.DB
	manager    *lifecycle.Manager
	engine     tasks.Engine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Manager    *lifecycle.Manager
	Engine     tasks.Engine
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		manager:    opts.Manager,
		engine:     opts.Engine,
	}

	if r.manager != nil && r.engine == nil {
		r.engine = tasks.NewLifecycleEngine(r.manager, r.callbackAddr(), 0, r.logger)
	}

	return r
}

// SetLogger replaces the runner's logger (used by the TUI to redirect logs to a file).
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, connectCommand, disconnectCommand, statusCommand, refreshCommand, syncCommand, monitorCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the runner's config, reading configPath when the file
// exists and falling back to embedded defaults otherwise.
func (r *Runner) loadConfig(configPath string) *shared.Config {
	if r.config != nil {
		return r.config
	}
	if configPath == "" {
		configPath = r.configPath
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := shared.LoadConfig(configPath)
		if err != nil {
			r.logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		} else {
			config = loaded
		}
	}

	r.config = config
	r.configPath = configPath
	return config
}

// ensureManager lazily builds the full dependency graph: database,
// repositories, services, lifecycle manager, and connect/sync engine.
func (r *Runner) ensureManager(configPath string) error {
	if r.manager != nil {
		return nil
	}

	config := r.loadConfig(configPath)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database (run `makosync setup` first): %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	r.db = db

	connections := repositories.NewConnectionRepository(db)
	sessions := repositories.NewSessionRepository(db)
	states := repositories.NewOAuthStateRepository(db)

	spotify, err := services.NewSpotifyService(config.Credentials.Spotify.Map())
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrMissingCredentials, err)
	}

	session := services.NewSessionService(sessions)
	backend := services.NewBackendService(config.Backend.BaseURL, nil, config.Backend.RequestsPerSecond, 0)

	retry := lifecycle.DefaultRetryConfig()
	if config.Lifecycle.MaxRetries > 0 {
		retry.MaxRetries = config.Lifecycle.MaxRetries
	}
	if config.Lifecycle.RetryDelaySeconds > 0 {
		retry.BaseDelay = time.Duration(config.Lifecycle.RetryDelaySeconds) * time.Second
	}

	r.manager = lifecycle.New(lifecycle.ManagerConfig{
		CheckCooldown:      config.Lifecycle.CheckCooldown(),
		CheckTimeout:       config.Lifecycle.CheckTimeout(),
		HealthInterval:     config.Lifecycle.HealthInterval(),
		Retry:              retry,
		AutoRefresh:        config.Lifecycle.AutoRefresh,
		HealthMonitoring:   config.Lifecycle.HealthMonitoring,
		SecurityValidation: config.Lifecycle.SecurityValidation,
		ExpiryWarning:      config.Lifecycle.ExpiryWarning(),
		MaxFailures:        config.Lifecycle.MaxConsecutiveFailures,
	}, lifecycle.ManagerDeps{
		Store:   connections,
		States:  []lifecycle.StateStore{states, shared.FileStateStore{}},
		Session: session,
		OAuth:   spotify,
		Backend: backend,
		Logger:  r.logger,
	})
	r.engine = tasks.NewLifecycleEngine(r.manager, r.callbackAddr(), 0, r.logger)

	return nil
}

// callbackAddr returns the loopback address the OAuth callback listener binds to.
func (r *Runner) callbackAddr() string {
	host, port := "127.0.0.1", 8080
	if r.config != nil {
		if r.config.Server.Host != "" {
			host = r.config.Server.Host
		}
		if r.config.Server.Port > 0 {
			port = r.config.Server.Port
		}
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Close releases the runner's resources after a command finishes.
func (r *Runner) Close() {
	if r.manager != nil {
		r.manager.Destroy()
	}
	if r.db != nil {
		r.db.Close()
	}
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
