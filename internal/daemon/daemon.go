package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"

	"github.com/tutu-network/wakeboost/internal/api"
	"github.com/tutu-network/wakeboost/internal/boost"
	"github.com/tutu-network/wakeboost/internal/domain"
	"github.com/tutu-network/wakeboost/internal/health"
	"github.com/tutu-network/wakeboost/internal/infra/cpufreq"
	"github.com/tutu-network/wakeboost/internal/infra/display"
	"github.com/tutu-network/wakeboost/internal/infra/scheduler"
	"github.com/tutu-network/wakeboost/internal/infra/sqlite"
)

// pruneInterval is how often the journal is trimmed to journal.retain.
const pruneInterval = time.Hour

// Options carries what NewWithConfig takes from its environment.
type Options struct {
	FS      afero.Fs // default: the OS filesystem
	DataDir string   // default: WakeboostHome()
	Logger  logr.Logger
}

// Daemon is the wake boost runtime. It wires together all services.
type Daemon struct {
	Config  Config
	Log     logr.Logger
	CPUFreq *cpufreq.Subsystem
	Display *display.Chain
	Source  *display.SysfsSource // nil when display.source = none or no backlight
	DB      *sqlite.DB           // nil when the journal is disabled
	Boost   *boost.Controller
	Health  *health.Checker
	Server  *api.Server

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a Daemon from the on-disk configuration.
func New(log logr.Logger) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg, Options{Logger: log})
}

// NewWithConfig creates a Daemon with the given configuration. Nothing is
// registered with the frequency subsystem until Serve.
func NewWithConfig(cfg Config, opts Options) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.DataDir == "" {
		opts.DataDir = wakeboostHome()
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	log := opts.Logger

	d := &Daemon{Config: cfg, Log: log}

	d.CPUFreq = cpufreq.New(opts.FS, cpufreq.Config{
		Root:           cfg.CPUFreq.SysfsRoot,
		ResyncInterval: parseDuration(cfg.CPUFreq.ResyncInterval, 0),
	}, log)

	d.Display = display.NewChain(log)
	if cfg.Display.Source == "sysfs" {
		src, err := display.NewSysfsSource(opts.FS, display.SourceConfig{
			Path:         cfg.Display.Path,
			Mode:         display.Mode(cfg.Display.Mode),
			PollInterval: parseDuration(cfg.Display.PollInterval, 100*time.Millisecond),
		}, d.Display, log)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				return nil, err
			}
			log.Info("display source unavailable, events only via API", "error", err.Error())
		} else {
			d.Source = src
		}
	}

	var journal domain.CycleJournal
	if cfg.Journal.Enabled {
		db, err := sqlite.Open(opts.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		d.DB, journal = db, db
	}

	ctrl, err := boost.New(d.CPUFreq, d.Display, journal, boost.Config{
		DefaultDuration: time.Duration(cfg.Boost.DefaultMS) * time.Millisecond,
		Queue: scheduler.Options{
			HighPriority:   cfg.Boost.HighPriority,
			Nice:           -10,
			StrictPriority: cfg.Boost.StrictPriority,
		},
	}, log)
	if err != nil {
		d.closeDB()
		return nil, err
	}
	d.Boost = ctrl

	checks := []health.Check{health.CPUFreq(d.CPUFreq), health.Scheduler(d.Boost)}
	if d.Source != nil {
		checks = append(checks, health.DisplaySource(d.Source))
	}
	if d.DB != nil {
		checks = append(checks, health.Journal(d.DB))
	}
	d.Health = health.NewChecker(parseDuration(cfg.Telemetry.HealthInterval, health.DefaultInterval), log, checks...)

	d.Server = api.NewServer(d.Boost, d.CPUFreq, d.Display, log)
	d.Server.SetHealth(d.Health)
	if d.DB != nil {
		d.Server.SetHistory(d.DB)
	}
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	return d, nil
}

// Serve installs the boost, starts background services and the HTTP server,
// and blocks until ctx is canceled or SIGINT/SIGTERM arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return d.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (d *Daemon) ServeListener(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.Boost.Start(); err != nil {
		ln.Close()
		return fmt.Errorf("install wake boost: %w", err)
	}

	// First round captures the user limits every later proposal starts from.
	if n, err := d.CPUFreq.UpdateAll(); err != nil {
		d.Log.Error(err, "initial policy sync", "updated", n)
	}

	go d.CPUFreq.Run(ctx)
	go d.Health.Run(ctx)
	if d.Source != nil {
		go d.Source.Run(ctx)
	}
	if d.DB != nil && d.Config.Journal.Retain > 0 {
		go d.pruneLoop(ctx)
	}

	httpServer := &http.Server{
		Handler:      d.Server.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	d.Log.Info("wakeboost serving", "addr", ln.Addr().String(),
		"defaultMs", d.Config.Boost.DefaultMS,
		"displaySource", d.sourceName(),
		"metrics", d.Config.Telemetry.Prometheus)

	if err := httpServer.Serve(ln); err != http.ErrServerClosed {
		cancel()
		return err
	}
	return nil
}

// Close stops the boost (restoring the floor if one is active) and
// releases all daemon resources.
func (d *Daemon) Close() {
	d.closeOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		if d.Boost != nil {
			d.Boost.Stop()
		}
		d.closeDB()
	})
}

func (d *Daemon) closeDB() {
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

func (d *Daemon) pruneLoop(ctx context.Context) {
	d.prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.prune()
		}
	}
}

func (d *Daemon) prune() {
	n, err := d.DB.Prune(d.Config.Journal.Retain)
	if err != nil {
		d.Log.Error(err, "prune journal")
		return
	}
	if n > 0 {
		d.Log.V(1).Info("journal pruned", "removed", n)
	}
}

func (d *Daemon) sourceName() string {
	if d.Source == nil {
		return "none"
	}
	return d.Source.Path()
}
