// hubtrigger listens to message hubs and schedules a build whenever a message
// on a watched topic passes the trigger's checks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Load NATS_URL, TEMPORAL_ADDRESS and friends from .env
	_ "github.com/joho/godotenv/autoload"

	"github.com/casualjim/hubtrigger/internal/broker"
	"github.com/casualjim/hubtrigger/internal/registry"
	"github.com/casualjim/hubtrigger/mux"
	"github.com/casualjim/hubtrigger/pkg/slogx"
	"github.com/casualjim/hubtrigger/pkg/tprl"
	"github.com/casualjim/hubtrigger/scheduler"
	"github.com/casualjim/hubtrigger/trigger"
	"github.com/nats-io/nats.go"
	"github.com/phsym/zeroslog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

type options struct {
	configPath  string
	logLevel    string
	print       bool
	temporal    string
	taskQueue   string
	workflow    string
	metricsAddr string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("hubtrigger failed", slogx.Error(err))
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	o := options{
		taskQueue: os.Getenv("HUBTRIGGER_TASK_QUEUE"),
	}
	flagSet := pflag.NewFlagSet("hubtrigger", pflag.ContinueOnError)
	flagSet.StringVarP(&o.configPath, "config", "c", "hubtrigger.yaml", "path to the trigger definitions")
	flagSet.StringVar(&o.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flagSet.BoolVar(&o.print, "print", false, "print fired builds instead of starting workflows")
	flagSet.StringVar(&o.temporal, "temporal", "", "temporal frontend host:port (default $TEMPORAL_ADDRESS)")
	flagSet.StringVar(&o.taskQueue, "task-queue", o.taskQueue, "task queue build workflows are started on (default $HUBTRIGGER_TASK_QUEUE)")
	flagSet.StringVar(&o.workflow, "workflow", "", "workflow type started for every build")
	flagSet.StringVar(&o.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	if err := flagSet.Parse(args); err != nil {
		return o, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return o, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return o, nil
}

func setupLogging(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log := zerolog.New(output).Level(lvl).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slogLevel(lvl)}),
	))
	return nil
}

func slogLevel(lvl zerolog.Level) slog.Level {
	switch {
	case lvl <= zerolog.DebugLevel:
		return slog.LevelDebug
	case lvl == zerolog.InfoLevel:
		return slog.LevelInfo
	case lvl == zerolog.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func run(args []string) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	if err := setupLogging(o.logLevel); err != nil {
		return err
	}

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	downstream, closeDownstream, err := newDownstream(o, cfg)
	if err != nil {
		return err
	}
	defer closeDownstream()

	capacity := cfg.QueueCapacity
	if capacity == 0 {
		capacity = scheduler.DefaultCapacity
	}
	queue, err := scheduler.NewQueue(downstream, scheduler.WithCapacity(capacity))
	if err != nil {
		return err
	}
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := queue.Close(drainCtx); err != nil {
			slog.Warn("pending builds were not scheduled", slog.Int("pending", queue.Pending()), slogx.Error(err))
		}
	}()

	if o.metricsAddr != "" {
		srv := serveMetrics(o.metricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return serve(ctx, cfg, queue)
}

// newDownstream picks where fired builds go: the console with --print,
// Temporal otherwise.
func newDownstream(o options, cfg *Config) (trigger.Scheduler, func(), error) {
	if o.print {
		return scheduler.NewConsole(os.Stdout), func() {}, nil
	}

	cl, err := tprl.NewClient(o.temporal)
	if err != nil {
		return nil, nil, err
	}

	taskQueue := firstNonEmpty(o.taskQueue, cfg.TaskQueue, scheduler.DefaultTaskQueue)
	workflow := firstNonEmpty(o.workflow, cfg.Workflow, scheduler.DefaultWorkflow)
	sched, err := scheduler.NewTemporal(cl, scheduler.WithTaskQueue(taskQueue), scheduler.WithWorkflow(workflow))
	if err != nil {
		cl.Close()
		return nil, nil, err
	}
	return sched, cl.Close, nil
}

func serveMetrics(addr string) *http.Server {
	handler := http.NewServeMux()
	handler.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.String("addr", addr), slogx.Error(err))
		}
	}()
	return srv
}

// serve starts every trigger and blocks until ctx is done.
func serve(ctx context.Context, cfg *Config, sched trigger.Scheduler) error {
	dialer, err := broker.NewDialer(broker.WithNATSOptions(
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	))
	if err != nil {
		return err
	}
	hubs, err := mux.NewRegistry(mux.WithDialer(dialer))
	if err != nil {
		return err
	}
	defer hubs.Close()

	running := registry.New()
	defer running.StopAll()

	for _, t := range cfg.Triggers {
		startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := t.Start(startCtx, hubs, sched)
		cancel()
		if err != nil {
			return err
		}
		if err := running.Add(t); err != nil {
			t.Stop()
			return err
		}
		slog.Info("trigger started", slog.String("trigger", t.Name), slogx.Hub(t.HubAddress), slogx.Topic(t.Topic))
	}

	slog.Info("hubtrigger running", slog.Int("triggers", running.Len()), slog.Int("hubs", hubs.Len()))
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
