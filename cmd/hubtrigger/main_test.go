package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/casualjim/hubtrigger/check"
	"github.com/casualjim/hubtrigger/messages"
	"github.com/casualjim/hubtrigger/trigger"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Setenv("NATS_URL", "nats://bus.example.org:4222")

	cfg, err := parseConfig([]byte(`
task_queue: koji
queue_capacity: 8
triggers:
  - name: kernel
    hub: nats://hub.fedoraproject.org:4222
    topic: org.fedoraproject.prod.buildsys.build.state.change
    checks:
      - field: name
        expected: kernel
      - field: owner
        expected: "jwb|jforbes"
        regexp: true
  - name: anything
    topic: org.fedoraproject.prod.git.receive
`))
	require.NoError(t, err)
	assert.Equal(t, "koji", cfg.TaskQueue)
	assert.Equal(t, 8, cfg.QueueCapacity)
	require.Len(t, cfg.Triggers, 2)

	kernel := cfg.Triggers[0]
	assert.Equal(t, "kernel", kernel.Name)
	assert.Equal(t, "nats://hub.fedoraproject.org:4222", kernel.HubAddress)
	assert.Equal(t, []check.Spec{
		{Field: "name", Expected: "kernel"},
		{Field: "owner", Expected: "jwb|jforbes", Regexp: true},
	}, kernel.Checks)

	assert.Equal(t, "nats://bus.example.org:4222", cfg.Triggers[1].HubAddress)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", ``, "no triggers configured"},
		{"no triggers", `task_queue: x`, "no triggers configured"},
		{"unknown field", "triggers:\n  - name: a\n    topic: t\n    hubb: nats://x\n", "field hubb not found"},
		{"missing name", "triggers:\n  - topic: t\n", "name cannot be empty"},
		{"duplicate", "triggers:\n  - {name: a, topic: t}\n  - {name: a, topic: u}\n", "duplicate name"},
		{"missing topic", "triggers:\n  - {name: a, hub: 'nats://x'}\n", trigger.ErrEmptyTopic.Error()},
		{"negative capacity", "queue_capacity: -1\ntriggers:\n  - {name: a, topic: t}\n", "queue_capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hubtrigger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("triggers:\n  - {name: a, hub: 'nats://x:4222', topic: t}\n"), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Triggers, 1)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseFlags(t *testing.T) {
	t.Setenv("HUBTRIGGER_TASK_QUEUE", "from-env")

	o, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "hubtrigger.yaml", o.configPath)
	assert.Equal(t, "info", o.logLevel)
	assert.Equal(t, "from-env", o.taskQueue)
	assert.False(t, o.print)

	o, err = parseFlags([]string{"-c", "t.yaml", "--print", "--task-queue", "builds", "--log-level", "debug"})
	require.NoError(t, err)
	assert.Equal(t, "t.yaml", o.configPath)
	assert.Equal(t, "builds", o.taskQueue)
	assert.Equal(t, "debug", o.logLevel)
	assert.True(t, o.print)

	_, err = parseFlags([]string{"extra"})
	assert.Error(t, err)

	_, err = parseFlags([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, slogLevel(zerolog.TraceLevel))
	assert.Equal(t, slog.LevelDebug, slogLevel(zerolog.DebugLevel))
	assert.Equal(t, slog.LevelInfo, slogLevel(zerolog.InfoLevel))
	assert.Equal(t, slog.LevelWarn, slogLevel(zerolog.WarnLevel))
	assert.Equal(t, slog.LevelError, slogLevel(zerolog.ErrorLevel))

	assert.Error(t, setupLogging("loud"))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestServe(t *testing.T) {
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	defer srv.Shutdown()

	cfg, err := parseConfig([]byte(`
triggers:
  - name: kernel
    hub: ` + srv.ClientURL() + `
    topic: buildsys.build
    checks:
      - field: name
        expected: kernel
`))
	require.NoError(t, err)

	causes := make(chan trigger.Cause, 4)
	sched := trigger.SchedulerFunc(func(_ context.Context, c trigger.Cause) error {
		causes <- c
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- serve(ctx, cfg, sched) }()

	require.Eventually(t, func() bool { return srv.NumSubscriptions() > 0 }, 5*time.Second, 10*time.Millisecond)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	for _, body := range []string{`{"name":"glibc"}`, `{"name":"kernel"}`} {
		data, err := messages.Encode("buildsys.build", 1428570014, []byte(body))
		require.NoError(t, err)
		require.NoError(t, nc.Publish("buildsys.build", data))
	}
	require.NoError(t, nc.Flush())

	select {
	case c := <-causes:
		assert.Equal(t, "kernel", c.Trigger)
		assert.JSONEq(t, `{"name":"kernel"}`, string(c.Body))
	case <-time.After(5 * time.Second):
		t.Fatal("no build scheduled")
	}

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
	assert.Empty(t, causes)
	assert.False(t, cfg.Triggers[0].Running())
}
