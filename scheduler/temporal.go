package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casualjim/hubtrigger/internal/metrics"
	"github.com/casualjim/hubtrigger/pkg/slogx"
	"github.com/casualjim/hubtrigger/trigger"
	"github.com/fogfish/opts"
	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

const (
	// DefaultTaskQueue is the task queue build workflows are started on.
	DefaultTaskQueue = "hubtrigger"
	// DefaultWorkflow is the workflow type started for every cause.
	DefaultWorkflow = "HubTriggeredBuild"
)

var (
	// WithTaskQueue overrides DefaultTaskQueue.
	WithTaskQueue = opts.ForName[Temporal, string]("taskQueue")
	// WithWorkflow overrides DefaultWorkflow.
	WithWorkflow = opts.ForName[Temporal, string]("workflow")
)

// Temporal schedules builds by starting one workflow per cause.
type Temporal struct {
	client    client.Client
	taskQueue string
	workflow  string
	logger    *slog.Logger
}

var _ trigger.Scheduler = (*Temporal)(nil)

// NewTemporal creates a scheduler backed by c.
func NewTemporal(c client.Client, options ...opts.Option[Temporal]) (*Temporal, error) {
	if c == nil {
		return nil, errors.New("temporal client cannot be nil")
	}
	t := &Temporal{
		client:    c,
		taskQueue: DefaultTaskQueue,
		workflow:  DefaultWorkflow,
	}
	if err := opts.Apply(t, options); err != nil {
		return nil, err
	}
	if strings.TrimSpace(t.taskQueue) == "" {
		return nil, errors.New("task queue cannot be empty")
	}
	if strings.TrimSpace(t.workflow) == "" {
		return nil, errors.New("workflow cannot be empty")
	}
	t.logger = slogx.Named(nil, "hubtrigger.scheduler.temporal")
	return t, nil
}

// WorkflowID derives the workflow id for cause from the message time, topic and
// body, so the same message seen twice by the same trigger maps to the same id.
// Messages without a timestamp cannot be told apart from a redelivery and get a
// fresh id every time.
func WorkflowID(cause trigger.Cause) string {
	ts := cause.Time()
	if ts.IsZero() || ts.UnixNano() == 0 {
		return fmt.Sprintf("%s-%s", nameAsID(cause.Trigger), uuid.Must(uuid.NewV7()))
	}
	h := sha256.New()
	h.Write([]byte(cause.Topic))
	h.Write([]byte{0})
	h.Write(cause.Body)
	return fmt.Sprintf("%s-%d-%s", nameAsID(cause.Trigger), ts.UnixMilli(), hex.EncodeToString(h.Sum(nil)[:6]))
}

// Schedule starts the build workflow. A workflow that already exists for the
// same message is not an error.
func (t *Temporal) Schedule(ctx context.Context, cause trigger.Cause) error {
	id := WorkflowID(cause)
	run, err := t.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                t.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
		Memo: map[string]any{
			"description": cause.ShortDescription(),
		},
	}, t.workflow, cause)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			metrics.IncCause(metrics.CauseDuplicate)
			t.logger.Debug("build already started", slog.String("trigger", cause.Trigger), slog.String("workflow_id", id))
			return nil
		}
		return fmt.Errorf("failed to start build workflow: %w", err)
	}

	t.logger.Info("build workflow started",
		slog.String("trigger", cause.Trigger),
		slog.String("workflow_id", run.GetID()),
		slog.String("run_id", run.GetRunID()),
	)
	return nil
}

func nameAsID(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "trigger"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, name)
}
