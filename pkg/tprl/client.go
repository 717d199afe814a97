// Package tprl builds Temporal clients from the environment.
package tprl

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/casualjim/hubtrigger/pkg/slogx"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
)

func envStrOrDefault(key string, def string) string {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	return s
}

// NewClient creates a lazy Temporal client. hostPort falls back to
// TEMPORAL_ADDRESS and then to the SDK default. The namespace comes from
// TEMPORAL_NAMESPACE.
func NewClient(hostPort string) (client.Client, error) {
	lg := slog.Default().With(slogx.LoggerName("hubtrigger.temporal"))

	if hostPort == "" {
		hostPort = envStrOrDefault("TEMPORAL_ADDRESS", client.DefaultHostPort)
	}
	cl, err := client.NewLazyClient(client.Options{
		HostPort:  hostPort,
		Namespace: envStrOrDefault("TEMPORAL_NAMESPACE", client.DefaultNamespace),
		Logger:    log.NewStructuredLogger(lg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create temporal client: %w", err)
	}
	return cl, nil
}
