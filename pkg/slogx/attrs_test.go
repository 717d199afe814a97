package slogx

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttrs(t *testing.T) {
	assert.Equal(t, slog.String("error", "boom"), Error(errors.New("boom")))
	assert.Equal(t, slog.String("hub", "nats://x"), Hub("nats://x"))
	assert.Equal(t, slog.String("topic", "pkg.build"), Topic("pkg.build"))
	assert.Equal(t, slog.String("registration", "r1"), Registration("r1"))
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	Named(logger, "hubtrigger.mux").Info("hello")
	assert.Contains(t, buf.String(), "logger=hubtrigger.mux")
	assert.NotNil(t, Named(nil, "fallback"))
}
