package natsx

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestURL(t *testing.T) {
	t.Run("explicit address wins", func(t *testing.T) {
		t.Setenv("NATS_URL", "nats://env:4222")
		assert.Equal(t, "nats://hub:4222", URL("nats://hub:4222"))
	})

	t.Run("falls back to env", func(t *testing.T) {
		t.Setenv("NATS_URL", "nats://env:4222")
		assert.Equal(t, "nats://env:4222", URL(""))
	})

	t.Run("falls back to default", func(t *testing.T) {
		t.Setenv("NATS_URL", "")
		assert.Equal(t, nats.DefaultURL, URL(""))
	})
}
