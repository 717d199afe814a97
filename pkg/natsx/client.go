package natsx

import (
	"os"

	"github.com/nats-io/nats.go"
)

// DefaultName is the client name announced to NATS servers.
const DefaultName = "hubtrigger"

// URL resolves the NATS server to use: the explicit address when set, otherwise
// the NATS_URL environment variable, otherwise nats.DefaultURL.
func URL(address string) string {
	if address != "" {
		return address
	}
	if u := os.Getenv("NATS_URL"); u != "" {
		return u
	}
	return nats.DefaultURL
}

// NewClient creates a new connection to the NATS server at address. The
// connection is configured with the client name "hubtrigger" and compression
// enabled; extra options are applied after those defaults.
func NewClient(address string, opts ...nats.Option) (*nats.Conn, error) {
	all := append([]nats.Option{nats.Name(DefaultName), nats.Compression(true)}, opts...)
	return nats.Connect(URL(address), all...)
}
