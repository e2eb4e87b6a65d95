package container

import (
	"context"
	"fmt"

	tcpulsar "github.com/testcontainers/testcontainers-go/modules/pulsar"
)

// Pulsar is a handle on a standalone Pulsar container started through testcontainers.
type Pulsar struct {
	*tcpulsar.Container

	BrokerURL string
}

// NewPulsar creates and starts a new standalone Pulsar container,
// then returns a handle to said container to manage its lifecycle.
func NewPulsar(ctx context.Context) (*Pulsar, error) {
	c, err := tcpulsar.Run(ctx, "apachepulsar/pulsar:3.3.2")
	if err != nil {
		return nil, fmt.Errorf("container.NewPulsar: failed to run new container, %w", err)
	}

	url, err := c.BrokerURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("container.NewPulsar: failed to get broker url, %w", err)
	}

	return &Pulsar{Container: c, BrokerURL: url}, nil
}
