package service

import (
	"context"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
)

// Notifier delivers operator alerts and user emails. Delivery is best effort,
// callers never fail an operation because of it.
type Notifier interface {
	AlertOperator(ctx context.Context, text string) error
	EmailUser(ctx context.Context, address, subject, body string) error
}

// CommandPublisher pushes a command to a physical node, at least once.
type CommandPublisher interface {
	Publish(ctx context.Context, nodeID string, cmd domain.NodeCommand) error
}
