// Package mqtt pushes node commands to the broker the physical nodes
// subscribe to. Each node listens on nodes/<id>.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
)

const (
	commandQoS = 1

	DefaultPort           = 1883
	TLSPort               = 8883
	DefaultConnectTimeout = 10 * time.Second
)

var ErrPublishTimeout = errors.New("mqtt: publish not acknowledged in time")

type Config struct {
	Broker   string
	Port     int
	Username string
	Password string
	ClientID string

	// ConnectTimeout bounds the initial wait. The client keeps retrying in
	// the background after it elapses.
	ConnectTimeout time.Duration
}

// Topic is where commands for nodeID are published.
func Topic(nodeID string) string { return "nodes/" + nodeID }

// Publisher implements the node command channel. Commands are published at
// QoS 1 without retain, so a node offline at publish time may still get it
// once and a node may see the same command twice.
type Publisher struct {
	Client paho.Client
}

// Connect starts a client with auto-reconnect. A broker that is down at
// startup does not fail the service, the publisher just reports errors until
// the connection comes up.
func Connect(cfg Config, logger *slog.Logger) *Publisher {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	scheme := "tcp"
	if port == TLSPort {
		scheme = "ssl"
	}

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker, port)).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			logger.Info("connected to mqtt broker", slog.String("broker", cfg.Broker))
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("lost mqtt connection", slog.Any("error", err))
		})

	if scheme == "ssl" {
		opts.SetTLSConfig(&tls.Config{ServerName: cfg.Broker, MinVersion: tls.VersionTLS12})
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	tok := client.Connect()
	if !tok.WaitTimeout(timeout) {
		logger.Warn("mqtt broker not reachable yet, retrying in background",
			slog.String("broker", cfg.Broker),
			slog.Int("port", port),
		)
	} else if err := tok.Error(); err != nil {
		logger.Error("mqtt connect failed", slog.Any("error", err))
	}

	return &Publisher{Client: client}
}

func (p *Publisher) Publish(ctx context.Context, nodeID string, cmd domain.NodeCommand) error {
	tok := p.Client.Publish(Topic(nodeID), commandQoS, false, string(cmd))

	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("publish %s to %s: %w", cmd, nodeID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrPublishTimeout, ctx.Err())
	}
}

// IsConnected reports whether the client currently holds a broker session.
func (p *Publisher) IsConnected() bool {
	return p.Client.IsConnectionOpen()
}

// Close disconnects, giving in-flight messages a moment to finish.
func (p *Publisher) Close() {
	p.Client.Disconnect(250)
}
