// Package nats mirrors chat events onto a NATS JetStream stream so other
// local tools can follow the conversation. The mirror is best effort: the
// chat client keeps working while the broker is down.
package nats

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/voicechat/pkg/logger"
)

const (
	// maxPendingPublishes bounds unacknowledged mirror publishes.
	maxPendingPublishes = 256
	// flushTimeout bounds how long Close waits for pending acks.
	flushTimeout = 2 * time.Second
)

// Config holds NATS connection configuration.
type Config struct {
	URL string
	// CAFile verifies the server; CertFile and KeyFile, when both set,
	// authenticate the client.
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// Client is a publish-only JetStream connection for the event mirror.
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

// Connect dials the broker. An unreachable server does not fail: the
// connection keeps retrying in the background and buffers publishes until
// it comes up. Only invalid configuration returns an error.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	log = log.Named("nats")

	nc, err := nats.Connect(cfg.URL, connectOptions(cfg, log)...)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc,
		jetstream.WithPublishAsyncMaxPending(maxPendingPublishes),
		jetstream.WithPublishAsyncErrHandler(func(_ jetstream.JetStream, msg *nats.Msg, err error) {
			log.Warn("event mirror publish failed", zap.String("subject", msg.Subject), zap.Error(err))
		}),
	)
	if err != nil {
		nc.Close()
		return nil, err
	}

	if nc.IsConnected() {
		log.Info("event mirror connected", zap.String("url", nc.ConnectedUrl()))
	} else {
		log.Warn("event mirror broker unreachable, retrying in background", zap.String("url", cfg.URL))
	}

	return &Client{conn: nc, js: js, logger: log}, nil
}

func connectOptions(cfg Config, log *logger.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name("voicechat-mirror"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(1 << 20),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("event mirror disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("event mirror reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("event mirror error", zap.Error(err))
		}),
	}

	if cfg.CAFile != "" {
		opts = append(opts, nats.RootCAs(cfg.CAFile))
	}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		opts = append(opts, nats.ClientCert(cfg.CertFile, cfg.KeyFile))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	return opts
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// IsConnected reports whether the broker is currently reachable.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close waits briefly for outstanding mirror acks, then drains the
// connection.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}

	select {
	case <-c.js.PublishAsyncComplete():
	case <-time.After(flushTimeout):
		c.logger.Warn("closing event mirror with unacknowledged events",
			zap.Int("pending", c.js.PublishAsyncPending()))
	}

	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
