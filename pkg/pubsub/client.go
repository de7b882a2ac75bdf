// Package pubsub owns the Google Cloud Pub/Sub connection the outbox relay
// publishes notification events through.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/qrseal/qrseal-backend/pkg/config"
	"github.com/qrseal/qrseal-backend/pkg/logger"
)

// Client hands out one long-lived publisher per topic. Publishers batch in the
// background, so Close flushes them before the connection goes away.
type Client struct {
	conn    *pubsub.Client
	project string
	topic   string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects to Pub/Sub and refuses to start if the notification
// topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	if strings.TrimSpace(cfg.NotificationTopic) == "" {
		return nil, errors.New("pubsub notification topic is required")
	}

	conn, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("connect pubsub: %w", err)
	}
	c := &Client{
		conn:       conn,
		project:    project,
		topic:      cfg.NotificationTopic,
		publishers: make(map[string]*pubsub.Publisher),
	}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", c.topicPath(c.topic)), "pubsub connected")
	}
	return c, nil
}

// Publisher returns the cached publisher for topic, a short id or a full
// projects/<p>/topics/<t> path.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.conn == nil {
		return nil
	}
	path := c.topicPath(topic)
	if path == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[path]; ok {
		return p
	}
	p := c.conn.Publisher(path)
	c.publishers[path] = p
	return p
}

// Ping checks that the notification topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return errors.New("pubsub client not initialized")
	}
	path := c.topicPath(c.topic)
	_, err := c.conn.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: path})
	switch {
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub topic %s does not exist", path)
	case err != nil:
		return fmt.Errorf("get pubsub topic %s: %w", path, err)
	}
	return nil
}

// Close flushes every publisher and closes the connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	c.mu.Lock()
	for path, p := range c.publishers {
		p.Stop()
		delete(c.publishers, path)
	}
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) topicPath(topic string) string {
	topic = strings.TrimSpace(topic)
	switch {
	case topic == "":
		return ""
	case strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/"):
		return topic
	case c.project == "":
		return ""
	default:
		return "projects/" + c.project + "/topics/" + topic
	}
}
