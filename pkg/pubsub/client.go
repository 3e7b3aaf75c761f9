package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Client is a Pub/Sub v2 client bound to one project and a fixed topic set.
type Client struct {
	ps      *pubsub.Client
	project string
	topics  []string
}

// NewClient dials Pub/Sub and verifies every topic exists. With createMissing
// (emulator and dev setups) absent topics are created instead of failing.
// PUBSUB_EMULATOR_HOST is honored by the underlying library.
func NewClient(ctx context.Context, gcp config.GCPConfig, topics []string, createMissing bool, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	names := dedupe(topics)
	if len(names) == 0 {
		return nil, errors.New("at least one pubsub topic is required")
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}
	ps, err := pubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}

	c := &Client{ps: ps, project: project, topics: names}
	for _, name := range names {
		if err := c.checkTopic(ctx, name, createMissing); err != nil {
			_ = ps.Close()
			return nil, err
		}
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project_id": project,
			"topics":     names,
		}), "pubsub client initialized")
	}
	return c, nil
}

func dedupe(topics []string) []string {
	seen := make(map[string]bool, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (c *Client) checkTopic(ctx context.Context, name string, create bool) error {
	full := resourceName(c.project, name)
	_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	switch {
	case err == nil:
		return nil
	case status.Code(err) != codes.NotFound:
		return fmt.Errorf("get topic %s: %w", name, err)
	case !create:
		return fmt.Errorf("topic %s does not exist", full)
	}
	_, err = c.ps.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: full})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("create topic %s: %w", name, err)
	}
	return nil
}

// Publisher returns an ordered publisher for topic, or nil when the client is unusable.
// Messages that share an ordering key are delivered in publish order.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	full := resourceName(c.project, topic)
	if full == "" {
		return nil
	}
	p := c.ps.Publisher(full)
	p.EnableMessageOrdering = true
	return p
}

// Ping re-checks that the configured topics are still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, name := range c.topics {
		if err := c.checkTopic(ctx, name, false); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	return c.ps.Close()
}

// resourceName expands a short topic id to projects/<p>/topics/<id>. Full
// resource names pass through unchanged.
func resourceName(project, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	if strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/") {
		return topic
	}
	if project = strings.TrimSpace(project); project == "" {
		return ""
	}
	return "projects/" + project + "/topics/" + topic
}
