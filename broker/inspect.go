// CLAUDE:SUMMARY Broker inspection operations: cluster overview, queue listings fanned out across vhosts, and a requeueing peek at queue heads.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	defaultPeek = 10
	maxPeek     = 50

	// queueFanOut bounds concurrent per-vhost listing calls.
	queueFanOut = 4
)

// Overview is the cluster-level summary from /api/overview.
type Overview struct {
	ClusterName string `json:"cluster_name"`
	Version     string `json:"rabbitmq_version"`
	QueueTotals struct {
		Messages       int64 `json:"messages"`
		Ready          int64 `json:"messages_ready"`
		Unacknowledged int64 `json:"messages_unacknowledged"`
	} `json:"queue_totals"`
	ObjectTotals struct {
		Queues      int64 `json:"queues"`
		Connections int64 `json:"connections"`
		Channels    int64 `json:"channels"`
		Consumers   int64 `json:"consumers"`
	} `json:"object_totals"`
}

// Queue is one queue's state as reported by the management API.
type Queue struct {
	Name           string `json:"name"`
	VHost          string `json:"vhost"`
	State          string `json:"state"`
	Messages       int64  `json:"messages"`
	Ready          int64  `json:"messages_ready"`
	Unacknowledged int64  `json:"messages_unacknowledged"`
	Consumers      int64  `json:"consumers"`
}

// Message is one peeked message. The management API truncates long
// payloads; PayloadBytes carries the original size.
type Message struct {
	Exchange     string `json:"exchange"`
	RoutingKey   string `json:"routing_key"`
	Payload      string `json:"payload"`
	PayloadBytes int64  `json:"payload_bytes"`
	Redelivered  bool   `json:"redelivered"`
	MessageCount int64  `json:"message_count"`
}

// GetOverview fetches the cluster summary.
func (c *Client) GetOverview(ctx context.Context) (*Overview, error) {
	var ov Overview
	if err := c.getJSON(ctx, c.apiURL("overview"), &ov); err != nil {
		return nil, err
	}
	return &ov, nil
}

// Queues lists every queue on the configured vhosts. Listings run
// concurrently per vhost; results come back sorted by vhost then name so
// output is stable regardless of completion order.
func (c *Client) Queues(ctx context.Context) ([]Queue, error) {
	var (
		mu  sync.Mutex
		all []Queue
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(queueFanOut)
	for _, vhost := range c.vhosts {
		g.Go(func() error {
			var queues []Queue
			if err := c.getJSON(ctx, c.apiURL("queues", vhost), &queues); err != nil {
				return fmt.Errorf("vhost %q: %w", vhost, err)
			}
			mu.Lock()
			all = append(all, queues...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].VHost != all[j].VHost {
			return all[i].VHost < all[j].VHost
		}
		return all[i].Name < all[j].Name
	})
	return all, nil
}

// Peek reads up to count messages from the head of a queue and requeues
// them. The broker still redelivers, so peeking is observable to consumers
// as a redelivery, but no message is lost. count defaults to 10 and is
// capped at 50.
func (c *Client) Peek(ctx context.Context, vhost, queue string, count int) ([]Message, error) {
	if vhost == "" {
		return nil, fmt.Errorf("%w: vhost is required", ErrInvalidInput)
	}
	if queue == "" {
		return nil, fmt.Errorf("%w: queue is required", ErrInvalidInput)
	}
	if count <= 0 {
		count = defaultPeek
	}
	if count > maxPeek {
		count = maxPeek
	}

	body, err := json.Marshal(map[string]any{
		"count":    count,
		"ackmode":  "ack_requeue_true",
		"encoding": "auto",
		"truncate": 50000,
	})
	if err != nil {
		return nil, fmt.Errorf("broker: encode peek request: %w", err)
	}

	rawURL := c.apiURL("queues", vhost, queue, "get")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("broker: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker: peek: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("peek", resp); err != nil {
		return nil, err
	}
	var msgs []Message
	if err := decodeJSON(resp, &msgs); err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "peeked queue",
		slog.String("vhost", vhost),
		slog.String("queue", queue),
		slog.Int("messages", len(msgs)))
	return msgs, nil
}
