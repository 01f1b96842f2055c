// Package loki ships zap log entries to Grafana Loki in gzip-compressed batches.
package loki

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/repbot/internal/setup/config"
)

// ErrUnexpectedStatusCode is returned when Loki responds with an unexpected status code.
var ErrUnexpectedStatusCode = errors.New("unexpected status code from Loki")

const (
	pushPath            = "/loki/api/v1/push"
	defaultBatchMaxSize = 500
	defaultBatchMaxWait = 2 * time.Second
)

// Pusher batches stream values and sends them to Loki.
type Pusher struct {
	config    config.Loki
	client    *http.Client
	pushURL   string
	maxSize   int
	maxWait   time.Duration
	entries   chan streamValue
	quit      chan struct{}
	stopOnce  sync.Once
	waitGroup sync.WaitGroup
	batch     []streamValue
}

// NewPusher starts a pusher. It runs until Stop is called or ctx is done.
func NewPusher(ctx context.Context, cfg config.Loki, client *http.Client) *Pusher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	maxSize := cfg.BatchMaxSize
	if maxSize <= 0 {
		maxSize = defaultBatchMaxSize
	}

	maxWait := time.Duration(cfg.BatchMaxWaitMS) * time.Millisecond
	if maxWait <= 0 {
		maxWait = defaultBatchMaxWait
	}

	p := &Pusher{
		config:  cfg,
		client:  client,
		pushURL: strings.TrimRight(cfg.URL, "/") + pushPath,
		maxSize: maxSize,
		maxWait: maxWait,
		entries: make(chan streamValue, maxSize*2),
		quit:    make(chan struct{}),
		batch:   make([]streamValue, 0, maxSize),
	}

	p.waitGroup.Add(1)

	go p.run(ctx)

	return p
}

// Add queues a value. Values are dropped when the queue is full so logging never blocks.
func (p *Pusher) Add(value streamValue) {
	select {
	case p.entries <- value:
	default:
		slog.Warn("Loki queue full, dropping log entry")
	}
}

// Stop flushes queued values and waits for the final push.
func (p *Pusher) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	p.waitGroup.Wait()
}

func (p *Pusher) run(ctx context.Context) {
	defer p.waitGroup.Done()

	ticker := time.NewTicker(p.maxWait)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drain()
			p.flush(context.Background())

			return
		case <-p.quit:
			p.drain()
			p.flush(ctx)

			return
		case value := <-p.entries:
			p.batch = append(p.batch, value)
			if len(p.batch) >= p.maxSize {
				p.flush(ctx)
			}
		case <-ticker.C:
			p.flush(ctx)
		}
	}
}

// drain moves everything still queued into the batch.
func (p *Pusher) drain() {
	for {
		select {
		case value := <-p.entries:
			p.batch = append(p.batch, value)
		default:
			return
		}
	}
}

func (p *Pusher) flush(ctx context.Context) {
	if len(p.batch) == 0 {
		return
	}

	if err := p.send(ctx, p.batch); err != nil {
		slog.Error("Failed to send Loki batch", slog.Int("entries", len(p.batch)), slog.Any("error", err))
	}

	p.batch = p.batch[:0]
}

// send transmits one batch as a single stream.
func (p *Pusher) send(ctx context.Context, values []streamValue) error {
	payload, err := sonic.Marshal(pushRequest{
		Streams: []stream{{Stream: p.config.Labels, Values: values}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("failed to compress: %w", err)
	}

	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.pushURL, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	if p.config.Username != "" && p.config.Password != "" {
		req.SetBasicAuth(p.config.Username, p.config.Password)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, resp.StatusCode)
	}

	return nil
}
