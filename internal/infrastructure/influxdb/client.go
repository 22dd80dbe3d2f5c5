package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/nodeward/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize    = 100
	defaultFlushSeconds = 10
)

// Client records process lifecycle points in one InfluxDB bucket.
//
// Points are batched by the write API and sent in the background, so
// WriteLifecycle never blocks a lifecycle transition on the network.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI
	closed atomic.Bool
}

// Connect pings the server at cfg.URL and opens a batching writer for
// cfg.Org and cfg.Bucket. Failed batches are passed to onWriteError, which
// may be nil.
func Connect(cfg config.InfluxDBConfig, onWriteError func(error)) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		influx: influx,
		writer: influx.WriteAPI(cfg.Org, cfg.Bucket),
	}
	go forwardErrors(c.writer.Errors(), onWriteError)
	return c, nil
}

// writeOptions maps batch size and flush interval (seconds) onto the
// client options, falling back to the defaults for non-positive values.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushSeconds
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).           //nolint:gosec // positive, checked above
		SetFlushInterval(uint(flush) * 1000) //nolint:gosec // milliseconds
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	ok, err := influx.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errUnhealthy
	}
	return nil
}

func forwardErrors(errs <-chan error, handle func(error)) {
	for err := range errs {
		if handle != nil {
			handle(err)
		}
	}
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.influx); err != nil {
		return fmt.Errorf("influxdb: health check: %w", err)
	}
	return nil
}

// Close sends whatever is still batched and releases the client.
// Later calls, and calls on a zero Client, do nothing.
func (c *Client) Close() error {
	if c.influx == nil || c.closed.Swap(true) {
		return nil
	}
	c.writer.Flush()
	c.influx.Close()
	return nil
}
