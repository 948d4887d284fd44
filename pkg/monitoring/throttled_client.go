package monitoring

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type throttledMonitoringClient struct {
	delegate MonitoringClient
	limiter  *rate.Limiter
}

// NewThrottledMonitoringClient waits for the limiter before every query,
// so that the parallel metrics batches do not start all at once.
func NewThrottledMonitoringClient(delegate MonitoringClient, limiter *rate.Limiter) MonitoringClient {
	return &throttledMonitoringClient{delegate: delegate, limiter: limiter}
}

func (c *throttledMonitoringClient) wait(ctx context.Context, name string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("could not start %s query: %w", name, err)
	}
	return nil
}

func (c *throttledMonitoringClient) ListRuntime(ctx context.Context, query WorkflowQuery) ([]RuntimeRow, error) {
	if err := c.wait(ctx, "runtime"); err != nil {
		return nil, err
	}
	return c.delegate.ListRuntime(ctx, query)
}

func (c *throttledMonitoringClient) ListMetadata(ctx context.Context, query WorkflowQuery) ([]MetadataRow, error) {
	if err := c.wait(ctx, "metadata"); err != nil {
		return nil, err
	}
	return c.delegate.ListMetadata(ctx, query)
}

func (c *throttledMonitoringClient) ListMetrics(ctx context.Context, query WorkflowQuery, instanceIDs []int64) ([]MetricsRow, error) {
	if err := c.wait(ctx, "metrics"); err != nil {
		return nil, err
	}
	return c.delegate.ListMetrics(ctx, query, instanceIDs)
}
