package monitoring

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/openshift/cromwell-monitor/pkg/api"
)

// quotaBackoff spaces out retries of queries rejected for quota, which
// the parallel metrics batches can run into.
var quotaBackoff = wait.Backoff{
	Steps:    4,
	Duration: 10 * time.Second,
	Factor:   2.0,
	Jitter:   0.1,
	Cap:      200 * time.Second,
}

// retried calls read until it succeeds, fails for a reason other than
// quota, or the backoff is exhausted.
func retried[T any](ctx context.Context, backoff wait.Backoff, read func() (T, error)) (T, error) {
	var out T
	err := retry.OnError(backoff, func(err error) bool {
		return ctx.Err() == nil && isQuotaError(err)
	}, func() error {
		var err error
		out, err = read()
		return err
	})
	return out, err
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	quota := strings.Contains(err.Error(), "exceeded quota for concurrent queries")
	var httpErr *googleapi.Error
	if errors.As(err, &httpErr) {
		for _, item := range httpErr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "quotaExceeded" {
				quota = true
			}
		}
	}
	if apiErr, ok := apierror.FromError(err); ok {
		switch {
		case apiErr.HTTPCode() == http.StatusTooManyRequests:
			quota = true
		case apiErr.Reason() == "RATE_LIMIT_EXCEEDED" || apiErr.Reason() == "RESOURCE_EXHAUSTED":
			quota = true
		}
	}
	if quota {
		logrus.WithError(err).Warn("BigQuery quota exceeded, retrying.")
	}
	return quota
}

type retryingMonitoringClient struct {
	delegate MonitoringClient
	backoff  wait.Backoff
}

// NewRetryingMonitoringClient retries reads rejected for quota.
func NewRetryingMonitoringClient(delegate MonitoringClient) MonitoringClient {
	return &retryingMonitoringClient{delegate: delegate, backoff: quotaBackoff}
}

func (c *retryingMonitoringClient) ListRuntime(ctx context.Context, query WorkflowQuery) ([]RuntimeRow, error) {
	return retried(ctx, c.backoff, func() ([]RuntimeRow, error) {
		return c.delegate.ListRuntime(ctx, query)
	})
}

func (c *retryingMonitoringClient) ListMetadata(ctx context.Context, query WorkflowQuery) ([]MetadataRow, error) {
	return retried(ctx, c.backoff, func() ([]MetadataRow, error) {
		return c.delegate.ListMetadata(ctx, query)
	})
}

func (c *retryingMonitoringClient) ListMetrics(ctx context.Context, query WorkflowQuery, instanceIDs []int64) ([]MetricsRow, error) {
	return retried(ctx, c.backoff, func() ([]MetricsRow, error) {
		return c.delegate.ListMetrics(ctx, query, instanceIDs)
	})
}

type retryingCostClient struct {
	delegate CostClient
	backoff  wait.Backoff
}

// NewRetryingCostClient retries billing queries rejected for quota.
func NewRetryingCostClient(delegate CostClient) CostClient {
	return &retryingCostClient{delegate: delegate, backoff: quotaBackoff}
}

func (c *retryingCostClient) CheckQuery(ctx context.Context, query CostQuery) error {
	_, err := retried(ctx, c.backoff, func() (struct{}, error) {
		return struct{}{}, c.delegate.CheckQuery(ctx, query)
	})
	return err
}

func (c *retryingCostClient) ListCosts(ctx context.Context, query CostQuery) ([]api.CostRow, error) {
	return retried(ctx, c.backoff, func() ([]api.CostRow, error) {
		return c.delegate.ListCosts(ctx, query)
	})
}
