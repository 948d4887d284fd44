package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/openshift/cromwell-monitor/pkg/results"
)

const (
	// DefaultParallelism is the number of metrics batches queried at once.
	DefaultParallelism = 8
	// DefaultQueriesPerSecond paces the start of monitoring queries.
	DefaultQueriesPerSecond = 4
	// leftoverRetries bounds how often metrics are re-queried for VMs
	// that had none in the first pass.
	leftoverRetries = 3
)

// Fetch reads the runtime, metadata and metrics of the workflows and joins
// them. Metrics are queried in parallel batches of instance IDs; VMs whose
// metrics did not arrive are queried again before they are reported as
// missing.
func Fetch(ctx context.Context, client MonitoringClient, query WorkflowQuery, parallelism int, logger *logrus.Entry) (*Dataset, error) {
	if len(query.WorkflowIDs) == 0 {
		return nil, results.ForReason(results.ReasonInvalidParameter).Errorf("at least one workflow ID is required")
	}
	if query.DaysBackUpper < query.DaysBackLower {
		return nil, results.ForReason(results.ReasonInvalidParameter).Errorf("the upper bound of %d days back is more recent than the lower bound of %d days back", query.DaysBackUpper, query.DaysBackLower)
	}
	if parallelism < 1 {
		parallelism = DefaultParallelism
	}
	logger = logger.WithField("workflows", query.WorkflowIDs)

	var runtimes []RuntimeRow
	var metadata []MetadataRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		runtimes, err = client.ListRuntime(gctx, query)
		return err
	})
	g.Go(func() error {
		var err error
		metadata, err = client.ListMetadata(gctx, query)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("could not read workflow runtime: %w", err)
	}
	if len(runtimes) == 0 {
		return nil, results.ForReason(results.ReasonEmptyInput).Errorf("no VMs were recorded for the workflows between %d and %d days ago", query.DaysBackUpper, query.DaysBackLower)
	}
	logger.Infof("Found %d VMs and %d call attempts.", len(runtimes), len(metadata))

	// a VM has one runtime record per call attempt it served
	instanceIDs := sets.New[int64]()
	for _, runtime := range runtimes {
		instanceIDs.Insert(runtime.InstanceID)
	}

	metricsStart := time.Now()
	metrics, err := fetchMetrics(ctx, client, query, Batches(sets.List(instanceIDs), parallelism), parallelism)
	if err != nil {
		return nil, err
	}
	logger.Infof("Read %d metrics samples after %s.", len(metrics), time.Since(metricsStart).Round(time.Second))
	if len(metrics) == 0 {
		return nil, results.ForReason(results.ReasonEmptyInput).Errorf("no metrics were recorded for the workflows, verify the workflow IDs and time frame")
	}

	dataset := Join(runtimes, metadata, metrics, logger)
	for retry := 0; retry < leftoverRetries && len(dataset.MissingInstances) > 0; retry++ {
		logger.WithField("instances", dataset.MissingInstances).Info("Retrieving metrics for leftover VMs.")
		leftover, err := client.ListMetrics(ctx, query, dataset.MissingInstances)
		if err != nil {
			return nil, fmt.Errorf("could not read metrics for leftover VMs: %w", err)
		}
		if len(leftover) == 0 {
			break
		}
		metrics = append(metrics, leftover...)
		dataset = Join(runtimes, metadata, metrics, logger)
	}
	if len(dataset.MissingInstances) > 0 {
		logger.WithField("instances", dataset.MissingInstances).Warn("Not all provisioned VMs sent metrics.")
	}
	return dataset, nil
}

func fetchMetrics(ctx context.Context, client MonitoringClient, query WorkflowQuery, batches [][]int64, parallelism int) ([]MetricsRow, error) {
	var lock sync.Mutex
	var metrics []MetricsRow
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, batch := range batches {
		g.Go(func() error {
			rows, err := client.ListMetrics(gctx, query, batch)
			if err != nil {
				return fmt.Errorf("could not read metrics for %d VMs: %w", len(batch), err)
			}
			lock.Lock()
			defer lock.Unlock()
			metrics = append(metrics, rows...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return metrics, nil
}

// Batches splits ids into at most n batches of nearly equal size,
// preserving order. Empty batches are never returned.
func Batches(ids []int64, n int) [][]int64 {
	if len(ids) == 0 || n < 1 {
		return nil
	}
	n = min(n, len(ids))
	size, extra := len(ids)/n, len(ids)%n
	out := make([][]int64, 0, n)
	for i, start := 0, 0; i < n; i++ {
		end := start + size
		if i < extra {
			end++
		}
		out = append(out, ids[start:end])
		start = end
	}
	return out
}
