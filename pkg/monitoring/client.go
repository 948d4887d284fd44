package monitoring

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/openshift/cromwell-monitor/pkg/results"
)

// MonitoringClient reads the tables written by the Cromwell task monitor.
type MonitoringClient interface {
	ListRuntime(ctx context.Context, query WorkflowQuery) ([]RuntimeRow, error)
	ListMetadata(ctx context.Context, query WorkflowQuery) ([]MetadataRow, error)
	ListMetrics(ctx context.Context, query WorkflowQuery, instanceIDs []int64) ([]MetricsRow, error)
}

type monitoringClient struct {
	client          *bigquery.Client
	dataCoordinates DataCoordinates
	metrics         *Metrics
}

var _ MonitoringClient = &monitoringClient{}

func NewMonitoringClient(dataCoordinates DataCoordinates, client *bigquery.Client, metrics *Metrics) MonitoringClient {
	return &monitoringClient{
		client:          client,
		dataCoordinates: dataCoordinates,
		metrics:         metrics,
	}
}

const runtimeQuery = `
SELECT *
FROM DATA_SET_LOCATION.runtime AS runtime
WHERE
      DATE(runtime.start_time) >= DATE_SUB(CURRENT_DATE(), INTERVAL @DaysBackUpper DAY)
  AND DATE(runtime.start_time) <= DATE_SUB(CURRENT_DATE(), INTERVAL @DaysBackLower DAY)
  AND runtime.workflow_id IN UNNEST(@WorkflowIDs)
`

const metadataQuery = `
SELECT
  metadata.*,
  TIMESTAMP_DIFF(metadata.end_time, metadata.start_time, SECOND) AS meta_duration_sec
FROM DATA_SET_LOCATION.metadata AS metadata
WHERE
      DATE(metadata.start_time) >= DATE_SUB(CURRENT_DATE(), INTERVAL @DaysBackUpper DAY)
  AND DATE(metadata.start_time) <= DATE_SUB(CURRENT_DATE(), INTERVAL @DaysBackLower DAY)
  AND metadata.workflow_id IN UNNEST(@WorkflowIDs)
`

const metricsQuery = `
SELECT
  metrics.timestamp,
  metrics.instance_id,
  metrics.cpu_used_percent,
  metrics.mem_used_gb,
  metrics.disk_used_gb,
  metrics.disk_read_iops,
  metrics.disk_write_iops
FROM DATA_SET_LOCATION.metrics AS metrics
WHERE
      DATE(metrics.timestamp) >= DATE_SUB(CURRENT_DATE(), INTERVAL @DaysBackUpper DAY)
  AND DATE(metrics.timestamp) <= DATE_SUB(CURRENT_DATE(), INTERVAL @DaysBackLower DAY)
  AND metrics.instance_id IN UNNEST(@InstanceIDs)
`

func (q WorkflowQuery) parameters() []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "WorkflowIDs", Value: q.WorkflowIDs},
		{Name: "DaysBackUpper", Value: q.DaysBackUpper},
		{Name: "DaysBackLower", Value: q.DaysBackLower},
	}
}

func (c *monitoringClient) ListRuntime(ctx context.Context, query WorkflowQuery) ([]RuntimeRow, error) {
	return readAll[RuntimeRow](ctx, c.client, c.metrics, RuntimeTableName, c.dataCoordinates.SubstituteDataSetLocation(runtimeQuery), query.parameters())
}

func (c *monitoringClient) ListMetadata(ctx context.Context, query WorkflowQuery) ([]MetadataRow, error) {
	return readAll[MetadataRow](ctx, c.client, c.metrics, MetadataTableName, c.dataCoordinates.SubstituteDataSetLocation(metadataQuery), query.parameters())
}

func (c *monitoringClient) ListMetrics(ctx context.Context, query WorkflowQuery, instanceIDs []int64) ([]MetricsRow, error) {
	if len(instanceIDs) == 0 {
		return nil, nil
	}
	params := []bigquery.QueryParameter{
		{Name: "InstanceIDs", Value: instanceIDs},
		{Name: "DaysBackUpper", Value: query.DaysBackUpper},
		{Name: "DaysBackLower", Value: query.DaysBackLower},
	}
	return readAll[MetricsRow](ctx, c.client, c.metrics, MetricsTableName, c.dataCoordinates.SubstituteDataSetLocation(metricsQuery), params)
}

// readAll runs the query and reads every row into T.
func readAll[T any](ctx context.Context, client *bigquery.Client, metrics *Metrics, name, queryString string, params []bigquery.QueryParameter) (ret []T, err error) {
	start := time.Now()
	defer func() { metrics.observe(name, start, len(ret), err) }()

	query := client.Query(queryString)
	query.QueryConfig.Parameters = params
	query.QueryConfig.Labels = map[string]string{
		"client": "cromwell-monitor",
		"query":  name,
	}
	it, err := query.Read(ctx)
	if err != nil {
		return nil, results.ForReason(results.ReasonQueryFailed).WithError(err).Errorf("failed to query %s table with %q: %v", name, queryString, err)
	}
	for {
		var row T
		err = it.Next(&row)
		if err == iterator.Done {
			err = nil
			break
		}
		if err != nil {
			return nil, results.ForReason(results.ReasonQueryFailed).WithError(err).Errorf("failed to read %s row: %v", name, err)
		}
		ret = append(ret, row)
	}
	return ret, nil
}
