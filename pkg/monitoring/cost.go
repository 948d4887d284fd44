package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/results"
)

const (
	// OnDemandUSDPerTiB is the BigQuery on-demand price per TiB scanned.
	OnDemandUSDPerTiB = 6.25
	// QueryCostWarningUSD and QueryCostLimitUSD bound the estimated price
	// of the billing query.
	QueryCostWarningUSD = 5.0
	QueryCostLimitUSD   = 100.0
	// BillingDelay is how long billing data takes to be exported after
	// a workflow completes.
	BillingDelay = 24 * time.Hour
)

// CostQuery selects the billing line items of one workflow. The usage
// window is padded by DatePadding days on each side.
type CostQuery struct {
	WorkflowID  string
	Table       TableID
	Start       time.Time
	End         time.Time
	DatePadding int
}

const costQuery = `
SELECT
  project.id AS google_project_id,
  (SELECT value FROM UNNEST(labels) AS l WHERE l.key = 'cromwell-workflow-id') AS cromwell_id,
  (SELECT value FROM UNNEST(labels) AS l WHERE l.key = 'terra-submission-id') AS submission_id,
  (SELECT value FROM UNNEST(labels) AS l WHERE l.key = 'wdl-task-name') AS task_name,
  (SELECT value FROM UNNEST(system_labels) AS l WHERE l.key = 'compute.googleapis.com/machine_spec') AS machine_spec,
  (SELECT value FROM UNNEST(system_labels) AS l WHERE l.key = 'compute.googleapis.com/cores') AS machine_cores,
  (SELECT value FROM UNNEST(system_labels) AS l WHERE l.key = 'compute.googleapis.com/memory') AS machine_memory,
  usage_start_time,
  service.description AS cost_description,
  cost
FROM BILLING_TABLE AS billing, UNNEST(labels) AS label
WHERE
      cost > 0
  AND usage_start_time BETWEEN TIMESTAMP(@start_date) AND TIMESTAMP(@end_date)
  AND label.key IN ('cromwell-workflow-id', 'terra-submission-id')
  AND label.value LIKE @workflow_id
`

const workflowExistsQuery = `
SELECT EXISTS(
  SELECT 1
  FROM BILLING_TABLE, UNNEST(labels) AS label
  WHERE label.key = 'cromwell-workflow-id' AND label.value LIKE @workflow_id
) AS found
`

func (q CostQuery) SQL() string {
	return replaceTable(costQuery, q.Table)
}

func (q CostQuery) Parameters() []bigquery.QueryParameter {
	const layout = "2006-01-02"
	padding := time.Duration(q.DatePadding) * 24 * time.Hour
	return []bigquery.QueryParameter{
		{Name: "workflow_id", Value: "%" + q.WorkflowID + "%"},
		{Name: "start_date", Value: q.Start.Add(-padding).Format(layout)},
		{Name: "end_date", Value: q.End.Add(padding).Format(layout)},
	}
}

func (q CostQuery) Validate() error {
	if q.WorkflowID == "" {
		return results.ForReason(results.ReasonInvalidParameter).Errorf("a workflow ID is required")
	}
	if q.End.Before(q.Start) {
		return results.ForReason(results.ReasonInvalidParameter).Errorf("workflow end %s is before its start %s", q.End.Format(time.RFC3339), q.Start.Format(time.RFC3339))
	}
	if q.DatePadding < 0 {
		return results.ForReason(results.ReasonInvalidParameter).Errorf("date padding must not be negative, got %d", q.DatePadding)
	}
	return nil
}

// MinimumTimeElapsed reports whether more than minimum has passed since
// end, along with the time passed.
func MinimumTimeElapsed(end, now time.Time, minimum time.Duration) (bool, time.Duration) {
	elapsed := now.Sub(end)
	return elapsed > minimum, elapsed
}

// EstimateQueryCost is the on-demand price in USD of scanning the bytes.
func EstimateQueryCost(bytes int64) float64 {
	return float64(bytes) / (1 << 40) * OnDemandUSDPerTiB
}

// CheckQueryCost refuses queries estimated above the limit and warns about
// those above the warning threshold.
func CheckQueryCost(costUSD float64, logger *logrus.Entry) error {
	if costUSD > QueryCostLimitUSD {
		return results.ForReason(results.ReasonQueryTooLarge).Errorf("the query is estimated to cost $%.2f, over the $%.0f limit", costUSD, QueryCostLimitUSD)
	}
	if costUSD > QueryCostWarningUSD {
		logger.WithField("estimated_usd", costUSD).Warnf("The query will cost over $%.0f.", QueryCostWarningUSD)
	}
	return nil
}

// CostClient reads billing line items from a billing export table.
type CostClient interface {
	// CheckQuery verifies the table and the workflow and estimates the
	// price of the query before it is run.
	CheckQuery(ctx context.Context, query CostQuery) error
	ListCosts(ctx context.Context, query CostQuery) ([]api.CostRow, error)
}

type costClient struct {
	client  *bigquery.Client
	metrics *Metrics
	logger  *logrus.Entry
}

var _ CostClient = &costClient{}

func NewCostClient(client *bigquery.Client, metrics *Metrics, logger *logrus.Entry) CostClient {
	return &costClient{client: client, metrics: metrics, logger: logger}
}

type costRow struct {
	ProjectID       bigquery.NullString    `bigquery:"google_project_id"`
	WorkflowID      bigquery.NullString    `bigquery:"cromwell_id"`
	SubmissionID    bigquery.NullString    `bigquery:"submission_id"`
	TaskName        bigquery.NullString    `bigquery:"task_name"`
	MachineSpec     bigquery.NullString    `bigquery:"machine_spec"`
	MachineCores    bigquery.NullString    `bigquery:"machine_cores"`
	MachineMemory   bigquery.NullString    `bigquery:"machine_memory"`
	UsageStartTime  bigquery.NullTimestamp `bigquery:"usage_start_time"`
	CostDescription bigquery.NullString    `bigquery:"cost_description"`
	Cost            float64                `bigquery:"cost"`
}

func (r costRow) toAPI() api.CostRow {
	return api.CostRow{
		ProjectID:       r.ProjectID.StringVal,
		WorkflowID:      r.WorkflowID.StringVal,
		SubmissionID:    r.SubmissionID.StringVal,
		Task:            api.TaskName(r.TaskName.StringVal),
		MachineSpec:     r.MachineSpec.StringVal,
		MachineCores:    r.MachineCores.StringVal,
		MachineMemory:   r.MachineMemory.StringVal,
		UsageStart:      r.UsageStartTime.Timestamp,
		CostDescription: r.CostDescription.StringVal,
		Cost:            r.Cost,
	}
}

func (c *costClient) CheckQuery(ctx context.Context, query CostQuery) error {
	if err := query.Validate(); err != nil {
		return err
	}
	logger := c.logger.WithFields(logrus.Fields{"workflow_id": query.WorkflowID, "table": query.Table.String()})
	if ok, elapsed := MinimumTimeElapsed(query.End, time.Now(), BillingDelay); !ok {
		logger.Warnf("The workflow finished %s ago; billing data may be incomplete until %s have passed.", elapsed.Round(time.Minute), BillingDelay)
	}

	table := c.client.DatasetInProject(query.Table.ProjectID, query.Table.DataSetID).Table(query.Table.TableID)
	metadata, err := table.Metadata(ctx)
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return results.ForReason(results.ReasonInvalidParameter).WithError(err).Errorf("billing table %s does not exist", query.Table)
		}
		return results.ForReason(results.ReasonQueryFailed).WithError(err).Errorf("could not read billing table %s: %v", query.Table, err)
	}
	if problems := CheckSchema(metadata.Schema, BillingSchema); len(problems) > 0 {
		logger.WithField("problems", problems).Warn("The billing table schema differs from the expected schema.")
	}

	exists, err := c.workflowExists(ctx, query)
	if err != nil {
		return err
	}
	if !exists {
		return results.ForReason(results.ReasonMissingTask).Errorf("workflow %s has no billing records in %s", query.WorkflowID, query.Table)
	}

	dryRun := c.client.Query(query.SQL())
	dryRun.QueryConfig.Parameters = query.Parameters()
	dryRun.DryRun = true
	dryRun.DisableQueryCache = true
	job, err := dryRun.Run(ctx)
	if err != nil {
		return results.ForReason(results.ReasonQueryFailed).WithError(err).Errorf("could not dry run the cost query: %v", err)
	}
	status := job.LastStatus()
	if status == nil || status.Statistics == nil {
		return results.ForReason(results.ReasonQueryFailed).Errorf("dry run of the cost query returned no statistics")
	}
	c.metrics.estimated("cost", status.Statistics.TotalBytesProcessed)
	estimate := EstimateQueryCost(status.Statistics.TotalBytesProcessed)
	logger.Debugf("The cost query will process %d bytes, about $%.4f.", status.Statistics.TotalBytesProcessed, estimate)
	return CheckQueryCost(estimate, logger)
}

func (c *costClient) workflowExists(ctx context.Context, query CostQuery) (bool, error) {
	rows, err := readAll[struct {
		Found bool `bigquery:"found"`
	}](ctx, c.client, c.metrics, "workflow_exists", replaceTable(workflowExistsQuery, query.Table), query.Parameters()[:1])
	if err != nil {
		return false, fmt.Errorf("could not check whether the workflow has billing records: %w", err)
	}
	return len(rows) > 0 && rows[0].Found, nil
}

func (c *costClient) ListCosts(ctx context.Context, query CostQuery) ([]api.CostRow, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	rows, err := readAll[costRow](ctx, c.client, c.metrics, "cost", query.SQL(), query.Parameters())
	if err != nil {
		return nil, err
	}
	out := make([]api.CostRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toAPI())
	}
	return out, nil
}
