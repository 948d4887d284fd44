package cromwellmonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"k8s.io/utils/ptr"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/monitoring"
	"github.com/openshift/cromwell-monitor/pkg/report"
	"github.com/openshift/cromwell-monitor/pkg/results"
	"github.com/openshift/cromwell-monitor/pkg/snapshot"
	"github.com/openshift/cromwell-monitor/pkg/workflowsummary"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// workflowSnapshot is five shards of align, the last one using twice the
// CPU of the others, followed by an unscattered merge.
func workflowSnapshot() *snapshot.Snapshot {
	snap := &snapshot.Snapshot{WorkflowIDs: []string{"wf1"}, Fetched: t0.Add(time.Hour)}
	for shard := 0; shard < 5; shard++ {
		cpu := 50.0
		if shard == 4 {
			cpu = 99
		}
		instance := int64(100 + shard)
		for minute := 0; minute < 2; minute++ {
			snap.Samples = append(snap.Samples, api.SampleRow{
				WorkflowID:         "wf1",
				Task:               "align",
				Shard:              api.ShardID(shard),
				Attempt:            1,
				InstanceID:         instance,
				Timestamp:          t0.Add(time.Duration(shard+minute) * time.Minute),
				CPUUsedPercent:     api.Reading{cpu},
				MemUsedGB:          api.Reading{2},
				DiskUsedGB:         api.Reading{10},
				MetricsDurationSec: ptr.To(60.0),
				MetaDurationSec:    ptr.To(90.0),
			})
		}
		snap.Runtimes = append(snap.Runtimes, api.InstanceRuntime{WorkflowID: "wf1", Task: "align", Shard: api.ShardID(shard), Attempt: 1, InstanceID: instance, CPUCount: 4, RequestedCPU: 4})
	}
	snap.Samples = append(snap.Samples, api.SampleRow{
		WorkflowID:         "wf1",
		Task:               "merge",
		Shard:              -1,
		Attempt:            1,
		InstanceID:         200,
		Timestamp:          t0.Add(10 * time.Minute),
		MetricsDurationSec: ptr.To(30.0),
	})
	return snap
}

// cachedSource serves the snapshot from a local directory and fails if
// BigQuery would be queried.
func cachedSource(t *testing.T, snap *snapshot.Snapshot) *datasetSource {
	t.Helper()
	source := &datasetSource{
		workflowIDs: []string{"wf1"},
		parallelism: 1,
		cache:       &snapshot.Directory{Path: t.TempDir()},
		newClient: func(context.Context) (monitoring.MonitoringClient, error) {
			return nil, errors.New("BigQuery should not be queried")
		},
	}
	if snap != nil {
		if err := snapshot.Store(context.Background(), source.cache, source.name(), snap, logrus.NewEntry(logrus.New())); err != nil {
			t.Fatalf("could not store snapshot: %v", err)
		}
	}
	return source
}

func jsonOutput() *OutputFlags {
	f := NewOutputFlags()
	f.Output = string(report.FormatJSON)
	return f
}

func TestWorkflowSummaryRun(t *testing.T) {
	var out bytes.Buffer
	o := &WorkflowSummaryOptions{
		source: cachedSource(t, workflowSnapshot()),
		output: jsonOutput(),
		out:    &out,
	}
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var actual report.WorkflowReport
	if err := json.Unmarshal(out.Bytes(), &actual); err != nil {
		t.Fatalf("could not decode report: %v", err)
	}
	expected := report.WorkflowReport{
		WorkflowIDs: []string{"wf1"},
		Duration:    "10m0s",
		Tasks: []workflowsummary.TaskSummary{
			{Task: "align", Duration: 60, ShardCount: 5},
			{Task: "merge", Duration: 30, ShardCount: 1},
		},
	}
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("unexpected report: %s", diff)
	}
}

func TestShardSummaryRun(t *testing.T) {
	var testCases = []struct {
		name           string
		task           api.TaskName
		target         *api.ShardID
		expectedUpper  []api.ShardValue
		expectedReason results.Reason
	}{
		{
			name:          "outlier shard is the target",
			task:          "align",
			target:        ptr.To(api.ShardID(4)),
			expectedUpper: []api.ShardValue{{Shard: 4, Value: 99}},
		},
		{
			name:          "no target",
			task:          "align",
			expectedUpper: []api.ShardValue{{Shard: 4, Value: 99}},
		},
		{
			name:           "unknown shard",
			task:           "align",
			target:         ptr.To(api.ShardID(7)),
			expectedReason: results.ReasonInvalidParameter,
		},
		{
			name:           "unknown task",
			task:           "call",
			expectedReason: results.ReasonMissingTask,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			var out bytes.Buffer
			o := &ShardSummaryOptions{
				source:     cachedSource(t, workflowSnapshot()),
				output:     jsonOutput(),
				task:       testCase.task,
				target:     testCase.target,
				dimensions: []api.Dimension{api.DimensionCPUAverage},
				out:        &out,
			}
			err := o.Run(context.Background())
			if testCase.expectedReason != "" {
				if !results.HasReason(err, testCase.expectedReason) {
					t.Fatalf("expected a %s error, got %v", testCase.expectedReason, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var actual report.ShardReport
			if err := json.Unmarshal(out.Bytes(), &actual); err != nil {
				t.Fatalf("could not decode report: %v", err)
			}
			if len(actual.Dimensions) != 1 {
				t.Fatalf("expected one dimension, got %d", len(actual.Dimensions))
			}
			if diff := cmp.Diff(testCase.expectedUpper, actual.Dimensions[0].Upper); diff != "" {
				t.Errorf("unexpected upper outliers: %s", diff)
			}
			if diff := cmp.Diff(testCase.target, actual.Target); diff != "" {
				t.Errorf("unexpected target: %s", diff)
			}
			expectedRuntimes := 0
			if testCase.target != nil {
				expectedRuntimes = 1
			}
			if len(actual.Runtime) != expectedRuntimes {
				t.Errorf("expected %d runtimes, got %v", expectedRuntimes, actual.Runtime)
			}
		})
	}
}

type fakeCostClient struct {
	rows    []api.CostRow
	checked []monitoring.CostQuery
	listed  int
}

func (f *fakeCostClient) CheckQuery(_ context.Context, query monitoring.CostQuery) error {
	f.checked = append(f.checked, query)
	return nil
}

func (f *fakeCostClient) ListCosts(_ context.Context, _ monitoring.CostQuery) ([]api.CostRow, error) {
	f.listed++
	return f.rows, nil
}

func costRows() []api.CostRow {
	return []api.CostRow{
		{Task: "merge", CostDescription: "Storage PD Capacity", Cost: 1.5},
		{Task: "align", CostDescription: "N1 Predefined Instance Core", Cost: 6},
		{Task: "qc", CostDescription: "N1 Predefined Instance Core", Cost: 2},
		{Task: "merge", CostDescription: "N1 Predefined Instance Ram", Cost: 0.5},
	}
}

func TestCostRun(t *testing.T) {
	source := cachedSource(t, workflowSnapshot())
	client := &fakeCostClient{rows: costRows()}
	newOptions := func(out *bytes.Buffer, task *api.TaskName) *CostOptions {
		return &CostOptions{
			source:    source,
			output:    jsonOutput(),
			query:     monitoring.CostQuery{WorkflowID: "wf1", DatePadding: 1},
			groupBy:   api.CostFieldTaskName,
			threshold: ptr.To(70.0),
			task:      task,
			out:       out,
			newCostClient: func(context.Context) (monitoring.CostClient, error) {
				return client, nil
			},
		}
	}

	var out bytes.Buffer
	if err := newOptions(&out, nil).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var actual report.CostReport
	if err := json.Unmarshal(out.Bytes(), &actual); err != nil {
		t.Fatalf("could not decode report: %v", err)
	}
	if diff := cmp.Diff([]api.CostRow{{Task: "align", CostDescription: "N1 Predefined Instance Core", Cost: 6}}, actual.Rows); diff != "" {
		t.Errorf("unexpected rows: %s", diff)
	}
	if actual.Total != 6 || actual.WorkflowTotal != 10 {
		t.Errorf("expected 6 of 10 selected, got %v of %v", actual.Total, actual.WorkflowTotal)
	}
	if len(client.checked) != 1 {
		t.Fatalf("expected the query to be checked once, got %d", len(client.checked))
	}
	if query := client.checked[0]; !query.Start.Equal(t0) || !query.End.Equal(t0.Add(10*time.Minute)) {
		t.Errorf("expected the window of the samples, got %s to %s", query.Start, query.End)
	}

	stored, err := snapshot.Load(context.Background(), source.cache, source.name(), logrus.NewEntry(logrus.New()))
	if err != nil {
		t.Fatalf("could not load snapshot: %v", err)
	}
	if len(stored.Costs) != 4 {
		t.Errorf("expected the costs to be added to the snapshot, got %d rows", len(stored.Costs))
	}

	out.Reset()
	if err := newOptions(&out, ptr.To(api.TaskName("merge"))).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.listed != 1 {
		t.Errorf("expected costs to be read from the snapshot, but they were queried %d times", client.listed)
	}
	actual = report.CostReport{}
	if err := json.Unmarshal(out.Bytes(), &actual); err != nil {
		t.Fatalf("could not decode report: %v", err)
	}
	if diff := cmp.Diff([]api.CostRow{
		{Task: "merge", CostDescription: "Storage PD Capacity", Cost: 1.5},
		{Task: "merge", CostDescription: "N1 Predefined Instance Ram", Cost: 0.5},
	}, actual.Rows); diff != "" {
		t.Errorf("unexpected rows for the task: %s", diff)
	}

	err = newOptions(&out, ptr.To(api.TaskName("call"))).Run(context.Background())
	if !results.HasReason(err, results.ReasonMissingTask) {
		t.Errorf("expected a missing task error, got %v", err)
	}
}

type fakeMonitoringClient struct{}

func (fakeMonitoringClient) ListRuntime(context.Context, monitoring.WorkflowQuery) ([]monitoring.RuntimeRow, error) {
	return []monitoring.RuntimeRow{{
		WorkflowID:   bigquery.NullString{StringVal: "wf1", Valid: true},
		TaskCallName: bigquery.NullString{StringVal: "align", Valid: true},
		Shard:        bigquery.NullInt64{Int64: 0, Valid: true},
		InstanceID:   100,
		InstanceName: "vm-100",
	}}, nil
}

func (fakeMonitoringClient) ListMetadata(context.Context, monitoring.WorkflowQuery) ([]monitoring.MetadataRow, error) {
	return nil, nil
}

func (fakeMonitoringClient) ListMetrics(_ context.Context, _ monitoring.WorkflowQuery, instanceIDs []int64) ([]monitoring.MetricsRow, error) {
	var out []monitoring.MetricsRow
	for _, id := range instanceIDs {
		out = append(out, monitoring.MetricsRow{InstanceID: id, Timestamp: t0, CPUUsedPercent: []float64{10}})
	}
	return out, nil
}

func TestDatasetSourceLoad(t *testing.T) {
	queried := 0
	source := cachedSource(t, nil)
	source.query = monitoring.WorkflowQuery{WorkflowIDs: []string{"wf1"}, DaysBackUpper: 7}
	source.newClient = func(context.Context) (monitoring.MonitoringClient, error) {
		queried++
		return fakeMonitoringClient{}, nil
	}
	logger := logrus.NewEntry(logrus.New())

	snap, err := source.load(context.Background(), logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if queried != 1 || len(snap.Samples) != 1 {
		t.Fatalf("expected one query for one sample, got %d queries and %d samples", queried, len(snap.Samples))
	}

	if _, err := source.load(context.Background(), logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if queried != 1 {
		t.Errorf("expected the stored snapshot to be used, got %d queries", queried)
	}

	source.refresh = true
	if _, err := source.load(context.Background(), logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if queried != 2 {
		t.Errorf("expected a refresh to query again, got %d queries", queried)
	}
}
