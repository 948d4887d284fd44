package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/cost"
	"github.com/openshift/cromwell-monitor/pkg/shardmetrics"
	"github.com/openshift/cromwell-monitor/pkg/testhelper"
	"github.com/openshift/cromwell-monitor/pkg/workflowsummary"
)

func workflowReport() *WorkflowReport {
	return NewWorkflowReport([]string{"wf-1"}, 3*time.Minute, &workflowsummary.Summary{
		Tasks: map[api.TaskName]workflowsummary.TaskSummary{
			"task2": {Task: "task2", Duration: 20, ShardCount: 1},
			"task1": {Task: "task1", Duration: 70, ShardCount: 3},
		},
	})
}

func TestWriteYAML(t *testing.T) {
	var out bytes.Buffer
	if err := Write(&out, FormatYAML, workflowReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testhelper.CompareWithFixture(t, out.Bytes())
}

func TestWriteJSON(t *testing.T) {
	var out bytes.Buffer
	if err := Write(&out, FormatJSON, workflowReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded WorkflowReport
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	if diff := cmp.Diff(*workflowReport(), decoded); diff != "" {
		t.Errorf("decoded report differs from input: %s", diff)
	}
}

func TestWorkflowReportTable(t *testing.T) {
	var out bytes.Buffer
	if err := Write(&out, FormatTable, workflowReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	table := out.String()
	for _, expected := range []string{"Workflow duration: 3m0s", "task1", "1m10s", "task2", "20s"} {
		if !strings.Contains(table, expected) {
			t.Errorf("table is missing %q:\n%s", expected, table)
		}
	}
	if !strings.Contains(strings.ToLower(table), "2 tasks") {
		t.Errorf("table is missing the task count:\n%s", table)
	}
	if strings.Index(table, "task1") > strings.Index(table, "task2") {
		t.Errorf("longest task should come first:\n%s", table)
	}
}

func TestFormatValidate(t *testing.T) {
	for _, format := range Formats {
		if err := format.Validate(); err != nil {
			t.Errorf("%s: unexpected error: %v", format, err)
		}
	}
	if err := Format("csv").Validate(); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func shardResult() *shardmetrics.Result {
	values := api.ShardValues{}
	for shard := 0; shard < 9; shard++ {
		values[api.ShardID(shard)] = float64(10 + shard%4)
	}
	values[9] = 102
	return &shardmetrics.Result{
		Task: "task1",
		Values: map[api.Dimension]api.ShardValues{
			api.DimensionCPUAverage: values,
			api.DimensionMemoryMax:  {},
		},
		Diagnostics: []error{errors.New("shard 3 has NaN readings")},
	}
}

func TestNewShardReport(t *testing.T) {
	logger := logrus.NewEntry(logrus.New())
	report := NewShardReport(shardResult(), []api.Dimension{api.DimensionMemoryMax, api.DimensionCPUAverage, api.DimensionDuration}, logger)
	if len(report.Dimensions) != 1 {
		t.Fatalf("expected only the dimension with values, got %d", len(report.Dimensions))
	}
	dimension := report.Dimensions[0]
	if dimension.Dimension != api.DimensionCPUAverage {
		t.Errorf("expected %s, got %s", api.DimensionCPUAverage, dimension.Dimension)
	}
	if diff := cmp.Diff([]api.ShardValue{{Shard: 9, Value: 102}}, dimension.Upper); diff != "" {
		t.Errorf("upper outliers differ: %s", diff)
	}
	if len(dimension.Lower) != 0 {
		t.Errorf("expected no lower outliers, got %v", dimension.Lower)
	}
	if dimension.Distribution.Count != 10 {
		t.Errorf("expected 10 values described, got %d", dimension.Distribution.Count)
	}
	if diff := cmp.Diff([]string{"shard 3 has NaN readings"}, report.Diagnostics); diff != "" {
		t.Errorf("diagnostics differ: %s", diff)
	}

	report = report.WithTarget(9, []api.InstanceRuntime{
		{Task: "task1", Shard: 9, Attempt: 1, InstanceID: 42, CPUCount: 4, RequestedCPU: 2, MemTotalGB: 7.5, RequestedMemGB: 4},
		{Task: "task1", Shard: 1, Attempt: 1, InstanceID: 43},
		{Task: "task2", Shard: 9, Attempt: 1, InstanceID: 44},
	})
	if len(report.Runtime) != 1 || report.Runtime[0].InstanceID != 42 {
		t.Errorf("expected only the runtime of the target shard, got %v", report.Runtime)
	}

	var out bytes.Buffer
	if err := Write(&out, FormatTable, report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	table := out.String()
	for _, expected := range []string{"task1 / cpu_average", "upper outliers: 9 (102)", "lower outliers: None", "(target)", "4 / 2", "7.5 / 4", "median=11.5", "histogram: H[1.0e+01]=3", "warning: shard 3 has NaN readings"} {
		if !strings.Contains(table, expected) {
			t.Errorf("table is missing %q:\n%s", expected, table)
		}
	}
}

func TestCostReport(t *testing.T) {
	threshold := 70.0
	report := &CostReport{
		WorkflowID:       "wf-1",
		GroupBy:          api.CostFieldTaskName,
		ThresholdPercent: &threshold,
		Groups:           []cost.Group{{Key: "task4", Total: 6, Rows: 1}, {Key: "task1", Total: 2, Rows: 2}},
		Rows: []api.CostRow{
			{Task: "task4", CostDescription: "N1 Predefined Instance Core", Cost: 6},
			{Task: "task1", CostDescription: "Storage PD Capacity", Cost: 1.5},
			{Task: "task1", CostDescription: "N1 Predefined Instance Ram", Cost: 0.5},
		},
		Total:         8,
		WorkflowTotal: 10,
	}
	var out bytes.Buffer
	if err := Write(&out, FormatTable, report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	table := out.String()
	for _, expected := range []string{"Cost of workflow wf-1 by task_name", "6.0000", "60.0%", "8.0000", "80.0%", "Storage PD Capacity"} {
		if !strings.Contains(table, expected) {
			t.Errorf("table is missing %q:\n%s", expected, table)
		}
	}
}

func TestFormatShare(t *testing.T) {
	if share := formatShare(1, 0); share != "-" {
		t.Errorf("expected - for a zero total, got %s", share)
	}
	if share := formatShare(1, 4); share != "25.0%" {
		t.Errorf("expected 25.0%%, got %s", share)
	}
}
