package monitoring

import (
	"encoding/json"
	"math"
	"strconv"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"

	"k8s.io/utils/ptr"

	"github.com/openshift/cromwell-monitor/pkg/api"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func str(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: true}
}

func i64(i int64) bigquery.NullInt64 {
	return bigquery.NullInt64{Int64: i, Valid: true}
}

func runtimeRow(workflow, task string, shard, instance int64) RuntimeRow {
	return RuntimeRow{
		WorkflowID:   str(workflow),
		TaskCallName: str(task),
		Shard:        i64(shard),
		Attempt:      i64(1),
		InstanceID:   instance,
		InstanceName: "vm-" + strconv.FormatInt(instance, 10),
		CPUCount:     4,
		MemTotalGB:   16,
		DiskTotalGB:  []float64{10, 20},
	}
}

func metricsRow(instance int64, at time.Time, mem float64) MetricsRow {
	return MetricsRow{
		Timestamp:      at,
		InstanceID:     instance,
		CPUUsedPercent: []float64{10, 20},
		MemUsedGB:      mem,
		DiskUsedGB:     []float64{5},
	}
}

func TestJoin(t *testing.T) {
	unscattered := runtimeRow("wf1", "sort", 0, 101)
	unscattered.Shard = bigquery.NullInt64{}
	unscattered.Attempt = bigquery.NullInt64{}
	notATask := runtimeRow("", "", 0, 102)
	notATask.TaskCallName = bigquery.NullString{}

	runtimes := []RuntimeRow{
		runtimeRow("wf1", "align", 0, 100),
		unscattered,
		notATask,
		runtimeRow("wf1", "align", 3, 100),
	}
	metadata := []MetadataRow{{
		InstanceName: str(runtimes[0].InstanceName),
		CPUCount:     i64(2),
		MemTotalGB:   bigquery.NullFloat64{Float64: 8, Valid: true},
		DiskTotalGB:  bigquery.NullFloat64{Float64: 30, Valid: true},
		DurationSec:  i64(600),
	}}
	metrics := []MetricsRow{
		metricsRow(100, t0.Add(5*time.Minute), 2),
		metricsRow(999, t0, 1),
		metricsRow(100, t0, 1),
	}

	logger, hook := logrustest.NewNullLogger()
	dataset := Join(runtimes, metadata, metrics, logrus.NewEntry(logger))

	expected := &Dataset{
		Samples: []api.SampleRow{
			{WorkflowID: "wf1", Task: "align", Shard: 0, Attempt: 1, InstanceID: 100, Timestamp: t0, CPUUsedPercent: api.Reading{10, 20}, MemUsedGB: api.Reading{1}, DiskUsedGB: api.Reading{5}, MetricsDurationSec: ptr.To(300.0), MetaDurationSec: ptr.To(600.0)},
			{WorkflowID: "wf1", Task: "align", Shard: 0, Attempt: 1, InstanceID: 100, Timestamp: t0.Add(5 * time.Minute), CPUUsedPercent: api.Reading{10, 20}, MemUsedGB: api.Reading{2}, DiskUsedGB: api.Reading{5}, MetricsDurationSec: ptr.To(300.0), MetaDurationSec: ptr.To(600.0)},
		},
		Runtimes: []api.InstanceRuntime{
			{WorkflowID: "wf1", Task: "align", Shard: 0, Attempt: 1, InstanceID: 100, CPUCount: 4, MemTotalGB: 16, DiskTotalGB: 30, RequestedCPU: 2, RequestedMemGB: 8, RequestedDiskGB: 30},
			{WorkflowID: "wf1", Task: "sort", Shard: -1, Attempt: 1, InstanceID: 101, CPUCount: 4, MemTotalGB: 16, DiskTotalGB: 30},
		},
		MissingInstances: []int64{101},
	}
	if diff := cmp.Diff(expected, dataset); diff != "" {
		t.Errorf("unexpected dataset: %s", diff)
	}

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
		}
	}
	if !warned {
		t.Error("expected a warning about metrics without a runtime record")
	}
}

func TestMissingInstances(t *testing.T) {
	runtimes := []api.InstanceRuntime{{InstanceID: 3}, {InstanceID: 1}, {InstanceID: 2}}
	metrics := []MetricsRow{{InstanceID: 2}, {InstanceID: 4}}
	if diff := cmp.Diff([]int64{1, 3}, MissingInstances(runtimes, metrics)); diff != "" {
		t.Errorf("unexpected missing instances: %s", diff)
	}
}

func TestJoinVMWithoutDisks(t *testing.T) {
	diskless := runtimeRow("wf1", "align", 0, 100)
	diskless.DiskTotalGB = nil
	metrics := []MetricsRow{metricsRow(100, t0, 2)}

	dataset := Join([]RuntimeRow{diskless}, nil, metrics, logrus.NewEntry(logrus.New()))
	if len(dataset.Runtimes) != 1 {
		t.Fatalf("expected one runtime, got %d", len(dataset.Runtimes))
	}
	if actual := dataset.Runtimes[0].DiskTotalGB; actual != 0 {
		t.Errorf("expected no disk space for a VM without disks, got %v", actual)
	}
	if _, err := json.Marshal(dataset); err != nil {
		t.Errorf("could not marshal dataset: %v", err)
	}
}

func TestTotalOf(t *testing.T) {
	var testCases = []struct {
		name     string
		sizes    []float64
		expected float64
	}{
		{name: "no disks"},
		{name: "boot and data disk", sizes: []float64{10, 20}, expected: 30},
		{name: "unknown size", sizes: []float64{10, math.NaN()}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if actual := totalOf(testCase.sizes); actual != testCase.expected {
				t.Errorf("expected %v, got %v", testCase.expected, actual)
			}
		})
	}
}
