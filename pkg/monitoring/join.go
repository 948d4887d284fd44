package monitoring

import (
	"math"
	"sort"

	"cloud.google.com/go/bigquery"
	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/openshift/cromwell-monitor/pkg/api"
)

// Dataset is the monitoring data of a set of workflows, joined per sample.
type Dataset struct {
	Samples  []api.SampleRow       `json:"samples"`
	Runtimes []api.InstanceRuntime `json:"runtimes"`
	// MissingInstances are VMs that were provisioned but never sent metrics.
	MissingInstances []int64 `json:"missing_instances,omitempty"`
}

// Join attaches each metrics sample to the call attempt that produced it:
// metrics match runtime records on instance ID, and runtime records match
// workflow engine metadata on instance name.
func Join(runtimes []RuntimeRow, metadata []MetadataRow, metrics []MetricsRow, logger *logrus.Entry) *Dataset {
	metadataByName := map[string]MetadataRow{}
	for _, row := range metadata {
		if !row.InstanceName.Valid {
			continue
		}
		if _, seen := metadataByName[row.InstanceName.StringVal]; !seen {
			metadataByName[row.InstanceName.StringVal] = row
		}
	}

	dataset := &Dataset{}
	runtimeByID := map[int64]api.InstanceRuntime{}
	durationByID := map[int64]*float64{}
	for _, row := range runtimes {
		if !row.TaskCallName.Valid {
			logger.WithField("instance", row.InstanceName).Debug("Ignoring VM that does not belong to a workflow task.")
			continue
		}
		if _, seen := runtimeByID[row.InstanceID]; seen {
			continue
		}
		runtime := api.InstanceRuntime{
			WorkflowID:  row.WorkflowID.StringVal,
			Task:        api.TaskName(row.TaskCallName.StringVal),
			Shard:       shardOf(row.Shard),
			Attempt:     attemptOf(row.Attempt),
			InstanceID:  row.InstanceID,
			Zone:        row.Zone,
			Preemptible: row.Preemptible,
			CPUCount:    row.CPUCount,
			MemTotalGB:  row.MemTotalGB,
			DiskTotalGB: totalOf(row.DiskTotalGB),
		}
		if meta, ok := metadataByName[row.InstanceName]; ok {
			runtime.RequestedCPU = meta.CPUCount.Int64
			runtime.RequestedMemGB = meta.MemTotalGB.Float64
			runtime.RequestedDiskGB = meta.DiskTotalGB.Float64
			if meta.DurationSec.Valid {
				duration := float64(meta.DurationSec.Int64)
				durationByID[row.InstanceID] = &duration
			}
		}
		runtimeByID[row.InstanceID] = runtime
		dataset.Runtimes = append(dataset.Runtimes, runtime)
	}

	spans := metricsDurations(metrics)
	orphaned := sets.New[int64]()
	for _, row := range metrics {
		runtime, ok := runtimeByID[row.InstanceID]
		if !ok {
			orphaned.Insert(row.InstanceID)
			continue
		}
		span := spans[row.InstanceID]
		dataset.Samples = append(dataset.Samples, api.SampleRow{
			WorkflowID:         runtime.WorkflowID,
			Task:               runtime.Task,
			Shard:              runtime.Shard,
			Attempt:            runtime.Attempt,
			InstanceID:         row.InstanceID,
			Timestamp:          row.Timestamp,
			CPUUsedPercent:     row.CPUUsedPercent,
			MemUsedGB:          api.Reading{row.MemUsedGB},
			DiskUsedGB:         row.DiskUsedGB,
			DiskReadIOPS:       row.DiskReadIOPS,
			DiskWriteIOPS:      row.DiskWriteIOPS,
			MetricsDurationSec: &span,
			MetaDurationSec:    durationByID[row.InstanceID],
		})
	}
	if orphaned.Len() > 0 {
		logger.WithField("instances", sets.List(orphaned)).Warn("Dropped metrics from VMs without a runtime record.")
	}

	dataset.MissingInstances = MissingInstances(dataset.Runtimes, metrics)
	sort.SliceStable(dataset.Samples, func(i, j int) bool {
		a, b := dataset.Samples[i], dataset.Samples[j]
		if a.WorkflowID != b.WorkflowID {
			return a.WorkflowID < b.WorkflowID
		}
		if a.Task != b.Task {
			return a.Task < b.Task
		}
		if a.Shard != b.Shard {
			return a.Shard < b.Shard
		}
		if a.Attempt != b.Attempt {
			return a.Attempt < b.Attempt
		}
		return a.Timestamp.Before(b.Timestamp)
	})
	return dataset
}

// MissingInstances lists the VMs that have no metrics, ascending.
func MissingInstances(runtimes []api.InstanceRuntime, metrics []MetricsRow) []int64 {
	reported := sets.New[int64]()
	for _, row := range metrics {
		reported.Insert(row.InstanceID)
	}
	missing := sets.New[int64]()
	for _, runtime := range runtimes {
		if !reported.Has(runtime.InstanceID) {
			missing.Insert(runtime.InstanceID)
		}
	}
	if missing.Len() == 0 {
		return nil
	}
	return sets.List(missing)
}

// metricsDurations is the span in seconds between the first and last
// sample of each instance.
func metricsDurations(metrics []MetricsRow) map[int64]float64 {
	type span struct{ first, last int64 }
	spans := map[int64]*span{}
	for _, row := range metrics {
		ts := row.Timestamp.Unix()
		s, ok := spans[row.InstanceID]
		if !ok {
			spans[row.InstanceID] = &span{first: ts, last: ts}
			continue
		}
		s.first = min(s.first, ts)
		s.last = max(s.last, ts)
	}
	out := make(map[int64]float64, len(spans))
	for id, s := range spans {
		out[id] = float64(s.last - s.first)
	}
	return out
}

// totalOf sums the sizes of all disks attached to a VM; a VM without
// disks has none.
func totalOf(sizes []float64) float64 {
	total, err := stats.Sum(stats.Float64Data(sizes))
	if err != nil || math.IsNaN(total) {
		return 0
	}
	return total
}

func shardOf(shard bigquery.NullInt64) api.ShardID {
	if !shard.Valid {
		return -1
	}
	return api.ShardID(shard.Int64)
}

func attemptOf(attempt bigquery.NullInt64) int {
	if !attempt.Valid {
		return 1
	}
	return int(attempt.Int64)
}
