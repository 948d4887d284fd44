package api

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// TaskName identifies a call in a workflow, e.g. "HaplotypeCaller".
type TaskName string

// ShardID identifies one scatter shard of a task. Unscattered tasks
// report a single shard, -1.
type ShardID int

// Dimension names one per-shard summary computed from monitoring samples.
type Dimension string

const (
	DimensionCPUAverage       Dimension = "cpu_average"
	DimensionCPUMax           Dimension = "cpu_max"
	DimensionMemoryMax        Dimension = "memory_max"
	DimensionDiskMax          Dimension = "disk_max"
	DimensionDiskReadIOPSMax  Dimension = "disk_read_iops_max"
	DimensionDiskWriteIOPSMax Dimension = "disk_write_iops_max"
	DimensionDuration         Dimension = "duration"
)

// Dimensions lists every dimension in reporting order.
var Dimensions = []Dimension{
	DimensionCPUAverage,
	DimensionCPUMax,
	DimensionMemoryMax,
	DimensionDiskMax,
	DimensionDiskReadIOPSMax,
	DimensionDiskWriteIOPSMax,
	DimensionDuration,
}

// Field names a column of a SampleRow.
type Field string

const (
	FieldCPUUsedPercent  Field = "cpu_used_percent"
	FieldMemUsedGB       Field = "mem_used_gb"
	FieldDiskUsedGB      Field = "disk_used_gb"
	FieldDiskReadIOPS    Field = "disk_read_iops"
	FieldDiskWriteIOPS   Field = "disk_write_iops"
	FieldMetricsDuration Field = "metrics_duration_sec"
	FieldMetaDuration    Field = "meta_duration_sec"
)

// Reading is one observation of a possibly multi-valued counter: one value
// per CPU core, one value per mounted disk, and so on. Missing values are
// carried as NaN and serialized as null.
type Reading []float64

func (r Reading) MarshalJSON() ([]byte, error) {
	raw := make([]*float64, len(r))
	for i := range r {
		if math.IsNaN(r[i]) || math.IsInf(r[i], 0) {
			continue
		}
		raw[i] = &r[i]
	}
	return json.Marshal(raw)
}

func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*r = nil
		return nil
	}
	out := make(Reading, len(raw))
	for i, v := range raw {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	*r = out
	return nil
}

// SampleRow is one monitoring observation of a task shard attempt, joined
// with the runtime and metadata records of the VM that produced it.
type SampleRow struct {
	WorkflowID string    `json:"workflow_id"`
	Task       TaskName  `json:"task_call_name"`
	Shard      ShardID   `json:"shard"`
	Attempt    int       `json:"attempt"`
	InstanceID int64     `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`

	CPUUsedPercent Reading `json:"cpu_used_percent,omitempty"`
	MemUsedGB      Reading `json:"mem_used_gb,omitempty"`
	DiskUsedGB     Reading `json:"disk_used_gb,omitempty"`
	DiskReadIOPS   Reading `json:"disk_read_iops,omitempty"`
	DiskWriteIOPS  Reading `json:"disk_write_iops,omitempty"`

	// MetricsDurationSec is the span covered by the instance's monitoring
	// samples, MetaDurationSec the span recorded by the workflow engine.
	MetricsDurationSec *float64 `json:"metrics_duration_sec,omitempty"`
	MetaDurationSec    *float64 `json:"meta_duration_sec,omitempty"`
}

// Reading returns the values recorded for the field. Scalar fields are
// returned as single-element readings; ok is false when the row carries
// nothing for the field.
func (r SampleRow) Reading(field Field) (Reading, bool) {
	var reading Reading
	switch field {
	case FieldCPUUsedPercent:
		reading = r.CPUUsedPercent
	case FieldMemUsedGB:
		reading = r.MemUsedGB
	case FieldDiskUsedGB:
		reading = r.DiskUsedGB
	case FieldDiskReadIOPS:
		reading = r.DiskReadIOPS
	case FieldDiskWriteIOPS:
		reading = r.DiskWriteIOPS
	case FieldMetricsDuration:
		if r.MetricsDurationSec != nil {
			reading = Reading{*r.MetricsDurationSec}
		}
	case FieldMetaDuration:
		if r.MetaDurationSec != nil {
			reading = Reading{*r.MetaDurationSec}
		}
	}
	return reading, len(reading) > 0
}

// InstanceRuntime describes the VM a shard attempt ran on, as provisioned
// and as requested by the task's runtime attributes.
type InstanceRuntime struct {
	WorkflowID  string   `json:"workflow_id"`
	Task        TaskName `json:"task_call_name"`
	Shard       ShardID  `json:"shard"`
	Attempt     int      `json:"attempt"`
	InstanceID  int64    `json:"instance_id"`
	Zone        string   `json:"zone,omitempty"`
	Preemptible bool     `json:"preemptible"`

	CPUCount    int64   `json:"cpu_count"`
	MemTotalGB  float64 `json:"mem_total_gb"`
	DiskTotalGB float64 `json:"disk_total_gb"`

	RequestedCPU    int64   `json:"requested_cpu"`
	RequestedMemGB  float64 `json:"requested_mem_gb"`
	RequestedDiskGB float64 `json:"requested_disk_gb"`
}

// ShardValues holds one scalar per shard for a single dimension.
type ShardValues map[ShardID]float64

type ShardValue struct {
	Shard ShardID `json:"shard"`
	Value float64 `json:"value"`
}

// Sorted returns the values from largest to smallest, breaking ties by
// ascending shard.
func (v ShardValues) Sorted() []ShardValue {
	out := make([]ShardValue, 0, len(v))
	for shard, value := range v {
		out = append(out, ShardValue{Shard: shard, Value: value})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Shard < out[j].Shard
	})
	return out
}

// Values returns the values in ascending shard order.
func (v ShardValues) Values() []float64 {
	shards := v.Shards()
	out := make([]float64, 0, len(shards))
	for _, shard := range shards {
		out = append(out, v[shard])
	}
	return out
}

func (v ShardValues) Shards() []ShardID {
	out := make([]ShardID, 0, len(v))
	for shard := range v {
		out = append(out, shard)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ShardsForTask lists the distinct shards observed for the task, ascending.
func ShardsForTask(task TaskName, samples []SampleRow) []ShardID {
	seen := map[ShardID]struct{}{}
	var out []ShardID
	for _, sample := range samples {
		if sample.Task != task {
			continue
		}
		if _, ok := seen[sample.Shard]; ok {
			continue
		}
		seen[sample.Shard] = struct{}{}
		out = append(out, sample.Shard)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
