package shardmetrics

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/openshift/cromwell-monitor/pkg/api"
)

// ReduceFunc collapses one sample's reading into a scalar. NaN elements
// are never part of the result; ok is false when nothing numeric remains.
type ReduceFunc func(api.Reading) (value float64, ok bool)

// AggregateFunc collapses the reduced values of one shard, ordered by
// sample time, into the shard's summary. It is never called with NaN or
// with an empty slice.
type AggregateFunc func([]float64) float64

// Reducer defines how one dimension is computed from a sample field.
type Reducer struct {
	Field     api.Field
	Reduce    ReduceFunc
	Aggregate AggregateFunc
	// ZeroWhenMissing records zero for a shard with no numeric values
	// instead of dropping the shard from the dimension.
	ZeroWhenMissing bool
}

// Reducers maps each dimension to the reducer that computes it.
type Reducers map[api.Dimension]Reducer

// DefaultReducers are the dimensions reported for a task's shards:
// CPU is averaged across cores per sample, memory and IOPS take the
// largest value, and disk usage is read from the first (boot) disk.
func DefaultReducers() Reducers {
	return Reducers{
		api.DimensionCPUAverage: {
			Field:     api.FieldCPUUsedPercent,
			Reduce:    Mean,
			Aggregate: MeanOf,
		},
		api.DimensionCPUMax: {
			Field:     api.FieldCPUUsedPercent,
			Reduce:    Mean,
			Aggregate: MaxOf,
		},
		api.DimensionMemoryMax: {
			Field:     api.FieldMemUsedGB,
			Reduce:    Max,
			Aggregate: MaxOf,
		},
		api.DimensionDiskMax: {
			Field:     api.FieldDiskUsedGB,
			Reduce:    First,
			Aggregate: MaxOf,
		},
		api.DimensionDiskReadIOPSMax: {
			Field:     api.FieldDiskReadIOPS,
			Reduce:    Max,
			Aggregate: MaxOf,
		},
		api.DimensionDiskWriteIOPSMax: {
			Field:     api.FieldDiskWriteIOPS,
			Reduce:    Max,
			Aggregate: MaxOf,
		},
		api.DimensionDuration: {
			Field:           api.FieldMetaDuration,
			Reduce:          First,
			Aggregate:       FirstOf,
			ZeroWhenMissing: true,
		},
	}
}

func numeric(reading api.Reading) stats.Float64Data {
	out := make(stats.Float64Data, 0, len(reading))
	for _, value := range reading {
		if math.IsNaN(value) {
			continue
		}
		out = append(out, value)
	}
	return out
}

// Mean averages the numeric elements of the reading.
func Mean(reading api.Reading) (float64, bool) {
	mean, err := stats.Mean(numeric(reading))
	return mean, err == nil
}

// Max is the largest numeric element of the reading.
func Max(reading api.Reading) (float64, bool) {
	max, err := stats.Max(numeric(reading))
	return max, err == nil
}

// First is the first element of the reading, when it is numeric.
func First(reading api.Reading) (float64, bool) {
	if len(reading) == 0 || math.IsNaN(reading[0]) {
		return 0, false
	}
	return reading[0], true
}

func MeanOf(values []float64) float64 {
	mean, _ := stats.Mean(values)
	return mean
}

func MaxOf(values []float64) float64 {
	max, _ := stats.Max(values)
	return max
}

func FirstOf(values []float64) float64 {
	return values[0]
}
