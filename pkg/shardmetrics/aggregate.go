package shardmetrics

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/results"
)

// Result holds one mapping of shard to value per dimension, along with
// the diagnostics produced while computing them. Every dimension of the
// reducers used is present, even when its mapping is empty.
type Result struct {
	Task        api.TaskName                      `json:"task"`
	Values      map[api.Dimension]api.ShardValues `json:"values"`
	Diagnostics []error                           `json:"-"`
}

type observation struct {
	timestamp time.Time
	attempt   int
	value     float64
}

// Aggregate summarizes the samples of one task per shard and dimension.
// When shards is empty, every shard observed for the task is summarized.
// Input order does not matter: observations of a shard are ordered by
// timestamp and attempt before they are aggregated. Only malformed
// reducers are an error; missing or unusable data is reported through
// the result's diagnostics.
func Aggregate(task api.TaskName, shards sets.Set[api.ShardID], samples []api.SampleRow, reducers Reducers, logger *logrus.Entry) (*Result, error) {
	if reducers == nil {
		reducers = DefaultReducers()
	}
	if err := reducers.Validate(); err != nil {
		return nil, err
	}
	logger = logger.WithFields(api.LogFieldsForTask(task))

	result := &Result{Task: task, Values: map[api.Dimension]api.ShardValues{}}
	for dimension := range reducers {
		result.Values[dimension] = api.ShardValues{}
	}

	byShard := map[api.ShardID][]api.SampleRow{}
	for _, sample := range samples {
		if sample.Task != task {
			continue
		}
		if shards.Len() > 0 && !shards.Has(sample.Shard) {
			continue
		}
		byShard[sample.Shard] = append(byShard[sample.Shard], sample)
	}
	if len(byShard) == 0 {
		result.record(logger, results.ForReason(results.ReasonEmptyInput).Errorf("no samples recorded for task %s", task))
		return result, nil
	}
	for _, shard := range sets.List(shards) {
		if _, ok := byShard[shard]; !ok {
			result.record(logger, results.ForReason(results.ReasonEmptyInput).Errorf("no samples recorded for shard %s of task %s", shard, task))
		}
	}

	shardIDs := make([]api.ShardID, 0, len(byShard))
	for shard := range byShard {
		shardIDs = append(shardIDs, shard)
	}
	sort.Slice(shardIDs, func(i, j int) bool { return shardIDs[i] < shardIDs[j] })

	for _, shard := range shardIDs {
		for _, dimension := range reducers.Dimensions() {
			reducer := reducers[dimension]
			var observations []observation
			var withNaN int
			for _, sample := range byShard[shard] {
				reading, ok := sample.Reading(reducer.Field)
				if !ok {
					continue
				}
				if hasNaN(reading) {
					withNaN++
				}
				value, ok := reducer.Reduce(reading)
				if !ok {
					continue
				}
				observations = append(observations, observation{timestamp: sample.Timestamp, attempt: sample.Attempt, value: value})
			}
			if withNaN > 0 {
				result.record(logger, results.ForReason(results.ReasonDataQuality).Errorf("excluded NaN %s values from %d of %d samples of shard %s", reducer.Field, withNaN, len(byShard[shard]), shard))
			}
			if len(observations) == 0 {
				if reducer.ZeroWhenMissing {
					result.Values[dimension][shard] = 0
					result.record(logger, results.ForReason(results.ReasonDataQuality).Errorf("no %s recorded for shard %s, using 0", reducer.Field, shard))
				}
				continue
			}
			sort.Slice(observations, func(i, j int) bool {
				if !observations[i].timestamp.Equal(observations[j].timestamp) {
					return observations[i].timestamp.Before(observations[j].timestamp)
				}
				if observations[i].attempt != observations[j].attempt {
					return observations[i].attempt < observations[j].attempt
				}
				return observations[i].value < observations[j].value
			})
			values := make([]float64, len(observations))
			for i := range observations {
				values[i] = observations[i].value
			}
			result.Values[dimension][shard] = reducer.Aggregate(values)
		}
	}
	logger.Debugf("Aggregated %d samples over %d shards.", countSamples(byShard), len(byShard))
	return result, nil
}

func (r *Result) record(logger *logrus.Entry, err error) {
	r.Diagnostics = append(r.Diagnostics, err)
	if results.HasReason(err, results.ReasonEmptyInput) {
		logger.WithError(err).Info("Nothing to aggregate.")
		return
	}
	logger.WithError(err).Warn("Excluded unusable monitoring data.")
}

// Validate ensures every reducer can be applied.
func (r Reducers) Validate() error {
	for _, dimension := range r.Dimensions() {
		reducer := r[dimension]
		if reducer.Field == "" {
			return results.ForReason(results.ReasonInvalidParameter).Errorf("reducer for %s has no field", dimension)
		}
		if reducer.Reduce == nil || reducer.Aggregate == nil {
			return results.ForReason(results.ReasonInvalidParameter).Errorf("reducer for %s must reduce and aggregate", dimension)
		}
	}
	return nil
}

// Dimensions lists the dimensions of the reducers, ordered by name.
func (r Reducers) Dimensions() []api.Dimension {
	out := make([]api.Dimension, 0, len(r))
	for dimension := range r {
		out = append(out, dimension)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidateShard ensures the task has samples and the shard is one of them.
func ValidateShard(task api.TaskName, shard api.ShardID, samples []api.SampleRow) error {
	shards := api.ShardsForTask(task, samples)
	if len(shards) == 0 {
		return results.ForReason(results.ReasonMissingTask).Errorf("task %s has no samples", task)
	}
	if !sets.New(shards...).Has(shard) {
		return results.ForReason(results.ReasonInvalidParameter).Errorf("shard %s does not exist for task %s, available shards: %v", shard, task, shards)
	}
	return nil
}

func hasNaN(reading api.Reading) bool {
	for _, value := range reading {
		if math.IsNaN(value) {
			return true
		}
	}
	return false
}

func countSamples(byShard map[api.ShardID][]api.SampleRow) int {
	var count int
	for _, samples := range byShard {
		count += len(samples)
	}
	return count
}
