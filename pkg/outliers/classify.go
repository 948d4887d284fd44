package outliers

import (
	"sort"

	"github.com/openshift/cromwell-monitor/pkg/api"
)

// FenceFactor scales the interquartile range to place the outlier fences.
const FenceFactor = 1.5

// Fences are the quartile bounds of a set of shard values.
type Fences struct {
	Q1    float64 `json:"q1"`
	Q3    float64 `json:"q3"`
	IQR   float64 `json:"iqr"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Classification partitions shards into those strictly above the upper
// fence, strictly below the lower fence, and the rest. Every input shard
// is in exactly one bucket; buckets with no shards are empty, not nil.
type Classification struct {
	Fences Fences          `json:"fences"`
	Upper  api.ShardValues `json:"upper"`
	Lower  api.ShardValues `json:"lower"`
	Normal api.ShardValues `json:"normal"`
}

// ComputeFences computes Tukey's fences for the values. The zero Fences
// are returned for no values.
func ComputeFences(values []float64) Fences {
	if len(values) == 0 {
		return Fences{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	q1, q3 := quantileSorted(sorted, 0.25), quantileSorted(sorted, 0.75)
	iqr := q3 - q1
	return Fences{
		Q1:    q1,
		Q3:    q3,
		IQR:   iqr,
		Lower: q1 - FenceFactor*iqr,
		Upper: q3 + FenceFactor*iqr,
	}
}

// Classify buckets the shards of one dimension by Tukey's fences. The
// input is not modified.
func Classify(values api.ShardValues) Classification {
	fences := ComputeFences(values.Values())
	classification := Classification{
		Fences: fences,
		Upper:  api.ShardValues{},
		Lower:  api.ShardValues{},
		Normal: api.ShardValues{},
	}
	for shard, value := range values {
		switch {
		case value > fences.Upper:
			classification.Upper[shard] = value
		case value < fences.Lower:
			classification.Lower[shard] = value
		default:
			classification.Normal[shard] = value
		}
	}
	return classification
}

// ClassifyAll classifies every dimension independently.
func ClassifyAll(values map[api.Dimension]api.ShardValues) map[api.Dimension]Classification {
	out := make(map[api.Dimension]Classification, len(values))
	for dimension, shardValues := range values {
		out[dimension] = Classify(shardValues)
	}
	return out
}
