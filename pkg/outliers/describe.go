package outliers

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/openhistogram/circonusllhist"
	"gonum.org/v1/gonum/stat"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/openshift/cromwell-monitor/pkg/api"
)

// Distribution summarizes the shard values of one dimension.
type Distribution struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
	// Histogram lists the log-linear bins holding the values, as H[<bin>]=<count>.
	Histogram []string `json:"histogram,omitempty"`
}

// Describe summarizes the values. No values yield the zero Distribution.
func Describe(values api.ShardValues) (Distribution, error) {
	data := values.Values()
	if len(data) == 0 {
		return Distribution{}, nil
	}
	distribution := Distribution{
		Count: len(data),
		Mean:  stat.Mean(data, nil),
	}
	if len(data) > 1 {
		distribution.StdDev = stat.StdDev(data, nil)
	}

	var errs []error
	smallest, err := stats.Min(stats.Float64Data(data))
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to calculate min: %w", err))
	}
	distribution.Min = smallest
	largest, err := stats.Max(stats.Float64Data(data))
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to calculate max: %w", err))
	}
	distribution.Max = largest

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	distribution.Median = quantileSorted(sorted, 0.5)
	distribution.P95 = quantileSorted(sorted, 0.95)

	hist := circonusllhist.New()
	for _, value := range sorted {
		if err := hist.RecordValue(value); err != nil {
			errs = append(errs, fmt.Errorf("failed to record %v: %w", value, err))
		}
	}
	distribution.Histogram = hist.DecStrings()
	return distribution, utilerrors.NewAggregate(errs)
}
