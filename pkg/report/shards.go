package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/outliers"
	"github.com/openshift/cromwell-monitor/pkg/shardmetrics"
)

// DimensionReport is the shard values of one dimension and their outliers.
type DimensionReport struct {
	Dimension    api.Dimension         `json:"dimension"`
	Values       []api.ShardValue      `json:"values"`
	Fences       outliers.Fences       `json:"fences"`
	Upper        []api.ShardValue      `json:"upper_outliers"`
	Lower        []api.ShardValue      `json:"lower_outliers"`
	Distribution outliers.Distribution `json:"distribution"`
}

// ShardReport summarizes every shard of a task per dimension, and the
// runtime of one shard when a target shard was chosen.
type ShardReport struct {
	Task        api.TaskName          `json:"task"`
	Dimensions  []DimensionReport     `json:"dimensions"`
	Target      *api.ShardID          `json:"target_shard,omitempty"`
	Runtime     []api.InstanceRuntime `json:"runtime,omitempty"`
	Diagnostics []string              `json:"diagnostics,omitempty"`
}

// NewShardReport classifies the aggregated values of the dimensions, in
// the order given. Dimensions without values are skipped.
func NewShardReport(result *shardmetrics.Result, dimensions []api.Dimension, logger *logrus.Entry) *ShardReport {
	report := &ShardReport{Task: result.Task}
	for _, dimension := range dimensions {
		values := result.Values[dimension]
		if len(values) == 0 {
			continue
		}
		classification := outliers.Classify(values)
		distribution, err := outliers.Describe(values)
		if err != nil {
			logger.WithError(err).WithField("dimension", dimension).Warn("Could not describe the distribution.")
		}
		report.Dimensions = append(report.Dimensions, DimensionReport{
			Dimension:    dimension,
			Values:       values.Sorted(),
			Fences:       classification.Fences,
			Upper:        classification.Upper.Sorted(),
			Lower:        classification.Lower.Sorted(),
			Distribution: distribution,
		})
	}
	for _, diagnostic := range result.Diagnostics {
		report.Diagnostics = append(report.Diagnostics, diagnostic.Error())
	}
	return report
}

// WithTarget adds the runtime of the attempts of the shard.
func (r *ShardReport) WithTarget(shard api.ShardID, runtimes []api.InstanceRuntime) *ShardReport {
	r.Target = &shard
	for _, runtime := range runtimes {
		if runtime.Task == r.Task && runtime.Shard == shard {
			r.Runtime = append(r.Runtime, runtime)
		}
	}
	return r
}

func (r *ShardReport) Render(w io.Writer) error {
	for _, dimension := range r.Dimensions {
		if _, err := fmt.Fprintf(w, "%s / %s\n", r.Task, dimension.Dimension); err != nil {
			return err
		}
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"shard", "value", "outlier"})
		upper, lower := shardSet(dimension.Upper), shardSet(dimension.Lower)
		for _, value := range dimension.Values {
			label := ""
			if _, ok := upper[value.Shard]; ok {
				label = "upper"
			}
			if _, ok := lower[value.Shard]; ok {
				label = "lower"
			}
			if r.Target != nil && *r.Target == value.Shard {
				label += " (target)"
			}
			table.Append([]string{value.Shard.String(), formatValue(value.Value), label})
		}
		table.SetFooter([]string{"", fmt.Sprintf("Q1 %s Q3 %s", formatValue(dimension.Fences.Q1), formatValue(dimension.Fences.Q3)), fmt.Sprintf("fences %s..%s", formatValue(dimension.Fences.Lower), formatValue(dimension.Fences.Upper))})
		table.Render()

		if _, err := fmt.Fprintf(w, "upper outliers: %s\nlower outliers: %s\n", shardList(dimension.Upper), shardList(dimension.Lower)); err != nil {
			return err
		}
		d := dimension.Distribution
		if _, err := fmt.Fprintf(w, "n=%d mean=%s stddev=%s min=%s median=%s p95=%s max=%s\n", d.Count, formatValue(d.Mean), formatValue(d.StdDev), formatValue(d.Min), formatValue(d.Median), formatValue(d.P95), formatValue(d.Max)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "histogram: %s\n\n", strings.Join(d.Histogram, " ")); err != nil {
			return err
		}
	}

	if len(r.Runtime) > 0 {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"attempt", "instance", "cpu", "memory (GB)", "disk (GB)", "preemptible"})
		for _, runtime := range r.Runtime {
			table.Append([]string{
				strconv.Itoa(runtime.Attempt),
				strconv.FormatInt(runtime.InstanceID, 10),
				fmt.Sprintf("%d / %d", runtime.CPUCount, runtime.RequestedCPU),
				fmt.Sprintf("%s / %s", formatValue(runtime.MemTotalGB), formatValue(runtime.RequestedMemGB)),
				fmt.Sprintf("%s / %s", formatValue(runtime.DiskTotalGB), formatValue(runtime.RequestedDiskGB)),
				strconv.FormatBool(runtime.Preemptible),
			})
		}
		table.SetFooter([]string{"", "", "available / requested", "", "", ""})
		table.Render()
	}

	for _, diagnostic := range r.Diagnostics {
		if _, err := fmt.Fprintf(w, "warning: %s\n", diagnostic); err != nil {
			return err
		}
	}
	return nil
}

func shardSet(values []api.ShardValue) map[api.ShardID]struct{} {
	out := make(map[api.ShardID]struct{}, len(values))
	for _, value := range values {
		out[value.Shard] = struct{}{}
	}
	return out
}

// shardList prints the shards, or None when there are none.
func shardList(values []api.ShardValue) string {
	if len(values) == 0 {
		return "None"
	}
	out := ""
	for i, value := range values {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s (%s)", value.Shard, formatValue(value.Value))
	}
	return out
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
