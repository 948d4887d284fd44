package cost

import (
	"math"
	"sort"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/results"
)

// tolerance absorbs floating point error when comparing a cumulative cost
// to the target, relative to the total cost.
const tolerance = 1e-9

// Group is the summed cost of the rows sharing a grouping key.
type Group struct {
	Key   string  `json:"key"`
	Total float64 `json:"total"`
	Rows  int     `json:"rows"`
}

// Rank groups the rows and orders the groups by total cost, largest
// first. Groups with equal totals keep the order in which their keys
// first appear in rows.
func Rank(rows []api.CostRow, groupBy api.CostField) ([]Group, error) {
	if err := validateRows(rows, groupBy); err != nil {
		return nil, err
	}
	index := map[string]int{}
	var groups []Group
	for _, row := range rows {
		key, _ := row.Key(groupBy)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Total += row.Cost
		groups[i].Rows++
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Total > groups[j].Total
	})
	return groups, nil
}

// GroupOrder lists the grouping keys from most to least expensive.
func GroupOrder(rows []api.CostRow, groupBy api.CostField) ([]string, error) {
	groups, err := Rank(rows, groupBy)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(groups))
	for _, group := range groups {
		keys = append(keys, group.Key)
	}
	return keys, nil
}

// Select picks the most expensive groups whose cumulative cost stays
// within thresholdPercent of the total. The most expensive group is
// always selected; selection stops at the first group that would exceed
// the target. A nil threshold selects every group.
func Select(groups []Group, thresholdPercent *float64) ([]Group, error) {
	if thresholdPercent == nil {
		return groups, nil
	}
	if err := validateThreshold(*thresholdPercent); err != nil {
		return nil, err
	}
	var total float64
	for _, group := range groups {
		total += group.Total
	}
	target := total * *thresholdPercent / 100
	var selected []Group
	var running float64
	for i, group := range groups {
		if i > 0 && running+group.Total > target+tolerance*total {
			break
		}
		selected = append(selected, group)
		running += group.Total
	}
	return selected, nil
}

// RankAndFilter returns the rows of the groups that make up the top
// thresholdPercent of the total cost, sorted by row cost, largest first.
// Rows of equal cost keep their input order. A nil threshold keeps every
// row; a threshold of zero keeps only the most expensive group.
func RankAndFilter(rows []api.CostRow, groupBy api.CostField, thresholdPercent *float64) ([]api.CostRow, error) {
	if thresholdPercent != nil {
		if err := validateThreshold(*thresholdPercent); err != nil {
			return nil, err
		}
	}
	groups, err := Rank(rows, groupBy)
	if err != nil {
		return nil, err
	}
	selected, err := Select(groups, thresholdPercent)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]struct{}, len(selected))
	for _, group := range selected {
		keep[group.Key] = struct{}{}
	}
	out := make([]api.CostRow, 0, len(rows))
	for _, row := range rows {
		key, _ := row.Key(groupBy)
		if _, ok := keep[key]; ok {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Cost > out[j].Cost
	})
	return out, nil
}

// ForTask returns the rows billed to the task.
func ForTask(rows []api.CostRow, task api.TaskName) ([]api.CostRow, error) {
	var out []api.CostRow
	for _, row := range rows {
		if row.Task == task {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		return nil, results.ForReason(results.ReasonMissingTask).Errorf("no cost recorded for task %s", task)
	}
	return out, nil
}

// Total sums the cost of the rows.
func Total(rows []api.CostRow) float64 {
	var total float64
	for _, row := range rows {
		total += row.Cost
	}
	return total
}

func validateThreshold(thresholdPercent float64) error {
	if math.IsNaN(thresholdPercent) || thresholdPercent < 0 || thresholdPercent > 100 {
		return results.ForReason(results.ReasonInvalidParameter).Errorf("threshold must be a percentage between 0 and 100, got %v", thresholdPercent)
	}
	return nil
}

func validateRows(rows []api.CostRow, groupBy api.CostField) error {
	if _, ok := (api.CostRow{}).Key(groupBy); !ok {
		return results.ForReason(results.ReasonInvalidParameter).Errorf("cannot group costs by %q, must be one of %v", groupBy, api.CostFields)
	}
	for i, row := range rows {
		if math.IsNaN(row.Cost) || row.Cost < 0 {
			return results.ForReason(results.ReasonInvalidParameter).Errorf("row %d for %s has invalid cost %v", i, row.Task, row.Cost)
		}
	}
	return nil
}
