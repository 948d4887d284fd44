package cost

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/ptr"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/results"
)

func taskCosts() []api.CostRow {
	return []api.CostRow{
		{Task: "task1", CostDescription: "Core", Cost: 100},
		{Task: "task2", CostDescription: "Core", Cost: 200},
		{Task: "task3", CostDescription: "Ram", Cost: 300},
		{Task: "task4", CostDescription: "Ram", Cost: 400},
	}
}

func mixedCosts() []api.CostRow {
	return []api.CostRow{
		{Task: "align", CostDescription: "Core", Cost: 30, MachineSpec: "n1-standard-4"},
		{Task: "sort", CostDescription: "Core", Cost: 5},
		{Task: "align", CostDescription: "Ram", Cost: 10},
		{Task: "call", CostDescription: "Core", Cost: 25},
		{Task: "sort", CostDescription: "Disk", Cost: 5},
		{Task: "call", CostDescription: "Ram", Cost: 15},
		{Task: "index", CostDescription: "Disk", Cost: 1},
	}
}

func tasksOf(rows []api.CostRow) sets.Set[api.TaskName] {
	out := sets.New[api.TaskName]()
	for _, row := range rows {
		out.Insert(row.Task)
	}
	return out
}

func TestRankAndFilter(t *testing.T) {
	var testCases = []struct {
		name      string
		rows      []api.CostRow
		groupBy   api.CostField
		threshold *float64
		expected  []api.CostRow
	}{
		{
			name:      "half of the cost is the most expensive task",
			rows:      taskCosts(),
			groupBy:   api.CostFieldTaskName,
			threshold: ptr.To(50.0),
			expected:  []api.CostRow{{Task: "task4", CostDescription: "Ram", Cost: 400}},
		},
		{
			name:      "cumulative share up to the target",
			rows:      taskCosts(),
			groupBy:   api.CostFieldTaskName,
			threshold: ptr.To(70.0),
			expected: []api.CostRow{
				{Task: "task4", CostDescription: "Ram", Cost: 400},
				{Task: "task3", CostDescription: "Ram", Cost: 300},
			},
		},
		{
			name:      "zero keeps only the top group",
			rows:      taskCosts(),
			groupBy:   api.CostFieldTaskName,
			threshold: ptr.To(0.0),
			expected:  []api.CostRow{{Task: "task4", CostDescription: "Ram", Cost: 400}},
		},
		{
			name:    "no threshold sorts every row",
			rows:    taskCosts(),
			groupBy: api.CostFieldTaskName,
			expected: []api.CostRow{
				{Task: "task4", CostDescription: "Ram", Cost: 400},
				{Task: "task3", CostDescription: "Ram", Cost: 300},
				{Task: "task2", CostDescription: "Core", Cost: 200},
				{Task: "task1", CostDescription: "Core", Cost: 100},
			},
		},
		{
			name:      "hundred percent keeps everything",
			rows:      taskCosts(),
			groupBy:   api.CostFieldTaskName,
			threshold: ptr.To(100.0),
			expected: []api.CostRow{
				{Task: "task4", CostDescription: "Ram", Cost: 400},
				{Task: "task3", CostDescription: "Ram", Cost: 300},
				{Task: "task2", CostDescription: "Core", Cost: 200},
				{Task: "task1", CostDescription: "Core", Cost: 100},
			},
		},
		{
			name:      "grouping by description",
			rows:      taskCosts(),
			groupBy:   api.CostFieldCostDescription,
			threshold: ptr.To(50.0),
			expected: []api.CostRow{
				{Task: "task4", CostDescription: "Ram", Cost: 400},
				{Task: "task3", CostDescription: "Ram", Cost: 300},
			},
		},
		{
			name:      "rows of the selected groups sorted by row cost",
			rows:      mixedCosts(),
			groupBy:   api.CostFieldTaskName,
			threshold: ptr.To(99.0),
			expected: []api.CostRow{
				{Task: "align", CostDescription: "Core", Cost: 30, MachineSpec: "n1-standard-4"},
				{Task: "call", CostDescription: "Core", Cost: 25},
				{Task: "call", CostDescription: "Ram", Cost: 15},
				{Task: "align", CostDescription: "Ram", Cost: 10},
				{Task: "sort", CostDescription: "Core", Cost: 5},
				{Task: "sort", CostDescription: "Disk", Cost: 5},
			},
		},
		{
			name:      "no rows",
			groupBy:   api.CostFieldTaskName,
			threshold: ptr.To(50.0),
			expected:  []api.CostRow{},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			actual, err := RankAndFilter(testCase.rows, testCase.groupBy, testCase.threshold)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(testCase.expected, actual); diff != "" {
				t.Errorf("unexpected rows: %s", diff)
			}
		})
	}
}

func TestRankAndFilterInvalidParameters(t *testing.T) {
	var testCases = []struct {
		name      string
		rows      []api.CostRow
		groupBy   api.CostField
		threshold *float64
	}{
		{
			name:      "threshold above a hundred",
			rows:      taskCosts(),
			groupBy:   api.CostFieldTaskName,
			threshold: ptr.To(150.0),
		},
		{
			name:      "negative threshold",
			rows:      taskCosts(),
			groupBy:   api.CostFieldTaskName,
			threshold: ptr.To(-1.0),
		},
		{
			name:      "NaN threshold",
			rows:      taskCosts(),
			groupBy:   api.CostFieldTaskName,
			threshold: ptr.To(math.NaN()),
		},
		{
			name:    "unknown grouping column",
			rows:    taskCosts(),
			groupBy: api.CostField("cost"),
		},
		{
			name:    "negative cost",
			rows:    []api.CostRow{{Task: "a", Cost: 1}, {Task: "b", Cost: -2}},
			groupBy: api.CostFieldTaskName,
		},
		{
			name:    "NaN cost",
			rows:    []api.CostRow{{Task: "a", Cost: math.NaN()}},
			groupBy: api.CostFieldTaskName,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			actual, err := RankAndFilter(testCase.rows, testCase.groupBy, testCase.threshold)
			if !results.HasReason(err, results.ReasonInvalidParameter) {
				t.Errorf("expected an invalid parameter error, got %v", err)
			}
			if actual != nil {
				t.Errorf("expected no rows on error, got %v", actual)
			}
		})
	}
}

func TestRankAndFilterIsIdempotent(t *testing.T) {
	for _, threshold := range []*float64{nil, ptr.To(0.0), ptr.To(35.0), ptr.To(90.0), ptr.To(100.0)} {
		once, err := RankAndFilter(mixedCosts(), api.CostFieldTaskName, threshold)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		twice, err := RankAndFilter(once, api.CostFieldTaskName, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("re-ranking the selection changed it: %s", diff)
		}
	}
}

func TestRankAndFilterIsMonotonic(t *testing.T) {
	var previous sets.Set[api.TaskName]
	for threshold := 0.0; threshold <= 100; threshold += 2.5 {
		rows, err := RankAndFilter(mixedCosts(), api.CostFieldTaskName, ptr.To(threshold))
		if err != nil {
			t.Fatalf("unexpected error at %v: %v", threshold, err)
		}
		current := tasksOf(rows)
		if previous != nil && !current.IsSuperset(previous) {
			t.Errorf("selection at %v%% (%v) does not contain selection at a lower threshold (%v)", threshold, sets.List(current), sets.List(previous))
		}
		previous = current
	}
}

func TestRankAndFilterDoesNotMutateInput(t *testing.T) {
	rows := mixedCosts()
	if _, err := RankAndFilter(rows, api.CostFieldTaskName, ptr.To(50.0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(mixedCosts(), rows); diff != "" {
		t.Errorf("input was mutated: %s", diff)
	}
}

func TestGroupOrder(t *testing.T) {
	rows := []api.CostRow{
		{Task: "b", Cost: 10},
		{Task: "a", Cost: 10},
		{Task: "c", Cost: 30},
		{Task: "b", Cost: 5},
		{Task: "d", Cost: 15},
	}
	order, err := GroupOrder(rows, api.CostFieldTaskName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"c", "b", "d", "a"}, order); diff != "" {
		t.Errorf("unexpected order: %s", diff)
	}

	tied := []api.CostRow{{Task: "z", Cost: 1}, {Task: "y", Cost: 1}, {Task: "x", Cost: 1}}
	order, err = GroupOrder(tied, api.CostFieldTaskName)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"z", "y", "x"}, order); diff != "" {
		t.Errorf("ties should keep first appearance order: %s", diff)
	}
}

func TestForTask(t *testing.T) {
	rows, err := ForTask(mixedCosts(), "call")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actual, expected := Total(rows), 40.0; actual != expected {
		t.Errorf("expected total %v, got %v", expected, actual)
	}
	if _, err := ForTask(mixedCosts(), "missing"); !results.HasReason(err, results.ReasonMissingTask) {
		t.Errorf("expected a missing task error, got %v", err)
	}
}
