package workflowsummary

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/results"
)

// TaskSummary is the wall-clock duration and scatter width of one task.
type TaskSummary struct {
	Task       api.TaskName `json:"task"`
	Duration   float64      `json:"duration_sec"`
	ShardCount int          `json:"shards"`
}

// Summary holds the summaries of the tasks that had rows, and a
// diagnostic for each requested task that did not.
type Summary struct {
	Tasks       map[api.TaskName]TaskSummary `json:"tasks"`
	Diagnostics []error                      `json:"-"`
}

// SummarizeTasks reports the duration and distinct shard count of each
// task. A task's duration is the recorded metrics duration of its earliest
// row; it is not summed across shards. When tasks is empty, every task
// present in rows is summarized.
func SummarizeTasks(tasks []api.TaskName, rows []api.SampleRow, logger *logrus.Entry) *Summary {
	byTask := map[api.TaskName][]api.SampleRow{}
	for _, row := range rows {
		byTask[row.Task] = append(byTask[row.Task], row)
	}
	if len(tasks) == 0 {
		tasks = TaskNames(rows)
	}

	summary := &Summary{Tasks: map[api.TaskName]TaskSummary{}}
	for _, task := range tasks {
		taskLogger := logger.WithFields(api.LogFieldsForTask(task))
		taskRows, ok := byTask[task]
		if !ok {
			err := results.ForReason(results.ReasonMissingTask).Errorf("task %s has no monitoring rows", task)
			taskLogger.WithError(err).Warn("Skipping task.")
			summary.Diagnostics = append(summary.Diagnostics, err)
			continue
		}

		shards := map[api.ShardID]struct{}{}
		var representative *api.SampleRow
		for i := range taskRows {
			row := &taskRows[i]
			shards[row.Shard] = struct{}{}
			if row.MetricsDurationSec == nil {
				continue
			}
			if representative == nil || earlier(row, representative) {
				representative = row
			}
		}

		taskSummary := TaskSummary{Task: task, ShardCount: len(shards)}
		if representative != nil {
			taskSummary.Duration = *representative.MetricsDurationSec
		} else {
			err := results.ForReason(results.ReasonDataQuality).Errorf("task %s has no recorded duration, using 0", task)
			taskLogger.WithError(err).Warn("Missing task duration.")
			summary.Diagnostics = append(summary.Diagnostics, err)
		}
		summary.Tasks[task] = taskSummary
	}
	return summary
}

func earlier(a, b *api.SampleRow) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if a.Shard != b.Shard {
		return a.Shard < b.Shard
	}
	return a.Attempt < b.Attempt
}

// SortedByDuration lists the task summaries from longest to shortest,
// breaking ties by task name.
func (s *Summary) SortedByDuration() []TaskSummary {
	out := make([]TaskSummary, 0, len(s.Tasks))
	for _, summary := range s.Tasks {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Duration != out[j].Duration {
			return out[i].Duration > out[j].Duration
		}
		return out[i].Task < out[j].Task
	})
	return out
}

// TaskNames lists the distinct tasks of the rows in name order.
func TaskNames(rows []api.SampleRow) []api.TaskName {
	seen := map[api.TaskName]struct{}{}
	var out []api.TaskName
	for _, row := range rows {
		if _, ok := seen[row.Task]; ok {
			continue
		}
		seen[row.Task] = struct{}{}
		out = append(out, row.Task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WorkflowDuration is the time between the first and the last sample,
// rounded to the second.
func WorkflowDuration(rows []api.SampleRow) (time.Duration, error) {
	first, last, err := WorkflowWindow(rows)
	if err != nil {
		return 0, err
	}
	return last.Sub(first).Round(time.Second), nil
}

// WorkflowWindow is the timestamp of the first and the last sample.
func WorkflowWindow(rows []api.SampleRow) (time.Time, time.Time, error) {
	if len(rows) == 0 {
		return time.Time{}, time.Time{}, results.ForReason(results.ReasonEmptyInput).Errorf("no samples to compute the workflow duration from")
	}
	first, last := rows[0].Timestamp, rows[0].Timestamp
	for _, row := range rows[1:] {
		if row.Timestamp.Before(first) {
			first = row.Timestamp
		}
		if row.Timestamp.After(last) {
			last = row.Timestamp
		}
	}
	return first, last, nil
}
