package api

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

func LogFieldsForSample(sample SampleRow) logrus.Fields {
	return logrus.Fields{
		"workflow_id": sample.WorkflowID,
		"task":        sample.Task,
		"shard":       sample.Shard,
		"attempt":     sample.Attempt,
	}
}

func LogFieldsForTask(task TaskName) logrus.Fields {
	return logrus.Fields{
		"task": task,
	}
}

// String renders the shard the way the workflow engine labels scatter
// shards; unscattered calls have no shard label.
func (s ShardID) String() string {
	if s < 0 {
		return "-"
	}
	return fmt.Sprintf("%d", int(s))
}
