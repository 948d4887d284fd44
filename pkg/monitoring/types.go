package monitoring

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// RuntimeRow is a VM recorded by the task monitor when it starts.
type RuntimeRow struct {
	WorkflowID   bigquery.NullString `bigquery:"workflow_id"`
	TaskCallName bigquery.NullString `bigquery:"task_call_name"`
	Shard        bigquery.NullInt64  `bigquery:"shard"`
	Attempt      bigquery.NullInt64  `bigquery:"attempt"`
	InstanceID   int64               `bigquery:"instance_id"`
	InstanceName string              `bigquery:"instance_name"`
	ProjectID    string              `bigquery:"project_id"`
	Zone         string              `bigquery:"zone"`
	Preemptible  bool                `bigquery:"preemptible"`
	CPUCount     int64               `bigquery:"cpu_count"`
	CPUPlatform  string              `bigquery:"cpu_platform"`
	MemTotalGB   float64             `bigquery:"mem_total_gb"`
	DiskMounts   []string            `bigquery:"disk_mounts"`
	DiskTotalGB  []float64           `bigquery:"disk_total_gb"`
	StartTime    time.Time           `bigquery:"start_time"`
}

// MetadataRow is a call attempt as recorded by the workflow engine.
type MetadataRow struct {
	WorkflowID      bigquery.NullString    `bigquery:"workflow_id"`
	WorkflowName    bigquery.NullString    `bigquery:"workflow_name"`
	TaskCallName    bigquery.NullString    `bigquery:"task_call_name"`
	Shard           bigquery.NullInt64     `bigquery:"shard"`
	Attempt         bigquery.NullInt64     `bigquery:"attempt"`
	InstanceName    bigquery.NullString    `bigquery:"instance_name"`
	ExecutionStatus bigquery.NullString    `bigquery:"execution_status"`
	DockerImage     bigquery.NullString    `bigquery:"docker_image"`
	CPUCount        bigquery.NullInt64     `bigquery:"cpu_count"`
	MemTotalGB      bigquery.NullFloat64   `bigquery:"mem_total_gb"`
	DiskTotalGB     bigquery.NullFloat64   `bigquery:"disk_total_gb"`
	StartTime       bigquery.NullTimestamp `bigquery:"start_time"`
	EndTime         bigquery.NullTimestamp `bigquery:"end_time"`
	DurationSec     bigquery.NullInt64     `bigquery:"meta_duration_sec"`
}

// MetricsRow is one sample sent by the task monitor.
type MetricsRow struct {
	Timestamp      time.Time `bigquery:"timestamp"`
	InstanceID     int64     `bigquery:"instance_id"`
	CPUUsedPercent []float64 `bigquery:"cpu_used_percent"`
	MemUsedGB      float64   `bigquery:"mem_used_gb"`
	DiskUsedGB     []float64 `bigquery:"disk_used_gb"`
	DiskReadIOPS   []float64 `bigquery:"disk_read_iops"`
	DiskWriteIOPS  []float64 `bigquery:"disk_write_iops"`
}

// WorkflowQuery selects the workflows to fetch. Tables are scanned for
// dates between DaysBackUpper and DaysBackLower days before today.
type WorkflowQuery struct {
	WorkflowIDs   []string
	DaysBackUpper int
	DaysBackLower int
}
