// cromwell-monitor summarizes the resource usage and cost of Cromwell
// workflows from the data the task monitor exports to BigQuery.
package main

import (
	"os"

	"github.com/openshift/cromwell-monitor/pkg/cromwellmonitor"
)

func main() {
	if err := cromwellmonitor.NewCromwellMonitorCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
