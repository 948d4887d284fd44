package monitoring

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/openshift/cromwell-monitor/pkg/results"
)

const (
	MonitoringDataSetID = "cromwell_monitoring"
	RuntimeTableName    = "runtime"
	MetadataTableName   = "metadata"
	MetricsTableName    = "metrics"
)

// DataCoordinates locate the monitoring tables written by the Cromwell
// task monitor.
type DataCoordinates struct {
	ProjectID string
	DataSetID string
}

func NewDataCoordinates() *DataCoordinates {
	return &DataCoordinates{
		DataSetID: MonitoringDataSetID,
	}
}

func (f *DataCoordinates) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ProjectID, "google-project-id", f.ProjectID, "project ID where monitoring data is stored")
	fs.StringVar(&f.DataSetID, "bigquery-dataset", f.DataSetID, "bigquery dataset where monitoring data is stored")
}

func (f *DataCoordinates) Validate() error {
	if len(f.ProjectID) == 0 {
		return fmt.Errorf("--google-project-id must be specified")
	}
	if len(f.DataSetID) == 0 {
		return fmt.Errorf("--bigquery-dataset must be specified")
	}
	return nil
}

func (f *DataCoordinates) SubstituteDataSetLocation(query string) string {
	return strings.ReplaceAll(query, "DATA_SET_LOCATION", "`"+f.ProjectID+"."+f.DataSetID+"`")
}

// TableID is a fully qualified BigQuery table, project.dataset.table.
type TableID struct {
	ProjectID string
	DataSetID string
	TableID   string
}

func ParseTableID(raw string) (TableID, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return TableID{}, results.ForReason(results.ReasonInvalidParameter).Errorf("table %q must be of the form project.dataset.table", raw)
	}
	for _, part := range parts {
		if part == "" {
			return TableID{}, results.ForReason(results.ReasonInvalidParameter).Errorf("table %q must be of the form project.dataset.table", raw)
		}
	}
	return TableID{ProjectID: parts[0], DataSetID: parts[1], TableID: parts[2]}, nil
}

func (t TableID) String() string {
	return t.ProjectID + "." + t.DataSetID + "." + t.TableID
}

// Quoted is the table reference for use in a query.
func (t TableID) Quoted() string {
	return "`" + t.String() + "`"
}

func replaceTable(query string, table TableID) string {
	return strings.ReplaceAll(query, "BILLING_TABLE", table.Quoted())
}
