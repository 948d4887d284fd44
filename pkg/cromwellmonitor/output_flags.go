package cromwellmonitor

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/openshift/cromwell-monitor/pkg/report"
)

const (
	logStyleJson = "json"
	logStyleText = "text"
)

// OutputFlags configure logging, the report format and where query
// metrics are written.
type OutputFlags struct {
	LogLevel        string
	LogStyle        string
	Output          string
	MetricsTextfile string
}

func NewOutputFlags() *OutputFlags {
	return &OutputFlags{
		LogLevel: "info",
		LogStyle: logStyleText,
		Output:   string(report.FormatTable),
	}
}

func (f *OutputFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.LogLevel, "loglevel", f.LogLevel, "Logging level.")
	fs.StringVar(&f.LogStyle, "log-style", f.LogStyle, "Logging style: json or text.")
	fs.StringVar(&f.Output, "output", f.Output, "Report format: table, json or yaml.")
	fs.StringVar(&f.MetricsTextfile, "metrics-textfile", f.MetricsTextfile, "write BigQuery query metrics in the Prometheus text format to this file")
}

func (f *OutputFlags) Validate() error {
	if _, err := logrus.ParseLevel(f.LogLevel); err != nil {
		return fmt.Errorf("--loglevel invalid: %w", err)
	}
	if f.LogStyle != logStyleJson && f.LogStyle != logStyleText {
		return fmt.Errorf("--log-style must be one of %s or %s, not %s", logStyleText, logStyleJson, f.LogStyle)
	}
	if err := report.Format(f.Output).Validate(); err != nil {
		return fmt.Errorf("--output invalid: %w", err)
	}
	return nil
}

// configureLogging applies validated flags to the standard logger.
func (f *OutputFlags) configureLogging() {
	if level, err := logrus.ParseLevel(f.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	switch f.LogStyle {
	case logStyleJson:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case logStyleText:
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:     true,
			DisableQuote:    true,
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
}

func (f *OutputFlags) format() report.Format {
	return report.Format(f.Output)
}

func (f *OutputFlags) writeMetrics(gatherer prometheus.Gatherer) error {
	if f.MetricsTextfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(f.MetricsTextfile, gatherer); err != nil {
		return fmt.Errorf("could not write metrics to %s: %w", f.MetricsTextfile, err)
	}
	return nil
}
