package cromwellmonitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openshift/cromwell-monitor/pkg/monitoring"
)

type FetchFlags struct {
	Source *SourceFlags
	Output *OutputFlags
}

func NewFetchFlags() *FetchFlags {
	return &FetchFlags{
		Source: NewSourceFlags(),
		Output: NewOutputFlags(),
	}
}

func (f *FetchFlags) BindFlags(fs *pflag.FlagSet) {
	f.Source.BindFlags(fs)
	f.Output.BindFlags(fs)
}

func (f *FetchFlags) Validate() error {
	if f.Source.SnapshotDir == "" && f.Source.SnapshotBucket == "" {
		return errors.New("one of --snapshot-dir or --snapshot-bucket is required to store what is fetched")
	}
	// fetching always queries
	f.Source.Refresh = true
	if err := f.Source.Validate(); err != nil {
		return err
	}
	return f.Output.Validate()
}

func (f *FetchFlags) ToOptions(ctx context.Context) (*FetchOptions, error) {
	registry := prometheus.NewRegistry()
	source, err := f.Source.ToOptions(ctx, monitoring.NewMetrics(registry))
	if err != nil {
		return nil, err
	}
	return &FetchOptions{
		source:   source,
		output:   f.Output,
		registry: registry,
		out:      os.Stdout,
	}, nil
}

type FetchOptions struct {
	source   *datasetSource
	output   *OutputFlags
	registry *prometheus.Registry
	out      io.Writer
}

func (o *FetchOptions) Run(ctx context.Context) error {
	logger := logrus.WithField("component", "fetch")
	snap, err := o.source.fetch(ctx, logger)
	if err != nil {
		return err
	}
	if len(snap.MissingInstances) > 0 {
		logger.WithField("instances", snap.MissingInstances).Warnf("%d instances never reported metrics.", len(snap.MissingInstances))
	}
	if _, err := fmt.Fprintf(o.out, "Stored %d samples of %d instances as %s\n", len(snap.Samples), len(snap.Runtimes), o.source.name()); err != nil {
		return err
	}
	return o.output.writeMetrics(o.registry)
}

func NewFetchCommand() *cobra.Command {
	f := NewFetchFlags()

	cmd := &cobra.Command{
		Use:          "fetch",
		Short:        "Query the monitoring data of workflows and store it as a snapshot",
		SilenceUsage: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if err := f.Validate(); err != nil {
				logrus.WithError(err).Fatal("Flags are invalid")
			}
			f.Output.configureLogging()
			o, err := f.ToOptions(ctx)
			if err != nil {
				logrus.WithError(err).Fatal("Failed to build runtime options")
			}

			if err := o.Run(ctx); err != nil {
				logrus.WithError(err).Fatal("Command failed")
			}

			return nil
		},

		Args: noArgs,
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
