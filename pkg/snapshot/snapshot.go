package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	kerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/openshift/cromwell-monitor/pkg/api"
	"github.com/openshift/cromwell-monitor/pkg/results"
)

const (
	attempts     = 5
	loadTimeout  = 5 * time.Minute
	storeTimeout = 10 * time.Minute
)

// Snapshot is everything fetched for a set of workflows, so that reports
// can be rendered again without querying BigQuery.
type Snapshot struct {
	WorkflowIDs      []string              `json:"workflow_ids"`
	Fetched          time.Time             `json:"fetched"`
	Samples          []api.SampleRow       `json:"samples,omitempty"`
	Runtimes         []api.InstanceRuntime `json:"runtimes,omitempty"`
	MissingInstances []int64               `json:"missing_instances,omitempty"`
	Costs            []api.CostRow         `json:"costs,omitempty"`
}

// Name is the name a snapshot of the workflows is stored under.
func Name(workflowIDs ...string) string {
	return strings.Join(workflowIDs, "_") + ".json"
}

// Load reads a snapshot, retrying reads that time out.
func Load(ctx context.Context, storage Storage, name string, logger *logrus.Entry) (*Snapshot, error) {
	readStart := time.Now()
	logger = logger.WithField("snapshot", name)
	logger.Debug("Loading snapshot from storage.")
	var data []byte
	for i := 0; i < attempts; i++ {
		var readErr error
		data, readErr = loadFrom(ctx, storage, name)
		if errors.Is(readErr, context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Debug("Failed to load snapshot before deadline, trying again.")
			continue
		}
		if readErr != nil {
			return nil, results.ForReason(results.ReasonSnapshot).WithError(readErr).Errorf("could not read snapshot %s: %v", name, readErr)
		}
		break
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, results.ForReason(results.ReasonSnapshot).WithError(err).Errorf("could not unmarshal snapshot %s: %v", name, err)
	}
	logger.Infof("Loaded %d samples and %d cost rows after %s.", len(snapshot.Samples), len(snapshot.Costs), time.Since(readStart).Round(time.Millisecond))
	return &snapshot, nil
}

func loadFrom(ctx context.Context, storage Storage, name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	reader, err := storage.open(ctx, name)
	if err != nil {
		return nil, err
	}
	data, readErr := io.ReadAll(reader)
	if err := reader.Close(); err != nil {
		readErr = kerrors.NewAggregate([]error{readErr, fmt.Errorf("could not close reader for snapshot: %w", err)})
	}
	return data, readErr
}

// Store writes the snapshot, retrying writes that time out.
func Store(ctx context.Context, storage Storage, name string, snapshot *Snapshot, logger *logrus.Entry) error {
	flushStart := time.Now()
	logger = logger.WithField("snapshot", name)
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return results.ForReason(results.ReasonSnapshot).WithError(err).Errorf("could not marshal snapshot: %v", err)
	}
	for i := 0; i < attempts; i++ {
		storeErr := storeTo(ctx, storage, name, raw)
		if errors.Is(storeErr, context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Debug("Failed to store snapshot before deadline, trying again.")
			continue
		}
		if storeErr != nil {
			return results.ForReason(results.ReasonSnapshot).WithError(storeErr).Errorf("could not write snapshot %s: %v", name, storeErr)
		}
		break
	}
	logger.Infof("Stored %d bytes after %s.", len(raw), time.Since(flushStart).Round(time.Millisecond))
	return nil
}

func storeTo(ctx context.Context, storage Storage, name string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	writer, err := storage.create(ctx, name)
	if err != nil {
		return fmt.Errorf("could not open snapshot for writing: %w", err)
	}
	var errs []error
	if _, err := writer.Write(data); err != nil {
		errs = append(errs, fmt.Errorf("could not write snapshot: %w", err))
	}
	if err := writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("could not close writer for snapshot: %w", err))
	}
	return kerrors.NewAggregate(errs)
}

// LastUpdated is when the snapshot was last stored.
func LastUpdated(ctx context.Context, storage Storage, name string) (time.Time, error) {
	return storage.modified(ctx, name)
}
