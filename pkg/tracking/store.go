// Package tracking records transformation runs: the datasets they read, the
// statistics they produced and the artifacts they wrote.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/siqueiraa/TabFlow/pkg/config"
	"github.com/siqueiraa/TabFlow/pkg/dataset"
)

const (
	dirMode = 0o755

	runPrefix  = "run:"
	expPrefix  = "exp:"
	dictPrefix = "dict:"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned for an unknown run or dict.
var ErrNotFound = errors.New("not found")

// ErrRunEnded is returned when logging to a run that already ended.
var ErrRunEnded = errors.New("run already ended")

type Status string

const (
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusFailed   Status = "FAILED"
)

// Tracker is what a transformation run reports to.
type Tracker interface {
	LogInput(ds *dataset.Dataset, source, tag string) error
	LogDict(name string, values map[string]any) error
	LogArtifact(ctx context.Context, localPath, name string) error
}

// Input is the lineage record of a dataset read by a run.
type Input struct {
	Source  string            `json:"source"`
	Context string            `json:"context"`
	Digest  string            `json:"digest"`
	Rows    int               `json:"rows"`
	Schema  map[string]string `json:"schema"`
	Columns []string          `json:"columns"`
}

// Artifact is a file or directory stored with a run.
type Artifact struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URI  string `json:"uri,omitempty"` // set when mirrored to S3
}

// RunInfo is the persisted state of a run.
type RunInfo struct {
	ID         string     `json:"id"`
	Experiment string     `json:"experiment"`
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Inputs     []Input    `json:"inputs,omitempty"`
	Dicts      []string   `json:"dicts,omitempty"`
	Artifacts  []Artifact `json:"artifacts,omitempty"`
}

// Store keeps runs in a badger database and artifacts on disk.
type Store struct {
	db           *badger.DB
	artifactsDir string
	mirror       uploader // nil when S3 is disabled
	logger       *zap.Logger
}

// Open opens (or creates) the store described by cfg.
func Open(ctx context.Context, cfg config.TrackingConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Path, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create tracking path: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open tracking db: %w", err)
	}

	st := &Store{
		db:           db,
		artifactsDir: cfg.Artifacts.Dir,
		logger:       logger.Named("tracking"),
	}
	if cfg.Artifacts.S3.Enabled {
		m, err := newS3Mirror(ctx, cfg.Artifacts.S3)
		if err != nil {
			db.Close()
			return nil, err
		}
		st.mirror = m
	}
	return st, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun registers a new run under experiment.
func (s *Store) StartRun(experiment, name string) (*Run, error) {
	info := RunInfo{
		ID:         uuid.NewString(),
		Experiment: experiment,
		Name:       name,
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := putJSON(txn, runKey(info.ID), info); err != nil {
			return err
		}
		return txn.Set(expKey(experiment, info.StartedAt, info.ID), []byte(info.ID))
	})
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	s.logger.Info("run started",
		zap.String("run_id", info.ID),
		zap.String("experiment", experiment),
		zap.String("name", name),
	)
	return &Run{id: info.ID, store: s}, nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(id string) (RunInfo, error) {
	var info RunInfo
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, runKey(id), &info)
	})
	return info, err
}

// ListRuns returns the runs of experiment, oldest first.
func (s *Store) ListRuns(experiment string) ([]RunInfo, error) {
	var runs []RunInfo
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(expPrefix + experiment + ":")
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var info RunInfo
			if err := getJSON(txn, runKey(string(id)), &info); err != nil {
				return err
			}
			runs = append(runs, info)
		}
		return nil
	})
	return runs, err
}

// GetDict reads back a dictionary logged by a run.
func (s *Store) GetDict(runID, name string) (map[string]any, error) {
	var out map[string]any
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, dictKey(runID, name), &out)
	})
	return out, err
}

// update applies fn to a running run inside one transaction.
func (s *Store) update(id string, fn func(txn *badger.Txn, info *RunInfo) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var info RunInfo
		if err := getJSON(txn, runKey(id), &info); err != nil {
			return err
		}
		if info.Status != StatusRunning {
			return fmt.Errorf("run %s: %w", id, ErrRunEnded)
		}
		if err := fn(txn, &info); err != nil {
			return err
		}
		return putJSON(txn, runKey(id), info)
	})
}

// Run is an open run. It implements Tracker.
type Run struct {
	id    string
	store *Store
	mu    sync.Mutex
}

var _ Tracker = (*Run)(nil)

// ID returns the run id.
func (r *Run) ID() string {
	return r.id
}

// LogInput records the lineage of a dataset read by the run.
func (r *Run) LogInput(ds *dataset.Dataset, source, tag string) error {
	in := Input{
		Source:  source,
		Context: tag,
		Digest:  ds.Digest(),
		Rows:    ds.Len(),
		Schema:  make(map[string]string, len(ds.Columns())),
		Columns: ds.Columns(),
	}
	for col, typ := range ds.Schema.Types {
		in.Schema[col] = string(typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.store.update(r.id, func(_ *badger.Txn, info *RunInfo) error {
		info.Inputs = append(info.Inputs, in)
		return nil
	})
	if err != nil {
		return fmt.Errorf("log input %s: %w", source, err)
	}
	r.store.logger.Debug("input logged",
		zap.String("run_id", r.id),
		zap.String("source", source),
		zap.String("digest", in.Digest),
	)
	return nil
}

// LogDict stores a JSON-serializable map under name. Values such as
// time.Time must be converted by the caller.
func (r *Run) LogDict(name string, values map[string]any) error {
	if err := checkSerializable(values); err != nil {
		return fmt.Errorf("log dict %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.store.update(r.id, func(txn *badger.Txn, info *RunInfo) error {
		if err := putJSON(txn, dictKey(r.id, name), values); err != nil {
			return err
		}
		if !slices.Contains(info.Dicts, name) {
			info.Dicts = append(info.Dicts, name)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("log dict %s: %w", name, err)
	}
	return nil
}

// LogArtifact copies localPath (a file or directory) into the run's artifact
// directory under name, then mirrors it to S3 when configured.
func (r *Run) LogArtifact(ctx context.Context, localPath, name string) error {
	if name == "" {
		name = filepath.Base(localPath)
	}
	dst := filepath.Join(r.store.artifactsDir, r.id, name)
	if err := copyPath(localPath, dst); err != nil {
		return fmt.Errorf("log artifact %s: %w", name, err)
	}

	art := Artifact{Name: name, Path: dst}
	if r.store.mirror != nil {
		uri, err := r.store.mirror.upload(ctx, dst, r.id+"/"+name)
		if err != nil {
			return fmt.Errorf("mirror artifact %s: %w", name, err)
		}
		art.URI = uri
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.store.update(r.id, func(_ *badger.Txn, info *RunInfo) error {
		info.Artifacts = append(info.Artifacts, art)
		return nil
	})
	if err != nil {
		return fmt.Errorf("log artifact %s: %w", name, err)
	}
	r.store.logger.Info("artifact stored",
		zap.String("run_id", r.id),
		zap.String("name", name),
		zap.String("path", dst),
		zap.String("uri", art.URI),
	)
	return nil
}

// End closes the run with status.
func (r *Run) End(status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.store.update(r.id, func(_ *badger.Txn, info *RunInfo) error {
		info.Status = status
		ended := time.Now().UTC()
		info.EndedAt = &ended
		return nil
	})
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	r.store.logger.Info("run ended", zap.String("run_id", r.id), zap.String("status", string(status)))
	return nil
}

func runKey(id string) []byte {
	return []byte(runPrefix + id)
}

// expKey sorts runs of an experiment by start time.
func expKey(experiment string, started time.Time, id string) []byte {
	return fmt.Appendf(nil, "%s%s:%020d:%s", expPrefix, experiment, started.UnixNano(), id)
}

func dictKey(runID, name string) []byte {
	return []byte(dictPrefix + runID + ":" + name)
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := jsonAPI.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return jsonAPI.Unmarshal(val, v)
	})
}

// checkSerializable rejects values that would not survive a JSON round trip.
func checkSerializable(v any) error {
	switch x := v.(type) {
	case time.Time, *time.Time:
		return fmt.Errorf("unserializable time value %v", x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("unserializable float %v", x)
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := checkSerializable(x[k]); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
	case map[string]map[string]any:
		for k, m := range x {
			if err := checkSerializable(map[string]any(m)); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
	case []any:
		for i, e := range x {
			if err := checkSerializable(e); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	}
	return nil
}
