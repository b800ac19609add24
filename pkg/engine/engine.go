// Package engine applies a transformation Spec to a Dataset: filter,
// aggregation, feature derivation and date features, in that order.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/siqueiraa/TabFlow/pkg/dataset"
	"github.com/siqueiraa/TabFlow/pkg/pipeline"
)

// Stage names a step of the transformation.
type Stage string

const (
	StageFilter       Stage = "filter"
	StageAggregation  Stage = "aggregation"
	StageFeatures     Stage = "features"
	StageDateFeatures Stage = "date_features"
)

// StageError carries the stage and the rule (or column) that failed.
type StageError struct {
	Stage Stage
	Rule  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage, rule %q: %v", e.Stage, e.Rule, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, rule string, err error) error {
	return &StageError{Stage: stage, Rule: rule, Err: err}
}

// Engine runs one Spec. It holds no mutable state, so a single Engine can
// serve concurrent Run calls.
type Engine struct {
	spec   *pipeline.Spec
	logger *zap.Logger
}

type step struct {
	stage   Stage
	enabled bool
	run     func(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error)
}

// New builds an engine for a validated spec. A nil logger discards output.
func New(spec *pipeline.Spec, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{spec: spec, logger: logger.Named("engine")}
}

// Spec returns the transformation document the engine runs.
func (e *Engine) Spec() *pipeline.Spec {
	return e.spec
}

func (e *Engine) steps() []step {
	s := e.spec
	return []step{
		{
			stage:   StageFilter,
			enabled: len(s.Filters) > 0 || len(s.ExcludeSuffixes) > 0,
			run: func(_ context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
				return Filter(ds, s)
			},
		},
		{
			stage:   StageAggregation,
			enabled: len(s.Aggregations) > 0,
			run: func(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
				return Aggregate(ctx, ds, s)
			},
		},
		{
			stage:   StageFeatures,
			enabled: len(s.CustomFeatures) > 0,
			run: func(_ context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
				return DeriveFeatures(ds, s)
			},
		},
		{
			stage:   StageDateFeatures,
			enabled: len(s.DateFeatures) > 0,
			run: func(_ context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
				return DeriveDateFeatures(ds, s)
			},
		},
	}
}

// Run applies every configured stage in order. The input dataset is never
// modified; on error no partial result is returned.
func (e *Engine) Run(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, error) {
	start := time.Now()
	current := ds

	for _, st := range e.steps() {
		if !st.enabled {
			e.logger.Debug("stage skipped", zap.String("stage", string(st.stage)))
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stageStart := time.Now()
		next, err := st.run(ctx, current)
		if err != nil {
			e.logger.Error("stage failed", zap.String("stage", string(st.stage)), zap.Error(err))
			return nil, err
		}

		e.logger.Info("stage completed",
			zap.String("stage", string(st.stage)),
			zap.Int("rows_in", current.Len()),
			zap.Int("rows_out", next.Len()),
			zap.Int("columns", len(next.Columns())),
			zap.Duration("duration", time.Since(stageStart)),
		)
		current = next
	}

	e.logger.Info("transformation completed",
		zap.Int("rows", current.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return current, nil
}
