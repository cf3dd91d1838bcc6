// Package etl runs batches of raw fields through classification,
// transformation and key resolution.
package etl

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"harmonycore/internal/catalogue"
	"harmonycore/internal/classify"
	"harmonycore/internal/logging"
	"harmonycore/internal/sink"
	"harmonycore/internal/transform"
	"harmonycore/internal/warehouse"
	"harmonycore/pkg/domain"
)

// DefaultWorkers bounds concurrent field processing when no limit is set.
const DefaultWorkers = 8

// Runner processes batches against one catalogue and store.
type Runner struct {
	rules    *catalogue.RuleSet
	pipeline *transform.Pipeline
	resolver *warehouse.Resolver
	sink     *sink.Sink
	workers  int
	actor    string
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
	newID    func() (uuid.UUID, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers limits the number of fields processed concurrently.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithActor overrides the catalogue's actor on audit entries.
func WithActor(actor string) Option { return func(r *Runner) { r.actor = actor } }

// WithLogger sets the runner logger. The resolver and sink share it.
func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = logging.OrDiscard(l) } }

// WithRecorder registers a metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// New builds a runner. The store receives warehouse rows, staging traces and
// the activity log.
func New(rules *catalogue.RuleSet, pipeline *transform.Pipeline, store domain.PersistentStore, opts ...Option) (*Runner, error) {
	if rules == nil {
		return nil, errors.New("etl: rule set is required")
	}
	if pipeline == nil {
		return nil, errors.New("etl: pipeline is required")
	}
	if store == nil {
		return nil, errors.New("etl: store is required")
	}
	r := &Runner{
		rules:    rules,
		pipeline: pipeline,
		workers:  DefaultWorkers,
		actor:    rules.Actor(),
		logger:   logging.Discard(),
		recorder: nopRecorder{},
		now:      time.Now,
		newID:    uuid.NewV7,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.actor == "" {
		r.actor = warehouse.DefaultActor
	}
	r.resolver = warehouse.NewResolver(store, rules.Schema(), warehouse.WithActor(r.actor), warehouse.WithLogger(r.logger))
	r.sink = sink.New(store, sink.WithActor(r.actor), sink.WithLogger(r.logger))
	return r, nil
}

// Sink exposes the staging and audit sink of the runner's store.
func (r *Runner) Sink() *sink.Sink { return r.sink }

// unit is the per-field state carried from the first phase to the second.
type unit struct {
	field   domain.RawField
	staged  domain.StagedField
	rule    catalogue.Rule
	record  domain.EnrichedRecord
	started time.Time
	ready   bool
}

// Run stages, classifies and transforms every field concurrently, then
// writes the enriched records in waves ordered by foreign-key depth so each
// dimension is committed before the rows that reference it. Per-field
// failures are recorded in the report; the returned error is reserved for
// failures that make the rest of the batch untrustworthy.
func (r *Runner) Run(ctx context.Context, fields []domain.RawField) (*Report, error) {
	id, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("batch id: %w", err)
	}
	batchID := id.String()
	report := newReport(batchID, r.now().UTC(), len(fields))
	logger := logging.WithBatch(r.logger, batchID)
	logger.Info("batch started", slog.Int("fields", len(fields)), slog.Int("workers", r.workers))

	units := make([]*unit, len(fields))
	if err := r.prepare(ctx, batchID, fields, units, report, logger); err != nil {
		report.finish(r.now().UTC())
		logger.Error("batch aborted", slog.String("phase", "transform"), slog.Any("error", err))
		return report, err
	}
	if err := r.write(ctx, batchID, units, report, logger); err != nil {
		report.finish(r.now().UTC())
		logger.Error("batch aborted", slog.String("phase", "write"), slog.Any("error", err))
		return report, err
	}
	report.finish(r.now().UTC())
	totals := report.Totals()
	logger.Info("batch finished",
		slog.Int("written", totals.Written),
		slog.Int("unchanged", totals.Unchanged),
		slog.Int("failed", totals.Failed),
		slog.Int("unrecognized", report.Unrecognized),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (r *Runner) prepare(ctx context.Context, batchID string, fields []domain.RawField, units []*unit, report *Report, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, field := range fields {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			u, err := r.transformField(gctx, batchID, field, report, logger)
			units[i] = u
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Runner) transformField(ctx context.Context, batchID string, field domain.RawField, report *Report, logger *slog.Logger) (*unit, error) {
	u := &unit{field: field, started: time.Now()}
	staged, err := r.sink.Stage(ctx, batchID, field)
	if err != nil {
		return nil, err
	}
	u.staged = staged

	match, ok := classify.Best(field, r.rules)
	if !ok {
		report.unrecognized()
		r.recorder.ObserveField("", OutcomeUnrecognized, time.Since(u.started))
		return u, r.sink.Settle(ctx, staged.ID, domain.StagingUnrecognized, "")
	}
	u.rule = match.Rule
	report.update(match.Rule.Entity, func(c *EntityCounts) { c.Classified++ })

	rec, err := r.pipeline.Run(ctx, match.Rule, match.Seed)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		kind := "TransformError"
		if te, ok := transform.AsTransformError(err); ok {
			kind = string(te.Kind)
		}
		return u, r.fail(ctx, batchID, u, "transform", kind, "", err, report, logger)
	}
	u.record = rec
	u.ready = true
	report.update(match.Rule.Entity, func(c *EntityCounts) { c.Enriched++ })
	return u, nil
}

func (r *Runner) write(ctx context.Context, batchID string, units []*unit, report *Report, logger *slog.Logger) error {
	schema := r.rules.Schema()
	waves := make(map[int][]*unit)
	for _, u := range units {
		if u == nil || !u.ready {
			continue
		}
		depth, err := schema.Depth(u.rule.Table.Name)
		if err != nil {
			return &warehouse.WriteError{Kind: warehouse.KindCyclicDependency, State: warehouse.StateResolvingDependencies, Table: u.rule.Table.Name, Err: err}
		}
		waves[depth] = append(waves[depth], u)
	}
	depths := make([]int, 0, len(waves))
	for d := range waves {
		depths = append(depths, d)
	}
	sort.Ints(depths)

	for _, depth := range depths {
		wave := waves[depth]
		slices.SortFunc(wave, func(a, b *unit) int { return cmp.Compare(a.staged.ID, b.staged.ID) })
		logger.Debug("writing wave", slog.Int("depth", depth), slog.Int("records", len(wave)))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.workers)
		for _, u := range wave {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error { return r.writeRecord(gctx, batchID, u, report, logger) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) writeRecord(ctx context.Context, batchID string, u *unit, report *Report, logger *slog.Logger) error {
	res, err := r.resolver.Apply(ctx, batchID, u.rule, u.record)
	if err != nil {
		if isContextErr(err) || warehouse.IsFatal(err) {
			return err
		}
		kind, key := string(warehouse.KindStorage), ""
		if we, ok := warehouse.AsWriteError(err); ok {
			kind, key = string(we.Kind), we.Key
		}
		return r.fail(ctx, batchID, u, "write", kind, key, err, report, logger)
	}
	outcome := OutcomeUnchanged
	if res.Changed() {
		outcome = OutcomeWritten
	}
	report.update(u.rule.Entity, func(c *EntityCounts) {
		if outcome == OutcomeWritten {
			c.Written++
		} else {
			c.Unchanged++
		}
	})
	r.recorder.ObserveField(u.rule.Entity, outcome, time.Since(u.started))
	return r.sink.Settle(ctx, u.staged.ID, domain.StagingLoaded, "")
}

// fail isolates a per-field failure: the staged field is settled as failed,
// the failure is audited and counted, and the batch carries on.
func (r *Runner) fail(ctx context.Context, batchID string, u *unit, stage, kind, key string, cause error, report *Report, logger *slog.Logger) error {
	entity, table := u.rule.Entity, ""
	if u.rule.Table != nil {
		table = u.rule.Table.Name
	}
	logging.WithField(logging.WithEntity(logger, entity, table), u.field.SourceFileID, u.field.FieldKey).
		Warn("field failed", slog.String("stage", stage), slog.String("kind", kind), slog.Any("error", cause))

	report.fail(FieldFailure{
		StagedID:     u.staged.ID,
		SourceFileID: u.field.SourceFileID,
		FieldKey:     u.field.FieldKey,
		Value:        u.field.Value,
		Entity:       entity,
		Stage:        stage,
		Kind:         kind,
		Error:        cause.Error(),
	})
	r.recorder.ObserveField(entity, OutcomeFailed, time.Since(u.started))

	if err := r.sink.Settle(ctx, u.staged.ID, domain.StagingFailed, kind); err != nil {
		return err
	}
	_, err := r.sink.Audit(ctx, domain.AuditEntry{
		BatchID:    batchID,
		Entity:     entity,
		TableName:  table,
		ErrorKind:  kind,
		NaturalKey: key,
		Detail:     cause.Error(),
	})
	return err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
