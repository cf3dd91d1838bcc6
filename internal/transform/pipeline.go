package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"harmonycore/internal/catalogue"
	"harmonycore/internal/enrich"
	"harmonycore/internal/entitymodel"
	"harmonycore/pkg/domain"
)

// Observer receives enrichment lookup outcomes.
type Observer interface {
	ObserveLookup(family string, attempts int, success bool, elapsed time.Duration)
}

// Pipeline runs rule chains against a provider directory.
type Pipeline struct {
	registry  *Registry
	providers enrich.Directory
	retry     RetryPolicy
	logger    *slog.Logger
	observer  Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetryPolicy overrides the enrichment retry policy.
func WithRetryPolicy(p RetryPolicy) Option { return func(pl *Pipeline) { pl.retry = p } }

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) {
		if l != nil {
			pl.logger = l
		}
	}
}

// WithObserver registers a lookup observer.
func WithObserver(o Observer) Option { return func(pl *Pipeline) { pl.observer = o } }

// NewPipeline constructs a pipeline over the registry and providers.
func NewPipeline(registry *Registry, providers enrich.Directory, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:  registry,
		providers: providers,
		retry:     DefaultRetryPolicy(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the transform registry used by the pipeline.
func (p *Pipeline) Registry() *Registry { return p.registry }

// Run folds the rule's chain over seed and validates the result against the
// rule's target columns.
func (p *Pipeline) Run(ctx context.Context, rule catalogue.Rule, seed any) (domain.EnrichedRecord, error) {
	v := Scalar(seed)
	for _, name := range rule.Transforms {
		if err := ctx.Err(); err != nil {
			return domain.EnrichedRecord{}, err
		}
		t, ok := p.registry.Get(name)
		if !ok {
			return domain.EnrichedRecord{}, &TransformError{Kind: KindInvalidValue, Entity: rule.Entity, Step: name, Err: fmt.Errorf("transform %q is not registered", name)}
		}
		var err error
		switch t.Kind {
		case StepPure:
			v, err = p.applyPure(rule, t, v)
		case StepEnriching:
			v, err = p.applyEnriching(ctx, rule, t, v)
		}
		if err != nil {
			return domain.EnrichedRecord{}, err
		}
	}
	return p.finish(rule, v)
}

func (p *Pipeline) applyPure(rule catalogue.Rule, t Transform, v Value) (Value, error) {
	out, err := t.Apply(v)
	if err == nil {
		if v.IsRecord() && out.IsRecord() && !t.Rewrite {
			merged, err := merge(rule.Table, v.Record(), out.Record())
			if err != nil {
				var te *TransformError
				if errors.As(err, &te) {
					te.Entity, te.Step = rule.Entity, t.Name
				}
				return Value{}, err
			}
			return RecordValue(merged), nil
		}
		return out, nil
	}
	kind := KindInvalidValue
	if errors.Is(err, errShape) || errors.Is(err, errNeedsRecord) {
		kind = KindShapeMismatch
	}
	return Value{}, &TransformError{Kind: kind, Entity: rule.Entity, Step: t.Name, Err: err}
}

func (p *Pipeline) applyEnriching(ctx context.Context, rule catalogue.Rule, t Transform, v Value) (Value, error) {
	var base domain.Record
	if v.IsRecord() {
		base = v.Record()
	} else {
		base = domain.Record{t.KeyColumn: v.Scalar()}
	}
	key := base[t.KeyColumn]
	if domain.IsNull(key) {
		return Value{}, &TransformError{Kind: KindInvalidValue, Entity: rule.Entity, Step: t.Name, Column: t.KeyColumn, Err: errors.New("no identifier to look up")}
	}
	provider, err := p.providers.Provider(t.Family)
	if err != nil {
		return Value{}, &TransformError{Kind: KindEnrichmentFailed, Entity: rule.Entity, Step: t.Name, Err: err}
	}
	id := fmt.Sprint(key)
	started := time.Now()
	attrs, attempts, err := p.retry.Do(ctx, func(ctx context.Context) (domain.Record, error) {
		return provider.Lookup(ctx, id)
	})
	if p.observer != nil {
		p.observer.ObserveLookup(string(t.Family), attempts, err == nil, time.Since(started))
	}
	if err != nil {
		p.logger.Debug("enrichment failed", "entity", rule.Entity, "step", t.Name, "id", id, "attempts", attempts, "error", err)
		return Value{}, &TransformError{Kind: KindEnrichmentFailed, Entity: rule.Entity, Step: t.Name, Err: err}
	}
	merged, err := merge(rule.Table, base, attrs)
	if err != nil {
		var te *TransformError
		if errors.As(err, &te) {
			te.Entity, te.Step = rule.Entity, t.Name
		}
		return Value{}, err
	}
	return RecordValue(merged), nil
}

// merge adds incoming attributes to base. Existing non-null values are kept;
// a differing non-null incoming value is a conflict.
func merge(table *entitymodel.Table, base, incoming domain.Record) (domain.Record, error) {
	out := base.Clone()
	keys := make([]string, 0, len(incoming))
	for k := range incoming {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		nv := incoming[k]
		if domain.IsNull(nv) {
			continue
		}
		ov, present := out[k]
		if !present || domain.IsNull(ov) {
			out[k] = nv
			continue
		}
		if !sameAttribute(table, k, ov, nv) {
			return nil, &TransformError{
				Kind:   KindConflictingEnrichment,
				Column: k,
				Err:    fmt.Errorf("existing value %v conflicts with %v", ov, nv),
			}
		}
	}
	return out, nil
}

func sameAttribute(table *entitymodel.Table, column string, a, b any) bool {
	if table != nil {
		if col, ok := table.Column(column); ok {
			ca, errA := col.Coerce(a)
			cb, errB := col.Coerce(b)
			if errA == nil && errB == nil {
				return domain.ValuesEqual(ca, cb)
			}
		}
	}
	return domain.ValuesEqual(a, b)
}

func (p *Pipeline) finish(rule catalogue.Rule, v Value) (domain.EnrichedRecord, error) {
	fail := func(kind ErrorKind, column string, err error) (domain.EnrichedRecord, error) {
		return domain.EnrichedRecord{}, &TransformError{Kind: kind, Entity: rule.Entity, Column: column, Err: err}
	}
	if rule.Table == nil {
		return fail(KindInvalidValue, "", errors.New("rule has no target table"))
	}
	var rec domain.Record
	if v.IsRecord() {
		rec = v.Record()
	} else {
		if len(rule.TargetColumns) != 1 {
			return fail(KindShapeMismatch, "", fmt.Errorf("scalar result cannot fill %d target columns", len(rule.TargetColumns)))
		}
		rec = domain.Record{rule.TargetColumns[0]: v.Scalar()}
	}

	out := make(domain.Record, len(rule.TargetColumns))
	for _, name := range rule.TargetColumns {
		col, ok := rule.Table.Column(name)
		if !ok {
			return fail(KindInvalidValue, name, fmt.Errorf("column is not defined by %s", rule.Table.Name))
		}
		val, err := col.Coerce(rec[name])
		if err != nil {
			return fail(KindInvalidValue, name, err)
		}
		if val != nil {
			out[name] = val
		}
	}
	for _, name := range rule.Table.Required() {
		if _, ok := out[name]; !ok {
			return fail(KindMissingRequiredColumn, name, fmt.Errorf("%s requires %s", rule.Table.Name, name))
		}
	}
	return domain.EnrichedRecord{Entity: rule.Entity, Table: rule.Table.Name, Attributes: out}, nil
}
