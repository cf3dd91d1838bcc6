package transform

import (
	"fmt"
	"sort"
	"strings"

	"harmonycore/internal/enrich"
	"harmonycore/pkg/domain"
)

// StepKind distinguishes deterministic steps from external lookups.
type StepKind int

const (
	StepPure StepKind = iota
	StepEnriching
)

func (k StepKind) String() string {
	if k == StepEnriching {
		return "enriching"
	}
	return "pure"
}

// Transform is a named chain step. Pure steps implement Apply; enriching
// steps look up the identifier held in KeyColumn through their Family's
// provider. A Rewrite step returns the whole record in canonical form and
// its output replaces the input instead of being merged into it.
type Transform struct {
	Name      string
	Kind      StepKind
	Apply     func(Value) (Value, error)
	Family    enrich.Family
	KeyColumn string
	Rewrite   bool
}

// Registry is the closed set of transforms a catalogue may reference.
type Registry struct {
	steps map[string]Transform
}

// NewRegistry returns the built-in transforms.
func NewRegistry() *Registry {
	r := &Registry{steps: make(map[string]Transform)}
	for _, t := range builtins() {
		r.steps[t.Name] = t
	}
	return r
}

// With returns a copy of the registry extended by extra transforms, which
// replace built-ins of the same name.
func (r *Registry) With(extra ...Transform) *Registry {
	out := &Registry{steps: make(map[string]Transform, len(r.steps)+len(extra))}
	for name, t := range r.steps {
		out.steps[name] = t
	}
	for _, t := range extra {
		out.steps[t.Name] = t
	}
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.steps[name]
	return ok
}

// Get returns the named transform.
func (r *Registry) Get(name string) (Transform, bool) {
	t, ok := r.steps[name]
	return t, ok
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func scalarString(v Value) (string, error) {
	if v.IsRecord() {
		return "", errShape
	}
	switch s := v.Scalar().(type) {
	case nil:
		return "", fmt.Errorf("value is empty")
	case string:
		return s, nil
	default:
		return fmt.Sprint(s), nil
	}
}

// pure lifts a string function into a scalar step.
func pure(name string, fn func(string) (any, error)) Transform {
	return Transform{
		Name: name,
		Kind: StepPure,
		Apply: func(v Value) (Value, error) {
			s, err := scalarString(v)
			if err != nil {
				return Value{}, err
			}
			out, err := fn(s)
			if err != nil {
				return Value{}, err
			}
			return Scalar(out), nil
		},
	}
}

// parser lifts a record parser into a scalar-to-record step.
func parser(name string, fn func(string) (domain.Record, error)) Transform {
	return Transform{
		Name: name,
		Kind: StepPure,
		Apply: func(v Value) (Value, error) {
			s, err := scalarString(v)
			if err != nil {
				return Value{}, err
			}
			rec, err := fn(s)
			if err != nil {
				return Value{}, err
			}
			return RecordValue(rec), nil
		},
	}
}

// IRISuffix marks record fields holding ontology IRIs.
const IRISuffix = "_iri"

// CanonicalIRIColumns expands CURIE values of every *_iri field of rec, so
// references agree with the keys the ontology rules store.
func CanonicalIRIColumns(rec domain.Record) domain.Record {
	out := rec.Clone()
	for k, v := range out {
		if s, ok := v.(string); ok && strings.HasSuffix(k, IRISuffix) {
			out[k] = CanonicalIRI(s)
		}
	}
	return out
}

func rewrite(name string, fn func(domain.Record) domain.Record) Transform {
	return Transform{
		Name:    name,
		Kind:    StepPure,
		Rewrite: true,
		Apply: func(v Value) (Value, error) {
			if !v.IsRecord() {
				return Value{}, errNeedsRecord
			}
			return RecordValue(fn(v.Record())), nil
		},
	}
}

func enriching(name string, family enrich.Family, keyColumn string) Transform {
	return Transform{Name: name, Kind: StepEnriching, Family: family, KeyColumn: keyColumn}
}

func builtins() []Transform {
	canonical := func(s string) (any, error) { return CanonicalIRI(s), nil }
	return []Transform{
		pure("strip_version", func(s string) (any, error) { return StripVersion(s), nil }),
		pure("canonical_iri", canonical),
		pure("curie_to_iri", canonical),
		pure("normalize_study_accession", func(s string) (any, error) { return NormalizeStudyAccession(s), nil }),
		pure("extract_sample_id", func(s string) (any, error) { return ExtractSampleID(s) }),
		pure("lowercase_ascii", func(s string) (any, error) {
			out, ok := LowercaseASCII(s)
			if !ok {
				return nil, nil
			}
			return out, nil
		}),
		pure("split_commas", func(s string) (any, error) {
			parts := SplitCommas(s)
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out, nil
		}),
		pure("taxon_id", func(s string) (any, error) { return TaxonID(s) }),
		parser("parse_sample_microbe", ParseSampleMicrobe),
		parser("parse_sample_stimulus", ParseSampleStimulus),
		parser("parse_microbe_stimulus", ParseMicrobeStimulus),
		parser("parse_expression_stat", ParseExpressionStat),
		rewrite("canonical_iri_columns", CanonicalIRIColumns),
		enriching("fetch_gene_metadata", enrich.FamilyGene, "gene_accession"),
		enriching("fetch_taxon_metadata", enrich.FamilyTaxon, "taxon_id"),
		enriching("fetch_microbe_metadata", enrich.FamilyTaxon, "taxon_id"),
		enriching("fetch_ontology_term", enrich.FamilyOntology, "iri"),
		enriching("fetch_stimulus_metadata", enrich.FamilyOntology, "iri"),
		enriching("fetch_study_metadata", enrich.FamilyStudy, "study_id"),
		enriching("fetch_sample_metadata", enrich.FamilySample, "sample_id"),
	}
}
