// Package enrich defines the metadata lookup collaborators used by enriching
// transforms, and the in-process providers that back them.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"harmonycore/pkg/domain"
)

// Family names an entity family served by one provider.
type Family string

const (
	FamilyGene     Family = "gene"
	FamilyTaxon    Family = "taxon"
	FamilyOntology Family = "ontology"
	FamilyStudy    Family = "study"
	FamilySample   Family = "sample"
)

// Families lists every supported family.
func Families() []Family {
	return []Family{FamilyGene, FamilyTaxon, FamilyOntology, FamilyStudy, FamilySample}
}

var (
	// ErrNotFound marks a permanent lookup failure for an unknown identifier.
	ErrNotFound = errors.New("identifier not found")
	// ErrUnavailable marks a transient failure of the metadata source.
	ErrUnavailable = errors.New("metadata source unavailable")
)

// LookupError describes a failed lookup. Err wraps ErrNotFound or ErrUnavailable
// when the failure is classified.
type LookupError struct {
	Family Family
	ID     string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s lookup %q: %v", e.Family, e.ID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a permanent not-found failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnavailable reports whether err is a transient failure worth retrying.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

// Provider resolves an identifier to descriptive attributes.
type Provider interface {
	Lookup(ctx context.Context, id string) (domain.Record, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, id string) (domain.Record, error)

// Lookup calls f.
func (f ProviderFunc) Lookup(ctx context.Context, id string) (domain.Record, error) {
	return f(ctx, id)
}

// Directory maps entity families to providers.
type Directory map[Family]Provider

// Provider returns the provider registered for family.
func (d Directory) Provider(family Family) (Provider, error) {
	p, ok := d[family]
	if !ok || p == nil {
		return nil, fmt.Errorf("no %s provider configured", family)
	}
	return p, nil
}
