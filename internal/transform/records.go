package transform

import (
	"fmt"
	"strconv"
	"strings"

	"harmonycore/pkg/domain"
)

// Evidence values accepted on link rows.
var evidenceValues = map[string]struct{}{
	"mgnify":     {},
	"literature": {},
	"inferred":   {},
}

// defaultSpeciesTaxonID is used for expression rows that do not name a species.
const defaultSpeciesTaxonID int64 = 9606

func splitFields(s string, lo, hi int) ([]string, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < lo || len(parts) > hi {
		if lo == hi {
			return nil, fmt.Errorf("expected %d comma-separated fields, got %d", lo, len(parts))
		}
		return nil, fmt.Errorf("expected %d to %d comma-separated fields, got %d", lo, hi, len(parts))
	}
	return parts, nil
}

func optionalFloat(name, s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%s %q is not a number", name, s)
	}
	return f, nil
}

func optionalInt(name, s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s %q is not an integer", name, s)
	}
	return n, nil
}

func evidence(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	e := strings.ToLower(s)
	if _, ok := evidenceValues[e]; !ok {
		return nil, fmt.Errorf("unknown evidence %q", s)
	}
	return e, nil
}

func strictSampleID(s string) (string, error) {
	if len(s) != 12 || sampleIDPattern.FindString(s) != s {
		return "", fmt.Errorf("malformed sample id %q", s)
	}
	return s, nil
}

// ParseSampleMicrobe parses "tag,sample_id,taxon,rel_abundance,evidence".
func ParseSampleMicrobe(s string) (domain.Record, error) {
	p, err := splitFields(s, 5, 5)
	if err != nil {
		return nil, err
	}
	sample, err := strictSampleID(p[1])
	if err != nil {
		return nil, err
	}
	taxon, err := TaxonID(p[2])
	if err != nil {
		return nil, err
	}
	abundance, err := optionalFloat("rel_abundance", p[3])
	if err != nil {
		return nil, err
	}
	ev, err := evidence(p[4])
	if err != nil {
		return nil, err
	}
	return domain.Record{
		"sample_id":        sample,
		"microbe_taxon_id": taxon,
		"rel_abundance":    abundance,
		"evidence":         ev,
	}, nil
}

// ParseSampleStimulus parses "tag,sample_id,stimulus,exposure_time_hr,response_marker".
func ParseSampleStimulus(s string) (domain.Record, error) {
	p, err := splitFields(s, 5, 5)
	if err != nil {
		return nil, err
	}
	sample, err := strictSampleID(p[1])
	if err != nil {
		return nil, err
	}
	if p[2] == "" {
		return nil, fmt.Errorf("stimulus identifier is empty")
	}
	exposure, err := optionalFloat("exposure_time_hr", p[3])
	if err != nil {
		return nil, err
	}
	rec := domain.Record{
		"sample_id":        sample,
		"stimulus_iri":     CanonicalIRI(p[2]),
		"exposure_time_hr": exposure,
	}
	if p[4] != "" {
		rec["response_marker"] = p[4]
	}
	return rec, nil
}

// ParseMicrobeStimulus parses "taxon,stimulus,interaction_score,evidence".
func ParseMicrobeStimulus(s string) (domain.Record, error) {
	p, err := splitFields(s, 4, 4)
	if err != nil {
		return nil, err
	}
	taxon, err := TaxonID(p[0])
	if err != nil {
		return nil, err
	}
	if p[1] == "" {
		return nil, fmt.Errorf("stimulus identifier is empty")
	}
	score, err := optionalFloat("interaction_score", p[2])
	if err != nil {
		return nil, err
	}
	ev, err := evidence(p[3])
	if err != nil {
		return nil, err
	}
	return domain.Record{
		"microbe_taxon_id":  taxon,
		"stimulus_iri":      CanonicalIRI(p[1]),
		"interaction_score": score,
		"evidence":          ev,
	}, nil
}

// ParseExpressionStat parses
// "prefix:sample_id,gene,log2_fc,p_value,base_mean,raw_count,significance[,species]".
func ParseExpressionStat(s string) (domain.Record, error) {
	p, err := splitFields(s, 7, 8)
	if err != nil {
		return nil, err
	}
	head := p[0]
	if i := strings.IndexByte(head, ':'); i >= 0 {
		head = head[i+1:]
	}
	sample, err := strictSampleID(head)
	if err != nil {
		return nil, err
	}
	gene := StripVersion(p[1])
	if gene == "" {
		return nil, fmt.Errorf("gene accession is empty")
	}
	rec := domain.Record{
		"sample_id":        sample,
		"gene_accession":   gene,
		"species_taxon_id": defaultSpeciesTaxonID,
	}
	floats := []struct{ col, raw string }{{"log2_fc", p[2]}, {"p_value", p[3]}, {"base_mean", p[4]}}
	for _, f := range floats {
		v, err := optionalFloat(f.col, f.raw)
		if err != nil {
			return nil, err
		}
		rec[f.col] = v
	}
	count, err := optionalInt("raw_count", p[5])
	if err != nil {
		return nil, err
	}
	rec["raw_count"] = count
	if p[6] != "" {
		rec["significance"] = p[6]
	}
	if len(p) == 8 && p[7] != "" {
		species, err := TaxonID(p[7])
		if err != nil {
			return nil, err
		}
		rec["species_taxon_id"] = species
	}
	return rec, nil
}
