package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	xtransform "golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// curieBases maps ontology prefixes to IRI bases.
var curieBases = map[string]string{
	"CHEBI":     "http://purl.obolibrary.org/obo/CHEBI_",
	"EFO":       "http://www.ebi.ac.uk/efo/EFO_",
	"NCBITaxon": "http://purl.obolibrary.org/obo/NCBITaxon_",
	"CL":        "http://purl.obolibrary.org/obo/CL_",
	"UBERON":    "http://purl.obolibrary.org/obo/UBERON_",
	"PATO":      "http://purl.obolibrary.org/obo/PATO_",
	"HANCESTRO": "http://purl.obolibrary.org/obo/HANCESTRO_",
	"MONDO":     "http://purl.obolibrary.org/obo/MONDO_",
	"HsapDv":    "http://purl.obolibrary.org/obo/HsapDv_",
}

var (
	sampleIDPattern = regexp.MustCompile(`SAMP[A-Z0-9]{8}`)
	taxonPattern    = regexp.MustCompile(`^(?:(?:https?://purl\.obolibrary\.org/obo/)?NCBITaxon[:_])?(\d+)$`)
	spacePattern    = regexp.MustCompile(`\s+`)
)

// StripVersion drops an Ensembl-style ".N" version suffix.
func StripVersion(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

// CanonicalIRI expands a known CURIE ("CL:0000057" or "CL_0000057") to its
// IRI. IRIs and unknown values are returned unchanged.
func CanonicalIRI(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	i := strings.IndexAny(s, ":_")
	if i <= 0 {
		return s
	}
	base, ok := curieBases[s[:i]]
	if !ok {
		return s
	}
	return base + s[i+1:]
}

// NormalizeStudyAccession trims and upper-cases a study accession.
func NormalizeStudyAccession(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ExtractSampleID returns the first SAMP identifier in s.
func ExtractSampleID(s string) (string, error) {
	id := sampleIDPattern.FindString(s)
	if id == "" {
		return "", fmt.Errorf("malformed sample id %q", s)
	}
	return id, nil
}

// TaxonID parses an NCBITaxon CURIE, IRI or bare number into a taxon id.
func TaxonID(s string) (int64, error) {
	m := taxonPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("malformed taxon identifier %q", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed taxon identifier %q: %w", s, err)
	}
	return n, nil
}

var greekNames = strings.NewReplacer(
	"α", "alpha", "β", "beta", "γ", "gamma", "δ", "delta", "ε", "epsilon", "ζ", "zeta",
	"η", "eta", "θ", "theta", "ι", "iota", "κ", "kappa", "λ", "lambda", "μ", "mu",
	"ν", "nu", "ξ", "xi", "ο", "omicron", "π", "pi", "ρ", "rho", "σ", "sigma", "ς", "sigma",
	"τ", "tau", "υ", "upsilon", "φ", "phi", "χ", "chi", "ψ", "psi", "ω", "omega",
	"Α", "alpha", "Β", "beta", "Γ", "gamma", "Δ", "delta", "Ε", "epsilon", "Ζ", "zeta",
	"Η", "eta", "Θ", "theta", "Ι", "iota", "Κ", "kappa", "Λ", "lambda", "Μ", "mu",
	"Ν", "nu", "Ξ", "xi", "Ο", "omicron", "Π", "pi", "Ρ", "rho", "Σ", "sigma",
	"Τ", "tau", "Υ", "upsilon", "Φ", "phi", "Χ", "chi", "Ψ", "psi", "Ω", "omega",
)

var asciiPunct = strings.NewReplacer(
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "−", "-",
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "«", `"`, "»", `"`,
	"‘", "'", "’", "'", "‚", "'", "‹", "'", "›", "'",
	"×", "x", "·", ".", "±", "+/-", "µ", "u", "°", "deg", "\u00a0", " ",
)

// LowercaseASCII folds free text to lower-case ASCII: punctuation is mapped,
// Greek letters are spelled out, accents are decomposed and dropped. Blank
// results return ok=false.
func LowercaseASCII(s string) (string, bool) {
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	s = greekNames.Replace(asciiPunct.Replace(s))
	s = spacePattern.ReplaceAllString(s, " ")
	t := xtransform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })))
	folded, _, err := xtransform.String(t, s)
	if err != nil {
		return "", false
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	if folded == "" {
		return "", false
	}
	return folded, true
}

// SplitCommas splits on commas, trimming tokens and dropping empty ones.
func SplitCommas(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
