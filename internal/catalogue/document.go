package catalogue

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Format identifies the catalogue document syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// Document is the declarative catalogue as written by authors.
type Document struct {
	Version string         `yaml:"version" json:"version,omitempty"`
	Actor   string         `yaml:"actor" json:"actor,omitempty"`
	Rules   []RuleDocument `yaml:"rules" json:"rules"`
}

// RuleDocument is one mapping rule before validation.
type RuleDocument struct {
	Entity        string   `yaml:"entity" json:"entity"`
	Pattern       string   `yaml:"pattern" json:"pattern"`
	KeyPattern    string   `yaml:"key_pattern" json:"key_pattern,omitempty"`
	Transforms    []string `yaml:"transforms" json:"transforms,omitempty"`
	TargetTable   string   `yaml:"target_table" json:"target_table"`
	TargetColumns []string `yaml:"target_columns" json:"target_columns"`
}

// FormatFor picks the document format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported catalogue extension %q", filepath.Ext(path))
	}
}

// ReadDocument reads and decodes a catalogue file without validating it.
func ReadDocument(path string) (*Document, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, &CatalogueError{Kind: KindMalformed, Index: -1, Message: err.Error(), Err: err}
	}
	// #nosec G304 -- catalogue path is supplied by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue %s: %w", path, err)
	}
	return DecodeDocument(data, format, path)
}

// DecodeDocument decodes catalogue bytes in the given format. name is used
// in CUE positions and may be empty.
func DecodeDocument(data []byte, format Format, name string) (*Document, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &CatalogueError{Kind: KindMalformed, Index: -1, Message: err.Error(), Err: err}
		}
	case FormatCUE:
		if name == "" {
			name = "catalogue.cue"
		}
		v := cuecontext.New().CompileBytes(data, cue.Filename(name))
		if err := v.Err(); err != nil {
			return nil, &CatalogueError{Kind: KindMalformed, Index: -1, Message: err.Error(), Err: err}
		}
		if err := v.Decode(&doc); err != nil {
			return nil, &CatalogueError{Kind: KindMalformed, Index: -1, Message: err.Error(), Err: err}
		}
	default:
		err := fmt.Errorf("unknown format %q", format)
		return nil, &CatalogueError{Kind: KindMalformed, Index: -1, Message: err.Error(), Err: err}
	}
	applyDefaults(&doc)
	return &doc, nil
}

func applyDefaults(doc *Document) {
	if doc.Version == "" {
		doc.Version = "1"
	}
	for i := range doc.Rules {
		r := &doc.Rules[i]
		r.Entity = strings.TrimSpace(r.Entity)
		r.TargetTable = strings.TrimSpace(r.TargetTable)
		for j, c := range r.TargetColumns {
			r.TargetColumns[j] = strings.TrimSpace(c)
		}
		for j, s := range r.Transforms {
			r.Transforms[j] = strings.TrimSpace(s)
		}
	}
}
