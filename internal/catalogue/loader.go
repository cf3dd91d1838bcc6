package catalogue

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"harmonycore/internal/entitymodel"
)

// TransformSet is the closed registry of transform names a catalogue may use.
type TransformSet interface {
	Has(name string) bool
}

// Load reads, decodes and validates the catalogue at path.
func Load(path string, schema *entitymodel.Schema, transforms TransformSet) (*RuleSet, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	return Compile(doc, schema, transforms)
}

// Parse decodes and validates catalogue bytes.
func Parse(data []byte, format Format, schema *entitymodel.Schema, transforms TransformSet) (*RuleSet, error) {
	doc, err := DecodeDocument(data, format, "")
	if err != nil {
		return nil, err
	}
	return Compile(doc, schema, transforms)
}

// Compile validates a decoded document. Every problem is reported; any
// problem rejects the whole catalogue.
func Compile(doc *Document, schema *entitymodel.Schema, transforms TransformSet) (*RuleSet, error) {
	if schema == nil {
		return nil, errors.New("catalogue: schema is required")
	}
	if transforms == nil {
		return nil, errors.New("catalogue: transform registry is required")
	}
	var errs []error
	add := func(kind ErrorKind, i int, entity, format string, args ...any) {
		errs = append(errs, &CatalogueError{Kind: kind, Index: i, Entity: entity, Message: fmt.Sprintf(format, args...)})
	}

	if len(doc.Rules) == 0 {
		add(KindMalformed, -1, "", "no rules declared")
	}

	set := &RuleSet{
		version: doc.Version,
		actor:   doc.Actor,
		schema:  schema,
		byName:  make(map[string]int, len(doc.Rules)),
	}
	for i, rd := range doc.Rules {
		rule := Rule{Entity: rd.Entity, Index: i}
		if rd.Entity == "" {
			add(KindMalformed, i, "", "entity name is empty")
		} else if _, dup := set.byName[rd.Entity]; dup {
			add(KindDuplicateEntity, i, rd.Entity, "entity declared more than once")
		}

		if strings.TrimSpace(rd.Pattern) == "" {
			add(KindMalformedPattern, i, rd.Entity, "pattern is empty")
		} else if re, err := regexp.Compile(rd.Pattern); err != nil {
			add(KindMalformedPattern, i, rd.Entity, "pattern: %v", err)
		} else {
			rule.Pattern = re
		}
		if rd.KeyPattern != "" {
			if re, err := regexp.Compile(rd.KeyPattern); err != nil {
				add(KindMalformedPattern, i, rd.Entity, "key_pattern: %v", err)
			} else {
				rule.KeyPattern = re
			}
		}

		for _, name := range rd.Transforms {
			if !transforms.Has(name) {
				add(KindUnknownTransform, i, rd.Entity, "transform %q is not registered", name)
			}
		}
		rule.Transforms = append([]string(nil), rd.Transforms...)

		table, ok := schema.Table(rd.TargetTable)
		if !ok {
			add(KindUnknownTable, i, rd.Entity, "table %q is not part of the schema", rd.TargetTable)
		}
		rule.Table = table

		if len(rd.TargetColumns) == 0 {
			add(KindMissingColumns, i, rd.Entity, "target_columns is empty")
		}
		seen := make(map[string]struct{}, len(rd.TargetColumns))
		for _, col := range rd.TargetColumns {
			if _, dup := seen[col]; dup {
				add(KindDuplicateColumn, i, rd.Entity, "column %q listed twice", col)
				continue
			}
			seen[col] = struct{}{}
			if table != nil {
				if _, ok := table.Column(col); !ok {
					add(KindUnknownColumn, i, rd.Entity, "column %q is not defined by %s", col, table.Name)
				}
			}
		}
		rule.TargetColumns = append([]string(nil), rd.TargetColumns...)

		if rd.Entity != "" {
			if _, dup := set.byName[rd.Entity]; !dup {
				set.byName[rd.Entity] = i
			}
		}
		set.rules = append(set.rules, rule)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}
