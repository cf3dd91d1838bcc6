package entitymodel

// Warehouse table names.
const (
	TableTaxa            = "Taxa"
	TableGenes           = "Genes"
	TableStimuli         = "Stimuli"
	TableMicrobes        = "Microbes"
	TableOntologyTerms   = "OntologyTerms"
	TableStudies         = "Studies"
	TableSamples         = "Samples"
	TableExpressionStats = "ExpressionStats"
	TableSampleMicrobe   = "SampleMicrobe"
	TableSampleStimulus  = "SampleStimulus"
	TableMicrobeStimulus = "MicrobeStimulus"
)

func req(name string, t ColumnType) Column { return Column{Name: name, Type: t} }
func opt(name string, t ColumnType) Column { return Column{Name: name, Type: t, Nullable: true} }

var defaultSchema = MustSchema(
	Table{
		Name: TableTaxa,
		Kind: KindDimension,
		Columns: []Column{
			req("taxon_id", TypeInteger),
			opt("kingdom", TypeText),
			opt("rank", TypeText),
			opt("gc_content_pct", TypeReal),
			opt("genome_length_bp", TypeInteger),
			opt("habitat", TypeText),
			opt("pathogenicity", TypeText),
		},
		NaturalKey: []string{"taxon_id"},
	},
	Table{
		Name: TableGenes,
		Kind: KindDimension,
		Columns: []Column{
			req("gene_accession", TypeText),
			req("species_taxon_id", TypeInteger),
			opt("gene_name", TypeText),
			opt("gene_length_bp", TypeInteger),
			opt("gc_content_pct", TypeReal),
			opt("go_terms", TypeText),
			opt("pathway_iris", TypeText),
		},
		NaturalKey: []string{"gene_accession", "species_taxon_id"},
		ForeignKeys: []ForeignKey{
			{Name: "species_key", Columns: []string{"species_taxon_id"}, RefTable: TableTaxa, OnDelete: Restrict},
		},
	},
	Table{
		Name: TableStimuli,
		Kind: KindDimension,
		Columns: []Column{
			req("iri", TypeText),
			opt("label", TypeText),
			opt("class_hint", TypeText),
			opt("chemical_formula", TypeText),
			opt("smiles", TypeText),
			opt("molecular_weight", TypeReal),
			opt("default_dose", TypeReal),
			opt("dose_unit", TypeText),
		},
		NaturalKey: []string{"iri"},
	},
	Table{
		Name: TableMicrobes,
		Kind: KindDimension,
		Columns: []Column{
			req("taxon_id", TypeInteger),
			opt("species_name", TypeText),
			opt("strain_name", TypeText),
			opt("genome_size_bp", TypeInteger),
			opt("gc_content_pct", TypeReal),
			opt("oxygen_requirement", TypeText),
		},
		NaturalKey: []string{"taxon_id"},
		ForeignKeys: []ForeignKey{
			{Name: "taxon_key", Columns: []string{"taxon_id"}, RefTable: TableTaxa, OnDelete: Restrict},
		},
	},
	Table{
		Name: TableOntologyTerms,
		Kind: KindDimension,
		Columns: []Column{
			req("iri", TypeText),
			opt("label", TypeText),
			opt("ontology", TypeText),
			opt("definition", TypeText),
			opt("synonyms", TypeText),
			opt("version", TypeText),
		},
		NaturalKey: []string{"iri"},
	},
	Table{
		Name: TableStudies,
		Kind: KindDimension,
		Columns: []Column{
			req("study_id", TypeText),
			opt("title", TypeText),
			opt("source_repo", TypeText),
			opt("publication_date", TypeText),
			opt("study_type", TypeText),
			opt("num_samples", TypeInteger),
			opt("contact_email", TypeText),
		},
		NaturalKey: []string{"study_id"},
	},
	Table{
		Name: TableSamples,
		Kind: KindDimension,
		Columns: []Column{
			req("sample_id", TypeText),
			req("study_id", TypeText),
			req("cell_type_iri", TypeText),
			req("tissue_iri", TypeText),
			req("organism_taxon_id", TypeInteger),
			opt("growth_condition", TypeText),
			opt("zarr_uri", TypeText),
			opt("collection_date", TypeText),
			opt("donor_age_years", TypeReal),
			opt("replicate_number", TypeInteger),
			opt("viability_pct", TypeReal),
			opt("rin_score", TypeReal),
		},
		NaturalKey: []string{"sample_id"},
		ForeignKeys: []ForeignKey{
			{Name: "study_key", Columns: []string{"study_id"}, RefTable: TableStudies, OnDelete: Restrict},
			{Name: "cell_type_key", Columns: []string{"cell_type_iri"}, RefTable: TableOntologyTerms, OnDelete: Restrict},
			{Name: "tissue_key", Columns: []string{"tissue_iri"}, RefTable: TableOntologyTerms, OnDelete: Restrict},
			{Name: "organism_key", Columns: []string{"organism_taxon_id"}, RefTable: TableTaxa, OnDelete: Restrict},
		},
	},
	Table{
		Name: TableExpressionStats,
		Kind: KindFact,
		Columns: []Column{
			req("sample_id", TypeText),
			req("gene_accession", TypeText),
			req("species_taxon_id", TypeInteger),
			opt("log2_fc", TypeReal),
			opt("p_value", TypeReal),
			opt("base_mean", TypeReal),
			opt("raw_count", TypeInteger),
			opt("significance", TypeText),
		},
		ForeignKeys: []ForeignKey{
			{Name: "sample_key", Columns: []string{"sample_id"}, RefTable: TableSamples, OnDelete: Cascade},
			{Name: "gene_key", Columns: []string{"gene_accession", "species_taxon_id"}, RefTable: TableGenes, OnDelete: Restrict},
		},
	},
	Table{
		Name: TableSampleMicrobe,
		Kind: KindLink,
		Columns: []Column{
			req("sample_id", TypeText),
			req("microbe_taxon_id", TypeInteger),
			opt("rel_abundance", TypeReal),
			opt("evidence", TypeText),
		},
		ForeignKeys: []ForeignKey{
			{Name: "sample_key", Columns: []string{"sample_id"}, RefTable: TableSamples, OnDelete: Cascade},
			{Name: "microbe_key", Columns: []string{"microbe_taxon_id"}, RefTable: TableMicrobes, OnDelete: Cascade},
		},
	},
	Table{
		Name: TableSampleStimulus,
		Kind: KindLink,
		Columns: []Column{
			req("sample_id", TypeText),
			req("stimulus_iri", TypeText),
			opt("exposure_time_hr", TypeReal),
			opt("response_marker", TypeText),
		},
		ForeignKeys: []ForeignKey{
			{Name: "sample_key", Columns: []string{"sample_id"}, RefTable: TableSamples, OnDelete: Cascade},
			{Name: "stimulus_key", Columns: []string{"stimulus_iri"}, RefTable: TableStimuli, OnDelete: Cascade},
		},
	},
	Table{
		Name: TableMicrobeStimulus,
		Kind: KindLink,
		Columns: []Column{
			req("microbe_taxon_id", TypeInteger),
			req("stimulus_iri", TypeText),
			opt("interaction_score", TypeReal),
			opt("evidence", TypeText),
		},
		ForeignKeys: []ForeignKey{
			{Name: "microbe_key", Columns: []string{"microbe_taxon_id"}, RefTable: TableMicrobes, OnDelete: Cascade},
			{Name: "stimulus_key", Columns: []string{"stimulus_iri"}, RefTable: TableStimuli, OnDelete: Cascade},
		},
	},
)

// Default returns the warehouse schema. The value is shared and must not be mutated.
func Default() *Schema { return defaultSchema }
