// Package catalog reads the live PostgreSQL catalog and produces table
// descriptors for the sampling engine, grounded on the per-concern
// build* split pgschema's ir.Builder uses (buildTables, buildColumns,
// buildConstraints, ...).
package catalog

// TableKind classifies how a relation behaves for sampling purposes.
type TableKind string

const (
	KindOrdinary    TableKind = "ordinary"
	KindPartitioned TableKind = "partitioned"
	KindForeign     TableKind = "foreign"
	KindTemporary   TableKind = "temporary"
)

// IdentityKind marks a column's identity generation mode.
type IdentityKind string

const (
	IdentityNone      IdentityKind = ""
	IdentityAlways    IdentityKind = "always"
	IdentityByDefault IdentityKind = "by_default"
)

// Column describes one column of a table.
type Column struct {
	Name         string
	DataType     string
	NotNull      bool
	Default      string // empty when no default
	HasDefault   bool
	Ordinal      int
	Identity     IdentityKind
	OwnedSeq     string // qualified name of the identity or serial column's sequence, empty otherwise
}

// ForeignKey describes one FK constraint.
type ForeignKey struct {
	ConstraintName string
	OwnerSchema    string
	OwnerTable     string
	LocalColumns   []string
	RefSchema      string
	RefTable       string
	RefColumns     []string
	OnDelete       string
	OnUpdate       string
}

// Qualified returns "schema.table" for the owning side of the FK.
func (f ForeignKey) Qualified() string { return f.OwnerSchema + "." + f.OwnerTable }

// RefQualified returns "schema.table" for the referenced side.
func (f ForeignKey) RefQualified() string { return f.RefSchema + "." + f.RefTable }

// Constraint is a UNIQUE or CHECK constraint.
type Constraint struct {
	Name    string
	Kind    string // "unique" or "check"
	Columns []string
	Def     string // server-generated definition text, set for check constraints
}

// Index describes a secondary index (the PK's own index is excluded).
type Index struct {
	Name    string
	Def     string
	Unique  bool
	Columns []string
}

// Trigger describes a trigger attached to a table.
type Trigger struct {
	Name string
	Def  string
}

// Table is the full descriptor for one relation under sample.
type Table struct {
	Schema      string
	Name        string
	Kind        TableKind
	Columns     []Column
	PrimaryKey  []string // ordered column names, empty when the table has no PK
	ForeignKeys []ForeignKey
	Uniques     []Constraint
	Checks      []Constraint
	Indexes     []Index
	Triggers    []Trigger
}

// QualifiedName returns "schema.name".
func (t Table) QualifiedName() string { return t.Schema + "." + t.Name }

// HasPK reports whether the table declares a primary key.
func (t Table) HasPK() bool { return len(t.PrimaryKey) > 0 }

// ColumnNames returns the table's columns in ordinal order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Sequence describes a standalone or owned sequence.
type Sequence struct {
	Schema       string
	Name         string
	DataType     string
	OwnedBy      string // "schema.table.column", empty if not owned
	StartValue   int64
	Increment    int64
	CurrentValue int64 // server-side last_value; equals StartValue if never advanced
}

func (s Sequence) QualifiedName() string { return s.Schema + "." + s.Name }

// TypeKind classifies a user-defined type.
type TypeKind string

const (
	TypeEnum      TypeKind = "enum"
	TypeComposite TypeKind = "composite"
	TypeDomain    TypeKind = "domain"
)

// Type describes an enum, composite, or domain type.
type Type struct {
	Schema string
	Name   string
	Kind   TypeKind
	// EnumLabels is populated for TypeEnum, in declaration order.
	EnumLabels []string
	// CompositeFields is populated for TypeComposite.
	CompositeFields []Column
	// DomainBase and DomainCheck are populated for TypeDomain.
	DomainBase  string
	DomainCheck string
}

func (t Type) QualifiedName() string { return t.Schema + "." + t.Name }

// View describes a view or materialized view.
type View struct {
	Schema       string
	Name         string
	Definition   string
	Materialized bool
}

func (v View) QualifiedName() string { return v.Schema + "." + v.Name }

// Extension describes an installed extension.
type Extension struct {
	Name    string
	Schema  string
	Version string
}

// Objects holds catalog entities that live outside the table graph proper.
type Objects struct {
	Types      []Type
	Sequences  []Sequence
	Views      []View
	MatViews   []View
	Extensions []Extension
}
