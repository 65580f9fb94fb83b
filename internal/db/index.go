package db

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidIndex is returned by Build for a malformed definition.
var ErrInvalidIndex = errors.New("db: invalid index definition")

// DistanceMetric used by FT.SEARCH vector similarity queries.
type DistanceMetric string

// DistanceCosine is the only metric SearchKNN converts back to a similarity.
const DistanceCosine DistanceMetric = "COSINE"

// HNSWParams tunes the HNSW graph. Zero fields use the server defaults.
type HNSWParams struct {
	M           int // max edges per node
	EFConstruct int // build-time candidate list size
}

// VectorField is the FLOAT32 HNSW vector attribute of an index.
type VectorField struct {
	Name     string
	Dim      int
	Distance DistanceMetric
	HNSW     HNSWParams
}

// IndexDefinition is a HASH-backed FT index: TAG attributes plus at most one vector.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Tags     []string
	Vector   *VectorField
}

// IndexBuilder is a fluent builder for IndexDefinition.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts building an index definition.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name}}
}

// Prefix adds key prefixes to the index.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

// Tag adds a TAG attribute.
func (b *IndexBuilder) Tag(name string) *IndexBuilder {
	b.def.Tags = append(b.def.Tags, name)
	return b
}

// Vector sets the cosine HNSW vector attribute.
func (b *IndexBuilder) Vector(name string, dim int, hnsw HNSWParams) *IndexBuilder {
	b.def.Vector = &VectorField{Name: name, Dim: dim, Distance: DistanceCosine, HNSW: hnsw}
	return b
}

// Build validates and returns a copy of the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	def := b.def
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks that the definition can be sent to FT.CREATE.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidIndex)
	}
	if !IsValidIdentifier(idx.Name) {
		return fmt.Errorf("%w: name %q contains invalid characters", ErrInvalidIndex, idx.Name)
	}
	if len(idx.Tags) == 0 && idx.Vector == nil {
		return fmt.Errorf("%w: at least one attribute is required", ErrInvalidIndex)
	}

	seen := make(map[string]bool, len(idx.Tags)+1)
	for _, name := range idx.attributeNames() {
		if name == "" {
			return fmt.Errorf("%w: attribute name is required", ErrInvalidIndex)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate attribute %q", ErrInvalidIndex, name)
		}
		seen[name] = true
	}

	if v := idx.Vector; v != nil {
		if v.Dim <= 0 {
			return fmt.Errorf("%w: vector %q needs a positive dimension, got %d", ErrInvalidIndex, v.Name, v.Dim)
		}
		if v.Distance != DistanceCosine {
			return fmt.Errorf("%w: unsupported distance %q", ErrInvalidIndex, v.Distance)
		}
		if v.HNSW.M < 0 || v.HNSW.EFConstruct < 0 {
			return fmt.Errorf("%w: negative HNSW parameters", ErrInvalidIndex)
		}
	}
	return nil
}

func (idx *IndexDefinition) attributeNames() []string {
	names := append([]string(nil), idx.Tags...)
	if idx.Vector != nil {
		names = append(names, idx.Vector.Name)
	}
	return names
}

// String renders a short FT.CREATE summary for logs.
func (idx *IndexDefinition) String() string {
	var b strings.Builder
	b.WriteString("FT.CREATE " + idx.Name + " ON HASH")
	if len(idx.Prefixes) > 0 {
		b.WriteString(" PREFIX " + strings.Join(idx.Prefixes, ","))
	}
	b.WriteString(" SCHEMA")
	for _, t := range idx.Tags {
		b.WriteString(" " + t + " TAG")
	}
	if v := idx.Vector; v != nil {
		b.WriteString(" " + v.Name + " VECTOR HNSW DIM " + strconv.Itoa(v.Dim))
	}
	return b.String()
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
