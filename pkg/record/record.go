// Package record defines the projection of bioactivity records that is
// persisted, and the shaping of loosely typed API records into rows.
package record

import (
	"encoding/json"
	"strconv"
)

// TableName is the default target table.
const TableName = "bioactivities"

// Fields is the ordered projection persisted for every record. The order is
// the column order used by the loader.
var Fields = []string{
	"compound_name",
	"pubmed_id",
	"authors",
	"target_organism",
	"target_pref_name",
	"gene_name",
	"resource_uri",
}

// UniqueColumns is the natural key of a record.
var UniqueColumns = []string{"resource_uri"}

// Row is one shaped record, positionally aligned with the requested fields.
type Row []any

// Shape projects rec onto fields. Missing keys yield nil in their position;
// the result always has len(fields) entries.
func Shape(rec map[string]any, fields []string) Row {
	row := make(Row, len(fields))
	for i, field := range fields {
		v, ok := rec[field]
		if !ok {
			continue
		}
		row[i] = normalize(v)
	}
	return row
}

// ShapeAll shapes every record of a page.
func ShapeAll(recs []map[string]any, fields []string) []Row {
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, Shape(rec, fields))
	}
	return rows
}

// normalize turns json.Number into int64 when integral, float64 otherwise,
// so database drivers receive native values.
func normalize(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return string(n)
}

// Bioactivity is the persisted table layout. It is used to create the
// table in tests and documents the schema the loader writes into.
type Bioactivity struct {
	ID             uint    `gorm:"primaryKey"`
	CompoundName   *string `gorm:"column:compound_name"`
	PubmedID       *int64  `gorm:"column:pubmed_id"`
	Authors        *string `gorm:"column:authors"`
	TargetOrganism *string `gorm:"column:target_organism"`
	TargetPrefName *string `gorm:"column:target_pref_name"`
	GeneName       *string `gorm:"column:gene_name"`
	ResourceURI    string  `gorm:"column:resource_uri;uniqueIndex;not null"`
}

// TableName implements gorm's tabler interface.
func (Bioactivity) TableName() string {
	return TableName
}
