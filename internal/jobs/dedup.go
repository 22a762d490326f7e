package jobs

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/prospect-cli/internal/model"
)

// companyColumns are the source row headers that may hold a company name,
// in order of preference.
var companyColumns = []string{"company_name", "companyname", "company name", "company", "business_name", "business name", "business", "name"}

// DedupIndex is a set of normalized company names. It is built once per job
// and only read afterwards.
type DedupIndex struct {
	names map[string]struct{}
}

// NewDedupIndex indexes the given names. Blank names are ignored.
func NewDedupIndex(names []string) *DedupIndex {
	idx := &DedupIndex{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if key := NormalizeName(n); key != "" {
			idx.names[key] = struct{}{}
		}
	}
	return idx
}

// Contains reports whether name matches an indexed name after
// normalization.
func (d *DedupIndex) Contains(name string) bool {
	_, ok := d.names[NormalizeName(name)]
	return ok
}

// Len returns the number of distinct names.
func (d *DedupIndex) Len() int {
	return len(d.names)
}

// NormalizeName case-folds and trims a company name and collapses inner
// whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(cases.Fold().String(name)), " ")
}

// RowCompanyName returns the company name column of a source row.
func RowCompanyName(row model.SourceRow) string {
	lower := make(map[string]string, len(row))
	for k, v := range row {
		lower[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for _, col := range companyColumns {
		if v := strings.TrimSpace(lower[col]); v != "" {
			return v
		}
	}
	return ""
}
