package ingest

import (
	"strings"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Field is a record field a spreadsheet column can map to.
type Field string

const (
	FieldCompanyName Field = "companyName"
	FieldEmail       Field = "email"
	FieldPhone       Field = "phone"
	FieldWebsite     Field = "website"
	FieldAddress     Field = "address"
	FieldCity        Field = "city"
	FieldState       Field = "state"
	FieldZip         Field = "zip"
	FieldIndustry    Field = "industry"
)

// aliases lists accepted header spellings per field, compared after
// lower-casing and stripping punctuation.
var aliases = map[Field][]string{
	FieldCompanyName: {"companyname", "company", "name", "business", "businessname", "organization", "organisation", "account", "accountname"},
	FieldEmail:       {"email", "emailaddress", "contactemail", "mail"},
	FieldPhone:       {"phone", "phonenumber", "telephone", "tel", "mobile", "contactphone"},
	FieldWebsite:     {"website", "url", "web", "domain", "site", "homepage"},
	FieldAddress:     {"address", "streetaddress", "address1", "addressline1", "street", "location", "fulladdress"},
	FieldCity:        {"city", "town"},
	FieldState:       {"state", "st", "province", "region"},
	FieldZip:         {"zip", "zipcode", "postalcode", "postcode"},
	FieldIndustry:    {"industry", "category", "sector", "type", "businesstype", "vertical"},
}

// Mapping maps a header to the field it feeds.
type Mapping map[string]Field

// MapHeaders matches headers against the known aliases. The first header
// matching a field wins; unmatched headers are left out.
func MapHeaders(headers []string) Mapping {
	lookup := make(map[string]Field)
	for f, names := range aliases {
		for _, n := range names {
			lookup[n] = f
		}
	}

	m := make(Mapping)
	taken := make(map[Field]bool)
	for _, h := range headers {
		f, ok := lookup[normalizeHeader(h)]
		if !ok || taken[f] {
			continue
		}
		m[h] = f
		taken[f] = true
	}
	return m
}

// Has reports whether some header maps to f.
func (m Mapping) Has(f Field) bool {
	for _, v := range m {
		if v == f {
			return true
		}
	}
	return false
}

// MapRow projects a source row onto field names.
func (m Mapping) MapRow(row model.SourceRow) model.SourceRow {
	out := make(model.SourceRow, len(m))
	for h, f := range m {
		if v := strings.TrimSpace(row[h]); v != "" {
			out[string(f)] = v
		}
	}
	return out
}

// Record builds a pending record from a mapped row. City, state and zip
// columns are folded into the address.
func (m Mapping) Record(mapped model.SourceRow, index int) model.Record {
	return model.Record{
		CompanyName:      mapped[string(FieldCompanyName)],
		Email:            mapped[string(FieldEmail)],
		Phone:            mapped[string(FieldPhone)],
		Website:          mapped[string(FieldWebsite)],
		Address:          joinAddress(mapped),
		Industry:         mapped[string(FieldIndustry)],
		Status:           model.RecordStatusPending,
		OriginalRowIndex: index,
	}
}

func joinAddress(mapped model.SourceRow) string {
	var parts []string
	if a := mapped[string(FieldAddress)]; a != "" {
		parts = append(parts, a)
	}
	if c := mapped[string(FieldCity)]; c != "" && !strings.Contains(strings.ToLower(strings.Join(parts, " ")), strings.ToLower(c)) {
		parts = append(parts, c)
	}
	state := strings.TrimSpace(mapped[string(FieldState)] + " " + mapped[string(FieldZip)])
	if state != "" && len(parts) > 0 && !strings.Contains(parts[len(parts)-1], state) {
		parts = append(parts, state)
	}
	return strings.Join(parts, ", ")
}

func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
