// Package export writes batch records for downstream tools: GeoJSON for
// mapping and XLSX for spreadsheet users.
package export

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/prospect-cli/internal/model"
)

// GeoJSON builds a FeatureCollection with one Point per record that carries
// coordinates. Deleted records and records without coordinates are skipped.
func GeoJSON(records []model.Record) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, r := range records {
		c := coordinates(r)
		if r.Deleted || c == nil {
			continue
		}
		pt := geom.NewPointFlat(geom.XY, []float64{c.Lng, c.Lat})
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         r.ID,
			Geometry:   pt,
			Properties: properties(r),
		})
	}
	return fc
}

// WriteGeoJSON encodes the records' FeatureCollection to w.
func WriteGeoJSON(w io.Writer, records []model.Record) (int, error) {
	fc := GeoJSON(records)
	b, err := json.Marshal(fc)
	if err != nil {
		return 0, eris.Wrap(err, "export: marshal geojson")
	}
	if _, err := w.Write(b); err != nil {
		return 0, eris.Wrap(err, "export: write geojson")
	}
	return len(fc.Features), nil
}

func coordinates(r model.Record) *model.Coordinates {
	if r.Verification == nil {
		return nil
	}
	return r.Verification.Enrichment.Coordinates
}

func properties(r model.Record) map[string]any {
	p := map[string]any{
		"company_name": r.CompanyName,
		"status":       string(r.Status),
		"batch_id":     r.UploadBatchID,
	}
	if r.Address != "" {
		p["address"] = r.Address
	}
	if r.Phone != "" {
		p["phone"] = r.Phone
	}
	if r.Website != "" {
		p["website"] = r.Website
	}
	if r.Industry != "" {
		p["industry"] = r.Industry
	}
	if v := r.Verification; v != nil {
		p["confidence"] = v.Confidence
		p["verified"] = v.Verified
		if v.Source != "" {
			p["source"] = v.Source
		}
		if v.Enrichment.Rating != nil {
			p["rating"] = *v.Enrichment.Rating
		}
		if v.Enrichment.PlaceID != "" {
			p["place_id"] = v.Enrichment.PlaceID
		}
	}
	return p
}

var xlsxHeaders = []string{
	"Company Name", "Email", "Phone", "Website", "Address", "Industry",
	"Status", "Confidence", "Verified", "Source", "Latitude", "Longitude", "Row",
}

// WriteXLSX writes the non-deleted records to a single "Records" sheet.
func WriteXLSX(w io.Writer, records []model.Record) (int, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Records")
	if err != nil {
		return 0, eris.Wrap(err, "xlsx: add sheet")
	}
	addRow(sheet, xlsxHeaders)

	n := 0
	for _, r := range records {
		if r.Deleted {
			continue
		}
		addRow(sheet, recordCells(r))
		n++
	}
	if err := f.Write(w); err != nil {
		return 0, eris.Wrap(err, "xlsx: write file")
	}
	return n, nil
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func recordCells(r model.Record) []string {
	var confidence, verified, source, lat, lng string
	if v := r.Verification; v != nil {
		confidence = strconv.FormatFloat(v.Confidence, 'f', 2, 64)
		verified = strconv.FormatBool(v.Verified)
		source = v.Source
	}
	if c := coordinates(r); c != nil {
		lat = strconv.FormatFloat(c.Lat, 'f', 6, 64)
		lng = strconv.FormatFloat(c.Lng, 'f', 6, 64)
	}
	return []string{
		r.CompanyName, r.Email, r.Phone, r.Website, r.Address, r.Industry,
		string(r.Status), confidence, verified, source, lat, lng,
		strconv.Itoa(r.OriginalRowIndex),
	}
}
