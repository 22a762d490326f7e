package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadRows_XLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Company", "Address", "Phone"},
			{"Acme", "1 Main St, Austin, TX", "512-555-0100"},
			{"", "", ""},
			{"Bolt", "2 Elm St, Dallas, TX"},
		},
	})

	tbl, err := ReadRows(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Company", "Address", "Phone"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "Acme", tbl.Rows[0]["Company"])
	assert.Equal(t, "", tbl.Rows[1]["Phone"])
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Data": {{"a"}, {"b"}},
	})

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Data"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.Error(t, err)
	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)
}

func TestReadRows_CSV(t *testing.T) {
	path := writeCSV(t, "\ufeffBusiness Name,City,State,Zip\n\"Acme, Inc\",Austin,TX,78701\nBolt,Dallas,TX\n")

	tbl, err := ReadRows(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Business Name", tbl.Headers[0])
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "Acme, Inc", tbl.Rows[0]["Business Name"])
	assert.Equal(t, "", tbl.Rows[1]["Zip"])
}

func TestReadRows_Errors(t *testing.T) {
	_, err := ReadRows(context.Background(), "upload.pdf")
	assert.Error(t, err)

	_, err = ReadRows(context.Background(), writeCSV(t, "\n , \n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no header row")
}

func TestReadCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSV(ctx, strings.NewReader("a,b\n"))
	assert.Error(t, err)
}

func TestMapHeaders(t *testing.T) {
	m := MapHeaders([]string{"Company Name", "E-mail", "Phone #", "Web Site", "Street Address", "City", "ST", "Zip Code", "Notes", "Name"})

	assert.Equal(t, FieldCompanyName, m["Company Name"])
	assert.Equal(t, FieldEmail, m["E-mail"])
	assert.Equal(t, FieldPhone, m["Phone #"])
	assert.Equal(t, FieldWebsite, m["Web Site"])
	assert.Equal(t, FieldAddress, m["Street Address"])
	assert.Equal(t, FieldCity, m["City"])
	assert.Equal(t, FieldState, m["ST"])
	assert.Equal(t, FieldZip, m["Zip Code"])
	_, ok := m["Notes"]
	assert.False(t, ok)
	// Company name is already taken by the first matching column.
	_, ok = m["Name"]
	assert.False(t, ok)
}

func TestMapping_Record(t *testing.T) {
	m := MapHeaders([]string{"Company", "Address", "City", "State", "Zip"})
	mapped := m.MapRow(model.SourceRow{"Company": " Acme ", "Address": "1 Main St", "City": "Austin", "State": "TX", "Zip": "78701"})
	r := m.Record(mapped, 4)

	assert.Equal(t, "Acme", r.CompanyName)
	assert.Equal(t, "1 Main St, Austin, TX 78701", r.Address)
	assert.Equal(t, model.RecordStatusPending, r.Status)
	assert.Equal(t, 4, r.OriginalRowIndex)

	full := m.Record(m.MapRow(model.SourceRow{"Company": "Bolt", "Address": "2 Elm St, Dallas, TX", "City": "Dallas", "State": "TX"}), 0)
	assert.Equal(t, "2 Elm St, Dallas, TX", full.Address)
}

func TestImport(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	tbl := &Table{
		Headers: []string{"Company", "Address"},
		Rows: []model.SourceRow{
			{"Company": "Acme", "Address": "1 Main St, Austin, TX"},
			{"Company": "Bolt", "Address": "2 Elm St, Dallas, TX"},
			{"Company": "Crux", "Address": ""},
		},
	}

	res, err := Import(ctx, st, ImportRequest{UserID: "u1", Name: "leads.csv", Table: tbl})
	require.NoError(t, err)

	assert.Equal(t, model.BatchStatusMapped, res.Batch.Status)
	assert.Equal(t, 3, res.Batch.TotalRecords)
	assert.Len(t, res.Batch.MappedData, 3)
	assert.Equal(t, "Acme", res.Batch.MappedData[0]["companyName"])

	records, err := st.GetRecords(ctx, res.Batch.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, i, r.OriginalRowIndex)
		assert.Equal(t, model.RecordStatusPending, r.Status)
	}
	assert.Equal(t, "Bolt", records[1].CompanyName)
}

func TestImport_RequiresCompanyColumn(t *testing.T) {
	_, err := Import(context.Background(), store.NewMemory(), ImportRequest{
		Table: &Table{Headers: []string{"Address"}, Rows: []model.SourceRow{{"Address": "x"}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "company name")

	_, err = Import(context.Background(), store.NewMemory(), ImportRequest{Table: &Table{}})
	assert.Error(t, err)
}
