package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

// ImportRequest describes one upload.
type ImportRequest struct {
	UserID string
	Name   string
	Table  *Table
	// Mapping overrides MapHeaders when set.
	Mapping Mapping
}

// ImportResult is the created batch and its records.
type ImportResult struct {
	Batch   *model.UploadBatch
	Records []model.Record
	Mapping Mapping
}

// Import creates a mapped upload batch holding the raw and mapped rows and
// one pending record per row, in file order.
func Import(ctx context.Context, st store.Store, req ImportRequest) (*ImportResult, error) {
	if req.Table == nil || len(req.Table.Rows) == 0 {
		return nil, eris.New("ingest: no data rows")
	}
	m := req.Mapping
	if m == nil {
		m = MapHeaders(req.Table.Headers)
	}
	if !m.Has(FieldCompanyName) {
		return nil, eris.New("ingest: no company name column found")
	}

	mapped := make([]model.SourceRow, len(req.Table.Rows))
	records := make([]model.Record, 0, len(req.Table.Rows))
	for i, row := range req.Table.Rows {
		mapped[i] = m.MapRow(row)
		records = append(records, m.Record(mapped[i], i))
	}

	batch, err := st.CreateUploadBatch(ctx, model.UploadBatch{
		UserID:       req.UserID,
		Name:         req.Name,
		RawData:      req.Table.Rows,
		MappedData:   mapped,
		Status:       model.BatchStatusMapped,
		TotalRecords: len(records),
	})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: create batch")
	}
	for i := range records {
		records[i].UploadBatchID = batch.ID
	}

	created, err := st.CreateRecords(ctx, records)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: create records")
	}

	zap.L().Info("ingest: imported batch",
		zap.String("batch_id", batch.ID),
		zap.String("name", req.Name),
		zap.Int("records", len(created)),
	)
	return &ImportResult{Batch: batch, Records: created, Mapping: m}, nil
}
