package model

import (
	"time"
)

// BatchStatus represents the lifecycle of an UploadBatch.
type BatchStatus string

const (
	BatchStatusUploaded   BatchStatus = "uploaded"
	BatchStatusMapped     BatchStatus = "mapped"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusError      BatchStatus = "error"
)

// SourceRow is one opaque row of uploaded data keyed by column header.
type SourceRow map[string]string

// UploadBatch is one logical unit of work: an uploaded file or a
// prospecting run.
type UploadBatch struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id,omitempty"`
	Name             string      `json:"name"`
	RawData          []SourceRow `json:"raw_data,omitempty"`
	MappedData       []SourceRow `json:"mapped_data,omitempty"`
	Status           BatchStatus `json:"status"`
	TotalRecords     int         `json:"total_records"`
	ProcessedRecords int         `json:"processed_records"`
	VerifiedRecords  int         `json:"verified_records"`
	ErrorRecords     int         `json:"error_records"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// UploadBatchUpdate is a partial update for an UploadBatch.
type UploadBatchUpdate struct {
	Name             *string
	MappedData       []SourceRow
	Status           *BatchStatus
	TotalRecords     *int
	ProcessedRecords *int
	VerifiedRecords  *int
	ErrorRecords     *int
}

// Apply merges u into b. Counts are reconciled afterwards so that
// processed <= total and verified+error <= processed always hold.
func (u UploadBatchUpdate) Apply(b *UploadBatch) {
	if u.Name != nil {
		b.Name = *u.Name
	}
	if u.MappedData != nil {
		b.MappedData = u.MappedData
	}
	if u.Status != nil {
		b.Status = *u.Status
	}
	if u.TotalRecords != nil {
		b.TotalRecords = *u.TotalRecords
	}
	if u.ProcessedRecords != nil {
		b.ProcessedRecords = *u.ProcessedRecords
	}
	if u.VerifiedRecords != nil {
		b.VerifiedRecords = *u.VerifiedRecords
	}
	if u.ErrorRecords != nil {
		b.ErrorRecords = *u.ErrorRecords
	}
	b.reconcileCounts()
}

func (b *UploadBatch) reconcileCounts() {
	if b.TotalRecords < 0 {
		b.TotalRecords = 0
	}
	if b.ProcessedRecords > b.TotalRecords {
		b.ProcessedRecords = b.TotalRecords
	}
	if b.ProcessedRecords < 0 {
		b.ProcessedRecords = 0
	}
	if b.VerifiedRecords < 0 {
		b.VerifiedRecords = 0
	}
	if b.ErrorRecords < 0 {
		b.ErrorRecords = 0
	}
	if b.VerifiedRecords > b.ProcessedRecords {
		b.VerifiedRecords = b.ProcessedRecords
	}
	if b.VerifiedRecords+b.ErrorRecords > b.ProcessedRecords {
		b.ErrorRecords = b.ProcessedRecords - b.VerifiedRecords
	}
}

// BatchCounts are the record tallies derived from a batch's live records.
type BatchCounts struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Verified  int `json:"verified"`
	Errors    int `json:"errors"`
}

// CountRecords tallies non-deleted records. A record is processed once it
// has left pending; verified and updated both count as verified.
func CountRecords(records []Record) BatchCounts {
	var c BatchCounts
	for _, r := range records {
		if r.Deleted {
			continue
		}
		c.Total++
		switch r.Status {
		case RecordStatusPending:
		case RecordStatusVerified, RecordStatusUpdated:
			c.Processed++
			c.Verified++
		case RecordStatusError:
			c.Processed++
			c.Errors++
		default:
			c.Processed++
		}
	}
	return c
}

// Update converts the counts into a batch patch.
func (c BatchCounts) Update() UploadBatchUpdate {
	return UploadBatchUpdate{
		TotalRecords:     Ptr(c.Total),
		ProcessedRecords: Ptr(c.Processed),
		VerifiedRecords:  Ptr(c.Verified),
		ErrorRecords:     Ptr(c.Errors),
	}
}

// User owns upload batches.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
