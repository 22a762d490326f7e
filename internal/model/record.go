package model

import (
	"time"
)

// RecordStatus is the verification state of a BusinessRecord.
type RecordStatus string

const (
	RecordStatusPending  RecordStatus = "pending"
	RecordStatusNew      RecordStatus = "new"
	RecordStatusVerified RecordStatus = "verified"
	RecordStatusUpdated  RecordStatus = "updated"
	RecordStatusError    RecordStatus = "error"
)

// Record is one business entity belonging to an UploadBatch.
type Record struct {
	ID               string        `json:"id"`
	UploadBatchID    string        `json:"upload_batch_id"`
	CompanyName      string        `json:"company_name"`
	Email            string        `json:"email,omitempty"`
	Phone            string        `json:"phone,omitempty"`
	Website          string        `json:"website,omitempty"`
	Address          string        `json:"address,omitempty"`
	Industry         string        `json:"industry,omitempty"`
	Status           RecordStatus  `json:"status"`
	Verification     *Verification `json:"verification,omitempty"`
	OriginalRowIndex int           `json:"original_row_index"`
	Deleted          bool          `json:"deleted"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Verification is the payload written when a record is verified or
// discovered.
type Verification struct {
	Confidence      float64    `json:"confidence"`
	Verified        bool       `json:"verified"`
	AddressVerified bool       `json:"address_verified"`
	BusinessName    string     `json:"business_name,omitempty"`
	Source          string     `json:"source,omitempty"`
	Error           string     `json:"error,omitempty"`
	Enrichment      Enrichment `json:"enrichment"`
	VerifiedAt      time.Time  `json:"verified_at"`
}

// Enrichment holds provider-specific fields attached to a record.
type Enrichment struct {
	Coordinates    *Coordinates `json:"coordinates,omitempty"`
	Rating         *float64     `json:"rating,omitempty"`
	ReviewCount    *int         `json:"review_count,omitempty"`
	BusinessStatus string       `json:"business_status,omitempty"`
	PlaceID        string       `json:"place_id,omitempty"`
	Types          []string     `json:"types,omitempty"`
	FormattedPhone string       `json:"formatted_phone,omitempty"`
	Website        string       `json:"website,omitempty"`
	EmployeeRange  string       `json:"employee_range,omitempty"`
	YearFounded    int          `json:"year_founded,omitempty"`
	TargetLocation string       `json:"target_location,omitempty"`
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RecordUpdate is a partial update for a Record.
type RecordUpdate struct {
	CompanyName  *string
	Email        *string
	Phone        *string
	Website      *string
	Address      *string
	Industry     *string
	Status       *RecordStatus
	Verification *Verification
}

// Apply merges u into r.
func (u RecordUpdate) Apply(r *Record) {
	if u.CompanyName != nil {
		r.CompanyName = *u.CompanyName
	}
	if u.Email != nil {
		r.Email = *u.Email
	}
	if u.Phone != nil {
		r.Phone = *u.Phone
	}
	if u.Website != nil {
		r.Website = *u.Website
	}
	if u.Address != nil {
		r.Address = *u.Address
	}
	if u.Industry != nil {
		r.Industry = *u.Industry
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.Verification != nil {
		r.Verification = u.Verification
	}
}
