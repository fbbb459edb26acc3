package dto

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// UploadResponse is returned after a workbook is stored under a token.
type UploadResponse struct {
	UploadID         string   `json:"upload_id"`
	OriginalFilename string   `json:"original_filename"`
	SizeBytes        int64    `json:"size_bytes"`
	Checksum         string   `json:"checksum"`
	Sheets           []string `json:"sheets"`
}

// ExportRequest asks for the stored workbook with results written back.
type ExportRequest struct {
	UploadID string            `json:"upload_id" validate:"required"`
	Grade    string            `json:"grade" validate:"omitempty,max=31"`
	Course   string            `json:"course" validate:"omitempty,max=100"`
	Comments map[string]string `json:"comments"`
}

// ConsolidationRequest selects the sheet and course to compute.
type ConsolidationRequest struct {
	UploadID string `json:"upload_id" query:"upload_id" validate:"required"`
	Grade    string `json:"grade" query:"grade" validate:"omitempty,max=31"`
	Course   string `json:"course" query:"course" validate:"omitempty,max=100"`
}

// TemplateRequest identifies the blank workbook to generate.
type TemplateRequest struct {
	Grade   string `validate:"required,max=10"`
	Section string `validate:"required,max=10"`
	Year    string `validate:"required,len=4,numeric"`
}

// SheetRow is one computed spreadsheet row.
type SheetRow struct {
	Line          int
	StudentID     string
	Student       string
	Course        string
	Bimesters     [4]decimal.NullDecimal
	BimesterCount int
	Average       decimal.Decimal
	Letter        string
}

// MarshalJSON renders grades as two-decimal strings.
func (r SheetRow) MarshalJSON() ([]byte, error) {
	var bimesters [4]*string
	for i, value := range r.Bimesters {
		bimesters[i] = FormatNullDecimal(value)
	}
	return json.Marshal(struct {
		Line          int        `json:"line"`
		StudentID     string     `json:"student_id"`
		Student       string     `json:"student"`
		Course        string     `json:"course"`
		Bimesters     [4]*string `json:"bimesters"`
		BimesterCount int        `json:"bimester_count"`
		Average       string     `json:"average"`
		Letter        string     `json:"letter"`
	}{
		Line:          r.Line,
		StudentID:     r.StudentID,
		Student:       r.Student,
		Course:        r.Course,
		Bimesters:     bimesters,
		BimesterCount: r.BimesterCount,
		Average:       FormatDecimal(r.Average),
		Letter:        r.Letter,
	})
}

// ConsolidationResponse lists the computed rows of a stored workbook.
type ConsolidationResponse struct {
	UploadID string     `json:"upload_id"`
	Sheet    string     `json:"sheet"`
	Rows     []SheetRow `json:"rows"`
}
