package model

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus is the lifecycle state of an issued fiscal document
type DocumentStatus string

const (
	StatusReserved   DocumentStatus = "reserved"
	StatusAuthorized DocumentStatus = "authorized"
	StatusRejected   DocumentStatus = "rejected"
	StatusCancelled  DocumentStatus = "cancelled"
	// StatusVoided marks a reserved number abandoned before transmission
	StatusVoided DocumentStatus = "voided"
)

// Valid reports whether s is a known status
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusReserved, StatusAuthorized, StatusRejected, StatusCancelled, StatusVoided:
		return true
	}
	return false
}

// CanTransition reports whether a document may move from s to next
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	switch s {
	case StatusReserved:
		return next == StatusAuthorized || next == StatusRejected || next == StatusVoided
	case StatusRejected:
		return next == StatusVoided
	case StatusAuthorized:
		return next == StatusCancelled
	}
	return false
}

// Document records a number taken from a sequence and what became of it
type Document struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EmitterID    uint           `gorm:"not null;uniqueIndex:idx_document_number" json:"emitter_id"`
	DocumentType DocumentType   `gorm:"size:8;not null;uniqueIndex:idx_document_number" json:"document_type"`
	Environment  Environment    `gorm:"size:16;not null;uniqueIndex:idx_document_number" json:"environment"`
	Series       int            `gorm:"not null;uniqueIndex:idx_document_number" json:"series"`
	Number       int64          `gorm:"not null;uniqueIndex:idx_document_number" json:"number"`
	AccessKey    string         `gorm:"size:44;index" json:"access_key,omitempty"`
	Status       DocumentStatus `gorm:"size:16;not null" json:"status"`
	Protocol     string         `gorm:"size:20" json:"protocol,omitempty"`
	XML          string         `gorm:"type:text" json:"-"`
	PDF          []byte         `json:"-"`
	PDFPages     int            `json:"pdf_pages,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Key returns the sequence key the document number was taken from
func (d *Document) Key() SequenceKey {
	return SequenceKey{
		EmitterID:    d.EmitterID,
		DocumentType: d.DocumentType,
		Environment:  d.Environment,
		Series:       d.Series,
	}
}
