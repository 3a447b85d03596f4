package model

import (
	"fmt"
	"time"
)

// Numbering limits imposed by the SEFAZ layouts (serie: 3 digits, nNF: 9 digits)
const (
	MaxSeries = 999
	MaxNumber = 999999999
)

// SequenceKey identifies one independent numbering counter
type SequenceKey struct {
	EmitterID    uint         `json:"emitter_id" db:"emitter_id"`
	DocumentType DocumentType `json:"document_type" db:"document_type"`
	Environment  Environment  `json:"environment" db:"environment"`
	Series       int          `json:"series" db:"series"`
}

func (k SequenceKey) String() string {
	return fmt.Sprintf("%d/%s/%s/%03d", k.EmitterID, k.DocumentType, k.Environment, k.Series)
}

// Validate checks the key fields
func (k SequenceKey) Validate() error {
	if k.EmitterID == 0 {
		return NewValidationError("emitter_id", k.EmitterID, "required", "emitter is required")
	}
	if !k.DocumentType.Valid() {
		return NewValidationError("document_type", k.DocumentType, "oneof", "unknown document type")
	}
	if !k.Environment.Valid() {
		return NewValidationError("environment", k.Environment, "oneof", "unknown environment")
	}
	if k.Series < 0 || k.Series > MaxSeries {
		return NewValidationError("series", k.Series, "range", "series must be between 0 and 999")
	}
	return nil
}

// Sequence is the persisted counter row. NextNumber is the number the next
// issued document will receive.
type Sequence struct {
	ID           uint         `gorm:"primaryKey" json:"-" db:"id"`
	EmitterID    uint         `gorm:"not null;uniqueIndex:idx_sequence_key" json:"emitter_id" db:"emitter_id"`
	DocumentType DocumentType `gorm:"size:8;not null;uniqueIndex:idx_sequence_key" json:"document_type" db:"document_type"`
	Environment  Environment  `gorm:"size:16;not null;uniqueIndex:idx_sequence_key" json:"environment" db:"environment"`
	Series       int          `gorm:"not null;uniqueIndex:idx_sequence_key" json:"series" db:"series"`
	NextNumber   int64        `gorm:"not null" json:"next_number" db:"next_number"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

func (Sequence) TableName() string { return "document_sequences" }

// Key returns the counter key of the row
func (s Sequence) Key() SequenceKey {
	return SequenceKey{
		EmitterID:    s.EmitterID,
		DocumentType: s.DocumentType,
		Environment:  s.Environment,
		Series:       s.Series,
	}
}

// NumberStatus marks how a number left the sequence
type NumberStatus string

const (
	NumberIssued NumberStatus = "issued"
	NumberVoided NumberStatus = "voided"
)

// IssuedNumber is the ledger row that makes every consumed number unique per key
type IssuedNumber struct {
	ID           uint         `gorm:"primaryKey" json:"-" db:"id"`
	EmitterID    uint         `gorm:"not null;uniqueIndex:idx_issued_number" json:"emitter_id" db:"emitter_id"`
	DocumentType DocumentType `gorm:"size:8;not null;uniqueIndex:idx_issued_number" json:"document_type" db:"document_type"`
	Environment  Environment  `gorm:"size:16;not null;uniqueIndex:idx_issued_number" json:"environment" db:"environment"`
	Series       int          `gorm:"not null;uniqueIndex:idx_issued_number" json:"series" db:"series"`
	Number       int64        `gorm:"not null;uniqueIndex:idx_issued_number" json:"number" db:"number"`
	Status       NumberStatus `gorm:"size:8;not null" json:"status" db:"status"`
	Reason       string       `gorm:"size:255" json:"reason,omitempty" db:"reason"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

func (IssuedNumber) TableName() string { return "issued_numbers" }
