package server

import (
	"github.com/shopspring/decimal"

	"github.com/rezonia/fiscal-manager/internal/model"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Field names the offending input on validation errors
	Field string `json:"field,omitempty"`
}

// EnvironmentRequest switches an emitter's active environment
type EnvironmentRequest struct {
	Environment model.Environment `json:"environment" binding:"required,oneof=production homologation"`
}

// ConfigureSequenceRequest sets the next number of a series
type ConfigureSequenceRequest struct {
	NextNumber int64 `json:"next_number" binding:"required,gte=1,lte=999999999"`
}

// VoidRequest is an inutilização of a number range
type VoidRequest struct {
	From   int64  `json:"from" binding:"required,gte=1,lte=999999999"`
	To     int64  `json:"to" binding:"required,gtefield=From,lte=999999999"`
	Reason string `json:"reason" binding:"required,min=15,max=255"`
}

// OrderStatusRequest closes an order
type OrderStatusRequest struct {
	Status model.OrderStatus `json:"status" binding:"required,oneof=invoiced cancelled"`
}

// CalculateRequest asks for the taxes over an amount
type CalculateRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"gte=0"`
}

// SeedRequest loads reference tables
type SeedRequest struct {
	Tables []string `json:"tables,omitempty"`
	Force  bool     `json:"force,omitempty"`
	// Source overrides the configured seed location
	Source string `json:"source,omitempty"`
}

// SeedResponse reports the outcome per table
type SeedResponse struct {
	Results interface{} `json:"results"`
}

// ClassifyRequest asks for NCM suggestions
type ClassifyRequest struct {
	Description string `json:"description" binding:"required,max=500"`
	Limit       int    `json:"limit,omitempty" binding:"omitempty,gte=1,lte=5"`
}

// ClassifyResponse carries the NCM suggestions
type ClassifyResponse struct {
	Description string      `json:"description"`
	Suggestions interface{} `json:"suggestions"`
}

// ListResponse wraps reference lists that are not paginated
type ListResponse struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
}
