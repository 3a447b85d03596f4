// Package documents tracks what happens to an issued number: status changes,
// the authorized XML and its printed PDF.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rezonia/fiscal-manager/internal/events"
	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/parser/pdf"
	xmlparser "github.com/rezonia/fiscal-manager/internal/parser/xml"
	"github.com/rezonia/fiscal-manager/internal/repository"
	"github.com/rezonia/fiscal-manager/internal/signature"
)

// SchemaValidator checks a document against an XSD
type SchemaValidator interface {
	Validate(data []byte) error
}

// StatusUpdate moves a document to a new status
type StatusUpdate struct {
	Status model.DocumentStatus `json:"status" binding:"required,oneof=authorized rejected cancelled voided"`
	// Protocol is the SEFAZ authorization or event protocol
	Protocol string `json:"protocol,omitempty" binding:"omitempty,numeric,max=20"`
}

// StatusChangedEvent is the payload of events.StatusChanged
type StatusChangedEvent struct {
	DocumentID uuid.UUID            `json:"document_id"`
	EmitterID  uint                 `json:"emitter_id"`
	AccessKey  string               `json:"access_key,omitempty"`
	From       model.DocumentStatus `json:"from"`
	To         model.DocumentStatus `json:"to"`
	Protocol   string               `json:"protocol,omitempty"`
}

// Inspection is what could be learned from a fiscal XML
type Inspection struct {
	Document     *model.FiscalXML  `json:"document"`
	SchemaValid  *bool             `json:"schema_valid,omitempty"`
	SchemaErrors []string          `json:"schema_errors,omitempty"`
	Signature    *signature.Result `json:"signature,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
}

// Service manages issued documents
type Service struct {
	repo      *repository.Repository[model.Document]
	parser    *xmlparser.Registry
	pdf       *pdf.Inspector
	schema    SchemaValidator
	verifier  *signature.Verifier
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithSchema enables XSD validation of inspected XML
func WithSchema(v SchemaValidator) Option {
	return func(s *Service) {
		s.schema = v
	}
}

// WithVerifier enables XMLDSig verification of inspected XML
func WithVerifier(v *signature.Verifier) Option {
	return func(s *Service) {
		s.verifier = v
	}
}

// WithPublisher sets the event publisher
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the document service
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		repo: repository.New[model.Document](db, "document",
			repository.WithSearch("access_key"),
			repository.WithOrder("created_at DESC, number DESC")),
		parser: xmlparser.NewRegistry(),
		pdf:    pdf.NewInspector(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = events.NewMemoryPublisher(s.logger)
	}
	return s
}

// ListFilter narrows List results
type ListFilter struct {
	DocumentType model.DocumentType   `form:"document_type"`
	Environment  model.Environment    `form:"environment"`
	Status       model.DocumentStatus `form:"status"`
	Series       *int                 `form:"series"`
}

// List returns a page of the emitter's documents, newest first
func (s *Service) List(ctx context.Context, emitterID uint, f ListFilter, q repository.ListQuery) (*repository.Page[model.Document], error) {
	q.Filters = map[string]interface{}{"emitter_id": emitterID}
	if f.DocumentType != "" {
		q.Filters["document_type"] = f.DocumentType
	}
	if f.Environment != "" {
		q.Filters["environment"] = f.Environment
	}
	if f.Status != "" {
		q.Filters["status"] = f.Status
	}
	if f.Series != nil {
		q.Filters["series"] = *f.Series
	}
	return s.repo.List(ctx, q)
}

// Get returns one document
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	return s.repo.Get(ctx, id)
}

// GetByAccessKey finds a document by its 44-digit key
func (s *Service) GetByAccessKey(ctx context.Context, key string) (*model.Document, error) {
	return s.repo.FindBy(ctx, "access_key", key)
}

// UpdateStatus applies a lifecycle transition and publishes it
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, u StatusUpdate) (*model.Document, error) {
	if !u.Status.Valid() {
		return nil, model.NewValidationError("status", u.Status, "oneof", "unknown document status")
	}
	if u.Status == model.StatusAuthorized && u.Protocol == "" {
		return nil, model.NewValidationError("protocol", nil, "required", "authorization requires the SEFAZ protocol")
	}

	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := doc.Status
	if err := s.transition(ctx, doc, u.Status, u.Protocol, nil); err != nil {
		return nil, err
	}
	s.statusChanged(ctx, doc, from)
	return doc, nil
}

// transition saves doc with the new status. extra holds more columns to update.
func (s *Service) transition(ctx context.Context, doc *model.Document, to model.DocumentStatus, protocol string, extra map[string]interface{}) error {
	if !doc.Status.CanTransition(to) {
		return model.NewConflictError("document", fmt.Sprintf("cannot move from %s to %s", doc.Status, to))
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": s.now().UTC(),
	}
	if protocol != "" {
		updates["protocol"] = protocol
	}
	for k, v := range extra {
		updates[k] = v
	}

	// the status guard makes concurrent transitions of the same document lose cleanly
	res := s.repo.DB(ctx).Model(&model.Document{}).
		Where("id = ? AND status = ?", doc.ID, doc.Status).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.NewConflictError("document", "status changed concurrently")
	}

	doc.Status = to
	if protocol != "" {
		doc.Protocol = protocol
	}
	doc.UpdatedAt = updates["updated_at"].(time.Time)
	return nil
}

func (s *Service) statusChanged(ctx context.Context, doc *model.Document, from model.DocumentStatus) {
	s.logger.Info("document status changed",
		zap.String("document_id", doc.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(doc.Status)),
	)
	err := events.Emit(ctx, s.publisher, events.StatusChanged, doc.Key().String(), StatusChangedEvent{
		DocumentID: doc.ID,
		EmitterID:  doc.EmitterID,
		AccessKey:  doc.AccessKey,
		From:       from,
		To:         doc.Status,
		Protocol:   doc.Protocol,
	})
	if err != nil {
		s.logger.Warn("event publish failed", zap.String("event_type", events.StatusChanged), zap.Error(err))
	}
}

// AttachPDF validates and stores the printed representation (DANFE) of a document
func (s *Service) AttachPDF(ctx context.Context, id uuid.UUID, data []byte) (*pdf.Info, error) {
	info, err := s.pdf.Inspect(ctx, data)
	if err != nil {
		return nil, err
	}
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.repo.DB(ctx).Model(doc).Updates(map[string]interface{}{
		"pdf":        data,
		"pdf_pages":  info.Pages,
		"updated_at": s.now().UTC(),
	}).Error
	if err != nil {
		return nil, fmt.Errorf("store pdf: %w", err)
	}
	s.logger.Info("document pdf attached", zap.String("document_id", id.String()), zap.Int("pages", info.Pages))
	return info, nil
}

// PDF returns the stored PDF
func (s *Service) PDF(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var doc model.Document
	err := s.repo.DB(ctx).Select("id", "pdf").Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NewNotFoundError("document", id.String())
		}
		return nil, fmt.Errorf("load pdf: %w", err)
	}
	if len(doc.PDF) == 0 {
		return nil, model.NewNotFoundError("pdf of document", id.String())
	}
	return doc.PDF, nil
}

// XML returns the stored XML
func (s *Service) XML(ctx context.Context, id uuid.UUID) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if doc.XML == "" {
		return "", model.NewNotFoundError("xml of document", id.String())
	}
	return doc.XML, nil
}

// InspectXML parses a fiscal XML, checks its access key and, when configured,
// its schema and signature. Schema and signature failures are reported, not returned.
func (s *Service) InspectXML(ctx context.Context, data []byte) (*Inspection, error) {
	parsed, err := s.parser.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	in := &Inspection{Document: parsed}

	if s.schema != nil {
		valid := true
		if err := s.schema.Validate(data); err != nil {
			valid = false
			var serr *xmlparser.SchemaError
			if errors.As(err, &serr) {
				in.SchemaErrors = serr.Messages
			} else {
				in.SchemaErrors = []string{err.Error()}
			}
		}
		in.SchemaValid = &valid
	}

	if s.verifier != nil {
		res, err := s.verifier.Verify(ctx, data)
		switch {
		case err != nil:
			in.Warnings = append(in.Warnings, err.Error())
		default:
			in.Signature = res
		}
	}
	return in, nil
}

// AttachXML stores the XML of a document after checking it belongs to it.
// An authorized XML moves a reserved document to authorized unless its
// signature was checked and failed.
func (s *Service) AttachXML(ctx context.Context, id uuid.UUID, data []byte) (*Inspection, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in, err := s.InspectXML(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := matches(doc, in.Document); err != nil {
		return nil, err
	}

	from := doc.Status
	authorize := in.Document.Authorized && doc.Status == model.StatusReserved
	if authorize && in.Signature != nil && !in.Signature.Valid {
		return nil, model.NewConflictError("document",
			fmt.Sprintf("signature check failed, not authorizing: %s", strings.Join(in.Signature.Errors, "; ")))
	}
	if authorize {
		err = s.transition(ctx, doc, model.StatusAuthorized, in.Document.Protocol, map[string]interface{}{"xml": string(data)})
		if err != nil {
			return nil, err
		}
		s.statusChanged(ctx, doc, from)
	} else {
		err = s.repo.DB(ctx).Model(doc).Updates(map[string]interface{}{
			"xml":        string(data),
			"updated_at": s.now().UTC(),
		}).Error
		if err != nil {
			return nil, fmt.Errorf("store xml: %w", err)
		}
	}
	doc.XML = string(data)
	return in, nil
}

func matches(doc *model.Document, x *model.FiscalXML) error {
	switch {
	case x.DocumentType != doc.DocumentType:
		return model.NewConflictError("document", fmt.Sprintf("xml is %s, document is %s", x.DocumentType, doc.DocumentType))
	case doc.AccessKey != "" && x.AccessKey != doc.AccessKey:
		return model.NewConflictError("document", "xml access key differs from the issued one")
	case x.Environment != "" && x.Environment != doc.Environment:
		return model.NewConflictError("document", fmt.Sprintf("xml environment %s differs from %s", x.Environment, doc.Environment))
	}
	return nil
}
