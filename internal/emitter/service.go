// Package emitter manages issuing companies and hands out their document numbers.
package emitter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rezonia/fiscal-manager/internal/accesskey"
	"github.com/rezonia/fiscal-manager/internal/events"
	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/numbering"
	"github.com/rezonia/fiscal-manager/internal/repository"
	"github.com/rezonia/fiscal-manager/internal/validate"
)

// IssueRequest asks for the next number of one series
type IssueRequest struct {
	DocumentType model.DocumentType `json:"document_type" binding:"required"`
	Series       int                `json:"series" binding:"gte=0,lte=999"`
	// Environment overrides the emitter's active environment
	Environment  model.Environment `json:"environment,omitempty"`
	EmissionType int               `json:"emission_type,omitempty" binding:"omitempty,oneof=1 2 3 4 5 6 7 9"`
}

// NumberIssuedEvent is the payload of events.NumberIssued
type NumberIssuedEvent struct {
	DocumentID   uuid.UUID          `json:"document_id"`
	EmitterID    uint               `json:"emitter_id"`
	CNPJ         string             `json:"cnpj"`
	DocumentType model.DocumentType `json:"document_type"`
	Environment  model.Environment  `json:"environment"`
	Series       int                `json:"series"`
	Number       int64              `json:"number"`
	AccessKey    string             `json:"access_key,omitempty"`
}

// NumbersVoidedEvent is the payload of events.NumbersVoided
type NumbersVoidedEvent struct {
	numbering.VoidResult
	Reason string `json:"reason"`
}

// Service manages emitters and their sequences
type Service struct {
	repo      *repository.Repository[model.Emitter]
	seq       *numbering.Sequencer
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

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

// WithClock overrides the time source used for access keys
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the emitter service
func NewService(db *gorm.DB, seq *numbering.Sequencer, opts ...Option) *Service {
	s := &Service{
		repo:   repository.New[model.Emitter](db, "emitter", repository.WithSearch("cnpj", "legal_name", "trade_name")),
		seq:    seq,
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

// List returns a page of emitters
func (s *Service) List(ctx context.Context, q repository.ListQuery) (*repository.Page[model.Emitter], error) {
	return s.repo.List(ctx, q)
}

// Get returns one emitter
func (s *Service) Get(ctx context.Context, id uint) (*model.Emitter, error) {
	return s.repo.Get(ctx, id)
}

// Create registers an emitter. No sequence is created until one is configured.
func (s *Service) Create(ctx context.Context, e *model.Emitter) error {
	e.Normalize()
	if err := validate.Struct(e); err != nil {
		return err
	}
	e.ID = 0
	if err := s.repo.Create(ctx, e); err != nil {
		return err
	}
	s.logger.Info("emitter created", zap.Uint("emitter_id", e.ID), zap.String("cnpj", e.CNPJ))
	return nil
}

// Update replaces the emitter data. The CNPJ is frozen once numbers were taken.
func (s *Service) Update(ctx context.Context, id uint, e *model.Emitter) (*model.Emitter, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.ActiveEnvironment == "" {
		e.ActiveEnvironment = current.ActiveEnvironment
	}
	e.Normalize()
	if err := validate.Struct(e); err != nil {
		return nil, err
	}
	if e.CNPJ != current.CNPJ {
		used, err := s.hasNumbers(ctx, id)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, model.NewConflictError("emitter", "CNPJ cannot change after documents were numbered")
		}
	}
	return s.repo.Update(ctx, id, e)
}

// Delete removes an emitter that never took a number, with its sequences
func (s *Service) Delete(ctx context.Context, id uint) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	used, err := s.hasNumbers(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return model.NewConflictError("emitter", "emitter has numbered documents")
	}

	return s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("emitter_id = ?", id).Delete(&model.Sequence{}).Error; err != nil {
			return fmt.Errorf("delete sequences: %w", err)
		}
		if err := tx.Delete(&model.Emitter{}, id).Error; err != nil {
			return fmt.Errorf("delete emitter: %w", err)
		}
		return nil
	})
}

// SetEnvironment switches the environment used when a request does not name one
func (s *Service) SetEnvironment(ctx context.Context, id uint, env model.Environment) (*model.Emitter, error) {
	if !env.Valid() {
		return nil, model.NewValidationError("environment", env, "oneof", "must be production or homologation")
	}
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DB(ctx).Model(e).Update("active_environment", env).Error; err != nil {
		return nil, fmt.Errorf("set environment: %w", err)
	}
	s.logger.Info("emitter environment changed", zap.Uint("emitter_id", id), zap.String("environment", string(env)))
	return s.repo.Get(ctx, id)
}

// ConfigureSequence sets the next number of one of the emitter's series
func (s *Service) ConfigureSequence(ctx context.Context, key model.SequenceKey, nextNumber int64) (*model.Sequence, error) {
	if _, err := s.repo.Get(ctx, key.EmitterID); err != nil {
		return nil, err
	}
	return s.seq.Configure(ctx, key, nextNumber)
}

// Sequences lists the emitter's counters
func (s *Service) Sequences(ctx context.Context, id uint) ([]model.Sequence, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.seq.List(ctx, id)
}

// Peek returns one counter without advancing it
func (s *Service) Peek(ctx context.Context, key model.SequenceKey) (*model.Sequence, error) {
	return s.seq.Peek(ctx, key)
}

// History returns the latest numbers of one counter
func (s *Service) History(ctx context.Context, key model.SequenceKey, limit int) ([]model.IssuedNumber, error) {
	return s.seq.History(ctx, key, limit)
}

// Void performs an inutilização on the emitter's series
func (s *Service) Void(ctx context.Context, key model.SequenceKey, from, to int64, reason string) (*numbering.VoidResult, error) {
	if _, err := s.repo.Get(ctx, key.EmitterID); err != nil {
		return nil, err
	}
	res, err := s.seq.Void(ctx, key, from, to, reason)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.NumbersVoided, key.String(), NumbersVoidedEvent{VoidResult: *res, Reason: strings.TrimSpace(reason)})
	return res, nil
}

// Issue takes the next number for the request, builds the access key and
// stores the document, all in the numbering transaction.
func (s *Service) Issue(ctx context.Context, emitterID uint, req IssueRequest) (*model.Document, error) {
	e, err := s.repo.Get(ctx, emitterID)
	if err != nil {
		return nil, err
	}

	env := req.Environment
	if env == "" {
		env = e.Environment()
	}
	key := model.SequenceKey{
		EmitterID:    e.ID,
		DocumentType: req.DocumentType,
		Environment:  env,
		Series:       req.Series,
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	emission := req.EmissionType
	if emission == 0 {
		emission = accesskey.EmissionNormal
	}

	var doc *model.Document
	_, err = s.seq.Reserve(ctx, key, func(ctx context.Context, tx *sqlx.Tx, number int64) error {
		d, err := s.newDocument(e, key, number, emission)
		if err != nil {
			return err
		}
		if err := insertDocument(ctx, tx, d); err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("document number issued",
		zap.Uint("emitter_id", e.ID),
		zap.String("key", key.String()),
		zap.Int64("number", doc.Number),
		zap.String("access_key", doc.AccessKey),
	)
	s.emit(ctx, events.NumberIssued, key.String(), NumberIssuedEvent{
		DocumentID:   doc.ID,
		EmitterID:    e.ID,
		CNPJ:         e.CNPJ,
		DocumentType: key.DocumentType,
		Environment:  key.Environment,
		Series:       key.Series,
		Number:       doc.Number,
		AccessKey:    doc.AccessKey,
	})
	return doc, nil
}

func (s *Service) newDocument(e *model.Emitter, key model.SequenceKey, number int64, emission int) (*model.Document, error) {
	clock := s.now()
	now := clock.UTC()
	doc := &model.Document{
		ID:           uuid.New(),
		EmitterID:    key.EmitterID,
		DocumentType: key.DocumentType,
		Environment:  key.Environment,
		Series:       key.Series,
		Number:       number,
		Status:       model.StatusReserved,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !key.DocumentType.HasAccessKey() {
		return doc, nil
	}

	uf, ok := model.UFCode(e.UF)
	if !ok {
		return nil, model.NewValidationError("uf", e.UF, "uf", "emitter UF has no IBGE code")
	}
	code, err := accesskey.RandomCode(number)
	if err != nil {
		return nil, err
	}
	doc.AccessKey, err = accesskey.Build(accesskey.Parts{
		UFCode:       uf,
		IssuedAt:     clock.In(model.UFLocation(e.UF)),
		CNPJ:         e.CNPJ,
		Model:        key.DocumentType.Model(),
		Series:       key.Series,
		Number:       number,
		EmissionType: emission,
		RandomCode:   code,
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func insertDocument(ctx context.Context, tx *sqlx.Tx, d *model.Document) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO documents (id, emitter_id, document_type, environment, series, number, access_key, status, protocol, xml, pdf_pages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		d.ID.String(), d.EmitterID, string(d.DocumentType), string(d.Environment), d.Series, d.Number,
		d.AccessKey, string(d.Status), d.Protocol, d.XML, d.PDFPages, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return model.NewConflictError("document", fmt.Sprintf("number %d already has a document", d.Number))
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Service) hasNumbers(ctx context.Context, id uint) (bool, error) {
	var n int64
	if err := s.repo.DB(ctx).Model(&model.IssuedNumber{}).Where("emitter_id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count numbers: %w", err)
	}
	return n > 0, nil
}

// emit publishes after commit; a failed publish is logged, the number stays issued
func (s *Service) emit(ctx context.Context, eventType, partitionKey string, data interface{}) {
	if err := events.Emit(ctx, s.publisher, eventType, partitionKey, data); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("event_type", eventType),
			zap.String("partition_key", partitionKey),
			zap.Error(err),
		)
	}
}
