// Package numbering owns the per-emitter document counters.
//
// Every (emitter, document type, environment, series) key has one row in
// document_sequences holding the next number to hand out. Numbers leave a
// sequence exactly once, either issued or voided (inutilização), and each one
// is recorded in issued_numbers under a unique index so it can never be reused.
package numbering

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-manager/internal/model"
)

// Limits for inutilização requests
const (
	MinVoidReason = 15
	MaxVoidReason = 255
	MaxVoidRange  = 10000
)

// History limits
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 1000
)

// ReserveFunc runs inside the numbering transaction after a number is taken.
// Returning an error rolls the number back.
type ReserveFunc func(ctx context.Context, tx *sqlx.Tx, number int64) error

// VoidResult describes a completed inutilização
type VoidResult struct {
	Key        model.SequenceKey `json:"key"`
	From       int64             `json:"from"`
	To         int64             `json:"to"`
	Count      int64             `json:"count"`
	NextNumber int64             `json:"next_number"`
}

// Sequencer hands out document numbers
type Sequencer struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Sequencer
type Option func(*Sequencer)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Sequencer) {
		s.logger = l
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) {
		s.now = now
	}
}

// New creates a Sequencer on db
func New(db *sqlx.DB, opts ...Option) *Sequencer {
	s := &Sequencer{
		db:     db,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const keyWhere = "emitter_id = ? AND document_type = ? AND environment = ? AND series = ?"

const sequenceColumns = "id, emitter_id, document_type, environment, series, next_number, created_at, updated_at"

func keyArgs(key model.SequenceKey) []interface{} {
	return []interface{}{key.EmitterID, string(key.DocumentType), string(key.Environment), key.Series}
}

func (s *Sequencer) forUpdate() string {
	if s.db.DriverName() == "pgx" || s.db.DriverName() == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

func notConfigured(key model.SequenceKey) error {
	return fmt.Errorf("%w: %s", model.ErrNotConfigured, key)
}

// Configure creates the sequence for key or moves its next number.
// nextNumber must be above every number already issued or voided for key.
func (s *Sequencer) Configure(ctx context.Context, key model.SequenceKey, nextNumber int64) (*model.Sequence, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if nextNumber < 1 || nextNumber > model.MaxNumber {
		return nil, model.NewValidationError("next_number", nextNumber, "range", "next number must be between 1 and 999999999")
	}

	var seq *model.Sequence
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		// lock the row so a concurrent Next cannot slip under the check
		var current int64
		err := tx.GetContext(ctx, &current,
			s.db.Rebind("SELECT next_number FROM document_sequences WHERE "+keyWhere+s.forUpdate()), keyArgs(key)...)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read sequence %s: %w", key, err)
		}

		highest, err := s.highest(ctx, tx, key)
		if err != nil {
			return err
		}
		if nextNumber <= highest {
			return model.NewConflictError("sequence",
				fmt.Sprintf("number %d already used on %s (highest %d)", nextNumber, key, highest))
		}

		now := s.now().UTC()
		args := append(keyArgs(key), nextNumber, now, now)
		_, err = tx.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO document_sequences (emitter_id, document_type, environment, series, next_number, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (emitter_id, document_type, environment, series)
			DO UPDATE SET next_number = excluded.next_number, updated_at = excluded.updated_at`), args...)
		if err != nil {
			return fmt.Errorf("upsert sequence %s: %w", key, err)
		}

		seq, err = s.get(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sequence configured",
		zap.String("key", key.String()),
		zap.Int64("next_number", nextNumber),
	)
	return seq, nil
}

// Peek returns the sequence without advancing it
func (s *Sequencer) Peek(ctx context.Context, key model.SequenceKey) (*model.Sequence, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return s.get(ctx, s.db, key)
}

// Next takes the next number of key
func (s *Sequencer) Next(ctx context.Context, key model.SequenceKey) (int64, error) {
	return s.Reserve(ctx, key, nil)
}

// Reserve takes the next number of key and runs fn in the same transaction.
// The counter is advanced by a single conditional UPDATE, so concurrent callers
// always receive distinct numbers.
func (s *Sequencer) Reserve(ctx context.Context, key model.SequenceKey, fn ReserveFunc) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	var number int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now().UTC()
		args := append([]interface{}{now}, keyArgs(key)...)
		args = append(args, model.MaxNumber)

		err := tx.QueryRowxContext(ctx, s.db.Rebind(`
			UPDATE document_sequences
			   SET next_number = next_number + 1, updated_at = ?
			 WHERE `+keyWhere+`
			   AND next_number <= ?
			RETURNING next_number - 1`), args...).Scan(&number)
		if errors.Is(err, sql.ErrNoRows) {
			return s.whyNoRow(ctx, tx, key)
		}
		if err != nil {
			return fmt.Errorf("advance sequence %s: %w", key, err)
		}

		if err := s.record(ctx, tx, key, number, model.NumberIssued, "", now); err != nil {
			return err
		}
		if fn != nil {
			return fn(ctx, tx, number)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("number issued",
		zap.String("key", key.String()),
		zap.Int64("number", number),
	)
	return number, nil
}

// whyNoRow tells a missing sequence apart from an exhausted one
func (s *Sequencer) whyNoRow(ctx context.Context, tx *sqlx.Tx, key model.SequenceKey) error {
	var next int64
	err := tx.GetContext(ctx, &next,
		s.db.Rebind("SELECT next_number FROM document_sequences WHERE "+keyWhere), keyArgs(key)...)
	if errors.Is(err, sql.ErrNoRows) {
		return notConfigured(key)
	}
	if err != nil {
		return fmt.Errorf("read sequence %s: %w", key, err)
	}
	return model.NewConflictError("sequence", fmt.Sprintf("series exhausted on %s", key))
}

// Void records every number in [from, to] as voided (inutilização).
// When the range reaches the next number, the sequence jumps past it.
func (s *Sequencer) Void(ctx context.Context, key model.SequenceKey, from, to int64, reason string) (*VoidResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	switch n := utf8.RuneCountInString(reason); {
	case n < MinVoidReason || n > MaxVoidReason:
		return nil, model.NewValidationError("reason", nil, "len", "reason must have between 15 and 255 characters")
	case from < 1 || to > model.MaxNumber:
		return nil, model.NewValidationError("range", fmt.Sprintf("%d-%d", from, to), "range", "numbers must be between 1 and 999999999")
	case from > to:
		return nil, model.NewValidationError("range", fmt.Sprintf("%d-%d", from, to), "order", "from must not exceed to")
	case to-from+1 > MaxVoidRange:
		return nil, model.NewValidationError("range", fmt.Sprintf("%d-%d", from, to), "max", fmt.Sprintf("at most %d numbers per request", MaxVoidRange))
	}

	result := &VoidResult{Key: key, From: from, To: to, Count: to - from + 1}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		var next int64
		err := tx.GetContext(ctx, &next,
			s.db.Rebind("SELECT next_number FROM document_sequences WHERE "+keyWhere+s.forUpdate()), keyArgs(key)...)
		if errors.Is(err, sql.ErrNoRows) {
			return notConfigured(key)
		}
		if err != nil {
			return fmt.Errorf("read sequence %s: %w", key, err)
		}

		var used int64
		args := append(keyArgs(key), from, to)
		err = tx.GetContext(ctx, &used, s.db.Rebind(
			"SELECT COUNT(*) FROM issued_numbers WHERE "+keyWhere+" AND number BETWEEN ? AND ?"), args...)
		if err != nil {
			return fmt.Errorf("check range %s: %w", key, err)
		}
		if used > 0 {
			return model.NewConflictError("sequence",
				fmt.Sprintf("%d number(s) in %d-%d already issued or voided on %s", used, from, to, key))
		}

		now := s.now().UTC()
		for n := from; n <= to; n++ {
			if err := s.record(ctx, tx, key, n, model.NumberVoided, reason, now); err != nil {
				return err
			}
		}

		if to >= next {
			next = to + 1
			args := append([]interface{}{next, now}, keyArgs(key)...)
			_, err = tx.ExecContext(ctx, s.db.Rebind(
				"UPDATE document_sequences SET next_number = ?, updated_at = ? WHERE "+keyWhere), args...)
			if err != nil {
				return fmt.Errorf("advance sequence %s: %w", key, err)
			}
		}
		result.NextNumber = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("numbers voided",
		zap.String("key", key.String()),
		zap.Int64("from", from),
		zap.Int64("to", to),
		zap.Int64("next_number", result.NextNumber),
	)
	return result, nil
}

// List returns every sequence of an emitter
func (s *Sequencer) List(ctx context.Context, emitterID uint) ([]model.Sequence, error) {
	seqs := []model.Sequence{}
	err := s.db.SelectContext(ctx, &seqs, s.db.Rebind(
		"SELECT "+sequenceColumns+" FROM document_sequences WHERE emitter_id = ? ORDER BY document_type, environment, series"), emitterID)
	if err != nil {
		return nil, fmt.Errorf("list sequences of emitter %d: %w", emitterID, err)
	}
	return seqs, nil
}

// History returns the most recent numbers taken from key, newest first
func (s *Sequencer) History(ctx context.Context, key model.SequenceKey, limit int) ([]model.IssuedNumber, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	rows := []model.IssuedNumber{}
	args := append(keyArgs(key), limit)
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, emitter_id, document_type, environment, series, number, status, reason, created_at
		  FROM issued_numbers
		 WHERE `+keyWhere+`
		 ORDER BY number DESC
		 LIMIT ?`), args...)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", key, err)
	}
	return rows, nil
}

func (s *Sequencer) get(ctx context.Context, q sqlx.QueryerContext, key model.SequenceKey) (*model.Sequence, error) {
	var seq model.Sequence
	err := sqlx.GetContext(ctx, q, &seq, s.db.Rebind(
		"SELECT "+sequenceColumns+" FROM document_sequences WHERE "+keyWhere), keyArgs(key)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("sequence", key.String())
	}
	if err != nil {
		return nil, fmt.Errorf("read sequence %s: %w", key, err)
	}
	return &seq, nil
}

func (s *Sequencer) highest(ctx context.Context, tx *sqlx.Tx, key model.SequenceKey) (int64, error) {
	var highest int64
	err := tx.GetContext(ctx, &highest, s.db.Rebind(
		"SELECT COALESCE(MAX(number), 0) FROM issued_numbers WHERE "+keyWhere), keyArgs(key)...)
	if err != nil {
		return 0, fmt.Errorf("highest number of %s: %w", key, err)
	}
	return highest, nil
}

func (s *Sequencer) record(ctx context.Context, tx *sqlx.Tx, key model.SequenceKey, number int64, status model.NumberStatus, reason string, at time.Time) error {
	args := append(keyArgs(key), number, string(status), reason, at)
	_, err := tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO issued_numbers (emitter_id, document_type, environment, series, number, status, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewConflictError("sequence", fmt.Sprintf("number %d already used on %s", number, key))
		}
		return fmt.Errorf("record number %d on %s: %w", number, key, err)
	}
	return nil
}

func (s *Sequencer) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
