// Package repository provides the generic gorm CRUD used by the catalog,
// tax configuration and reference-data services.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rezonia/fiscal-manager/internal/model"
)

// Pagination defaults
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalizer is implemented by entities that clean their fields before being stored
type Normalizer interface {
	Normalize()
}

// ListQuery selects one page of results
type ListQuery struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Search   string `form:"q"`
	// Filters are exact-match column conditions
	Filters map[string]interface{} `form:"-"`
}

func (q *ListQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	q.Search = strings.TrimSpace(q.Search)
}

// Page is a slice of results with the total count
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// Repository is a gorm-backed store for one entity type
type Repository[T any] struct {
	db            *gorm.DB
	entity        string
	primaryKey    string
	searchColumns []string
	preload       []string
	order         string
}

// Option configures a Repository
type Option func(*options)

type options struct {
	primaryKey    string
	searchColumns []string
	preload       []string
	order         string
}

// WithPrimaryKey names the key column used by Get, Update and Delete (default "id")
func WithPrimaryKey(column string) Option {
	return func(o *options) {
		o.primaryKey = column
	}
}

// WithSearch sets the columns matched by ListQuery.Search
func WithSearch(columns ...string) Option {
	return func(o *options) {
		o.searchColumns = append(o.searchColumns, columns...)
	}
}

// WithPreload loads the named associations on reads
func WithPreload(associations ...string) Option {
	return func(o *options) {
		o.preload = append(o.preload, associations...)
	}
}

// WithOrder sets the ORDER BY used by List
func WithOrder(order string) Option {
	return func(o *options) {
		o.order = order
	}
}

// New creates a repository. entity names the type in error messages.
func New[T any](db *gorm.DB, entity string, opts ...Option) *Repository[T] {
	o := &options{primaryKey: "id"}
	for _, opt := range opts {
		opt(o)
	}
	if o.order == "" {
		o.order = o.primaryKey
	}
	return &Repository[T]{
		db:            db,
		entity:        entity,
		primaryKey:    o.primaryKey,
		searchColumns: o.searchColumns,
		preload:       o.preload,
		order:         o.order,
	}
}

// Entity returns the entity name used in errors
func (r *Repository[T]) Entity() string {
	return r.entity
}

// DB returns the underlying handle bound to ctx
func (r *Repository[T]) DB(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *Repository[T]) withPreload(db *gorm.DB) *gorm.DB {
	for _, assoc := range r.preload {
		db = db.Preload(assoc)
	}
	return db
}

// List returns one page of entities matching q
func (r *Repository[T]) List(ctx context.Context, q ListQuery) (*Page[T], error) {
	q.normalize()

	db := r.db.WithContext(ctx).Model(new(T))
	for column, value := range q.Filters {
		db = db.Where(clause.Eq{Column: clause.Column{Name: column}, Value: value})
	}
	if q.Search != "" && len(r.searchColumns) > 0 {
		pattern := "%" + strings.ToLower(q.Search) + "%"
		conds := make([]string, len(r.searchColumns))
		args := make([]interface{}, len(r.searchColumns))
		for i, col := range r.searchColumns {
			conds[i] = "LOWER(" + col + ") LIKE ?"
			args[i] = pattern
		}
		db = db.Where(strings.Join(conds, " OR "), args...)
	}

	// the counted query is reused for the page
	db = db.Session(&gorm.Session{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count %s: %w", r.entity, err)
	}

	items := make([]T, 0, q.PageSize)
	err := r.withPreload(db).
		Order(r.order).
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.entity, err)
	}

	return &Page[T]{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// Get loads an entity by primary key
func (r *Repository[T]) Get(ctx context.Context, id interface{}) (*T, error) {
	return r.FindBy(ctx, r.primaryKey, id)
}

// FindBy loads the first entity whose column equals value
func (r *Repository[T]) FindBy(ctx context.Context, column string, value interface{}) (*T, error) {
	var out T
	err := r.withPreload(r.db.WithContext(ctx)).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).
		First(&out).Error
	if err != nil {
		key := fmt.Sprint(value)
		if column != r.primaryKey {
			key = fmt.Sprintf("%s=%v", column, value)
		}
		return nil, r.translate(err, key)
	}
	return &out, nil
}

// Create inserts item with its associations
func (r *Repository[T]) Create(ctx context.Context, item *T) error {
	normalize(item)
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return r.translate(err, "")
	}
	return nil
}

// Update overwrites every column of the entity with primary key id.
// Associations are left untouched; callers that own child rows replace them explicitly.
func (r *Repository[T]) Update(ctx context.Context, id interface{}, item *T) (*T, error) {
	normalize(item)

	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(existing).
		Select("*").
		Omit(r.primaryKey, "created_at", clause.Associations).
		Updates(item).Error
	if err != nil {
		return nil, r.translate(err, fmt.Sprint(id))
	}
	return r.Get(ctx, id)
}

// Delete removes the entity with primary key id and its has-many children
func (r *Repository[T]) Delete(ctx context.Context, id interface{}) error {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Select(clause.Associations).Delete(existing).Error; err != nil {
		return r.translate(err, fmt.Sprint(id))
	}
	return nil
}

// Upsert inserts items in batches, overwriting rows whose conflict columns already exist
func (r *Repository[T]) Upsert(ctx context.Context, items []T, conflictColumns ...string) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		normalize(&items[i])
	}

	cols := make([]clause.Column, len(conflictColumns))
	for i, c := range conflictColumns {
		cols[i] = clause.Column{Name: c}
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: cols, UpdateAll: true}).
		CreateInBatches(items, 500).Error
	if err != nil {
		return r.translate(err, "")
	}
	return nil
}

// Count returns the number of rows
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(new(T)).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", r.entity, err)
	}
	return n, nil
}

func (r *Repository[T]) translate(err error, key string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.NewNotFoundError(r.entity, key)
	case IsUniqueViolation(err):
		return model.NewConflictError(r.entity, "already exists")
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return model.NewConflictError(r.entity, "referenced record missing or still in use")
	}
	return fmt.Errorf("%s: %w", r.entity, err)
}

// IsUniqueViolation reports duplicate-key errors from postgres and sqlite
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}

func normalize(item interface{}) {
	if n, ok := item.(Normalizer); ok {
		n.Normalize()
	}
}
