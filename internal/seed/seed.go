// Package seed loads the reference tables (states, municipalities, CFOP,
// CST, CSOSN, NCM, payment methods) from embedded JSON, a directory or a
// remote base URL serving the same files.
package seed

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/repository"
)

//go:embed data/*.json
var embedded embed.FS

// Table names, also the JSON file names without extension
const (
	States         = "states"
	Municipalities = "municipalities"
	CFOPs          = "cfops"
	CSTs           = "csts"
	CSOSNs         = "csosns"
	NCMs           = "ncms"
	PaymentMethods = "payment_methods"
)

// Source opens the JSON file of one table
type Source interface {
	Open(ctx context.Context, table string) (io.ReadCloser, error)
}

type fsSource struct {
	fsys fs.FS
}

func (s fsSource) Open(_ context.Context, table string) (io.ReadCloser, error) {
	return s.fsys.Open(table + ".json")
}

// Embedded returns the data compiled into the binary
func Embedded() Source {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		panic(err)
	}
	return fsSource{fsys: sub}
}

// Dir reads <path>/<table>.json
func Dir(path string) Source {
	return fsSource{fsys: os.DirFS(path)}
}

type urlSource struct {
	base   string
	client *http.Client
}

// URL fetches <base>/<table>.json
func URL(base string, client *http.Client) Source {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return urlSource{base: strings.TrimRight(base, "/"), client: client}
}

func (s urlSource) Open(ctx context.Context, table string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/"+table+".json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", table, resp.StatusCode)
	}
	return resp.Body, nil
}

// ParseSource maps a location to a Source: empty or "embedded", an
// http(s) base URL, or a directory.
func ParseSource(location string) Source {
	switch {
	case location == "" || location == "embedded":
		return Embedded()
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return URL(location, nil)
	}
	return Dir(location)
}

// Result reports what happened to one table
type Result struct {
	Table   string `json:"table"`
	Loaded  int    `json:"loaded"`
	Skipped bool   `json:"skipped"`
}

type table struct {
	name  string
	count func(ctx context.Context) (int64, error)
	load  func(ctx context.Context, r io.Reader) (int, error)
}

func newTable[T any](db *gorm.DB, name string) table {
	repo := repository.New[T](db, name, repository.WithPrimaryKey("code"))
	return table{
		name:  name,
		count: repo.Count,
		load: func(ctx context.Context, r io.Reader) (int, error) {
			var rows []T
			if err := json.NewDecoder(r).Decode(&rows); err != nil {
				return 0, fmt.Errorf("decode %s: %w", name, err)
			}
			if err := repo.Upsert(ctx, rows, "code"); err != nil {
				return 0, err
			}
			return len(rows), nil
		},
	}
}

// Seeder fills empty reference tables
type Seeder struct {
	db     *gorm.DB
	source Source
	force  bool
	logger *zap.Logger
	tables []table
}

// Option configures a Seeder
type Option func(*Seeder)

// WithSource replaces the embedded data
func WithSource(src Source) Option {
	return func(s *Seeder) {
		s.source = src
	}
}

// WithForce loads tables even when they already have rows, updating them in place
func WithForce(force bool) Option {
	return func(s *Seeder) {
		s.force = force
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Seeder) {
		s.logger = l
	}
}

// New creates a seeder
func New(db *gorm.DB, opts ...Option) *Seeder {
	s := &Seeder{
		db:     db,
		source: Embedded(),
		logger: zap.NewNop(),
		tables: []table{
			newTable[model.State](db, States),
			newTable[model.Municipality](db, Municipalities),
			newTable[model.CFOP](db, CFOPs),
			newTable[model.CST](db, CSTs),
			newTable[model.CSOSN](db, CSOSNs),
			newTable[model.NCM](db, NCMs),
			newTable[model.PaymentMethod](db, PaymentMethods),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tables lists the table names in load order
func (s *Seeder) Tables() []string {
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.name
	}
	return names
}

// Seed loads the named tables, or all of them. A table that already has
// rows is skipped unless the seeder was created WithForce.
func (s *Seeder) Seed(ctx context.Context, only ...string) ([]Result, error) {
	want := make(map[string]bool, len(only))
	for _, name := range only {
		want[name] = true
	}
	for name := range want {
		if !s.known(name) {
			return nil, model.NewValidationError("table", name, "oneof", "must be one of: "+strings.Join(s.Tables(), " "))
		}
	}

	results := make([]Result, 0, len(s.tables))
	for _, t := range s.tables {
		if len(want) > 0 && !want[t.name] {
			continue
		}
		res, err := s.seedTable(ctx, t)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Seeder) known(name string) bool {
	for _, t := range s.tables {
		if t.name == name {
			return true
		}
	}
	return false
}

func (s *Seeder) seedTable(ctx context.Context, t table) (Result, error) {
	res := Result{Table: t.name}
	if !s.force {
		n, err := t.count(ctx)
		if err != nil {
			return res, err
		}
		if n > 0 {
			res.Skipped = true
			s.logger.Debug("seed skipped", zap.String("table", t.name), zap.Int64("rows", n))
			return res, nil
		}
	}

	rc, err := s.source.Open(ctx, t.name)
	if err != nil {
		return res, fmt.Errorf("open %s: %w", t.name, err)
	}
	defer rc.Close()

	res.Loaded, err = t.load(ctx, rc)
	if err != nil {
		return res, err
	}
	s.logger.Info("seed loaded", zap.String("table", t.name), zap.Int("rows", res.Loaded))
	return res, nil
}
