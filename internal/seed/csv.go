package seed

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"gorm.io/gorm"

	"github.com/rezonia/fiscal-manager/internal/model"
	"github.com/rezonia/fiscal-manager/internal/repository"
)

// ImportMunicipalitiesCSV loads the full IBGE municipality list from a
// semicolon-separated file with a header row containing the columns code,
// name and uf (codigo/nome accepted). IBGE exports are Latin-1; set latin1
// to decode them.
func ImportMunicipalitiesCSV(ctx context.Context, db *gorm.DB, r io.Reader, latin1 bool) (int, error) {
	if latin1 {
		r = transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	}
	rows, err := parseMunicipalities(r)
	if err != nil {
		return 0, err
	}
	repo := repository.New[model.Municipality](db, "municipality", repository.WithPrimaryKey("code"))
	if err := repo.Upsert(ctx, rows, "code"); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func parseMunicipalities(r io.Reader) ([]model.Municipality, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && string(b) == "\xef\xbb\xbf" {
		_, _ = br.Discard(3)
	}
	reader := csv.NewReader(br)
	reader.Comma = ';'
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, model.NewValidationError("csv", nil, "required", "file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "code", "codigo", "código":
			idx["code"] = i
		case "name", "nome":
			idx["name"] = i
		case "uf":
			idx["uf"] = i
		}
	}
	for _, col := range []string{"code", "name", "uf"} {
		if _, ok := idx[col]; !ok {
			return nil, model.NewValidationError("csv", col, "required", "missing column "+col)
		}
	}

	var out []model.Municipality
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		code, err := strconv.Atoi(strings.TrimSpace(rec[idx["code"]]))
		if err != nil || code < 1000000 || code > 9999999 {
			return nil, model.NewValidationError("code", rec[idx["code"]], "len", fmt.Sprintf("line %d: municipality code must have 7 digits", line))
		}
		uf := strings.ToUpper(strings.TrimSpace(rec[idx["uf"]]))
		if _, ok := model.UFCode(uf); !ok {
			return nil, model.NewValidationError("uf", uf, "uf", fmt.Sprintf("line %d: unknown uf", line))
		}
		out = append(out, model.Municipality{
			Code: code,
			Name: strings.TrimSpace(rec[idx["name"]]),
			UF:   uf,
		})
	}
	return out, nil
}
