// Package lookup queries public registries: company data by CNPJ through
// BrasilAPI and addresses by CEP through ViaCEP. Responses are cached.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/fiscal-manager/internal/brdoc"
	"github.com/rezonia/fiscal-manager/internal/model"
)

// Company is the registration data of a CNPJ
type Company struct {
	CNPJ            string  `json:"cnpj"`
	LegalName       string  `json:"legal_name"`
	TradeName       string  `json:"trade_name,omitempty"`
	Status          string  `json:"status,omitempty"`
	MainActivity    string  `json:"main_activity,omitempty"`
	SimplesNacional *bool   `json:"simples_nacional,omitempty"`
	Email           string  `json:"email,omitempty"`
	Phone           string  `json:"phone,omitempty"`
	Address         Address `json:"address"`
}

// Address is a postal address resolved from a CEP or a CNPJ registration
type Address struct {
	CEP              string `json:"cep"`
	Street           string `json:"street,omitempty"`
	Number           string `json:"number,omitempty"`
	Complement       string `json:"complement,omitempty"`
	District         string `json:"district,omitempty"`
	City             string `json:"city"`
	UF               string `json:"uf"`
	MunicipalityCode string `json:"municipality_code,omitempty"`
}

// Party converts the company into a client or supplier registration
func (c *Company) Party() model.Party {
	return model.Party{
		Document:         c.CNPJ,
		Name:             c.LegalName,
		TradeName:        c.TradeName,
		Email:            strings.ToLower(c.Email),
		Phone:            c.Phone,
		CEP:              c.Address.CEP,
		Street:           c.Address.Street,
		Number:           c.Address.Number,
		District:         c.Address.District,
		MunicipalityCode: c.Address.MunicipalityCode,
		UF:               c.Address.UF,
	}
}

// Default public endpoints
const (
	DefaultCNPJBaseURL = "https://brasilapi.com.br/api/cnpj/v1"
	DefaultCEPBaseURL  = "https://viacep.com.br/ws"
)

// Client resolves CNPJs and CEPs
type Client struct {
	http     *http.Client
	cnpjBase string
	cepBase  string
	cache    Cache
	ttl      time.Duration
	logger   *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(l *Client) {
		l.http = c
	}
}

// WithBaseURLs points the client at other BrasilAPI and ViaCEP hosts. Empty values keep the default.
func WithBaseURLs(cnpj, cep string) Option {
	return func(l *Client) {
		if cnpj != "" {
			l.cnpjBase = strings.TrimRight(cnpj, "/")
		}
		if cep != "" {
			l.cepBase = strings.TrimRight(cep, "/")
		}
	}
}

// WithCache sets the cache and the TTL of its entries
func WithCache(c Cache, ttl time.Duration) Option {
	return func(l *Client) {
		l.cache = c
		l.ttl = ttl
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Client) {
		l.logger = logger
	}
}

// New creates a lookup client. Without WithCache results are kept in memory for a day.
func New(opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: 10 * time.Second},
		cnpjBase: DefaultCNPJBaseURL,
		cepBase:  DefaultCEPBaseURL,
		ttl:      24 * time.Hour,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NewMemoryCache(nil)
	}
	return c
}

type brasilAPICompany struct {
	CNPJ                string `json:"cnpj"`
	RazaoSocial         string `json:"razao_social"`
	NomeFantasia        string `json:"nome_fantasia"`
	Situacao            string `json:"descricao_situacao_cadastral"`
	CNAEDescricao       string `json:"cnae_fiscal_descricao"`
	OpcaoPeloSimples    *bool  `json:"opcao_pelo_simples"`
	Email               string `json:"email"`
	Telefone            string `json:"ddd_telefone_1"`
	CEP                 string `json:"cep"`
	DescricaoTipoLograd string `json:"descricao_tipo_de_logradouro"`
	Logradouro          string `json:"logradouro"`
	Numero              string `json:"numero"`
	Complemento         string `json:"complemento"`
	Bairro              string `json:"bairro"`
	Municipio           string `json:"municipio"`
	UF                  string `json:"uf"`
	CodigoMunicipioIBGE int    `json:"codigo_municipio_ibge"`
}

// CNPJ returns the registration of cnpj. Punctuation is ignored.
func (c *Client) CNPJ(ctx context.Context, cnpj string) (*Company, error) {
	cnpj = brdoc.OnlyDigits(cnpj)
	if !brdoc.ValidCNPJ(cnpj) {
		return nil, model.NewValidationError("cnpj", cnpj, "cnpj", "invalid check digits")
	}

	var raw brasilAPICompany
	if err := c.fetch(ctx, "brasilapi", "cnpj:"+cnpj, c.cnpjBase+"/"+cnpj, &raw); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewNotFoundError("cnpj", cnpj)
		}
		return nil, err
	}

	street := raw.Logradouro
	if raw.DescricaoTipoLograd != "" && !strings.HasPrefix(strings.ToUpper(street), strings.ToUpper(raw.DescricaoTipoLograd)) {
		street = raw.DescricaoTipoLograd + " " + street
	}
	out := &Company{
		CNPJ:            cnpj,
		LegalName:       raw.RazaoSocial,
		TradeName:       raw.NomeFantasia,
		Status:          raw.Situacao,
		MainActivity:    raw.CNAEDescricao,
		SimplesNacional: raw.OpcaoPeloSimples,
		Email:           raw.Email,
		Phone:           brdoc.OnlyDigits(raw.Telefone),
		Address: Address{
			CEP:        brdoc.OnlyDigits(raw.CEP),
			Street:     strings.TrimSpace(street),
			Number:     raw.Numero,
			Complement: raw.Complemento,
			District:   raw.Bairro,
			City:       raw.Municipio,
			UF:         raw.UF,
		},
	}
	if raw.CodigoMunicipioIBGE > 0 {
		out.Address.MunicipalityCode = strconv.Itoa(raw.CodigoMunicipioIBGE)
	}
	return out, nil
}

type viaCEPAddress struct {
	CEP         string          `json:"cep"`
	Logradouro  string          `json:"logradouro"`
	Complemento string          `json:"complemento"`
	Bairro      string          `json:"bairro"`
	Localidade  string          `json:"localidade"`
	UF          string          `json:"uf"`
	IBGE        string          `json:"ibge"`
	Erro        json.RawMessage `json:"erro"`
}

// notFound reports ViaCEP's {"erro": true}, sent with status 200 for unknown CEPs
func (a *viaCEPAddress) notFound() bool {
	v := strings.Trim(string(a.Erro), `"`)
	return v == "true"
}

// CEP returns the address of cep
func (c *Client) CEP(ctx context.Context, cep string) (*Address, error) {
	cep = brdoc.OnlyDigits(cep)
	if !brdoc.ValidCEP(cep) {
		return nil, model.NewValidationError("cep", cep, "cep", "must have 8 digits")
	}

	var raw viaCEPAddress
	if err := c.fetch(ctx, "viacep", "cep:"+cep, c.cepBase+"/"+cep+"/json/", &raw); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewNotFoundError("cep", cep)
		}
		return nil, err
	}
	if raw.notFound() {
		return nil, model.NewNotFoundError("cep", cep)
	}
	return &Address{
		CEP:              brdoc.OnlyDigits(raw.CEP),
		Street:           raw.Logradouro,
		Complement:       raw.Complemento,
		District:         raw.Bairro,
		City:             raw.Localidade,
		UF:               raw.UF,
		MunicipalityCode: raw.IBGE,
	}, nil
}

// fetch GETs url into out, going through the cache. Cache failures are
// logged and never fail the lookup.
func (c *Client) fetch(ctx context.Context, source, key, url string, out interface{}) error {
	if data, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("lookup cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		if err := json.Unmarshal(data, out); err == nil {
			return nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.NewLookupError(source, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return model.NewLookupError(source, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.NewLookupError(source, "read response", err)
	}
	c.logger.Debug("lookup",
		zap.String("source", source),
		zap.String("key", key),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return model.NewNotFoundError(source, key)
	case resp.StatusCode == http.StatusBadRequest:
		// ViaCEP answers 400 for malformed CEPs and BrasilAPI for unknown CNPJs
		return model.NewNotFoundError(source, key)
	case resp.StatusCode != http.StatusOK:
		return model.NewLookupError(source, fmt.Sprintf("unexpected status %d", resp.StatusCode), model.ErrUnavailable)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return model.NewLookupError(source, "decode response", err)
	}
	if err := c.cache.Set(ctx, key, body, c.ttl); err != nil {
		c.logger.Warn("lookup cache write failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}
