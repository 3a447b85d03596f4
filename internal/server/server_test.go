package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-manager/internal/app"
	"github.com/rezonia/fiscal-manager/internal/auth"
	"github.com/rezonia/fiscal-manager/internal/config"
	"github.com/rezonia/fiscal-manager/internal/server"
	"github.com/rezonia/fiscal-manager/internal/store/storetest"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testServer struct {
	srv *server.Server
	app *app.App
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.Defaults()
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := app.Wire(context.Background(), cfg, storetest.New(t), zap.NewNop())
	require.NoError(t, err)

	srv := server.NewServer(&server.Config{Address: ":8080", Debug: true}, a)
	return &testServer{srv: srv, app: a}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case []byte:
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (ts *testServer) createEmitter(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/emitters", map[string]interface{}{
		"cnpj":       "11222333000181",
		"legal_name": "Comercial Exemplo LTDA",
		"uf":         "SP",
		"tax_regime": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return jsonNumber(decode(t, w)["id"])
}

func jsonNumber(v interface{}) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, "ok", response["status"])
	assert.NotEmpty(t, response["time"])
}

func TestNumberingFlow(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createEmitter(t)
	seq := "/api/v1/emitters/" + id + "/sequences/nfe/homologation/1"

	w := ts.do(t, http.MethodPut, seq, map[string]interface{}{"next_number": 100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	issue := map[string]interface{}{"document_type": "nfe", "series": 1}
	for _, want := range []float64{100, 101} {
		w = ts.do(t, http.MethodPost, "/api/v1/emitters/"+id+"/documents", issue)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		doc := decode(t, w)
		assert.Equal(t, want, doc["number"])
		assert.Equal(t, "reserved", doc["status"])
		assert.Len(t, doc["access_key"], 44)
	}

	w = ts.do(t, http.MethodGet, seq, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 102.0, decode(t, w)["next_number"])

	w = ts.do(t, http.MethodPost, seq+"/void", map[string]interface{}{
		"from": 102, "to": 104, "reason": "Falha no sistema emissor durante a transmissão",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 105.0, decode(t, w)["next_number"])

	w = ts.do(t, http.MethodGet, seq+"/history?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5.0, decode(t, w)["total"])

	// lowering the counter below used numbers would reuse them
	w = ts.do(t, http.MethodPut, seq, map[string]interface{}{"next_number": 101})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/emitters/"+id+"/documents?document_type=nfe", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2.0, decode(t, w)["total"])

	w = ts.do(t, http.MethodGet, "/api/v1/emitters/"+id+"/sequences", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["total"])

	// used emitters cannot be deleted
	w = ts.do(t, http.MethodDelete, "/api/v1/emitters/"+id, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIssue_NotConfigured(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createEmitter(t)

	w := ts.do(t, http.MethodPost, "/api/v1/emitters/"+id+"/documents", map[string]interface{}{
		"document_type": "nfce", "series": 1,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_CONFIGURED", decode(t, w)["code"])
}

func TestDocumentStatus(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createEmitter(t)
	w := ts.do(t, http.MethodPut, "/api/v1/emitters/"+id+"/sequences/nfe/homologation/1", map[string]interface{}{"next_number": 1})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/emitters/"+id+"/documents", map[string]interface{}{"document_type": "nfe", "series": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	doc := decode(t, w)
	path := "/api/v1/documents/" + doc["id"].(string)

	w = ts.do(t, http.MethodGet, "/api/v1/documents/key/"+doc["access_key"].(string), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, doc["id"], decode(t, w)["id"])

	steps := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"authorize without protocol", map[string]interface{}{"status": "authorized"}, http.StatusBadRequest},
		{"authorize", map[string]interface{}{"status": "authorized", "protocol": "135250000000001"}, http.StatusOK},
		{"void authorized", map[string]interface{}{"status": "voided"}, http.StatusConflict},
		{"cancel", map[string]interface{}{"status": "cancelled", "protocol": "135250000000002"}, http.StatusOK},
		{"unknown status", map[string]interface{}{"status": "lost"}, http.StatusBadRequest},
	}
	for _, st := range steps {
		w = ts.do(t, http.MethodPatch, path+"/status", st.body)
		assert.Equal(t, st.want, w.Code, "%s: %s", st.name, w.Body.String())
	}

	w = ts.do(t, http.MethodGet, path+"/pdf", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPut, path+"/pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, path+"/pdf", []byte("not a pdf"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
		code   string
	}{
		{"missing emitter", http.MethodGet, "/api/v1/emitters/99", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad id", http.MethodGet, "/api/v1/emitters/abc", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad uuid", http.MethodGet, "/api/v1/documents/123", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad document type", http.MethodGet, "/api/v1/emitters/1/sequences/nfx/homologation/1", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"series out of range", http.MethodGet, "/api/v1/emitters/1/sequences/nfe/homologation/1000", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid cnpj", http.MethodPost, "/api/v1/emitters", map[string]interface{}{
			"cnpj": "11222333000182", "legal_name": "X", "uf": "SP", "tax_regime": 1,
		}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed json", http.MethodPost, "/api/v1/emitters", []byte("{"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"classifier disabled", http.MethodPost, "/api/v1/classify/ncm", map[string]interface{}{"description": "café torrado"}, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"inspect garbage", http.MethodPost, "/api/v1/documents/inspect", []byte("<x/>"), http.StatusBadRequest, "INVALID_INPUT"},
		{"verify not xml", http.MethodPost, "/api/v1/documents/verify", []byte("not xml"), http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
}

func TestInvalidCNPJ_ReportsField(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/emitters", map[string]interface{}{
		"cnpj": "11222333000182", "legal_name": "X", "uf": "SP", "tax_regime": 1,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Emitter.CNPJ", decode(t, w)["field"])
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.JWTSecret = testSecret })
	signer, err := auth.NewSigner(testSecret, "fiscal-manager")
	require.NoError(t, err)
	reader, err := signer.Mint("bi", auth.RoleReader, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/emitters", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/emitters", nil, "Authorization", "Bearer "+reader).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/api/v1/emitters", map[string]interface{}{}, "Authorization", "Bearer "+reader).Code)
}

func TestReferenceEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/reference/seed", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/v1/reference/states", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 27.0, decode(t, w)["total"])

	w = ts.do(t, http.MethodGet, "/api/v1/reference/states/SP/municipalities?q=sao%20jose", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["total"])

	w = ts.do(t, http.MethodGet, "/api/v1/reference/ncms/0901.21.00", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "09012100", decode(t, w)["code"])

	w = ts.do(t, http.MethodGet, "/api/v1/reference/municipalities/3550308", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/reference/seed", map[string]interface{}{"tables": []string{"planets"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogAndOrders(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/clients", map[string]interface{}{
		"document": "11222333000181", "name": "Cliente Exemplo LTDA", "uf": "SP",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	client := decode(t, w)["id"]

	w = ts.do(t, http.MethodPost, "/api/v1/products", map[string]interface{}{
		"sku": "CAF-500", "description": "Café torrado 500g", "ncm": "09012100", "unit": "UN", "price": "25.90",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	product := decode(t, w)["id"]

	w = ts.do(t, http.MethodPost, "/api/v1/quotes", map[string]interface{}{
		"client_id": client,
		"items":     []map[string]interface{}{{"product_id": product, "quantity": "2"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	quote := jsonNumber(decode(t, w)["id"])

	w = ts.do(t, http.MethodPost, "/api/v1/quotes/"+quote+"/convert", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode(t, w)
	assert.Equal(t, "51.8", order["total"])
	assert.Equal(t, "open", order["status"])

	w = ts.do(t, http.MethodPost, "/api/v1/quotes/"+quote+"/convert", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPut, "/api/v1/orders/"+jsonNumber(order["id"])+"/status", map[string]interface{}{"status": "invoiced"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/v1/products/"+jsonNumber(product), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/orders?client_id="+jsonNumber(client), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["total"])
}

func TestTaxConfigCalculate(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/tax-configs", map[string]interface{}{
		"name": "Venda interna", "cfop": "5102", "tax_regime": 3, "icms_cst": "00", "icms_rate": "18",
		"pis_cst": "01", "pis_rate": "1.65", "cofins_cst": "01", "cofins_rate": "7.6",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := jsonNumber(decode(t, w)["id"])

	w = ts.do(t, http.MethodPost, "/api/v1/tax-configs/"+id+"/calculate", map[string]interface{}{"amount": "1000"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	breakdown := decode(t, w)
	assert.Equal(t, "180", breakdown["icms"])
	assert.Equal(t, "16.5", breakdown["pis"])
	assert.Equal(t, "76", breakdown["cofins"])
}

func TestLookupEndpoints(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ws/01001000/json/":
			_, _ = w.Write([]byte(`{"cep":"01001-000","logradouro":"Praça da Sé","bairro":"Sé","localidade":"São Paulo","uf":"SP","ibge":"3550308"}`))
		case "/ws/99999999/json/":
			_, _ = w.Write([]byte(`{"erro": true}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer upstream.Close()

	ts := newTestServer(t, func(c *config.Config) {
		c.CNPJBaseURL = upstream.URL + "/cnpj/v1"
		c.CEPBaseURL = upstream.URL + "/ws"
	})

	w := ts.do(t, http.MethodGet, "/api/v1/lookup/cep/01001-000", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "São Paulo", decode(t, w)["city"])

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/lookup/cep/99999999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/lookup/cnpj/123", nil).Code)
	assert.Equal(t, http.StatusBadGateway, ts.do(t, http.MethodGet, "/api/v1/lookup/cnpj/11222333000181", nil).Code)
}
