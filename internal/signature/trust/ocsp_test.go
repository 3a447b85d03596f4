package trust_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ocsp"

	"github.com/rezonia/fiscal-manager/internal/lookup"
	"github.com/rezonia/fiscal-manager/internal/signature/trust"
	"github.com/rezonia/fiscal-manager/internal/signature/trust/trusttest"
)

// responder answers every request with status, signed by the CA
func responder(t *testing.T, ca *trusttest.CA, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		req, err := ocsp.ParseRequest(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		tmpl := ocsp.Response{
			Status:       status,
			SerialNumber: req.SerialNumber,
			ThisUpdate:   time.Now().Add(-time.Minute),
			NextUpdate:   time.Now().Add(time.Hour),
		}
		if status == ocsp.Revoked {
			tmpl.RevokedAt = time.Now().Add(-time.Minute)
			tmpl.RevocationReason = ocsp.KeyCompromise
		}
		raw, err := ocsp.CreateResponse(ca.Cert, ca.Cert, tmpl, ca.Key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/ocsp-response")
		_, _ = w.Write(raw)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOCSPChecker_GoodAndCached(t *testing.T) {
	var hits atomic.Int32
	ca := trusttest.NewCA(t, "AC Raiz Teste")
	srv := responder(t, ca, ocsp.Good, &hits)
	leaf := ca.Issue(t, "EMPRESA:32409620000175", trusttest.WithOCSPServer(srv.URL))

	checker := trust.NewOCSPChecker(trust.WithHTTPClient(srv.Client()), trust.WithStatusCache(lookup.NewMemoryCache(nil), time.Hour))
	for i := 0; i < 3; i++ {
		revoked, err := checker.Check(context.Background(), leaf.Cert, ca.Cert)
		require.NoError(t, err)
		assert.False(t, revoked)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestStore_CheckRevocation_Revoked(t *testing.T) {
	var hits atomic.Int32
	ca := trusttest.NewCA(t, "AC Raiz Teste")
	srv := responder(t, ca, ocsp.Revoked, &hits)
	leaf := ca.Issue(t, "EMPRESA:32409620000175", trusttest.WithOCSPServer(srv.URL))

	store := trust.NewStore(trust.WithOCSPChecker(trust.NewOCSPChecker(trust.WithHTTPClient(srv.Client()))))
	good, err := store.CheckRevocation(context.Background(), leaf.Cert, ca.Cert)
	require.NoError(t, err)
	assert.False(t, good)
}

func TestStore_CheckRevocation_ResponderDown(t *testing.T) {
	ca := trusttest.NewCA(t, "AC Raiz Teste")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	leaf := ca.Issue(t, "EMPRESA:32409620000175", trusttest.WithOCSPServer(srv.URL))

	strict := trust.NewStore()
	good, err := strict.CheckRevocation(context.Background(), leaf.Cert, ca.Cert)
	assert.Error(t, err)
	assert.False(t, good)

	soft := trust.NewStore(trust.WithSoftFail())
	good, err = soft.CheckRevocation(context.Background(), leaf.Cert, ca.Cert)
	assert.Error(t, err)
	assert.True(t, good)
}

func TestOCSPChecker_CacheHonoursNextUpdate(t *testing.T) {
	var hits atomic.Int32
	ca := trusttest.NewCA(t, "AC Raiz Teste")
	srv := responder(t, ca, ocsp.Revoked, &hits)
	leaf := ca.Issue(t, "EMPRESA:32409620000175", trusttest.WithOCSPServer(srv.URL))

	cache := lookup.NewMemoryCache(nil)
	checker := trust.NewOCSPChecker(trust.WithHTTPClient(srv.Client()), trust.WithStatusCache(cache, 24*time.Hour))
	revoked, err := checker.Check(context.Background(), leaf.Cert, ca.Cert)
	require.NoError(t, err)
	assert.True(t, revoked)

	// the second checker shares the cache and never reaches the responder
	other := trust.NewOCSPChecker(trust.WithStatusCache(cache, 0))
	revoked, err = other.Check(context.Background(), leaf.Cert, ca.Cert)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, int32(1), hits.Load())
}

func TestOCSPChecker_NoCache(t *testing.T) {
	var hits atomic.Int32
	ca := trusttest.NewCA(t, "AC Raiz Teste")
	srv := responder(t, ca, ocsp.Good, &hits)
	leaf := ca.Issue(t, "EMPRESA:32409620000175", trusttest.WithOCSPServer(srv.URL))

	checker := trust.NewOCSPChecker(trust.WithHTTPClient(srv.Client()))
	for i := 0; i < 2; i++ {
		_, err := checker.Check(context.Background(), leaf.Cert, ca.Cert)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), hits.Load())
}

func TestOCSPChecker_NoResponder(t *testing.T) {
	ca := trusttest.NewCA(t, "AC Raiz Teste")
	leaf := ca.Issue(t, "A:11222333000181")

	_, err := trust.NewOCSPChecker().Check(context.Background(), leaf.Cert, ca.Cert)
	assert.Error(t, err)
}
