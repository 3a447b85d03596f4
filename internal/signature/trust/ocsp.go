package trust

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"
)

const (
	DefaultOCSPTimeout = 10 * time.Second
	// DefaultOCSPTTL applies when a response carries no NextUpdate
	DefaultOCSPTTL = time.Hour

	maxOCSPResponseSize = 1 << 20
)

// StatusCache keeps revocation answers between verifications. lookup.Cache
// satisfies it, so the redis instance used for CNPJ and CEP lookups can be
// shared.
type StatusCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// OCSPChecker asks the responders listed in a certificate for its status
type OCSPChecker struct {
	client  *http.Client
	timeout time.Duration
	cache   StatusCache
	ttl     time.Duration
	now     func() time.Time
}

type OCSPOption func(*OCSPChecker)

func WithHTTPClient(c *http.Client) OCSPOption {
	return func(o *OCSPChecker) {
		o.client = c
	}
}

// WithOCSPTimeout bounds each responder query
func WithOCSPTimeout(d time.Duration) OCSPOption {
	return func(o *OCSPChecker) {
		o.timeout = d
	}
}

// WithStatusCache caches answers until the responder's NextUpdate, capped at maxTTL
func WithStatusCache(c StatusCache, maxTTL time.Duration) OCSPOption {
	return func(o *OCSPChecker) {
		o.cache = c
		if maxTTL > 0 {
			o.ttl = maxTTL
		}
	}
}

// NewOCSPChecker creates a checker. Without WithStatusCache every Check
// reaches the network.
func NewOCSPChecker(opts ...OCSPOption) *OCSPChecker {
	o := &OCSPChecker{
		client:  http.DefaultClient,
		timeout: DefaultOCSPTimeout,
		ttl:     DefaultOCSPTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Check reports whether cert has been revoked. Responders are tried in the
// order the certificate lists them.
func (o *OCSPChecker) Check(ctx context.Context, cert, issuer *x509.Certificate) (bool, error) {
	key := statusKey(cert)
	if o.cache != nil {
		if raw, ok, err := o.cache.Get(ctx, key); err == nil && ok && len(raw) == 1 {
			return raw[0] == 'R', nil
		}
	}
	if len(cert.OCSPServer) == 0 {
		return false, errors.New("certificate has no OCSP responder")
	}

	body, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: crypto.SHA256})
	if err != nil {
		return false, fmt.Errorf("create ocsp request: %w", err)
	}

	var errs []error
	for _, url := range cert.OCSPServer {
		resp, err := o.ask(ctx, url, body, issuer)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		revoked := resp.Status == ocsp.Revoked
		o.remember(ctx, key, revoked, resp.NextUpdate)
		return revoked, nil
	}
	return false, fmt.Errorf("no ocsp responder answered: %w", errors.Join(errs...))
}

func (o *OCSPChecker) remember(ctx context.Context, key string, revoked bool, next time.Time) {
	if o.cache == nil {
		return
	}
	ttl := o.ttl
	if !next.IsZero() {
		if until := next.Sub(o.now()); until > 0 && until < ttl {
			ttl = until
		}
	}
	status := []byte{'G'}
	if revoked {
		status[0] = 'R'
	}
	// a failed write only costs another query later
	_ = o.cache.Set(ctx, key, status, ttl)
}

func (o *OCSPChecker) ask(ctx context.Context, url string, body []byte, issuer *x509.Certificate) (*ocsp.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	httpResp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: http %d", url, httpResp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxOCSPResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	resp, err := ocsp.ParseResponseForCert(raw, nil, issuer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	if resp.Status != ocsp.Good && resp.Status != ocsp.Revoked {
		return nil, fmt.Errorf("%s: certificate status unknown", url)
	}
	return resp, nil
}

// statusKey identifies a certificate by issuer and serial
func statusKey(cert *x509.Certificate) string {
	h := sha256.New()
	h.Write(cert.RawIssuer)
	h.Write(cert.SerialNumber.Bytes())
	return "ocsp:" + hex.EncodeToString(h.Sum(nil)[:16])
}
