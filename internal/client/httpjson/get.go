package httpjson

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/GregMSThompson/dashboard-service/internal/errs"
)

// maxBody caps how much of a response is read.
const maxBody = 8 << 20

// NewClient returns an HTTP client that authenticates every request with ts,
// or nil when there is no token source.
func NewClient(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	if ts == nil {
		return nil
	}
	return oauth2.NewClient(ctx, ts)
}

// Join resolves path against base and merges params into its query.
func Join(base, path string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if path != "" {
		ref, err := url.Parse(path)
		if err != nil {
			return "", err
		}
		u = u.ResolveReference(ref)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Get issues a GET and returns the raw body of a 2xx response. Transport
// failures and 5xx/429 answers are transient ExternalServiceErrors; other
// non-2xx answers are permanent. errorOf extracts a service-specific message
// from an error body and may be nil.
func Get(ctx context.Context, client *http.Client, service, target string, errorOf func([]byte) string) ([]byte, error) {
	if client == nil {
		return nil, errs.ErrNoCredentials
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errs.NewExternalServiceError(service, "invalid "+service+" request", false, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.NewExternalServiceError(service, service+" service unreachable", true, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, errs.NewExternalServiceError(service, "failed to read "+service+" response", true, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if errorOf != nil {
			msg = errorOf(body)
		}
		if msg == "" {
			msg = fmt.Sprintf("%s service returned %d", service, resp.StatusCode)
		}
		transient := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, errs.NewExternalServiceError(service, msg, transient, fmt.Errorf("status %d", resp.StatusCode))
	}
	return body, nil
}

// Decode unmarshals body into out, reporting failures as a permanent
// ExternalServiceError.
func Decode(service string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return errs.NewExternalServiceError(service, "invalid "+service+" response", false, err)
	}
	return nil
}
