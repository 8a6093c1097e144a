package analyticsclient

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/GregMSThompson/dashboard-service/internal/client/httpjson"
	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/pkg/logger"
)

const service = "analytics"

// Adapter queries the analytics service on behalf of one session.
type Adapter struct {
	baseURL string
	client  *http.Client
}

// NewAdapter builds a client for baseURL. A nil token source yields an
// adapter that answers every query with errs.ErrNoCredentials.
func NewAdapter(ctx context.Context, baseURL string, ts oauth2.TokenSource) *Adapter {
	return &Adapter{
		baseURL: baseURL,
		client:  httpjson.NewClient(ctx, ts),
	}
}

func (a *Adapter) Query(ctx context.Context, req dto.QueryRequest) (dto.Payload, error) {
	if a.client == nil {
		return dto.Payload{}, errs.ErrNoCredentials
	}
	target, err := httpjson.Join(a.baseURL, "", req.Values())
	if err != nil {
		return dto.Payload{}, errs.NewExternalServiceError(service, "invalid analytics url", false, err)
	}

	body, err := httpjson.Get(ctx, a.client, service, target, errorMessage)
	if err != nil {
		logger.FromContext(ctx).Warn("analytics query failed", "source", req.Source, "error", err)
		return dto.Payload{}, err
	}

	var resp dto.AnalyticsResponse
	if err := httpjson.Decode(service, body, &resp); err != nil {
		return dto.Payload{}, err
	}
	if resp.Error != "" {
		return dto.Payload{}, errs.NewExternalServiceError(service, resp.Error, false, nil)
	}

	payload, err := dto.DecodePayload(resp.Data)
	if err != nil {
		return dto.Payload{}, errs.NewExternalServiceError(service, "invalid analytics response", false, err)
	}
	logger.FromContext(ctx).Debug("analytics query", slog.String("source", req.Source), slog.Int("items", len(payload.Items)))
	return payload, nil
}

func errorMessage(body []byte) string {
	var resp dto.AnalyticsResponse
	if json.Unmarshal(body, &resp) != nil {
		return ""
	}
	return resp.Error
}
