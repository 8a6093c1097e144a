package optionsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/GregMSThompson/dashboard-service/internal/client/httpjson"
	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
)

const service = "options"

// Adapter loads picker options from the CRM services for one organisation.
// Concurrent loads of the same list share one request.
type Adapter struct {
	baseURL        string
	organizationID string
	client         *http.Client
	group          singleflight.Group
}

func NewAdapter(ctx context.Context, baseURL, organizationID string, ts oauth2.TokenSource) *Adapter {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Adapter{
		baseURL:        baseURL,
		organizationID: organizationID,
		client:         httpjson.NewClient(ctx, ts),
	}
}

type person struct {
	ID       any    `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	User     *struct {
		ID       any    `json:"id"`
		FullName string `json:"full_name"`
		Email    string `json:"email"`
	} `json:"user"`
}

type branch struct {
	ID   any    `json:"id"`
	Name string `json:"name"`
}

type customer struct {
	ID        any    `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// People lists the organisation's members, labelled by full name or email.
func (a *Adapter) People(ctx context.Context) ([]dto.Option, error) {
	if a.organizationID == "" {
		return nil, errs.NewValidationError("organization is required to list people")
	}
	path := fmt.Sprintf("user/organizations/%s/members/", url.PathEscape(a.organizationID))
	var rows []person
	if err := a.load(ctx, path, &rows); err != nil {
		return nil, err
	}
	opts := make([]dto.Option, 0, len(rows))
	for _, p := range rows {
		o := dto.Option{Value: p.ID, Label: firstNonEmpty(p.FullName, p.Email)}
		if p.User != nil {
			if o.Value == nil {
				o.Value = p.User.ID
			}
			if p.FullName == "" {
				o.Label = firstNonEmpty(p.User.FullName, p.Email, p.User.Email)
			}
		}
		opts = append(opts, o)
	}
	return opts, nil
}

func (a *Adapter) Branches(ctx context.Context) ([]dto.Option, error) {
	var rows []branch
	if err := a.load(ctx, "masterdata/branches/", &rows); err != nil {
		return nil, err
	}
	opts := make([]dto.Option, 0, len(rows))
	for _, b := range rows {
		opts = append(opts, dto.Option{Value: b.ID, Label: b.Name})
	}
	return opts, nil
}

// Customers are labelled "First Last (email)".
func (a *Adapter) Customers(ctx context.Context) ([]dto.Option, error) {
	var rows []customer
	if err := a.load(ctx, "masterdata/customers/", &rows); err != nil {
		return nil, err
	}
	opts := make([]dto.Option, 0, len(rows))
	for _, c := range rows {
		email := c.Email
		if email == "" {
			email = "No Email"
		}
		label := strings.TrimSpace(c.FirstName + " " + c.LastName)
		opts = append(opts, dto.Option{Value: c.ID, Label: fmt.Sprintf("%s (%s)", label, email)})
	}
	return opts, nil
}

// load fetches path and decodes either a bare list or a paginated
// {"results": [...]} page into out.
func (a *Adapter) load(ctx context.Context, path string, out any) error {
	if a.client == nil {
		return errs.ErrNoCredentials
	}
	v, err, _ := a.group.Do(path, func() (any, error) {
		target, err := httpjson.Join(a.baseURL, path, nil)
		if err != nil {
			return nil, errs.NewExternalServiceError(service, "invalid options url", false, err)
		}
		return httpjson.Get(ctx, a.client, service, target, detail)
	})
	if err != nil {
		return err
	}
	body := v.([]byte)

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var page struct {
			Results json.RawMessage `json:"results"`
		}
		if err := httpjson.Decode(service, body, &page); err != nil {
			return err
		}
		body = page.Results
	}
	if len(body) == 0 || string(bytes.TrimSpace(body)) == "null" {
		return nil
	}
	return httpjson.Decode(service, body, out)
}

// detail reads the error message of a REST error body.
func detail(body []byte) string {
	var e struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return firstNonEmpty(e.Detail, e.Error)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
