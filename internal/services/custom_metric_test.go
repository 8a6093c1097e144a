package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/pkg/helpers"
)

type fakeMetricStore struct {
	metrics map[string]*models.CustomMetric
	deleted []string
}

func newFakeMetricStore(seed ...*models.CustomMetric) *fakeMetricStore {
	f := &fakeMetricStore{metrics: map[string]*models.CustomMetric{}}
	for _, m := range seed {
		c := *m
		f.metrics[m.ID] = &c
	}
	return f
}

func (f *fakeMetricStore) Create(ctx context.Context, m *models.CustomMetric) error {
	if taken, _ := f.NameTaken(ctx, m.OrganizationID, m.Name, ""); taken {
		return errs.NewAlreadyExistsError("a metric named " + m.Name + " already exists")
	}
	c := *m
	f.metrics[m.ID] = &c
	return nil
}

func (f *fakeMetricStore) Get(_ context.Context, id string) (*models.CustomMetric, error) {
	m, ok := f.metrics[id]
	if !ok {
		return nil, errs.NewNotFoundError("custom metric not found")
	}
	c := *m
	return &c, nil
}

func (f *fakeMetricStore) List(_ context.Context, org string) ([]*models.CustomMetric, error) {
	var out []*models.CustomMetric
	for _, m := range f.metrics {
		if m.OrganizationID == org || m.OrganizationID == "" {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeMetricStore) Update(_ context.Context, m *models.CustomMetric) error {
	c := *m
	f.metrics[m.ID] = &c
	return nil
}

func (f *fakeMetricStore) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.metrics, id)
	return nil
}

func (f *fakeMetricStore) NameTaken(_ context.Context, org, name, excludeID string) (bool, error) {
	for _, m := range f.metrics {
		if m.OrganizationID == org && m.Name == name && m.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

// usedSources reports the sources bound to stored widgets.
type usedSources map[string]bool

func (u usedSources) UsesSource(_ context.Context, _ string, source string) (bool, error) {
	return u[source], nil
}

func newTestMetricService(store customMetricStore, usage sourceUsage) *customMetricService {
	s := NewCustomMetricService(store, usage)
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("m-%d", n)
	}
	return s
}

func TestCreateCustomMetric(t *testing.T) {
	store := newFakeMetricStore()
	svc := newTestMetricService(store, usedSources{})

	m, err := svc.CreateCustomMetric(helpers.TestCtx(), member, dto.CreateCustomMetricRequest{
		Name:    " <b>Revenue per quote</b> ",
		Formula: "  {{total_revenue}} / {{num_quotes_accepted}} ",
		Unit:    "$",
	})
	if err != nil {
		t.Fatalf("CreateCustomMetric: %v", err)
	}
	if m.Name != "Revenue per quote" || m.OrganizationID != "org" || m.CreatedBy != "u1" || !m.IsActive {
		t.Errorf("unexpected metric %+v", m)
	}
	if m.Formula != "{{total_revenue}} / {{num_quotes_accepted}}" {
		t.Errorf("formula not trimmed: %q", m.Formula)
	}
	if !reflect.DeepEqual(m.Variables, []string{"total_revenue", "num_quotes_accepted"}) {
		t.Errorf("variables = %v", m.Variables)
	}
	if m.Source() != "custom_m-1" {
		t.Errorf("source = %q", m.Source())
	}

	var exists *errs.AlreadyExistsError
	if _, err := svc.CreateCustomMetric(helpers.TestCtx(), member, dto.CreateCustomMetricRequest{Name: "Revenue per quote", Formula: "1"}); !errors.As(err, &exists) {
		t.Errorf("expected AlreadyExistsError, got %v", err)
	}
}

func TestCreateCustomMetric_Validation(t *testing.T) {
	svc := newTestMetricService(newFakeMetricStore(), usedSources{})

	tests := []struct {
		name   string
		caller models.Caller
		req    dto.CreateCustomMetricRequest
	}{
		{"no organisation", models.Caller{UID: "u"}, dto.CreateCustomMetricRequest{Name: "n", Formula: "1"}},
		{"empty name", member, dto.CreateCustomMetricRequest{Name: "<i></i>", Formula: "1"}},
		{"empty formula", member, dto.CreateCustomMetricRequest{Name: "n"}},
		{"code in formula", member, dto.CreateCustomMetricRequest{Name: "n", Formula: "__import__('os').system('x')"}},
		{"nested custom metric", member, dto.CreateCustomMetricRequest{Name: "n", Formula: "{{custom_m-9}} * 2"}},
		{"long unit", member, dto.CreateCustomMetricRequest{Name: "n", Formula: "1", Unit: strings.Repeat("u", 51)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ve *errs.ValidationError
			if _, err := svc.CreateCustomMetric(helpers.TestCtx(), tt.caller, tt.req); !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestUpdateCustomMetric(t *testing.T) {
	store := newFakeMetricStore(
		&models.CustomMetric{ID: "m1", OrganizationID: "org", Name: "Margin", Formula: "{{a}}", Variables: []string{"a"}, IsActive: true},
		&models.CustomMetric{ID: "g1", Name: "Global", Formula: "1", IsActive: true},
		&models.CustomMetric{ID: "x1", OrganizationID: "other", Name: "Other", Formula: "1", IsActive: true},
	)
	svc := newTestMetricService(store, usedSources{})

	m, err := svc.UpdateCustomMetric(helpers.TestCtx(), member, "m1", dto.UpdateCustomMetricRequest{
		Formula:  helpers.Ptr("{{total_revenue}} - {{total_expenses}}"),
		IsActive: helpers.Ptr(false),
	})
	if err != nil {
		t.Fatalf("UpdateCustomMetric: %v", err)
	}
	if m.Name != "Margin" || m.IsActive || len(m.Variables) != 2 {
		t.Errorf("unexpected update result %+v", m)
	}

	var ro *errs.ReadOnlyError
	if _, err := svc.UpdateCustomMetric(helpers.TestCtx(), member, "g1", dto.UpdateCustomMetricRequest{Name: helpers.Ptr("x")}); !errors.As(err, &ro) {
		t.Errorf("expected ReadOnlyError for a global metric, got %v", err)
	}
	if _, err := svc.UpdateCustomMetric(helpers.TestCtx(), admin, "g1", dto.UpdateCustomMetricRequest{Name: helpers.Ptr("Global 2")}); err != nil {
		t.Errorf("admins may change global metrics: %v", err)
	}
	var nf *errs.NotFoundError
	if _, err := svc.UpdateCustomMetric(helpers.TestCtx(), member, "x1", dto.UpdateCustomMetricRequest{}); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError for another organisation, got %v", err)
	}
	var ve *errs.ValidationError
	if _, err := svc.UpdateCustomMetric(helpers.TestCtx(), member, "m1", dto.UpdateCustomMetricRequest{Formula: helpers.Ptr("{{a}} +")}); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for a broken formula, got %v", err)
	}
}

func TestDeleteCustomMetric_RefusesMetricsInUse(t *testing.T) {
	store := newFakeMetricStore(
		&models.CustomMetric{ID: "used", OrganizationID: "org", Name: "Used", Formula: "1"},
		&models.CustomMetric{ID: "free", OrganizationID: "org", Name: "Free", Formula: "1"},
	)
	svc := newTestMetricService(store, usedSources{"custom_used": true})

	var ve *errs.ValidationError
	if err := svc.DeleteCustomMetric(helpers.TestCtx(), member, "used"); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for a metric in use, got %v", err)
	}
	if err := svc.DeleteCustomMetric(helpers.TestCtx(), member, "free"); err != nil {
		t.Fatalf("DeleteCustomMetric: %v", err)
	}
	if !reflect.DeepEqual(store.deleted, []string{"free"}) {
		t.Errorf("deleted = %v", store.deleted)
	}
}

func TestListCustomMetrics(t *testing.T) {
	store := newFakeMetricStore(
		&models.CustomMetric{ID: "m1", OrganizationID: "org", Name: "B"},
		&models.CustomMetric{ID: "g1", Name: "A"},
		&models.CustomMetric{ID: "x1", OrganizationID: "other", Name: "C"},
	)
	svc := newTestMetricService(store, usedSources{})

	list, err := svc.ListCustomMetrics(helpers.TestCtx(), member)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "g1" || list[1].ID != "m1" {
		t.Errorf("unexpected list %+v", list)
	}
	if list, _ := svc.ListCustomMetrics(helpers.TestCtx(), models.Caller{UID: "u"}); len(list) != 0 {
		t.Errorf("callers without an organisation see nothing, got %d", len(list))
	}
}
