package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/GregMSThompson/dashboard-service/internal/dto"
	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/formula"
	"github.com/GregMSThompson/dashboard-service/internal/models"
	"github.com/GregMSThompson/dashboard-service/pkg/helpers"
	"github.com/GregMSThompson/dashboard-service/pkg/logger"
)

const (
	maxFormulaLength = 1000
	maxUnitLength    = 50
)

type customMetricStore interface {
	Create(ctx context.Context, m *models.CustomMetric) error
	Get(ctx context.Context, id string) (*models.CustomMetric, error)
	List(ctx context.Context, organizationID string) ([]*models.CustomMetric, error)
	Update(ctx context.Context, m *models.CustomMetric) error
	Delete(ctx context.Context, id string) error
	NameTaken(ctx context.Context, organizationID, name, excludeID string) (bool, error)
}

// sourceUsage answers whether a stored widget is bound to a data source.
type sourceUsage interface {
	UsesSource(ctx context.Context, organizationID, source string) (bool, error)
}

type customMetricService struct {
	store  customMetricStore
	usage  sourceUsage
	policy *bluemonday.Policy
	newID  func() string
}

func NewCustomMetricService(store customMetricStore, usage sourceUsage) *customMetricService {
	return &customMetricService{
		store:  store,
		usage:  usage,
		policy: bluemonday.StripTagsPolicy(),
		newID:  uuid.NewString,
	}
}

// ListCustomMetrics returns the organisation's metrics and the global ones.
func (s *customMetricService) ListCustomMetrics(ctx context.Context, caller models.Caller) ([]*models.CustomMetric, error) {
	if caller.OrganizationID == "" && !caller.Admin {
		return []*models.CustomMetric{}, nil
	}
	return s.store.List(ctx, caller.OrganizationID)
}

// GetCustomMetric loads a metric of the caller's organisation or a global
// one. Metrics of other organisations are reported as not found.
func (s *customMetricService) GetCustomMetric(ctx context.Context, caller models.Caller, id string) (*models.CustomMetric, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.OrganizationID != "" && m.OrganizationID != caller.OrganizationID {
		return nil, errs.NewNotFoundError("custom metric not found")
	}
	return m, nil
}

func (s *customMetricService) CreateCustomMetric(ctx context.Context, caller models.Caller, req dto.CreateCustomMetricRequest) (*models.CustomMetric, error) {
	if caller.OrganizationID == "" {
		return nil, errs.NewValidationError("no active organization found")
	}
	name, err := s.name(req.Name)
	if err != nil {
		return nil, err
	}
	f, err := parseFormula(req.Formula)
	if err != nil {
		return nil, err
	}
	unit, err := s.unit(req.Unit)
	if err != nil {
		return nil, err
	}

	m := &models.CustomMetric{
		ID:             s.newID(),
		OrganizationID: caller.OrganizationID,
		Name:           name,
		Description:    plainText(s.policy, req.Description),
		Formula:        f.String(),
		Variables:      f.Variables(),
		Unit:           unit,
		IsActive:       true,
		CreatedBy:      caller.UID,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("custom metric created", "metric_id", m.ID, "variables", len(m.Variables))
	return m, nil
}

// UpdateCustomMetric applies a partial update. Global metrics may only be
// changed by administrators.
func (s *customMetricService) UpdateCustomMetric(ctx context.Context, caller models.Caller, id string, req dto.UpdateCustomMetricRequest) (*models.CustomMetric, error) {
	m, err := s.writable(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name, err := s.name(*req.Name)
		if err != nil {
			return nil, err
		}
		if name != m.Name {
			taken, err := s.store.NameTaken(ctx, m.OrganizationID, name, m.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, errs.NewAlreadyExistsError("a metric named " + name + " already exists")
			}
		}
		m.Name = name
	}
	if req.Description != nil {
		m.Description = plainText(s.policy, *req.Description)
	}
	if req.Formula != nil {
		f, err := parseFormula(*req.Formula)
		if err != nil {
			return nil, err
		}
		m.Formula, m.Variables = f.String(), f.Variables()
	}
	if req.Unit != nil {
		unit, err := s.unit(*req.Unit)
		if err != nil {
			return nil, err
		}
		m.Unit = unit
	}
	m.IsActive = helpers.ValueOr(req.IsActive, m.IsActive)

	if err := s.store.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteCustomMetric removes a metric no stored widget is bound to.
func (s *customMetricService) DeleteCustomMetric(ctx context.Context, caller models.Caller, id string) error {
	m, err := s.writable(ctx, caller, id)
	if err != nil {
		return err
	}
	used, err := s.usage.UsesSource(ctx, caller.OrganizationID, m.Source())
	if err != nil {
		return err
	}
	if used {
		return errs.NewValidationError("this metric cannot be deleted because it is being used in one or more dashboards")
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("custom metric deleted", "metric_id", id)
	return nil
}

func (s *customMetricService) writable(ctx context.Context, caller models.Caller, id string) (*models.CustomMetric, error) {
	m, err := s.GetCustomMetric(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if m.OrganizationID == "" && !caller.Admin {
		return nil, errs.NewReadOnlyError("only administrators can change global metrics")
	}
	return m, nil
}

func (s *customMetricService) name(raw string) (string, error) {
	name := plainText(s.policy, raw)
	if name == "" {
		return "", errs.NewValidationError("name is required")
	}
	if len(name) > maxNameLength {
		return "", errs.NewValidationError(fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	return name, nil
}

func (s *customMetricService) unit(raw string) (string, error) {
	unit := plainText(s.policy, raw)
	if len(unit) > maxUnitLength {
		return "", errs.NewValidationError(fmt.Sprintf("unit must be at most %d characters", maxUnitLength))
	}
	return unit, nil
}

// parseFormula validates a formula. Placeholders must name built-in metrics;
// custom metrics cannot reference each other.
func parseFormula(raw string) (*formula.Formula, error) {
	src := strings.TrimSpace(raw)
	if len(src) > maxFormulaLength {
		return nil, errs.NewValidationError(fmt.Sprintf("formula must be at most %d characters", maxFormulaLength))
	}
	f, err := formula.Parse(src)
	if err != nil {
		return nil, errs.NewValidationError("invalid formula: " + err.Error())
	}
	for _, v := range f.Variables() {
		if _, ok := models.CustomMetricID(v); ok {
			return nil, errs.NewValidationError("formulas cannot reference other custom metrics: " + v)
		}
	}
	return f, nil
}
