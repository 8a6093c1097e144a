package store

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/models"
)

type dashboardStore struct {
	client *firestore.Client
}

func NewDashboardStore(client *firestore.Client) *dashboardStore {
	return &dashboardStore{client: client}
}

func (s *dashboardStore) collection() *firestore.CollectionRef {
	return s.client.Collection("dashboards")
}

// Create stores d unless another dashboard of the organisation already uses
// its name. The check and the write run in one transaction.
func (s *dashboardStore) Create(ctx context.Context, d *models.Dashboard) error {
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, err := tx.Documents(s.byName(d.OrganizationID, d.Name).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			return errs.NewAlreadyExistsError("a dashboard named " + d.Name + " already exists")
		}
		return tx.Create(s.collection().Doc(d.ID), d)
	})
	if err != nil {
		var exists *errs.AlreadyExistsError
		if errors.As(err, &exists) {
			return exists
		}
		if status.Code(err) == codes.AlreadyExists {
			return errs.NewAlreadyExistsError("dashboard already exists")
		}
		return errs.NewDatabaseError("create", "failed to create dashboard", err)
	}
	return nil
}

func (s *dashboardStore) Get(ctx context.Context, id string) (*models.Dashboard, error) {
	doc, err := s.collection().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errs.NewNotFoundError("dashboard not found")
		}
		return nil, errs.NewDatabaseError("read", "failed to get dashboard", err)
	}
	var d models.Dashboard
	if err := doc.DataTo(&d); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse dashboard data", err)
	}
	return &d, nil
}

// List returns the organisation's active, non-template dashboards by name.
func (s *dashboardStore) List(ctx context.Context, organizationID string) ([]*models.Dashboard, error) {
	q := s.collection().
		Where("organizationId", "==", organizationID).
		Where("isTemplate", "==", false).
		Where("isActive", "==", true).
		OrderBy("name", firestore.Asc)
	return s.query(ctx, q, "failed to list dashboards")
}

// ListTemplates returns global templates plus the organisation's own.
func (s *dashboardStore) ListTemplates(ctx context.Context, organizationID string) ([]*models.Dashboard, error) {
	q := s.collection().
		Where("isTemplate", "==", true).
		Where("organizationId", "in", []string{organizationID, ""}).
		OrderBy("name", firestore.Asc)
	return s.query(ctx, q, "failed to list templates")
}

func (s *dashboardStore) Update(ctx context.Context, d *models.Dashboard) error {
	d.UpdatedAt = time.Now()
	_, err := s.collection().Doc(d.ID).Set(ctx, d)
	if err != nil {
		return errs.NewDatabaseError("update", "failed to update dashboard", err)
	}
	return nil
}

// UpdateWidgets replaces the widget collection only.
func (s *dashboardStore) UpdateWidgets(ctx context.Context, id string, widgets []models.Widget) error {
	_, err := s.collection().Doc(id).Update(ctx, []firestore.Update{
		{Path: "widgets", Value: widgets},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errs.NewNotFoundError("dashboard not found")
		}
		return errs.NewDatabaseError("update", "failed to update dashboard widgets", err)
	}
	return nil
}

func (s *dashboardStore) Delete(ctx context.Context, id string) error {
	_, err := s.collection().Doc(id).Delete(ctx)
	if err != nil {
		return errs.NewDatabaseError("delete", "failed to delete dashboard", err)
	}
	return nil
}

// NameTaken reports whether a dashboard other than excludeID uses name
// within the organisation.
func (s *dashboardStore) NameTaken(ctx context.Context, organizationID, name, excludeID string) (bool, error) {
	docs, err := s.byName(organizationID, name).Limit(2).Documents(ctx).GetAll()
	if err != nil {
		return false, errs.NewDatabaseError("read", "failed to check dashboard name", err)
	}
	for _, doc := range docs {
		if doc.Ref.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

// UsesSource reports whether any dashboard or template stores a widget bound
// to source. Widgets are embedded in their dashboard, so the scan runs over
// the documents of the organisation and the global templates.
func (s *dashboardStore) UsesSource(ctx context.Context, organizationID, source string) (bool, error) {
	q := s.collection().Where("organizationId", "in", []string{organizationID, ""})
	dashboards, err := s.query(ctx, q, "failed to scan dashboards")
	if err != nil {
		return false, err
	}
	for _, d := range dashboards {
		for _, w := range d.Widgets {
			if w.DataSource == source {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *dashboardStore) byName(organizationID, name string) firestore.Query {
	return s.collection().
		Where("organizationId", "==", organizationID).
		Where("name", "==", name)
}

func (s *dashboardStore) query(ctx context.Context, q firestore.Query, msg string) ([]*models.Dashboard, error) {
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("read", msg, err)
	}
	out := make([]*models.Dashboard, 0, len(docs))
	for _, doc := range docs {
		var d models.Dashboard
		if err := doc.DataTo(&d); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse dashboard data", err)
		}
		out = append(out, &d)
	}
	return out, nil
}
