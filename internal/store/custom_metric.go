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

type customMetricStore struct {
	client *firestore.Client
}

func NewCustomMetricStore(client *firestore.Client) *customMetricStore {
	return &customMetricStore{client: client}
}

func (s *customMetricStore) collection() *firestore.CollectionRef {
	return s.client.Collection("customMetrics")
}

// Create stores m unless the organisation already has a metric of that name.
func (s *customMetricStore) Create(ctx context.Context, m *models.CustomMetric) error {
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, err := tx.Documents(s.byName(m.OrganizationID, m.Name).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			return errs.NewAlreadyExistsError("a metric named " + m.Name + " already exists")
		}
		return tx.Create(s.collection().Doc(m.ID), m)
	})
	if err != nil {
		var exists *errs.AlreadyExistsError
		if errors.As(err, &exists) {
			return exists
		}
		if status.Code(err) == codes.AlreadyExists {
			return errs.NewAlreadyExistsError("custom metric already exists")
		}
		return errs.NewDatabaseError("create", "failed to create custom metric", err)
	}
	return nil
}

func (s *customMetricStore) Get(ctx context.Context, id string) (*models.CustomMetric, error) {
	doc, err := s.collection().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errs.NewNotFoundError("custom metric not found")
		}
		return nil, errs.NewDatabaseError("read", "failed to get custom metric", err)
	}
	var m models.CustomMetric
	if err := doc.DataTo(&m); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse custom metric data", err)
	}
	return &m, nil
}

// List returns the organisation's metrics plus the global ones, by name.
func (s *customMetricStore) List(ctx context.Context, organizationID string) ([]*models.CustomMetric, error) {
	q := s.collection().
		Where("organizationId", "in", []string{organizationID, ""}).
		OrderBy("name", firestore.Asc)
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("read", "failed to list custom metrics", err)
	}
	out := make([]*models.CustomMetric, 0, len(docs))
	for _, doc := range docs {
		var m models.CustomMetric
		if err := doc.DataTo(&m); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse custom metric data", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

func (s *customMetricStore) Update(ctx context.Context, m *models.CustomMetric) error {
	m.UpdatedAt = time.Now()
	if _, err := s.collection().Doc(m.ID).Set(ctx, m); err != nil {
		return errs.NewDatabaseError("update", "failed to update custom metric", err)
	}
	return nil
}

func (s *customMetricStore) Delete(ctx context.Context, id string) error {
	if _, err := s.collection().Doc(id).Delete(ctx); err != nil {
		return errs.NewDatabaseError("delete", "failed to delete custom metric", err)
	}
	return nil
}

// NameTaken reports whether a metric other than excludeID uses name within
// the organisation.
func (s *customMetricStore) NameTaken(ctx context.Context, organizationID, name, excludeID string) (bool, error) {
	docs, err := s.byName(organizationID, name).Limit(2).Documents(ctx).GetAll()
	if err != nil {
		return false, errs.NewDatabaseError("read", "failed to check custom metric name", err)
	}
	for _, doc := range docs {
		if doc.Ref.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *customMetricStore) byName(organizationID, name string) firestore.Query {
	return s.collection().
		Where("organizationId", "==", organizationID).
		Where("name", "==", name)
}
