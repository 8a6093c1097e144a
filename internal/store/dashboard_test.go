package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"cloud.google.com/go/firestore"

	"github.com/GregMSThompson/dashboard-service/internal/errs"
	"github.com/GregMSThompson/dashboard-service/internal/models"
)

func TestDashboardStoreWithEmulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, "test-project")
	if err != nil {
		t.Fatalf("firestore client error: %v", err)
	}
	defer client.Close()

	store := NewDashboardStore(client)
	seed := []*models.Dashboard{
		{ID: "d1", OrganizationID: "org", Name: "Sales", IsActive: true, Widgets: []models.Widget{
			{ID: "w1", Title: "Revenue", Kind: models.KindMetric, DataSource: "total_revenue", Config: models.DefaultConfig(models.KindMetric)},
		}},
		{ID: "d2", OrganizationID: "org", Name: "Archived", IsActive: false},
		{ID: "t1", OrganizationID: "", Name: "Global template", IsTemplate: true, IsActive: true},
		{ID: "t2", OrganizationID: "org", Name: "Org template", IsTemplate: true, IsActive: true},
		{ID: "t3", OrganizationID: "other", Name: "Other template", IsTemplate: true, IsActive: true},
	}
	for _, d := range seed {
		client.Collection("dashboards").Doc(d.ID).Delete(ctx)
		if err := store.Create(ctx, d); err != nil {
			t.Fatalf("seed %s: %v", d.ID, err)
		}
	}

	var exists *errs.AlreadyExistsError
	if err := store.Create(ctx, &models.Dashboard{ID: "d9", OrganizationID: "org", Name: "Sales"}); !errors.As(err, &exists) {
		t.Fatalf("expected AlreadyExistsError for duplicate name, got %v", err)
	}

	list, err := store.List(ctx, "org")
	if err != nil {
		t.Fatalf("list error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "d1" || len(list[0].Widgets) != 1 {
		t.Fatalf("unexpected dashboards %+v", list)
	}

	templates, err := store.ListTemplates(ctx, "org")
	if err != nil {
		t.Fatalf("templates error: %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("expected global and org templates, got %d", len(templates))
	}

	if used, err := store.UsesSource(ctx, "org", "total_revenue"); err != nil || !used {
		t.Fatalf("expected total_revenue in use: %v %v", used, err)
	}
	if used, err := store.UsesSource(ctx, "other", "total_revenue"); err != nil || used {
		t.Fatalf("other organisations must not see the widget: %v %v", used, err)
	}

	if err := store.UpdateWidgets(ctx, "d1", nil); err != nil {
		t.Fatalf("update widgets error: %v", err)
	}
	d, err := store.Get(ctx, "d1")
	if err != nil || len(d.Widgets) != 0 {
		t.Fatalf("widgets not replaced: %+v %v", d, err)
	}

	taken, err := store.NameTaken(ctx, "org", "Sales", "d1")
	if err != nil || taken {
		t.Fatalf("own name should not count as taken: %v %v", taken, err)
	}

	if err := store.Delete(ctx, "d1"); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	var nf *errs.NotFoundError
	if _, err := store.Get(ctx, "d1"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
