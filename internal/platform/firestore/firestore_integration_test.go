//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pconfig "github.com/vitrine-field/api/internal/platform/config"
	pfirestore "github.com/vitrine-field/api/internal/platform/firestore"
)

type promotionDoc struct {
	Name   string `firestore:"name"`
	Status string `firestore:"status"`
}

type classified interface {
	IsNotFound() bool
	IsConflict() bool
}

func newEmulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "vitrine-test", EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func TestTenantCollectionRoundTrip(t *testing.T) {
	provider := newEmulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	tenantID := "tenant-" + time.Now().UTC().Format("150405.000000")
	promos := pfirestore.NewCollection[promotionDoc](provider, pfirestore.TenantCollection(tenantID, "promotions"))

	for _, id := range []string{"promo-a", "promo-b"} {
		ref, err := promos.Ref(ctx, id)
		if err != nil {
			t.Fatalf("ref %s: %v", id, err)
		}
		if _, err := ref.Create(ctx, promotionDoc{Name: id, Status: "scheduled"}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	ref, _ := promos.Ref(ctx, "promo-a")
	_, err := ref.Create(ctx, promotionDoc{Name: "dup"})
	var cls classified
	if err := pfirestore.WrapError("promotions.create", err); !errors.As(err, &cls) || !cls.IsConflict() {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	docs, err := promos.GetMany(ctx, []string{"promo-b", "missing", "promo-a"})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "promo-b" || docs[1].ID != "promo-a" {
		t.Fatalf("expected promo-b then promo-a, got %+v", docs)
	}

	scheduled, err := promos.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", "scheduled")
	})
	if err != nil || len(scheduled) != 2 {
		t.Fatalf("expected two scheduled promotions, got %d (%v)", len(scheduled), err)
	}

	if err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return tx.Update(ref, []firestore.Update{{Path: "status", Value: "active"}})
	}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	doc, err := promos.Get(ctx, "promo-a")
	if err != nil || doc.Data.Status != "active" {
		t.Fatalf("expected active promotion, got %+v (%v)", doc.Data, err)
	}

	if _, err := promos.Get(ctx, "missing"); !errors.As(err, &cls) || !cls.IsNotFound() {
		t.Fatalf("expected not found classification, got %v", err)
	}

	cancelled, stop := context.WithCancel(ctx)
	stop()
	if err := provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
