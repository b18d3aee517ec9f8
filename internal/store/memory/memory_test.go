package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"svbilling/backend/internal/domain"
	"svbilling/backend/internal/store"
)

func testProduct(id, sku string) domain.Product {
	return domain.Product{
		ID:         id,
		SKU:        sku,
		Name:       "Banana Chips",
		PriceCents: 10000,
		Stock:      5,
		CreatedAt:  time.Now().UTC(),
	}
}

func testInvoice(id, partyID string) domain.Invoice {
	return domain.Invoice{
		ID:         id,
		PartyID:    partyID,
		PartyName:  "Ravi",
		PartyPhone: "9999900000",
		Items: []domain.LineItem{
			{ProductID: "prd-1", Name: "Chips", Quantity: 1, UnitPriceCents: 1000, LineTotalCents: 1000},
		},
		SubtotalCents: 1000,
		TotalCents:    1000,
		PaymentStatus: domain.PaymentStatusUnpaid,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestCreateProductEnforcesUniqueSKU(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateProduct(ctx, testProduct("prd-1", "SVAAAA")); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := s.CreateProduct(ctx, testProduct("prd-2", "SVAAAA")); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on duplicate sku, got %v", err)
	}

	// Deleting frees the SKU for reuse.
	if err := s.DeleteProduct(ctx, "prd-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.CreateProduct(ctx, testProduct("prd-3", "SVAAAA")); err != nil {
		t.Fatalf("sku should be reusable after delete, got %v", err)
	}
}

func TestCreateInvoiceAssignsSequentialNumbers(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		created, err := s.CreateInvoice(ctx, testInvoice(fmt.Sprintf("inv-%d", i), "pty-1"))
		if err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
		expected := fmt.Sprintf("INV-%05d", i)
		if created.InvoiceNumber != expected {
			t.Fatalf("expected %s, got %s", expected, created.InvoiceNumber)
		}
	}

	// Deletes never reuse numbers.
	if err := s.DeleteInvoice(ctx, "inv-2"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	created, err := s.CreateInvoice(ctx, testInvoice("inv-4", "pty-1"))
	if err != nil {
		t.Fatalf("create after delete failed: %v", err)
	}
	if created.InvoiceNumber != "INV-00004" {
		t.Fatalf("expected INV-00004, got %s", created.InvoiceNumber)
	}
}

func TestInvoiceReturnsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateInvoice(ctx, testInvoice("inv-1", "pty-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	fetched, err := s.GetInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	fetched.Items[0].Quantity = 99

	again, err := s.GetInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if again.Items[0].Quantity != 1 {
		t.Fatalf("stored invoice mutated through returned copy")
	}
}

func TestListInvoicesNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		inv := testInvoice(fmt.Sprintf("inv-%d", i), "pty-1")
		inv.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if _, err := s.CreateInvoice(ctx, inv); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	invoices, err := s.ListInvoices(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(invoices) != 3 {
		t.Fatalf("expected 3 invoices, got %d", len(invoices))
	}
	for i := 1; i < len(invoices); i++ {
		if invoices[i].CreatedAt.After(invoices[i-1].CreatedAt) {
			t.Fatalf("invoices not sorted newest first")
		}
	}
}

func TestCompanySingleton(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetCompany(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found before create, got %v", err)
	}

	company := domain.Company{
		ID:           "cmp-1",
		OwnerName:    "Suresh",
		Email:        "suresh@example.com",
		Phone:        "9999900000",
		FSSAINumber:  "11223344556677",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := s.CreateCompany(ctx, company); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	second := company
	second.ID = "cmp-2"
	second.Email = "other@example.com"
	if _, err := s.CreateCompany(ctx, second); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for second company, got %v", err)
	}
}

func TestUpdateCompanyPreservesCredentials(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateCompany(ctx, domain.Company{
		ID:           "cmp-1",
		OwnerName:    "Suresh",
		Email:        "suresh@example.com",
		Phone:        "9999900000",
		FSSAINumber:  "11223344556677",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	update := *created
	update.OwnerName = "Suresh Varma"
	update.Email = "evil@example.com"
	update.PasswordHash = "other"

	saved, err := s.UpdateCompany(ctx, update)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if saved.OwnerName != "Suresh Varma" {
		t.Fatalf("owner update not applied")
	}
	if saved.Email != "suresh@example.com" || saved.PasswordHash != "hash" {
		t.Fatalf("email and password hash must be immutable here, got %s / %s", saved.Email, saved.PasswordHash)
	}

	if _, err := s.UpdateCompany(ctx, domain.Company{ID: "cmp-other"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for wrong id, got %v", err)
	}
}
