package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"svbilling/backend/internal/domain"
	"svbilling/backend/internal/store"
)

// Store is a mutex-guarded in-memory Repository used for development and
// tests. The invoice counter lives behind the same mutex as the invoice map,
// so number assignment and insert are a single atomic step.
type Store struct {
	mu         sync.RWMutex
	parties    map[string]domain.Party
	products   map[string]domain.Product
	skuIndex   map[string]string
	invoices   map[string]domain.Invoice
	company    *domain.Company
	files      map[string]domain.FileBlob
	invoiceSeq int64
}

func New() *Store {
	return &Store{
		parties:  make(map[string]domain.Party),
		products: make(map[string]domain.Product),
		skuIndex: make(map[string]string),
		invoices: make(map[string]domain.Invoice),
		files:    make(map[string]domain.FileBlob),
	}
}

// NewSeeded returns a store preloaded with a small demo catalog.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	parties := []domain.Party{
		{ID: "pty-" + uuid.NewString(), Name: "Ravi", Phone: "9999900000", Place: "Kochi", CreatedAt: now},
		{ID: "pty-" + uuid.NewString(), Name: "Meera Traders", Phone: "9876501234", Place: "Thrissur", CreatedAt: now},
	}
	for _, p := range parties {
		s.parties[p.ID] = p
	}

	products := []domain.Product{
		{ID: "prd-" + uuid.NewString(), SKU: "SVA1B2", Name: "Banana Chips 500g", WeightGrams: 500, PriceCents: 10000, Stock: 40, CreatedAt: now},
		{ID: "prd-" + uuid.NewString(), SKU: "SVC3D4", Name: "Jackfruit Halwa 250g", WeightGrams: 250, PriceCents: 5000, Stock: 25, CreatedAt: now},
		{ID: "prd-" + uuid.NewString(), SKU: "SVE5F6", Name: "Murukku Pack", WeightGrams: 200, PriceCents: 2000, Stock: 60, CreatedAt: now},
	}
	for _, p := range products {
		s.products[p.ID] = p
		s.skuIndex[p.SKU] = p.ID
	}

	return s
}

func (s *Store) CreateParty(_ context.Context, party domain.Party) (*domain.Party, error) {
	if party.ID == "" || party.Name == "" || party.Phone == "" || party.Place == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.parties[party.ID]; exists {
		return nil, store.ErrConflict
	}
	s.parties[party.ID] = party

	created := party
	return &created, nil
}

func (s *Store) ListParties(_ context.Context) ([]domain.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parties := make([]domain.Party, 0, len(s.parties))
	for _, p := range s.parties {
		parties = append(parties, p)
	}
	sort.Slice(parties, func(i, j int) bool {
		if !parties[i].CreatedAt.Equal(parties[j].CreatedAt) {
			return parties[i].CreatedAt.After(parties[j].CreatedAt)
		}
		return parties[i].ID < parties[j].ID
	})
	return parties, nil
}

func (s *Store) GetParty(_ context.Context, id string) (*domain.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	party, ok := s.parties[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := party
	return &found, nil
}

func (s *Store) UpdateParty(_ context.Context, party domain.Party) (*domain.Party, error) {
	if party.Name == "" || party.Phone == "" || party.Place == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.parties[party.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	party.CreatedAt = existing.CreatedAt
	s.parties[party.ID] = party

	updated := party
	return &updated, nil
}

func (s *Store) DeleteParty(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.parties[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.parties, id)
	return nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.SKU == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	if _, exists := s.skuIndex[product.SKU]; exists {
		return nil, store.ErrConflict
	}
	s.products[product.ID] = product
	s.skuIndex[product.SKU] = product.ID

	created := product
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		return strings.ToLower(products[i].Name) < strings.ToLower(products[j].Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := product
	return &found, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	// SKU is immutable.
	product.SKU = existing.SKU
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.skuIndex, product.SKU)
	delete(s.products, id)
	return nil
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.ID == "" || invoice.PartyID == "" || len(invoice.Items) == 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[invoice.ID]; exists {
		return nil, store.ErrConflict
	}

	s.invoiceSeq++
	invoice.InvoiceNumber = fmt.Sprintf("INV-%05d", s.invoiceSeq)
	invoice.Items = append([]domain.LineItem(nil), invoice.Items...)
	s.invoices[invoice.ID] = invoice

	created := invoice
	created.Items = append([]domain.LineItem(nil), invoice.Items...)
	return &created, nil
}

func (s *Store) ListInvoices(_ context.Context) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedInvoices(func(domain.Invoice) bool { return true }), nil
}

func (s *Store) ListInvoicesByParty(_ context.Context, partyID string) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedInvoices(func(inv domain.Invoice) bool { return inv.PartyID == partyID }), nil
}

// sortedInvoices returns matching invoices newest first. Callers must hold at
// least the read lock.
func (s *Store) sortedInvoices(match func(domain.Invoice) bool) []domain.Invoice {
	invoices := make([]domain.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if !match(inv) {
			continue
		}
		copied := inv
		copied.Items = append([]domain.LineItem(nil), inv.Items...)
		invoices = append(invoices, copied)
	}
	sort.Slice(invoices, func(i, j int) bool {
		if !invoices[i].CreatedAt.Equal(invoices[j].CreatedAt) {
			return invoices[i].CreatedAt.After(invoices[j].CreatedAt)
		}
		return invoices[i].InvoiceNumber > invoices[j].InvoiceNumber
	})
	return invoices
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := invoice
	found.Items = append([]domain.LineItem(nil), invoice.Items...)
	return &found, nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, id string, status string) (*domain.Invoice, error) {
	if status == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	invoice.PaymentStatus = status
	s.invoices[id] = invoice

	updated := invoice
	updated.Items = append([]domain.LineItem(nil), invoice.Items...)
	return &updated, nil
}

func (s *Store) DeleteInvoice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.invoices, id)
	return nil
}

func (s *Store) GetCompany(_ context.Context) (*domain.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.company == nil {
		return nil, store.ErrNotFound
	}
	company := *s.company
	return &company, nil
}

func (s *Store) CreateCompany(_ context.Context, company domain.Company) (*domain.Company, error) {
	if company.ID == "" || company.Email == "" || company.PasswordHash == "" {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.company != nil {
		return nil, store.ErrConflict
	}
	stored := company
	s.company = &stored

	created := company
	return &created, nil
}

func (s *Store) UpdateCompany(_ context.Context, company domain.Company) (*domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.company == nil || s.company.ID != company.ID {
		return nil, store.ErrNotFound
	}
	company.Email = s.company.Email
	company.PasswordHash = s.company.PasswordHash
	company.CreatedAt = s.company.CreatedAt
	stored := company
	s.company = &stored

	updated := company
	return &updated, nil
}

func (s *Store) SaveFile(_ context.Context, file domain.FileBlob) (*domain.FileBlob, error) {
	if file.ID == "" || len(file.Data) == 0 {
		return nil, store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file.Data = append([]byte(nil), file.Data...)
	s.files[file.ID] = file

	saved := file
	return &saved, nil
}

func (s *Store) GetFile(_ context.Context, id string) (*domain.FileBlob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, ok := s.files[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	found := file
	found.Data = append([]byte(nil), file.Data...)
	return &found, nil
}
