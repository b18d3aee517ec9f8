package store

import (
	"context"
	"errors"

	"svbilling/backend/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("invalid input")
	ErrConflict   = errors.New("conflict")
)

// Repository is the persistence surface shared by the in-memory and postgres
// stores. Invoices are written atomically: CreateInvoice assigns the next
// sequential invoice number and inserts the record in one step, so two
// concurrent creations can never share a number.
type Repository interface {
	CreateParty(ctx context.Context, party domain.Party) (*domain.Party, error)
	ListParties(ctx context.Context) ([]domain.Party, error)
	GetParty(ctx context.Context, id string) (*domain.Party, error)
	UpdateParty(ctx context.Context, party domain.Party) (*domain.Party, error)
	DeleteParty(ctx context.Context, id string) error

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	ListInvoices(ctx context.Context) ([]domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoicesByParty(ctx context.Context, partyID string) ([]domain.Invoice, error)
	UpdatePaymentStatus(ctx context.Context, id string, status string) (*domain.Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error

	GetCompany(ctx context.Context) (*domain.Company, error)
	CreateCompany(ctx context.Context, company domain.Company) (*domain.Company, error)
	UpdateCompany(ctx context.Context, company domain.Company) (*domain.Company, error)

	SaveFile(ctx context.Context, file domain.FileBlob) (*domain.FileBlob, error)
	GetFile(ctx context.Context, id string) (*domain.FileBlob, error)
}
