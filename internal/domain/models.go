package domain

import "time"

// Payment statuses an invoice can carry. PaymentStatus is the only mutable
// field on a stored invoice.
const (
	PaymentStatusPaid    = "paid"
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPartial = "partial"
)

// Tax modes accepted on invoice creation. Flat takes the tax value as an
// amount in minor units; percent applies it against the subtotal.
const (
	TaxModeFlat    = "flat"
	TaxModePercent = "percent"
)

type Party struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Place     string    `json:"place"`
	CreatedAt time.Time `json:"created_at"`
}

type PartyCreateRequest struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required"`
	Place string `json:"place" validate:"required"`
}

type Product struct {
	ID              string     `json:"id"`
	SKU             string     `json:"sku"`
	Name            string     `json:"name"`
	WeightGrams     int64      `json:"weight_grams"`
	PriceCents      int64      `json:"price_cents"`
	Stock           int        `json:"stock"`
	ManufactureDate *time.Time `json:"manufacture_date,omitempty"`
	ExpireDate      *time.Time `json:"expire_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type ProductCreateRequest struct {
	Name            string     `json:"name" validate:"required"`
	SKU             string     `json:"sku,omitempty"`
	WeightGrams     int64      `json:"weight_grams" validate:"gte=0"`
	PriceCents      int64      `json:"price_cents" validate:"gt=0"`
	Stock           int        `json:"stock" validate:"gte=0"`
	ManufactureDate *time.Time `json:"manufacture_date,omitempty"`
	ExpireDate      *time.Time `json:"expire_date,omitempty"`
}

// ProductUpdateRequest carries full-document replace semantics: every field
// overwrites the stored value, SKU excepted (SKUs are immutable).
type ProductUpdateRequest struct {
	Name            string     `json:"name" validate:"required"`
	WeightGrams     int64      `json:"weight_grams" validate:"gte=0"`
	PriceCents      int64      `json:"price_cents" validate:"gt=0"`
	Stock           int        `json:"stock" validate:"gte=0"`
	ManufactureDate *time.Time `json:"manufacture_date,omitempty"`
	ExpireDate      *time.Time `json:"expire_date,omitempty"`
}

// LineItem is one priced row of an invoice. UnitPriceCents is copied from the
// product at creation time, never joined live, so historical invoices stay
// readable after catalog edits.
type LineItem struct {
	ProductID       string  `json:"product_id"`
	Name            string  `json:"name"`
	Quantity        int     `json:"quantity"`
	UnitPriceCents  int64   `json:"unit_price_cents"`
	DiscountPercent float64 `json:"discount_percent"`
	LineTotalCents  int64   `json:"line_total_cents"`
}

type Invoice struct {
	ID            string     `json:"id"`
	InvoiceNumber string     `json:"invoice_number"`
	PartyID       string     `json:"party_id"`
	PartyName     string     `json:"party_name"`
	PartyPhone    string     `json:"party_phone"`
	Items         []LineItem `json:"items"`
	SubtotalCents int64      `json:"subtotal_cents"`
	TaxCents      int64      `json:"tax_cents"`
	DiscountCents int64      `json:"discount_cents"`
	TotalCents    int64      `json:"total_cents"`
	PaymentStatus string     `json:"payment_status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// InvoiceItemRequest selects an existing product by id or describes an inline
// one to be created first.
type InvoiceItemRequest struct {
	ProductID       string                `json:"product_id,omitempty"`
	Product         *ProductCreateRequest `json:"product,omitempty"`
	Quantity        int                   `json:"quantity" validate:"gt=0"`
	DiscountPercent float64               `json:"discount_percent" validate:"gte=0,lte=100"`
}

// InvoiceCreateRequest is the cart-like input to the invoice builder.
// TaxValue is interpreted per TaxMode: minor units when flat, a percentage of
// the subtotal when percent.
type InvoiceCreateRequest struct {
	PartyID       string               `json:"party_id,omitempty"`
	Party         *PartyCreateRequest  `json:"party,omitempty"`
	Items         []InvoiceItemRequest `json:"items" validate:"required,min=1,dive"`
	TaxMode       string               `json:"tax_mode,omitempty" validate:"omitempty,oneof=flat percent"`
	TaxValue      float64              `json:"tax_value" validate:"gte=0"`
	PaymentStatus string               `json:"payment_status,omitempty" validate:"omitempty,oneof=paid unpaid partial"`
}

type PaymentStatusUpdateRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required,oneof=paid unpaid partial"`
}

// Company is the singleton merchant identity printed on invoices. At most one
// row exists per deployment.
type Company struct {
	ID             string    `json:"id"`
	OwnerName      string    `json:"owner_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	AlternatePhone string    `json:"alternate_phone,omitempty"`
	FSSAINumber    string    `json:"fssai_number"`
	GSTNumber      string    `json:"gst_number,omitempty"`
	UPIID          string    `json:"upi_id,omitempty"`
	LogoURL        string    `json:"logo_url,omitempty"`
	PasswordHash   string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

type RegisterRequest struct {
	OwnerName      string `json:"owner_name" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone" validate:"required"`
	AlternatePhone string `json:"alternate_phone,omitempty"`
	FSSAINumber    string `json:"fssai_number" validate:"required"`
	GSTNumber      string `json:"gst_number,omitempty"`
	UPIID          string `json:"upi_id,omitempty"`
	LogoURL        string `json:"logo_url,omitempty"`
	Password       string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expires_at"`
	Company   Company `json:"company"`
}

// CompanyUpdateRequest uses pointer fields so only the provided values are
// changed. Email and password are managed through the auth flow, not here.
type CompanyUpdateRequest struct {
	OwnerName      *string `json:"owner_name,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	AlternatePhone *string `json:"alternate_phone,omitempty"`
	FSSAINumber    *string `json:"fssai_number,omitempty"`
	GSTNumber      *string `json:"gst_number,omitempty"`
	UPIID          *string `json:"upi_id,omitempty"`
	LogoURL        *string `json:"logo_url,omitempty"`
}

// Actor is the authenticated company attached to a request context.
type Actor struct {
	CompanyID string
}

// FileBlob is an uploaded file persisted through the repository and served
// back by URL.
type FileBlob struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

type FileUploadResponse struct {
	FileID string `json:"file_id"`
	URL    string `json:"url"`
}

// SalesSummary aggregates the invoice registry for the dashboard.
type SalesSummary struct {
	InvoiceCount int   `json:"invoice_count"`
	TotalCents   int64 `json:"total_cents"`
	PaidCount    int   `json:"paid_count"`
	PaidCents    int64 `json:"paid_cents"`
	UnpaidCount  int   `json:"unpaid_count"`
	UnpaidCents  int64 `json:"unpaid_cents"`
	PartialCount int   `json:"partial_count"`
	PartialCents int64 `json:"partial_cents"`
}
