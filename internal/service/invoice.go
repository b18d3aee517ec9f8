package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"svbilling/backend/internal/domain"
	"svbilling/backend/internal/store"
)

// clampPercent bounds a discount percent to [0,100]. The clamped value is
// both applied and stored, so a persisted line never carries a percent its
// total was not computed from.
func clampPercent(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// priceLine computes the total for one invoice row. The discount percent is
// clamped to [0,100] before applying.
func priceLine(quantity int, unitPriceCents int64, discountPercent float64) (lineTotal int64, discountAmount int64) {
	discountPercent = clampPercent(discountPercent)
	gross := int64(quantity) * unitPriceCents
	discountAmount = int64(math.Round(float64(gross) * discountPercent / 100))
	return gross - discountAmount, discountAmount
}

// resolveTax turns the requested tax mode and value into a flat amount in
// minor units. Flat reads the value as minor units directly; percent applies
// it against the subtotal. The stored invoice always carries the resolved
// flat amount.
func resolveTax(mode string, value float64, subtotalCents int64) (int64, error) {
	if value < 0 {
		return 0, fmt.Errorf("%w: tax must not be negative", store.ErrValidation)
	}
	switch mode {
	case "", domain.TaxModeFlat:
		return int64(math.Round(value)), nil
	case domain.TaxModePercent:
		if value > 100 {
			return 0, fmt.Errorf("%w: tax percent must not exceed 100", store.ErrValidation)
		}
		return int64(math.Round(float64(subtotalCents) * value / 100)), nil
	default:
		return 0, fmt.Errorf("%w: unknown tax mode %q", store.ErrValidation, mode)
	}
}

// CreateInvoice is the invoice builder: it resolves the party (creating an
// inline one first), resolves every item's product (creating inline ones
// first), prices the lines from unit prices copied at creation time, and
// writes the invoice in one atomic store call that also assigns the
// sequential invoice number.
//
// Inline creates commit before the invoice insert. If the insert then fails,
// the builder compensates by deleting the rows it created for this request;
// compensation is best effort and failures are logged, never returned.
func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	if len(req.Items) == 0 {
		return domain.Invoice{}, fmt.Errorf("%w: at least one item is required", store.ErrValidation)
	}
	status := strings.TrimSpace(req.PaymentStatus)
	if status == "" {
		status = domain.PaymentStatusUnpaid
	}
	if !isValidPaymentStatus(status) {
		return domain.Invoice{}, fmt.Errorf("%w: payment status must be paid, unpaid or partial", store.ErrValidation)
	}

	var inlineParties, inlineProducts []string

	party, err := s.resolveParty(ctx, req, &inlineParties)
	if err != nil {
		return domain.Invoice{}, err
	}

	items := make([]domain.LineItem, 0, len(req.Items))
	var subtotal, discountTotal int64
	for _, item := range req.Items {
		if item.Quantity < 1 {
			s.compensate(ctx, inlineParties, inlineProducts)
			return domain.Invoice{}, fmt.Errorf("%w: item quantity must be positive", store.ErrValidation)
		}

		product, err := s.resolveProduct(ctx, item, &inlineProducts)
		if err != nil {
			s.compensate(ctx, inlineParties, inlineProducts)
			return domain.Invoice{}, err
		}

		discountPct := clampPercent(item.DiscountPercent)
		lineTotal, discountAmount := priceLine(item.Quantity, product.PriceCents, discountPct)
		subtotal += lineTotal
		discountTotal += discountAmount
		items = append(items, domain.LineItem{
			ProductID:       product.ID,
			Name:            product.Name,
			Quantity:        item.Quantity,
			UnitPriceCents:  product.PriceCents,
			DiscountPercent: discountPct,
			LineTotalCents:  lineTotal,
		})
	}

	tax, err := resolveTax(req.TaxMode, req.TaxValue, subtotal)
	if err != nil {
		s.compensate(ctx, inlineParties, inlineProducts)
		return domain.Invoice{}, err
	}

	invoice := domain.Invoice{
		ID:            newID("inv"),
		PartyID:       party.ID,
		PartyName:     party.Name,
		PartyPhone:    party.Phone,
		Items:         items,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		DiscountCents: discountTotal,
		TotalCents:    subtotal + tax,
		PaymentStatus: status,
		CreatedAt:     time.Now().UTC(),
	}

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		s.compensate(ctx, inlineParties, inlineProducts)
		return domain.Invoice{}, err
	}

	s.invalidateSummary(ctx)
	s.logger.Info("invoice created",
		slog.String("invoice_number", created.InvoiceNumber),
		slog.String("party_id", created.PartyID),
		slog.Int64("total_cents", created.TotalCents),
	)
	return *created, nil
}

func (s *Service) resolveParty(ctx context.Context, req domain.InvoiceCreateRequest, inlineParties *[]string) (domain.Party, error) {
	if req.PartyID != "" {
		party, err := s.repo.GetParty(ctx, req.PartyID)
		if err != nil {
			return domain.Party{}, err
		}
		return *party, nil
	}
	if req.Party == nil {
		return domain.Party{}, fmt.Errorf("%w: party selection required", store.ErrValidation)
	}

	party, err := buildParty(*req.Party)
	if err != nil {
		return domain.Party{}, err
	}
	created, err := s.repo.CreateParty(ctx, party)
	if err != nil {
		return domain.Party{}, err
	}
	*inlineParties = append(*inlineParties, created.ID)
	return *created, nil
}

func (s *Service) resolveProduct(ctx context.Context, item domain.InvoiceItemRequest, inlineProducts *[]string) (domain.Product, error) {
	if item.ProductID != "" {
		product, err := s.repo.GetProduct(ctx, item.ProductID)
		if err != nil {
			return domain.Product{}, err
		}
		return *product, nil
	}
	if item.Product == nil {
		return domain.Product{}, fmt.Errorf("%w: item product selection required", store.ErrValidation)
	}

	created, err := s.CreateProduct(ctx, *item.Product)
	if err != nil {
		return domain.Product{}, err
	}
	*inlineProducts = append(*inlineProducts, created.ID)
	return created, nil
}

// compensate undoes inline creates after a failed invoice build.
func (s *Service) compensate(ctx context.Context, partyIDs []string, productIDs []string) {
	for _, id := range productIDs {
		if err := s.repo.DeleteProduct(ctx, id); err != nil {
			s.logger.Warn("compensation failed for inline product", slog.String("id", id), slog.Any("error", err))
		}
	}
	for _, id := range partyIDs {
		if err := s.repo.DeleteParty(ctx, id); err != nil {
			s.logger.Warn("compensation failed for inline party", slog.String("id", id), slog.Any("error", err))
		}
	}
}

func (s *Service) ListInvoices(ctx context.Context) ([]domain.Invoice, error) {
	return s.repo.ListInvoices(ctx)
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) ListInvoicesByParty(ctx context.Context, partyID string) ([]domain.Invoice, error) {
	if partyID == "" {
		return nil, fmt.Errorf("%w: party id required", store.ErrValidation)
	}
	return s.repo.ListInvoicesByParty(ctx, partyID)
}

// UpdatePaymentStatus mutates only the payment status. Repeating the same
// transition is idempotent.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, status string) (domain.Invoice, error) {
	status = strings.TrimSpace(status)
	if !isValidPaymentStatus(status) {
		return domain.Invoice{}, fmt.Errorf("%w: payment status must be paid, unpaid or partial", store.ErrValidation)
	}

	updated, err := s.repo.UpdatePaymentStatus(ctx, id, status)
	if err != nil {
		return domain.Invoice{}, err
	}
	s.invalidateSummary(ctx)
	return *updated, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: invoice id required", store.ErrValidation)
	}
	if err := s.repo.DeleteInvoice(ctx, id); err != nil {
		return err
	}
	s.invalidateSummary(ctx)
	return nil
}

// SalesSummary aggregates the invoice registry, serving from the cache when a
// fresh value is present.
func (s *Service) SalesSummary(ctx context.Context) (domain.SalesSummary, error) {
	if cached, found, err := s.cache.GetSummary(ctx); err == nil && found {
		return *cached, nil
	} else if err != nil {
		s.logger.Warn("summary cache read failed", slog.Any("error", err))
	}

	invoices, err := s.repo.ListInvoices(ctx)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	var summary domain.SalesSummary
	for _, inv := range invoices {
		summary.InvoiceCount++
		summary.TotalCents += inv.TotalCents
		switch inv.PaymentStatus {
		case domain.PaymentStatusPaid:
			summary.PaidCount++
			summary.PaidCents += inv.TotalCents
		case domain.PaymentStatusPartial:
			summary.PartialCount++
			summary.PartialCents += inv.TotalCents
		default:
			summary.UnpaidCount++
			summary.UnpaidCents += inv.TotalCents
		}
	}

	if err := s.cache.SetSummary(ctx, &summary, s.summaryTTL); err != nil {
		s.logger.Warn("summary cache write failed", slog.Any("error", err))
	}
	return summary, nil
}

func (s *Service) invalidateSummary(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("summary cache invalidate failed", slog.Any("error", err))
	}
}

func isValidPaymentStatus(status string) bool {
	switch status {
	case domain.PaymentStatusPaid, domain.PaymentStatusUnpaid, domain.PaymentStatusPartial:
		return true
	}
	return false
}
