package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"svbilling/backend/internal/cache"
	"svbilling/backend/internal/domain"
	"svbilling/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	cache      cache.SummaryCache
	logger     *slog.Logger
	summaryTTL time.Duration
}

func New(repo store.Repository, summaryCache cache.SummaryCache, logger *slog.Logger, summaryTTL time.Duration) *Service {
	if summaryCache == nil {
		summaryCache = cache.NoopSummaryCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if summaryTTL <= 0 {
		summaryTTL = 30 * time.Second
	}

	return &Service{
		repo:       repo,
		cache:      summaryCache,
		logger:     logger,
		summaryTTL: summaryTTL,
	}
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

const skuAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateSKU returns "SV" followed by four random alphanumerics.
func generateSKU() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unreachable; fall back to a
		// time-derived suffix rather than panicking.
		return fmt.Sprintf("SV%04d", time.Now().UnixNano()%10000)
	}
	var b strings.Builder
	b.WriteString("SV")
	for _, c := range buf {
		b.WriteByte(skuAlphabet[int(c)%len(skuAlphabet)])
	}
	return b.String()
}

func (s *Service) CreateParty(ctx context.Context, req domain.PartyCreateRequest) (domain.Party, error) {
	party, err := buildParty(req)
	if err != nil {
		return domain.Party{}, err
	}

	created, err := s.repo.CreateParty(ctx, party)
	if err != nil {
		return domain.Party{}, err
	}
	return *created, nil
}

func buildParty(req domain.PartyCreateRequest) (domain.Party, error) {
	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	place := strings.TrimSpace(req.Place)
	if name == "" || phone == "" || place == "" {
		return domain.Party{}, fmt.Errorf("%w: party name, phone and place are required", store.ErrValidation)
	}

	return domain.Party{
		ID:        newID("pty"),
		Name:      name,
		Phone:     phone,
		Place:     place,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *Service) ListParties(ctx context.Context) ([]domain.Party, error) {
	return s.repo.ListParties(ctx)
}

func (s *Service) GetParty(ctx context.Context, id string) (domain.Party, error) {
	party, err := s.repo.GetParty(ctx, id)
	if err != nil {
		return domain.Party{}, err
	}
	return *party, nil
}

// UpdateParty replaces the stored document; the created timestamp is kept by
// the store. Existing invoices keep their denormalized copy of the old name
// and phone.
func (s *Service) UpdateParty(ctx context.Context, id string, req domain.PartyCreateRequest) (domain.Party, error) {
	name := strings.TrimSpace(req.Name)
	phone := strings.TrimSpace(req.Phone)
	place := strings.TrimSpace(req.Place)
	if id == "" || name == "" || phone == "" || place == "" {
		return domain.Party{}, fmt.Errorf("%w: party name, phone and place are required", store.ErrValidation)
	}

	updated, err := s.repo.UpdateParty(ctx, domain.Party{
		ID:    id,
		Name:  name,
		Phone: phone,
		Place: place,
	})
	if err != nil {
		return domain.Party{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteParty(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: party id required", store.ErrValidation)
	}
	return s.repo.DeleteParty(ctx, id)
}

// CreateProduct persists a catalog entry, generating a SKU when the request
// does not carry one. SKU uniqueness is enforced by the store; generation
// collisions are retried a bounded number of times before failing.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name required", store.ErrValidation)
	}
	if req.PriceCents < 1 {
		return domain.Product{}, fmt.Errorf("%w: product price must be positive", store.ErrValidation)
	}
	if req.WeightGrams < 0 || req.Stock < 0 {
		return domain.Product{}, fmt.Errorf("%w: weight and stock must not be negative", store.ErrValidation)
	}

	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	generated := sku == ""

	attempts := 1
	if generated {
		attempts = 3
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if generated {
			sku = generateSKU()
		}
		product := domain.Product{
			ID:              newID("prd"),
			SKU:             sku,
			Name:            name,
			WeightGrams:     req.WeightGrams,
			PriceCents:      req.PriceCents,
			Stock:           req.Stock,
			ManufactureDate: req.ManufactureDate,
			ExpireDate:      req.ExpireDate,
			CreatedAt:       time.Now().UTC(),
		}

		created, err := s.repo.CreateProduct(ctx, product)
		if err == nil {
			return *created, nil
		}
		lastErr = err
		if !generated || !errors.Is(err, store.ErrConflict) {
			break
		}
		s.logger.Warn("sku collision, regenerating", slog.String("sku", sku))
	}
	return domain.Product{}, lastErr
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if id == "" || name == "" {
		return domain.Product{}, fmt.Errorf("%w: product id and name required", store.ErrValidation)
	}
	if req.PriceCents < 1 {
		return domain.Product{}, fmt.Errorf("%w: product price must be positive", store.ErrValidation)
	}
	if req.WeightGrams < 0 || req.Stock < 0 {
		return domain.Product{}, fmt.Errorf("%w: weight and stock must not be negative", store.ErrValidation)
	}

	updated, err := s.repo.UpdateProduct(ctx, domain.Product{
		ID:              id,
		Name:            name,
		WeightGrams:     req.WeightGrams,
		PriceCents:      req.PriceCents,
		Stock:           req.Stock,
		ManufactureDate: req.ManufactureDate,
		ExpireDate:      req.ExpireDate,
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: product id required", store.ErrValidation)
	}
	return s.repo.DeleteProduct(ctx, id)
}

func (s *Service) GetCompany(ctx context.Context) (domain.Company, error) {
	company, err := s.repo.GetCompany(ctx)
	if err != nil {
		return domain.Company{}, err
	}
	return *company, nil
}

func (s *Service) UpdateCompany(ctx context.Context, id string, req domain.CompanyUpdateRequest) (domain.Company, error) {
	if id == "" {
		return domain.Company{}, fmt.Errorf("%w: company id required", store.ErrValidation)
	}
	if actor, ok := ActorFromContext(ctx); ok && actor.CompanyID != id {
		return domain.Company{}, store.ErrNotFound
	}

	existing, err := s.repo.GetCompany(ctx)
	if err != nil {
		return domain.Company{}, err
	}
	if existing.ID != id {
		return domain.Company{}, store.ErrNotFound
	}

	updated := *existing
	if req.OwnerName != nil {
		owner := strings.TrimSpace(*req.OwnerName)
		if owner == "" {
			return domain.Company{}, fmt.Errorf("%w: owner name must not be empty", store.ErrValidation)
		}
		updated.OwnerName = owner
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		if phone == "" {
			return domain.Company{}, fmt.Errorf("%w: phone must not be empty", store.ErrValidation)
		}
		updated.Phone = phone
	}
	if req.AlternatePhone != nil {
		updated.AlternatePhone = strings.TrimSpace(*req.AlternatePhone)
	}
	if req.FSSAINumber != nil {
		fssai := strings.TrimSpace(*req.FSSAINumber)
		if fssai == "" {
			return domain.Company{}, fmt.Errorf("%w: fssai number must not be empty", store.ErrValidation)
		}
		updated.FSSAINumber = fssai
	}
	if req.GSTNumber != nil {
		updated.GSTNumber = strings.TrimSpace(*req.GSTNumber)
	}
	if req.UPIID != nil {
		updated.UPIID = strings.TrimSpace(*req.UPIID)
	}
	if req.LogoURL != nil {
		updated.LogoURL = strings.TrimSpace(*req.LogoURL)
	}

	saved, err := s.repo.UpdateCompany(ctx, updated)
	if err != nil {
		return domain.Company{}, err
	}
	return *saved, nil
}

// SaveUpload persists an uploaded file and returns its blob record. The
// caller is responsible for enforcing the size limit before handing the
// bytes over.
func (s *Service) SaveUpload(ctx context.Context, name string, contentType string, data []byte) (domain.FileBlob, error) {
	if len(data) == 0 {
		return domain.FileBlob{}, fmt.Errorf("%w: empty upload", store.ErrValidation)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "upload"
	}

	saved, err := s.repo.SaveFile(ctx, domain.FileBlob{
		ID:          newID("file"),
		Name:        name,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.FileBlob{}, err
	}
	return *saved, nil
}

func (s *Service) GetFile(ctx context.Context, id string) (domain.FileBlob, error) {
	file, err := s.repo.GetFile(ctx, id)
	if err != nil {
		return domain.FileBlob{}, err
	}
	return *file, nil
}
