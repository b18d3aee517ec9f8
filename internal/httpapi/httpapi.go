package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/unrolled/secure"

	"svbilling/backend/internal/domain"
	"svbilling/backend/internal/service"
	"svbilling/backend/internal/store"
)

type API struct {
	service        *service.Service
	auth           *AuthManager
	logger         *slog.Logger
	validate       *validator.Validate
	allowedOrigin  string
	requestTimeout time.Duration
	maxUploadBytes int64
}

type Options struct {
	AllowedOrigin  string
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

func New(svc *service.Service, auth *AuthManager, logger *slog.Logger, opts Options) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AllowedOrigin == "" {
		opts.AllowedOrigin = "*"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 5 << 20
	}

	return &API{
		service:        svc,
		auth:           auth,
		logger:         logger,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		allowedOrigin:  opts.AllowedOrigin,
		requestTimeout: opts.RequestTimeout,
		maxUploadBytes: opts.MaxUploadBytes,
	}
}

func (a *API) Handler() http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	})

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.requestTimeout))
	r.Use(secureMiddleware.Handler)
	r.Use(a.cors)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(httprate.Limit(5, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
				Post("/login", a.handleLogin)
			r.Post("/register", a.handleRegister)
			r.Get("/check-company", a.handleCheckCompany)
		})

		// Public reads: the QR is scanned by customer devices and stored
		// files are referenced from shared invoice documents.
		r.Get("/company/qr", a.handleCompanyQR)
		r.Get("/files/{id}", a.handleFileDownload)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/company", a.handleGetCompany)
			r.Put("/company/{id}", a.handleUpdateCompany)

			r.Route("/products", func(r chi.Router) {
				r.Get("/", a.handleListProducts)
				r.Post("/", a.handleCreateProduct)
				r.Get("/getById/{id}", a.handleGetProduct)
				r.Put("/{id}", a.handleUpdateProduct)
				r.Delete("/{id}", a.handleDeleteProduct)
			})

			r.Route("/parties", func(r chi.Router) {
				r.Get("/", a.handleListParties)
				r.Post("/", a.handleCreateParty)
				r.Put("/{id}", a.handleUpdateParty)
				r.Delete("/{id}", a.handleDeleteParty)
			})

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", a.handleListInvoices)
				r.Post("/", a.handleCreateInvoice)
				r.Get("/summary", a.handleSalesSummary)
				r.Get("/party/{partyID}", a.handleListInvoicesByParty)
				r.Get("/{id}", a.handleGetInvoice)
				r.Put("/{id}/payment", a.handleUpdatePayment)
				r.Delete("/{id}", a.handleDeleteInvoice)
			})

			r.Post("/upload", a.handleUpload)
		})
	})

	return r
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)
		}

		next.ServeHTTP(w, r)
	})
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCheckCompany(w http.ResponseWriter, r *http.Request) {
	exists, err := a.auth.CompanyExists(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists})
}

func (a *API) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := a.service.GetCompany(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"company": company})
}

func (a *API) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	var req domain.CompanyUpdateRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	company, err := a.service.UpdateCompany(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"company": company})
}

// handleCompanyQR renders the merchant's UPI payment URI as a PNG QR code.
func (a *API) handleCompanyQR(w http.ResponseWriter, r *http.Request) {
	company, err := a.service.GetCompany(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	if company.UPIID == "" {
		writeError(w, http.StatusNotFound, errors.New("company has no UPI id configured"))
		return
	}

	uri := fmt.Sprintf("upi://pay?pa=%s&pn=%s", url.QueryEscape(company.UPIID), url.QueryEscape(company.OwnerName))
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleListParties(w http.ResponseWriter, r *http.Request) {
	parties, err := a.service.ListParties(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"parties": parties})
}

func (a *API) handleCreateParty(w http.ResponseWriter, r *http.Request) {
	var req domain.PartyCreateRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	party, err := a.service.CreateParty(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"party": party})
}

func (a *API) handleUpdateParty(w http.ResponseWriter, r *http.Request) {
	var req domain.PartyCreateRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	party, err := a.service.UpdateParty(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"party": party})
}

func (a *API) handleDeleteParty(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteParty(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := a.service.ListInvoices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (a *API) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req domain.InvoiceCreateRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	invoice, err := a.service.CreateInvoice(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invoice": invoice})
}

func (a *API) handleSalesSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.SalesSummary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (a *API) handleListInvoicesByParty(w http.ResponseWriter, r *http.Request) {
	invoices, err := a.service.ListInvoicesByParty(r.Context(), chi.URLParam(r, "partyID"))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (a *API) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	invoice, err := a.service.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}

func (a *API) handleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentStatusUpdateRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	invoice, err := a.service.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "id"), req.PaymentStatus)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invoice": invoice})
}

func (a *API) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteInvoice(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(a.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid multipart request"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("file field required"))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, a.maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if int64(len(data)) > a.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("file too large"))
		return
	}

	blob, err := a.service.SaveUpload(r.Context(), header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, domain.FileUploadResponse{
		FileID: blob.ID,
		URL:    "/api/files/" + blob.ID,
	})
}

func (a *API) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	blob, err := a.service.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", blob.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

func (a *API) decodeAndValidate(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return a.validate.Struct(dest)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the logs; clients get a generic message so
	// internal errors never leak SQL or file paths.
	msg := err.Error()
	if status >= 500 {
		slog.Error("internal error", slog.Int("status", status), slog.Any("error", err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
