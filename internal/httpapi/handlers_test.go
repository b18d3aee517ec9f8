package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"svbilling/backend/internal/cache"
	"svbilling/backend/internal/domain"
	"svbilling/backend/internal/service"
	"svbilling/backend/internal/store/memory"
)

// newTestHandler builds a full API with an in-memory store, real AuthManager
// and real Service so handler tests exercise the complete request path.
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	repo := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(repo, cache.NoopSummaryCache{}, logger, 5*time.Second)
	auth := NewAuthManager(testSecret, time.Hour, repo)
	api := New(svc, auth, logger, Options{})

	return api.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v (raw: %s)", err, rec.Body.String())
	}
	return body
}

// registerCompany registers the singleton company and returns a bearer token.
func registerCompany(t *testing.T, handler http.Handler) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/register", "", map[string]string{
		"owner_name":   "Suresh Varma",
		"email":        "suresh@example.com",
		"phone":        "9999900000",
		"fssai_number": "11223344556677",
		"upi_id":       "suresh@upi",
		"password":     "secret123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed with %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("expected token in register response, got %v", body)
	}
	return token
}

func TestHandleHealth(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	handler := newTestHandler(t)

	for _, path := range []string{"/api/products", "/api/parties", "/api/invoices", "/api/company"} {
		rec := doJSON(t, handler, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s without token, got %d", path, rec.Code)
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/products", "garbage-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestRegisterCheckCompanyLogin(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/auth/check-company", "", nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["exists"] != false {
		t.Fatalf("expected exists:false before registration")
	}

	registerCompany(t, handler)

	rec = doJSON(t, handler, http.MethodGet, "/api/auth/check-company", "", nil)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["exists"] != true {
		t.Fatalf("expected exists:true after registration")
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "suresh@example.com",
		"password": "secret123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed with %d: %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["token"] == "" {
		t.Fatalf("expected token in login response")
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "suresh@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestSecondRegistrationConflicts(t *testing.T) {
	handler := newTestHandler(t)
	registerCompany(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/auth/register", "", map[string]string{
		"owner_name":   "Another",
		"email":        "other@example.com",
		"phone":        "8888800000",
		"fssai_number": "99887766554433",
		"password":     "secret123",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInvoiceFlow(t *testing.T) {
	handler := newTestHandler(t)
	token := registerCompany(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/parties", token, map[string]string{
		"name": "Ravi", "phone": "9999900000", "place": "Kochi",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create party failed with %d: %s", rec.Code, rec.Body.String())
	}
	party := decodeBody(t, rec)["party"].(map[string]any)
	partyID := party["id"].(string)

	rec = doJSON(t, handler, http.MethodPost, "/api/products", token, map[string]any{
		"name": "Banana Chips 500g", "price_cents": 10000, "stock": 40, "weight_grams": 500,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product failed with %d: %s", rec.Code, rec.Body.String())
	}
	product := decodeBody(t, rec)["product"].(map[string]any)
	productID := product["id"].(string)
	if sku, _ := product["sku"].(string); len(sku) != 6 || sku[:2] != "SV" {
		t.Fatalf("expected generated SV sku, got %v", product["sku"])
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/invoices", token, map[string]any{
		"party_id": partyID,
		"items": []map[string]any{
			{"product_id": productID, "quantity": 2, "discount_percent": 10},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create invoice failed with %d: %s", rec.Code, rec.Body.String())
	}
	invoice := decodeBody(t, rec)["invoice"].(map[string]any)
	invoiceID := invoice["id"].(string)
	if invoice["invoice_number"] != "INV-00001" {
		t.Fatalf("expected INV-00001, got %v", invoice["invoice_number"])
	}
	if invoice["total_cents"] != float64(18000) {
		t.Fatalf("expected total 18000, got %v", invoice["total_cents"])
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/invoices/"+invoiceID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get invoice failed with %d: %s", rec.Code, rec.Body.String())
	}
	fetched := decodeBody(t, rec)["invoice"].(map[string]any)
	if fetched["invoice_number"] != "INV-00001" || fetched["total_cents"] != float64(18000) {
		t.Fatalf("fetched invoice does not match created one: %v", fetched)
	}
	if items := fetched["items"].([]any); len(items) != 1 {
		t.Fatalf("expected one line item on fetched invoice, got %d", len(items))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/invoices/summary", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary failed with %d", rec.Code)
	}
	summary := decodeBody(t, rec)["summary"].(map[string]any)
	if summary["invoice_count"] != float64(1) || summary["unpaid_cents"] != float64(18000) {
		t.Fatalf("unexpected summary: %v", summary)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/invoices/"+invoiceID+"/payment", token, map[string]string{
		"payment_status": "paid",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("payment update failed with %d: %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody(t, rec)["invoice"].(map[string]any)
	if updated["payment_status"] != "paid" {
		t.Fatalf("expected paid, got %v", updated["payment_status"])
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/invoices/party/"+partyID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list by party failed with %d", rec.Code)
	}
	invoices := decodeBody(t, rec)["invoices"].([]any)
	if len(invoices) != 1 {
		t.Fatalf("expected one invoice for party, got %d", len(invoices))
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/invoices/"+invoiceID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete invoice failed with %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodDelete, "/api/invoices/"+invoiceID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestValidationErrors(t *testing.T) {
	handler := newTestHandler(t)
	token := registerCompany(t, handler)

	// Missing required field.
	rec := doJSON(t, handler, http.MethodPost, "/api/parties", token, map[string]string{
		"name": "Ravi", "phone": "9999900000",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing place, got %d", rec.Code)
	}

	// Unknown fields are rejected.
	rec = doJSON(t, handler, http.MethodPost, "/api/parties", token, map[string]string{
		"name": "Ravi", "phone": "9999900000", "place": "Kochi", "nickname": "R",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}

	// Zero price fails the gt=0 rule before the service is reached.
	rec = doJSON(t, handler, http.MethodPost, "/api/products", token, map[string]any{
		"name": "Free Stuff", "price_cents": 0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero price, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/products/getById/prd-missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing product, got %d", rec.Code)
	}
}

func TestCompanyUpdateAndQR(t *testing.T) {
	handler := newTestHandler(t)

	// No company yet: the QR endpoint has nothing to render.
	rec := doJSON(t, handler, http.MethodGet, "/api/company/qr", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before registration, got %d", rec.Code)
	}

	token := registerCompany(t, handler)

	rec = doJSON(t, handler, http.MethodGet, "/api/company", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get company failed with %d", rec.Code)
	}
	company := decodeBody(t, rec)["company"].(map[string]any)
	companyID := company["id"].(string)

	rec = doJSON(t, handler, http.MethodPut, "/api/company/"+companyID, token, map[string]string{
		"gst_number": "32ABCDE1234F1Z5",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update company failed with %d: %s", rec.Code, rec.Body.String())
	}
	updatedCompany := decodeBody(t, rec)["company"].(map[string]any)
	if updatedCompany["gst_number"] != "32ABCDE1234F1Z5" {
		t.Fatalf("gst update not applied: %v", updatedCompany)
	}
	if updatedCompany["owner_name"] != "Suresh Varma" {
		t.Fatalf("partial update must keep other fields, got %v", updatedCompany["owner_name"])
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/company/cmp-other", token, map[string]string{
		"gst_number": "X",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for wrong company id, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/company/qr", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("qr failed with %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %s", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected png bytes")
	}
}

func TestUploadAndDownload(t *testing.T) {
	handler := newTestHandler(t)
	token := registerCompany(t, handler)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "logo.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte{0x89, 0x50, 0x4e, 0x47}); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("upload failed with %d: %s", rec.Code, rec.Body.String())
	}
	var uploaded domain.FileUploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&uploaded); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if uploaded.FileID == "" || uploaded.URL == "" {
		t.Fatalf("expected file id and url, got %+v", uploaded)
	}

	// Downloads are public so invoice documents can reference the file.
	download := doJSON(t, handler, http.MethodGet, uploaded.URL, "", nil)
	if download.Code != http.StatusOK {
		t.Fatalf("download failed with %d", download.Code)
	}
	if download.Body.Len() != 4 {
		t.Fatalf("expected 4 stored bytes, got %d", download.Body.Len())
	}

	missing := doJSON(t, handler, http.MethodGet, "/api/files/file-missing", "", nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing file, got %d", missing.Code)
	}
}
