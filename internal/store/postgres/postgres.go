package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"svbilling/backend/internal/domain"
	"svbilling/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS parties (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			place TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			weight_grams BIGINT NOT NULL DEFAULT 0,
			price_cents BIGINT NOT NULL,
			stock INT NOT NULL DEFAULT 0,
			manufacture_date TIMESTAMPTZ,
			expire_date TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			id TEXT PRIMARY KEY,
			invoice_number TEXT NOT NULL UNIQUE,
			party_id TEXT NOT NULL,
			party_name TEXT NOT NULL,
			party_phone TEXT NOT NULL,
			subtotal_cents BIGINT NOT NULL,
			tax_cents BIGINT NOT NULL DEFAULT 0,
			discount_cents BIGINT NOT NULL DEFAULT 0,
			total_cents BIGINT NOT NULL,
			payment_status TEXT NOT NULL CHECK (payment_status IN ('paid','unpaid','partial')),
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_items (
			invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
			position INT NOT NULL,
			product_id TEXT NOT NULL,
			name TEXT NOT NULL,
			quantity INT NOT NULL,
			unit_price_cents BIGINT NOT NULL,
			discount_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			line_total_cents BIGINT NOT NULL,
			PRIMARY KEY (invoice_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS invoice_counters (
			id INT PRIMARY KEY,
			value BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS companies (
			id TEXT PRIMARY KEY,
			owner_name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			phone TEXT NOT NULL,
			alternate_phone TEXT NOT NULL DEFAULT '',
			fssai_number TEXT NOT NULL,
			gst_number TEXT NOT NULL DEFAULT '',
			upi_id TEXT NOT NULL DEFAULT '',
			logo_url TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS files (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			content_type TEXT NOT NULL,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_party ON invoices (party_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema bootstrap: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateParty(ctx context.Context, party domain.Party) (*domain.Party, error) {
	if party.ID == "" || party.Name == "" || party.Phone == "" || party.Place == "" {
		return nil, store.ErrValidation
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parties (id, name, phone, place, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, party.ID, party.Name, party.Phone, party.Place, party.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := party
	return &created, nil
}

func (s *Store) ListParties(ctx context.Context) ([]domain.Party, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, place, created_at
		FROM parties
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parties := make([]domain.Party, 0, 64)
	for rows.Next() {
		var p domain.Party
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Place, &p.CreatedAt); err != nil {
			return nil, err
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

func (s *Store) GetParty(ctx context.Context, id string) (*domain.Party, error) {
	var p domain.Party
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, place, created_at
		FROM parties
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Phone, &p.Place, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateParty(ctx context.Context, party domain.Party) (*domain.Party, error) {
	if party.Name == "" || party.Phone == "" || party.Place == "" {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE parties
		SET name = $2, phone = $3, place = $4
		WHERE id = $1
	`, party.ID, party.Name, party.Phone, party.Place)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetParty(ctx, party.ID)
}

func (s *Store) DeleteParty(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "parties", id)
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.SKU == "" || product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, weight_grams, price_cents, stock, manufacture_date, expire_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, product.ID, product.SKU, product.Name, product.WeightGrams, product.PriceCents,
		product.Stock, product.ManufactureDate, product.ExpireDate, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, weight_grams, price_cents, stock, manufacture_date, expire_date, created_at
		FROM products
		ORDER BY lower(name)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.WeightGrams, &p.PriceCents,
			&p.Stock, &p.ManufactureDate, &p.ExpireDate, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sku, name, weight_grams, price_cents, stock, manufacture_date, expire_date, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.SKU, &p.Name, &p.WeightGrams, &p.PriceCents,
		&p.Stock, &p.ManufactureDate, &p.ExpireDate, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}

	// SKU is intentionally absent from the SET list: SKUs are immutable.
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, weight_grams = $3, price_cents = $4, stock = $5,
		    manufacture_date = $6, expire_date = $7
		WHERE id = $1
	`, product.ID, product.Name, product.WeightGrams, product.PriceCents,
		product.Stock, product.ManufactureDate, product.ExpireDate)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "products", id)
}

const createInvoiceAttempts = 3

// CreateInvoice assigns the next invoice number and inserts the invoice and
// its line items in a single serializable transaction. The counter is a
// single-row upsert-increment, so concurrent creations serialize on it and
// can never observe the same value. A transaction that loses the
// serialization race (SQLSTATE 40001) is retried; the loser then draws a
// fresh number.
func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.ID == "" || invoice.PartyID == "" || len(invoice.Items) == 0 {
		return nil, store.ErrValidation
	}

	var lastErr error
	for attempt := 0; attempt < createInvoiceAttempts; attempt++ {
		created, err := s.createInvoiceTx(ctx, invoice)
		if err == nil {
			return created, nil
		}
		lastErr = err
		if !isSerializationFailure(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *Store) createInvoiceTx(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (id, value) VALUES (1, 1)
		ON CONFLICT (id) DO UPDATE SET value = invoice_counters.value + 1
		RETURNING value
	`).Scan(&seq)
	if err != nil {
		return nil, err
	}
	invoice.InvoiceNumber = fmt.Sprintf("INV-%05d", seq)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_number, party_id, party_name, party_phone,
			subtotal_cents, tax_cents, discount_cents, total_cents, payment_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, invoice.ID, invoice.InvoiceNumber, invoice.PartyID, invoice.PartyName, invoice.PartyPhone,
		invoice.SubtotalCents, invoice.TaxCents, invoice.DiscountCents, invoice.TotalCents,
		invoice.PaymentStatus, invoice.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for i, item := range invoice.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, position, product_id, name, quantity,
				unit_price_cents, discount_percent, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, invoice.ID, i, item.ProductID, item.Name, item.Quantity,
			item.UnitPriceCents, item.DiscountPercent, item.LineTotalCents)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := invoice
	return &created, nil
}

func (s *Store) ListInvoices(ctx context.Context) ([]domain.Invoice, error) {
	return s.queryInvoices(ctx, `
		SELECT id, invoice_number, party_id, party_name, party_phone,
			subtotal_cents, tax_cents, discount_cents, total_cents, payment_status, created_at
		FROM invoices
		ORDER BY created_at DESC, invoice_number DESC
	`)
}

func (s *Store) ListInvoicesByParty(ctx context.Context, partyID string) ([]domain.Invoice, error) {
	return s.queryInvoices(ctx, `
		SELECT id, invoice_number, party_id, party_name, party_phone,
			subtotal_cents, tax_cents, discount_cents, total_cents, payment_status, created_at
		FROM invoices
		WHERE party_id = $1
		ORDER BY created_at DESC, invoice_number DESC
	`, partyID)
}

func (s *Store) queryInvoices(ctx context.Context, query string, args ...any) ([]domain.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 64)
	index := make(map[string]int)
	for rows.Next() {
		var inv domain.Invoice
		if err := rows.Scan(&inv.ID, &inv.InvoiceNumber, &inv.PartyID, &inv.PartyName, &inv.PartyPhone,
			&inv.SubtotalCents, &inv.TaxCents, &inv.DiscountCents, &inv.TotalCents,
			&inv.PaymentStatus, &inv.CreatedAt); err != nil {
			return nil, err
		}
		index[inv.ID] = len(invoices)
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return invoices, nil
	}

	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
	}
	itemRows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, product_id, name, quantity, unit_price_cents, discount_percent, line_total_cents
		FROM invoice_items
		WHERE invoice_id = ANY($1)
		ORDER BY invoice_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var invoiceID string
		var item domain.LineItem
		if err := itemRows.Scan(&invoiceID, &item.ProductID, &item.Name, &item.Quantity,
			&item.UnitPriceCents, &item.DiscountPercent, &item.LineTotalCents); err != nil {
			return nil, err
		}
		if i, ok := index[invoiceID]; ok {
			invoices[i].Items = append(invoices[i].Items, item)
		}
	}
	return invoices, itemRows.Err()
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_number, party_id, party_name, party_phone,
			subtotal_cents, tax_cents, discount_cents, total_cents, payment_status, created_at
		FROM invoices
		WHERE id = $1
	`, id).Scan(&inv.ID, &inv.InvoiceNumber, &inv.PartyID, &inv.PartyName, &inv.PartyPhone,
		&inv.SubtotalCents, &inv.TaxCents, &inv.DiscountCents, &inv.TotalCents,
		&inv.PaymentStatus, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, quantity, unit_price_cents, discount_percent, line_total_cents
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item domain.LineItem
		if err := itemRows.Scan(&item.ProductID, &item.Name, &item.Quantity,
			&item.UnitPriceCents, &item.DiscountPercent, &item.LineTotalCents); err != nil {
			return nil, err
		}
		inv.Items = append(inv.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id string, status string) (*domain.Invoice, error) {
	if status == "" {
		return nil, store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET payment_status = $2
		WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetInvoice(ctx, id)
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "invoices", id)
}

func (s *Store) GetCompany(ctx context.Context) (*domain.Company, error) {
	var c domain.Company
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_name, email, phone, alternate_phone, fssai_number, gst_number,
			upi_id, logo_url, password_hash, created_at
		FROM companies
		LIMIT 1
	`).Scan(&c.ID, &c.OwnerName, &c.Email, &c.Phone, &c.AlternatePhone, &c.FSSAINumber,
		&c.GSTNumber, &c.UPIID, &c.LogoURL, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateCompany inserts the singleton company row. A serializable transaction
// guards the at-most-one invariant against concurrent registrations.
func (s *Store) CreateCompany(ctx context.Context, company domain.Company) (*domain.Company, error) {
	if company.ID == "" || company.Email == "" || company.PasswordHash == "" {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM companies`).Scan(&count); err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, store.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO companies (id, owner_name, email, phone, alternate_phone, fssai_number,
			gst_number, upi_id, logo_url, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, company.ID, company.OwnerName, company.Email, company.Phone, company.AlternatePhone,
		company.FSSAINumber, company.GSTNumber, company.UPIID, company.LogoURL,
		company.PasswordHash, company.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := company
	return &created, nil
}

func (s *Store) UpdateCompany(ctx context.Context, company domain.Company) (*domain.Company, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE companies
		SET owner_name = $2, phone = $3, alternate_phone = $4, fssai_number = $5,
		    gst_number = $6, upi_id = $7, logo_url = $8
		WHERE id = $1
	`, company.ID, company.OwnerName, company.Phone, company.AlternatePhone,
		company.FSSAINumber, company.GSTNumber, company.UPIID, company.LogoURL)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetCompany(ctx)
}

func (s *Store) SaveFile(ctx context.Context, file domain.FileBlob) (*domain.FileBlob, error) {
	if file.ID == "" || len(file.Data) == 0 {
		return nil, store.ErrValidation
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, name, content_type, data, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, file.ID, file.Name, file.ContentType, file.Data, file.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	saved := file
	return &saved, nil
}

func (s *Store) GetFile(ctx context.Context, id string) (*domain.FileBlob, error) {
	var f domain.FileBlob
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, content_type, data, created_at
		FROM files
		WHERE id = $1
	`, id).Scan(&f.ID, &f.Name, &f.ContentType, &f.Data, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (s *Store) deleteByID(ctx context.Context, table string, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
