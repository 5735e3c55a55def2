package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

type paymentOrderRepository struct {
	db *sql.DB
}

// NewPaymentOrderRepository создаёт PostgreSQL-хранилище платёжных записей.
func NewPaymentOrderRepository(store *Store) domain.PaymentOrderRepository {
	return &paymentOrderRepository{db: store.DB()}
}

func (r *paymentOrderRepository) Create(po domain.PaymentOrder) error {
	if errs := po.Validate(); len(errs) > 0 {
		return errs[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if po.CreatedAt.IsZero() {
		po.CreatedAt = now
	}
	if po.UpdatedAt.IsZero() {
		po.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_orders (
			id, invoice_id, sale_id, buyer_id, amount_minor, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		po.ID, po.InvoiceID, po.SaleID, po.BuyerID,
		po.AmountMinor, string(po.Status), po.CreatedAt, po.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentOrderExists
		}
		return fmt.Errorf("insert payment order: %w", err)
	}
	return nil
}

func (r *paymentOrderRepository) GetByInvoice(invoiceID string) (domain.PaymentOrder, error) {
	if invoiceID == "" {
		return domain.PaymentOrder{}, domain.ErrPaymentOrderNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		po     domain.PaymentOrder
		status string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, invoice_id, sale_id, buyer_id, amount_minor, status, created_at, updated_at
		FROM payment_orders
		WHERE invoice_id = $1
	`, invoiceID).Scan(
		&po.ID, &po.InvoiceID, &po.SaleID, &po.BuyerID,
		&po.AmountMinor, &status, &po.CreatedAt, &po.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentOrder{}, domain.ErrPaymentOrderNotFound
		}
		return domain.PaymentOrder{}, fmt.Errorf("select payment order: %w", err)
	}
	po.Status = domain.PaymentOrderStatus(status)
	return po, nil
}

func (r *paymentOrderRepository) Save(po domain.PaymentOrder) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_orders
		SET sale_id = $1,
		    buyer_id = $2,
		    amount_minor = $3,
		    status = $4,
		    updated_at = $5
		WHERE id = $6
	`, po.SaleID, po.BuyerID, po.AmountMinor, string(po.Status), time.Now().UTC(), po.ID)
	if err != nil {
		return fmt.Errorf("update payment order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentOrderNotFound
	}
	return nil
}

var _ domain.PaymentOrderRepository = (*paymentOrderRepository)(nil)
