package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

const opTimeout = 5 * time.Second

const lotColumns = `
	id, supplier_product_id, supplier_variant_id, supplier_cost_minor,
	supplier_carrier, origin_country, image_urls,
	sale_id, auction_item_id, start_bid_minor, reserve_minor,
	winner_id, winning_bid_minor,
	payment_order_id, invoice_id, paid_at,
	supplier_order_id, supplier_order_number, supplier_order_status,
	shipping, tracking_number, tracking_carrier,
	total_cost_minor, profit_minor, status, error_message,
	version, created_at, updated_at`

type lotRepository struct {
	db *sql.DB
}

// NewLotRepository создаёт PostgreSQL-реализацию LotRepository.
func NewLotRepository(store *Store) domain.LotRepository {
	return &lotRepository{db: store.DB()}
}

func (r *lotRepository) Create(lot domain.Lot) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	images, shipping, err := marshalLotJSON(lot)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lots (`+lotColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
		        $17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)
	`,
		lot.ID, lot.SupplierProductID, lot.SupplierVariantID, lot.SupplierCostMinor,
		lot.SupplierCarrier, lot.OriginCountry, images,
		lot.SaleID, lot.AuctionItemID, lot.StartBidMinor, lot.ReserveMinor,
		lot.WinnerID, lot.WinningBidMinor,
		lot.PaymentOrderID, lot.InvoiceID, nullTime(lot.PaidAt),
		lot.SupplierOrderID, lot.SupplierOrderNumber, lot.SupplierOrderStatus,
		shipping, lot.TrackingNumber, lot.TrackingCarrier,
		lot.TotalCostMinor, lot.ProfitMinor, string(lot.Status), lot.ErrorMessage,
		lot.Version, lot.CreatedAt, lot.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrLotVersionConflict
		}
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

func (r *lotRepository) Get(id string) (domain.Lot, error) {
	return r.getBy(`id = $1`, id)
}

func (r *lotRepository) GetByAuctionItem(saleID, itemID string) (domain.Lot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx,
		`SELECT `+lotColumns+` FROM lots WHERE sale_id = $1 AND auction_item_id = $2`,
		saleID, itemID)
	return scanLot(row)
}

func (r *lotRepository) GetByPaymentOrder(paymentOrderID string) (domain.Lot, error) {
	if paymentOrderID == "" {
		return domain.Lot{}, domain.ErrLotNotFound
	}
	return r.getBy(`payment_order_id = $1`, paymentOrderID)
}

func (r *lotRepository) GetBySupplierOrder(supplierOrderID string) (domain.Lot, error) {
	if supplierOrderID == "" {
		return domain.Lot{}, domain.ErrLotNotFound
	}
	return r.getBy(`supplier_order_id = $1`, supplierOrderID)
}

func (r *lotRepository) getBy(where string, arg interface{}) (domain.Lot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+lotColumns+` FROM lots WHERE `+where, arg)
	return scanLot(row)
}

func (r *lotRepository) ListBySale(saleID string, status domain.LotStatus) ([]domain.Lot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lotColumns+`
		FROM lots
		WHERE sale_id = $1 AND status = $2
		ORDER BY id
	`, saleID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list lots by sale: %w", err)
	}
	defer rows.Close()
	return scanLots(rows)
}

func (r *lotRepository) ListStuck(status domain.LotStatus, updatedBefore time.Time, limit int) ([]domain.Lot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+lotColumns+`
		FROM lots
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at, id
		LIMIT $3
	`, string(status), updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck lots: %w", err)
	}
	defer rows.Close()
	return scanLots(rows)
}

func (r *lotRepository) CountActive() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Терминальные статусы выводятся из графа переходов, а не хардкодятся в SQL.
	placeholders := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	for _, s := range domain.AllLotStatuses() {
		if s.Terminal() {
			args = append(args, string(s))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
	}

	var count int
	query := `SELECT COUNT(*) FROM lots WHERE status NOT IN (` + strings.Join(placeholders, ",") + `)`
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active lots: %w", err)
	}
	return count, nil
}

func (r *lotRepository) Save(lot domain.Lot) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	images, shipping, err := marshalLotJSON(lot)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE lots
		SET supplier_variant_id = $1,
		    supplier_cost_minor = $2,
		    supplier_carrier = $3,
		    origin_country = $4,
		    image_urls = $5,
		    sale_id = $6,
		    auction_item_id = $7,
		    start_bid_minor = $8,
		    reserve_minor = $9,
		    winner_id = $10,
		    winning_bid_minor = $11,
		    payment_order_id = $12,
		    invoice_id = $13,
		    paid_at = $14,
		    supplier_order_id = $15,
		    supplier_order_number = $16,
		    supplier_order_status = $17,
		    shipping = $18,
		    tracking_number = $19,
		    tracking_carrier = $20,
		    total_cost_minor = $21,
		    profit_minor = $22,
		    status = $23,
		    error_message = $24,
		    version = version + 1,
		    updated_at = $25
		WHERE id = $26
		  AND version = $27
	`,
		lot.SupplierVariantID, lot.SupplierCostMinor, lot.SupplierCarrier, lot.OriginCountry,
		images, lot.SaleID, lot.AuctionItemID, lot.StartBidMinor, lot.ReserveMinor,
		lot.WinnerID, lot.WinningBidMinor, lot.PaymentOrderID, lot.InvoiceID, nullTime(lot.PaidAt),
		lot.SupplierOrderID, lot.SupplierOrderNumber, lot.SupplierOrderStatus,
		shipping, lot.TrackingNumber, lot.TrackingCarrier,
		lot.TotalCostMinor, lot.ProfitMinor, string(lot.Status), lot.ErrorMessage,
		lot.UpdatedAt, lot.ID, lot.Version,
	)
	if err != nil {
		return fmt.Errorf("update lot: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.lotExists(ctx, lot.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrLotNotFound
		}
		return domain.ErrLotVersionConflict
	}
	return nil
}

func (r *lotRepository) lotExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM lots WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check lot exists: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLot(row rowScanner) (domain.Lot, error) {
	var (
		lot      domain.Lot
		status   string
		images   []byte
		shipping []byte
		paidAt   sql.NullTime
	)
	err := row.Scan(
		&lot.ID, &lot.SupplierProductID, &lot.SupplierVariantID, &lot.SupplierCostMinor,
		&lot.SupplierCarrier, &lot.OriginCountry, &images,
		&lot.SaleID, &lot.AuctionItemID, &lot.StartBidMinor, &lot.ReserveMinor,
		&lot.WinnerID, &lot.WinningBidMinor,
		&lot.PaymentOrderID, &lot.InvoiceID, &paidAt,
		&lot.SupplierOrderID, &lot.SupplierOrderNumber, &lot.SupplierOrderStatus,
		&shipping, &lot.TrackingNumber, &lot.TrackingCarrier,
		&lot.TotalCostMinor, &lot.ProfitMinor, &status, &lot.ErrorMessage,
		&lot.Version, &lot.CreatedAt, &lot.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Lot{}, domain.ErrLotNotFound
		}
		return domain.Lot{}, fmt.Errorf("scan lot: %w", err)
	}

	lot.Status = domain.LotStatus(status)
	if paidAt.Valid {
		lot.PaidAt = paidAt.Time.UTC()
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &lot.ImageURLs); err != nil {
			return domain.Lot{}, fmt.Errorf("decode lot image urls: %w", err)
		}
	}
	if len(shipping) > 0 {
		if err := json.Unmarshal(shipping, &lot.Shipping); err != nil {
			return domain.Lot{}, fmt.Errorf("decode lot shipping: %w", err)
		}
	}
	return lot, nil
}

func scanLots(rows *sql.Rows) ([]domain.Lot, error) {
	result := make([]domain.Lot, 0)
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lot rows: %w", err)
	}
	return result, nil
}

func marshalLotJSON(lot domain.Lot) ([]byte, []byte, error) {
	images, err := json.Marshal(lot.ImageURLs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode lot image urls: %w", err)
	}
	if lot.ImageURLs == nil {
		images = []byte(`[]`)
	}
	shipping, err := json.Marshal(lot.Shipping)
	if err != nil {
		return nil, nil, fmt.Errorf("encode lot shipping: %w", err)
	}
	return images, shipping, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ domain.LotRepository = (*lotRepository)(nil)
