package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
)

// OrderRepository persists orders and their items in Postgres.
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, customer_name, customer_email, destination_state, destination_zip,
	subtotal, shipping_price, shipping_method_id, shipping_method_name, total,
	status, payment_id, erp_synced_at, created_at, updated_at`

func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err = tx.ExecContext(ctx, query,
		o.ID, o.CustomerName, o.CustomerEmail, o.DestinationState, o.DestinationZip,
		o.Subtotal, o.ShippingPrice, o.ShippingMethodID, o.ShippingMethodName, o.Total,
		o.Status, o.PaymentID, nullTime(o.ERPSyncedAt), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, sku, name, quantity, unit_price) VALUES ($1,$2,$3,$4,$5)`,
			o.ID, item.SKU, item.Name, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}

	items, err := r.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *OrderRepository) Update(ctx context.Context, o *models.Order) error {
	query := `UPDATE orders SET
			customer_name=$1, customer_email=$2, destination_state=$3, destination_zip=$4,
			subtotal=$5, shipping_price=$6, shipping_method_id=$7, shipping_method_name=$8,
			total=$9, status=$10, payment_id=$11, erp_synced_at=$12, updated_at=$13
		WHERE id=$14`
	res, err := r.db.ExecContext(ctx, query,
		o.CustomerName, o.CustomerEmail, o.DestinationState, o.DestinationZip,
		o.Subtotal, o.ShippingPrice, o.ShippingMethodID, o.ShippingMethodName,
		o.Total, o.Status, o.PaymentID, nullTime(o.ERPSyncedAt), o.UpdatedAt,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrOrderNotFound
	}
	return nil
}

// List pages orders by id cursor, optionally filtered by status.
func (r *OrderRepository) List(ctx context.Context, cursor string, limit int64, status string) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 10
	}
	var filters []string
	var args []interface{}
	idx := 1

	query := `SELECT ` + orderColumns + ` FROM orders`
	if cursor != "" {
		filters = append(filters, fmt.Sprintf("id>$%d", idx))
		args = append(args, cursor)
		idx++
	}
	if status != "" {
		filters = append(filters, fmt.Sprintf("status=$%d", idx))
		args = append(args, status)
		idx++
	}
	if len(filters) > 0 {
		query += " WHERE " + strings.Join(filters, " AND ")
	}
	query += " ORDER BY id ASC"
	query += fmt.Sprintf(" LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var res []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// SetStatus writes a status the caller has already validated through the
// order state machine.
func (r *OrderRepository) SetStatus(ctx context.Context, id string, status models.OrderStatus, paymentID string) error {
	query := `UPDATE orders SET status=$1, payment_id=COALESCE(NULLIF($2,''), payment_id), updated_at=NOW() WHERE id=$3`
	res, err := r.db.ExecContext(ctx, query, status, paymentID, id)
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return models.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) MarkERPSynced(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE orders SET erp_synced_at=$1, updated_at=NOW() WHERE id=$2`, at, id)
	if err != nil {
		return fmt.Errorf("mark erp synced: %w", err)
	}
	return nil
}

// CountByStatus feeds the dashboard.
func (r *OrderRepository) CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.OrderStatus]int64)
	for rows.Next() {
		var status models.OrderStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// RevenueSince sums totals of paid-or-later orders created after the cutoff.
func (r *OrderRepository) RevenueSince(ctx context.Context, since time.Time) (string, int64, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0), COUNT(*) FROM orders
		 WHERE created_at >= $1 AND status IN ('paid','shipping','delivered')`, since)
	var total string
	var n int64
	if err := row.Scan(&total, &n); err != nil {
		return "", 0, fmt.Errorf("revenue since: %w", err)
	}
	return total, n, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT sku, name, quantity, unit_price FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.SKU, &it.Name, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	var erpSynced sql.NullTime
	err := row.Scan(
		&o.ID, &o.CustomerName, &o.CustomerEmail, &o.DestinationState, &o.DestinationZip,
		&o.Subtotal, &o.ShippingPrice, &o.ShippingMethodID, &o.ShippingMethodName, &o.Total,
		&o.Status, &o.PaymentID, &erpSynced, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if erpSynced.Valid {
		o.ERPSyncedAt = erpSynced.Time
	}
	return o, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
