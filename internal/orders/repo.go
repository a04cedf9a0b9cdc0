package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres side of the order core. CreateOrderTx is the only code
// path that decrements stock for a purchase.
type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id::text, buyer_id, seller_id, status, total, payment_ref, paid_at, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (Order, error) {
	var (
		o      Order
		status string
		ref    *string
	)
	if err := row.Scan(&o.ID, &o.BuyerID, &o.SellerID, &status, &o.Total, &ref, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	if ref != nil {
		o.PaymentRef = *ref
	}
	return o, nil
}

// CreateOrderTx locks every product row in the cart, re-checks stock, writes
// the order header and its items and decrements stock, all in one transaction.
// Any failure leaves no trace: the deferred rollback undoes every prior write.
func (r *Repo) CreateOrderTx(ctx context.Context, buyerID string, cart ValidatedCart) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Order{}, txFailed("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// lock in a stable order so two carts sharing products cannot deadlock
	byID := slices.Clone(cart.Items)
	slices.SortFunc(byID, func(a, b LineItem) int { return strings.Compare(a.ProductID, b.ProductID) })

	stock := make(map[string]int, len(byID))
	for _, it := range byID {
		var (
			onHand int
			seller string
		)
		err := tx.QueryRow(ctx, `SELECT stock, seller_id FROM products WHERE id=$1 FOR UPDATE`, it.ProductID).
			Scan(&onHand, &seller)
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, &ProductNotFoundError{ProductID: it.ProductID}
		}
		if err != nil {
			return Order{}, txFailed("lock product "+it.ProductID, err)
		}
		if seller != cart.SellerID {
			return Order{}, &MixedSellerError{SellerIDs: []string{cart.SellerID, seller}}
		}
		if onHand < it.Quantity {
			return Order{}, &StockError{ProductID: it.ProductID, Requested: it.Quantity, Available: onHand}
		}
		stock[it.ProductID] = onHand
	}

	o := Order{
		ID:       uuid.NewString(),
		BuyerID:  buyerID,
		SellerID: cart.SellerID,
		Status:   StatusPending,
		Total:    cart.Total(),
		Items:    make([]OrderItem, 0, len(cart.Items)),
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, buyer_id, seller_id, status, total)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		o.ID, o.BuyerID, o.SellerID, string(o.Status), o.Total,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, txFailed("insert order", err)
	}

	for _, it := range cart.Items {
		item := OrderItem{OrderID: o.ID, ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			o.ID, it.ProductID, it.Quantity, it.UnitPrice,
		).Scan(&item.ID)
		if err != nil {
			return Order{}, txFailed("insert order item", err)
		}
		o.Items = append(o.Items, item)
	}

	for _, it := range cart.Items {
		ct, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND stock >= $2`, it.ProductID, it.Quantity)
		if err != nil {
			return Order{}, txFailed("decrement stock", err)
		}
		if ct.RowsAffected() != 1 {
			return Order{}, &StockError{ProductID: it.ProductID, Requested: it.Quantity, Available: stock[it.ProductID]}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, txFailed("commit", err)
	}
	return o, nil
}

func (r *Repo) GetOrder(ctx context.Context, orderID string) (Order, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if err != nil {
		return Order{}, txFailed("get order", err)
	}
	items, err := r.listItems(ctx, r.DB, []uuid.UUID{id})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r *Repo) ListOrders(ctx context.Context, f ListFilter) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.BuyerID != "" {
		add("buyer_id = $%d", f.BuyerID)
	}
	if f.SellerID != "" {
		add("seller_id = $%d", f.SellerID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, txFailed("list orders", err)
	}
	defer rows.Close()

	var (
		out []Order
		ids []uuid.UUID
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, txFailed("scan order", err)
		}
		out = append(out, o)
		ids = append(ids, uuid.MustParse(o.ID))
	}
	if err := rows.Err(); err != nil {
		return nil, txFailed("list orders", err)
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := r.listItems(ctx, r.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repo) listItems(ctx context.Context, q querier, orderIDs []uuid.UUID) (map[string][]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id::text, product_id, quantity, unit_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, txFailed("list order items", err)
	}
	defer rows.Close()

	out := make(map[string][]OrderItem, len(orderIDs))
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, txFailed("scan order item", err)
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, txFailed("list order items", err)
	}
	return out, nil
}

// UpdateStatus moves the order from -> to only if it is still in `from`; a
// concurrent writer that got there first turns this call into an
// IllegalTransition. With restock set, the order's quantities go back to the
// catalog in the same transaction.
func (r *Repo) UpdateStatus(ctx context.Context, orderID string, from, to Status, restock bool) (Order, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Order{}, txFailed("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns, id, string(from), string(to)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, &TransitionError{From: from, To: to, err: ErrIllegalTransition}
	}
	if err != nil {
		return Order{}, txFailed("update status", err)
	}

	if restock {
		if _, err := tx.Exec(ctx, `
			UPDATE products p SET stock = p.stock + oi.quantity, updated_at = now()
			FROM order_items oi
			WHERE oi.order_id = $1 AND p.id = oi.product_id`, id); err != nil {
			return Order{}, txFailed("restock", err)
		}
	}

	items, err := r.listItems(ctx, tx, []uuid.UUID{id})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]

	if err := tx.Commit(ctx); err != nil {
		return Order{}, txFailed("commit", err)
	}
	return o, nil
}

// MarkPaid records the first payment confirmation for an order. Later
// confirmations leave the stored reference alone.
func (r *Repo) MarkPaid(ctx context.Context, p PaymentConfirmation) (Order, error) {
	id, err := uuid.Parse(p.OrderID)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, p.OrderID)
	}
	at := p.ConfirmedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if _, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_ref = $2, paid_at = $3, updated_at = now()
		WHERE id = $1 AND paid_at IS NULL`, id, p.PaymentRef, at); err != nil {
		return Order{}, txFailed("mark paid", err)
	}
	return r.GetOrder(ctx, p.OrderID)
}
