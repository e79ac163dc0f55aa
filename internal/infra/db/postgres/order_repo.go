package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, order_number, user_id, platform, service_name, price, duration_hours, status, expires_at, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	var status string
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Platform, &o.ServiceName, &o.Price, &o.DurationHours, &status, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	o.Status = model.OrderStatus(status)
	return o, nil
}

func (r *orderRepo) Fetch(ctx context.Context, tx repository.Tx, filter model.OrderFilter) ([]*model.Order, error) {
	var (
		where []string
		args  []interface{}
	)
	if !filter.Scope.All {
		if filter.Scope.UserID == "" {
			return nil, domain.ErrForbidden
		}
		args = append(args, filter.Scope.UserID)
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	q += ";"

	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanOrder(row)
}

func (r *orderRepo) Create(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
INSERT INTO orders (` + orderColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	_, err := execSQL(ctx, r.pool, tx, q, o.ID, o.OrderNumber, o.UserID, o.Platform, o.ServiceName, o.Price, o.DurationHours, string(o.Status), o.ExpiresAt, o.CreatedAt, o.UpdatedAt)
	return mapError(err)
}

// Activate moves a pending order to active. A non-pending order is left as is
// and reported with the same sentinels model.Order.Activate uses.
func (r *orderRepo) Activate(ctx context.Context, tx repository.Tx, id string, expiresAt time.Time) (*model.Order, error) {
	const q = `
UPDATE orders SET status='active', expires_at=$2, updated_at=NOW()
 WHERE id=$1 AND status='pending'
RETURNING ` + orderColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, id, expiresAt)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if !errors.Is(err, domain.ErrNotFound) {
		return o, err
	}
	return nil, r.explainMiss(ctx, tx, id, domain.ErrInvalidStatus)
}

// UpdateStatus writes a terminal status only while the stored order is still
// open, so concurrent writers settle on the first one.
func (r *orderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.OrderStatus) (*model.Order, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("%w: %q is not a terminal status", domain.ErrInvalidArgument, status)
	}
	const q = `
UPDATE orders SET status=$2, expires_at=NULL, updated_at=NOW()
 WHERE id=$1 AND status IN ('pending','active')
RETURNING ` + orderColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, id, string(status))
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if !errors.Is(err, domain.ErrNotFound) {
		return o, err
	}
	return nil, r.explainMiss(ctx, tx, id, domain.ErrInvalidStatus)
}

// explainMiss tells a missing row from one whose status refused the update.
func (r *orderRepo) explainMiss(ctx context.Context, tx repository.Tx, id string, otherwise error) error {
	cur, err := r.FindByID(ctx, tx, id)
	if err != nil {
		return err
	}
	if cur.Status.Terminal() {
		return domain.ErrTerminalState
	}
	return otherwise
}

func (r *orderRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.OrderStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM orders GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := map[model.OrderStatus]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Join(domain.ErrReadDatabaseRow, err)
		}
		out[model.OrderStatus(status)] = n
	}
	return out, mapError(rows.Err())
}
