package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4/pgxpool"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/repository"
)

var _ repository.BalanceRepository = (*balanceRepo)(nil)

type balanceRepo struct{ pool *pgxpool.Pool }

func NewBalanceRepo(pool *pgxpool.Pool) *balanceRepo {
	return &balanceRepo{pool: pool}
}

func (r *balanceRepo) Record(ctx context.Context, tx repository.Tx, t *model.BalanceTransaction) error {
	const q = `
INSERT INTO balance_transactions (id, user_id, amount, type, description, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.UserID, t.Amount, string(t.Type), t.Description, t.CreatedAt)
	return mapError(err)
}

func (r *balanceRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.BalanceTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, user_id, amount, type, description, created_at
  FROM balance_transactions WHERE user_id=$1
 ORDER BY created_at DESC, id LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*model.BalanceTransaction
	for rows.Next() {
		t := &model.BalanceTransaction{}
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &typ, &t.Description, &t.CreatedAt); err != nil {
			return nil, errors.Join(domain.ErrReadDatabaseRow, err)
		}
		t.Type = model.BalanceTxType(typ)
		out = append(out, t)
	}
	return out, mapError(rows.Err())
}
