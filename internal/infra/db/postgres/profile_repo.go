package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/repository"
)

var _ repository.ProfileRepository = (*profileRepo)(nil)

type profileRepo struct{ pool *pgxpool.Pool }

func NewProfileRepo(pool *pgxpool.Pool) *profileRepo {
	return &profileRepo{pool: pool}
}

const profileColumns = `id, username, role, balance, telegram_chat_id, created_at, updated_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	p := &model.Profile{}
	var role string
	if err := row.Scan(&p.ID, &p.Username, &role, &p.Balance, &p.TelegramChatID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, errors.Join(domain.ErrReadDatabaseRow, err)
	}
	p.Role = model.Role(role)
	return p, nil
}

func (r *profileRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Profile, error) {
	const q = `SELECT ` + profileColumns + ` FROM profiles WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanProfile(row)
}

func (r *profileRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Profile, error) {
	if _, ok := tx.(pgx.Tx); !ok {
		return nil, domain.ErrInvalidExecContext
	}
	const q = `SELECT ` + profileColumns + ` FROM profiles WHERE id=$1 FOR UPDATE;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanProfile(row)
}

func (r *profileRepo) Save(ctx context.Context, tx repository.Tx, p *model.Profile) error {
	if !p.Role.Valid() {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO profiles (` + profileColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  username=$2, role=$3, telegram_chat_id=$5, updated_at=$7;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Username, string(p.Role), p.Balance, p.TelegramChatID, p.CreatedAt, p.UpdatedAt)
	return mapError(err)
}

// AddBalance applies delta and returns the new balance. The balance column is
// constrained to stay non-negative, so an overdraft surfaces as a check violation.
func (r *profileRepo) AddBalance(ctx context.Context, tx repository.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	const q = `UPDATE profiles SET balance = balance + $2, updated_at=NOW() WHERE id=$1 RETURNING balance;`
	row, err := pickRow(ctx, r.pool, tx, q, id, delta)
	if err != nil {
		return decimal.Zero, err
	}
	var bal decimal.Decimal
	if err := row.Scan(&bal); err != nil {
		if mapped := mapError(err); errors.Is(mapped, domain.ErrInvalidArgument) {
			return decimal.Zero, domain.ErrInsufficientBalance
		}
		return decimal.Zero, mapError(err)
	}
	return bal, nil
}
