package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"streamboost-dashboard/internal/domain/model"
)

type ProfileRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Profile, error)
	Save(ctx context.Context, tx Tx, p *model.Profile) error
	// FindByIDForUpdate locks the profile row for the rest of tx.
	FindByIDForUpdate(ctx context.Context, tx Tx, id string) (*model.Profile, error)
	AddBalance(ctx context.Context, tx Tx, id string, delta decimal.Decimal) (decimal.Decimal, error)
}

type BalanceRepository interface {
	Record(ctx context.Context, tx Tx, t *model.BalanceTransaction) error
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.BalanceTransaction, error)
}
