// File: internal/usecase/order_uc.go
package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/repository"
	"streamboost-dashboard/internal/infra/logging"
	"streamboost-dashboard/internal/infra/metrics"
)

// Compile-time check
var _ OrderUseCase = (*orderUC)(nil)

type DurationUnit string

const (
	DurationHours DurationUnit = "hours"
	DurationDays  DurationUnit = "days"
)

// CartItem is one line of a checkout. Price is the daily rate per unit.
type CartItem struct {
	Platform     string          `json:"platform"`
	ServiceName  string          `json:"serviceName"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	Duration     int             `json:"duration"`
	DurationType DurationUnit    `json:"durationType"`
}

// Hours is the purchased duration of the item in hours.
func (c CartItem) Hours() int {
	if c.DurationType == DurationDays {
		return c.Duration * 24
	}
	return c.Duration
}

// Cost is price * quantity * hours / 24.
func (c CartItem) Cost() decimal.Decimal {
	return c.Price.
		Mul(decimal.NewFromInt(int64(c.Quantity))).
		Mul(decimal.NewFromInt(int64(c.Hours()))).
		Div(decimal.NewFromInt(24)).
		Round(2)
}

func (c CartItem) validate() error {
	if strings.TrimSpace(c.Platform) == "" || strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("%w: platform and service are required", domain.ErrInvalidArgument)
	}
	if c.Quantity <= 0 || c.Duration <= 0 || c.Price.IsNegative() {
		return fmt.Errorf("%w: quantity, duration and price must be positive", domain.ErrInvalidArgument)
	}
	if c.DurationType != "" && c.DurationType != DurationHours && c.DurationType != DurationDays {
		return fmt.Errorf("%w: unknown duration type %q", domain.ErrInvalidArgument, c.DurationType)
	}
	return nil
}

// CheckoutResult lists the created orders and the balance left afterwards.
type CheckoutResult struct {
	Orders  []*model.Order
	Total   decimal.Decimal
	Balance decimal.Decimal
}

type OrderUseCase interface {
	// Checkout turns cart items into pending orders paid from the viewer's balance.
	Checkout(ctx context.Context, viewer model.Viewer, items []CartItem) (*CheckoutResult, error)
	// Activate starts the countdown of a pending order. Staff only.
	Activate(ctx context.Context, viewer model.Viewer, orderID string) (*model.Order, error)
	// History lists orders in the viewer's scope, newest first.
	History(ctx context.Context, viewer model.Viewer, status *model.OrderStatus, limit int) ([]*model.Order, error)
	// TopUp credits a profile balance. Staff only.
	TopUp(ctx context.Context, viewer model.Viewer, userID string, amount decimal.Decimal, description string) (decimal.Decimal, error)
	// Transactions lists balance movements of a profile.
	Transactions(ctx context.Context, viewer model.Viewer, userID string, limit int) ([]*model.BalanceTransaction, error)
}

type orderUC struct {
	orders   repository.OrderRepository
	profiles repository.ProfileRepository
	balance  repository.BalanceRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger
	now      func() time.Time
}

func NewOrderUseCase(orders repository.OrderRepository, profiles repository.ProfileRepository, balance repository.BalanceRepository, tm repository.TransactionManager, logger *zerolog.Logger) *orderUC {
	l := logger.With().Str("component", "OrderUseCase").Logger()
	return &orderUC{orders: orders, profiles: profiles, balance: balance, tm: tm, log: &l, now: time.Now}
}

// orderNumber is <PLATFORM>-<ULID>.
func orderNumber(platform string, now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader)
	return strings.ToUpper(strings.TrimSpace(platform)) + "-" + id.String()
}

func (u *orderUC) Checkout(ctx context.Context, viewer model.Viewer, items []CartItem) (*CheckoutResult, error) {
	defer logging.TraceDuration(u.log, "OrderUseCase.Checkout")()
	if viewer.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: empty cart", domain.ErrInvalidArgument)
	}
	total := decimal.Zero
	for _, it := range items {
		if err := it.validate(); err != nil {
			return nil, err
		}
		total = total.Add(it.Cost())
	}

	res := &CheckoutResult{Total: total}
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		// row lock serializes concurrent checkouts of the same profile
		p, err := u.profiles.FindByIDForUpdate(ctx, tx, viewer.UserID)
		if err != nil {
			return err
		}
		if p.Balance.LessThan(total) {
			return domain.ErrInsufficientBalance
		}

		now := u.now()
		numbers := make([]string, 0, len(items))
		for _, it := range items {
			o, err := model.NewOrder(uuid.NewString(), orderNumber(it.Platform, now), viewer.UserID, it.Platform, it.ServiceName, it.Cost(), it.Hours())
			if err != nil {
				return err
			}
			if err := u.orders.Create(ctx, tx, o); err != nil {
				return err
			}
			res.Orders = append(res.Orders, o)
			numbers = append(numbers, o.OrderNumber)
		}

		left, err := u.profiles.AddBalance(ctx, tx, viewer.UserID, total.Neg())
		if err != nil {
			return err
		}
		res.Balance = left

		return u.balance.Record(ctx, tx, &model.BalanceTransaction{
			ID:          uuid.NewString(),
			UserID:      viewer.UserID,
			Amount:      total.Neg(),
			Type:        model.BalanceTxPayment,
			Description: "Order payment: " + strings.Join(numbers, ", "),
			CreatedAt:   now,
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			metrics.IncCheckout("insufficient_balance")
		} else {
			metrics.IncCheckout("failed")
			u.log.Error().Err(err).Str("user_id", viewer.UserID).Msg("checkout failed")
		}
		return nil, err
	}
	metrics.IncCheckout("ok")
	u.log.Info().Str("user_id", viewer.UserID).Int("orders", len(res.Orders)).Str("total", total.String()).Msg("checkout completed")
	return res, nil
}

func (u *orderUC) Activate(ctx context.Context, viewer model.Viewer, orderID string) (*model.Order, error) {
	if !viewer.IsModerator() {
		return nil, domain.ErrForbidden
	}
	o, err := u.orders.FindByID(ctx, repository.NoTX, orderID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	// validate the transition on the domain object before touching the store
	if err := o.Activate(now); err != nil {
		return nil, err
	}
	activated, err := u.orders.Activate(ctx, repository.NoTX, orderID, *o.ExpiresAt)
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("order_id", orderID).Str("by", viewer.UserID).Time("expires_at", *activated.ExpiresAt).Msg("order activated")
	return activated, nil
}

func (u *orderUC) History(ctx context.Context, viewer model.Viewer, status *model.OrderStatus, limit int) ([]*model.Order, error) {
	if viewer.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, *status)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return u.orders.Fetch(ctx, repository.NoTX, model.OrderFilter{Scope: viewer.Scope(), Status: status, Limit: limit})
}

func (u *orderUC) TopUp(ctx context.Context, viewer model.Viewer, userID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	if !viewer.IsModerator() {
		return decimal.Zero, domain.ErrForbidden
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(description) == "" {
		description = "Balance top-up"
	}

	var left decimal.Decimal
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		left, err = u.profiles.AddBalance(ctx, tx, userID, amount)
		if err != nil {
			return err
		}
		return u.balance.Record(ctx, tx, &model.BalanceTransaction{
			ID:          uuid.NewString(),
			UserID:      userID,
			Amount:      amount,
			Type:        model.BalanceTxTopUp,
			Description: description,
			CreatedAt:   u.now(),
		})
	})
	if err != nil {
		return decimal.Zero, err
	}
	metrics.IncTopUp()
	u.log.Info().Str("user_id", userID).Str("by", viewer.UserID).Str("amount", amount.String()).Msg("balance topped up")
	return left, nil
}

func (u *orderUC) Transactions(ctx context.Context, viewer model.Viewer, userID string, limit int) ([]*model.BalanceTransaction, error) {
	if !viewer.Scope().Allows(userID) {
		return nil, domain.ErrForbidden
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return u.balance.ListByUser(ctx, repository.NoTX, userID, limit)
}
