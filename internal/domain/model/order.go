package model

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"streamboost-dashboard/internal/domain"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusActive, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Order is a purchased, time-boxed unit of engagement service.
type Order struct {
	ID            string // UUID
	OrderNumber   string
	UserID        string // UUID of profile
	Platform      string
	ServiceName   string
	Price         decimal.Decimal
	DurationHours int
	Status        OrderStatus
	ExpiresAt     *time.Time // set only while active
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOrder builds a pending order. The order number is supplied by the caller.
func NewOrder(id, orderNumber, userID, platform, serviceName string, price decimal.Decimal, durationHours int) (*Order, error) {
	if id == "" || orderNumber == "" || userID == "" || strings.TrimSpace(platform) == "" || strings.TrimSpace(serviceName) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if durationHours <= 0 || price.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Order{
		ID:            id,
		OrderNumber:   orderNumber,
		UserID:        userID,
		Platform:      strings.ToLower(strings.TrimSpace(platform)),
		ServiceName:   strings.TrimSpace(serviceName),
		Price:         price,
		DurationHours: durationHours,
		Status:        OrderStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// PurchasedDurationSeconds is the total time paid for.
func (o *Order) PurchasedDurationSeconds() int64 {
	return int64(o.DurationHours) * 3600
}

// RemainingSeconds returns max(0, ExpiresAt-now) in whole seconds.
// Orders without an expiry have nothing remaining.
func (o *Order) RemainingSeconds(now time.Time) int64 {
	if o.ExpiresAt == nil {
		return 0
	}
	left := o.ExpiresAt.Sub(now).Seconds()
	if left <= 0 {
		return 0
	}
	return int64(math.Floor(left))
}

// Activate moves a pending order to active, starting its countdown at now.
func (o *Order) Activate(now time.Time) error {
	if o.Status != OrderStatusPending {
		if o.Status.Terminal() {
			return domain.ErrTerminalState
		}
		return domain.ErrInvalidStatus
	}
	exp := now.Add(time.Duration(o.DurationHours) * time.Hour)
	o.Status = OrderStatusActive
	o.ExpiresAt = &exp
	o.UpdatedAt = now
	return nil
}

// Finish moves a non-terminal order to a terminal status and clears the expiry.
func (o *Order) Finish(status OrderStatus, now time.Time) error {
	if !status.Terminal() {
		return domain.ErrInvalidArgument
	}
	if o.Status.Terminal() {
		return domain.ErrTerminalState
	}
	o.Status = status
	o.ExpiresAt = nil
	o.UpdatedAt = now
	return nil
}

func (o *Order) IsActive() bool { return o.Status == OrderStatusActive }
