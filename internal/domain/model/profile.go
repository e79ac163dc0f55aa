package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleWorker    Role = "worker"
	RoleChief     Role = "chief"
	RoleModerator Role = "moderator"
	RoleOperator  Role = "operator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleWorker, RoleChief, RoleModerator, RoleOperator:
		return true
	}
	return false
}

// IsStaff reports whether the role sees and manages every order.
func (r Role) IsStaff() bool { return r.Valid() && r != RoleUser }

// Profile is the dashboard account. Balance is spent at checkout.
type Profile struct {
	ID             string
	Username       string
	Role           Role
	Balance        decimal.Decimal
	TelegramChatID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type BalanceTxType string

const (
	BalanceTxPayment    BalanceTxType = "payment"
	BalanceTxTopUp      BalanceTxType = "top_up"
	BalanceTxAdjustment BalanceTxType = "adjustment"
)

// BalanceTransaction is one signed movement on a profile balance.
type BalanceTransaction struct {
	ID          string
	UserID      string
	Amount      decimal.Decimal
	Type        BalanceTxType
	Description string
	CreatedAt   time.Time
}

// Viewer is the signed-in identity of a dashboard session.
type Viewer struct {
	UserID string
	Role   Role
}

func (v Viewer) IsModerator() bool { return v.Role.IsStaff() }

// Scope returns the order visibility of the viewer.
func (v Viewer) Scope() ViewerScope {
	if v.IsModerator() {
		return ViewerScope{All: true}
	}
	return ViewerScope{UserID: v.UserID}
}

// ViewerScope selects which orders a viewer may see: everything, or one user's orders.
type ViewerScope struct {
	UserID string
	All    bool
}

// Allows reports whether an order owned by userID is visible in the scope.
func (s ViewerScope) Allows(userID string) bool {
	return s.All || (s.UserID != "" && s.UserID == userID)
}

// OrderFilter is what the order store understands.
type OrderFilter struct {
	Scope  ViewerScope
	Status *OrderStatus
	Limit  int
}
