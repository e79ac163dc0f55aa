package api

import (
	"time"

	"github.com/shopspring/decimal"

	"streamboost-dashboard/internal/domain/model"
)

type timerDTO struct {
	RemainingSeconds int64   `json:"remainingSeconds"`
	TotalSeconds     int64   `json:"totalSeconds"`
	IsRunning        bool    `json:"isRunning"`
	State            string  `json:"state"`
	FormattedTime    string  `json:"formattedTime"`
	Progress         float64 `json:"progress"`
	TimeStatus       string  `json:"timeStatus"`
	Pending          string  `json:"pending,omitempty"`
}

type orderDTO struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	UserID        string          `json:"userId"`
	Platform      string          `json:"platform"`
	ServiceName   string          `json:"serviceName"`
	Price         decimal.Decimal `json:"price"`
	DurationHours int             `json:"durationHours"`
	Status        string          `json:"status"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	Timer         *timerDTO       `json:"timer,omitempty"`
}

type viewDTO struct {
	ViewID        string               `json:"viewId"`
	Version       uint64               `json:"version"`
	LoadedAt      *time.Time           `json:"loadedAt,omitempty"`
	Orders        []orderDTO           `json:"orders"`
	Notifications []model.Notification `json:"notifications"`
}

func toOrderDTO(o model.Order) orderDTO {
	return orderDTO{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Platform:      o.Platform,
		ServiceName:   o.ServiceName,
		Price:         o.Price,
		DurationHours: o.DurationHours,
		Status:        string(o.Status),
		ExpiresAt:     o.ExpiresAt,
		CreatedAt:     o.CreatedAt,
	}
}

func toTimerDTO(e model.TimerEntry) *timerDTO {
	return &timerDTO{
		RemainingSeconds: e.RemainingSeconds,
		TotalSeconds:     e.TotalSeconds,
		IsRunning:        e.IsRunning,
		State:            string(e.State()),
		FormattedTime:    model.FormatRemaining(e.RemainingSeconds),
		Progress:         e.Progress(),
		TimeStatus:       string(e.TimeStatus()),
		Pending:          string(e.Pending),
	}
}

func toViewDTO(viewID string, s *model.Snapshot) viewDTO {
	out := viewDTO{
		ViewID:        viewID,
		Version:       s.Version,
		Orders:        make([]orderDTO, 0, len(s.Orders)),
		Notifications: s.Notifications,
	}
	if !s.LoadedAt.IsZero() {
		t := s.LoadedAt
		out.LoadedAt = &t
	}
	if out.Notifications == nil {
		out.Notifications = []model.Notification{}
	}
	for _, o := range s.Orders {
		d := toOrderDTO(o)
		if e, ok := s.Timer(o.ID); ok {
			d.Timer = toTimerDTO(e)
		}
		out.Orders = append(out.Orders, d)
	}
	return out
}

func toOrderDTOs(list []*model.Order) []orderDTO {
	out := make([]orderDTO, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderDTO(*o))
	}
	return out
}

type balanceTxDTO struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func toBalanceTxDTOs(list []*model.BalanceTransaction) []balanceTxDTO {
	out := make([]balanceTxDTO, 0, len(list))
	for _, t := range list {
		out = append(out, balanceTxDTO{ID: t.ID, Amount: t.Amount, Type: string(t.Type), Description: t.Description, CreatedAt: t.CreatedAt})
	}
	return out
}
