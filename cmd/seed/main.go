package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"streamboost-dashboard/internal/config"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/domain/ports/repository"
	"streamboost-dashboard/internal/infra/api"
	pg "streamboost-dashboard/internal/infra/db/postgres"
	"streamboost-dashboard/internal/infra/logging"
	"streamboost-dashboard/internal/usecase"
)

// profileID is stable per username so re-running the seed upserts instead of duplicating.
func profileID(username string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("streamboost:"+username)).String()
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	profiles := pg.NewProfileRepo(pool)
	orders := pg.NewOrderRepo(pool)
	orderUC := usecase.NewOrderUseCase(orders, profiles, pg.NewBalanceRepo(pool), pg.NewTxManager(pool), logger)
	auth := api.NewAuthManager(cfg.Auth)

	seed := []struct {
		Username string
		Role     model.Role
	}{
		{"demo_mod", model.RoleModerator},
		{"demo_streamer", model.RoleUser},
	}
	now := time.Now()
	for _, s := range seed {
		p := &model.Profile{ID: profileID(s.Username), Username: s.Username, Role: s.Role, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
		if err := profiles.Save(ctx, repository.NoTX, p); err != nil {
			log.Fatalf("save profile %q: %v", s.Username, err)
		}
	}
	mod := model.Viewer{UserID: profileID("demo_mod"), Role: model.RoleModerator}
	streamer := model.Viewer{UserID: profileID("demo_streamer"), Role: model.RoleUser}

	// If the streamer already has orders, only print tokens
	existing, err := orderUC.History(ctx, streamer, nil, 1)
	if err != nil {
		log.Fatalf("list orders: %v", err)
	}
	if len(existing) == 0 {
		if _, err := orderUC.TopUp(ctx, mod, streamer.UserID, decimal.NewFromInt(100), "Seed balance"); err != nil {
			log.Fatalf("top up: %v", err)
		}
		res, err := orderUC.Checkout(ctx, streamer, []usecase.CartItem{
			{Platform: "twitch", ServiceName: "Viewers", Price: decimal.NewFromInt(12), Quantity: 1, Duration: 2, DurationType: usecase.DurationHours},
			{Platform: "twitch", ServiceName: "Chatters", Price: decimal.NewFromInt(20), Quantity: 2, Duration: 1, DurationType: usecase.DurationDays},
			{Platform: "kick", ServiceName: "Followers", Price: decimal.NewFromInt(6), Quantity: 1, Duration: 6, DurationType: usecase.DurationHours},
		})
		if err != nil {
			log.Fatalf("checkout: %v", err)
		}
		// the last one stays pending
		for _, o := range res.Orders[:len(res.Orders)-1] {
			if _, err := orderUC.Activate(ctx, mod, o.ID); err != nil {
				log.Fatalf("activate %s: %v", o.OrderNumber, err)
			}
		}
		for _, o := range res.Orders {
			fmt.Printf("seeded: %s %s/%s price=%s hours=%d\n", o.OrderNumber, o.Platform, o.ServiceName, o.Price, o.DurationHours)
		}
		fmt.Printf("balance left: %s\n", res.Balance)
	} else {
		fmt.Println("orders already present. No changes.")
	}

	for _, v := range []model.Viewer{mod, streamer} {
		tok, err := auth.Sign(v)
		if err != nil {
			log.Fatalf("sign token: %v", err)
		}
		fmt.Printf("%-9s %s\n  Authorization: Bearer %s\n", v.Role, v.UserID, tok)
	}
	fmt.Println("✅ Seeding complete.")
}
