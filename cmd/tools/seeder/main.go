package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/toko-payments/internal/auth"
	"github.com/noah-isme/toko-payments/internal/config"
	dbgen "github.com/noah-isme/toko-payments/internal/db/gen"
	"github.com/noah-isme/toko-payments/internal/obs"
	"github.com/noah-isme/toko-payments/internal/order"
	"github.com/noah-isme/toko-payments/internal/payment"
)

// seeder creates an unpaid order and prints a development access token for
// its owner, enough to drive create-order and verify by hand.
func main() {
	userID := flag.String("user", "", "owner user id (random when empty)")
	total := flag.Float64("total", 499.99, "order total in major units")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := obs.NewLogger("console", cfg.LogLevel).With().Str("component", "seeder").Logger()

	if _, err := payment.ToMinorUnits(*total); err != nil {
		logger.Fatal().Err(err).Float64("total", *total).Msg("invalid total")
	}
	owner := *userID
	if owner == "" {
		owner = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	store := order.NewStore(dbgen.New(pool))
	o, err := store.Create(ctx, uuid.NewString(), owner, *total)
	if err != nil {
		logger.Fatal().Err(err).Msg("create order")
	}

	tokens, err := auth.NewTokens(auth.Config{
		Secret:         cfg.JWTSecret,
		Issuer:         cfg.JWTIssuer,
		Audience:       cfg.JWTAudience,
		AccessTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise tokens")
	}
	token, expires, err := tokens.Issue(owner)
	if err != nil {
		logger.Fatal().Err(err).Msg("issue token")
	}

	logger.Info().
		Str("order_id", o.ID).
		Str("user_id", owner).
		Float64("total", o.TotalAmount).
		Time("token_expires", expires).
		Msg("seeded unpaid order")
	fmt.Println(token)
}
