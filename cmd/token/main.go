package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/auth"
	"github.com/ariefcatur/marketplace-orders/internal/config"
	"github.com/ariefcatur/marketplace-orders/internal/logging"
	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/spf13/pflag"
)

// token prints a bearer token for local testing against the API.
func main() {
	sub := pflag.String("sub", "", "actor id")
	role := pflag.String("role", "buyer", "buyer, seller or admin")
	ttl := pflag.Duration("ttl", time.Hour, "token lifetime")
	pflag.Parse()

	log := logging.NewWithWriter(os.Stderr, "order-token", "info")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}
	if *sub == "" {
		log.Fatal().Msg("--sub is required")
	}
	r, err := orders.ParseRole(*role)
	if err != nil {
		log.Fatal().Err(err).Msg("role")
	}

	res := &auth.JWTResolver{Secret: []byte(cfg.JWTSecret)}
	tok, err := res.Issue(orders.Actor{ID: *sub, Role: r}, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("sign token")
	}
	fmt.Println(tok)
}
