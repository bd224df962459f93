// Command devtoken mints a bearer token signed with JWT_SECRET for calling the API locally.
package main

import (
	"flag"
	"fmt"
	"log"

	"storefront/config"
	"storefront/internal/auth"
)

func main() {
	userID := flag.Int64("user", 1, "user id to embed in the token")
	role := flag.String("role", auth.RoleCustomer, "role claim: customer or admin")
	flag.Parse()

	if *role != auth.RoleCustomer && *role != auth.RoleAdmin {
		log.Fatalf("unknown role %q", *role)
	}

	cfg := config.Load()
	if cfg.Server.Env == "production" {
		log.Fatal("devtoken refuses to run with ENV=production")
	}

	token, expiresAt, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).GenerateAccessToken(*userID, *role)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Println(token)
	log.Printf("Token for user %d (%s) expires at %s", *userID, *role, expiresAt.Format("2006-01-02T15:04:05Z07:00"))
}
