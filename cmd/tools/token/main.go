package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/storefront-checkout/internal/auth"
	"github.com/noah-isme/storefront-checkout/internal/common"
)

// token mints an HS256 access token for local testing against AUTH_PROVIDER=jwt.
func main() {
	userID := flag.String("user", "", "subject (user id)")
	email := flag.String("email", "", "email claim")
	verified := flag.Bool("verified", true, "email_verified claim")
	flag.Parse()

	if *userID == "" {
		log.Fatal("-user is required")
	}

	_ = godotenv.Load()
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		log.Fatalf("load env: %v", err)
	}

	v, err := auth.NewHMACVerifier(k.String("JWT_SECRET"), orDefault(k.String("JWT_ISSUER"), "storefront"), orDefault(k.String("JWT_AUDIENCE"), "storefront-web"))
	if err != nil {
		log.Fatalf("init signer: %v", err)
	}
	tok, exp, err := v.Sign(common.Identity{UserID: *userID, Email: *email, EmailVerified: *verified})
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(tok)
	log.Printf("expires at %s", exp.Format("2006-01-02T15:04:05Z07:00"))
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
