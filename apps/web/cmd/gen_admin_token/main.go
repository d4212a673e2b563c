// Command gen_admin_token prints an admin gate cookie value signed with
// APP_SIGNING_SECRET, for scripting the /admin/exports endpoints.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	lifetime := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	signingSecret := os.Getenv("APP_SIGNING_SECRET")
	if len(signingSecret) < 16 {
		fmt.Fprintln(os.Stderr, "APP_SIGNING_SECRET must be set (at least 16 characters)")
		os.Exit(1)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "admin",
		"iat": now.Unix(),
		"exp": now.Add(*lifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(signingSecret))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("forestkeeper_admin_gate=%s\n", signedToken)
}
