package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/iliyamo/raffle-checkout/internal/model"
	"github.com/iliyamo/raffle-checkout/internal/utils"
)

// issueToken prints an access token signed with JWT_SECRET.  Tokens normally
// come from the identity provider; this is for local testing.
func issueToken(c *cli.Context) error {
	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if c.NArg() != 1 {
		return errors.New("usage: token <user-id>")
	}
	ttl := c.Duration("ttl")
	if ttl <= 0 {
		ttl = time.Hour
	}
	tok, err := utils.NewAccessToken(secret, model.Identity{
		UserID: c.Args().First(),
		Name:   c.String("name"),
		Phone:  c.String("phone"),
		Role:   c.String("role"),
	}, ttl)
	if err != nil {
		return errors.Wrap(err, "sign token")
	}
	fmt.Println(tok.Token)
	return nil
}
