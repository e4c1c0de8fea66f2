package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	appctx "erpdir/internal/core/context"
	"erpdir/internal/domain/auth"
	"erpdir/internal/infrastructure/http/v1/middleware"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "mint an access token for local testing",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "company", Usage: "company id", Value: demoCompanyID},
			&cli.StringFlag{Name: "user", Usage: "user id; random when empty"},
			&cli.StringFlag{Name: "email", Value: "dev@example.com"},
			&cli.BoolFlag{Name: "admin", Usage: "grant every permission and cross-company access"},
			&cli.StringSliceFlag{
				Name:  "perm",
				Usage: "permission to grant; repeatable",
				Value: cli.NewStringSlice(middleware.PermDirectoryRead, middleware.PermRecordRead),
			},
		},
		Action: func(c *cli.Context) error {
			_, cfg, _, err := env(c)
			if err != nil {
				return err
			}
			if _, err := uuid.Parse(c.String("company")); err != nil {
				return fmt.Errorf("invalid company: %w", err)
			}
			userID := c.String("user")
			if userID == "" {
				userID = uuid.NewString()
			}

			svc := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret))
			token, expires, err := svc.GenerateAccessToken(&appctx.UserContext{
				UserID:      userID,
				CompanyID:   c.String("company"),
				Email:       c.String("email"),
				Permissions: c.StringSlice("perm"),
				IsAdmin:     c.Bool("admin"),
			})
			if err != nil {
				return err
			}
			fmt.Println(token)
			fmt.Fprintf(c.App.ErrWriter, "expires %s\n", expires.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
}
