package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/voyatech/ticketcheck/config"
	srv "github.com/voyatech/ticketcheck/internal/server"
)

func tokenCMD() *cobra.Command {
	var cfgPath string
	var password string
	var ttl time.Duration

	var token = &cobra.Command{
		Use:   "token",
		Short: "Mint an admin JWT for the administrative endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			signed, err := srv.MintAdminToken(password, cfg.Server.AdminPasswordHash, []byte(cfg.Server.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Println(signed)
			return nil
		},
	}
	token.Flags().StringVarP(&password, "password", "p", "", "admin password")
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	token.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	_ = token.MarkFlagRequired("password")

	return token
}
