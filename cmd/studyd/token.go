package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/study-core/internal/server"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token signed with the server auth secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			auth := server.NewAuthenticator(secret)
			if auth == nil {
				return fmt.Errorf("--secret or STUDYD_AUTH_SECRET is required")
			}
			tok, err := auth.Issue(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("secret", os.Getenv("STUDYD_AUTH_SECRET"), "HS256 signing secret")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}
