package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func newNicknameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nickname <profile-url>...",
		Short: "Resolve athlete nicknames from profile URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			session, err := newSession()
			if err != nil {
				return err
			}
			defer session.Close()

			nicks, err := session.Nicknames(ctx, args)
			if err != nil {
				return err
			}

			for i, u := range args {
				if nicks[i] == "" {
					fmt.Printf("%s\t(not found)\n", u)
					continue
				}
				fmt.Printf("%s\t%s\n", u, nicks[i])
			}
			return nil
		},
	}
}
