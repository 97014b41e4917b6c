package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iurnickita/cashback/internal/token"
)

// newTokenCmd выпускает JWT пользователя для отладки API
func newTokenCmd() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Print a signed user token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tokens, err := token.NewToken(cfg.Token)
			if err != nil {
				return err
			}
			tokenString, err := tokens.BuildJWTString(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tokenString)
			return nil
		},
	}
	return tokenCmd
}
