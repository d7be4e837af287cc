package cli

import (
	"errors"
	"fmt"

	"slotkeeper/pkg/middleware"

	"github.com/spf13/cobra"
)

func NewHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the bcrypt hash to put in ADMIN_TOKEN_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args[0]) < 16 {
				return errors.New("admin token must be at least 16 characters")
			}
			hash, err := middleware.HashAdminToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
