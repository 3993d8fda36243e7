package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/identity"
)

var tokenCmd = &cobra.Command{
	Use:   "token <package> <signature>",
	Short: "Print the attestation token for one identity",
	Long: `Encode the attestation token for a package and hex signature without
contacting the authorization service.

Example:
  aasprobe token com.example.app 38918a453d07199354f8b19af05ec6562ced5788`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.New(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), identity.EncodeToken(id.Package, id.Signature))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
