package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyward/go/internal/config"
)

// masterCmd groups master password management
var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Manage the master password",
}

var masterChangeCmd = &cobra.Command{
	Use:   "change",
	Short: "Change the master password",
	Long: `Change the master password. A local vault file is re-encrypted with the
new password and a password stored in the system keyring is replaced. A remote
vault asks the server to check the current password and store the new one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx)
		if err != nil {
			return err
		}

		current, err := promptPassword("Current master password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		next, err := promptPassword("New master password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		again, err := promptPassword("Repeat new master password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		if err := b.ChangeMasterPassword(ctx, current, next, again); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Master password changed successfully")

		if cfg.Backend == config.BackendLocal && keyringMgr != nil && keyringMgr.Has() {
			if err := keyringMgr.Save(next); err != nil {
				fmt.Fprintf(stderr, "Warning: failed to update keyring, auto-unlock will fail: %v\n", err)
			} else {
				printVerbose("Keyring updated")
			}
		}
		return nil
	},
}

func init() {
	masterCmd.AddCommand(masterChangeCmd)
}
