package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyward/go/internal/config"
)

// keyringCmd manages the vault password kept in the system keyring
var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Manage auto-unlock through the system keyring",
	Long: `The master password of a local vault can be kept in the system keyring
(macOS Keychain, Windows Credential Manager, Secret Service on Linux) so the
vault unlocks without a prompt. Each vault file has its own keyring entry.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeGlobals(cmd); err != nil {
			return err
		}
		if cfg.Backend == config.BackendRemote {
			return errors.New("the keyring only applies to local vaults")
		}
		newLocalSession()
		return nil
	},
}

var keyringStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show keyring status",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		status := keyringMgr.Status()
		fmt.Fprintln(stdout, "Keyring Status:")
		fmt.Fprintf(stdout, "  Supported: %t\n", status.Supported)
		fmt.Fprintf(stdout, "  Service:   %s\n", status.Service)
		fmt.Fprintf(stdout, "  Account:   %s\n", status.Account)
		fmt.Fprintf(stdout, "  Stored:    %t\n", status.Stored)
	},
}

var keyringSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the master password in the keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfg.VaultPath); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no vault at %s, run 'keyward init' first", cfg.VaultPath)
		}
		password, err := promptPassword("Enter master password: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		// Only a password that opens the vault is worth storing
		if err := sessionMgr.Unlock(cmd.Context(), password); err != nil {
			return err
		}
		if err := keyringMgr.Save(password); err != nil {
			return fmt.Errorf("failed to save password to keyring: %w", err)
		}
		fmt.Fprintln(stdout, "Password saved to keyring")
		return nil
	},
}

var keyringClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the master password from the keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !keyringMgr.Has() {
			fmt.Fprintln(stdout, "No password stored in keyring")
			return nil
		}
		if !confirm("Remove the stored master password?") {
			fmt.Fprintln(stdout, "Cancelled")
			return nil
		}
		if err := keyringMgr.Delete(); err != nil {
			return fmt.Errorf("failed to clear keyring: %w", err)
		}
		fmt.Fprintln(stdout, "Password removed from keyring")
		return nil
	},
}

func init() {
	keyringCmd.AddCommand(keyringStatusCmd, keyringSetCmd, keyringClearCmd)
}
