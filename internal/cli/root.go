package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/keyward/go/internal/clipboard"
	"github.com/keyward/go/internal/config"
	"github.com/keyward/go/internal/database"
	"github.com/keyward/go/internal/engine"
	"github.com/keyward/go/internal/gate"
	"github.com/keyward/go/internal/generator"
	"github.com/keyward/go/internal/keyring"
	"github.com/keyward/go/internal/remote"
	"github.com/keyward/go/internal/session"
	"github.com/keyward/go/internal/vault"
)

var (
	// Global flags
	vaultPath   string
	configPath  string
	backendName string
	verbose     bool
	force       bool

	// Global instances
	cfg          *config.Config
	logger       *slog.Logger
	backend      Backend
	localDB      *database.VaultDatabase
	sessionMgr   *session.Manager
	keyringMgr   *keyring.Manager
	clipboardMgr *clipboard.Manager

	// Replaced in tests
	stdout         io.Writer = os.Stdout
	stderr         io.Writer = os.Stderr
	promptPassword           = promptHidden
	promptLine               = readLine
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "keyward",
	Short: "A password vault that audits itself",
	Long: `Keyward stores device and application passwords, scores their strength,
audits the vault for weak, old and reused passwords, and asks for the master
password again before any password is revealed, deleted or fixed.

Examples:
  keyward init                       # Create the vault and set the master password
  keyward add --category device      # Store a device password
  keyward generate --length 24 --copy
  keyward audit                      # Security score and flagged passwords
  keyward reveal "Office Router"     # Show a password after re-authentication
  keyward fix                        # Pick a flagged password and replace it
  keyward metrics --listen :9310     # Serve audit metrics to Prometheus`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeGlobals(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cleanup()
	},
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// SetVersion sets the version information for the CLI
func SetVersion(version, commit, date string) {
	versionInfo.version = version
	versionInfo.commit = commit
	versionInfo.date = date
}

// Execute runs the root command and exits with the code for its error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cleanup()
		handleError(err, "")
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&vaultPath, "vault", "v", "", "Path to the local vault file (default ~/.keyward/vault.db)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "Vault backend: local or remote")
	rootCmd.PersistentFlags().BoolVarP(&force, "force", "f", false, "Force operation without confirmation")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose output")

	rootCmd.AddGroup(&cobra.Group{ID: "vault", Title: "Password Operations:"})
	rootCmd.AddGroup(&cobra.Group{ID: "security", Title: "Security Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "management", Title: "Management Commands:"})

	for _, c := range []*cobra.Command{addCmd, listCmd, revealCmd, historyCmd, deleteCmd, fixCmd} {
		c.GroupID = "vault"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{auditCmd, generateCmd, strengthCmd, metricsCmd} {
		c.GroupID = "security"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{initCmd, masterCmd, statusCmd, keyringCmd, versionCmd} {
		c.GroupID = "management"
		rootCmd.AddCommand(c)
	}
}

// initializeGlobals loads the configuration and builds the shared
// components. Nothing here opens the vault.
func initializeGlobals(cmd *cobra.Command) error {
	logger = newLogger(stderr, verbose)
	slog.SetDefault(logger)

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	if vaultPath != "" {
		cfg.VaultPath = vaultPath
	}
	if backendName != "" {
		cfg.Backend = config.Backend(strings.ToLower(backendName))
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	if cfg.Clipboard.Enabled {
		if b, err := clipboard.Detect(); err == nil {
			clipboardMgr = clipboard.NewManager(b,
				clipboard.WithClearDelay(cfg.Clipboard.ClearDelay),
				clipboard.WithLogger(logger))
		} else {
			printVerbose("Clipboard unavailable: %v", err)
		}
	}

	printVerbose("Backend: %s", cfg.Backend)
	printVerbose("Vault path: %s", cfg.VaultPath)
	printVerbose("Config path: %s", configPath)
	printVerbose("Clipboard enabled: %t", clipboardMgr != nil)
	return nil
}

// openBackend connects to the configured backend. The local vault is
// unlocked through the session, trying the keyring before prompting.
func openBackend(ctx context.Context) (Backend, error) {
	if backend != nil {
		return backend, nil
	}

	switch cfg.Backend {
	case config.BackendRemote:
		client, err := remote.NewClient(cfg.Remote.URL, cfg.Remote.Token,
			remote.WithTimeout(cfg.Remote.Timeout),
			remote.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		backend = client
	default:
		if _, err := os.Stat(cfg.VaultPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no vault at %s, run 'keyward init' first", cfg.VaultPath)
		}
		if err := ensureAuthenticated(ctx); err != nil {
			return nil, err
		}
		backend = localDB
	}
	return backend, nil
}

func newLocalSession() {
	if sessionMgr != nil {
		return
	}
	localDB = database.NewVaultDatabase(cfg.VaultPath, logger)
	keyringMgr = keyring.NewManager(keyring.ForVault(cfg.VaultPath))
	sessionMgr = session.NewManager(localDB,
		session.WithTimeout(cfg.Session.Timeout),
		session.WithKeyring(keyringMgr),
		session.WithLogger(logger))
}

// ensureAuthenticated unlocks the local vault, prompting if necessary
func ensureAuthenticated(ctx context.Context) error {
	newLocalSession()
	if sessionMgr.Active() {
		return sessionMgr.Refresh()
	}

	err := sessionMgr.UnlockWithKeyring(ctx)
	if err == nil {
		printVerbose("Unlocked using keyring")
		return nil
	}
	printVerbose("Keyring unlock failed: %v", err)

	password, err := promptPassword("Enter master password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if err := sessionMgr.Unlock(ctx, password); err != nil {
		return err
	}

	if sessionMgr.CanRemember() && confirm("Save password to system keyring for auto-unlock?") {
		if err := sessionMgr.Remember(password); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to save password to keyring: %v\n", err)
		} else {
			fmt.Fprintln(stdout, "Password saved to keyring (vault file remains portable)")
		}
	}
	return nil
}

// newEngine opens the backend and loads the vault view
func newEngine(ctx context.Context, presenter engine.Presenter) (*engine.Engine, error) {
	b, err := openBackend(ctx)
	if err != nil {
		return nil, err
	}
	eng := engine.New(b, b, engine.Options{Logger: logger, Presenter: presenter})
	eng.Gate().Observe(func(d gate.Decision) {
		logger.Info("gate decision", "intent", d.Intent, "record", d.RecordID, "verdict", d.Verdict)
	})
	if err := eng.Load(ctx); err != nil {
		return nil, err
	}
	return eng, nil
}

func cleanup() {
	if clipboardMgr != nil && clipboardMgr.Pending() {
		fmt.Fprintf(stdout, "Clipboard will be cleared in %v (Ctrl+C to leave it)\n", clipboardMgr.ClearDelay())
		clipboardMgr.Wait()
	}
	if sessionMgr != nil {
		sessionMgr.Lock()
	}
	backend = nil
}

// promptHidden prompts the user for a password with hidden input
func promptHidden(prompt string) (string, error) {
	fmt.Fprint(stdout, prompt)
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(stdout)
	if err != nil {
		return "", err
	}
	return string(passwordBytes), nil
}

var stdin = bufio.NewReader(os.Stdin)

func readLine(prompt string) (string, error) {
	fmt.Fprint(stdout, prompt)
	line, err := stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question; --force answers yes
func confirm(question string) bool {
	if force {
		return true
	}
	answer, err := promptLine(question + " (y/N): ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		return 5
	case errors.Is(err, vault.ErrUnauthorized),
		errors.Is(err, database.ErrAuthenticationFailed),
		errors.Is(err, errDenied):
		return 2
	case errors.Is(err, vault.ErrNotFound):
		return 3
	case errors.Is(err, vault.ErrDuplicateEntry):
		return 4
	case errors.Is(err, vault.ErrValidation),
		errors.Is(err, generator.ErrInvalidPolicy):
		return 6
	}
	return 1
}

// handleError prints err and exits with its code
func handleError(err error, message string) {
	if err == nil {
		return
	}
	if message != "" {
		fmt.Fprintf(stderr, "%s: %v\n", message, err)
	} else {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// printVerbose prints verbose output if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && logger != nil {
		logger.Debug(fmt.Sprintf(format, args...))
	}
}

// ensureVaultDirectory ensures the vault directory exists
func ensureVaultDirectory(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create vault directory: %w", err)
	}
	return nil
}
