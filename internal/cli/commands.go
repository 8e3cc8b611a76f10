package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keyward/go/internal/audit"
	"github.com/keyward/go/internal/config"
	"github.com/keyward/go/internal/engine"
	"github.com/keyward/go/internal/gate"
	"github.com/keyward/go/internal/generator"
	"github.com/keyward/go/internal/search"
	"github.com/keyward/go/internal/strength"
	"github.com/keyward/go/internal/vault"
)

// initCmd creates the vault and sets its master password
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new vault",
	Long: `Create a new vault and set its master password.

For the local backend the master password also encrypts the vault file.
For the remote backend the master password is registered with the server.

Examples:
  keyward init                      # Initialize with password prompt
  keyward init --force              # Replace an existing local vault`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cfg.Backend == config.BackendRemote {
			return initRemote(ctx)
		}
		return initLocal(ctx)
	},
}

func initLocal(ctx context.Context) error {
	if _, err := os.Stat(cfg.VaultPath); err == nil {
		if !force {
			fmt.Fprintf(stdout, "Vault already exists at %s\nUse --force to overwrite\n", cfg.VaultPath)
			return nil
		}
		if err := os.Remove(cfg.VaultPath); err != nil {
			return fmt.Errorf("failed to remove existing vault: %w", err)
		}
	}
	if err := ensureVaultDirectory(cfg.VaultPath); err != nil {
		return err
	}

	password, err := promptNewMaster()
	if err != nil {
		return err
	}

	newLocalSession()
	if err := sessionMgr.Unlock(ctx, password); err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}
	if err := localDB.SetupMasterPassword(ctx, password); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Vault initialized successfully at %s\n", cfg.VaultPath)
	if keyringMgr.Enabled() && confirm("Save password to system keyring for auto-unlock?") {
		if err := keyringMgr.Save(password); err != nil {
			fmt.Fprintf(stderr, "Warning: failed to save password to keyring: %v\n", err)
		}
	}
	return nil
}

func initRemote(ctx context.Context) error {
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	has, err := b.HasMasterPassword(ctx)
	if err != nil {
		return err
	}
	if has {
		fmt.Fprintln(stdout, "Master password is already set up for this account")
		return nil
	}

	password, err := promptNewMaster()
	if err != nil {
		return err
	}
	if err := b.SetupMasterPassword(ctx, password); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Master password set up successfully")
	return nil
}

// promptNewMaster reads a new master password twice and checks the policy
func promptNewMaster() (string, error) {
	password, err := promptPassword("Enter new master password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if err := vault.ValidateMasterPassword(password); err != nil {
		return "", err
	}
	again, err := promptPassword("Repeat master password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if again != password {
		return "", vault.NewValidationError("masterPassword", "passwords do not match")
	}
	return password, nil
}

// addCmd stores a new password
var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Store a new password",
	Long: `Store a device or application password. Missing fields are prompted for;
the password itself is always read with hidden input unless --generate is set.

Examples:
  keyward add --category device --name "Office Router"
  keyward add -C application -n Mail -a me@example.com --url https://mail.example.com
  keyward add -C device -n NAS --generate --length 24`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		category, _ := cmd.Flags().GetString("category")
		name, _ := cmd.Flags().GetString("name")
		account, _ := cmd.Flags().GetString("account")
		url, _ := cmd.Flags().GetString("url")
		generate, _ := cmd.Flags().GetBool("generate")
		length, _ := cmd.Flags().GetInt("length")

		var value string
		if generate {
			var err error
			if value, err = generator.New().Generate(generatorPolicy(cmd, length)); err != nil {
				return err
			}
		}

		eng, err := newEngine(ctx, nil)
		if err != nil {
			return err
		}
		created, err := addRecord(ctx, eng, draftInput{
			category: category, name: name, account: account, url: url, password: value,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(stdout, "Password for %s stored successfully\n", created.Label())
		fmt.Fprintf(stdout, "  %s\n", strength.Meter(strength.Score(created.Password), 20))
		if generate {
			(&terminalPresenter{clip: clipboardMgr}).offerCopy(created.Password)
		}
		printVerbose("Stored record %s", created.ID)
		return nil
	},
}

type draftInput struct {
	category, name, account, url, password string
}

// addRecord fills missing fields from prompts and adds the record
func addRecord(ctx context.Context, eng *engine.Engine, in draftInput) (*vault.Password, error) {
	var err error
	if in.category == "" {
		if in.category, err = promptLine("Category (device/application): "); err != nil {
			return nil, err
		}
	}
	category, err := vault.ParseCategory(in.category)
	if err != nil {
		return nil, err
	}
	if in.name == "" {
		if in.name, err = promptLine("Name: "); err != nil {
			return nil, err
		}
	}
	if category == vault.CategoryApplication && in.account == "" {
		if in.account, err = promptLine("Account name: "); err != nil {
			return nil, err
		}
	}
	if in.password == "" {
		if in.password, err = promptPassword("Password: "); err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
	}

	draft := vault.NewDeviceDraft(in.name, in.password)
	if category == vault.CategoryApplication {
		draft = vault.NewApplicationDraft(in.name, in.account, in.url, in.password)
	}
	return eng.Add(ctx, draft)
}

// generateCmd produces a random password
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a random password",
	Long: `Generate a random password from the selected character classes.
The length is kept between 8 and 32 characters.

Examples:
  keyward generate                       # 16 characters, all classes
  keyward generate -l 24 --no-symbols
  keyward generate --copy                # Copy instead of printing
  keyward generate --save                # Store it as a new password`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		length, _ := cmd.Flags().GetInt("length")
		copyFlag, _ := cmd.Flags().GetBool("copy")
		save, _ := cmd.Flags().GetBool("save")

		policy := generatorPolicy(cmd, length)
		value, err := generator.New().Generate(policy)
		if err != nil {
			return err
		}

		if copyFlag {
			(&terminalPresenter{clip: clipboardMgr}).offerCopy(value)
		} else {
			fmt.Fprintln(stdout, value)
		}
		fmt.Fprintf(stdout, "  %s\n", strength.Meter(strength.Score(value), 20))
		printVerbose("Generated %d characters from %s", len(value), policy.Classes)

		if !save {
			return nil
		}
		ctx := cmd.Context()
		eng, err := newEngine(ctx, nil)
		if err != nil {
			return err
		}
		created, err := addRecord(ctx, eng, draftInput{password: value})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Password for %s stored successfully\n", created.Label())
		return nil
	},
}

// generatorPolicy builds the policy from the class flags; length 0 means
// the configured default
func generatorPolicy(cmd *cobra.Command, length int) generator.Policy {
	if length == 0 {
		length = cfg.Generator.Length
	}
	policy := generator.DefaultPolicy()
	policy.Length = generator.ClampLength(length)

	for _, opt := range []struct {
		flag  string
		class generator.Class
	}{
		{"no-lower", generator.Lowercase},
		{"no-upper", generator.Uppercase},
		{"no-numbers", generator.Numbers},
		{"no-symbols", generator.Symbols},
	} {
		if off, _ := cmd.Flags().GetBool(opt.flag); off {
			policy = policy.Set(opt.class, false)
		}
	}
	return policy
}

// strengthCmd scores a password without storing it
var strengthCmd = &cobra.Command{
	Use:   "strength",
	Short: "Score the strength of a password",
	Long: `Read a password with hidden input and show its strength score (0-100),
label and feedback. Nothing is stored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := promptPassword("Password to score: ")
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		result := strength.Score(value)
		fmt.Fprintf(stdout, "Strength: %s (%d/100)\n", result.Label, result.Value)
		fmt.Fprintf(stdout, "  %s\n", strength.Meter(result, 20))
		if audit.IsWeak(value) {
			fmt.Fprintln(stdout, "The vault audit would flag this password as weak")
		}
		return nil
	},
}

// listCmd lists or filters stored passwords
var listCmd = &cobra.Command{
	Use:   "list [term]",
	Short: "List or search stored passwords",
	Long: `List stored passwords with their strength and audit issues. A term filters
by name, account name or category (case-insensitive substring).

Examples:
  keyward list
  keyward list router
  keyward list --flagged
  keyward list --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}

		records := eng.Records()
		if len(args) > 0 {
			records = eng.Search(args[0])
		}
		snap := eng.Audit()
		if flagged, _ := cmd.Flags().GetBool("flagged"); flagged {
			records = onlyFlagged(records, snap)
		}

		if format, _ := cmd.Flags().GetString("format"); format == "json" {
			return writeJSON(stdout, refs(records))
		}

		if len(records) == 0 {
			if len(args) > 0 {
				fmt.Fprintf(stdout, "No passwords match '%s'\n", args[0])
			} else {
				fmt.Fprintln(stdout, "No passwords stored in vault")
			}
			return nil
		}
		renderList(stdout, records, snap)
		fmt.Fprintf(stdout, "\nTotal: %d passwords\n", len(records))
		return nil
	},
}

func onlyFlagged(records []*vault.Password, snap audit.Snapshot) []*vault.Password {
	var out []*vault.Password
	for _, p := range records {
		if len(snap.Issues(p.ID)) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// gatedCommand builds reveal, delete, fix and history: each resolves a
// record and runs the intent through the master password gate
func gatedCommand(use, short, long string, intent gate.Intent, history bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			presenter := &terminalPresenter{clip: clipboardMgr}
			if intent == gate.IntentReveal && !history {
				presenter.copy, _ = cmd.Flags().GetBool("copy")
			}
			if intent == gate.IntentFix {
				if gen, _ := cmd.Flags().GetBool("generate"); gen {
					length, _ := cmd.Flags().GetInt("length")
					policy := generatorPolicy(cmd, length)
					presenter.generate = &policy
				}
			}

			eng, err := newEngine(ctx, presenter)
			if err != nil {
				return err
			}
			record, err := resolveRecord(eng, args, intent == gate.IntentFix)
			if err != nil || record == nil {
				return err
			}

			if intent == gate.IntentDelete && !confirm(fmt.Sprintf("Delete password for %s?", record.Label())) {
				fmt.Fprintln(stdout, "Cancelled")
				return nil
			}

			granted, err := runGated(ctx, eng, record, intent, history)
			if err != nil || !granted {
				return err
			}
			if intent == gate.IntentDelete {
				fmt.Fprintf(stdout, "Password for %s deleted\n", record.Label())
			}
			if intent == gate.IntentFix {
				snap := eng.Audit()
				fmt.Fprintf(stdout, "Security score: %s\n", scoreStyle(snap.SecurityScore).Render(fmt.Sprintf("%d/100", snap.SecurityScore)))
			}
			return nil
		},
	}
	return cmd
}

var (
	revealCmd = gatedCommand("reveal [id|name]", "Reveal a password",
		`Show a stored password after re-entering the master password. Without an
argument an interactive picker opens.

Examples:
  keyward reveal "Office Router"
  keyward reveal --copy Mail`, gate.IntentReveal, false)

	historyCmd = gatedCommand("history [id|name]", "Show previous values of a password",
		`Show the values a password had before it was changed, newest first, after
re-entering the master password.`, gate.IntentReveal, true)

	deleteCmd = gatedCommand("delete [id|name]", "Delete a password",
		`Permanently delete a stored password and its history after re-entering the
master password.

Examples:
  keyward delete "Old Router"
  keyward delete -f Mail          # Skip the confirmation question`, gate.IntentDelete, false)

	fixCmd = gatedCommand("fix [id|name]", "Replace a weak, old or reused password",
		`Replace the value of a password, keeping the previous value in its history.
Without an argument a picker of the passwords flagged by the audit opens.

Examples:
  keyward fix
  keyward fix "Office Router" --generate --length 24`, gate.IntentFix, false)
)

// resolveRecord finds the record named by args, or lets the user pick one
func resolveRecord(eng *engine.Engine, args []string, flaggedOnly bool) (*vault.Password, error) {
	if len(args) > 0 {
		return eng.Find(args[0])
	}

	snap := eng.Audit()
	records := eng.Records()
	if flaggedOnly {
		records = snap.Flagged()
		if len(records) == 0 {
			fmt.Fprintln(stdout, "No flagged passwords, nothing to fix")
			return nil, nil
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: the vault is empty", vault.ErrNotFound)
	}

	record, err := pickRecord(records, func(p *vault.Password) string {
		if issues := snap.Issues(p.ID); len(issues) > 0 {
			return issueSummary(issues)
		}
		return string(p.Category)
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		fmt.Fprintln(stdout, "No selection made")
	}
	return record, nil
}

// pickRecord is replaced in tests
var pickRecord = search.Pick

// auditCmd prints the security report
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit the vault",
	Long: `Compute the security score and list weak, old and reused passwords along
with the strength, category and age distributions.

Examples:
  keyward audit
  keyward audit --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		report := newAuditReport(eng.Audit(), eng.AgeReport())
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(stdout, report)
		}
		renderAudit(stdout, report)
		return nil
	},
}

// statusCmd shows configuration, vault and session information
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault and session status",
	Long: `Display the configured backend, the vault state, the session timeout and
the clipboard integration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(stdout, "Vault Status:")
		fmt.Fprintf(stdout, "  Backend: %s\n", cfg.Backend)

		if cfg.Backend == config.BackendRemote {
			fmt.Fprintf(stdout, "  URL: %s\n", cfg.Remote.URL)
			fmt.Fprintf(stdout, "  Token: %t\n", cfg.Remote.Token != "")
			fmt.Fprintf(stdout, "  Timeout: %v\n", cfg.Remote.Timeout)
		} else {
			fmt.Fprintf(stdout, "  Path: %s\n", cfg.VaultPath)
			if _, err := os.Stat(cfg.VaultPath); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(stdout, "  Status: Not initialized")
			} else {
				fmt.Fprintln(stdout, "  Status: Available")
				newLocalSession()
				fmt.Fprintf(stdout, "  Keyring auto-unlock: %t\n", keyringMgr.Has())
			}
			fmt.Fprintf(stdout, "  Session timeout: %v\n", cfg.Session.Timeout)
		}

		fmt.Fprintln(stdout, "\nClipboard Status:")
		if clipboardMgr != nil {
			fmt.Fprintf(stdout, "  Tool: %s\n", clipboardMgr.Backend())
			fmt.Fprintf(stdout, "  Clear delay: %v\n", clipboardMgr.ClearDelay())
		} else if cfg.Clipboard.Enabled {
			fmt.Fprintln(stdout, "  Supported: No")
		} else {
			fmt.Fprintln(stdout, "  Enabled: No")
		}

		fmt.Fprintln(stdout, "\nSystem Info:")
		fmt.Fprintf(stdout, "  Verbose mode: %v\n", verbose)
		fmt.Fprintf(stdout, "  Config path: %s\n", configPath)
		return nil
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display version information for the keyward CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(stdout, "keyward version %s\n", versionInfo.version)
		if versionInfo.commit != "unknown" {
			fmt.Fprintf(stdout, "commit: %s\n", versionInfo.commit)
		}
		if versionInfo.date != "unknown" {
			fmt.Fprintf(stdout, "built: %s\n", versionInfo.date)
		}
	},
}

// Version information, set by build flags
var versionInfo = struct {
	version string
	commit  string
	date    string
}{
	version: "dev",
	commit:  "unknown",
	date:    "unknown",
}

func addClassFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("length", "l", 0, "Length of the generated password, 8-32 (default from config)")
	cmd.Flags().Bool("no-upper", false, "Exclude uppercase letters")
	cmd.Flags().Bool("no-lower", false, "Exclude lowercase letters")
	cmd.Flags().Bool("no-numbers", false, "Exclude numbers")
	cmd.Flags().Bool("no-symbols", false, "Exclude symbols")
}

func init() {
	addCmd.Flags().StringP("category", "C", "", "Category: device or application")
	addCmd.Flags().StringP("name", "n", "", "Name of the device or application")
	addCmd.Flags().StringP("account", "a", "", "Account name (applications)")
	addCmd.Flags().String("url", "", "URL (applications)")
	addCmd.Flags().BoolP("generate", "g", false, "Generate the password instead of prompting")
	addClassFlags(addCmd)

	generateCmd.Flags().Bool("copy", false, "Copy to clipboard instead of printing")
	generateCmd.Flags().Bool("save", false, "Store the generated password")
	addClassFlags(generateCmd)

	listCmd.Flags().Bool("flagged", false, "Only show passwords flagged by the audit")
	listCmd.Flags().String("format", "table", "Output format: table, json")

	revealCmd.Flags().Bool("copy", false, "Copy to clipboard instead of printing")

	fixCmd.Flags().BoolP("generate", "g", false, "Generate the new password")
	addClassFlags(fixCmd)

	auditCmd.Flags().Bool("json", false, "Print the report as JSON")
}
