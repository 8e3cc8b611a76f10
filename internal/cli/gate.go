package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/keyward/go/internal/engine"
	"github.com/keyward/go/internal/gate"
	"github.com/keyward/go/internal/vault"
)

// maxAttempts is how many wrong master passwords one request tolerates
const maxAttempts = 3

var errDenied = errors.New("master password rejected")

var intentVerbs = map[gate.Intent]string{
	gate.IntentReveal: "reveal",
	gate.IntentDelete: "delete",
	gate.IntentFix:    "fix",
}

// runGated opens a gate request for record and prompts for the master
// password until it is granted, cancelled with an empty entry, or rejected
// maxAttempts times. It reports whether access was granted.
func runGated(ctx context.Context, eng *engine.Engine, record *vault.Password, intent gate.Intent, history bool) (bool, error) {
	var err error
	if history {
		err = eng.RequestHistory(record.ID)
	} else {
		err = eng.RequestAccess(record.ID, intent)
	}
	if err != nil {
		return false, err
	}

	verb := intentVerbs[intent]
	if history {
		verb = "view the history of"
	}
	fmt.Fprintf(stdout, "Master password required to %s %s\n", verb, record.Label())

	for attempt := 1; ; attempt++ {
		password, err := promptPassword("Master password (empty to cancel): ")
		if err != nil {
			eng.Cancel()
			return false, fmt.Errorf("failed to read password: %w", err)
		}
		if password == "" {
			eng.Cancel()
			fmt.Fprintln(stdout, "Cancelled")
			return false, nil
		}

		decision, err := eng.Submit(ctx, password)
		if err != nil {
			eng.Cancel()
			return false, err
		}
		if decision.Granted() {
			return true, nil
		}

		fmt.Fprintln(stderr, decision.Message)
		if attempt >= maxAttempts {
			eng.Cancel()
			return false, fmt.Errorf("%w after %d attempts", errDenied, attempt)
		}
	}
}
