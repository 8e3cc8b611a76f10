package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/go/internal/audit"
	"github.com/keyward/go/internal/gate"
	"github.com/keyward/go/internal/vault"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func record(id, pw string, age time.Duration) *vault.Password {
	return &vault.Password{
		ID:        id,
		Name:      "rec-" + id,
		Password:  pw,
		Category:  vault.CategoryDevice,
		CreatedAt: now.Add(-age),
	}
}

func staticSource(records ...*vault.Password) Source {
	return func(context.Context) ([]*vault.Password, error) { return records, nil }
}

func newTestExporter(src Source) *Exporter {
	return NewExporter(src, WithAuditor(audit.NewAuditorWithClock(func() time.Time { return now })))
}

func TestExporter_Collect(t *testing.T) {
	day := 24 * time.Hour
	e := newTestExporter(staticSource(
		record("1", "Str0ng-Passw0rd!", 10*day),
		record("2", "weak", 100*day),
		record("3", "weak", 200*day),
	))

	expected := `
# HELP keyward_passwords_total Number of records in the vault.
# TYPE keyward_passwords_total gauge
keyward_passwords_total 3
# HELP keyward_password_issues Records flagged by the audit, by issue kind.
# TYPE keyward_password_issues gauge
keyward_password_issues{kind="duplicate"} 1
keyward_password_issues{kind="old"} 2
keyward_password_issues{kind="weak"} 2
# HELP keyward_password_strength Records per strength bucket.
# TYPE keyward_password_strength gauge
keyward_password_strength{bucket="moderate"} 0
keyward_password_strength{bucket="strong"} 0
keyward_password_strength{bucket="very_strong"} 1
keyward_password_strength{bucket="weak"} 2
# HELP keyward_password_age Records per age bucket.
# TYPE keyward_password_age gauge
keyward_password_age{bucket="0-30d"} 1
keyward_password_age{bucket="181d+"} 1
keyward_password_age{bucket="31-90d"} 0
keyward_password_age{bucket="91-180d"} 1
# HELP keyward_security_score Vault security score from 0 to 100.
# TYPE keyward_security_score gauge
keyward_security_score 44
# HELP keyward_up Whether the last scrape could read the vault.
# TYPE keyward_up gauge
keyward_up 1
`
	err := testutil.CollectAndCompare(e, strings.NewReader(expected),
		"keyward_passwords_total", "keyward_password_issues", "keyward_password_strength",
		"keyward_password_age", "keyward_security_score", "keyward_up")
	assert.NoError(t, err)
}

func TestExporter_RecomputesEveryScrape(t *testing.T) {
	records := []*vault.Password{record("1", "weak", 0)}
	e := newTestExporter(func(context.Context) ([]*vault.Password, error) { return records, nil })

	expect := func(total, score int) string {
		return "# HELP keyward_passwords_total Number of records in the vault.\n" +
			"# TYPE keyward_passwords_total gauge\n" +
			"keyward_passwords_total " + strconv.Itoa(total) + "\n" +
			"# HELP keyward_security_score Vault security score from 0 to 100.\n" +
			"# TYPE keyward_security_score gauge\n" +
			"keyward_security_score " + strconv.Itoa(score) + "\n"
	}

	require.NoError(t, testutil.CollectAndCompare(e, strings.NewReader(expect(1, 67)),
		"keyward_passwords_total", "keyward_security_score"))

	records = append(records, record("2", "Str0ng-Passw0rd!", 0))
	require.NoError(t, testutil.CollectAndCompare(e, strings.NewReader(expect(2, 83)),
		"keyward_passwords_total", "keyward_security_score"))
}

func TestExporter_SourceFailure(t *testing.T) {
	e := newTestExporter(func(context.Context) ([]*vault.Password, error) {
		return nil, errors.New("vault is locked")
	})

	expected := `
# HELP keyward_up Whether the last scrape could read the vault.
# TYPE keyward_up gauge
keyward_up 0
`
	require.NoError(t, testutil.CollectAndCompare(e, strings.NewReader(expected), "keyward_up"))
	assert.Equal(t, 0, testutil.CollectAndCount(e, "keyward_security_score"))
}

func TestExporter_EmptyVault(t *testing.T) {
	e := newTestExporter(staticSource())
	assert.Equal(t, 1, testutil.CollectAndCount(e, "keyward_security_score"))
	assert.Equal(t, 4, testutil.CollectAndCount(e, "keyward_password_strength"))
}

func TestExporter_ObserveGateDecisions(t *testing.T) {
	e := newTestExporter(staticSource())

	// Every intent and verdict is exported before any decision
	assert.Equal(t, 6, testutil.CollectAndCount(e, "keyward_gate_decisions_total"))

	e.Observe(gate.Decision{Verdict: gate.VerdictDenied, Intent: gate.IntentReveal})
	e.Observe(gate.Decision{Verdict: gate.VerdictGranted, Intent: gate.IntentReveal})
	e.Observe(gate.Decision{Verdict: gate.VerdictGranted, Intent: gate.IntentFix})
	e.Observe(gate.Decision{Verdict: gate.VerdictGranted, Intent: gate.IntentFix})

	assert.Equal(t, 1.0, testutil.ToFloat64(e.decisions.WithLabelValues("reveal", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.decisions.WithLabelValues("reveal", "granted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.decisions.WithLabelValues("fix", "granted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.decisions.WithLabelValues("delete", "granted")))
}

func TestHandler(t *testing.T) {
	e := newTestExporter(staticSource(record("1", "Str0ng-Passw0rd!", 0)))
	reg, err := NewRegistry(e)
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "keyward_security_score 100")
	assert.Contains(t, string(body), "go_goroutines")
	assert.NotContains(t, string(body), "Str0ng-Passw0rd!")
	assert.Contains(t, string(body), "# HELP keyward_gate_decisions_total Master password re-authentication decisions made by this process since it started.")
}
