package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyward/go/internal/vault"
)

type fakeAuth struct {
	master string
	err    error
	calls  int
	during func()
}

func (f *fakeAuth) Verify(_ context.Context, candidate string) (bool, error) {
	f.calls++
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return false, f.err
	}
	return candidate == f.master, nil
}

func newTestGate(auth *fakeAuth) *Gate {
	return New(auth, nil)
}

func testRecord(id string) *vault.Password {
	return &vault.Password{ID: id, Name: "router", Password: "s3cret", Category: vault.CategoryDevice}
}

func TestGate_InitialState(t *testing.T) {
	g := newTestGate(&fakeAuth{master: "m"})
	assert.Equal(t, Idle, g.State())
	_, _, ok := g.Pending()
	assert.False(t, ok)
}

func TestGate_SubmitWithoutRequest(t *testing.T) {
	g := newTestGate(&fakeAuth{master: "m"})
	_, err := g.Submit(context.Background(), "m")
	assert.ErrorIs(t, err, ErrNoPendingRequest)
}

func TestGate_WrongPasswordReprompts(t *testing.T) {
	auth := &fakeAuth{master: "correct"}
	g := newTestGate(auth)

	invoked := 0
	g.Handle(IntentReveal, func(context.Context, Grant) error {
		invoked++
		return nil
	})

	require.NoError(t, g.RequestAccess(testRecord("1"), IntentReveal))
	require.NoError(t, g.SetInput("wrong"))
	assert.Equal(t, "wrong", g.Input())

	d, err := g.Submit(context.Background(), g.Input())
	require.NoError(t, err)
	assert.Equal(t, VerdictDenied, d.Verdict)
	assert.False(t, d.Granted())
	assert.Equal(t, MsgInvalidMasterPassword, d.Message)
	assert.Equal(t, MsgInvalidMasterPassword, g.Message())

	assert.Equal(t, AwaitingMasterPassword, g.State())
	assert.Empty(t, g.Input())
	assert.Equal(t, 0, invoked)

	rec, intent, ok := g.Pending()
	require.True(t, ok)
	assert.Equal(t, "1", rec.ID)
	assert.Equal(t, IntentReveal, intent)
}

func TestGate_CorrectPasswordRunsContinuationOnce(t *testing.T) {
	auth := &fakeAuth{master: "correct"}
	g := newTestGate(auth)
	record := testRecord("1")

	var grants []Grant
	g.Handle(IntentDelete, func(_ context.Context, grant Grant) error {
		assert.Equal(t, Granted, g.State())
		assert.True(t, grant.Valid())
		grants = append(grants, grant)
		return nil
	})

	require.NoError(t, g.RequestAccess(record, IntentDelete))
	d, err := g.Submit(context.Background(), "correct")
	require.NoError(t, err)
	assert.True(t, d.Granted())
	assert.Equal(t, "1", d.RecordID)
	assert.Equal(t, IntentDelete, d.Intent)

	require.Len(t, grants, 1)
	assert.Same(t, record, grants[0].Record())
	assert.Equal(t, IntentDelete, grants[0].Intent())

	assert.Equal(t, Idle, g.State())
	assert.Empty(t, g.Input())
	_, _, ok := g.Pending()
	assert.False(t, ok)

	// A grant does not outlive its cycle
	assert.False(t, grants[0].Valid())

	// Nothing left to submit
	_, err = g.Submit(context.Background(), "correct")
	assert.ErrorIs(t, err, ErrNoPendingRequest)
	assert.Len(t, grants, 1)
}

func TestGate_DeniedThenGranted(t *testing.T) {
	auth := &fakeAuth{master: "correct"}
	g := newTestGate(auth)
	invoked := 0
	g.Handle(IntentFix, func(context.Context, Grant) error {
		invoked++
		return nil
	})

	require.NoError(t, g.RequestAccess(testRecord("1"), IntentFix))
	for i := 0; i < 3; i++ {
		d, err := g.Submit(context.Background(), "nope")
		require.NoError(t, err)
		assert.False(t, d.Granted())
	}
	d, err := g.Submit(context.Background(), "correct")
	require.NoError(t, err)
	assert.True(t, d.Granted())
	assert.Equal(t, 1, invoked)
	assert.Equal(t, 4, auth.calls)
	assert.Empty(t, g.Message())
}

func TestGate_LastRequestWins(t *testing.T) {
	g := newTestGate(&fakeAuth{master: "m"})
	var got []string
	g.Handle(IntentReveal, func(_ context.Context, grant Grant) error {
		got = append(got, "reveal:"+grant.Record().ID)
		return nil
	})
	g.Handle(IntentDelete, func(_ context.Context, grant Grant) error {
		got = append(got, "delete:"+grant.Record().ID)
		return nil
	})

	require.NoError(t, g.RequestAccess(testRecord("1"), IntentReveal))
	require.NoError(t, g.SetInput("partial"))
	require.NoError(t, g.RequestAccess(testRecord("2"), IntentDelete))
	assert.Empty(t, g.Input())

	_, err := g.Submit(context.Background(), "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"delete:2"}, got)
}

func TestGate_Cancel(t *testing.T) {
	auth := &fakeAuth{master: "m"}
	g := newTestGate(auth)

	require.NoError(t, g.RequestAccess(testRecord("1"), IntentReveal))
	require.NoError(t, g.SetInput("typing"))
	g.Cancel()

	assert.Equal(t, Idle, g.State())
	assert.Empty(t, g.Input())
	_, _, ok := g.Pending()
	assert.False(t, ok)

	assert.ErrorIs(t, g.SetInput("x"), ErrNoPendingRequest)
	_, err := g.Submit(context.Background(), "m")
	assert.ErrorIs(t, err, ErrNoPendingRequest)
	assert.Equal(t, 0, auth.calls)

	// Cancelling while idle is a no-op
	g.Cancel()
	assert.Equal(t, Idle, g.State())
}

func TestGate_VerifyErrorKeepsRequestPending(t *testing.T) {
	auth := &fakeAuth{err: vault.ErrUnauthorized}
	g := newTestGate(auth)
	g.Handle(IntentReveal, func(context.Context, Grant) error {
		t.Fatal("continuation must not run")
		return nil
	})

	require.NoError(t, g.RequestAccess(testRecord("1"), IntentReveal))
	_, err := g.Submit(context.Background(), "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, vault.ErrUnauthorized)
	assert.Equal(t, AwaitingMasterPassword, g.State())
	assert.Empty(t, g.Input())
}

func TestGate_ContinuationErrorReturnsToIdle(t *testing.T) {
	g := newTestGate(&fakeAuth{master: "m"})
	boom := errors.New("backend down")
	g.Handle(IntentDelete, func(context.Context, Grant) error { return boom })

	require.NoError(t, g.RequestAccess(testRecord("1"), IntentDelete))
	d, err := g.Submit(context.Background(), "m")
	assert.True(t, d.Granted())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Idle, g.State())
}

func TestGate_MissingHandler(t *testing.T) {
	g := newTestGate(&fakeAuth{master: "m"})
	require.NoError(t, g.RequestAccess(testRecord("1"), IntentFix))
	_, err := g.Submit(context.Background(), "m")
	assert.ErrorIs(t, err, ErrNoHandler)
	assert.Equal(t, Idle, g.State())
}

func TestGate_RequestAccessValidation(t *testing.T) {
	g := newTestGate(&fakeAuth{master: "m"})
	assert.ErrorIs(t, g.RequestAccess(nil, IntentReveal), vault.ErrNotFound)
	assert.ErrorIs(t, g.RequestAccess(testRecord("1"), Intent("edit")), ErrUnknownIntent)
	assert.Equal(t, Idle, g.State())
}

func TestGate_RequestDuringGrantedIsRejected(t *testing.T) {
	g := newTestGate(&fakeAuth{master: "m"})
	var inner error
	g.Handle(IntentReveal, func(context.Context, Grant) error {
		inner = g.RequestAccess(testRecord("2"), IntentDelete)
		g.Cancel()
		return nil
	})

	require.NoError(t, g.RequestAccess(testRecord("1"), IntentReveal))
	_, err := g.Submit(context.Background(), "m")
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrInvalidTransition)

	var te *TransitionError
	require.ErrorAs(t, inner, &te)
	assert.Equal(t, Granted, te.From)
	assert.Equal(t, AwaitingMasterPassword, te.To)
	assert.Equal(t, Idle, g.State())
}

func TestGate_RequestReplacedWhileVerifying(t *testing.T) {
	auth := &fakeAuth{master: "m"}
	g := newTestGate(auth)
	auth.during = func() {
		require.NoError(t, g.RequestAccess(testRecord("2"), IntentReveal))
	}
	g.Handle(IntentReveal, func(context.Context, Grant) error {
		t.Fatal("stale submission must not run a continuation")
		return nil
	})

	require.NoError(t, g.RequestAccess(testRecord("1"), IntentReveal))
	_, err := g.Submit(context.Background(), "m")
	assert.ErrorIs(t, err, ErrNoPendingRequest)

	rec, _, ok := g.Pending()
	require.True(t, ok)
	assert.Equal(t, "2", rec.ID)
}

func TestGate_ObserversSeeEveryDecision(t *testing.T) {
	g := newTestGate(&fakeAuth{master: "m"})
	g.Handle(IntentReveal, func(context.Context, Grant) error { return nil })

	var seen []Verdict
	g.Observe(func(d Decision) { seen = append(seen, d.Verdict) })

	require.NoError(t, g.RequestAccess(testRecord("1"), IntentReveal))
	_, _ = g.Submit(context.Background(), "x")
	_, _ = g.Submit(context.Background(), "m")

	assert.Equal(t, []Verdict{VerdictDenied, VerdictGranted}, seen)
}

func TestZeroGrantIsInvalid(t *testing.T) {
	assert.False(t, Grant{}.Valid())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(Idle, AwaitingMasterPassword))
	assert.False(t, CanTransition(Idle, Granted))
	assert.False(t, CanTransition(Denied, Granted))
	assert.True(t, CanTransition(Denied, AwaitingMasterPassword))
	assert.True(t, CanTransition(Granted, Idle))
	assert.False(t, CanTransition(Granted, AwaitingMasterPassword))
}

func TestParseIntent(t *testing.T) {
	i, err := ParseIntent(" Reveal ")
	require.NoError(t, err)
	assert.Equal(t, IntentReveal, i)

	_, err = ParseIntent("edit")
	assert.ErrorIs(t, err, ErrUnknownIntent)
	assert.Len(t, Intents(), 3)
}
