package registry

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Theras-Labs/card-server-evm/escrow"
	"github.com/Theras-Labs/card-server-evm/logger"
	"github.com/Theras-Labs/card-server-evm/match"
	"github.com/Theras-Labs/card-server-evm/models"
	"github.com/Theras-Labs/card-server-evm/rules"
	"github.com/Theras-Labs/card-server-evm/state"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

var testPlayers = [match.PlayerCount]string{"0xA", "0xB", "0xC", "0xD"}

const owner = "0xOwner"
const feeRecipient = "0xTreasury"

type fixture struct {
	registry *Registry
	bank     *escrow.Bank
	clock    *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func testSettings() rules.MatchSettings {
	return rules.MatchSettings{
		CardsPerPlayer: 7,
		TurnTimeLimit:  30 * time.Second,
		PauseEnabled:   true,
		PenaltyCards:   2,
	}
}

func newFixture(t *testing.T, feeBasisPoints uint64) *fixture {
	t.Helper()
	f := &fixture{
		bank:  escrow.NewBank(),
		clock: &fakeClock{now: time.Unix(1700000000, 0)},
	}
	for _, p := range testPlayers {
		f.bank.Credit(p, 1000)
	}
	reg, err := New(Config{
		Owner:          owner,
		FeeRecipient:   feeRecipient,
		FeeBasisPoints: feeBasisPoints,
		Treasury:       f.bank,
		Clock:          f.clock.Now,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.registry = reg
	return f
}

// createMatch creates a match hosted by the first test player.
func (f *fixture) createMatch(t *testing.T, stake uint64) string {
	t.Helper()
	id, err := f.registry.CreateMatch(testPlayers[0], testPlayers[0], testPlayers, testSettings(), stake)
	if err != nil {
		t.Fatalf("CreateMatch failed: %v", err)
	}
	return id
}

// playOut joins the remaining players and times the match down to a winner
// with heavy penalties.
func (f *fixture) playOut(t *testing.T, matchID string) {
	t.Helper()
	inst, _ := f.registry.Instance(matchID)
	for _, p := range testPlayers[1:] {
		if err := inst.Join(p); err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
	}
	// Timeout players one by one until only one remains.
	for inst.Phase() != state.PhaseCompleted {
		f.clock.now = f.clock.now.Add(time.Hour)
		if err := inst.HandleTimeout("sweeper"); err != nil {
			t.Fatalf("timeout: %v", err)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("a registry without an owner should be rejected")
	}
	if _, err := New(Config{Owner: owner, FeeBasisPoints: MaxFeeBasisPoints + 1}); !errors.Is(err, ErrFeeTooHigh) {
		t.Errorf("expected ErrFeeTooHigh, got %v", err)
	}
}

func TestCreateMatch_RecordsWaiting(t *testing.T) {
	f := newFixture(t, 250)
	id := f.createMatch(t, 100)

	rec, ok := f.registry.GetMatch(id)
	if !ok {
		t.Fatal("created match should be retrievable")
	}
	if rec.Status != models.StatusWaiting {
		t.Errorf("expected WAITING, got %s", rec.Status)
	}
	if rec.Host != testPlayers[0] {
		t.Errorf("unexpected host %s", rec.Host)
	}
	for _, p := range testPlayers {
		active := f.registry.ActiveMatches(p)
		if len(active) != 1 || active[0].MatchID != id {
			t.Errorf("%s should see the match as active", p)
		}
	}
	if got := f.bank.Balance(escrow.MatchAccount(id)); got != 100 {
		t.Errorf("host stake should be escrowed, got %d", got)
	}
}

func TestCreateMatch_DelegateAuthorization(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.registry.CreateMatch("0xStranger", testPlayers[0], testPlayers, testSettings(), 0)
	if !errors.Is(err, ErrNotAuthorizedForHost) {
		t.Fatalf("expected ErrNotAuthorizedForHost, got %v", err)
	}
}

func TestCreateMatch_Paused(t *testing.T) {
	f := newFixture(t, 0)

	if err := f.registry.SetCreationPaused("0xStranger", true); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := f.registry.SetCreationPaused(owner, true); err != nil {
		t.Fatal(err)
	}
	if _, err := f.registry.CreateMatch(testPlayers[0], testPlayers[0], testPlayers, testSettings(), 0); !errors.Is(err, ErrCreationPaused) {
		t.Fatalf("expected ErrCreationPaused, got %v", err)
	}
	if err := f.registry.SetCreationPaused(owner, false); err != nil {
		t.Fatal(err)
	}
	f.createMatch(t, 0)
}

func TestUpdateMatchStatus_TokenEnforced(t *testing.T) {
	f := newFixture(t, 0)
	id := f.createMatch(t, 0)

	err := f.registry.UpdateMatchStatus("forged-token", id, models.StatusPlaying)
	if !errors.Is(err, ErrNotOwningInstance) {
		t.Fatalf("expected ErrNotOwningInstance, got %v", err)
	}
	if err := f.registry.UpdateMatchStatus("any", "no-such-match", models.StatusPlaying); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
}

func TestLifecycle_StatusFollowsInstance(t *testing.T) {
	f := newFixture(t, 0)
	id := f.createMatch(t, 0)

	inst, ok := f.registry.Instance(id)
	if !ok {
		t.Fatal("instance should be retrievable")
	}
	for _, p := range testPlayers[1:] {
		if err := inst.Join(p); err != nil {
			t.Fatal(err)
		}
	}

	rec, _ := f.registry.GetMatch(id)
	if rec.Status != models.StatusPlaying {
		t.Fatalf("expected PLAYING after auto-start, got %s", rec.Status)
	}
	if rec.StartedAt.IsZero() {
		t.Error("StartedAt should be set once the match starts")
	}
}

func TestSettlement_FeeAndPrize(t *testing.T) {
	f := newFixture(t, 250) // 2.5%
	id := f.createMatch(t, 100)
	f.playOut(t, id)

	rec, _ := f.registry.GetMatch(id)
	if rec.Status != models.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", rec.Status)
	}
	if rec.Winner == "" {
		t.Fatal("a winner should be recorded")
	}

	// 400 staked, 2.5% fee = 10, prize = 390.
	if got := f.bank.Balance(feeRecipient); got != 10 {
		t.Errorf("fee recipient should hold 10, got %d", got)
	}
	if got := f.bank.Balance(rec.Winner); got != 900+390 {
		t.Errorf("winner should hold 1290, got %d", got)
	}
	if got := f.bank.Balance(escrow.MatchAccount(id)); got != 0 {
		t.Errorf("escrow should be drained, got %d", got)
	}

	// The match moved from every player's active list to history.
	for _, p := range testPlayers {
		if len(f.registry.ActiveMatches(p)) != 0 {
			t.Errorf("%s should have no active matches", p)
		}
		hist := f.registry.MatchHistory(p)
		if len(hist) != 1 || hist[0].MatchID != id {
			t.Errorf("%s should see the match in history", p)
		}
	}
}

func TestReportWinner_Idempotent(t *testing.T) {
	f := newFixture(t, 0)
	id := f.createMatch(t, 0)
	f.playOut(t, id)

	inst, _ := f.registry.Instance(id)
	entryToken := func() string {
		f.registry.mutex.RLock()
		defer f.registry.mutex.RUnlock()
		return f.registry.entries[id].token
	}()

	err := f.registry.ReportWinner(entryToken, id, inst.Snapshot().Winner)
	if !errors.Is(err, ErrWinnerAlreadyReported) {
		t.Fatalf("expected ErrWinnerAlreadyReported, got %v", err)
	}
}

func TestReportWinner_InvalidWinner(t *testing.T) {
	f := newFixture(t, 0)
	id := f.createMatch(t, 0)

	entryToken := func() string {
		f.registry.mutex.RLock()
		defer f.registry.mutex.RUnlock()
		return f.registry.entries[id].token
	}()
	if err := f.registry.ReportWinner(entryToken, id, "0xStranger"); !errors.Is(err, ErrInvalidWinner) {
		t.Fatalf("expected ErrInvalidWinner, got %v", err)
	}
}

func TestEmergencyCancelMatch(t *testing.T) {
	f := newFixture(t, 0)
	id := f.createMatch(t, 100)

	if err := f.registry.EmergencyCancelMatch(testPlayers[0], id); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := f.registry.EmergencyCancelMatch(owner, "nope"); !errors.Is(err, ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound, got %v", err)
	}
	if err := f.registry.EmergencyCancelMatch(owner, id); err != nil {
		t.Fatalf("emergency cancel failed: %v", err)
	}

	rec, _ := f.registry.GetMatch(id)
	if rec.Status != models.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", rec.Status)
	}
	if got := f.bank.Balance(testPlayers[0]); got != 1000 {
		t.Errorf("host stake should be refunded, got %d", got)
	}
	if err := f.registry.EmergencyCancelMatch(owner, id); err == nil {
		t.Error("cancelling a closed match should fail")
	}
}

func TestExpireStaleMatches(t *testing.T) {
	f := newFixture(t, 0)
	stale := f.createMatch(t, 100)

	f.clock.now = f.clock.now.Add(2 * time.Hour)
	fresh, err := f.registry.CreateMatch(testPlayers[1], testPlayers[1], testPlayers, testSettings(), 0)
	if err != nil {
		t.Fatal(err)
	}

	if n := f.registry.ExpireStaleMatches(time.Hour); n != 1 {
		t.Fatalf("expected 1 expired match, got %d", n)
	}

	rec, _ := f.registry.GetMatch(stale)
	if rec.Status != models.StatusExpired {
		t.Errorf("expected EXPIRED, got %s", rec.Status)
	}
	if got := f.bank.Balance(testPlayers[0]); got != 1000 {
		t.Errorf("stale host should be refunded, got %d", got)
	}
	rec, _ = f.registry.GetMatch(fresh)
	if rec.Status != models.StatusWaiting {
		t.Errorf("fresh match should stay WAITING, got %s", rec.Status)
	}
}

func TestAdmin_FeeControls(t *testing.T) {
	f := newFixture(t, 100)

	if err := f.registry.SetPlatformFee(testPlayers[0], 200); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := f.registry.SetPlatformFee(owner, MaxFeeBasisPoints+1); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("expected ErrFeeTooHigh, got %v", err)
	}
	if err := f.registry.SetPlatformFee(owner, MaxFeeBasisPoints); err != nil {
		t.Fatalf("fee at the cap should be accepted: %v", err)
	}
	if got := f.registry.FeeBasisPoints(); got != MaxFeeBasisPoints {
		t.Errorf("expected %d basis points, got %d", MaxFeeBasisPoints, got)
	}
	if err := f.registry.SetFeeRecipient(owner, "0xNewTreasury"); err != nil {
		t.Fatal(err)
	}
}

func TestSetFactory_OnlyAffectsFutureMatches(t *testing.T) {
	f := newFixture(t, 0)
	built := 0
	err := f.registry.SetFactory(owner, func(cfg match.Config) (*match.Match, error) {
		built++
		return match.New(cfg)
	})
	if err != nil {
		t.Fatal(err)
	}
	f.createMatch(t, 0)
	if built != 1 {
		t.Errorf("replacement factory should build new matches, built=%d", built)
	}
}

func TestMatchPlayers_Directory(t *testing.T) {
	f := newFixture(t, 0)
	id := f.createMatch(t, 0)

	players, ok := f.registry.MatchPlayers(id)
	if !ok || players != testPlayers {
		t.Fatalf("expected the full roster, got %v ok=%v", players, ok)
	}
	if _, ok := f.registry.MatchPlayers("nope"); ok {
		t.Error("unknown match should not resolve")
	}
}

func TestMatchesByStatus(t *testing.T) {
	f := newFixture(t, 0)
	id := f.createMatch(t, 0)

	waiting := f.registry.MatchesByStatus(models.StatusWaiting)
	if len(waiting) != 1 || waiting[0].MatchID != id {
		t.Fatalf("expected one WAITING match, got %v", waiting)
	}
	if len(f.registry.MatchesByStatus(models.StatusCompleted)) != 0 {
		t.Error("no COMPLETED match should be listed yet")
	}
}
