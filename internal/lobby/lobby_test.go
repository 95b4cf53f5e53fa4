package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DoyleJ11/auction-backend/internal/auth"
	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/DoyleJ11/auction-backend/internal/hub"
	"github.com/DoyleJ11/auction-backend/internal/metrics"
	"github.com/DoyleJ11/auction-backend/internal/store"
	"github.com/DoyleJ11/auction-backend/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const within = 200 * time.Millisecond

type failingStore struct{ store.MemoryStore }

func (*failingStore) Save(context.Context, engine.State) error { return errors.New("disk full") }

func newTestLobby(t *testing.T, initial engine.State, st store.Store) *Lobby {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := zaptest.NewLogger(t)
	m := metrics.New()
	g, err := auth.NewGuard("1010", "")
	require.NoError(t, err)

	h := hub.NewHub(ctx, log, m)
	return NewLobby(ctx, initial, Deps{Hub: h, Store: st, Guard: g, Logger: log, Metrics: m})
}

// helper: receive one message with a timeout so tests never hang
func recv(t *testing.T, ch <-chan types.Outbound) types.Outbound {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return types.Outbound{} // unreachable
	}
}

func recvNone(t *testing.T, ch <-chan types.Outbound) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no message, got %s %+v", msg.Event, msg.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func expect(t *testing.T, ch <-chan types.Outbound, event string) types.Outbound {
	t.Helper()
	msg := recv(t, ch)
	require.Equal(t, event, msg.Event, "payload: %+v", msg.Data)
	return msg
}

func view(t *testing.T, l *Lobby) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, ok := l.Snapshot(ctx)
	require.True(t, ok)
	return v
}

func join(t *testing.T, l *Lobby, id string) chan types.Outbound {
	t.Helper()
	out := make(chan types.Outbound, 16)
	l.Inbox() <- Join{ClientID: id, Outbox: out}
	expect(t, out, types.EvtInitAuth)
	return out
}

func joinAs(t *testing.T, l *Lobby, id string, req auth.Request) chan types.Outbound {
	t.Helper()
	out := join(t, l, id)
	l.Inbox() <- Login{ClientID: id, Req: req}
	expect(t, out, types.EvtAuthSuccess)
	return out
}

var adminLogin = auth.Request{Type: "admin", Password: "1010"}

func sale(category, name, teamID string, price engine.Amount) engine.Command {
	return engine.Command{Type: engine.CmdFinalizeSale, Category: category, Name: name, TeamID: teamID, Price: price}
}

func TestLobby_JoinSendsPublicRoster(t *testing.T) {
	l := newTestLobby(t, engine.NewDefaultState(), store.NewMemory())

	out := make(chan types.Outbound, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}

	msg := expect(t, out, types.EvtInitAuth)
	roster, ok := msg.Data.(types.InitAuth)
	require.True(t, ok)
	assert.Len(t, roster.Teams, 3)

	b, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "password")
}

func TestLobby_Login(t *testing.T) {
	l := newTestLobby(t, engine.NewDefaultState(), store.NewMemory())

	t.Run("admin sees passwords", func(t *testing.T) {
		out := join(t, l, "admin")
		l.Inbox() <- Login{ClientID: "admin", Req: adminLogin}
		ok := expect(t, out, types.EvtAuthSuccess).Data.(types.AuthSuccess)
		assert.Equal(t, "admin", ok.Role)
		assert.Equal(t, "123", ok.State.Teams[0].Password)
	})

	t.Run("team gets redacted ledger", func(t *testing.T) {
		out := join(t, l, "team")
		l.Inbox() <- Login{ClientID: "team", Req: auth.Request{Type: "team", TeamID: "t2", Password: "123"}}
		ok := expect(t, out, types.EvtAuthSuccess).Data.(types.AuthSuccess)
		assert.Equal(t, "team", ok.Role)
		assert.Equal(t, "t2", ok.TeamID)
		assert.Empty(t, ok.State.Teams[0].Password)
	})

	t.Run("bad admin password", func(t *testing.T) {
		out := join(t, l, "intruder")
		l.Inbox() <- Login{ClientID: "intruder", Req: auth.Request{Type: "admin", Password: "guess"}}
		assert.Equal(t, "Invalid Admin Password", expect(t, out, types.EvtAuthFail).Data)
	})

	t.Run("bad team password", func(t *testing.T) {
		out := join(t, l, "t-bad")
		l.Inbox() <- Login{ClientID: "t-bad", Req: auth.Request{Type: "team", TeamID: "t1", Password: "guess"}}
		assert.Equal(t, "Invalid Team Password", expect(t, out, types.EvtAuthFail).Data)
	})

	t.Run("anything else listens", func(t *testing.T) {
		out := join(t, l, "viewer")
		l.Inbox() <- Login{ClientID: "viewer", Req: auth.Request{Type: "spectator"}}
		assert.Equal(t, "listener", expect(t, out, types.EvtAuthSuccess).Data.(types.AuthSuccess).Role)
	})
}

func TestLobby_UnauthorizedCommandsAreDroppedSilently(t *testing.T) {
	st := store.NewMemory()
	l := newTestLobby(t, engine.NewDefaultState(), st)

	anon := join(t, l, "anon")
	team := joinAs(t, l, "team", auth.Request{Type: "team", TeamID: "t1", Password: "123"})
	listener := joinAs(t, l, "listener", auth.Request{})

	for _, id := range []string{"anon", "team", "listener"} {
		l.Inbox() <- FromClient{ClientID: id, Cmd: sale("Bat", "Virat", "t1", 100)}
		l.Inbox() <- FromClient{ClientID: id, Cmd: engine.Command{Type: engine.CmdResetAll}}
	}
	l.Inbox() <- TextareaUpdate{ClientID: "team", Payload: "notes"}

	v := view(t, l)
	assert.Equal(t, 0, v.Version)
	assert.Empty(t, v.State.SoldPrices)
	assert.Len(t, v.State.Teams, 3)
	assert.Equal(t, 0, st.Saves())
	recvNone(t, anon)
	recvNone(t, team)
	recvNone(t, listener)
}

func TestLobby_SaleScenario(t *testing.T) {
	st := store.NewMemory()
	l := newTestLobby(t, engine.NewDefaultState(), st)

	admin := joinAs(t, l, "admin", adminLogin)
	team := joinAs(t, l, "team", auth.Request{Type: "team", TeamID: "t2", Password: "123"})

	l.Inbox() <- FromClient{ClientID: "admin", Cmd: engine.Command{Type: engine.CmdPlaceBid, Category: "Batsman", Name: "Virat", Price: 250}}
	bid := expect(t, team, types.EvtPlayerBid).Data.(types.BidPayload)
	assert.Equal(t, engine.Amount(250), bid.Price)
	expect(t, admin, types.EvtPlayerBid)

	l.Inbox() <- FromClient{ClientID: "admin", Cmd: sale("Batsman", "Virat", "t1", 300)}

	adminSold := expect(t, admin, types.EvtPlayerSold).Data.(types.Sold)
	teamSold := expect(t, team, types.EvtPlayerSold).Data.(types.Sold)
	assert.Equal(t, "Virat", teamSold.Payload.Name)
	assert.Equal(t, types.ID("t1"), teamSold.Payload.TeamID)
	assert.Equal(t, engine.Amount(200), teamSold.Teams[0].Purse)
	assert.Empty(t, teamSold.Teams[0].Password)
	assert.Equal(t, "123", adminSold.Teams[0].Password)

	persisted, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.Amount(300), persisted.SoldPrices[engine.Key("Batsman", "Virat")])
	assert.Empty(t, persisted.ActiveBids)

	// same player to another team
	l.Inbox() <- FromClient{ClientID: "admin", Cmd: sale("Batsman", "Virat", "t2", 10)}
	assert.Equal(t, "Player already sold!", expect(t, admin, types.EvtActionRejected).Data)
	recvNone(t, team)

	v := view(t, l)
	assert.Equal(t, 2, v.Version)
	assert.Contains(t, v.State.SoldPlayers(), "Virat")
	assert.Equal(t, 2, st.Saves())

	// reset the team
	l.Inbox() <- FromClient{ClientID: "admin", Cmd: engine.Command{Type: engine.CmdResetTeam, TeamID: "t1"}}
	updated := expect(t, team, types.EvtStateUpdated).Data.(engine.State)
	assert.Equal(t, engine.DefaultPurse, updated.Teams[0].Purse)
	assert.Empty(t, updated.Teams[0].Purchases)
	assert.NotContains(t, updated.SoldPrices, engine.Key("Batsman", "Virat"))
	toast := expect(t, team, types.EvtAdminToast).Data.(types.Toast)
	assert.Equal(t, types.Toast{Type: "success", Msg: "Team Royal Challengers reset."}, toast)
}

func TestLobby_ResetBroadcasts(t *testing.T) {
	l := newTestLobby(t, engine.NewDefaultState(), store.NewMemory())
	admin := joinAs(t, l, "admin", adminLogin)

	cases := []struct {
		cmd   engine.Command
		toast types.Toast
	}{
		{engine.Command{Type: engine.CmdResetPlayer, Category: "Bat", Name: "Virat"}, types.Toast{Type: "success", Msg: "Player Virat reset."}},
		{engine.Command{Type: engine.CmdResetCategory, Category: "Bat"}, types.Toast{Type: "success", Msg: "Category Bat reset."}},
		{engine.Command{Type: engine.CmdResetAll}, types.Toast{Type: "error", Msg: "System FULL RESET."}},
	}
	for _, tc := range cases {
		l.Inbox() <- FromClient{ClientID: "admin", Cmd: tc.cmd}
		expect(t, admin, types.EvtStateUpdated)
		assert.Equal(t, tc.toast, expect(t, admin, types.EvtAdminToast).Data)
	}
	assert.Empty(t, view(t, l).State.Teams)
}

func TestLobby_ResetUnknownTeamIsSilent(t *testing.T) {
	st := store.NewMemory()
	l := newTestLobby(t, engine.NewDefaultState(), st)
	admin := joinAs(t, l, "admin", adminLogin)

	l.Inbox() <- FromClient{ClientID: "admin", Cmd: engine.Command{Type: engine.CmdResetTeam, TeamID: "ghost"}}
	recvNone(t, admin)
	assert.Equal(t, 0, st.Saves())
}

func TestLobby_PersistenceFailureStillBroadcasts(t *testing.T) {
	l := newTestLobby(t, engine.NewDefaultState(), &failingStore{})
	admin := joinAs(t, l, "admin", adminLogin)

	l.Inbox() <- FromClient{ClientID: "admin", Cmd: sale("Bat", "Virat", "t1", 100)}
	expect(t, admin, types.EvtPlayerSold)
	assert.Equal(t, 1, view(t, l).Version)
}

func TestLobby_SnapshotSaveAndClear(t *testing.T) {
	l := newTestLobby(t, engine.NewDefaultState(), store.NewMemory())
	admin := joinAs(t, l, "admin", adminLogin)
	listener := joinAs(t, l, "listener", auth.Request{})

	players := []json.RawMessage{json.RawMessage(`{"name":"Virat"}`)}
	l.Inbox() <- FromClient{ClientID: "admin", Cmd: engine.Command{Type: engine.CmdSaveSnapshot, Category: "Bat", Players: players}}
	loaded := expect(t, listener, types.EvtPlayersLoad).Data.(types.PlayersPayload)
	assert.Equal(t, types.ID("Bat"), loaded.Category)
	assert.Equal(t, players, loaded.Players)
	expect(t, admin, types.EvtPlayersLoad)

	// late joiners get the roster in their login state
	late := join(t, l, "late")
	l.Inbox() <- Login{ClientID: "late", Req: auth.Request{}}
	ok := expect(t, late, types.EvtAuthSuccess).Data.(types.AuthSuccess)
	assert.Equal(t, players, ok.State.PlayersSnapshot["Bat"])

	l.Inbox() <- FromClient{ClientID: "admin", Cmd: engine.Command{Type: engine.CmdClearSnapshot, Category: "Bat"}}
	expect(t, listener, types.EvtPlayersClear)
	assert.Empty(t, view(t, l).State.PlayersSnapshot)
}

func TestLobby_RelaysAreNotLedgerMutations(t *testing.T) {
	st := store.NewMemory()
	l := newTestLobby(t, engine.NewDefaultState(), st)
	admin := joinAs(t, l, "admin", adminLogin)
	team := joinAs(t, l, "team", auth.Request{Type: "team", TeamID: "t3", Password: "123"})

	l.Inbox() <- BidRequest{TeamName: "Mumbai Indians", PlayerName: "Virat"}
	toast := expect(t, admin, types.EvtAdminToast).Data.(types.Toast)
	assert.Equal(t, types.Toast{Type: "info", Msg: "Bid Request: Mumbai Indians for Virat"}, toast)
	expect(t, team, types.EvtAdminToast)

	l.Inbox() <- RelayPlayers{Payload: types.PlayersPayload{Category: "Bat"}}
	expect(t, admin, types.EvtPlayersLoad)
	expect(t, team, types.EvtPlayersLoad)

	l.Inbox() <- TextareaUpdate{ClientID: "admin", Payload: json.RawMessage(`"round 2"`)}
	expect(t, team, types.EvtTextareaUpdate)
	recvNone(t, admin)

	l.Inbox() <- Reload{At: time.UnixMilli(1700000000000)}
	assert.Equal(t, types.Reload{TS: 1700000000000}, expect(t, team, types.EvtServerReload).Data)

	v := view(t, l)
	assert.Equal(t, 0, v.Version)
	assert.Empty(t, v.State.PlayersSnapshot)
	assert.Equal(t, 0, st.Saves())
}

func TestLobby_LeaveRevokesAdmin(t *testing.T) {
	l := newTestLobby(t, engine.NewDefaultState(), store.NewMemory())
	admin := joinAs(t, l, "admin", adminLogin)

	l.Inbox() <- Leave{ClientID: "admin"}
	select {
	case _, ok := <-admin:
		assert.False(t, ok)
	case <-time.After(within):
		t.Fatalf("outbox not closed after leave")
	}

	l.Inbox() <- FromClient{ClientID: "admin", Cmd: engine.Command{Type: engine.CmdResetAll}}
	v := view(t, l)
	assert.Equal(t, 0, v.Version)
	assert.Equal(t, 0, v.NumClients)
}

func TestLobby_FailedReloginKeepsAdmin(t *testing.T) {
	l := newTestLobby(t, engine.NewDefaultState(), store.NewMemory())
	admin := joinAs(t, l, "admin", adminLogin)

	l.Inbox() <- Login{ClientID: "admin", Req: auth.Request{Type: "admin", Password: "typo"}}
	expect(t, admin, types.EvtAuthFail)

	l.Inbox() <- FromClient{ClientID: "admin", Cmd: engine.Command{Type: engine.CmdPlaceBid, Category: "Bat", Name: "Virat", Price: 5}}
	expect(t, admin, types.EvtPlayerBid)

	// downgrading to listener gives up the token
	l.Inbox() <- Login{ClientID: "admin", Req: auth.Request{}}
	expect(t, admin, types.EvtAuthSuccess)
	l.Inbox() <- FromClient{ClientID: "admin", Cmd: engine.Command{Type: engine.CmdPlaceBid, Category: "Bat", Name: "Virat", Price: 6}}
	recvNone(t, admin)
}

func TestLobby_ShutdownStopsLoop(t *testing.T) {
	l := newTestLobby(t, engine.NewDefaultState(), store.NewMemory())
	join(t, l, "c1")
	l.Inbox() <- Shutdown{}

	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()
	assert.Eventually(t, func() bool { return !l.Send(ctx, GetState{Reply: make(chan View, 1)}) }, time.Second, 10*time.Millisecond)
}
