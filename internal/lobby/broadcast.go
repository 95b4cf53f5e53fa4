package lobby

import (
	"fmt"

	"github.com/DoyleJ11/auction-backend/internal/engine"
	"github.com/DoyleJ11/auction-backend/internal/hub"
	"github.com/DoyleJ11/auction-backend/internal/types"
)

// publish turns one engine event into what every client sees. Deltas go out
// for bids, sales and player lists; everything else resends the ledger.
func (l *Lobby) publish(evt engine.Event) {
	switch evt.Type {
	case engine.EvtBidPlaced:
		l.broadcast(types.EvtPlayerBid, types.BidPayload{
			Category: types.ID(evt.Key.Category),
			Name:     evt.Key.Name,
			Price:    evt.Price,
		})

	case engine.EvtPlayerSold:
		payload := types.SoldPayload{
			Category: types.ID(evt.Key.Category),
			Name:     evt.Key.Name,
			Price:    evt.Price,
			TeamID:   types.ID(evt.TeamID),
		}
		l.hub.Send(hub.Broadcast{
			Full:   types.Outbound{Event: types.EvtPlayerSold, Data: types.Sold{Payload: payload, Teams: l.state.Teams}},
			Public: types.Outbound{Event: types.EvtPlayerSold, Data: types.Sold{Payload: payload, Teams: l.state.Public().Teams}},
		})

	case engine.EvtPlayerReset:
		l.broadcastState()
		l.toast("success", fmt.Sprintf("Player %s reset.", evt.Key.Name))

	case engine.EvtCategoryReset:
		l.broadcastState()
		l.toast("success", fmt.Sprintf("Category %s reset.", evt.Category))

	case engine.EvtTeamReset:
		l.broadcastState()
		l.toast("success", fmt.Sprintf("Team %s reset.", evt.TeamName))

	case engine.EvtLedgerReset:
		l.broadcastState()
		l.toast("error", "System FULL RESET.")

	case engine.EvtConfigUpdated, engine.EvtCategoryDeleted:
		l.broadcastState()

	case engine.EvtSnapshotSaved:
		l.broadcast(types.EvtPlayersLoad, types.PlayersPayload{
			Category: types.ID(evt.Category),
			Players:  evt.Players,
		})

	case engine.EvtSnapshotCleared:
		l.broadcast(types.EvtPlayersClear, types.PlayersPayload{Category: types.ID(evt.Category)})
	}
}

// Ledger values are replaced, never mutated, so l.state can be handed out
// as is.
func (l *Lobby) broadcastState() {
	l.hub.Send(hub.Broadcast{
		Full:   types.Outbound{Event: types.EvtStateUpdated, Data: l.state},
		Public: types.Outbound{Event: types.EvtStateUpdated, Data: l.state.Public()},
	})
}

func (l *Lobby) toast(kind, text string) {
	l.broadcast(types.EvtAdminToast, types.Toast{Type: kind, Msg: text})
}

func (l *Lobby) broadcast(event string, data any) {
	l.hub.Send(hub.Broadcast{Full: types.Outbound{Event: event, Data: data}})
}

func (l *Lobby) sendTo(clientID, event string, data any) {
	l.hub.Send(hub.SendTo{ClientID: clientID, Msg: types.Outbound{Event: event, Data: data}})
}
