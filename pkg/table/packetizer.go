package table

import (
	"fmt"

	"github.com/bystac/pokernetwork/pkg/packet"
)

// packetizerCache suppresses repeated board/pocket emissions across
// round and showdown events within one hand.
type packetizerCache struct {
	pockets Pockets
	board   []string
}

func newPacketizerCache() *packetizerCache {
	return &packetizerCache{}
}

func sameBoard(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func samePockets(a, b Pockets) bool {
	if len(a) != len(b) {
		return false
	}
	for serial, cards := range a {
		if !sameBoard(cards, b[serial]) {
			return false
		}
	}
	return true
}

// boardPackets turns a board/pockets pair into packets, consulting and
// updating the cache so unchanged cards are not re-sent.
func (c *packetizerCache) boardPackets(gameID int64, board []string, pockets Pockets) []packet.Packet {
	var out []packet.Packet
	if pockets != nil && !samePockets(pockets, c.pockets) {
		c.pockets = pockets.Copy()
		for serial, cards := range pockets {
			out = append(out, packet.PlayerCards{GameID: gameID, Serial: serial, Cards: cards})
		}
	}
	if board != nil && !sameBoard(board, c.board) {
		c.board = append([]string(nil), board...)
		out = append(out, packet.BoardCards{GameID: gameID, Cards: board})
	}
	return out
}

// historyToPackets translates the engine history tail into the outbound
// packet batch. It returns the new previous-dealer seat and any non-fatal
// translation errors (unknown tags).
func historyToPackets(history []Event, gameID int64, previousDealer int, cache *packetizerCache) ([]packet.Packet, int, []error) {
	var packets []packet.Packet
	var errs []error

	for _, event := range history {
		switch ev := event.(type) {
		case GameEvent:
			packets = append(packets, packet.Start{
				GameID:     gameID,
				HandSerial: ev.HandSerial,
				Time:       ev.Time,
				HandsCount: ev.HandsCount,
				Level:      ev.Level,
			})
			packets = append(packets, packet.PlayerList{GameID: gameID, Serials: ev.PlayerList})
			if ev.Dealer != previousDealer {
				packets = append(packets, packet.DealerChange{
					GameID:         gameID,
					Dealer:         ev.Dealer,
					PreviousDealer: previousDealer,
				})
				previousDealer = ev.Dealer
			}
			for _, serial := range ev.PlayerList {
				packets = append(packets, packet.PlayerChips{
					GameID: gameID,
					Serial: serial,
					Money:  ev.Serial2Chips[serial],
				})
			}

		case WaitForEvent:
			packets = append(packets, packet.WaitFor{GameID: gameID, Serial: ev.Serial, Reason: ev.Reason})

		case RebuyEvent:
			packets = append(packets, packet.Rebuy{GameID: gameID, Serial: ev.Serial, Amount: ev.Amount})

		case BuyOutEvent:
			// settled through the database path, nothing for clients

		case PlayerListEvent:
			packets = append(packets, packet.PlayerList{GameID: gameID, Serials: ev.Serials})

		case RoundEvent:
			packets = append(packets, packet.State{GameID: gameID, Name: ev.Name})
			packets = append(packets, cache.boardPackets(gameID, ev.Board, ev.Pockets)...)

		case ShowdownEvent:
			packets = append(packets, cache.boardPackets(gameID, ev.Board, ev.Pockets)...)
			packets = append(packets, packet.Showdown{GameID: gameID, Board: ev.Board})

		case RakeEvent:
			packets = append(packets, packet.Rake{GameID: gameID, Amount: ev.Amount})

		case MuckEvent:
			packets = append(packets, packet.MuckRequest{GameID: gameID, Serials: ev.Serials})

		case PositionEvent:
			packets = append(packets, packet.Position{GameID: gameID, Serial: ev.Serial, Position: ev.Position})

		case BlindRequestEvent, WaitBlindEvent, AnteRequestEvent, AllInEvent:
			// transient prompts handled by the engine's auto blind/ante

		case BlindEvent:
			packets = append(packets, packet.Blind{GameID: gameID, Serial: ev.Serial, Amount: ev.Amount, Dead: ev.Dead})

		case AnteEvent:
			packets = append(packets, packet.Ante{GameID: gameID, Serial: ev.Serial, Amount: ev.Amount})

		case CallEvent:
			packets = append(packets, packet.Call{GameID: gameID, Serial: ev.Serial, Amount: ev.Amount})

		case CheckEvent:
			packets = append(packets, packet.Check{GameID: gameID, Serial: ev.Serial})

		case FoldEvent:
			packets = append(packets, packet.Fold{GameID: gameID, Serial: ev.Serial})

		case RaiseEvent:
			packets = append(packets, packet.Raise{GameID: gameID, Serial: ev.Serial, Amount: ev.Amount})

		case CanceledEvent:
			packets = append(packets, packet.Canceled{GameID: gameID, Serial: ev.Serial, Amount: ev.Amount})

		case SitOutEvent:
			packets = append(packets, packet.SitOut{GameID: gameID, Serial: ev.Serial})

		case SitEvent:
			packets = append(packets, packet.Sit{GameID: gameID, Serial: ev.Serial})

		case LeaveEvent:
			for _, quitter := range ev.Quitters {
				packets = append(packets, packet.PlayerLeave{GameID: gameID, Serial: quitter.Serial, Seat: quitter.Seat})
			}

		case EndEvent:
			win := packet.Win{GameID: gameID, Serials: ev.Winners}
			if len(ev.ShowdownStack) > 0 {
				win.Shares = ev.ShowdownStack[0].Serial2Share
			}
			packets = append(packets, win)

		case FinishEvent:
			// persistence only, nothing for clients

		default:
			errs = append(errs, fmt.Errorf("history2packets: unknown history type %s", event.Tag()))
		}
	}

	return packets, previousDealer, errs
}
