package table

// syncDatabase mirrors the money movement of the history tail into the
// database: per-player deltas aggregated across the tail, rake through its
// own path, and on finish the compressed hand record plus stats and a
// monitor event. Lock held; must run in the same update cycle that
// observed the tail.
func (t *Table) syncDatabase(history []Event) {
	updates := make(map[int64]int64)
	var serial2rake map[int64]int64

	for _, event := range history {
		switch ev := event.(type) {
		case GameEvent, WaitForEvent, RebuyEvent, BuyOutEvent, PlayerListEvent,
			RoundEvent, ShowdownEvent, MuckEvent, PositionEvent,
			BlindRequestEvent, WaitBlindEvent, AnteRequestEvent, AllInEvent,
			CheckEvent, FoldEvent, SitOutEvent, SitEvent, LeaveEvent:
			// no money moved

		case RakeEvent:
			serial2rake = ev.Serial2Rake

		case BlindEvent:
			updates[ev.Serial] -= ev.Amount + ev.Dead

		case AnteEvent:
			updates[ev.Serial] -= ev.Amount

		case CallEvent:
			updates[ev.Serial] -= ev.Amount

		case RaiseEvent:
			updates[ev.Serial] -= ev.Amount

		case CanceledEvent:
			if ev.Serial > 0 && ev.Amount > 0 {
				updates[ev.Serial] += ev.Amount
			}

		case EndEvent:
			if len(ev.ShowdownStack) > 0 {
				for serial, share := range ev.ShowdownStack[0].Serial2Share {
					updates[serial] += share
				}
			}

		case FinishEvent:
			if err := t.factory.SaveHand(ev.HandSerial, t.compressedHistory(t.game.History())); err != nil {
				t.log.Errorf("syncDatabase: saveHand %d failed: %v", ev.HandSerial, err)
			}
			t.factory.UpdateTableStats(t.cfg.ID, len(t.observers), len(t.waiting))
			var transient int64
			if t.cfg.Transient {
				transient = 1
			}
			t.factory.DatabaseEvent(MonitorEventHand, ev.HandSerial, transient, t.cfg.ID)

		default:
			t.log.Warnf("syncDatabase: unknown history type %s", event.Tag())
		}
	}

	for serial, amount := range updates {
		if err := t.factory.UpdatePlayerMoney(serial, t.cfg.ID, amount); err != nil {
			t.log.Errorf("syncDatabase: money update for %d failed: %v", serial, err)
		}
	}
	for serial, rake := range serial2rake {
		if err := t.factory.UpdatePlayerRake(t.cfg.CurrencySerial, serial, rake); err != nil {
			t.log.Errorf("syncDatabase: rake update for %d failed: %v", serial, err)
		}
	}
}

// compressedHistory is the durable form of a hand history: purely transient
// events are dropped and repeated board/pocket emissions are nulled out.
func (t *Table) compressedHistory(history []Event) []Event {
	var out []Event
	var cachedPockets Pockets
	var cachedBoard []string

	for _, event := range history {
		switch ev := event.(type) {
		case AllInEvent, WaitForEvent, BlindRequestEvent, MuckEvent,
			FinishEvent, LeaveEvent, RebuyEvent, BuyOutEvent:
			// transient, not stored

		case GameEvent:
			out = append(out, ev)

		case RoundEvent:
			board, pockets := ev.Board, ev.Pockets
			if samePockets(pockets, cachedPockets) {
				pockets = nil
			} else {
				cachedPockets = pockets
			}
			if sameBoard(board, cachedBoard) {
				board = nil
			} else {
				cachedBoard = board
			}
			out = append(out, RoundEvent{Name: ev.Name, Board: board, Pockets: pockets})

		case ShowdownEvent:
			board, pockets := ev.Board, ev.Pockets
			if samePockets(pockets, cachedPockets) {
				pockets = nil
			} else {
				cachedPockets = pockets
			}
			if sameBoard(board, cachedBoard) {
				board = nil
			} else {
				cachedBoard = board
			}
			out = append(out, ShowdownEvent{Board: board, Pockets: pockets})

		case CallEvent, CheckEvent, FoldEvent, RaiseEvent, CanceledEvent,
			PositionEvent, BlindEvent, AnteEvent, PlayerListEvent,
			RakeEvent, EndEvent, SitEvent, SitOutEvent:
			out = append(out, event)

		default:
			t.log.Warnf("compressedHistory: unknown history type %s", event.Tag())
		}
	}
	return out
}

// delayedActions accumulates inter-hand pacing from the tail and settles
// quitting seats: each quitter is left through the factory and any live
// session is demoted to observer.
func (t *Table) delayedActions(history []Event) {
	for _, event := range history {
		switch ev := event.(type) {
		case GameEvent:
			t.delayStart = t.now()
			t.delayAccum = t.cfg.Delays.Autodeal

		case RoundEvent:
			t.delayAccum += t.cfg.Delays.Round

		case PositionEvent:
			t.delayAccum += t.cfg.Delays.Position

		case ShowdownEvent:
			t.delayAccum += t.cfg.Delays.Showdown

		case FinishEvent:
			t.delayAccum += t.cfg.Delays.Finish

		case LeaveEvent:
			for _, quitter := range ev.Quitters {
				t.factory.LeavePlayer(quitter.Serial, t.cfg.ID, t.cfg.CurrencySerial)
				for _, avatar := range append([]*Avatar(nil), t.avatars.Get(quitter.Serial)...) {
					t.seatedToObserver(avatar)
				}
			}
		}
	}
}
