package table

import (
	"github.com/bystac/pokernetwork/pkg/packet"
)

// RebuyResult is the three-way outcome of an immediate rebuy.
type RebuyResult int

const (
	// RebuyRefused means a precondition failed; nothing changed.
	RebuyRefused RebuyResult = iota
	// RebuyOK means the chips are on the table.
	RebuyOK
	// RebuyBroke means the bankroll could not fund any part of the rebuy;
	// the caller must force the player to leave.
	RebuyBroke
)

// setMoney installs an absolute stack for a seated player and tells
// everyone.
func (t *Table) setMoney(serial int64, amount int64) {
	player := t.game.GetPlayer(serial)
	if player == nil {
		return
	}
	player.Money = amount
	player.BuyInPaid = true
	t.broadcast(packet.PlayerChips{GameID: t.cfg.ID, Serial: serial, Bet: 0, Money: amount})
}

// BuyIn brings money to the table for a seated player who has not paid the
// buy-in yet. The request is clamped up to the table minimum; the
// acknowledgement carries the amount actually debited.
func (t *Table) BuyIn(avatar *Avatar, amount int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	serial := avatar.Serial()
	if !t.isSeatedAvatar(avatar) {
		t.log.Warnf("player %d can't bring money to a table before getting a seat", serial)
		return false
	}
	for _, playing := range t.game.SerialsPlaying() {
		if playing == serial {
			t.log.Warnf("player %d can't bring money while participating in a hand", serial)
			return false
		}
	}
	if t.cfg.Transient {
		t.log.Warnf("player %d can't bring money to a transient table", serial)
		return false
	}
	if player := t.game.GetPlayer(serial); player != nil && player.BuyInPaid {
		t.log.Warnf("player %d already paid the buy-in", serial)
		return false
	}

	if amount < t.game.BuyIn() {
		amount = t.game.BuyIn()
	}
	amount = t.factory.BuyInPlayer(serial, t.cfg.ID, t.cfg.CurrencySerial, amount)
	avatar.Send(packet.BuyIn{GameID: t.cfg.ID, Serial: serial, Amount: amount})
	t.setMoney(serial, amount)
	t.update()
	return true
}

// RebuyRequest adds chips to a seated stack: immediately when the engine
// allows it, otherwise queued until the next end of hand.
func (t *Table) RebuyRequest(serial int64, amount int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.game.IsRebuyPossible() {
		t.rebuyPlayerRequestNow(serial, amount)
	} else {
		t.rebuyStack = append(t.rebuyStack, pendingRebuy{serial: serial, amount: amount})
	}
	t.update()
}

// rebuyPlayerRequestNow applies an immediate rebuy and interprets the
// result: a refusal is surfaced to the player's sessions, a broke player
// is forced to leave, success re-sits the player.
func (t *Table) rebuyPlayerRequestNow(serial int64, amount int64) RebuyResult {
	result := t.rebuyNow(serial, amount)
	switch result {
	case RebuyRefused:
		for _, avatar := range t.avatars.Get(serial) {
			avatar.Send(packet.Error{
				GameID:    t.cfg.ID,
				Serial:    serial,
				OtherType: packet.TypeRebuy,
				Code:      packet.CodeRefused,
			})
		}
	case RebuyBroke:
		for _, avatar := range append([]*Avatar(nil), t.avatars.Get(serial)...) {
			t.leavePlayer(avatar)
		}
	case RebuyOK:
		t.game.ComeBack(serial)
		t.game.Sit(serial)
	}
	return result
}

func (t *Table) rebuyNow(serial int64, amount int64) RebuyResult {
	player := t.game.GetPlayer(serial)
	if player == nil {
		t.log.Warnf("player %d can't rebuy to a table before getting a seat", serial)
		return RebuyRefused
	}
	if !player.BuyInPaid {
		t.log.Warnf("player %d can't rebuy before paying the buy in", serial)
		return RebuyRefused
	}
	if t.cfg.Tourney != nil {
		t.log.Errorf("player %d cannot rebuy directly during a tourney", serial)
		return RebuyRefused
	}

	// After a rebuy the stack has to land between buyIn and maxBuyIn.
	money := t.game.GetPlayerMoney(serial)
	maximum := t.game.MaxBuyIn() - money
	minimum := t.game.BuyIn() - money
	if amount < minimum {
		amount = minimum
	}
	if amount > maximum {
		amount = maximum
	}
	if maximum <= 0 {
		t.log.Infof("player %d can't bring more money to the table", serial)
		return RebuyRefused
	}

	amount = t.factory.BuyInPlayer(serial, t.cfg.ID, t.cfg.CurrencySerial, amount)
	if amount == 0 {
		t.log.Infof("player %d is broke and cannot rebuy", serial)
		return RebuyBroke
	}

	if !t.game.Rebuy(serial, amount) {
		t.log.Warnf("player %d rebuy denied", serial)
		return RebuyRefused
	}
	return RebuyOK
}

// rebuyPlayersOnce drains deferred and automatic rebuys exactly once per
// hand serial, before deciding whether the next hand can be dealt.
func (t *Table) rebuyPlayersOnce() bool {
	if t.lastRebuyHandSerial == t.game.HandSerial() {
		return false
	}
	if !t.game.IsEndOrMuck() {
		return false
	}
	t.lastRebuyHandSerial = t.game.HandSerial()

	if !t.cfg.Transient {
		t.rebuyAllPlayers()
	} else if t.cfg.Tourney != nil {
		t.factory.TourneyRebuyAllPlayers(t.cfg.Tourney, t.cfg.ID)
	}
	return true
}

func (t *Table) rebuyAllPlayers() {
	t.log.Debugf("rebuy all players now")
	stack := t.rebuyStack
	t.rebuyStack = nil
	for _, pending := range stack {
		t.rebuyPlayerRequestNow(pending.serial, pending.amount)
	}
	for _, player := range t.game.PlayersAll() {
		t.log.Debugf("player %d, auto_refill %d, auto_rebuy %d", player.Serial, player.AutoRefill, player.AutoRebuy)
		if t.game.IsBroke(player.Serial) && player.AutoRebuy != AutoBuyOff {
			t.rebuyPlayerRequestNow(player.Serial, t.preferredRebuyAmount(player.AutoRebuy))
		}
		if player.AutoRefill != AutoBuyOff {
			t.rebuyPlayerRequestNow(player.Serial, t.preferredRebuyAmount(player.AutoRefill))
		}
	}
}

func (t *Table) preferredRebuyAmount(mode AutoBuyMode) int64 {
	switch mode {
	case AutoBuyBest:
		return t.game.BestBuyIn()
	case AutoBuyMax:
		return t.game.MaxBuyIn()
	case AutoBuyMin:
		return t.game.BuyIn()
	default:
		return 0
	}
}

// SetAutoRefill selects the player's refill policy.
func (t *Table) SetAutoRefill(serial int64, mode AutoBuyMode) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	player := t.game.GetPlayer(serial)
	if player == nil {
		t.log.Warnf("player %d can't set auto refill before getting a seat", serial)
		return false
	}
	if mode < AutoBuyOff || mode > AutoBuyBest {
		return false
	}
	player.AutoRefill = mode
	return true
}

// SetAutoRebuy selects the player's rebuy-when-broke policy.
func (t *Table) SetAutoRebuy(serial int64, mode AutoBuyMode) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	player := t.game.GetPlayer(serial)
	if player == nil {
		t.log.Warnf("player %d can't set auto rebuy before getting a seat", serial)
		return false
	}
	if mode < AutoBuyOff || mode > AutoBuyBest {
		return false
	}
	player.AutoRebuy = mode
	return true
}

// SerialChips is one (player, chips) entry of a forced money reset.
type SerialChips struct {
	Serial int64
	Chips  int64
}

// UpdatePlayersMoney is a destructive admin operation: a running hand is
// force-ended by folding the player in position until the engine goes
// idle, then every listed player's money is written, absolute or
// relative. Broke players not covered by the list make the call refuse
// before anything changes. Failures past that point are per-player; the
// return value reports whether all entries applied.
func (t *Table) UpdatePlayersMoney(serialsChips []SerialChips, absolute bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	listed := make(map[int64]struct{}, len(serialsChips))
	for _, sc := range serialsChips {
		listed[sc.Serial] = struct{}{}
	}

	broke := make(map[int64]*Player)
	if !t.game.IsEndOrNull() {
		for _, player := range t.game.PlayersAll() {
			if player.Money == 0 {
				broke[player.Serial] = player
			}
		}
		for serial := range broke {
			if _, ok := listed[serial]; !ok {
				t.log.Errorf("updatePlayersMoney: there are broke players that have no specified money amount")
				return false
			}
		}
		// A broke player would be eliminated by the fold loop; one chip
		// keeps the seat until the absolute amount lands below.
		for _, player := range broke {
			player.Money = 1
		}

		loopBound := len(t.game.SerialsAll())
		for counter := 0; !t.game.IsEndOrNull(); counter++ {
			if counter >= loopBound {
				t.log.Errorf("updatePlayersMoney: fold loop did not end the game")
				return false
			}
			t.game.Fold(t.game.SerialInPosition())
		}
		// flush the forced end so history does not mess with things later
		t.update()
	}

	ok := true
	for _, sc := range serialsChips {
		player := t.game.GetPlayer(sc.Serial)
		if player == nil {
			ok = false
			t.log.Errorf("updatePlayersMoney: player %d does not exist", sc.Serial)
			continue
		}
		_, wasBroke := broke[sc.Serial]
		var newChips int64
		if absolute || wasBroke {
			if sc.Chips < 0 {
				ok = false
				t.log.Errorf("updatePlayersMoney: player %d cannot get a negative amount of chips (%d)", sc.Serial, sc.Chips)
				if wasBroke {
					player.Money = 0
				}
				continue
			}
			newChips = sc.Chips
		} else {
			newChips = player.Money + sc.Chips
			if newChips < 0 {
				ok = false
				t.log.Errorf("updatePlayersMoney: player %d cannot get a negative amount of new_chips (%d), old_chips (%d), relative (%d)",
					sc.Serial, newChips, player.Money, sc.Chips)
				if wasBroke {
					player.Money = 0
				}
				continue
			}
		}
		player.Money = newChips
		if err := t.factory.SetPlayerMoney(sc.Serial, t.cfg.ID, newChips); err != nil {
			ok = false
			t.log.Errorf("updatePlayersMoney: database write for %d failed: %v", sc.Serial, err)
		}
	}
	return ok
}
