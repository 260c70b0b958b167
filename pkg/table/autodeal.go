package table

import (
	"fmt"
	"time"
)

// serialsWillingToPlay is the deal gate population: sitting players,
// pending rebuys, and broke players whose auto top-up will fund them
// before the deal.
func (t *Table) serialsWillingToPlay() map[int64]struct{} {
	serials := make(map[int64]struct{})
	for _, pending := range t.rebuyStack {
		serials[pending.serial] = struct{}{}
	}
	for _, player := range t.game.PlayersAll() {
		if (player.AutoRefill != AutoBuyOff || player.AutoRebuy != AutoBuyOff) && player.Money <= 0 {
			serials[player.Serial] = struct{}{}
		}
	}
	for _, serial := range t.game.SerialsSit() {
		serials[serial] = struct{}{}
	}
	return serials
}

func (t *Table) tourneySerialsWillingToPlay() map[int64]struct{} {
	if t.cfg.Tourney == nil {
		return nil
	}
	return t.factory.TourneySerialsRebuying(t.cfg.Tourney, t.cfg.ID)
}

// shouldAutoDeal decides whether the next hand may begin at all.
func (t *Table) shouldAutoDeal() bool {
	if t.factory.ShuttingDown() {
		t.log.Debugf("not autodealing because server is shutting down")
		return false
	}
	if !t.cfg.Autodeal {
		t.log.Debugf("no autodeal")
		return false
	}
	if t.game.IsRunning() {
		t.log.Debugf("not autodealing %d because game is running", t.cfg.ID)
		return false
	}
	if t.game.State() == GameStateMuck {
		t.log.Debugf("not autodealing %d because game is in muck state", t.cfg.ID)
		return false
	}

	willing := t.serialsWillingToPlay()
	for serial := range t.tourneySerialsWillingToPlay() {
		willing[serial] = struct{}{}
	}
	if len(willing) < 2 {
		t.log.Debugf("not autodealing %d because less than 2 players willing to play", t.cfg.ID)
		return false
	}

	if t.game.IsTournament() {
		if t.cfg.Tourney != nil && t.cfg.Tourney.State != TourneyStateRunning {
			t.log.Debugf("not autodealing %d because in tournament state %s", t.cfg.ID, t.cfg.Tourney.State)
			return false
		}
	} else if !t.cfg.AutodealTemporary {
		// Do not auto deal a table populated only by temporary users
		// (i.e. bots).
		onlyTemporary := true
		for _, serial := range t.game.SerialsSit() {
			if !t.factory.IsTemporaryUser(serial) {
				onlyTemporary = false
				break
			}
		}
		if onlyTemporary {
			t.log.Debugf("not autodealing because players are categorized as temporary")
			return false
		}
	}
	return true
}

// scheduleAutoDeal computes the delay to the next deal and arms the deal
// timer for it.
func (t *Table) scheduleAutoDeal() bool {
	t.timers.cancelDeal()

	if !t.shouldAutoDeal() {
		return false
	}

	var delta time.Duration
	if delay := t.delayAccum; !t.allReadyToPlay() && delay > 0 {
		delta = t.delayStart.Add(delay).Sub(t.now())
		if delta > t.cfg.Delays.AutodealMax {
			delta = t.cfg.Delays.AutodealMax
		}
		if delta < 0 {
			delta = 0
		}
		t.delayAccum = t.now().Sub(t.delayStart) + delta
	} else if t.cfg.Transient {
		delta = t.cfg.Delays.AutodealTournamentMin
		if t.now().Sub(t.delayStart) > delta {
			delta = 0
		}
	}

	t.log.Debugf("autodealCheck scheduled in %v", delta)
	check := t.cfg.Delays.AutodealCheck
	if check < 10*time.Millisecond {
		check = 10 * time.Millisecond
	}
	arm := check
	if delta < arm {
		arm = delta
	}
	t.timers.setDeal(arm, func() { t.autoDealCheckFired(check, delta) })
	return true
}

// autoDealCheckFired counts the deal delay down in check-sized steps. While
// at least one full step remains it tells ready players the hand is close
// and re-arms; once less than one step remains it arms the deal itself
// without a message.
func (t *Table) autoDealCheckFired(check, delta time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.IsValid() {
		return
	}
	t.timers.cancelDeal()
	if check > delta {
		t.log.Debugf("autodeal for %d scheduled in %v", t.cfg.ID, delta)
		t.timers.setDeal(delta, t.autoDealFired)
		return
	}

	var serials []int64
	for _, player := range t.game.PlayersAll() {
		if player.UserData().Ready {
			serials = append(serials, player.Serial)
		}
	}
	if len(serials) > 0 {
		t.broadcastMessage(fmt.Sprintf(
			"Waiting for players.\nNext hand will be dealt shortly.\n(maximum %d seconds)",
			int(delta/time.Second)), serials)
	}
	t.log.Debugf("autodealCheck(2) for %d scheduled in %v", t.cfg.ID, delta)
	t.timers.setDeal(check, func() { t.autoDealCheckFired(check, delta-check) })
}

func (t *Table) autoDealFired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.IsValid() {
		return
	}
	t.autoDeal()
}

// autoDeal drains pending rebuys, flags the clients that never became
// ready, and deals if the gate still holds.
func (t *Table) autoDeal() {
	t.timers.cancelDeal()
	t.rebuyPlayersOnce()
	if !t.allReadyToPlay() {
		// Sessions that fail to answer the processing-hand exchange within
		// the imposed delays are flagged; their later processing-hand
		// requests are ignored.
		for _, player := range t.game.PlayersAll() {
			if !player.UserData().Ready {
				for _, avatar := range t.avatars.Get(player.Serial) {
					avatar.IgnoreProcessing = true
					t.log.Infof("player %d missed timeframe for ready to play", player.Serial)
				}
			}
		}
	}
	if t.shouldAutoDeal() {
		t.beginTurn()
		t.update()
	}
}

func (t *Table) allReadyToPlay() bool {
	var notReady []int64
	for _, player := range t.game.PlayersAll() {
		if !player.UserData().Ready {
			notReady = append(notReady, player.Serial)
		}
	}
	if len(notReady) > 0 {
		t.log.Debugf("allReadyToPlay: waiting for %v", notReady)
		return false
	}
	return true
}
