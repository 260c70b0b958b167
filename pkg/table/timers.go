package table

import (
	"time"

	"github.com/bystac/pokernetwork/pkg/packet"
)

// timerSet owns the table's three timer slots. Setting a slot always
// cancels the previous timer in that slot; cancel tolerates an unarmed or
// already-fired timer. The set is only touched while holding the table
// lock; callbacks re-acquire it.
type timerSet struct {
	deal   *time.Timer
	player *time.Timer
	muck   *time.Timer

	// playerSerial is the serial the player-turn slot is armed for;
	// playerDeadline is the absolute deadline advertised to the player, used
	// to synthesize warnings for late joiners; the forced action lands
	// timeoutDelayCompensation after it.
	playerSerial   int64
	playerDeadline time.Time
}

func (ts *timerSet) setDeal(d time.Duration, fn func()) {
	ts.cancelDeal()
	ts.deal = time.AfterFunc(d, fn)
}

func (ts *timerSet) cancelDeal() {
	if ts.deal != nil {
		ts.deal.Stop()
		ts.deal = nil
	}
}

func (ts *timerSet) dealArmed() bool { return ts.deal != nil }

func (ts *timerSet) setPlayer(d time.Duration, serial int64, deadline time.Time, fn func()) {
	ts.cancelPlayer()
	ts.playerSerial = serial
	ts.playerDeadline = deadline
	ts.player = time.AfterFunc(d, fn)
}

func (ts *timerSet) cancelPlayer() {
	if ts.player != nil {
		ts.player.Stop()
		ts.player = nil
	}
	ts.playerSerial = 0
	ts.playerDeadline = time.Time{}
}

func (ts *timerSet) setMuck(d time.Duration, fn func()) {
	ts.cancelMuck()
	ts.muck = time.AfterFunc(d, fn)
}

func (ts *timerSet) cancelMuck() {
	if ts.muck != nil {
		ts.muck.Stop()
		ts.muck = nil
	}
}

func (ts *timerSet) cancelAll() {
	ts.cancelDeal()
	ts.cancelPlayer()
	ts.cancelMuck()
}

// updateTimers refreshes the muck and player-turn slots against the
// history tail. Lock held.
func (t *Table) updateTimers(history []Event) {
	t.updateMuckTimer(history)
	t.updatePlayerTimers(history)
}

func (t *Table) updateMuckTimer(history []Event) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Tag() == TagMuck {
			t.timers.setMuck(t.cfg.MuckTimeout, t.muckTimeoutFired)
			return
		}
	}
	// every muckable responded before the timer fired
	if t.game.State() != GameStateMuck {
		t.timers.cancelMuck()
	}
}

// updatePlayerTimers re-arms the two-phase player-turn timer whenever the
// player in position changed or any event landed in the history.
func (t *Table) updatePlayerTimers(history []Event) {
	if !t.game.IsRunning() {
		t.timers.cancelPlayer()
		return
	}
	serial := t.game.SerialInPosition()
	if t.timers.playerSerial == serial && len(history) == 0 {
		return
	}
	deadline := t.now().Add(t.cfg.PlayerTimeout)
	t.timers.setPlayer(t.cfg.PlayerTimeout/2, serial, deadline, func() {
		t.playerWarningFired(serial)
	})
}

// playerWarningFired is phase one of the player-turn timer: broadcast the
// warning and arm the forced action. The advertised timeout understates the
// real deadline by timeoutDelayCompensation to absorb network lag.
func (t *Table) playerWarningFired(serial int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.IsValid() {
		return
	}
	if !t.game.IsRunning() || serial != t.game.SerialInPosition() {
		t.updatePlayerTimers(nil)
		return
	}
	half := t.cfg.PlayerTimeout / 2
	t.broadcast(packet.TimeoutWarning{
		GameID:  t.cfg.ID,
		Serial:  serial,
		Timeout: int(half / time.Second),
	})
	if player := t.game.GetPlayer(serial); player != nil {
		player.UserData().TimeoutWarnedAt = t.now()
	}
	deadline := t.timers.playerDeadline
	t.timers.setPlayer(half+timeoutDelayCompensation, serial, deadline, func() {
		t.playerTimeoutFired(serial)
	})
}

// playerTimeoutFired is phase two: force the action on the player still in
// position.
func (t *Table) playerTimeoutFired(serial int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.IsValid() {
		return
	}
	t.log.Debugf("player %d times out", serial)
	if !t.game.IsRunning() || serial != t.game.SerialInPosition() {
		t.updatePlayerTimers(nil)
		return
	}
	if t.game.IsOpen() {
		t.game.SitOutNextTurn(serial)
		t.game.AutoPlayer(serial)
	} else {
		t.game.AutoPlayer(serial)
		t.broadcast(packet.AutoFold{GameID: t.cfg.ID, Serial: serial})
	}
	t.broadcast(packet.TimeoutNotice{GameID: t.cfg.ID, Serial: serial})
	t.update()
}

// muckTimeoutFired force-mucks every pending muckable.
func (t *Table) muckTimeoutFired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.IsValid() {
		return
	}
	t.log.Debugf("muck timed out")
	for _, serial := range t.game.MuckableSerials() {
		t.game.Muck(serial, true)
	}
	t.timers.cancelMuck()
	t.update()
}

// GetCurrentTimeoutWarning synthesizes the in-flight warning for a session
// joining mid-turn; nil when no player-turn timer is armed.
func (t *Table) GetCurrentTimeoutWarning() *packet.TimeoutWarning {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.game.IsRunning() || t.timers.player == nil || t.timers.playerSerial == 0 ||
		t.timers.playerDeadline.IsZero() {
		return nil
	}
	return &packet.TimeoutWarning{
		GameID:  t.cfg.ID,
		Serial:  t.timers.playerSerial,
		Timeout: int(t.timers.playerDeadline.Sub(t.now()) / time.Second),
	}
}
