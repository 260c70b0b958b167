package table

import (
	"github.com/bystac/pokernetwork/pkg/packet"
)

// isJoined reports whether the session is connected to this table, as
// observer or seated.
func (t *Table) isJoined(avatar *Avatar) bool {
	for _, observer := range t.observers {
		if observer == avatar {
			return true
		}
	}
	for _, existing := range t.avatars.Get(avatar.Serial()) {
		if existing == avatar {
			return true
		}
	}
	return false
}

// IsJoined reports whether the session is connected to this table.
func (t *Table) IsJoined(avatar *Avatar) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isJoined(avatar)
}

func (t *Table) isSeatedAvatar(avatar *Avatar) bool {
	return t.isJoined(avatar) && t.game.IsSeated(avatar.Serial())
}

func (t *Table) isSitAvatar(avatar *Avatar) bool {
	return t.isSeatedAvatar(avatar) && t.game.IsSit(avatar.Serial())
}

// IsSerialObserver reports whether any session of the serial observes the
// table.
func (t *Table) IsSerialObserver(serial int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, observer := range t.observers {
		if observer.Serial() == serial {
			return true
		}
	}
	return false
}

// seatedToObserver demotes a session from the seated index to the
// observer list.
func (t *Table) seatedToObserver(avatar *Avatar) {
	t.avatars.Remove(avatar)
	t.observers = append(t.observers, avatar)
}

// observerToSeated promotes a session from the observer list to the
// seated index.
func (t *Table) observerToSeated(avatar *Avatar) {
	for i, observer := range t.observers {
		if observer == avatar {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			break
		}
	}
	t.avatars.Add(avatar)
}

// destroyPlayer disconnects the session from the table entirely.
func (t *Table) destroyPlayer(avatar *Avatar) {
	t.factory.JoinedCountDecrease()
	removed := false
	for i, observer := range t.observers {
		if observer == avatar {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		t.avatars.Remove(avatar)
	}
	avatar.detachTable(t.cfg.ID)

	if t.canBeDespawned() {
		t.factory.DespawnTable(t.cfg.ID)
	}
}

// JoinPlayer connects a session to the table. A session that already
// joined just gets the resume packets again. New sessions land in the
// observer list unless the engine already knows their seat, in which case
// they come back to it immediately.
func (t *Table) JoinPlayer(avatar *Avatar) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.joinPlayer(avatar)
}

func (t *Table) joinPlayer(avatar *Avatar) bool {
	serial := avatar.Serial()

	// Nothing to be done except resending the resume packets. Useful in
	// disconnected mode to resume a session.
	if t.isJoined(avatar) {
		t.sendJoinPackets(avatar)
		return true
	}

	if !t.game.IsSeated(serial) && t.factory.JoinedCountReachedMax() {
		t.log.Warnf("joinPlayer: %d cannot join game %d because the server is full", serial, t.cfg.ID)
		avatar.Send(packet.Error{
			GameID:    t.cfg.ID,
			Serial:    serial,
			OtherType: packet.TypeTable,
			Code:      packet.CodeFull,
			Message:   "This server has too many seated players and observers.",
		})
		return false
	}

	if avatar.TableCount() >= t.factory.Simultaneous() {
		t.log.Infof("joinPlayer: %d seated at %d tables (max %d)", serial, avatar.TableCount(), t.factory.Simultaneous())
		return false
	}

	t.factory.JoinedCountIncrease()
	if !t.game.IsSeated(serial) {
		t.observers = append(t.observers, avatar)
	} else {
		t.avatars.Add(avatar)
	}
	avatar.attachTable(t.cfg.ID)

	// The player may already be seated at the table, typically after a
	// disconnection from a tournament or an ongoing hand.
	cameBack := false
	if t.isSeatedAvatar(avatar) {
		cameBack = t.game.ComeBack(serial)
	}
	t.sendJoinPackets(avatar)

	if cameBack {
		// Re-sitting does not hurt and lets the other clients notice the
		// arrival.
		t.sitPlayerSerial(serial)
	}
	return true
}

// sendJoinPackets replays the table state to one session: descriptor,
// seats, every seated player, chips, and the in-flight timeout warning.
func (t *Table) sendJoinPackets(avatar *Avatar) {
	viewer := avatar.Serial()
	var tourneySerial int64
	if t.cfg.Tourney != nil {
		tourneySerial = t.cfg.Tourney.Serial
	}
	avatar.Send(packet.Table{
		GameID:           t.cfg.ID,
		Name:             t.cfg.Name,
		Variant:          t.game.Variant(),
		BettingStructure: t.game.BettingStructure(),
		Seats:            t.game.MaxPlayers(),
		Players:          len(t.game.SerialsAll()),
		Observers:        len(t.observers),
		Waiting:          len(t.waiting),
		PlayerTimeout:    int(t.cfg.PlayerTimeout.Seconds()),
		MuckTimeout:      int(t.cfg.MuckTimeout.Seconds()),
		Skin:             t.cfg.Skin,
		CurrencySerial:   t.cfg.CurrencySerial,
		TourneySerial:    tourneySerial,
	})
	avatar.Send(packet.Seats{GameID: t.cfg.ID, Seats: t.game.Seats()})
	for _, player := range t.game.PlayersAll() {
		for _, p := range t.newPlayerInformation(player.Serial) {
			avatar.Send(packet.PrivateToPublic(p, viewer))
		}
		if t.game.IsSit(player.Serial) {
			avatar.Send(packet.Sit{GameID: t.cfg.ID, Serial: player.Serial})
		}
	}
	if t.betLimits != nil {
		avatar.Send(*t.betLimits)
	}
	if t.game.IsRunning() && t.timers.player != nil && t.timers.playerSerial != 0 &&
		!t.timers.playerDeadline.IsZero() {
		avatar.Send(packet.TimeoutWarning{
			GameID:  t.cfg.ID,
			Serial:  t.timers.playerSerial,
			Timeout: int(t.timers.playerDeadline.Sub(t.now()).Seconds()),
		})
	}
}

// SeatPlayer moves a session from the observers to a seat. Seat -1 asks
// for any free seat. The refusal reply is Seat(-1), leaving state
// untouched.
func (t *Table) SeatPlayer(avatar *Avatar, seat int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ok := t.seatPlayer(avatar, seat)
	if !ok {
		avatar.Send(packet.Seat{GameID: t.cfg.ID, Serial: avatar.Serial(), Seat: -1})
	} else {
		t.update()
	}
	return ok
}

func (t *Table) seatPlayer(avatar *Avatar, seat int) bool {
	serial := avatar.Serial()
	if !t.isJoined(avatar) {
		t.log.Errorf("player %d can't seat before joining", serial)
		return false
	}
	if t.isSeatedAvatar(avatar) {
		t.log.Infof("player %d is already seated", serial)
		return false
	}
	if !t.game.CanAddPlayer(serial) {
		t.log.Infof("table refuses to seat player %d", serial)
		return false
	}
	if seat != -1 {
		free := false
		for _, left := range t.game.SeatsLeft() {
			if left == seat {
				free = true
				break
			}
		}
		if !free {
			t.log.Infof("table refuses to seat player %d at seat %d", serial, seat)
			return false
		}
	}

	// Transient tables debit the buy-in at seat time.
	var amount int64
	if t.cfg.Transient {
		amount = t.game.BuyIn()
	}
	if !t.factory.SeatPlayer(serial, t.cfg.ID, amount, t.cfg.CurrencySerial, t.game.BuyIn()) {
		return false
	}

	t.observerToSeated(avatar)
	player := t.game.AddPlayer(serial, seat)
	if player == nil {
		t.log.Errorf("engine refused to add player %d after seatPlayer checks", serial)
		return false
	}
	player.SetUserData(&UserData{})
	player.Name = t.getName(serial)
	if amount > 0 {
		player.Money = amount
		player.BuyInPaid = true
	}
	t.sendNewPlayerInformation(serial)
	t.factory.UpdateTableStats(t.cfg.ID, len(t.observers), len(t.waiting))
	return true
}

// newPlayerInformation builds the arrival packet suite for a seat.
func (t *Table) newPlayerInformation(serial int64) []packet.Packet {
	info := t.getPlayerInfo(serial)
	player := t.game.GetPlayer(serial)
	packets := []packet.Packet{
		packet.PlayerArrive{
			GameID:         t.cfg.ID,
			Serial:         serial,
			Name:           info.Name,
			Seat:           player.Seat,
			SitOut:         player.SitOut,
			SitOutNextTurn: player.SitOutNextTurn,
			Auto:           player.Auto,
			AutoBlindAnte:  player.AutoBlindAnte,
			WaitFor:        player.WaitFor,
			RemoveNextTurn: player.RemoveNextTurn,
			BuyInPaid:      player.BuyInPaid,
		},
	}
	if player.Auto {
		packets = append(packets, packet.AutoFold{GameID: t.cfg.ID, Serial: serial})
	}
	if t.factory.HasLadder() {
		if ladder := t.factory.GetLadder(t.cfg.ID, t.cfg.CurrencySerial, serial); ladder != nil {
			packets = append(packets, ladder)
		}
	}
	packets = append(packets,
		packet.Seats{GameID: t.cfg.ID, Seats: t.game.Seats()},
		packet.PlayerChips{GameID: t.cfg.ID, Serial: serial, Bet: 0, Money: player.Money},
	)
	return packets
}

func (t *Table) sendNewPlayerInformation(serial int64) {
	t.broadcast(t.newPlayerInformation(serial)...)
}

// SitPlayer puts a seated player back into play. Sitting an already-sit
// player is a no-op that still broadcasts SIT.
func (t *Table) SitPlayer(avatar *Avatar) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isSeatedAvatar(avatar) {
		t.log.Warnf("player %d can't sit before getting a seat", avatar.Serial())
		return false
	}
	t.sitPlayerSerial(avatar.Serial())
	t.update()
	return true
}

func (t *Table) sitPlayerSerial(serial int64) {
	// Sitting while already sit resets the autoPlayer/wait_for flags and
	// does not harm.
	if t.game.Sit(serial) || t.game.IsSit(serial) {
		t.broadcast(packet.Sit{GameID: t.cfg.ID, Serial: serial})
	}
}

// SitOutPlayer takes a seated player out of play: deferred to the next
// turn on open tables, immediate auto-play plus AUTO_FOLD on closed ones.
func (t *Table) SitOutPlayer(avatar *Avatar) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	serial := avatar.Serial()
	if !t.isSeatedAvatar(avatar) {
		t.log.Warnf("player %d can't sit out before getting a seat", serial)
		return false
	}
	// silently do nothing if already sit out
	if !t.isSitAvatar(avatar) {
		return true
	}
	if t.game.IsOpen() {
		if t.game.SitOutNextTurn(serial) {
			t.broadcast(packet.SitOut{GameID: t.cfg.ID, Serial: serial})
		}
	} else {
		t.game.AutoPlayer(serial)
		t.broadcast(packet.AutoFold{GameID: t.cfg.ID, Serial: serial})
	}
	t.update()
	return true
}

// removePlayer takes the seat away from the engine now if it can; when a
// hand is running the engine defers the removal to the end of the hand and
// this returns false.
func (t *Table) removePlayer(serial int64) bool {
	var seat int
	if player := t.game.GetPlayer(serial); player != nil {
		seat = player.Seat
	}
	if !t.game.RemovePlayer(serial) {
		return false
	}
	leave := packet.PlayerLeave{GameID: t.cfg.ID, Serial: serial, Seat: seat}
	// the seat is already gone from the engine, so the leaver hears it
	// directly and everyone else through the broadcast
	for _, avatar := range t.avatars.Get(serial) {
		avatar.Send(leave)
	}
	t.broadcast(leave)
	return true
}

// QuitPlayer disconnects a session that is leaving for good: fold out of a
// running hand, stand up if the table is open, then drop the connection.
// On a closed table the stand-up is refused and the seat is kept.
func (t *Table) QuitPlayer(avatar *Avatar) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	serial := avatar.Serial()
	if t.isSitAvatar(avatar) {
		if t.game.IsOpen() {
			t.game.SitOutNextTurn(serial)
			t.game.AutoPlayer(serial)
		} else {
			t.game.AutoPlayer(serial)
			t.broadcast(packet.AutoFold{GameID: t.cfg.ID, Serial: serial})
		}
	}
	t.update()
	if t.isSeatedAvatar(avatar) {
		if !t.game.IsOpen() {
			// cannot quit a closed table, request ignored
			return false
		}
		if t.removePlayer(serial) {
			t.seatedToObserver(avatar)
			t.factory.LeavePlayer(serial, t.cfg.ID, t.cfg.CurrencySerial)
			t.factory.UpdateTableStats(t.cfg.ID, len(t.observers), len(t.waiting))
		} else {
			t.update()
		}
	}
	if t.isJoined(avatar) {
		// the player is no longer connected to the table
		t.destroyPlayer(avatar)
	}
	return true
}

// LeavePlayer stands a player up but keeps the session connected as an
// observer. Closed tables refuse with a TOURNEY error.
func (t *Table) LeavePlayer(avatar *Avatar) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leavePlayer(avatar)
}

func (t *Table) leavePlayer(avatar *Avatar) bool {
	serial := avatar.Serial()
	if t.isSitAvatar(avatar) {
		if t.game.IsOpen() {
			t.game.SitOutNextTurn(serial)
		}
		t.game.AutoPlayer(serial)
	}
	t.update()
	if t.isSeatedAvatar(avatar) {
		if !t.game.IsOpen() {
			t.log.Warnf("player %d cannot leave a closed table", serial)
			avatar.Send(packet.Error{
				GameID:    t.cfg.ID,
				Serial:    serial,
				OtherType: packet.TypePlayerLeave,
				Code:      packet.CodeTourney,
				Message:   "Cannot leave tournament table",
			})
			return false
		}
		if t.removePlayer(serial) {
			t.seatedToObserver(avatar)
			t.factory.LeavePlayer(serial, t.cfg.ID, t.cfg.CurrencySerial)
			t.factory.UpdateTableStats(t.cfg.ID, len(t.observers), len(t.waiting))
		} else if t.factory.BuyOutPlayer(serial, t.cfg.ID, t.cfg.CurrencySerial) {
			// seat drops at end of hand, money settles with it
		} else {
			t.update()
		}
	}
	return true
}

// DisconnectPlayer drops a session without requiring an open table. The
// seated state survives on closed tables so the player can join again
// later.
func (t *Table) DisconnectPlayer(avatar *Avatar) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	serial := avatar.Serial()
	if t.isSeatedAvatar(avatar) {
		// A disconnected player must not hold up the next deal.
		t.game.GetPlayer(serial).UserData().Ready = true
		if t.game.IsOpen() {
			if t.removePlayer(serial) {
				t.seatedToObserver(avatar)
				t.factory.LeavePlayer(serial, t.cfg.ID, t.cfg.CurrencySerial)
				t.factory.UpdateTableStats(t.cfg.ID, len(t.observers), len(t.waiting))
			} else {
				t.update()
			}
		}
	}
	if t.isJoined(avatar) {
		t.destroyPlayer(avatar)
	}
	return true
}

// KickPlayer forcibly removes a seat, demotes any live session to
// observer and settles the money through the factory. Used by the
// sit-out-too-long watchdog.
func (t *Table) KickPlayer(serial int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kickPlayer(serial)
}

func (t *Table) kickPlayer(serial int64) {
	var seat int
	if player := t.game.GetPlayer(serial); player != nil {
		seat = player.Seat
	}
	if !t.game.RemovePlayer(serial) {
		t.log.Warnf("kickPlayer did not succeed in removing player %d from game %d", serial, t.cfg.ID)
		return
	}
	t.factory.LeavePlayer(serial, t.cfg.ID, t.cfg.CurrencySerial)
	t.factory.UpdateTableStats(t.cfg.ID, len(t.observers), len(t.waiting))

	for _, avatar := range append([]*Avatar(nil), t.avatars.Get(serial)...) {
		t.seatedToObserver(avatar)
	}
	t.broadcast(packet.PlayerLeave{GameID: t.cfg.ID, Serial: serial, Seat: seat})
}

// PossibleObserverLoggedIn promotes an observer to a seat the engine
// already holds for them, typically right after authentication.
func (t *Table) PossibleObserverLoggedIn(avatar *Avatar) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.game.GetPlayer(avatar.Serial()) == nil {
		return false
	}
	t.observerToSeated(avatar)
	t.game.ComeBack(avatar.Serial())
	return true
}

// MovePlayer moves a seat to another table, usually on tournament
// rebalance: broadcast the move, drop the seat here, transfer the money
// atomically, then re-attach the sessions over there.
func (t *Table) MovePlayer(serial int64, toGameID int64) {
	t.mu.Lock()

	avatars := append([]*Avatar(nil), t.avatars.Get(serial)...)
	player := t.game.GetPlayer(serial)
	if player == nil {
		t.mu.Unlock()
		t.log.Warnf("movePlayer: player %d not at table %d", serial, t.cfg.ID)
		return
	}
	oldPlayer := player.Copy()

	t.broadcast(packet.TableMove{
		GameID:   t.cfg.ID,
		Serial:   serial,
		ToGameID: toGameID,
		Seat:     oldPlayer.Seat,
	})
	t.game.RemovePlayer(serial)
	for _, avatar := range avatars {
		t.destroyPlayer(avatar)
	}

	moneyCheck := t.factory.MovePlayer(serial, t.cfg.ID, toGameID)
	if moneyCheck != oldPlayer.Money {
		t.log.Warnf("movePlayer: player %d money %d in database, %d in memory", serial, moneyCheck, oldPlayer.Money)
	}

	other := t.factory.GetTable(toGameID)
	t.mu.Unlock()

	if other == nil {
		t.log.Errorf("movePlayer: destination table %d not found", toGameID)
		return
	}
	other.takeMovedPlayer(oldPlayer, avatars)
	t.log.Debugf("player %d moved from table %d to table %d", serial, t.cfg.ID, toGameID)
}

// takeMovedPlayer installs a moved seat on the destination table.
func (t *Table) takeMovedPlayer(oldPlayer *Player, avatars []*Avatar) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, avatar := range avatars {
		t.factory.JoinedCountIncrease()
		avatar.attachTable(t.cfg.ID)
		t.avatars.Add(avatar)
	}
	t.movePlayerTo(oldPlayer)
	for _, avatar := range avatars {
		t.sendJoinPackets(avatar)
	}
	t.sendNewPlayerInformation(oldPlayer.Serial)
	if !t.updating {
		t.scheduleAutoDeal()
	}
}

// movePlayerTo adds the moved player to this table's engine with money and
// flags preserved. Closed tables open just long enough for the insert.
func (t *Table) movePlayerTo(oldPlayer *Player) {
	wasOpen := t.game.IsOpen()
	if !wasOpen {
		t.game.Open()
	}
	serial := oldPlayer.Serial
	player := t.game.AddPlayer(serial, -1)
	if player == nil {
		t.log.Errorf("movePlayerTo: engine refused player %d on table %d", serial, t.cfg.ID)
		if !wasOpen {
			t.game.Close()
		}
		return
	}
	player.SetUserData(&UserData{})
	player.Name = oldPlayer.Name
	player.Money = oldPlayer.Money
	player.BuyInPaid = true
	t.game.AutoBlindAnte(serial, true)
	if !t.game.IsBroke(serial) && !oldPlayer.SitOut {
		t.game.Sit(serial)
	}
	player.Auto = oldPlayer.Auto
	player.AutoRefill = oldPlayer.AutoRefill
	player.AutoRebuy = oldPlayer.AutoRebuy
	if !wasOpen {
		t.game.Close()
	}
}

// SetAutoBlindAnte lets a seated player choose automatic blind posting.
func (t *Table) SetAutoBlindAnte(avatar *Avatar, auto bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isSeatedAvatar(avatar) {
		t.log.Warnf("player %d can't set auto blind/ante before getting a seat", avatar.Serial())
		return false
	}
	t.game.AutoBlindAnte(avatar.Serial(), auto)
	t.update()
	return true
}

// MuckAccept mucks the player's losing hand.
func (t *Table) MuckAccept(avatar *Avatar) bool {
	return t.muck(avatar, true)
}

// MuckDeny shows the player's losing hand.
func (t *Table) MuckDeny(avatar *Avatar) bool {
	return t.muck(avatar, false)
}

func (t *Table) muck(avatar *Avatar, wantToMuck bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isSeatedAvatar(avatar) {
		t.log.Warnf("player %d can't muck before getting a seat", avatar.Serial())
		return false
	}
	t.game.Muck(avatar.Serial(), wantToMuck)
	t.update()
	return true
}
