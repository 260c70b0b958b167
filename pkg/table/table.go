package table

import (
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"

	"github.com/bystac/pokernetwork/pkg/packet"
)

// timeoutDelayCompensation is the extra grace the server grants past the
// advertised warning so a slow link does not eat the player's turn.
const timeoutDelayCompensation = 2 * time.Second

// DelaysConfig is the server-wide pacing between engine events and the
// next deal.
type DelaysConfig struct {
	Autodeal              time.Duration
	Round                 time.Duration
	Position              time.Duration
	Showdown              time.Duration
	Finish                time.Duration
	AutodealCheck         time.Duration
	AutodealMax           time.Duration
	AutodealTournamentMin time.Duration
}

func (d *DelaysConfig) applyDefaults() {
	if d.AutodealCheck <= 0 {
		d.AutodealCheck = 15 * time.Second
	}
	if d.AutodealMax <= 0 {
		d.AutodealMax = 120 * time.Second
	}
	if d.AutodealTournamentMin <= 0 {
		d.AutodealTournamentMin = 15 * time.Second
	}
}

// Config is the table descriptor.
type Config struct {
	ID               int64
	Name             string
	Variant          string
	BettingStructure string
	Seats            int
	ForcedDealerSeat int
	Skin             string
	CurrencySerial   int64
	PlayerTimeout    time.Duration
	MuckTimeout      time.Duration
	Transient        bool
	Tourney          *Tourney
	// MaxMissedRound overrides the server-wide default when positive.
	MaxMissedRound int

	Autodeal          bool
	AutodealTemporary bool
	Delays            DelaysConfig
	// PredefinedDecks switches the engine to deterministic deck replay.
	PredefinedDecks [][]string
	LockThreshold   time.Duration

	Log slog.Logger
}

// UpdateResult is the sentinel returned by Update.
type UpdateResult string

const (
	UpdateOK       UpdateResult = "ok"
	UpdateRecurse  UpdateResult = "recurse"
	UpdateNotValid UpdateResult = "not valid"
)

type pendingRebuy struct {
	serial int64
	amount int64
}

// Table owns the authoritative lifecycle of one table: it sequences hands,
// drives timers, reconciles the engine's history with clients and the
// database, and coordinates arrivals, departures and money movement.
// Exported methods serialize on the table lock; unexported methods assume
// it is held. Timer callbacks re-enter through the same lock and check
// IsValid first, so a destroyed table ignores late fires.
type Table struct {
	mu sync.Mutex

	log     slog.Logger
	cfg     Config
	game    Engine
	factory Factory

	avatars   *AvatarCollection
	observers []*Avatar
	waiting   []*Avatar

	historyIndex int
	cache        *packetizerCache

	previousDealer int
	betLimits      *packet.BetLimits

	rebuyStack          []pendingRebuy
	lastRebuyHandSerial int64

	delayStart time.Time
	delayAccum time.Duration

	timers   timerSet
	updating bool

	lockCheck *LockCheck
	locked    bool

	now func() time.Time
}

// New builds a table around an engine and a factory handle. The engine is
// configured from the descriptor; the caller keeps no reference to it.
func New(factory Factory, game Engine, cfg Config) *Table {
	if cfg.PlayerTimeout <= 0 {
		cfg.PlayerTimeout = 60 * time.Second
	}
	if cfg.MuckTimeout <= 0 {
		cfg.MuckTimeout = 5 * time.Second
	}
	if cfg.LockThreshold <= 0 {
		cfg.LockThreshold = defaultLockThreshold
	}
	if cfg.Skin == "" {
		cfg.Skin = "default"
	}
	if cfg.MaxMissedRound <= 0 {
		cfg.MaxMissedRound = factory.GetMissedRoundMax()
	}
	cfg.Delays.applyDefaults()
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}

	t := &Table{
		log:            cfg.Log,
		cfg:            cfg,
		game:           game,
		factory:        factory,
		avatars:        NewAvatarCollection(),
		cache:          newPacketizerCache(),
		previousDealer: -1,
		now:            time.Now,
	}

	game.SetID(cfg.ID)
	game.SetName(cfg.Name)
	game.SetVariant(cfg.Variant)
	game.SetBettingStructure(cfg.BettingStructure)
	game.SetMaxPlayers(cfg.Seats)
	game.SetForcedDealerSeat(cfg.ForcedDealerSeat)
	if len(cfg.PredefinedDecks) > 0 {
		game.SetShuffler(NewPredefinedDecks(cfg.PredefinedDecks))
	}

	t.lockCheck = NewLockCheck(cfg.LockThreshold, t.warnLock)
	game.RegisterCallback(t.lockCheckEndCallback)

	return t
}

// Game returns the table's engine. The engine is owned by the table;
// callers must not drive it while the table is live.
func (t *Table) Game() Engine { return t.game }

// ID returns the table's game id.
func (t *Table) ID() int64 { return t.cfg.ID }

// Config returns the table descriptor.
func (t *Table) Config() Config { return t.cfg }

// Tourney returns the tournament link, nil on cash tables.
func (t *Table) Tourney() *Tourney { return t.cfg.Tourney }

// Transient reports whether the table was created for a tournament
// instance.
func (t *Table) Transient() bool { return t.cfg.Transient }

// CurrencySerial returns the table currency.
func (t *Table) CurrencySerial() int64 { return t.cfg.CurrencySerial }

func (t *Table) warnLock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locked = true
	t.log.Warnf("table is locked! game_id: %d, hand_serial: %d", t.cfg.ID, t.game.HandSerial())
}

// IsLocked reports whether the lock watchdog has tripped.
func (t *Table) IsLocked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locked
}

func (t *Table) lockCheckEndCallback(gameID int64, eventType string, args ...interface{}) {
	if eventType == "end_round_last" {
		t.lockCheck.Stop()
	}
}

func (t *Table) startLockCheck() {
	// A per-player timeout beyond the threshold means genuinely slow play,
	// not a stuck hand.
	if t.cfg.PlayerTimeout < t.lockCheck.Threshold() {
		t.lockCheck.Start()
	}
}

// IsValid reports whether the table still has a factory, i.e. has not been
// destroyed. Racing timer callbacks early-return on this.
func (t *Table) IsValid() bool { return t.factory != nil }

// IsOpen reports whether players may come and go freely.
func (t *Table) IsOpen() bool { return t.game.IsOpen() }

// IsRunning reports whether a hand is in progress.
func (t *Table) IsRunning() bool { return t.game.IsRunning() }

// IsStationary reports an idle table: no hand running and no deal pending.
func (t *Table) IsStationary() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.game.IsEndOrNull() && !t.timers.dealArmed()
}

// CanBeDespawned reports whether nothing keeps the table alive.
func (t *Table) CanBeDespawned() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canBeDespawned()
}

func (t *Table) canBeDespawned() bool {
	return !t.game.IsRunning() && t.avatars.IsEmpty() && len(t.observers) == 0 && t.cfg.Tourney == nil
}

// Destroy cancels all timers, broadcasts the terminal packet, detaches
// every session, severs the factory link and stops the watchdog.
func (t *Table) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroy()
}

func (t *Table) destroy() {
	t.log.Debugf("destroy table %d", t.cfg.ID)
	t.timers.cancelAll()
	t.factory.DestroyTable(t.cfg.ID)

	t.broadcast(packet.TableDestroy{GameID: t.cfg.ID})

	t.avatars.Iter(func(avatar *Avatar) {
		avatar.detachTable(t.cfg.ID)
	})
	for _, observer := range t.observers {
		observer.detachTable(t.cfg.ID)
	}

	t.factory.DeleteTable(t)
	t.factory = nil
	t.lockCheck.Stop()
}

// getName resolves a serial to a display name, preferring a live session.
func (t *Table) getName(serial int64) string {
	if avatars := t.avatars.Get(serial); len(avatars) > 0 {
		return avatars[0].Name()
	}
	return t.factory.GetName(serial)
}

// getPlayerInfo resolves a serial's public identity.
func (t *Table) getPlayerInfo(serial int64) PlayerInfo {
	if avatars := t.avatars.Get(serial); len(avatars) > 0 {
		return PlayerInfo{Serial: serial, Name: avatars[0].Name()}
	}
	return t.factory.GetPlayerInfo(serial)
}

// PlayerListing is one row of a lobby player list.
type PlayerListing struct {
	Name  string
	Money int64
}

// ListPlayers returns (name, money) for every player in the game.
func (t *Table) ListPlayers() []PlayerListing {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []PlayerListing
	for _, serial := range t.game.SerialsAll() {
		out = append(out, PlayerListing{t.getName(serial), t.game.GetPlayerMoney(serial)})
	}
	return out
}

// ToPacket renders the lobby descriptor for the table.
func (t *Table) ToPacket() packet.Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	var tourneySerial int64
	if t.cfg.Tourney != nil {
		tourneySerial = t.cfg.Tourney.Serial
	}
	return packet.Table{
		GameID:           t.cfg.ID,
		Name:             t.cfg.Name,
		Variant:          t.game.Variant(),
		BettingStructure: t.game.BettingStructure(),
		Seats:            t.game.MaxPlayers(),
		Players:          len(t.game.SerialsAll()),
		Observers:        len(t.observers),
		Waiting:          len(t.waiting),
		PlayerTimeout:    int(t.cfg.PlayerTimeout / time.Second),
		MuckTimeout:      int(t.cfg.MuckTimeout / time.Second),
		Skin:             t.cfg.Skin,
		CurrencySerial:   t.cfg.CurrencySerial,
		TourneySerial:    tourneySerial,
	}
}

// broadcast fans packets out to every seated session (masked per viewer)
// and to observers (masked as serial 0), then raises the table event hook.
func (t *Table) broadcast(packets ...packet.Packet) {
	for _, p := range packets {
		for _, serial := range t.game.SerialsAll() {
			// player may be in game but disconnected
			for _, avatar := range t.avatars.Get(serial) {
				avatar.Send(packet.PrivateToPublic(p, serial))
			}
		}
		for _, observer := range t.observers {
			observer.Send(packet.PrivateToPublic(p, 0))
		}
	}
	if t.factory != nil {
		t.factory.EventTable(t)
	}
}

// broadcastMessage sends a text message to the connected subset of serials;
// nil serials means everyone in the game.
func (t *Table) broadcastMessage(text string, serials []int64) bool {
	if serials == nil {
		serials = t.game.SerialsAll()
	}
	sent := false
	p := packet.Message{GameID: t.cfg.ID, Text: text}
	for _, serial := range serials {
		for _, avatar := range t.avatars.Get(serial) {
			avatar.Send(p)
			sent = true
		}
	}
	return sent
}

// historyReset rewinds the cursor and drops the privacy cache for a new
// hand.
func (t *Table) historyReset() {
	t.historyIndex = 0
	t.cache = newPacketizerCache()
}

// BeginTurn starts the next hand if the engine is idle.
func (t *Table) BeginTurn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.beginTurn()
}

// beginTurn allocates the hand serial, stamps engine time and marks every
// player ready.
func (t *Table) beginTurn() {
	t.startLockCheck()
	t.timers.cancelDeal()
	if !t.game.IsEndOrNull() {
		return
	}
	t.historyReset()
	var tourneySerial int64
	if t.cfg.Tourney != nil {
		tourneySerial = t.cfg.Tourney.Serial
	}
	handSerial, err := t.factory.CreateHand(t.cfg.ID, tourneySerial)
	if err != nil {
		t.log.Errorf("beginTurn: createHand failed for game %d: %v", t.cfg.ID, err)
		return
	}
	t.log.Debugf("dealing hand %s/%d", t.cfg.Name, handSerial)
	t.game.SetTime(t.now())
	t.game.BeginTurn(handSerial)
	for _, player := range t.game.PlayersAll() {
		player.UserData().Ready = true
	}
}

// updateBetLimits recomputes the limit snapshot when the tail contains a
// game or round boundary; it reports whether the snapshot changed.
func (t *Table) updateBetLimits(history []Event) bool {
	boundary := false
	for i := len(history) - 1; i >= 0; i-- {
		if tag := history[i].Tag(); tag == TagGame || tag == TagRound {
			boundary = true
			break
		}
	}
	if !boundary {
		return false
	}
	min, max, step := t.game.BetLimits()
	limits := &packet.BetLimits{
		GameID: t.cfg.ID,
		Min:    min,
		Max:    max,
		Step:   step,
		Cap:    t.game.RoundCap(),
		Limit:  packet.LimitFixed,
	}
	if t.betLimits != nil && *limits == *t.betLimits {
		return false
	}
	t.betLimits = limits
	return true
}

// Update runs one orchestrator cycle against the engine history tail.
func (t *Table) Update() UpdateResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.update()
}

// update is the orchestrator cycle. It is not re-entrant: a nested call
// logs and returns UpdateRecurse without touching state.
func (t *Table) update() UpdateResult {
	if t.updating {
		t.log.Warnf("unexpected update recursion (ignored)")
		return UpdateRecurse
	}
	if !t.IsValid() {
		return UpdateNotValid
	}
	t.updating = true

	t.rebuyPlayersOnce()

	history := t.game.History()
	historyLen := len(history)
	if t.historyIndex > historyLen {
		// the engine was reset under us (hand replay)
		t.historyIndex = historyLen
	}
	tail := history[t.historyIndex:]

	defer func() {
		if after := len(t.game.History()); after != historyLen {
			t.log.Errorf("history length changed from %d to %d during update: %s",
				historyLen, after, spew.Sdump(t.game.History()[historyLen:]))
		}
		if t.game.HistoryCanBeReduced() {
			t.game.HistoryReduce()
		}
		t.historyIndex = len(t.game.History())
		t.updating = false
	}()

	t.updateTimers(tail)
	packets, previousDealer, errs := historyToPackets(tail, t.cfg.ID, t.previousDealer, t.cache)
	t.previousDealer = previousDealer
	for _, err := range errs {
		t.log.Warnf("%v", err)
	}
	t.syncDatabase(tail)
	t.delayedActions(tail)
	if t.updateBetLimits(tail) {
		packets = append([]packet.Packet{*t.betLimits}, packets...)
	}
	if len(packets) > 0 {
		t.broadcast(packets...)
	}

	if t.canBeDespawned() {
		t.factory.DespawnTable(t.cfg.ID)
	}

	if t.IsValid() {
		t.kickPlayersSittingOutTooLong(tail)
		t.tourneyEndTurn(tail)
	}
	if t.IsValid() {
		t.tourneyUpdateStats(tail)
		t.scheduleAutoDeal()
	}

	return UpdateOK
}

// eventInHistory scans the tail backwards for the tag; end-of-hand events
// sit at the end.
func eventInHistory(history []Event, tag EventTag) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Tag() == tag {
			return true
		}
	}
	return false
}

func (t *Table) kickPlayersSittingOutTooLong(history []Event) {
	if t.cfg.Tourney != nil {
		return
	}
	if !eventInHistory(history, TagFinish) {
		return
	}
	for _, player := range t.game.PlayersAll() {
		if player.MissedRounds >= t.cfg.MaxMissedRound {
			t.kickPlayer(player.Serial)
		}
	}
}

func (t *Table) tourneyEndTurn(history []Event) {
	if t.cfg.Tourney == nil {
		return
	}
	if eventInHistory(history, TagEnd) {
		t.factory.TourneyEndTurn(t.cfg.Tourney, t.cfg.ID)
	}
}

func (t *Table) tourneyUpdateStats(history []Event) {
	if t.cfg.Tourney == nil {
		return
	}
	if eventInHistory(history, TagFinish) {
		t.factory.TourneyUpdateStats(t.cfg.Tourney, t.cfg.ID)
	}
}

// updatePlayerReady flips the volatile ready flag and runs an update cycle
// when it actually changed.
func (t *Table) updatePlayerReady(serial int64, ready bool) {
	if !t.game.IsSeated(serial) {
		return
	}
	data := t.game.GetPlayer(serial).UserData()
	if data.Ready != ready {
		data.Ready = ready
		t.update()
	}
}

// ReadyToPlay records that the client finished rendering the previous hand.
// A late packet for a still-running hand is attributed to the previous hand
// and ignored.
func (t *Table) ReadyToPlay(serial int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.game.IsEndOrMuck() {
		t.updatePlayerReady(serial, true)
		return true
	}
	return false
}

// ProcessingHand records that the client started rendering the hand and
// must not be dealt into the next one yet. Sessions flagged for missing
// the ready-to-play deadline are ignored.
func (t *Table) ProcessingHand(avatar *Avatar) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if avatar.IgnoreProcessing {
		return
	}
	t.updatePlayerReady(avatar.Serial(), false)
}

// Chat relays a filtered chat line and archives it.
func (t *Table) Chat(avatar *Avatar, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isJoined(avatar) {
		t.log.Errorf("player %d can't chat before joining", avatar.Serial())
		return false
	}
	message = t.factory.ChatFilter(message)
	t.broadcast(packet.Chat{GameID: t.cfg.ID, Serial: avatar.Serial(), Message: message})
	t.factory.ChatMessageArchive(avatar.Serial(), t.cfg.ID, message)
	return true
}

// HandReplay loads a stored hand and replays its packet stream to one
// session, with that session's pockets left visible.
func (t *Table) HandReplay(avatar *Avatar, handSerial int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	history, err := t.factory.LoadHand(handSerial)
	if err != nil || len(history) == 0 {
		t.log.Warnf("handReplay: hand %d not found: %v", handSerial, err)
		return false
	}
	game, ok := history[0].(GameEvent)
	if !ok {
		t.log.Warnf("handReplay: hand %d does not start with a game event", handSerial)
		return false
	}

	for _, player := range t.game.PlayersAll() {
		avatar.Send(packet.PlayerLeave{GameID: t.cfg.ID, Serial: player.Serial, Seat: player.Seat})
	}
	t.game.Reset()
	t.game.SetName("*REPLAY*")
	t.game.SetVariant(game.Variant)
	t.game.SetBettingStructure(game.Structure)
	t.game.SetTime(time.Unix(game.Time, 0))
	t.game.SetHandsCount(game.HandsCount)
	t.game.SetLevel(game.Level)
	for _, serial := range game.PlayerList {
		player := t.game.AddPlayer(serial, -1)
		if player == nil {
			continue
		}
		player.Money = game.Serial2Chips[serial]
		t.game.Sit(serial)
	}
	if !t.isJoined(avatar) {
		t.joinPlayer(avatar)
	}

	serial := avatar.Serial()
	cache := newPacketizerCache()
	packets, _, _ := historyToPackets(history, t.cfg.ID, -1, cache)
	for _, p := range packets {
		if _, isLeave := p.(packet.PlayerLeave); isLeave {
			continue
		}
		avatar.Send(packet.PrivateToPublic(p, serial))
	}
	return true
}
