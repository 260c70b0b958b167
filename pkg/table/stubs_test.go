package table

import (
	"time"

	"github.com/bystac/pokernetwork/pkg/packet"
)

// ---------- Test scaffolding ---------- //

var (
	_ Engine  = (*stubEngine)(nil)
	_ Factory = (*stubFactory)(nil)
)

// stubEngine is a scriptable Engine: tests push events into its history
// and flip its state flags to drive the table through hand lifecycles.
type stubEngine struct {
	id         int64
	name       string
	variant    string
	structure  string
	maxPlayers int
	forced     int

	state      GameState
	running    bool
	tournament bool
	closed     bool
	handSerial int64

	history   []Event
	reducible bool

	players   map[int64]*Player
	seatOrder []int64
	playing   []int64
	muckable  []int64

	inPosition    int64
	rebuyPossible bool
	rebuyRefused  bool

	buyIn     int64
	bestBuyIn int64
	maxBuyIn  int64
	betMin    int64
	betMax    int64
	betStep   int64
	roundCap  int
	chipUnit  int64

	shuffler  Shuffler
	callbacks []EngineCallback

	foldedSerials []int64
	// onFold lets a test end the game from inside the fold loop.
	onFold func(serial int64)
	// onBeginTurn observes BeginTurn.
	onBeginTurn func(handSerial int64)

	timeSet time.Time
	level   int
	hands   int
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		maxPlayers: 10,
		players:    make(map[int64]*Player),
		buyIn:      100000,
		bestBuyIn:  150000,
		maxBuyIn:   200000,
		betMin:     100,
		betMax:     200,
		betStep:    100,
		roundCap:   3,
		chipUnit:   100,
	}
}

func (e *stubEngine) addSeated(serial int64, money int64) *Player {
	player := &Player{Serial: serial, Seat: len(e.seatOrder), Money: money, BuyInPaid: true}
	player.SetUserData(&UserData{Ready: true})
	e.players[serial] = player
	e.seatOrder = append(e.seatOrder, serial)
	return player
}

func (e *stubEngine) ID() int64                       { return e.id }
func (e *stubEngine) SetID(id int64)                  { e.id = id }
func (e *stubEngine) Name() string                    { return e.name }
func (e *stubEngine) SetName(name string)             { e.name = name }
func (e *stubEngine) Variant() string                 { return e.variant }
func (e *stubEngine) SetVariant(v string)             { e.variant = v }
func (e *stubEngine) BettingStructure() string        { return e.structure }
func (e *stubEngine) SetBettingStructure(s string)    { e.structure = s }
func (e *stubEngine) MaxPlayers() int                 { return e.maxPlayers }
func (e *stubEngine) SetMaxPlayers(seats int)         { e.maxPlayers = seats }
func (e *stubEngine) SetForcedDealerSeat(seat int)    { e.forced = seat }
func (e *stubEngine) SetShuffler(shuffler Shuffler)   { e.shuffler = shuffler }
func (e *stubEngine) SetTime(now time.Time)           { e.timeSet = now }
func (e *stubEngine) SetLevel(level int)              { e.level = level }
func (e *stubEngine) Level() int                      { return e.level }
func (e *stubEngine) SetHandsCount(count int)         { e.hands = count }
func (e *stubEngine) HandsCount() int                 { return e.hands }
func (e *stubEngine) RegisterCallback(cb EngineCallback) {
	e.callbacks = append(e.callbacks, cb)
}

func (e *stubEngine) State() GameState { return e.state }
func (e *stubEngine) IsRunning() bool  { return e.running }
func (e *stubEngine) IsEndOrNull() bool {
	return e.state == GameStateNull || e.state == GameStateEnd
}
func (e *stubEngine) IsEndOrMuck() bool {
	return e.state == GameStateEnd || e.state == GameStateMuck
}
func (e *stubEngine) IsTournament() bool { return e.tournament }
func (e *stubEngine) IsOpen() bool       { return !e.closed }
func (e *stubEngine) HandSerial() int64  { return e.handSerial }

func (e *stubEngine) Seats() []int64 {
	seats := make([]int64, e.maxPlayers)
	for _, serial := range e.seatOrder {
		seats[e.players[serial].Seat] = serial
	}
	return seats
}

func (e *stubEngine) SeatsLeft() []int {
	taken := make(map[int]bool)
	for _, serial := range e.seatOrder {
		taken[e.players[serial].Seat] = true
	}
	var left []int
	for seat := 0; seat < e.maxPlayers; seat++ {
		if !taken[seat] {
			left = append(left, seat)
		}
	}
	return left
}

func (e *stubEngine) SerialsAll() []int64 {
	return append([]int64(nil), e.seatOrder...)
}

func (e *stubEngine) SerialsSit() []int64 {
	var out []int64
	for _, serial := range e.seatOrder {
		if !e.players[serial].SitOut {
			out = append(out, serial)
		}
	}
	return out
}

func (e *stubEngine) SerialsPlaying() []int64 {
	return append([]int64(nil), e.playing...)
}

func (e *stubEngine) PlayersAll() []*Player {
	out := make([]*Player, 0, len(e.seatOrder))
	for _, serial := range e.seatOrder {
		out = append(out, e.players[serial])
	}
	return out
}

func (e *stubEngine) GetPlayer(serial int64) *Player { return e.players[serial] }

func (e *stubEngine) GetPlayerMoney(serial int64) int64 {
	if player := e.players[serial]; player != nil {
		return player.Money
	}
	return 0
}

func (e *stubEngine) IsSeated(serial int64) bool {
	_, ok := e.players[serial]
	return ok
}

func (e *stubEngine) IsSit(serial int64) bool {
	player := e.players[serial]
	return player != nil && !player.SitOut
}

func (e *stubEngine) IsBroke(serial int64) bool {
	player := e.players[serial]
	return player != nil && player.Money <= 0
}

func (e *stubEngine) CanAddPlayer(serial int64) bool {
	return !e.IsSeated(serial) && len(e.seatOrder) < e.maxPlayers
}

func (e *stubEngine) IsRebuyPossible() bool { return e.rebuyPossible }
func (e *stubEngine) BuyIn() int64          { return e.buyIn }
func (e *stubEngine) BestBuyIn() int64      { return e.bestBuyIn }
func (e *stubEngine) MaxBuyIn() int64       { return e.maxBuyIn }
func (e *stubEngine) BetLimits() (int64, int64, int64) {
	return e.betMin, e.betMax, e.betStep
}
func (e *stubEngine) RoundCap() int             { return e.roundCap }
func (e *stubEngine) ChipUnit() int64           { return e.chipUnit }
func (e *stubEngine) SerialInPosition() int64   { return e.inPosition }
func (e *stubEngine) MuckableSerials() []int64  { return append([]int64(nil), e.muckable...) }
func (e *stubEngine) History() []Event          { return e.history }
func (e *stubEngine) HistoryCanBeReduced() bool { return e.reducible }
func (e *stubEngine) HistoryReduce()            { e.history = nil; e.reducible = false }

func (e *stubEngine) BeginTurn(handSerial int64) {
	e.handSerial = handSerial
	e.running = true
	e.state = GameStateRound
	if e.onBeginTurn != nil {
		e.onBeginTurn(handSerial)
	}
}

func (e *stubEngine) AddPlayer(serial int64, seat int) *Player {
	if !e.CanAddPlayer(serial) {
		return nil
	}
	if seat < 0 {
		left := e.SeatsLeft()
		if len(left) == 0 {
			return nil
		}
		seat = left[0]
	}
	player := &Player{Serial: serial, Seat: seat}
	e.players[serial] = player
	e.seatOrder = append(e.seatOrder, serial)
	return player
}

func (e *stubEngine) RemovePlayer(serial int64) bool {
	player := e.players[serial]
	if player == nil {
		return false
	}
	if e.running {
		player.RemoveNextTurn = true
		return false
	}
	delete(e.players, serial)
	for i, s := range e.seatOrder {
		if s == serial {
			e.seatOrder = append(e.seatOrder[:i], e.seatOrder[i+1:]...)
			break
		}
	}
	return true
}

func (e *stubEngine) Sit(serial int64) bool {
	player := e.players[serial]
	if player == nil {
		return false
	}
	if !player.SitOut {
		return false
	}
	player.SitOut = false
	e.history = append(e.history, SitEvent{Serial: serial})
	return true
}

func (e *stubEngine) SitOut(serial int64) bool {
	player := e.players[serial]
	if player == nil {
		return false
	}
	player.SitOut = true
	return true
}

func (e *stubEngine) SitOutNextTurn(serial int64) bool {
	player := e.players[serial]
	if player == nil {
		return false
	}
	player.SitOutNextTurn = true
	if !e.running {
		player.SitOut = true
	}
	return true
}

func (e *stubEngine) AutoPlayer(serial int64) {
	if player := e.players[serial]; player != nil {
		player.Auto = true
	}
}

func (e *stubEngine) AutoBlindAnte(serial int64, auto bool) {
	if player := e.players[serial]; player != nil {
		player.AutoBlindAnte = auto
	}
}

func (e *stubEngine) ComeBack(serial int64) bool {
	player := e.players[serial]
	if player == nil {
		return false
	}
	player.Auto = false
	return true
}

func (e *stubEngine) Muck(serial int64, wantToMuck bool) {
	for i, s := range e.muckable {
		if s == serial {
			e.muckable = append(e.muckable[:i], e.muckable[i+1:]...)
			break
		}
	}
	if len(e.muckable) == 0 && e.state == GameStateMuck {
		e.state = GameStateEnd
	}
}

func (e *stubEngine) Fold(serial int64) bool {
	e.foldedSerials = append(e.foldedSerials, serial)
	if e.onFold != nil {
		e.onFold(serial)
	}
	return true
}

func (e *stubEngine) Rebuy(serial int64, amount int64) bool {
	if e.rebuyRefused {
		return false
	}
	player := e.players[serial]
	if player == nil {
		return false
	}
	player.Money += amount
	return true
}

func (e *stubEngine) Open()  { e.closed = false }
func (e *stubEngine) Close() { e.closed = true }
func (e *stubEngine) Reset() {
	e.history = nil
	e.running = false
	e.state = GameStateNull
	e.players = make(map[int64]*Player)
	e.seatOrder = nil
}

// stubFactory records every factory interaction.
type stubFactory struct {
	moneyUpdates map[int64]int64
	moneySets    map[int64]int64
	rake         map[int64]int64
	savedHands   map[int64][]Event
	loadHands    map[int64][]Event
	nextHand     int64
	monitor      [][3]int64
	leaves       []int64
	buyOuts      []int64
	moved        []int64
	movedMoney   int64
	despawned    []int64
	deleted      []*Table
	destroyed    []int64
	statUpdates  int
	chatArchive  []string

	joined       int
	joinedMax    bool
	simultaneous int
	missedMax    int
	shuttingDown bool
	temporary    map[int64]bool
	tables       map[int64]*Table

	// buyInResult overrides the debited amount; -1 means echo the request.
	buyInResult int64
	seatRefused bool

	tourneyEndTurns    int
	tourneyStatUpdates int
	tourneyRebuys      int
	tourneyRebuying    map[int64]struct{}
}

func newStubFactory() *stubFactory {
	return &stubFactory{
		moneyUpdates: make(map[int64]int64),
		moneySets:    make(map[int64]int64),
		rake:         make(map[int64]int64),
		savedHands:   make(map[int64][]Event),
		loadHands:    make(map[int64][]Event),
		temporary:    make(map[int64]bool),
		tables:       make(map[int64]*Table),
		simultaneous: 4,
		missedMax:    5,
		buyInResult:  -1,
	}
}

func (f *stubFactory) DestroyTable(gameID int64) { f.destroyed = append(f.destroyed, gameID) }
func (f *stubFactory) DeleteTable(t *Table)      { f.deleted = append(f.deleted, t) }
func (f *stubFactory) DespawnTable(gameID int64) { f.despawned = append(f.despawned, gameID) }
func (f *stubFactory) GetTable(gameID int64) *Table {
	return f.tables[gameID]
}
func (f *stubFactory) EventTable(t *Table) {}

func (f *stubFactory) CreateHand(gameID int64, tourneySerial int64) (int64, error) {
	f.nextHand++
	return f.nextHand, nil
}

func (f *stubFactory) SaveHand(handSerial int64, compressed []Event) error {
	f.savedHands[handSerial] = compressed
	return nil
}

func (f *stubFactory) LoadHand(handSerial int64) ([]Event, error) {
	return f.loadHands[handSerial], nil
}

func (f *stubFactory) UpdatePlayerMoney(serial, gameID, amount int64) error {
	f.moneyUpdates[serial] += amount
	return nil
}

func (f *stubFactory) SetPlayerMoney(serial, gameID, money int64) error {
	f.moneySets[serial] = money
	return nil
}

func (f *stubFactory) UpdatePlayerRake(currencySerial, serial, amount int64) error {
	f.rake[serial] += amount
	return nil
}

func (f *stubFactory) BuyInPlayer(serial, gameID, currencySerial, amount int64) int64 {
	if f.buyInResult >= 0 {
		return f.buyInResult
	}
	return amount
}

func (f *stubFactory) SeatPlayer(serial, gameID, amount int64, minCurrency, minAmount int64) bool {
	return !f.seatRefused
}

func (f *stubFactory) LeavePlayer(serial, gameID, currencySerial int64) {
	f.leaves = append(f.leaves, serial)
}

func (f *stubFactory) BuyOutPlayer(serial, gameID, currencySerial int64) bool {
	f.buyOuts = append(f.buyOuts, serial)
	return true
}

func (f *stubFactory) MovePlayer(serial, fromGameID, toGameID int64) int64 {
	f.moved = append(f.moved, serial)
	return f.movedMoney
}

func (f *stubFactory) GetName(serial int64) string { return "" }
func (f *stubFactory) GetPlayerInfo(serial int64) PlayerInfo {
	return PlayerInfo{Serial: serial}
}
func (f *stubFactory) IsTemporaryUser(serial int64) bool { return f.temporary[serial] }
func (f *stubFactory) HasLadder() bool                   { return false }
func (f *stubFactory) GetLadder(gameID, currencySerial, serial int64) packet.Packet {
	return nil
}

func (f *stubFactory) JoinedCountReachedMax() bool { return f.joinedMax }
func (f *stubFactory) JoinedCountIncrease()        { f.joined++ }
func (f *stubFactory) JoinedCountDecrease()        { f.joined-- }
func (f *stubFactory) Simultaneous() int           { return f.simultaneous }
func (f *stubFactory) GetMissedRoundMax() int      { return f.missedMax }

func (f *stubFactory) TourneyEndTurn(tourney *Tourney, gameID int64)    { f.tourneyEndTurns++ }
func (f *stubFactory) TourneyUpdateStats(tourney *Tourney, gameID int64) { f.tourneyStatUpdates++ }
func (f *stubFactory) TourneyRebuyAllPlayers(tourney *Tourney, gameID int64) {
	f.tourneyRebuys++
}
func (f *stubFactory) TourneySerialsRebuying(tourney *Tourney, gameID int64) map[int64]struct{} {
	return f.tourneyRebuying
}

func (f *stubFactory) DatabaseEvent(event MonitorEvent, param1, param2, param3 int64) {
	f.monitor = append(f.monitor, [3]int64{param1, param2, param3})
}

func (f *stubFactory) UpdateTableStats(gameID int64, observers, waiting int) {
	f.statUpdates++
}

func (f *stubFactory) ChatMessageArchive(serial, gameID int64, message string) {
	f.chatArchive = append(f.chatArchive, message)
}

func (f *stubFactory) ChatFilter(message string) string { return message }

func (f *stubFactory) ShuttingDown() bool { return f.shuttingDown }

// newTestTable wires a stub engine and factory into a table with fast
// timeouts and autodeal off unless the test flips it on.
func newTestTable(cfg Config) (*Table, *stubEngine, *stubFactory) {
	engine := newStubEngine()
	factory := newStubFactory()
	if cfg.ID == 0 {
		cfg.ID = 1
	}
	if cfg.Name == "" {
		cfg.Name = "one"
	}
	if cfg.Variant == "" {
		cfg.Variant = "holdem"
	}
	if cfg.BettingStructure == "" {
		cfg.BettingStructure = "100-200_2000-20000_no-limit"
	}
	if cfg.Seats == 0 {
		cfg.Seats = 10
	}
	t := New(factory, engine, cfg)
	return t, engine, factory
}

// drainPackets empties an avatar's outbound queue.
func drainPackets(avatar *Avatar) []packet.Packet {
	var out []packet.Packet
	for {
		select {
		case p := <-avatar.Packets():
			out = append(out, p)
		default:
			return out
		}
	}
}

// packetTypes lists the packet types in order, for compact assertions.
func packetTypes(packets []packet.Packet) []packet.Type {
	out := make([]packet.Type, 0, len(packets))
	for _, p := range packets {
		out = append(out, p.PacketType())
	}
	return out
}

// hasPacket reports whether a packet of the type was delivered.
func hasPacket(packets []packet.Packet, typ packet.Type) bool {
	for _, p := range packets {
		if p.PacketType() == typ {
			return true
		}
	}
	return false
}
