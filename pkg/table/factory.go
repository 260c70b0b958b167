package table

import "github.com/bystac/pokernetwork/pkg/packet"

// MonitorEvent identifies a monitoring record emitted through the factory.
type MonitorEvent int

const (
	MonitorEventHand MonitorEvent = iota + 1
)

// PlayerInfo is the public identity the factory knows for a serial.
type PlayerInfo struct {
	Serial int64
	Name   string
	URL    string
	Outfit string
}

// TourneyState mirrors the tournament manager's coarse state.
type TourneyState string

const (
	TourneyStateRegistering TourneyState = "registering"
	TourneyStateRunning     TourneyState = "running"
	TourneyStateComplete    TourneyState = "complete"
)

// Tourney is the tournament link a closed table carries.
type Tourney struct {
	Serial int64
	State  TourneyState
}

// Factory is the shared service a table talks to for persistence, money
// movement, identity and tournament coordination. Implementations provide
// their own serialization; the table never calls it concurrently with
// itself.
type Factory interface {
	// Table management. DespawnTable and EventTable run while the calling
	// table holds its own lock: implementations unregister or notify and
	// must defer any call back into the table to another goroutine.
	DestroyTable(gameID int64)
	DeleteTable(t *Table)
	DespawnTable(gameID int64)
	GetTable(gameID int64) *Table
	EventTable(t *Table)

	// Hand lifecycle.
	CreateHand(gameID int64, tourneySerial int64) (int64, error)
	SaveHand(handSerial int64, compressed []Event) error
	LoadHand(handSerial int64) ([]Event, error)

	// Money.
	UpdatePlayerMoney(serial, gameID, amount int64) error
	SetPlayerMoney(serial, gameID, money int64) error
	UpdatePlayerRake(currencySerial, serial, amount int64) error
	BuyInPlayer(serial, gameID, currencySerial, amount int64) int64
	SeatPlayer(serial, gameID, amount int64, minCurrency, minAmount int64) bool
	LeavePlayer(serial, gameID, currencySerial int64)
	BuyOutPlayer(serial, gameID, currencySerial int64) bool
	// MovePlayer atomically moves the player's table money and returns the
	// post-move balance for consistency verification.
	MovePlayer(serial, fromGameID, toGameID int64) int64

	// Identity.
	GetName(serial int64) string
	GetPlayerInfo(serial int64) PlayerInfo
	IsTemporaryUser(serial int64) bool
	HasLadder() bool
	GetLadder(gameID, currencySerial, serial int64) packet.Packet

	// Server-wide limits.
	JoinedCountReachedMax() bool
	JoinedCountIncrease()
	JoinedCountDecrease()
	Simultaneous() int
	GetMissedRoundMax() int

	// Tournament hooks.
	TourneyEndTurn(tourney *Tourney, gameID int64)
	TourneyUpdateStats(tourney *Tourney, gameID int64)
	TourneyRebuyAllPlayers(tourney *Tourney, gameID int64)
	TourneySerialsRebuying(tourney *Tourney, gameID int64) map[int64]struct{}

	// Persistence and chat hooks.
	DatabaseEvent(event MonitorEvent, param1, param2, param3 int64)
	UpdateTableStats(gameID int64, observers, waiting int)
	ChatMessageArchive(serial, gameID int64, message string)
	ChatFilter(message string) string

	// ShuttingDown reports whether the server is draining tables.
	ShuttingDown() bool
}
