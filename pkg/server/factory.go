// Package server hosts the shared table factory: the sqlite-backed money
// ledger, hand archive and table registry every table talks to.
package server

import (
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/decred/slog"

	"github.com/bystac/pokernetwork/pkg/packet"
	"github.com/bystac/pokernetwork/pkg/server/internal/db"
	"github.com/bystac/pokernetwork/pkg/table"
)

// Config tunes the server-wide limits the factory enforces.
type Config struct {
	// MaxJoined caps the number of seated and observing sessions across
	// every table on the server.
	MaxJoined int
	// Simultaneous caps the number of tables one session may join.
	Simultaneous int
	// MissedRoundMax is the default sit-out kick threshold; tables can
	// override it in their descriptor.
	MissedRoundMax int
	// ChatFilter, when set, has every match replaced before relaying.
	ChatFilter *regexp.Regexp

	Log slog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxJoined <= 0 {
		c.MaxJoined = 4000
	}
	if c.Simultaneous <= 0 {
		c.Simultaneous = 4
	}
	if c.MissedRoundMax <= 0 {
		c.MissedRoundMax = 10
	}
	if c.Log == nil {
		c.Log = slog.Disabled
	}
}

// Server is the shared factory behind every table: registry, joined-count
// accounting, and the durable money and hand records.
type Server struct {
	log slog.Logger
	cfg Config
	db  *db.DB

	mu          sync.RWMutex
	tables      map[int64]*table.Table
	nextTableID int64
	joinedCount int

	shuttingDown atomic.Bool
}

var _ table.Factory = (*Server)(nil)

// New builds a factory over an open database.
func New(database *db.DB, cfg Config) *Server {
	cfg.applyDefaults()
	return &Server{
		log:    cfg.Log,
		cfg:    cfg,
		db:     database,
		tables: make(map[int64]*table.Table),
	}
}

// OpenDatabase opens (and migrates) the server database.
func OpenDatabase(path string) (*db.DB, error) {
	return db.NewDB(path)
}

// CreateTable builds a table over the given engine, registers it and
// returns it. A zero descriptor id gets the next free one.
func (s *Server) CreateTable(game table.Engine, cfg table.Config) *table.Table {
	s.mu.Lock()
	if cfg.ID == 0 {
		s.nextTableID++
		cfg.ID = s.nextTableID
	} else if cfg.ID > s.nextTableID {
		s.nextTableID = cfg.ID
	}
	t := table.New(s, game, cfg)
	s.tables[cfg.ID] = t
	s.mu.Unlock()
	s.log.Infof("created table %d (%s)", cfg.ID, cfg.Name)
	return t
}

// Tables snapshots the registry.
func (s *Server) Tables() []*table.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*table.Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	return out
}

// Shutdown flips the drain flag: no table deals another hand.
func (s *Server) Shutdown() {
	s.shuttingDown.Store(true)
	s.log.Infof("server shutting down, autodeal disabled")
}

// Close closes the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// CreateUser registers a user and returns its serial.
func (s *Server) CreateUser(name string, temporary bool) (int64, error) {
	return s.db.CreateUser(name, temporary)
}

// Deposit credits a user's bankroll.
func (s *Server) Deposit(serial, currencySerial, amount int64) error {
	return s.db.BankrollAdd(serial, currencySerial, amount)
}

// Bankroll returns a user's bankroll balance.
func (s *Server) Bankroll(serial, currencySerial int64) (int64, error) {
	return s.db.BankrollGet(serial, currencySerial)
}

// table.Factory: table management

// DestroyTable is the tournament bookkeeping point for a dying table.
func (s *Server) DestroyTable(gameID int64) {
	s.log.Debugf("destroy table %d", gameID)
}

// DeleteTable unregisters a table.
func (s *Server) DeleteTable(t *table.Table) {
	s.mu.Lock()
	delete(s.tables, t.ID())
	s.mu.Unlock()
}

// DespawnTable unregisters an idle table and tears it down. The teardown
// runs on its own goroutine: the caller still holds the table lock.
func (s *Server) DespawnTable(gameID int64) {
	s.mu.Lock()
	t, ok := s.tables[gameID]
	delete(s.tables, gameID)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.log.Infof("despawning table %d", gameID)
	go t.Destroy()
}

// GetTable resolves a registered table by id.
func (s *Server) GetTable(gameID int64) *table.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables[gameID]
}

// EventTable is raised after every broadcast; identification only, the
// table is locked by the caller.
func (s *Server) EventTable(t *table.Table) {
	s.log.Tracef("table %d event", t.ID())
}

// table.Factory: hand lifecycle

// CreateHand allocates a hand serial.
func (s *Server) CreateHand(gameID int64, tourneySerial int64) (int64, error) {
	return s.db.HandCreate(gameID, tourneySerial)
}

// SaveHand stores a compressed hand history.
func (s *Server) SaveHand(handSerial int64, compressed []table.Event) error {
	blob, err := EncodeHistory(compressed)
	if err != nil {
		return err
	}
	return s.db.HandSave(handSerial, string(blob))
}

// LoadHand restores a stored hand history.
func (s *Server) LoadHand(handSerial int64) ([]table.Event, error) {
	blob, err := s.db.HandLoad(handSerial)
	if err != nil {
		return nil, err
	}
	return DecodeHistory([]byte(blob))
}

// table.Factory: money

// UpdatePlayerMoney applies a per-hand delta to the player's table money.
func (s *Server) UpdatePlayerMoney(serial, gameID, amount int64) error {
	return s.db.TableMoneyAdd(serial, gameID, amount)
}

// SetPlayerMoney writes the player's table money outright.
func (s *Server) SetPlayerMoney(serial, gameID, money int64) error {
	return s.db.TableMoneySet(serial, gameID, money)
}

// UpdatePlayerRake accumulates rake against the player.
func (s *Server) UpdatePlayerRake(currencySerial, serial, amount int64) error {
	return s.db.RakeAdd(currencySerial, serial, amount)
}

// BuyInPlayer moves up to amount from the player's bankroll onto the
// table and returns what actually moved.
func (s *Server) BuyInPlayer(serial, gameID, currencySerial, amount int64) int64 {
	bankroll, err := s.db.BankrollGet(serial, currencySerial)
	if err != nil {
		s.log.Errorf("buyInPlayer: bankroll read for %d failed: %v", serial, err)
		return 0
	}
	if amount > bankroll {
		amount = bankroll
	}
	if amount <= 0 {
		return 0
	}
	if err := s.db.BankrollAdd(serial, currencySerial, -amount); err != nil {
		s.log.Errorf("buyInPlayer: bankroll debit for %d failed: %v", serial, err)
		return 0
	}
	if err := s.db.TableMoneyAdd(serial, gameID, amount); err != nil {
		s.log.Errorf("buyInPlayer: table credit for %d failed: %v", serial, err)
		return 0
	}
	return amount
}

// SeatPlayer admits a player to a seat: the bankroll (plus any money
// already on the table) must cover the minimum, and transient tables debit
// the buy-in immediately.
func (s *Server) SeatPlayer(serial, gameID, amount int64, minCurrency, minAmount int64) bool {
	bankroll, err := s.db.BankrollGet(serial, minCurrency)
	if err != nil {
		s.log.Errorf("seatPlayer: bankroll read for %d failed: %v", serial, err)
		return false
	}
	onTable, err := s.db.TableMoneyGet(serial, gameID)
	if err != nil {
		s.log.Errorf("seatPlayer: table money read for %d failed: %v", serial, err)
		return false
	}
	if bankroll+onTable < minAmount {
		s.log.Infof("seatPlayer: player %d cannot afford the buy-in (%d < %d)", serial, bankroll+onTable, minAmount)
		return false
	}
	if amount > 0 && s.BuyInPlayer(serial, gameID, minCurrency, amount) == 0 {
		return false
	}
	return true
}

// LeavePlayer settles the seat: table money goes back to the bankroll.
func (s *Server) LeavePlayer(serial, gameID, currencySerial int64) {
	money, err := s.db.TableMoneyDelete(serial, gameID)
	if err != nil {
		s.log.Errorf("leavePlayer: settle for %d failed: %v", serial, err)
		return
	}
	if money > 0 {
		if err := s.db.BankrollAdd(serial, currencySerial, money); err != nil {
			s.log.Errorf("leavePlayer: bankroll credit for %d failed: %v", serial, err)
		}
	}
}

// BuyOutPlayer cashes a seat out; the engine drops the seat at the end of
// the hand.
func (s *Server) BuyOutPlayer(serial, gameID, currencySerial int64) bool {
	money, err := s.db.TableMoneyDelete(serial, gameID)
	if err != nil {
		s.log.Errorf("buyOutPlayer: settle for %d failed: %v", serial, err)
		return false
	}
	if money > 0 {
		if err := s.db.BankrollAdd(serial, currencySerial, money); err != nil {
			s.log.Errorf("buyOutPlayer: bankroll credit for %d failed: %v", serial, err)
			return false
		}
	}
	return true
}

// MovePlayer atomically moves the player's table money to another table
// and returns the post-move balance.
func (s *Server) MovePlayer(serial, fromGameID, toGameID int64) int64 {
	money, err := s.db.TableMoneyMove(serial, fromGameID, toGameID)
	if err != nil {
		s.log.Errorf("movePlayer: move for %d failed: %v", serial, err)
		return 0
	}
	return money
}

// table.Factory: identity

// GetName resolves a serial to a display name.
func (s *Server) GetName(serial int64) string {
	name, err := s.db.UserName(serial)
	if err != nil {
		return ""
	}
	return name
}

// GetPlayerInfo resolves a serial's public identity.
func (s *Server) GetPlayerInfo(serial int64) table.PlayerInfo {
	return table.PlayerInfo{Serial: serial, Name: s.GetName(serial)}
}

// IsTemporaryUser reports whether the serial is a bot-class user.
func (s *Server) IsTemporaryUser(serial int64) bool {
	temporary, err := s.db.UserIsTemporary(serial)
	if err != nil {
		return false
	}
	return temporary
}

// HasLadder reports whether ladder rankings are available.
func (s *Server) HasLadder() bool { return false }

// GetLadder returns the ladder packet for a player; nil without a ladder.
func (s *Server) GetLadder(gameID, currencySerial, serial int64) packet.Packet {
	return nil
}

// table.Factory: server-wide limits

// JoinedCountReachedMax reports whether the server-wide session cap is
// reached.
func (s *Server) JoinedCountReachedMax() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joinedCount >= s.cfg.MaxJoined
}

// JoinedCountIncrease counts a session joining a table.
func (s *Server) JoinedCountIncrease() {
	s.mu.Lock()
	s.joinedCount++
	s.mu.Unlock()
}

// JoinedCountDecrease counts a session leaving a table.
func (s *Server) JoinedCountDecrease() {
	s.mu.Lock()
	s.joinedCount--
	s.mu.Unlock()
}

// Simultaneous returns the per-session table cap.
func (s *Server) Simultaneous() int { return s.cfg.Simultaneous }

// GetMissedRoundMax returns the default sit-out kick threshold.
func (s *Server) GetMissedRoundMax() int { return s.cfg.MissedRoundMax }

// table.Factory: tournament hooks

// TourneyEndTurn advances the tournament after a hand's end event.
func (s *Server) TourneyEndTurn(tourney *table.Tourney, gameID int64) {
	s.log.Debugf("tourney %d end turn on table %d", tourney.Serial, gameID)
}

// TourneyUpdateStats refreshes tournament standings after a hand.
func (s *Server) TourneyUpdateStats(tourney *table.Tourney, gameID int64) {
	s.log.Debugf("tourney %d update stats on table %d", tourney.Serial, gameID)
}

// TourneyRebuyAllPlayers applies tournament rebuy policy at end of hand.
func (s *Server) TourneyRebuyAllPlayers(tourney *table.Tourney, gameID int64) {
	s.log.Debugf("tourney %d rebuy players on table %d", tourney.Serial, gameID)
}

// TourneySerialsRebuying lists the serials a tournament is rebuying.
func (s *Server) TourneySerialsRebuying(tourney *table.Tourney, gameID int64) map[int64]struct{} {
	return nil
}

// table.Factory: persistence and chat hooks

// DatabaseEvent records a monitoring event.
func (s *Server) DatabaseEvent(event table.MonitorEvent, param1, param2, param3 int64) {
	if err := s.db.MonitorInsert(int64(event), param1, param2, param3); err != nil {
		s.log.Errorf("databaseEvent: %v", err)
	}
}

// UpdateTableStats records the observer and waiting counts.
func (s *Server) UpdateTableStats(gameID int64, observers, waiting int) {
	if err := s.db.TableStatsSet(gameID, observers, waiting); err != nil {
		s.log.Errorf("updateTableStats: %v", err)
	}
}

// ChatMessageArchive stores a relayed chat line.
func (s *Server) ChatMessageArchive(serial, gameID int64, message string) {
	if err := s.db.ChatInsert(serial, gameID, message); err != nil {
		s.log.Errorf("chatMessageArchive: %v", err)
	}
}

// ChatFilter rewrites filtered words before the relay.
func (s *Server) ChatFilter(message string) string {
	if s.cfg.ChatFilter == nil {
		return message
	}
	return s.cfg.ChatFilter.ReplaceAllString(message, "poker")
}

// ShuttingDown reports whether the server is draining tables.
func (s *Server) ShuttingDown() bool {
	return s.shuttingDown.Load()
}
