package server

import (
	"time"

	"github.com/bystac/pokernetwork/pkg/table"
)

var _ table.Engine = (*stubTableEngine)(nil)

// stubTableEngine is the minimal engine needed to create a table against
// the factory; the table package holds the behavioral engine tests.
type stubTableEngine struct {
	id         int64
	name       string
	variant    string
	structure  string
	maxPlayers int
}

func newStubTableEngine() *stubTableEngine {
	return &stubTableEngine{maxPlayers: 10}
}

func (e *stubTableEngine) ID() int64                               { return e.id }
func (e *stubTableEngine) SetID(id int64)                          { e.id = id }
func (e *stubTableEngine) Name() string                            { return e.name }
func (e *stubTableEngine) SetName(name string)                     { e.name = name }
func (e *stubTableEngine) Variant() string                         { return e.variant }
func (e *stubTableEngine) SetVariant(v string)                     { e.variant = v }
func (e *stubTableEngine) BettingStructure() string                { return e.structure }
func (e *stubTableEngine) SetBettingStructure(s string)            { e.structure = s }
func (e *stubTableEngine) MaxPlayers() int                         { return e.maxPlayers }
func (e *stubTableEngine) SetMaxPlayers(seats int)                 { e.maxPlayers = seats }
func (e *stubTableEngine) SetForcedDealerSeat(int)                 {}
func (e *stubTableEngine) SetShuffler(table.Shuffler)              {}
func (e *stubTableEngine) SetTime(time.Time)                       {}
func (e *stubTableEngine) SetLevel(int)                            {}
func (e *stubTableEngine) Level() int                              { return 0 }
func (e *stubTableEngine) SetHandsCount(int)                       {}
func (e *stubTableEngine) HandsCount() int                         { return 0 }
func (e *stubTableEngine) RegisterCallback(table.EngineCallback)   {}
func (e *stubTableEngine) State() table.GameState                  { return table.GameStateNull }
func (e *stubTableEngine) IsRunning() bool                         { return false }
func (e *stubTableEngine) IsEndOrNull() bool                       { return true }
func (e *stubTableEngine) IsEndOrMuck() bool                       { return false }
func (e *stubTableEngine) IsTournament() bool                      { return false }
func (e *stubTableEngine) IsOpen() bool                            { return true }
func (e *stubTableEngine) HandSerial() int64                       { return 0 }
func (e *stubTableEngine) Seats() []int64                          { return make([]int64, e.maxPlayers) }
func (e *stubTableEngine) SeatsLeft() []int                        { return nil }
func (e *stubTableEngine) SerialsAll() []int64                     { return nil }
func (e *stubTableEngine) SerialsSit() []int64                     { return nil }
func (e *stubTableEngine) SerialsPlaying() []int64                 { return nil }
func (e *stubTableEngine) PlayersAll() []*table.Player             { return nil }
func (e *stubTableEngine) GetPlayer(int64) *table.Player           { return nil }
func (e *stubTableEngine) GetPlayerMoney(int64) int64              { return 0 }
func (e *stubTableEngine) IsSeated(int64) bool                     { return false }
func (e *stubTableEngine) IsSit(int64) bool                        { return false }
func (e *stubTableEngine) IsBroke(int64) bool                      { return false }
func (e *stubTableEngine) CanAddPlayer(int64) bool                 { return true }
func (e *stubTableEngine) IsRebuyPossible() bool                   { return false }
func (e *stubTableEngine) BuyIn() int64                            { return 0 }
func (e *stubTableEngine) BestBuyIn() int64                        { return 0 }
func (e *stubTableEngine) MaxBuyIn() int64                         { return 0 }
func (e *stubTableEngine) BetLimits() (int64, int64, int64)        { return 0, 0, 0 }
func (e *stubTableEngine) RoundCap() int                           { return 0 }
func (e *stubTableEngine) ChipUnit() int64                         { return 1 }
func (e *stubTableEngine) SerialInPosition() int64                 { return 0 }
func (e *stubTableEngine) MuckableSerials() []int64                { return nil }
func (e *stubTableEngine) History() []table.Event                  { return nil }
func (e *stubTableEngine) HistoryCanBeReduced() bool               { return false }
func (e *stubTableEngine) HistoryReduce()                          {}
func (e *stubTableEngine) BeginTurn(int64)                         {}
func (e *stubTableEngine) AddPlayer(int64, int) *table.Player      { return nil }
func (e *stubTableEngine) RemovePlayer(int64) bool                 { return false }
func (e *stubTableEngine) Sit(int64) bool                          { return false }
func (e *stubTableEngine) SitOut(int64) bool                       { return false }
func (e *stubTableEngine) SitOutNextTurn(int64) bool               { return false }
func (e *stubTableEngine) AutoPlayer(int64)                        {}
func (e *stubTableEngine) AutoBlindAnte(int64, bool)               {}
func (e *stubTableEngine) ComeBack(int64) bool                     { return false }
func (e *stubTableEngine) Muck(int64, bool)                        {}
func (e *stubTableEngine) Fold(int64) bool                         { return false }
func (e *stubTableEngine) Rebuy(int64, int64) bool                 { return false }
func (e *stubTableEngine) Open()                                   {}
func (e *stubTableEngine) Close()                                  {}
func (e *stubTableEngine) Reset()                                  {}
