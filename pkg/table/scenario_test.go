package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bystac/pokernetwork/pkg/packet"
)

// TestTwoPlayerAllInHand drives a complete heads-up all-in hand through
// the update cycle: both stacks in, showdown, one winner, persistence,
// and the next deal scheduled.
func TestTwoPlayerAllInHand(t *testing.T) {
	tbl, engine, factory := newTestTable(Config{
		ID:       1,
		Autodeal: true,
		Delays: DelaysConfig{
			Autodeal:      10 * time.Second,
			AutodealCheck: 15 * time.Second,
		},
	})

	alice := NewAvatar(1, "alice")
	bob := NewAvatar(2, "bob")
	engine.addSeated(1, 200000)
	engine.addSeated(2, 200000)
	require.True(t, tbl.JoinPlayer(alice))
	require.True(t, tbl.JoinPlayer(bob))
	drainPackets(alice)
	drainPackets(bob)

	// bob never confirms ready, so the next deal waits on the accumulator
	engine.GetPlayer(2).UserData().Ready = false

	// pin the clock so the delay arithmetic is exact
	start := time.Now()
	tbl.now = func() time.Time { return start }

	engine.handSerial = 77
	engine.state = GameStateEnd
	engine.history = []Event{
		GameEvent{
			HandSerial:   77,
			PlayerList:   []int64{1, 2},
			Dealer:       0,
			Serial2Chips: map[int64]int64{1: 200000, 2: 200000},
		},
		BlindEvent{Serial: 1, Amount: 1000},
		BlindEvent{Serial: 2, Amount: 2000},
		RoundEvent{Name: "pre-flop", Pockets: Pockets{1: {"Ah", "Ad"}, 2: {"Kh", "Kd"}}},
		RaiseEvent{Serial: 1, Amount: 199000},
		AllInEvent{Serial: 1},
		CallEvent{Serial: 2, Amount: 198000},
		AllInEvent{Serial: 2},
		ShowdownEvent{
			Board:   []string{"2c", "7d", "9h", "Js", "3s"},
			Pockets: Pockets{1: {"Ah", "Ad"}, 2: {"Kh", "Kd"}},
		},
		RakeEvent{Amount: 2000, Serial2Rake: map[int64]int64{1: 2000}},
		EndEvent{
			Winners: []int64{1},
			ShowdownStack: []GameStateSnapshot{
				{Type: "game_state", Serial2Share: map[int64]int64{1: 398000}},
			},
		},
		FinishEvent{HandSerial: 77},
	}

	require.Equal(t, UpdateOK, tbl.Update())

	// zero-sum money movement modulo rake
	assert.Equal(t, int64(-1000-199000+398000), factory.moneyUpdates[1])
	assert.Equal(t, int64(-2000-198000), factory.moneyUpdates[2])
	assert.Equal(t, int64(2000), factory.rake[1])
	var total int64
	for _, delta := range factory.moneyUpdates {
		total += delta
	}
	assert.Equal(t, int64(-2000), total, "the table only loses the rake")

	// both clients saw the win
	alicePackets := drainPackets(alice)
	bobPackets := drainPackets(bob)
	assert.True(t, hasPacket(alicePackets, packet.TypeWin))
	assert.True(t, hasPacket(bobPackets, packet.TypeWin))

	// alice sees her own pockets, bob sees them face down
	for _, p := range alicePackets {
		if cards, ok := p.(packet.PlayerCards); ok && cards.Serial == 1 {
			assert.Equal(t, []string{"Ah", "Ad"}, cards.Cards)
		}
	}
	for _, p := range bobPackets {
		if cards, ok := p.(packet.PlayerCards); ok && cards.Serial == 1 {
			assert.Nil(t, cards.Cards)
		}
	}

	// the hand is durable: compressed blob, stats, monitor event
	require.Contains(t, factory.savedHands, int64(77))
	require.Len(t, factory.monitor, 1)
	assert.Equal(t, [3]int64{77, 0, 1}, factory.monitor[0])

	// table back to idle, next deal scheduled off the accumulator
	tbl.mu.Lock()
	assert.True(t, tbl.timers.dealArmed())
	assert.Equal(t, tbl.cfg.Delays.Autodeal, tbl.delayAccum)
	assert.Equal(t, len(engine.history), tbl.historyIndex)
	tbl.mu.Unlock()
}

// TestHandReplayStream verifies a stored hand replays to one session with
// that session's pockets visible.
func TestHandReplayStream(t *testing.T) {
	tbl, engine, factory := newTestTable(Config{})
	avatar := NewAvatar(1, "alice")
	require.True(t, tbl.JoinPlayer(avatar))
	drainPackets(avatar)

	factory.loadHands[5] = []Event{
		GameEvent{
			HandSerial:   5,
			Variant:      "holdem",
			Structure:    "100-200_2000-20000_no-limit",
			PlayerList:   []int64{1, 2},
			Serial2Chips: map[int64]int64{1: 1000, 2: 2000},
		},
		RoundEvent{Name: "pre-flop", Pockets: Pockets{1: {"Ah", "Ad"}, 2: {"Kh", "Kd"}}},
		FoldEvent{Serial: 2},
		EndEvent{Winners: []int64{1}},
	}

	require.True(t, tbl.HandReplay(avatar, 5))

	assert.True(t, engine.IsSeated(1))
	assert.Equal(t, int64(1000), engine.GetPlayer(1).Money)
	assert.Equal(t, "*REPLAY*", engine.name)

	packets := drainPackets(avatar)
	assert.True(t, hasPacket(packets, packet.TypeStart))
	var sawOwnCards bool
	for _, p := range packets {
		if cards, ok := p.(packet.PlayerCards); ok {
			switch cards.Serial {
			case 1:
				sawOwnCards = true
				assert.NotNil(t, cards.Cards)
			default:
				assert.Nil(t, cards.Cards)
			}
		}
	}
	assert.True(t, sawOwnCards)

	require.False(t, tbl.HandReplay(avatar, 6), "missing hand refuses the replay")
}
