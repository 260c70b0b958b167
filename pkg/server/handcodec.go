package server

import (
	"encoding/json"
	"fmt"

	"github.com/bystac/pokernetwork/pkg/table"
)

// eventEnvelope is the stored form of one history event.
type eventEnvelope struct {
	Tag  table.EventTag  `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeHistory serializes a compressed hand history for storage.
func EncodeHistory(events []table.Event) ([]byte, error) {
	envelopes := make([]eventEnvelope, 0, len(events))
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("encode %s event: %w", event.Tag(), err)
		}
		envelopes = append(envelopes, eventEnvelope{Tag: event.Tag(), Data: data})
	}
	return json.Marshal(envelopes)
}

// DecodeHistory restores a stored hand history.
func DecodeHistory(blob []byte) ([]table.Event, error) {
	var envelopes []eventEnvelope
	if err := json.Unmarshal(blob, &envelopes); err != nil {
		return nil, err
	}
	events := make([]table.Event, 0, len(envelopes))
	for _, envelope := range envelopes {
		event, err := decodeEvent(envelope)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func decodeAs[T table.Event](data json.RawMessage) (table.Event, error) {
	var event T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, err
		}
	}
	return event, nil
}

func decodeEvent(envelope eventEnvelope) (table.Event, error) {
	switch envelope.Tag {
	case table.TagGame:
		return decodeAs[table.GameEvent](envelope.Data)
	case table.TagWaitFor:
		return decodeAs[table.WaitForEvent](envelope.Data)
	case table.TagRebuy:
		return decodeAs[table.RebuyEvent](envelope.Data)
	case table.TagBuyOut:
		return decodeAs[table.BuyOutEvent](envelope.Data)
	case table.TagPlayerList:
		return decodeAs[table.PlayerListEvent](envelope.Data)
	case table.TagRound:
		return decodeAs[table.RoundEvent](envelope.Data)
	case table.TagShowdown:
		return decodeAs[table.ShowdownEvent](envelope.Data)
	case table.TagRake:
		return decodeAs[table.RakeEvent](envelope.Data)
	case table.TagMuck:
		return decodeAs[table.MuckEvent](envelope.Data)
	case table.TagPosition:
		return decodeAs[table.PositionEvent](envelope.Data)
	case table.TagBlindRequest:
		return decodeAs[table.BlindRequestEvent](envelope.Data)
	case table.TagWaitBlind:
		return decodeAs[table.WaitBlindEvent](envelope.Data)
	case table.TagBlind:
		return decodeAs[table.BlindEvent](envelope.Data)
	case table.TagAnteRequest:
		return decodeAs[table.AnteRequestEvent](envelope.Data)
	case table.TagAnte:
		return decodeAs[table.AnteEvent](envelope.Data)
	case table.TagAllIn:
		return decodeAs[table.AllInEvent](envelope.Data)
	case table.TagCall:
		return decodeAs[table.CallEvent](envelope.Data)
	case table.TagCheck:
		return decodeAs[table.CheckEvent](envelope.Data)
	case table.TagFold:
		return decodeAs[table.FoldEvent](envelope.Data)
	case table.TagRaise:
		return decodeAs[table.RaiseEvent](envelope.Data)
	case table.TagCanceled:
		return decodeAs[table.CanceledEvent](envelope.Data)
	case table.TagSitOut:
		return decodeAs[table.SitOutEvent](envelope.Data)
	case table.TagSit:
		return decodeAs[table.SitEvent](envelope.Data)
	case table.TagLeave:
		return decodeAs[table.LeaveEvent](envelope.Data)
	case table.TagEnd:
		return decodeAs[table.EndEvent](envelope.Data)
	case table.TagFinish:
		return decodeAs[table.FinishEvent](envelope.Data)
	default:
		return nil, fmt.Errorf("unknown stored event type %q", envelope.Tag)
	}
}
