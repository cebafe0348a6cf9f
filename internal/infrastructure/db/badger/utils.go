package badgerdb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/raffle-network/raffled/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
					if logger != nil {
						logger.Errorf("%s", err)
					}
				}
			}
		}()
	}

	return db, nil
}

const (
	eventTypeRoundStarted      = "round_started"
	eventTypeEntrantRegistered = "entrant_registered"
	eventTypeDrawStarted       = "draw_started"
	eventTypeRoundFinalized    = "round_finalized"
	eventTypeRoundFailed       = "round_failed"
)

type eventEnvelope struct {
	Type    string
	Payload json.RawMessage
}

func serializeEvents(events []domain.RoundEvent) (*eventsDTO, error) {
	rawEvents := make([][]byte, 0, len(events))
	for _, event := range events {
		buf, err := serializeEvent(event)
		if err != nil {
			return nil, err
		}
		rawEvents = append(rawEvents, buf)
	}
	return &eventsDTO{rawEvents}, nil
}

func deserializeEvents(rawEvents [][]byte) ([]domain.RoundEvent, error) {
	events := make([]domain.RoundEvent, 0)
	for _, buf := range rawEvents {
		event, err := deserializeEvent(buf)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func serializeEvent(event domain.RoundEvent) ([]byte, error) {
	var eventType string
	switch event.(type) {
	case domain.RoundStarted:
		eventType = eventTypeRoundStarted
	case domain.EntrantRegistered:
		eventType = eventTypeEntrantRegistered
	case domain.DrawStarted:
		eventType = eventTypeDrawStarted
	case domain.RoundFinalized:
		eventType = eventTypeRoundFinalized
	case domain.RoundFailed:
		eventType = eventTypeRoundFailed
	default:
		return nil, fmt.Errorf("unknown event type %T", event)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelope{Type: eventType, Payload: payload})
}

func deserializeEvent(buf []byte) (domain.RoundEvent, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(buf, &envelope); err != nil {
		return nil, err
	}

	switch envelope.Type {
	case eventTypeRoundStarted:
		var event domain.RoundStarted
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	case eventTypeEntrantRegistered:
		var event domain.EntrantRegistered
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	case eventTypeDrawStarted:
		var event domain.DrawStarted
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	case eventTypeRoundFinalized:
		var event domain.RoundFinalized
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	case eventTypeRoundFailed:
		var event domain.RoundFailed
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	}

	return nil, fmt.Errorf("unknown event type %s", envelope.Type)
}
