package redisstream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/trickstertwo/xhub"
)

// Field constants (avoid typos/allocs)
const (
	fieldTopic   = "topic"
	fieldKind    = "kind"
	fieldPayload = "payload"
	fieldID      = "id"
	fieldTime    = "time" // int64 ns

	kindStateChange = "state_change"
	kindStatus      = "status"
)

type wireStateChange struct {
	Entity string      `json:"entity"`
	Old    *xhub.State `json:"old,omitempty"`
	New    *xhub.State `json:"new,omitempty"`
}

// decodeEntry turns one stream entry into a routable (topic, event) pair.
// Values arrive from go-redis as strings.
func decodeEntry(values map[string]any) (string, *xhub.Event, error) {
	topic, _ := values[fieldTopic].(string)
	if topic == "" {
		return "", nil, fmt.Errorf("redisstream: entry missing topic field")
	}

	ev := &xhub.Event{Topic: topic}

	if id, _ := values[fieldID].(string); id != "" {
		ev.ID = id
	} else {
		ev.ID = uuid.NewString()
	}
	if ts, _ := values[fieldTime].(string); ts != "" {
		if ns, err := strconv.ParseInt(ts, 10, 64); err == nil {
			ev.Time = time.Unix(0, ns)
		}
	}

	raw, _ := values[fieldPayload].(string)
	if raw == "" {
		return topic, ev, nil
	}

	kind, _ := values[fieldKind].(string)
	payload, err := decodePayload(kind, []byte(raw))
	if err != nil {
		return "", nil, err
	}
	ev.Payload = payload
	return topic, ev, nil
}

func decodePayload(kind string, raw []byte) (any, error) {
	switch kind {
	case kindStateChange:
		var w wireStateChange
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("redisstream: decode state_change: %w", err)
		}
		entity, err := xhub.ParseEntityID(w.Entity)
		if err != nil {
			return nil, fmt.Errorf("redisstream: decode state_change: %w", err)
		}
		sc := xhub.StateChange{Entity: entity}
		if w.Old != nil {
			sc.Old = *w.Old
		}
		if w.New != nil {
			sc.New = *w.New
		}
		return sc, nil

	case kindStatus:
		var st xhub.Status
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, fmt.Errorf("redisstream: decode status: %w", err)
		}
		return st, nil

	default:
		var generic map[string]any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("redisstream: decode payload: %w", err)
		}
		return generic, nil
	}
}
