package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sweeney/defcon/internal/command"
)

// maxValueLen bounds inbound payloads.
const maxValueLen = 1000

var (
	// ErrValueTooLong is returned for oversized payloads.
	ErrValueTooLong = errors.New("value too long")
	// ErrNotString is returned when a JSON payload is not a string.
	ErrNotString = errors.New("expecting JSON string")
)

// Router applies inbound messages to the level store.
type Router struct {
	Topics Topics
	Store  command.Store
	// Resubscribe is called for the "connect" command.
	Resubscribe func() error
}

// Route handles one message. Topics it does not own are ignored.
//
//	<root>/command/<digit>   payload empty: set level; else assert/clear reason
//	<root>/command/connect   re-subscribe to the reason feeds
//	<reasons>/<digit>        same as a digit command
func (r *Router) Route(topic string, payload []byte) error {
	if suffix, ok := strings.CutPrefix(topic, r.Topics.CommandPrefix()); ok {
		if suffix == "connect" {
			if r.Resubscribe == nil {
				return nil
			}
			return r.Resubscribe()
		}
		return r.dispatch(suffix, payload)
	}

	if r.Topics.Reasons != "" {
		if target, ok := strings.CutPrefix(topic, r.Topics.Reasons+"/"); ok {
			return r.dispatch(target, payload)
		}
	}
	return nil
}

func (r *Router) dispatch(target string, payload []byte) error {
	value, err := decodeValue(payload)
	if err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return command.Dispatch(r.Store, target, value)
}

// decodeValue accepts either a JSON string or a bare value.
func decodeValue(payload []byte) (string, error) {
	if len(payload) > maxValueLen {
		return "", ErrValueTooLong
	}
	s := strings.TrimSpace(string(payload))
	if !strings.HasPrefix(s, `"`) {
		return s, nil
	}
	var v string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotString, err)
	}
	return v, nil
}
