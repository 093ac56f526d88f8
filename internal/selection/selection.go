// Package selection encodes and checks the interactive controls attached to
// search results.
//
// Each control carries "{action}:{userID}:{sourceID}", for example
// "yt:123456789:abc123xyz90". The action names the provider that resolves the
// source ID; the user ID is the member who ran the search. Only that member
// may activate the control.
package selection

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
)

var (
	// ErrUnauthorized is returned by [Authorize] when a control is activated
	// by someone other than the user it was built for.
	ErrUnauthorized = errors.New("selection: not allowed")

	// ErrMalformed is returned by [Decode] for payloads that are not controls.
	ErrMalformed = errors.New("selection: malformed control")

	// ErrUnknownAction is returned by [ProviderFor] for unmapped actions.
	ErrUnknownAction = errors.New("selection: unknown action")
)

// MaxLength is the longest payload Discord accepts as a component custom ID.
const MaxLength = 100

var controlPattern = regexp.MustCompile(`^([a-z]+):(\d+):([a-zA-Z0-9.\-_]+)$`)

// actions maps short control actions to provider names.
var actions = map[string]string{
	"yt":  "youtube",
	"ytm": "ytmusic",
}

// Control is one decoded selection control.
type Control struct {
	Action   string
	UserID   int64
	SourceID string
}

// Encode returns the control payload.
func (c Control) Encode() (string, error) {
	s := c.Action + ":" + strconv.FormatInt(c.UserID, 10) + ":" + c.SourceID
	if len(s) > MaxLength || !controlPattern.MatchString(s) {
		return "", fmt.Errorf("selection: encode %q: %w", s, ErrMalformed)
	}
	return s, nil
}

// Decode parses a control payload.
func Decode(payload string) (Control, error) {
	m := controlPattern.FindStringSubmatch(payload)
	if m == nil {
		return Control{}, fmt.Errorf("selection: decode %q: %w", payload, ErrMalformed)
	}
	uid, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Control{}, fmt.Errorf("selection: decode %q: %w: %w", payload, ErrMalformed, err)
	}
	return Control{Action: m[1], UserID: uid, SourceID: m[3]}, nil
}

// IsControl reports whether payload looks like a selection control.
func IsControl(payload string) bool { return controlPattern.MatchString(payload) }

// Authorize returns [ErrUnauthorized] unless userID built the control.
func Authorize(c Control, userID int64) error {
	if c.UserID != userID {
		return ErrUnauthorized
	}
	return nil
}

// ActionFor returns the control action for a provider name.
func ActionFor(providerName string) (string, bool) {
	for action, name := range actions {
		if name == providerName {
			return action, true
		}
	}
	return "", false
}

// ProviderFor returns the provider name behind a control action.
func ProviderFor(action string) (string, error) {
	name, ok := actions[action]
	if !ok {
		return "", fmt.Errorf("selection: %q: %w", action, ErrUnknownAction)
	}
	return name, nil
}

// Actions returns every known control action in sorted order.
func Actions() []string {
	return slices.Sorted(maps.Keys(actions))
}
