package tgui

import (
	"fmt"
	"strings"
)

// Data formats inline callback data as "prefix:action[:payload]".
// The payload is not escaped and may itself contain ':'.
func Data(prefix, action, payload string) string {
	prefix = strings.TrimSpace(prefix)
	action = strings.TrimSpace(action)
	if payload == "" {
		return prefix + ":" + action
	}
	return prefix + ":" + action + ":" + payload
}

// CheckData returns ErrCallbackDataTooLong when data exceeds Telegram's limit.
func CheckData(data string) error {
	if len(data) > MaxCallbackDataLen {
		return fmt.Errorf("%w: %d bytes", ErrCallbackDataTooLong, len(data))
	}
	return nil
}

// ParseData splits data built by Data. ok is false when there is no action part.
func ParseData(data string) (prefix, action, payload string, ok bool) {
	prefix, rest, found := strings.Cut(data, ":")
	if !found || prefix == "" || rest == "" {
		return "", "", "", false
	}
	action, payload, _ = strings.Cut(rest, ":")
	if action == "" {
		return "", "", "", false
	}
	return prefix, action, payload, true
}
