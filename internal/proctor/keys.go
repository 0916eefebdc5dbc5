package proctor

import (
	"sort"
	"strconv"
	"strings"
)

type KeyEvent struct {
	Key   string `json:"key"`
	Code  string `json:"code,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
}

// Mouse buttons as reported by MouseEvent.button.
const (
	MouseLeft    = 0
	MouseMiddle  = 1
	MouseRight   = 2
	MouseBack    = 3
	MouseForward = 4
)

var blockedKeys = map[string]struct{}{
	"Tab": {}, "Escape": {}, "Esc": {}, "Delete": {}, "Insert": {},
	"Home": {}, "End": {}, "PageUp": {}, "PageDown": {},
	"PrintScreen": {}, "ScrollLock": {}, "Pause": {}, "ContextMenu": {},
	"Alt": {}, "AltGraph": {}, "Control": {}, "Meta": {}, "OS": {}, "Super": {}, "Hyper": {},
	"BrowserBack": {}, "BrowserForward": {}, "BrowserRefresh": {}, "BrowserHome": {},
	"BrowserSearch": {}, "BrowserFavorites": {}, "BrowserStop": {},
	"LaunchApplication1": {}, "LaunchApplication2": {}, "LaunchMail": {},
	"Help": {}, "Clear": {},
}

// InputPolicy is the blocked-input table sent to the client shell so it can
// cancel the default action locally.
type InputPolicy struct {
	BlockModifierCombos bool     `json:"blockModifierCombos"`
	BlockFunctionKeys   bool     `json:"blockFunctionKeys"`
	BlockContextMenu    bool     `json:"blockContextMenu"`
	BlockedKeys         []string `json:"blockedKeys"`
	BlockedMouseButtons []int    `json:"blockedMouseButtons"`
}

func DefaultInputPolicy() InputPolicy {
	keys := make([]string, 0, len(blockedKeys))
	for k := range blockedKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return InputPolicy{
		BlockModifierCombos: true,
		BlockFunctionKeys:   true,
		BlockContextMenu:    true,
		BlockedKeys:         keys,
		BlockedMouseButtons: []int{MouseMiddle, MouseRight, MouseBack, MouseForward},
	}
}

// IsBlockedKey reports whether a key press is suppressed during an interview.
// Shift on its own is ordinary typing and stays allowed.
func IsBlockedKey(e KeyEvent) bool {
	if e.Ctrl || e.Alt || e.Meta {
		return true
	}
	if isFunctionKey(e.Key) {
		return true
	}
	_, ok := blockedKeys[e.Key]
	return ok
}

func IsBlockedMouseButton(button int) bool {
	return button != MouseLeft
}

func isFunctionKey(key string) bool {
	if len(key) < 2 || !strings.HasPrefix(key, "F") {
		return false
	}
	n, err := strconv.Atoi(key[1:])
	return err == nil && n >= 1 && n <= 24
}
