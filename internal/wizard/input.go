package wizard

import (
	"strconv"

	"drumbot/pkg/tgui"
)

// CallbackPrefix marks inline button data owned by the wizard.
const CallbackPrefix = "wiz"

// Signal is a button press. The set is closed; every state switches over
// the signals it accepts and rejects the rest.
type Signal int

const (
	SignalNone Signal = iota
	PickAllShows
	PickDailyFixedTime
	PickKeywordMatch
	PickDisabled
	Back
	Cancel
	UseDefaultTime
	CustomTime
	DeleteMessages
	KeepMessages
	NextPage
	PrevPage
)

var signalNames = map[Signal]string{
	PickAllShows:       "all_shows",
	PickDailyFixedTime: "daily_info",
	PickKeywordMatch:   "keyword_show",
	PickDisabled:       "no_posts",
	Back:               "back",
	Cancel:             "cancel",
	UseDefaultTime:     "default_time",
	CustomTime:         "custom_time",
	DeleteMessages:     "delete",
	KeepMessages:       "keep",
	NextPage:           "next",
	PrevPage:           "prev",
}

var signalByName = func() map[string]Signal {
	m := make(map[string]Signal, len(signalNames))
	for s, n := range signalNames {
		m[n] = s
	}
	return m
}()

func (s Signal) String() string {
	if n, ok := signalNames[s]; ok {
		return n
	}
	return "none"
}

type InputKind int

const (
	InputText InputKind = iota + 1
	InputSignal
	InputPick
)

// Input is one user action fed to a session: typed text, a button signal,
// or a destination picked from a list.
type Input struct {
	Kind          InputKind
	Text          string
	Signal        Signal
	DestinationID int64
}

func TextInput(s string) Input   { return Input{Kind: InputText, Text: s} }
func SignalInput(s Signal) Input { return Input{Kind: InputSignal, Signal: s} }
func PickInput(dest int64) Input { return Input{Kind: InputPick, DestinationID: dest} }

func signalData(s Signal) string {
	return tgui.Data(CallbackPrefix, s.String(), "")
}

func pickData(dest int64) string {
	return tgui.Data(CallbackPrefix, "pick", strconv.FormatInt(dest, 10))
}

// ParseCallback decodes "wiz:<signal>" and "wiz:pick:<destination>" data.
func ParseCallback(data string) (Input, bool) {
	prefix, action, payload, ok := tgui.ParseData(data)
	if !ok || prefix != CallbackPrefix {
		return Input{}, false
	}
	if action == "pick" {
		id, err := strconv.ParseInt(payload, 10, 64)
		if err != nil || id == 0 {
			return Input{}, false
		}
		return PickInput(id), true
	}
	s, ok := signalByName[action]
	if !ok {
		return Input{}, false
	}
	return SignalInput(s), true
}
