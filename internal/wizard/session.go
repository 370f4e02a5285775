package wizard

import (
	"sync"
	"sync/atomic"

	"drumbot/internal/domain"
)

type State int

const (
	Start State = iota
	AwaitDestination
	AwaitPolicy
	AwaitDefaultTimeConfirm
	AwaitExtraParam
	Confirming
	AwaitCleanupChoice
	AwaitEditTarget
	AwaitTestTarget
	Completed
	Cancelled
	Failed
)

var stateNames = [...]string{
	Start:                   "start",
	AwaitDestination:        "await_destination",
	AwaitPolicy:             "await_policy",
	AwaitDefaultTimeConfirm: "await_default_time_confirm",
	AwaitExtraParam:         "await_extra_param",
	Confirming:              "confirming",
	AwaitCleanupChoice:      "await_cleanup_choice",
	AwaitEditTarget:         "await_edit_target",
	AwaitTestTarget:         "await_test_target",
	Completed:               "completed",
	Cancelled:               "cancelled",
	Failed:                  "failed",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal states end the session.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Flow is the command that opened a session.
type Flow int

const (
	FlowAdd Flow = iota
	FlowEdit
	FlowTest
)

func (f Flow) String() string {
	switch f {
	case FlowEdit:
		return "edit"
	case FlowTest:
		return "test"
	default:
		return "add"
	}
}

// Key identifies a session: one per owner per chat.
type Key struct {
	OwnerID int64
	ChatID  int64
}

// Draft is the subscription being assembled.
type Draft struct {
	DestinationID    int64
	DestinationTitle string
	Policy           domain.Policy
	Param            string
}

type session struct {
	mu sync.Mutex // serializes transitions of this session

	key      Key
	threadID int
	flow     Flow
	state    State
	draft    Draft
	page     int
	choices  []domain.Subscription // destinations offered by the edit/test lists
	msgIDs   []int

	// closed is set when the session ends or a newer one replaces it; inputs
	// that were already waiting on mu are then dropped.
	closed atomic.Bool
}

func (s *session) track(ids ...int) {
	for _, id := range ids {
		if id > 0 {
			s.msgIDs = append(s.msgIDs, id)
		}
	}
}

func (s *session) choice(dest int64) (domain.Subscription, bool) {
	for _, c := range s.choices {
		if c.DestinationID == dest {
			return c, true
		}
	}
	return domain.Subscription{}, false
}
