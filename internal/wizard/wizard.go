// Package wizard runs the per-user dialogs that create, edit and test
// subscriptions. One session exists per (owner, chat); opening a new one
// replaces the old.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"drumbot/internal/domain"
	kit "drumbot/internal/transport"
	logx "drumbot/pkg/logx"
)

// Messenger is the chat side of a dialog.
type Messenger interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	DeleteMessages(ctx context.Context, chatID int64, ids []int) error
	kit.Directory
}

type Store interface {
	Upsert(ctx context.Context, sub domain.Subscription) error
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Subscription, error)
}

type Timers interface {
	Register(dest int64, hhmm string) error
	Reconcile(ctx context.Context, dest int64) error
}

type Poster interface {
	SendNowPlaying(ctx context.Context, dest int64) error
}

type Deps struct {
	Chat   Messenger
	Store  Store
	Timers Timers
	Poster Poster
}

type Wizard struct {
	deps Deps
	log  logx.Logger

	mu       sync.Mutex
	sessions map[Key]*session
}

func New(deps Deps, log logx.Logger) *Wizard {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Wizard{deps: deps, log: log, sessions: map[Key]*session{}}
}

// Begin opens a session for key, discarding any session the key already had.
// cmdMsgID is the id of the command message, deleted with the dialog on cleanup.
func (w *Wizard) Begin(ctx context.Context, key Key, threadID int, flow Flow, cmdMsgID int) {
	s := &session{key: key, threadID: threadID, flow: flow, state: Start}
	s.track(cmdMsgID)

	w.mu.Lock()
	if old, ok := w.sessions[key]; ok {
		old.closed.Store(true)
		w.log.Debug("wizard session superseded", logx.Int64("owner", key.OwnerID), logx.String("state", old.state.String()))
	}
	w.sessions[key] = s
	w.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	switch flow {
	case FlowAdd:
		w.enterAwaitDestination(ctx, s)
	case FlowEdit:
		w.enterList(ctx, s, AwaitEditTarget)
	case FlowTest:
		w.enterList(ctx, s, AwaitTestTarget)
	}
	w.finish(s)
}

// Handle feeds one input to the key's session. It reports false when the
// key has no open session, so the caller can treat the input otherwise.
// msgID is the user's message for text input (tracked for cleanup).
func (w *Wizard) Handle(ctx context.Context, key Key, in Input, msgID int) bool {
	w.mu.Lock()
	s, ok := w.sessions[key]
	w.mu.Unlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	if in.Kind == InputText {
		s.track(msgID)
	}
	if in.Kind == InputSignal && in.Signal == Cancel {
		w.cancel(ctx, s)
		w.finish(s)
		return true
	}

	before := s.state
	switch s.state {
	case AwaitDestination:
		w.onDestination(ctx, s, in)
	case AwaitPolicy:
		w.onPolicy(ctx, s, in)
	case AwaitDefaultTimeConfirm:
		w.onDefaultTime(ctx, s, in)
	case AwaitExtraParam:
		w.onExtraParam(ctx, s, in)
	case AwaitCleanupChoice:
		w.onCleanup(ctx, s, in)
	case AwaitEditTarget, AwaitTestTarget:
		w.onListPick(ctx, s, in)
	default:
		w.log.Warn("wizard input in unexpected state", logx.String("state", s.state.String()))
	}
	if s.state != before {
		w.log.Debug("wizard transition",
			logx.Int64("owner", key.OwnerID),
			logx.String("flow", s.flow.String()),
			logx.String("from", before.String()),
			logx.String("to", s.state.String()),
		)
	}
	w.finish(s)
	return true
}

// Cancel ends the key's session, if any, as /cancel does.
func (w *Wizard) Cancel(ctx context.Context, key Key) bool {
	return w.Handle(ctx, key, SignalInput(Cancel), 0)
}

// Active returns the state of the key's open session.
func (w *Wizard) Active(key Key) (State, bool) {
	w.mu.Lock()
	s, ok := w.sessions[key]
	w.mu.Unlock()
	if !ok {
		return Start, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, true
}

// Draft returns a copy of the key's draft.
func (w *Wizard) Draft(key Key) (Draft, bool) {
	w.mu.Lock()
	s, ok := w.sessions[key]
	w.mu.Unlock()
	if !ok {
		return Draft{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft, true
}

// finish tears the session down once it reached a terminal state.
func (w *Wizard) finish(s *session) {
	if !s.state.Terminal() {
		return
	}
	s.closed.Store(true)
	w.mu.Lock()
	if w.sessions[s.key] == s {
		delete(w.sessions, s.key)
	}
	w.mu.Unlock()
	w.log.Debug("wizard session closed",
		logx.Int64("owner", s.key.OwnerID),
		logx.String("flow", s.flow.String()),
		logx.String("state", s.state.String()),
	)
}

func (w *Wizard) cancel(ctx context.Context, s *session) {
	if s.state == AwaitCleanupChoice {
		// already saved; cancelling here just keeps the messages
		s.state = Completed
		return
	}
	w.say(ctx, s, msgCancelled, nil, false)
	s.state = Cancelled
}

// say sends a message into the session's chat. Prompts are tracked so the
// cleanup step can delete them.
func (w *Wizard) say(ctx context.Context, s *session, text string, markup *tele.ReplyMarkup, track bool) {
	var opt *kit.SendOptions
	if markup != nil {
		opt = &kit.SendOptions{ReplyMarkupAdapter: markup}
	}
	ref, err := w.deps.Chat.SendText(ctx, kit.ChatTarget{ChatID: s.key.ChatID, ThreadID: s.threadID}, text, opt)
	if err != nil {
		w.log.Warn("wizard reply failed", logx.Int64("chat", s.key.ChatID), logx.Err(err))
		return
	}
	if track {
		s.track(ref.MessageID)
	}
}

func (w *Wizard) hint(ctx context.Context, s *session) {
	w.say(ctx, s, msgUseButtons, nil, true)
}

func (w *Wizard) enterAwaitDestination(ctx context.Context, s *session) {
	w.say(ctx, s, msgAskDestination, cancelMarkup(), true)
	s.state = AwaitDestination
}

func (w *Wizard) enterPolicy(ctx context.Context, s *session, prompt string) {
	w.say(ctx, s, prompt, policyMarkup(), true)
	s.state = AwaitPolicy
}

func (w *Wizard) enterList(ctx context.Context, s *session, state State) {
	subs, err := w.deps.Store.ListByOwner(ctx, s.key.OwnerID)
	if err != nil {
		w.log.Error("wizard: list subscriptions failed", logx.Int64("owner", s.key.OwnerID), logx.Err(err))
		w.say(ctx, s, msgSaveFailed, nil, false)
		s.state = Failed
		return
	}
	if len(subs) == 0 {
		w.say(ctx, s, msgNoSubscriptions, nil, false)
		s.state = Cancelled
		return
	}
	s.choices = subs
	s.state = state
	w.showList(ctx, s)
}

func (w *Wizard) showList(ctx context.Context, s *session) {
	prompt := msgPickEdit
	if s.state == AwaitTestTarget {
		prompt = msgPickTest
	}
	markup, page := listMarkup(s.choices, s.page)
	s.page = page
	w.say(ctx, s, prompt, markup, true)
}

func (w *Wizard) onDestination(ctx context.Context, s *session, in Input) {
	if in.Kind != InputText {
		w.hint(ctx, s)
		return
	}
	dest, err := w.lookup(ctx, in.Text)
	if err != nil {
		w.log.Info("wizard: destination rejected",
			logx.Int64("owner", s.key.OwnerID),
			logx.String("input", in.Text),
			logx.Err(err),
		)
		text := msgNotFound
		if errors.Is(err, errNoRights) {
			text = msgNoRights
		}
		w.say(ctx, s, text, nil, false)
		w.deleteDialog(ctx, s)
		s.state = Cancelled
		return
	}
	s.draft.DestinationID = dest
	s.draft.DestinationTitle = ""
	w.enterPolicy(ctx, s, msgAskPolicy)
}

var errNoRights = fmt.Errorf("%w: bot cannot post", domain.ErrLookup)

func (w *Wizard) lookup(ctx context.Context, ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, fmt.Errorf("%w: empty destination", domain.ErrLookup)
	}
	dest, err := w.deps.Chat.ResolveDestination(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("%w: resolve %q: %v", domain.ErrLookup, ref, err)
	}
	ok, err := w.deps.Chat.CheckPostingRights(ctx, dest)
	if err != nil {
		return 0, fmt.Errorf("%w: rights of %d: %v", domain.ErrLookup, dest, err)
	}
	if !ok {
		return 0, errNoRights
	}
	return dest, nil
}

func (w *Wizard) onPolicy(ctx context.Context, s *session, in Input) {
	if in.Kind != InputSignal {
		w.hint(ctx, s)
		return
	}
	switch in.Signal {
	case Back:
		if s.flow == FlowEdit {
			s.state = AwaitEditTarget
			w.showList(ctx, s)
			return
		}
		w.enterAwaitDestination(ctx, s)
	case PickAllShows:
		s.draft.Policy, s.draft.Param = domain.PolicyAllShows, ""
		w.confirm(ctx, s)
	case PickDisabled:
		s.draft.Policy, s.draft.Param = domain.PolicyDisabled, ""
		w.confirm(ctx, s)
	case PickDailyFixedTime:
		s.draft.Policy, s.draft.Param = domain.PolicyDailyFixedTime, ""
		w.say(ctx, s, msgAskDefaultTime, defaultTimeMarkup(), true)
		s.state = AwaitDefaultTimeConfirm
	case PickKeywordMatch:
		s.draft.Policy, s.draft.Param = domain.PolicyKeywordMatch, ""
		w.say(ctx, s, msgAskKeyword, paramMarkup(), true)
		s.state = AwaitExtraParam
	case SignalNone, Cancel, UseDefaultTime, CustomTime, DeleteMessages, KeepMessages, NextPage, PrevPage:
		w.hint(ctx, s)
	}
}

func (w *Wizard) onDefaultTime(ctx context.Context, s *session, in Input) {
	if in.Kind != InputSignal {
		w.hint(ctx, s)
		return
	}
	switch in.Signal {
	case UseDefaultTime:
		s.draft.Param = domain.DefaultDailyTime
		w.confirm(ctx, s)
	case CustomTime:
		w.say(ctx, s, msgAskTime, paramMarkup(), true)
		s.state = AwaitExtraParam
	case SignalNone, PickAllShows, PickDailyFixedTime, PickKeywordMatch, PickDisabled,
		Back, Cancel, DeleteMessages, KeepMessages, NextPage, PrevPage:
		w.hint(ctx, s)
	}
}

func (w *Wizard) onExtraParam(ctx context.Context, s *session, in Input) {
	if in.Kind == InputSignal && in.Signal == Back {
		s.draft.Param = ""
		w.enterPolicy(ctx, s, msgAskPolicy)
		return
	}
	if in.Kind != InputText {
		w.hint(ctx, s)
		return
	}
	text := strings.TrimSpace(in.Text)
	switch s.draft.Policy {
	case domain.PolicyDailyFixedTime:
		if _, _, err := domain.ParseTimeOfDay(text); err != nil {
			w.say(ctx, s, msgBadTime, paramMarkup(), true)
			return
		}
	case domain.PolicyKeywordMatch:
		if text == "" {
			w.say(ctx, s, msgEmptyKeyword, paramMarkup(), true)
			return
		}
	default:
		w.log.Error("wizard: extra param for policy without one", logx.String("policy", s.draft.Policy.String()))
		s.state = Failed
		return
	}
	s.draft.Param = text
	w.confirm(ctx, s)
}

// confirm stores the draft and moves to the cleanup question.
func (w *Wizard) confirm(ctx context.Context, s *session) {
	s.state = Confirming
	d := &s.draft
	if d.DestinationTitle == "" {
		if title, err := w.deps.Chat.ChatTitle(ctx, d.DestinationID); err == nil {
			d.DestinationTitle = title
		} else {
			w.log.Debug("wizard: chat title unavailable", logx.Int64("dest", d.DestinationID), logx.Err(err))
		}
	}
	handle, err := w.deps.Chat.UserHandle(ctx, s.key.OwnerID)
	if err != nil || handle == "" {
		// Owners without a username are still listed by their numeric id.
		w.log.Debug("wizard: owner handle unavailable", logx.Int64("owner", s.key.OwnerID), logx.Err(err))
		handle = strconv.FormatInt(s.key.OwnerID, 10)
	}
	sub := domain.Subscription{
		OwnerID:          s.key.OwnerID,
		DestinationID:    d.DestinationID,
		Policy:           d.Policy,
		PolicyParam:      d.Param,
		DestinationTitle: d.DestinationTitle,
		OwnerHandle:      handle,
	}
	if err := w.deps.Store.Upsert(ctx, sub); err != nil {
		w.log.Error("wizard: save subscription failed",
			logx.Int64("owner", sub.OwnerID),
			logx.Int64("dest", sub.DestinationID),
			logx.Err(err),
		)
		w.say(ctx, s, msgSaveFailed, nil, false)
		s.state = Failed
		return
	}
	w.log.Info("subscription saved",
		logx.Int64("owner", sub.OwnerID),
		logx.Int64("dest", sub.DestinationID),
		logx.String("policy", sub.Policy.String()),
		logx.String("param", sub.PolicyParam),
		logx.String("flow", s.flow.String()),
	)

	w.say(ctx, s, confirmText(s.flow, *d), nil, false)
	if err := w.syncTimer(ctx, sub); err != nil {
		w.log.Error("wizard: daily timer not updated", logx.Int64("dest", sub.DestinationID), logx.Err(err))
		w.say(ctx, s, msgTimerFailed, nil, false)
	}
	w.say(ctx, s, msgAskCleanup, cleanupMarkup(), true)
	s.state = AwaitCleanupChoice
}

func (w *Wizard) syncTimer(ctx context.Context, sub domain.Subscription) error {
	if w.deps.Timers == nil {
		return nil
	}
	if sub.Policy == domain.PolicyDailyFixedTime {
		return w.deps.Timers.Register(sub.DestinationID, sub.PolicyParam)
	}
	return w.deps.Timers.Reconcile(ctx, sub.DestinationID)
}

func (w *Wizard) onCleanup(ctx context.Context, s *session, in Input) {
	if in.Kind != InputSignal {
		w.hint(ctx, s)
		return
	}
	switch in.Signal {
	case DeleteMessages:
		w.deleteDialog(ctx, s)
		s.state = Completed
	case KeepMessages:
		w.say(ctx, s, msgCleanupKept, nil, false)
		s.state = Completed
	case SignalNone, PickAllShows, PickDailyFixedTime, PickKeywordMatch, PickDisabled,
		Back, Cancel, UseDefaultTime, CustomTime, NextPage, PrevPage:
		w.hint(ctx, s)
	}
}

func (w *Wizard) deleteDialog(ctx context.Context, s *session) {
	if len(s.msgIDs) == 0 {
		return
	}
	if err := w.deps.Chat.DeleteMessages(ctx, s.key.ChatID, s.msgIDs); err != nil {
		w.log.Debug("wizard: some dialog messages not deleted", logx.Int("count", len(s.msgIDs)), logx.Err(err))
	}
	s.msgIDs = nil
}

func (w *Wizard) onListPick(ctx context.Context, s *session, in Input) {
	switch in.Kind {
	case InputSignal:
		switch in.Signal {
		case NextPage:
			s.page++
			w.showList(ctx, s)
		case PrevPage:
			s.page--
			w.showList(ctx, s)
		case SignalNone, PickAllShows, PickDailyFixedTime, PickKeywordMatch, PickDisabled,
			Back, Cancel, UseDefaultTime, CustomTime, DeleteMessages, KeepMessages:
			w.hint(ctx, s)
		}
		return
	case InputPick:
	default:
		w.hint(ctx, s)
		return
	}

	sub, ok := s.choice(in.DestinationID)
	if !ok {
		w.say(ctx, s, msgUnknownSelection, nil, true)
		return
	}
	if s.state == AwaitTestTarget {
		if err := w.deps.Poster.SendNowPlaying(ctx, sub.DestinationID); err != nil {
			w.log.Warn("test post failed", logx.Int64("dest", sub.DestinationID), logx.Err(err))
			w.say(ctx, s, msgTestFailed, nil, false)
		} else {
			w.say(ctx, s, msgTestSent, nil, false)
		}
		s.state = Completed
		return
	}
	s.draft = Draft{DestinationID: sub.DestinationID, DestinationTitle: sub.DestinationTitle}
	w.enterPolicy(ctx, s, editPrompt(s.draft, sub))
}
