package wizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"drumbot/internal/domain"
	"drumbot/internal/storage"
	kit "drumbot/internal/transport"
	logx "drumbot/pkg/logx"
)

type fakeChat struct {
	mu      sync.Mutex
	nextID  int
	texts   []string
	deleted []int
	// handle -> chat id; chats in noRights resolve but cannot be posted to
	chats    map[string]int64
	noRights map[int64]bool
	noHandle bool
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		nextID:   1000,
		chats:    map[string]int64{"@x": -100, "@y": -200, "@ro": -300},
		noRights: map[int64]bool{-300: true},
	}
}

func (c *fakeChat) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.texts = append(c.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: c.nextID}, nil
}

func (c *fakeChat) DeleteMessages(_ context.Context, _ int64, ids []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, ids...)
	return nil
}

func (c *fakeChat) ResolveDestination(_ context.Context, ref string) (int64, error) {
	if id, ok := c.chats[ref]; ok {
		return id, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return id, nil
	}
	return 0, kit.ErrChatNotFound
}

func (c *fakeChat) CheckPostingRights(_ context.Context, id int64) (bool, error) {
	return !c.noRights[id], nil
}

func (c *fakeChat) ChatTitle(_ context.Context, id int64) (string, error) {
	if id == -100 {
		return "Drum Channel", nil
	}
	return "", errors.New("no title")
}

func (c *fakeChat) UserHandle(_ context.Context, id int64) (string, error) {
	if c.noHandle {
		return "", fmt.Errorf("%w: user %d has no username", kit.ErrChatNotFound, id)
	}
	return "@owner", nil
}

func (c *fakeChat) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.texts) == 0 {
		return ""
	}
	return c.texts[len(c.texts)-1]
}

func (c *fakeChat) said(s string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.texts {
		if t == s {
			return true
		}
	}
	return false
}

type fakeTimers struct {
	registered map[int64]string
	reconciled []int64
}

func (f *fakeTimers) Register(dest int64, hhmm string) error {
	f.registered[dest] = hhmm
	return nil
}

func (f *fakeTimers) Reconcile(_ context.Context, dest int64) error {
	f.reconciled = append(f.reconciled, dest)
	delete(f.registered, dest)
	return nil
}

type fakePoster struct{ dests []int64 }

func (p *fakePoster) SendNowPlaying(_ context.Context, dest int64) error {
	p.dests = append(p.dests, dest)
	return nil
}

type harness struct {
	w      *Wizard
	chat   *fakeChat
	store  *storage.Memory
	timers *fakeTimers
	poster *fakePoster
	key    Key
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		chat:   newFakeChat(),
		store:  storage.NewMemory(),
		timers: &fakeTimers{registered: map[int64]string{}},
		poster: &fakePoster{},
		key:    Key{OwnerID: 42, ChatID: 42},
	}
	h.w = New(Deps{Chat: h.chat, Store: h.store, Timers: h.timers, Poster: h.poster}, logx.Nop())
	return h
}

func (h *harness) text(t *testing.T, s string) {
	t.Helper()
	require.True(t, h.w.Handle(context.Background(), h.key, TextInput(s), 1), "no session for %q", s)
}

func (h *harness) signal(t *testing.T, s Signal) {
	t.Helper()
	require.True(t, h.w.Handle(context.Background(), h.key, SignalInput(s), 0), "no session for %v", s)
}

func (h *harness) state(t *testing.T) State {
	t.Helper()
	st, ok := h.w.Active(h.key)
	require.True(t, ok, "session expected")
	return st
}

func (h *harness) stored(t *testing.T, dest int64) domain.Subscription {
	t.Helper()
	sub, err := h.store.Get(context.Background(), h.key.OwnerID, dest)
	require.NoError(t, err)
	return sub
}

func TestAddKeywordFlow(t *testing.T) {
	h := newHarness(t)
	h.w.Begin(context.Background(), h.key, 0, FlowAdd, 7)
	require.Equal(t, AwaitDestination, h.state(t))

	h.text(t, "@x")
	require.Equal(t, AwaitPolicy, h.state(t))
	h.signal(t, PickKeywordMatch)
	require.Equal(t, AwaitExtraParam, h.state(t))
	h.text(t, "  jungle ")
	require.Equal(t, AwaitCleanupChoice, h.state(t))

	sub := h.stored(t, -100)
	require.Equal(t, domain.PolicyKeywordMatch, sub.Policy)
	require.Equal(t, "jungle", sub.PolicyParam)
	require.Equal(t, "Drum Channel", sub.DestinationTitle)
	require.Equal(t, "@owner", sub.OwnerHandle)
	require.Equal(t, []int64{-100}, h.timers.reconciled)
	require.True(t, h.chat.said("Канал «Drum Channel» добавлен с режимом 'keyword_show' (jungle)."))

	h.signal(t, KeepMessages)
	_, ok := h.w.Active(h.key)
	require.False(t, ok)
	require.Empty(t, h.chat.deleted)
}

func TestOwnerWithoutHandleIsStoredByID(t *testing.T) {
	h := newHarness(t)
	h.chat.noHandle = true
	h.w.Begin(context.Background(), h.key, 0, FlowAdd, 7)
	h.text(t, "@x")
	h.signal(t, PickAllShows)
	require.Equal(t, AwaitCleanupChoice, h.state(t))

	sub := h.stored(t, -100)
	require.Equal(t, "42", sub.OwnerHandle)
	require.NotEmpty(t, sub.OwnerHandle)
}

func TestBadTimeKeepsAwaitingParam(t *testing.T) {
	h := newHarness(t)
	h.w.Begin(context.Background(), h.key, 0, FlowAdd, 0)
	h.text(t, "-555")
	h.signal(t, PickDailyFixedTime)
	require.Equal(t, AwaitDefaultTimeConfirm, h.state(t))

	// free text is not accepted while the default-time question is open
	h.text(t, "08:00")
	require.Equal(t, AwaitDefaultTimeConfirm, h.state(t))
	require.Equal(t, msgUseButtons, h.chat.last())

	h.signal(t, CustomTime)
	require.Equal(t, AwaitExtraParam, h.state(t))
	for _, bad := range []string{"25:99", "7:30", "noon"} {
		h.text(t, bad)
		require.Equal(t, AwaitExtraParam, h.state(t))
		require.Equal(t, msgBadTime, h.chat.last())
	}
	subs, err := h.store.ListByOwner(context.Background(), h.key.OwnerID)
	require.NoError(t, err)
	require.Empty(t, subs)

	h.text(t, "07:30")
	require.Equal(t, AwaitCleanupChoice, h.state(t))
	require.Equal(t, "07:30", h.stored(t, -555).PolicyParam)
	require.Equal(t, "07:30", h.timers.registered[-555])
}

func TestDefaultTime(t *testing.T) {
	h := newHarness(t)
	h.w.Begin(context.Background(), h.key, 0, FlowAdd, 0)
	h.text(t, "@x")
	h.signal(t, PickDailyFixedTime)
	h.signal(t, UseDefaultTime)
	require.Equal(t, domain.DefaultDailyTime, h.stored(t, -100).PolicyParam)
	require.Equal(t, domain.DefaultDailyTime, h.timers.registered[-100])
}

func TestBackUsesNewDestination(t *testing.T) {
	h := newHarness(t)
	h.w.Begin(context.Background(), h.key, 0, FlowAdd, 0)
	h.text(t, "@x")
	h.signal(t, Back)
	require.Equal(t, AwaitDestination, h.state(t))
	d, _ := h.w.Draft(h.key)
	require.EqualValues(t, -100, d.DestinationID)

	h.text(t, "@y")
	h.signal(t, PickAllShows)

	sub := h.stored(t, -200)
	require.Equal(t, domain.PolicyAllShows, sub.Policy)
	_, err := h.store.Get(context.Background(), h.key.OwnerID, -100)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLookupFailuresCancel(t *testing.T) {
	for _, tc := range []struct {
		input string
		msg   string
	}{
		{"@missing", msgNotFound},
		{"@ro", msgNoRights},
	} {
		t.Run(tc.input, func(t *testing.T) {
			h := newHarness(t)
			h.w.Begin(context.Background(), h.key, 0, FlowAdd, 7)
			h.text(t, tc.input)
			_, ok := h.w.Active(h.key)
			require.False(t, ok)
			require.True(t, h.chat.said(tc.msg))
			require.Contains(t, h.chat.deleted, 7)
			require.False(t, h.w.Handle(context.Background(), h.key, TextInput("@x"), 0))
		})
	}
}

func TestUnexpectedInputIsRejected(t *testing.T) {
	h := newHarness(t)
	h.w.Begin(context.Background(), h.key, 0, FlowAdd, 0)
	h.signal(t, PickAllShows)
	require.Equal(t, AwaitDestination, h.state(t))

	h.text(t, "@x")
	h.text(t, "all shows please")
	require.Equal(t, AwaitPolicy, h.state(t))
	require.Equal(t, msgUseButtons, h.chat.last())

	h.w.Handle(context.Background(), h.key, PickInput(-100), 0)
	require.Equal(t, AwaitPolicy, h.state(t))
}

func TestCancelAndCleanup(t *testing.T) {
	h := newHarness(t)
	h.w.Begin(context.Background(), h.key, 0, FlowAdd, 7)
	h.text(t, "@x")
	require.True(t, h.w.Cancel(context.Background(), h.key))
	_, ok := h.w.Active(h.key)
	require.False(t, ok)
	require.Equal(t, msgCancelled, h.chat.last())
	require.False(t, h.w.Cancel(context.Background(), h.key))

	h.w.Begin(context.Background(), h.key, 0, FlowAdd, 9)
	h.text(t, "@x")
	h.signal(t, PickDisabled)
	h.signal(t, DeleteMessages)
	_, ok = h.w.Active(h.key)
	require.False(t, ok)
	require.Contains(t, h.chat.deleted, 9) // the /add command
	require.Contains(t, h.chat.deleted, 1) // the user's reply
	require.Greater(t, len(h.chat.deleted), 3)
	require.Equal(t, domain.PolicyDisabled, h.stored(t, -100).Policy)
}

func TestEditFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Upsert(ctx, domain.Subscription{OwnerID: 42, DestinationID: -100, Policy: domain.PolicyDailyFixedTime, PolicyParam: "09:00", DestinationTitle: "Drum Channel"}))
	require.NoError(t, h.store.Upsert(ctx, domain.Subscription{OwnerID: 42, DestinationID: -200, Policy: domain.PolicyAllShows}))

	h.w.Begin(ctx, h.key, 0, FlowEdit, 0)
	require.Equal(t, AwaitEditTarget, h.state(t))

	h.w.Handle(ctx, h.key, PickInput(-999), 0)
	require.Equal(t, AwaitEditTarget, h.state(t))

	h.w.Handle(ctx, h.key, PickInput(-100), 0)
	require.Equal(t, AwaitPolicy, h.state(t))
	require.True(t, strings.Contains(h.chat.last(), "daily_info (09:00)"))

	h.signal(t, Back)
	require.Equal(t, AwaitEditTarget, h.state(t))
	h.w.Handle(ctx, h.key, PickInput(-100), 0)
	h.signal(t, PickAllShows)

	require.Equal(t, domain.PolicyAllShows, h.stored(t, -100).Policy)
	require.Equal(t, []int64{-100}, h.timers.reconciled)
	require.True(t, h.chat.said("Режим канала «Drum Channel» изменен на 'all_shows'."))
}

func TestEditWithoutSubscriptions(t *testing.T) {
	h := newHarness(t)
	h.w.Begin(context.Background(), h.key, 0, FlowEdit, 0)
	_, ok := h.w.Active(h.key)
	require.False(t, ok)
	require.Equal(t, msgNoSubscriptions, h.chat.last())
}

func TestTestPostFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Upsert(ctx, domain.Subscription{OwnerID: 42, DestinationID: -100, Policy: domain.PolicyDisabled}))

	h.w.Begin(ctx, h.key, 0, FlowTest, 0)
	require.Equal(t, AwaitTestTarget, h.state(t))
	h.w.Handle(ctx, h.key, PickInput(-100), 0)

	require.Equal(t, []int64{-100}, h.poster.dests)
	require.Equal(t, msgTestSent, h.chat.last())
	_, ok := h.w.Active(h.key)
	require.False(t, ok)
}

func TestListPaging(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 1; i <= listPageSize+2; i++ {
		require.NoError(t, h.store.Upsert(ctx, domain.Subscription{OwnerID: 42, DestinationID: int64(-i), Policy: domain.PolicyAllShows}))
	}
	h.w.Begin(ctx, h.key, 0, FlowTest, 0)
	h.signal(t, NextPage)
	h.signal(t, NextPage)
	h.signal(t, PrevPage)
	require.Equal(t, AwaitTestTarget, h.state(t))
	h.w.mu.Lock()
	page := h.w.sessions[h.key].page
	h.w.mu.Unlock()
	require.Equal(t, 0, page)
}

func TestNewEntrySupersedes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.w.Begin(ctx, h.key, 0, FlowAdd, 0)
	h.text(t, "@x")
	require.Equal(t, AwaitPolicy, h.state(t))

	h.w.Begin(ctx, h.key, 0, FlowAdd, 0)
	require.Equal(t, AwaitDestination, h.state(t))
	d, _ := h.w.Draft(h.key)
	require.Zero(t, d.DestinationID)
}

func TestSessionsAreIndependent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	other := Key{OwnerID: 7, ChatID: 7}

	h.w.Begin(ctx, h.key, 0, FlowAdd, 0)
	h.w.Begin(ctx, other, 0, FlowAdd, 0)

	var wg sync.WaitGroup
	for _, k := range []Key{h.key, other} {
		wg.Add(1)
		go func(k Key) {
			defer wg.Done()
			h.w.Handle(ctx, k, TextInput("@x"), 0)
			h.w.Handle(ctx, k, SignalInput(PickAllShows), 0)
		}(k)
	}
	wg.Wait()

	for _, owner := range []int64{42, 7} {
		sub, err := h.store.Get(ctx, owner, -100)
		require.NoError(t, err)
		require.Equal(t, domain.PolicyAllShows, sub.Policy)
	}
}

func TestParseCallback(t *testing.T) {
	in, ok := ParseCallback(signalData(PickKeywordMatch))
	require.True(t, ok)
	require.Equal(t, SignalInput(PickKeywordMatch), in)

	in, ok = ParseCallback(pickData(-1001234567890))
	require.True(t, ok)
	require.Equal(t, PickInput(-1001234567890), in)

	for _, bad := range []string{"wiz:none", "wiz:pick:abc", "other:cancel", "cancel"} {
		_, ok := ParseCallback(bad)
		require.False(t, ok, bad)
	}
}
