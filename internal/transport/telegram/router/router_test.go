package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	kit "drumbot/internal/transport"
	logx "drumbot/pkg/logx"
)

type stubAdapter struct {
	mu       sync.Mutex
	texts    []string
	answered []string
	menu     []kit.BotCommand
}

func (a *stubAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *stubAdapter) Stop(context.Context) error                     { return nil }

func (a *stubAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(a.texts)}, nil
}

func (a *stubAdapter) SendPhoto(_ context.Context, to kit.ChatTarget, _ kit.Photo, caption string, _ *kit.SendOptions) (kit.MessageRef, error) {
	return a.SendText(context.Background(), to, caption, nil)
}

func (a *stubAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}

func (a *stubAdapter) DeleteMessages(context.Context, int64, []int) error { return nil }

func (a *stubAdapter) AnswerCallback(_ context.Context, id string, _ string) error {
	a.mu.Lock()
	a.answered = append(a.answered, id)
	a.mu.Unlock()
	return nil
}

func (a *stubAdapter) ResolveDestination(context.Context, string) (int64, error) { return 0, nil }
func (a *stubAdapter) CheckPostingRights(context.Context, int64) (bool, error)   { return true, nil }
func (a *stubAdapter) ChatTitle(context.Context, int64) (string, error)          { return "", nil }
func (a *stubAdapter) UserHandle(context.Context, int64) (string, error)         { return "", nil }

func (a *stubAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	a.menu = cmds
	a.mu.Unlock()
	return nil
}

func (a *stubAdapter) sentTexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.texts...)
}

func startRouter(t *testing.T, r *Router) chan kit.Update {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 16)
	done := make(chan struct{})
	go func() {
		_ = r.DispatchLoop(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return updates
}

func msg(chat int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 5, ChatID: chat, FromID: chat, Text: text, IsPrivate: chat > 0}}
}

func TestRoutesCommandsTextAndCallbacks(t *testing.T) {
	ad := &stubAdapter{}
	r := New(logx.Nop(), ad, Options{Workers: 2})

	var mu sync.Mutex
	got := map[string][]string{}
	record := func(k string, v ...string) {
		mu.Lock()
		got[k] = append(got[k], v...)
		mu.Unlock()
	}
	r.SetRegistry([]Command{{
		Name:    "remove",
		Aliases: []string{"rm"},
		Handle: func(_ context.Context, req *Request) error {
			record("remove", req.Args...)
			return nil
		},
	}}, []CallbackRoute{{
		Prefix: "wiz",
		Handle: func(_ context.Context, req *Request, action, payload string) error {
			record("cb", action, payload)
			return nil
		},
	}})
	r.OnText(func(_ context.Context, req *Request) error {
		record("text", req.Text)
		return nil
	})
	r.OnMembership(func(_ context.Context, m kit.Membership) error {
		record("member", "left")
		return nil
	})

	updates := startRouter(t, r)
	updates <- msg(1, "/remove@drum_bot -100")
	updates <- msg(1, "/rm -200")
	updates <- msg(1, "@channel")
	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "q1", ChatID: 1, FromID: 1, Data: "wiz:pick:-100"}}
	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "q2", ChatID: 1, FromID: 1, Data: "other:x"}}
	updates <- kit.Update{Kind: kit.UpdateMembership, Membership: &kit.Membership{ChatID: -100}}
	updates <- msg(1, "/nope")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got["remove"]) == 2 && len(got["text"]) == 1 && len(got["cb"]) == 2 && len(got["member"]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, []string{"-100", "-200"}, got["remove"])
	require.Equal(t, []string{"@channel"}, got["text"])
	require.Equal(t, []string{"pick", "-100"}, got["cb"])
	mu.Unlock()

	require.Eventually(t, func() bool {
		ad.mu.Lock()
		defer ad.mu.Unlock()
		return len(ad.answered) == 2
	}, time.Second, 10*time.Millisecond)
	require.Contains(t, ad.sentTexts(), "Неизвестная команда. Попробуй /help")
}

func TestSameChatKeepsOrder(t *testing.T) {
	r := New(logx.Nop(), &stubAdapter{}, Options{Workers: 4})
	var mu sync.Mutex
	var seen []string
	r.OnText(func(_ context.Context, req *Request) error {
		mu.Lock()
		seen = append(seen, req.Text)
		mu.Unlock()
		return nil
	})
	r.SetRegistry(nil, nil)
	updates := startRouter(t, r)

	want := []string{"a", "b", "c", "d", "e", "f"}
	for _, s := range want {
		updates <- msg(77, s)
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(want)
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	require.Equal(t, want, seen)
	mu.Unlock()
}

func TestHelpAndMenu(t *testing.T) {
	ad := &stubAdapter{}
	r := New(logx.Nop(), ad, Options{})
	noop := func(context.Context, *Request) error { return nil }
	r.SetRegistry([]Command{
		{Name: "radio", Description: "что сейчас в эфире", Handle: noop},
		{Name: "remove", Usage: "/remove <id>", Description: "удалить канал", Handle: noop},
		{Name: "start", Hidden: true, Handle: noop},
	}, nil)

	help := HelpText(r.Commands())
	require.Contains(t, help, "/radio - что сейчас в эфире")
	require.Contains(t, help, "/remove <id> - удалить канал")
	require.Contains(t, help, "/help - список команд")
	require.NotContains(t, help, "/start")

	r.PublishMenu(context.Background())
	names := make([]string, 0, len(ad.menu))
	for _, c := range ad.menu {
		names = append(names, c.Command)
	}
	require.Equal(t, []string{"help", "radio", "remove"}, names)
}

func TestSplitCommandAndSanitize(t *testing.T) {
	word, args := splitCommand("/Start@drum_bot launch_radio")
	require.Equal(t, "start", word)
	require.Equal(t, []string{"launch_radio"}, args)

	require.Equal(t, "my_channels", sanitizeCommand("/my-channels"))
	require.Empty(t, sanitizeCommand("!!"))
}
