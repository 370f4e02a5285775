package adapter

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "drumbot/internal/runtime/supervisor"
	kit "drumbot/internal/transport"
	logx "drumbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// HTTPTimeout bounds every Bot API call. Must exceed PollTimeout.
	HTTPTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	dropped atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
}

var _ kit.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.HTTPTimeout <= cfg.PollTimeout {
		cfg.HTTPTimeout = cfg.PollTimeout + 10*time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout, AllowedUpdates: []string{"message", "callback_query", "my_chat_member"}},
		Client: &http.Client{Timeout: cfg.HTTPTimeout},
		OnError: func(err error, c tele.Context) {
			a.log.Warn("telebot handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a.bot = b
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.publish(kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			ThreadID:     m.ThreadID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
			IsPrivate:    m.Private(),
		}})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil || cb.Sender == nil {
			return nil
		}
		a.publish(kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
			ID:        cb.ID,
			ChatID:    m.Chat.ID,
			ThreadID:  m.ThreadID,
			FromID:    cb.Sender.ID,
			MessageID: m.ID,
			Data:      strings.TrimSpace(cb.Data),
		}})
		return nil
	})

	a.bot.Handle(tele.OnMyChatMember, func(c tele.Context) error {
		if up := membershipUpdate(c.ChatMember()); up != nil {
			a.publish(kit.Update{Kind: kit.UpdateMembership, Membership: up})
		}
		return nil
	})
}

func membershipUpdate(u *tele.ChatMemberUpdate) *kit.Membership {
	if u == nil || u.Chat == nil || u.NewChatMember == nil {
		return nil
	}
	m := &kit.Membership{ChatID: u.Chat.ID, CanPost: memberCanPost(u.Chat.Type, u.NewChatMember)}
	if u.Sender != nil {
		m.ByID = u.Sender.ID
	}
	return m
}

// memberCanPost: channels need an administrator with post rights, groups any admin.
func memberCanPost(chatType tele.ChatType, m *tele.ChatMember) bool {
	if m == nil {
		return false
	}
	switch m.Role {
	case tele.Creator:
		return true
	case tele.Administrator:
		if chatType == tele.ChatChannel {
			return m.CanPostMessages
		}
		return true
	default:
		return false
	}
}

func (a *Adapter) publish(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.dropped.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))))
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-t.C:
				a.reportDropped(cap(out))
			}
		}
	})
	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// telebot's Start may return on its own; restart it while the context lives.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sup.Cancel()

	// getUpdates may still be long-polling; never hold shutdown for more than the grace window.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		grace = min(grace, time.Until(dl))
	}
	wctx, cancel := context.WithTimeout(ctx, max(grace, 0))
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with error", logx.Err(err))
	}
	return nil
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions, withMarkup bool) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt == nil {
		return so
	}
	so.ParseMode = opt.ParseMode
	so.DisableWebPagePreview = opt.DisablePreview
	if withMarkup {
		if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
			so.ReplyMarkup = rm
		}
	}
	return so
}

const textLimit = 4000

// SendText splits long texts on line boundaries; markup goes on the first chunk.
// The returned ref points at the first message sent.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	chat := &tele.Chat{ID: to.ChatID}
	var first kit.MessageRef
	for i, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOptions(to, opt, i == 0))
		if err != nil {
			return first, fmt.Errorf("send text: %w", err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photo kit.Photo, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return kit.MessageRef{}, err
	}
	var file tele.File
	switch {
	case photo.File != "":
		file = tele.FromDisk(photo.File)
	case photo.URL != "":
		file = tele.FromURL(photo.URL)
	default:
		return a.SendText(ctx, to, caption, opt)
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, &tele.Photo{File: file, Caption: caption}, sendOptions(to, opt, true))
	if err != nil {
		return kit.MessageRef{}, fmt.Errorf("send photo: %w", err)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chunks := splitText(text, textLimit)
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	to := kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}
	so := sendOptions(to, opt, true)
	so.ThreadID = 0
	if _, err := a.bot.Edit(m, chunks[0], so); err != nil {
		return fmt.Errorf("edit text: %w", err)
	}
	for _, chunk := range chunks[1:] {
		if _, err := a.bot.Send(&tele.Chat{ID: ref.ChatID}, chunk, sendOptions(to, opt, false)); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}
	return nil
}

// DeleteMessages tries every id and joins the failures.
func (a *Adapter) DeleteMessages(ctx context.Context, chatID int64, ids []int) error {
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.bot.Delete(&tele.StoredMessage{MessageID: strconv.Itoa(id), ChatID: chatID}); err != nil {
			errs = append(errs, fmt.Errorf("delete %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func (a *Adapter) ResolveDestination(ctx context.Context, ref string) (int64, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "@") && len(ref) > 1 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		chat, err := a.bot.ChatByUsername(ref)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", kit.ErrChatNotFound, ref, err)
		}
		return chat.ID, nil
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is neither @handle nor numeric id", kit.ErrChatNotFound, ref)
	}
	return id, nil
}

func (a *Adapter) CheckPostingRights(ctx context.Context, chatID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	chat, err := a.bot.ChatByID(chatID)
	if err != nil {
		return false, fmt.Errorf("%w: %d: %v", kit.ErrChatNotFound, chatID, err)
	}
	member, err := a.bot.ChatMemberOf(chat, a.bot.Me)
	if err != nil {
		return false, fmt.Errorf("chat member %d: %w", chatID, err)
	}
	return memberCanPost(chat.Type, member), nil
}

func (a *Adapter) ChatTitle(ctx context.Context, chatID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chat, err := a.bot.ChatByID(chatID)
	if err != nil {
		return "", fmt.Errorf("%w: %d: %v", kit.ErrChatNotFound, chatID, err)
	}
	if chat.Title != "" {
		return chat.Title, nil
	}
	if chat.Username != "" {
		return "@" + chat.Username, nil
	}
	return strconv.FormatInt(chatID, 10), nil
}

func (a *Adapter) UserHandle(ctx context.Context, userID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chat, err := a.bot.ChatByID(userID)
	if err != nil {
		return "", fmt.Errorf("%w: %d: %v", kit.ErrChatNotFound, userID, err)
	}
	if chat.Username == "" {
		return "", fmt.Errorf("%w: user %d has no username", kit.ErrChatNotFound, userID)
	}
	return "@" + chat.Username, nil
}

// UpdateMenuCommands publishes the command menu; unchanged lists are skipped.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" || len(list) >= 100 {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		list = append(list, tele.Command{Text: c.Command, Description: d})
		h.Write([]byte(c.Command + "\x00" + d + "\x00"))
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.bot.SetCommands(list); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}

// splitText cuts s into chunks of at most limit runes, preferring newlines
// past a third of the window. Always returns at least one chunk.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i-start >= limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
