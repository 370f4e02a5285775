// Package router turns transport updates into command, callback, text and
// membership handler calls, run on a small pool of workers.
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"drumbot/internal/runtime/supervisor"
	kit "drumbot/internal/transport"
	logx "drumbot/pkg/logx"
)

type Options struct {
	Workers        int
	QueueSize      int           // per worker
	DefaultTimeout time.Duration // for handlers without their own
}

// Router owns the command table. Updates of one chat always go to the same
// worker, so a user's dialog inputs are handled in the order they arrived.
type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	opts    Options

	mu        sync.RWMutex
	cmds      []Command
	byName    map[string]Command
	callbacks map[string]CallbackRoute
	onText    HandlerFunc
	onMember  MembershipFunc

	runMu   sync.Mutex
	running bool
	shards  []chan func()
}

func New(log logx.Logger, adapter kit.Adapter, opts Options) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 60 * time.Second
	}
	return &Router{
		log:       log,
		adapter:   adapter,
		opts:      opts,
		byName:    map[string]Command{},
		callbacks: map[string]CallbackRoute{},
	}
}

// SetRegistry replaces commands and callback routes. A /help command is
// added unless one is registered.
func (r *Router) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	byName := map[string]Command{}
	var list []Command
	for _, c := range cmds {
		name := sanitizeCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		list = append(list, c)
		byName[name] = c
		for _, a := range c.Aliases {
			if a = sanitizeCommand(a); a != "" {
				if _, taken := byName[a]; !taken {
					byName[a] = c
				}
			}
		}
	}
	if _, ok := byName["help"]; !ok {
		help := Command{Name: "help", Description: "список команд", Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Reply(ctx, HelpText(r.Commands()), &kit.SendOptions{DisablePreview: true})
			return err
		}}
		list = append(list, help)
		byName["help"] = help
	}

	cb := map[string]CallbackRoute{}
	for _, route := range cbs {
		p := strings.TrimSpace(route.Prefix)
		if p == "" || route.Handle == nil {
			continue
		}
		cb[p] = route
	}

	r.mu.Lock()
	r.cmds = list
	r.byName = byName
	r.callbacks = cb
	r.mu.Unlock()
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.cmds...)
}

// OnText handles plain (non-command) messages.
func (r *Router) OnText(h HandlerFunc) {
	r.mu.Lock()
	r.onText = h
	r.mu.Unlock()
}

func (r *Router) OnMembership(h MembershipFunc) {
	r.mu.Lock()
	r.onMember = h
	r.mu.Unlock()
}

// PublishMenu pushes the command list to the adapter's menu, if supported.
func (r *Router) PublishMenu(ctx context.Context) {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := up.UpdateMenuCommands(cctx, menuCommands(r.Commands())); err != nil {
		r.log.Warn("command menu update failed", logx.Err(err))
	}
}

// DispatchLoop reads updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(r.log.With(logx.String("comp", "router.workers"))),
		supervisor.WithCancelOnError(false),
	)
	shards := make([]chan func(), r.opts.Workers)
	for i := range shards {
		shards[i] = make(chan func(), r.opts.QueueSize)
	}
	r.runMu.Lock()
	r.shards = shards
	r.running = true
	r.runMu.Unlock()

	for i, jobs := range shards {
		idx, jobs := i, jobs
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					job()
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}
	r.log.Info("dispatcher started", logx.Int("workers", len(shards)), logx.Int("queue_cap", r.opts.QueueSize))

	defer func() {
		r.runMu.Lock()
		r.running = false
		for _, ch := range shards {
			close(ch)
		}
		r.runMu.Unlock()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.Route(ctx, up)
		}
	}
}

// enqueue hands fn to the worker that owns chatID. It reports false when the
// worker queue is full or the router is not running.
func (r *Router) enqueue(chatID int64, fn func()) bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running || len(r.shards) == 0 {
		return false
	}
	shard := r.shards[uint64(chatID)%uint64(len(r.shards))]
	select {
	case shard <- fn:
		return true
	default:
		return false
	}
}

// Route dispatches one update. Exposed for tests and for adapters that
// deliver updates synchronously.
func (r *Router) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	case kit.UpdateMembership:
		r.routeMembership(ctx, up)
	}
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, fromID int64, command string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  fromID,
		Command: command,
		ReqID:   rid,
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", fromID),
			logx.String("cmd", command),
		),
	}
}

func (r *Router) run(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration, onBusy func()) {
	if timeout <= 0 {
		timeout = r.opts.DefaultTimeout
	}
	final := Chain(h, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(timeout))
	if !r.enqueue(req.Chat.ChatID, func() { _ = final(ctx, req) }) {
		r.log.Warn("request dropped, worker busy", logx.Int64("chat_id", req.Chat.ChatID), logx.String("cmd", req.Command))
		if onBusy != nil {
			onBusy()
		}
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	text := strings.TrimSpace(msg.Text)

	if !strings.HasPrefix(text, "/") {
		r.mu.RLock()
		h := r.onText
		r.mu.RUnlock()
		if h == nil || text == "" {
			return
		}
		req := r.newRequest(up, chat, msg.FromID, "text")
		fillMessage(req, msg, nil)
		r.run(ctx, req, h, 0, nil)
		return
	}

	word, args := splitCommand(text)
	r.mu.RLock()
	cmd, ok := r.byName[word]
	r.mu.RUnlock()
	if !ok {
		if msg.IsPrivate {
			_, _ = r.adapter.SendText(ctx, chat, "Неизвестная команда. Попробуй /help", nil)
		}
		return
	}
	req := r.newRequest(up, chat, msg.FromID, cmd.Name)
	fillMessage(req, msg, args)
	r.run(ctx, req, cmd.Handle, cmd.Timeout, func() {
		_, _ = r.adapter.SendText(ctx, chat, "Бот занят, попробуй еще раз.", nil)
	})
}

func fillMessage(req *Request, msg *kit.Message, args []string) {
	req.FromName = msg.FromUsername
	req.MessageID = msg.ID
	req.Private = msg.IsPrivate
	req.Text = msg.Text
	req.Args = args
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	prefix, rest, _ := strings.Cut(strings.TrimSpace(cb.Data), ":")
	action, payload, _ := strings.Cut(rest, ":")

	r.mu.RLock()
	route, ok := r.callbacks[prefix]
	r.mu.RUnlock()
	if !ok || action == "" {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	req := r.newRequest(up, chat, cb.FromID, "cb:"+prefix+":"+action)
	req.MessageID = cb.MessageID
	req.Private = cb.ChatID == cb.FromID
	h := func(ctx context.Context, req *Request) error {
		// stop the button spinner whatever the handler does
		defer func() { _ = r.adapter.AnswerCallback(ctx, cb.ID, "") }()
		return route.Handle(ctx, req, action, payload)
	}
	r.run(ctx, req, h, route.Timeout, func() {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Бот занят")
	})
}

func (r *Router) routeMembership(ctx context.Context, up kit.Update) {
	m := up.Membership
	if m == nil {
		return
	}
	r.mu.RLock()
	h := r.onMember
	r.mu.RUnlock()
	if h == nil {
		return
	}
	req := r.newRequest(up, kit.ChatTarget{ChatID: m.ChatID}, m.ByID, "membership")
	r.run(ctx, req, func(ctx context.Context, _ *Request) error { return h(ctx, *m) }, 0, nil)
}

// splitCommand parses "/cmd@bot a b" into ("cmd", [a b]).
func splitCommand(text string) (string, []string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word), parts[1:]
}

func newReqID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b[:])
}
