// Package commands defines the bot's chat commands and routes their input
// to the wizard and the subscription store.
package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"drumbot/internal/announce"
	"drumbot/internal/domain"
	"drumbot/internal/eventbus"
	kit "drumbot/internal/transport"
	"drumbot/internal/transport/telegram/router"
	"drumbot/internal/wizard"
	logx "drumbot/pkg/logx"
	"drumbot/pkg/tgui"
)

const (
	launchRadioArg = "launch_radio"

	msgLaunch        = "Запускаем VTRNK Radio!"
	msgWelcome       = "Привет! Я публикую эфир VTRNK Radio в твоих каналах и чатах."
	msgRadioFailed   = "Не удалось получить информацию о текущем треке. Попробуйте позже!"
	msgNoChannels    = "У тебя нет добавленных каналов."
	msgRemoveUsage   = "Укажи ID канала для удаления: /remove <channel_id>"
	msgRemoveFailed  = "Ошибка при удалении канала. Проверь ID."
	msgNothingActive = "Нет активной настройки."
	msgListFailed    = "Не удалось получить список каналов. Попробуй позже."
)

type Store interface {
	ListByOwner(ctx context.Context, ownerID int64) ([]domain.Subscription, error)
	Delete(ctx context.Context, ownerID, destID int64) (bool, error)
	DeleteByDestination(ctx context.Context, destID int64) (int, error)
}

type Timers interface {
	Reconcile(ctx context.Context, dest int64) error
}

type Announcer interface {
	NowPlaying(ctx context.Context) (announce.Post, error)
	ChannelMarkup() *tele.ReplyMarkup
	MiniAppMarkup() *tele.ReplyMarkup
	Forget(dest int64)
}

type Deps struct {
	Wizard    *wizard.Wizard
	Store     Store
	Timers    Timers
	Announcer Announcer
	// Bus receives DestinationLost events; nil means no observers.
	Bus eventbus.Bus
}

type Set struct {
	deps Deps
	log  logx.Logger
}

func New(deps Deps, log logx.Logger) *Set {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop()
	}
	return &Set{deps: deps, log: log}
}

// Install registers commands, callbacks, the text handler and the
// membership handler on r.
func (s *Set) Install(r *router.Router) {
	r.SetRegistry(s.Commands(), []router.CallbackRoute{{
		Prefix:  wizard.CallbackPrefix,
		Timeout: 30 * time.Second,
		Handle:  s.onWizardCallback,
	}})
	r.OnText(s.onText)
	r.OnMembership(s.onMembership)
}

func (s *Set) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Hidden: true, Handle: s.start},
		{Name: "radio", Description: "что сейчас в эфире", Timeout: 60 * time.Second, Handle: s.radio},
		{Name: "add", Description: "добавить канал или чат", Handle: s.begin(wizard.FlowAdd)},
		{Name: "edit", Description: "изменить режим канала", Handle: s.begin(wizard.FlowEdit)},
		{Name: "test", Description: "отправить тестовый пост", Timeout: 60 * time.Second, Handle: s.begin(wizard.FlowTest)},
		{Name: "cancel", Description: "прервать настройку", Handle: s.cancel},
		{Name: "my_channels", Aliases: []string{"channels"}, Description: "мои каналы", Handle: s.myChannels},
		{Name: "remove", Usage: "/remove <channel_id>", Description: "удалить канал", Handle: s.remove},
	}
}

func key(req *router.Request) wizard.Key {
	return wizard.Key{OwnerID: req.FromID, ChatID: req.Chat.ChatID}
}

func (s *Set) start(ctx context.Context, req *router.Request) error {
	if len(req.Args) > 0 && req.Args[0] == launchRadioArg {
		_, err := req.Reply(ctx, msgLaunch, &kit.SendOptions{ReplyMarkupAdapter: s.listenMarkup(req)})
		return err
	}
	_, err := req.Reply(ctx, msgWelcome+"\n\n"+router.HelpText(s.Commands()), nil)
	return err
}

// listenMarkup picks the mini app button in private chats and the bot link elsewhere.
func (s *Set) listenMarkup(req *router.Request) *tele.ReplyMarkup {
	if req.Private {
		return s.deps.Announcer.MiniAppMarkup()
	}
	return s.deps.Announcer.ChannelMarkup()
}

func (s *Set) radio(ctx context.Context, req *router.Request) error {
	post, err := s.deps.Announcer.NowPlaying(ctx)
	if err != nil {
		_, _ = req.Reply(ctx, msgRadioFailed, nil)
		return err
	}
	_, err = req.Adapter.SendPhoto(ctx, req.Chat, post.Photo, post.Caption,
		&kit.SendOptions{ReplyMarkupAdapter: s.listenMarkup(req)})
	return err
}

func (s *Set) begin(flow wizard.Flow) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		s.deps.Wizard.Begin(ctx, key(req), req.Chat.ThreadID, flow, req.MessageID)
		return nil
	}
}

func (s *Set) cancel(ctx context.Context, req *router.Request) error {
	if !s.deps.Wizard.Cancel(ctx, key(req)) {
		_, err := req.Reply(ctx, msgNothingActive, nil)
		return err
	}
	return nil
}

func (s *Set) myChannels(ctx context.Context, req *router.Request) error {
	subs, err := s.deps.Store.ListByOwner(ctx, req.FromID)
	if err != nil {
		_, _ = req.Reply(ctx, msgListFailed, nil)
		return err
	}
	if len(subs) == 0 {
		_, err := req.Reply(ctx, msgNoChannels, nil)
		return err
	}
	_, err = req.Reply(ctx, FormatChannels(subs), &kit.SendOptions{DisablePreview: true})
	return err
}

// FormatChannels renders the /my_channels reply.
func FormatChannels(subs []domain.Subscription) string {
	var b strings.Builder
	b.WriteString("Твои каналы:\n")
	for _, sub := range subs {
		fmt.Fprintf(&b, "- ID: %d", sub.DestinationID)
		if sub.DestinationTitle != "" {
			fmt.Fprintf(&b, " (%s)", tgui.TruncRunes(sub.DestinationTitle, 48))
		}
		fmt.Fprintf(&b, ", Режим: %s\n", sub.Describe())
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Set) remove(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		_, err := req.Reply(ctx, msgRemoveUsage, nil)
		return err
	}
	dest, err := strconv.ParseInt(strings.TrimSpace(req.Args[0]), 10, 64)
	if err != nil {
		_, _ = req.Reply(ctx, msgRemoveFailed, nil)
		return nil
	}
	deleted, err := s.deps.Store.Delete(ctx, req.FromID, dest)
	if err != nil {
		_, _ = req.Reply(ctx, msgRemoveFailed, nil)
		return err
	}
	if !deleted {
		_, err := req.Reply(ctx, msgRemoveFailed, nil)
		return err
	}
	if err := s.deps.Timers.Reconcile(ctx, dest); err != nil {
		req.Logger.Warn("daily timer not reconciled", logx.Int64("dest", dest), logx.Err(err))
	}
	req.Logger.Info("subscription removed", logx.Int64("owner", req.FromID), logx.Int64("dest", dest))
	_, err = req.Reply(ctx, fmt.Sprintf("Канал %d удален.", dest), nil)
	return err
}

func (s *Set) onText(ctx context.Context, req *router.Request) error {
	s.deps.Wizard.Handle(ctx, key(req), wizard.TextInput(req.Text), req.MessageID)
	return nil
}

func (s *Set) onWizardCallback(ctx context.Context, req *router.Request, action, payload string) error {
	in, ok := wizard.ParseCallback(tgui.Data(wizard.CallbackPrefix, action, payload))
	if !ok {
		return nil
	}
	if !s.deps.Wizard.Handle(ctx, key(req), in, 0) {
		req.Logger.Debug("button of a closed dialog", logx.String("action", action))
	}
	return nil
}

// onMembership drops every subscription of a chat where the bot can no
// longer post.
func (s *Set) onMembership(ctx context.Context, m kit.Membership) error {
	if m.CanPost {
		return nil
	}
	n, err := s.deps.Store.DeleteByDestination(ctx, m.ChatID)
	if err != nil {
		return fmt.Errorf("drop subscriptions of %d: %w", m.ChatID, err)
	}
	if err := s.deps.Timers.Reconcile(ctx, m.ChatID); err != nil {
		s.log.Warn("daily timer not reconciled", logx.Int64("dest", m.ChatID), logx.Err(err))
	}
	s.deps.Announcer.Forget(m.ChatID)
	s.deps.Bus.Publish(eventbus.Event{Type: eventbus.DestinationLost, Data: m.ChatID})
	s.log.Info("bot lost posting rights, subscriptions dropped", logx.Int64("dest", m.ChatID), logx.Int("rows", n), logx.Int64("by", m.ByID))
	return nil
}
