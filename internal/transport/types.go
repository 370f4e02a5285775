package transport

import (
	"context"
	"errors"
)

type UpdateKind string

const (
	UpdateMessage    UpdateKind = "message"
	UpdateCallback   UpdateKind = "callback"
	UpdateMembership UpdateKind = "membership"
)

type Update struct {
	Kind       UpdateKind
	Message    *Message
	Callback   *Callback
	Membership *Membership
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsPrivate    bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

// Membership reports a change of the bot's own role in a chat.
// CanPost is false once the bot was removed, banned or lost posting rights.
type Membership struct {
	ChatID  int64
	ByID    int64
	CanPost bool
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Photo is either a local file or a remote URL; File wins when both are set.
type Photo struct {
	File string
	URL  string
}

func (p Photo) IsZero() bool { return p.File == "" && p.URL == "" }

// ErrChatNotFound is returned by lookups for unknown handles or ids.
var ErrChatNotFound = errors.New("chat not found")

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photo Photo, caption string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	DeleteMessages(ctx context.Context, chatID int64, ids []int) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	Directory
}

// Directory answers chat and user lookups.
type Directory interface {
	// ResolveDestination maps "@handle" or a numeric id to a chat id.
	ResolveDestination(ctx context.Context, ref string) (int64, error)
	// CheckPostingRights reports whether the bot may post in the chat.
	CheckPostingRights(ctx context.Context, chatID int64) (bool, error)
	ChatTitle(ctx context.Context, chatID int64) (string, error)
	UserHandle(ctx context.Context, userID int64) (string, error)
}

// BotCommand is one entry of the bot command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters that can publish a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
