package router

import (
	"context"
	"time"

	kit "drumbot/internal/transport"
	logx "drumbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// CallbackHandlerFunc handles inline button data "prefix:action[:payload]".
type CallbackHandlerFunc func(ctx context.Context, req *Request, action, payload string) error

// MembershipFunc is told when the bot's role in a chat changed.
type MembershipFunc func(ctx context.Context, m kit.Membership) error

type Command struct {
	Name        string // without the leading slash
	Aliases     []string
	Description string
	Usage       string
	Hidden      bool // left out of /help and the command menu
	Timeout     time.Duration
	Handle      HandlerFunc
}

// CallbackRoute owns every callback whose data starts with Prefix.
type CallbackRoute struct {
	Prefix  string
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

// Request is one routed update.
type Request struct {
	Update    kit.Update
	Chat      kit.ChatTarget
	FromID    int64
	FromName  string
	MessageID int
	Private   bool
	Command   string
	Args      []string
	Text      string // full message text
	ReqID     string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text into the request's chat.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}
