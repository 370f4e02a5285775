package announce

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tele "gopkg.in/telebot.v4"

	"drumbot/internal/domain"
	kit "drumbot/internal/transport"
	logx "drumbot/pkg/logx"
	"drumbot/pkg/tgui"
)

// ListenLabel is the caption of the "listen" button under every post.
const ListenLabel = "Слушать радио в Telegram"

// Post is a ready-to-send photo with caption.
type Post struct {
	Photo   kit.Photo
	Caption string
	Track   domain.TrackSnapshot
}

// ShowCaption announces a radio show that just started.
func ShowCaption(t domain.TrackSnapshot, site string) string {
	return fmt.Sprintf("Сейчас у нас в эфире радио подкаст %s от %s. Подключайтесь!\nСлушай на VTRNK Radio: %s", t.Title, t.Artist, site)
}

// NowPlayingCaption describes whatever is on air.
func NowPlayingCaption(t domain.TrackSnapshot, site string) string {
	return fmt.Sprintf("Сейчас в эфире: %s от %s\nСлушай на VTRNK Radio: %s", t.Title, t.Artist, site)
}

// ChannelMarkup is the URL button used in channels and groups.
func (d *Dispatcher) ChannelMarkup() *tele.ReplyMarkup {
	return tgui.Column(tgui.URLBtn(ListenLabel, d.cfg.BotURL))
}

// MiniAppMarkup opens the web player; Telegram accepts it in private chats only.
func (d *Dispatcher) MiniAppMarkup() *tele.ReplyMarkup {
	return tgui.Column(tgui.WebAppBtn(ListenLabel, d.cfg.MiniAppURL))
}

// ResolveCover maps the feed's cover path to something sendable. Absolute
// paths are looked up under BaseDir; a missing file or a feed error yields
// the fallback URL.
func (d *Dispatcher) ResolveCover(ctx context.Context) kit.Photo {
	fallback := kit.Photo{URL: d.cfg.FallbackCoverURL}
	p, err := d.feed.FetchCoverPath(ctx)
	if err != nil {
		d.log.Warn("cover lookup failed, using fallback", logx.Err(err))
		return fallback
	}
	p = strings.TrimSpace(p)
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return kit.Photo{URL: p}
	}
	local := p
	if strings.HasPrefix(p, "/") {
		local = filepath.Join(d.cfg.BaseDir, filepath.FromSlash(p))
	}
	if st, err := os.Stat(local); err == nil && st.Mode().IsRegular() {
		return kit.Photo{File: local}
	}
	d.log.Debug("cover file missing, using fallback", logx.String("path", local))
	return fallback
}
