package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline builds an inline keyboard row by row.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline {
	return &Inline{rm: &tele.ReplyMarkup{}}
}

// Row appends a row of buttons. Empty rows are ignored.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	if len(btn) == 0 {
		return i
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Rows reports how many rows were added.
func (i *Inline) Rows() int { return len(i.rows) }

// Markup returns the underlying reply markup.
func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button. data is used verbatim; build it with Data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}

func URLBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, URL: url}
}

// WebAppBtn opens a Telegram mini app. Only valid in private chats.
func WebAppBtn(text, url string) tele.Btn {
	return tele.Btn{Text: text, WebApp: &tele.WebApp{URL: url}}
}

// Column puts every button on its own row.
func Column(buttons ...tele.Btn) *tele.ReplyMarkup {
	in := NewInline()
	for _, b := range buttons {
		in.Row(b)
	}
	return in.Markup()
}
