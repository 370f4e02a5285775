package wizard

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"drumbot/internal/domain"
	"drumbot/pkg/tgui"
)

const (
	msgAskDestination   = "Добавь бота в админы канала/чата. Укажи username (с @) или ID."
	msgNotFound         = "Не удалось найти канал. Проверь ввод."
	msgNoRights         = "Бот не админ в этом канале или не может постить. Добавь права и попробуй заново."
	msgAskPolicy        = "Выбери режим постов:"
	msgAskDefaultTime   = "Ежедневный пост в " + domain.DefaultDailyTime + " или в свое время?"
	msgAskTime          = "Укажи время для ежедневного поста (HH:MM, по умолчанию " + domain.DefaultDailyTime + "):"
	msgAskKeyword       = "Укажи ключевое слово для шоу:"
	msgBadTime          = "Неверный формат времени. Укажи HH:MM, например " + domain.DefaultDailyTime + "."
	msgEmptyKeyword     = "Ключевое слово не может быть пустым. Укажи его еще раз:"
	msgSaveFailed       = "Не удалось сохранить настройки. Попробуй позже."
	msgTimerFailed      = "Настройки сохранены, но ежедневный пост не запланирован. Попробуй /edit позже."
	msgAskCleanup       = "Удалить сообщения этого диалога?"
	msgCleanupKept      = "Готово."
	msgCancelled        = "Настройка отменена."
	msgUseButtons       = "Используй кнопки выше или /cancel."
	msgNoSubscriptions  = "У тебя нет добавленных каналов. Добавь канал через /add."
	msgPickEdit         = "Выбери канал для изменения:"
	msgPickTest         = "Выбери канал для тестового поста:"
	msgTestSent         = "Тестовый пост отправлен."
	msgTestFailed       = "Не удалось отправить тестовый пост. Проверь права бота и попробуй позже."
	msgUnknownSelection = "Этого канала нет в списке. Выбери из кнопок."
)

const (
	btnAllShows    = "Все радио-шоу"
	btnDaily       = "Ежедневный пост в " + domain.DefaultDailyTime + " (или свое время)"
	btnKeyword     = "Шоу с ключевым словом"
	btnNoPosts     = "Без постов (только /radio)"
	btnBack        = "« Назад"
	btnCancel      = "Отмена"
	btnDefaultTime = "В " + domain.DefaultDailyTime
	btnCustomTime  = "Указать свое время"
	btnDelete      = "Удалить"
	btnKeep        = "Оставить"
	btnPrev        = "‹"
	btnNext        = "›"
)

// listPageSize is how many destinations one list message shows.
const listPageSize = 6

func btn(text string, s Signal) tele.Btn { return tgui.Btn(text, signalData(s)) }

func policyMarkup() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(btn(btnAllShows, PickAllShows)).
		Row(btn(btnDaily, PickDailyFixedTime)).
		Row(btn(btnKeyword, PickKeywordMatch)).
		Row(btn(btnNoPosts, PickDisabled)).
		Row(btn(btnBack, Back), btn(btnCancel, Cancel)).
		Markup()
}

func defaultTimeMarkup() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(btn(btnDefaultTime, UseDefaultTime), btn(btnCustomTime, CustomTime)).
		Row(btn(btnCancel, Cancel)).
		Markup()
}

func paramMarkup() *tele.ReplyMarkup {
	return tgui.NewInline().Row(btn(btnBack, Back), btn(btnCancel, Cancel)).Markup()
}

func cancelMarkup() *tele.ReplyMarkup {
	return tgui.Column(btn(btnCancel, Cancel))
}

func cleanupMarkup() *tele.ReplyMarkup {
	return tgui.NewInline().Row(btn(btnDelete, DeleteMessages), btn(btnKeep, KeepMessages)).Markup()
}

// listMarkup shows one page of destinations as pick buttons.
func listMarkup(subs []domain.Subscription, page int) (*tele.ReplyMarkup, int) {
	p := tgui.Paginate(subs, page, listPageSize)
	in := tgui.NewInline()
	for _, s := range p.Items {
		in.Row(tgui.Btn(tgui.TruncRunes(destinationLabel(s), 40), pickData(s.DestinationID)))
	}
	var nav []tele.Btn
	if p.HasPrev {
		nav = append(nav, btn(btnPrev, PrevPage))
	}
	if p.Pages > 1 {
		nav = append(nav, tgui.Btn(p.Label(), signalData(SignalNone)))
	}
	if p.HasNext {
		nav = append(nav, btn(btnNext, NextPage))
	}
	in.Row(nav...)
	in.Row(btn(btnCancel, Cancel))
	return in.Markup(), p.Index
}

func destinationLabel(s domain.Subscription) string {
	name := s.DestinationTitle
	if name == "" {
		name = strconv.FormatInt(s.DestinationID, 10)
	}
	return name + " · " + s.Policy.Label()
}

func describeDraft(d Draft) string {
	if d.Param == "" {
		return fmt.Sprintf("'%s'", d.Policy.String())
	}
	return fmt.Sprintf("'%s' (%s)", d.Policy.String(), d.Param)
}

func confirmText(flow Flow, d Draft) string {
	if flow == FlowEdit {
		return "Режим канала " + titleOrID(d) + " изменен на " + describeDraft(d) + "."
	}
	return "Канал " + titleOrID(d) + " добавлен с режимом " + describeDraft(d) + "."
}

func editPrompt(d Draft, current domain.Subscription) string {
	return fmt.Sprintf("Канал %s, сейчас: %s.\n%s", titleOrID(d), current.Describe(), msgAskPolicy)
}

func titleOrID(d Draft) string {
	if d.DestinationTitle != "" {
		return "«" + d.DestinationTitle + "»"
	}
	return strconv.FormatInt(d.DestinationID, 10)
}
