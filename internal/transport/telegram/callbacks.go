package telegram

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"duyurubot/internal/match"
	"duyurubot/pkg/logx"
)

// pickMenu builds an inline keyboard of candidates plus a cancel row.
// Button data is "<kind>:<source id>".
func pickMenu(kind string, items []match.Candidate) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, len(items)+1)
	for _, it := range items {
		rows = append(rows, []tele.InlineButton{{
			Text: it.Name,
			Data: kind + ":" + strconv.FormatInt(it.ID, 10),
		}})
	}
	rows = append(rows, []tele.InlineButton{{
		Text: cancelButtonLabel,
		Data: callbackDataCancel,
	}})
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func (a *Adapter) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || c.Message() == nil {
		return c.Respond()
	}
	// telebot prefixes data from typed buttons with "\f"; ours is raw but
	// trimming is harmless either way.
	data := strings.TrimPrefix(strings.TrimSpace(cb.Data), "\f")

	if data == callbackDataCancel {
		if err := c.Edit(msgCancelled); err != nil {
			a.log.Warn("cancel edit failed", logx.Err(err))
		}
		return c.Respond()
	}

	kind, rawID, ok := strings.Cut(data, ":")
	sourceID, perr := strconv.ParseInt(rawID, 10, 64)
	if !ok || perr != nil {
		a.log.Warn("invalid callback data", logx.String("data", data))
		return c.Respond(&tele.CallbackResponse{Text: "Geçersiz işlem."})
	}

	chatID := c.Message().Chat.ID
	ctx, cancel := a.opCtx()
	defer cancel()

	var result string
	switch kind {
	case callbackKindFollow:
		created, err := a.store.AddSubscription(ctx, chatID, sourceID,
			displayName(cb.Sender), senderHandle(cb.Sender))
		if err != nil {
			a.log.Error("subscribe failed", logx.Int64("chat", chatID),
				logx.Int64("source", sourceID), logx.Err(err))
			return a.respondError(c)
		}
		if created {
			result = "Takip edildi."
		} else {
			result = "Zaten takip ediyorsunuz."
		}
	case callbackKindUnfollow:
		removed, err := a.store.RemoveSubscription(ctx, chatID, sourceID)
		if err != nil {
			a.log.Error("unsubscribe failed", logx.Int64("chat", chatID),
				logx.Int64("source", sourceID), logx.Err(err))
			return a.respondError(c)
		}
		if removed {
			result = "Takipten çıkıldı."
		} else {
			result = "Zaten takip etmiyorsunuz."
		}
	default:
		a.log.Warn("unknown callback kind", logx.String("data", data))
		return c.Respond(&tele.CallbackResponse{Text: "Geçersiz işlem."})
	}

	if err := c.Edit(result); err != nil {
		a.log.Warn("result edit failed", logx.Err(err))
	}
	return c.Respond()
}

func (a *Adapter) respondError(c tele.Context) error {
	if err := c.Edit(msgInternalError); err != nil {
		a.log.Warn("error edit failed", logx.Err(err))
	}
	return c.Respond(&tele.CallbackResponse{Text: "Bir hata oluştu."})
}

func senderHandle(u *tele.User) string {
	if u == nil {
		return ""
	}
	return u.Username
}
