package telegram

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	"duyurubot/internal/match"
	"duyurubot/pkg/logx"
)

// command is the closed set of text commands the bot understands.
// parseCommand never returns anything outside it, so dispatch is an
// exhaustive switch instead of string comparisons scattered around.
type command int

const (
	cmdNone command = iota // plain text, not a command
	cmdStart
	cmdHelp
	cmdFollow
	cmdUnfollow
	cmdMy
	cmdUnknown
)

// parseCommand classifies a message text. "/follow@somebot extra" → cmdFollow.
func parseCommand(text string) command {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "/") {
		return cmdNone
	}
	first := strings.Fields(s)[0]
	if i := strings.IndexByte(first, '@'); i >= 0 {
		first = first[:i]
	}
	switch strings.ToLower(first) {
	case "/start":
		return cmdStart
	case "/help":
		return cmdHelp
	case "/follow":
		return cmdFollow
	case "/unfollow":
		return cmdUnfollow
	case "/my":
		return cmdMy
	}
	return cmdUnknown
}

const (
	msgWelcome = "Hoşgeldiniz! Komutları görmek için /help yazın."
	msgHelp    = "/follow - birimleri takip et\n" +
		"/unfollow - takipten çık\n" +
		"/my - takiplerini göster"
	msgFollowPrompt = "Lütfen takip etmek istediğiniz birimi yazın (veya 'iptal' yazarak iptal edin):\n" +
		"Fakülteler ve bölümler olmak üzere tüm akademik ve idari birimleri takip edebilirsiniz\n" +
		"Örnekler:\n" +
		"- Eğitim Fakültesi\n" +
		"- Kimya Bölümü\n" +
		"- Öğrenci İşleri Daire Başkanlığı"
	msgNoSubscriptions   = "Takip ettiğiniz birim bulunmuyor."
	msgUnfollowPrompt    = "Lütfen takipten çıkmak istediğiniz birimi seçin:"
	msgPickOne           = "Lütfen bir birim seçin:"
	msgNoMatch           = "Birim bulunamadı. Lütfen tekrar deneyin (veya 'iptal' yazın):"
	msgCancelled         = "İşlem iptal edildi."
	msgUnknownCommand    = "Bilinmeyen komut. /help kullanın."
	msgInternalError     = "İşlem sırasında bir hata oluştu."
	cancelKeyword        = "iptal"
	cancelButtonLabel    = "iptal"
	callbackDataCancel   = "cancel"
	callbackKindFollow   = "follow"
	callbackKindUnfollow = "unfollow"
)

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, a.onText)
	a.bot.Handle(tele.OnCallback, a.onCallback)
}

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil {
		return nil
	}
	chatID := m.Chat.ID
	text := m.Text

	// A pending conversation consumes plain text; commands always win.
	if a.sessions.get(chatID) != pendingNone && !strings.HasPrefix(strings.TrimSpace(text), "/") {
		return a.handleFollowSearch(c, chatID, text)
	}

	switch parseCommand(text) {
	case cmdStart:
		return c.Send(msgWelcome)
	case cmdHelp:
		return c.Send(msgHelp)
	case cmdFollow:
		a.sessions.set(chatID, pendingFollowSearch)
		return c.Send(msgFollowPrompt)
	case cmdUnfollow:
		return a.handleUnfollow(c, chatID)
	case cmdMy:
		return a.handleMy(c, chatID)
	case cmdNone, cmdUnknown:
		return c.Send(msgUnknownCommand)
	}
	return nil
}

// handleFollowSearch resolves the pending /follow query into a button menu.
func (a *Adapter) handleFollowSearch(c tele.Context, chatID int64, query string) error {
	if match.Normalize(query) == cancelKeyword {
		a.sessions.clear(chatID)
		return c.Send(msgCancelled)
	}

	ctx, cancel := a.opCtx()
	defer cancel()
	sources, err := a.store.Sources(ctx)
	if err != nil {
		a.log.Error("source list unavailable", logx.Err(err))
		return c.Send(msgInternalError)
	}

	candidates := make([]match.Candidate, 0, len(sources))
	for _, s := range sources {
		candidates = append(candidates, match.Candidate{ID: s.ID, Name: s.Name, Slug: s.ShortName})
	}
	top := match.Top(query, candidates)
	if len(top) == 0 {
		// Keep the session pending so the user can retry without /follow.
		return c.Send(msgNoMatch)
	}

	a.sessions.clear(chatID)
	return c.Send(msgPickOne, pickMenu(callbackKindFollow, top))
}

// handleUnfollow offers the chat's current subscriptions as buttons.
func (a *Adapter) handleUnfollow(c tele.Context, chatID int64) error {
	ctx, cancel := a.opCtx()
	defer cancel()

	subIDs, err := a.store.UserSubscriptions(ctx, chatID)
	if err != nil {
		a.log.Error("subscription list unavailable", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(msgInternalError)
	}
	if len(subIDs) == 0 {
		return c.Send(msgNoSubscriptions)
	}

	var subs []match.Candidate
	for _, id := range subIDs {
		src, err := a.store.SourceByID(ctx, id)
		if err != nil {
			// Stale subscription to a removed source; nothing to offer.
			continue
		}
		subs = append(subs, match.Candidate{ID: src.ID, Name: src.Name})
	}
	if len(subs) == 0 {
		return c.Send(msgNoSubscriptions)
	}
	return c.Send(msgUnfollowPrompt, pickMenu(callbackKindUnfollow, subs))
}

func (a *Adapter) handleMy(c tele.Context, chatID int64) error {
	ctx, cancel := a.opCtx()
	defer cancel()

	subIDs, err := a.store.UserSubscriptions(ctx, chatID)
	if err != nil {
		a.log.Error("subscription list unavailable", logx.Int64("chat", chatID), logx.Err(err))
		return c.Send(msgInternalError)
	}
	if len(subIDs) == 0 {
		return c.Send(msgNoSubscriptions)
	}

	var names []string
	for _, id := range subIDs {
		src, err := a.store.SourceByID(ctx, id)
		if err != nil {
			continue
		}
		names = append(names, src.Name)
	}
	if len(names) == 0 {
		return c.Send(msgNoSubscriptions)
	}
	return c.Send("Takip ettiğiniz birimler:\n\n" + strings.Join(names, "\n"))
}
