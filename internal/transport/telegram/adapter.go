// Package telegram is the bot-facing edge: long polling, the subscribe and
// unsubscribe conversation, and outbound message delivery for the notifier.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"duyurubot/internal/storage"
	"duyurubot/pkg/logx"
)

// opTimeout bounds store lookups made from update handlers.
const opTimeout = 10 * time.Second

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Store is the persistence surface the conversation needs.
type Store interface {
	Sources(ctx context.Context) ([]storage.Source, error)
	SourceByID(ctx context.Context, id int64) (storage.Source, error)
	UserSubscriptions(ctx context.Context, chatID int64) ([]int64, error)
	AddSubscription(ctx context.Context, chatID, sourceID int64, displayName, handle string) (bool, error)
	RemoveSubscription(ctx context.Context, chatID, sourceID int64) (bool, error)
}

type Adapter struct {
	cfg   Config
	log   logx.Logger
	store Store
	bot   *tele.Bot

	sessions sessionStore

	runMu     sync.Mutex
	running   bool
	runCtx    context.Context
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

func New(cfg Config, store Store, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		cfg:      cfg,
		log:      log,
		store:    store,
		bot:      b,
		sessions: newSessionStore(),
	}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.runCtx, a.runCancel = context.WithCancel(ctx)

	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		go func() {
			<-a.runCtx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop()
	}()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()
	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	// Keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

// Send delivers one plain-text message with the inline link preview
// suppressed. Implements notify.Messenger.
func (a *Adapter) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := a.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		DisableWebPagePreview: true,
	})
	return err
}

// opCtx derives a bounded context for store calls made from update handlers.
func (a *Adapter) opCtx() (context.Context, context.CancelFunc) {
	a.runMu.Lock()
	base := a.runCtx
	a.runMu.Unlock()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, opTimeout)
}

// displayName mirrors how the bot labels a sender: full name, then first
// name, then @username.
func displayName(u *tele.User) string {
	if u == nil {
		return "Unknown User"
	}
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	}
	return "Unknown User"
}
