package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/example/storagegatebot/config"
	"github.com/example/storagegatebot/core"
	"github.com/example/storagegatebot/logdb"
	"github.com/example/storagegatebot/models"
)

type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config
	log zerolog.Logger

	registry *core.Registry
	ledger   *core.Ledger
	tickets  *core.Tickets
	codes    *core.Codes
	files    *core.Files
	logs     *logdb.DB

	convs   *conversations
	limiter *rate.Limiter
}

func New(cfg *config.Config, log zerolog.Logger, registry *core.Registry, ledger *core.Ledger,
	tickets *core.Tickets, codes *core.Codes, files *core.Files, logs *logdb.DB) (*Bot, error) {

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	perSecond := cfg.BroadcastPerSecond
	if perSecond <= 0 {
		perSecond = 20
	}
	return &Bot{
		api:      api,
		cfg:      cfg,
		log:      log,
		registry: registry,
		ledger:   ledger,
		tickets:  tickets,
		codes:    codes,
		files:    files,
		logs:     logs,
		convs:    newConversations(cfg.ConversationTimeout()),
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
	}, nil
}

// Start runs the long-poll loop until ctx is cancelled. Every update is an
// independent unit of work; a panicking handler is recovered and logged so
// one bad update cannot take the dispatcher down.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("handler panic")
		}
	}()
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	}
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	acc, err := b.registry.Touch(ctx, m.From.ID, m.From.UserName)
	if err != nil {
		b.log.Error().Err(err).Int64("user", m.From.ID).Msg("touch account")
		return
	}
	if acc.Banned {
		return
	}

	if m.IsCommand() {
		b.handleCommand(ctx, acc, m)
		return
	}

	conv, live := b.convs.get(acc.ID)
	if conv != nil && !live {
		// Timed out mid-command; hand back whatever it reserved.
		b.abandonConversation(ctx, acc.ID, conv)
	}
	if live && m.Document == nil {
		b.continueConversation(ctx, acc, conv, m)
		return
	}

	if m.Document != nil {
		b.handleDocument(ctx, acc, m)
	}
}

func (b *Bot) handleCommand(ctx context.Context, acc *models.Account, m *tgbotapi.Message) {
	args := strings.TrimSpace(m.CommandArguments())
	switch m.Command() {
	case "start", "help":
		b.reply(m.Chat.ID, helpText)
	case "register":
		b.cmdRegister(ctx, acc, m.Chat.ID, args)
	case "plans":
		b.cmdPlans(m.Chat.ID)
	case "subscribe":
		b.cmdSubscribe(ctx, acc, m.Chat.ID, args)
	case "redeem":
		b.cmdRedeem(ctx, acc, m.Chat.ID, args)
	case "status":
		b.cmdStatus(ctx, acc, m.Chat.ID)
	case "files":
		b.cmdFiles(ctx, acc, m.Chat.ID)
	case "support":
		b.cmdSupport(ctx, acc, m.Chat.ID, args)
	case "cancel":
		if conv, ok := b.convs.take(acc.ID); ok {
			b.abandonConversation(ctx, acc.ID, conv)
		}
		b.reply(m.Chat.ID, "Cancelled.")
	case "qr":
		b.cmdQR(acc, m.Chat.ID, args)
	default:
		if b.handleAdminCommand(ctx, acc, m, args) {
			return
		}
		b.reply(m.Chat.ID, "Unknown command. Try /help.")
	}
}

const helpText = `Storage gate bot.

/register <secret> - request access
/plans - available plans
/subscribe <plan> - open a payment ticket
/redeem <code> - redeem an access code
/status - subscription and quota
/files - your stored files
/support <subject> - open a support ticket
/qr <text> - generate a QR code
/cancel - abort the current step

Send a document to store it (subscription required).`

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn().Err(err).Int64("chat", chatID).Msg("send reply")
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Warn().Err(err).Msg("send")
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Warn().Err(err).Msg("answer callback")
	}
}

// Notify sends a message to an account by its platform id. Used by the
// share-link server for download notifications.
func (b *Bot) Notify(accountID int64, message string) error {
	_, err := b.api.Send(tgbotapi.NewMessage(accountID, message))
	return err
}

// FileURL resolves a transport file handle to a direct download URL.
func (b *Bot) FileURL(fileID string) (string, error) {
	return b.api.GetFileDirectURL(fileID)
}

// PurgeStaleConversations drops multi-step commands that ran past the
// conversation timeout, releasing any quota reservation they still hold.
// Called from the background sweeper.
func (b *Bot) PurgeStaleConversations() int {
	stale := b.convs.purgeStale(time.Now())
	for id, conv := range stale {
		b.abandonConversation(context.Background(), id, conv)
	}
	return len(stale)
}

// errReply maps the error taxonomy to user-facing messages. Unknown
// errors get a generic line and a log entry; transient ones already
// exhausted their retries in the store.
func (b *Bot) errReply(chatID int64, err error) {
	var text string
	switch {
	case errors.Is(err, core.ErrNotFound):
		text = "Not found."
	case errors.Is(err, core.ErrConflict):
		text = "That conflicts with the current state. Finish or cancel what is already in progress first."
	case errors.Is(err, core.ErrQuotaExceeded):
		text = "Not enough storage quota. Delete some files or upgrade your plan."
	case errors.Is(err, core.ErrUnauthorized):
		text = "You are not allowed to do that."
	case errors.Is(err, core.ErrInvalidInput):
		text = "Invalid input. Check the command arguments and try again."
	case core.IsTransient(err):
		text = "Storage is busy right now, please try again in a moment."
	default:
		b.log.Error().Err(err).Int64("chat", chatID).Msg("handler error")
		text = "Something went wrong."
	}
	b.reply(chatID, text)
}
