package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/storagegatebot/core"
	"github.com/example/storagegatebot/models"
)

func (b *Bot) cmdRegister(ctx context.Context, acc *models.Account, chatID int64, secret string) {
	if acc.Approved {
		b.reply(chatID, "You are already registered and approved.")
		return
	}
	if _, err := b.registry.Register(ctx, acc.ID, acc.Username, secret); err != nil {
		if errors.Is(err, core.ErrUnauthorized) {
			b.reply(chatID, "Invalid registration secret.")
			return
		}
		b.errReply(chatID, err)
		return
	}
	b.reply(chatID, "Registration received. An admin will review it shortly.")

	if b.cfg.AdminID != 0 {
		msg := tgbotapi.NewMessage(b.cfg.AdminID,
			fmt.Sprintf("New registration: @%s (%d)", acc.Username, acc.ID))
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Approve", fmt.Sprintf("acc_approve:%d", acc.ID)),
				tgbotapi.NewInlineKeyboardButtonData("Reject", fmt.Sprintf("acc_reject:%d", acc.ID)),
			),
		)
		msg.ReplyMarkup = kb
		b.send(msg)
	}
}

func (b *Bot) cmdPlans(chatID int64) {
	var sb strings.Builder
	sb.WriteString("Available plans:\n")
	for _, p := range models.Plans() {
		fmt.Fprintf(&sb, "\n%s (%s) - %s for %d days, $%.2f",
			p.Name, p.ID, humanize.IBytes(uint64(p.QuotaBytes)), p.DurationDays, p.PriceUSD)
	}
	sb.WriteString("\n\nUse /subscribe <plan> to order one.")
	b.reply(chatID, sb.String())
}

func (b *Bot) cmdSubscribe(ctx context.Context, acc *models.Account, chatID int64, planID string) {
	if !acc.Approved {
		b.reply(chatID, "Your account is not approved yet. Use /register first.")
		return
	}
	if planID == "" {
		b.reply(chatID, "Usage: /subscribe <plan>. See /plans.")
		return
	}
	tk, err := b.tickets.Open(ctx, acc.ID, planID)
	if err != nil {
		if errors.Is(err, core.ErrConflict) {
			b.reply(chatID, "You already have an open payment ticket. Wait for it to be processed or contact support.")
			return
		}
		b.errReply(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Ticket #%d opened for the %s plan ($%.2f). An admin will verify your payment and activate the subscription.",
		tk.ID, tk.Plan, tk.Amount))

	if b.cfg.AdminID != 0 {
		msg := tgbotapi.NewMessage(b.cfg.AdminID,
			fmt.Sprintf("Payment ticket #%d: @%s (%d) wants %s ($%.2f)",
				tk.ID, acc.Username, acc.ID, tk.Plan, tk.Amount))
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Complete", fmt.Sprintf("tk_complete:%d", tk.ID)),
				tgbotapi.NewInlineKeyboardButtonData("Fail", fmt.Sprintf("tk_fail:%d", tk.ID)),
			),
		)
		msg.ReplyMarkup = kb
		b.send(msg)
	}
}

func (b *Bot) cmdRedeem(ctx context.Context, acc *models.Account, chatID int64, code string) {
	if code == "" {
		b.reply(chatID, "Usage: /redeem <code>")
		return
	}
	sub, err := b.codes.Redeem(ctx, acc.ID, code)
	if err != nil {
		b.errReply(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Code redeemed. %s plan active until %s.",
		sub.Plan, sub.ExpiresAt.Format("2006-01-02")))
}

func (b *Bot) cmdStatus(ctx context.Context, acc *models.Account, chatID int64) {
	sub, err := b.ledger.Check(ctx, acc.ID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			b.reply(chatID, "No active subscription. See /plans.")
			return
		}
		b.errReply(chatID, err)
		return
	}
	left := time.Until(sub.ExpiresAt)
	days := int(left.Hours() / 24)
	b.reply(chatID, fmt.Sprintf("Plan: %s\nUsed: %s of %s\nExpires: %s (%d days left)",
		sub.Plan,
		humanize.IBytes(uint64(sub.BytesUsed)), humanize.IBytes(uint64(sub.QuotaBytes)),
		sub.ExpiresAt.Format("2006-01-02"), days))
}

func (b *Bot) cmdFiles(ctx context.Context, acc *models.Account, chatID int64) {
	files, err := b.files.List(ctx, acc.ID)
	if err != nil {
		b.errReply(chatID, err)
		return
	}
	if len(files) == 0 {
		b.reply(chatID, "No stored files.")
		return
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, f := range files {
		label := fmt.Sprintf("%s (%s)", f.Name, humanize.IBytes(uint64(f.Size)))
		btn := tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("manage:%d", f.ID))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	msg := tgbotapi.NewMessage(chatID, "Your files:")
	msg.ReplyMarkup = &kb
	b.send(msg)
}

func (b *Bot) cmdSupport(ctx context.Context, acc *models.Account, chatID int64, subject string) {
	if subject == "" {
		b.convs.begin(acc.ID, &conversation{state: stateSupportSubject})
		msg := tgbotapi.NewMessage(chatID, "Describe your issue in one message (or /cancel):")
		msg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true}
		b.send(msg)
		return
	}
	b.openSupportTicket(ctx, acc, chatID, subject)
}

func (b *Bot) openSupportTicket(ctx context.Context, acc *models.Account, chatID int64, subject string) {
	tk, err := b.tickets.OpenSupport(ctx, acc.ID, subject)
	if err != nil {
		b.errReply(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Support ticket #%d opened. An admin will get back to you.", tk.ID))
	if b.cfg.AdminID != 0 {
		b.send(tgbotapi.NewMessage(b.cfg.AdminID,
			fmt.Sprintf("Support ticket #%d from @%s (%d): %s", tk.ID, acc.Username, acc.ID, subject)))
	}
}

func (b *Bot) continueConversation(ctx context.Context, acc *models.Account, conv *conversation, m *tgbotapi.Message) {
	switch conv.state {
	case stateUploadName:
		name := strings.TrimSpace(m.Text)
		if name == "" {
			name = conv.fileName
		}
		b.finalizeUpload(ctx, acc, conv, m.Chat.ID, name)
	case stateSupportSubject:
		b.convs.clear(acc.ID)
		subject := strings.TrimSpace(m.Text)
		if subject == "" {
			b.reply(m.Chat.ID, "Empty subject, ticket not opened.")
			return
		}
		b.openSupportTicket(ctx, acc, m.Chat.ID, subject)
	}
}
