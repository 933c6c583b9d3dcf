package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	parts := strings.SplitN(q.Data, ":", 2)
	if len(parts) != 2 {
		return
	}
	action, arg := parts[0], parts[1]
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return
	}

	acc, err := b.registry.Touch(ctx, q.From.ID, q.From.UserName)
	if err != nil {
		b.log.Error().Err(err).Int64("user", q.From.ID).Msg("touch account")
		return
	}
	if acc.Banned {
		return
	}
	chatID := q.From.ID
	if q.Message != nil {
		chatID = q.Message.Chat.ID
	}

	switch action {
	case "manage":
		f, err := b.files.Get(ctx, acc.ID, id)
		if err != nil {
			b.answerCallback(q.ID, "Not found")
			return
		}
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Send", fmt.Sprintf("send:%d", f.ID)),
				tgbotapi.NewInlineKeyboardButtonData("Notify on/off", fmt.Sprintf("notify:%d", f.ID)),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Stats", fmt.Sprintf("stats:%d", f.ID)),
				tgbotapi.NewInlineKeyboardButtonData("Delete", fmt.Sprintf("delete:%d", f.ID)),
			),
		)
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s (%s)\n%s",
			f.Name, humanize.IBytes(uint64(f.Size)), b.shareLink(f.Slug)))
		msg.ReplyMarkup = kb
		b.send(msg)
		b.answerCallback(q.ID, "")

	case "send":
		f, err := b.files.Get(ctx, acc.ID, id)
		if err != nil {
			b.answerCallback(q.ID, "Not found")
			return
		}
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileID(f.FileID))
		doc.Caption = f.Name
		b.send(doc)
		b.answerCallback(q.ID, "")

	case "notify":
		on, err := b.files.ToggleNotify(ctx, acc.ID, id)
		if err != nil {
			b.answerCallback(q.ID, "Failed")
			return
		}
		if on {
			b.answerCallback(q.ID, "Notifications on")
		} else {
			b.answerCallback(q.ID, "Notifications off")
		}

	case "stats":
		f, err := b.files.Get(ctx, acc.ID, id)
		if err != nil {
			b.answerCallback(q.ID, "Not found")
			return
		}
		entries, err := b.logs.List(f.ID)
		if err != nil {
			b.answerCallback(q.ID, "Failed")
			return
		}
		if len(entries) == 0 {
			b.answerCallback(q.ID, "No downloads yet")
			return
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s: %d downloads\n", f.Name, len(entries))
		start := 0
		if len(entries) > 10 {
			start = len(entries) - 10
		}
		for _, e := range entries[start:] {
			fmt.Fprintf(&sb, "\n%s  %s  %s %s", e.CreatedAt, e.IP, e.OSName, e.BrowserName)
		}
		b.reply(chatID, sb.String())
		b.answerCallback(q.ID, "")

	case "delete":
		if err := b.deleteFile(ctx, acc.ID, id); err != nil {
			b.answerCallback(q.ID, "Failed")
			return
		}
		b.answerCallback(q.ID, "Deleted")

	case "acc_approve":
		if err := b.registry.Approve(ctx, acc.ID, id); err != nil {
			b.errReply(chatID, err)
			b.answerCallback(q.ID, "")
			return
		}
		b.answerCallback(q.ID, "Approved")
		b.Notify(id, "Your registration was approved. See /plans to get started.")

	case "acc_reject":
		if err := b.registry.Reject(ctx, acc.ID, id); err != nil {
			b.errReply(chatID, err)
			b.answerCallback(q.ID, "")
			return
		}
		b.answerCallback(q.ID, "Rejected")

	case "tk_complete":
		sub, err := b.tickets.Complete(ctx, acc.ID, id, "completed via button")
		if err != nil {
			b.errReply(chatID, err)
			b.answerCallback(q.ID, "")
			return
		}
		b.answerCallback(q.ID, "Completed")
		if sub != nil {
			b.Notify(sub.AccountID, fmt.Sprintf("Payment confirmed. %s plan active until %s.",
				sub.Plan, sub.ExpiresAt.Format("2006-01-02")))
		}

	case "tk_fail":
		b.callbackTicketFail(ctx, q, acc.ID, id, chatID)
	}
}

// deleteFile removes the record, releases its bytes and drops the
// per-file download log.
func (b *Bot) deleteFile(ctx context.Context, actor, fileID int64) error {
	if err := b.files.Delete(ctx, actor, fileID); err != nil {
		return err
	}
	if err := b.logs.Drop(fileID); err != nil {
		b.log.Warn().Err(err).Int64("file", fileID).Msg("drop download log")
	}
	return nil
}

func (b *Bot) callbackTicketFail(ctx context.Context, q *tgbotapi.CallbackQuery, actor, id, chatID int64) {
	tk, gerr := b.tickets.Get(ctx, id)
	if err := b.tickets.Fail(ctx, actor, id, "failed via button"); err != nil {
		b.errReply(chatID, err)
		b.answerCallback(q.ID, "")
		return
	}
	b.answerCallback(q.ID, "Marked failed")
	if gerr == nil {
		b.Notify(tk.AccountID, fmt.Sprintf("Payment for ticket #%d could not be verified.", id))
	}
}
