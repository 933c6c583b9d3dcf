package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/storagegatebot/models"
)

// handleAdminCommand covers the privileged command set. Authorization
// lives in core, not here: every call goes through the registry's admin
// gate and fails closed, so unknown users get the same refusal as known
// non-admins.
func (b *Bot) handleAdminCommand(ctx context.Context, acc *models.Account, m *tgbotapi.Message, args string) bool {
	chatID := m.Chat.ID
	fields := strings.Fields(args)

	targetID := func() (int64, bool) {
		if len(fields) == 0 {
			return 0, false
		}
		id, err := strconv.ParseInt(fields[0], 10, 64)
		return id, err == nil
	}

	switch m.Command() {
	case "approve":
		id, ok := targetID()
		if !ok {
			b.reply(chatID, "Usage: /approve <user id>")
			return true
		}
		if err := b.registry.Approve(ctx, acc.ID, id); err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Account %d approved.", id))
		b.Notify(id, "Your registration was approved. See /plans to get started.")

	case "reject":
		id, ok := targetID()
		if !ok {
			b.reply(chatID, "Usage: /reject <user id>")
			return true
		}
		if err := b.registry.Reject(ctx, acc.ID, id); err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Registration %d rejected.", id))

	case "ban":
		id, ok := targetID()
		if !ok {
			b.reply(chatID, "Usage: /ban <user id>")
			return true
		}
		if err := b.registry.Ban(ctx, acc.ID, id); err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Account %d banned.", id))

	case "unban":
		id, ok := targetID()
		if !ok {
			b.reply(chatID, "Usage: /unban <user id>")
			return true
		}
		if err := b.registry.Unban(ctx, acc.ID, id); err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Account %d unbanned.", id))

	case "promote":
		id, ok := targetID()
		if !ok {
			b.reply(chatID, "Usage: /promote <user id> [days]")
			return true
		}
		days := 0
		if len(fields) > 1 {
			days, _ = strconv.Atoi(fields[1])
		}
		if err := b.registry.Promote(ctx, acc.ID, id, days); err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Account %d promoted to admin.", id))

	case "demote":
		id, ok := targetID()
		if !ok {
			b.reply(chatID, "Usage: /demote <user id>")
			return true
		}
		if err := b.registry.Demote(ctx, acc.ID, id); err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Account %d demoted.", id))

	case "grant":
		id, ok := targetID()
		if !ok || len(fields) < 2 {
			b.reply(chatID, "Usage: /grant <user id> <plan>")
			return true
		}
		sub, err := b.ledger.Grant(ctx, acc.ID, id, fields[1])
		if err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Granted %s to %d until %s.",
			sub.Plan, id, sub.ExpiresAt.Format("2006-01-02")))
		b.Notify(id, fmt.Sprintf("You were granted the %s plan until %s.",
			sub.Plan, sub.ExpiresAt.Format("2006-01-02")))

	case "extend":
		id, ok := targetID()
		if !ok || len(fields) < 2 {
			b.reply(chatID, "Usage: /extend <user id> <days>")
			return true
		}
		days, err := strconv.Atoi(fields[1])
		if err != nil {
			b.reply(chatID, "Days must be a number.")
			return true
		}
		sub, err := b.ledger.Renew(ctx, acc.ID, id, days)
		if err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Subscription of %d now expires %s.",
			id, sub.ExpiresAt.Format("2006-01-02")))

	case "userinfo":
		id, ok := targetID()
		if !ok {
			b.reply(chatID, "Usage: /userinfo <user id>")
			return true
		}
		b.cmdUserInfo(ctx, acc, chatID, id)

	case "tickets":
		status := ""
		if len(fields) > 0 {
			status = fields[0]
		}
		list, err := b.tickets.List(ctx, acc.ID, status)
		if err != nil {
			b.errReply(chatID, err)
			return true
		}
		if len(list) == 0 {
			b.reply(chatID, "No tickets.")
			return true
		}
		var sb strings.Builder
		for _, t := range list {
			fmt.Fprintf(&sb, "#%d %s %s acct=%d", t.ID, t.Type, t.Status, t.AccountID)
			if t.Plan != "" {
				fmt.Fprintf(&sb, " plan=%s $%.2f", t.Plan, t.Amount)
			}
			if t.Subject != "" {
				fmt.Fprintf(&sb, " %q", t.Subject)
			}
			sb.WriteByte('\n')
		}
		b.reply(chatID, sb.String())

	case "complete":
		id, ok := targetID()
		if !ok {
			b.reply(chatID, "Usage: /complete <ticket id> [notes]")
			return true
		}
		notes := strings.Join(fields[1:], " ")
		sub, err := b.tickets.Complete(ctx, acc.ID, id, notes)
		if err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Ticket #%d completed.", id))
		if sub != nil {
			b.Notify(sub.AccountID, fmt.Sprintf("Payment confirmed. %s plan active until %s.",
				sub.Plan, sub.ExpiresAt.Format("2006-01-02")))
		}

	case "fail":
		id, ok := targetID()
		if !ok {
			b.reply(chatID, "Usage: /fail <ticket id> [notes]")
			return true
		}
		notes := strings.Join(fields[1:], " ")
		if err := b.tickets.Fail(ctx, acc.ID, id, notes); err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Ticket #%d marked failed.", id))

	case "close":
		id, ok := targetID()
		if !ok {
			b.reply(chatID, "Usage: /close <ticket id>")
			return true
		}
		if err := b.tickets.Close(ctx, acc.ID, id); err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Ticket #%d closed.", id))

	case "mint":
		if len(fields) < 1 {
			b.reply(chatID, "Usage: /mint <plan> [ttl days]")
			return true
		}
		ttl := 30
		if len(fields) > 1 {
			ttl, _ = strconv.Atoi(fields[1])
		}
		code, err := b.codes.Mint(ctx, acc.ID, fields[0], ttl)
		if err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Code for %s, valid until %s:\n%s",
			code.Plan, code.ExpiresAt.Format("2006-01-02"), code.Code))

	case "sweep":
		if err := b.registry.RequireAdmin(ctx, acc.ID); err != nil {
			b.errReply(chatID, err)
			return true
		}
		n, err := b.ledger.SweepExpired(ctx)
		if err != nil {
			b.errReply(chatID, err)
			return true
		}
		b.reply(chatID, fmt.Sprintf("Deactivated %d expired subscriptions.", n))

	case "broadcast":
		if args == "" {
			b.reply(chatID, "Usage: /broadcast <message>")
			return true
		}
		if err := b.registry.RequireAdmin(ctx, acc.ID); err != nil {
			b.errReply(chatID, err)
			return true
		}
		go b.broadcast(context.WithoutCancel(ctx), acc.ID, chatID, args)

	default:
		return false
	}
	return true
}

func (b *Bot) cmdUserInfo(ctx context.Context, actor *models.Account, chatID, id int64) {
	if err := b.registry.RequireAdmin(ctx, actor.ID); err != nil {
		b.errReply(chatID, err)
		return
	}
	target, err := b.registry.Account(ctx, id)
	if err != nil {
		b.errReply(chatID, err)
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Account %d @%s\napproved=%v banned=%v admin=%v\n",
		target.ID, target.Username, target.Approved, target.Banned, target.Admin)
	sub, err := b.ledger.Check(ctx, id)
	if err == nil {
		fmt.Fprintf(&sb, "Plan %s, %s of %s used, expires %s\n",
			sub.Plan, humanize.IBytes(uint64(sub.BytesUsed)),
			humanize.IBytes(uint64(sub.QuotaBytes)), sub.ExpiresAt.Format("2006-01-02"))
	} else {
		sb.WriteString("No active subscription\n")
	}
	files, err := b.files.List(ctx, id)
	if err == nil {
		var total int64
		for _, f := range files {
			total += f.Size
		}
		fmt.Fprintf(&sb, "%d files, %s total", len(files), humanize.IBytes(uint64(total)))
	}
	b.reply(chatID, sb.String())
}

// broadcast sends text to every known account, sequentially and paced by
// the rate limiter. A blocked or deleted recipient only bumps the failure
// count; progress is reported back into the admin chat periodically.
func (b *Bot) broadcast(ctx context.Context, actor, chatID int64, text string) {
	ids, err := b.registry.Recipients(ctx)
	if err != nil {
		b.errReply(chatID, err)
		return
	}
	progress, perr := b.api.Send(tgbotapi.NewMessage(chatID,
		fmt.Sprintf("Broadcasting to %d accounts...", len(ids))))

	var sent, failed int
	for i, id := range ids {
		if err := b.limiter.Wait(ctx); err != nil {
			break
		}
		if _, err := b.api.Send(tgbotapi.NewMessage(id, text)); err != nil {
			failed++
		} else {
			sent++
		}
		if perr == nil && (i+1)%25 == 0 {
			edit := tgbotapi.NewEditMessageText(chatID, progress.MessageID,
				fmt.Sprintf("Broadcasting: %d/%d (failed %d)", i+1, len(ids), failed))
			b.api.Send(edit)
		}
	}

	final := fmt.Sprintf("Broadcast finished: %d delivered, %d failed.", sent, failed)
	if perr == nil {
		b.api.Send(tgbotapi.NewEditMessageText(chatID, progress.MessageID, final))
	} else {
		b.reply(chatID, final)
	}
	b.log.Info().Int64("actor", actor).Int("sent", sent).Int("failed", failed).Msg("broadcast done")
}
