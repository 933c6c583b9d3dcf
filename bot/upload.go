package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/storagegatebot/core"
	"github.com/example/storagegatebot/models"
	"github.com/example/storagegatebot/server"
)

// handleDocument is the admission path: quota is reserved up front, the
// record lands only once the transport confirms it holds the file, and
// the reserved bytes become used bytes only then. A failed transfer hands
// the reservation back.
func (b *Bot) handleDocument(ctx context.Context, acc *models.Account, m *tgbotapi.Message) {
	if !acc.Approved {
		b.reply(m.Chat.ID, "Your account is not approved yet. Use /register first.")
		return
	}
	if _, ok := b.convs.get(acc.ID); ok {
		b.reply(m.Chat.ID, "Finish or /cancel the previous step first.")
		return
	}

	if _, err := b.ledger.Check(ctx, acc.ID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			b.reply(m.Chat.ID, "You need an active subscription to store files. See /plans.")
			return
		}
		b.errReply(m.Chat.ID, err)
		return
	}

	size := int64(m.Document.FileSize)
	if err := b.files.Reserve(ctx, acc.ID, size); err != nil {
		if errors.Is(err, core.ErrQuotaExceeded) {
			sub, serr := b.ledger.Check(ctx, acc.ID)
			if serr == nil {
				b.reply(m.Chat.ID, fmt.Sprintf("Not enough quota: file is %s, you have %s free. Delete files or upgrade your plan.",
					humanize.IBytes(uint64(size)), humanize.IBytes(uint64(sub.FreeBytes()))))
				return
			}
		}
		b.errReply(m.Chat.ID, err)
		return
	}

	b.convs.begin(acc.ID, &conversation{
		state:    stateUploadName,
		fileID:   m.Document.FileID,
		fileName: m.Document.FileName,
		fileSize: size,
		fileKind: m.Document.MimeType,
	})
	msg := tgbotapi.NewMessage(m.Chat.ID, "Reply with a name for this file (or /cancel):")
	msg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true}
	b.send(msg)
}

func (b *Bot) finalizeUpload(ctx context.Context, acc *models.Account, conv *conversation, chatID int64, name string) {
	b.convs.clear(acc.ID)

	// Confirm the transport still holds the file before committing the
	// reserved bytes.
	if _, err := b.api.GetFile(tgbotapi.FileConfig{FileID: conv.fileID}); err != nil {
		if aerr := b.files.Abort(ctx, acc.ID, conv.fileSize); aerr != nil {
			b.log.Error().Err(aerr).Int64("account", acc.ID).Msg("abort reservation")
		}
		b.reply(chatID, "The file is no longer available, upload it again.")
		return
	}

	f := &models.File{
		AccountID: acc.ID,
		Name:      name,
		Kind:      conv.fileKind,
		Size:      conv.fileSize,
		FileID:    conv.fileID,
	}
	if err := b.files.Store(ctx, f); err != nil {
		b.errReply(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Stored %s (%s).\nShare link: %s",
		f.Name, humanize.IBytes(uint64(f.Size)), b.shareLink(f.Slug)))
}

// abandonConversation releases whatever a dropped conversation still
// holds. An upload conversation carries a live quota reservation from
// handleDocument; leaving it behind would burn quota with zero bytes
// stored.
func (b *Bot) abandonConversation(ctx context.Context, accountID int64, conv *conversation) {
	if conv.state != stateUploadName || conv.fileSize <= 0 {
		return
	}
	if err := b.files.Abort(ctx, accountID, conv.fileSize); err != nil {
		b.log.Error().Err(err).Int64("account", accountID).Msg("release upload reservation")
	}
}

func (b *Bot) shareLink(slug string) string {
	return server.ShareLink(b.cfg, slug)
}
