package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/example/storagegatebot/models"
)

// cmdQR renders a QR code for the given text. Encoding happens off the
// dispatcher goroutine; the result is reported back into the chat when
// ready.
func (b *Bot) cmdQR(acc *models.Account, chatID int64, text string) {
	if text == "" {
		b.reply(chatID, "Usage: /qr <text>")
		return
	}
	if len(text) > 1024 {
		b.reply(chatID, "Text too long for a QR code.")
		return
	}
	go func() {
		png, err := qrcode.Encode(text, qrcode.Medium, 512)
		if err != nil {
			b.log.Warn().Err(err).Int64("account", acc.ID).Msg("qr encode")
			b.reply(chatID, "Could not encode that text as a QR code.")
			return
		}
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "qr.png", Bytes: png})
		b.send(photo)
	}()
}
