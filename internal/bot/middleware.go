package bot

import (
	"runtime/debug"
	"time"

	"turfbook/internal/metrics"
)

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// isAdmin пускает и чат из настроек, и пользователя из настроек в личке.
func (b *Bot) isAdmin(chatID, userID int64) bool {
	return b.admins[chatID] || b.admins[userID]
}

func observeUpdate(command string, elapsed time.Duration) {
	metrics.ObserveBotUpdate(command, elapsed)
}
