package notifier

import (
	"context"
	"sync/atomic"

	kit "sellerbot/internal/transport"
	logx "sellerbot/pkg/logx"
)

// LogSender writes outbound messages to the log instead of a chat. It is used
// when no bot token is configured.
type LogSender struct {
	Log logx.Logger
	seq atomic.Int64
}

func (l *LogSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	buttons := 0
	if opt != nil {
		for _, row := range opt.Keyboard {
			buttons += len(row)
		}
	}
	l.Log.Info("notification (dry-run)",
		logx.Int64("chat_id", to.ChatID),
		logx.Int("buttons", buttons),
		logx.String("text", text),
	)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: int(l.seq.Add(1))}, nil
}
