package stock

import (
	"context"
	"fmt"
	"strings"

	"sellerbot/internal/marketplace"
	logx "sellerbot/pkg/logx"
)

// Sender delivers text into a marketplace chat. marketplace.Account
// satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Reporter tells the operators about delivery problems.
type Reporter interface {
	Report(ctx context.Context, text string)
}

// Outcome describes one delivery attempt.
type Outcome struct {
	Product   string
	Wanted    int
	Values    []string
	Delivered bool
	Short     bool
}

// Deliverer pops stock for new orders and sends it to the buyer's chat.
type Deliverer struct {
	queue    *Queue
	sender   Sender
	reporter Reporter
	log      logx.Logger
}

func NewDeliverer(q *Queue, sender Sender, reporter Reporter, log logx.Logger) *Deliverer {
	return &Deliverer{queue: q, sender: sender, reporter: reporter, log: log.With(logx.String("comp", "delivery"))}
}

// Deliver pops Quantity values (at least one) for the order's product and
// sends them to the order chat. Nothing is popped for an order without a chat.
//
// Popped values are never pushed back: on shortage or send failure they are
// included in the operator report so they can be handed over manually.
func (d *Deliverer) Deliver(ctx context.Context, o marketplace.Order) Outcome {
	out := Outcome{Product: o.Product, Wanted: o.Quantity}
	if out.Wanted < 1 {
		out.Wanted = 1
	}
	if strings.TrimSpace(o.ChatID) == "" {
		d.log.Debug("order has no chat; skipping delivery", logx.String("order", o.ID))
		return out
	}
	avail, err := d.queue.Count(ctx, o.Product)
	if err != nil {
		d.log.Warn("stock count failed", logx.String("order", o.ID), logx.Err(err))
		return out
	}
	if avail == 0 {
		known, err := d.queue.Known(ctx, o.Product)
		if err != nil {
			d.log.Warn("known products lookup failed", logx.String("order", o.ID), logx.Err(err))
		}
		if !known {
			// Never stocked; not an auto-delivery item.
			return out
		}
	}

	for len(out.Values) < out.Wanted {
		v, ok, err := d.queue.Pop(ctx, o.Product)
		if err != nil {
			d.log.Warn("stock pop failed", logx.String("order", o.ID), logx.Err(err))
			break
		}
		if !ok {
			break
		}
		out.Values = append(out.Values, v)
	}
	out.Short = len(out.Values) < out.Wanted

	if len(out.Values) == 0 {
		d.report(ctx, fmt.Sprintf("⚠️ Автовыдача: товар «%s» закончился (заказ #%s).", o.Product, o.ID))
		return out
	}

	text := "Спасибо за покупку! Ваш товар:\n\n" + strings.Join(out.Values, "\n")
	if err := d.sender.SendMessage(ctx, o.ChatID, text); err != nil {
		d.log.Warn("delivery send failed", logx.String("order", o.ID), logx.Err(err))
		d.report(ctx, fmt.Sprintf("❌ Автовыдача: не удалось отправить товар по заказу #%s.\nВыданные значения:\n%s",
			o.ID, strings.Join(out.Values, "\n")))
		return out
	}
	out.Delivered = true
	d.log.Info("order delivered", logx.String("order", o.ID), logx.String("product", o.Product), logx.Int("count", len(out.Values)))

	if out.Short {
		d.report(ctx, fmt.Sprintf("⚠️ Автовыдача: по заказу #%s выдано %d из %d, товар «%s» закончился.",
			o.ID, len(out.Values), out.Wanted, o.Product))
	}
	return out
}

func (d *Deliverer) report(ctx context.Context, text string) {
	if d.reporter == nil {
		return
	}
	d.reporter.Report(ctx, text)
}
