package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"
)

// telegramRate is the global send budget, messages per second. Telegram
// throttles bots beyond ~30 msg/s; one limiter covers all sentinels.
const telegramRate = 25

// TelegramNotifier delivers alerts to a Telegram chat. Targets use the form
// "telegram:<chat_id>".
type TelegramNotifier struct {
	bot     *bot.Bot
	limiter *rate.Limiter
}

// NewTelegramNotifier creates a notifier from a bot token.
func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &TelegramNotifier{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(telegramRate), telegramRate),
	}, nil
}

var _ Notifier = (*TelegramNotifier)(nil)

// Notify sends the alert to the chat encoded in the target.
func (n *TelegramNotifier) Notify(ctx context.Context, target string, alert Alert) error {
	chatStr := strings.TrimPrefix(target, "telegram:")
	chatID, err := strconv.ParseInt(chatStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram target %q: %w", target, err)
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}

	text := fmt.Sprintf(
		"*%s*\n\n*Value:* %.6f\n*Threshold:* %s %.6f\n%s",
		alert.Title,
		alert.CurrentValue,
		alert.Condition,
		alert.Threshold,
		alert.Message,
	)

	_, err = n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// Router dispatches alerts by target scheme: http(s) URLs go to the webhook
// notifier, "telegram:" targets to the telegram notifier when configured.
type Router struct {
	Webhook  Notifier
	Telegram Notifier // nil when no bot token is configured
}

var _ Notifier = (*Router)(nil)

// Notify routes the alert to the notifier matching the target.
func (r *Router) Notify(ctx context.Context, target string, alert Alert) error {
	switch {
	case strings.HasPrefix(target, "telegram:"):
		if r.Telegram == nil {
			return fmt.Errorf("telegram target %q but no bot configured", target)
		}
		return r.Telegram.Notify(ctx, target, alert)
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		return r.Webhook.Notify(ctx, target, alert)
	default:
		return fmt.Errorf("unsupported notification target %q", target)
	}
}
