package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"LiqPulse/internal/domain/models"
	"LiqPulse/internal/service/ratelimit"
	"LiqPulse/pkg/logger"
)

const limiterKey = "telegram"

// Config holds bot credentials and the outbound send budget.
type Config struct {
	Token          string
	ChatID         int64
	SendsPerSecond float64
	BurstCapacity  float64
}

// Sink delivers alerts to a Telegram chat. Sends past the rate budget are
// dropped with an error rather than queued; delivery is at most once.
type Sink struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	limiter *ratelimit.Limiter
	cfg     Config
	log     *logger.Logger
}

// New authenticates the bot and returns a Sink.
func New(cfg Config, log *logger.Logger) (*Sink, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	if cfg.SendsPerSecond <= 0 {
		cfg.SendsPerSecond = 1
	}
	if cfg.BurstCapacity <= 0 {
		cfg.BurstCapacity = 5
	}
	log.Info("telegram sink ready", logger.String("account", bot.Self.UserName))
	return &Sink{
		bot:     bot,
		chatID:  cfg.ChatID,
		limiter: ratelimit.New(),
		cfg:     cfg,
		log:     log,
	}, nil
}

// ErrRateLimited is returned when the send budget is exhausted.
var ErrRateLimited = fmt.Errorf("telegram send budget exhausted")

// Notify formats and sends one alert message.
func (s *Sink) Notify(ctx context.Context, a *models.Alert) error {
	if !s.limiter.Allow(limiterKey, s.cfg.BurstCapacity, s.cfg.SendsPerSecond) {
		return ErrRateLimited
	}

	msg := tgbotapi.NewMessage(s.chatID, FormatAlert(a))
	msg.ParseMode = tgbotapi.ModeMarkdown

	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(msg)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}

	s.log.Debug("alert delivered",
		logger.String("instrument", a.Instrument),
		logger.String("label", a.Classification.Label))
	return nil
}

// Close is a no-op; the bot client holds no persistent connection.
func (s *Sink) Close() error { return nil }

// FormatAlert renders the human-readable alert body.
func FormatAlert(a *models.Alert) string {
	st := a.Stats
	emoji := "🔻"
	if a.Classification.Direction == "up" {
		emoji = "🔺"
	}
	return fmt.Sprintf(
		"%s *%s* — %s\n"+
			"Volume: `%s` over %.0fs (%d fills)\n"+
			"Dominance: `%.1f%%` %s\n"+
			"Price: `%.6g → %.6g` (%+.2f%%)\n"+
			"_%s_",
		emoji, a.Instrument, a.Classification.Label,
		formatUSD(st.TotalVolume), st.DurationSec, st.EventCount,
		st.DominancePct, st.DominantSide,
		st.FirstPrice, st.LastPrice, st.PriceChangePct,
		a.DetectedAt.UTC().Format(time.RFC3339),
	)
}

func formatUSD(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}
