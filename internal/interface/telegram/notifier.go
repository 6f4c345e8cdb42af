package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/noctua-health/noctua/internal/domain/shared"
	exttelegram "github.com/noctua-health/noctua/internal/infrastructure/external/telegram"
	"github.com/noctua-health/noctua/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFIER
// Turns engine events into celebration messages. Deliveries outside the
// safe window go silent so a 3am level-up never wakes anyone. For private
// chats the Telegram chat ID equals the user ID, so events carry enough
// addressing on their own.
// ══════════════════════════════════════════════════════════════════════════════

// sender is the slice of the API client the notifier needs.
type sender interface {
	SendHTML(ctx context.Context, chatID int64, html string) (*exttelegram.Message, error)
	SendMessage(ctx context.Context, params exttelegram.SendMessageParams) (*exttelegram.Message, error)
}

// Notifier subscribes to the event bus and delivers user-facing messages.
type Notifier struct {
	client  sender
	logger  *slog.Logger
	loc     *time.Location
	timeout time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewNotifier creates a Notifier. loc controls the quiet-hours window;
// nil means UTC.
func NewNotifier(client sender, logger *slog.Logger, loc *time.Location) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		client:  client,
		logger:  logger,
		loc:     loc,
		timeout: 10 * time.Second,
		now:     time.Now,
	}
}

// Subscribe registers the notifier's handlers on the bus.
func (n *Notifier) Subscribe(bus shared.EventSubscriber) error {
	for _, eventType := range []shared.EventType{
		shared.EventLevelUp,
		shared.EventAchievementUnlocked,
		shared.EventQuestCompleted,
		shared.EventQuestExpired,
		shared.EventStreakBroken,
		shared.EventEvolutionStageChanged,
	} {
		if err := bus.Subscribe(eventType, n.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", eventType, err)
		}
	}
	return nil
}

// Handle renders and delivers one event. Unknown event types are ignored.
func (n *Notifier) Handle(event shared.Event) error {
	text := n.render(event)
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	silent := !timeutil.IsSafeNotificationTime(n.now(), n.loc)
	_, err := n.client.SendMessage(ctx, exttelegram.SendMessageParams{
		ChatID:              event.UserID(),
		Text:                text,
		ParseMode:           "HTML",
		DisableNotification: silent,
	})
	if err != nil {
		if exttelegram.IsUserBlocked(err) || exttelegram.IsChatNotFound(err) {
			n.logger.Debug("notification dropped, recipient unreachable",
				"user_id", event.UserID(),
				"event_type", string(event.EventType()),
			)
			return nil
		}
		return fmt.Errorf("deliver %s: %w", event.EventType(), err)
	}
	return nil
}

func (n *Notifier) render(event shared.Event) string {
	payload := event.Payload()

	switch event.EventType() {
	case shared.EventLevelUp:
		return fmt.Sprintf("🎉 Level up! You're now level <b>%v</b>. Keep those calm nights coming.", payload["new_level"])

	case shared.EventAchievementUnlocked:
		if id, ok := payload["achievement_id"].(string); ok {
			return fmt.Sprintf("🏅 New badge unlocked: <b>%s</b>", BadgeName(id))
		}

	case shared.EventQuestCompleted:
		return fmt.Sprintf("🗺 Quest complete! <b>+%v XP</b> earned.", payload["xp_reward"])

	case shared.EventQuestExpired:
		return "🗺 A quest quietly expired. A fresh one is waiting whenever you are."

	case shared.EventStreakBroken:
		if soft, _ := payload["soft_reset"].(bool); soft {
			return fmt.Sprintf("💚 You missed a day, so your streak gently rests at <b>%v</b>. Progress isn't lost - tonight is a fresh start.", payload["new_count"])
		}
		return "🔥 Your streak reset. Every good night's sleep starts a new one."

	case shared.EventEvolutionStageChanged:
		if stage, ok := payload["new_stage"].(string); ok {
			return fmt.Sprintf("🦉 Your owl evolved into <b>%s</b>!", StageName(stage))
		}
	}
	return ""
}
