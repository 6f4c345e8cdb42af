// Package telegram implements the Telegram bot interface of the Noctua
// sleep coach. It is the entry point for all chat interactions: routing
// updates to command handlers, rendering engine results, and delivering
// event-driven celebration messages.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	app "github.com/noctua-health/noctua/internal/application/gamification"
	"github.com/noctua-health/noctua/internal/domain/gamification"
	exttelegram "github.com/noctua-health/noctua/internal/infrastructure/external/telegram"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// Token is the Telegram Bot API token.
	Token string

	// PollingTimeout is the timeout for long polling (in seconds).
	PollingTimeout int

	// MaxConcurrentUpdates limits concurrent update processing.
	MaxConcurrentUpdates int

	// Debug enables debug logging.
	Debug bool

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig(token string) BotConfig {
	return BotConfig{
		Token:                token,
		PollingTimeout:       30,
		MaxConcurrentUpdates: 100,
		Logger:               slog.Default(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter throttles command handling per user. The Redis-backed
// implementation lives in the infrastructure layer; without one the bot
// handles every command.
type RateLimiter interface {
	Allow(ctx context.Context, userID int64, action string) (bool, error)
	Reset(ctx context.Context, userID int64) error
}

// Bot is the main Telegram bot controller.
type Bot struct {
	config  BotConfig
	client  *exttelegram.Client
	engine  *app.Engine
	logger  *slog.Logger
	limiter RateLimiter

	commands  map[string]func(ctx context.Context, msg *exttelegram.Message) error
	callbacks map[string]func(ctx context.Context, query *exttelegram.CallbackQuery) error

	running   bool
	runningMu sync.Mutex
	updateSem chan struct{}
	wg        sync.WaitGroup
}

// NewBot creates the bot and registers its command handlers.
func NewBot(config BotConfig, engine *app.Engine) (*Bot, error) {
	if config.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = 100
	}

	clientConfig := exttelegram.DefaultClientConfig(config.Token)
	clientConfig.Logger = config.Logger
	clientConfig.Debug = config.Debug

	b := &Bot{
		config:    config,
		client:    exttelegram.NewClient(clientConfig),
		engine:    engine,
		logger:    config.Logger,
		updateSem: make(chan struct{}, config.MaxConcurrentUpdates),
	}

	b.commands = map[string]func(ctx context.Context, msg *exttelegram.Message) error{
		"start":      b.handleStart,
		"help":       b.handleHelp,
		"checkin":    b.handleCheckIn,
		"profile":    b.handleProfile,
		"quests":     b.handleQuests,
		"badges":     b.handleBadges,
		"settings":   b.handleSettings,
		"export":     b.handleExport,
		"deletedata": b.handleDeleteData,
	}
	b.callbacks = map[string]func(ctx context.Context, query *exttelegram.CallbackQuery) error{
		"settings:compassion": b.toggleCompassion,
		"settings:softreset":  b.toggleSoftReset,
		"delete:confirm":      b.confirmDelete,
		"delete:cancel":       b.cancelDelete,
	}

	return b, nil
}

// Client exposes the underlying API client, used by the notifier.
func (b *Bot) Client() *exttelegram.Client {
	return b.client
}

// SetRateLimiter installs a per-user command limiter. Must be called
// before Start.
func (b *Bot) SetRateLimiter(l RateLimiter) {
	b.limiter = l
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start verifies the token and begins long polling. It blocks until the
// context is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.runningMu.Unlock()

	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify bot token: %w", err)
	}
	b.logger.Info("starting telegram bot", "username", me.Username)

	err = b.client.StartPolling(ctx, b.dispatch)
	b.wg.Wait()

	b.runningMu.Lock()
	b.running = false
	b.runningMu.Unlock()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// dispatch fans updates out to handler goroutines, bounded by the
// semaphore.
func (b *Bot) dispatch(ctx context.Context, update *exttelegram.Update) error {
	select {
	case b.updateSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.updateSem }()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("panic in update handler", "panic", r)
			}
		}()

		if err := b.handleUpdate(ctx, update); err != nil {
			b.logger.Error("update handling failed",
				"update_id", update.UpdateID,
				"error", err,
			)
		}
	}()

	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update *exttelegram.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		return b.handleMessage(ctx, update.Message)
	default:
		return nil
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *exttelegram.Message) error {
	if !exttelegram.IsPrivateChat(msg) || msg.From == nil {
		return nil
	}

	// Safety first: any message is scanned before gamification runs.
	if ContainsCrisisLanguage(msg.Text) {
		_, err := b.client.SendHTML(ctx, msg.Chat.ID, CrisisResponse())
		return err
	}

	command := exttelegram.ExtractCommand(msg)
	if command == "" {
		return nil
	}

	handler, ok := b.commands[command]
	if !ok {
		_, err := b.client.SendText(ctx, msg.Chat.ID, "Unknown command. Try /help")
		return err
	}

	if b.limiter != nil {
		allowed, err := b.limiter.Allow(ctx, msg.From.ID, command)
		if err != nil {
			// Limiter trouble never blocks the user.
			b.logger.Warn("rate limit check failed",
				"user_id", msg.From.ID,
				"error", err,
			)
		} else if !allowed {
			_, err := b.client.SendText(ctx, msg.Chat.ID, "Easy there 🌙 You're sending commands faster than I can hoot. Give it a minute.")
			return err
		}
	}

	if err := handler(ctx, msg); err != nil {
		b.logger.Error("command failed",
			"command", command,
			"user_id", msg.From.ID,
			"error", err,
		)
		_, sendErr := b.client.SendText(ctx, msg.Chat.ID, "Something went wrong. Please try again in a moment.")
		return errors.Join(err, sendErr)
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, query *exttelegram.CallbackQuery) error {
	handler, ok := b.callbacks[query.Data]
	if !ok {
		return b.client.AnswerCallbackQuery(ctx, query.ID, "", false)
	}
	return handler(ctx, query)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) handleStart(ctx context.Context, msg *exttelegram.Message) error {
	text := fmt.Sprintf(
		"Good evening, %s 🌙\n\n"+
			"I'm Noctua, your sleep companion. Each night you check in, your owl grows.\n\n"+
			"/checkin — record tonight's check-in\n"+
			"/profile — see your owl and progress\n"+
			"/help — everything I can do",
		msg.From.FirstName,
	)
	_, err := b.client.SendText(ctx, msg.Chat.ID, text)
	return err
}

func (b *Bot) handleHelp(ctx context.Context, msg *exttelegram.Message) error {
	text := "<b>Commands</b>\n\n" +
		"/checkin — daily check-in, keeps your streak alive\n" +
		"/profile — your owl, level and streaks\n" +
		"/quests — active quests\n" +
		"/badges — badge collection\n" +
		"/settings — compassion mode and limits\n" +
		"/export — download everything I store about you\n" +
		"/deletedata — erase your data"
	_, err := b.client.SendHTML(ctx, msg.Chat.ID, text)
	return err
}

func (b *Bot) handleCheckIn(ctx context.Context, msg *exttelegram.Message) error {
	result, err := b.engine.RecordDailyCheckIn(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	_, err = b.client.SendHTML(ctx, msg.Chat.ID, RenderCheckIn(result))
	return err
}

func (b *Bot) handleProfile(ctx context.Context, msg *exttelegram.Message) error {
	view, err := b.engine.GetProfile(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	_, err = b.client.SendHTML(ctx, msg.Chat.ID, RenderProfile(view))
	return err
}

func (b *Bot) handleQuests(ctx context.Context, msg *exttelegram.Message) error {
	quests, err := b.engine.GetActiveQuests(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	_, err = b.client.SendHTML(ctx, msg.Chat.ID, RenderQuests(quests))
	return err
}

func (b *Bot) handleBadges(ctx context.Context, msg *exttelegram.Message) error {
	badges, err := b.engine.GetBadges(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	_, err = b.client.SendHTML(ctx, msg.Chat.ID, RenderBadges(badges))
	return err
}

func (b *Bot) handleSettings(ctx context.Context, msg *exttelegram.Message) error {
	settings, err := b.engine.GetSettings(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	keyboard := exttelegram.NewKeyboard().
		Row(exttelegram.Button("💚 Toggle compassion", "settings:compassion")).
		Row(exttelegram.Button("🛟 Toggle soft reset", "settings:softreset")).
		Build()
	_, err = b.client.SendMessage(ctx, exttelegram.SendMessageParams{
		ChatID:      msg.Chat.ID,
		Text:        RenderSettings(settings),
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
	return err
}

// exportChunkSize stays under Telegram's 4096-character message limit with
// room for the <pre> wrapper.
const exportChunkSize = 3900

func (b *Bot) handleExport(ctx context.Context, msg *exttelegram.Message) error {
	export, err := b.engine.ExportUserData(ctx, msg.From.ID)
	if err != nil {
		return err
	}

	payload, err := exportJSON(export)
	if err != nil {
		return err
	}

	if _, err := b.client.SendText(ctx, msg.Chat.ID, fmt.Sprintf("Your data export (%s):", export.ExportID)); err != nil {
		return err
	}
	for _, chunk := range chunkString(payload, exportChunkSize) {
		if _, err := b.client.SendHTML(ctx, msg.Chat.ID, "<pre>"+chunk+"</pre>"); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleDeleteData(ctx context.Context, msg *exttelegram.Message) error {
	keyboard := exttelegram.NewKeyboard().
		Row(
			exttelegram.Button("Yes, delete everything", "delete:confirm"),
			exttelegram.Button("Cancel", "delete:cancel"),
		).
		Build()
	_, err := b.client.SendMessage(ctx, exttelegram.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text: "This permanently erases your XP, streaks, quests, badges and settings.\n" +
			"There is no undo. Are you sure?",
		ReplyMarkup: keyboard,
	})
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLBACK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (b *Bot) toggleCompassion(ctx context.Context, query *exttelegram.CallbackQuery) error {
	return b.toggleSetting(ctx, query, func(s *settingsToggle) { s.compassion = true })
}

func (b *Bot) toggleSoftReset(ctx context.Context, query *exttelegram.CallbackQuery) error {
	return b.toggleSetting(ctx, query, func(s *settingsToggle) { s.softReset = true })
}

type settingsToggle struct {
	compassion bool
	softReset  bool
}

func (b *Bot) toggleSetting(ctx context.Context, query *exttelegram.CallbackQuery, pick func(*settingsToggle)) error {
	var toggle settingsToggle
	pick(&toggle)

	settings, err := b.engine.GetSettings(ctx, query.From.ID)
	if err != nil {
		return err
	}
	if toggle.compassion {
		settings.CompassionEnabled = !settings.CompassionEnabled
	}
	if toggle.softReset {
		settings.SoftResetEnabled = !settings.SoftResetEnabled
	}
	if err := b.engine.UpdateSettings(ctx, settings); err != nil {
		return err
	}

	if err := b.client.AnswerCallbackQuery(ctx, query.ID, "Saved", false); err != nil {
		return err
	}
	if query.Message != nil {
		_, err = b.client.EditMessageText(ctx, query.Message.Chat.ID, query.Message.MessageID, RenderSettings(settings), "HTML", nil)
	}
	return err
}

func (b *Bot) confirmDelete(ctx context.Context, query *exttelegram.CallbackQuery) error {
	if err := b.engine.DeleteUserData(ctx, query.From.ID); err != nil {
		return err
	}
	if b.limiter != nil {
		// Erasure covers the rate-limit counters too.
		if err := b.limiter.Reset(ctx, query.From.ID); err != nil {
			b.logger.Warn("rate limit reset failed", "user_id", query.From.ID, "error", err)
		}
	}
	if err := b.client.AnswerCallbackQuery(ctx, query.ID, "Deleted", false); err != nil {
		return err
	}
	if query.Message != nil {
		_, err := b.client.EditMessageText(ctx, query.Message.Chat.ID, query.Message.MessageID,
			"All your data has been erased. Sleep well 🌙", "", nil)
		return err
	}
	return nil
}

func (b *Bot) cancelDelete(ctx context.Context, query *exttelegram.CallbackQuery) error {
	if err := b.client.AnswerCallbackQuery(ctx, query.ID, "Cancelled", false); err != nil {
		return err
	}
	if query.Message != nil {
		_, err := b.client.EditMessageText(ctx, query.Message.Chat.ID, query.Message.MessageID,
			"Nothing was deleted.", "", nil)
		return err
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func chunkString(s string, size int) []string {
	if size <= 0 || s == "" {
		return nil
	}
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return append(chunks, s)
}

func exportJSON(export *gamification.Export) (string, error) {
	raw, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}
	return string(raw), nil
}
