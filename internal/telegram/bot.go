package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ai-cycle-planner/internal/adaptation"
	"ai-cycle-planner/internal/app"
	"ai-cycle-planner/internal/auth"
	"ai-cycle-planner/internal/config"
	"ai-cycle-planner/internal/metrics"
	"ai-cycle-planner/internal/shared"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

const (
	adaptReasonTTL = 10 * time.Minute
	requestTimeout = 3 * time.Minute
)

// Actions is the part of the service the bot drives.
type Actions interface {
	GenerateWeeklyPlan(ctx context.Context, p auth.Principal) (app.PlanResult, error)
	GenerateDailyInsight(ctx context.Context, p auth.Principal, date time.Time) (app.InsightResult, error)
	AdaptPlan(ctx context.Context, p auth.Principal, reason string) (adaptation.Result, error)
	Usage(ctx context.Context, p auth.Principal, days int) ([]metrics.UsageRecord, error)
}

// Sender delivers bot messages.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot wraps the Telegram API and the plan service.
type Bot struct {
	api      Sender
	botAPI   *tgbotapi.BotAPI
	actions  Actions
	sessions *SessionRepository
	users    map[int64]string
	dbPath   string
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, actions Actions, sessions *SessionRepository) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Infof("Authorized on account %s", bot.Self.UserName)

	if cfg.TelegramWebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
		}
		resp, err := bot.Request(wh)
		if err != nil {
			return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
		}
		log.Infof("Webhook set response: %s", resp.Description)
	}

	b := newBot(bot, actions, sessions, cfg.TelegramUsers, cfg.DatabasePath)
	b.botAPI = bot
	return b, nil
}

func newBot(api Sender, actions Actions, sessions *SessionRepository, users map[int64]string, dbPath string) *Bot {
	return &Bot{
		api:      api,
		actions:  actions,
		sessions: sessions,
		users:    users,
		dbPath:   dbPath,
	}
}

// RegisterHandlers registers the webhook handler on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.botAPI.HandleUpdate(r)
	if err != nil {
		log.Warnf("Error parsing update: %v", err)
		return
	}
	if update.Message == nil {
		return
	}

	go b.processMessage(update.Message)
}

func (b *Bot) principal(msg *tgbotapi.Message) (auth.Principal, bool) {
	if msg.From == nil {
		return auth.Principal{}, false
	}
	userID, ok := b.users[msg.From.ID]
	if !ok {
		log.WithFields(log.Fields{
			"telegram_id": msg.From.ID,
			"username":    msg.From.UserName,
		}).Warn("Unauthorized access attempt")
		return auth.Principal{}, false
	}
	return auth.Principal{UserID: userID}, true
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	p, ok := b.principal(msg)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	switch msg.Command() {
	case "plan":
		b.handlePlan(ctx, msg.Chat.ID, p)
	case "today":
		b.handleToday(ctx, msg.Chat.ID, p)
	case "adapt":
		b.handleAdapt(ctx, msg, p, strings.TrimSpace(msg.CommandArguments()))
	case "usage":
		b.handleUsage(ctx, msg.Chat.ID, p)
	case "start", "help":
		b.reply(msg.Chat.ID, helpText)
	case "":
		b.handleText(ctx, msg, p)
	default:
		b.reply(msg.Chat.ID, "Unknown command.\n\n"+helpText)
	}
}

const helpText = "*Commands*\n" +
	"/plan: this week's plan\n" +
	"/today: today's insight\n" +
	"/adapt <what changed>: adjust the rest of the week\n" +
	"/usage: your recent usage"

func (b *Bot) handlePlan(ctx context.Context, chatID int64, p auth.Principal) {
	b.reply(chatID, "🗓️ *Preparing your weekly plan...*")

	res, err := b.actions.GenerateWeeklyPlan(ctx, p)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, formatPlanMarkdown(res.Plan))
}

func (b *Bot) handleToday(ctx context.Context, chatID int64, p auth.Principal) {
	res, err := b.actions.GenerateDailyInsight(ctx, p, time.Time{})
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, formatInsightMarkdown(res.Insight))
}

func (b *Bot) handleAdapt(ctx context.Context, msg *tgbotapi.Message, p auth.Principal, reason string) {
	if reason == "" {
		if err := b.sessions.Start(ctx, msg.From.ID, SessionAwaitingAdaptReason, adaptReasonTTL); err != nil {
			log.WithField("user_id", p.UserID).Errorf("Failed to start session: %v", err)
			b.reply(msg.Chat.ID, "❌ Something went wrong, please try again.")
			return
		}
		b.reply(msg.Chat.ID, "✍️ What changed? Reply with a short reason, e.g. _travelling until Friday_.")
		return
	}

	b.reply(msg.Chat.ID, "🔄 *Adapting your plan...*")
	res, err := b.actions.AdaptPlan(ctx, p, reason)
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	b.reply(msg.Chat.ID, formatAdaptationMarkdown(res))
}

// handleText continues a pending conversation step, if any.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message, p auth.Principal) {
	session, err := b.sessions.Take(ctx, msg.From.ID)
	if err != nil {
		log.WithField("user_id", p.UserID).Errorf("Failed to load session: %v", err)
	}
	if session != nil && session.SessionType == SessionAwaitingAdaptReason {
		b.handleAdapt(ctx, msg, p, strings.TrimSpace(msg.Text))
		return
	}
	b.reply(msg.Chat.ID, helpText)
}

func (b *Bot) handleUsage(ctx context.Context, chatID int64, p auth.Principal) {
	records, err := b.actions.Usage(ctx, p, 7)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.reply(chatID, formatUsageMarkdown(records, metrics.GetSysHealth(b.dbPath)))
}

func (b *Bot) replyError(chatID int64, err error) {
	var text string
	switch shared.KindOf(err) {
	case shared.KindEntitlement:
		text = "⭐ Personalized plans need an active subscription. Upgrade in the app to continue."
	case shared.KindNotFound:
		text = "No plan for this week yet. Send /plan to create one."
	case shared.KindValidation, shared.KindProvider:
		text = "❌ I couldn't prepare that right now. Please try again in a moment."
	case shared.KindAuthentication:
		text = "⛔ Access denied."
	default:
		text = "❌ Something went wrong, please try again."
	}
	b.reply(chatID, text)
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		log.WithField("chat_id", chatID).Warnf("Failed to send message: %v", err)
	}
}
