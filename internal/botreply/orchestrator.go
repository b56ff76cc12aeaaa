package botreply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/weliao/weliao/internal/completion"
	"github.com/weliao/weliao/internal/database"
)

// Fallback display names used when a sender lookup fails mid-run.
const (
	fallbackUserName = "用户"
	fallbackBotName  = "Bot"
)

// senderNameCache memoizes (sender_type, sender_id) -> display name lookups
// within a single orchestration run. It is populated before the per-bot
// fan-out and read-only afterwards; a fresh cache is built per run and
// discarded with it.
type senderNameCache struct {
	store database.Store
	names map[string]string
}

func newSenderNameCache(store database.Store) *senderNameCache {
	return &senderNameCache{
		store: store,
		names: make(map[string]string),
	}
}

// Resolve returns the display name for a sender, hitting the store at most
// once per distinct (type, id) pair.
func (c *senderNameCache) Resolve(ctx context.Context, senderType, senderID string) string {
	key := senderType + ":" + senderID
	if name, ok := c.names[key]; ok {
		return name
	}

	var name string
	if senderType == database.SenderTypeUser {
		name = fallbackUserName
		if profile, err := c.store.GetProfile(ctx, senderID); err == nil {
			name = profile.DisplayName
		}
	} else {
		name = fallbackBotName
		if bot, err := c.store.GetBot(ctx, senderID); err == nil {
			name = bot.Name
		}
	}

	c.names[key] = name
	return name
}

// Orchestrator coordinates bot replies for one group conversation: given a
// triggering message it loads the group's bots and bounded history, then
// evaluates every bot concurrently and persists the replies that pass the
// reply policy.
type Orchestrator struct {
	store        database.Store
	client       completion.Client
	log          *slog.Logger
	historyLimit int
}

// NewOrchestrator creates an orchestrator using the given store and
// completion client. historyLimit bounds the conversation window passed to
// the model.
func NewOrchestrator(store database.Store, client completion.Client, log *slog.Logger, historyLimit int) *Orchestrator {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Orchestrator{
		store:        store,
		client:       client,
		log:          log.With("component", "bot_orchestrator"),
		historyLimit: historyLimit,
	}
}

// Run executes one orchestration run for the triggering message and returns
// the bot replies that were persisted. Each bot is evaluated in its own
// goroutine; a failure in one pipeline is logged and never aborts the
// others, so Run itself never fails.
func (o *Orchestrator) Run(ctx context.Context, groupID string, trigger *database.Message) []database.Message {
	if trigger == nil {
		o.log.WarnContext(ctx, "Orchestration run invoked with nil trigger", "group_id", groupID)
		return nil
	}
	log := o.log.With("group_id", groupID, "trigger_id", trigger.ID)

	bots, err := o.store.GetGroupBots(ctx, groupID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load group bots", "error", err)
		return nil
	}
	if len(bots) == 0 {
		log.DebugContext(ctx, "Group has no bots attached, nothing to do")
		return nil
	}

	window, err := o.store.GetMessagesBefore(ctx, groupID, trigger.CreatedAt, o.historyLimit)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load message history, continuing with empty window", "error", err)
		window = nil
	}
	// Newest-first from the store; the transcript wants oldest-first.
	for i, j := 0, len(window)-1; i < j; i, j = i+1, j-1 {
		window[i], window[j] = window[j], window[i]
	}

	names := newSenderNameCache(o.store)
	history := make([]HistoryEntry, 0, len(window))
	for _, msg := range window {
		history = append(history, HistoryEntry{
			SenderName: names.Resolve(ctx, msg.SenderType, msg.SenderID),
			Content:    msg.Content,
		})
	}
	currentSenderName := names.Resolve(ctx, trigger.SenderType, trigger.SenderID)

	var (
		mu      sync.Mutex
		replies []database.Message
	)

	g, gCtx := errgroup.WithContext(ctx)
	for _, bot := range bots {
		g.Go(func() error {
			reply, err := o.evaluateBot(gCtx, &bot, groupID, trigger, history, currentSenderName)
			if err != nil {
				log.ErrorContext(gCtx, "Bot pipeline failed", "bot_id", bot.ID, "bot_name", bot.Name, "error", err)
				return nil
			}
			if reply != nil {
				mu.Lock()
				replies = append(replies, *reply)
				mu.Unlock()
			}
			return nil
		})
	}
	// Members always return nil; Wait is a join, not an error gate.
	_ = g.Wait()

	log.InfoContext(ctx, "Orchestration run complete", "bots_evaluated", len(bots), "replies_persisted", len(replies))
	return replies
}

// evaluateBot runs the single-bot pipeline: self-message skip, mention check,
// prompt assembly, one completion call, tag extraction, and the emission
// decision. It returns the persisted reply, or nil when the bot stays silent.
func (o *Orchestrator) evaluateBot(
	ctx context.Context,
	bot *database.Bot,
	groupID string,
	trigger *database.Message,
	history []HistoryEntry,
	currentSenderName string,
) (*database.Message, error) {
	// A bot never replies to its own message.
	if trigger.SenderType == database.SenderTypeBot && trigger.SenderID == bot.ID {
		o.log.DebugContext(ctx, "Skipping self-message", "bot_id", bot.ID)
		return nil, nil
	}

	// A bot without a persona has nothing to say.
	if strings.TrimSpace(bot.SystemPrompt) == "" {
		o.log.DebugContext(ctx, "Skipping bot with empty persona", "bot_id", bot.ID)
		return nil, nil
	}

	isMentioned := strings.Contains(trigger.Content, "@"+bot.Name)

	fullPrompt := BuildSystemPrompt(bot.SystemPrompt) +
		BuildConversationContext(history, currentSenderName, trigger.Content)

	response, err := o.client.Complete(ctx, fullPrompt, "")
	if err != nil {
		return nil, fmt.Errorf("completion call failed: %w", err)
	}

	shouldReplyRaw := ExtractTag(response, TagShouldReply)
	replyContent := ExtractTag(response, TagReplyContent)

	shouldReply := strings.HasPrefix(strings.ToLower(shouldReplyRaw), "true")

	// A mention forces the emission check but never bypasses the
	// empty/"none" suppression.
	if !(isMentioned || shouldReply) || replyContent == "" || replyContent == SentinelNoReply {
		o.log.DebugContext(ctx, "Bot stays silent",
			"bot_id", bot.ID, "mentioned", isMentioned, "should_reply", shouldReply)
		return nil, nil
	}

	reply := &database.Message{
		GroupID:    groupID,
		SenderID:   bot.ID,
		SenderType: database.SenderTypeBot,
		Content:    replyContent,
		BotHop:     trigger.BotHop + 1,
	}
	if err := o.store.SaveMessage(ctx, reply); err != nil {
		return nil, fmt.Errorf("failed to persist reply: %w", err)
	}

	o.log.InfoContext(ctx, "Bot reply persisted",
		"bot_id", bot.ID, "bot_name", bot.Name, "message_id", reply.ID, "hop", reply.BotHop)
	return reply, nil
}
