package botreply_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/weliao/weliao/internal/botreply"
	"github.com/weliao/weliao/internal/database"
)

// fakeStore implements the subset of database.Store the orchestrator touches.
// Unimplemented methods panic via the embedded nil interface.
type fakeStore struct {
	database.Store

	mu       sync.Mutex
	bots     map[string]database.Bot
	profiles map[string]database.Profile
	groups   map[string][]database.Bot
	history  []database.Message
	saved    []database.Message

	profileCalls int
	botCalls     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bots:     make(map[string]database.Bot),
		profiles: make(map[string]database.Profile),
		groups:   make(map[string][]database.Bot),
	}
}

func (s *fakeStore) addBot(groupID string, bot database.Bot) {
	s.bots[bot.ID] = bot
	s.groups[groupID] = append(s.groups[groupID], bot)
}

func (s *fakeStore) GetGroupBots(_ context.Context, groupID string) ([]database.Bot, error) {
	return s.groups[groupID], nil
}

func (s *fakeStore) GetMessagesBefore(_ context.Context, groupID string, before time.Time, limit int) ([]database.Message, error) {
	// Newest-first, strictly before the cutoff, like the real store.
	var out []database.Message
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		msg := s.history[i]
		if msg.GroupID == groupID && msg.CreatedAt.Before(before) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *fakeStore) GetProfile(_ context.Context, id string) (*database.Profile, error) {
	s.mu.Lock()
	s.profileCalls++
	s.mu.Unlock()
	profile, ok := s.profiles[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &profile, nil
}

func (s *fakeStore) GetBot(_ context.Context, id string) (*database.Bot, error) {
	s.mu.Lock()
	s.botCalls++
	s.mu.Unlock()
	bot, ok := s.bots[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &bot, nil
}

func (s *fakeStore) GetMessage(_ context.Context, id string) (*database.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range append(s.history, s.saved...) {
		if msg.ID == id {
			return &msg, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) SaveMessage(_ context.Context, message *database.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	message.ID = fmt.Sprintf("saved-%d", len(s.saved)+1)
	message.CreatedAt = time.Now()
	s.saved = append(s.saved, *message)
	return nil
}

func (s *fakeStore) savedMessages() []database.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]database.Message(nil), s.saved...)
}

// fakeCompleter returns a canned response per bot, keyed by the persona
// fragment found in the system prompt.
type fakeCompleter struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	prompts   []string
}

func (c *fakeCompleter) Complete(_ context.Context, systemPrompt, _ string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, systemPrompt)
	c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	for key, response := range c.responses {
		if strings.Contains(systemPrompt, key) {
			return response, nil
		}
	}
	return "<是否需要回复>false</是否需要回复>\n<回复内容>none</回复内容>", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func modelReply(shouldReply, content string) string {
	return fmt.Sprintf("<是否需要回复>%s</是否需要回复>\n<回复内容>%s</回复内容>", shouldReply, content)
}

func userMessage(id, groupID, senderID, content string) *database.Message {
	return &database.Message{
		ID:         id,
		GroupID:    groupID,
		SenderID:   senderID,
		SenderType: database.SenderTypeUser,
		Content:    content,
		CreatedAt:  time.Now(),
	}
}

func TestOrchestratorRun_NoBots(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &fakeCompleter{}
	orch := botreply.NewOrchestrator(store, client, discardLogger(), 50)

	replies := orch.Run(context.Background(), "g1", userMessage("m1", "g1", "u1", "大家好"))

	if len(replies) != 0 {
		t.Errorf("expected no replies for a group without bots, got %d", len(replies))
	}
	if len(client.prompts) != 0 {
		t.Errorf("expected no completion calls, got %d", len(client.prompts))
	}
}

func TestOrchestratorRun_EmissionPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		persona    string
		botName    string
		trigger    string
		response   string
		wantReply  bool
		wantOutput string
	}{
		{
			name:       "Volunteered reply",
			persona:    "活泼的助手",
			botName:    "小助手",
			trigger:    "今天天气怎么样",
			response:   modelReply("true", "天气不错哦"),
			wantReply:  true,
			wantOutput: "天气不错哦",
		},
		{
			name:      "Declined without mention",
			persona:   "沉默的观察者",
			botName:   "小观",
			trigger:   "随便聊聊",
			response:  modelReply("false", "none"),
			wantReply: false,
		},
		{
			name:       "Mention overrides false verdict",
			persona:    "被点名的角色",
			botName:    "小明",
			trigger:    "@小明 在吗",
			response:   modelReply("false", "在的在的"),
			wantReply:  true,
			wantOutput: "在的在的",
		},
		{
			name:      "Mention cannot force sentinel content",
			persona:   "拒绝回答的角色",
			botName:   "小明",
			trigger:   "@小明 说句话",
			response:  modelReply("true", "none"),
			wantReply: false,
		},
		{
			name:      "Mention cannot force empty content",
			persona:   "空白回复的角色",
			botName:   "小明",
			trigger:   "@小明 说句话",
			response:  modelReply("true", ""),
			wantReply: false,
		},
		{
			name:      "True verdict with sentinel stays silent",
			persona:   "犹豫的角色",
			botName:   "小犹",
			trigger:   "大家好",
			response:  modelReply("true", "none"),
			wantReply: false,
		},
		{
			name:       "Verdict prefix match is lenient",
			persona:    "啰嗦的角色",
			botName:    "小啰",
			trigger:    "大家好",
			response:   modelReply("True, 我要说话", "好呀"),
			wantReply:  true,
			wantOutput: "好呀",
		},
		{
			name:      "Malformed response stays silent",
			persona:   "格式错误的角色",
			botName:   "小错",
			trigger:   "大家好",
			response:  "我忘了输出标签",
			wantReply: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			store.addBot("g1", database.Bot{ID: "b1", Name: tt.botName, SystemPrompt: tt.persona})
			client := &fakeCompleter{responses: map[string]string{tt.persona: tt.response}}
			orch := botreply.NewOrchestrator(store, client, discardLogger(), 50)

			replies := orch.Run(context.Background(), "g1", userMessage("m1", "g1", "u1", tt.trigger))

			if tt.wantReply {
				if len(replies) != 1 {
					t.Fatalf("expected 1 reply, got %d", len(replies))
				}
				if replies[0].Content != tt.wantOutput {
					t.Errorf("reply content = %q, want %q", replies[0].Content, tt.wantOutput)
				}
				if replies[0].SenderType != database.SenderTypeBot || replies[0].SenderID != "b1" {
					t.Errorf("reply sender = %s/%s, want bot/b1", replies[0].SenderType, replies[0].SenderID)
				}
				if len(store.savedMessages()) != 1 {
					t.Errorf("expected 1 persisted message, got %d", len(store.savedMessages()))
				}
			} else {
				if len(replies) != 0 {
					t.Errorf("expected silence, got %d replies", len(replies))
				}
				if len(store.savedMessages()) != 0 {
					t.Errorf("expected nothing persisted, got %d messages", len(store.savedMessages()))
				}
			}
		})
	}
}

func TestOrchestratorRun_SkipsSelfAndEmptyPersona(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addBot("g1", database.Bot{ID: "b1", Name: "回声", SystemPrompt: "复读一切"})
	store.addBot("g1", database.Bot{ID: "b2", Name: "空壳", SystemPrompt: "   "})
	client := &fakeCompleter{responses: map[string]string{"复读一切": modelReply("true", "echo")}}
	orch := botreply.NewOrchestrator(store, client, discardLogger(), 50)

	// A bot's own message must not re-trigger it.
	trigger := &database.Message{
		ID:         "m1",
		GroupID:    "g1",
		SenderID:   "b1",
		SenderType: database.SenderTypeBot,
		Content:    "echo",
		BotHop:     1,
		CreatedAt:  time.Now(),
	}
	replies := orch.Run(context.Background(), "g1", trigger)

	if len(replies) != 0 {
		t.Errorf("expected no replies (self-skip and empty persona), got %d", len(replies))
	}
	if len(client.prompts) != 0 {
		t.Errorf("expected no completion calls, got %d", len(client.prompts))
	}
}

func TestOrchestratorRun_FanOutIsolation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addBot("g1", database.Bot{ID: "b1", Name: "坏掉的", SystemPrompt: "注定失败"})
	store.addBot("g1", database.Bot{ID: "b2", Name: "正常的", SystemPrompt: "照常工作"})
	client := &partialFailCompleter{
		failKey: "注定失败",
		okKey:   "照常工作",
		reply:   modelReply("true", "我还在"),
	}
	orch := botreply.NewOrchestrator(store, client, discardLogger(), 50)

	replies := orch.Run(context.Background(), "g1", userMessage("m1", "g1", "u1", "大家好"))

	if len(replies) != 1 {
		t.Fatalf("expected the healthy bot's reply to survive a sibling failure, got %d replies", len(replies))
	}
	if replies[0].SenderID != "b2" {
		t.Errorf("reply came from %s, want b2", replies[0].SenderID)
	}
}

type partialFailCompleter struct {
	failKey string
	okKey   string
	reply   string
}

func (c *partialFailCompleter) Complete(_ context.Context, systemPrompt, _ string) (string, error) {
	if strings.Contains(systemPrompt, c.failKey) {
		return "", errors.New("upstream unavailable")
	}
	if strings.Contains(systemPrompt, c.okKey) {
		return c.reply, nil
	}
	return "", errors.New("unexpected prompt")
}

func TestOrchestratorRun_HistoryWindowAndNames(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.profiles["u1"] = database.Profile{ID: "u1", DisplayName: "小红"}
	store.addBot("g1", database.Bot{ID: "b1", Name: "小助手", SystemPrompt: "群聊助手"})

	base := time.Now().Add(-time.Hour)
	for i := range 5 {
		store.history = append(store.history, database.Message{
			ID:         fmt.Sprintf("h%d", i),
			GroupID:    "g1",
			SenderID:   "u1",
			SenderType: database.SenderTypeUser,
			Content:    fmt.Sprintf("历史消息%d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
	}
	trigger := userMessage("m1", "g1", "u1", "现在怎么样")
	// The trigger is already persisted when the run starts; it must not
	// also appear in the history window.
	store.history = append(store.history, *trigger)

	client := &fakeCompleter{responses: map[string]string{"群聊助手": modelReply("true", "收到")}}
	orch := botreply.NewOrchestrator(store, client, discardLogger(), 3)

	replies := orch.Run(context.Background(), "g1", trigger)
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}

	if len(client.prompts) != 1 {
		t.Fatalf("expected 1 completion call, got %d", len(client.prompts))
	}
	prompt := client.prompts[0]

	// Window bound: only the 3 newest history messages, oldest first.
	if strings.Contains(prompt, "历史消息0") || strings.Contains(prompt, "历史消息1") {
		t.Error("history window exceeded the configured limit")
	}
	for _, want := range []string{"小红: 历史消息2", "小红: 历史消息3", "小红: 历史消息4"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing history line %q", want)
		}
	}
	if strings.Index(prompt, "历史消息2") > strings.Index(prompt, "历史消息4") {
		t.Error("history is not rendered oldest-first")
	}
	if !strings.Contains(prompt, "[当前发言]\n小红: 现在怎么样") {
		t.Error("prompt missing the current message block with resolved sender name")
	}
	if strings.Count(prompt, "现在怎么样") != 1 {
		t.Error("triggering message leaked into the history window")
	}

	// One bot, one history sender: the name cache should hit the store once.
	if store.profileCalls != 1 {
		t.Errorf("expected 1 profile lookup via the name cache, got %d", store.profileCalls)
	}
}

func TestOrchestratorRun_FallbackSenderNames(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addBot("g1", database.Bot{ID: "b1", Name: "小助手", SystemPrompt: "群聊助手"})
	client := &fakeCompleter{responses: map[string]string{"群聊助手": modelReply("true", "好")}}
	orch := botreply.NewOrchestrator(store, client, discardLogger(), 50)

	// Sender u-gone has no profile row.
	orch.Run(context.Background(), "g1", userMessage("m1", "g1", "u-gone", "你好"))

	if len(client.prompts) != 1 {
		t.Fatalf("expected 1 completion call, got %d", len(client.prompts))
	}
	if !strings.Contains(client.prompts[0], "[当前发言]\n用户: 你好") {
		t.Error("missing fallback display name for unresolvable sender")
	}
}

func TestOrchestratorRun_BotHopIncrement(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addBot("g1", database.Bot{ID: "b1", Name: "接话的", SystemPrompt: "爱接话"})
	client := &fakeCompleter{responses: map[string]string{"爱接话": modelReply("true", "我接")}}
	orch := botreply.NewOrchestrator(store, client, discardLogger(), 50)

	trigger := &database.Message{
		ID:         "m1",
		GroupID:    "g1",
		SenderID:   "b-other",
		SenderType: database.SenderTypeBot,
		Content:    "上一条机器人消息",
		BotHop:     2,
		CreatedAt:  time.Now(),
	}
	replies := orch.Run(context.Background(), "g1", trigger)

	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if replies[0].BotHop != 3 {
		t.Errorf("reply hop = %d, want 3", replies[0].BotHop)
	}
}

func TestDispatcher_ChainDepthBound(t *testing.T) {
	t.Parallel()

	// Two bots that always reply will echo each other forever unless the
	// chain-depth bound stops the re-triggering.
	store := newFakeStore()
	store.addBot("g1", database.Bot{ID: "b1", Name: "甲", SystemPrompt: "甲的人设"})
	store.addBot("g1", database.Bot{ID: "b2", Name: "乙", SystemPrompt: "乙的人设"})
	client := &fakeCompleter{responses: map[string]string{
		"甲的人设": modelReply("true", "甲说话"),
		"乙的人设": modelReply("true", "乙说话"),
	}}
	orch := botreply.NewOrchestrator(store, client, discardLogger(), 50)
	dispatcher := botreply.NewDispatcher(orch, store, discardLogger(), 16, 2, time.Minute)

	trigger := userMessage("m1", "g1", "u1", "开始")
	store.history = append(store.history, *trigger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = dispatcher.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	dispatcher.Enqueue(botreply.Job{GroupID: "g1", MessageID: "m1"})

	// Human trigger at hop 0: both bots reply at hop 1. Each hop-1 reply
	// re-triggers the other bot at hop 2. Hop-2 replies hit the bound and
	// are not re-enqueued, so the chain settles at exactly 4 messages.
	deadline := time.After(5 * time.Second)
	for len(store.savedMessages()) < 4 {
		select {
		case <-deadline:
			t.Fatalf("chain did not settle in time, saved %d messages", len(store.savedMessages()))
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Give the dispatcher a beat to prove the chain actually stopped.
	time.Sleep(100 * time.Millisecond)

	saved := store.savedMessages()
	if len(saved) != 4 {
		t.Errorf("expected the chain to settle at 4 messages, got %d", len(saved))
	}
	for _, msg := range saved {
		if msg.BotHop < 1 || msg.BotHop > 2 {
			t.Errorf("message %s has hop %d outside the expected 1..2 range", msg.ID, msg.BotHop)
		}
	}
}
