package botreply_test

import (
	"strings"
	"testing"

	"github.com/weliao/weliao/internal/botreply"
)

func TestBuildSystemPrompt_WrapsPlainDescription(t *testing.T) {
	t.Parallel()

	result := botreply.BuildSystemPrompt("一个温柔的大学生")

	if !strings.HasPrefix(result, "<角色设定>\n一个温柔的大学生\n</角色设定>") {
		t.Errorf("plain description not wrapped in 角色设定 envelope, got prefix %q", result[:min(len(result), 60)])
	}
	if !strings.Contains(result, "<输出格式>") {
		t.Error("fixed suffix missing from prompt")
	}
}

func TestBuildSystemPrompt_StructuredUsedVerbatim(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		description string
	}{
		{name: "角色定位 marker", description: "<角色定位>大学生</角色定位>\n<核心人设>温柔</核心人设>"},
		{name: "核心人设 marker", description: "<核心人设>乐观开朗</核心人设>"},
		{name: "角色设定 marker", description: "<角色设定>自带外壳</角色设定>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := botreply.BuildSystemPrompt(tt.description)
			if !strings.HasPrefix(result, tt.description) {
				t.Errorf("structured description was rewrapped, got prefix %q", result[:min(len(result), 60)])
			}
			if strings.Count(result, "<角色设定>") != strings.Count(tt.description, "<角色设定>") {
				t.Error("structured description gained an extra 角色设定 envelope")
			}
		})
	}
}

func TestBuildSystemPrompt_Deterministic(t *testing.T) {
	t.Parallel()

	desc := "一个爱开玩笑的程序员"
	first := botreply.BuildSystemPrompt(desc)
	second := botreply.BuildSystemPrompt(desc)
	if first != second {
		t.Error("BuildSystemPrompt is not deterministic for identical input")
	}
}

func TestBuildSystemPrompt_SuffixContract(t *testing.T) {
	t.Parallel()

	result := botreply.BuildSystemPrompt("任意人设")

	// The suffix pins the model's output contract; these fragments must
	// survive any edit to the prompt assembly.
	required := []string{
		"<是否需要回复>",
		"</是否需要回复>",
		"<回复内容>",
		"</回复内容>",
		"<完整示例>",
		"<是否需要回复>true</是否需要回复>",
		"<是否需要回复>false</是否需要回复>",
		"<回复内容>none</回复内容>",
	}
	for _, fragment := range required {
		if !strings.Contains(result, fragment) {
			t.Errorf("prompt missing required fragment %q", fragment)
		}
	}
}

func TestBuildConversationContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		history       []botreply.HistoryEntry
		currentSender string
		currentMsg    string
		expected      string
	}{
		{
			name: "History and current message",
			history: []botreply.HistoryEntry{
				{SenderName: "小红", Content: "今天天气真好"},
				{SenderName: "小明", Content: "是啊"},
			},
			currentSender: "小红",
			currentMsg:    "@小助手 你觉得呢",
			expected:      "\n\n[历史对话记录]\n小红: 今天天气真好\n小明: 是啊\n\n[当前发言]\n小红: @小助手 你觉得呢",
		},
		{
			name:          "Empty history",
			history:       nil,
			currentSender: "小红",
			currentMsg:    "大家好",
			expected:      "\n\n[历史对话记录]\n\n\n[当前发言]\n小红: 大家好",
		},
		{
			name: "Multiline history entry kept intact",
			history: []botreply.HistoryEntry{
				{SenderName: "小明", Content: "第一行\n第二行"},
			},
			currentSender: "小红",
			currentMsg:    "收到",
			expected:      "\n\n[历史对话记录]\n小明: 第一行\n第二行\n\n[当前发言]\n小红: 收到",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := botreply.BuildConversationContext(tt.history, tt.currentSender, tt.currentMsg)
			if result != tt.expected {
				t.Errorf("BuildConversationContext() = %q, want %q", result, tt.expected)
			}
		})
	}
}
