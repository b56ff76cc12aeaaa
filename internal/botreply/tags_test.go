package botreply_test

import (
	"testing"

	"github.com/weliao/weliao/internal/botreply"
)

func TestExtractTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		tag      string
		expected string
	}{
		{
			name:     "Simple match",
			text:     "<是否需要回复>true</是否需要回复>",
			tag:      "是否需要回复",
			expected: "true",
		},
		{
			name:     "Content with surrounding whitespace",
			text:     "<回复内容>\n  你好呀  \n</回复内容>",
			tag:      "回复内容",
			expected: "你好呀",
		},
		{
			name:     "Multiline content preserved",
			text:     "<回复内容>第一行\n第二行</回复内容>",
			tag:      "回复内容",
			expected: "第一行\n第二行",
		},
		{
			name:     "Missing tag",
			text:     "no tagged regions here",
			tag:      "回复内容",
			expected: "",
		},
		{
			name:     "Empty region",
			text:     "<回复内容></回复内容>",
			tag:      "回复内容",
			expected: "",
		},
		{
			name:     "Whitespace-only region",
			text:     "<回复内容>   </回复内容>",
			tag:      "回复内容",
			expected: "",
		},
		{
			name:     "First occurrence wins",
			text:     "<回复内容>first</回复内容><回复内容>second</回复内容>",
			tag:      "回复内容",
			expected: "first",
		},
		{
			name:     "Non-greedy stops at first close",
			text:     "<回复内容>a</回复内容> trailing <回复内容>b</回复内容>",
			tag:      "回复内容",
			expected: "a",
		},
		{
			name:     "Tag embedded in prose around it",
			text:     "前导文字 <是否需要回复>false</是否需要回复> 后续文字",
			tag:      "是否需要回复",
			expected: "false",
		},
		{
			name:     "Unclosed tag yields nothing",
			text:     "<回复内容>dangling",
			tag:      "回复内容",
			expected: "",
		},
		{
			name:     "Sentinel value extracted verbatim",
			text:     "<是否需要回复>false</是否需要回复>\n<回复内容>none</回复内容>",
			tag:      "回复内容",
			expected: "none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := botreply.ExtractTag(tt.text, tt.tag)
			if result != tt.expected {
				t.Errorf("ExtractTag(%q, %q) = %q, want %q", tt.text, tt.tag, result, tt.expected)
			}
		})
	}
}
