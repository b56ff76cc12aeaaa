package botreply

import (
	"context"
	"fmt"
	"strings"

	"github.com/weliao/weliao/internal/completion"
)

// Tag names and the reply-suppression sentinel. These are part of the wire
// contract with the model: the fixed suffix instructs the model to emit
// exactly these regions, so they must not change independently of it.
const (
	TagShouldReply  = "是否需要回复"
	TagReplyContent = "回复内容"
	SentinelNoReply = "none"
)

// Structural section markers recognized in owner-authored persona
// descriptions. A description containing any of them is used verbatim;
// otherwise it is wrapped in a generic role-setting envelope.
var structuredMarkers = []string{
	"<角色定位>",
	"<核心人设>",
	"<角色设定>",
}

// fixedSuffix is appended to every persona prompt. It pins the model's
// output format to the two tagged regions and anchors it with one reply and
// one non-reply worked example.
const fixedSuffix = `

<输出格式>
<是否需要回复>
true / false「仅输出在当前场景下是否需要回复当前用户信息，要模拟人一样不需要每句话都回，具体需要遵循<交互规则></交互规则>的指令，要回复则输出 true，不回复则输出 false，不要输出任何额外内容」
</是否需要回复>
<回复内容>
「输出回复的信息，如果不需要回复则输出 none，具体的回复需要遵循前面的<角色定位><核心人设><语言风格规范><边界与禁止行为>」
</回复内容>
</输出格式>

<完整示例>
[历史对话记录]
用户A: 今天天气真好
用户B: 是啊，出去走走？

[当前发言]
用户A: @小明 你怎么看

[Bot输出示例]
<是否需要回复>true</是否需要回复>
<回复内容>嗯！最近确实适合出门，我也想去公园坐坐</回复内容>

[另一示例 - 不需要回复的情况]
[历史对话记录]
用户A: 今天吃了火锅
用户B: 好吃吗

[当前发言]
用户A: 很辣！

[Bot输出示例]
<是否需要回复>false</是否需要回复>
<回复内容>none</回复内容>
</完整示例>`

// BuildSystemPrompt composes the full system prompt for a bot from its
// owner-authored persona description. Descriptions already carrying a
// recognized structural marker are used verbatim; plain text is wrapped in a
// 角色设定 envelope. The fixed response-format suffix is appended in both
// cases. Pure: same input, byte-identical output.
func BuildSystemPrompt(personaDescription string) string {
	structured := false
	for _, marker := range structuredMarkers {
		if strings.Contains(personaDescription, marker) {
			structured = true
			break
		}
	}

	basePrompt := personaDescription
	if !structured {
		basePrompt = "<角色设定>\n" + personaDescription + "\n</角色设定>"
	}

	return basePrompt + fixedSuffix
}

// optimizeInstruction is the system prompt for turning a free-form persona
// description into the structured section format.
const optimizeInstruction = `你是一个AI角色设计专家。用户会给你一段对AI角色的描述，你需要将其整理为规范的角色设定格式。

请将用户的描述整理为以下格式，每个标签内填写相应内容，内容要丰富具体：

<角色定位>
（这个AI是谁，基本身份，年龄，职业等）
</角色定位>

<核心人设>
（性格特点、价值观、喜好等核心特征）
</核心人设>

<语言风格规范>
（说话方式、用词习惯、语气特点，比如是否用emoji，是否用网络用语等）
</语言风格规范>

<交互规则>
（什么情况下主动说话，什么情况下不回复，被@时必须回复，回复频率等规则）
</交互规则>

<场景互动示例>
（给出2-3个对话示例，展示这个角色在群聊中如何互动）
</场景互动示例>

<边界与禁止行为>
（不做什么，不说什么，保持什么底线）
</边界与禁止行为>

只输出整理后的内容，不要有额外说明。`

// refineInstruction is the system prompt for applying a targeted edit to an
// existing persona while leaving the rest untouched.
const refineInstruction = `你是一个AI角色设计专家。用户有一个已有的角色设定，他想要对某部分进行修改。请按照用户的修改指令，对角色设定进行修改，保持其他部分不变。

只输出修改后的完整角色设定内容，格式和原来保持一致，不要有额外说明。`

// OptimizePersona asks the model to restructure a raw persona description
// into the recognized section format.
func OptimizePersona(ctx context.Context, client completion.Client, rawDescription string) (string, error) {
	return client.Complete(ctx, optimizeInstruction, rawDescription)
}

// RefinePersona asks the model to apply an edit instruction to an existing
// persona prompt.
func RefinePersona(ctx context.Context, client completion.Client, currentPrompt, instruction string) (string, error) {
	userMessage := fmt.Sprintf("当前角色设定：\n%s\n\n修改指令：%s", currentPrompt, instruction)
	return client.Complete(ctx, refineInstruction, userMessage)
}
