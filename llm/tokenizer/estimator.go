package tokenizer

import "unicode"

const (
	// 每条消息的角色标记与分隔符开销
	messageOverhead = 4
	// 回复起始标记开销
	replyPriming = 3
	// 默认上下文长度
	defaultMaxTokens = 4096
)

// Heuristic 是不依赖词表的 token 估算器。
//
// 英文按单词切分，每个单词按 4 字符一个 token 向上取整；
// 标点符号各算一个 token；CJK 字符约 1.5 字符一个 token。
// 结果对同一输入是确定的，同一线程的提示词组装因此可复现。
type Heuristic struct {
	maxTokens int
}

// NewHeuristic creates an estimator reporting maxTokens as its context size.
func NewHeuristic(maxTokens int) *Heuristic {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Heuristic{maxTokens: maxTokens}
}

func (h *Heuristic) CountTokens(text string) (int, error) {
	return estimate(text), nil
}

func (h *Heuristic) CountMessages(messages []Message) (int, error) {
	total := replyPriming
	for _, msg := range messages {
		total += estimate(msg.Content) + messageOverhead
	}
	return total, nil
}

func (h *Heuristic) MaxTokens() int { return h.maxTokens }

func (h *Heuristic) Name() string { return string(KindEstimator) }

func estimate(text string) int {
	var tokens, word, cjk int
	flush := func() {
		tokens += (word + 3) / 4
		word = 0
	}
	for _, r := range text {
		switch {
		case isCJK(r):
			flush()
			cjk++
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word++
		case unicode.IsSpace(r):
			flush()
		default:
			flush()
			tokens++
		}
	}
	flush()
	// 每 1.5 个 CJK 字符一个 token，向上取整
	tokens += (cjk*2 + 2) / 3
	return tokens
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
