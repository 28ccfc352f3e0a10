package document

import (
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunk 按段落、句子边界切分文本
func Chunk(text string, size, overlap int) ([]string, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)
	return splitter.SplitText(text)
}

// Fit 返回不超过 maxChars 的前若干块，maxChars <= 0 时原样返回
func Fit(text string, maxChars int) (string, bool, error) {
	if maxChars <= 0 || len([]rune(text)) <= maxChars {
		return text, false, nil
	}

	chunks, err := Chunk(text, maxChars/4, 0)
	if err != nil {
		return "", false, err
	}

	var b strings.Builder
	used := 0
	for _, chunk := range chunks {
		n := len([]rune(chunk))
		if used > 0 {
			n += 2
		}
		if used+n > maxChars {
			break
		}
		if used > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(chunk)
		used += n
	}
	return b.String(), true, nil
}
