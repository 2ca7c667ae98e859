// Package tokenizer counts and splits text by token count using the same
// cl100k_base encoding OpenAI/GPT-4-class models use, so chunk sizes and
// context budgets are measured the way a downstream model actually sees them.
package tokenizer

import (
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used across chunking, embedding
// budgeting, and generation context assembly.
const DefaultEncoding = "cl100k_base"

var sentenceEndings = regexp.MustCompile(`[.!?]\s+`)

// Tokenizer counts and splits text by token count.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New builds a Tokenizer for the given tiktoken encoding name. Pass "" for
// DefaultEncoding.
func New(encodingName string) (*Tokenizer, error) {
	if encodingName == "" {
		encodingName = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens returns the number of tokens text encodes to. An empty string
// has zero tokens.
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// SplitByTokenLimit splits text into chunks of at most maxTokens, preferring
// sentence boundaries and carrying `overlap` tokens of trailing context from
// one chunk into the next. A sentence that alone exceeds maxTokens is split
// mid-sentence into runs of maxTokens tokens, cut at token boundaries.
func (t *Tokenizer) SplitByTokenLimit(text string, maxTokens, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if overlap >= maxTokens {
		overlap = maxTokens / 2
	}
	if t.CountTokens(text) <= maxTokens {
		return []string{text}
	}

	sentences := t.splitIntoSentences(text)

	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
		}
	}

	for _, sentence := range sentences {
		sentTokens := t.CountTokens(sentence)

		if sentTokens > maxTokens {
			flush()
			current = nil
			currentTokens = 0
			chunks = append(chunks, t.splitLargeSentence(sentence, maxTokens)...)
			continue
		}

		if currentTokens+sentTokens > maxTokens {
			flush()
			overlapSentences := t.overlapSentences(current, overlap)
			current = append(overlapSentences, sentence)
			currentTokens = t.CountTokens(strings.Join(current, " "))
		} else {
			current = append(current, sentence)
			currentTokens += sentTokens
		}
	}
	flush()

	out := chunks[:0]
	for _, c := range chunks {
		if s := strings.TrimSpace(c); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (t *Tokenizer) splitIntoSentences(text string) []string {
	sentences := filterNonEmpty(sentenceEndings.Split(text, -1))
	if len(sentences) <= 1 {
		sentences = filterNonEmpty(strings.Split(text, "\n"))
	}
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	return sentences
}

func (t *Tokenizer) splitLargeSentence(sentence string, maxTokens int) []string {
	tokens := t.enc.Encode(sentence, nil, nil)
	var chunks []string
	for start := 0; start < len(tokens); start += maxTokens {
		end := start + maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, t.enc.Decode(tokens[start:end]))
	}
	return chunks
}

// overlapSentences returns the trailing run of sentences whose combined
// token count fits within overlapTokens, walked from the end backwards.
func (t *Tokenizer) overlapSentences(sentences []string, overlapTokens int) []string {
	if len(sentences) == 0 || overlapTokens <= 0 {
		return nil
	}
	var out []string
	total := 0
	for i := len(sentences) - 1; i >= 0; i-- {
		n := t.CountTokens(sentences[i])
		if total+n > overlapTokens {
			break
		}
		out = append([]string{sentences[i]}, out...)
		total += n
	}
	return out
}

func filterNonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
