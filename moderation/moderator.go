// Package moderation censors forbidden words in message content.
// Matching ignores case, punctuation, spacing and common leet substitutions,
// while the replacement preserves the original layout of the text.
package moderation

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"log/slog"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

var _ contract.Censor = (*Moderator)(nil)

type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
	log         *slog.Logger
}

// folded is the searchable form of a text: lower case letters with noise
// removed, each rune remembering its position in the original.
type folded struct {
	runes     []rune
	positions []int
}

// NewModerator builds the automaton from the dictionary.
// Words that fold to nothing are ignored.
func NewModerator(words []string, replacement rune, log *slog.Logger) (*Moderator, error) {
	patterns := lo.FilterMap(words, func(word string, _ int) ([]rune, bool) {
		pattern := fold(strings.TrimSpace(word)).runes
		return pattern, len(pattern) > 0
	})

	m := &Moderator{replacement: replacement, log: log}
	if len(patterns) == 0 {
		return m, nil
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	m.matcher = machine
	log.Info("Moderation dictionary loaded", "words", len(patterns))
	return m, nil
}

// ParseReplacement accepts exactly one character.
func ParseReplacement(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, errors.ErrInvalidReplacement
	}
	return r[0], nil
}

// ParseWords splits a comma separated dictionary.
func ParseWords(str string) []string {
	return lo.Compact(lo.Map(strings.Split(str, ","), func(w string, _ int) string {
		return strings.TrimSpace(w)
	}))
}

// Censor replaces every matched span of the original text with the replacement rune.
func (m *Moderator) Censor(original string) string {
	if m.matcher == nil {
		return original
	}
	text := fold(original)
	if len(text.runes) == 0 {
		return original
	}

	spans := m.matcher.MultiPatternSearch(text.runes, false)
	if len(spans) == 0 {
		return original
	}

	runes := []rune(original)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(text.positions) {
			continue
		}
		for i := text.positions[start]; i <= text.positions[end-1]; i++ {
			runes[i] = m.replacement
		}
	}
	m.log.Debug("Content censored", "matches", len(spans), "lang", Language(original))
	return string(runes)
}

// Language returns the ISO 639-1 code of the detected language, empty when unknown.
func Language(content string) string {
	return whatlanggo.Detect(content).Lang.Iso6391()
}

// leet maps look-alike digits and symbols back to letters.
var leet = map[rune]rune{
	'4': 'a', '@': 'a',
	'3': 'e', '€': 'e',
	'1': 'i', '!': 'i', '|': 'i',
	'0': 'o',
	'5': 's', '$': 's',
}

func fold(input string) folded {
	var res folded
	for i, r := range []rune(input) {
		if letter, ok := leet[r]; ok {
			r = letter
		}
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		res.runes = append(res.runes, unicode.ToLower(r))
		res.positions = append(res.positions, i)
	}
	return res
}
