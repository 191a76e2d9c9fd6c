// Package puzzle provides the fill-in-the-blank text handed out when a
// challenge starts.
package puzzle

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"slices"
	"strconv"
)

// Placeholder is a word that belongs in the blank {Position}.
type Placeholder struct {
	Word     string `json:"word"`
	Position int    `json:"position"`
}

type Puzzle struct {
	Text         string        `json:"text"`
	Placeholders []Placeholder `json:"placeholders"`
}

const defaultText = `In any organization, {1} is the most important asset. People of many cultures, traditions and backgrounds share the same {2} every day. {3} is therefore essential for working well together, and we should respect our differences, since we often spend more time with our {4} than with our own families.
It is also common to find {5} that make people less productive, because they worry more about others than about their own {6}. When it comes to safety and the environment, besides following company rules, we must learn to respect our {7}.`

var defaultWords = []string{"people", "workplace", "Respect", "colleagues", "conflicts", "work", "surroundings"}

var ErrMismatch = errors.New("puzzle words don't match its blanks")

var blankRE = regexp.MustCompile(`\{(\d+)\}`)

// Default returns the built-in puzzle with its word bank shuffled.
func Default() Puzzle {
	placeholders := make([]Placeholder, len(defaultWords))
	for i, w := range defaultWords {
		placeholders[i] = Placeholder{Word: w, Position: i + 1}
	}
	rand.Shuffle(len(placeholders), func(i, j int) {
		placeholders[i], placeholders[j] = placeholders[j], placeholders[i]
	})
	return Puzzle{Text: defaultText, Placeholders: placeholders}
}

// Blanks lists the distinct blank positions in text, ascending.
func Blanks(text string) []int {
	var out []int
	for _, m := range blankRE.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

// Validate checks that every blank in the text gets exactly one word and no
// word points at a blank the text doesn't have.
func (p Puzzle) Validate() error {
	positions := make([]int, 0, len(p.Placeholders))
	for _, ph := range p.Placeholders {
		if ph.Word == "" {
			return fmt.Errorf("%w: empty word for blank %d", ErrMismatch, ph.Position)
		}
		positions = append(positions, ph.Position)
	}
	slices.Sort(positions)

	if blanks := Blanks(p.Text); !slices.Equal(blanks, positions) {
		return fmt.Errorf("%w: blanks %v, words for %v", ErrMismatch, blanks, positions)
	}
	return nil
}
