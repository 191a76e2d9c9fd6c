package puzzle

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault_EveryBlankHasAWord(t *testing.T) {
	p := Default()

	var positions []int
	for _, ph := range p.Placeholders {
		assert.NotEmpty(t, ph.Word)
		positions = append(positions, ph.Position)
	}
	slices.Sort(positions)

	assert.Equal(t, Blanks(p.Text), positions)
	assert.NoError(t, p.Validate())
}

func TestBlanks(t *testing.T) {
	assert.Equal(t, []int{1, 2, 10}, Blanks("a {2} b {10} c {1} d {2}"))
	assert.Empty(t, Blanks("no blanks {x} here"))
}

func TestValidate(t *testing.T) {
	ok := Puzzle{Text: "a {1} b {2}", Placeholders: []Placeholder{{Word: "y", Position: 2}, {Word: "x", Position: 1}}}
	assert.NoError(t, ok.Validate())

	cases := map[string]Puzzle{
		"missing word":  {Text: "a {1} b {2}", Placeholders: []Placeholder{{Word: "x", Position: 1}}},
		"unknown blank": {Text: "a {1}", Placeholders: []Placeholder{{Word: "x", Position: 1}, {Word: "y", Position: 3}}},
		"duplicate":     {Text: "a {1}", Placeholders: []Placeholder{{Word: "x", Position: 1}, {Word: "y", Position: 1}}},
		"empty word":    {Text: "a {1}", Placeholders: []Placeholder{{Word: "", Position: 1}}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, p.Validate(), ErrMismatch)
		})
	}
}
