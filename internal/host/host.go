package host

import (
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
)

// Choice is one selectable option.
type Choice struct {
	Label string
	Value string
}

// Host is the interactive surface the session talks through: modal prompts
// plus a streaming sink for markdown output.
type Host interface {
	// ChooseOne presents a modal selection; ok is false when the user
	// dismissed the prompt.
	ChooseOne(prompt string, choices []Choice) (value string, ok bool)
	// InputText prompts for a line of text; secret input is not echoed.
	InputText(placeholder string, secret bool) (value string, ok bool)
	// Emit writes one markdown chunk to the output stream.
	Emit(chunk string)
}

// Terminal implements Host with huh forms on the controlling terminal.
type Terminal struct {
	out io.Writer
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) ChooseOne(prompt string, choices []Choice) (string, bool) {
	if len(choices) == 0 {
		return "", false
	}

	options := make([]huh.Option[string], 0, len(choices))
	for _, c := range choices {
		label := c.Label
		if label == "" {
			label = c.Value
		}
		options = append(options, huh.NewOption(label, c.Value))
	}

	var value string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(prompt).
			Options(options...).
			Value(&value),
	))
	if err := form.Run(); err != nil {
		return "", false
	}
	return value, true
}

func (t *Terminal) InputText(placeholder string, secret bool) (string, bool) {
	input := huh.NewInput().
		Title(placeholder)
	if secret {
		input = input.EchoMode(huh.EchoModePassword)
	}

	var value string
	form := huh.NewForm(huh.NewGroup(input.Value(&value)))
	if err := form.Run(); err != nil {
		return "", false
	}
	return value, true
}

func (t *Terminal) Emit(chunk string) {
	fmt.Fprint(t.out, chunk)
}
