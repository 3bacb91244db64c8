package tui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/lucasb-eyer/go-colorful"
)

// Theme holds the styles the screen draws with.
type Theme struct {
	Title    tcell.Style
	Tab      tcell.Style
	TabOn    tcell.Style
	Sidebar  tcell.Style
	Key      tcell.Style
	Body     tcell.Style
	Console  tcell.Style
	Event    tcell.Style
	Error    tcell.Style
	Status   tcell.Style
	StatusKO tcell.Style
}

// hex converts a #rrggbb color. Invalid input yields the default color.
func hex(s string) tcell.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		return tcell.ColorDefault
	}
	r, g, b := c.RGB255()
	return tcell.NewRGBColor(int32(r), int32(g), int32(b))
}

// DefaultTheme is the circuit-board palette.
func DefaultTheme() Theme {
	var (
		board  = hex("#0b1f14")
		trace  = hex("#3ddc84")
		copper = hex("#d4883a")
		silk   = hex("#e8e6d9")
		fault  = hex("#ff5c5c")
	)
	base := tcell.StyleDefault.Background(board).Foreground(silk)
	return Theme{
		Title:    base.Foreground(trace).Bold(true),
		Tab:      base.Foreground(silk),
		TabOn:    base.Foreground(board).Background(trace).Bold(true),
		Sidebar:  base,
		Key:      base.Foreground(copper).Bold(true),
		Body:     base,
		Console:  base.Foreground(silk).Dim(true),
		Event:    base.Foreground(trace),
		Error:    base.Foreground(fault),
		Status:   base.Foreground(board).Background(copper),
		StatusKO: base.Foreground(silk).Background(fault).Bold(true),
	}
}
