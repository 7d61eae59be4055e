package report

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements of a run
// report.
type ColorScheme struct {
	Banner *color.Color
	Header *color.Color
	Kind   *color.Color
	Ok     *color.Color
	Warn   *color.Color
	Fail   *color.Color
	Muted  *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Banner: color.New(color.FgCyan, color.Bold),
		Header: color.New(color.Bold),
		Kind:   color.New(color.FgBlue),
		Ok:     color.New(color.FgGreen),
		Warn:   color.New(color.FgYellow),
		Fail:   color.New(color.FgRed, color.Bold),
		Muted:  color.New(color.Faint),
	}
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()

	scheme.Banner.DisableColor()
	scheme.Header.DisableColor()
	scheme.Kind.DisableColor()
	scheme.Ok.DisableColor()
	scheme.Warn.DisableColor()
	scheme.Fail.DisableColor()
	scheme.Muted.DisableColor()

	return scheme
}
