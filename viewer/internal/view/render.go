package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/colorstring"

	"github.com/linkscore/linkscore/pkg/types"
)

// bandColors maps score bands to colorstring codes.
var bandColors = map[types.Band]string{
	types.BandLow:         "[green]",
	types.BandMid:         "[yellow]",
	types.BandHigh:        "[red]",
	types.BandUnavailable: "[dark_gray]",
}

// Renderer prints a View for a terminal.
type Renderer struct {
	colors *colorstring.Colorize
}

// NewRenderer returns a Renderer. color=false prints plain text.
func NewRenderer(color bool) *Renderer {
	return &Renderer{colors: &colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: !color,
		Reset:   true,
	}}
}

// Render writes the query header followed by every result passing f:
//
//	Query: rust async  (2 of 3, filter: all)
//	  Some title (85.0%)
//	    reason text
//	  Other title (X)
func (rn *Renderer) Render(w io.Writer, v *View, f types.Filter) error {
	items := v.List(f)

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s  (%d of %d, filter: %s)\n", v.Query(), len(items), v.Len(), filterName(f))
	for _, r := range items {
		fmt.Fprintf(&b, "  %s %s\n", DisplayTitle(r), rn.colors.Color(bandColors[types.BandOf(r.Score)]+"("+ScoreText(r.Score)+")"))
		if r.Reason != "" {
			fmt.Fprintf(&b, "    %s\n", r.Reason)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// DisplayTitle returns the title, falling back to the URL and then to
// "(untitled)".
func DisplayTitle(r types.ScoredResult) string {
	switch {
	case r.Title != "":
		return r.Title
	case r.URL != "":
		return r.URL
	default:
		return "(untitled)"
	}
}

// ScoreText formats a score with one decimal and a percent sign, or "X" when
// the score is unavailable.
func ScoreText(score float64) string {
	if score < 0 {
		return "X"
	}
	return fmt.Sprintf("%.1f%%", score)
}

func filterName(f types.Filter) string {
	if f == "" {
		return string(types.FilterAll)
	}
	return string(f)
}
