package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/escape-labs/internal/game"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const wrapWidth = 80

var (
	accent  = lipgloss.Color("#5FB3B3")
	success = lipgloss.Color("#8BC34A")
	warning = lipgloss.Color("#FFC107")
	danger  = lipgloss.Color("#E53935")
	muted   = lipgloss.Color("#7A8793")
)

// Renderer prints game output to a terminal.
type Renderer struct {
	md *glamour.TermRenderer

	title   lipgloss.Style
	persona lipgloss.Style
	you     lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	dim     lipgloss.Style
}

// NewRenderer creates a renderer. Plain output drops colors and markdown
// styling, for pipes and tests.
func NewRenderer(plain bool) *Renderer {
	style := glamour.WithAutoStyle()
	if plain {
		style = glamour.WithStandardStyle("notty")
	}
	// A nil md falls back to raw text.
	md, _ := glamour.NewTermRenderer(style, glamour.WithWordWrap(wrapWidth))

	r := &Renderer{
		md:      md,
		title:   lipgloss.NewStyle().Bold(true).Foreground(accent),
		persona: lipgloss.NewStyle().Foreground(accent),
		you:     lipgloss.NewStyle().Foreground(muted),
		ok:      lipgloss.NewStyle().Foreground(success),
		warn:    lipgloss.NewStyle().Foreground(warning),
		err:     lipgloss.NewStyle().Foreground(danger),
		dim:     lipgloss.NewStyle().Foreground(muted),
	}
	if plain {
		for _, s := range []*lipgloss.Style{&r.title, &r.persona, &r.you, &r.ok, &r.warn, &r.err, &r.dim} {
			*s = lipgloss.NewStyle()
		}
	}
	return r
}

// Markdown renders src, falling back to the raw text.
func (r *Renderer) Markdown(w io.Writer, src string) {
	if r.md != nil {
		if out, err := r.md.Render(src); err == nil {
			fmt.Fprint(w, out)
			return
		}
	}
	fmt.Fprintln(w, src)
}

// Room prints a room header, its narrative and its conversation so far.
func (r *Renderer) Room(w io.Writer, v game.RoomView) {
	fmt.Fprintln(w, r.title.Render(fmt.Sprintf("[%d] %s", v.Index, v.Title)))
	r.Markdown(w, v.Narrative)
	for _, t := range v.Turns {
		r.Turn(w, string(t.Role), t.Text)
	}
	for _, d := range v.Downloads {
		state := r.ok.Render("ready")
		switch {
		case d.Locked:
			state = r.warn.Render(fmt.Sprintf("needs %d fields", d.MinDiscovered))
		case !d.Available:
			state = r.dim.Render("missing")
		}
		fmt.Fprintf(w, "  download %s (%s) %s\n", d.Filename, d.Description, state)
	}
	if v.HasChat && !v.ChatEnabled {
		fmt.Fprintln(w, r.dim.Render("This room is solved. Type /next to continue."))
	}
	if v.Notice != "" {
		r.Warn(w, v.Notice)
	}
}

// Turn prints one chat line.
func (r *Renderer) Turn(w io.Writer, role, text string) {
	if role == "user" {
		fmt.Fprintln(w, r.you.Render("you> "+text))
		return
	}
	fmt.Fprintln(w, r.persona.Render("persona>"), text)
}

// State prints the room list with counters.
func (r *Renderer) State(w io.Writer, s game.StateView) {
	fmt.Fprintln(w, r.title.Render(s.Label))
	for _, room := range s.Rooms {
		mark := " "
		switch {
		case room.Index == s.Current:
			mark = ">"
		case room.Completed:
			mark = "x"
		case room.Locked:
			mark = "-"
		}
		line := fmt.Sprintf(" %s %d %s", mark, room.Index, room.Title)
		if room.Locked {
			line = r.dim.Render(line + " (locked)")
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "fields %d/%d  points %d/%d\n", s.Discovered, s.DiscoveryThreshold, s.Points, s.ScoreThreshold)
	if s.Escaped {
		r.OK(w, game.MessageEscaped)
	}
}

// Fields prints discovered fields.
func (r *Renderer) Fields(w io.Writer, fields []game.DiscoveredField) {
	if len(fields) == 0 {
		fmt.Fprintln(w, r.dim.Render("No fields discovered yet."))
		return
	}
	for _, f := range fields {
		if f.Description != nil && *f.Description != "" {
			fmt.Fprintf(w, "  %s  %s\n", f.Name, r.dim.Render(*f.Description))
			continue
		}
		fmt.Fprintf(w, "  %s\n", f.Name)
	}
}

// Columns prints the submission options.
func (r *Renderer) Columns(w io.Writer, cols []string) {
	fmt.Fprintln(w, strings.Join(cols, ", "))
}

// OK prints a success line.
func (r *Renderer) OK(w io.Writer, msg string) {
	fmt.Fprintln(w, r.ok.Render(msg))
}

// Warn prints a warning line.
func (r *Renderer) Warn(w io.Writer, msg string) {
	fmt.Fprintln(w, r.warn.Render(msg))
}

// Error prints an error line.
func (r *Renderer) Error(w io.Writer, err error) {
	fmt.Fprintln(w, r.err.Render("error: "+err.Error()))
}
