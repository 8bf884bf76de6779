package cli

import (
	"encoding/json"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/haivivi/fieldstream/pkg/fieldx"
)

// Theme defines the color scheme for the TUI.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
	Alert   lipgloss.Color // Error color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Alert:   lipgloss.Color("#ff5f5f"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Error  lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary).Padding(0, 1),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Error:  lipgloss.NewStyle().Bold(true).Foreground(t.Alert),
	}
}

// Board tracks the fields of a generation as events arrive and renders
// them as a framed table.
type Board struct {
	Styles Styles
	Title  string

	fields Fields
	index  map[string]int
	status string
}

// NewBoard creates an empty board with the default theme.
func NewBoard(title string) *Board {
	return &Board{
		Styles: NewStyles(DefaultTheme),
		Title:  title,
		index:  make(map[string]int),
		status: "streaming",
	}
}

// Apply records one event and returns its styled one-line rendering.
func (b *Board) Apply(evt fieldx.Event) string {
	switch evt.Type {
	case fieldx.EventField:
		if i, ok := b.index[evt.Field]; ok {
			b.fields[i].Value = evt.Value
		} else {
			b.index[evt.Field] = len(b.fields)
			b.fields = append(b.fields, fieldx.Member{Key: evt.Field, Value: evt.Value})
		}
		return b.Styles.Label.Render(evt.Field) + b.Styles.Help.Render(" = ") + valueText(evt.Value)
	case fieldx.EventComplete:
		b.status = "complete"
		return b.Styles.Label.Render("✓ complete")
	case fieldx.EventError:
		b.status = "error"
		return b.Styles.Error.Render("✗ " + evt.Error)
	}
	return b.Styles.Help.Render(evt.String())
}

// SetStatus overrides the status shown in the title line.
func (b *Board) SetStatus(status string) {
	b.status = status
}

// Fields returns the fields seen so far, in arrival order.
func (b *Board) Fields() Fields {
	return append(Fields(nil), b.fields...)
}

// Render renders the board to a string of the given width.
func (b *Board) Render(width int) string {
	if width < 20 {
		width = 20
	}
	bc := b.Styles.Border
	maxContentWidth := width - 4

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	// │ title [status]    │
	title := b.Styles.Title.Render(b.Title)
	status := b.Styles.Help.Render("[" + b.status + "]")
	padding := max(0, width-5-lipgloss.Width(title)-lipgloss.Width(status))
	lines = append(lines, bc.Render("│")+" "+title+" "+status+
		strings.Repeat(" ", padding)+" "+bc.Render("│"))

	labelWidth := 0
	for _, f := range b.fields {
		labelWidth = max(labelWidth, lipgloss.Width(f.Key))
	}
	labelWidth = min(labelWidth, maxContentWidth/3)

	lines = append(lines, bc.Render("├"+strings.Repeat("─", width-2)+"┤"))
	for _, f := range b.fields {
		label := truncateString(f.Key, labelWidth)
		label += strings.Repeat(" ", labelWidth-lipgloss.Width(label))
		text := valueText(f.Value)
		avail := maxContentWidth - labelWidth - 2
		if avail > 1 && lipgloss.Width(text) > avail {
			text = truncateString(text, avail-1) + "…"
		}
		content := b.Styles.Label.Render(label) + "  " + text
		lines = append(lines, bc.Render("│")+" "+content+
			strings.Repeat(" ", max(0, maxContentWidth-lipgloss.Width(content)))+" "+bc.Render("│"))
	}
	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	return strings.Join(lines, "\n")
}

// valueText renders strings bare and everything else as compact JSON.
func valueText(v fieldx.Value) string {
	if s, ok := v.(string); ok {
		return strings.ReplaceAll(s, "\n", "⏎")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(data)
}

// truncateString safely truncates a string to the given width,
// handling multi-byte characters correctly.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
