package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/romdl/internal/domain"
	"github.com/mmcdole/romdl/internal/download"
	"github.com/mmcdole/romdl/internal/navigator"
	"github.com/mmcdole/romdl/internal/tui/styles"
)

// View renders the application
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}

	if m.State == StateHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	if m.transfer != nil {
		b.WriteString(m.renderTransfer())
	} else {
		b.WriteString(m.renderList())
	}

	if m.State == StateFinding {
		b.WriteString("\n" + m.find.View())
	}

	content := lipgloss.NewStyle().Height(m.Height - 1).MaxHeight(m.Height - 1).Render(b.String())
	return content + "\n" + m.renderFooter()
}

// renderHeader renders the title and breadcrumb
func (m Model) renderHeader() string {
	crumb := "Systems"
	if m.nav.Mode() == navigator.GamesMenu || m.transfer != nil {
		if sys, _, ok := m.nav.ActiveSystem(); ok {
			crumb = "Systems > " + sys.Name
		}
	}

	title := styles.TitleStyle.Render("romdl") + "  " + styles.AccentStyle.Render(crumb)
	if n := len(m.nav.SelectedIndices()); n > 0 {
		title += "  " + styles.DimStyle.Render(fmt.Sprintf("%d selected", n))
	}
	return styles.HeaderStyle.Render(title)
}

// renderList renders the visible window of the list in view
func (m Model) renderList() string {
	if m.nav.Loading() {
		name := ""
		if sys, _, ok := m.nav.ActiveSystem(); ok {
			name = sys.Name
		}
		return " " + m.spinner.View() + " " + styles.DimStyle.Render("Loading "+name+"...")
	}

	if m.nav.Len() == 0 {
		if m.nav.Mode() == navigator.GamesMenu {
			return styles.DimStyle.Render("  No games found. Press esc to go back.")
		}
		return styles.DimStyle.Render("  No systems in catalog.")
	}

	games := m.nav.Mode() == navigator.GamesMenu
	start, end := m.nav.Window()
	width := m.Width - 4

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		lines = append(lines, m.renderRow(i, games, width))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRow(i int, games bool, width int) string {
	label := m.nav.Label(i)
	cursor := " "
	if i == m.nav.Highlighted() {
		cursor = styles.CursorChar
	}

	// Row padding separates the label from the install mark
	var prefix, suffix string
	if games {
		prefix = styles.EmptyBox + " "
		if m.nav.IsSelected(i) {
			prefix = styles.CheckedBox + " "
		}
		if _, ok := m.installed[label]; ok {
			suffix = " " + styles.InstalledChar
		}
	}

	text := truncate(prefix+label, width-lipgloss.Width(suffix)-2)

	style := styles.NormalItemStyle
	switch {
	case i == m.nav.Highlighted():
		style = styles.SelectedItemStyle
	case games && m.nav.IsSelected(i):
		style = styles.CheckedItemStyle
	}

	row := style.Render(text)
	if suffix != "" {
		row += styles.InstalledCheck
	}
	return cursor + row
}

// renderTransfer renders the download progress screen
func (m Model) renderTransfer() string {
	t := m.transfer
	ev := t.current

	var b strings.Builder
	if ev.Item != "" {
		fmt.Fprintf(&b, "%s %s\n\n",
			styles.TitleStyle.Render(fmt.Sprintf("Downloading %d/%d", ev.Index+1, len(t.items))),
			styles.AccentStyle.Render(truncate(ev.Item, m.Width-30)))
	} else {
		b.WriteString(styles.TitleStyle.Render("Starting download...") + "\n\n")
	}

	switch {
	case ev.Kind == domain.EventItemInstalling:
		b.WriteString(m.fileBar.ViewAs(1) + "\n")
		b.WriteString(styles.DimStyle.Render("Installing...") + "\n")
	case ev.FilePercent >= 0:
		b.WriteString(m.fileBar.ViewAs(float64(ev.FilePercent)/100) + "\n")
		b.WriteString(styles.DimStyle.Render(fmt.Sprintf("%s / %s  %s",
			download.FormatBytes(ev.Downloaded),
			download.FormatBytes(ev.Size),
			download.FormatSpeed(ev.Speed))) + "\n")
	default:
		b.WriteString(styles.DimStyle.Render(fmt.Sprintf("%s  %s",
			download.FormatBytes(ev.Downloaded),
			download.FormatSpeed(ev.Speed))) + "\n")
	}

	b.WriteString("\n" + styles.SubtitleStyle.Render("Overall") + "\n")
	b.WriteString(m.queueBar.ViewAs(float64(t.percent)/100) + "\n")

	summary := fmt.Sprintf("%d done", t.done)
	if t.failed > 0 {
		summary += styles.ErrorStyle.Render(fmt.Sprintf(", %d failed", t.failed))
	}
	b.WriteString(styles.DimStyle.Render(summary))

	return styles.TransferStyle.Render(b.String())
}

// renderFooter renders the status message and key hints
func (m Model) renderFooter() string {
	var left string
	if m.StatusMsg != "" {
		if m.StatusIsErr {
			left = styles.ErrorStyle.Render(m.StatusMsg)
		} else {
			left = styles.DimStyle.Render(m.StatusMsg)
		}
	}

	var hints []string
	switch {
	case m.transfer != nil:
		hints = []string{hint("esc", "cancel")}
	case m.State == StateFinding:
		hints = []string{hint("enter/esc", "close")}
	case m.nav.Mode() == navigator.GamesMenu:
		hints = []string{hint("space", "select"), hint("d", "download"), hint("/", "find"), hint("esc", "back")}
	default:
		hints = []string{hint("enter", "open"), hint("q", "quit")}
	}
	hints = append(hints, hint("?", "help"))
	right := strings.Join(hints, "  ")

	gap := m.Width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func hint(k, desc string) string {
	return styles.AccentStyle.Render(k) + styles.DimStyle.Render(" "+desc)
}

// renderHelp renders the help screen from the keymap
func (m Model) renderHelp() string {
	var b strings.Builder
	for i, sec := range Keys.helpSections() {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(styles.TitleStyle.Render(sec.title) + "\n")
		for _, kb := range sec.bindings {
			h := kb.Help()
			fmt.Fprintf(&b, "  %s %s\n",
				styles.AccentStyle.Render(fmt.Sprintf("%-12s", h.Key)),
				styles.DimStyle.Render(h.Desc))
		}
	}
	b.WriteString("\n" + styles.DimStyle.Render("Installed items are marked with ") + styles.InstalledCheck)

	return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center,
		styles.HelpStyle.Render(b.String()))
}

// truncate shortens s to width cells, adding an ellipsis
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
