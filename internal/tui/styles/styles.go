package styles

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	Accent  = lipgloss.Color("#E5A00D")
	Surface = lipgloss.Color("#1F2937")
	Raised  = lipgloss.Color("#374151")
	Muted   = lipgloss.Color("#6B7280")
	Soft    = lipgloss.Color("#9CA3AF")
	Text    = lipgloss.Color("#F9FAFB")
	Ok      = lipgloss.Color("#10B981")
	Bad     = lipgloss.Color("#EF4444")
)

// Progress bars blend from the accent into the success color
const (
	ProgressFrom = "#E5A00D"
	ProgressTo   = "#10B981"
)

var (
	TitleStyle    = lipgloss.NewStyle().Foreground(Text).Bold(true)
	SubtitleStyle = lipgloss.NewStyle().Foreground(Soft)
	DimStyle      = lipgloss.NewStyle().Foreground(Muted)
	AccentStyle   = lipgloss.NewStyle().Foreground(Accent)
	ErrorStyle    = lipgloss.NewStyle().Foreground(Bad)
	SuccessStyle  = lipgloss.NewStyle().Foreground(Ok)
)

// Row markers, unstyled
const (
	CursorChar    = "›"
	InstalledChar = "✓"
	CheckedBox    = "[x]"
	EmptyBox      = "[ ]"
)

var InstalledCheck = SuccessStyle.Render(InstalledChar)

// Row styles. All share the same horizontal padding so checked and
// highlighted rows line up with plain ones.
var (
	rowStyle = lipgloss.NewStyle().Padding(0, 1)

	NormalItemStyle   = rowStyle.Foreground(Soft)
	SelectedItemStyle = rowStyle.Foreground(Text).Background(Raised)
	CheckedItemStyle  = rowStyle.Foreground(Accent).Bold(true)
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Padding(0, 1).
			MarginBottom(1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Accent).
			Padding(1, 2)

	TransferStyle = panelStyle
	HelpStyle     = panelStyle.Background(Surface)
)
