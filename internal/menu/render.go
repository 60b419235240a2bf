package menu

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mdp/qrterminal/v3"

	"portshare/internal/relay"
)

var (
	dividerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	linkStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// Divider prints a labelled separator line.
func Divider(w io.Writer, label string) {
	fmt.Fprintln(w, dividerStyle.Render(" ────────── "+label+" ──────────"))
}

// RenderQR writes link as a half-block QR code.
func RenderQR(w io.Writer, link string) {
	qrterminal.GenerateHalfBlock(link, qrterminal.L, w)
}

func (m *Menu) render(w io.Writer, s State) {
	switch s.Stage {
	case ChooseResource:
		Divider(w, "RESOURCES")
		rows := make([][]string, len(m.resources))
		for i, r := range m.resources {
			rows[i] = []string{strconv.Itoa(i + 1), r}
		}
		fmt.Fprintln(w, newTable("ID", "Resource").Rows(rows...).String())
	case ChooseAddress:
		Divider(w, "DEPLOY • "+s.Resource)
		rows := make([][]string, len(m.addresses))
		for i, a := range m.addresses {
			rows[i] = []string{strconv.Itoa(i + 1), relay.Label(a.Kind), a.URL}
		}
		fmt.Fprintln(w, newTable("ID", "Tunnel", "Address").Rows(rows...).String())
	}
}

func (m *Menu) renderFinal(w io.Writer, link string) {
	Divider(w, "FINAL LINK")
	fmt.Fprintln(w, " "+linkStyle.Render(link))
	if m.qr {
		fmt.Fprintln(w)
		RenderQR(w, link)
	}
	fmt.Fprintln(w, okStyle.Render("\n ✔ Ready to share"))
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dividerStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}
