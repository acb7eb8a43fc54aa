package main

import (
	"fmt"
	"strings"

	"cdnhost/pkg/config"
	"cdnhost/pkg/presence"
	"cdnhost/pkg/types"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/docker/go-units"
)

var (
	primaryColor   = lipgloss.Color("#FF79C6") // Pink
	secondaryColor = lipgloss.Color("#8BE9FD") // Cyan
	accentColor    = lipgloss.Color("#50FA7B") // Green
	dangerColor    = lipgloss.Color("#FF5555") // Red
	mutedColor     = lipgloss.Color("#6272A4")
	bgLightColor   = lipgloss.Color("#44475A")
	fgColor        = lipgloss.Color("#F8F8F2")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(1, 2).
			MarginBottom(1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	valueStyle = lipgloss.NewStyle().
			Foreground(fgColor).
			Bold(true)

	accentValueStyle = lipgloss.NewStyle().
				Foreground(accentColor).
				Bold(true)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor).
			Background(bgLightColor).
			Padding(0, 1)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

func createPanel(title, content string) string {
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), content))
}

func field(label, value string, style lipgloss.Style) string {
	return labelStyle.Render(label) + " " + style.Render(value) + "\n"
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(bgLightColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return rowStyle.Foreground(fgColor)
		}).
		Headers(headers...)
}

func renderBanner(cfg *config.Config, peers, files int) string {
	storage := "daemon default"
	if size, err := cfg.StorageMaxBytes(); err == nil && size > 0 {
		storage = units.HumanSize(float64(size))
	}
	metricsAddr := "disabled"
	if cfg.MetricsAddr != "" {
		metricsAddr = cfg.MetricsAddr
	}

	var content strings.Builder
	content.WriteString("Thank you for volunteering! Keep this machine online and leave\n")
	content.WriteString("the daemon and its repository alone while the host runs.\n\n")
	content.WriteString(field("Binary:", cfg.Binary, valueStyle))
	content.WriteString(field("Repository:", cfg.RepoPath, valueStyle))
	content.WriteString(field("Peers:", fmt.Sprintf("%d", peers), valueStyle))
	content.WriteString(field("Catalog:", fmt.Sprintf("%d files", files), valueStyle))
	content.WriteString(field("Storage limit:", storage, valueStyle))
	content.WriteString(field("Metrics:", metricsAddr, valueStyle))
	content.WriteString("\n" + mutedStyle.Render("Stop the host with Ctrl+C or `cdnhost kill`."))

	return createPanel("P2P CDN HOST", content.String())
}

func renderBenchmark(name string, result *types.BenchmarkResult) string {
	var content strings.Builder
	content.WriteString(field("Run:", result.RunID, valueStyle))
	content.WriteString(field("File:", fmt.Sprintf("%s (%s)", name, result.Target), valueStyle))
	content.WriteString(field("Attempts:", fmt.Sprintf("%d", result.Attempts), valueStyle))
	content.WriteString(field("Accepted:", fmt.Sprintf("%d", len(result.Samples)), valueStyle))
	if result.Bytes > 0 {
		content.WriteString(field("Size:", units.HumanSize(float64(result.Bytes)), valueStyle))
	}

	if len(result.Samples) == 0 {
		content.WriteString("\n" + lipgloss.NewStyle().Foreground(dangerColor).Render("No stable samples collected"))
		return createPanel("BENCHMARK", content.String())
	}

	content.WriteString(field("Average:", fmt.Sprintf("%.3fs", result.Average), accentValueStyle))

	t := newTable("SAMPLE", "SECONDS")
	for i, s := range result.Samples {
		t.Row(fmt.Sprintf("%d", i+1), fmt.Sprintf("%.3f", s))
	}
	content.WriteString("\n" + t.Render())

	return createPanel("BENCHMARK", content.String())
}

func renderTokens(tokens []types.PresenceToken) string {
	t := newTable("#", "TOKEN")
	for i, token := range tokens {
		t.Row(fmt.Sprintf("%d", i+1), string(token))
	}
	return createPanel("PRESENCE TOKENS", t.Render())
}

func renderPublication(pub presence.Publication) string {
	t := newTable("WINDOW", "TOKEN", "CID", "STATUS")
	for _, a := range pub.Announcements {
		status := lipgloss.NewStyle().Foreground(accentColor).Render("PINNED")
		id := a.CID.String()
		if a.Err != nil {
			status = lipgloss.NewStyle().Foreground(dangerColor).Render("FAILED")
			if !a.CID.Defined() {
				id = "-"
			}
		}
		t.Row(fmt.Sprintf("%d", a.Window), string(a.Token), id, status)
	}

	summary := field("Published:", fmt.Sprintf("%d/%d", pub.Published(), len(pub.Announcements)), valueStyle)
	return createPanel("PRESENCE TOKENS", summary+"\n"+t.Render())
}
