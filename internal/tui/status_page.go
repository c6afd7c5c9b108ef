package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tinytelemetry/snapvault/internal/model"
)

const (
	historySize = 20
	maxArchives = 8
	minInterval = 200 * time.Millisecond
)

// Backend is what the status page needs from the daemon.
type Backend interface {
	Status() (model.Status, error)
	TriggerBackup() (bool, error)
	RecentRuns(limit int) ([]model.RunRecord, error)
	ListArchives() ([]model.ArchiveInfo, error)
	GetSettings() (model.Settings, error)
	UpdateSettings(patch model.SettingsPatch) (model.Settings, error)
}

type tickMsg struct{}

type snapshotMsg struct {
	status   model.Status
	runs     []model.RunRecord
	archives []model.ArchiveInfo
	settings model.Settings
	err      error
}

type triggerMsg struct {
	started bool
	err     error
}

type settingsMsg struct {
	settings model.Settings
	err      error
}

// StatusPage shows the live backup status and lets the user trigger runs
// and edit settings.
type StatusPage struct {
	backend  Backend
	interval time.Duration
	keys     KeyMap
	help     help.Model
	bar      progress.Model

	status   model.Status
	runs     []model.RunRecord
	archives []model.ArchiveInfo
	settings model.Settings
	loaded   bool
	fetching bool
	spinning bool
	notice   string
	lastErr  error
}

// NewStatusPage creates the status page polling backend every interval.
func NewStatusPage(backend Backend, interval time.Duration) *StatusPage {
	if interval < minInterval {
		interval = minInterval
	}
	return &StatusPage{
		backend:  backend,
		interval: interval,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (p *StatusPage) ID() string { return "status" }

func (p *StatusPage) Init() tea.Cmd {
	p.fetching = true
	return tea.Batch(p.fetch(), p.tick(), p.startSpinner())
}

func (p *StatusPage) startSpinner() tea.Cmd {
	if p.spinning {
		return nil
	}
	p.spinning = true
	return spinnerTick()
}

func (p *StatusPage) tick() tea.Cmd {
	return tea.Tick(p.interval, func(time.Time) tea.Msg { return tickMsg{} })
}

// fetch collects everything the page renders in one round trip.
func (p *StatusPage) fetch() tea.Cmd {
	backend := p.backend
	return func() tea.Msg {
		var msg snapshotMsg
		if msg.status, msg.err = backend.Status(); msg.err != nil {
			return msg
		}
		if msg.settings, msg.err = backend.GetSettings(); msg.err != nil {
			return msg
		}
		if msg.runs, msg.err = backend.RecentRuns(historySize); msg.err != nil {
			return msg
		}
		msg.archives, msg.err = backend.ListArchives()
		return msg
	}
}

func (p *StatusPage) trigger() tea.Cmd {
	backend := p.backend
	return func() tea.Msg {
		started, err := backend.TriggerBackup()
		return triggerMsg{started: started, err: err}
	}
}

func (p *StatusPage) update(patch model.SettingsPatch) tea.Cmd {
	backend := p.backend
	return func() tea.Msg {
		st, err := backend.UpdateSettings(patch)
		return settingsMsg{settings: st, err: err}
	}
}

func (p *StatusPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tickMsg:
		if p.fetching {
			return p.tick(), nil
		}
		p.fetching = true
		return tea.Batch(p.fetch(), p.tick()), nil

	case SpinnerTickMsg:
		if !p.loaded || p.status.InProgress {
			return spinnerTick(), nil
		}
		p.spinning = false
		return nil, nil

	case snapshotMsg:
		p.fetching = false
		p.lastErr = msg.err
		if msg.err != nil {
			return nil, nil
		}
		p.status = msg.status
		p.settings = msg.settings
		p.runs = msg.runs
		p.archives = msg.archives
		p.loaded = true
		if p.status.InProgress {
			return p.startSpinner(), nil
		}
		return nil, nil

	case triggerMsg:
		switch {
		case msg.err != nil:
			p.lastErr = msg.err
		case msg.started:
			p.notice = "backup started"
			p.status.InProgress = true
			p.status.Progress = 0
			return tea.Batch(p.fetch(), p.startSpinner()), nil
		default:
			p.notice = "a backup is already running"
		}
		return nil, nil

	case settingsMsg:
		if msg.err != nil {
			p.lastErr = msg.err
			return nil, nil
		}
		p.lastErr = nil
		p.settings = msg.settings
		p.notice = "settings saved"
		return p.fetch(), nil

	case tea.WindowSizeMsg:
		p.bar.Width = max(10, min(60, msg.Width-24))
		p.help.Width = msg.Width
		return nil, nil

	case tea.KeyMsg:
		return p.handleKey(msg)
	}
	return nil, nil
}

func (p *StatusPage) handleKey(msg tea.KeyMsg) (tea.Cmd, *PageNav) {
	switch {
	case key.Matches(msg, p.keys.Quit):
		return nil, &PageNav{Quit: true}
	case key.Matches(msg, p.keys.Help):
		p.help.ShowAll = !p.help.ShowAll
	case key.Matches(msg, p.keys.Backup):
		p.notice = ""
		return p.trigger(), nil
	case key.Matches(msg, p.keys.Refresh):
		p.notice = ""
		p.fetching = true
		return p.fetch(), nil
	case key.Matches(msg, p.keys.ToggleEnabled):
		enabled := !p.settings.Enabled
		return p.update(model.SettingsPatch{Enabled: &enabled}), nil
	case key.Matches(msg, p.keys.ToggleLog):
		logEnabled := !p.settings.LogEnabled
		return p.update(model.SettingsPatch{LogEnabled: &logEnabled}), nil
	case key.Matches(msg, p.keys.LimitUp):
		limit := p.settings.RetentionLimit + 1
		return p.update(model.SettingsPatch{RetentionLimit: &limit}), nil
	case key.Matches(msg, p.keys.LimitDown):
		if p.settings.RetentionLimit <= 1 {
			p.notice = "retention limit is already 1"
			return nil, nil
		}
		limit := p.settings.RetentionLimit - 1
		return p.update(model.SettingsPatch{RetentionLimit: &limit}), nil
	}
	return nil, nil
}

func (p *StatusPage) View(width, height int) string {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	if !p.loaded {
		if p.lastErr != nil {
			return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center,
				failStyle.Render("Cannot reach snapvault: "+p.lastErr.Error()))
		}
		return renderLoadingPlaceholder(width, height)
	}

	inner := max(20, width-4)
	sections := []string{
		titleStyle.Render("snapvault"),
		sectionStyle.Width(inner).Render(p.renderStatus()),
		sectionStyle.Width(inner).Render(p.renderSettings()),
		sectionStyle.Width(inner).Render(renderDurations(p.runs, inner-4, 8)),
		sectionStyle.Width(inner).Render(p.renderArchives()),
	}
	if line := p.renderNotice(); line != "" {
		sections = append(sections, line)
	}
	sections = append(sections, p.help.View(p.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (p *StatusPage) renderStatus() string {
	var b strings.Builder
	state := okStyle.Render("idle")
	if p.status.InProgress {
		state = warnStyle.Render(spinnerFrame() + " running")
	}
	fmt.Fprintf(&b, "%s %s  %s %s\n", labelStyle.Render("State:"), state,
		labelStyle.Render("Phase:"), string(p.status.Phase))
	fmt.Fprintf(&b, "%s %s %5.1f%%", labelStyle.Render("Progress:"),
		p.bar.ViewAs(p.status.Progress/100), p.status.Progress)

	if last := p.status.LastRun; last != nil {
		b.WriteString("\n")
		b.WriteString(describeRun(*last))
	}
	return b.String()
}

func describeRun(r model.RunRecord) string {
	when := humanize.Time(r.StartedAt)
	if !r.Success {
		return fmt.Sprintf("%s %s (%s): %s", labelStyle.Render("Last run:"),
			failStyle.Render("failed"), when, r.Message)
	}
	line := fmt.Sprintf("%s %s (%s) %s, %s in %.1fs",
		labelStyle.Render("Last run:"), okStyle.Render("ok"), when,
		filepath.Base(r.Archive), humanize.Bytes(uint64(max(r.ArchiveSize, 0))), r.Elapsed.Seconds())
	if n := len(r.Skipped); n > 0 {
		line += warnStyle.Render(fmt.Sprintf(", %d skipped", n))
	}
	return line
}

func (p *StatusPage) renderSettings() string {
	onOff := func(v bool) string {
		if v {
			return okStyle.Render("on")
		}
		return labelStyle.Render("off")
	}
	return fmt.Sprintf("%s %s  %s %d  %s %s\n%s %s",
		labelStyle.Render("Backup on start:"), onOff(p.settings.Enabled),
		labelStyle.Render("Keep:"), p.settings.RetentionLimit,
		labelStyle.Render("Logging:"), onOff(p.settings.LogEnabled),
		labelStyle.Render("Target:"), p.settings.TargetPath)
}

func (p *StatusPage) renderArchives() string {
	title := sectionTitleStyle.Render(fmt.Sprintf("Archives (%d)", len(p.archives)))
	if len(p.archives) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, helpStyle.Render("No archives yet"))
	}
	lines := []string{title}
	for i, a := range p.archives {
		if i == maxArchives {
			lines = append(lines, helpStyle.Render(fmt.Sprintf("… %d more", len(p.archives)-maxArchives)))
			break
		}
		lines = append(lines, fmt.Sprintf("%-40s %10s  %s", a.Name,
			humanize.Bytes(uint64(max(a.Size, 0))), labelStyle.Render(humanize.Time(a.Created))))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (p *StatusPage) renderNotice() string {
	if p.lastErr != nil {
		return failStyle.Render("Error: " + p.lastErr.Error())
	}
	if p.notice != "" {
		return warnStyle.Render(p.notice)
	}
	return ""
}
