package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/ragimov700/yookassa-to-npd/internal/config"
	"github.com/ragimov700/yookassa-to-npd/internal/ingest"
	"github.com/ragimov700/yookassa-to-npd/internal/ledger"
	"github.com/ragimov700/yookassa-to-npd/internal/npd"
	"github.com/ragimov700/yookassa-to-npd/internal/pipeline"
	"github.com/ragimov700/yookassa-to-npd/internal/secrets"
)

const maxLogLines = 200

// App is the terminal frontend: token + file entry, one background run at a
// time, scrolling log and a progress line. All submission logic lives in
// the pipeline package; the app only feeds it and renders its messages.
type App struct {
	ctx context.Context
	cfg config.Config

	state appState
	focus fieldFocus

	token       string
	filePath    string
	serviceName string
	serviceMode string
	showToken   bool

	taxpayer string
	status   string

	logLines []string
	done     int
	total    int
	running  bool

	events chan tea.Msg
}

type appState string

const (
	viewMain appState = "main"
	viewRun  appState = "run"
)

type fieldFocus int

const (
	focusToken fieldFocus = iota
	focusFile
	focusService
	focusCount
)

func New(ctx context.Context, cfg config.Config) *App {
	token, _ := secrets.FetchToken()
	return &App{
		ctx:         ctx,
		cfg:         cfg,
		state:       viewMain,
		token:       token,
		filePath:    cfg.Run.LastFile,
		serviceName: cfg.Run.ServiceName,
		serviceMode: cfg.Run.ServiceMode,
	}
}

func (a *App) Init() tea.Cmd { return nil }

// messages
type logMsg string

type progressMsg struct{ done, total int }

type runDoneMsg struct{ summary pipeline.Summary }

type tokenCheckedMsg struct{ tp npd.Taxpayer }

type errMsg struct{ error }

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(m)
	case logMsg:
		a.pushLog(string(m))
		return a, a.waitEvent()
	case progressMsg:
		a.done, a.total = m.done, m.total
		return a, a.waitEvent()
	case runDoneMsg:
		a.running = false
		if m.summary.RunID != "" {
			a.status = fmt.Sprintf("Done: %d of %d submitted", m.summary.Submitted, m.summary.Total)
		}
		return a, nil
	case tokenCheckedMsg:
		a.taxpayer = fmt.Sprintf("%s (ИНН %s)", m.tp.DisplayName, m.tp.INN)
		a.status = "token OK: " + a.taxpayer
		return a, nil
	case errMsg:
		a.status = "error: " + m.Error()
		if a.running {
			return a, a.waitEvent()
		}
		return a, nil
	}
	return a, nil
}

func (a *App) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.state == viewRun {
		switch m.String() {
		case "ctrl+c", "esc":
			if a.running {
				// No mid-run cancellation: the batch finishes on its own.
				a.status = "run in progress; it cannot be cancelled"
				return a, nil
			}
			a.state = viewMain
		}
		return a, nil
	}
	switch m.String() {
	case "ctrl+c", "esc":
		return a, tea.Quit
	case "tab":
		a.focus = (a.focus + 1) % focusCount
		return a, nil
	case "shift+tab":
		a.focus = (a.focus + focusCount - 1) % focusCount
		return a, nil
	case "ctrl+t":
		return a, a.checkTokenCmd()
	case "ctrl+v":
		a.showToken = !a.showToken
		return a, nil
	case "ctrl+o":
		if a.serviceMode == config.ServiceModeCSV {
			a.serviceMode = config.ServiceModeCustom
		} else {
			a.serviceMode = config.ServiceModeCSV
		}
		return a, nil
	case "enter":
		if a.running {
			return a, nil
		}
		return a, a.startRun()
	case "backspace":
		a.setField(trimLast(a.field()))
		return a, nil
	}
	switch m.Type {
	case tea.KeyRunes:
		a.setField(a.field() + string(m.Runes))
	case tea.KeySpace:
		a.setField(a.field() + " ")
	}
	return a, nil
}

func (a *App) field() string {
	switch a.focus {
	case focusToken:
		return a.token
	case focusFile:
		return a.filePath
	default:
		return a.serviceName
	}
}

func (a *App) setField(v string) {
	switch a.focus {
	case focusToken:
		a.token = v
	case focusFile:
		a.filePath = v
	default:
		a.serviceName = v
	}
}

func (a *App) checkTokenCmd() tea.Cmd {
	token := strings.TrimSpace(a.token)
	if token == "" {
		a.status = "enter a token first"
		return nil
	}
	ctx := a.ctx
	base := a.cfg.API.BaseURL
	return func() tea.Msg {
		tp, err := npd.NewClientWithBase(token, base).CheckToken(ctx)
		if err != nil {
			return errMsg{fmt.Errorf("token check: %w", err)}
		}
		_ = secrets.StoreToken(token)
		return tokenCheckedMsg{tp: tp}
	}
}

// startRun persists settings, then runs the whole batch on one background
// goroutine, streaming progress and log lines back as messages.
func (a *App) startRun() tea.Cmd {
	token := strings.TrimSpace(a.token)
	path := strings.TrimSpace(a.filePath)
	if token == "" || path == "" {
		a.status = "token and file path are required"
		return nil
	}
	if a.serviceMode == config.ServiceModeCustom && strings.TrimSpace(a.serviceName) == "" {
		a.status = "service name is required"
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		a.status = "file not found: " + path
		return nil
	}

	a.cfg.Run.LastFile = path
	a.cfg.Run.ServiceName = a.serviceName
	a.cfg.Run.ServiceMode = a.serviceMode
	if err := config.Save(a.cfg); err != nil {
		a.status = "save config: " + err.Error()
	}
	_ = secrets.StoreToken(token)

	a.state = viewRun
	a.running = true
	a.logLines = nil
	a.done, a.total = 0, 0
	a.status = ""
	a.events = make(chan tea.Msg, 64)

	go a.runBatch(token, path)
	return a.waitEvent()
}

func (a *App) waitEvent() tea.Cmd {
	return func() tea.Msg { return <-a.events }
}

func (a *App) runBatch(token, path string) {
	logger := log.New(chanWriter{ch: a.events})
	logger.SetReportTimestamp(false)

	store, err := openStore(a.cfg.Ledger)
	if err != nil {
		a.events <- errMsg{err}
		a.events <- runDoneMsg{}
		return
	}
	defer store.Close()

	audit, err := ledger.OpenAuditLog(a.cfg.Ledger.AuditPath)
	if err != nil {
		a.events <- errMsg{err}
		a.events <- runDoneMsg{}
		return
	}
	defer audit.Close()

	reader := ingest.Reader{Log: logger}
	records, err := reader.ReadFile(path)
	if err != nil {
		a.events <- errMsg{fmt.Errorf("read export: %w", err)}
		a.events <- runDoneMsg{}
		return
	}
	logger.Info("records found", "count", len(records))

	p := &pipeline.Pipeline{
		Client: npd.NewClientWithBase(token, a.cfg.API.BaseURL),
		Ledger: store,
		Audit:  audit,
		Log:    logger,
		Progress: func(done, total int) {
			a.events <- progressMsg{done: done, total: total}
		},
	}
	summary := p.Run(a.ctx, records, pipeline.Options{
		ServiceName:        a.serviceName,
		ServiceNameFromCSV: a.serviceMode == config.ServiceModeCSV,
		PaymentType:        a.cfg.Run.PaymentType,
	})
	a.events <- runDoneMsg{summary: summary}
}

func openStore(cfg config.LedgerConfig) (ledger.Store, error) {
	if cfg.Backend == "sqlite" {
		return ledger.OpenSQLiteStore(cfg.Path, cfg.MigrationsPath)
	}
	return ledger.OpenFileStore(cfg.Path)
}

func (a *App) pushLog(line string) {
	line = strings.TrimRight(line, "\n")
	if line == "" {
		return
	}
	a.logLines = append(a.logLines, line)
	if len(a.logLines) > maxLogLines {
		a.logLines = a.logLines[len(a.logLines)-maxLogLines:]
	}
}

// chanWriter funnels pipeline log output into the bubbletea event loop.
type chanWriter struct {
	ch chan<- tea.Msg
}

func (w chanWriter) Write(p []byte) (int, error) {
	w.ch <- logMsg(string(p))
	return len(p), nil
}

// styles
var (
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	focusStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

func (a *App) View() string {
	if a.state == viewRun {
		return a.renderRun()
	}
	return a.renderMain()
}

func (a *App) renderMain() string {
	title := titleStyle.Render("YooKassa → НПД")

	token := a.token
	if !a.showToken && token != "" {
		token = strings.Repeat("*", len(token))
	}
	mode := "custom name"
	if a.serviceMode == config.ServiceModeCSV {
		mode = "from CSV description"
	}

	rows := []string{
		renderField("Token (Bearer ...)", token, a.focus == focusToken),
		renderField("CSV export path", a.filePath, a.focus == focusFile),
		renderField("Service name", a.serviceName, a.focus == focusService),
		dimStyle.Render("Service name mode: " + mode),
	}
	if a.taxpayer != "" {
		rows = append(rows, "Taxpayer: "+a.taxpayer)
	}

	body := strings.Join(rows, "\n")
	help := "[tab] Next field  [ctrl+t] Check token  [ctrl+o] Toggle name mode  [ctrl+v] Show token  [enter] Start  [esc] Quit"
	out := fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
	if a.status != "" {
		out += "\n" + a.status
	}
	return out
}

func (a *App) renderRun() string {
	title := titleStyle.Render("Submitting")

	bar := ""
	if a.total > 0 {
		const width = 40
		filled := a.done * width / a.total
		bar = fmt.Sprintf("[%s%s] %d/%d",
			strings.Repeat("█", filled), strings.Repeat("░", width-filled), a.done, a.total)
	}

	out := title + "\n"
	tail := a.logLines
	if len(tail) > 20 {
		tail = tail[len(tail)-20:]
	}
	out += strings.Join(tail, "\n")
	if bar != "" {
		out += "\n\n" + bar
	}
	if a.status != "" {
		out += "\n" + a.status
		out += "\n" + dimStyle.Render("[esc] Back to main")
	}
	return out
}

func renderField(label, value string, focused bool) string {
	marker := "  "
	style := lipgloss.NewStyle()
	if focused {
		marker = "▶ "
		style = focusStyle
	}
	return fmt.Sprintf("%s%s: %s", marker, style.Render(label), value)
}

func trimLast(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return string(r[:len(r)-1])
}
