package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/gpr-bridge/bridge"
	"github.com/wippyai/gpr-bridge/handle"
	"github.com/wippyai/gpr-bridge/project"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	opStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectOp modelState = iota
	stateInputArgs
	stateShowResult
)

// interactiveModel browses the operation table and runs operations
// against one loaded project. Handle arguments are filled in with the
// project; every other argument is typed in.
type interactiveModel struct {
	ctx      context.Context
	err      error
	loader   *project.Loader
	prj      *project.Project
	opts     options
	diags    []string
	ops      []*bridge.Operation
	inputs   []textinput.Model
	argIdx   []int
	result   viewport.Model
	selected int
	focusIdx int
	width    int
	height   int
	state    modelState
	loaded   bool
}

func newInteractiveModel(ctx context.Context, loader *project.Loader, opts options) *interactiveModel {
	return &interactiveModel{
		ctx:    ctx,
		loader: loader,
		opts:   opts,
		ops:    loader.Bridge().Table().All(),
		result: viewport.New(80, 20),
		width:  80,
		height: 24,
		state:  stateSelectOp,
	}
}

type loadedMsg struct {
	err   error
	prj   *project.Project
	diags []string
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadProject
}

func (m *interactiveModel) loadProject() tea.Msg {
	prj, diags, err := load(m.ctx, m.loader, m.opts)
	return loadedMsg{err: err, prj: prj, diags: diags}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.result.Width = msg.Width
		m.result.Height = max(msg.Height-6, 3)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != stateInputArgs || msg.String() == "ctrl+c" {
				if m.prj != nil {
					_ = m.prj.Close(m.ctx)
				}
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectOp && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectOp && m.selected < len(m.ops)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectOp:
				if !m.loaded {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callOperation
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callOperation

			case stateShowResult:
				m.state = stateSelectOp
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectOp
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectOp
			}
		}

	case loadedMsg:
		m.loaded = true
		m.err = msg.err
		m.prj = msg.prj
		m.diags = msg.diags

	case callResultMsg:
		content := resultStyle.Render(msg.result)
		if msg.err != nil {
			content = errorStyle.Render(fmt.Sprintf("Error: %v", msg.err))
		}
		m.result.SetContent(content)
		m.result.GotoTop()
		m.state = stateShowResult
	}

	switch m.state {
	case stateInputArgs:
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	case stateShowResult:
		var cmd tea.Cmd
		m.result, cmd = m.result.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	op := m.ops[m.selected]
	m.inputs = nil
	m.argIdx = nil
	for i, a := range op.Args {
		if a.Shape == bridge.ArgHandle {
			continue
		}
		ti := textinput.New()
		ti.Placeholder = a.Shape.String()
		ti.Prompt = a.Name + ": "
		ti.Width = 40
		if len(m.inputs) == 0 {
			ti.Focus()
		}
		m.inputs = append(m.inputs, ti)
		m.argIdx = append(m.argIdx, i)
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callOperation() tea.Msg {
	op := m.ops[m.selected]
	args := make([]any, len(op.Args))
	for i, a := range op.Args {
		if a.Shape != bridge.ArgHandle {
			continue
		}
		if m.prj == nil || a.Kind != handle.KindProject {
			return callResultMsg{err: fmt.Errorf("no %s to pass as %s", a.Kind, a.Name)}
		}
		args[i] = m.prj.Handle()
	}
	for j, input := range m.inputs {
		i := m.argIdx[j]
		v, err := convertArg(input.Value(), op.Args[i])
		if err != nil {
			return callResultMsg{err: err}
		}
		args[i] = v
	}

	res, err := m.loader.Bridge().CallNamed(m.ctx, op.Name, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatResult(m.ctx, res)}
}

// formatResult renders res. A handle in res is released once rendered;
// the browser never keeps resources it did not load at startup.
func formatResult(ctx context.Context, res *bridge.Result) string {
	var b strings.Builder
	for _, d := range res.Diagnostics {
		b.WriteString(warnStyle.Render("warning: " + d))
		b.WriteString("\n")
	}
	if res.Handle != nil {
		fmt.Fprintf(&b, "%s", res.Handle)
		if err := res.Handle.Release(ctx); err != nil {
			fmt.Fprintf(&b, " (release failed: %v)", err)
		} else {
			b.WriteString(" (released)")
		}
		b.WriteString("\n")
	}
	if res.String != "" {
		b.WriteString(res.String)
		b.WriteString("\n")
	}
	if res.Strings != nil {
		fmt.Fprintf(&b, "%d item(s)\n", len(res.Strings))
		for _, s := range res.Strings {
			b.WriteString("  ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return "(no result)"
	}
	return strings.TrimRight(b.String(), "\n")
}

// convertArg parses typed-in text into the Go value the argument shape
// expects.
func convertArg(value string, a bridge.Arg) (any, error) {
	value = strings.TrimSpace(value)
	switch a.Shape {
	case bridge.ArgString, bridge.ArgOptString:
		return value, nil
	case bridge.ArgInt:
		if value == "" {
			return 0, nil
		}
		if mode, err := project.ParseMode(value); err == nil {
			return int(mode), nil
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.Name, err)
		}
		return n, nil
	case bridge.ArgBool:
		if value == "" {
			return false, nil
		}
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.Name, err)
		}
		return v, nil
	case bridge.ArgStringList:
		var items []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		return items, nil
	case bridge.ArgScenario:
		vars := scenarioFlag{}
		for _, kv := range strings.Split(value, ",") {
			if kv = strings.TrimSpace(kv); kv == "" {
				continue
			}
			if err := vars.Set(kv); err != nil {
				return nil, fmt.Errorf("%s: %w", a.Name, err)
			}
		}
		return map[string]string(vars), nil
	default:
		return nil, fmt.Errorf("%s: cannot enter a %s", a.Name, a.Shape)
	}
}

func (m *interactiveModel) View() string {
	if !m.loaded {
		return "Loading project..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("GPR Inspector"))
	b.WriteString(" ")
	if m.prj != nil && m.prj.File() != "" {
		b.WriteString(m.prj.File())
	} else if m.prj != nil {
		b.WriteString("(implicit project)")
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Load failed: %v", m.err)))
		b.WriteString("\n\n")
	}
	for _, d := range m.diags {
		b.WriteString(warnStyle.Render("warning: " + d))
		b.WriteString("\n")
	}
	if len(m.diags) > 0 {
		b.WriteString("\n")
	}

	switch m.state {
	case stateSelectOp:
		b.WriteString("Select an operation:\n\n")
		for i, op := range m.ops {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatOp(op)))
			} else {
				b.WriteString("  " + formatOp(op))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		op := m.ops[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", opStyle.Render(op.Name)))
		for j, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(op.Args[m.argIdx[j]].Shape.String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		op := m.ops[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", opStyle.Render(op.Name)))
		b.WriteString(m.result.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("↑/↓ scroll • enter continue • q quit"))
	}

	return b.String()
}

// formatOp renders op as a signature line.
func formatOp(op *bridge.Operation) string {
	params := make([]string, 0, len(op.Args))
	for _, a := range op.Args {
		t := a.Shape.String()
		if a.Shape == bridge.ArgHandle && a.Kind.Name != "" {
			t = a.Kind.Name
		}
		params = append(params, a.Name+": "+typeStyle.Render(t))
	}
	result := ""
	if op.Result != bridge.ResultNone {
		result = " -> " + typeStyle.Render(op.Result.String())
	}
	if op.Diagnostics {
		result += " +diagnostics"
	}
	return opStyle.Render(op.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(ctx context.Context, loader *project.Loader, opts options) error {
	p := tea.NewProgram(newInteractiveModel(ctx, loader, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
