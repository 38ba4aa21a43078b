package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"orbiter/internal/backtest"
)

// browser is a full-screen view of one ticker's trades at a time.
type browser struct {
	resp     *backtest.Response
	idx      int
	width    int
	height   int
	ready    bool
	viewport viewport.Model
}

func newBrowser(resp *backtest.Response) browser {
	return browser{resp: resp}
}

func (m browser) Init() tea.Cmd {
	return nil
}

func (m browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "right", "l", "tab":
			if n := len(m.resp.TradingsResults); n > 0 {
				m.idx = (m.idx + 1) % n
				m.refresh()
			}
			return m, nil
		case "left", "h", "shift+tab":
			if n := len(m.resp.TradingsResults); n > 0 {
				m.idx = (m.idx - 1 + n) % n
				m.refresh()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
			m.refresh()
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *browser) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.content())
	m.viewport.GotoTop()
}

func (m browser) content() string {
	if len(m.resp.TradingsResults) == 0 {
		return dimStyle.Render("no tickers in response")
	}
	return renderTrades(m.resp.TradingsResults[m.idx])
}

func (m browser) View() string {
	if !m.ready {
		return "Loading..."
	}

	ticker := ""
	if n := len(m.resp.TradingsResults); n > 0 {
		ticker = fmt.Sprintf("%s  [%d/%d]", m.resp.TradingsResults[m.idx].Ticker, m.idx+1, n)
	}
	headerBar := titleStyle.Render(padOrTrunc(fmt.Sprintf(" Backtest %s  %s ", m.resp.RunID, ticker), m.width))

	footerLeft := " q quit  left/right ticker  pgup/dn scroll"
	footerRight := fmt.Sprintf("%.0f%% ", m.viewport.ScrollPercent()*100)
	gap := m.width - len(footerLeft) - len(footerRight)
	if gap < 0 {
		gap = 0
	}
	footerBar := lipgloss.NewStyle().
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("8")).
		Render(padOrTrunc(footerLeft+strings.Repeat(" ", gap)+footerRight, m.width))

	return headerBar + "\n" + m.viewport.View() + "\n" + footerBar
}
