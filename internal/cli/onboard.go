package cli

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joebot/peerchat/internal/config"
)

// --- onboard selection model ---

type onboardChoice int

const (
	choiceUpgrade onboardChoice = iota
	choiceOverwrite
	choiceSkip
)

type onboardModel struct {
	path    string
	choices []string
	cursor  int
	chosen  bool
	choice  onboardChoice
}

func newOnboardModel(path string) onboardModel {
	return onboardModel{
		path: path,
		choices: []string{
			"Upgrade: add new fields, keep existing values",
			"Overwrite: replace with fresh defaults",
			"Skip: do not modify config",
		},
	}
}

func (m onboardModel) Init() tea.Cmd { return nil }

func (m onboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.choice = choiceSkip
			m.chosen = true
			return m, tea.Quit
		case tea.KeyUp, tea.KeyShiftTab:
			if m.cursor > 0 {
				m.cursor--
			}
		case tea.KeyDown, tea.KeyTab:
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}
		case tea.KeyEnter:
			m.choice = onboardChoice(m.cursor)
			m.chosen = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m onboardModel) View() string {
	if m.chosen {
		return ""
	}

	s := "\n"
	s += fmt.Sprintf("  Config already exists at %s\n\n", DimStyle.Render(m.path))

	for i, choice := range m.choices {
		cursor := "  "
		if i == m.cursor {
			cursor = PeerLabel.Render("❯ ")
		}
		s += "  " + cursor + choice + "\n"
	}

	s += "\n" + DimStyle.Render("  ↑/↓ navigate · enter select · esc cancel") + "\n"
	return s
}

// applyOnboard carries out choice against the config file at path.
func applyOnboard(choice onboardChoice, path string) (*config.Config, string, error) {
	switch choice {
	case choiceUpgrade:
		cfg, err := config.UpgradeAt(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, "Upgraded config", nil
	case choiceOverwrite:
		cfg := config.DefaultConfig()
		if err := config.SaveTo(cfg, path); err != nil {
			return nil, "", err
		}
		return cfg, "Overwritten config", nil
	default:
		cfg, err := config.LoadFrom(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}
}

// RunOnboard runs the onboard wizard. It writes a fresh config, or asks
// whether to upgrade or replace an existing one.
func RunOnboard() error {
	cfgPath := config.ConfigPath()
	var cfg *config.Config

	fmt.Println()
	fmt.Println(TitleStyle.Render(fmt.Sprintf("  %s peerchat Onboard", Logo)))

	if _, err := os.Stat(cfgPath); err == nil {
		final, err := tea.NewProgram(newOnboardModel(cfgPath)).Run()
		if err != nil {
			return err
		}
		fmt.Println()
		c, done, err := applyOnboard(final.(onboardModel).choice, cfgPath)
		if err != nil {
			fmt.Println("  " + ErrStyle.Render("Error: "+err.Error()))
			return err
		}
		cfg = c
		if done != "" {
			fmt.Println("  " + OkStyle.Render("✓") + " " + done)
		} else {
			fmt.Println("  " + DimStyle.Render("Config unchanged"))
		}
	} else {
		cfg = config.DefaultConfig()
		if err := config.SaveTo(cfg, cfgPath); err != nil {
			fmt.Println("  " + ErrStyle.Render("Error: "+err.Error()))
			return err
		}
		fmt.Println()
		fmt.Println("  " + OkStyle.Render("✓") + " Created config at " + DimStyle.Render(cfgPath))
	}

	fmt.Println()
	fmt.Println(OkStyle.Render("  peerchat is ready!"))
	fmt.Println()
	fmt.Println(DimStyle.Render("  Next steps:"))
	fmt.Println(DimStyle.Render("  1. Start a broker: peerchat relay --addr " + cfg.Relay.Addr))
	fmt.Println(DimStyle.Render("  2. Chat: peerchat chat --broker " + cfg.Broker.URL))
	fmt.Println()
	return nil
}
