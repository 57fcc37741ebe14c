// Package setup implements the interactive configuration wizard behind `remit setup`.
package setup

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/config"
	"github.com/vadiminshakov/remit/internal/domain"
)

// DefaultPath is where the wizard writes the generated config.
const DefaultPath = "remit.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// answers raw wizard input.
type answers struct {
	platform      string
	staticRates   string
	fluctuation   string
	feePercent    string
	spreadPercent string
	treasury      string
	feeOwner      string
	admins        string
	addr          string
	dataDir       string
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	if path == "" {
		path = DefaultPath
	}

	a := answers{
		platform:      config.PlatformSimulate,
		staticRates:   "USD_EUR=0.92, EUR_USD=1.08, USDT_USD=1",
		fluctuation:   "0",
		feePercent:    "1.5",
		spreadPercent: "0.5",
		treasury:      "treasury",
		feeOwner:      "platform",
		addr:          ":8080",
		dataDir:       "./wal",
	}
	var confirm bool

	// step 1: welcome
	step("STEP 1: RATE FEED", true)
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should exchange rates come from?").
				Options(
					huh.NewOption("Static table (simulation)", config.PlatformSimulate),
					huh.NewOption("Binance", config.PlatformBinance),
					huh.NewOption("Bybit", config.PlatformBybit),
					huh.NewOption("Hyperliquid", config.PlatformHyperliquid),
				).
				Value(&a.platform),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 2: RATES", false)
	staticTitle := "Static rates"
	if a.platform != config.PlatformSimulate {
		staticTitle = "Static rates (optional, unused by the live feed)"
	}
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(staticTitle).
				Description("Comma separated FROM_TO=rate entries").
				Value(&a.staticRates).
				Validate(func(s string) error {
					if a.platform != config.PlatformSimulate && strings.TrimSpace(s) == "" {
						return nil
					}
					_, err := parseStatic(s)
					return err
				}),
			huh.NewInput().
				Title("Fluctuation (basis points)").
				Description("Random jitter applied to static rates, 0 disables it").
				Value(&a.fluctuation).
				Validate(validateBps),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 3: PRICING", false)
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Default fee percent").
				Value(&a.feePercent).
				Validate(validatePercent),
			huh.NewInput().
				Title("Default FX spread percent").
				Value(&a.spreadPercent).
				Validate(validatePercent),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 4: ACCOUNTS", false)
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Treasury wallet owner").
				Value(&a.treasury).
				Validate(required),
			huh.NewInput().
				Title("Platform fee wallet owner").
				Description("Leave empty to keep fees unallocated").
				Value(&a.feeOwner),
			huh.NewInput().
				Title("Admin ids").
				Description("Comma separated; admins co-sign settlements and resolve disputes").
				Value(&a.admins),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 5: SERVER", false)
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Value(&a.addr).
				Validate(required),
			huh.NewInput().
				Title("Data directory").
				Value(&a.dataDir).
				Validate(required),
		),
	).Run()
	if err != nil {
		return err
	}

	cfgTmp, err := build(a)
	if err != nil {
		return err
	}

	// show summary
	summary := fmt.Sprintf(
		"Platform: %s\nStatic pairs: %d\nFee: %s%%  Spread: %s%%\nTreasury: %s\nAdmins: %s\nAddr: %s\n",
		cfgTmp.Rates.Platform, len(cfgTmp.Rates.Static), cfgTmp.Fees.FeePercent, cfgTmp.Fees.SpreadPercent,
		cfgTmp.TreasuryOwner, strings.Join(cfgTmp.Admins, ", "), cfgTmp.Addr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if err := config.Write(path, cfgTmp); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nRun: remit serve -config %s", path, path)))
	time.Sleep(500 * time.Millisecond)
	return nil
}

func step(title string, header bool) {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("REMIT CONFIG WIZARD"))
	if header {
		fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Rates, fees and settlement accounts in a few steps.\n"))
	}
	fmt.Println(stepStyle.Render(title))
}

// build turns wizard answers into a config document and checks it parses.
func build(a answers) (config.ConfigTmp, error) {
	cfgTmp := config.ConfigTmp{
		Addr:    strings.TrimSpace(a.addr),
		DataDir: strings.TrimSpace(a.dataDir),
		Rates: config.RatesTmp{
			Platform: a.platform,
		},
		Fees: config.FeesTmp{
			FeePercent:    strings.TrimSpace(a.feePercent),
			SpreadPercent: strings.TrimSpace(a.spreadPercent),
		},
		TreasuryOwner:    strings.TrimSpace(a.treasury),
		PlatformFeeOwner: strings.TrimSpace(a.feeOwner),
		Admins:           splitList(a.admins),
	}

	if strings.TrimSpace(a.staticRates) != "" {
		static, err := parseStatic(a.staticRates)
		if err != nil {
			return config.ConfigTmp{}, err
		}
		cfgTmp.Rates.Static = static
	}
	if strings.TrimSpace(a.fluctuation) != "" {
		bps, err := decimal.NewFromString(strings.TrimSpace(a.fluctuation))
		if err != nil {
			return config.ConfigTmp{}, fmt.Errorf("fluctuation must be a whole number of basis points")
		}
		cfgTmp.Rates.FluctuationBps = bps.IntPart()
	}

	if _, err := config.Parse(cfgTmp); err != nil {
		return config.ConfigTmp{}, err
	}
	return cfgTmp, nil
}

// parseStatic reads "USD_EUR=0.92, EUR_USD=1.08".
func parseStatic(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, entry := range splitList(s) {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q must look like FROM_TO=rate", entry)
		}
		pair, err := domain.ParsePair(strings.TrimSpace(key))
		if err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !rate.IsPositive() {
			return nil, fmt.Errorf("rate for %s must be a positive number", pair)
		}
		out[pair.String()] = rate.String()
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one pair is required")
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validatePercent(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("must be between 0 and 100")
	}
	return nil
}

func validateBps(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsInteger() {
		return fmt.Errorf("must be a whole number")
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(10000)) {
		return fmt.Errorf("must be between 0 and 10000")
	}
	return nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("required")
	}
	return nil
}
