// Package config loads the remit service configuration from YAML and command-line flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/remit/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	PlatformSimulate    = "simulate"
	PlatformBinance     = "binance"
	PlatformBybit       = "bybit"
	PlatformHyperliquid = "hyperliquid"

	defaultAddr          = ":8080"
	defaultDataDir       = "./wal"
	defaultTreasuryOwner = "treasury"
	defaultRetries       = 3
	defaultCacheTTL      = 10 * time.Second
	defaultHyperliquid   = "https://api.hyperliquid.xyz"
)

// Config is the validated service configuration.
type Config struct {
	Addr        string
	TLSDomains  []string
	DataDir     string
	EvidenceDir string
	LogLevel    string

	Rates RatesConfig
	Fees  FeesConfig

	Precision        map[domain.Currency]int32
	TreasuryOwner    string
	PlatformFeeOwner string
	Admins           []string
	Users            []domain.User
}

// RatesConfig selects and tunes the rate feed.
type RatesConfig struct {
	Platform       string
	Static         map[domain.Pair]decimal.Decimal
	FluctuationBps int64
	Retries        int
	CacheTTL       time.Duration
	HyperliquidURL string
}

// FeesConfig default pricing.
type FeesConfig struct {
	FeePercent    decimal.Decimal
	SpreadPercent decimal.Decimal
}

// ConfigTmp mirrors the YAML document. Decimals stay strings until validated.
type ConfigTmp struct {
	Addr             string           `yaml:"addr,omitempty"`
	TLSDomains       []string         `yaml:"tls_domains,omitempty"`
	DataDir          string           `yaml:"data_dir,omitempty"`
	EvidenceDir      string           `yaml:"evidence_dir,omitempty"`
	LogLevel         string           `yaml:"log_level,omitempty"`
	Rates            RatesTmp         `yaml:"rates"`
	Fees             FeesTmp          `yaml:"fees"`
	Precision        map[string]int32 `yaml:"precision,omitempty"`
	TreasuryOwner    string           `yaml:"treasury_owner,omitempty"`
	PlatformFeeOwner string           `yaml:"platform_fee_owner,omitempty"`
	Admins           []string         `yaml:"admins,omitempty"`
	Users            []UserTmp        `yaml:"users,omitempty"`
}

// RatesTmp raw rates section.
type RatesTmp struct {
	Platform       string            `yaml:"platform"`
	Static         map[string]string `yaml:"static,omitempty"`
	FluctuationBps int64             `yaml:"fluctuation_bps,omitempty"`
	Retries        *int              `yaml:"retries,omitempty"`
	CacheTTL       *time.Duration    `yaml:"cache_ttl,omitempty"`
	HyperliquidURL string            `yaml:"hyperliquid_url,omitempty"`
}

// FeesTmp raw fees section.
type FeesTmp struct {
	FeePercent    string `yaml:"fee_percent,omitempty"`
	SpreadPercent string `yaml:"spread_percent,omitempty"`
}

// UserTmp raw user entry.
type UserTmp struct {
	ID          string `yaml:"id"`
	Username    string `yaml:"username,omitempty"`
	DisplayName string `yaml:"display_name,omitempty"`
}

// Get parses args (without the program and subcommand names). YAML from -config is
// loaded first; flags given explicitly override it.
func Get(name string, args []string) (Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", "", "path to yaml config")
	addr := fs.String("addr", defaultAddr, "http listen address")
	dataDir := fs.String("data-dir", defaultDataDir, "directory for WAL files")
	platform := fs.String("platform", PlatformSimulate, "rate feed: simulate, binance, bybit, hyperliquid")
	logLevel := fs.String("log-level", "info", "log level: debug or info")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if *path != "" {
		var err error
		if tmp, err = readYaml(*path); err != nil {
			return Config{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			tmp.Addr = *addr
		case "data-dir":
			tmp.DataDir = *dataDir
		case "platform":
			tmp.Rates.Platform = *platform
		case "log-level":
			tmp.LogLevel = *logLevel
		}
	})

	return Parse(tmp)
}

// Parse validates raw values and applies defaults.
func Parse(c ConfigTmp) (Config, error) {
	cfg := Config{
		Addr:             orDefault(c.Addr, defaultAddr),
		TLSDomains:       c.TLSDomains,
		DataDir:          orDefault(c.DataDir, defaultDataDir),
		LogLevel:         orDefault(c.LogLevel, "info"),
		TreasuryOwner:    orDefault(c.TreasuryOwner, defaultTreasuryOwner),
		PlatformFeeOwner: c.PlatformFeeOwner,
		Admins:           c.Admins,
		Precision:        make(map[domain.Currency]int32, len(c.Precision)),
	}
	cfg.EvidenceDir = orDefault(c.EvidenceDir, cfg.DataDir+"/evidence")

	rates, err := parseRates(c.Rates)
	if err != nil {
		return Config{}, err
	}
	cfg.Rates = rates

	if cfg.Fees.FeePercent, err = parsePercent("fees.fee_percent", c.Fees.FeePercent); err != nil {
		return Config{}, err
	}
	if cfg.Fees.SpreadPercent, err = parsePercent("fees.spread_percent", c.Fees.SpreadPercent); err != nil {
		return Config{}, err
	}

	for code, places := range c.Precision {
		if places < 0 || places > 18 {
			return Config{}, fmt.Errorf("incorrect 'precision.%s' param in yaml config (must be 0..18), got %d", code, places)
		}
		cfg.Precision[domain.NewCurrency(code)] = places
	}

	for i, u := range c.Users {
		if strings.TrimSpace(u.ID) == "" {
			return Config{}, fmt.Errorf("incorrect 'users[%d]' param in yaml config: id is required", i)
		}
		cfg.Users = append(cfg.Users, domain.User{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName})
	}

	switch cfg.LogLevel {
	case "debug", "info":
	default:
		return Config{}, fmt.Errorf("incorrect 'log_level' param in yaml config: %s", cfg.LogLevel)
	}

	return cfg, nil
}

// StaticKeys returns the configured static pairs in "FROM_TO" form, sorted.
func (c Config) StaticKeys() []string {
	keys := make([]string, 0, len(c.Rates.Static))
	for p := range c.Rates.Static {
		keys = append(keys, p.String())
	}
	sort.Strings(keys)
	return keys
}

func parseRates(r RatesTmp) (RatesConfig, error) {
	out := RatesConfig{
		Platform:       orDefault(r.Platform, PlatformSimulate),
		Static:         make(map[domain.Pair]decimal.Decimal, len(r.Static)),
		FluctuationBps: r.FluctuationBps,
		Retries:        defaultRetries,
		CacheTTL:       defaultCacheTTL,
		HyperliquidURL: orDefault(r.HyperliquidURL, defaultHyperliquid),
	}

	switch out.Platform {
	case PlatformSimulate, PlatformBinance, PlatformBybit, PlatformHyperliquid:
	default:
		return RatesConfig{}, fmt.Errorf("incorrect 'rates.platform' param in yaml config: %s", out.Platform)
	}

	for key, value := range r.Static {
		pair, err := domain.ParsePair(key)
		if err != nil {
			return RatesConfig{}, fmt.Errorf("incorrect 'rates.static' key in yaml config: %s, error: %w", key, err)
		}
		rate, err := decimal.NewFromString(value)
		if err != nil || !rate.IsPositive() {
			return RatesConfig{}, fmt.Errorf("incorrect 'rates.static.%s' param in yaml config (must be a positive decimal): %s", key, value)
		}
		out.Static[pair] = rate
	}
	if out.Platform == PlatformSimulate && len(out.Static) == 0 {
		return RatesConfig{}, fmt.Errorf("'rates.static' must define at least one pair for the simulate platform")
	}

	if r.FluctuationBps < 0 || r.FluctuationBps > 10000 {
		return RatesConfig{}, fmt.Errorf("incorrect 'rates.fluctuation_bps' param in yaml config (must be 0..10000), got %d", r.FluctuationBps)
	}
	if r.Retries != nil {
		if *r.Retries < 0 {
			return RatesConfig{}, fmt.Errorf("incorrect 'rates.retries' param in yaml config (must not be negative)")
		}
		out.Retries = *r.Retries
	}
	if r.CacheTTL != nil {
		out.CacheTTL = *r.CacheTTL
	}

	return out, nil
}

func parsePercent(name, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	p, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("incorrect '%s' param in yaml config (must be a decimal), error: %w", name, err)
	}
	if p.IsNegative() || p.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("incorrect '%s' param in yaml config (must be in [0, 100)), got %s", name, value)
	}
	return p, nil
}

func readYaml(path string) (ConfigTmp, error) {
	var tmp ConfigTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return ConfigTmp{}, err
	}
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return ConfigTmp{}, fmt.Errorf("failed to parse yaml config %s: %w", path, err)
	}
	return tmp, nil
}

// Write stores c as YAML at path.
func Write(path string, c ConfigTmp) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
