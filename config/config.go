package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration of the trading service.
type Config struct {
	// Quote is the account currency every pair is quoted in, e.g. USDT.
	Quote        string
	MaxPositions int
	// MinOrder is the exchange's minimum order value in quote currency.
	MinOrder decimal.Decimal
	// MinImportValue is the quote value above which an external holding is
	// imported into the ledger during reconciliation.
	MinImportValue decimal.Decimal
	// TurnoverThreshold is the minimum 24h quote turnover for an
	// instrument to qualify as a volume target.
	TurnoverThreshold decimal.Decimal
	// ProfitTarget and StopLoss are profit-rate percentages.
	ProfitTarget float64
	StopLoss     float64
	BuyCooldown  time.Duration
	// DailyCron schedules the daily full scan, cron format.
	DailyCron string

	DBPath   string
	CacheDir string
	WALDir   string
	WebAddr  string
}

type configTmp struct {
	Quote             string        `yaml:"quote"`
	MaxPositions      int           `yaml:"max_positions"`
	MinOrder          string        `yaml:"min_order"`
	MinImportValue    string        `yaml:"min_import_value"`
	TurnoverThreshold string        `yaml:"turnover_threshold"`
	ProfitTarget      float64       `yaml:"profit_target"`
	StopLoss          float64       `yaml:"stop_loss"`
	BuyCooldown       time.Duration `yaml:"buy_cooldown"`
	DailyCron         string        `yaml:"daily_cron"`
	DBPath            string        `yaml:"db_path"`
	CacheDir          string        `yaml:"cache_dir"`
	WALDir            string        `yaml:"wal_dir"`
	WebAddr           string        `yaml:"web_addr"`
}

func defaults() Config {
	return Config{
		Quote:             "USDT",
		MaxPositions:      5,
		MinOrder:          decimal.NewFromInt(10),
		MinImportValue:    decimal.NewFromInt(10),
		TurnoverThreshold: decimal.NewFromInt(1_000_000),
		ProfitTarget:      3.5,
		StopLoss:          -3.0,
		BuyCooldown:       time.Hour,
		DailyCron:         "0 9 * * *",
		DBPath:            "./coinpilot.db",
		CacheDir:          "./analysis",
		WALDir:            "./wal/status",
		WebAddr:           ":8080",
	}
}

// Get reads the configuration from the yaml file given by --config, or
// returns defaults when the flag is empty.
func Get() (Config, error) {
	path := flag.String("config", "", "path to yaml config")
	flag.Parse()
	if *path == "" {
		return defaults(), nil
	}
	return getYaml(*path)
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	cfg := defaults()
	if tmp.Quote != "" {
		cfg.Quote = tmp.Quote
	}
	if tmp.MaxPositions > 0 {
		cfg.MaxPositions = tmp.MaxPositions
	}
	if tmp.MinOrder != "" {
		cfg.MinOrder, err = decimal.NewFromString(tmp.MinOrder)
		if err != nil {
			return Config{}, fmt.Errorf("invalid min_order %q: %w", tmp.MinOrder, err)
		}
	}
	if tmp.MinImportValue != "" {
		cfg.MinImportValue, err = decimal.NewFromString(tmp.MinImportValue)
		if err != nil {
			return Config{}, fmt.Errorf("invalid min_import_value %q: %w", tmp.MinImportValue, err)
		}
	}
	if tmp.TurnoverThreshold != "" {
		cfg.TurnoverThreshold, err = decimal.NewFromString(tmp.TurnoverThreshold)
		if err != nil {
			return Config{}, fmt.Errorf("invalid turnover_threshold %q: %w", tmp.TurnoverThreshold, err)
		}
	}
	if tmp.ProfitTarget != 0 {
		cfg.ProfitTarget = tmp.ProfitTarget
	}
	if tmp.StopLoss != 0 {
		cfg.StopLoss = tmp.StopLoss
	}
	if tmp.BuyCooldown > 0 {
		cfg.BuyCooldown = tmp.BuyCooldown
	}
	if tmp.DailyCron != "" {
		cfg.DailyCron = tmp.DailyCron
	}
	if tmp.DBPath != "" {
		cfg.DBPath = tmp.DBPath
	}
	if tmp.CacheDir != "" {
		cfg.CacheDir = tmp.CacheDir
	}
	if tmp.WALDir != "" {
		cfg.WALDir = tmp.WALDir
	}
	if tmp.WebAddr != "" {
		cfg.WebAddr = tmp.WebAddr
	}

	if cfg.StopLoss >= 0 {
		return Config{}, fmt.Errorf("stop_loss must be negative, got %v", cfg.StopLoss)
	}
	if cfg.ProfitTarget <= 0 {
		return Config{}, fmt.Errorf("profit_target must be positive, got %v", cfg.ProfitTarget)
	}

	return cfg, nil
}
