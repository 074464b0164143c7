package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

type Config struct {
	Platform          string
	Assets            []domain.AssetConfig
	PollInterval      time.Duration
	ChangeThreshold   decimal.Decimal
	MaxHistory        int
	SchedulerInterval time.Duration
	WalDir            string
}

type ConfigTmp struct {
	Platform           string        `yaml:"platform"`
	Assets             []string      `yaml:"assets"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	ChangeThresholdStr string        `yaml:"change_threshold,omitempty"`
	MaxHistoryStr      string        `yaml:"max_history,omitempty"`
	SchedulerInterval  time.Duration `yaml:"scheduler_interval,omitempty"`
	WalDir             string        `yaml:"wal_dir,omitempty"`
}

func Get() (Config, error) {
	config := flag.String("config", "", "path to yaml config")
	flag.Parse()
	if *config != "" {
		return getYaml(*config)
	}

	platform, assets, pollInterval, schedulerInterval, err := getFromCLI()
	if err != nil {
		return Config{}, err
	}

	// CLI runs use the default thresholds and WAL location.
	return Config{
		Platform:          platform,
		Assets:            assets,
		PollInterval:      pollInterval,
		ChangeThreshold:   decimal.NewFromFloat(0.0001),
		MaxHistory:        1000,
		SchedulerInterval: schedulerInterval,
		WalDir:            "./wal/executions",
	}, nil
}

func getFromCLI() (platform string, assets []domain.AssetConfig,
	pollInterval, schedulerInterval time.Duration, _ error) {
	platformFlag := flag.String("platform", "simulate", "price platform: binance, bybit, hyperliquid or simulate")
	assetsFlag := flag.String("assets", "BTC,ETH", "comma-separated asset codes to monitor, example: BTC,ETH,SOL")
	pi := flag.Duration("pollinterval", 30*time.Second, "price poll interval")
	si := flag.Duration("schedulerinterval", 25*time.Second, "due automation sweep interval")

	flag.Parse()

	assets, err := getAssetsFromString(*assetsFlag)
	if err != nil {
		return "", nil, 0, 0, fmt.Errorf("invalid --assets provided, --assets=%s: %w", *assetsFlag, err)
	}

	return *platformFlag, assets, *pi, *si, nil
}

func getYaml(path string) (Config, error) {
	var configTmp ConfigTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(f, &configTmp); err != nil {
		return Config{}, err
	}

	assets, err := getAssetsFromString(strings.Join(configTmp.Assets, ","))
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'assets' param in yaml config, error: %w", err)
	}

	newConfig := Config{
		Platform:          configTmp.Platform,
		Assets:            assets,
		PollInterval:      configTmp.PollInterval,
		SchedulerInterval: configTmp.SchedulerInterval,
		WalDir:            configTmp.WalDir,
	}

	if newConfig.Platform == "" {
		newConfig.Platform = "simulate"
	}
	if newConfig.PollInterval <= 0 {
		newConfig.PollInterval = 30 * time.Second
	}
	if newConfig.SchedulerInterval <= 0 {
		newConfig.SchedulerInterval = 25 * time.Second
	}
	if newConfig.WalDir == "" {
		newConfig.WalDir = "./wal/executions"
	}

	if configTmp.ChangeThresholdStr == "" {
		newConfig.ChangeThreshold = decimal.NewFromFloat(0.0001)
	} else {
		threshold, err := decimal.NewFromString(configTmp.ChangeThresholdStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'change_threshold' param in yaml config (must be a decimal), error: %w", err)
		}
		if threshold.IsNegative() {
			return Config{}, fmt.Errorf("incorrect 'change_threshold' param in yaml config: must not be negative")
		}
		newConfig.ChangeThreshold = threshold
	}

	if configTmp.MaxHistoryStr == "" {
		newConfig.MaxHistory = 1000
	} else {
		maxHistory, err := strconv.Atoi(configTmp.MaxHistoryStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'max_history' param in yaml config (must be an integer), error: %w", err)
		}
		if maxHistory <= 0 {
			return Config{}, fmt.Errorf("incorrect 'max_history' param in yaml config: must be positive")
		}
		newConfig.MaxHistory = maxHistory
	}

	return newConfig, nil
}

func getAssetsFromString(assetsStr string) ([]domain.AssetConfig, error) {
	var assets []domain.AssetConfig
	for _, code := range strings.Split(assetsStr, ",") {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		assets = append(assets, domain.AssetConfig{
			Code: domain.AssetCode(strings.ToUpper(code)),
			Kind: domain.AssetKindOther,
		})
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("no assets provided")
	}
	return assets, nil
}
