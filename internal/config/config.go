package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"spot-matching/internal/account"
	"spot-matching/internal/matching"
	"spot-matching/internal/pairspec"
)

// Config is the process configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Fees     FeesConfig     `mapstructure:"fees"`
	Pairs    []PairConfig   `mapstructure:"pairs"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type EngineConfig struct {
	Algorithm               string        `mapstructure:"algorithm"`
	ProRataMinFill          string        `mapstructure:"pro_rata_min_fill"`
	QueueSize               int           `mapstructure:"queue_size"`
	IdempotencyTTL          time.Duration `mapstructure:"idempotency_ttl"`
	RejectMarketOnEmptyBook bool          `mapstructure:"reject_market_on_empty_book"`
	SnapshotEvery           int64         `mapstructure:"snapshot_every"` // commands between snapshots, 0 disables
	RetainTerminalOrders    int           `mapstructure:"retain_terminal_orders"`
}

type FeesConfig struct {
	MakerRate string                 `mapstructure:"maker_rate"`
	TakerRate string                 `mapstructure:"taker_rate"`
	AccountID string                 `mapstructure:"account_id"`
	Overrides map[string]FeeOverride `mapstructure:"overrides"`
}

type FeeOverride struct {
	MakerRate string `mapstructure:"maker_rate"`
	TakerRate string `mapstructure:"taker_rate"`
}

type PairConfig struct {
	Symbol        string `mapstructure:"symbol"`
	PriceScale    int32  `mapstructure:"price_scale"`
	QuantityScale int32  `mapstructure:"quantity_scale"`
	QuoteScale    int32  `mapstructure:"quote_scale"`
	MinQuantity   string `mapstructure:"min_quantity"`
}

type JournalConfig struct {
	Driver string `mapstructure:"driver"` // "file", "pebble" or "none"
	Dir    string `mapstructure:"dir"`
}

type SnapshotConfig struct {
	Dir  string `mapstructure:"dir"`
	Keep int    `mapstructure:"keep"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("engine.algorithm", string(matching.AlgorithmFIFO))
	v.SetDefault("engine.pro_rata_min_fill", "0")
	v.SetDefault("engine.queue_size", 1024)
	v.SetDefault("engine.idempotency_ttl", 24*time.Hour)
	v.SetDefault("engine.reject_market_on_empty_book", true)
	v.SetDefault("engine.snapshot_every", 1000)
	v.SetDefault("engine.retain_terminal_orders", 10000)
	v.SetDefault("fees.maker_rate", matching.DefaultFeeRate.String())
	v.SetDefault("fees.taker_rate", matching.DefaultFeeRate.String())
	v.SetDefault("fees.account_id", account.DefaultFeeAccount)
	v.SetDefault("journal.driver", "file")
	v.SetDefault("journal.dir", "data/journal")
	v.SetDefault("snapshot.dir", "data/snapshots")
	v.SetDefault("snapshot.keep", 3)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "matching.events")

	pairs := make([]map[string]any, 0)
	for _, p := range pairspec.DefaultPairs() {
		pairs = append(pairs, map[string]any{
			"symbol":         p.Symbol,
			"price_scale":    p.PriceScale,
			"quantity_scale": p.QuantityScale,
			"quote_scale":    p.QuoteScale,
			"min_quantity":   p.MinQuantity.String(),
		})
	}
	v.SetDefault("pairs", pairs)
}

// Load reads configuration from the optional YAML file at path and from MATCHING_* environment
// variables (MATCHING_ENGINE_ALGORITHM overrides engine.algorithm), then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MATCHING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("matching")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and everything derived from it.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Engine.QueueSize <= 0 {
		return fmt.Errorf("engine.queue_size must be positive")
	}
	if c.Engine.RetainTerminalOrders <= 0 {
		return fmt.Errorf("engine.retain_terminal_orders must be positive")
	}
	if c.Engine.SnapshotEvery < 0 {
		return fmt.Errorf("engine.snapshot_every must be >= 0")
	}
	if _, err := c.Algorithm(); err != nil {
		return err
	}
	if _, err := c.FeeSchedule(); err != nil {
		return err
	}
	if _, err := c.PairRegistry(); err != nil {
		return err
	}
	switch c.Journal.Driver {
	case "file", "pebble":
		if c.Journal.Dir == "" {
			return fmt.Errorf("journal.dir is required for driver %q", c.Journal.Driver)
		}
	case "none":
	default:
		return fmt.Errorf("journal.driver must be file, pebble or none, got %q", c.Journal.Driver)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	return nil
}

// Algorithm builds the configured matching algorithm.
func (c *Config) Algorithm() (matching.Algorithm, error) {
	kind, err := matching.ParseAlgorithmKind(c.Engine.Algorithm)
	if err != nil {
		return nil, err
	}
	minFill, err := parseDecimal("engine.pro_rata_min_fill", c.Engine.ProRataMinFill)
	if err != nil {
		return nil, err
	}
	return matching.NewAlgorithm(kind, matching.AlgorithmOptions{MinFill: minFill})
}

// FeeSchedule builds the configured fee schedule.
func (c *Config) FeeSchedule() (matching.FeeSchedule, error) {
	def, err := parseRates("fees", c.Fees.MakerRate, c.Fees.TakerRate)
	if err != nil {
		return matching.FeeSchedule{}, err
	}
	schedule := matching.FeeSchedule{Default: def, Overrides: map[string]matching.FeeRates{}}
	for key, o := range c.Fees.Overrides {
		// viper lower-cases map keys
		base, quote, err := pairspec.ParseSymbol(key)
		if err != nil {
			return matching.FeeSchedule{}, fmt.Errorf("fees.overrides: %w", err)
		}
		maker, taker := o.MakerRate, o.TakerRate
		if maker == "" {
			maker = c.Fees.MakerRate
		}
		if taker == "" {
			taker = c.Fees.TakerRate
		}
		rates, err := parseRates("fees.overrides."+key, maker, taker)
		if err != nil {
			return matching.FeeSchedule{}, err
		}
		schedule.Overrides[base+"/"+quote] = rates
	}
	return schedule, schedule.Validate()
}

// PairRegistry builds the registry of configured pairs.
func (c *Config) PairRegistry() (*pairspec.Registry, error) {
	if len(c.Pairs) == 0 {
		return nil, fmt.Errorf("at least one pair must be configured")
	}
	pairs := make([]pairspec.Pair, 0, len(c.Pairs))
	for _, pc := range c.Pairs {
		p, err := pairspec.NewPair(pc.Symbol, pc.PriceScale, pc.QuantityScale, pc.QuoteScale)
		if err != nil {
			return nil, err
		}
		if pc.MinQuantity != "" {
			p.MinQuantity, err = parseDecimal("pairs."+pc.Symbol+".min_quantity", pc.MinQuantity)
			if err != nil {
				return nil, err
			}
		}
		pairs = append(pairs, p)
	}
	return pairspec.NewRegistry(pairs...)
}

func parseRates(key, maker, taker string) (matching.FeeRates, error) {
	m, err := parseDecimal(key+".maker_rate", maker)
	if err != nil {
		return matching.FeeRates{}, err
	}
	t, err := parseDecimal(key+".taker_rate", taker)
	if err != nil {
		return matching.FeeRates{}, err
	}
	return matching.FeeRates{Maker: m, Taker: t}, nil
}

func parseDecimal(key, value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
