package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/snehendu098/ghost/clearclient/pkg/deposit"
	"github.com/snehendu098/ghost/clearclient/pkg/log"
	"github.com/snehendu098/ghost/clearclient/pkg/rpc"
	"github.com/snehendu098/ghost/clearclient/pkg/session"
)

const (
	configDirPathEnv     = "CLEARCLIENT_CONFIG_DIR_PATH"
	defaultConfigDirPath = "."
)

// Config is the client configuration read from the environment, an
// optional .env file and networks.yaml in the config directory.
type Config struct {
	ClearNodeURL string `env:"CLEARCLIENT_CLEARNODE_URL" env-default:"wss://clearnet-sandbox.yellow.com/ws" validate:"required,url"`

	Application string        `env:"CLEARCLIENT_APPLICATION" env-default:"clearclient" validate:"required"`
	Scope       string        `env:"CLEARCLIENT_SCOPE" env-default:"console"`
	SessionTTL  time.Duration `env:"CLEARCLIENT_SESSION_TTL" env-default:"24h" validate:"gte=0"`
	// Allowances are asset:amount pairs, e.g. "usdc:100,eth:0.5".
	Allowances []string `env:"CLEARCLIENT_ALLOWANCES" env-separator:"," validate:"dive,allowance"`

	ChainID          uint64        `env:"CLEARCLIENT_CHAIN_ID"`
	ChainSettleDelay time.Duration `env:"CLEARCLIENT_CHAIN_SETTLE_DELAY" env-default:"1s"`
	CallTimeout      time.Duration `env:"CLEARCLIENT_CALL_TIMEOUT" env-default:"15s" validate:"gte=0"`
	DialAttempts     int           `env:"CLEARCLIENT_DIAL_ATTEMPTS" env-default:"3" validate:"gte=1"`

	SettlementDelay time.Duration `env:"CLEARCLIENT_SETTLEMENT_DELAY" env-default:"5s"`
	SettleOnPush    bool          `env:"CLEARCLIENT_SETTLE_ON_PUSH" env-default:"false"`
	FaucetURL       string        `env:"CLEARCLIENT_FAUCET_URL" env-default:"https://clearnet-sandbox.yellow.com/faucet/requestTokens" validate:"omitempty,url"`

	DatabaseURL string `env:"CLEARCLIENT_DATABASE_URL" env-default:"clearclient.db"`
	MetricsAddr string `env:"CLEARCLIENT_METRICS_ADDR"`
	PrivateKey  string `env:"CLEARCLIENT_PRIVATE_KEY" validate:"omitempty,hexadecimal"`

	Log log.Config

	Networks []NetworkConfig `validate:"dive"`
}

// Load reads the configuration from the directory named by
// CLEARCLIENT_CONFIG_DIR_PATH, defaulting to the working directory.
func Load(lg log.Logger) (*Config, error) {
	dir := os.Getenv(configDirPathEnv)
	if dir == "" {
		dir = defaultConfigDirPath
	}
	return LoadDir(dir, lg)
}

// LoadDir reads <dir>/.env if present, the environment and
// <dir>/networks.yaml, then validates the result.
func LoadDir(dir string, lg log.Logger) (*Config, error) {
	lg = log.OrNoop(lg).WithName("config")

	dotEnvPath := filepath.Join(dir, ".env")
	lg.Debug("loading .env file", "path", dotEnvPath)
	if err := godotenv.Load(dotEnvPath); err != nil {
		lg.Debug(".env file not found")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	// An empty CLEARCLIENT_ALLOWANCES parses as one empty element.
	if len(cfg.Allowances) == 1 && strings.TrimSpace(cfg.Allowances[0]) == "" {
		cfg.Allowances = nil
	}

	networks, err := LoadNetworks(dir)
	if err != nil {
		return nil, err
	}
	cfg.Networks = networks

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lg.Info("configuration loaded", "clearnode", cfg.ClearNodeURL, "networks", len(cfg.Networks), "chainID", cfg.ChainID)
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.ChainID != 0 && len(c.Networks) > 0 {
		if _, ok := c.Network(c.ChainID); !ok {
			return fmt.Errorf("invalid configuration: chain %d is not in %s", c.ChainID, networksFileName)
		}
	}
	return nil
}

// Network returns the enabled network with chainID.
func (c *Config) Network(chainID uint64) (NetworkConfig, bool) {
	for _, n := range c.Networks {
		if n.ChainID == chainID {
			return n, true
		}
	}
	return NetworkConfig{}, false
}

// AuthAllowances parses the configured spending allowances.
func (c *Config) AuthAllowances() ([]rpc.Allowance, error) {
	allowances := make([]rpc.Allowance, 0, len(c.Allowances))
	for _, raw := range c.Allowances {
		a, err := parseAllowance(raw)
		if err != nil {
			return nil, err
		}
		allowances = append(allowances, a)
	}
	return allowances, nil
}

// SessionConfig builds the session configuration. Metrics and extra client
// options are added by the caller.
func (c *Config) SessionConfig() (session.Config, error) {
	allowances, err := c.AuthAllowances()
	if err != nil {
		return session.Config{}, err
	}

	settle := c.ChainSettleDelay
	if settle == 0 {
		settle = -1
	}
	var opts []rpc.ClientOption
	if c.CallTimeout > 0 {
		opts = append(opts, rpc.WithCallTimeout(c.CallTimeout))
	}

	retry := session.DefaultDialRetry
	retry.MaxAttempts = c.DialAttempts

	return session.Config{
		URL: c.ClearNodeURL,
		Auth: session.AuthContext{
			Application: c.Application,
			Scope:       c.Scope,
			TTL:         c.SessionTTL,
			Allowances:  allowances,
		},
		ChainID:          c.ChainID,
		ChainSettleDelay: settle,
		DialRetry:        retry,
		ClientOptions:    opts,
	}, nil
}

func (c *Config) DepositConfig() deposit.Config {
	delay := c.SettlementDelay
	if delay == 0 {
		delay = -1
	}
	return deposit.Config{
		SettlementDelay: delay,
		SettleOnPush:    c.SettleOnPush,
		FaucetURL:       c.FaucetURL,
	}
}

func parseAllowance(raw string) (rpc.Allowance, error) {
	asset, amount, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || strings.TrimSpace(asset) == "" {
		return rpc.Allowance{}, fmt.Errorf("invalid allowance %q, expected asset:amount", raw)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil || value.IsNegative() {
		return rpc.Allowance{}, fmt.Errorf("invalid allowance amount in %q", raw)
	}
	return rpc.Allowance{Asset: strings.ToLower(strings.TrimSpace(asset)), Amount: value.String()}, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("allowance", func(fl validator.FieldLevel) bool {
		_, err := parseAllowance(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("snake_case", func(fl validator.FieldLevel) bool {
		return networkNameRegex.MatchString(fl.Field().String())
	})
	return v
}
