package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/heirloom/internal/ledger"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Ledger    LedgerConfig      `yaml:"ledger"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Ledger.Validate(); err != nil {
		return err
	}
	return c.Scheduler.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// LedgerConfig holds the relayer settings for the inheritance contract.
// Every field is optional; leaving rpc_url, contract_address or both signer
// key fields empty disables the gateway and the claim scheduler.
type LedgerConfig struct {
	RPCURL          string        `yaml:"rpc_url"`
	ContractAddress string        `yaml:"contract_address"`
	SignerKey       string        `yaml:"signer_key"`
	SignerKeyFile   string        `yaml:"signer_key_file"`
	ChainID         int64         `yaml:"chain_id"`
	TxTimeout       time.Duration `yaml:"tx_timeout"`
}

// Validate checks that the fields that are present are well-formed.
func (c *LedgerConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.RPCURL, validation.By(rpcURL)),
		validation.Field(&c.ContractAddress, validation.By(hexAddress)),
		validation.Field(&c.ChainID, validation.Min(int64(0))),
		validation.Field(&c.TxTimeout, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if c.SignerKey != "" && c.SignerKeyFile != "" {
		return errors.New("ledger: set either signer_key or signer_key_file, not both")
	}
	return nil
}

// ToLedger maps the section onto the gateway configuration.
func (c *LedgerConfig) ToLedger() ledger.Config {
	return ledger.Config{
		RPCURL:          c.RPCURL,
		ContractAddress: c.ContractAddress,
		SignerKey:       c.SignerKey,
		SignerKeyFile:   c.SignerKeyFile,
		ChainID:         c.ChainID,
		TxTimeout:       c.TxTimeout,
	}
}

func rpcURL(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func hexAddress(v any) error {
	s, _ := v.(string)
	if s != "" && !common.IsHexAddress(s) {
		return errors.New("must be a 0x-prefixed 20-byte hex address")
	}
	return nil
}

// MinSweepInterval is the floor applied to scheduler.interval.
const MinSweepInterval = 15 * time.Second

// SchedulerConfig holds claim sweep settings.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Validate validates the scheduler configuration.
func (c *SchedulerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Min(time.Duration(0))),
	)
}

// SweepInterval returns the configured period raised to MinSweepInterval.
func (c *SchedulerConfig) SweepInterval() time.Duration {
	if c.Interval < MinSweepInterval {
		return MinSweepInterval
	}
	return c.Interval
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./heirloom.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Ledger: LedgerConfig{
			TxTimeout: 2 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Interval: time.Minute,
		},
	}
}
