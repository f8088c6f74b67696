package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	mwcommon "github.com/mintline/marketwatch/internal/common"
	"github.com/mintline/marketwatch/internal/logger"
)

// Config represents the complete configuration for marketwatch.
type Config struct {
	// Networks lists the chains to watch. One watcher is started per entry.
	Networks []NetworkConfig `yaml:"networks" json:"networks" toml:"networks"`

	// DB contains the entity store database configuration
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`

	// RPC contains chain call timeout and retry configuration
	RPC RPCConfig `yaml:"rpc" json:"rpc" toml:"rpc"`

	// Watcher contains per-network event pipeline configuration
	Watcher WatcherConfig `yaml:"watcher" json:"watcher" toml:"watcher"`

	// Notifications configures the push notification webhook
	Notifications *NotifyConfig `yaml:"notifications,omitempty" json:"notifications,omitempty" toml:"notifications,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// NetworkConfig identifies one chain: its name, RPC endpoint and the
// marketplace contract emitting the events.
type NetworkConfig struct {
	// Name is the network identifier used in entity keys (e.g. "smartchain", "polygon")
	Name string `yaml:"name" json:"name" toml:"name"`

	// RPCURL is the chain's JSON-RPC endpoint. A WebSocket URL is required
	// for log subscriptions.
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// ContractAddress is the marketplace contract address on this network
	ContractAddress string `yaml:"contract_address" json:"contract_address" toml:"contract_address"`
}

// Contract returns the parsed marketplace contract address.
func (n *NetworkConfig) Contract() common.Address {
	return common.HexToAddress(n.ContractAddress)
}

// Validate checks that the network entry is usable.
func (n *NetworkConfig) Validate() error {
	if n.Name == "" {
		return fmt.Errorf("networks: name is required")
	}
	if n.RPCURL == "" {
		return fmt.Errorf("networks[%s]: rpc_url is required", n.Name)
	}
	if _, err := url.Parse(n.RPCURL); err != nil {
		return fmt.Errorf("networks[%s]: invalid rpc_url: %w", n.Name, err)
	}
	if !common.IsHexAddress(n.ContractAddress) {
		return fmt.Errorf("networks[%s]: invalid contract_address %q", n.Name, n.ContractAddress)
	}
	return nil
}

// RPCConfig represents configuration for read-only chain calls.
type RPCConfig struct {
	// CallTimeout bounds a single eth_call round-trip
	CallTimeout mwcommon.Duration `yaml:"call_timeout" json:"call_timeout" toml:"call_timeout"`

	// Retry contains retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional RPC configuration fields.
func (r *RPCConfig) ApplyDefaults() {
	if r.CallTimeout.Duration == 0 {
		r.CallTimeout = mwcommon.NewDuration(10 * time.Second) //nolint:mnd
	}
	if r.Retry == nil {
		r.Retry = &RetryConfig{}
	}
	r.Retry.ApplyDefaults()
}

// RetryConfig represents retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the backoff duration before the first retry
	InitialBackoff mwcommon.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff mwcommon.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = mwcommon.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = mwcommon.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// WatcherConfig represents the per-network event pipeline configuration.
type WatcherConfig struct {
	// Workers is the number of concurrent event processors per network
	Workers int `yaml:"workers" json:"workers" toml:"workers"`

	// QueueSize bounds the per-network log delivery channel
	QueueSize int `yaml:"queue_size" json:"queue_size" toml:"queue_size"`

	// ResubscribeInitialBackoff is the backoff after a dropped subscription
	ResubscribeInitialBackoff mwcommon.Duration `yaml:"resubscribe_initial_backoff" json:"resubscribe_initial_backoff" toml:"resubscribe_initial_backoff"` //nolint:lll

	// ResubscribeMaxBackoff caps the resubscription backoff
	ResubscribeMaxBackoff mwcommon.Duration `yaml:"resubscribe_max_backoff" json:"resubscribe_max_backoff" toml:"resubscribe_max_backoff"`
}

// ApplyDefaults sets default values for optional watcher configuration fields.
func (w *WatcherConfig) ApplyDefaults() {
	if w.Workers == 0 {
		w.Workers = 8
	}
	if w.QueueSize == 0 {
		w.QueueSize = 256
	}
	if w.ResubscribeInitialBackoff.Duration == 0 {
		w.ResubscribeInitialBackoff = mwcommon.NewDuration(1 * time.Second)
	}
	if w.ResubscribeMaxBackoff.Duration == 0 {
		w.ResubscribeMaxBackoff = mwcommon.NewDuration(1 * time.Minute)
	}
}

// DatabaseConfig represents the entity store database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// Maintenance configures periodic WAL checkpoint and vacuum runs.
	// Nil disables background maintenance.
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty" toml:"maintenance,omitempty"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	if d.Maintenance != nil {
		d.Maintenance.ApplyDefaults()
	}
}

// MaintenanceConfig configures periodic SQLite maintenance.
type MaintenanceConfig struct {
	// Enabled controls whether the background maintenance worker runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often maintenance runs
	CheckInterval mwcommon.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// WALCheckpointMode is the checkpoint mode ("PASSIVE", "FULL", "RESTART", "TRUNCATE")
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`

	// VacuumOnStartup runs one maintenance pass before the worker starts
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = mwcommon.NewDuration(6 * time.Hour) //nolint:mnd
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
}

// Validate checks the maintenance configuration.
func (m *MaintenanceConfig) Validate() error {
	switch strings.ToUpper(strings.TrimSpace(m.WALCheckpointMode)) {
	case "PASSIVE", "FULL", "RESTART", "TRUNCATE":
		return nil
	default:
		return fmt.Errorf("db.maintenance.wal_checkpoint_mode: must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
	}
}

// NotifyConfig configures the push notification webhook collaborator.
type NotifyConfig struct {
	// WebhookURL is the push gateway endpoint notifications are POSTed to.
	// Empty disables notification delivery.
	WebhookURL string `yaml:"webhook_url" json:"webhook_url" toml:"webhook_url"`

	// Timeout bounds a single delivery attempt
	Timeout mwcommon.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`
}

// ApplyDefaults sets default values for optional notification configuration fields.
func (n *NotifyConfig) ApplyDefaults() {
	if n.Timeout.Duration == 0 {
		n.Timeout = mwcommon.NewDuration(5 * time.Second) //nolint:mnd
	}
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// (supervisor, watcher, indexer, rpc, store, notifier, replay, maintenance)
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[lowerTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := mwcommon.AllComponents[lowerTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}
		if _, valid := logger.ValidLogLevels[lowerTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return lowerTrim(level)
	}
	return lowerTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// ApplyDefaults sets defaults across the whole configuration tree.
func (c *Config) ApplyDefaults() {
	c.DB.ApplyDefaults()
	c.RPC.ApplyDefaults()
	c.Watcher.ApplyDefaults()

	if c.Notifications != nil {
		c.Notifications.ApplyDefaults()
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	c.Logging.ApplyDefaults()
	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("at least one network must be configured")
	}

	seen := make(map[string]struct{}, len(c.Networks))
	for i := range c.Networks {
		n := &c.Networks[i]
		if err := n.Validate(); err != nil {
			return err
		}
		if _, dup := seen[n.Name]; dup {
			return fmt.Errorf("networks: duplicate network name %q", n.Name)
		}
		seen[n.Name] = struct{}{}
	}

	if c.DB.Path == "" {
		return fmt.Errorf("db.path is required")
	}

	if c.DB.Maintenance != nil {
		if err := c.DB.Maintenance.Validate(); err != nil {
			return err
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	return nil
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
