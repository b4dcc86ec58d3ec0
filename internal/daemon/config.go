package daemon

import (
	"fmt"
	"strconv"
	"time"
)

// Mode selects one of the four mutually-exclusive operating modes
// (spec.md §1). Selected at startup; hot-switching is refused.
type Mode int

const (
	ModeSolo Mode = iota
	ModePool
	ModeProxy
	ModeClient
)

func (m Mode) String() string {
	switch m {
	case ModeSolo:
		return "solo"
	case ModePool:
		return "pool"
	case ModeProxy:
		return "proxy"
	case ModeClient:
		return "client"
	default:
		return "unknown"
	}
}

// LoadBalancingStrategy is a Proxy-mode upstream selection policy
// (spec.md §4.2.3).
type LoadBalancingStrategy int

const (
	RoundRobin LoadBalancingStrategy = iota
	WeightedRoundRobin
	LeastConnections
	Random
)

// NetworkConfig configures the listening side of the daemon.
type NetworkConfig struct {
	BindAddress        string
	MaxConnections     int
	ConnectionTimeout  time.Duration
	KeepaliveInterval  time.Duration
}

// BitcoinConfig configures the node-client RPC connection (spec.md §6).
type BitcoinConfig struct {
	RPCURL      string
	RPCUser     string
	RPCPassword string
	Network     string // mainnet|testnet|signet|regtest
}

// DatabaseConfig configures the persistence backend (spec.md §6).
type DatabaseConfig struct {
	URL string // sqlite://<path> or postgres://...
}

// LoggingConfig holds the configured log level. Nothing in this
// repository builds a logger from it or reads Level.
type LoggingConfig struct {
	Level string
}

// SoloConfig is Solo mode's mode-specific section (spec.md §4.2.1).
type SoloConfig struct {
	CoinbaseAddress            string
	BlockTemplateRefreshInterval time.Duration
	MaxTemplateAge              time.Duration
	EnableCustomTemplates        bool
}

// PoolConfig is Pool mode's mode-specific section (spec.md §4.2.2).
type PoolConfig struct {
	ShareDifficulty             float64
	VariableDifficulty          bool
	MinDifficulty               float64
	MaxDifficulty               float64
	DifficultyAdjustmentInterval time.Duration
	PayoutThreshold              float64
	FeePercentage                float64
}

// UpstreamPool is one Proxy/Client upstream endpoint (spec.md §4.2.3-4).
type UpstreamPool struct {
	URL      string
	Username string
	Password string
	Priority uint32
	Weight   uint32
}

// Validate enforces spec.md's upstream-pool requirements.
func (p *UpstreamPool) Validate() error {
	if p.URL == "" {
		return NewError(ErrKindConfig, "upstream pool URL cannot be empty")
	}
	if p.Username == "" {
		return NewError(ErrKindConfig, "upstream pool username cannot be empty")
	}
	return nil
}

// ProxyConfig is Proxy mode's mode-specific section (spec.md §4.2.3).
type ProxyConfig struct {
	UpstreamPools           []UpstreamPool
	FailoverEnabled         bool
	LoadBalancing           LoadBalancingStrategy
	ConnectionRetryInterval time.Duration
	MaxRetryAttempts        uint32
}

// ClientConfig is Client mode's mode-specific section (spec.md §4.2.4).
type ClientConfig struct {
	UpstreamPool            UpstreamPool
	EnableJobNegotiation    bool
	CustomTemplateEnabled   bool
	ReconnectInterval       time.Duration
	MaxReconnectAttempts    uint32
}

// Config is the fully assembled daemon configuration: the core only ever
// consumes a value of this type, regardless of which external layer
// (CLI flags, env vars, TOML file) produced it (spec.md §1, §6).
type Config struct {
	Mode     Mode
	Solo     SoloConfig
	Pool     PoolConfig
	Proxy    ProxyConfig
	Client   ClientConfig
	Network  NetworkConfig
	Bitcoin  BitcoinConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// DefaultConfig returns the zero-value-safe defaults used when no file,
// env, or CLI override supplies a value.
func DefaultConfig() Config {
	return Config{
		Mode: ModeSolo,
		Solo: SoloConfig{
			BlockTemplateRefreshInterval: 30 * time.Second,
			MaxTemplateAge:               60 * time.Second,
		},
		Pool: PoolConfig{
			ShareDifficulty:              1.0,
			MinDifficulty:                1.0,
			MaxDifficulty:                1 << 20,
			DifficultyAdjustmentInterval: 90 * time.Second,
			FeePercentage:                1.0,
		},
		Proxy: ProxyConfig{
			LoadBalancing:           RoundRobin,
			ConnectionRetryInterval: 5 * time.Second,
			MaxRetryAttempts:        10,
		},
		Client: ClientConfig{
			ReconnectInterval:    5 * time.Second,
			MaxReconnectAttempts: 10,
		},
		Network: NetworkConfig{
			BindAddress:       ":3333",
			MaxConnections:    1000,
			ConnectionTimeout: 5 * time.Minute,
			KeepaliveInterval: 30 * time.Second,
		},
		Bitcoin: BitcoinConfig{
			Network: "mainnet",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Validate aggregates every configuration violation rather than failing
// on the first one, matching the original source's section-by-section
// validator (original_source/sv2-core/src/config.rs).
func (c *Config) Validate() []error {
	var errs []error

	if c.Network.MaxConnections <= 0 {
		errs = append(errs, NewError(ErrKindConfig, "network.max_connections must be > 0"))
	}
	if c.Bitcoin.RPCURL == "" && (c.Mode == ModeSolo || c.Mode == ModePool) {
		errs = append(errs, NewError(ErrKindConfig, "bitcoin.rpc_url is required for solo/pool mode"))
	}

	switch c.Mode {
	case ModeSolo:
		if c.Solo.CoinbaseAddress == "" {
			errs = append(errs, NewError(ErrKindConfig, "solo mode requires a coinbase address"))
		}
		if c.Solo.BlockTemplateRefreshInterval <= 0 {
			errs = append(errs, NewError(ErrKindConfig, "block_template_refresh_interval must be greater than 0"))
		}
	case ModePool:
		if c.Pool.VariableDifficulty {
			if c.Pool.MinDifficulty <= 0 {
				errs = append(errs, NewError(ErrKindConfig, "min_difficulty must be greater than 0"))
			}
			if c.Pool.MaxDifficulty < c.Pool.MinDifficulty {
				errs = append(errs, NewError(ErrKindConfig, "max_difficulty must be >= min_difficulty"))
			}
			if c.Pool.DifficultyAdjustmentInterval <= 0 {
				errs = append(errs, NewError(ErrKindConfig, "difficulty_adjustment_interval must be greater than 0"))
			}
		}
		if c.Pool.FeePercentage < 0 || c.Pool.FeePercentage > 100 {
			errs = append(errs, NewError(ErrKindConfig, "fee_percentage must be between 0 and 100"))
		}
	case ModeProxy:
		if len(c.Proxy.UpstreamPools) == 0 {
			errs = append(errs, NewError(ErrKindConfig, "Proxy mode requires at least one upstream pool"))
		}
		for i := range c.Proxy.UpstreamPools {
			if err := c.Proxy.UpstreamPools[i].Validate(); err != nil {
				errs = append(errs, fmt.Errorf("upstream pool %d: %w", i, err))
			}
		}
		if c.Proxy.ConnectionRetryInterval <= 0 {
			errs = append(errs, NewError(ErrKindConfig, "connection_retry_interval must be greater than 0"))
		}
		if c.Proxy.MaxRetryAttempts == 0 {
			errs = append(errs, NewError(ErrKindConfig, "max_retry_attempts must be greater than 0"))
		}
		if c.Proxy.LoadBalancing == WeightedRoundRobin {
			var total uint32
			for _, p := range c.Proxy.UpstreamPools {
				total += p.Weight
			}
			if total == 0 {
				errs = append(errs, NewError(ErrKindConfig, "Weighted round robin requires non-zero weights"))
			}
		}
	case ModeClient:
		if err := c.Client.UpstreamPool.Validate(); err != nil {
			errs = append(errs, err)
		}
		if c.Client.ReconnectInterval <= 0 {
			errs = append(errs, NewError(ErrKindConfig, "reconnect_interval must be greater than 0"))
		}
		if c.Client.MaxReconnectAttempts == 0 {
			errs = append(errs, NewError(ErrKindConfig, "max_reconnect_attempts must be greater than 0"))
		}
	}

	return errs
}

// Overrides is a flat key-value map applied on top of an assembled
// Config, mirroring the original source's apply_overrides semantics.
type Overrides map[string]string

// ApplyOverrides mutates c in place per key. An empty Overrides map is
// the identity on Config (spec.md §8 round-trip law).
func (c *Config) ApplyOverrides(o Overrides) error {
	for key, value := range o {
		if err := c.applyOne(key, value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyOne(key, value string) error {
	switch key {
	case "network.bind_address":
		c.Network.BindAddress = value
	case "network.max_connections":
		n, err := strconv.Atoi(value)
		if err != nil {
			return WrapError(ErrKindConfig, fmt.Sprintf("invalid max_connections %q", value), err)
		}
		c.Network.MaxConnections = n
	case "bitcoin.rpc_url":
		c.Bitcoin.RPCURL = value
	case "bitcoin.rpc_user":
		c.Bitcoin.RPCUser = value
	case "bitcoin.rpc_password":
		c.Bitcoin.RPCPassword = value
	case "bitcoin.network":
		c.Bitcoin.Network = value
	case "database.url":
		c.Database.URL = value
	case "logging.level":
		c.Logging.Level = value
	case "mode.solo.coinbase_address":
		c.Solo.CoinbaseAddress = value
	case "mode.pool.share_difficulty":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return WrapError(ErrKindConfig, fmt.Sprintf("invalid share difficulty %q", value), err)
		}
		c.Pool.ShareDifficulty = f
	case "mode.pool.fee_percentage":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return WrapError(ErrKindConfig, fmt.Sprintf("invalid fee percentage %q", value), err)
		}
		c.Pool.FeePercentage = f
	case "mode.client.upstream_url":
		c.Client.UpstreamPool.URL = value
	case "mode.client.upstream_username":
		c.Client.UpstreamPool.Username = value
	case "mode.client.upstream_password":
		c.Client.UpstreamPool.Password = value
	default:
		return NewError(ErrKindConfig, fmt.Sprintf("unknown configuration key: %s", key))
	}
	return nil
}

// FromEnv overlays SV2D_* environment variables on top of base, matching
// the precedence rule CLI > env > file > defaults (spec.md §6). CLI
// parsing and the TOML file loader are external collaborators; this is
// only the env-merge step the core's Config assembly depends on.
func FromEnv(base Config, getenv func(string) (string, bool)) (Config, error) {
	cfg := base
	apply := func(key string, fn func(string) error) error {
		if v, ok := getenv(key); ok && v != "" {
			return fn(v)
		}
		return nil
	}

	if err := apply("SV2D_BIND_ADDRESS", func(v string) error { cfg.Network.BindAddress = v; return nil }); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_MAX_CONNECTIONS", func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return WrapError(ErrKindConfig, "invalid SV2D_MAX_CONNECTIONS", err)
		}
		cfg.Network.MaxConnections = n
		return nil
	}); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_BITCOIN_RPC_URL", func(v string) error { cfg.Bitcoin.RPCURL = v; return nil }); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_BITCOIN_RPC_USER", func(v string) error { cfg.Bitcoin.RPCUser = v; return nil }); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_BITCOIN_RPC_PASSWORD", func(v string) error { cfg.Bitcoin.RPCPassword = v; return nil }); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_BITCOIN_NETWORK", func(v string) error { cfg.Bitcoin.Network = v; return nil }); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_DATABASE_URL", func(v string) error { cfg.Database.URL = v; return nil }); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_LOG_LEVEL", func(v string) error { cfg.Logging.Level = v; return nil }); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_COINBASE_ADDRESS", func(v string) error { cfg.Solo.CoinbaseAddress = v; return nil }); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_SHARE_DIFFICULTY", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return WrapError(ErrKindConfig, "invalid SV2D_SHARE_DIFFICULTY", err)
		}
		cfg.Pool.ShareDifficulty = f
		return nil
	}); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_FEE_PERCENTAGE", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return WrapError(ErrKindConfig, "invalid SV2D_FEE_PERCENTAGE", err)
		}
		cfg.Pool.FeePercentage = f
		return nil
	}); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_UPSTREAM_URL", func(v string) error { cfg.Client.UpstreamPool.URL = v; return nil }); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_UPSTREAM_USERNAME", func(v string) error { cfg.Client.UpstreamPool.Username = v; return nil }); err != nil {
		return cfg, err
	}
	if err := apply("SV2D_UPSTREAM_PASSWORD", func(v string) error { cfg.Client.UpstreamPool.Password = v; return nil }); err != nil {
		return cfg, err
	}

	return cfg, nil
}
