package config

import "time"

// Config is the root configuration structure
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	History HistoryConfig `yaml:"history"`
	Venues  []VenueConfig `yaml:"venues"`
	Hub     HubConfig     `yaml:"hub"`
	API     APIConfig     `yaml:"api"`
	Chain   ChainConfig   `yaml:"chain"`
	Cache   CacheConfig   `yaml:"cache"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig configures the aggregation engine
type EngineConfig struct {
	StaleAfter Duration         `yaml:"stale_after"` // max quote age before exclusion
	QueueSize  int              `yaml:"queue_size"`  // tick fan-in buffer
	Confidence ConfidenceConfig `yaml:"confidence"`
}

// ConfidenceConfig holds the tunable constants of the confidence score.
// Only the monotonicity behavior is guaranteed; the constants are heuristics.
type ConfidenceConfig struct {
	SourceTarget   int     `yaml:"source_target"`    // venue count for full source score
	SourceScoreMax float64 `yaml:"source_score_max"` // score share from venue count
	SpreadScoreMax float64 `yaml:"spread_score_max"` // score share from agreement
	SpreadPenalty  float64 `yaml:"spread_penalty"`   // score lost per 1% of spread
}

// HistoryConfig configures the per-asset price history
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

// VenueConfig configures one external price venue
type VenueConfig struct {
	Name         string            `yaml:"name"`
	Kind         string            `yaml:"kind"` // "websocket" or "poll"
	Enabled      bool              `yaml:"enabled"`
	URL          string            `yaml:"url"`
	Weight       float64           `yaml:"weight"`
	PollInterval Duration          `yaml:"poll_interval"` // poll venues only
	Pairs        map[string]string `yaml:"pairs"`         // asset -> venue symbol
}

// HubConfig configures the WebSocket distribution hub
type HubConfig struct {
	Addr         string `yaml:"addr"`
	ClientBuffer int    `yaml:"client_buffer"` // per-subscriber outbound buffer
}

// APIConfig configures the REST API server
type APIConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// ChainConfig configures the on-chain oracle publisher
type ChainConfig struct {
	Enabled         bool              `yaml:"enabled"`
	RPCURL          string            `yaml:"rpc_url"`
	ChainID         int64             `yaml:"chain_id"`
	OracleAddress   string            `yaml:"oracle_address"`
	PrivateKeyEnv   string            `yaml:"private_key_env"` // env var holding the hex key
	PublishInterval Duration          `yaml:"publish_interval"`
	TxTimeout       Duration          `yaml:"tx_timeout"`
	Tokens          map[string]string `yaml:"tokens"` // asset -> token address
}

// CacheConfig configures the Redis latest-price cache
type CacheConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
}

// StorageConfig configures the Postgres history sink
type StorageConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	User        string   `yaml:"user"`
	Password    string   `yaml:"password"`
	DBName      string   `yaml:"dbname"`
	SSLMode     string   `yaml:"sslmode"`
	BatchSize   int      `yaml:"batch_size"`
	FlushPeriod Duration `yaml:"flush_period"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
