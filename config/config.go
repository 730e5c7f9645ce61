// Package config holds the memlogd configuration file.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"memlog/infra/memlog"
	"memlog/logger"
)

const (
	DefaultPollInterval       = 100 * time.Millisecond
	DefaultBindAddress        = ":9464"
	DefaultBroadcastInterval  = 250 * time.Millisecond
	DefaultBroadcastBatchSize = 500
	DefaultMaxRetries         = 5
	DefaultRetryBackoff       = time.Second

	MaxPartitions = memlog.MaxPartitions

	ClientSarama  = "sarama"
	ClientKafkaGo = "kafka-go"
)

// Config is the top level memlogd configuration.
type Config struct {
	Logging      logger.Config `toml:"logging"`
	Metrics      Metrics       `toml:"metrics"`
	PollInterval Duration      `toml:"poll-interval"`
	Logs         []Log         `toml:"log"`
	Broadcasters []Broadcaster `toml:"broadcaster"`
}

type Metrics struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind-address"`
}

// Log is a log created at startup.
type Log struct {
	Name       string `toml:"name"`
	Partitions int    `toml:"partitions"`
}

// Broadcaster forwards one log to a Kafka topic.
type Broadcaster struct {
	Log        string   `toml:"log"`
	Group      string   `toml:"group"`
	Topic      string   `toml:"topic"`
	Brokers    []string `toml:"brokers"`
	Client     string   `toml:"client"`
	OutboxDir  string   `toml:"outbox-dir"`
	Interval   Duration `toml:"interval"`
	BatchSize  int      `toml:"batch-size"`
	MaxRetries int      `toml:"max-retries"`

	RetryBackoff Duration `toml:"retry-backoff"`
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() *Config {
	return &Config{
		Logging: logger.NewConfig(),
		Metrics: Metrics{
			Enabled:     true,
			BindAddress: DefaultBindAddress,
		},
		PollInterval: Duration(DefaultPollInterval),
	}
}

// NewBroadcaster returns a broadcaster section with defaults.
func NewBroadcaster() Broadcaster {
	return Broadcaster{
		Client:     ClientSarama,
		Interval:   Duration(DefaultBroadcastInterval),
		BatchSize:  DefaultBroadcastBatchSize,
		MaxRetries: DefaultMaxRetries,

		RetryBackoff: Duration(DefaultRetryBackoff),
	}
}

// Validate returns an error if the config is invalid.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("poll-interval must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.BindAddress == "" {
		return errors.New("metrics bind-address must be specified")
	}

	logs := make(map[string]bool, len(c.Logs))
	for i, l := range c.Logs {
		if l.Name == "" {
			return errors.Errorf("log #%d: name must be specified", i)
		}
		if logs[l.Name] {
			return errors.Errorf("log %s: declared twice", l.Name)
		}
		if l.Partitions <= 0 || l.Partitions > MaxPartitions {
			return errors.Errorf("log %s: partitions %d not in [1, %d]", l.Name, l.Partitions, MaxPartitions)
		}
		logs[l.Name] = true
	}

	for i, b := range c.Broadcasters {
		if err := b.Validate(); err != nil {
			return errors.Wrapf(err, "broadcaster #%d", i)
		}
		if !logs[b.Log] {
			return errors.Errorf("broadcaster #%d: log %s is not declared", i, b.Log)
		}
	}
	return nil
}

func (b Broadcaster) Validate() error {
	switch {
	case b.Log == "":
		return errors.New("log must be specified")
	case b.Topic == "":
		return errors.New("topic must be specified")
	case len(b.Brokers) == 0:
		return errors.New("at least one broker must be specified")
	case b.OutboxDir == "":
		return errors.New("outbox-dir must be specified")
	case b.Client != ClientSarama && b.Client != ClientKafkaGo:
		return errors.Errorf("unknown client %q, want %s or %s", b.Client, ClientSarama, ClientKafkaGo)
	case b.Interval <= 0:
		return errors.New("interval must be positive")
	case b.BatchSize <= 0:
		return errors.New("batch-size must be positive")
	case b.MaxRetries <= 0:
		return errors.New("max-retries must be positive")
	case b.RetryBackoff <= 0:
		return errors.New("retry-backoff must be positive")
	}
	return nil
}

// ParseConfigFile parses a configuration file at a given path.
func ParseConfigFile(path string) (*Config, error) {
	c := NewConfig()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	c.applyBroadcasterDefaults()
	return c, nil
}

// ParseConfig parses a configuration string into a config object.
func ParseConfig(s string) (*Config, error) {
	c := NewConfig()
	if _, err := toml.Decode(s, c); err != nil {
		return nil, err
	}
	c.applyBroadcasterDefaults()
	return c, nil
}

// applyBroadcasterDefaults fills the keys a [[broadcaster]] table left out.
func (c *Config) applyBroadcasterDefaults() {
	def := NewBroadcaster()
	for i := range c.Broadcasters {
		b := &c.Broadcasters[i]
		if b.Client == "" {
			b.Client = def.Client
		}
		if b.Interval == 0 {
			b.Interval = def.Interval
		}
		if b.BatchSize == 0 {
			b.BatchSize = def.BatchSize
		}
		if b.MaxRetries == 0 {
			b.MaxRetries = def.MaxRetries
		}
		if b.RetryBackoff == 0 {
			b.RetryBackoff = def.RetryBackoff
		}
		b.Client = strings.ToLower(b.Client)
	}
}

// Duration is a TOML wrapper type for time.Duration.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText parses a TOML value into a duration value.
func (d *Duration) UnmarshalText(text []byte) error {
	// Ignore if there is no value set.
	if len(text) == 0 {
		return nil
	}

	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalText converts a duration to a string for decoding toml
func (d Duration) MarshalText() (text []byte, err error) {
	return []byte(d.String()), nil
}
