package hazard

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds the tunables of every demonstration. Zero fields in a loaded file keep their
// defaults.
type Config struct {
	// Grace bounds how long a process waits for its daemon threads to unwind after shutdown.
	Grace  time.Duration `yaml:"grace"`
	Daemon DaemonConfig  `yaml:"daemon"`
	Pool   PoolConfig    `yaml:"pool"`
}

type DaemonConfig struct {
	// Sleep is how long the daemon task sleeps before its cleanup.
	Sleep time.Duration `yaml:"sleep"`
	// Hold is how long the main path stays alive after starting the daemon. If it is shorter than
	// Sleep, the daemon is killed and its cleanup is skipped.
	Hold time.Duration `yaml:"hold"`
}

type PoolConfig struct {
	PoolOptions `yaml:",inline"`

	Tasks    int           `yaml:"tasks"`
	Interval time.Duration `yaml:"interval"`
	Hold     time.Duration `yaml:"hold"`
}

func DefaultConfig() Config {
	return Config{
		Grace: 100 * time.Millisecond,
		Daemon: DaemonConfig{
			Sleep: time.Second,
			Hold:  2 * time.Second,
		},
		Pool: PoolConfig{
			PoolOptions: PoolOptions{KeepAlive: DefaultKeepAlive},
			Tasks:       10,
			Interval:    100 * time.Millisecond,
			Hold:        500 * time.Millisecond,
		},
	}
}

// ParseConfig decodes YAML over [DefaultConfig]. Unknown keys are an error.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML config file. An empty path returns [DefaultConfig].
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

func (c Config) validate() error {
	switch {
	case c.Grace < 0:
		return fmt.Errorf("invalid config: negative grace %s", c.Grace)
	case c.Daemon.Sleep < 0 || c.Daemon.Hold < 0:
		return fmt.Errorf("invalid config: negative daemon durations")
	case c.Pool.Tasks < 0:
		return fmt.Errorf("invalid config: negative pool task count %d", c.Pool.Tasks)
	case c.Pool.Interval <= 0:
		return fmt.Errorf("invalid config: pool interval must be positive, got %s", c.Pool.Interval)
	case c.Pool.MaxWorkers < 0:
		return fmt.Errorf("invalid config: negative pool maxWorkers %d", c.Pool.MaxWorkers)
	}
	return nil
}
