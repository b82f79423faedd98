// Package cmn: configuration loaded once at process startup (§6: "consumed
// once at startup; runtime reconfiguration is not supported"). Grounded on
// the teacher's cmn/config.go globalConfigOwner (a mutex-guarded
// atomic.Pointer swap) and its Config/ClusterConfig/LocalConfig split; we
// keep a single flat Config here since this module has no cluster-vs-local
// override distinction to preserve.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/atomic"
	"gopkg.in/yaml.v3"
)

// Config mirrors the §6 "Environment / options" surface plus the §4.1/§4.6
// tunables the spec calls out as implementation-defined constants.
type Config struct {
	ClusterName string `yaml:"cluster_name"`

	// UUID representation/partitioning (§3 Endpoint normalization).
	UUIDRepr      string `yaml:"uuid_repr"`
	UUIDPartition bool   `yaml:"uuid_partition"`

	DatabasePoolSize int `yaml:"database_pool_size"`
	BinaryPort       int `yaml:"binary_port"`
	HTTPPort         int `yaml:"http_port"`

	// §4.6 autocommit, explicitly configurable per the spec's Open Question.
	AutocommitDelay    time.Duration `yaml:"autocommit_delay"`
	AutocommitMaxDelay time.Duration `yaml:"autocommit_max_delay"`

	// §5 Backpressure: max waiters queued on a busy writable queue before
	// checkout fails fast with DatabaseNotAvailable.
	MaxQueueWaiters int `yaml:"max_queue_waiters"`

	// §4.1 retry policy.
	MaxDatabaseRetries int `yaml:"max_database_retries"`

	// Request deadline honored by every suspension point (§5).
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Pretty-print indent setting (§4.5). The HTTP dispatcher does not read
	// it: a "?pretty" with no explicit level always gets PrettyLevel's fixed
	// default of 4.
	DefaultPrettyIndent int `yaml:"default_pretty_indent"`
}

func defaultConfig() *Config {
	return &Config{
		ClusterName:         "xapiand",
		UUIDRepr:            UUIDSimple,
		UUIDPartition:       false,
		DatabasePoolSize:    64,
		BinaryPort:          9999,
		HTTPPort:            8880,
		AutocommitDelay:     DefaultAutocommitDelay,
		AutocommitMaxDelay:  DefaultAutocommitMaxDelay,
		MaxQueueWaiters:     128,
		MaxDatabaseRetries:  MaxDatabaseRetries,
		RequestTimeout:      30 * time.Second,
		DefaultPrettyIndent: 4,
	}
}

// globalConfigOwner holds the single process-wide Config behind an atomic
// pointer (§5 "Global mutable state ... Model as one Context struct" —
// Config is the context's configuration slice of that struct).
type globalConfigOwner struct {
	c atomic.Pointer[Config]
}

// GCO is the package-level singleton, named after the teacher's own
// `cmn.GCO` ("global config owner") referenced throughout ais/*.go.
var GCO = &globalConfigOwner{}

func init() {
	GCO.c.Store(defaultConfig())
}

func (o *globalConfigOwner) Get() *Config { return o.c.Load() }

// Put atomically replaces the current configuration. Called exactly once
// at startup (cmd/xapiand); there is no runtime reconfiguration path (§6).
func (o *globalConfigOwner) Put(c *Config) { o.c.Store(c) }

// LoadYAML reads a YAML config file over the defaults and returns it; the
// caller installs it with Put. Errors are wrapped with the file path for
// operator-facing clarity.
func LoadYAML(path string) (*Config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return c, nil
}
