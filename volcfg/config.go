// Package volcfg holds the JSON volume configuration a collaborator (the
// out-of-scope high-level volume manager, per spec.md 1) loads and hands
// to rs.New / ioshim.Open.
//
// Grounded nearly verbatim on server/config.go's Config struct and
// parseJSONConfig open-decode-close helper, re-fielded for volume
// parameters instead of KCP tunnel parameters.
package volcfg

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Config describes one erasure-coded volume.
type Config struct {
	DataShards     int    `json:"datashards"`
	ParityShards   int    `json:"parityshards"`
	ShardSize      int    `json:"shardsize"`
	VolumePrefixID uint32 `json:"volumeprefixid"`
	DirectIO       bool   `json:"directio"`
	QueueDepth     int    `json:"queuedepth"`
	StatsLog       string `json:"statslog"`
	StatsPeriod    int    `json:"statsperiod"`
}

// Load reads and decodes a JSON config file at path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := parseJSONConfig(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path) // For read access.
	if err != nil {
		return errors.Wrap(err, "volcfg: opening config file")
	}
	defer file.Close()

	return errors.Wrap(json.NewDecoder(file).Decode(config), "volcfg: decoding config file")
}

// ErrInvalidConfig is returned by Validate when the config's shard/size
// parameters fall outside the RS coder's contract.
var ErrInvalidConfig = errors.New("volcfg: invalid configuration")

// Validate checks the shape of Config against the rs/gf contract (K,M
// positive, K+M<=255, shard size a multiple of 64 per spec.md 3).
func (c *Config) Validate() error {
	if c.DataShards <= 0 || c.ParityShards <= 0 || c.DataShards+c.ParityShards > 255 {
		return errors.Wrapf(ErrInvalidConfig, "datashards=%d parityshards=%d", c.DataShards, c.ParityShards)
	}
	if c.ShardSize <= 0 || c.ShardSize%64 != 0 {
		return errors.Wrapf(ErrInvalidConfig, "shardsize=%d must be a positive multiple of 64", c.ShardSize)
	}
	if c.VolumePrefixID < 1<<24 {
		return errors.Wrapf(ErrInvalidConfig, "volumeprefixid=%d must be >= 2^24", c.VolumePrefixID)
	}
	return nil
}
