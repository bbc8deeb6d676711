// Package config loads guachain's TOML settings file.
//
// Field names and defaults are ported from the original implementation's
// settings module: origin, key_file, check_blocks, and the net/dns/mining
// subsections.
package config

import (
	"encoding/hex"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/guachain/guachain/errors"
)

// Net carries the peer-gossip listener configuration. guachain does not
// implement the gossip layer itself (out of scope); these fields,
// YggdrasilOnly included, are loaded but not read by any code in this
// module.
type Net struct {
	Peers         []string `toml:"peers"`
	Listen        string   `toml:"listen"`
	Public        bool     `toml:"public"`
	YggdrasilOnly bool     `toml:"yggdrasil_only"`
}

// Dns carries the DNS front-end's listener configuration. The resolver
// itself is out of scope for this module.
type Dns struct {
	Listen     string   `toml:"listen"`
	Threads    int      `toml:"threads"`
	Forwarders []string `toml:"forwarders"`
	Hosts      []string `toml:"hosts"`
}

// Mining configures the miner's worker pool.
type Mining struct {
	Threads int  `toml:"threads"`
	Lower   bool `toml:"lower"`
}

// Settings is the root configuration document.
type Settings struct {
	Origin      string `toml:"origin"`
	KeyFile     string `toml:"key_file"`
	CheckBlocks uint64 `toml:"check_blocks"`
	Net         Net    `toml:"net"`
	Dns         Dns    `toml:"dns"`
	Mining      Mining `toml:"mining"`
}

// Defaults returns the settings document's zero-value defaults, matching
// the original's per-field #[serde(default = ...)] functions.
func Defaults() Settings {
	return Settings{
		KeyFile:     "default.key",
		CheckBlocks: 8,
		Net: Net{
			Listen:        "[::]:46866",
			Public:        true,
			YggdrasilOnly: false,
		},
		Dns: Dns{
			Listen:     "0.0.0.0:53",
			Threads:    20,
			Forwarders: []string{"94.140.14.14:53", "94.140.15.15:53"},
		},
		Mining: Mining{},
	}
}

// Load reads and parses filename, falling back to Defaults for any field
// absent from the file's top level.
func Load(filename string) (Settings, error) {
	settings := Defaults()

	data, err := os.ReadFile(filename)
	if err != nil {
		return Settings{}, errors.New(errors.ErrNotFound, "cannot read config file %s", filename, err)
	}

	if err := toml.Unmarshal(data, &settings); err != nil {
		return Settings{}, errors.New(errors.ErrInvalidArgument, "cannot parse config file %s", filename, err)
	}

	return settings, nil
}

// OriginBytes decodes the hex-encoded origin hash, returning nil (not an
// error) when unset — an empty origin means the node may mine genesis.
func (s Settings) OriginBytes() ([]byte, error) {
	if s.Origin == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s.Origin)
	if err != nil {
		return nil, errors.New(errors.ErrInvalidArgument, "invalid origin hex in settings", err)
	}
	return b, nil
}
