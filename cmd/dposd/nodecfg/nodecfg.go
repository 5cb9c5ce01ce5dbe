// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package nodecfg loads the dposd process's own settings — where its data
// directory and genesis file live, how it logs — as distinct from the
// chain-level genesis.Config, which is consensus data rather than local
// operator preference.
package nodecfg

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk node configuration, by convention dposd.yaml next
// to the data directory.
type Config struct {
	DataDir     string `yaml:"data_dir"`
	InMemory    bool   `yaml:"in_memory"`
	GenesisPath string `yaml:"genesis_path"`
	LogDir      string `yaml:"log_dir"`
}

func defaults() Config {
	return Config{
		DataDir:     "./data",
		GenesisPath: "./genesis.json",
		LogDir:      "./logs",
	}
}

// Load reads path as YAML, falling back to defaults for a missing file so
// a fresh checkout can run `dposd open` without hand-writing a config
// first.
func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
