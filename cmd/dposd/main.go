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

// Command dposd is the control-surface CLI for the DPoS engine (spec.md
// §6): open a data directory, push a block, generate a candidate block, or
// export the fork graph for inspection.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/erigontech/dpos-engine/chain/engine"
	"github.com/erigontech/dpos-engine/chain/genesis"
	"github.com/erigontech/dpos-engine/chain/types"
	"github.com/erigontech/dpos-engine/chainhash"
	"github.com/erigontech/dpos-engine/cmd/dposd/nodecfg"
	"github.com/erigontech/dpos-engine/kv"
	"github.com/erigontech/dpos-engine/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var _ pflag.Value = byteSizeFlag{}

var (
	cfgPath      string
	maxBlockSize datasize.ByteSize
)

func main() {
	root := &cobra.Command{
		Use:   "dposd",
		Short: "delegated proof-of-stake state engine",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "dposd.yaml", "node config file")
	root.PersistentFlags().Var(byteSizeFlag{&maxBlockSize}, "max-block-size", "override the produced block size ceiling (e.g. 2MB)")

	root.AddCommand(openCmd(), pushBlockCmd(), generateBlockCmd(), exportGraphCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openEngine(cfg nodecfg.Config) (*engine.Engine, error) {
	logger, err := log.New(log.DefaultConfig(cfg.LogDir))
	if err != nil {
		return nil, err
	}

	var db kv.RwDB
	if cfg.InMemory {
		db = kv.NewMemDB()
	} else {
		db, err = kv.OpenMdbx(cfg.DataDir)
		if err != nil {
			return nil, err
		}
	}

	gcfg, err := genesis.Load(cfg.GenesisPath)
	if err != nil {
		return nil, err
	}
	e, err := engine.Open(db, gcfg, logger)
	if err != nil {
		return nil, err
	}
	if maxBlockSize > 0 {
		e.SetMaxBlockSize(int(maxBlockSize))
	}
	return e, nil
}

func openCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "open (or initialize) a data directory and report the chain id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := nodecfg.Load(cfgPath)
			if err != nil {
				return err
			}
			e, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer e.Close()
			head, err := e.HeadBlockNum()
			if err != nil {
				return err
			}
			id := e.ChainID()
			fmt.Printf("chain_id=%s head_block_num=%d\n", hex.EncodeToString(id[:]), head)
			return nil
		},
	}
	return cmd
}

func pushBlockCmd() *cobra.Command {
	var blockPath string
	cmd := &cobra.Command{
		Use:   "push-block",
		Short: "decode a block from a JSON file and push it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := nodecfg.Load(cfgPath)
			if err != nil {
				return err
			}
			e, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			raw, err := os.ReadFile(blockPath)
			if err != nil {
				return err
			}
			var block types.FullBlock
			if err := json.Unmarshal(raw, &block); err != nil {
				return err
			}
			return e.PushBlock(block)
		},
	}
	cmd.Flags().StringVar(&blockPath, "block", "", "path to a JSON-encoded block")
	_ = cmd.MarkFlagRequired("block")
	return cmd
}

func generateBlockCmd() *cobra.Command {
	var timestamp int64
	var secretHex, nextSecretHashHex string
	cmd := &cobra.Command{
		Use:   "generate-block",
		Short: "produce a candidate block (unsigned) at the given timestamp",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := nodecfg.Load(cfgPath)
			if err != nil {
				return err
			}
			e, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			secret, err := decodeHash160(secretHex)
			if err != nil {
				return err
			}
			nextHash, err := decodeHash160(nextSecretHashHex)
			if err != nil {
				return err
			}

			block, err := e.GenerateBlock(timestamp, secret, nextHash)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(block, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "block timestamp, aligned to the block interval")
	cmd.Flags().StringVar(&secretHex, "secret", "", "hex-encoded secret reveal")
	cmd.Flags().StringVar(&nextSecretHashHex, "next-secret-hash", "", "hex-encoded commitment for the next slot")
	_ = cmd.MarkFlagRequired("timestamp")
	return cmd
}

func exportGraphCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export-graph",
		Short: "render the fork tree as a DOT graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := nodecfg.Load(cfgPath)
			if err != nil {
				return err
			}
			e, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer e.Close()
			return e.ExportForkGraph(outPath)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "forktree.dot", "output path for the DOT file")
	return cmd
}

// byteSizeFlag adapts datasize.ByteSize (a TextUnmarshaler, not a
// pflag.Value) to pflag's flag.Value interface so --max-block-size accepts
// human-readable sizes like "2MB".
type byteSizeFlag struct{ v *datasize.ByteSize }

func (f byteSizeFlag) String() string {
	if f.v == nil {
		return ""
	}
	return f.v.String()
}
func (f byteSizeFlag) Set(s string) error { return f.v.UnmarshalText([]byte(s)) }
func (f byteSizeFlag) Type() string       { return "byteSize" }

func decodeHash160(s string) (chainhash.Hash160, error) {
	var h chainhash.Hash160
	if s == "" {
		return h, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}
