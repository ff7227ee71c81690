package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"

	"swapescrow/config"
	"swapescrow/core"
	"swapescrow/observability"
	"swapescrow/observability/logging"
	"swapescrow/rpc"
	"swapescrow/storage"
)

func main() {
	configFile := flag.String("config", "./escrow.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SWAPESCROW_ENV"))
	logger := logging.Setup("escrowd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node, err := core.NewNode(db, logger)
	if err != nil {
		logger.Error("failed to create node", slog.Any("error", err))
		os.Exit(1)
	}

	if err := applyGenesis(node, cfg, logger); err != nil {
		logger.Error("failed to apply genesis configuration", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		logger.Info("starting metrics server", "address", cfg.MetricsAddress)
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("metrics server terminated", slog.Any("error", err))
		}
	}()

	logger.Info("escrow node initialised and running")
	if err := rpc.NewServer(node, logger).Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

// applyGenesis registers configured mints and, on a fresh database, seeds the
// configured storage credits and balances. A mint that already exists marks
// the database as previously initialised, so genesis entries are not replayed
// across restarts.
func applyGenesis(node *core.Node, cfg *config.Config, logger *slog.Logger) error {
	fresh := true
	for _, mint := range cfg.Mints {
		_, exists, err := node.MintInfo(mint.Symbol)
		if err != nil {
			return err
		}
		if exists {
			fresh = false
			continue
		}
		if err := node.RegisterMint(mint.Symbol, mint.Name, mint.Decimals); err != nil {
			return err
		}
		logger.Info("registered mint", "symbol", mint.Symbol, "decimals", mint.Decimals)
	}

	if !fresh {
		return nil
	}
	for _, entry := range cfg.Genesis {
		addr, err := parseGenesisAddress(entry.Address)
		if err != nil {
			return err
		}
		if credit, ok := parseGenesisAmount(entry.StorageCredit); ok {
			if err := node.CreditStorage(addr, credit); err != nil {
				return err
			}
		}
		if amount, ok := parseGenesisAmount(entry.Amount); ok && strings.TrimSpace(entry.Mint) != "" {
			if err := node.FundAccount(addr, entry.Mint, amount); err != nil {
				return err
			}
		}
	}
	if len(cfg.Genesis) > 0 {
		logger.Info("applied genesis allocations", "entries", len(cfg.Genesis))
	}
	return nil
}

func parseGenesisAddress(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if len(trimmed) != 40 {
		return out, fmt.Errorf("genesis address %q must be 20 bytes of hex", value)
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("genesis address %q is not valid hex", value)
	}
	copy(out[:], decoded)
	return out, nil
}

func parseGenesisAmount(value string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, false
	}
	return amount, true
}
