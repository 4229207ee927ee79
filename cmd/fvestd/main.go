package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"fvest/config"
	"fvest/native/token"
	"fvest/native/vesting"
	"fvest/observability/logging"
	"fvest/rpc"
	"fvest/rpc/modules"
	"fvest/storage"
)

const (
	authTokenEnv   = "FVEST_RPC_TOKEN"
	operatorKeyEnv = "FVEST_OPERATOR_KEY"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	initConfig := flag.Bool("init", false, "Write a template configuration file and exit")
	flag.Parse()

	if *initConfig {
		if err := config.WriteDefault(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote template config to %s\n", *configFile)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("fvestd", cfg.Env)

	poolID, err := cfg.ParsedPoolID()
	if err != nil {
		logger.Error("invalid pool id", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := ethclient.Dial(cfg.NodeURL)
	if err != nil {
		logger.Error("failed to dial node", slog.String("url", cfg.NodeURL), slog.Any("error", err))
		os.Exit(1)
	}
	defer client.Close()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("dir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	moduleAddr := cfg.Address(cfg.ModuleAddress)
	node := token.NewNodeBackend(client, moduleAddr)

	if keyHex := strings.TrimSpace(os.Getenv(operatorKeyEnv)); keyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			logger.Error("invalid operator key", slog.Any("error", err))
			os.Exit(1)
		}
		chainID, err := client.ChainID(context.Background())
		if err != nil {
			logger.Error("failed to read chain id", slog.Any("error", err))
			os.Exit(1)
		}
		if err := node.EnableTransactions(key, chainID); err != nil {
			logger.Error("failed to arm transaction signing", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("transaction signing enabled", slog.String("chainID", chainID.String()))
	} else {
		logger.Warn("no operator key configured, fund-moving calls will be rejected",
			slog.String("env", operatorKeyEnv),
		)
	}

	engine := vesting.NewEngine(vesting.Config{
		RewardToken:    cfg.Address(cfg.RewardToken),
		PairedToken:    cfg.Address(cfg.PairedToken),
		LiquidityToken: cfg.Address(cfg.LiquidityToken),
		VaultAddress:   cfg.Address(cfg.VaultAddress),
		Issuer:         cfg.Address(cfg.Issuer),
		Owner:          cfg.Address(cfg.Owner),
		Module:         moduleAddr,
		PoolID:         poolID,
	})
	engine.SetTokens(token.NewSafeToken(node))
	engine.SetVault(vesting.NewVaultClient(node, cfg.Address(cfg.VaultAddress)))
	engine.SetLockBoxDialer(func(addr common.Address) vesting.LockBox {
		return vesting.NewLockBoxClient(node, addr)
	})

	state := storage.NewState(db)
	module := modules.NewVestingModule(engine, state)

	server := rpc.NewServer(module, strings.TrimSpace(os.Getenv(authTokenEnv)), logger)
	logger.Info("vesting service configured",
		slog.String("module", moduleAddr.Hex()),
		slog.String("vault", cfg.VaultAddress),
	)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
