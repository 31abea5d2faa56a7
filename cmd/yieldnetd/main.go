package main

import (
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"yieldnet/config"
	"yieldnet/core/ledger"
	"yieldnet/core/state"
	"yieldnet/core/supply"
	"yieldnet/native/bridge"
	"yieldnet/native/vault"
	"yieldnet/observability/logging"
	"yieldnet/observability/metrics"
	"yieldnet/relay"
	"yieldnet/rpc"
	"yieldnet/storage"
)

// moduleAddress derives a deterministic 20-byte identity for an internal
// module, used as its caller address toward the supply controller.
func moduleAddress(name string) [20]byte {
	digest := ethcrypto.Keccak256([]byte("yieldnet/module/" + name))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// devCustodian stands in for the external base-asset custodian when none is
// wired. It accepts every pull and payout, which is only acceptable for
// development networks.
type devCustodian struct{}

func (devCustodian) Pull([20]byte, *big.Int) error { return nil }
func (devCustodian) Push([20]byte, *big.Int) error { return nil }

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	params, err := cfg.Parameters()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv("YIELDNET_ENV"))
	logger := logging.Setup("yieldnetd", env, params.Domain)

	db, err := storage.NewLevelDB(params.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", params.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	emitter := metrics.NewEmitter(logger)

	l := ledger.NewLedger(manager, params.TokenSymbol, emitter)
	controller, err := supply.NewController(manager, manager, l, emitter, params.InitialGlobalRate)
	if err != nil {
		logger.Error("failed to initialise supply controller", "error", err)
		os.Exit(1)
	}

	if params.OwnerSet {
		if _, recorded, err := manager.Owner(); err == nil && !recorded {
			if err := manager.SetOwner(params.Owner); err != nil {
				logger.Error("failed to record owner", "error", err)
				os.Exit(1)
			}
		}
	}

	vaultAddr := moduleAddress("vault")
	poolAddr := moduleAddress("bridge")
	for _, addr := range [][20]byte{vaultAddr, poolAddr} {
		granted, err := manager.HasMintBurnRole(addr)
		if err != nil {
			logger.Error("failed to read role registry", "error", err)
			os.Exit(1)
		}
		if !granted {
			if err := manager.GrantMintBurnRole(addr); err != nil {
				logger.Error("failed to grant mint/burn role", "error", err)
				os.Exit(1)
			}
		}
	}

	v, err := vault.NewVault(vaultAddr, manager, controller, devCustodian{})
	if err != nil {
		logger.Error("failed to initialise vault", "error", err)
		os.Exit(1)
	}

	// With no remotes configured every lock fails closed at the remote check,
	// so the loopback relay is safe; configured remotes always carry an
	// endpoint (enforced by config.Parameters) and route over HTTP.
	var messageRelay relay.Relay
	if len(params.Remotes) > 0 {
		endpoints := make(map[uint32]string)
		for _, remote := range params.Remotes {
			if remote.RPCEndpoint != "" {
				endpoints[remote.Domain] = remote.RPCEndpoint
			}
		}
		messageRelay = relay.NewHTTP(params.Domain, endpoints, logger)
	} else {
		messageRelay = relay.NewMemory(params.Domain, logger)
	}

	limiter := bridge.NewTokenBucketLimiter(map[bridge.Direction]bridge.LimitConfig{
		bridge.DirectionOutbound: {TokensPerSecond: params.OutboundLimit.TokensPerSecond, Burst: params.OutboundLimit.Burst},
		bridge.DirectionInbound:  {TokensPerSecond: params.InboundLimit.TokensPerSecond, Burst: params.InboundLimit.Burst},
	})

	pool, err := bridge.NewPool(params.Domain, poolAddr, manager, controller, manager, messageRelay, limiter, emitter)
	if err != nil {
		logger.Error("failed to initialise bridge pool", "error", err)
		os.Exit(1)
	}

	for _, remote := range params.Remotes {
		existing, ok, err := pool.Remote(remote.Domain)
		if err != nil {
			logger.Error("failed to read remote table", "error", err)
			os.Exit(1)
		}
		if ok && existing.Allowed == remote.Allowed {
			continue
		}
		cfg := bridge.RemoteConfig{Allowed: remote.Allowed, PoolAddress: remote.PoolAddress, TokenIdentity: remote.TokenIdentity}
		var seedErr error
		if params.OwnerSet {
			seedErr = pool.SetRemote(params.Owner, remote.Domain, cfg)
		} else {
			seedErr = fmt.Errorf("remotes configured but no owner set")
		}
		if seedErr != nil {
			logger.Error("failed to seed remote", "domain", remote.Domain, "error", seedErr)
			os.Exit(1)
		}
	}

	server := rpc.New(controller, v, pool, logger)
	logger.Info("yieldnetd listening",
		"address", params.ListenAddress,
		"network", params.NetworkName,
		"token", params.TokenSymbol)
	if err := http.ListenAndServe(params.ListenAddress, server.Handler()); err != nil {
		logger.Error("http server stopped", "error", err)
		os.Exit(1)
	}
}
