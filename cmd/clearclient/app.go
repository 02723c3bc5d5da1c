package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snehendu098/ghost/clearclient/pkg/chain"
	"github.com/snehendu098/ghost/clearclient/pkg/config"
	"github.com/snehendu098/ghost/clearclient/pkg/log"
	"github.com/snehendu098/ghost/clearclient/pkg/sdk"
	"github.com/snehendu098/ghost/clearclient/pkg/sign"
	"github.com/snehendu098/ghost/clearclient/pkg/storage"
)

const (
	chainDialTimeout = 10 * time.Second
	metricsEndpoint  = "/metrics"
)

type app struct {
	cfg   *config.Config
	lg    log.Logger
	store *storage.Storage

	metrics       *prometheus.Registry
	metricsServer *http.Server
}

func newApp() (*app, error) {
	bootLogger := log.NewZapLogger(log.Config{Format: "console", Level: log.LevelInfo})
	cfg, err := config.Load(bootLogger)
	if err != nil {
		return nil, err
	}
	lg := log.NewZapLogger(cfg.Log).WithName("clearclient")

	store, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, lg: lg, store: store}
	if cfg.MetricsAddr != "" {
		a.serveMetrics()
	}
	return a, nil
}

func (a *app) Close() {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.lg.Error("failed to shut down metrics server", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.lg.Error("failed to close storage", "error", err)
	}
}

func (a *app) serveMetrics() {
	a.metrics = prometheus.NewRegistry()
	a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	mux.Handle(metricsEndpoint, promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
	a.metricsServer = &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.lg.Info("Prometheus metrics available", "listenAddr", a.cfg.MetricsAddr, "endpoint", metricsEndpoint)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.lg.Error("metrics server failure", "error", err)
		}
	}()
}

// loadWallet resolves the named imported wallet, falling back to
// CLEARCLIENT_PRIVATE_KEY when no name is given.
func (a *app) loadWallet(name string) (*sign.EthereumWallet, error) {
	if name != "" {
		dto, err := a.store.WalletByName(name)
		if err != nil {
			return nil, fmt.Errorf("failed to load wallet %q: %w", name, err)
		}
		return sign.NewEthereumWallet(dto.PrivateKey, a.cfg.ChainID)
	}
	if a.cfg.PrivateKey != "" {
		return sign.NewEthereumWallet(a.cfg.PrivateKey, a.cfg.ChainID)
	}
	return nil, errors.New("no wallet selected: pass --wallet or set CLEARCLIENT_PRIVATE_KEY")
}

// dialChains connects to every configured network that has an RPC URL,
// either from the configuration or the least recently used stored one.
// Unreachable chains are skipped.
func (a *app) dialChains(ctx context.Context, wallet sign.TxSigner) *chain.Registry {
	registry := chain.NewRegistry()
	for _, n := range a.cfg.Networks {
		rpcURL, stored := n.RPCURL, false
		if rpcURL == "" {
			rpcs, err := a.store.ChainRPCs(n.ChainID)
			if err != nil {
				a.lg.Warn("failed to read stored RPCs", "chainID", n.ChainID, "error", err)
				continue
			}
			if len(rpcs) == 0 {
				a.lg.Debug("no RPC configured, skipping chain", "chainID", n.ChainID)
				continue
			}
			rpcURL, stored = rpcs[0].URL, true
		}

		dialCtx, cancel := context.WithTimeout(ctx, chainDialTimeout)
		client, err := chain.Dial(dialCtx, rpcURL, n.ChainNetwork(), wallet, a.lg)
		cancel()
		if err != nil {
			a.lg.Warn("failed to dial chain", "chainID", n.ChainID, "name", n.Name, "error", err)
			continue
		}
		if stored {
			if err := a.store.MarkChainRPCUsed(rpcURL); err != nil {
				a.lg.Warn("failed to mark RPC as used", "chainID", n.ChainID, "error", err)
			}
		}
		registry.Add(client)
	}
	return registry
}

func (a *app) newClient(ctx context.Context, wallet *sign.EthereumWallet) (*sdk.Client, error) {
	sessCfg, err := a.cfg.SessionConfig()
	if err != nil {
		return nil, err
	}

	opts := []sdk.Option{
		sdk.WithLogger(a.lg),
		sdk.WithChains(a.dialChains(ctx, wallet)),
	}
	if a.metrics != nil {
		opts = append(opts, sdk.WithMetrics(a.metrics))
	}
	return sdk.New(wallet, sdk.Config{Session: sessCfg, Deposit: a.cfg.DepositConfig()}, opts...), nil
}

func parseChainID(s string) (uint64, error) {
	chainID, err := strconv.ParseUint(s, 10, 64)
	if err != nil || chainID == 0 {
		return 0, fmt.Errorf("invalid chain ID: %q", s)
	}
	return chainID, nil
}
