package stewardd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"cronosquity/native/steward"
	"cronosquity/observability/logging"
	telemetry "cronosquity/observability/otel"
	"cronosquity/services/stewardd/audit"
	"cronosquity/services/stewardd/x402"
)

// Main initialises and runs the steward daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/stewardd/config.yaml", "path to stewardd configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("STEWARD_ENV"))
	log := logging.Setup("stewardd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "stewardd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logStartup(log, cfg)

	client, err := DialEVMClient(cfg.Chain.RPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	registry, err := NewRegistryReader(client, cfg.Chain.RegistryAddress)
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	scores := NewFileScoreSource(cfg.Scores.Dir)

	sink, closeSink, err := buildAuditSink(cfg.Audit)
	if err != nil {
		return fmt.Errorf("init audit sink: %w", err)
	}
	defer closeSink()

	bridge, err := buildBridge(cfg.Bridge)
	if err != nil {
		return fmt.Errorf("init bridge: %w", err)
	}
	threshold, err := steward.ParseUnits(cfg.Bridge.Threshold)
	if err != nil {
		return fmt.Errorf("parse bridge threshold: %w", err)
	}

	opts := []StewardOption{
		WithBridge(bridge),
		WithBridgeThreshold(threshold),
		WithAuditSink(sink),
		WithLogger(log),
		WithAutoExecute(cfg.AutoExecute),
		WithPolicyFallback(cfg.Policy.AllowFallback),
	}
	if cfg.AutoExecute {
		vault, err := NewVaultWallet(client, cfg.Chain.VaultAddress, cfg.Chain.SignerKey,
			cfg.Chain.ChainID, cfg.Chain.Confirmations, cfg.Chain.PollInterval.Duration)
		if err != nil {
			return fmt.Errorf("init vault wallet: %w", err)
		}
		opts = append(opts, WithVault(vault))
	}

	loop := NewSteward(registry, scores, opts...)
	if cfg.PauseOnStart {
		loop.Pause()
	}

	auth, err := NewAuthenticator(cfg.Admin.BearerToken)
	if err != nil {
		return fmt.Errorf("init admin auth: %w", err)
	}
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      NewAdminServer(loop, auth),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go loop.Run(stopCtx, cfg.CycleInterval.Duration)

	errs := make(chan error, 1)
	go func() {
		log.Info("admin server listening", "addr", cfg.ListenAddress)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func buildAuditSink(cfg AuditConfig) (audit.Sink, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		sink, err := audit.NewSQLiteSink(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { _ = sink.Close() }, nil
	default:
		return audit.NewMemorySink(), func() {}, nil
	}
}

func buildBridge(cfg BridgeConfig) (*x402.Facilitator, error) {
	facilitatorCfg := x402.Config{
		BaseURL: cfg.BaseURL,
		Network: cfg.Network,
		Mock:    cfg.Mock,
		Domain: x402.TokenDomain{
			Name:              cfg.TokenName,
			Version:           cfg.TokenVersion,
			ChainID:           big.NewInt(cfg.ChainID),
			VerifyingContract: cfg.TokenAddress,
		},
	}
	if key := strings.TrimSpace(cfg.SignerKey); key != "" {
		parsed, err := gethcrypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse bridge signer key: %w", err)
		}
		facilitatorCfg.Signer = parsed
	}
	return x402.New(facilitatorCfg), nil
}

// logStartup records the effective configuration and flags missing pieces so
// operators can spot a half-configured deployment before the first cycle.
func logStartup(log *slog.Logger, cfg Config) {
	log.Info("stewardd starting",
		"rpc", cfg.Chain.RPCURL,
		"registry", cfg.Chain.RegistryAddress,
		"vault", cfg.Chain.VaultAddress,
		"auto_execute", cfg.AutoExecute,
		"cycle_interval", cfg.CycleInterval.Duration.String(),
		"bridge_network", cfg.Bridge.Network,
		"bridge_mock", cfg.Bridge.Mock,
		"bridge_threshold", cfg.Bridge.Threshold,
		"audit_backend", cfg.Audit.Backend,
	)
	if !cfg.AutoExecute {
		log.Info("dry-run mode: plans are computed and verified but never broadcast")
	}
	if cfg.Bridge.SignerKey == "" && !cfg.Bridge.Mock {
		log.Warn("bridge signer key not set; cross-chain settlement will fail")
	}
	if cfg.Policy.AllowFallback {
		log.Warn("policy fallback enabled: malformed policies fall back to the conservative default")
	}
}
