// Command server runs the skillpass trust pipeline: identity verification,
// credential issuance, the public verification gateway, and the audit
// recorder with its Kafka relay. Wiring lives here; business logic lives in
// the internal service packages.
package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"skillpass/internal/audit"
	auditHandler "skillpass/internal/audit/handler"
	"skillpass/internal/audit/relay"
	auditmem "skillpass/internal/audit/store/memory"
	auditpg "skillpass/internal/audit/store/postgres"
	"skillpass/internal/credential"
	credentialHandler "skillpass/internal/credential/handler"
	credentialMetrics "skillpass/internal/credential/metrics"
	credstore "skillpass/internal/credential/store"
	"skillpass/internal/evidence/document"
	"skillpass/internal/evidence/hsm"
	"skillpass/internal/evidence/liveness"
	"skillpass/internal/evidence/registry"
	registrycache "skillpass/internal/evidence/registry/cache"
	"skillpass/internal/gateway"
	gatewayHandler "skillpass/internal/gateway/handler"
	gatewayMetrics "skillpass/internal/gateway/metrics"
	"skillpass/internal/identity"
	identityHandler "skillpass/internal/identity/handler"
	identityMetrics "skillpass/internal/identity/metrics"
	identitystore "skillpass/internal/identity/store"
	jwttoken "skillpass/internal/jwt_token"
	"skillpass/internal/platform/config"
	"skillpass/internal/platform/httpserver"
	"skillpass/internal/platform/logger"
	platformredis "skillpass/internal/platform/redis"
	httptransport "skillpass/internal/transport/http"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.JWTSigningKey == "" {
		return errors.New("SKILLPASS_JWT_SIGNING_KEY is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
	} else {
		log.Warn("no database configured, using in-memory stores")
	}

	// Audit recorder. The Postgres store doubles as the relay's outbox.
	auditMetrics := audit.NewMetrics()
	var (
		auditStore audit.Store
		outbox     relay.Outbox
	)
	if db != nil {
		pgStore := auditpg.New(db)
		auditStore = pgStore
		outbox = pgStore
	} else {
		auditStore = auditmem.NewInMemoryStore()
	}
	recorder := audit.NewRecorder(auditStore, log, auditMetrics)

	// External collaborators. An empty URL selects the deterministic
	// in-process implementation for local development.
	registryClient := buildRegistry(cfg, log)
	documentVerifier := buildDocument(cfg)
	livenessAnalyzer := buildLiveness(cfg)
	hsmService, err := buildHSM(cfg)
	if err != nil {
		return err
	}

	var identityStore identity.Store
	if db != nil {
		identityStore = identitystore.NewPostgres(db)
	} else {
		identityStore = identitystore.NewInMemoryStore()
	}
	identitySvc, err := identity.NewService(
		registryClient, documentVerifier, livenessAnalyzer, hsmService,
		identityStore, recorder, log, identityMetrics.New(),
		identity.Config{
			LivenessThreshold: cfg.LivenessThreshold,
			RegistryRequired:  cfg.RegistryRequired,
		},
	)
	if err != nil {
		return err
	}

	var (
		credStore  credential.Store
		levelStore credential.LevelStore
		issuers    credential.IssuerRegistry
	)
	if db != nil {
		credStore = credstore.NewPostgres(db)
		levelStore = credstore.NewPostgresLevels(db)
		issuers = credstore.NewPostgresIssuers(db)
	} else {
		credStore = credstore.NewInMemoryStore()
		levelStore = credstore.NewInMemoryLevelStore()
		issuers = credstore.NewInMemoryIssuers()
	}
	credentialSvc, err := credential.NewService(
		credStore, levelStore, identitySvc, issuers, hsmService,
		recorder, log, credentialMetrics.New(),
		credential.Config{
			BaseURL:      cfg.CredentialBaseURL,
			IssuerKeyRef: "issuer-signing-key",
		},
	)
	if err != nil {
		return err
	}

	gatewaySvc, err := gateway.NewService(credStore, recorder, log, gatewayMetrics.New())
	if err != nil {
		return err
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "skillpass")

	router := httptransport.NewRouter(httptransport.Handlers{
		Identity:   identityHandler.New(identitySvc, log),
		Credential: credentialHandler.New(credentialSvc, log),
		Gateway:    gatewayHandler.New(gatewaySvc, log),
		Audit:      auditHandler.New(recorder, log),
	}, jwtService, log, healthz(db))

	srv := httpserver.New(cfg, router)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if outbox != nil && len(cfg.Kafka.Brokers) > 0 {
		auditRelay, err := relay.New(
			cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Poll, cfg.Kafka.Batch,
			outbox, log, auditMetrics,
		)
		if err != nil {
			return err
		}
		group.Go(func() error {
			log.Info("starting audit relay", "topic", cfg.Kafka.Topic)
			if err := auditRelay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit relay: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func buildRegistry(cfg config.Config, log *slog.Logger) registry.Client {
	if cfg.Registry.URL == "" {
		return &registry.MockClient{}
	}
	client := registry.Client(registry.NewHTTPClient(cfg.Registry.URL, cfg.Registry.Timeout))
	if cfg.Redis.URL == "" {
		return client
	}
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, registry cache disabled", "error", err)
		return client
	}
	return registrycache.New(client, redisClient, cfg.RegistryCacheTTL, log)
}

func buildDocument(cfg config.Config) document.Verifier {
	if cfg.Document.URL == "" {
		return &document.MockVerifier{}
	}
	return document.NewHTTPVerifier(cfg.Document.URL, cfg.Document.Timeout)
}

func buildLiveness(cfg config.Config) liveness.Analyzer {
	if cfg.Liveness.URL == "" {
		return &liveness.MockAnalyzer{Score: 0.95}
	}
	return liveness.NewHTTPAnalyzer(cfg.Liveness.URL, cfg.Liveness.Timeout)
}

func buildHSM(cfg config.Config) (hsm.Service, error) {
	if cfg.HSM.URL != "" {
		return hsm.NewHTTPClient(cfg.HSM.URL, cfg.HSM.Timeout), nil
	}
	var seed []byte
	if cfg.SignerKey != "" {
		var err error
		seed, err = hex.DecodeString(cfg.SignerKey)
		if err != nil {
			return nil, fmt.Errorf("decode signer key: %w", err)
		}
	}
	return hsm.NewLocal(seed), nil
}

func healthz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
