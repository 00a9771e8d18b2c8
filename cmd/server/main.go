// Command docflow-server starts the docflow gRPC server and the sweeper scheduler.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/docflow/internal/audit"
	"github.com/and161185/docflow/internal/blobstore"
	"github.com/and161185/docflow/internal/clock"
	"github.com/and161185/docflow/internal/crypto"
	"github.com/and161185/docflow/internal/identity"
	"github.com/and161185/docflow/internal/limiter"
	"github.com/and161185/docflow/internal/metrics"
	"github.com/and161185/docflow/internal/migrate"
	"github.com/and161185/docflow/internal/repository"
	"github.com/and161185/docflow/internal/repository/memory"
	"github.com/and161185/docflow/internal/repository/postgres"
	"github.com/and161185/docflow/internal/scheduler"
	grpcserver "github.com/and161185/docflow/internal/server/grpc"
	"github.com/and161185/docflow/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownGrace = 5 * time.Second

// main parses configuration and runs until SIGINT or SIGTERM.
func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.addr),
		zap.String("store", cfg.store),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

type stores struct {
	cases repository.CaseRepository
	staff repository.StaffRepository
	sink  audit.Sink
	lim   limiter.Limiter
	close func()
}

func openStores(ctx context.Context, cfg config, clk clock.Clock, log *zap.Logger) (stores, error) {
	if cfg.store == storeMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return stores{
			cases: memory.NewCaseRepo(),
			staff: memory.NewStaffRepo(),
			sink:  audit.NewLogSink(log),
			lim:   limiter.NewMemory(clk, limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor),
			close: func() {},
		}, nil
	}

	if err := migrate.Up(ctx, cfg.dsn, log); err != nil {
		return stores{}, err
	}
	db, err := postgres.New(ctx, cfg.dsn, int32(cfg.maxConns))
	if err != nil {
		return stores{}, err
	}
	return stores{
		cases: postgres.NewCaseRepo(db),
		staff: postgres.NewStaffRepo(db),
		sink:  audit.MultiSink{postgres.NewAuditRepo(db), audit.NewLogSink(log)},
		lim:   limiter.NewPG(db.Pool, clk, limiter.DefaultWindow, limiter.DefaultMaxFails, limiter.DefaultBlockFor),
		close: db.Close,
	}, nil
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	clk := clock.New()
	m := metrics.New()

	var creds credentials.TransportCredentials
	if !cfg.insecure {
		c, err := credentials.NewServerTLSFromFile(cfg.certFile, cfg.keyFile)
		if err != nil {
			return err
		}
		creds = c
	}

	st, err := openStores(ctx, cfg, clk, logger)
	if err != nil {
		return err
	}
	defer st.close()

	for i := range cfg.seedStaff {
		s := &cfg.seedStaff[i]
		if err := st.staff.Upsert(ctx, s); err != nil {
			return err
		}
		logger.Info("staff seeded", zap.String("id", s.ID), zap.String("role", string(s.Role)))
	}

	bucket, err := blobstore.Open(ctx, cfg.blobURL, logger)
	if err != nil {
		return err
	}
	defer func() { _ = bucket.Close() }()

	digester, err := crypto.NewDigester(crypto.DeriveKey(cfg.tokenKey))
	if err != nil {
		return err
	}

	// Audit delivery outlives request contexts; it is drained on shutdown.
	emitter := audit.NewEmitter(st.sink, logger, m, cfg.auditBuffer)
	go emitter.Run(context.WithoutCancel(ctx))
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := emitter.Close(cctx); err != nil {
			logger.Warn("audit queue not drained", zap.Error(err))
		}
	}()

	// Services
	deps := service.Deps{
		Cases: st.cases, Staff: st.staff, Blobs: bucket, Audit: emitter,
		Clock: clk, Log: logger, Metrics: m,
	}
	caseSvc := service.NewCaseService(deps, digester)
	submitSvc := service.NewSubmissionService(deps, digester, st.lim)
	sweepSvc := service.NewSweepService(deps)

	// Scheduler
	sched := scheduler.New(logger, clk, cfg.schedulerTZ)
	if err := sched.Add(service.PassReminder, cfg.reminderSchedule, func(ctx context.Context) error {
		_, err := sweepSvc.RunReminderPass(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := sched.Add(service.PassExpiry, cfg.expirySchedule, func(ctx context.Context) error {
		_, err := sweepSvc.RunExpiryPass(ctx)
		return err
	}); err != nil {
		return err
	}
	go sched.Run(ctx)

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(identity.NewJWT([]byte(cfg.jwtKey))),
		),
		grpc.MaxRecvMsgSize(grpcserver.MaxMessageSize),
	}
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("TLS disabled")
	}
	s := grpc.NewServer(opts...)
	grpcserver.New(caseSvc, submitSvc, sweepSvc, logger).Register(s)

	// Health & reflection (dev)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.dev {
		reflection.Register(s)
	}

	var metricsSrv *http.Server
	if cfg.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
	}

	lis, err := net.Listen("tcp", cfg.addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.addr), zap.Bool("tls", creds != nil))
		errCh <- s.Serve(lis)
	}()

	// Wait for stop
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	hs.Shutdown()
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		s.Stop()
	}
	if metricsSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		_ = metricsSrv.Shutdown(sctx)
		cancel()
	}
	return serveErr
}
