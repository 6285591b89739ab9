package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"fileident/pkg/metrics"
	"fileident/pkg/server"
	"fileident/pkg/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthService 是识别循环在健康检查中的服务名
const HealthService = "fileident.Identifier"

var (
	serveAddr        string
	serveMetricsAddr string
	serveInterval    time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve [path...]",
	Short: "Periodically index and identify locations, exposing gRPC health and metrics",
	Long: `Run as a daemon: every --interval, re-index each location and identify
its orphans. The gRPC health service reports NOT_SERVING for fileident.Identifier
while the last round ended in a fatal error. Prometheus metrics are served on
--metrics-addr when metrics.enabled is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// 1. gRPC: 健康检查 + 反射
		lis, err := net.Listen("tcp", serveAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", serveAddr, err)
		}
		grpcServer := grpc.NewServer(
			grpc.ChainUnaryInterceptor(server.UnaryInterceptors()...),
			grpc.ChainStreamInterceptor(server.StreamErrorInterceptor),
		)
		healthSrv := health.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthSrv)
		reflection.Register(grpcServer)
		healthSrv.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)

		go func() {
			fmt.Printf("🚀 gRPC health listening on %s...\n", serveAddr)
			if err := grpcServer.Serve(lis); err != nil {
				slog.Error("grpc server stopped", slog.Any("error", err))
			}
		}()

		// 2. 指标
		var metricsSrv *http.Server
		if reg := metrics.GetRegistry(); reg != nil {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			metricsSrv = &http.Server{Addr: serveMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				fmt.Printf("📈 Metrics on http://%s/metrics\n", serveMetricsAddr)
				if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("metrics server stopped", slog.Any("error", err))
				}
			}()
		}

		// 3. 识别循环，直到收到信号
		runLoop(ctx, args, func(healthy bool) {
			st := healthpb.HealthCheckResponse_SERVING
			if !healthy {
				st = healthpb.HealthCheckResponse_NOT_SERVING
			}
			healthSrv.SetServingStatus(HealthService, st)
		})

		// 4. Graceful Shutdown
		fmt.Println("\n⚠️  Shutting down server...")
		healthSrv.Shutdown()
		grpcServer.GracefulStop()
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			metricsSrv.Shutdown(shutdownCtx)
		}
		fmt.Println("👋 Server stopped.")
		return nil
	},
}

// runLoop 每隔 serveInterval 跑一轮，ctx 取消后返回
func runLoop(ctx context.Context, paths []string, setHealthy func(bool)) {
	ticker := time.NewTicker(serveInterval)
	defer ticker.Stop()

	for {
		setHealthy(runRound(ctx, paths))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runRound 对每个 Location 先索引再识别，返回本轮是否没有致命错误
func runRound(ctx context.Context, paths []string) bool {
	healthy := true
	for _, p := range paths {
		if ctx.Err() != nil {
			return healthy
		}
		log := FI.Logger.With(slog.String("location", p))

		if _, _, err := Svc.Index(ctx, p); err != nil {
			log.Error("index failed", slog.Any("error", err))
			healthy = false
			continue
		}

		report, err := Svc.Identify(ctx, service.IdentifyRequest{
			Path:      p,
			ChunkSize: viper.GetInt("identifier.chunk_size"),
			PageSize:  viper.GetInt("identifier.page_size"),
		}, nil)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("identify failed", slog.String("code", server.Code(err).String()), slog.Any("error", err))
				healthy = false
			}
			continue
		}
		log.Info("identify finished",
			slog.Int("identified", report.Stats.Identified),
			slog.Int("created_objects", report.Stats.CreatedObjects),
			slog.Int("warnings", len(report.Errors)),
			slog.Duration("duration", report.Duration),
		)
	}
	return healthy
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveAddr, "addr", ":8080", "gRPC listen address")
	f.StringVar(&serveMetricsAddr, "metrics-addr", ":9090", "Prometheus listen address (requires metrics.enabled)")
	f.DurationVar(&serveInterval, "interval", 10*time.Minute, "Time between identification rounds")
	rootCmd.AddCommand(serveCmd)
}
