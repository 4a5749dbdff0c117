// Package main serves the backtest engine over gRPC and a gin REST API.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	pb "signal-backtest/proto"
	"signal-backtest/services/arrowpipeline"
	"signal-backtest/services/config"
	"signal-backtest/services/engine"
	"signal-backtest/services/marketdata"
	"signal-backtest/services/sweep"
)

// BacktestService runs simulations against bar data stored in ClickHouse and
// persists the resulting reports.
type BacktestService struct {
	pb.UnimplementedBacktestServiceServer
	store  *marketdata.Store
	sweeps *sweep.Runner
	logger *zap.Logger
	config *config.Config
}

func NewBacktestService(cfg *config.Config, logger *zap.Logger) (*BacktestService, error) {
	store, err := marketdata.NewStore(cfg.ClickHouse, logger)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	codec := arrowpipeline.NewCodec(cfg.Arrow, logger)
	return &BacktestService{
		store:  store,
		sweeps: sweep.NewRunner(cfg.Engine.MaxWorkers, codec, logger),
		logger: logger,
		config: cfg,
	}, nil
}

// ExecuteBacktest implements the gRPC BacktestService.
func (s *BacktestService) ExecuteBacktest(ctx context.Context, req *pb.BacktestRequest) (*pb.BacktestResponse, error) {
	start := time.Now()
	jobID := uuid.New().String()

	runCfg, err := runConfigFromRequest(req)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	signals, err := signalsFromRequest(req.Signals)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	bars, err := s.store.QueryBars(ctx, req.Symbol, req.Timeframe, req.StartTime, req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars for %s %s in [%d, %d)", req.Symbol, req.Timeframe, req.StartTime, req.EndTime)
	}

	bt := engine.NewBacktester(runCfg, s.logger.With(zap.String("job_id", jobID)))
	report, err := bt.Run(bars, signals)
	if err != nil {
		s.logger.Error("backtest failed", zap.String("job_id", jobID), zap.Error(err))
		return nil, err
	}

	if err := s.store.SaveReport(ctx, jobID, req.Symbol, report); err != nil {
		// The caller still gets the report; only replay from storage is lost.
		s.logger.Warn("report not persisted", zap.String("job_id", jobID), zap.Error(err))
	}

	s.logger.Info("backtest complete",
		zap.String("job_id", jobID),
		zap.String("symbol", req.Symbol),
		zap.Int("bars", len(bars)),
		zap.Int("trades", report.TotalTrades),
		zap.Duration("elapsed", time.Since(start)),
	)
	return responseFromReport(jobID, start, report), nil
}

func runConfigFromRequest(req *pb.BacktestRequest) (engine.RunConfig, error) {
	cfg := engine.DefaultRunConfig()

	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"initial_capital", req.InitialCapital, &cfg.InitialCapital},
		{"fee_rate", req.FeeRate, &cfg.Cost.FeeRate},
		{"slippage_rate", req.SlippageRate, &cfg.Cost.SlippageRate},
		{"min_order_value", req.MinOrderValue, &cfg.Cost.MinOrderValue},
	} {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}
	if !cfg.InitialCapital.IsPositive() {
		return cfg, fmt.Errorf("initial_capital must be positive")
	}

	cfg.Exit.TakeProfit = req.TakeProfitPct
	cfg.Exit.StopLoss = req.StopLossPct
	cfg.Exit.Trailing = engine.TrailingConfig{}
	if ts := req.TrailingStop; ts != nil {
		cfg.Exit.Trailing = engine.TrailingConfig{
			Enabled:       true,
			ActivationPct: ts.ActivationPct,
			TrailPct:      ts.TrailPct,
		}
	}
	cfg.Exit.MaxHold = time.Duration(req.MaxHoldMs) * time.Millisecond
	return cfg, nil
}

func signalsFromRequest(in []*pb.Signal) ([]engine.Signal, error) {
	signals := make([]engine.Signal, 0, len(in))
	for i, s := range in {
		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			return nil, fmt.Errorf("signal %d price: %w", i, err)
		}
		signals = append(signals, engine.Signal{
			Timestamp: s.Timestamp,
			Price:     price,
			Score:     s.Score,
			Metadata:  s.Metadata,
		})
	}
	return signals, nil
}

func responseFromReport(jobID string, started time.Time, r *engine.Report) *pb.BacktestResponse {
	resp := &pb.BacktestResponse{
		JobId:          jobID,
		ExecutionTime:  time.Since(started).Milliseconds(),
		InitialCapital: r.InitialCapital,
		FinalCapital:   r.FinalCapital,
		TotalReturnPct: r.TotalReturnPct,
		TotalTrades:    int32(r.TotalTrades),
		WinRate:        r.WinRate,
		AvgReturnPct:   r.AvgReturnPct,
		SharpeRatio:    r.SharpeRatio,
		MaxDrawdownPct: r.MaxDrawdownPct,
		ProfitFactor:   r.ProfitFactor,
		SkippedBusy:    int32(r.SignalsSkippedBusy),
		SkippedCapital: int32(r.SignalsSkippedCapital),
		Trades:         make([]*pb.ExecutedTrade, len(r.Trades)),
		EquityCurve:    make([]*pb.EquityPoint, len(r.EquityCurve)),
	}
	for i, t := range r.Trades {
		resp.Trades[i] = &pb.ExecutedTrade{
			EntryTime:   t.EntryTime,
			ExitTime:    t.ExitTime,
			EntryPrice:  t.EntryPrice.String(),
			ExitPrice:   t.ExitPrice.String(),
			Quantity:    t.Quantity.String(),
			NetProceeds: t.NetProceeds.String(),
			Fees:        t.Fees.String(),
			ReturnPct:   t.ReturnPct.StringFixed(6),
			ExitReason:  string(t.ExitReason),
			HoldingMs:   t.HoldingMs,
		}
	}
	for i, p := range r.EquityCurve {
		resp.EquityCurve[i] = &pb.EquityPoint{
			Timestamp: p.Timestamp,
			Equity:    p.Equity.String(),
			Drawdown:  p.Drawdown.String(),
		}
	}
	return resp
}

// sweepRequest is the REST payload for a parameter sweep over one data slice.
type sweepRequest struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	StartTime int64           `json:"start_time"`
	EndTime   int64           `json:"end_time"`
	Signals   []*pb.Signal    `json:"signals"`
	Variants  []sweep.Variant `json:"variants"`
}

func (s *BacktestService) setupHTTPRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleBacktest)
		api.POST("/sweep", s.handleSweep)
		api.GET("/reports/:job_id", s.handleGetReport)
		api.GET("/health", s.handleHealth)
	}
}

func (s *BacktestService) handleBacktest(c *gin.Context) {
	var req pb.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.ExecuteBacktest(c.Request.Context(), &req)
	if err != nil {
		s.logger.Error("backtest request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *BacktestService) handleSweep(c *gin.Context) {
	var req sweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Variants) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no variants"})
		return
	}
	signals, err := signalsFromRequest(req.Signals)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	bars, err := s.store.QueryBars(ctx, req.Symbol, req.Timeframe, req.StartTime, req.EndTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	results, err := s.sweeps.Run(ctx, bars, signals, req.Variants)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type variantResult struct {
		JobID  string         `json:"job_id"`
		Name   string         `json:"name"`
		Error  string         `json:"error,omitempty"`
		Report *engine.Report `json:"report,omitempty"`
	}
	out := make([]variantResult, len(results))
	for i, res := range results {
		out[i] = variantResult{JobID: res.JobID, Name: res.Variant.Name, Report: res.Report}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
	}
	resp := gin.H{"results": out}
	if best := sweep.Best(results); best != nil {
		resp["best"] = best.Variant.Name
	}
	c.JSON(http.StatusOK, resp)
}

func (s *BacktestService) handleGetReport(c *gin.Context) {
	report, err := s.store.LoadReport(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *BacktestService) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting backtest service",
		zap.String("environment", cfg.Environment),
		zap.Int("workers", cfg.Engine.MaxWorkers),
	)

	service, err := NewBacktestService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create backtest service", zap.Error(err))
	}
	defer service.store.Close()

	grpcServer := grpc.NewServer()
	pb.RegisterBacktestServiceServer(grpcServer, service)
	reflection.Register(grpcServer)

	gin.SetMode(gin.ReleaseMode)
	httpRouter := gin.New()
	httpRouter.Use(gin.Recovery())
	service.setupHTTPRoutes(httpRouter)

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
		}
		logger.Info("Starting gRPC server", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpRouter.Run(fmt.Sprintf(":%d", cfg.Server.HTTPPort)); err != nil {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")
	grpcServer.GracefulStop()
	logger.Info("Servers stopped")
}
