package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"X402-Registry/internal/accumulator"
	"X402-Registry/internal/api"
	"X402-Registry/internal/auth"
	"X402-Registry/internal/config"
	"X402-Registry/internal/credential"
	"X402-Registry/internal/dispatch"
	"X402-Registry/internal/governance"
	"X402-Registry/internal/multisig"
	"X402-Registry/internal/observability/alerting"
	"X402-Registry/internal/observability/metrics"
	"X402-Registry/internal/registry"
	"X402-Registry/internal/storage/mysql"
	"X402-Registry/internal/web3/provider"
	"X402-Registry/pkg/logger"
)

// main 是注册中心守护进程的入口。
func main() {
	issue := flag.String("issue-token", "", "为指定操作员签发令牌后退出")
	perms := flag.String("perms", "*", "签发令牌时授予的权限，逗号分隔")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if *issue != "" {
		err = issueToken(*issue, *perms)
	} else {
		err = run(ctx)
	}
	if err != nil {
		log.Fatalf("registryd 运行失败: %v", err)
	}
}

func issueToken(name, perms string) error {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return err
	}
	svc, err := auth.NewService(cfg.Auth)
	if err != nil {
		return err
	}
	token, expires, err := svc.Issue(name, strings.Split(perms, ","))
	if err != nil {
		return err
	}
	fmt.Printf("%s\n# expires %s\n", token, expires.Format(time.RFC3339))
	return nil
}

// stores 汇总按存储驱动选择的各业务存储。
type stores struct {
	registry   registry.Registry
	governance governance.Store
	multisig   multisig.Store
	credential credential.Store
	db         *sql.DB
}

func (s *stores) Close() {
	for _, c := range []interface{ Close() error }{s.registry, s.governance, s.multisig, s.credential} {
		if c != nil {
			_ = c.Close()
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

func openStores(ctx context.Context, cfg config.StorageConfig) (*stores, error) {
	switch cfg.Driver {
	case "memory":
		return &stores{
			registry:   registry.NewMemoryRegistry(),
			governance: governance.NewMemoryStore(),
			multisig:   multisig.NewMemoryStore(),
			credential: credential.NewMemoryStore(),
		}, nil
	case "mysql":
		db, err := mysql.Open(ctx, mysql.Config{
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return &stores{
			registry:   registry.NewMySQLRegistry(db),
			governance: governance.NewMySQLStore(db),
			multisig:   multisig.NewMySQLStore(db),
			credential: credential.NewMySQLStore(db),
			db:         db,
		}, nil
	default:
		return nil, mysql.ErrUnsupportedDriver
	}
}

func openQueue(cfg config.QueueConfig) (dispatch.Queue, error) {
	switch cfg.Driver {
	case "memory":
		return dispatch.NewMemoryQueue(cfg.Buffer), nil
	case "redis":
		return dispatch.NewRedisQueue(dispatch.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return dispatch.NewRabbitMQQueue(dispatch.RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Queue:      cfg.RabbitMQ.Queue,
			Prefetch:   cfg.RabbitMQ.Prefetch,
			Durable:    cfg.RabbitMQ.Durable,
			AutoDelete: cfg.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.Driver)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()
	lg := logger.Named("registryd")

	alerts := alerting.NewFromConfig(cfg.Alerting)
	indicators := metrics.Default()

	st, err := openStores(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.Registry.SeedFile != "" {
		seed, err := registry.LoadSeed(cfg.Registry.SeedFile)
		if err != nil {
			return err
		}
		if err := st.registry.ApplySeed(ctx, seed); err != nil {
			return err
		}
		lg.Info("注册表种子数据已加载", slog.Int("agents", len(seed.Agents)), slog.Int("disputes", len(seed.Disputes)))
	}

	leaves, err := accumulator.NewStore(ctx, cfg.Accumulator)
	if err != nil {
		return err
	}
	defer leaves.Close()

	chains, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer chains.Close()
	chain, err := chains.DefaultClient()
	if err != nil {
		return err
	}

	authSvc, err := auth.NewService(cfg.Auth)
	if err != nil {
		return err
	}

	queue, err := openQueue(cfg.Queue)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			lg.Warn("关闭命令队列失败", slog.Any("error", err))
		}
	}()

	govOpts := []governance.Option{
		governance.WithIndicators(indicators),
		governance.WithAlertDispatcher(alerts),
		governance.WithVotingPowerCheck(cfg.Governance.VerifyVotingPower),
		governance.WithMinProposerReputation(cfg.Governance.MinProposerReputation),
		governance.WithMinArbitratorReputation(cfg.Governance.MinArbitratorReputation),
		governance.WithArbitrationVotingPeriod(cfg.Governance.ArbitrationVotingPeriod()),
	}
	if cfg.Governance.AsyncExecution {
		govOpts = append(govOpts, governance.WithDispatcher(dispatch.NewQueueDispatcher(queue)))
	}
	engine := governance.NewEngine(st.governance, st.registry, govOpts...)

	wallets := multisig.NewService(st.multisig, st.registry, chain,
		multisig.WithIndicators(indicators),
		multisig.WithAlertDispatcher(alerts),
		multisig.WithBroadcastTimeout(cfg.Web3.BroadcastTimeout()),
		multisig.WithKeyBinding(cfg.Multisig.RequireKeyBinding),
	)
	issuer := credential.NewIssuer(st.credential, leaves, st.registry, credential.WithIndicators(indicators))

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	go engine.RunSweeper(workerCtx, cfg.Governance.SweepInterval())

	processor := dispatch.NewProcessor(engine, queue, queue,
		dispatch.WithWorkerCount(cfg.Queue.Workers),
		dispatch.WithMaxAttempts(cfg.Queue.MaxAttempts),
		dispatch.WithAlertDispatcher(alerts),
	)
	go func() {
		if err := processor.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("执行命令处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.StartServer(workerCtx, cfg.Metrics.Address); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, api.Services{
		Governance:  engine,
		Multisig:    wallets,
		Credentials: issuer,
		Auth:        authSvc,
	}, api.WithTimeouts(cfg.Server.ReadTimeout(), cfg.Server.WriteTimeout()))

	lg.Info("registryd 已启动",
		slog.String("address", cfg.Server.Address),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("queue", cfg.Queue.Driver),
		slog.String("auth", string(authSvc.Mode())),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
