// CRM連携ゲートウェイのエントリポイント。
// OAuth2トークンの検証、連絡先APIの中継、Webhookの受信を担当する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nao1215/crmgate/internal/config"
	"github.com/nao1215/crmgate/internal/gateway"
	"github.com/nao1215/crmgate/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Gatewayサービスの起動に失敗: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := gateway.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("Gatewayサーバーの初期化に失敗", zap.Error(err))
		return err
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.Warn("リソースの解放に失敗", zap.Error(err))
		}
	}()

	logger.Info("Gatewayサービスを起動します",
		zap.String("port", cfg.Port),
		zap.String("environment", cfg.Environment),
	)
	return server.Run(ctx)
}
