// Package logging はサービス全体で使用するzapロガーを生成する。
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvironmentProduction は本番環境を表す環境名。
const EnvironmentProduction = "production"

// New はログレベルlevelと環境名environmentに応じたロガーを生成する。
// 本番環境ではJSON形式、それ以外では人が読みやすいコンソール形式で出力する。
func New(level, environment string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("ログレベルが不正です: %q: %w", level, err)
	}

	var cfg zap.Config
	if environment == EnvironmentProduction {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("ロガーの生成に失敗: %w", err)
	}
	return logger.With(zap.String("service", "crmgate")), nil
}
