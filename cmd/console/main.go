// オペレーターコンソールのエントリポイント。
// ブラウザからのAPIリクエストをingestion、brain、executionの各サービスに転送し、
// ログインとセッション管理を担当する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/sovrana/internal/config"
	"github.com/nao1215/sovrana/internal/console"
)

func main() {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "console",
		Short:         "Sovrana operator console gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("設定の読み込みに失敗: %w", err)
			}

			logger, err := cfg.Log.NewLogger(os.Stderr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server, err := console.NewServer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("コンソールサーバーの初期化に失敗: %w", err)
			}
			defer func() {
				if err := server.Close(); err != nil {
					logger.Error().Err(err).Msg("データベースのクローズに失敗")
				}
			}()

			return server.Run(ctx)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "設定ファイルのパス（TOML）")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		os.Exit(1)
	}
}
