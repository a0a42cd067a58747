package cmd

import (
	"storycast/config"
	"storycast/logger"
	"storycast/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP service and job worker",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		srv := server.NewServer(cfg)
		if err := srv.Init(); err != nil {
			logger.Fatal("服务初始化失败", logger.ErrorField(err))
		}
		if err := srv.Start(); err != nil {
			logger.Fatal("服务运行失败", logger.ErrorField(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
