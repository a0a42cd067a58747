package cmd

import (
	"fmt"
	"os"

	"storycast/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "storycast",
	Short: "Audio program assembly service",
	Long: `storycast assembles spoken prompts, voice recordings and background
music into one mastered program file, publishes it to object storage and
tracks what was used so unchanged inputs never trigger a re-generation.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(os.Getenv("LOG_LEVEL")),
			OutputPath: os.Getenv("LOG_FILE"),
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	},
	Run: func(cmd *cobra.Command, args []string) {
		// 默认直接起服务
		serverCmd.Run(cmd, args)
	},
}

// Execute 命令入口
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
