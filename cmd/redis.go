package cmd

import (
	"fmt"

	"storycast/cache"
	"storycast/config"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Check Redis connectivity",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := cache.ConnectRedis(cfg); err != nil {
			fmt.Printf("Redis连接失败: %v\n", err)
			return
		}
		defer cache.CloseRedis()

		if err := cache.TestRedis(); err != nil {
			fmt.Printf("Redis读写测试失败: %v\n", err)
			return
		}
		fmt.Printf("Redis连接正常 (%s:%s)\n", cfg.RedisHost, cfg.RedisPort)
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
