package cmd

import (
	"fmt"

	"storycast/config"
	"storycast/storage"

	"github.com/spf13/cobra"
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Check object storage connectivity",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := storage.InitMinio(cfg); err != nil {
			fmt.Printf("MinIO初始化失败: %v\n", err)
			return
		}
		if err := storage.TestMinioConnection(cfg); err != nil {
			fmt.Printf("MinIO连接测试失败: %v\n", err)
			return
		}
		fmt.Printf("MinIO连接正常 (%s, bucket=%s)\n", cfg.MinioEndpoint, cfg.MinioBucket)
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
}
