package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"beatvault/db"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `Check the Redis connection used by the index cache and the tick lease.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		client, err := db.ConnectRedis(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		key := "beatvault:healthcheck"
		if err := client.Set(cmd.Context(), key, time.Now().Format(time.RFC3339), time.Minute).Err(); err != nil {
			return fmt.Errorf("redis write failed: %w", err)
		}
		if err := client.Del(cmd.Context(), key).Err(); err != nil {
			return fmt.Errorf("redis delete failed: %w", err)
		}
		fmt.Fprintln(out, "Redis连接成功！")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
