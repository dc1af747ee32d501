package cmd

import (
	"fmt"
	"time"

	"souniq-server/config"
	"souniq-server/store"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "清理超过保留期的失败任务记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		config.InitConfig(cfgFile)
		cfg := config.AppConfig

		st, err := store.Connect(cfg.MySQL.DSN)
		if err != nil {
			return fmt.Errorf("数据库连接失败: %w", err)
		}

		cutoff := time.Now().Add(-cfg.TaskRetention())
		n, err := st.SweepFailedTasks(cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("已清理 %d 条失败任务记录\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
