package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"beatvault/storage"
)

var (
	bucketPrefix    string
	bucketStats     bool
	bucketRecursive bool
)

var bucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "存储桶查看",
	Long:  `List objects in the configured bucket, print statistics, or show the key tree.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			objects, stats, err := storage.Inspect(cmd.Context(), a.bucket, bucketPrefix)
			if err != nil {
				return fmt.Errorf("list bucket: %w", err)
			}

			out := cmd.OutOrStdout()
			switch {
			case bucketStats:
				storage.PrintStats(out, stats)
			case bucketRecursive:
				storage.PrintTree(out, objects)
			default:
				for _, obj := range objects {
					fmt.Fprintf(out, "%-60s %10s  %s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04:05"))
				}
				fmt.Fprintf(out, "\n%d objects\n", len(objects))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(bucketCmd)

	bucketCmd.Flags().StringVarP(&bucketPrefix, "prefix", "p", "", "按前缀过滤文件")
	bucketCmd.Flags().BoolVarP(&bucketStats, "stats", "s", false, "显示存储桶统计信息")
	bucketCmd.Flags().BoolVarP(&bucketRecursive, "recursive", "r", false, "递归显示目录结构")

	bucketCmd.Example = `  # 列出所有文件
  beatvault bucket

  # 显示 metadata/ 下的统计信息
  beatvault bucket -s -p "metadata/"

  # 递归显示目录结构
  beatvault bucket -r -p "tracks/"`
}
