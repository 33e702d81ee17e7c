package cmd

import (
	"fmt"

	"github.com/mezonai/devnode/logx"
	"github.com/mezonai/devnode/store"

	"github.com/spf13/cobra"
)

type TruncateConfig struct {
	Blocks          uint64
	Finalize        bool
	StoreType       string
	TruncateDataDir string
}

var truncateConfig TruncateConfig

var truncateCmd = &cobra.Command{
	Use:   "truncate [flags]",
	Short: "Remove the newest blocks from a stopped node's store",
	Long: `This command removes the top N blocks from a persisted chain
Examples:
  # Drop the last 10 blocks and finalize the new head
  truncate -n 10 -d ./node-data
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		head, err := truncateBlockchain(truncateConfig)
		if err != nil {
			logx.Error("TRUNCATE", err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "head is now block %d\n", head)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(truncateCmd)
	truncateCmd.Flags().Uint64VarP(&truncateConfig.Blocks, "blocks", "n", 1, "number of blocks to remove")
	truncateCmd.Flags().BoolVar(&truncateConfig.Finalize, "finalize", true, "mark the new head as finalized")
	truncateCmd.Flags().StringVar(&truncateConfig.StoreType, "store", string(store.LevelDBStoreType), "store type: leveldb or rocksdb")
	truncateCmd.Flags().StringVarP(&truncateConfig.TruncateDataDir, "data-dir", "d", "./node-data", "store directory")
}

func truncateBlockchain(tc TruncateConfig) (uint64, error) {
	bs, err := store.CreateBlockStore(&store.StoreConfig{
		Type:      store.StoreType(tc.StoreType),
		Directory: tc.TruncateDataDir,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to open block store: %w", err)
	}
	defer bs.MustClose()

	head, ok := bs.BestNumber()
	if !ok {
		return 0, store.ErrEmptyStore
	}
	logx.Info("TRUNCATE", fmt.Sprintf("Block store opened | head=%d | finalized=%d", head, bs.LatestFinalized()))

	if err := bs.Revert(tc.Blocks, tc.Finalize); err != nil {
		return 0, err
	}

	head, _ = bs.BestNumber()
	return head, nil
}
