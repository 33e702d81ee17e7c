package cmd

import (
	"fmt"
	"io"

	"github.com/mezonai/devnode/fees"

	"github.com/spf13/cobra"
)

type FeeCmdConfig struct {
	FeesPath  string
	RefTime   uint64
	ProofSize uint64
	Fee       uint64
}

var feeCmdConfig FeeCmdConfig

var feeCmd = &cobra.Command{
	Use:   "fee",
	Short: "Convert between weight and fee",
	Long: `Prints the fee charged for a weight, or the weight a fee buys.
Examples:
  fee --ref-time 1000000000 --proof-size 1000000
  fee --fee 10000000 --fees ./fees.ini
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		feeCfg, err := loadFeeConfig(feeCmdConfig.FeesPath)
		if err != nil {
			return err
		}
		conv, err := feeCfg.Converter()
		if err != nil {
			return err
		}
		printFeeConversion(cmd.OutOrStdout(), conv, feeCmdConfig, cmd.Flags().Changed("fee"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(feeCmd)
	feeCmd.Flags().StringVar(&feeCmdConfig.FeesPath, "fees", "", "fee and block limit config (ini)")
	feeCmd.Flags().Uint64Var(&feeCmdConfig.RefTime, "ref-time", 0, "ref_time of the weight")
	feeCmd.Flags().Uint64Var(&feeCmdConfig.ProofSize, "proof-size", 0, "proof_size of the weight")
	feeCmd.Flags().Uint64Var(&feeCmdConfig.Fee, "fee", 0, "fee to convert back to weight")
}

func printFeeConversion(w io.Writer, conv *fees.BlockRatioFee, fc FeeCmdConfig, toWeight bool) {
	if toWeight {
		weight := conv.FeeToWeight(fc.Fee)
		fmt.Fprintf(w, "fee %d buys ref_time=%d proof_size=%d\n", fc.Fee, weight.RefTime, weight.ProofSize)
		return
	}
	fee := conv.WeightToFee(fees.Weight{RefTime: fc.RefTime, ProofSize: fc.ProofSize})
	fmt.Fprintf(w, "weight ref_time=%d proof_size=%d costs %s\n", fc.RefTime, fc.ProofSize, fee.Dec())
	fmt.Fprintf(w, "ref_time coefficient %s, proof_size coefficient %s\n", conv.RefTimeToFee(), conv.ProofSizeToFee())
}
