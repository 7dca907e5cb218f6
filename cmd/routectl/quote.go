package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"route-aggregator/internal/types"
	"route-aggregator/internal/utils"
)

var (
	quoteFromChain   string
	quoteToChain     string
	quoteFromToken   string
	quoteToToken     string
	quoteFromAddress string
	quoteToAddress   string
	quoteSlippage    float64
	quoteHuman       bool
	quoteTimeout     time.Duration
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount>",
	Short: "Ask every enabled source for routes and print them ranked",
	Long: `Runs the full quote pipeline in-process: rate limiting, circuit breaking,
policy filtering and ranking. The amount is in base units unless --human is set,
in which case it is converted with the source token's known decimals.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quoteFromChain, "from-chain", "", "Source chain (e.g. 1, arbitrum, solana)")
	quoteCmd.Flags().StringVar(&quoteToChain, "to-chain", "", "Destination chain (defaults to --from-chain)")
	quoteCmd.Flags().StringVar(&quoteFromToken, "from-token", "", "Source token address")
	quoteCmd.Flags().StringVar(&quoteToToken, "to-token", "", "Destination token address")
	quoteCmd.Flags().StringVar(&quoteFromAddress, "from-address", "", "Sender address (some sources need it)")
	quoteCmd.Flags().StringVar(&quoteToAddress, "to-address", "", "Recipient address")
	quoteCmd.Flags().Float64Var(&quoteSlippage, "slippage", types.DefaultSlippageTolerance, "Slippage tolerance in percent")
	quoteCmd.Flags().BoolVar(&quoteHuman, "human", false, "Amount is in human units")
	quoteCmd.Flags().DurationVar(&quoteTimeout, "timeout", 30*time.Second, "Overall timeout")
	_ = quoteCmd.MarkFlagRequired("from-chain")
	_ = quoteCmd.MarkFlagRequired("from-token")
	_ = quoteCmd.MarkFlagRequired("to-token")
}

func runQuote(cmd *cobra.Command, args []string) error {
	jsonOutput := viper.GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	container, err := newContainer(cfg)
	if err != nil {
		return err
	}
	defer container.Stop()

	amount := args[0]
	if quoteHuman {
		decimals, ok := utils.GlobalChainRegistry.DecimalsOf(quoteFromChain, quoteFromToken)
		if !ok {
			return fmt.Errorf("decimals of %s on chain %s are unknown, pass the amount in base units", quoteFromToken, quoteFromChain)
		}
		base, err := utils.ToBaseUnits(amount, decimals)
		if err != nil {
			return err
		}
		amount = base.String()
	}
	toChain := quoteToChain
	if toChain == "" {
		toChain = quoteFromChain
	}

	req := types.QuoteRequest{
		FromChain:         quoteFromChain,
		ToChain:           toChain,
		FromToken:         quoteFromToken,
		ToToken:           quoteToToken,
		AmountIn:          amount,
		SlippageTolerance: &quoteSlippage,
		FromAddress:       quoteFromAddress,
		ToAddress:         quoteToAddress,
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), quoteTimeout)
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quotes..."
		s.Start()
	}
	resp, err := container.QuoteService.GetQuotes(ctx, req)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		return err
	}

	if jsonOutput {
		return printJSON(resp)
	}
	displayQuote(resp)
	return nil
}

func displayQuote(resp *types.QuoteResponse) {
	color.Green("\nRequest %s", resp.RequestID)

	if len(resp.Routes) == 0 {
		color.Yellow("\nNo routes available.")
	}
	for i, r := range resp.Routes {
		out := r.AmountOut
		if r.AmountOutFormatted != "" {
			out = fmt.Sprintf("%s (%s)", r.AmountOutFormatted, r.AmountOut)
		}
		fmt.Printf("\n%s %s  %s\n", color.CyanString("#%d", i+1), color.YellowString(r.Provider), r.Kind)
		fmt.Printf("  Amount out:   %s\n", out)
		if r.Fees != "" {
			fmt.Printf("  Fees:         %s\n", r.Fees)
		}
		if r.PriceImpactBps != nil {
			fmt.Printf("  Price impact: %.2f%%\n", float64(*r.PriceImpactBps)/100)
		}
		if r.ExecutionDuration > 0 {
			fmt.Printf("  Duration:     %ds\n", r.ExecutionDuration)
		}
		if len(r.ToolsUsed) > 0 {
			fmt.Printf("  Tools:        %s\n", strings.Join(r.ToolsUsed, ", "))
		}
		for _, w := range r.Warnings {
			fmt.Printf("  %s %s\n", color.YellowString("warning:"), w)
		}
		fmt.Printf("  %s\n", color.HiBlackString(r.RouteID))
	}

	if len(resp.FilteredRoutes) > 0 {
		color.Yellow("\nFiltered by policy:")
		for _, f := range resp.FilteredRoutes {
			fmt.Printf("  %s  %s\n", color.HiBlackString(f.RouteID), f.Reason)
		}
	}

	fmt.Println("\nSources:")
	for _, o := range resp.Sources {
		status := string(o.Status)
		switch o.Status {
		case types.SourceStatusOK:
			status = color.GreenString(status)
		case types.SourceStatusError:
			status = color.RedString("%s (%s)", status, o.ErrorClass)
		default:
			status = color.YellowString(status)
		}
		fmt.Printf("  %-10s %-28s routes=%d latency=%dms\n", o.Source, status, o.Routes, o.LatencyMs)
	}
	fmt.Println()
}
