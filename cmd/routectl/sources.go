package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"route-aggregator/internal/sources"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Show which quote sources are enabled and why",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		descs := sources.Build(cfg, quietLogrus()).Describe()
		if viper.GetBool("json") {
			return printJSON(descs)
		}

		fmt.Println()
		color.Green("%-10s %-22s %-9s %-8s %-10s %s", "ID", "NAME", "STATE", "TIMEOUT", "SCOPE", "CHAINS")
		for _, d := range descs {
			fmt.Printf("%-10s %-22s %-18s %-8s %-10s %s\n",
				d.ID, d.Name, sourceState(d), fmt.Sprintf("%dms", d.TimeoutMs), sourceScope(d.Capabilities), chainList(d.Capabilities))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

// sourceState pads before coloring so escape codes do not break the columns.
func sourceState(d sources.Descriptor) string {
	switch {
	case d.Enabled:
		return color.GreenString("%-9s", "enabled")
	case d.Disabled:
		return color.HiBlackString("%-9s", "disabled")
	default:
		return color.YellowString("%-9s", "no-key")
	}
}

func sourceScope(c sources.Capabilities) string {
	switch {
	case c.SameChain && c.CrossChain:
		return "swap+bridge"
	case c.CrossChain:
		return "bridge"
	default:
		return "swap"
	}
}

func chainList(c sources.Capabilities) string {
	if len(c.Chains) == 0 {
		return "any"
	}
	return strings.Join(c.Chains, ",")
}
