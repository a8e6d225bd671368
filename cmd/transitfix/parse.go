package main

import (
	"fmt"
	"time"

	"github.com/Veraticus/transitfix/internal/cli"
	"github.com/Veraticus/transitfix/internal/config"
	"github.com/Veraticus/transitfix/internal/transit"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse MESSAGE",
		Short: "Parse an in-transit status message",
		Long: `Print the check-in time, origin and destination parsed from a status
message, exactly as a run would read them. Useful when a run excludes an
item as unparseable.`,
		Example: `  transitfix parse "Fri Mar 01 2024 10:15AM: IN TRANSIT from mainstaff to Branch B"`,
		Args:    cobra.ExactArgs(1),
		RunE:    runParse,
	}

	cmd.Flags().String("timezone", "", "Timezone of the message timestamp (default: reconcile.timezone)")

	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	tz, _ := cmd.Flags().GetString("timezone")
	if tz == "" {
		tz = viper.GetString("reconcile.timezone")
	}
	if tz == "" {
		tz = config.DefaultTimezone
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("unknown timezone %q: %w", tz, err)
	}

	msg, err := transit.Parse(args[0], loc)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderMessage(msg))
	return nil
}
