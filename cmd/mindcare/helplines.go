package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"mindcare-go/internal/offline"

	"github.com/spf13/cobra"
)

var helplinesCmd = &cobra.Command{
	Use:   "helplines",
	Short: "Find crisis and support helplines",
	Long:  "Find crisis and support helplines. The directory is available without a network connection.",
}

func printHelplines(entries []*offline.HelplineEntry) error {
	views := make([]offline.HelplineView, 0, len(entries))
	for _, e := range entries {
		views = append(views, offline.Format(e))
	}

	return newPrinter(os.Stdout).print(views, func(w io.Writer) {
		if len(views) == 0 {
			fmt.Fprintln(w, "No helplines found.")
			return
		}
		fmt.Fprintln(w, "NAME\tPHONE\tAVAILABLE\tLANGUAGES")
		for _, v := range views {
			name := v.Name
			if v.IsEmergency {
				name = "! " + name
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, v.FormattedPhone, v.Available, strings.Join(v.Languages, ", "))
		}
	})
}

var helplinesEmergencyCmd = &cobra.Command{
	Use:   "emergency",
	Short: "Show crisis helplines",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		country, _ := cmd.Flags().GetString("country")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		return printHelplines(a.Helplines().GetEmergencyHelplines(cmd.Context(), country))
	},
}

var helplinesLocationCmd = &cobra.Command{
	Use:   "location COUNTRY [STATE]",
	Short: "Show helplines for a country or state",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var state string
		if len(args) > 1 {
			state = args[1]
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		return printHelplines(a.Helplines().GetByLocation(cmd.Context(), args[0], state))
	},
}

var helplinesCategoryCmd = &cobra.Command{
	Use:   "category CATEGORY",
	Short: "Show helplines in a category (crisis, counseling, support)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		category, err := offline.ParseHelplineCategory(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		return printHelplines(a.Helplines().GetByCategory(cmd.Context(), category))
	},
}

var helplinesSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search helplines by name, description or service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		country, _ := cmd.Flags().GetString("country")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		return printHelplines(a.Helplines().Search(cmd.Context(), args[0], country))
	},
}

var helplinesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the helpline directory",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		st := a.Helplines().Statistics(cmd.Context())
		return newPrinter(os.Stdout).print(st, func(w io.Writer) {
			fmt.Fprintf(w, "Total:\t%d\n", st.Total)
			fmt.Fprintf(w, "24/7:\t%d\n", st.Available247)
			fmt.Fprintf(w, "Government:\t%d\n", st.Government)
			fmt.Fprintf(w, "Private:\t%d\n", st.Private)
			for country, n := range st.ByCountry {
				fmt.Fprintf(w, "  %s:\t%d\n", country, n)
			}
		})
	},
}

var helplinesUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Download the latest helpline directory",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		check, _ := cmd.Flags().GetBool("check")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		p := newPrinter(os.Stdout)
		if check {
			st, err := a.Helplines().CheckForUpdates(cmd.Context())
			if err != nil {
				return err
			}
			return p.print(st, func(w io.Writer) {
				fmt.Fprintf(w, "Needs update:\t%t\n", st.NeedsUpdate)
				if st.DaysSinceUpdate != nil {
					fmt.Fprintf(w, "Days since update:\t%d\n", *st.DaysSinceUpdate)
				}
			})
		}

		res, err := a.Helplines().UpdateDirectory(cmd.Context())
		if err != nil {
			return err
		}
		if res.Skipped != "" {
			return p.message("Update skipped: %s", res.Skipped)
		}
		return p.message("Downloaded %d helpline(s)", res.Entries)
	},
}

func init() {
	helplinesCmd.AddCommand(helplinesEmergencyCmd)
	helplinesEmergencyCmd.Flags().StringP("country", "c", "", "Country (default India)")

	helplinesCmd.AddCommand(helplinesLocationCmd)
	helplinesCmd.AddCommand(helplinesCategoryCmd)

	helplinesCmd.AddCommand(helplinesSearchCmd)
	helplinesSearchCmd.Flags().StringP("country", "c", "", "Only search this country")

	helplinesCmd.AddCommand(helplinesStatsCmd)

	helplinesCmd.AddCommand(helplinesUpdateCmd)
	helplinesUpdateCmd.Flags().Bool("check", false, "Only report whether an update is due")
}
