package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"mindcare-go/internal/offline"

	"github.com/spf13/cobra"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Browse and cache self-help resources",
}

func printResources(resources []*offline.CachedResource, v any) error {
	return newPrinter(os.Stdout).print(v, func(w io.Writer) {
		if len(resources) == 0 {
			fmt.Fprintln(w, "No resources found.")
			return
		}
		fmt.Fprintln(w, "ID\tCATEGORY\tTYPE\tTITLE")
		for _, r := range resources {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Category, r.Type, r.Details().Title)
		}
	})
}

var resourcesListCmd = &cobra.Command{
	Use:   "list [CATEGORY]",
	Short: "List resources, optionally in one category",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var category string
		if len(args) > 0 {
			category = args[0]
		}
		refresh, _ := cmd.Flags().GetBool("refresh")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		list, err := a.Resources().GetResources(cmd.Context(), category, refresh)
		if err != nil {
			return err
		}
		return printResources(list.Resources, list)
	},
}

var resourcesGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		withMedia, _ := cmd.Flags().GetBool("media")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		res, err := a.Resources().GetResource(cmd.Context(), args[0], withMedia)
		if err != nil {
			return err
		}
		// Resource payloads are free-form; the full record is printed as JSON.
		return newPrinter(os.Stdout).print(res, nil)
	},
}

var resourcesPreloadCmd = &cobra.Command{
	Use:   "preload CATEGORY...",
	Short: "Download categories for offline use",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		withMedia, _ := cmd.Flags().GetBool("media")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		res := a.Resources().PreloadResources(cmd.Context(), args, withMedia)
		return newPrinter(os.Stdout).print(res, func(w io.Writer) {
			fmt.Fprintf(w, "Cached:\t%d resource(s)\n", res.TotalCached)
			fmt.Fprintf(w, "Media:\t%t\n", res.MediaIncluded)
			if res.Failed > 0 {
				fmt.Fprintf(w, "Failed:\t%d category(ies)\n", res.Failed)
			}
		})
	},
}

var resourcesSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search cached resources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		category, _ := cmd.Flags().GetString("category")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		found, err := a.Resources().SearchCached(cmd.Context(), args[0], category)
		if err != nil {
			return err
		}
		return printResources(found, found)
	},
}

var resourcesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache usage",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		st := a.Resources().StorageStats(cmd.Context())
		return newPrinter(os.Stdout).print(st, func(w io.Writer) {
			fmt.Fprintf(w, "Resources:\t%d\n", st.TotalResources)
			for category, n := range st.ByCategory {
				fmt.Fprintf(w, "  %s:\t%d\n", category, n)
			}
			fmt.Fprintf(w, "Media files:\t%d (%d bytes)\n", st.MediaFiles, st.MediaBytes)
			if !st.LastUpdated.IsZero() {
				fmt.Fprintf(w, "Last updated:\t%s\n", st.LastUpdated.Format(time.DateTime))
			}
		})
	},
}

var resourcesCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove resources and media not used recently",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		all, _ := cmd.Flags().GetBool("all")
		maxAge, _ := cmd.Flags().GetDuration("max-age")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		var res offline.ClearResult
		if all {
			res, err = a.Resources().ClearAll(cmd.Context())
		} else {
			res, err = a.Resources().ClearCache(cmd.Context(), maxAge)
		}
		if err != nil {
			return err
		}
		return newPrinter(os.Stdout).print(res, func(w io.Writer) {
			fmt.Fprintf(w, "Removed:\t%d resource(s), %d media file(s)\n", res.Resources, res.Media)
		})
	},
}

var resourcesMediaURLCmd = &cobra.Command{
	Use:   "media-url URL",
	Short: "Resolve a media URL to its cached copy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		u := a.Resources().GetCachedMediaURL(cmd.Context(), args[0])
		return newPrinter(os.Stdout).print(map[string]string{"url": u}, func(w io.Writer) {
			fmt.Fprintln(w, u)
		})
	},
}

func init() {
	resourcesCmd.AddCommand(resourcesListCmd)
	resourcesListCmd.Flags().BoolP("refresh", "r", false, "Ask the backend even in cache-first mode")

	resourcesCmd.AddCommand(resourcesGetCmd)
	resourcesGetCmd.Flags().Bool("media", false, "Also download the resource's media")

	resourcesCmd.AddCommand(resourcesPreloadCmd)
	resourcesPreloadCmd.Flags().Bool("media", false, "Also download media")

	resourcesCmd.AddCommand(resourcesSearchCmd)
	resourcesSearchCmd.Flags().StringP("category", "c", "", "Only search this category")

	resourcesCmd.AddCommand(resourcesStatsCmd)

	resourcesCmd.AddCommand(resourcesCleanCmd)
	resourcesCleanCmd.Flags().Duration("max-age", 0, "Remove entries older than this (default: configured resource and media max ages)")
	resourcesCleanCmd.Flags().Bool("all", false, "Clear the whole cache")

	resourcesCmd.AddCommand(resourcesMediaURLCmd)
}
