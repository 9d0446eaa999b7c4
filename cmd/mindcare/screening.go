package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"mindcare-go/internal/offline"

	"github.com/spf13/cobra"
)

var screeningCmd = &cobra.Command{
	Use:   "screening",
	Short: "Submit and review screenings",
}

var screeningSubmitCmd = &cobra.Command{
	Use:   "submit [QUESTION=ANSWER ...]",
	Short: "Submit a completed screening",
	Long: `Submit a completed screening. Answers are given as QUESTION=ANSWER pairs,
or as a JSON screening with --file. When the backend cannot be reached the
screening is saved locally and synced later.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		s, err := screeningFromFlags(cmd, args)
		if err != nil {
			return err
		}
		user, _ := cmd.Flags().GetString("user")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		res, err := a.Screening().Submit(cmd.Context(), s, user)
		if err != nil {
			return fmt.Errorf("submitting screening: %w", err)
		}

		return newPrinter(os.Stdout).print(res, func(w io.Writer) {
			fmt.Fprintf(w, "%s\n", res.Message)
			fmt.Fprintf(w, "ID:\t%s\n", res.ID)
			fmt.Fprintf(w, "Offline:\t%t\n", res.Offline)
		})
	},
}

// screeningFromFlags builds a screening from --file or from answer pairs.
func screeningFromFlags(cmd *cobra.Command, args []string) (offline.Screening, error) {
	var s offline.Screening

	if path, _ := cmd.Flags().GetString("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("reading screening file: %w", err)
		}
		if err := json.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parsing screening file: %w", err)
		}
	} else {
		answers, err := parseAnswers(args)
		if err != nil {
			return s, err
		}
		s.Answers = answers
	}

	if t, _ := cmd.Flags().GetString("type"); t != "" {
		s.Type = t
	}
	if s.Type == "" {
		s.Type = offline.DefaultScreeningType
	}
	if cmd.Flags().Changed("score") {
		score, _ := cmd.Flags().GetInt("score")
		s.Score = &score
	}
	if interp, _ := cmd.Flags().GetString("interpretation"); interp != "" {
		s.Interpretation = interp
	}
	if len(s.Answers) == 0 {
		return s, fmt.Errorf("no answers given")
	}
	return s, nil
}

// parseAnswers turns QUESTION=ANSWER pairs into an answer map. Integer
// answers are kept as numbers.
func parseAnswers(args []string) (map[string]any, error) {
	answers := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid answer %q, want QUESTION=ANSWER", arg)
		}
		if n, err := strconv.Atoi(v); err == nil {
			answers[k] = n
		} else {
			answers[k] = v
		}
	}
	return answers, nil
}

var screeningHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "View screening history",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		user, _ := cmd.Flags().GetString("user")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		h := a.Screening().GetHistory(cmd.Context(), user)

		return newPrinter(os.Stdout).print(h, func(w io.Writer) {
			if len(h.Entries) == 0 {
				fmt.Fprintln(w, "No screenings recorded.")
				return
			}
			if h.OfflineOnly {
				fmt.Fprintln(w, "Showing local history only.")
			}
			fmt.Fprintln(w, "WHEN\tTYPE\tSCORE\tSTATUS\tLOCAL")
			for _, e := range h.Entries {
				score := "-"
				if e.Score != nil {
					score = strconv.Itoa(*e.Score)
				}
				local := ""
				if e.Offline {
					local = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					time.UnixMilli(e.Timestamp).Format("2006-01-02 15:04"),
					e.Type, score, e.Status, local)
			}
		})
	},
}

var screeningQuestionsCmd = &cobra.Command{
	Use:   "questions [TYPE]",
	Short: "Show a screening questionnaire",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		screeningType := offline.DefaultScreeningType
		if len(args) > 0 {
			screeningType = args[0]
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		q := a.Screening().GetQuestions(cmd.Context(), screeningType)
		// The questionnaire is free-form JSON; it is always printed as is.
		return newPrinter(os.Stdout).print(q, nil)
	},
}

var screeningStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "View pending screenings and sync timing",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		st := a.Screening().SyncStatus(cmd.Context())
		online := a.Online()

		return newPrinter(os.Stdout).print(st, func(w io.Writer) {
			fmt.Fprintf(w, "Online:\t%t\n", online)
			fmt.Fprintf(w, "Pending:\t%d\n", st.PendingCount)
			fmt.Fprintf(w, "Sync in progress:\t%t\n", st.InProgress)
			if st.LastSyncAttempt != nil {
				fmt.Fprintf(w, "Last attempt:\t%s\n", st.LastSyncAttempt.Format(time.DateTime))
			}
		})
	},
}

var screeningClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete local screenings the server already holds",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		includeFailed, _ := cmd.Flags().GetBool("failed")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		n, err := a.Screening().ClearOfflineData(cmd.Context(), !includeFailed)
		if err != nil {
			return err
		}
		return newPrinter(os.Stdout).message("Removed %d local screening(s)", n)
	},
}

func init() {
	screeningCmd.AddCommand(screeningSubmitCmd)
	screeningSubmitCmd.Flags().StringP("type", "t", "", "Screening type (default phq9)")
	screeningSubmitCmd.Flags().StringP("user", "u", "", "User ID (anonymous when empty)")
	screeningSubmitCmd.Flags().Int("score", 0, "Total score")
	screeningSubmitCmd.Flags().String("interpretation", "", "Score interpretation")
	screeningSubmitCmd.Flags().StringP("file", "f", "", "Read the screening from a JSON file")

	screeningCmd.AddCommand(screeningHistoryCmd)
	screeningHistoryCmd.Flags().StringP("user", "u", "", "Only show this user's screenings")

	screeningCmd.AddCommand(screeningQuestionsCmd)
	screeningCmd.AddCommand(screeningStatusCmd)

	screeningCmd.AddCommand(screeningClearCmd)
	screeningClearCmd.Flags().Bool("failed", false, "Also remove screenings that failed to sync")
}
