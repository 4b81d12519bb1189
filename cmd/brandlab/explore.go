package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/brandlab/internal/app/exploration"
	"github.com/PabloGalante/brandlab/internal/demo"
	"github.com/PabloGalante/brandlab/internal/domain"
	"github.com/PabloGalante/brandlab/internal/observability"
)

var exploreCmd = &cobra.Command{
	Use:   "explore <item-type> <item-id>",
	Short: "Run an exploration interactively in the terminal",
	Long: `explore starts (or resumes) a session for one item and reads answers from
stdin, one line per answer. Once every dimension is answered the session is
completed and the insight report is printed.

Without flags it runs against the demo items with the mock backend, e.g.:

  brandlab explore persona persona-ops-lead`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// The terminal is the UI; keep it free of log lines.
		observability.Discard()

		scope, _ := cmd.Flags().GetString("scope")
		app, err := newApplication(cmd.Context(), cfg, observability.Logger())
		if err != nil {
			return err
		}
		defer app.Close()

		return runExplore(cmd.Context(), app.svc, exploration.StartSessionInput{
			ItemType: domain.ItemKind(args[0]),
			ItemID:   domain.ItemID(args[1]),
			ScopeID:  domain.ScopeID(scope),
		}, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	exploreCmd.Flags().String("scope", string(demo.Scope), "scope the item belongs to")
	rootCmd.AddCommand(exploreCmd)
}

// runExplore drives one session from in to out.
func runExplore(ctx context.Context, svc *exploration.Service, start exploration.StartSessionInput, in io.Reader, out io.Writer) error {
	view, err := svc.StartSession(ctx, start)
	if err != nil {
		return err
	}
	for _, m := range view.Messages {
		printMessage(out, m)
	}

	session := view.Session
	scanner := bufio.NewScanner(in)
	for session.Status == domain.StatusInProgress && session.AnsweredQuestions < session.TotalQuestions {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out, "\nSession saved; run the same command to resume.")
			return scanner.Err()
		}
		answer := strings.TrimSpace(scanner.Text())
		if answer == "" {
			continue
		}

		res, err := svc.SubmitAnswer(ctx, exploration.SubmitAnswerInput{SessionID: session.ID, Content: answer})
		if err != nil {
			return err
		}
		printMessage(out, res.Feedback)
		if res.NextQuestion != nil {
			printMessage(out, res.NextQuestion)
		}
		fmt.Fprintf(out, "[%d/%d answered, %d%%]\n", res.AnsweredQuestions, res.TotalQuestions, res.Progress)
		session = res.Session
	}

	if session.Status == domain.StatusInProgress {
		if err := svc.CompleteSession(ctx, session.ID); err != nil {
			return err
		}
	}
	if session.Status != domain.StatusReportReady {
		fmt.Fprintln(out, "Generating report...")
		if err := svc.GenerateReport(ctx, session.ID); err != nil {
			return err
		}
		svc.Wait()
	}

	final, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		return err
	}
	switch final.Session.Status {
	case domain.StatusReportReady:
		printReport(out, final.Session.Report)
		return nil
	case domain.StatusError:
		return fmt.Errorf("report failed: %s", final.Session.LastError)
	default:
		return fmt.Errorf("session ended in %s", final.Session.Status)
	}
}

func printMessage(out io.Writer, m *domain.ExplorationMessage) {
	switch m.Type {
	case domain.MessageSystemIntro:
		fmt.Fprintf(out, "\n%s\n\n", m.Content)
	case domain.MessageAIQuestion:
		fmt.Fprintf(out, "Q: %s\n", m.Content)
	case domain.MessageUserAnswer:
		fmt.Fprintf(out, "A: %s\n", m.Content)
	case domain.MessageAIFeedback:
		fmt.Fprintf(out, "   %s\n", m.Content)
	}
}

func printReport(out io.Writer, r *domain.InsightReport) {
	if r == nil {
		return
	}
	fmt.Fprintf(out, "\n== Insight report (%s) ==\n\n%s\n", r.CompletedAt.Format(time.RFC1123), r.ExecutiveSummary)

	fmt.Fprintln(out, "\nFindings")
	for _, f := range r.Findings {
		fmt.Fprintf(out, "  - %s: %s\n", f.Title, f.Description)
	}
	if len(r.Recommendations) > 0 {
		fmt.Fprintln(out, "\nRecommendations")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(out, "  %d. [%s] %s: %s\n", rec.Number, rec.Priority, rec.Title, rec.Description)
		}
	}
	if len(r.FieldSuggestions) > 0 {
		fmt.Fprintln(out, "\nSuggested field changes")
		for _, s := range r.FieldSuggestions {
			fmt.Fprintf(out, "  %s: %q -> %q (%s)\n", s.Label, s.CurrentValue, s.SuggestedValue, s.Reason)
		}
	}
	fmt.Fprintf(out, "\nResearch boost: +%d%%\n", r.ResearchBoostPercentage)
}
