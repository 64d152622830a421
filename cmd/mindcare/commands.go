package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/MattCruikshank/mindcare/internal/booking"
	"github.com/MattCruikshank/mindcare/internal/chat"
	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (o *options) requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the support assistant",
		Long:  "With a message, sends it and prints the answer. Without one, starts a conversation read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			api := opts.api()
			out := cmd.OutOrStdout()
			ask := func(msg string) {
				ctx, cancel := opts.requestContext(cmd)
				defer cancel()
				// Failures still yield a readable answer.
				answer, _ := api.Chat(ctx, msg)
				fmt.Fprintf(out, "assistant: %s\n", answer)
			}

			if len(args) > 0 {
				ask(strings.Join(args, " "))
				return nil
			}

			fmt.Fprintf(out, "assistant: %s\n", chat.WelcomeMessage)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "you: ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				msg := strings.TrimSpace(scanner.Text())
				if msg == "" {
					continue
				}
				if msg == "quit" || msg == "exit" {
					return nil
				}
				ask(msg)
			}
		},
	}
}

func newScreenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "screen phq9|gad7",
		Short:     "Take a PHQ-9 or GAD-7 self-assessment",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(models.ScreeningPHQ9), string(models.ScreeningGAD7)},
		RunE: func(cmd *cobra.Command, args []string) error {
			api := opts.api()
			out := cmd.OutOrStdout()

			ctx, cancel := opts.requestContext(cmd)
			bank, err := api.QuestionBank(ctx, models.ScreeningType(args[0]))
			cancel()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "%s\nOver the last 2 weeks, how often have you been bothered by:\n", bank.Title)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			answers := make([]int, 0, len(bank.Questions))
			for i, q := range bank.Questions {
				answer, err := askOption(scanner, out, i+1, q, bank.Options)
				if err != nil {
					return err
				}
				answers = append(answers, answer)
			}

			ctx, cancel = opts.requestContext(cmd)
			defer cancel()
			result, err := api.SubmitScreening(ctx, bank.Type, answers)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nScore: %d (%s)\n%s\n", result.Total, result.Severity, result.Feedback)
			if result.FollowUp != "" {
				fmt.Fprintln(out, result.FollowUp)
			}
			return nil
		},
	}
}

func askOption(scanner *bufio.Scanner, out io.Writer, n int, question string, options []string) (int, error) {
	for {
		fmt.Fprintf(out, "\n%d. %s\n", n, question)
		for i, o := range options {
			fmt.Fprintf(out, "   %d) %s\n", i, o)
		}
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return 0, err
			}
			return 0, io.ErrUnexpectedEOF
		}
		v, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err == nil && v >= 0 && v < len(options) {
			return v, nil
		}
		fmt.Fprintf(out, "Please answer 0-%d.\n", len(options)-1)
	}
}

func newResourcesCmd(opts *options) *cobra.Command {
	var f models.ResourceFilter
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Browse the self-help resource library",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.requestContext(cmd)
			defer cancel()
			resources, err := opts.api().Resources(ctx, f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(resources) == 0 {
				fmt.Fprintln(out, "No resources match.")
				return nil
			}
			for _, r := range resources {
				fmt.Fprintf(out, "[%d] %s (%s, %s, %s) %.1f\n", r.ID, r.Title, r.Category, r.Type, r.Language, r.Rating)
				fmt.Fprintf(out, "     %s\n", r.Description)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Category, "category", "", "filter by category")
	cmd.Flags().StringVar(&f.Language, "language", "", "filter by language")
	cmd.Flags().StringVarP(&f.Search, "search", "q", "", "search titles and descriptions")
	return cmd
}

func newCounselorsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "counselors",
		Short: "List counselors",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.requestContext(cmd)
			defer cancel()
			counselors, err := opts.api().Counselors(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range counselors {
				fmt.Fprintf(out, "[%d] %s, %s (%s, rating %.1f)\n", c.ID, c.Name, c.Specialization, c.Experience, c.Rating)
				fmt.Fprintf(out, "     languages: %s; available %s\n", strings.Join(c.Languages, ", "), strings.Join(c.Availability, ", "))
			}
			return nil
		},
	}
}

func newSlotsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "slots <counselor-id> <YYYY-MM-DD>",
		Short: "Show a counselor's free session times on a day",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid counselor id %q", args[0])
			}
			ctx, cancel := opts.requestContext(cmd)
			defer cancel()
			slots, err := opts.api().Slots(ctx, id, args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range slots {
				state := "free"
				if !s.Available {
					state = "booked"
				}
				fmt.Fprintf(out, "%s  %s\n", s.Time, state)
			}
			return nil
		},
	}
}

func newCalendarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calendar [YYYY-MM]",
		Short: "Print a month to pick a booking date from",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			month := booking.MonthOf(now)
			if len(args) == 1 {
				t, err := time.Parse("2006-01", args[0])
				if err != nil {
					return fmt.Errorf("invalid month %q, want YYYY-MM", args[0])
				}
				month = booking.MonthOf(t)
			}
			printMonth(cmd.OutOrStdout(), month, now)
			return nil
		},
	}
}

// printMonth renders a calendar page. Past days are shown in brackets.
func printMonth(out io.Writer, m booking.Month, now time.Time) {
	fmt.Fprintf(out, "%s\n", m)
	fmt.Fprintln(out, " Sun  Mon  Tue  Wed  Thu  Fri  Sat")
	col := int(m.FirstWeekday())
	fmt.Fprint(out, strings.Repeat("     ", col))
	for day := 1; day <= m.Days(); day++ {
		d := time.Date(m.Year, m.Month, day, 0, 0, 0, 0, now.Location())
		if booking.IsPast(d, now) {
			fmt.Fprintf(out, " [%2d]", day)
		} else {
			fmt.Fprintf(out, "  %2d ", day)
		}
		col++
		if col == 7 {
			fmt.Fprintln(out)
			col = 0
		}
	}
	if col != 0 {
		fmt.Fprintln(out)
	}
}

func newBookCmd(opts *options) *cobra.Command {
	var req booking.Request
	cmd := &cobra.Command{
		Use:   "book <counselor-id> <YYYY-MM-DD> <HH:MM>",
		Short: "Book a counselor session",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid counselor id %q", args[0])
			}
			req.CounselorID = id
			req.Date = args[1]
			req.Time = args[2]
			if req.Name == "" {
				req.Name = opts.name
			}

			ctx, cancel := opts.requestContext(cmd)
			defer cancel()
			b, err := opts.api().Book(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Booked session #%d on %s at %s.\n", b.ID, b.Date, b.Time)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Name, "for", "", "name on the booking (defaults to --name)")
	cmd.Flags().StringVar(&req.Contact, "contact", "", "phone or email")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "anything the counselor should know")
	return cmd
}

func newAnalyticsCmd(opts *options) *cobra.Command {
	var user, password string
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show the admin dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			api := opts.api()
			ctx, cancel := opts.requestContext(cmd)
			defer cancel()
			if err := api.AdminLogin(ctx, user, password); err != nil {
				return err
			}
			a, err := api.Analytics(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			row := func(label string, n int) {
				fmt.Fprintf(out, "%-22s %s\n", label, humanize.Comma(int64(n)))
			}
			row("Total users", a.TotalUsers)
			row("Active sessions", a.ActiveSessions)
			row("Completed screenings", a.CompletedScreenings)
			row("Counselor bookings", a.CounselorBookings)
			row("Forum posts", a.ForumPosts)
			row("Crisis interventions", a.CrisisInterventions)
			for _, alert := range a.Alerts {
				fmt.Fprintf(out, "\n[%s] %s\n  %s\n", strings.ToUpper(alert.Level), alert.Title, alert.Details)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "admin", "admin user")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.MarkFlagRequired("password")
	return cmd
}
