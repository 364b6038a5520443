package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/AIVisibility/internal/config"
	"github.com/TobiSchelling/AIVisibility/internal/database"
	"github.com/TobiSchelling/AIVisibility/internal/functions"
	"github.com/TobiSchelling/AIVisibility/internal/onboarding"
	"github.com/TobiSchelling/AIVisibility/internal/poll"
	"github.com/TobiSchelling/AIVisibility/internal/sourcemeta"
	"github.com/TobiSchelling/AIVisibility/internal/visibility"
)

var companyID string

func init() {
	for _, cmd := range []*cobra.Command{dashboardCmd, competitorsCmd, promptsCmd, sourcesCmd} {
		cmd.PersistentFlags().StringVar(&companyID, "company", "", "Company id")
		cmd.MarkPersistentFlagRequired("company")
	}

	dashboardCmd.Flags().StringVar(&dashboardPeriod, "period", "", "Window: today, 7_days, 14_days or 30_days")

	competitorsAddCmd.Flags().StringVar(&competitorWebsite, "website", "", "Competitor website")
	competitorsCmd.AddCommand(competitorsListCmd, competitorsAddCmd, competitorsApproveCmd, competitorsRemoveCmd)

	promptsAddCmd.Flags().StringVar(&promptCountry, "country", "", "Country code the prompt targets")
	promptsCmd.AddCommand(promptsListCmd, promptsAddCmd, promptsRemoveCmd)

	sourcesListCmd.Flags().StringVar(&sourcesPeriod, "period", "", "Window: today, 7_days, 14_days or 30_days")
	sourcesFetchCmd.Flags().IntVar(&sourcesLimit, "limit", 50, "Maximum number of sources to fetch")
	sourcesCmd.AddCommand(sourcesListCmd, sourcesFetchCmd)

	onboardCmd.Flags().StringVar(&onboardUser, "user", "", "User id running the onboarding (required)")
	onboardCmd.Flags().StringVar(&onboardCompany, "resume", "", "Resume the onboarding of an existing company")
	onboardCmd.Flags().StringVar(&onboardReq.CompanyName, "name", "", "Company name")
	onboardCmd.Flags().StringVar(&onboardReq.CompanyDomain, "domain", "", "Company domain")
	onboardCmd.Flags().StringVar(&onboardReq.CompanyCountry, "country", "", "Company country code")
	onboardCmd.Flags().StringVar(&onboardSearchCountry, "search-country", "", "Country to optimize search visibility for")
	onboardCmd.Flags().StringVar(&onboardGoal, "goal", "", "What the company wants to be found for (required)")
	onboardCmd.MarkFlagRequired("user")
	onboardCmd.MarkFlagRequired("goal")

	rootCmd.AddCommand(dashboardCmd, competitorsCmd, promptsCmd, sourcesCmd, onboardCmd)
}

// --- dashboard command ---

var dashboardPeriod string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Print the visibility leaderboard of a company",
	RunE: func(cmd *cobra.Command, args []string) error {
		period, err := visibility.ParsePeriod(dashboardPeriod)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.analytics.Dashboard(cmd.Context(), companyID, period)
		if err != nil {
			return err
		}

		fmt.Printf("%s, %s since %s\n", d.CompanyName, period, d.Since.In(cfg.Location()).Format("2006-01-02"))
		fmt.Printf("  Responses: %d\n", d.TotalResponses)
		fmt.Printf("  Competitors tracked: %d\n", d.CompetitorsTracked)
		fmt.Printf("  Visibility: %d%%\n", d.OverallVisibilityRate)
		if d.OverallRank > 0 {
			fmt.Printf("  Industry rank: #%d\n", d.OverallRank)
		}
		if d.Degraded {
			fmt.Println("  (some data could not be loaded)")
		}
		if len(d.Leaderboard) == 0 {
			fmt.Println("\nNo analysed responses in this period.")
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tNAME\tVISIBILITY\tAVG POSITION\tSENTIMENT")
		for _, e := range d.Leaderboard {
			name := e.Name
			if e.IsSelf {
				name += " (you)"
			}
			pos := "-"
			if e.AvgPosition != nil {
				pos = strconv.FormatFloat(*e.AvgPosition, 'f', 1, 64)
			}
			sentiment := string(e.Sentiment)
			if sentiment == "" {
				sentiment = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%d%%\t%s\t%s\n", e.Rank, name, e.VisibilityPct, pos, sentiment)
		}
		return w.Flush()
	},
}

// --- competitors command group ---

var competitorWebsite string

var competitorsCmd = &cobra.Command{
	Use:   "competitors",
	Short: "Manage the competitor roster",
}

var competitorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List competitors, including pending suggestions",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rows, err := db.ListCompetitors(cmd.Context(), companyID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No competitors.")
			return nil
		}
		for _, c := range rows {
			status := "approved"
			if !c.Approved {
				status = "pending"
			}
			website := ""
			if c.Website != nil {
				website = " " + *c.Website
			}
			fmt.Printf("  %d. [%s] %s%s\n", c.ID, status, c.Name, website)
		}
		return nil
	},
}

var competitorsAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add an approved competitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if name == "" {
			return fmt.Errorf("competitor name is required")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		existing, err := db.FindCompetitorByName(cmd.Context(), companyID, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("competitor %q already exists (id %d)", name, existing.ID)
		}

		c := database.Competitor{Name: name, Approved: true, CompanyID: companyID}
		if competitorWebsite != "" {
			site := visibility.EnsureScheme(competitorWebsite)
			c.Website = &site
		}
		id, err := db.InsertCompetitor(cmd.Context(), c)
		if err != nil {
			return err
		}
		fmt.Printf("Added competitor %d: %s\n", id, name)
		return nil
	},
}

var competitorsApproveCmd = &cobra.Command{
	Use:   "approve [id]",
	Short: "Approve a suggested competitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ID: %s", args[0])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		comp, err := db.GetCompetitor(cmd.Context(), companyID, id)
		if err != nil {
			return err
		}
		if comp == nil {
			return fmt.Errorf("competitor %d not found", id)
		}
		if comp.Approved {
			fmt.Printf("Competitor %d (%s) is already approved\n", id, comp.Name)
			return nil
		}
		if _, err := db.ApproveCompetitor(cmd.Context(), companyID, id); err != nil {
			return err
		}
		fmt.Printf("Approved competitor %d: %s\n", id, comp.Name)
		return nil
	},
}

var competitorsRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a competitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ID: %s", args[0])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		comp, err := db.GetCompetitor(cmd.Context(), companyID, id)
		if err != nil {
			return err
		}
		if comp == nil {
			return fmt.Errorf("competitor %d not found", id)
		}
		if _, err := db.DeleteCompetitor(cmd.Context(), companyID, id); err != nil {
			return err
		}
		fmt.Printf("Removed competitor %d: %s\n", id, comp.Name)
		return nil
	},
}

// --- prompts command group ---

var promptCountry string

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage tracked prompts",
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		prompts, err := db.ListPrompts(cmd.Context(), companyID)
		if err != nil {
			return err
		}
		if len(prompts) == 0 {
			fmt.Println("No prompts.")
			return nil
		}
		for _, p := range prompts {
			country := ""
			if p.Country != nil {
				country = " [" + *p.Country + "]"
			}
			fmt.Printf("  %d.%s %s\n", p.ID, country, p.Prompt)
		}
		return nil
	},
}

var promptsAddCmd = &cobra.Command{
	Use:   "add [prompt]",
	Short: "Add a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(args[0])
		if text == "" {
			return fmt.Errorf("prompt text is required")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		p := database.Prompt{Prompt: text, CompanyID: companyID}
		if promptCountry != "" {
			p.Country = &promptCountry
		}
		saved, err := db.InsertPrompts(cmd.Context(), []database.Prompt{p})
		if err != nil {
			return err
		}
		fmt.Printf("Added prompt %d\n", saved[0].ID)
		return nil
	},
}

var promptsRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ID: %s", args[0])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		p, err := db.GetPrompt(cmd.Context(), companyID, id)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("prompt %d not found", id)
		}
		if _, err := db.DeletePrompt(cmd.Context(), companyID, id); err != nil {
			return err
		}
		fmt.Printf("Removed prompt %d: %s\n", id, p.Prompt)
		return nil
	},
}

// --- sources command group ---

var (
	sourcesPeriod string
	sourcesLimit  int
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect the sources cited by AI responses",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cited sources by usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		period, err := visibility.ParsePeriod(sourcesPeriod)
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		usage, err := a.analytics.Sources(cmd.Context(), companyID, period)
		if err != nil {
			return err
		}
		if len(usage) == 0 {
			fmt.Println("No sources cited in this period.")
			return nil
		}
		for _, s := range usage {
			fmt.Printf("  %3d%%  %4d  %s\n", s.UsagePct, s.UsageCount, s.Link)
		}
		return nil
	},
}

var sourcesFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch titles and excerpts for sources without a preview",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f := sourcemeta.NewFetcher(db, cfg.Sources.FetchTimeout, cfg.Sources.UserAgent, log.With("component", "sourcemeta"))
		res, err := f.FetchPreviews(cmd.Context(), sourcesLimit)
		if err != nil {
			return err
		}
		fmt.Printf("Fetched %d, empty %d, failed %d, skipped %d\n", res.Fetched, res.Empty, res.Failed, res.Skipped)
		return nil
	},
}

// --- onboard command ---

var (
	onboardUser          string
	onboardCompany       string
	onboardGoal          string
	onboardSearchCountry string
	onboardReq           functions.CreateCompanyRequest
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Create a company and run the onboarding jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if onboardCompany == "" && strings.TrimSpace(onboardReq.CompanyName) == "" {
			return fmt.Errorf("--name is required unless --resume is set")
		}
		if onboardSearchCountry != "" {
			onboardReq.SearchOptimizationCountry = &onboardSearchCountry
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		w := onboarding.NewWizard(a.functions, a.db, a.exec,
			pollOptions(cfg.Polling.Job(cfg.Polling.Jobs.CompetitorDiscovery)),
			pollOptions(cfg.Polling.Job(cfg.Polling.Jobs.ResponseAnalysis)),
			log.With("component", "onboarding"))
		w.OnStep(func(s onboarding.Step) {
			fmt.Printf("→ %s\n", s)
		})

		start := time.Now()
		result := w.Run(cmd.Context(), onboarding.Request{
			UserID:    onboardUser,
			CompanyID: onboardCompany,
			Company:   onboardReq,
			Goal:      onboardGoal,
		})

		fmt.Printf("\nOnboarding finished in %s\n", time.Since(start).Round(time.Second))
		if result.CompanyID != "" {
			fmt.Printf("Company: %s\n", result.CompanyID)
		}
		for _, step := range result.Steps {
			if step.Err != nil {
				fmt.Printf("  %s: FAILED - %v\n", step.Name, step.Err)
			} else {
				fmt.Printf("  %s: %s\n", step.Name, step.Summary)
			}
		}
		if !result.Completed {
			return fmt.Errorf("onboarding did not complete")
		}
		return nil
	},
}

func pollOptions(j config.JobPolling) poll.Options {
	return poll.Options{Interval: j.Interval, MaxAttempts: j.MaxAttempts, Timeout: j.Timeout}
}
