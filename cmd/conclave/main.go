package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-conclave/infrastructure/memstore"
	"github.com/ahrav/go-conclave/infrastructure/sqlite"
	"github.com/ahrav/go-conclave/internal/application"
	"github.com/ahrav/go-conclave/internal/domain"
	"github.com/ahrav/go-conclave/internal/ports"
)

var version = "dev"

var (
	dbPath       string
	settingsPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "conclave",
	Short:   "Weighted expert committee decisions",
	Long:    "Conclave aggregates ordinal expert scores into calibrated verdicts with confidence intervals, correlation-aware weighting, and outcome-driven weight learning.",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (in-memory when omitted)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Path to settings file overriding statistical defaults")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(outcomeCmd)
	rootCmd.AddCommand(weightsCmd)
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(recordsCmd)
}

// --- evaluate command ---

var collectionTimeout time.Duration

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <committee.yaml> <submissions.yaml>",
	Short: "Run one decision round from committee and submission files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := application.NewRoundLoader()
		if err != nil {
			return err
		}

		setup, err := loader.LoadCommitteeFromFile(args[0])
		if err != nil {
			return fmt.Errorf("loading committee: %w", err)
		}
		submissions, dossier, err := loader.LoadSubmissionsFromFile(args[1])
		if err != nil {
			return fmt.Errorf("loading submissions: %w", err)
		}

		if collectionTimeout > 0 {
			setup.Committee.CollectionTimeout = collectionTimeout
		}

		env, err := openEnvironment(setup)
		if err != nil {
			return err
		}
		defer env.Close()

		ctx := context.Background()
		round, err := env.engine.OpenRound(ctx, setup.Committee)
		if err != nil {
			return fmt.Errorf("opening round: %w", err)
		}

		// Experts submit independently in production; the file replay
		// keeps that shape.
		var g errgroup.Group
		for _, s := range submissions {
			g.Go(func() error {
				if err := round.Submit(s.Expert, s.Angle, s.Score); err != nil {
					return fmt.Errorf("submission by %s: %w", s.Expert, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		result, err := round.Close(ctx, dossier)
		if err != nil {
			return fmt.Errorf("closing round: %w", err)
		}

		printResult(result)
		if dbPath != "" {
			fmt.Printf("\nRecorded as %s in %s\n", result.DecisionID, dbPath)
		}
		return nil
	},
}

func init() {
	evaluateCmd.Flags().DurationVar(&collectionTimeout, "timeout", 0, "Override the committee's collection timeout")
}

// --- outcome command ---

var outcomeCmd = &cobra.Command{
	Use:   "outcome <decision-id> <success|failure>",
	Short: "Record the real-world outcome of a past decision",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if dbPath == "" {
			return fmt.Errorf("outcome requires --db: the decision record must outlive the evaluating process")
		}

		env, err := openEnvironment(nil)
		if err != nil {
			return err
		}
		defer env.Close()

		correctness, err := env.engine.RecordOutcome(context.Background(), args[0], domain.Outcome(args[1]))
		if err != nil {
			return fmt.Errorf("recording outcome: %w", err)
		}

		fmt.Printf("Outcome %q recorded for %s\n\n", args[1], args[0])
		fmt.Println("Expert correctness:")
		ids := make([]domain.ExpertID, 0, len(correctness))
		for id := range correctness {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			call := "wrong"
			if correctness[id] {
				call = "correct"
			}
			fmt.Printf("  %-20s %s\n", id, call)
		}
		if len(ids) == 0 {
			fmt.Println("  (no expert took a graded position)")
		}
		return nil
	},
}

// --- weights command ---

var weightsCmd = &cobra.Command{
	Use:   "weights <committee.yaml>",
	Short: "Show how each expert's weight would resolve for a round",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, err := application.NewRoundLoader()
		if err != nil {
			return err
		}
		setup, err := loader.LoadCommitteeFromFile(args[0])
		if err != nil {
			return fmt.Errorf("loading committee: %w", err)
		}

		env, err := openEnvironment(setup)
		if err != nil {
			return err
		}
		defer env.Close()

		// Resolution only needs to know who responded on what; a
		// full-attendance probe shows the configured committee.
		set := domain.JudgmentSet{}
		angle := domain.AngleID("overall")
		if len(setup.Committee.Angles) > 0 {
			angle = setup.Committee.Angles[0]
		}
		for _, seat := range setup.Committee.Experts {
			set.Judgments = append(set.Judgments, domain.ExpertJudgment{
				ExpertID: seat.ExpertID,
				Role:     seat.Role,
				Domain:   seat.Domain,
				AngleID:  angle,
				Score:    3,
			})
		}

		resolved, comp, err := env.resolver.Resolve(context.Background(), setup.Committee, set)
		if err != nil {
			return fmt.Errorf("resolving weights: %w", err)
		}

		fmt.Printf("Committee %s (%d experts, level %d)\n\n",
			setup.Committee.DecisionID, len(setup.Committee.Experts), setup.Committee.Level)
		fmt.Printf("  %-20s %8s %12s %10s  %s\n", "expert", "base", "correlated", "effective", "accuracy window")
		for _, w := range resolved {
			window := fmt.Sprintf("%d/%d correct", w.CorrectInWindow, w.WindowSize)
			if w.ColdStart {
				window = "cold start"
			}
			base := fmt.Sprintf("%.4f", w.Base)
			if w.ProfileMiss {
				base += "*"
			}
			fmt.Printf("  %-20s %8s %12.4f %10.4f  %s\n", w.ExpertID, base, w.Correlated, w.Effective, window)
		}
		fmt.Printf("\nComposition: %s", comp.Category)
		if comp.PairwiseKnown {
			fmt.Printf(" (mean rho %.4f)", comp.MeanRho)
		}
		fmt.Println()
		if hasProfileMiss(resolved) {
			fmt.Println("* default weight: no profile entry matched this seat")
		}
		return nil
	},
}

func hasProfileMiss(resolved []domain.ResolvedWeight) bool {
	for _, w := range resolved {
		if w.ProfileMiss {
			return true
		}
	}
	return false
}

// --- finalize command ---

var overrideProvisional bool

var finalizeCmd = &cobra.Command{
	Use:   "finalize <decision-id>",
	Short: "Mark a decision as final",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if dbPath == "" {
			return fmt.Errorf("finalize requires --db")
		}

		env, err := openEnvironment(nil)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.engine.Finalize(context.Background(), args[0], overrideProvisional); err != nil {
			return fmt.Errorf("finalizing: %w", err)
		}
		fmt.Printf("Decision %s finalized\n", args[0])
		return nil
	},
}

func init() {
	finalizeCmd.Flags().BoolVar(&overrideProvisional, "override", false, "Finalize even though the devil's-advocate dossier is incomplete")
}

// --- records command ---

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List stored decision records, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dbPath == "" {
			return fmt.Errorf("records requires --db")
		}

		env, err := openEnvironment(nil)
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := env.ledger.ListRecords(context.Background())
		if err != nil {
			return fmt.Errorf("listing records: %w", err)
		}
		if len(records) == 0 {
			fmt.Println("No decisions recorded.")
			return nil
		}

		fmt.Printf("%-16s %-20s %8s %6s  %s\n", "decision", "verdict", "score", "n", "outcome")
		for _, r := range records {
			verdict := string(r.Result.Verdict)
			if r.Result.Provisional && r.FinalizedAt == nil {
				verdict += " (provisional)"
			}
			outcome := "-"
			if r.ActualOutcome != nil {
				outcome = string(*r.ActualOutcome)
			}
			fmt.Printf("%-16s %-20s %8.4f %6d  %s\n",
				r.DecisionID, verdict, r.Result.Aggregation.EnhancedScore,
				r.Result.Aggregation.EffectiveN, outcome)
		}
		return nil
	},
}

// environment bundles the engine and the stores behind it for one
// command invocation.
type environment struct {
	engine   *application.DecisionEngine
	resolver *application.WeightResolver
	ledger   ports.DecisionLedger
	close    func() error
}

func (e *environment) Close() {
	if e.close != nil {
		e.close()
	}
}

// openEnvironment assembles stores, statistical components, and the
// engine. With --db the ledger and accuracy history live in SQLite;
// otherwise everything is in-memory and vanishes with the process.
// The setup is optional: commands that operate on stored decisions
// pass nil and run with an empty weight profile.
func openEnvironment(setup *application.RoundSetup) (*environment, error) {
	settings, err := application.LoadSettingsFromFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	components, err := application.BuildComponents(settings)
	if err != nil {
		return nil, fmt.Errorf("building components: %w", err)
	}

	var (
		ledger   ports.DecisionLedger
		accuracy ports.AccuracyStore
		closeFn  func() error
	)
	if dbPath != "" {
		db, err := sqlite.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		ledger = db.Ledger()
		accuracy = db.AccuracyStore(domain.DefaultAccuracyWindowSize)
		closeFn = db.Close
	} else {
		ledger = memstore.NewDecisionLedger()
		accuracy = memstore.NewAccuracyStore(domain.DefaultAccuracyWindowSize)
	}

	var (
		weights      ports.WeightSource
		correlations *domain.CorrelationTable
	)
	if setup != nil {
		weights = memstore.NewWeightSource(setup.Weights)
		correlations = setup.Correlations
	} else {
		weights = memstore.NewEmptyWeightSource()
	}

	resolver, err := application.NewWeightResolver(weights, accuracy, correlations, components.Resolver)
	if err != nil {
		return nil, fmt.Errorf("building resolver: %w", err)
	}
	learner, err := application.NewWeightLearner(ledger, accuracy, components.Learner)
	if err != nil {
		return nil, fmt.Errorf("building learner: %w", err)
	}
	engine, err := application.NewDecisionEngine(
		components.Aggregator, components.Estimator, components.Policy,
		resolver, learner, ledger, components.Engine,
	)
	if err != nil {
		return nil, fmt.Errorf("building engine: %w", err)
	}

	return &environment{engine: engine, resolver: resolver, ledger: ledger, close: closeFn}, nil
}

func printResult(result domain.DecisionResult) {
	agg := result.Aggregation

	fmt.Printf("Decision %s\n\n", result.DecisionID)
	fmt.Printf("  Verdict:       %s\n", verdictLine(result))
	fmt.Printf("  Enhanced:      %.4f (weighted mean %.4f, penalty %.4f)\n",
		agg.EnhancedScore, agg.WeightedMean, agg.DivergencePenalty)
	fmt.Printf("  Interval:      [%.4f, %.4f] at t=%.2f\n", agg.CILower, agg.CIUpper, agg.TCritical)
	fmt.Printf("  Sufficiency:   %.4f\n", agg.InformationSufficiency)
	fmt.Printf("  Committee:     %d responded, composition %s", agg.EffectiveN, agg.Composition)
	if agg.Winsorized {
		fmt.Print(", winsorized")
	}
	fmt.Println()

	if len(result.Missing) > 0 {
		missing := make([]string, len(result.Missing))
		for i, id := range result.Missing {
			missing[i] = string(id)
		}
		fmt.Printf("  Missing:       %s\n", strings.Join(missing, ", "))
	}

	fmt.Println("\n  Weights:")
	for _, w := range result.Weights {
		fmt.Printf("    %-20s base %.4f -> correlated %.4f -> effective %.4f\n",
			w.ExpertID, w.Base, w.Correlated, w.Effective)
	}

	if result.Provisional {
		fmt.Println("\n  Provisional: complete the dossier before finalizing:")
		for _, item := range result.RequiredRemediation {
			fmt.Printf("    - %s\n", item)
		}
	}
}

func verdictLine(result domain.DecisionResult) string {
	if result.Provisional {
		return string(result.Verdict) + " (provisional)"
	}
	return string(result.Verdict)
}
