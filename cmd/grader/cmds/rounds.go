package cmds

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-appgrader/internal/catalog"
	"github.com/noah-isme/gema-appgrader/internal/service"
	"github.com/noah-isme/gema-appgrader/pkg/delivery"
)

var (
	round1File      string
	round1FromForms bool
	round2Retry     bool
)

var round1Cmd = &cobra.Command{
	Use:   "round1",
	Short: "Issue round 1 tasks to every registered student without one",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer env.close()

		var registrations []service.Registration
		if round1FromForms {
			registrations, err = env.formService().Registrations(cmd.Context())
		} else {
			registrations, err = readRegistrations(round1File)
		}
		if err != nil {
			return err
		}

		issuer, err := env.taskIssuer()
		if err != nil {
			return err
		}

		printSummary(cmd, "round1", issuer.IssueRound1(cmd.Context(), registrations))
		return nil
	},
}

var round2Cmd = &cobra.Command{
	Use:   "round2",
	Short: "Issue round 2 tasks for round 1 submissions, or retry failed round 2 deliveries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		defer env.close()

		issuer, err := env.taskIssuer()
		if err != nil {
			return err
		}

		if round2Retry {
			printSummary(cmd, "round2 retry", issuer.RetryRound2(cmd.Context()))
			return nil
		}
		printSummary(cmd, "round2", issuer.IssueRound2(cmd.Context()))
		return nil
	},
}

func (e *environment) taskIssuer() (service.TaskIssuer, error) {
	cat, err := catalog.Default()
	if err != nil {
		return nil, err
	}

	deliverer := delivery.NewClient(&http.Client{Timeout: e.cfg.DeliveryTimeout}, e.logger)
	return service.NewTaskIssuer(e.store, cat, deliverer, service.IssuerConfig{
		EvaluationURL: e.cfg.EvaluationURL,
		Delay:         e.cfg.IssueDelay,
		RetryDelay:    e.cfg.RetryDelay,
	}, e.logger), nil
}

func init() {
	rootCmd.AddCommand(round1Cmd, round2Cmd)

	round1Cmd.Flags().StringVar(&round1File, "submissions", "", "CSV with email, endpoint and secret columns")
	round1Cmd.Flags().BoolVar(&round1FromForms, "from-forms", false, "Read registrations from the store instead of a CSV file")
	round1Cmd.MarkFlagsMutuallyExclusive("submissions", "from-forms")
	round1Cmd.MarkFlagsOneRequired("submissions", "from-forms")

	round2Cmd.Flags().BoolVar(&round2Retry, "retry-failed", false, "Re-deliver round 2 tasks whose last delivery was not acknowledged with 200")
}
