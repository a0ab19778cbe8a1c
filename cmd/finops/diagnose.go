package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lewisbuilds/AWS-FinOps-Dashboard/awsauth"
	"github.com/lewisbuilds/AWS-FinOps-Dashboard/health"
)

// probeView is the serializable form of a probe result.
type probeView struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

type diagnosisView struct {
	Credentials awsauth.Diagnosis    `json:"credentials"`
	Permissions map[string]probeView `json:"permissions,omitempty"`
	Overall     string               `json:"overall,omitempty"`
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Diagnose credential configuration and probe AWS permissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.shutdown(ctx)

		view := diagnosisView{Credentials: a.manager.Diagnose(ctx)}

		session, err := a.manager.GetSession(ctx)
		if err != nil {
			// No session: report the credential diagnosis alone, then fail.
			if printErr := printJSON(view); printErr != nil {
				return printErr
			}
			return err
		}

		probes := health.NewPermissionSet(session.Config, a.factory, a.settings.AWS.Region)
		probes.Register(health.NewManagementAccountCheck(session.AccountID, a.settings.Org.ManagementAccountID))
		results := probes.CheckAll(ctx)

		view.Permissions = make(map[string]probeView, len(results))
		for name, result := range results {
			pv := probeView{
				Status:   result.Status.String(),
				Message:  result.Message,
				Duration: result.Duration.String(),
			}
			if result.Error != nil {
				pv.Error = result.Error.Error()
			}
			view.Permissions[name] = pv
		}
		view.Overall = probes.OverallStatus(results).String()

		if err := printJSON(view); err != nil {
			return err
		}
		if results[health.ProbeCostExplorer].Status == health.StatusUnhealthy {
			return fmt.Errorf("critical permission missing: %s", health.ProbeCostExplorer)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diagnoseCmd)
}
