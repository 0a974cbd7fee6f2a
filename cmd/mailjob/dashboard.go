package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/mailjob/internal/controller"
	"github.com/foxzi/mailjob/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show recent jobs and the Gmail connection",
	RunE:  runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	d := controller.LoadDashboard(cmd.Context(), a.API, a.Logger)
	if err := a.RequireSession(); err != nil {
		return err
	}

	fmt.Println(ui.TitleStyle.Render("Dashboard"))
	fmt.Println()
	if d.Google != nil {
		printGoogleStatus(d.Google)
	} else {
		fmt.Println(ui.Field("Gmail", ui.WarnStyle.Render("status unavailable")))
	}
	fmt.Println()

	fmt.Printf("%s  %s  %s  %s\n",
		ui.Field("Active", fmt.Sprint(d.Stats.Active)),
		ui.Field("Paused", fmt.Sprint(d.Stats.Paused)),
		ui.Field("Completed", fmt.Sprint(d.Stats.Completed)),
		ui.Field("Sent", fmt.Sprint(d.Stats.TotalSent)),
	)
	fmt.Println()

	fmt.Println(ui.TitleStyle.Render("Recent jobs"))
	if d.Jobs == nil {
		fmt.Println(ui.WarnStyle.Render("Jobs unavailable, try again later."))
		return nil
	}
	if len(d.Jobs) == 0 {
		fmt.Println("No jobs yet. Create one with `mailjob compose`.")
		return nil
	}
	fmt.Println(ui.Table(jobHeaders, jobRows(d.Jobs)))
	return nil
}
