package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/mailjob/internal/api"
	"github.com/foxzi/mailjob/internal/ui"
)

var (
	googleWait    bool
	googleTimeout time.Duration
	googleYes     bool
)

var googleCmd = &cobra.Command{
	Use:   "google",
	Short: "Gmail connection commands",
}

var googleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the Gmail connection",
	RunE:  runGoogleStatus,
}

var googleConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a Gmail account for sending",
	RunE:  runGoogleConnect,
}

var googleReconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Reconnect a Gmail account that lost access",
	RunE:  runGoogleConnect,
}

var googleDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect Gmail; active jobs are paused",
	RunE:  runGoogleDisconnect,
}

func init() {
	for _, cmd := range []*cobra.Command{googleConnectCmd, googleReconnectCmd} {
		cmd.Flags().BoolVar(&googleWait, "wait", false, "wait on the local callback listener for the result")
		cmd.Flags().DurationVar(&googleTimeout, "timeout", 5*time.Minute, "how long --wait waits")
	}
	googleDisconnectCmd.Flags().BoolVarP(&googleYes, "yes", "y", false, "do not ask for confirmation")

	googleCmd.AddCommand(googleStatusCmd, googleConnectCmd, googleReconnectCmd, googleDisconnectCmd)
	rootCmd.AddCommand(googleCmd)
}

func runGoogleStatus(cmd *cobra.Command, args []string) error {
	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	status, err := a.API.GoogleStatus(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get connection status: %w", err)
	}
	printGoogleStatus(status)
	return nil
}

func printGoogleStatus(g *api.GoogleStatus) {
	state := "NOT CONNECTED"
	switch {
	case g.Disconnected():
		state = api.TokenStatusDisconnected
	case g.Connected:
		state = api.TokenStatusConnected
	}

	fmt.Println(ui.Field("Gmail", ui.Badge(state)))
	if g.GmailAddress != nil {
		fmt.Println(ui.Field("Account", *g.GmailAddress))
	}
	if g.ConnectedAt != nil {
		fmt.Println(ui.Field("Connected", formatTime(g.ConnectedAt)))
	}
	if g.LastSuccessfulSendAt != nil {
		fmt.Println(ui.Field("Last send", formatTime(g.LastSuccessfulSendAt)))
	}
	if g.LastError != nil && *g.LastError != "" {
		fmt.Println(ui.Field("Last error", ui.ErrorStyle.Render(*g.LastError)))
	}
	if g.Disconnected() {
		fmt.Println(ui.WarnStyle.Render("Access was revoked. Run `mailjob google reconnect`."))
	} else if !g.Connected {
		fmt.Println("Run `mailjob google connect` to start sending.")
	}
}

func runGoogleConnect(cmd *cobra.Command, args []string) error {
	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	var redirectURL string
	if cmd.Name() == "reconnect" {
		redirectURL, err = a.API.GoogleReconnect(ctx)
	} else {
		redirectURL, err = a.API.GoogleStart(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to start Google connection: %w", err)
	}

	fmt.Println("Open this URL in your browser to grant access:")
	fmt.Println()
	fmt.Println("  " + redirectURL)
	fmt.Println()

	if !googleWait {
		fmt.Println("Then check the result with `mailjob google status`.")
		return nil
	}

	res, err := waitForRedirect(ctx, a.Config.Callback.ListenAddr, "/oauth", googleTimeout, a.Logger)
	if err != nil {
		return err
	}
	if res.Failed() {
		return errors.New("google connection failed: " + res.Reason)
	}

	status, err := a.API.GoogleStatus(ctx)
	if err != nil {
		fmt.Println(ui.SuccessStyle.Render("Gmail connected"))
		return nil
	}
	printGoogleStatus(status)
	return nil
}

func runGoogleDisconnect(cmd *cobra.Command, args []string) error {
	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if !googleYes {
		ok, err := ui.Confirm(ctx, "Disconnect Gmail? Active jobs will be paused.", false)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	resp, err := a.API.GoogleDisconnect(ctx)
	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}

	fmt.Println("Gmail disconnected")
	if resp.JobsPaused > 0 {
		fmt.Println(ui.WarnStyle.Render(strconv.Itoa(resp.JobsPaused) + " active job(s) paused"))
	}
	return nil
}
