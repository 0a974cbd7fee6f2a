package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foxzi/mailjob/internal/api"
	"github.com/foxzi/mailjob/internal/callback"
	"github.com/foxzi/mailjob/internal/session"
	"github.com/foxzi/mailjob/internal/ui"
)

var (
	authEmail    string
	authPassword string
	authName     string
	authTimeout  time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	RunE:  runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	RunE:  runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored token",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Token sign-in commands",
}

var authTokenCmd = &cobra.Command{
	Use:   "token <access_token>",
	Short: "Sign in with an access token issued by the service",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthToken,
}

var authCallbackCmd = &cobra.Command{
	Use:   "callback",
	Short: "Wait for a browser sign-in redirect and adopt its token",
	Long: `Start a local listener and wait for the service to redirect the browser to
/auth/callback?token=... after a Google sign-in.`,
	RunE: runAuthCallback,
}

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, registerCmd} {
		cmd.Flags().StringVar(&authEmail, "email", "", "account email (prompted if empty)")
		cmd.Flags().StringVar(&authPassword, "password", "", "account password (prompted if empty)")
	}
	registerCmd.Flags().StringVar(&authName, "name", "", "display name")
	authCallbackCmd.Flags().DurationVar(&authTimeout, "timeout", 5*time.Minute, "how long to wait for the redirect")

	authCmd.AddCommand(authTokenCmd, authCallbackCmd)
	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd, authCmd)
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func readPassword(question string) (string, error) {
	fmt.Print(question + ": ")
	pwBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()
	return string(pwBytes), nil
}

// credentials fills email and password from flags or prompts
func credentials(confirm bool) (string, string, error) {
	email := authEmail
	if email == "" {
		email = prompt(bufio.NewReader(os.Stdin), "Email", "")
	}
	if email == "" {
		return "", "", errors.New("email is required")
	}

	password := authPassword
	if password == "" {
		var err error
		password, err = readPassword("Password")
		if err != nil {
			return "", "", err
		}
		if confirm {
			again, err := readPassword("Confirm password")
			if err != nil {
				return "", "", err
			}
			if password != again {
				return "", "", errors.New("passwords do not match")
			}
		}
	}
	if password == "" {
		return "", "", errors.New("password is required")
	}
	return email, password, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	email, password, err := credentials(false)
	if err != nil {
		return err
	}

	sess, err := a.Login(cmd.Context(), email, password)
	if api.StatusCode(err) == 401 {
		return errors.New("invalid email or password")
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Println(ui.SuccessStyle.Render("Logged in as " + displayName(sess)))
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	email, password, err := credentials(true)
	if err != nil {
		return err
	}

	sess, err := a.Register(cmd.Context(), email, password, authName)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Println(ui.SuccessStyle.Render("Account created, logged in as " + displayName(sess)))
	fmt.Println("Next: connect Gmail with `mailjob google connect`.")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Logout(cmd.Context())
	fmt.Println("Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sess := a.Session.Current()
	fmt.Println(ui.Field("Email", orDash(sess.Email)))
	fmt.Println(ui.Field("User ID", orDash(sess.Subject)))
	if sess.ExpiresAt.IsZero() {
		fmt.Println(ui.Field("Expires", "never"))
	} else {
		fmt.Println(ui.Field("Expires", sess.ExpiresAt.Local().Format(timeLayout)))
	}
	return nil
}

func runAuthToken(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Adopt(cmd.Context(), strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}
	fmt.Println(ui.SuccessStyle.Render("Logged in as " + displayName(sess)))
	return nil
}

func runAuthCallback(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := waitForRedirect(cmd.Context(), a.Config.Callback.ListenAddr, "/auth/callback", authTimeout, a.Logger)
	if err != nil {
		return err
	}
	if res.Token == "" {
		return errors.New("redirect carried no token")
	}

	sess, err := a.Adopt(cmd.Context(), res.Token)
	if err != nil {
		return err
	}
	fmt.Println(ui.SuccessStyle.Render("Logged in as " + displayName(sess)))
	return nil
}

// waitForRedirect runs the loopback listener until the browser delivers a
// result on path, the timeout passes or the command is interrupted
func waitForRedirect(ctx context.Context, addr, path string, timeout time.Duration, logger *slog.Logger) (callback.Result, error) {
	srv := callback.NewServer(addr, logger)
	baseURL, err := srv.Start()
	if err != nil {
		return callback.Result{}, fmt.Errorf("failed to start callback listener: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Waiting for the browser redirect to %s%s ...\n", baseURL, path)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := srv.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return res, fmt.Errorf("no redirect received within %s", timeout)
	}
	return res, err
}

func displayName(s session.Session) string {
	if s.Email != "" {
		return s.Email
	}
	return orDash(s.Subject)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
