package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/scriptbloxx/brainsift-cli/internal/api"
	appI18n "github.com/scriptbloxx/brainsift-cli/internal/i18n"
	"github.com/scriptbloxx/brainsift-cli/internal/model"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session locally",
		RunE:  runLogin,
	}
	f := cmd.Flags()
	f.StringP("email", "e", "", "Account email")
	f.StringP("password", "p", "", "Account password (prompted when omitted)")
	addCommonFlags(f)
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	form := model.LoginForm{
		Email:    e.v.GetString("email"),
		Password: e.v.GetString("password"),
	}
	if form.Password == "" {
		form.Password, err = promptPassword(cmd, "Password: ")
		if err != nil {
			return err
		}
	}
	if err := model.CheckForm(form); err != nil {
		return err
	}

	user, err := e.client.Login(cmd.Context(), form)
	if err != nil {
		return err
	}
	if err := e.state.SaveLogin(user); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td("LoginSuccess", map[string]any{"Email": user.Email}))
	return nil
}

func signupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE:  runSignup,
	}
	f := cmd.Flags()
	f.StringP("name", "n", "", "Display name")
	f.StringP("email", "e", "", "Account email")
	addCommonFlags(f)
	return cmd
}

func runSignup(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	form := model.SignupForm{
		Name:  e.v.GetString("name"),
		Email: e.v.GetString("email"),
	}
	if form.Password, err = promptPassword(cmd, "Password: "); err != nil {
		return err
	}
	if form.ConfirmPassword, err = promptPassword(cmd, "Confirm password: "); err != nil {
		return err
	}
	if err := model.CheckForm(form); err != nil {
		return err
	}

	user, err := e.client.Signup(cmd.Context(), form)
	if err != nil {
		return err
	}
	if err := e.state.SaveLogin(user); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td("SignupSuccess", map[string]any{"Email": user.Email}))
	return nil
}

func logoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Erase the locally persisted session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()
			if err := e.state.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), appI18n.T("LogoutSuccess"))
			return nil
		},
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

func whoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the current identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			u := e.state.Current()
			if u == nil {
				fmt.Fprintln(cmd.OutOrStdout(), appI18n.T("NotLoggedIn"))
				return nil
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s <%s>\n", u.Name, u.Email)
			fmt.Fprintf(out, "role: %s  plan: %s  verified: %t\n", u.Role, u.Plan, u.EmailVerified)
			if exp, ok := e.state.AccessTokenExpiry(); ok {
				fmt.Fprintf(out, "access token expires: %s\n", exp.Format(time.RFC3339))
			}
			return nil
		},
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

func forgotPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset link by email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			email := e.v.GetString("email")
			if err := model.CheckEmail(email); err != nil {
				return err
			}
			if err := e.client.ForgotPassword(cmd.Context(), email); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td("ResetLinkSent", map[string]any{"Email": email}))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringP("email", "e", "", "Account email")
	addCommonFlags(f)
	return cmd
}

func resetPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password using a reset token",
		RunE:  runResetPassword,
	}
	f := cmd.Flags()
	f.StringP("token", "t", "", "Reset token from the email link")
	addCommonFlags(f)
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func runResetPassword(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	form := model.ResetPasswordForm{Token: e.v.GetString("token")}
	if form.Password, err = promptPassword(cmd, "New password: "); err != nil {
		return err
	}
	if form.ConfirmPassword, err = promptPassword(cmd, "Confirm password: "); err != nil {
		return err
	}
	if err := model.CheckForm(form); err != nil {
		return err
	}

	if err := e.client.ResetPassword(cmd.Context(), form); err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == 400 || apiErr.StatusCode == 401) {
			// An expired/invalid token is a terminal state for this link.
			fmt.Fprintln(cmd.OutOrStdout(), appI18n.T("ResetLinkInvalid"))
			return err
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.T("PasswordResetSuccess"))
	return nil
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Update profile settings",
		RunE:  runSettings,
	}
	f := cmd.Flags()
	f.String("name", "", "Display name")
	f.String("bio", "", "Profile bio")
	f.String("avatar", "", "Avatar image URL")
	f.String("language", "", "Preferred language")
	f.String("timezone", "", "Time zone")
	addCommonFlags(f)
	return cmd
}

func runSettings(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	if e.state.Current() == nil {
		fmt.Fprintln(cmd.OutOrStdout(), appI18n.T("NotLoggedIn"))
		return errors.New("not logged in")
	}

	var update model.ProfileUpdate
	changed := false
	for flag, dst := range map[string]**string{
		"name": &update.Name, "bio": &update.Bio, "avatar": &update.AvatarURL,
		"language": &update.Language, "timezone": &update.Timezone,
	} {
		if cmd.Flags().Changed(flag) {
			v := e.v.GetString(flag)
			*dst = &v
			changed = true
		}
	}
	if !changed {
		return errors.New("nothing to update: pass at least one settings flag")
	}

	user, err := e.client.UpdateProfile(cmd.Context(), update)
	if err != nil {
		return err
	}
	// The server response is authoritative; mirror it locally.
	if err := e.state.UpdateProfile(model.ProfileUpdate{
		Name: &user.Name, Bio: &user.Bio, AvatarURL: &user.AvatarURL,
		Language: &user.Language, Timezone: &user.Timezone,
	}); err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Profile updated for %s.\n", user.Email)
	return nil
}

// promptPassword reads a password without echo when attached to a terminal,
// falling back to a plain line read in tests and pipes.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	if f, ok := cmd.InOrStdin().(interface{ Fd() uintptr }); ok && term.IsTerminal(int(f.Fd())) {
		defer fmt.Fprintln(cmd.OutOrStdout())
		b, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	r := bufio.NewReader(cmd.InOrStdin())
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
