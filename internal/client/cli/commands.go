package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/filex"
	"github.com/dmitrijs2005/bantx/internal/server/auth"
)

const keyBits = 2048

func (a *App) report(err error) error {
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
	}
	return err
}

func (a *App) prompt(text string) (string, error) {
	return GetSimpleText(a.reader, text, a.out)
}

func (a *App) Register(ctx context.Context) error {
	username, err := a.prompt("Username")
	if err != nil {
		return a.report(err)
	}
	email, err := a.prompt("Email")
	if err != nil {
		return a.report(err)
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(password)
	referral, err := a.prompt("Referral code (optional)")
	if err != nil {
		return a.report(err)
	}

	u, err := a.api.Register(ctx, username, email, string(password), referral)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "Registered %s, your referral code is %s\n", u.Email, u.ReferralCode)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := a.prompt("Email")
	if err != nil {
		return a.report(err)
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(password)

	u, err := a.api.Login(ctx, email, string(password))
	if err != nil {
		return a.report(err)
	}
	a.userName = u.Username
	fmt.Fprintln(a.out, "Login successful")
	return nil
}

func (a *App) Me(ctx context.Context) error {
	u, err := a.api.Me(ctx)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "id:        %s\nusername:  %s\nemail:     %s\nrole:      %s\nreferral:  %s\npoints:    %d\nonboarded: %t\n",
		u.ID, u.Username, u.Email, u.Role, u.ReferralCode, u.RewardPoints, u.OnboardingCompleted)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	err := a.api.Logout(ctx)
	a.userName = ""
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

// ProvisionAdmin creates an admin account. The admin secret is read without
// echo.
func (a *App) ProvisionAdmin(ctx context.Context) error {
	username, err := a.prompt("Admin username")
	if err != nil {
		return a.report(err)
	}
	email, err := a.prompt("Admin email")
	if err != nil {
		return a.report(err)
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(password)
	secret, err := GetSecret(a.out, "Admin secret: ")
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(secret)

	u, err := a.api.ProvisionAdmin(ctx, username, email, string(password), string(secret))
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintf(a.out, "Admin %s created\n", u.Email)
	return nil
}

func (a *App) ForgotPassword(ctx context.Context) error {
	email, err := a.prompt("Email")
	if err != nil {
		return a.report(err)
	}
	if err := a.api.ForgotPassword(ctx, email); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "If the email is registered, a reset link is on its way")
	return nil
}

func (a *App) ResetPassword(ctx context.Context) error {
	token, err := a.prompt("Reset token")
	if err != nil {
		return a.report(err)
	}
	password, err := GetSecret(a.out, "New password: ")
	if err != nil {
		return a.report(err)
	}
	defer common.WipeByteArray(password)

	if err := a.api.ResetPassword(ctx, token, string(password)); err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Password updated, you can log in now")
	return nil
}

func (a *App) UploadDocument(ctx context.Context) error {
	path, err := a.prompt("Path to identity document")
	if err != nil {
		return a.report(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return a.report(err)
	}
	key, err := a.api.UploadDocument(ctx, "", data)
	if err != nil {
		return a.report(err)
	}
	fmt.Fprintln(a.out, "Uploaded as", key)
	return nil
}

// Keygen writes a fresh RS256 key pair to the configured keys directory.
// Existing files are never replaced.
func (a *App) Keygen(ctx context.Context) error {
	dir, err := filex.EnsureSubdDir(a.config.KeysDir)
	if err != nil {
		return a.report(err)
	}
	keys, err := auth.GenerateKeyMaterial(keyBits)
	if err != nil {
		return a.report(err)
	}
	privPEM, pubPEM, err := keys.EncodePEM()
	if err != nil {
		return a.report(err)
	}

	privPath, err := filex.WriteNewFile(dir, "jwt_private.pem", privPEM, 0o600)
	if err != nil {
		return a.report(err)
	}
	pubPath, err := filex.WriteNewFile(dir, "jwt_public.pem", pubPEM, 0o644)
	if err != nil {
		_ = os.Remove(privPath)
		return a.report(err)
	}
	fmt.Fprintf(a.out, "Wrote %s and %s\nSet JWT_PRIVATE_KEY_PATH and JWT_PUBLIC_KEY_PATH on the server.\n", privPath, pubPath)
	return nil
}
