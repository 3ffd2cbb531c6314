package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/bavena95/portal-creditos/internal/store"
)

const (
	adminPasswordEnv = "PORTAL_ADMIN_PASSWORD"
	minAdminPassword = 8
)

var (
	adminEmail    string
	adminName     string
	adminPassword string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage dashboard administrators",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an administrator or reset an existing one's password",
	Long: `Create stores an administrator with a bcrypt password hash. Running it again
for the same email replaces the name and password.

The password is read from --password or, preferably, from the
PORTAL_ADMIN_PASSWORD environment variable so it stays out of shell history.`,
	RunE: runAdminCreate,
}

func init() {
	adminCreateCmd.Flags().StringVar(&adminEmail, "email", "", "administrator email (required)")
	adminCreateCmd.Flags().StringVar(&adminName, "name", "", "display name")
	adminCreateCmd.Flags().StringVar(&adminPassword, "password", "", "password (defaults to $"+adminPasswordEnv+")")
	_ = adminCreateCmd.MarkFlagRequired("email")
	adminCmd.AddCommand(adminCreateCmd)
}

func runAdminCreate(cmd *cobra.Command, args []string) error {
	password := adminPassword
	if password == "" {
		password = os.Getenv(adminPasswordEnv)
	}
	admin, err := newAdminUser(adminEmail, adminName, password)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bootstrap.Timeout)
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	saved, err := st.UpsertAdmin(ctx, admin)
	if err != nil {
		return fmt.Errorf("saving admin: %w", err)
	}
	slog.Info("admin saved", "admin_id", saved.ID, "email", saved.Email)
	return nil
}

// newAdminUser validates the input and hashes the password.
func newAdminUser(email, name, password string) (store.AdminUser, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return store.AdminUser{}, fmt.Errorf("invalid email %q", email)
	}
	if len(password) < minAdminPassword {
		return store.AdminUser{}, errors.New("password must have at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.AdminUser{}, fmt.Errorf("hashing password: %w", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}
	return store.AdminUser{Email: email, Name: name, PasswordHash: string(hash)}, nil
}
