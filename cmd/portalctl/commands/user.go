package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/blinkportal/backend/internal/db"
	"github.com/blinkportal/backend/internal/model"
	"github.com/blinkportal/backend/internal/policy"
	"github.com/blinkportal/backend/internal/service"
)

var (
	// create-user flags
	userEmail    string
	userPassword string
	userName     string
	userAdmin    bool
)

// createUserCmd provisions an account without going through the API, which is
// how the first admin gets created.
var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a portal user",
	Long: `Create a portal user directly in the database.

Examples:
  portalctl create-user --email ops@example.com --password s3cret-pass --admin
  echo s3cret-pass | portalctl create-user --email client@example.com --password -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := openDB()
		if err != nil {
			return err
		}
		if err := db.Migrate(gdb); err != nil {
			return err
		}
		password, err := readPassword(cmd.InOrStdin(), userPassword)
		if err != nil {
			return err
		}
		user, err := createUser(cmd, gdb, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %d <%s> role=%s\n", user.ID, user.Email, user.Role)
		return nil
	},
}

func init() {
	createUserCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	createUserCmd.Flags().StringVar(&userPassword, "password", "", `Password, or "-" to read it from stdin (required)`)
	createUserCmd.Flags().StringVar(&userName, "name", "", "Full name")
	createUserCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant the admin role")
	_ = createUserCmd.MarkFlagRequired("email")
	_ = createUserCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(createUserCmd)
}

func createUser(cmd *cobra.Command, gdb *gorm.DB, password string) (*model.User, error) {
	role := model.RoleClient
	if userAdmin {
		role = model.RoleAdmin
	}
	auth := service.NewAuthService(gdb, nil, "", time.Minute, time.Minute)
	// ID 0 marks the operator; no portal account performs this.
	operator := policy.Actor{Role: model.RoleAdmin}
	user, err := auth.CreateUser(cmd.Context(), operator, service.UserInput{
		Email:    userEmail,
		Password: password,
		FullName: userName,
		Role:     role,
	})
	var serr *service.Error
	if errors.As(err, &serr) {
		return nil, errors.New(serr.Message)
	}
	return user, err
}

func readPassword(in io.Reader, flag string) (string, error) {
	if flag != "-" {
		return flag, nil
	}
	b, err := io.ReadAll(io.LimitReader(in, 1024))
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}
