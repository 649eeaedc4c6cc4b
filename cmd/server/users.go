package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiremsg/internal/store"
	"github.com/vovakirdan/wiremsg/internal/store/sqlite"
)

var exportBatchSize int

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
}

var usersExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all users to stdout as JSON lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if exportBatchSize <= 0 {
			return errors.New("--batch-size must be positive")
		}
		cfg, _, logger, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := sqlite.New(cfg.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := exportUsers(cmd.Context(), st, cmd.OutOrStdout(), exportBatchSize)
		if err != nil {
			return err
		}
		logger.Info().Int("users", n).Msg("export finished")
		return nil
	},
}

var usersGrantCmd = &cobra.Command{
	Use:   "grant <username> <group>",
	Short: "Add a user to a group, creating the group if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, logger, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := sqlite.New(cfg.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := grantGroup(cmd.Context(), st, args[0], args[1]); err != nil {
			return err
		}
		logger.Info().Str("username", args[0]).Str("group", args[1]).Msg("group granted, effective on next login")
		return nil
	},
}

func init() {
	usersExportCmd.Flags().IntVar(&exportBatchSize, "batch-size", 500, "users fetched per query")
	usersCmd.AddCommand(usersExportCmd, usersGrantCmd)
	rootCmd.AddCommand(usersCmd)
}

// exportedUser is one line of the export.
type exportedUser struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	IsStaff     bool      `json:"is_staff"`
	IsSuperuser bool      `json:"is_superuser"`
	Groups      []string  `json:"groups"`
	CreatedAt   time.Time `json:"created_at"`
}

// exportUsers pages through all users in batches so memory stays bounded.
func exportUsers(ctx context.Context, st store.UserStore, w io.Writer, batch int) (int, error) {
	enc := json.NewEncoder(w)
	total := 0
	for offset := 0; ; offset += batch {
		users, err := st.ListUsers(ctx, batch, offset)
		if err != nil {
			return total, fmt.Errorf("list users at offset %d: %w", offset, err)
		}
		for _, u := range users {
			groups, err := st.ListUserGroups(ctx, u.ID)
			if err != nil {
				return total, fmt.Errorf("groups of %s: %w", u.Username, err)
			}
			if groups == nil {
				groups = []string{}
			}
			if err := enc.Encode(exportedUser{
				ID:          u.ID,
				Username:    u.Username,
				Email:       u.Email,
				FirstName:   u.FirstName,
				LastName:    u.LastName,
				IsStaff:     u.IsStaff,
				IsSuperuser: u.IsSuperuser,
				Groups:      groups,
				CreatedAt:   u.CreatedAt,
			}); err != nil {
				return total, fmt.Errorf("write user: %w", err)
			}
			total++
		}
		if len(users) < batch {
			return total, nil
		}
	}
}

func grantGroup(ctx context.Context, st store.UserStore, username, group string) error {
	u, err := st.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("user %q not found", username)
		}
		return err
	}
	return st.AddUserToGroup(ctx, u.ID, group)
}
