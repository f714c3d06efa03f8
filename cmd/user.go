// cmd/user.go
package cmd

import (
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"github.com/markb/linglite/internal/auth"
	"github.com/markb/linglite/internal/db"
	"github.com/markb/linglite/internal/profile"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
	Long:  `Commands for managing user accounts.`,
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	Long: `Create a new user with the specified email. The password is read
from --password or prompted interactively.

Examples:
  # Create a new user, prompting for the password
  linglite user create --email user@example.com

  # Create a user non-interactively
  linglite user create --email user@example.com --password secret123`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		displayName, _ := cmd.Flags().GetString("display-name")
		dbPath, _ := cmd.Flags().GetString("db")

		if email == "" {
			return fmt.Errorf("--email is required")
		}

		if password == "" {
			var err error
			password, err = promptPassword("Enter password: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassword("Confirm password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}
		}
		if len(password) < 6 {
			return fmt.Errorf("password must be at least 6 characters")
		}

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database not found at %s. Run 'linglite init' first", dbPath)
		}

		database, err := db.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		service := auth.NewService(database, "not-needed-for-create")
		user, err := service.CreateUser(email, password, nil)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		if displayName == "" {
			displayName = user.Email
			for i, c := range displayName {
				if c == '@' {
					displayName = displayName[:i]
					break
				}
			}
		}
		if err := profile.NewService(database).Create(user.ID, displayName); err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}

		fmt.Printf("Created user: %s (ID: %s)\n", user.Email, user.ID)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	Long:  `Display all registered users.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database not found at %s. Run 'linglite init' first", dbPath)
		}

		database, err := db.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		rows, err := database.Query(`
			SELECT u.id, u.email, COALESCE(p.display_name, ''), u.created_at
			FROM auth_users u
			LEFT JOIN profiles p ON p.user_id = u.id
			WHERE u.deleted_at IS NULL
		`)
		if err != nil {
			return fmt.Errorf("failed to query users: %w", err)
		}
		defer rows.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tDISPLAY NAME\tCREATED")

		count := 0
		for rows.Next() {
			var id, email, name, createdAt string
			if err := rows.Scan(&id, &email, &name, &createdAt); err != nil {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, email, name, createdAt)
			count++
		}
		w.Flush()

		if count == 0 {
			fmt.Println("No users found")
		}

		return nil
	},
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)

	userCmd.PersistentFlags().String("db", "data.db", "Path to database file")

	userCreateCmd.Flags().String("email", "", "User email (required)")
	userCreateCmd.Flags().String("password", "", "User password (prompted if omitted)")
	userCreateCmd.Flags().String("display-name", "", "Profile display name (defaults to email local part)")
}
