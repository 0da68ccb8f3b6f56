package main

import (
	"fmt"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/mailkite/mailkite/internal/config"
	"github.com/mailkite/mailkite/internal/db"
	"github.com/mailkite/mailkite/internal/models"
	"github.com/mailkite/mailkite/internal/repository"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management commands",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a new user",
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  runUserList,
}

var (
	userEmail    string
	userPassword string
	userName     string
)

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "User email")
	userAddCmd.Flags().StringVar(&userPassword, "password", "", "User password (will prompt if not provided)")
	userAddCmd.Flags().StringVar(&userName, "name", "", "User name")
	userAddCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)

	userCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/mailkite/config.yaml", "Path to configuration file")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}

	password := userPassword
	if password == "" {
		fmt.Print("Enter password: ")
		pwBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		fmt.Print("Confirm password: ")
		pwBytes2, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		if string(pwBytes) != string(pwBytes2) {
			return fmt.Errorf("passwords do not match")
		}
		password = string(pwBytes)
	}

	if len(password) < 10 {
		return fmt.Errorf("password must be at least 10 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	users := repository.NewUserRepository(database.DB)
	user := &models.User{
		Email:        userEmail,
		Name:         userName,
		PasswordHash: string(hash),
	}
	if err := users.Create(user); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("user with email %s already exists", userEmail)
		}
		return err
	}

	fmt.Printf("User %s created successfully\n", user.Email)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	users, err := repository.NewUserRepository(database.DB).List()
	if err != nil {
		return err
	}

	fmt.Printf("%-36s  %-30s  %-20s  %s\n", "ID", "Email", "Name", "Created")
	fmt.Println(strings.Repeat("-", 100))
	for _, u := range users {
		fmt.Printf("%-36s  %-30s  %-20s  %s\n", u.ID, u.Email, u.Name, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
