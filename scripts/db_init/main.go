package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	dbfs "github.com/garnizeh/recruit/db"
	"github.com/garnizeh/recruit/internal/config"
	"github.com/garnizeh/recruit/internal/db"
	"github.com/garnizeh/recruit/internal/repository/sqlite"
	"github.com/garnizeh/recruit/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	adminEmail := flag.String("admin-email", "", "Create or promote this account to admin")
	adminPassword := flag.String("admin-password", "", "Password for a newly created admin account")
	adminName := flag.String("admin-name", "Administrator", "Name for a newly created admin account")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	database, err := db.New(ctx, cfg.DatabasePath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		fmt.Fprintf(os.Stderr, "Migration runner error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Database initialized successfully.")

	if *adminEmail == "" {
		return
	}
	if err := ensureAdmin(ctx, sqlite.New(database, nil), strings.ToLower(strings.TrimSpace(*adminEmail)), *adminPassword, *adminName); err != nil {
		fmt.Fprintf(os.Stderr, "Admin setup error: %v\n", err)
		os.Exit(1)
	}
}

// ensureAdmin promotes an existing account or creates a new admin one.
// Admin accounts cannot be created through the public signup route.
func ensureAdmin(ctx context.Context, repo *sqlite.SQLiteRepo, email, password, name string) error {
	u, err := repo.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u != nil {
		if u.Role == models.RoleAdmin {
			fmt.Printf("%s is already an admin.\n", email)
			return nil
		}
		if err := repo.UpdateUserRole(ctx, u.ID, models.RoleAdmin); err != nil {
			return err
		}
		fmt.Printf("Promoted %s to admin.\n", email)
		return nil
	}

	if len(password) < 8 {
		return fmt.Errorf("-admin-password must be at least 8 characters for a new account")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if _, err := repo.CreateUser(ctx, &models.User{Name: name, Email: email, Role: models.RoleAdmin, PasswordHash: string(hash)}); err != nil {
		return err
	}
	fmt.Printf("Created admin %s.\n", email)
	return nil
}
