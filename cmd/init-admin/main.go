package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"aigate/internal/config"
	"aigate/internal/models"
	"aigate/internal/storage"
	"aigate/internal/utils"
)

func main() {
	fmt.Println("AI Gateway - Bootstrap Admin Initialization")

	// Load configuration (primarily for database connection)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "ERROR: AIGATE_DATABASE_URL must be set; the in-memory store seeds its admin from AIGATE_ADMIN_USERNAME/AIGATE_ADMIN_PASSWORD at gateway startup")
		os.Exit(1)
	}

	// Get bootstrap credentials from environment
	username := strings.TrimSpace(os.Getenv("ADMIN_BOOTSTRAP_USERNAME"))
	password := os.Getenv("ADMIN_BOOTSTRAP_PASSWORD")

	if username == "" || password == "" {
		fmt.Fprintln(os.Stderr, "ERROR: ADMIN_BOOTSTRAP_USERNAME and ADMIN_BOOTSTRAP_PASSWORD must be set")
		os.Exit(1)
	}

	if len(password) < 8 {
		fmt.Fprintln(os.Stderr, "ERROR: Password must be at least 8 characters long")
		os.Exit(1)
	}

	// Connect to database
	fmt.Println("Connecting to database...")
	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := storage.EnsureSchema(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to ensure schema: %v\n", err)
		os.Exit(1)
	}

	repo := storage.NewAdminUserRepository(db)

	// Check if any admin users already exist
	fmt.Println("Checking for existing admin users...")
	existingUsers, err := repo.ListAdmins(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to check existing users: %v\n", err)
		os.Exit(1)
	}

	if len(existingUsers) > 0 {
		fmt.Printf("INFO: Found %d existing admin user(s). Bootstrap not needed.\n", len(existingUsers))
		for _, user := range existingUsers {
			status := "enabled"
			if !user.Enabled {
				status = "disabled"
			}
			fmt.Printf("  - %s (%s)\n", user.Username, status)
		}
		fmt.Println("Exiting successfully (no action taken)")
		os.Exit(0)
	}

	// Hash password using Argon2
	fmt.Println("Hashing password using Argon2...")
	passwordHash, err := utils.HashPasswordArgon2(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	// Create bootstrap admin user
	fmt.Printf("Creating bootstrap admin user: %s\n", username)
	adminUser := &models.AdminUser{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := repo.CreateAdmin(ctx, adminUser); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to create admin user: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("SUCCESS: Bootstrap admin user created")
	fmt.Printf("Username: %s\n", adminUser.Username)
	fmt.Printf("ID: %s\n", adminUser.ID)
	fmt.Println("\nFor security, remove ADMIN_BOOTSTRAP_USERNAME and ADMIN_BOOTSTRAP_PASSWORD from your environment.")
}
