// Command seedadmin provisions an administrator account. Admin accounts are
// created out of band only; the API has no signup endpoint.
//
// Usage:
//
//	seedadmin -email admin@example.com -password 'Str0ng!pass'
//
// Running it again for the same email updates the stored password.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/roadwatch/roadwatch/internal/config"
	"github.com/roadwatch/roadwatch/internal/database"
)

func main() {
	email := flag.String("email", "", "admin email address")
	password := flag.String("password", "", "admin password")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: seedadmin -email <email> -password <password>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("loading config: %v", err)
	}

	db, err := database.NewMariaDB(cfg.Database)
	if err != nil {
		fatal("connecting to MariaDB: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db, "db/migrations"); err != nil {
		fatal("running migrations: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), cfg.Auth.BcryptCost)
	if err != nil {
		fatal("hashing password: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	normalized := strings.ToLower(strings.TrimSpace(*email))
	query := `INSERT INTO admins (id, email, password_hash, created_at)
		VALUES (?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE password_hash = VALUES(password_hash)`

	if _, err := db.ExecContext(ctx, query, uuid.NewString(), normalized, string(hash)); err != nil {
		fatal("seeding admin: %v", err)
	}

	fmt.Printf("admin %s provisioned\n", normalized)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
