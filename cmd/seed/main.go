// Command seed inserts an admin and a demo partner so a fresh Supabase project can be
// exercised end to end. Rows that already exist are left untouched.
package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

type seedUser struct {
	ID       string
	Email    string
	FullName string
	Role     string
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}
	log.Println("✅ Successfully connected to database")

	users := []seedUser{
		{
			ID:       getEnv("SEED_ADMIN_ID", uuid.NewString()),
			Email:    getEnv("SEED_ADMIN_EMAIL", "admin@luxe.local"),
			FullName: "Platform Admin",
			Role:     "admin",
		},
		{
			ID:       getEnv("SEED_PARTNER_ID", uuid.NewString()),
			Email:    getEnv("SEED_PARTNER_EMAIL", "partner@luxe.local"),
			FullName: "Demo Yacht Charters",
			Role:     "partner",
		},
	}

	for _, u := range users {
		if err := insertUser(db, u); err != nil {
			log.Fatalf("Failed to seed %s: %v", u.Email, err)
		}
	}
	log.Println("✅ Seeding complete")
}

func insertUser(db *sql.DB, u seedUser) error {
	var existing string
	err := db.QueryRow("SELECT id FROM users WHERE email = $1", u.Email).Scan(&existing)
	if err == nil {
		log.Printf("⚠️  %s already exists (id %s). Skipping.", u.Email, existing)
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = db.Exec(
		`INSERT INTO users (id, email, full_name, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())`,
		u.ID, u.Email, u.FullName, u.Role,
	)
	if err != nil {
		return err
	}
	log.Printf("✅ Created %s %s (id %s)", u.Role, u.Email, u.ID)
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
