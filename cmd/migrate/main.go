// cmd/migrate/main.go
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/joho/godotenv"
)

// Applies the SQL schema for the postgres store driver. Redis needs no
// migration.
func main() {
	schemaPath := flag.String("schema", "schema.sql", "path to the schema file")
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open database:", err)
		os.Exit(1)
	}
	defer db.Close()

	content, err := os.ReadFile(*schemaPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *schemaPath, err)
		os.Exit(1)
	}

	if _, err := db.Exec(string(content)); err != nil {
		fmt.Fprintf(os.Stderr, "apply %s: %v\n", *schemaPath, err)
		os.Exit(1)
	}

	fmt.Printf("Applied: %s\n", *schemaPath)
}
