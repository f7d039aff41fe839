package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/overture-stack/ego-sub000/internal/migrate"
	"github.com/overture-stack/ego-sub000/internal/obs"
)

func main() {
	dir := flag.String("dir", "migrations", "directory with migration files")
	flag.Parse()

	log := obs.Logger()

	dsn := os.Getenv("EGO_PG_DSN")
	if dsn == "" {
		log.Fatal("EGO_PG_DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.WithError(err).Fatal("open postgres")
	}
	defer db.Close()

	runner := migrate.New(db, *dir)
	ctx := context.Background()

	cmd := flag.Arg(0)
	switch cmd {
	case "", "up":
		if err := runner.Up(ctx); err != nil {
			log.WithError(err).Fatal("migrate up")
		}
		log.Info("migrations applied")
	case "down":
		if err := runner.Down(ctx); err != nil {
			log.WithError(err).Fatal("migrate down")
		}
		log.Info("last migration rolled back")
	case "status":
		applied, err := runner.Status(ctx)
		if err != nil {
			log.WithError(err).Fatal("migrate status")
		}
		for _, name := range applied {
			fmt.Println(name)
		}
	default:
		log.Fatalf("unknown command %q (want up, down or status)", cmd)
	}
}
