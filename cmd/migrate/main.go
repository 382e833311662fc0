package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"walletauth.org/internal/migrate"
	"walletauth.org/internal/obs"
)

func main() {
	_ = godotenv.Load()
	logger := obs.Logger()
	defer func() { _ = logger.Sync() }()

	dsn := flag.String("dsn", os.Getenv("WALLETAUTH_PG_DSN"), "PostgreSQL DSN")
	dir := flag.String("dir", "", "Directory with SQL migrations (defaults to the embedded schema)")
	flag.Parse()

	if *dsn == "" {
		logger.Fatal("missing DSN: provide via -dsn or WALLETAUTH_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		logger.Fatal("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	mgr := migrate.NewManager(db, nil)
	if *dir != "" {
		mgr = migrate.NewManager(db, os.DirFS(*dir))
	}

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		if err == nil && len(applied) == 0 {
			logger.Info("schema up to date")
		}
	case "down":
		_, err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		logger.Fatal("unknown command", zap.String("command", flag.Arg(0)))
	}
	if err != nil {
		logger.Fatal("migrate failed", zap.String("command", flag.Arg(0)), zap.Error(err))
	}
}
