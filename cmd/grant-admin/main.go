// Command grant-admin sets or clears the admin privilege on an account.
//
//	grant-admin -email ops@example.com
//	grant-admin -email ops@example.com -revoke
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/josh-kwaku/valorpoint/internal/config"
	"github.com/josh-kwaku/valorpoint/internal/domain"
	"github.com/josh-kwaku/valorpoint/internal/logging"
	"github.com/josh-kwaku/valorpoint/internal/repository"
)

func main() {
	email := flag.String("email", "", "email of the account to change")
	revoke := flag.Bool("revoke", false, "clear the admin privilege instead of granting it")
	flag.Parse()

	if strings.TrimSpace(*email) == "" {
		fmt.Fprintln(os.Stderr, "usage: grant-admin -email <address> [-revoke]")
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("valorpoint-grant-admin", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, 5)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	target := strings.ToLower(strings.TrimSpace(*email))
	grant := !*revoke

	if err := repository.NewAccountRepository(db).SetAdmin(ctx, target, grant); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Error("no live account with that email", "email", target)
		} else {
			slog.Error("failed to update admin privilege", "email", target, "error", err)
		}
		os.Exit(1)
	}

	slog.Info("admin privilege updated", "email", target, "is_admin", grant)
}
