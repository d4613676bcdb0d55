package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aliuyar1234/projectportal/internal/audit"
	"github.com/aliuyar1234/projectportal/internal/auth"
	"github.com/aliuyar1234/projectportal/internal/db"
	"github.com/aliuyar1234/projectportal/internal/retention"
	"github.com/aliuyar1234/projectportal/internal/teams"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

const adminTimeout = 2 * time.Minute

func runAdmin(args []string) int {
	_ = godotenv.Load()

	if len(args) == 0 {
		printAdminUsage()
		return 2
	}

	switch args[0] {
	case "migrate":
		return runMigrate(args[1:])
	case "issue-token":
		return runIssueToken(args[1:])
	case "repair-groups":
		return runRepairGroups(args[1:])
	case "purge-invites":
		return runPurgeInvites(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown admin command: %s\n", args[0])
		printAdminUsage()
		return 2
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  portal admin migrate [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  portal admin issue-token --user-id <uuid> [--ttl 24h] [--secret <secret>]")
	fmt.Fprintln(os.Stderr, "  portal admin repair-groups [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "  portal admin purge-invites [--days 30] [--db-dsn <dsn>]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Notes:")
	fmt.Fprintln(os.Stderr, "  - --db-dsn defaults to PP_DB_DSN, --secret to PP_JWT_SECRET.")
	fmt.Fprintln(os.Stderr, "  - issue-token is for local testing; real tokens come from the auth service.")
}

func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func resolveDSN(dsn string) (string, bool) {
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("PP_DB_DSN"))
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "--db-dsn is required (or set PP_DB_DSN)")
		return "", false
	}
	return dsn, true
}

func connect(ctx context.Context, dsn string) (*pgxpool.Pool, bool) {
	pool, err := db.Connect(ctx, dsn, db.PoolOptions{MaxConns: 4})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, false
	}
	return pool, true
}

func runMigrate(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dsn := fs.String("db-dsn", "", "Postgres DSN (defaults to PP_DB_DSN)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	dbDSN, ok := resolveDSN(*dsn)
	if !ok {
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	pool, ok := connect(ctx, dbDSN)
	if !ok {
		return 1
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, "Migrations applied.")
	return 0
}

func runIssueToken(args []string) int {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	userIDFlag := fs.String("user-id", "", "User id (uuid)")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	secret := fs.String("secret", "", "Signing secret (defaults to PP_JWT_SECRET)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	userID, err := uuid.Parse(strings.TrimSpace(*userIDFlag))
	if err != nil || userID == uuid.Nil {
		fmt.Fprintln(os.Stderr, "--user-id must be a valid uuid")
		return 2
	}
	if *ttl <= 0 {
		fmt.Fprintln(os.Stderr, "--ttl must be positive")
		return 2
	}

	key := *secret
	if key == "" {
		key = os.Getenv("PP_JWT_SECRET")
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "--secret is required (or set PP_JWT_SECRET)")
		return 2
	}

	token, err := auth.CreateToken(userID, key, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		return 1
	}

	fmt.Fprintln(os.Stdout, token)
	return 0
}

func runRepairGroups(args []string) int {
	fs := flag.NewFlagSet("repair-groups", flag.ContinueOnError)
	dsn := fs.String("db-dsn", "", "Postgres DSN (defaults to PP_DB_DSN)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	dbDSN, ok := resolveDSN(*dsn)
	if !ok {
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	pool, ok := connect(ctx, dbDSN)
	if !ok {
		return 1
	}
	defer pool.Close()

	svc := teams.NewService(teams.NewPGStore(pool), nil)
	repaired, err := svc.RepairGroups(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Repair failed: %v\n", err)
		return 1
	}
	if repaired > 0 {
		audit.NewWriter(pool).LogGroupsRepaired(ctx, repaired)
	}

	fmt.Fprintf(os.Stdout, "Repaired %d groups.\n", repaired)
	return 0
}

func runPurgeInvites(args []string) int {
	fs := flag.NewFlagSet("purge-invites", flag.ContinueOnError)
	dsn := fs.String("db-dsn", "", "Postgres DSN (defaults to PP_DB_DSN)")
	days := fs.Int("days", 30, "Purge rejected and pending invites older than this many days")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	dbDSN, ok := resolveDSN(*dsn)
	if !ok {
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	pool, ok := connect(ctx, dbDSN)
	if !ok {
		return 1
	}
	defer pool.Close()

	res, err := retention.RunRetentionJob(ctx, teams.NewPGStore(pool), *days, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Purge failed: %v\n", err)
		return 1
	}
	audit.NewWriter(pool).LogInvitesPurged(ctx, res.RejectedDeleted, res.PendingDeleted, *days)

	fmt.Fprintf(os.Stdout, "Deleted %d rejected and %d pending invites.\n", res.RejectedDeleted, res.PendingDeleted)
	return 0
}
