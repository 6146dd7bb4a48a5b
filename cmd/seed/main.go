// Command seed creates the default accounts and a few sample cases.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/casetrack/casetrack/internal/auth"
	"github.com/casetrack/casetrack/internal/config"
	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/observability"
	"github.com/casetrack/casetrack/internal/persistence"
	"github.com/casetrack/casetrack/internal/repository"
)

type options struct {
	adminPassword string
	userPassword  string
	skipCases     bool
	bcryptCost    int
}

func main() {
	opts := options{}
	flagSet := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	flagSet.StringVar(&opts.adminPassword, "admin-password", "admin123", "password for the admin account")
	flagSet.StringVar(&opts.userPassword, "user-password", "user123", "password for the user1 account")
	flagSet.BoolVar(&opts.skipCases, "skip-cases", false, "do not create sample cases")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("parse flags: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	opts.bcryptCost = cfg.Auth.BcryptCost

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Postgres.DSN == "" {
		logger.Fatal("POSTGRES_DSN is required to seed the database")
	}

	ctx := context.Background()
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name+"-seed", logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	pool := pg.PoolHandle()
	if err := seed(ctx, repository.NewUserRepository(pool), repository.NewCaseRepository(pool), opts, logger); err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}
	logger.Info("database seeded")
}

func seed(ctx context.Context, users repository.UserRepository, cases repository.CaseRepository, opts options, logger *zap.Logger) error {
	admin, err := ensureUser(ctx, users, "admin", "admin@example.com", opts.adminPassword, domain.RoleAdmin, opts.bcryptCost, logger)
	if err != nil {
		return err
	}
	user, err := ensureUser(ctx, users, "user1", "user1@example.com", opts.userPassword, domain.RoleUser, opts.bcryptCost, logger)
	if err != nil {
		return err
	}
	if opts.skipCases {
		return nil
	}

	count, err := cases.Count(ctx)
	if err != nil {
		return fmt.Errorf("count cases: %w", err)
	}
	if count > 0 {
		logger.Info("cases already present; skipping samples", zap.Int("count", count))
		return nil
	}

	samples := []domain.Case{
		{
			Title:       "System Login Issue",
			Description: "Users unable to login to the system",
			Status:      domain.CaseStatusOpen,
			Priority:    domain.CasePriorityHigh,
			CreatedBy:   admin.ID,
			AssignedTo:  &user.ID,
		},
		{
			Title:       "Feature Request: Dark Mode",
			Description: "Implement dark mode for better user experience",
			Status:      domain.CaseStatusInProgress,
			Priority:    domain.CasePriorityMedium,
			CreatedBy:   user.ID,
		},
		{
			Title:       "Database Performance",
			Description: "Optimize database queries for better performance",
			Status:      domain.CaseStatusClosed,
			Priority:    domain.CasePriorityHigh,
			CreatedBy:   admin.ID,
			AssignedTo:  &admin.ID,
		},
	}
	for i := range samples {
		if err := cases.Create(ctx, &samples[i]); err != nil {
			return fmt.Errorf("create case %q: %w", samples[i].Title, err)
		}
	}
	logger.Info("sample cases created", zap.Int("count", len(samples)))
	return nil
}

func ensureUser(ctx context.Context, users repository.UserRepository, username, email, password string, role domain.Role, cost int, logger *zap.Logger) (*domain.User, error) {
	existing, err := users.GetByUsername(ctx, username)
	if err == nil {
		logger.Info("account exists", zap.String("username", username))
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lookup %s: %w", username, err)
	}

	hash, err := auth.HashPassword(password, cost)
	if err != nil {
		return nil, err
	}
	u := &domain.User{Username: username, Email: email, PasswordHash: hash, Role: role, IsActive: true}
	if err := users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create %s: %w", username, err)
	}
	logger.Info("account created", zap.String("username", username), zap.String("role", string(role)))
	return u, nil
}
