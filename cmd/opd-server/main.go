package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carepoint/opd/internal/config"
	"github.com/carepoint/opd/internal/domain/staff"
	"github.com/carepoint/opd/internal/platform/catalog"
	"github.com/carepoint/opd/internal/platform/db"
	"github.com/carepoint/opd/internal/platform/sandbox"
	"github.com/carepoint/opd/internal/platform/scheduler"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "opd-server",
		Short:        "Hospital outpatient department API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// connect loads the config and opens the pool shared by every command.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "opd-server",
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the OPD API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
			}
			return w.Flush()
		},
	})

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff account, typically the first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := staff.CreateUserRequest{}
			req.Username, _ = cmd.Flags().GetString("username")
			req.FullName, _ = cmd.Flags().GetString("name")
			req.Role, _ = cmd.Flags().GetString("role")
			if dept, _ := cmd.Flags().GetString("department"); dept != "" {
				req.Department = &dept
			}
			req.Password = os.Getenv("OPD_USER_PASSWORD")
			if req.Password == "" {
				return fmt.Errorf("set OPD_USER_PASSWORD to the new account's password")
			}

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			a := newApp(cfg, pool, newLogger(cfg.Env))
			u, err := a.staff.CreateUser(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s %q (%s)\n", u.Role, u.Username, u.ID)
			return nil
		},
	}
	createCmd.Flags().String("username", "", "Login name")
	createCmd.Flags().String("name", "", "Full name")
	createCmd.Flags().String("role", "admin", "Role: admin, receptionist, doctor, pharmacist, physiotherapist or storekeeper")
	createCmd.Flags().String("department", "", "Department, for doctors")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("name")

	cmd.AddCommand(createCmd)
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage master data",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import suppliers, charges and medicines from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			file, err := catalog.Load(path)
			if err != nil {
				return err
			}

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(cfg.Env)
			a := newApp(cfg, pool, logger)
			res, err := catalog.Import(ctx, a.catalogStore(), file, logger)
			if err != nil {
				return err
			}
			fmt.Printf("suppliers: %d created, %d skipped\n", res.Suppliers.Created, res.Suppliers.Skipped)
			fmt.Printf("charges:   %d created, %d skipped\n", res.Charges.Created, res.Charges.Skipped)
			fmt.Printf("medicines: %d created, %d skipped\n", res.Medicines.Created, res.Medicines.Skipped)
			return nil
		},
	}
	importCmd.Flags().String("file", "", "Path to the catalog YAML")
	_ = importCmd.MarkFlagRequired("file")

	cmd.AddCommand(importCmd)
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate demo staff, patients and visits",
		RunE: func(cmd *cobra.Command, args []string) error {
			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.DoctorCount, _ = cmd.Flags().GetInt("doctors")
			seedCfg.PatientCount, _ = cmd.Flags().GetInt("patients")
			seedCfg.VisitsPerPatient, _ = cmd.Flags().GetInt("visits")
			seedCfg.Seed, _ = cmd.Flags().GetUint64("seed")
			if pw := os.Getenv("OPD_SEED_PASSWORD"); pw != "" {
				seedCfg.Password = pw
			}

			ctx := context.Background()
			cfg, pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to seed demo data with ENV=production")
			}

			logger := newLogger(cfg.Env)
			a := newApp(cfg, pool, logger)
			res, err := sandbox.NewSeeder(a.seedStore(), seedCfg, logger).Run(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d staff, %d patients, %d visits, %d medicine and %d treatment prescriptions in %s\n",
				res.Staff, res.Patients, res.Visits, res.Medicines, res.Treatments, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().Int("doctors", 4, "Number of doctors")
	cmd.Flags().Int("patients", 40, "Number of patients")
	cmd.Flags().Int("visits", 1, "Visits per patient")
	cmd.Flags().Uint64("seed", 0, "Random seed, 0 for a random run")
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "opd-server",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	a := newApp(cfg, pool, logger)
	e := a.router()

	sched := scheduler.New(time.Local, logger)
	for _, job := range a.jobs() {
		if err := sched.Daily(job); err != nil {
			logger.Fatal().Err(err).Str("job", job.Name).Msg("failed to schedule job")
		}
	}
	sched.Start()
	defer sched.Stop()
	for name, next := range sched.NextRuns() {
		logger.Info().Str("job", name).Time("next_run", next).Msg("job scheduled")
	}

	// Visits left open while the server was down are closed straight away.
	if _, err := a.visits.CloseDay(ctx); err != nil {
		logger.Warn().Err(err).Msg("startup day close failed")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

