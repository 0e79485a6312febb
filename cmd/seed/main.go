package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"variantree/internal/config"
	"variantree/internal/repository"
	"variantree/internal/repository/postgres"
	"variantree/internal/seed"
	branchingService "variantree/internal/service/branching"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop the message table before seeding (postgres only)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed conversations (postgres only)")
	threadID := flag.String("thread", "", "Thread id for the sample conversation (random if empty)")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("🚫 BLOCKED: Cannot run --drop-tables in production environment")
	}
	if (*dropTables || *schemaOnly) && cfg.StoreDriver != config.DriverPostgres {
		log.Fatalf("--drop-tables and --schema-only require STORE_DRIVER=%s", config.DriverPostgres)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx := context.Background()

	if cfg.StoreDriver == config.DriverPostgres {
		log.Printf("📋 Preparing schema (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
		if err := prepareSchema(ctx, cfg, *dropTables); err != nil {
			log.Fatalf("Failed to prepare schema: %v", err)
		}
		log.Println("✅ Schema ready")

		if *schemaOnly {
			return
		}
	}

	branching, err := config.LoadBranching(cfg.BranchingConfigPath)
	if err != nil {
		log.Fatalf("Failed to load branching config: %v", err)
	}

	// Schema was handled above
	cfg.AutoMigrate = false
	store, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	services := branchingService.SetupServices(store, *branching, nil, logger)
	seeder := seed.NewConversationSeeder(services, logger)

	if *threadID == "" {
		*threadID = uuid.NewString()
	}

	log.Printf("🌱 Seeding sample conversation (thread: %s, driver: %s)", *threadID, cfg.StoreDriver)
	res, err := seeder.SeedConversation(ctx, *threadID)
	if err != nil {
		log.Fatalf("Failed to seed conversation: %v", err)
	}

	log.Printf("✅ Created %d messages (%d variants) across branches %v", res.Messages, res.Variants, res.Branches)
	log.Println("🎉 Seeding complete!")
}

// prepareSchema optionally drops the message table, then applies the schema
func prepareSchema(ctx context.Context, cfg *config.Config, drop bool) error {
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)
	if drop {
		log.Println("🗑️  Dropping message table...")
		if err := postgres.DropSchema(ctx, pool, tables); err != nil {
			return err
		}
	}
	return postgres.Migrate(ctx, pool, tables)
}
