// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/unclebandit/fieldsales-recruit/internal/config"
	"github.com/unclebandit/fieldsales-recruit/internal/db"
	"github.com/unclebandit/fieldsales-recruit/internal/logging"
	"github.com/unclebandit/fieldsales-recruit/internal/repository"
	"github.com/unclebandit/fieldsales-recruit/internal/secrets"
	"github.com/unclebandit/fieldsales-recruit/internal/service"
)

const usage = `usage: seeder <command> [flags]

commands:
  seed      apply migrations, upsert packages and create the system account
  encrypt   encrypt a value with APP_KEY for use in SEED_SYSTEM_* variables
  keygen    print a new APP_KEY
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("seeder failed")
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "seed", "migrate":
		return seed(ctx, args[1:])
	case "encrypt":
		return encrypt(args[1:], out)
	case "keygen":
		key, err := secrets.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, key)
		return nil
	default:
		fmt.Fprint(out, usage)
		return errors.Errorf("unknown command %q", args[0])
	}
}

func seed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	packagesPath := fs.String("packages", "", "packages YAML file (defaults to the built-in catalog)")
	skipSystem := fs.Bool("skip-system", false, "do not create the system account")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup("seeder", cfg.LogLevel, cfg.LogPretty)

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}

	pkgs, err := db.LoadPackages(*packagesPath)
	if err != nil {
		return err
	}
	if err := db.SeedPackages(ctx, &repository.PackageRepository{DB: conn}, pkgs); err != nil {
		return err
	}
	log.Info().Int("packages", len(pkgs)).Msg("packages seeded")

	if *skipSystem {
		return nil
	}
	provider, err := secrets.NewProvider(cfg.Seed.AppKey)
	if err != nil {
		return err
	}
	b := &service.Bootstrapper{
		Store:   repository.NewStore(conn),
		Secrets: provider,
		Seed: service.SeedAttributes{
			Name:     cfg.Seed.Name,
			Email:    cfg.Seed.Email,
			Mobile:   cfg.Seed.Mobile,
			Password: cfg.Seed.Password,
		},
		Deposit: cfg.Seed.Deposit,
	}
	user, err := b.SeedSystemAccount(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("user_id", user.ID).Msg("system account ready")
	return nil
}

func encrypt(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("encrypt takes exactly one value")
	}
	key := os.Getenv("APP_KEY")
	if key == "" {
		return errors.New("APP_KEY is not set")
	}
	box, err := secrets.NewSecretBox(key)
	if err != nil {
		return err
	}
	sealed, err := box.Encrypt(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(out, sealed)
	return nil
}
