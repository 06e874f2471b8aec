// Command makeadmin grants the ADMIN role to an existing storefront account.
//
//	makeadmin -email ada@example.com
//
// It reads the same environment as the API server to locate the user store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vibek01/ECOM-D1/internal/di"
	"github.com/vibek01/ECOM-D1/internal/platform/config"
	"github.com/vibek01/ECOM-D1/internal/platform/observability"
	"github.com/vibek01/ECOM-D1/internal/platform/secrets"
	"github.com/vibek01/ECOM-D1/internal/services"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(context.Background(), os.Args[1:], os.Stdout, logger.Named("makeadmin")); err != nil {
		fmt.Fprintln(os.Stderr, "makeadmin:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, logger *zap.Logger) error {
	flags := flag.NewFlagSet("makeadmin", flag.ContinueOnError)
	flags.SetOutput(out)
	email := flags.String("email", "", "email address of the account to promote")
	timeout := flags.Duration("timeout", 30*time.Second, "overall deadline")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		flags.Usage()
		return errors.New("-email is required")
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	fetcher, err := secrets.NewFetcher(ctx, secrets.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("secret fetcher: %w", err)
	}
	defer func() { _ = fetcher.Close() }()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Store == config.StoreMemory {
		return errors.New("the memory store holds no accounts; set API_STORE=firestore")
	}

	reg, err := di.OpenRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Close(context.Background()) }()

	users, err := services.NewUserService(services.UserServiceDeps{
		Users:  reg.Users(),
		Logger: observability.ServiceLogger(logger),
	})
	if err != nil {
		return err
	}
	return promote(ctx, users, *email, out)
}

func promote(ctx context.Context, users services.UserService, email string, out io.Writer) error {
	user, err := users.PromoteToAdmin(ctx, email)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return fmt.Errorf("no user registered with email %q", strings.TrimSpace(email))
		}
		return err
	}
	fmt.Fprintf(out, "%s (%s) is now %s\n", user.Email, user.ID, user.Role)
	return nil
}
