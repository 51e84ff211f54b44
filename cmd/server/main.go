package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/tubekit/tubekit-server/internal/app"
	"github.com/tubekit/tubekit-server/internal/config"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses global flags and dispatches to the server or a subcommand.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tubekit", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 8318, "server port when the config file sets none")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if errValidate := validatePort(*port); errValidate != nil {
		return errValidate
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}
	configPath := config.ResolveConfigPath(appCfg.ConfigPath)

	rest := fs.Args()
	command := "serve"
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	switch command {
	case "serve":
		if !app.ConfigExists(configPath) && strings.TrimSpace(os.Getenv(config.EnvDBConnection)) == "" {
			return fmt.Errorf("config file %s not found (run init-config or set %s)", configPath, config.EnvDBConnection)
		}
		return app.RunServer(ctx, appCfg, *port)
	case "migrate":
		return app.Migrate(ctx, appCfg)
	case "init-config":
		sub := flag.NewFlagSet("init-config", flag.ContinueOnError)
		dsn := sub.String("dsn", "", "database DSN written to the config (default tubekit.db)")
		if errParse := sub.Parse(rest); errParse != nil {
			return errParse
		}
		return app.WriteConfigFile(configPath, *dsn, *port)
	case "create-admin":
		sub := flag.NewFlagSet("create-admin", flag.ContinueOnError)
		email := sub.String("email", "", "admin email")
		password := sub.String("password", "", "admin password (or env ADMIN_PASSWORD)")
		siteName := sub.String("site-name", "", "optional site name")
		if errParse := sub.Parse(rest); errParse != nil {
			return errParse
		}
		if *password == "" {
			*password = os.Getenv("ADMIN_PASSWORD")
		}
		return app.CreateAdminUser(appCfg, *email, *password, *siteName)
	case "reset-usage":
		sub := flag.NewFlagSet("reset-usage", flag.ContinueOnError)
		subjectKey := sub.String("subject", "", "subject key, e.g. u:42")
		toolID := sub.String("tool", "", "tool id, e.g. tag-generator")
		if errParse := sub.Parse(rest); errParse != nil {
			return errParse
		}
		return app.ResetUsage(ctx, appCfg, *subjectKey, *toolID)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
