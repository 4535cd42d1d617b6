package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	serveradapter "github.com/hylla/strand/internal/adapters/server"
	"github.com/hylla/strand/internal/adapters/storage/sqlite"
	"github.com/hylla/strand/internal/app"
	"github.com/hylla/strand/internal/broadcast"
	"github.com/hylla/strand/internal/config"
	"github.com/hylla/strand/internal/platform"
)

// version is stamped at build time.
var version = "dev"

// runtime carries the resolved startup state shared by subcommands.
type runtime struct {
	appName string
	devMode bool
	paths   platform.Paths
	cfg     config.Config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := fang.Execute(ctx, newRootCmd(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		dbPath     string
		appName    string
		devMode    bool
	)

	root := &cobra.Command{
		Use:   "strand",
		Short: "Work-stream lifecycle tracker",
		Long:  "Strand tracks engineering work streams, their audit history, and the commits recorded against them, and serves both a REST API and an MCP endpoint.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "path to sqlite database")
	root.PersistentFlags().StringVar(&appName, "app", "strand", "application name for config/data path resolution")
	root.PersistentFlags().BoolVar(&devMode, "dev", version == "dev", "use dev mode paths (<app>-dev)")

	resolve := func() (runtime, error) {
		return resolveRuntime(configPath, dbPath, appName, devMode)
	}

	root.AddCommand(newServeCmd(resolve))
	root.AddCommand(newPathsCmd(resolve))
	return root
}

// resolveRuntime merges flags, environment, and the config file into one
// startup state. Flags win over environment, environment wins over defaults.
func resolveRuntime(configPath, dbPath, appName string, devMode bool) (runtime, error) {
	appName = strings.TrimSpace(appName)
	if appName == "" {
		appName = "strand"
	}

	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: appName,
		DevMode: devMode,
	})
	if err != nil {
		return runtime{}, err
	}

	if strings.TrimSpace(configPath) == "" {
		if envPath := strings.TrimSpace(os.Getenv("STRAND_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbOverridden := strings.TrimSpace(dbPath) != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("STRAND_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return runtime{}, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	return runtime{
		appName: appName,
		devMode: devMode,
		paths:   paths,
		cfg:     cfg,
	}, nil
}

func newServeCmd(resolve func() (runtime, error)) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, SSE change feed, and MCP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolve()
			if err != nil {
				return err
			}
			logger := newLogger(rt.appName)
			charmLog.SetDefault(logger)

			if httpBind != "" {
				rt.cfg.Server.Bind = httpBind
			}
			if apiEndpoint != "" {
				rt.cfg.Server.APIEndpoint = apiEndpoint
			}
			if mcpEndpoint != "" {
				rt.cfg.Server.MCPEndpoint = mcpEndpoint
			}

			logger.Info("opening sqlite repository", "db_path", rt.cfg.Database.Path)
			repo, err := sqlite.Open(rt.cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("open sqlite repository: %w", err)
			}
			defer func() {
				if closeErr := repo.Close(); closeErr != nil {
					logger.Warn("sqlite close failed", "db_path", rt.cfg.Database.Path, "err", closeErr)
				}
			}()

			changes := broadcast.New(rt.cfg.Broadcast.Buffer)
			svc := app.NewService(repo, changes, uuid.NewString, time.Now)

			logger.Info("serving",
				"bind", rt.cfg.Server.Bind,
				"api_endpoint", rt.cfg.Server.APIEndpoint,
				"mcp_endpoint", rt.cfg.Server.MCPEndpoint,
			)
			return serveradapter.Run(cmd.Context(), serveradapter.Config{
				HTTPBind:      rt.cfg.Server.Bind,
				APIEndpoint:   rt.cfg.Server.APIEndpoint,
				MCPEndpoint:   rt.cfg.Server.MCPEndpoint,
				ServerName:    rt.appName,
				ServerVersion: version,
				SSEKeepAlive:  time.Duration(rt.cfg.Broadcast.KeepAliveSeconds) * time.Second,
			}, serveradapter.Dependencies{
				Service: svc,
				Changes: changes,
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint (overrides config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint (overrides config)")
	return cmd
}

func newPathsCmd(resolve func() (runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the resolved config and data paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolve()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", rt.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", rt.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", rt.paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", rt.paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", rt.cfg.Database.Path)
			return nil
		},
	}
}

// newLogger builds the process logger, honoring STRAND_LOG_LEVEL.
func newLogger(appName string) *charmLog.Logger {
	level := charmLog.InfoLevel
	if raw := strings.TrimSpace(os.Getenv("STRAND_LOG_LEVEL")); raw != "" {
		if parsed, err := charmLog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	return charmLog.NewWithOptions(os.Stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
}
