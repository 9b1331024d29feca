package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SakenW/transhub/internal/adapters/cache/memory"
	dbsqlite "github.com/SakenW/transhub/internal/adapters/db/sqlite"
	"github.com/SakenW/transhub/internal/adapters/engine"
	"github.com/SakenW/transhub/internal/config"
	"github.com/SakenW/transhub/internal/ports"
	"github.com/SakenW/transhub/internal/ratelimit"
	"github.com/SakenW/transhub/internal/reusekey"
	"github.com/SakenW/transhub/internal/usecase/coordinator"
	"github.com/SakenW/transhub/internal/usecase/worker"
)

// app bundles everything a command needs, constructed once per invocation
// with explicit wiring.
type app struct {
	cfg   *config.Config
	log   *logrus.Logger
	db    *sql.DB
	coord *coordinator.Service
	work  *worker.Worker
	maint ports.MaintenanceRepository
}

func buildApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	db, err := dbsqlite.Init(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	projectRepo := dbsqlite.NewProjectRepo(db)
	contentRepo := dbsqlite.NewContentRepo(db)
	revisionRepo := dbsqlite.NewRevisionRepo(db)
	tmRepo := dbsqlite.NewTMRepo(db)
	outboxRepo := dbsqlite.NewOutboxRepo(db)
	maintRepo := dbsqlite.NewMaintenanceRepo(db)

	policies := reusekey.NewRegistry()

	// Engine registry is an explicit closed set.
	engines := engine.NewRegistry()
	engines.Register(engine.NewDebug(""))
	if cfg.Engine.BaseURL != "" {
		httpEngine, err := engine.NewHTTP("http", cfg.Engine.BaseURL, cfg.Engine.APIKey, cfg.Engine.Timeout)
		if err != nil {
			return nil, err
		}
		engines.Register(httpEngine)
	}
	eng, err := engines.Get(cfg.Engine.Name)
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.New(ratelimit.Config{
		RefillPerSecond: cfg.RateLimit.RefillPerSecond,
		Capacity:        cfg.RateLimit.Capacity,
	})
	if err != nil {
		return nil, err
	}

	coord := coordinator.New(coordinator.Deps{
		Projects:  projectRepo,
		Contents:  contentRepo,
		Revisions: revisionRepo,
		TM:        tmRepo,
		Policies:  policies,
		Cache:     memory.New(),
		Outbox:    outboxRepo,
		Log:       log,
	})
	work, err := worker.New(worker.Deps{
		Revisions: revisionRepo,
		Contents:  contentRepo,
		TM:        tmRepo,
		Policies:  policies,
		Engine:    eng,
		Limiter:   limiter,
		Log:       log,
	}, worker.Config{
		BatchSize:      cfg.Worker.BatchSize,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		InitialBackoff: cfg.Worker.InitialBackoff,
		PollInterval:   cfg.Worker.PollInterval,
	})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: db, coord: coord, work: work, maint: maintRepo}, nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "transhub",
		Short:         "Content-addressed translation-record store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "transhub.toml", "path to config file")
	root.AddCommand(workerCmd(&cfgPath))
	root.AddCommand(submitCmd(&cfgPath))
	root.AddCommand(resolveCmd(&cfgPath))
	root.AddCommand(publishCmd(&cfgPath))
	root.AddCommand(unpublishCmd(&cfgPath))
	root.AddCommand(rejectCmd(&cfgPath))
	root.AddCommand(gcCmd(&cfgPath))
	return root
}

func workerCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the draft processing loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.log.WithField("engine", a.cfg.Engine.Name).Info("worker started")
			return a.work.Run(ctx)
		},
	}
}

func submitCmd(cfgPath *string) *cobra.Command {
	var project, namespace, keysJSON, payloadJSON, srcLang, variant string
	var targets []string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Register content and queue translations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()
			keys, err := decodeJSONMap(keysJSON)
			if err != nil {
				return fmt.Errorf("--keys: %w", err)
			}
			payload, err := decodeJSONMap(payloadJSON)
			if err != nil {
				return fmt.Errorf("--payload: %w", err)
			}
			contentID, err := a.coord.Submit(cmd.Context(), coordinator.SubmitArgs{
				ProjectID:     project,
				Namespace:     namespace,
				Keys:          keys,
				SourcePayload: payload,
				TargetLangs:   targets,
				SourceLang:    srcLang,
				Variant:       variant,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), contentID)
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "default", "project id")
	cmd.Flags().StringVar(&namespace, "namespace", "", "content namespace")
	cmd.Flags().StringVar(&keysJSON, "keys", "{}", "structural key as JSON object")
	cmd.Flags().StringVar(&payloadJSON, "payload", "{}", "source payload as JSON object")
	cmd.Flags().StringSliceVar(&targets, "target", nil, "target language (repeatable)")
	cmd.Flags().StringVar(&srcLang, "source-lang", "", "source language")
	cmd.Flags().StringVar(&variant, "variant", "", "variant key")
	_ = cmd.MarkFlagRequired("namespace")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func resolveCmd(cfgPath *string) *cobra.Command {
	var project, namespace, keysJSON, lang, variant string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Fetch the published payload for a key and language",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()
			keys, err := decodeJSONMap(keysJSON)
			if err != nil {
				return fmt.Errorf("--keys: %w", err)
			}
			payload, err := a.coord.Resolve(cmd.Context(), project, namespace, keys, lang, variant)
			if err != nil {
				return err
			}
			if payload == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no published translation")
				return nil
			}
			b, _ := json.Marshal(payload)
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "default", "project id")
	cmd.Flags().StringVar(&namespace, "namespace", "", "content namespace")
	cmd.Flags().StringVar(&keysJSON, "keys", "{}", "structural key as JSON object")
	cmd.Flags().StringVar(&lang, "lang", "", "target language")
	cmd.Flags().StringVar(&variant, "variant", "", "variant key")
	_ = cmd.MarkFlagRequired("namespace")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

func publishCmd(cfgPath *string) *cobra.Command {
	return transitionCmd(cfgPath, "publish", "Publish a reviewed revision",
		func(a *app) func(context.Context, string) (bool, error) { return a.coord.PublishTranslation })
}

func unpublishCmd(cfgPath *string) *cobra.Command {
	return transitionCmd(cfgPath, "unpublish", "Retract a published revision",
		func(a *app) func(context.Context, string) (bool, error) { return a.coord.UnpublishTranslation })
}

func rejectCmd(cfgPath *string) *cobra.Command {
	return transitionCmd(cfgPath, "reject", "Reject a draft or reviewed revision",
		func(a *app) func(context.Context, string) (bool, error) { return a.coord.RejectTranslation })
}

func transitionCmd(cfgPath *string, use, short string, pick func(*app) func(context.Context, string) (bool, error)) *cobra.Command {
	var revisionID string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()
			ok, err := pick(a)(cmd.Context(), revisionID)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: precondition failed for revision %s\n", use, revisionID)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), use+"ed")
			return nil
		},
	}
	cmd.Flags().StringVar(&revisionID, "revision", "", "revision id")
	_ = cmd.MarkFlagRequired("revision")
	return cmd
}

func gcCmd(cfgPath *string) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Sweep expired content and unused TM entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()
			res, err := a.maint.RunGC(cmd.Context(),
				time.Duration(a.cfg.Retention.ContentDays)*24*time.Hour,
				time.Duration(a.cfg.Retention.TMDays)*24*time.Hour,
				dryRun)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "content: %d, tm: %d\n", res.DeletedContent, res.DeletedTM)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count without deleting")
	return cmd
}

// decodeJSONMap parses a flag value into a string-keyed map. Numbers stay
// json.Number so integer key fields survive canonicalization instead of
// arriving as float64.
func decodeJSONMap(s string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}
