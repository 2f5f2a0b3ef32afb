package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"rollguard/internal/app"
	auditmodels "rollguard/internal/auditchain/models"
	clustermodels "rollguard/internal/cluster/models"
	"rollguard/internal/cluster/sweep"
	"rollguard/internal/platform/config"
	"rollguard/internal/platform/database"
	"rollguard/internal/platform/kafka/consumer"
	"rollguard/internal/platform/logger"
	"rollguard/internal/platform/middleware"
	revisionmodels "rollguard/internal/revision/models"
	id "rollguard/pkg/domain"
)

const dateLayout = "2006-01-02"

// withApp loads configuration, wires the services and runs fn as the
// configured actor.
func withApp(cctx *cli.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(cctx.App.ErrWriter, cctx.String("log-level"))
	ctx := middleware.WithActor(cctx.Context, middleware.Actor{
		ID:   cctx.String("actor"),
		Role: cctx.String("role"),
	})

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to release connections", "error", err)
		}
	}()
	return fn(ctx, a)
}

func printJSON(cctx *cli.Context, v any) error {
	enc := json.NewEncoder(cctx.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "Apply the embedded schema migrations",
	Action: func(cctx *cli.Context) error {
		return withApp(cctx, func(ctx context.Context, a *app.App) error {
			if err := database.Migrate(ctx, a.Pool); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cctx.App.Writer, "migrations applied (%s)\n", a.Pool.Dialect().Name())
			return err
		})
	},
}

var sweepCmd = &cli.Command{
	Name:  "sweep",
	Usage: "Run one cluster anomaly sweep",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "dispatch",
			Usage: "Queue alerts for newly suspicious clusters in the outbox.",
		},
	},
	Action: func(cctx *cli.Context) error {
		return withApp(cctx, func(ctx context.Context, a *app.App) error {
			scheduler := sweep.NewScheduler(a.Clusters,
				sweep.WithBufferSize(a.Config.Cluster.AlertBufferSize),
				sweep.WithLogger(a.Logger),
			)
			res, err := scheduler.RunOnce(ctx)
			if err != nil {
				return err
			}
			if cctx.Bool("dispatch") {
				n, err := drainAlerts(ctx, scheduler.Alerts(), sweep.NewDispatcher(scheduler.Alerts(), a.Outbox, a.Logger))
				if err != nil {
					return err
				}
				a.Logger.InfoContext(ctx, "cluster alerts queued", "count", n)
			}
			return printJSON(cctx, res)
		})
	},
}

func drainAlerts(ctx context.Context, alerts <-chan clustermodels.Alert, d *sweep.Dispatcher) (int, error) {
	n := 0
	for {
		select {
		case alert := <-alerts:
			if err := d.Dispatch(ctx, alert); err != nil {
				return n, err
			}
			n++
		default:
			return n, nil
		}
	}
}

var dryRunCmd = &cli.Command{
	Name:  "dry-run",
	Usage: "Scan the roll and record a draft revision batch",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "region", Usage: "Limit the scan to one region."},
		&cli.StringFlag{Name: "from", Usage: "Earliest registration date (YYYY-MM-DD)."},
		&cli.StringFlag{Name: "to", Usage: "Latest registration date (YYYY-MM-DD)."},
		&cli.IntFlag{Name: "scan-cap", Usage: "Maximum findings per flag type; 0 uses the configured cap."},
	},
	Action: func(cctx *cli.Context) error {
		scope := revisionmodels.Scope{
			Region:  cctx.String("region"),
			ScanCap: cctx.Int("scan-cap"),
		}
		var err error
		if scope.From, err = parseDate(cctx.String("from")); err != nil {
			return err
		}
		if scope.To, err = parseDate(cctx.String("to")); err != nil {
			return err
		}
		return withApp(cctx, func(ctx context.Context, a *app.App) error {
			res, err := a.Revisions.RunDryRun(ctx, scope)
			if err != nil {
				return err
			}
			return printJSON(cctx, res)
		})
	},
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return &t, nil
}

var commitCmd = &cli.Command{
	Name:  "commit",
	Usage: "Apply the eligible flags of a draft batch",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "batch", Usage: "Batch ID.", Required: true},
	},
	Action: func(cctx *cli.Context) error {
		batchID, err := id.ParseBatchID(cctx.String("batch"))
		if err != nil {
			return fmt.Errorf("invalid batch id: %w", err)
		}
		return withApp(cctx, func(ctx context.Context, a *app.App) error {
			res, err := a.Revisions.CommitBatch(ctx, batchID)
			if err != nil {
				return err
			}
			return printJSON(cctx, res)
		})
	},
}

var cancelCmd = &cli.Command{
	Name:  "cancel",
	Usage: "Cancel a draft batch and reject its pending flags",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "batch", Usage: "Batch ID.", Required: true},
		&cli.StringFlag{Name: "reason", Usage: "Why the batch is abandoned.", Required: true},
	},
	Action: func(cctx *cli.Context) error {
		batchID, err := id.ParseBatchID(cctx.String("batch"))
		if err != nil {
			return fmt.Errorf("invalid batch id: %w", err)
		}
		return withApp(cctx, func(ctx context.Context, a *app.App) error {
			batch, err := a.Revisions.CancelBatch(ctx, batchID, cctx.String("reason"))
			if err != nil {
				return err
			}
			return printJSON(cctx, batch)
		})
	},
}

var verifyChainCmd = &cli.Command{
	Name:  "verify-chain",
	Usage: "Recompute every audit hash and report the first break",
	Action: func(cctx *cli.Context) error {
		return withApp(cctx, func(ctx context.Context, a *app.App) error {
			v, err := a.Verifier.VerifyHashChain(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cctx.App.Writer, "verification %s: %s, %d blocks, %d invalid\n",
				v.VerificationID, v.ChainHealth, v.TotalBlocks, v.InvalidBlocks)
			if v.ChainHealth != auditmodels.ChainHealthy {
				return cli.Exit(fmt.Sprintf("audit chain broken at seq %d", v.FirstInvalidSeq), 2)
			}
			return nil
		})
	},
}

var importDeathsCmd = &cli.Command{
	Name:  "import-deaths",
	Usage: "Load death-registry records from CSV",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "file", Usage: "CSV path.", Required: true},
		&cli.StringFlag{Name: "source", Usage: "Source label stored with each row."},
	},
	Action: func(cctx *cli.Context) error {
		f, err := os.Open(cctx.String("file"))
		if err != nil {
			return err
		}
		defer f.Close()
		return withApp(cctx, func(ctx context.Context, a *app.App) error {
			n, err := a.Revisions.ImportDeaths(ctx, f, cctx.String("source"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cctx.App.Writer, "imported %d death records\n", n)
			return err
		})
	},
}

var importNamesCmd = &cli.Command{
	Name:  "import-names",
	Usage: "Load the name-frequency corpus from CSV",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "file", Usage: "CSV path with role,name,frequency rows.", Required: true},
	},
	Action: func(cctx *cli.Context) error {
		f, err := os.Open(cctx.String("file"))
		if err != nil {
			return err
		}
		defer f.Close()
		return withApp(cctx, func(ctx context.Context, a *app.App) error {
			n, err := a.NameImporter.ImportCSV(ctx, f)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cctx.App.Writer, "imported %d name frequencies\n", n)
			return err
		})
	},
}

var tokenCmd = &cli.Command{
	Name:  "token",
	Usage: "Issue a bearer token for the configured actor",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime.", Value: time.Hour},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := config.Load(cctx.String("config"))
		if err != nil {
			return err
		}
		if cfg.Server.JWTSigningKey == "" {
			return errors.New("JWT_SIGNING_KEY is not configured")
		}
		tokens := middleware.NewTokenService(cfg.Server.JWTSigningKey)
		token, err := tokens.Issue(middleware.Actor{
			ID:   cctx.String("actor"),
			Role: cctx.String("role"),
		}, time.Now(), cctx.Duration("ttl"))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cctx.App.Writer, token)
		return err
	},
}

var watchAlertsCmd = &cli.Command{
	Name:  "watch-alerts",
	Usage: "Print cluster alerts as they arrive on Kafka",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "group", Usage: "Consumer group ID.", Value: "rollctl-watch"},
		&cli.BoolFlag{Name: "from-latest", Usage: "Skip alerts published before the group first joined."},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := config.Load(cctx.String("config"))
		if err != nil {
			return err
		}
		log := logger.NewWithWriter(cctx.App.ErrWriter, cctx.String("log-level"))

		handler := consumer.HandlerFunc(func(_ context.Context, msg *consumer.Message) error {
			var alert clustermodels.Alert
			if err := json.Unmarshal(msg.Value, &alert); err != nil {
				log.Warn("skipping undecodable alert", "offset", msg.Offset, "error", err)
				return nil
			}
			_, err := fmt.Fprintf(cctx.App.Writer, "%s  %-8s score=%.2f voters=%d flag=%s\n",
				alert.DetectedAt.Format(time.RFC3339), alert.RiskLevel, alert.RiskScore, alert.VoterCount, alert.FlagID)
			return err
		})
		c, err := consumer.New(consumer.Config{
			Brokers:    cfg.Kafka.Brokers,
			GroupID:    cctx.String("group"),
			Topics:     []string{cfg.Kafka.AlertTopic},
			FromLatest: cctx.Bool("from-latest"),
		}, handler, log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return c.Run(ctx)
	},
}
