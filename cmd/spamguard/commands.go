package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/totegamma/spamguard/internal/domain"
	"github.com/totegamma/spamguard/internal/infrastructure/providers"
	"github.com/totegamma/spamguard/internal/service"
	"github.com/totegamma/spamguard/internal/usecase"
)

var (
	handleRigorous bool
	scanSince      time.Duration
	scanEnqueue    bool
	scanDryRun     bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the moderation tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := providers.NewDatabase(conf.Server)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		if err := providers.MigrateDatabase(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("migration complete")
		return nil
	},
}

var checkDomainCmd = &cobra.Command{
	Use:   "check-domain [user-id]",
	Short: "Block the user's email domain if it only produces spam accounts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		s, err := buildStack(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer s.Close()

		blocked, err := s.app.DomainDetector.CheckUser(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"user_id": id, "blocked": blocked})
	},
}

var handleCmd = &cobra.Command{
	Use:   "handle [article|comment|user] [id]",
	Short: "Run spam handling for one article, comment or user profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := domain.ParseContentKind(args[0])
		if err != nil {
			return err
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		s, err := buildStack(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		var outcome usecase.Outcome
		switch kind {
		case domain.KindArticle:
			outcome, err = s.app.SpamHandler.HandleArticle(ctx, id)
		case domain.KindComment:
			outcome, err = s.app.SpamHandler.HandleComment(ctx, id)
		case domain.KindUser:
			outcome, err = s.app.SpamHandler.HandleUser(ctx, id, usecase.HandleUserOptions{Rigorous: handleRigorous})
		}
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"kind": kind, "id": id, "outcome": outcome})
	},
}

var scanRingsCmd = &cobra.Command{
	Use:   "scan-rings [user-id]",
	Short: "Detect reaction rings for one user, or for every recently active user",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := buildStack(ctx, scanEnqueue)
		if err != nil {
			return err
		}
		defer s.Close()

		if len(args) == 1 {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if scanDryRun {
				analysis, err := s.app.RingDetector.Analyze(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(analysis)
			}
			ring, err := s.app.RingDetector.Call(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"user_id": id, "ring": ring})
		}

		window := scanSince
		if window <= 0 {
			window = conf.RingThresholds().Window
		}
		since := time.Now().Add(-window)

		if scanEnqueue {
			queued, err := s.app.RingScanner.Enqueue(ctx, since)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"queued": queued})
		}

		report, err := s.app.RingScanner.ScanRecent(ctx, since)
		if err != nil {
			// the report is still meaningful when some users failed
			logger.Error("ring scan finished with errors", zap.Error(err))
		}
		if printErr := printJSON(report); printErr != nil {
			return printErr
		}
		return err
	},
}

var flagCmd = &cobra.Command{
	Use:   "flag",
	Short: "Manage feature flags",
}

var flagSetCmd = &cobra.Command{
	Use:   "set [name] [true|false]",
	Short: "Enable or disable a feature flag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("invalid flag value %q", args[1])
		}
		rdb := providers.NewRedis(conf.Server)
		defer rdb.Close()

		flags := service.NewFeatureFlags(rdb, conf.Spam.Flags, conf.Spam.FlagCacheTTL, logger)
		if err := flags.Set(cmd.Context(), args[0], enabled); err != nil {
			return err
		}
		return printJSON(map[string]any{"flag": args[0], "enabled": enabled})
	},
}

func init() {
	handleCmd.Flags().BoolVar(&handleRigorous, "rigorous", false, "Check user profiles even when the rigorous checking flag is off")
	scanRingsCmd.Flags().DurationVar(&scanSince, "since", 0, "Only consider users active within this duration (default: ring window)")
	scanRingsCmd.Flags().BoolVar(&scanEnqueue, "enqueue", false, "Queue one job per user on RabbitMQ instead of scanning inline")
	scanRingsCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "Explain the detection for one user without penalizing")
	flagCmd.AddCommand(flagSetCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
