package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/playrival/rival-server/internal/cache"
	"github.com/playrival/rival-server/internal/dependencies/clock"
	"github.com/playrival/rival-server/internal/model"
	"github.com/playrival/rival-server/internal/services/challenge"
	"github.com/playrival/rival-server/internal/storage/postgres"
)

// newDisputeCmd exposes the administrative DISPUTED transition. No socket
// message drives disputes; operators pull a challenge out of play here.
func newDisputeCmd() *cobra.Command {
	var challengeID string

	cmd := &cobra.Command{
		Use:   "dispute",
		Short: "Mark a challenge as disputed and purge its selections",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			if challengeID == "" {
				return errors.New("--challenge is required")
			}
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				return errors.New("DATABASE_URL is required")
			}

			pgCfg := postgres.DefaultConfig()
			pgCfg.DSN = dsn
			store, err := postgres.New(pgCfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			controller := challenge.NewController(store, cache.NewManager(), clock.New(), logger)
			disputed, err := controller.Dispute(context.Background(), model.ChallengeID(challengeID))
			if err != nil {
				return err
			}

			logger.Info("challenge disputed",
				slog.String("challenge_id", string(disputed.ID)),
				slog.String("status", string(disputed.Status)))
			return nil
		},
	}

	cmd.Flags().StringVar(&challengeID, "challenge", "", "Challenge id to dispute")

	return cmd
}
