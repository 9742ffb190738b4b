package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hlab-io/openconsole/internal/auth"
	"github.com/hlab-io/openconsole/internal/db/bunx"
	"github.com/hlab-io/openconsole/internal/iam"
	"github.com/hlab-io/openconsole/internal/repository"
	"github.com/hlab-io/openconsole/internal/server"
	"github.com/hlab-io/openconsole/internal/session"
)

// sessionPurgeInterval is how often expired session rows are swept.
const sessionPurgeInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the console API server",
	Long:  `Starts the HTTP server with the SSO, session and admin endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := bunx.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		log.Info().Str("database", string(bunx.DetectDatabaseType(cfg.DatabaseURL))).Msg("connected to database")

		sessionRepo := repository.NewBunSessionRepository(db)
		announcementRepo := repository.NewBunAnnouncementRepository(db)

		relyingParty, err := auth.NewRelyingParty(cmd.Context(), &cfg.OIDC)
		if err != nil {
			return fmt.Errorf("failed to create relying party: %w", err)
		}

		manager := session.NewManager(sessionRepo, relyingParty, cfg.RefreshMargin)
		synchronizer := session.NewSynchronizer(sessionRepo)

		enforcer, err := auth.InitEnforcer()
		if err != nil {
			return fmt.Errorf("configure casbin enforcer: %w", err)
		}

		var minter *iam.AssertionMinter
		if cfg.ServiceAccount.Configured() {
			minter, err = iam.NewAssertionMinter(cfg.OIDC.Issuer, cfg.ServiceAccount, cfg.OIDC.Scopes)
			if err != nil {
				return fmt.Errorf("configure service account: %w", err)
			}
			log.Info().Str("user_id", cfg.ServiceAccount.UserID).Msg("service account configured")
		} else {
			log.Info().Msg("no service account configured, management calls use the caller's token")
		}

		iamClient := iam.NewClient(cfg.OIDC.Issuer)
		resolver := iam.NewResolver(minter, manager)

		bearerVerifier, err := server.NewBearerVerifier(cfg)
		if err != nil {
			return fmt.Errorf("configure bearer verifier: %w", err)
		}

		router := server.NewRouter(server.RouterOptions{
			Cfg:            cfg,
			RelyingParty:   relyingParty,
			Sessions:       sessionRepo,
			Announcements:  announcementRepo,
			Manager:        manager,
			Sync:           synchronizer,
			Enforcer:       enforcer,
			BearerVerifier: bearerVerifier,
			AdminDeps: &server.AdminDeps{
				Sessions:        sessionRepo,
				Resolver:        resolver,
				Client:          iamClient,
				Aggregator:      iam.NewAggregator(iamClient),
				UserSearchLimit: cfg.UserSearchLimit,
			},
		})

		// Sweep expired session rows in the background.
		purgeCtx, cancelPurge := context.WithCancel(cmd.Context())
		defer cancelPurge()
		go func() {
			ticker := time.NewTicker(sessionPurgeInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					n, err := sessionRepo.DeleteExpired(purgeCtx, time.Now())
					if err != nil {
						log.Error().Err(err).Msg("session purge failed")
					} else if n > 0 {
						log.Info().Int("removed", n).Msg("purged expired sessions")
					}
				case <-purgeCtx.Done():
					return
				}
			}
		}()

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Info().Str("addr", cfg.ServerAddr).Str("url", cfg.ServerURL).Msg("starting server")
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			log.Info().Msg("server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
