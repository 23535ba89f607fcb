package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-bulkedit/adapters/gocommand"
	bulkcommand "github.com/goliatone/go-bulkedit/command"
	"github.com/goliatone/go-bulkedit/core"
	"github.com/goliatone/go-bulkedit/httpapi"
	bulkquery "github.com/goliatone/go-bulkedit/query"
	gocmd "github.com/goliatone/go-command"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bulk edit HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.close()
			if err := rt.open(cmd.Context()); err != nil {
				return err
			}
			// expose the handlers on the go-command dispatcher for in-process callers
			subs, err := gocommand.RegisterEngine(gocommand.NewRegistryAdapter(gocmd.NewRegistry()), rt.facade.Engine())
			if err != nil {
				return err
			}
			defer subs.Unsubscribe()

			logger := rt.provider.GetLogger("bulkedit.http")
			server := &http.Server{
				Addr: cfg.HTTP.Addr,
				Handler: httpapi.NewRouter(rt.facade.Engine(),
					httpapi.WithLogger(logger),
					httpapi.WithMetrics(rt.registry),
					httpapi.WithRequestTimeout(cfg.HTTP.RequestTimeout),
				),
				ReadHeaderTimeout: 10 * time.Second,
			}

			group, ctx := errgroup.WithContext(cmd.Context())
			group.Go(func() error {
				logger.Info("bulkedit http listening", "addr", cfg.HTTP.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			group.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
				defer cancel()
				logger.Info("bulkedit http shutting down")
				return server.Shutdown(shutdownCtx)
			})
			return group.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides http.addr")
	return cmd
}

func newApplyCmd(opts *rootOptions) *cobra.Command {
	var (
		shop        string
		file        string
		description string
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a change list to a shop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			changes, err := readChanges(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			rt, err := openRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.close()

			msg := bulkcommand.ApplyBulkMessage{Request: core.ApplyRequest{
				Shop:        shop,
				Description: description,
				Changes:     changes,
			}}
			if err := msg.Validate(); err != nil {
				return err
			}
			collector := gocmd.NewResult[core.ApplyResult]()
			applyErr := rt.facade.Commands().ApplyBulk.Execute(gocmd.ContextWithResult(cmd.Context(), collector), msg)
			if result, ok := collector.Load(); ok {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			}
			return applyErr
		},
	}
	cmd.Flags().StringVar(&shop, "shop", "", "shop domain")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON change list, - for stdin")
	cmd.Flags().StringVar(&description, "description", "", "run description stored in the change log")
	_ = cmd.MarkFlagRequired("shop")
	return cmd
}

func newPreviewCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Validate a change list without sending it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			changes, err := readChanges(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			engine, err := core.NewEngine(core.Config{}, core.WithConfigProvider(cfg.engineProvider()))
			if err != nil {
				return err
			}
			msg := bulkquery.PreviewMessage{Changes: changes}
			if err := msg.Validate(); err != nil {
				return err
			}
			notes, err := bulkquery.NewPreviewQuery(engine).Query(cmd.Context(), msg)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), notes)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON change list, - for stdin")
	return cmd
}

func newRollbackCmd(opts *rootOptions) *cobra.Command {
	var shop string
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Report rollback availability for the latest run of a shop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.close()
			return rt.facade.Commands().Rollback.Execute(cmd.Context(), bulkcommand.RollbackMessage{Shop: shop})
		},
	}
	cmd.Flags().StringVar(&shop, "shop", "", "shop domain")
	_ = cmd.MarkFlagRequired("shop")
	return cmd
}

func newRotateKeyCmd(opts *rootOptions) *cobra.Command {
	var (
		shop        string
		toVersion   int
		fromVersion int
	)
	cmd := &cobra.Command{
		Use:   "rotate-key",
		Short: "Re-encrypt stored access tokens under another key version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if shop == "" && fromVersion <= 0 {
				return fmt.Errorf("either --shop or --from-version is required")
			}
			rt, err := openRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer rt.close()

			shops := []string{shop}
			if shop == "" {
				shops, err = rt.facade.Stores().SQLCredentialStore().ListShops(cmd.Context(), fromVersion)
				if err != nil {
					return err
				}
			}
			results := make([]core.RotateCredentialResult, 0, len(shops))
			for _, candidate := range shops {
				collector := gocmd.NewResult[core.RotateCredentialResult]()
				err := rt.facade.Commands().RotateCredential.Execute(gocmd.ContextWithResult(cmd.Context(), collector), bulkcommand.RotateCredentialMessage{
					Request: core.RotateCredentialRequest{Shop: candidate, KeyVersion: toVersion},
				})
				if err != nil {
					return fmt.Errorf("rotate %s: %w", candidate, err)
				}
				if result, ok := collector.Load(); ok {
					results = append(results, result)
				}
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&shop, "shop", "", "rotate a single shop")
	cmd.Flags().IntVar(&fromVersion, "from-version", 0, "rotate every shop stored under this key version")
	cmd.Flags().IntVar(&toVersion, "to-version", 0, "target key version")
	_ = cmd.MarkFlagRequired("to-version")
	return cmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the bulk edit schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.close()
			if err := rt.migrate(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.Database.Driver)
			return err
		},
	}
}

func openRuntime(cmd *cobra.Command, opts *rootOptions) (*runtime, error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	rt, err := newRuntime(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	if err := rt.open(cmd.Context()); err != nil {
		_ = rt.close()
		return nil, err
	}
	return rt, nil
}
