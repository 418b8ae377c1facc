package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/koustreak/imgbed/internal/server"
	"github.com/koustreak/imgbed/internal/storage"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored images over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.settings.ListenAddr
			}
			log := a.log.Component("serve")

			m, opts, err := a.manager(cmd.Context())
			if err != nil {
				return err
			}
			holder := storage.NewHolder(m, opts)
			defer holder.Close()

			srv := &http.Server{
				Addr:         addr,
				Handler:      server.New(holder, a.log),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			// SIGHUP rebuilds the drivers from the current config file.
			reload := make(chan os.Signal, 1)
			signal.Notify(reload, syscall.SIGHUP)
			defer signal.Stop(quit)
			defer signal.Stop(reload)

			serveErr := make(chan error, 1)
			go func() {
				log.InfoWith("listening", map[string]interface{}{"addr": addr, "drivers": m.Names()})
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			for stop := false; !stop; {
				select {
				case <-reload:
					next := holder.Reload(a.store)
					log.InfoWith("drivers reloaded", map[string]interface{}{"drivers": next.Names(), "default": next.Default()})
				case err := <-serveErr:
					return err
				case <-quit:
					stop = true
				}
			}

			log.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from settings)")
	return cmd
}
