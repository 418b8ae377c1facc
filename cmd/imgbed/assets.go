package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/koustreak/imgbed/internal/asset"
	"github.com/koustreak/imgbed/internal/config"
	"github.com/koustreak/imgbed/internal/storage"
)

func newUploadCmd(a *app, jsonOutput *bool) *cobra.Command {
	var (
		driver string
		name   string
		mime   string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image and print its public URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			return a.withManager(cmd.Context(), func(m *storage.Manager) error {
				d, err := m.Driver(driver)
				if err != nil {
					return err
				}
				res, err := d.Upload(cmd.Context(), storage.UploadInput{
					Data:        data,
					Filename:    asset.NewStorageKey(name, time.Now()),
					MimeType:    mime,
					DisplayName: name,
				})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(res)
				}
				return writePlain("%s\n", res.URL)
			})
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "target driver (default from config)")
	cmd.Flags().StringVar(&name, "name", "", "display name (default: file name)")
	cmd.Flags().StringVar(&mime, "mime", "", "content type (default: sniffed)")
	return cmd
}

func newListCmd(a *app, jsonOutput *bool) *cobra.Command {
	var driver string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed images, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd.Context(), func(m *storage.Manager) error {
				d, err := m.Driver(driver)
				if err != nil {
					return err
				}
				assets, err := d.List(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(assets)
				}
				return writeAssetList(assets)
			})
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "driver to list (default from config)")
	return cmd
}

func newDeleteCmd(a *app, jsonOutput *bool) *cobra.Command {
	var driver string

	cmd := &cobra.Command{
		Use:   "delete <short-id|key|name>",
		Short: "Delete an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd.Context(), func(m *storage.Manager) error {
				d, err := m.Driver(driver)
				if err != nil {
					return err
				}
				deleted, err := d.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"driver": d.Name(), "deleted": deleted})
				}
				if !deleted {
					return fmt.Errorf("%s: no image matches %q", d.Name(), args[0])
				}
				return writePlain("deleted %s from %s\n", args[0], d.Name())
			})
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "driver to delete from (default from config)")
	return cmd
}

func newStatsCmd(a *app, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show image counts and sizes per driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd.Context(), func(m *storage.Manager) error {
				s := m.AggregateStats(cmd.Context())
				if *jsonOutput {
					return writeJSON(s)
				}
				return writeStats(s)
			})
		},
	}
}

func newSyncCmd(a *app, jsonOutput *bool) *cobra.Command {
	var driver string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Index objects present in the bucket but missing from the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd.Context(), func(m *storage.Manager) error {
				d, err := m.Driver(driver)
				if err != nil {
					return err
				}
				s, ok := d.(storage.Syncer)
				if !ok {
					return fmt.Errorf("driver %s cannot sync from its backend", d.Name())
				}
				res, err := s.SyncFromCloud(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(res)
				}
				return writePlain("scanned %d objects, indexed %d new\n", res.Scanned, res.Added)
			})
		},
	}

	cmd.Flags().StringVar(&driver, "driver", config.DriverR2, "driver to sync")
	return cmd
}

func newProbeCmd(a *app, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "probe [driver...]",
		Short: "Check connectivity of configured drivers",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.options(cmd.Context())
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = config.KnownDrivers()
			}

			cfg := a.store.Full()
			result := make(map[string]bool, len(names))
			for _, n := range names {
				result[n] = storage.Probe(cmd.Context(), n, cfg, opts)
			}
			if *jsonOutput {
				return writeJSON(result)
			}
			for _, n := range names {
				state := "unavailable"
				if result[n] {
					state = "ok"
				}
				if err := writePlain("%s\t%s\n", n, state); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
