package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/koustreak/imgbed/internal/config"
)

func newConfigCmd(a *app, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change storage configuration",
	}

	cmd.AddCommand(
		newConfigShowCmd(a),
		newConfigSetDefaultCmd(a, jsonOutput),
		newConfigSetCmd(a, jsonOutput),
		newConfigMaxUploadCmd(a, jsonOutput),
	)
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reveal {
				return writeJSON(a.store.Full())
			}
			return writeJSON(a.store.Masked())
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print secrets in clear")
	return cmd
}

func newConfigSetDefaultCmd(a *app, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:       "set-default <driver>",
		Short:     "Change the default driver",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.KnownDrivers(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(a.store.Save(config.SetDefault{Driver: args[0]}), *jsonOutput)
		},
	}
}

func newConfigSetCmd(a *app, jsonOutput *bool) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "set <driver|isolation> [json]",
		Short: "Merge a JSON object into a driver section or the isolation policy",
		Long: `Merge a JSON object into a config section. Fields absent from the
object keep their current values. Reads the object from the second
argument, from --file, or from stdin.

  imgbed config set r2 '{"enabled":true,"bucketName":"images"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := readPatch(args, file)
			if err != nil {
				return err
			}

			var update config.Update
			if args[0] == "isolation" {
				update = config.UpdateIsolation{Patch: patch}
			} else {
				update = config.UpdateDriverConfig{Driver: args[0], Patch: patch}
			}
			return report(a.store.Save(update), *jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read the JSON object from a file")
	return cmd
}

func newConfigMaxUploadCmd(a *app, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "set-max-upload <bytes>",
		Short: "Change the upload size limit (0 restores the default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid byte count %q", args[0])
			}
			return report(a.store.Save(config.SetMaxUploadBytes{Bytes: n}), *jsonOutput)
		},
	}
}

func readPatch(args []string, file string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case len(args) == 2:
		data = []byte(args[1])
	case file != "":
		data, err = os.ReadFile(file)
	default:
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("patch is not valid JSON")
	}
	return json.RawMessage(data), nil
}

// report prints a Save result and turns a failure into a command error.
// A running server picks up the change on SIGHUP.
func report(res config.Result, jsonOutput bool) error {
	if jsonOutput {
		if err := writeJSON(res); err != nil {
			return err
		}
	} else if res.Success {
		if err := writePlain("%s\n", res.Message); err != nil {
			return err
		}
	}
	if !res.Success {
		return fmt.Errorf("%s", res.Message)
	}
	return nil
}
