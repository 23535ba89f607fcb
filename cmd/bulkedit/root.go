package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goliatone/go-bulkedit/core"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	lookupEnv  func(string) (string, bool)
}

// NewRootCmd builds the bulkedit command tree. lookupEnv is injected for
// tests.
func NewRootCmd(lookupEnv func(string) (string, bool)) *cobra.Command {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	opts := &rootOptions{lookupEnv: lookupEnv}

	cmd := &cobra.Command{
		Use:           "bulkedit",
		Short:         "Bulk variant edits against the Shopify Admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file (env "+envConfigPath+")")

	cmd.AddCommand(
		newServeCmd(opts),
		newApplyCmd(opts),
		newPreviewCmd(opts),
		newRollbackCmd(opts),
		newRotateKeyCmd(opts),
		newMigrateCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (appConfig, error) {
	return loadConfig(o.configPath, o.lookupEnv)
}

func readChanges(path string, stdin io.Reader) ([]core.Change, error) {
	var (
		raw []byte
		err error
	)
	if path == "" || path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read changes: %w", err)
	}

	var changes []core.Change
	if err := json.Unmarshal(raw, &changes); err == nil {
		return changes, nil
	}
	var wrapped struct {
		Changes []core.Change `json:"changes"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode changes: %w", err)
	}
	return wrapped.Changes, nil
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
