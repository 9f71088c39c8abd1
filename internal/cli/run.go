package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/docmcp/pkg/document"
	"github.com/harun/docmcp/pkg/identity"
	"github.com/harun/docmcp/pkg/operation"
	"github.com/harun/docmcp/pkg/ops"
	"github.com/spf13/cobra"
)

var (
	runPath   string
	runOutput string
	runRoot   string
	runParams []string
	runJSON   bool
)

var runCmd = &cobra.Command{
	Use:   "run <operation>",
	Short: "Run one operation against a document",
	Long: `Run one operation statelessly: the document is loaded from disk, the
operation runs, and a modified document is saved back (or to --output).

Example:
  docmcp run add_paragraph --path notes.docx --param text="Hello"`,
	Args: cobra.ExactArgs(1),
	RunE: runOperation,
}

func init() {
	runCmd.Flags().StringVar(&runPath, "path", "", "document path relative to the documents root")
	runCmd.Flags().StringVar(&runOutput, "output", "", "save the result here instead of over the source")
	runCmd.Flags().StringVar(&runRoot, "root", "", "documents root directory (overrides config)")
	runCmd.Flags().StringArrayVarP(&runParams, "param", "p", nil, "operation parameter as key=value (repeatable)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full response as JSON")
	rootCmd.AddCommand(runCmd)
}

func runOperation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if runRoot != "" {
		cfg.Storage.Root = runRoot
	}

	// Errors only: stdout carries the result.
	cfg.Logging.Level = "error"
	log, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	arguments, err := parseParams(runParams)
	if err != nil {
		return err
	}
	if runPath != "" {
		arguments[operation.ParamPath] = runPath
	}
	if runOutput != "" {
		arguments[operation.ParamOutputPath] = runOutput
	}

	storage, err := document.NewOsStorage(cfg.Storage.Root)
	if err != nil {
		return err
	}
	registry, err := operation.NewRegistry(ops.Catalog())
	if err != nil {
		return fmt.Errorf("failed to build operation registry: %w", err)
	}
	dispatcher, err := operation.NewDispatcher(operation.DispatcherConfig{
		Registry:          registry,
		Storage:           storage,
		Identity:          identity.Static(identity.Anonymous),
		RollbackOnFailure: cfg.Sessions.RollbackOnFailure,
	})
	if err != nil {
		return err
	}

	resp := dispatcher.Dispatch(cmd.Context(), operation.Request{
		Operation: args[0],
		Arguments: arguments,
	})

	if runJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	} else if resp.Success {
		fmt.Fprintln(cmd.OutOrStdout(), resp.Content())
		if resp.Saved != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s\n", resp.Saved)
		}
	}

	return resp.Err()
}

// parseParams turns key=value pairs into an argument bag. Values stay strings;
// operations coerce them to their declared types.
func parseParams(pairs []string) (map[string]interface{}, error) {
	arguments := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", pair)
		}
		arguments[key] = value
	}
	return arguments, nil
}
