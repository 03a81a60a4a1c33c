package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parley-cli/parley/internal/config"
	"github.com/parley-cli/parley/internal/provider"
)

var (
	cfgFile      string
	providerFlag string
	modelFlag    string
	personaFlag  string
	exportDir    string
	plainPicker  bool
)

// exitError carries a process exit code. Its message, if any, has already
// been shown to the user.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	rootCmd := newRootCmd(version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "Chat with a language model from your terminal",
		Long: "parley is an interactive chat client. It keeps a rolling conversation context, " +
			"summarizes it when it grows past the token budget, and exports the full transcript on exit.\n\n" +
			"During a chat, type --file <path> to send a file's contents, or q to quit.",
		// Running parley with no subcommand starts chat mode.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/parley/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "use this model instead of asking")
	rootCmd.Flags().StringVar(&personaFlag, "persona", "", "use the persona with this role instead of asking")
	rootCmd.Flags().StringVar(&exportDir, "export-dir", "", "directory for transcripts (default from config)")
	rootCmd.Flags().BoolVar(&plainPicker, "plain", false, "use numbered prompts instead of the interactive menu")

	rootCmd.AddCommand(newVersionCmd(version, commit, date))
	rootCmd.AddCommand(newInitCmd())
	return rootCmd
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config values
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if exportDir != "" {
		cfg.Export.Dir = exportDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildProvider creates a Completer based on configuration.
func buildProvider(cfg *config.Config) (provider.Completer, error) {
	name := cfg.Provider
	apiKey := cfg.GetProviderConfig(name).APIKey
	if apiKey == "" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY\n"+
				"  - run: parley init",
			name, name,
		)
	}

	baseURL := cfg.BaseURL(name)
	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(apiKey, baseURL), nil
	default:
		// All other providers use OpenAI-compatible API
		if baseURL == "" {
			return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
		}
		return provider.NewOpenAIProvider(apiKey, baseURL), nil
	}
}
