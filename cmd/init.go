package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/parley-cli/parley/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up parley: choose a provider, enter your API key, and save the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return err
				}
				path = p
			}
			return runInit(os.Stdin, cmd.OutOrStdout(), path)
		},
	}
}

func runInit(in io.Reader, out io.Writer, path string) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "Welcome to the parley configuration wizard!")
	fmt.Fprintln(out)

	providers := make([]string, 0, len(config.KnownProviderBaseURLs))
	for name := range config.KnownProviderBaseURLs {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	defaultIdx := sort.SearchStrings(providers, "openai")

	fmt.Fprintln(out, "Available providers:")
	for i, p := range providers {
		fmt.Fprintf(out, "  %d. %s\n", i+1, p)
	}
	fmt.Fprintf(out, "\nSelect provider (1-%d) [%d]: ", len(providers), defaultIdx+1)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	selectedIdx := defaultIdx
	if input != "" {
		n, err := strconv.Atoi(input)
		if err != nil || n < 1 || n > len(providers) {
			return fmt.Errorf("invalid selection %q", input)
		}
		selectedIdx = n - 1
	}
	providerName := providers[selectedIdx]
	fmt.Fprintf(out, "Selected: %s\n\n", providerName)

	fmt.Fprintf(out, "Enter API key for %s: ", providerName)
	apiKey, err := readSecret(in, reader)
	if err != nil {
		return fmt.Errorf("read API key: %w", err)
	}
	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	if err := config.SaveProviderToFile(path, providerName, config.ProviderConfig{APIKey: apiKey}); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nConfig saved to %s\n", path)
	fmt.Fprintln(out, "You can now run: parley")
	return nil
}

// readSecret reads a line without echo when in is a terminal.
func readSecret(in io.Reader, reader *bufio.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Println()
		return strings.TrimSpace(string(b)), err
	}
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
