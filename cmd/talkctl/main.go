package main

import (
	"fmt"
	"os"
	"path/filepath"

	"zhutalk/internal/client"

	"github.com/spf13/cobra"
)

var (
	baseURL     string
	sessionFile string
	jsonOutput  bool

	api *client.HTTPClient
)

func defaultBaseURL() string {
	if s := os.Getenv("ZHUTALK_URL"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".zhutalk-session.json"
	}
	return filepath.Join(home, ".zhutalk", "session.json")
}

var rootCmd = &cobra.Command{
	Use:          "talkctl <command>",
	Short:        "Command line client for zhutalk comments",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		api = client.NewHTTPClient(baseURL)
		cookies, err := loadSession(sessionFile)
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		return api.SetCookies(cookies)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", defaultBaseURL(), "server URL")
	rootCmd.PersistentFlags().StringVar(&sessionFile, "session-file", defaultSessionFile(), "where the login cookie is kept")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(deleteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
