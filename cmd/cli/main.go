package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/dy-extract-go/internal/app"
	"github.com/yourusername/dy-extract-go/internal/domain"
	"github.com/yourusername/dy-extract-go/internal/infrastructure"
)

var (
	serverURL   string
	noAutoStart bool
	configPath  string
	rootCmd     = &cobra.Command{
		Use:   "dy-extract",
		Short: "dy-extract CLI - Save Douyin share links as local video files",
		Long: `A command-line interface for turning Douyin share links into saved media files.
Runs locally with "fetch" or through the dy-extract-server with "submit".`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./configs, ~/.dy-extract, /etc/dy-extract)")

	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(idCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

var submitCmd = &cobra.Command{
	Use:   "submit [url]",
	Short: "Acquire a share link through the server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		jsonOutput, _ := cmd.Flags().GetBool("json")

		data, _ := json.Marshal(map[string]string{"url": args[0]})
		resp, err := http.Post(serverURL+"/api/v1/acquisitions", "application/json", bytes.NewBuffer(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)

		var result domain.Result
		if err := json.Unmarshal(body, &result); err != nil || result.RunID == "" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		if jsonOutput {
			printJSON(&result)
		} else {
			printResults([]*domain.Result{&result})
		}
		if resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
	},
}

var idCmd = &cobra.Command{
	Use:   "id [url]",
	Short: "Print the video ID contained in a URL",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, ok := infrastructure.ExtractVideoID(args[0])
		if !ok {
			fmt.Fprintln(os.Stderr, "No video ID found")
			os.Exit(1)
		}
		fmt.Println(id)
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "View today's attempt or error log from the server",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		category := "attempt"
		if len(args) == 1 {
			category = args[0]
		}
		limit, _ := cmd.Flags().GetInt("limit")
		query, _ := cmd.Flags().GetString("query")
		date, _ := cmd.Flags().GetString("date")

		endpoint := serverURL + "/api/v1/logs/" + url.PathEscape(category)
		params := url.Values{}
		params.Set("limit", fmt.Sprint(limit))
		if date != "" {
			params.Set("date", date)
		}
		if query != "" {
			endpoint += "/search"
			params.Set("q", query)
		}

		resp, err := http.Get(endpoint + "?" + params.Encode())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var result struct {
			Entries []struct {
				Timestamp string                 `json:"timestamp"`
				Level     string                 `json:"level"`
				Message   string                 `json:"message"`
				Fields    map[string]interface{} `json:"fields"`
			} `json:"entries"`
		}
		json.Unmarshal(body, &result)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tLEVEL\tRUN\tSTRATEGY\tOUTCOME\tMESSAGE")
		for _, e := range result.Entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp,
				e.Level,
				truncate(fieldString(e.Fields, "run_id"), 8),
				fieldString(e.Fields, "strategy"),
				fieldString(e.Fields, "outcome"),
				e.Message)
		}
		w.Flush()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default values",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")

		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			path = filepath.Join(home, ".dy-extract", "config.yaml")
		}

		if _, err := os.Stat(path); err == nil && !force {
			fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to overwrite)\n", path)
			os.Exit(1)
		}

		if err := app.SaveConfig(domain.DefaultConfig(), path); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written to %s\n", path)
	},
}

func init() {
	submitCmd.Flags().BoolP("json", "j", false, "Output in JSON format")
	logsCmd.Flags().IntP("limit", "n", 50, "Number of entries")
	logsCmd.Flags().StringP("query", "q", "", "Only entries containing this text")
	logsCmd.Flags().StringP("date", "d", "", "Log date (YYYY-MM-DD), default today")
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file")
}

// printResults prints one line per run and one indented line per attempt
func printResults(results []*domain.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tVIDEO\tTITLE\tFILE")
	for _, r := range results {
		file := "-"
		if r.Saved() {
			file = r.SavedPath
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncate(r.RunID, 8),
			r.Status,
			r.VideoID,
			truncate(r.Title, 30),
			file)
		for _, a := range r.Attempts {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t\n", a.Strategy, a.Outcome, a.Duration.Round(time.Millisecond), truncate(a.ErrorDetail, 60))
		}
		if r.Error != "" && len(r.Attempts) == 0 {
			fmt.Fprintf(w, "  error\t%s\t\t\t\n", r.Error)
		}
	}
	w.Flush()
}

func printJSON(v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func fieldString(fields map[string]interface{}, key string) string {
	if v, ok := fields[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
