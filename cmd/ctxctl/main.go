// Package main implements ctxctl, the thin operator CLI for the ctxrd
// daemon: an HTTP client exposing status/sessions/sync/cleanup/stats
// subcommands, plus an optional live dashboard for status.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ccjk/ctxrd/internal/httpapi"
	"github.com/ccjk/ctxrd/internal/monitor"
)

var (
	serverURL string
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ctxctl",
	Short:   "Operator CLI for the ctxrd context-compression daemon",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9090", "ctxrd daemon URL")
	rootCmd.AddCommand(statusCmd, sessionsCmd, syncCmd, cleanupCmd, statsCmd)
}

var watchFlag bool
var watchInterval time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active session's context-window usage",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&watchFlag, "watch", false, "run a live-refreshing dashboard instead of a one-shot report")
	statusCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "dashboard refresh interval (with --watch)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if watchFlag {
		p := tea.NewProgram(monitor.NewModel(serverURL, watchInterval))
		_, err := p.Run()
		return err
	}

	var resp httpapi.StatusResponse
	if err := getJSON("/status", &resp); err != nil {
		return err
	}

	if resp.Session == nil {
		fmt.Println("No active session.")
		return nil
	}
	s := resp.Session
	fmt.Printf("Session:      %s\n", s.SessionID)
	fmt.Printf("Project hash: %s\n", s.ProjectHash)
	fmt.Printf("Status:       %s\n", s.LifecycleStatus)
	fmt.Printf("Tokens:       %d / %d (%d%%)\n", s.TokenCount, s.MaxContextTokens, s.UsagePercent)
	fmt.Printf("FC count:     %d\n", s.FCCount)
	return nil
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List known sessions",
	RunE:  runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	var resp httpapi.SessionsResponse
	if err := getJSON("/sessions", &resp); err != nil {
		return err
	}
	if len(resp.Sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}
	for _, s := range resp.Sessions {
		fmt.Printf("%s  %-10s  project=%s  tokens=%d  fcs=%d  started=%s\n",
			s.ID, s.Status, s.ProjectHash, s.TokenCount, s.FCCount, s.StartTime.Format(time.RFC3339))
	}
	return nil
}

var syncItems bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Show sync queue depth",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncItems, "items", false, "include individual queue items")
}

func runSync(cmd *cobra.Command, args []string) error {
	path := "/sync"
	if syncItems {
		path += "?items=true"
	}
	var resp httpapi.SyncResponse
	if err := getJSON(path, &resp); err != nil {
		return err
	}
	fmt.Printf("Total: %d  Pending: %d  Syncing: %d  Synced: %d  Failed: %d\n",
		resp.Stats.Total, resp.Stats.Pending, resp.Stats.Syncing, resp.Stats.Synced, resp.Stats.Failed)
	for _, it := range resp.Items {
		fmt.Printf("  %s  %-10s  %-8s  session=%s  retries=%d\n", it.ID, it.Type, it.Status, it.SessionID, it.Retries)
	}
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show on-disk storage usage",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	var resp httpapi.StatsResponse
	if err := getJSON("/stats", &resp); err != nil {
		return err
	}
	fmt.Printf("Sessions: %d  Projects: %d  Total size: %.2f MB\n",
		resp.SessionCount, resp.ProjectCount, float64(resp.TotalBytes)/(1024*1024))
	return nil
}

var cleanupMaxAgeDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove sessions older than the configured retention window",
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupMaxAgeDays, "days", 30, "remove completed sessions older than this many days")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(httpapi.CleanupRequest{MaxAgeDays: cleanupMaxAgeDays})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	httpResp, err := client.Post(serverURL+"/cleanup", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sending request to %s: %w", serverURL, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("server returned status %d: %s", httpResp.StatusCode, string(msg))
	}

	var resp httpapi.CleanupResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Printf("Removed %d session(s), freed %.2f MB\n", resp.Removed, float64(resp.BytesFreed)/(1024*1024))
	return nil
}

// getJSON fetches path from the configured daemon and decodes its JSON body
// into out.
func getJSON(path string, out interface{}) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
