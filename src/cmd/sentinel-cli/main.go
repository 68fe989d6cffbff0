// Package main provides the Sentinel operator CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"sentinel-agent/src/broker"
	"sentinel-agent/src/config"
	"sentinel-agent/src/contracts"
	"sentinel-agent/src/ingest"
	"sentinel-agent/src/logger"
	"sentinel-agent/src/store"
	"sentinel-agent/src/tui"
)

var appConfig *config.Config

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Sentinel - network alert enrichment pipeline",
	Long: `Sentinel ingests IDS alerts into a durable stream, enriches each
alert with a feature vector and an anomaly classification, persists the
result, and republishes it for downstream consumers.

This CLI submits test alerts, inspects stream state, lists persisted
alerts, and watches the enriched feed live.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		appConfig, err = config.LoadFromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(1)
		}
	},
}

var (
	ingestSourceIP string
	ingestDestIP   string
	ingestSrcPort  int
	ingestDstPort  int
	ingestProtocol string
	ingestMessage  string
	ingestRuleID   int64
)

// ingestCmd submits one alert to the raw stream
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Submit a custom alert to the pipeline",
	Long: `Append one alert to the raw stream as a custom submission.

The running processor picks it up, scores it, and republishes the
enriched result on the processed stream.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		stream := dialStream(ctx)
		defer stream.Close()

		svc := ingest.NewService(stream, logger.NewConsoleLogger())
		alert := contracts.RawAlert{
			SourceIP:        ingestSourceIP,
			DestinationIP:   ingestDestIP,
			SourcePort:      ingestSrcPort,
			DestinationPort: ingestDstPort,
			Protocol:        ingestProtocol,
			Message:         ingestMessage,
			RuleID:          ingestRuleID,
		}

		if err := svc.Ingest(ctx, alert, contracts.SourceCustom); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to ingest alert: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Alert submitted to the raw stream")
	},
}

// statusCmd shows stream state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stream lengths and consumer groups",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		stream := dialStream(ctx)
		defer stream.Close()

		for _, name := range []string{contracts.StreamRawAlerts, contracts.StreamProcessedAlerts} {
			info := stream.StreamInfo(ctx, name)
			fmt.Printf("%s:\n", name)
			fmt.Printf("  Length:  %d\n", info.Length)
			fmt.Printf("  Groups:  %d\n", info.Groups)
			if info.FirstID != "" {
				fmt.Printf("  Entries: %s .. %s\n", info.FirstID, info.LastID)
			}
		}
	},
}

var recentLimit int

// recentCmd lists persisted enriched alerts
var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently enriched alerts from the store",
	Long:  `Query Postgres for the most recently persisted enriched alerts.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if appConfig.PostgresDSN == "" {
			fmt.Fprintln(os.Stderr, "ERROR: POSTGRES_DSN environment variable is required for the recent command")
			os.Exit(1)
		}

		st, err := store.NewPostgresStore(appConfig.PostgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to Postgres: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		alerts, err := st.RecentAlerts(ctx, recentLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to query alerts: %v\n", err)
			os.Exit(1)
		}

		if len(alerts) == 0 {
			fmt.Println("No alerts persisted yet")
			return
		}

		fmt.Printf("%-20s %-21s %-21s %-6s %-8s %s\n",
			"Time", "Source", "Destination", "Proto", "Label", "Message")
		for _, alert := range alerts {
			label := "normal"
			if alert.Label == 1 {
				label = "ANOMALY"
			}
			fmt.Printf("%-20s %-21s %-21s %-6s %-8s %s\n",
				alert.Timestamp.Format("2006-01-02 15:04:05"),
				endpoint(alert.SourceIP, alert.SourcePort),
				endpoint(alert.DestinationIP, alert.DestinationPort),
				alert.Protocol,
				label,
				tui.Truncate(alert.Message, 60, true),
			)
		}
	},
}

// watchCmd launches the live feed TUI
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the enriched alert feed live",
	Long: `Subscribe to the processed stream and display enriched alerts as
they arrive. Anomalies are highlighted; select an alert for details.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		stream := dialStream(ctx)
		defer stream.Close()

		feed := tui.NewFeed(stream)
		if err := feed.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to start feed: %v\n", err)
			os.Exit(1)
		}

		program := tea.NewProgram(tui.NewWatchModel(ctx, feed), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			os.Exit(1)
		}
	},
}

// dialStream connects to Redis and wraps it in the stream interface.
func dialStream(ctx context.Context) broker.Stream {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := broker.Dial(dialCtx, appConfig.RedisAddr, appConfig.RedisPassword, appConfig.RedisDB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to Redis at %s: %v\n", appConfig.RedisAddr, err)
		os.Exit(1)
	}
	return broker.NewRedisStream(client, appConfig.PendingMinIdle)
}

func endpoint(ip string, port int) string {
	if ip == "" {
		ip = "-"
	}
	if port == 0 {
		return ip
	}
	return fmt.Sprintf("%s:%d", ip, port)
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSourceIP, "src-ip", "", "source IP of the triggering traffic")
	ingestCmd.Flags().StringVar(&ingestDestIP, "dst-ip", "", "destination IP of the triggering traffic")
	ingestCmd.Flags().IntVar(&ingestSrcPort, "src-port", 0, "source port")
	ingestCmd.Flags().IntVar(&ingestDstPort, "dst-port", 0, "destination port")
	ingestCmd.Flags().StringVar(&ingestProtocol, "protocol", "TCP", "protocol name (TCP, UDP, ICMP, HTTP, HTTPS)")
	ingestCmd.Flags().StringVar(&ingestMessage, "message", "", "alert message text")
	ingestCmd.Flags().Int64Var(&ingestRuleID, "rule-id", 0, "sensor rule id (Snort SID)")
	ingestCmd.MarkFlagRequired("message")

	recentCmd.Flags().IntVar(&recentLimit, "limit", 20, "maximum number of alerts to list")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
