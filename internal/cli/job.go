package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/samet-stack/ironforge/internal/httpclient"
)

func client() *httpclient.Client {
	return httpclient.New(httpclient.DefaultConfig())
}

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobSubmitCmd)
	jobCmd.AddCommand(jobGetCmd)
	jobCmd.AddCommand(jobRetryCmd)
	jobCmd.AddCommand(jobStatsCmd)

	jobSubmitCmd.Flags().StringP("kind", "k", "", "job kind (required)")
	jobSubmitCmd.Flags().StringP("payload", "d", "{}", "job payload (JSON)")
	jobSubmitCmd.Flags().String("priority", "medium", "critical|high|medium|low")
	jobSubmitCmd.Flags().Uint8("max-retries", 3, "max retry attempts")
	jobSubmitCmd.MarkFlagRequired("kind")

	jobRetryCmd.Flags().Bool("reset", false, "reset retry_count to 0")
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Submit and inspect jobs",
}

var jobSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new job",
	Run: func(cmd *cobra.Command, args []string) {
		kind, _ := cmd.Flags().GetString("kind")
		payload, _ := cmd.Flags().GetString("payload")
		priority, _ := cmd.Flags().GetString("priority")
		maxRetries, _ := cmd.Flags().GetUint8("max-retries")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		resp, err := client().PostJSON(ctx, apiAddr+"/jobs", map[string]any{
			"kind":        kind,
			"payload":     json.RawMessage(payload),
			"priority":    priority,
			"max_retries": maxRetries,
		})
		if err != nil {
			fail(fmt.Sprintf("submit failed: %v", err))
			return
		}
		defer resp.Body.Close()

		var out map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fail(fmt.Sprintf("bad response: %v", err))
			return
		}
		if resp.StatusCode != http.StatusCreated {
			fail(fmt.Sprintf("server returned %d: %v", resp.StatusCode, out))
			return
		}
		success(fmt.Sprintf("submitted job %v", out["id"]))
	},
}

var jobGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Fetch a job by id",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		resp, err := client().Get(ctx, apiAddr+"/jobs/"+args[0])
		if err != nil {
			fail(fmt.Sprintf("get failed: %v", err))
			return
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusNotFound {
			fail("job not found")
			return
		}
		fmt.Println(string(data))
	},
}

var jobRetryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Retry a failed or dead-lettered job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reset, _ := cmd.Flags().GetBool("reset")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		resp, err := client().PostJSON(ctx, apiAddr+"/jobs/"+args[0]+"/retry", map[string]bool{"reset_retry_count": reset})
		if err != nil {
			fail(fmt.Sprintf("retry failed: %v", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			fail(fmt.Sprintf("server returned %d", resp.StatusCode))
			return
		}
		success("job re-enqueued")
	},
}

var jobStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		resp, err := client().Get(ctx, apiAddr+"/queues/stats")
		if err != nil {
			fail(fmt.Sprintf("stats failed: %v", err))
			return
		}
		defer resp.Body.Close()

		var stats map[string]int64
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			fail(fmt.Sprintf("bad response: %v", err))
			return
		}

		fmt.Println(bold("📊 Queue stats"))
		fmt.Printf("  queue_depth: %s\n", cyan(fmt.Sprint(stats["queue_depth"])))
		fmt.Printf("  dlq_depth:   %s\n", cyan(fmt.Sprint(stats["dlq_depth"])))
		fmt.Printf("  active_jobs: %s\n", cyan(fmt.Sprint(stats["active_jobs"])))
		fmt.Printf("  total_jobs:  %s\n", cyan(fmt.Sprint(stats["total_jobs"])))
	},
}
