// cmd/client is the CLI entry-point built with Cobra.
//
// Usage:
//
//	dhtcli submit echo '["hello"]'        --server http://localhost:8080
//	dhtcli getjob <hash>                  --server http://localhost:8080
//	dhtcli getjobs                        --server http://localhost:8080
//	dhtcli status                         --server http://localhost:8080
//	dhtcli fingers                        --server http://localhost:8080
package main

import (
	"context"
	"distributed-kvstore/internal/client"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "dhtcli",
		Short: "CLI client for the distributed job-routing ring",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "Node API address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(submitCmd(), getJobCmd(), getJobsCmd(), statusCmd(), fingersCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ─── submit ───────────────────────────────────────────────────────────────────

func submitCmd() *cobra.Command {
	var sourceBucket, destBucket, objectName string

	cmd := &cobra.Command{
		Use:   "submit <task> <args-json>",
		Short: "Submit a new job to the ring",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("args must be valid JSON, got %q", args[1])
			}
			c := client.New(serverAddr, timeout)
			resp, err := c.Submit(context.Background(), args[0], json.RawMessage(args[1]), sourceBucket, destBucket, objectName)
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceBucket, "source-bucket", "", "Object storage bucket to read input from")
	cmd.Flags().StringVar(&destBucket, "dest-bucket", "", "Object storage bucket to write output to")
	cmd.Flags().StringVar(&objectName, "object", "", "Object name within source/dest buckets")
	return cmd
}

// ─── getjob ───────────────────────────────────────────────────────────────────

func getJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "getjob <hash>",
		Short: "Fetch a job by its content hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			job, err := c.GetJob(context.Background(), args[0])
			if err == client.ErrNotFound {
				fmt.Printf("job %q not found\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			prettyPrint(job)
			return nil
		},
	}
}

// ─── getjobs ──────────────────────────────────────────────────────────────────

func getJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "getjobs",
		Short: "List jobs held in this node's local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			jobs, err := c.GetJobs(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(jobs)
			return nil
		},
	}
}

// ─── status ───────────────────────────────────────────────────────────────────

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the node's ring and storage are online",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			resp, err := c.GetStatus(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(resp)
			return nil
		},
	}
}

// ─── fingers ──────────────────────────────────────────────────────────────────

func fingersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingers",
		Short: "List the unique addresses in the node's finger table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(serverAddr, timeout)
			fingers, err := c.GetFinger(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(fingers)
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
