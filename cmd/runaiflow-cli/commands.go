package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/loader"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/runtime"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/storage"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/template"
)

// validateCmd parses a YAML flow file and reports structural problems
func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <flow.yaml>",
		Short: "Validate a YAML flow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loader.ParseFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("flow %q is valid (%d nodes)\n", flow.ID, len(flow.Nodes))
			return nil
		},
	}
}

// runCmd executes a YAML flow file locally with in-memory storage. Useful
// for trying flows without a server; connector-backed nodes need the real
// server.
func runCmd() *cobra.Command {
	var varsJSON string

	cmd := &cobra.Command{
		Use:   "run <flow.yaml>",
		Short: "Run a YAML flow locally and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loader.ParseFile(args[0])
			if err != nil {
				return err
			}

			var vars map[string]interface{}
			if varsJSON != "" {
				if err := json.Unmarshal([]byte(varsJSON), &vars); err != nil {
					return fmt.Errorf("invalid --vars JSON: %w", err)
				}
			}

			store := storage.NewMemoryProvider()
			engine := runtime.NewEngine(runtime.EngineOptions{
				Connectors: store.ConnectorStore(),
				Results:    store.ExecutionStore(),
			})

			result, err := engine.ExecuteFlow(context.Background(), "local", flow, vars)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&varsJSON, "vars", "", "Execution variables as a JSON object")
	return cmd
}

// pathsCmd enumerates template paths into a JSON document
func pathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths <result.json>",
		Short: "Enumerate template paths into a JSON value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var value interface{}
			if err := json.Unmarshal(data, &value); err != nil {
				return fmt.Errorf("invalid JSON: %w", err)
			}
			for _, path := range template.Enumerate(value) {
				fmt.Println(path)
			}
			return nil
		},
	}
}

// flowsCmd talks to a running server
func flowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Manage flows on a runaiflow server",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return apiRequest(http.MethodGet, "/api/v1/flows", nil)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "push <flow.yaml>",
		Short: "Upload a YAML flow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flow, err := loader.ParseFile(args[0])
			if err != nil {
				return err
			}
			body, err := json.Marshal(flow)
			if err != nil {
				return err
			}
			return apiRequest(http.MethodPost, "/api/v1/flows", body)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "execute <flow-id>",
		Short: "Start an asynchronous execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return apiRequest(http.MethodPost, "/api/v1/flows/"+args[0]+"/executions", []byte("{}"))
		},
	})

	return cmd
}

// apiRequest performs an authenticated request and prints the response body
func apiRequest(method, path string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s: %s", resp.Status, string(data))
	}
	fmt.Println(string(data))
	return nil
}

func printJSON(value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
