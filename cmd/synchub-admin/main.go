// Package main is the entry point for the sync hub admin CLI.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	serverURL string
	networkID string
	nodeID    string
	output    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "synchub-admin",
		Short: "Admin CLI for the sync hub",
		Long:  `A command-line tool for managing networks and nodes on a running sync hub server.`,
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8081", "Sync hub server URL")
	rootCmd.PersistentFlags().StringVar(&networkID, "network-id", "", "Network ID used in admin request paths (defaults to \"default\")")
	rootCmd.PersistentFlags().StringVar(&nodeID, "node-id", "", "Node ID (not used by any current command)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json")

	networkCmd := &cobra.Command{
		Use:   "network",
		Short: "Manage networks",
	}

	networkCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create the network",
		RunE:  createNetwork,
	}
	networkCreateCmd.Flags().String("name", "", "Network name (required)")
	networkCreateCmd.Flags().String("schema", "", "Path to a JSON Schema file describing the record payload (required)")
	networkCreateCmd.Flags().Bool("fetch-before-send", false, "Reject sends from a node while it has pending messages to fetch")
	_ = networkCreateCmd.MarkFlagRequired("name")
	_ = networkCreateCmd.MarkFlagRequired("schema")

	networkGetCmd := &cobra.Command{
		Use:   "get",
		Short: "Show the network",
		RunE:  getNetwork,
	}

	networkUpdateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update network configuration",
		RunE:  updateNetwork,
	}
	networkUpdateCmd.Flags().String("name", "", "New network name")
	networkUpdateCmd.Flags().String("schema", "", "Path to a replacement JSON Schema file")
	networkUpdateCmd.Flags().Bool("fetch-before-send", false, "Reject sends from a node while it has pending messages to fetch")
	networkUpdateCmd.Flags().Bool("no-fetch-before-send", false, "Disable the fetch-before-send requirement")

	networkCmd.AddCommand(networkCreateCmd, networkGetCmd, networkUpdateCmd)

	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "Manage nodes",
	}

	nodeListCmd := &cobra.Command{
		Use:   "list",
		Short: "List all nodes",
		RunE:  listNodes,
	}

	nodeGetCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get node by ID",
		Args:  cobra.ExactArgs(1),
		RunE:  getNode,
	}

	nodeCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new node",
		RunE:  createNode,
	}
	nodeCreateCmd.Flags().String("name", "", "Node name (required)")
	nodeCreateCmd.Flags().Bool("create", true, "Grant Create permission")
	nodeCreateCmd.Flags().Bool("read", true, "Grant Read permission")
	nodeCreateCmd.Flags().Bool("update", true, "Grant Update permission")
	nodeCreateCmd.Flags().Bool("delete", true, "Grant Delete permission")
	_ = nodeCreateCmd.MarkFlagRequired("name")

	nodeSyncCmd := &cobra.Command{
		Use:   "sync <id>",
		Short: "Trigger a cold-start sync of all records to a node",
		Args:  cobra.ExactArgs(1),
		RunE:  syncNode,
	}

	nodeCmd.AddCommand(nodeListCmd, nodeGetCmd, nodeCreateCmd, nodeSyncCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("synchub-admin %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}

	rootCmd.AddCommand(networkCmd, nodeCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// doRequest performs an admin API call. It deliberately carries no
// authentication: the admin endpoints are reached over a trusted
// operator network, the same assumption the HTTP server itself makes.
func doRequest(method, path string, headers map[string]string, body interface{}) (map[string]interface{}, error) {
	url := strings.TrimSuffix(serverURL, "/") + path

	var req *http.Request
	var err error

	if body != nil {
		jsonBody, merr := json.Marshal(body)
		if merr != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", merr)
		}
		req, err = http.NewRequest(method, url, strings.NewReader(string(jsonBody)))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequest(method, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req) // #nosec G704 -- admin CLI tool; URL is from user-provided --server flag
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusAccepted && resp.ContentLength == 0 {
		return map[string]interface{}{}, nil
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if resp.StatusCode < 400 {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := "unknown error"
		if m, ok := result["message"].(string); ok {
			msg = m
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, msg)
	}

	return result, nil
}

func adminNetworkPath(suffix string) string {
	id := networkID
	if id == "" {
		id = "default"
	}
	return "/admin/networks/" + id + suffix
}

func readSchemaFile(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path via CLI flag
	if err != nil {
		return "", fmt.Errorf("failed to read schema file: %w", err)
	}
	return string(data), nil
}

func emit(v interface{}) error {
	if output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return nil
}

func createNetwork(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	schemaPath, _ := cmd.Flags().GetString("schema")
	fetchBeforeSend, _ := cmd.Flags().GetBool("fetch-before-send")

	schemaDoc, err := readSchemaFile(schemaPath)
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"name":              name,
		"schema":            schemaDoc,
		"fetch_before_send": fetchBeforeSend,
	}

	result, err := doRequest("POST", "/admin/networks", nil, body)
	if err != nil {
		return err
	}
	if output == "json" {
		return emit(result)
	}
	printNetwork(result)
	return nil
}

func getNetwork(cmd *cobra.Command, args []string) error {
	result, err := doRequest("GET", adminNetworkPath(""), nil, nil)
	if err != nil {
		return err
	}
	if output == "json" {
		return emit(result)
	}
	printNetwork(result)
	return nil
}

func updateNetwork(cmd *cobra.Command, args []string) error {
	body := map[string]interface{}{}

	if name, _ := cmd.Flags().GetString("name"); name != "" {
		body["name"] = name
	}
	if schemaPath, _ := cmd.Flags().GetString("schema"); schemaPath != "" {
		schemaDoc, err := readSchemaFile(schemaPath)
		if err != nil {
			return err
		}
		body["schema"] = schemaDoc
	}
	if fetch, _ := cmd.Flags().GetBool("fetch-before-send"); fetch {
		body["fetch_before_send"] = true
	}
	if noFetch, _ := cmd.Flags().GetBool("no-fetch-before-send"); noFetch {
		body["fetch_before_send"] = false
	}

	result, err := doRequest("PATCH", adminNetworkPath(""), nil, body)
	if err != nil {
		return err
	}
	if output == "json" {
		return emit(result)
	}
	printNetwork(result)
	return nil
}

func printNetwork(n map[string]interface{}) {
	fmt.Printf("ID:                %v\n", n["id"])
	fmt.Printf("Name:              %v\n", n["name"])
	fmt.Printf("FetchBeforeSend:   %v\n", n["fetch_before_send"])
}

func listNodes(cmd *cobra.Command, args []string) error {
	result, err := doRequest("GET", adminNetworkPath("/nodes"), nil, nil)
	if err != nil {
		return err
	}

	nodes, ok := result["nodes"].([]interface{})
	if !ok {
		return fmt.Errorf("unexpected response format")
	}

	if output == "json" {
		return emit(nodes)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATE\tREAD\tUPDATE\tDELETE")
	for _, raw := range nodes {
		node := raw.(map[string]interface{})
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\t%v\n",
			node["id"], node["name"], node["create"], node["read"], node["update"], node["delete"])
	}
	return w.Flush()
}

func getNode(cmd *cobra.Command, args []string) error {
	result, err := doRequest("GET", adminNetworkPath("/nodes/"+args[0]), nil, nil)
	if err != nil {
		return err
	}
	if output == "json" {
		return emit(result)
	}
	printNode(result)
	return nil
}

func createNode(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	create, _ := cmd.Flags().GetBool("create")
	read, _ := cmd.Flags().GetBool("read")
	update, _ := cmd.Flags().GetBool("update")
	del, _ := cmd.Flags().GetBool("delete")

	body := map[string]interface{}{
		"name":   name,
		"create": create,
		"read":   read,
		"update": update,
		"delete": del,
	}

	result, err := doRequest("POST", adminNetworkPath("/nodes"), nil, body)
	if err != nil {
		return err
	}
	if output == "json" {
		return emit(result)
	}
	printNode(result)
	return nil
}

func syncNode(cmd *cobra.Command, args []string) error {
	_, err := doRequest("POST", adminNetworkPath("/nodes/"+args[0]+"/sync"), nil, nil)
	if err != nil {
		return err
	}
	fmt.Println("sync triggered")
	return nil
}

func printNode(n map[string]interface{}) {
	fmt.Printf("ID:     %v\n", n["id"])
	fmt.Printf("Name:   %v\n", n["name"])
	fmt.Printf("Create: %v\n", n["create"])
	fmt.Printf("Read:   %v\n", n["read"])
	fmt.Printf("Update: %v\n", n["update"])
	fmt.Printf("Delete: %v\n", n["delete"])
}
