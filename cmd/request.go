package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	reqRider       string
	reqPickup      string
	reqDestination string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Submit a ride request to a running instance",
	RunE:  runRequest,
}

func init() {
	requestCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "dispatch service base URL")
	requestCmd.Flags().StringVar(&reqRider, "rider", "", "rider id")
	requestCmd.Flags().StringVar(&reqPickup, "pickup", "", "pickup zone")
	requestCmd.Flags().StringVar(&reqDestination, "destination", "", "destination zone")
	_ = requestCmd.MarkFlagRequired("rider")
	_ = requestCmd.MarkFlagRequired("pickup")
	_ = requestCmd.MarkFlagRequired("destination")
	rootCmd.AddCommand(requestCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]string{
		"rider_id":    reqRider,
		"pickup":      reqPickup,
		"destination": reqDestination,
	})
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(serverURL+"/api/requests", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit request: %w", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("submit request: %s: %s", resp.Status, bytes.TrimSpace(out))
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(bytes.TrimSpace(out)))
	return nil
}
