package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var serverURL string

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Fleet related commands",
}

var fleetLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List fleet units on a running instance",
	RunE:  runFleetLs,
}

func init() {
	fleetCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "dispatch service base URL")
	fleetCmd.AddCommand(fleetLsCmd)
	rootCmd.AddCommand(fleetCmd)
}

func runFleetLs(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(serverURL + "/api/fleet")
	if err != nil {
		return fmt.Errorf("fetch fleet: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch fleet: %s", resp.Status)
	}
	var units []struct {
		ID      string  `json:"id"`
		Status  string  `json:"status"`
		Battery float64 `json:"battery"`
		Zone    string  `json:"zone"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&units); err != nil {
		return err
	}
	for _, u := range units {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%.0f%%\t%s\n", u.ID, u.Status, u.Battery, u.Zone)
	}
	return nil
}
