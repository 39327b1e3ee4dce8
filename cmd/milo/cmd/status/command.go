// Package status implements the milo status command: a one-shot view
// of the appliance state fetched over the REST API.
package status

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Leshauts/milo/cmd/milo/application"
	"github.com/Leshauts/milo/pkg/client"
)

// NewCommand creates the status command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the appliance state",
		Long: `Fetch and display the current appliance state from a running milo
daemon: active source, routing mode, volume, and per-source playback.`,
		Example: `  # Query the local daemon
  milo status

  # Query a remote appliance
  milo status --server http://milo.local:8080/api/v1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args, app)
		},
	}

	cmd.Flags().String("server", "", "API base URL (default from config)")

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string, app application.Application) error {
	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL == "" {
		serverURL = app.ServerURL()
	}

	api := client.New(serverURL)
	st, err := api.State(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetching state from %s: %w", serverURL, err)
	}

	printSummary(st)
	fmt.Println()
	return printSources(st)
}

func printSummary(st *client.State) {
	active := st.ActiveSource
	if active == "" || active == "none" {
		active = "none"
	}
	if st.Transitioning {
		active = fmt.Sprintf("%s -> %s", active, st.TargetSource)
	}

	volume := strconv.Itoa(st.Volume.Level)
	if st.Volume.Muted {
		volume += " (muted)"
	}

	fmt.Printf("Source:    %s\n", active)
	fmt.Printf("Routing:   %s\n", st.RoutingMode)
	fmt.Printf("Equalizer: %s\n", onOff(st.EqualizerEnabled))
	fmt.Printf("Volume:    %s\n", volume)
	if st.Error != nil {
		fmt.Printf("Error:     %s: %s\n", st.Error.Code, st.Error.Message)
	}
}

func printSources(st *client.State) error {
	table := tablewriter.NewTable(os.Stdout)
	table.Header("SOURCE", "CONNECTED", "PLAYING", "NOW PLAYING")

	for _, source := range []string{"librespot", "bluetooth", "roc"} {
		meta := st.Metadata[source]

		nowPlaying := meta.Title
		if meta.Artist != "" {
			nowPlaying = strings.TrimPrefix(meta.Artist+" - "+meta.Title, " - ")
		}
		if nowPlaying == "" && meta.DeviceName != "" {
			nowPlaying = meta.DeviceName
		}

		if err := table.Append(source, yesNo(meta.Connected), yesNo(meta.Playing), nowPlaying); err != nil {
			return err
		}
	}

	return table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
