package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/client"
)

const envRelayURL = "AERO_SIGNAL_RELAY_URL"

type cliState struct {
	relayURL string
	id       string
	key      string
}

func (s *cliState) client() *client.Client {
	return client.New(s.relayURL)
}

func (s *cliState) creds() (client.Credentials, error) {
	if s.id == "" || s.key == "" {
		return client.Credentials{}, errors.New("--id and --key are required")
	}
	return client.Credentials{ID: s.id, Key: s.key}, nil
}

func newRootCmd() *cobra.Command {
	st := &cliState{}

	defaultURL := os.Getenv(envRelayURL)
	if defaultURL == "" {
		defaultURL = "http://127.0.0.1:8080"
	}

	root := &cobra.Command{
		Use:          "aero-signal-client",
		Short:        "Talk to an aero WebRTC signal relay",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&st.relayURL, "relay", defaultURL, "relay base URL ("+envRelayURL+")")

	root.AddCommand(
		connectCmd(st),
		listenCmd(st),
		sendCmd(st),
		disconnectCmd(st),
		iceCmd(st),
		echoCmd(st),
		pingCmd(st),
	)
	return root
}

func addCredFlags(cmd *cobra.Command, st *cliState) {
	cmd.Flags().StringVar(&st.id, "id", "", "peer id from connect")
	cmd.Flags().StringVar(&st.key, "key", "", "peer key from connect")
}

func writeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// connect: obtain a new peer identity.
func connectCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Obtain a new peer id and key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := st.client().Connect(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSONLine(cmd.OutOrStdout(), creds)
		},
	}
}

// listen: print pushed events, one JSON object per line.
func listenCmd(st *cliState) *cobra.Command {
	var useWS bool
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream events for a peer until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := st.creds()
			if err != nil {
				return err
			}

			var stream client.Stream
			if useWS {
				stream, err = st.client().Dial(cmd.Context(), creds)
			} else {
				stream, err = st.client().Events(cmd.Context(), creds)
			}
			if err != nil {
				return err
			}
			defer stream.Close()

			out := cmd.OutOrStdout()
			for {
				ev, err := stream.Next()
				if err != nil {
					if errors.Is(err, io.EOF) || cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				if err := writeJSONLine(out, ev); err != nil {
					return err
				}
				if ev.Error != "" {
					return fmt.Errorf("relay: %s", ev.Error)
				}
			}
		},
	}
	addCredFlags(cmd, st)
	cmd.Flags().BoolVar(&useWS, "ws", false, "use the WebSocket stream instead of server-sent events")
	return cmd
}

// send <peer> <signal-json>: relay a signal to another peer.
func sendCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <peer> <signal-json>",
		Short: "Relay a JSON signal to another peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := st.creds()
			if err != nil {
				return err
			}
			if err := st.client().SendSignal(cmd.Context(), creds, args[0], json.RawMessage(args[1])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
	addCredFlags(cmd, st)
	return cmd
}

func disconnectCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Leave the relay immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := st.creds()
			if err != nil {
				return err
			}
			return st.client().Disconnect(cmd.Context(), creds)
		},
	}
	addCredFlags(cmd, st)
	return cmd
}

func iceCmd(st *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ice",
		Short: "Print the ICE servers the relay hands out to this peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := st.creds()
			if err != nil {
				return err
			}
			servers, err := st.client().ICEServers(cmd.Context(), creds)
			if err != nil {
				return err
			}
			return writeJSONLine(cmd.OutOrStdout(), map[string]any{"iceServers": servers})
		},
	}
	addCredFlags(cmd, st)
	return cmd
}
