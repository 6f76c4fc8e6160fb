package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/client"
	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/webrtcpeer"
)

type peerFlags struct {
	udpPortMin uint16
	udpPortMax uint16
}

func (f *peerFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint16Var(&f.udpPortMin, "udp-port-min", 0, "lowest local UDP port for ICE (0 = any)")
	cmd.Flags().Uint16Var(&f.udpPortMax, "udp-port-max", 0, "highest local UDP port for ICE (0 = any)")
}

// startPeer builds a webrtcpeer.Peer for creds and starts handling its event
// stream in the background.
func startPeer(ctx context.Context, st *cliState, f *peerFlags, creds client.Credentials, onDC func(string, *webrtc.DataChannel)) (*webrtcpeer.Peer, <-chan error, error) {
	c := st.client()

	servers, err := c.ICEServers(ctx, creds)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch ice servers: %w", err)
	}
	api, err := webrtcpeer.NewAPI(webrtcpeer.Settings{UDPPortMin: f.udpPortMin, UDPPortMax: f.udpPortMax})
	if err != nil {
		return nil, nil, err
	}
	stream, err := c.Events(ctx, creds)
	if err != nil {
		return nil, nil, err
	}

	p := webrtcpeer.New(webrtcpeer.Config{
		API:           api,
		Client:        c,
		Credentials:   creds,
		ICEServers:    servers,
		Logger:        slog.Default(),
		OnDataChannel: onDC,
	})
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, stream) }()
	return p, done, nil
}

// echo: answer offers and echo every data channel message.
func echoCmd(st *cliState) *cobra.Command {
	var f peerFlags
	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Answer WebRTC offers and echo data channel messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := st.creds()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			p, done, err := startPeer(cmd.Context(), st, &f, creds, func(remote string, dc *webrtc.DataChannel) {
				fmt.Fprintf(out, "channel %q from %s\n", dc.Label(), remote)
				webrtcpeer.Echo(dc)
			})
			if err != nil {
				return err
			}
			defer p.Close()

			if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	addCredFlags(cmd, st)
	f.register(cmd)
	return cmd
}

// ping <peer>: open a data channel to an echo peer and time one round trip.
func pingCmd(st *cliState) *cobra.Command {
	var (
		f       peerFlags
		message string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ping <peer>",
		Short: "Open a data channel to an echo peer and measure one round trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := st.creds()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			p, _, err := startPeer(ctx, st, &f, creds, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			dc, err := p.Offer(ctx, args[0], webrtcpeer.DataChannelLabelEcho, nil)
			if err != nil {
				return err
			}

			var sentNanos atomic.Int64
			reply := make(chan string, 1)
			dc.OnOpen(func() {
				sentNanos.Store(time.Now().UnixNano())
				_ = dc.SendText(message)
			})
			dc.OnMessage(func(msg webrtc.DataChannelMessage) {
				select {
				case reply <- string(msg.Data):
				default:
				}
			})

			select {
			case got := <-reply:
				fmt.Fprintf(cmd.OutOrStdout(), "reply %q from %s in %s\n", got, args[0], time.Since(time.Unix(0, sentNanos.Load())).Round(time.Microsecond))
				return nil
			case <-ctx.Done():
				return fmt.Errorf("no reply from %s: %w", args[0], ctx.Err())
			}
		},
	}
	addCredFlags(cmd, st)
	f.register(cmd)
	cmd.Flags().StringVar(&message, "message", "ping", "text to send")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "overall deadline")
	return cmd
}
