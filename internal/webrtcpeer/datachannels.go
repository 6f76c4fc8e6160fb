package webrtcpeer

import (
	"github.com/pion/webrtc/v4"
)

// DataChannelLabelEcho is the label the CLI ping/echo pair negotiates.
const DataChannelLabelEcho = "echo"

// Echo writes every message received on dc back to the sender, preserving
// whether it was text or binary.
func Echo(dc *webrtc.DataChannel) {
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			_ = dc.SendText(string(msg.Data))
			return
		}
		_ = dc.Send(msg.Data)
	})
}
