// Package frames extracts telemetry frames from packet captures. A
// frame is one UDP payload; downlink telemetry arrives one packet per
// datagram, so no stream reassembly is needed.
package frames

import (
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Frame is one extracted telemetry frame with its capture metadata.
type Frame struct {
	Payload   []byte
	Timestamp time.Time
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
}

// ExtractUDP reads a pcap file and returns every non-empty UDP payload,
// in capture order. A nonzero port keeps only datagrams addressed to it.
func ExtractUDP(pcapFile string, port uint16) ([]Frame, error) {
	f, err := os.Open(pcapFile)
	if err != nil {
		return nil, fmt.Errorf("open pcap file: %w", err)
	}
	defer f.Close()
	handle, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open pcap file: %w", err)
	}

	var frames []Frame
	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range packetSource.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, _ := udpLayer.(*layers.UDP)
		if len(udp.Payload) == 0 {
			continue
		}
		if port != 0 && uint16(udp.DstPort) != port {
			continue
		}

		f := Frame{
			Payload: append([]byte(nil), udp.Payload...),
			SrcPort: uint16(udp.SrcPort),
			DstPort: uint16(udp.DstPort),
		}
		if meta := packet.Metadata(); meta != nil {
			f.Timestamp = meta.Timestamp
		}
		if netLayer := packet.NetworkLayer(); netLayer != nil {
			flow := netLayer.NetworkFlow()
			f.SrcIP = flow.Src().String()
			f.DstIP = flow.Dst().String()
		}
		frames = append(frames, f)
	}
	return frames, nil
}
