package gamecontroller

import (
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"time"

	"github.com/banshee-data/fieldpose/internal/monitoring"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// TimedPacket is a decoded packet with its capture timestamp.
type TimedPacket struct {
	Timestamp time.Time
	Packet    *Packet
}

// ReadCapture decodes every GameController packet sent to udpPort in a
// classic pcap stream. Payloads that fail to decode are logged and skipped.
func ReadCapture(r io.Reader, udpPort int) ([]TimedPacket, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap stream: %w", err)
	}

	source := gopacket.NewPacketSource(reader, reader.LinkType())
	source.NoCopy = true

	var out []TimedPacket
	skipped := 0
	for packet := range source.Packets() {
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || int(udp.DstPort) != udpPort || len(udp.Payload) == 0 {
			continue
		}
		pkt, err := Decode(udp.Payload)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, TimedPacket{Timestamp: packet.Metadata().Timestamp, Packet: pkt})
	}
	if skipped > 0 {
		monitoring.Logf("gamecontroller capture: skipped %d undecodable payloads on port %d", skipped, udpPort)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ReadCaptureFile opens path and calls ReadCapture.
func ReadCaptureFile(path string, udpPort int) ([]TimedPacket, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	defer f.Close()
	return ReadCapture(f, udpPort)
}

// Addresses used for synthesised captures.
var (
	captureSrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	captureSrcIP  = net.IP{10, 0, 0, 1}
	broadcastMAC  = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	broadcastIP   = net.IP{255, 255, 255, 255}
)

// WriteCapture writes packets as broadcast UDP datagrams to udpPort in a
// classic pcap stream that ReadCapture accepts.
func WriteCapture(w io.Writer, packets []TimedPacket, udpPort int) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}

	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	for i, tp := range packets {
		payload, err := Encode(tp.Packet)
		if err != nil {
			return err
		}
		eth := &layers.Ethernet{SrcMAC: captureSrcMAC, DstMAC: broadcastMAC, EthernetType: layers.EthernetTypeIPv4}
		ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: captureSrcIP, DstIP: broadcastIP}
		udp := &layers.UDP{SrcPort: layers.UDPPort(udpPort), DstPort: layers.UDPPort(udpPort)}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}

		buf := gopacket.NewSerializeBuffer()
		if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
			return fmt.Errorf("serialise packet %d: %w", i, err)
		}
		data := buf.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: tp.Timestamp, CaptureLength: len(data), Length: len(data)}
		if err := pw.WritePacket(ci, data); err != nil {
			return fmt.Errorf("write packet %d: %w", i, err)
		}
	}
	return nil
}

// WriteCaptureFile creates path and calls WriteCapture.
func WriteCaptureFile(path string, packets []TimedPacket, udpPort int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture %s: %w", path, err)
	}
	if err := WriteCapture(f, packets, udpPort); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Timeline answers "which referee packet was current at time t" for a
// sorted capture.
type Timeline struct {
	packets []TimedPacket
}

// NewTimeline wraps packets, which must be sorted by timestamp.
func NewTimeline(packets []TimedPacket) *Timeline {
	return &Timeline{packets: packets}
}

// Len returns the number of packets in the timeline.
func (tl *Timeline) Len() int { return len(tl.packets) }

// Start returns the timestamp of the first packet.
func (tl *Timeline) Start() time.Time {
	if len(tl.packets) == 0 {
		return time.Time{}
	}
	return tl.packets[0].Timestamp
}

// End returns the timestamp of the last packet.
func (tl *Timeline) End() time.Time {
	if len(tl.packets) == 0 {
		return time.Time{}
	}
	return tl.packets[len(tl.packets)-1].Timestamp
}

// At returns the latest packet not after t, or nil before the first one.
func (tl *Timeline) At(t time.Time) *Packet {
	i := sort.Search(len(tl.packets), func(i int) bool { return tl.packets[i].Timestamp.After(t) })
	if i == 0 {
		return nil
	}
	return tl.packets[i-1].Packet
}
