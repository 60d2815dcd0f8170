// Package network implements the ARP-resolving Ethernet/IPv4 network
// interface: the boundary between the wire (Ethernet frames carrying ARP or
// IPv4) and the router/TCP layers above it. Wire (de)serialization is
// delegated to github.com/google/gopacket/layers; this package owns the ARP
// cache, the pending-on-ARP retry table, and the outbound frame queue.
package network

import (
	"log/slog"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rs/xid"
	"golang.org/x/time/rate"

	"github.com/soypat/ustack/internal"
	"github.com/soypat/ustack/metrics"
)

const (
	arpCacheTTLMs        = 30_000
	arpRequestSuppressMs = 5_000
)

var broadcastHW = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Frame is a fully-formed Ethernet frame, ready to serialize to the wire or
// as received from it.
type Frame struct {
	Dst, Src  net.HardwareAddr
	EtherType layers.EthernetType
	// Payload is the serialized layer immediately above Ethernet: an ARP
	// packet's bytes, or an IPv4 datagram's bytes.
	Payload []byte
}

type arpCacheEntry struct {
	hw        net.HardwareAddr
	cachedAt  uint64
	permanent bool
}

type pendingEntry struct {
	dgram         layers.IPv4
	lastRequestAt uint64
}

// Config configures an Interface at construction.
type Config struct {
	HWAddr  net.HardwareAddr
	IPAddr  netip.Addr
	Logger  *slog.Logger
	Metrics *metrics.Network // optional; nil disables counters.
}

// Interface owns one Ethernet address and one IPv4 address, resolving
// next-hop IPv4 addresses to Ethernet addresses via ARP before transmitting.
// All state is advanced exclusively by its exported methods; Interface does
// not spawn goroutines or block.
type Interface struct {
	log *slog.Logger
	id  xid.ID

	hwAddr net.HardwareAddr
	ipAddr netip.Addr

	arpCache     map[netip.Addr]arpCacheEntry
	pendingOnARP map[netip.Addr]pendingEntry
	outbound     []Frame
	inbound      []layers.IPv4
	nowMs        uint64

	// arpRequestLimiter bounds the total rate of ARP requests broadcast by
	// this interface, independent of the per-IP 5000ms suppression rule
	// below: a burst of distinct unresolved destinations could otherwise
	// flood the segment even though each individual IP is only retried
	// every 5 seconds.
	arpRequestLimiter *rate.Limiter
	metrics           *metrics.Network
}

// New constructs an Interface per cfg.
func New(cfg Config) *Interface {
	return &Interface{
		log:               cfg.Logger,
		id:                xid.New(),
		hwAddr:            cfg.HWAddr,
		ipAddr:            cfg.IPAddr,
		arpCache:          make(map[netip.Addr]arpCacheEntry),
		pendingOnARP:      make(map[netip.Addr]pendingEntry),
		arpRequestLimiter: rate.NewLimiter(rate.Limit(50), 50),
		metrics:           cfg.Metrics,
	}
}

func (ifc *Interface) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(ifc.log, internal.LevelTrace, msg, append([]slog.Attr{slog.Any("id", ifc.id)}, attrs...)...)
}
func (ifc *Interface) debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(ifc.log, slog.LevelDebug, msg, append([]slog.Attr{slog.Any("id", ifc.id)}, attrs...)...)
}

// HWAddr returns the interface's Ethernet address.
func (ifc *Interface) HWAddr() net.HardwareAddr { return ifc.hwAddr }

// IPAddr returns the interface's IPv4 address.
func (ifc *Interface) IPAddr() netip.Addr { return ifc.ipAddr }

// AddStaticEntry installs a permanent ARP cache entry, exempt from the
// 30-second eviction applied to entries learned from the wire. Useful for
// gateways and other peers whose address is known out-of-band.
func (ifc *Interface) AddStaticEntry(ip netip.Addr, hw net.HardwareAddr) {
	ifc.arpCache[ip] = arpCacheEntry{hw: hw, permanent: true}
}

// SendDatagram resolves nextHop to an Ethernet address and enqueues the
// serialized frame, or triggers ARP resolution first.
func (ifc *Interface) SendDatagram(dgram layers.IPv4, nextHop netip.Addr) error {
	if entry, ok := ifc.arpCache[nextHop]; ok {
		return ifc.enqueueIPv4(entry.hw, dgram)
	}
	if ifc.metrics != nil {
		ifc.metrics.IncCacheMiss()
	}

	pending, exists := ifc.pendingOnARP[nextHop]
	if exists && pending.lastRequestAt+arpRequestSuppressMs >= ifc.nowMs {
		ifc.trace("arp request suppressed", internal.SlogAddr("nextHop", nextHop))
		ifc.pendingOnARP[nextHop] = pendingEntry{dgram: dgram, lastRequestAt: pending.lastRequestAt}
		return nil
	}

	ifc.pendingOnARP[nextHop] = pendingEntry{dgram: dgram, lastRequestAt: ifc.nowMs}
	return ifc.broadcastARPRequest(nextHop)
}

func (ifc *Interface) broadcastARPRequest(target netip.Addr) error {
	if !ifc.arpRequestLimiter.Allow() {
		ifc.debug("arp request rate-limited", internal.SlogAddr("target", target))
		return nil
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   ifc.hwAddr,
		SourceProtAddress: ifc.ipAddr.AsSlice(),
		DstHwAddress:      make(net.HardwareAddr, 6),
		DstProtAddress:    target.AsSlice(),
	}
	payload, err := serializeLayer(arp)
	if err != nil {
		return err
	}
	ifc.outbound = append(ifc.outbound, Frame{
		Dst:       broadcastHW,
		Src:       ifc.hwAddr,
		EtherType: layers.EthernetTypeARP,
		Payload:   payload,
	})
	return nil
}

func (ifc *Interface) enqueueIPv4(dst net.HardwareAddr, dgram layers.IPv4) error {
	payload, err := serializeLayer(&dgram)
	if err != nil {
		return err
	}
	ifc.outbound = append(ifc.outbound, Frame{
		Dst:       dst,
		Src:       ifc.hwAddr,
		EtherType: layers.EthernetTypeIPv4,
		Payload:   payload,
	})
	return nil
}

// RecvFrame processes an inbound Ethernet frame. An IPv4 payload addressed
// to this interface is parsed and queued for later draining by
// MaybeReceiveDatagram (the router.Router.Route loop); ARP frames are
// handled and never queued. Reports whether the frame was accepted (not
// dropped as mis-addressed or unparseable).
func (ifc *Interface) RecvFrame(frame Frame) (accepted bool) {
	if !macEqual(frame.Dst, ifc.hwAddr) && !macEqual(frame.Dst, broadcastHW) {
		return false
	}

	switch frame.EtherType {
	case layers.EthernetTypeIPv4:
		pkt := gopacket.NewPacket(frame.Payload, layers.LayerTypeIPv4, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		ipLayer := pkt.Layer(layers.LayerTypeIPv4)
		if ipLayer == nil {
			ifc.debug("dropped unparseable ipv4 payload")
			return false
		}
		ifc.inbound = append(ifc.inbound, *ipLayer.(*layers.IPv4))
		return true

	case layers.EthernetTypeARP:
		return ifc.handleARP(frame.Payload)
	}
	return false
}

// MaybeReceiveDatagram pops the head of the inbound datagram queue, as
// drained by router.Router.Route.
func (ifc *Interface) MaybeReceiveDatagram() (layers.IPv4, bool) {
	if len(ifc.inbound) == 0 {
		return layers.IPv4{}, false
	}
	d := ifc.inbound[0]
	ifc.inbound = ifc.inbound[1:]
	return d, true
}

func (ifc *Interface) handleARP(payload []byte) (accepted bool) {
	pkt := gopacket.NewPacket(payload, layers.LayerTypeARP, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	arpLayer := pkt.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		ifc.debug("dropped unparseable arp payload")
		return false
	}
	arp := arpLayer.(*layers.ARP)

	senderIP, ok := netip.AddrFromSlice(arp.SourceProtAddress)
	if !ok {
		return false
	}
	senderIP = senderIP.Unmap()
	senderHW := net.HardwareAddr(append([]byte(nil), arp.SourceHwAddress...))

	// Learn the sender's mapping regardless of request-vs-reply; this also
	// covers gratuitous ARP announcements.
	ifc.arpCache[senderIP] = arpCacheEntry{hw: senderHW, cachedAt: ifc.nowMs}
	ifc.trace("arp entry learned", internal.SlogAddr("ip", senderIP), internal.SlogHW("hw", senderHW))

	switch arp.Operation {
	case layers.ARPRequest:
		targetIP, ok := netip.AddrFromSlice(arp.DstProtAddress)
		if ok && targetIP.Unmap() == ifc.ipAddr {
			ifc.enqueueARPReply(senderHW, senderIP)
		}

	case layers.ARPReply:
		if pending, exists := ifc.pendingOnARP[senderIP]; exists {
			delete(ifc.pendingOnARP, senderIP)
			ifc.enqueueIPv4(senderHW, pending.dgram)
		}
	}
	return true
}

func (ifc *Interface) enqueueARPReply(dstHW net.HardwareAddr, dstIP netip.Addr) {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   ifc.hwAddr,
		SourceProtAddress: ifc.ipAddr.AsSlice(),
		DstHwAddress:      dstHW,
		DstProtAddress:    dstIP.AsSlice(),
	}
	payload, err := serializeLayer(arp)
	if err != nil {
		ifc.debug("failed to serialize arp reply", slog.String("err", err.Error()))
		return
	}
	ifc.outbound = append(ifc.outbound, Frame{
		Dst:       dstHW,
		Src:       ifc.hwAddr,
		EtherType: layers.EthernetTypeARP,
		Payload:   payload,
	})
}

// Tick advances virtual time and evicts stale, non-permanent ARP entries.
func (ifc *Interface) Tick(elapsedMs uint64) {
	ifc.nowMs += elapsedMs
	for ip, entry := range ifc.arpCache {
		if !entry.permanent && ifc.nowMs-entry.cachedAt > arpCacheTTLMs {
			delete(ifc.arpCache, ip)
			if ifc.metrics != nil {
				ifc.metrics.IncEviction()
			}
		}
	}
}

// MaybeSend pops and returns the head of the outbound frame queue.
func (ifc *Interface) MaybeSend() (Frame, bool) {
	if len(ifc.outbound) == 0 {
		return Frame{}, false
	}
	f := ifc.outbound[0]
	ifc.outbound = ifc.outbound[1:]
	return f, true
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func serializeLayer(l gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := l.SerializeTo(buf, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
