// Package router implements longest-prefix-match IPv4 forwarding across a
// set of network.Interface values using a linear scan over the forwarding
// table: entries are few enough in practice that a trie or radix structure
// buys nothing a slice scan doesn't already give cheaply.
package router

import (
	"log/slog"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rs/xid"

	"github.com/soypat/ustack/internal"
	"github.com/soypat/ustack/internal/lrucache"
	"github.com/soypat/ustack/metrics"
	"github.com/soypat/ustack/network"
)

// matchCacheSize bounds the number of resolved longest-prefix-match results
// memoized per Router; a cache miss just falls back to the linear scan.
const matchCacheSize = 64

// Entry is one forwarding-table row: datagrams whose destination's top
// PrefixLen bits equal Prefix's are routed out Iface, to NextHop if set or
// to the datagram's own destination otherwise.
type Entry struct {
	Prefix     netip.Addr
	PrefixLen  uint8
	NextHop    netip.Addr // zero Addr means "use the datagram's destination"
	Iface      int
}

func (e Entry) hasNextHop() bool { return e.NextHop.IsValid() }

// Config configures a Router at construction.
type Config struct {
	Logger *slog.Logger
}

// Router owns a set of network interfaces and a forwarding table, draining
// inbound datagrams from each interface and forwarding them according to
// longest-prefix match.
type Router struct {
	log  *slog.Logger
	id   xid.ID

	ifaces  []*network.Interface
	entries []Entry

	// matchCache memoizes match's result per destination address, invalidated
	// wholesale whenever the forwarding table changes.
	matchCache lrucache.Cache[netip.Addr, Entry]

	metrics *metrics.Router
}

// New constructs a Router per cfg.
func New(cfg Config, m *metrics.Router) *Router {
	return &Router{
		log:        cfg.Logger,
		id:         xid.New(),
		matchCache: lrucache.New[netip.Addr, Entry](matchCacheSize),
		metrics:    m,
	}
}

// AddInterface registers an interface, returning its index for use in
// AddRoute.
func (r *Router) AddInterface(ifc *network.Interface) int {
	r.ifaces = append(r.ifaces, ifc)
	return len(r.ifaces) - 1
}

// AddRoute appends a forwarding entry. Routes are matched in longest-prefix
// order; among equal-length matches the first one added wins.
func (r *Router) AddRoute(e Entry) {
	r.entries = append(r.entries, e)
	r.matchCache = lrucache.New[netip.Addr, Entry](matchCacheSize)
}

// RemoveRoute removes the first entry matching prefix/prefixLen exactly.
// Reports whether an entry was removed.
func (r *Router) RemoveRoute(prefix netip.Addr, prefixLen uint8) bool {
	for i, e := range r.entries {
		if e.Prefix == prefix && e.PrefixLen == prefixLen {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			r.matchCache = lrucache.New[netip.Addr, Entry](matchCacheSize)
			return true
		}
	}
	return false
}

// Routes returns a read-only snapshot of the forwarding table.
func (r *Router) Routes() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Route drains all pending datagrams from every interface's
// MaybeReceiveDatagram and forwards each per the longest-prefix-match
// contract, draining each interface in turn.
func (r *Router) Route() {
	for _, ifc := range r.ifaces {
		for {
			dgram, ok := ifc.MaybeReceiveDatagram()
			if !ok {
				break
			}
			r.RouteDatagram(dgram)
		}
	}
}

// RouteDatagram applies the forwarding decision for a single datagram,
// exposed separately from Route so callers (and tests) can drive a single
// datagram through the decision without an interface's inbound queue.
func (r *Router) RouteDatagram(dgram layers.IPv4) {
	if dgram.TTL <= 1 {
		if dst, ok := netip.AddrFromSlice(dgram.DstIP); ok {
			r.trace("ttl exhausted", internal.SlogAddr("dst", dst.Unmap()))
		}
		if r.metrics != nil {
			r.metrics.IncTTLExhausted()
		}
		return
	}
	dgram.TTL--

	dst, ok := netip.AddrFromSlice(dgram.DstIP)
	if !ok {
		return
	}
	dst = dst.Unmap()

	entry, found := r.match(dst)
	if !found {
		r.trace("no route", internal.SlogAddr("dst", dst))
		if r.metrics != nil {
			r.metrics.IncNoRoute()
		}
		return
	}

	if entry.Iface < 0 || entry.Iface >= len(r.ifaces) {
		return
	}
	ifc := r.ifaces[entry.Iface]

	nextHop := dst
	if entry.hasNextHop() {
		nextHop = entry.NextHop
	}

	dgram.Checksum = 0 // recomputed by gopacket on serialize, per ComputeChecksums below.
	if err := recomputeIPv4Checksum(&dgram); err != nil {
		r.trace("checksum recompute failed", slog.String("err", err.Error()))
		return
	}

	if err := ifc.SendDatagram(dgram, nextHop); err != nil {
		r.trace("send failed", slog.String("err", err.Error()))
	}
}

// match performs the longest-prefix-match scan over r.entries: first entry
// whose prefix matches dst's top PrefixLen bits wins among ties of equal
// length (insertion order is preserved by the scan).
func (r *Router) match(dst netip.Addr) (Entry, bool) {
	if cached, ok := r.matchCache.Get(dst); ok {
		return cached, true
	}

	var best Entry
	var bestLen int = -1
	for _, e := range r.entries {
		if matchPrefix(e.Prefix, e.PrefixLen, dst) && int(e.PrefixLen) > bestLen {
			best = e
			bestLen = int(e.PrefixLen)
		}
	}
	if bestLen < 0 {
		return best, false
	}
	r.matchCache.Push(dst, best)
	return best, true
}

// matchPrefix reports whether the top n bits of a and b agree.
func matchPrefix(a netip.Addr, n uint8, b netip.Addr) bool {
	if !a.Is4() || !b.Is4() || n > 32 {
		return false
	}
	pa, pb := a.As4(), b.As4()
	return maskedEqual(pa[:], pb[:], n)
}

func maskedEqual(a, b []byte, n uint8) bool {
	fullBytes := n / 8
	for i := uint8(0); i < fullBytes; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	remBits := n % 8
	if remBits == 0 {
		return true
	}
	mask := byte(0xff << (8 - remBits))
	return a[fullBytes]&mask == b[fullBytes]&mask
}

func recomputeIPv4Checksum(dgram *layers.IPv4) error {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := dgram.SerializeTo(buf, opts); err != nil {
		return err
	}
	pkt := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeIPv4, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	if ipLayer := pkt.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		*dgram = *ipLayer.(*layers.IPv4)
	}
	return nil
}

func (r *Router) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(r.log, internal.LevelTrace, msg, append([]slog.Attr{slog.Any("id", r.id)}, attrs...)...)
}
