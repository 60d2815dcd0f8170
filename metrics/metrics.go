// Package metrics wires Prometheus counters around the stack's failure and
// retry paths: each component gets a small struct of plain
// prometheus.Counter values registered against a caller-supplied
// prometheus.Registerer, so a host embedding this stack controls where (or
// whether) metrics are exposed.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Sender counts retransmission events on a tcp.Sender.
type Sender struct {
	Retransmissions prometheus.Counter
}

// NewSender registers and returns Sender counters under reg.
func NewSender(reg prometheus.Registerer) *Sender {
	s := &Sender{
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ustack_tcp_sender_retransmissions_total",
			Help: "Segments retransmitted after a retransmission-timeout expiry.",
		}),
	}
	reg.MustRegister(s.Retransmissions)
	return s
}

// IncRetransmission increments the retransmission counter.
func (s *Sender) IncRetransmission() { s.Retransmissions.Inc() }

// Network counts ARP-related events on a network.Interface.
type Network struct {
	CacheMisses prometheus.Counter
	Evictions   prometheus.Counter
}

// NewNetwork registers and returns Network counters under reg.
func NewNetwork(reg prometheus.Registerer) *Network {
	n := &Network{
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ustack_network_arp_cache_misses_total",
			Help: "Outbound datagrams that required ARP resolution (cache miss).",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ustack_network_arp_evictions_total",
			Help: "ARP cache entries evicted after the 30 second TTL.",
		}),
	}
	reg.MustRegister(n.CacheMisses, n.Evictions)
	return n
}

// IncCacheMiss increments the ARP cache miss counter.
func (n *Network) IncCacheMiss() { n.CacheMisses.Inc() }

// IncEviction increments the ARP eviction counter.
func (n *Network) IncEviction() { n.Evictions.Inc() }

// Router counts datagram drops on a router.Router.
type Router struct {
	TTLExhausted prometheus.Counter
	NoRoute      prometheus.Counter
}

// NewRouter registers and returns Router counters under reg.
func NewRouter(reg prometheus.Registerer) *Router {
	r := &Router{
		TTLExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ustack_router_ttl_exhausted_total",
			Help: "Datagrams dropped for arriving with ttl<=1.",
		}),
		NoRoute: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ustack_router_no_route_total",
			Help: "Datagrams dropped for matching no forwarding entry.",
		}),
	}
	reg.MustRegister(r.TTLExhausted, r.NoRoute)
	return r
}

// IncTTLExhausted increments the ttl-exhausted drop counter.
func (r *Router) IncTTLExhausted() { r.TTLExhausted.Inc() }

// IncNoRoute increments the no-route drop counter.
func (r *Router) IncNoRoute() { r.NoRoute.Inc() }
