package discovery

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/memberlist"

	"DistWordCount/internal/logger"
	"DistWordCount/internal/types"
)

// EventDelegate implements memberlist.EventDelegate for handling membership changes
type EventDelegate struct {
	discovery *NodeDiscovery
}

func (ed *EventDelegate) NotifyJoin(node *memberlist.Node) {
	ed.discovery.handleNodeJoin(node)
}

func (ed *EventDelegate) NotifyLeave(node *memberlist.Node) {
	ed.discovery.handleNodeLeave(node)
}

func (ed *EventDelegate) NotifyUpdate(node *memberlist.Node) {
	ed.discovery.handleNodeUpdate(node)
}

// NodeDiscovery is a gossip member. Fleet agents run one under their
// hostname; the gossip probe runs a short-lived one to ask them.
type NodeDiscovery struct {
	memberlist *memberlist.Memberlist
	logger     *logger.Logger
	mu         sync.RWMutex

	onNodeJoin  func(nodeID, address string)
	onNodeLeave func(nodeID string)

	nodeAddresses map[string]string // nodeID -> address:port
	localNodeID   string
}

// GossipConfig configures a gossip member.
type GossipConfig struct {
	NodeID    string        // Member name, the machine id for agents
	BindAddr  string        // Address to bind to
	BindPort  int           // Port to bind to, 0 picks a free one
	JoinAddrs []string      // Addresses to join (format: "host:port")
	Timeout   time.Duration // TCP timeout for joins and push/pull
	LogOutput io.Writer     // memberlist's own log, discarded when nil
}

// NewNodeDiscovery creates a gossip member and joins JoinAddrs if any.
func NewNodeDiscovery(cfg GossipConfig, lg *logger.Logger) (*NodeDiscovery, error) {
	if lg == nil {
		lg = logger.New("INFO")
	}
	lg.Debug("Initializing gossip member: node_id=%s addr=%s:%d", cfg.NodeID, cfg.BindAddr, cfg.BindPort)

	nd := &NodeDiscovery{
		logger:        lg,
		localNodeID:   cfg.NodeID,
		nodeAddresses: make(map[string]string),
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
	}
	if cfg.Timeout > 0 {
		mlConfig.TCPTimeout = cfg.Timeout
	}
	mlConfig.RetransmitMult = 3
	mlConfig.ProbeInterval = 1 * time.Second
	mlConfig.ProbeTimeout = 500 * time.Millisecond
	mlConfig.GossipInterval = 200 * time.Millisecond
	mlConfig.GossipNodes = 3
	mlConfig.Events = &EventDelegate{discovery: nd}
	mlConfig.LogOutput = cfg.LogOutput
	if mlConfig.LogOutput == nil {
		mlConfig.LogOutput = io.Discard
	}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		lg.Error("Failed to create memberlist: %v", err)
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	nd.memberlist = ml

	if len(cfg.JoinAddrs) > 0 {
		if _, err := ml.Join(cfg.JoinAddrs); err != nil {
			lg.Warn("Failed to join fleet: %v (continuing alone)", err)
		} else {
			lg.Info("Joined fleet with %d members", ml.NumMembers())
		}
	}

	return nd, nil
}

// Name returns the local member name.
func (nd *NodeDiscovery) Name() string {
	return nd.localNodeID
}

// Addr returns the advertised host:port of the local member.
func (nd *NodeDiscovery) Addr() string {
	n := nd.memberlist.LocalNode()
	return net.JoinHostPort(n.Addr.String(), strconv.Itoa(int(n.Port)))
}

// Join contacts addrs and merges their member lists.
func (nd *NodeDiscovery) Join(addrs ...string) (int, error) {
	return nd.memberlist.Join(addrs)
}

// MemberAt returns the name of the live member advertising addr
// ("host:port"). The host part may be a name; any of its addresses matches.
func (nd *NodeDiscovery) MemberAt(addr string) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid agent address %s: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("invalid agent port in %s: %w", addr, err)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", host, err)
	}

	for _, n := range nd.memberlist.Members() {
		if n.State != memberlist.StateAlive || int(n.Port) != port {
			continue
		}
		for _, ip := range ips {
			if n.Addr.Equal(ip) {
				return n.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no live member at %s", addr)
}

// GetMembers returns all known members, the local one included.
func (nd *NodeDiscovery) GetMembers() map[string]string {
	nd.mu.RLock()
	defer nd.mu.RUnlock()

	result := make(map[string]string, len(nd.nodeAddresses))
	for k, v := range nd.nodeAddresses {
		result[k] = v
	}
	return result
}

// RegisterJoinCallback registers a callback for when nodes join
func (nd *NodeDiscovery) RegisterJoinCallback(callback func(nodeID, address string)) {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	nd.onNodeJoin = callback
}

// RegisterLeaveCallback registers a callback for when nodes leave
func (nd *NodeDiscovery) RegisterLeaveCallback(callback func(nodeID string)) {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	nd.onNodeLeave = callback
}

func (nd *NodeDiscovery) handleNodeJoin(node *memberlist.Node) {
	nd.mu.Lock()
	address := net.JoinHostPort(node.Addr.String(), strconv.Itoa(int(node.Port)))
	nd.nodeAddresses[node.Name] = address
	callback := nd.onNodeJoin
	nd.mu.Unlock()

	nd.logger.Debug("Member joined: node_id=%s address=%s", node.Name, address)

	if callback != nil {
		callback(node.Name, address)
	}
}

func (nd *NodeDiscovery) handleNodeLeave(node *memberlist.Node) {
	nd.mu.Lock()
	delete(nd.nodeAddresses, node.Name)
	callback := nd.onNodeLeave
	nd.mu.Unlock()

	nd.logger.Debug("Member left: node_id=%s", node.Name)

	if callback != nil {
		callback(node.Name)
	}
}

func (nd *NodeDiscovery) handleNodeUpdate(node *memberlist.Node) {
	nd.mu.Lock()
	nd.nodeAddresses[node.Name] = net.JoinHostPort(node.Addr.String(), strconv.Itoa(int(node.Port)))
	nd.mu.Unlock()
}

// Leave gracefully leaves the cluster
func (nd *NodeDiscovery) Leave(timeout time.Duration) error {
	return nd.memberlist.Leave(timeout)
}

// Shutdown shuts down the gossip member
func (nd *NodeDiscovery) Shutdown() error {
	return nd.memberlist.Shutdown()
}

// GossipProbe checks machines through the gossip agents they run: a
// machine is available iff joining its agent succeeds and the live member
// advertising that agent's address carries exactly the roster name.
type GossipProbe struct {
	Port     int
	BindAddr string
	Timeout  time.Duration
	Workers  int
	Verbose  bool
	Out      io.Writer
	// Resolve maps a machine to its agent address; host:Port by default.
	Resolve func(types.Machine) string

	mu       sync.Mutex
	statuses []Status
	logger   *logger.Logger
}

func NewGossipProbe(port int, lg *logger.Logger) *GossipProbe {
	if lg == nil {
		lg = logger.New("INFO")
	}
	return &GossipProbe{
		Port:    port,
		Timeout: DefaultProbeTimeout,
		Workers: DefaultProbeWorkers,
		Out:     os.Stderr,
		logger:  lg,
	}
}

func (g *GossipProbe) resolve(m types.Machine) string {
	if g.Resolve != nil {
		return g.Resolve(m)
	}
	return net.JoinHostPort(string(m), strconv.Itoa(g.Port))
}

// Run probes the roster and returns the available machines in roster order.
func (g *GossipProbe) Run(ctx context.Context, roster []types.Machine) ([]types.Machine, error) {
	local, err := NewNodeDiscovery(GossipConfig{
		NodeID:   "wcprobe-" + uuid.New().String()[:8],
		BindAddr: g.BindAddr,
		Timeout:  g.Timeout,
	}, g.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start gossip probe: %w", err)
	}
	defer func() {
		local.Leave(time.Second)
		local.Shutdown()
	}()

	workers := g.Workers
	if workers < 1 {
		workers = DefaultProbeWorkers
	}

	statuses := make([]Status, len(roster))
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i, m := range roster {
		wg.Add(1)
		go func(i int, m types.Machine) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				statuses[i] = Status{Machine: m, Status: types.MachineUnavailable, Reason: ctx.Err().Error()}
				return
			}

			addr := g.resolve(m)
			if _, err := local.Join(addr); err != nil {
				statuses[i] = Status{Machine: m, Status: types.MachineUnavailable, Reason: err.Error()}
				return
			}
			// Members gossip their peers, so the name must be checked
			// against the agent that actually answers at addr.
			name, err := local.MemberAt(addr)
			if err != nil {
				statuses[i] = Status{Machine: m, Status: types.MachineUnavailable, Reason: err.Error()}
				return
			}
			if name != string(m) {
				statuses[i] = Status{Machine: m, Status: types.MachineUnavailable, Reason: fmt.Sprintf("answered as %q", name)}
				return
			}
			statuses[i] = Status{Machine: m, Status: types.MachineAvailable}
		}(i, m)
	}

	wg.Wait()

	g.mu.Lock()
	g.statuses = statuses
	g.mu.Unlock()

	report(g.Out, g.Verbose, statuses)
	g.logger.Info("Fleet probed over gossip: tested=%d available=%d", len(statuses), len(Available(statuses)))
	return Available(statuses), nil
}

// Statuses returns the outcome of the last Run in roster order.
func (g *GossipProbe) Statuses() []Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Status(nil), g.statuses...)
}
