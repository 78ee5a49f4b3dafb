package discovery

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"DistWordCount/internal/logger"
	"DistWordCount/internal/remote"
	"DistWordCount/internal/types"
)

func quietLogger() *logger.Logger {
	return logger.NewWithOutput("ERROR", io.Discard)
}

func sandboxFleet(t *testing.T, hosts ...string) *remote.Sandbox {
	t.Helper()
	root := t.TempDir()
	for _, h := range hosts {
		if err := os.MkdirAll(filepath.Join(root, h), 0755); err != nil {
			t.Fatalf("Failed to create host %s: %v", h, err)
		}
	}
	return remote.NewSandbox(root)
}

// liar answers every identify with a fixed name.
type liar struct {
	remote.Transport
	name string
}

func (l liar) Identify(host string) remote.Command {
	return remote.Command{Args: []string{"echo", l.name}}
}

// slow never answers within the probe timeout for one host.
type slow struct {
	remote.Transport
	host string
}

func (s slow) Identify(host string) remote.Command {
	if host == s.host {
		return remote.Command{Args: []string{"sleep", "10"}}
	}
	return s.Transport.Identify(host)
}

func TestReadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machines.txt")
	if err := os.WriteFile(path, []byte("a\nb\n\nc\nb\n\n"), 0644); err != nil {
		t.Fatalf("Failed to write roster: %v", err)
	}

	roster, err := ReadRoster(path)
	if err != nil {
		t.Fatalf("ReadRoster failed: %v", err)
	}
	want := []types.Machine{"a", "b", "c"}
	if len(roster) != len(want) {
		t.Fatalf("Roster = %v, want %v", roster, want)
	}
	for i := range want {
		if roster[i] != want[i] {
			t.Fatalf("Roster = %v, want %v", roster, want)
		}
	}

	if _, err := ReadRoster(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatalf("Missing roster should fail")
	}
}

func TestProbeAllReachable(t *testing.T) {
	sb := sandboxFleet(t, "a", "b", "c")
	var out bytes.Buffer

	p := NewProbe(sb, quietLogger())
	p.Out = &out
	available, err := p.Run(context.Background(), []types.Machine{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if len(available) != 3 || available[0] != "a" || available[1] != "b" || available[2] != "c" {
		t.Fatalf("Available = %v", available)
	}
	if out.Len() != 0 {
		t.Fatalf("Non-verbose probe should print nothing on success, got %q", out.String())
	}
	t.Logf("✓ All machines available in roster order")
}

func TestProbeUnreachableMachine(t *testing.T) {
	sb := sandboxFleet(t, "a")
	var out bytes.Buffer

	p := NewProbe(sb, quietLogger())
	p.Out = &out
	available, err := p.Run(context.Background(), []types.Machine{"a", "b"})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if len(available) != 1 || available[0] != "a" {
		t.Fatalf("Available = %v, want [a]", available)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "Machine b UNAVAILABLE") {
		t.Fatalf("Expected one error line for b, got %q", out.String())
	}
}

func TestProbeVerboseReportsEveryMachine(t *testing.T) {
	sb := sandboxFleet(t, "a", "c")
	var out bytes.Buffer

	p := NewProbe(sb, quietLogger())
	p.Out = &out
	p.Verbose = true
	p.Workers = 1
	if _, err := p.Run(context.Background(), []types.Machine{"a", "b", "c"}); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 status lines, got %q", out.String())
	}
	if lines[0] != "Machine a AVAILABLE" || !strings.HasPrefix(lines[1], "Machine b UNAVAILABLE") {
		t.Fatalf("Unexpected report %q", out.String())
	}
}

func TestProbeRejectsWrongHost(t *testing.T) {
	sb := sandboxFleet(t, "a", "b")
	p := NewProbe(liar{Transport: sb, name: "a"}, quietLogger())
	p.Out = io.Discard

	available, err := p.Run(context.Background(), []types.Machine{"a", "b"})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if len(available) != 1 || available[0] != "a" {
		t.Fatalf("Available = %v, want [a]", available)
	}
	if s := p.Statuses()[1]; s.Status != types.MachineUnavailable || !strings.Contains(s.Reason, `"a"`) {
		t.Fatalf("Unexpected status for b: %+v", s)
	}
}

func TestProbeTimeout(t *testing.T) {
	sb := sandboxFleet(t, "a", "b")
	p := NewProbe(slow{Transport: sb, host: "b"}, quietLogger())
	p.Out = io.Discard
	p.Timeout = 300 * time.Millisecond

	begin := time.Now()
	available, err := p.Run(context.Background(), []types.Machine{"a", "b"})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if time.Since(begin) > 5*time.Second {
		t.Fatalf("Probe did not honor its timeout")
	}
	if len(available) != 1 || available[0] != "a" {
		t.Fatalf("Available = %v, want [a]", available)
	}
	if p.Statuses()[1].Reason != "timeout" {
		t.Fatalf("Expected a timeout for b, got %+v", p.Statuses()[1])
	}
}

func TestProbeEmptyWhenEverythingFails(t *testing.T) {
	sb := sandboxFleet(t)
	p := NewProbe(sb, quietLogger())
	p.Out = io.Discard

	available, err := p.Run(context.Background(), []types.Machine{"x", "y"})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if len(available) != 0 {
		t.Fatalf("Available = %v, want none", available)
	}
}

func TestGossipProbe(t *testing.T) {
	agents := make(map[types.Machine]string)
	for _, name := range []string{"alpha", "beta"} {
		nd, err := NewNodeDiscovery(GossipConfig{NodeID: name, BindAddr: "127.0.0.1"}, quietLogger())
		if err != nil {
			t.Fatalf("Failed to start agent %s: %v", name, err)
		}
		defer nd.Shutdown()
		agents[types.Machine(name)] = nd.Addr()
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve a port: %v", err)
	}
	closed := l.Addr().String()
	l.Close()
	agents["gamma"] = closed
	// delta resolves to alpha's agent, which does not answer to that name
	agents["delta"] = agents["alpha"]

	var out bytes.Buffer
	g := NewGossipProbe(0, quietLogger())
	g.BindAddr = "127.0.0.1"
	g.Timeout = time.Second
	g.Out = &out
	g.Resolve = func(m types.Machine) string { return agents[m] }

	available, err := g.Run(context.Background(), []types.Machine{"alpha", "gamma", "beta", "delta"})
	if err != nil {
		t.Fatalf("Gossip probe failed: %v", err)
	}
	if len(available) != 2 || available[0] != "alpha" || available[1] != "beta" {
		t.Fatalf("Available = %v, want [alpha beta]", available)
	}
	if !strings.Contains(out.String(), "Machine gamma UNAVAILABLE") || !strings.Contains(out.String(), "Machine delta UNAVAILABLE") {
		t.Fatalf("Missing failure lines: %q", out.String())
	}
	t.Logf("✓ Gossip probe found %v", available)
}

func TestGossipProbeChecksAnsweringAgent(t *testing.T) {
	alpha, err := NewNodeDiscovery(GossipConfig{NodeID: "alpha", BindAddr: "127.0.0.1"}, quietLogger())
	if err != nil {
		t.Fatalf("Failed to start alpha: %v", err)
	}
	defer alpha.Shutdown()

	beta, err := NewNodeDiscovery(GossipConfig{
		NodeID:    "beta",
		BindAddr:  "127.0.0.1",
		JoinAddrs: []string{alpha.Addr()},
	}, quietLogger())
	if err != nil {
		t.Fatalf("Failed to start beta: %v", err)
	}
	defer beta.Shutdown()

	// beta's name routes to alpha's agent while the real beta is in the
	// cluster.
	g := NewGossipProbe(0, quietLogger())
	g.BindAddr = "127.0.0.1"
	g.Timeout = time.Second
	g.Out = io.Discard
	g.Resolve = func(types.Machine) string { return alpha.Addr() }

	available, err := g.Run(context.Background(), []types.Machine{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Gossip probe failed: %v", err)
	}
	if len(available) != 1 || available[0] != "alpha" {
		t.Fatalf("Available = %v, want [alpha]", available)
	}
	if s := g.Statuses()[1]; s.Status != types.MachineUnavailable || !strings.Contains(s.Reason, `"alpha"`) {
		t.Fatalf("Unexpected status for beta: %+v", s)
	}
	t.Logf("✓ Misrouted host rejected although its agent is alive")
}

// crowded marks each identify as running for a while and records how many
// were running at the moment it started.
type crowded struct {
	remote.Transport
	running string
	peaks   string
}

func (c crowded) Identify(host string) remote.Command {
	script := `mkdir "$1/$2" && n=$(ls "$1" | wc -l) && echo $n >> "$3" && sleep 0.2 && rmdir "$1/$2" && echo "$2"`
	return remote.Command{Args: []string{"sh", "-c", script, "sh", c.running, host, c.peaks}}
}

func TestProbePoolIsBounded(t *testing.T) {
	dir := t.TempDir()
	tr := crowded{running: filepath.Join(dir, "running"), peaks: filepath.Join(dir, "peaks")}
	if err := os.MkdirAll(tr.running, 0755); err != nil {
		t.Fatalf("Failed to create %s: %v", tr.running, err)
	}

	var roster []types.Machine
	for i := 0; i < 12; i++ {
		roster = append(roster, types.Machine("m"+strconv.Itoa(i)))
	}

	p := NewProbe(tr, quietLogger())
	p.Out = io.Discard
	p.Workers = 3

	available, err := p.Run(context.Background(), roster)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if len(available) != len(roster) {
		t.Fatalf("Available = %v, want every machine", available)
	}

	data, err := os.ReadFile(tr.peaks)
	if err != nil {
		t.Fatalf("Failed to read peaks: %v", err)
	}
	samples := strings.Fields(string(data))
	if len(samples) != len(roster) {
		t.Fatalf("Expected %d samples, got %q", len(roster), data)
	}
	peak := 0
	for _, s := range samples {
		n, err := strconv.Atoi(s)
		if err != nil {
			t.Fatalf("Bad sample %q: %v", s, err)
		}
		if n > peak {
			peak = n
		}
	}
	if peak > p.Workers {
		t.Fatalf("%d probes ran at once, pool width is %d", peak, p.Workers)
	}
	t.Logf("✓ At most %d of %d probes ran at once", peak, len(roster))
}

// mute builds no identify command at all.
type mute struct {
	remote.Transport
}

func (mute) Identify(string) remote.Command {
	return remote.Command{}
}

func TestProbeReportsUnbuildableCommand(t *testing.T) {
	p := NewProbe(mute{}, quietLogger())
	p.Out = io.Discard
	if _, err := p.Run(context.Background(), []types.Machine{"a"}); err == nil {
		t.Fatalf("An empty identify command should fail the probe")
	}
}
