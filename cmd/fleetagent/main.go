package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"DistWordCount/internal/config"
	"DistWordCount/internal/discovery"
	"DistWordCount/internal/logger"
)

// fleetagent keeps a gossip member alive under the machine's name so that
// `-probe gossip` can find it.
func main() {
	cfg := config.Default()
	name := flag.String("name", "", "Member name, defaults to the hostname")
	bind := flag.String("bind", "0.0.0.0", "Address to bind to")
	join := flag.String("join", "", "Comma separated host:port list of agents to join")
	flag.IntVar(&cfg.GossipPort, "gossip-port", cfg.GossipPort, "Gossip port")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "DEBUG, INFO, WARN or ERROR")
	flag.Parse()

	lg := logger.New(cfg.LogLevel)

	if *name == "" {
		h, err := os.Hostname()
		if err != nil {
			fmt.Fprintf(os.Stderr, "fleetagent: failed to get hostname: %v\n", err)
			os.Exit(1)
		}
		*name = h
	}

	var peers []string
	for _, p := range strings.Split(*join, ",") {
		if p = strings.TrimSpace(p); p != "" {
			peers = append(peers, p)
		}
	}

	nd, err := discovery.NewNodeDiscovery(discovery.GossipConfig{
		NodeID:    *name,
		BindAddr:  *bind,
		BindPort:  cfg.GossipPort,
		JoinAddrs: peers,
	}, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fleetagent: %v\n", err)
		os.Exit(1)
	}

	nd.RegisterJoinCallback(func(nodeID, address string) {
		lg.Info("Fleet member joined: %s at %s", nodeID, address)
	})
	nd.RegisterLeaveCallback(func(nodeID string) {
		lg.Info("Fleet member left: %s", nodeID)
	})

	lg.Info("Fleet agent running: name=%s addr=%s members=%d", nd.Name(), nd.Addr(), len(nd.GetMembers()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	lg.Info("Shutting down fleet agent...")
	if err := nd.Leave(2 * time.Second); err != nil {
		lg.Warn("Failed to leave: %v", err)
	}
	if err := nd.Shutdown(); err != nil {
		lg.Warn("Failed to shut down: %v", err)
	}
}
