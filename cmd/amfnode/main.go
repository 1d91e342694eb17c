// Command amfnode is the AMF node daemon: it loads the §6.2 cluster
// configuration, builds the object Graph, and runs the reactor until
// terminated. Grounded on ais/daemon.go's init/Run split — flag parsing and
// config load happen before anything touches the network, and the daemon
// itself is "the 'main' where everything gets started".
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/amfcore/amf/actuator"
	"github.com/amfcore/amf/amf"
	"github.com/amfcore/amf/client"
	"github.com/amfcore/amf/config"
	"github.com/amfcore/amf/discovery"
	"github.com/amfcore/amf/kvstore"
	"github.com/amfcore/amf/noderepair"
	"github.com/amfcore/amf/transport"
)

const usecli = `
   Usage:
        amfnode -config=</path/to/cluster.conf> -listen=<host:port> [-socket=/run/amf.sock]
                [-kvstore=/var/lib/amf/tunables.db] [-k8s-namespace=ns -k8s-service=svc]`

type cliFlags struct {
	configPath    string
	listenAddr    string
	socketPath    string
	kvstorePath   string
	k8sNamespace  string
	k8sService    string
	metricsListen string
}

var cli cliFlags

func init() {
	flag.StringVar(&cli.configPath, "config", "", "path to the §6.2 cluster configuration file")
	flag.StringVar(&cli.listenAddr, "listen", "", "this node's loopback-transport listen address (host:port)")
	flag.StringVar(&cli.socketPath, "socket", "/run/amf.sock", "Unix-domain socket path for the component IPC library")
	flag.StringVar(&cli.kvstorePath, "kvstore", ":memory:", "path to the embedded tunables store (or \":memory:\")")
	flag.StringVar(&cli.k8sNamespace, "k8s-namespace", "", "if set with -k8s-service, source node-join/leave from this namespace's Endpoints watch")
	flag.StringVar(&cli.k8sService, "k8s-service", "", "Endpoints-backed Service name to watch for membership")
	flag.StringVar(&cli.metricsListen, "metrics-listen", "", "if set, serve Prometheus metrics at http://<addr>/metrics")
}

func main() {
	flag.Parse()
	if cli.configPath == "" || cli.listenAddr == "" {
		flag.Usage()
		fmt.Fprint(os.Stderr, usecli)
		os.Exit(2)
	}
	defer glog.Flush()

	if err := run(); err != nil {
		glog.Errorf("amfnode: %v", err)
		os.Exit(1)
	}
	glog.Infoln("amfnode: terminated OK")
}

func run() error {
	graph, err := config.Load(cli.configPath)
	if err != nil {
		return fmt.Errorf("amfnode: config load: %w", err)
	}
	glog.Infof("amfnode: loaded config from %s (%d nodes, %d applications)",
		cli.configPath, len(graph.Cluster.Nodes), len(graph.Cluster.Apps))

	tunables, err := kvstore.Open(cli.kvstorePath)
	if err != nil {
		return fmt.Errorf("amfnode: kvstore open: %w", err)
	}
	defer tunables.Close()

	net, err := transport.NewLoopback(cli.listenAddr)
	if err != nil {
		return fmt.Errorf("amfnode: transport listen: %w", err)
	}
	defer net.Close()

	act := actuator.NewScriptActuator()
	rep := noderepair.OSRepairer{}

	reactor := amf.NewReactor(graph, act, nil, net, rep)

	ipc, err := client.Listen(cli.socketPath, reactor)
	if err != nil {
		return fmt.Errorf("amfnode: ipc listen: %w", err)
	}
	defer ipc.Close()
	reactor.Client = ipc

	net.OnMembershipChange(func(change transport.MembershipChange) {
		for _, id := range change.Joined {
			if nodeH, ok := graph.FindNodeByID(id); ok {
				reactor.Post(amf.Event{Kind: amf.EvNodeSyncReady, Node: nodeH})
			}
		}
		for _, id := range change.Left {
			if nodeH, ok := graph.FindNodeByID(id); ok {
				reactor.Post(amf.Event{Kind: amf.EvNodeLeave, Node: nodeH})
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cli.metricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", amf.MetricsHandler())
		go func() {
			if err := http.ListenAndServe(cli.metricsListen, mux); err != nil {
				glog.Warningf("amfnode: metrics listener stopped: %v", err)
			}
		}()
	}

	if cli.k8sNamespace != "" && cli.k8sService != "" {
		restConfig, err := rest.InClusterConfig()
		if err != nil {
			return fmt.Errorf("amfnode: in-cluster k8s config: %w", err)
		}
		clientset, err := kubernetes.NewForConfig(restConfig)
		if err != nil {
			return fmt.Errorf("amfnode: k8s clientset: %w", err)
		}
		watcher := discovery.New(clientset, cli.k8sNamespace, cli.k8sService)
		watcher.OnMembershipChange(func(change transport.MembershipChange) {
			for _, id := range change.Joined {
				if nodeH, ok := graph.FindNodeByID(id); ok {
					reactor.Post(amf.Event{Kind: amf.EvNodeSyncReady, Node: nodeH})
				}
			}
			for _, id := range change.Left {
				if nodeH, ok := graph.FindNodeByID(id); ok {
					reactor.Post(amf.Event{Kind: amf.EvNodeLeave, Node: nodeH})
				}
			}
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				glog.Warningf("amfnode: discovery watcher exited: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		glog.Infof("amfnode: received %v, stopping", sig)
		cancel()
		reactor.Stop()
	}()

	reactor.Run()
	return nil
}
