// Command xapiand is the process entrypoint: parses CLI flags over the
// YAML config, wires DatabasePool/Dispatcher, and serves HTTP. No
// daemonization, TLS, or OS signal handling (§1 Non-goals) — the process
// runs in the foreground until ListenAndServe returns.
//
// Grounded on the teacher's ais/daemon.go cliFlags/initDaemon shape
// (flags override a loaded config, installed into a global config owner
// before anything else starts), generalized from stdlib flag to
// spf13/pflag per the richer CLI surface the rest of the example pack
// reaches for.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/xapiand/xapiand/cmn"
	"github.com/xapiand/xapiand/dbpool"
	"github.com/xapiand/xapiand/httpd"
)

type cliFlags struct {
	configPath  string
	httpPort    int
	clusterName string
	poolSize    int
	usage       bool
}

var cli cliFlags

func init() {
	pflag.StringVar(&cli.configPath, "config", "", "path to a YAML configuration file (optional: defaults apply without one)")
	pflag.IntVar(&cli.httpPort, "http-port", 0, "HTTP listen port (overrides config)")
	pflag.StringVar(&cli.clusterName, "cluster-name", "", "cluster name (overrides config)")
	pflag.IntVar(&cli.poolSize, "database-pool-size", 0, "max concurrent writable queue waiters (overrides config)")
	pflag.BoolVarP(&cli.usage, "help", "h", false, "show usage and exit")
}

func main() {
	pflag.Parse()
	if cli.usage {
		pflag.Usage()
		os.Exit(0)
	}

	config, err := cmn.LoadYAML(cli.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xapiand: %v\n", err)
		os.Exit(1)
	}
	if cli.httpPort != 0 {
		config.HTTPPort = cli.httpPort
	}
	if cli.clusterName != "" {
		config.ClusterName = cli.clusterName
	}
	if cli.poolSize != 0 {
		config.MaxQueueWaiters = cli.poolSize
	}
	cmn.GCO.Put(config)

	pool := dbpool.New(config.MaxQueueWaiters, nil)
	dispatcher := httpd.NewDispatcher(pool, config)

	addr := fmt.Sprintf(":%d", config.HTTPPort)
	glog.Infof("xapiand %q listening on %s", config.ClusterName, addr)
	if err := http.ListenAndServe(addr, dispatcher); err != nil {
		glog.Fatalf("xapiand: %v", err)
	}
}
