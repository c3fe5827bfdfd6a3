// Copyright 2025 PulseGrid Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// pulsegrid-tail subscribes to a set of channels and prints every message
// and status change until interrupted. It doubles as a smoke test for the
// full engine stack against a live origin.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pulsegrid/pulsegrid-go/pkg/client"
	"github.com/pulsegrid/pulsegrid-go/pkg/config"
	"github.com/pulsegrid/pulsegrid-go/pkg/logger"
	"github.com/pulsegrid/pulsegrid-go/pkg/metrics"
	"github.com/pulsegrid/pulsegrid-go/pkg/sentry"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "pulsegrid.yaml", "path to the client config file")
	channelsFlag := flag.String("channels", "", "comma-separated channels to tail")
	metricsAddr := flag.String("metrics-addr", "", "optional address to expose prometheus metrics on, e.g. :9090")
	flag.Parse()

	logger.Initialize()
	defer func() { _ = logger.Sync() }()
	log := logger.For("pulsegrid-tail")

	sentry.Initialize(version)
	defer sentry.Flush(2 * time.Second)

	channels := splitChannels(*channelsFlag)
	if len(channels) == 0 {
		log.Error("no channels given, use -channels a,b,c")
		os.Exit(1)
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Errorf("loading config: %v", err)
		os.Exit(1)
	}

	c, err := client.New(cfg)
	if err != nil {
		log.Errorf("starting client: %v", err)
		os.Exit(1)
	}
	defer c.Close()

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Warnf("metrics listener: %v", err)
			}
		}()
	}

	listener := client.NewListener(0)
	c.AddListener(listener)

	if err := c.Subscribe(channels...); err != nil {
		log.Errorf("subscribing: %v", err)
		os.Exit(1)
	}
	log.Infof("tailing %s", strings.Join(channels, ", "))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case status := <-listener.Status:
			if status.Err != nil {
				log.Warnf("status %s: %v", status.Category, status.Err)
				continue
			}
			log.Infof("status %s [%s]", status.Category, strings.Join(status.Channels, ","))
		case msg := <-listener.Messages:
			fmt.Printf("%s %s %s\n", msg.Timetoken.Timetoken, msg.Channel, string(msg.Payload))
		case sig := <-sigs:
			log.Infof("received %s, leaving", sig)
			c.UnsubscribeAll()
			return
		}
	}
}

func splitChannels(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
