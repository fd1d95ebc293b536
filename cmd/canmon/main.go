package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/canode/pkg/can"
	"github.com/robotalks/canode/pkg/can/mqtt"
	"github.com/robotalks/canode/pkg/can/stream"
	"github.com/robotalks/canode/pkg/can/websocket"
	fx "github.com/robotalks/canode/pkg/framework"
	"github.com/robotalks/canode/pkg/monitor"
)

var (
	listenAddr = ":7272"
	wsAddr     = ""
	mqttURL    = ""
	quiet      = false
)

func init() {
	if val := os.Getenv("CANODE_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&listenAddr, "listen", listenAddr, "TCP address of the hub.")
	flag.StringVar(&wsAddr, "ws", wsAddr, "Serve websocket peers at this address under /can.")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "Bridge the hub to an MQTT broker, e.g. mqtt://localhost:1883/can/.")
	flag.BoolVar(&quiet, "q", quiet, "Relay only, do not print transfers.")
}

func main() {
	flag.Parse()
	defer glog.Flush()
	log.SetFlags(log.Lmicroseconds)

	hub := can.NewHub()
	if !quiet {
		hub.Tap = monitor.New(func(r *monitor.Record) {
			log.Println(r.String())
		}).Tap
	}

	runner := fx.NewRunner().HandleSignals()

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		glog.Exitf("listen %s: %v", listenAddr, err)
	}
	runner.Go(fx.NamedRun("tcp", fx.RunFunc(func(ctx context.Context) error {
		return stream.ServeHub(ctx, ln, hub)
	})))

	if wsAddr != "" {
		runner.Go(fx.NamedRun("websocket", fx.RunFunc(func(ctx context.Context) error {
			mux := http.NewServeMux()
			mux.Handle("/can", websocket.HubHandler(ctx, hub))
			server := &http.Server{Addr: wsAddr, Handler: mux}
			return fx.RunWithContextCloser(ctx, server, server.ListenAndServe)
		})))
	}

	if mqttURL != "" {
		bridge, err := mqtt.Bridge(mqttURL, "canmon")
		if err != nil {
			glog.Exitf("mqtt %s: %v", mqttURL, err)
		}
		runner.Go(fx.NamedRun("mqtt", fx.RunFunc(func(ctx context.Context) error {
			return hub.Serve(ctx, bridge)
		})))
	}

	glog.Infof("hub listening on %s", ln.Addr())
	if err := runner.Wait(); err != nil && err != context.Canceled {
		glog.Errorf("%v", err)
	}
}
