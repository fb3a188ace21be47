package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/etcdsession/pkg/backend"
	"github.com/khenidak/etcdsession/pkg/config"
	"github.com/khenidak/etcdsession/pkg/frontend"
)

// version mgmt, set in makefile
var Version string
var Buildtime string

func main() {
	klogFlags := flag.NewFlagSet("klog", flag.ExitOnError)
	klogv2.InitFlags(klogFlags)
	defer klogv2.Flush()

	config := config.NewConfig()
	maxEventCount := 0

	app := cli.NewApp()
	app.Name = "etcdsession"
	app.Usage = "lease backed sessions, locks and watches over etcd"
	app.Description = "talks to an etcd cluster through a lease scoped session. serve runs a single member in memory etcd compatible endpoint for development"
	app.Flags = getGlobalFlags(config)
	app.Before = func(c *cli.Context) error {
		if err := klogFlags.Set("v", strconv.Itoa(c.GlobalInt("v"))); err != nil {
			return err
		}
		if path := c.GlobalString("config"); len(path) > 0 {
			if err := config.LoadFile(path); err != nil {
				return err
			}
		}
		if endpoints := c.GlobalStringSlice("endpoints"); len(endpoints) > 0 {
			config.Endpoints = endpoints
		}
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:  "serve",
			Usage: "runs an in memory etcd compatible listener",
			Flags: getServeFlags(config, &maxEventCount),
			Action: func(c *cli.Context) error {
				return serve(config, maxEventCount)
			},
		},
		getCommand(config),
		putCommand(config),
		deleteCommand(config),
		listCommand(config),
		watchCommand(config),
		lockCommand(config),
		keepAliveCommand(config),
		registerCommand(config),
		{
			Name:  "version",
			Usage: "prints version and build time of this binary",
			Action: func(c *cli.Context) error {
				fmt.Printf("Version: %s\n", Version)
				fmt.Printf("BuildTime: %s\n", Buildtime)
				return nil
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		klogv2.Errorf("failed to run app with err:%v", err)
		klogv2.Flush()
		os.Exit(1)
	}
}

func serve(c *config.Config, maxEventCount int) error {
	if err := c.ValidateListener(); err != nil {
		return err
	}

	if err := c.InitRuntime(); err != nil {
		return err
	}

	be := backend.NewBackend(backend.WithMaxEventCount(maxEventCount))
	fe, err := frontend.NewFrontend(c, be)
	if err != nil {
		return err
	}

	err = fe.StartListening()
	if err != nil {
		return err
	}

	startMetrics(c)

	<-c.Runtime.Done
	return nil
}

// serves /metrics when a metrics address is configured
func startMetrics(c *config.Config) {
	if len(c.MetricsAddress) == 0 {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: c.MetricsAddress, Handler: mux}

	go func() {
		klogv2.Infof("metrics are served on %s/metrics", c.MetricsAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klogv2.Errorf("metrics server failed with err:%v", err)
		}
	}()

	go func() {
		<-c.Runtime.Context.Done()
		_ = server.Close()
	}()
}

func getGlobalFlags(config *config.Config) []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "path to a yaml config file",
		},
		cli.IntFlag{
			Name:  "v",
			Usage: "log verbosity",
		},
		cli.StringSliceFlag{
			Name:  "endpoints",
			Usage: "etcd endpoints, tried in order (host:port, http(s)://, tcp:// or unix://)",
		},
		cli.DurationFlag{
			Name:        "dial-timeout",
			Value:       config.DialTimeout,
			Destination: &config.DialTimeout,
		},
		cli.DurationFlag{
			Name:        "request-timeout",
			Value:       config.RequestTimeout,
			Destination: &config.RequestTimeout,
		},
		cli.DurationFlag{
			Name:        "lease-ttl",
			Usage:       "ttl requested for the session lease",
			Value:       config.LeaseTTL,
			Destination: &config.LeaseTTL,
		},
		cli.Int64Flag{
			Name:        "list-page-size",
			Usage:       "page size used by list. 0 reads everything at once",
			Destination: &config.ListPageSize,
		},
		cli.BoolFlag{
			Name:        "use-tls",
			Destination: &config.UseTLS,
		},
		cli.StringFlag{
			Name:        "cert-file",
			Usage:       "path to the TLS cert file",
			Destination: &config.TLSConfig.CertFilePath,
		},
		cli.StringFlag{
			Name:        "key-file",
			Usage:       "path to the TLS key file",
			Destination: &config.TLSConfig.KeyFilePath,
		},
		cli.StringFlag{
			Name:        "trusted-ca-file",
			Usage:       "path to the trusted ca",
			Destination: &config.TLSConfig.TrustedCAFile,
		},
	}
}

func getServeFlags(config *config.Config, maxEventCount *int) []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:        "listen-address",
			Value:       config.ListenAddress,
			Destination: &config.ListenAddress,
		},
		cli.StringFlag{
			Name:        "metrics-address",
			Usage:       "host:port to serve prometheus metrics on. empty disables it",
			Destination: &config.MetricsAddress,
		},
		cli.IntFlag{
			Name:        "max-event-count",
			Usage:       "events kept for watches. older events are compacted",
			Value:       10000, // Should be increased for write heavy use
			Destination: maxEventCount,
		},
	}
}
