package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/golang/glog"

	"github.com/rivalapexmediation/auction-server/config"
	"github.com/rivalapexmediation/auction-server/metrics"
	metricsconfig "github.com/rivalapexmediation/auction-server/metrics/config"
)

// Listen serves auction requests on the main port and operational endpoints on the admin port.
// It blocks until the process receives SIGTERM or SIGINT and every server has shut down.
func Listen(cfg *config.Configuration, handler http.Handler, adminHandler http.Handler, metricsEngine *metricsconfig.DetailedMetricsEngine) (err error) {
	stopSignals := make(chan os.Signal, 1)
	signal.Notify(stopSignals, syscall.SIGTERM, syscall.SIGINT)

	// Run the servers. Fan any process-stopper signals out to each server for graceful shutdowns.
	stopAdmin := make(chan os.Signal)
	stopMain := make(chan os.Signal)
	stopPrometheus := make(chan os.Signal)
	done := make(chan struct{})

	adminServer := newAdminServer(cfg, adminHandler)
	go shutdownAfterSignals(adminServer, stopAdmin, done)

	mainServer := newMainServer(cfg, handler)
	go shutdownAfterSignals(mainServer, stopMain, done)

	mainListener, err := newListener(mainServer.Addr, metricsEngine)
	if err != nil {
		glog.Errorf("Error listening for TCP connections on %s: %v for main server", mainServer.Addr, err)
		return
	}
	adminListener, err := newListener(adminServer.Addr, nil)
	if err != nil {
		glog.Errorf("Error listening for TCP connections on %s: %v for admin server", adminServer.Addr, err)
		return
	}
	go runServer(mainServer, "Main", mainListener)
	go runServer(adminServer, "Admin", adminListener)

	if cfg.Metrics.Prometheus.Port != 0 {
		var prometheusServer *http.Server
		prometheusServer, err = newPrometheusServer(cfg, metricsEngine)
		if err != nil {
			glog.Errorf("Prometheus server could not be configured: %v", err)
			return
		}
		go shutdownAfterSignals(prometheusServer, stopPrometheus, done)
		prometheusListener, err := newListener(prometheusServer.Addr, nil)
		if err != nil {
			glog.Errorf("Error listening for TCP connections on %s: %v for prometheus server", prometheusServer.Addr, err)
			return err
		}
		go runServer(prometheusServer, "Prometheus", prometheusListener)

		wait(stopSignals, done, stopMain, stopAdmin, stopPrometheus)
	} else {
		wait(stopSignals, done, stopMain, stopAdmin)
	}
	return
}

func newAdminServer(cfg *config.Configuration, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:    cfg.Host + ":" + strconv.Itoa(cfg.AdminPort),
		Handler: handler,
	}
}

func newMainServer(cfg *config.Configuration, handler http.Handler) *http.Server {
	var serverHandler = handler
	if cfg.EnableGzip {
		serverHandler = gziphandler.GzipHandler(handler)
	}

	return &http.Server{
		Addr:         cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler:      serverHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

func runServer(server *http.Server, name string, listener net.Listener) (err error) {
	if server == nil {
		err = fmt.Errorf(">> Server is a nil_ptr.")
		glog.Errorf("%s server quit with error: %v", name, err)
		return
	} else if listener == nil {
		err = fmt.Errorf(">> Listener is a nil.")
		glog.Errorf("%s server quit with error: %v", name, err)
		return
	}

	glog.Infof("%s server starting on: %s", name, server.Addr)
	if err = server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		glog.Errorf("%s server quit with error: %v", name, err)
	}
	return
}

func newListener(address string, metricsEngine metrics.MetricsEngine) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("Error listening for TCP connections on %s: %v", address, err)
	}

	// This cast is in Go's core libs as Server.ListenAndServe(), so it _should_ be safe, but just in case it changes in a future version...
	if casted, ok := ln.(*net.TCPListener); ok {
		ln = &tcpKeepAliveListener{casted}
	} else {
		glog.Warning("net.Listen(\"tcp\", \"addr\") didn't return a TCPListener. Things will probably work fine... but this should be investigated.")
	}

	if metricsEngine != nil {
		ln = &monitorableListener{ln, metricsEngine}
	}

	return ln, nil
}

func wait(inbound <-chan os.Signal, done <-chan struct{}, outbound ...chan<- os.Signal) {
	sig := <-inbound

	for i := 0; i < len(outbound); i++ {
		go sendSignal(outbound[i], sig)
	}

	for i := 0; i < len(outbound); i++ {
		<-done
	}
}

func shutdownAfterSignals(server *http.Server, stopper <-chan os.Signal, done chan<- struct{}) {
	sig := <-stopper

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var s struct{}
	glog.Infof("Stopping %s because of signal: %s", server.Addr, sig.String())
	if err := server.Shutdown(ctx); err != nil {
		glog.Errorf("Failed to shutdown %s: %v", server.Addr, err)
	}
	done <- s
}

func sendSignal(to chan<- os.Signal, sig os.Signal) {
	to <- sig
}
