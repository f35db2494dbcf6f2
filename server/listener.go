package server

import (
	"net"
	"time"

	"github.com/rivalapexmediation/auction-server/metrics"
)

// monitorableListener tracks any opened connections in the metrics.
type monitorableListener struct {
	net.Listener
	metrics metrics.MetricsEngine
}

// monitorableConnection tracks any closed connections in the metrics.
type monitorableConnection struct {
	net.Conn
	metrics metrics.MetricsEngine
}

func (l *monitorableConnection) Close() error {
	err := l.Conn.Close()
	l.metrics.RecordConnectionClose(err == nil)
	return err
}

func (ln *monitorableListener) Accept() (c net.Conn, err error) {
	c, err = ln.Listener.Accept()
	if err != nil {
		ln.metrics.RecordConnectionAccept(false)
		return
	}
	ln.metrics.RecordConnectionAccept(true)
	return &monitorableConnection{
		c,
		ln.metrics,
	}, nil
}

// tcpKeepAliveListener sets TCP keep-alive timeouts on accepted
// connections. It's used by ListenAndServe and ListenAndServeTLS so
// dead TCP connections (e.g. closing laptop mid-download) eventually
// go away.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}
