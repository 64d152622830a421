package main

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"tailscale.com/tsnet"
)

// tailnetNode joins the tailnet as hostname so the server sees a real
// tailnet identity instead of an asserted name.
func tailnetNode(ctx context.Context, hostname string, log *zap.Logger) (*tsnet.Server, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(configDir, "mindcare", "client-state")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	ts := &tsnet.Server{
		Hostname: hostname,
		Dir:      dir,
		Logf:     log.Named("tsnet").Sugar().Debugf,
	}
	if _, err := ts.Up(ctx); err != nil {
		ts.Close()
		return nil, err
	}
	return ts, nil
}

func tailnetDialer(ts *tsnet.Server) *websocket.Dialer {
	return &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return ts.Dial(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{},
	}
}

func tailnetHTTPClient(ts *tsnet.Server, timeout time.Duration) *http.Client {
	hc := ts.HTTPClient()
	hc.Timeout = timeout
	return hc
}
