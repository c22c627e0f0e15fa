// Package grpc implements a protocol client that runs the standard gRPC
// health check against a target.
package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"apiprobe/internal/protocol"
	"apiprobe/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// Protocol is the registry name of the gRPC client.
const Protocol = "GRPC"

const (
	MethodHealth = "HEALTH"

	// ServiceExtra names the service to check. Empty means overall server health.
	ServiceExtra = "grpc.service"

	DefaultTimeout = 30 * time.Second
)

// Client implements protocol.Client for gRPC health checks.
type Client struct {
	insecure bool
	relaxed  bool
	timeout  time.Duration

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// New returns an uninitialised gRPC client.
func New() protocol.Client {
	return &Client{conns: make(map[string]*grpc.ClientConn)}
}

// Descriptor declares the gRPC client for the protocol catalogue.
func Descriptor() protocol.Descriptor {
	return protocol.Descriptor{
		Protocol:    Protocol,
		Description: "gRPC health checks",
		New:         New,
	}
}

func (c *Client) Protocol() string {
	return Protocol
}

// Init reads grpc.* settings.
func (c *Client) Init(cfg protocol.Config) error {
	var err error
	if c.insecure, err = cfg.Bool("grpc.insecure", true); err != nil {
		return err
	}
	if c.relaxed, err = cfg.Bool("grpc.relaxed-tls", false); err != nil {
		return err
	}
	if c.timeout, err = cfg.Duration("grpc.timeout-ms", DefaultTimeout); err != nil {
		return err
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	logging.Info("grpc", "gRPC client initialised (insecure %t, timeout %s)", c.insecure, c.timeout)
	return nil
}

// conn returns a cached connection or creates a new one.
func (c *Client) conn(target string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[target]; ok {
		return conn, nil
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	if c.insecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{
			InsecureSkipVerify: c.relaxed,
		})))
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}

	c.conns[target] = conn
	return conn, nil
}

// Execute runs a health check against req.Endpoint (host:port).
func (c *Client) Execute(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method != MethodHealth {
		if method == "" {
			return nil, &protocol.RequestShapeError{Reason: "method is empty"}
		}
		return nil, &protocol.UnsupportedMethodError{Protocol: Protocol, Method: req.Method, Allowed: []string{MethodHealth}}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	conn, err := c.conn(req.Endpoint)
	if err != nil {
		return nil, &protocol.RequestShapeError{Reason: fmt.Sprintf("invalid gRPC target %q: %v", req.Endpoint, err)}
	}

	timeout := c.timeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	service := req.ExtraString(ServiceExtra)

	start := time.Now()
	health := grpc_health_v1.NewHealthClient(conn)
	healthResp, err := health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	elapsed := time.Since(start)

	b := protocol.NewResponseBuilder().ResponseTime(elapsed).ContentType("text/plain")

	if err != nil {
		s, ok := status.FromError(err)
		if !ok || s.Code() == codes.Unavailable || s.Code() == codes.DeadlineExceeded {
			return nil, &protocol.TransportError{Protocol: Protocol, Method: method, Target: req.Endpoint, Err: err}
		}
		// The server answered with a status, e.g. NOT_FOUND for an unknown service.
		return b.StatusCode(int(s.Code())).
			StatusLine(s.Code().String()).
			Body(s.Message()).
			Build(), nil
	}

	code := codes.OK
	if healthResp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		code = codes.Unavailable
	}

	logging.Debug("grpc", "Health of %s/%s: %s", req.Endpoint, service, healthResp.Status)
	return b.StatusCode(int(code)).
		StatusLine(healthResp.Status.String()).
		Body(healthResp.Status.String()).
		Extra("raw", healthResp).
		Build(), nil
}

// Close releases all connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for target, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close connection to %s: %w", target, err)
		}
	}
	c.conns = make(map[string]*grpc.ClientConn)
	return firstErr
}
