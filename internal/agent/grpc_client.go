package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/containerd/errdefs/pkg/errgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// Persona sidecar service. Requests and responses are google.protobuf.Struct
// values so the sidecar needs no generated stubs:
//
//	request:  {system: string, message: string, history: [{role, text}]}
//	response: {text: string} or {error: string}
const (
	PersonaServiceName = "escaperoom.persona.v1.PersonaService"
	generateMethod     = "/" + PersonaServiceName + "/Generate"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errPersonaResponse          = errors.New("persona returned error")
	errNotServing               = errors.New("persona service not serving")
)

// GrpcClient is a Provider backed by a persona sidecar over gRPC.
type GrpcClient struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
	addr   string
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcClient connects to the persona sidecar at addr.
func NewGrpcClient(addr string, logger *slog.Logger) (*GrpcClient, error) {
	cfg := DefaultGrpcClientConfig()
	if addr != "" {
		cfg.Address = addr
	}
	return NewGrpcClientWithConfig(cfg, logger)
}

// NewGrpcClientWithConfig connects using cfg. Extra dial options are
// appended after the defaults.
func NewGrpcClientWithConfig(cfg GrpcClientConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to persona sidecar at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("persona sidecar at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to persona sidecar", "address", cfg.Address)

	return &GrpcClient{
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Name implements Provider.
func (c *GrpcClient) Name() string {
	return "grpc"
}

// Generator implements Provider. The sidecar owns its credentials.
func (c *GrpcClient) Generator(_ context.Context) (Generator, error) {
	return c, nil
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Health checks that the sidecar reports SERVING for the persona service.
func (c *GrpcClient) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: PersonaServiceName})
	if err != nil {
		return fmt.Errorf("health check failed: %w", errgrpc.ToNative(err))
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", errNotServing, resp.GetStatus())
	}
	return nil
}

// Generate implements Generator.
func (c *GrpcClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	in, err := encodeGenerateRequest(req)
	if err != nil {
		return "", err
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, generateMethod, in, out); err != nil {
		return "", errgrpc.ToNative(err)
	}
	fields := out.GetFields()
	if msg := fields["error"].GetStringValue(); msg != "" {
		return "", fmt.Errorf("%w: %s", errPersonaResponse, msg)
	}
	return fields["text"].GetStringValue(), nil
}

func encodeGenerateRequest(req GenerateRequest) (*structpb.Struct, error) {
	history := make([]any, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, map[string]any{"role": m.Role, "text": m.Text})
	}
	s, err := structpb.NewStruct(map[string]any{
		"system":  req.System,
		"message": req.Message,
		"history": history,
	})
	if err != nil {
		return nil, fmt.Errorf("encode persona request: %w", err)
	}
	return s, nil
}

func decodeGenerateRequest(s *structpb.Struct) GenerateRequest {
	fields := s.GetFields()
	req := GenerateRequest{
		System:  fields["system"].GetStringValue(),
		Message: fields["message"].GetStringValue(),
	}
	for _, v := range fields["history"].GetListValue().GetValues() {
		entry := v.GetStructValue().GetFields()
		req.History = append(req.History, Message{
			Role: entry["role"].GetStringValue(),
			Text: entry["text"].GetStringValue(),
		})
	}
	return req
}
