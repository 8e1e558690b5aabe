package agent

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// personaServer serves a Generator as the persona sidecar.
type personaServer interface {
	generate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type generatorServer struct {
	provider Provider
	logger   *slog.Logger
}

func (s *generatorServer) generate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	gen, err := s.provider.Generator(ctx)
	if err != nil {
		return structpb.NewStruct(map[string]any{"error": err.Error()})
	}
	text, err := gen.Generate(ctx, decodeGenerateRequest(in))
	if err != nil {
		s.logger.Warn("persona generate failed", "provider", s.provider.Name(), "error", err)
		return structpb.NewStruct(map[string]any{"error": err.Error()})
	}
	return structpb.NewStruct(map[string]any{"text": text})
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(personaServer).generate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: generateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(personaServer).generate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var personaServiceDesc = grpc.ServiceDesc{
	ServiceName: PersonaServiceName,
	HandlerType: (*personaServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: generateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "persona.proto",
}

// RegisterPersonaServer exposes provider as the persona sidecar on s and
// marks it SERVING on the standard health service.
func RegisterPersonaServer(s *grpc.Server, provider Provider, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.RegisterService(&personaServiceDesc, &generatorServer{provider: provider, logger: logger})

	hs := health.NewServer()
	hs.SetServingStatus(PersonaServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
}
