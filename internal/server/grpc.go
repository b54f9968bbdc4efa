package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/yield"
)

const InferenceServiceName = "farmadvisor.v1.Inference"

// InferenceServer carries results as google.protobuf.Struct with the same
// field names as the JSON API. Images travel as google.protobuf.BytesValue.
type InferenceServer interface {
	ScanSoil(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	PredictYield(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PredictDisease(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
}

func RegisterInferenceServer(s grpc.ServiceRegistrar, srv InferenceServer) {
	s.RegisterService(&inferenceServiceDesc, srv)
}

var inferenceServiceDesc = grpc.ServiceDesc{
	ServiceName: InferenceServiceName,
	HandlerType: (*InferenceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ScanSoil", Handler: scanSoilHandler},
		{MethodName: "PredictYield", Handler: predictYieldHandler},
		{MethodName: "PredictDisease", Handler: predictDiseaseHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "farmadvisor/v1/inference.proto",
}

func fullMethod(name string) string { return "/" + InferenceServiceName + "/" + name }

func scanSoilHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InferenceServer).ScanSoil(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("ScanSoil")}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InferenceServer).ScanSoil(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func predictYieldHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InferenceServer).PredictYield(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("PredictYield")}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InferenceServer).PredictYield(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func predictDiseaseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InferenceServer).PredictDisease(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("PredictDisease")}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InferenceServer).PredictDisease(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// InferenceService adapts the processor to InferenceServer.
type InferenceService struct {
	inf    Inference
	logger *slog.Logger
}

func NewInferenceService(inf Inference, logger *slog.Logger) *InferenceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InferenceService{inf: inf, logger: logger}
}

func (s *InferenceService) ScanSoil(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if len(req.GetValue()) == 0 {
		return nil, common.InvalidArgumentError("Please upload an image.")
	}
	res, _, err := s.inf.ScanSoil(ctx, "", req.GetValue())
	if err != nil {
		return nil, common.GRPCError(err)
	}
	return toStruct(res)
}

func (s *InferenceService) PredictYield(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	body, err := protojson.Marshal(req)
	if err != nil {
		return nil, common.InvalidArgumentErrorf("invalid request: %v", err)
	}
	q, err := yield.DecodeQuery(body)
	if err != nil {
		return nil, common.GRPCError(err)
	}
	res, _, err := s.inf.PredictYield(ctx, q)
	if err != nil {
		return nil, common.GRPCError(err)
	}
	return toStruct(res)
}

func (s *InferenceService) PredictDisease(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	if len(req.GetValue()) == 0 {
		return nil, common.InvalidArgumentError("Please upload an image.")
	}
	res, _, err := s.inf.PredictDisease(ctx, "", req.GetValue())
	if err != nil {
		return nil, common.GRPCError(err)
	}
	return toStruct(res)
}

// toStruct routes v through its JSON form so the Struct matches the HTTP body.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.InternalError("could not encode result")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, common.InternalError("could not encode result")
	}
	return out, nil
}

const requestIDMetadataKey = "x-request-id"

// UnaryInterceptor tags the context with source and request id and logs each call.
func UnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		ctx = common.WithSource(ctx, "grpc")
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(requestIDMetadataKey); len(ids) > 0 && ids[0] != "" {
				ctx = common.WithRequestID(ctx, ids[0])
			}
		}
		ctx, id := common.EnsureRequestID(ctx)
		resp, err := handler(ctx, req)
		logger.Info("grpc.request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"req_id", id,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

// NewGRPCServer registers the inference service and the standard health service.
func NewGRPCServer(inf Inference, logger *slog.Logger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(UnaryInterceptor(logger)))
	RegisterInferenceServer(grpcServer, NewInferenceService(inf, logger))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(InferenceServiceName, healthpb.HealthCheckResponse_SERVING)
	return grpcServer, healthServer
}
