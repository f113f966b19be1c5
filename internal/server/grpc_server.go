package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const studyServiceName = "studyd.v1.StudyService"

// StudyServiceServer is the server API for studyd.v1.StudyService. Requests
// and responses are google.protobuf.Struct values with the same fields as the
// HTTP JSON bodies plus a "study" field naming the study.
type StudyServiceServer interface {
	Ask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Tell(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBest(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// StudyServiceDesc describes studyd.v1.StudyService for grpc.Server.RegisterService.
var StudyServiceDesc = grpc.ServiceDesc{
	ServiceName: studyServiceName,
	HandlerType: (*StudyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ask", Handler: unaryHandler("Ask", StudyServiceServer.Ask)},
		{MethodName: "Tell", Handler: unaryHandler("Tell", StudyServiceServer.Tell)},
		{MethodName: "GetBest", Handler: unaryHandler("GetBest", StudyServiceServer.GetBest)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "studyd/v1/study.proto",
}

type unaryMethod func(StudyServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StudyServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + studyServiceName + "/" + method,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(StudyServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

// StudyServiceClient is the client API for studyd.v1.StudyService.
type StudyServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewStudyServiceClient(cc grpc.ClientConnInterface) *StudyServiceClient {
	return &StudyServiceClient{cc: cc}
}

func (c *StudyServiceClient) Ask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Ask", in, opts...)
}

func (c *StudyServiceClient) Tell(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Tell", in, opts...)
}

func (c *StudyServiceClient) GetBest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetBest", in, opts...)
}

func (c *StudyServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+studyServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GRPCServer implements StudyServiceServer on top of the study engine.
type GRPCServer struct {
	svc *service
}

func NewGRPCServer(opts Options) *GRPCServer {
	return &GRPCServer{svc: newService(opts)}
}

// Register attaches the service to s.
func (s *GRPCServer) Register(gs *grpc.Server) {
	gs.RegisterService(&StudyServiceDesc, s)
}

func (s *GRPCServer) Ask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name, err := studyName(in)
	if err != nil {
		return nil, err
	}
	fields := in.GetFields()
	req := askRequest{
		SearchSpaceYAML: fields["search_space_yaml"].GetStringValue(),
		Direction:       fields["direction"].GetStringValue(),
	}
	resp, err := s.svc.ask(ctx, name, req)
	if err != nil {
		return nil, grpcError(err)
	}
	s.svc.logger.Debug("trial asked (gRPC)", "study", name, "trial_id", resp.TrialID)
	return toStruct(resp)
}

func (s *GRPCServer) Tell(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name, err := studyName(in)
	if err != nil {
		return nil, err
	}
	fields := in.GetFields()

	var req tellRequest
	id, ok, err := intField(fields, "trial_id")
	if err != nil {
		return nil, err
	}
	if ok {
		req.TrialID = &id
	}
	if v, ok := fields["value"]; ok {
		if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
			return nil, status.Error(codes.InvalidArgument, "value must be a number")
		}
		f := v.GetNumberValue()
		req.Value = &f
	}
	step, ok, err := intField(fields, "step")
	if err != nil {
		return nil, err
	}
	if ok {
		req.Step = &step
	}
	req.State = fields["state"].GetStringValue()

	resp, err := s.svc.tell(ctx, name, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(resp)
}

func (s *GRPCServer) GetBest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	name, err := studyName(in)
	if err != nil {
		return nil, err
	}
	resp, err := s.svc.best(ctx, name)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(resp)
}

// UnaryAuthInterceptor requires a valid bearer token in the "authorization"
// metadata of every call.
func UnaryAuthInterceptor(auth *Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		var header string
		if vals := md.Get("authorization"); len(vals) > 0 {
			header = vals[0]
		}
		token, err := bearerToken(header)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		claims, err := auth.Validate(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}
		return handler(context.WithValue(ctx, contextKeyClaims, claims), req)
	}
}

func studyName(in *structpb.Struct) (string, error) {
	name := in.GetFields()["study"].GetStringValue()
	if name == "" {
		return "", status.Error(codes.InvalidArgument, "study is required")
	}
	return name, nil
}

func intField(fields map[string]*structpb.Value, key string) (int64, bool, error) {
	v, ok := fields[key]
	if !ok {
		return 0, false, nil
	}
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
		return 0, false, status.Errorf(codes.InvalidArgument, "%s must be a number", key)
	}
	f := v.GetNumberValue()
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
	return int64(f), true, nil
}

// toStruct converts a response through its JSON form so both front ends
// expose identical field names.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}
