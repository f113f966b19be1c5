package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

func startGRPC(t *testing.T, opts Options, serverOpts ...grpc.ServerOption) *StudyServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(serverOpts...)
	NewGRPCServer(opts).Register(gs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewStudyServiceClient(conn)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestGRPCAskTellGetBest(t *testing.T) {
	client := startGRPC(t, testOptions(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ask, err := client.Ask(ctx, mustStruct(t, map[string]any{"study": "g"}))
	require.NoError(t, err)
	fields := ask.GetFields()
	assert.Equal(t, 0.0, fields["trial_id"].GetNumberValue())
	assert.Contains(t, fields["params"].GetStructValue().GetFields(), "x")

	_, err = client.GetBest(ctx, mustStruct(t, map[string]any{"study": "g"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	tell, err := client.Tell(ctx, mustStruct(t, map[string]any{"study": "g", "trial_id": 0, "value": 1.25}))
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", tell.GetFields()["state"].GetStringValue())
	assert.Equal(t, 1.25, tell.GetFields()["best_value"].GetNumberValue())

	best, err := client.GetBest(ctx, mustStruct(t, map[string]any{"study": "g"}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, best.GetFields()["best"].GetStructValue().GetFields()["trial_id"].GetNumberValue())

	_, err = client.Tell(ctx, mustStruct(t, map[string]any{"study": "g", "trial_id": 0, "value": 2}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestGRPCErrorCodes(t *testing.T) {
	client := startGRPC(t, testOptions(t))
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"missing study", func() error {
			_, err := client.Ask(ctx, mustStruct(t, map[string]any{}))
			return err
		}, codes.InvalidArgument},
		{"bad space", func() error {
			_, err := client.Ask(ctx, mustStruct(t, map[string]any{"study": "e", "search_space_yaml": "x: {type: float, low: 2, high: 1}"}))
			return err
		}, codes.InvalidArgument},
		{"fractional trial id", func() error {
			_, err := client.Tell(ctx, mustStruct(t, map[string]any{"study": "e", "trial_id": 0.5, "value": 1}))
			return err
		}, codes.InvalidArgument},
		{"string value", func() error {
			_, err := client.Tell(ctx, mustStruct(t, map[string]any{"study": "e", "trial_id": 0, "value": "1"}))
			return err
		}, codes.InvalidArgument},
		{"unknown study", func() error {
			_, err := client.Tell(ctx, mustStruct(t, map[string]any{"study": "missing", "trial_id": 0, "value": 1}))
			return err
		}, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(tt.call()))
		})
	}
}

func TestGRPCAuthInterceptor(t *testing.T) {
	auth := NewAuthenticator("grpc-secret")
	client := startGRPC(t, testOptions(t), grpc.UnaryInterceptor(UnaryAuthInterceptor(auth)))

	_, err := client.Ask(context.Background(), mustStruct(t, map[string]any{"study": "a"}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	tok, err := auth.Issue("worker", time.Minute)
	require.NoError(t, err)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
	_, err = client.Ask(ctx, mustStruct(t, map[string]any{"study": "a"}))
	assert.NoError(t, err)
}
