package admin

import (
	"context"
	"log/slog"
	"net"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func newHealthClient(t *testing.T, server *Server) healthpb.HealthClient {
	t.Helper()
	listener := bufconn.Listen(1024 * 1024)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestServer_Health_Follows_Relay_State(t *testing.T) {
	req := require.New(t)
	server := NewServer(logs.GetLoggerFromLevel(slog.LevelDebug))
	client := newHealthClient(t, server)
	ctx := context.Background()

	// Given the relay is not started yet
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: RelayService})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	// When the relay is up
	server.SetServing(true)

	// Then both names report serving
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: RelayService})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServer_Health_Unknown_Service(t *testing.T) {
	req := require.New(t)
	server := NewServer(logs.GetLoggerFromLevel(slog.LevelDebug))
	client := newHealthClient(t, server)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "unknown"})
	req.Error(err)
	req.Equal(codes.NotFound, status.Code(err))
}
