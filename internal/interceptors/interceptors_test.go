package interceptors

import (
	"context"
	"errors"
	"testing"

	"github.com/okdriver/okdriver-backend/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var unaryInfo = &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

func TestRecoveryUnary(t *testing.T) {
	rec := NewRecovery(logger.NewNop()).Unary()

	_, err := rec(context.Background(), nil, unaryInfo, func(context.Context, interface{}) (interface{}, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, want Internal", status.Code(err))
	}
}

func TestRecoveryUnaryPassesThrough(t *testing.T) {
	rec := NewRecovery(logger.NewNop()).Unary()

	resp, err := rec(context.Background(), nil, unaryInfo, func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Fatalf("resp = %v, err = %v", resp, err)
	}
}

func TestRecoveryStream(t *testing.T) {
	rec := NewRecovery(logger.NewNop()).Stream()
	info := &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch", IsServerStream: true}

	err := rec(nil, nil, info, func(interface{}, grpc.ServerStream) error {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, want Internal", status.Code(err))
	}
}

func TestLoggingKeepsHandlerResult(t *testing.T) {
	logging := NewLogging(logger.NewNop()).Unary()
	want := status.Error(codes.NotFound, "unknown service")

	_, err := logging(context.Background(), nil, unaryInfo, func(context.Context, interface{}) (interface{}, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
