package interceptors

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/okdriver/okdriver-backend/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Logging пишет метод, код ответа и длительность каждого вызова
type Logging struct {
	log *logger.Logger
}

func NewLogging(log *logger.Logger) *Logging {
	return &Logging{log: log}
}

// Unary возвращает UnaryServerInterceptor для логирования.
func (i *Logging) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		i.write(info.FullMethod, start, err)
		return resp, err
	}
}

// Stream то же для потоковых методов (health Watch)
func (i *Logging) Stream() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		i.write(info.FullMethod, start, err)
		return err
	}
}

func (i *Logging) write(method string, start time.Time, err error) {
	code := status.Code(err)
	fields := []any{"method", method, "code", code.String(), "latency", time.Since(start).String()}

	switch code {
	case codes.OK, codes.Canceled:
		i.log.Debugw("gRPC call", fields...)
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		i.log.Errorw("gRPC call", append(fields, "error", err)...)
	default:
		i.log.Warnw("gRPC call", append(fields, "error", err)...)
	}
}

// Recovery переводит панику обработчика в codes.Internal
type Recovery struct {
	log *logger.Logger
}

func NewRecovery(log *logger.Logger) *Recovery {
	return &Recovery{log: log}
}

func (i *Recovery) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = i.recovered(info.FullMethod, r)
			}
		}()
		return handler(ctx, req)
	}
}

func (i *Recovery) Stream() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = i.recovered(info.FullMethod, r)
			}
		}()
		return handler(srv, ss)
	}
}

func (i *Recovery) recovered(method string, r any) error {
	i.log.Errorw("gRPC handler panic", "method", method, "panic", r, "stack", string(debug.Stack()))
	return status.Errorf(codes.Internal, "internal error")
}
