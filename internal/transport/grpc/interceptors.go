package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const DefaultCallTimeout = 10 * time.Second

// UnaryServerInterceptor bounds calls that arrive without a deadline, turns
// panics into Internal and writes one log line per call.
func UnaryServerInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		defer func() {
			err = recovered(ctx, info.FullMethod, recover(), err)
			err = deadlineStatus(ctx, err)
			logCall(ctx, info.FullMethod, false, start, err)
		}()

		return handler(ctx, req)
	}
}

func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		start := time.Now()
		defer func() {
			err = recovered(ss.Context(), info.FullMethod, recover(), err)
			logCall(ss.Context(), info.FullMethod, true, start, err)
		}()

		return handler(srv, ss)
	}
}

func recovered(ctx context.Context, method string, p any, err error) error {
	if p == nil {
		return err
	}
	slog.ErrorContext(ctx, "grpc: panic",
		slog.String("method", method),
		slog.Any("panic", p),
		slog.String("stack", string(debug.Stack())))
	return status.Error(codes.Internal, "internal server error")
}

// a handler that ran out of time without saying so reports DeadlineExceeded
func deadlineStatus(ctx context.Context, err error) error {
	if err == nil || status.Code(err) != codes.Unknown {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return err
}

// probes hit health and reflection every few seconds
func isProbe(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.") || strings.HasPrefix(method, "/grpc.reflection.")
}

func logCall(ctx context.Context, method string, stream bool, start time.Time, err error) {
	level := slog.LevelInfo
	switch {
	case err != nil:
		level = slog.LevelWarn
	case isProbe(method):
		level = slog.LevelDebug
	}

	attrs := []slog.Attr{
		slog.String("method", method),
		slog.Bool("stream", stream),
		slog.String("code", status.Code(err).String()),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		attrs = append(attrs, slog.String("peer", p.Addr.String()))
	}
	if err != nil {
		attrs = append(attrs, slog.Any("err", err))
	}
	slog.LogAttrs(ctx, level, "grpc: call", attrs...)
}
