package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryInterceptor enforces the policy on every unary gRPC call.
// A missing, empty, or incorrect key returns codes.Unauthenticated.
func (p Policy) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if err := p.check(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor enforces the policy when a gRPC stream is opened.
func (p Policy) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := p.check(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (p Policy) check(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get(p.header)
	if len(vals) == 0 || !p.Allow(vals[0]) {
		return status.Error(codes.Unauthenticated, "invalid api key")
	}
	return nil
}
