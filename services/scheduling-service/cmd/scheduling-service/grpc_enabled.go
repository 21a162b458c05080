//go:build protogen

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/memberhub/memberhub/libs/grpcx"
	"github.com/memberhub/memberhub/libs/runtime"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/booking"
	"github.com/memberhub/memberhub/services/scheduling-service/internal/grpcserver"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, svc *booking.Service) error {
	port := runtime.Getenv("GRPC_PORT", "9090")
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerRequestIDInterceptor()),
	)
	grpcserver.Register(srv, svc)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	return nil
}
