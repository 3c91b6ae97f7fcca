package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"ledgerseal/pkg/app"
	"ledgerseal/pkg/client"
	"ledgerseal/pkg/config"
	"ledgerseal/pkg/rpc"
	"ledgerseal/pkg/server"
	"ledgerseal/pkg/service"

	"github.com/spf13/pflag"
	"google.golang.org/grpc/reflection"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Config
	flags := pflag.NewFlagSet("ledgerseal-server", pflag.ExitOnError)
	cfgFile := flags.String("config", "", "config file (default is ./config.yaml or $HOME/.ledgerseal/config.yaml)")
	flags.String("listen", "", "listen address (default :50051)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	_ = flags.Parse(os.Args[1:])

	settings, err := config.Load(*cfgFile, flags)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := app.NewLogger(os.Stderr, settings.Log.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Init Core Application (服务端用自己的凭证签名)
	application, err := app.NewApp(ctx, settings, app.ReadWrite, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %w", err)
	}
	defer application.Close()
	logger.Info("ledgerseal core initialized", "ledger", settings.Ledger.Backend, "store", settings.Store.Type)

	// 3. Setup Network
	lis, err := net.Listen("tcp", settings.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", settings.Server.Addr, err)
	}

	// 4. Setup gRPC Server
	grpcServer := server.New(logger, client.MaxMessageSize)

	lookup, _ := application.ReceiptLookup()
	rpc.RegisterAttestServer(grpcServer, service.NewAttestService(application.Orchestrator, lookup, logger))

	// Enable Reflection for debugging tools (grpcurl)
	reflection.Register(grpcServer)

	// 5. Start Server (Async)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", "addr", lis.Addr().String())
		errCh <- grpcServer.Serve(lis)
	}()

	// 6. Graceful Shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")
	grpcServer.GracefulStop()
	return nil
}
