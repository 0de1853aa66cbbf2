package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"google.golang.org/grpc"

	"github.com/hanpama/fedtree/internal/composing"
	"github.com/hanpama/fedtree/internal/eventbus"
	"github.com/hanpama/fedtree/internal/executor"
	"github.com/hanpama/fedtree/internal/grpctp"
	"github.com/hanpama/fedtree/internal/localexec"
	"github.com/hanpama/fedtree/internal/otel"
	"github.com/hanpama/fedtree/internal/remote"
)

const rootUsage = `fedtree — federated executor service

USAGE:
  fedtree <command> [flags]

COMMANDS:
  serve            Run an executor service over gRPC
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -listen <addr>                      gRPC listen address (default: :7878)
  -clients <n>                        Run a leaf executor holding n client
                                      placements. Mutually exclusive with -child.
  -child <addr>                       Subordinate executor service endpoint.
                                      Repeatable; at least one turns this node
                                      into a composing executor whose children
                                      are the given services in order.
  -transport.max-conns-per-endpoint N Max TCP conns per child endpoint (default: 2)
  -transport.rpc-timeout <duration>   Child RPC timeout, e.g. 3s (default: 3s)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: fedtree)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("fedtree", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdServe(args []string) error {
	listen := ":7878"
	clients := 0
	maxConns := 2
	rpcTimeout := 3 * time.Second
	otelEndpoint := ""
	otelService := "fedtree"
	var children stringListFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&listen, "listen", listen, "gRPC listen address")
	fs.IntVar(&clients, "clients", clients, "Client placements held by a leaf executor")
	fs.Var(&children, "child", "Subordinate executor service endpoint")
	fs.IntVar(&maxConns, "transport.max-conns-per-endpoint", maxConns, "Max conns per endpoint")
	fs.DurationVar(&rpcTimeout, "transport.rpc-timeout", rpcTimeout, "Child RPC timeout")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	if (clients > 0) == (len(children) > 0) {
		fmt.Fprint(os.Stderr, serveUsage)
		return fmt.Errorf("exactly one of -clients and -child is required")
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	var ex executor.Executor
	if clients > 0 {
		ex = localexec.New(clients)
	} else {
		// Each child endpoint gets its own transport so that calls for a
		// given child never land on a sibling.
		trOpts := []grpctp.Option{grpctp.WithMaxConnsPerEndpoint(maxConns)}
		if rpcTimeout > 0 {
			trOpts = append(trOpts, grpctp.WithRPCTimeout(rpcTimeout))
		}
		kids := make([]executor.Executor, len(children))
		for i, addr := range children {
			provider := grpctp.NewStaticEndpoints(map[string][]string{
				remote.ServiceName: {addr},
			})
			opts := append([]grpctp.Option{grpctp.WithProvider(provider)}, trOpts...)
			kids[i] = remote.New(grpctp.New(opts...))
		}
		ex, err = composing.New(localexec.New(1), kids)
		if err != nil {
			return fmt.Errorf("composing init: %w", err)
		}
	}

	svc := remote.NewService(ex)
	gs := grpc.NewServer()
	svc.Register(gs)

	lis, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	log.Printf("executor service listening on %s", listen)
	return gs.Serve(lis)
}
