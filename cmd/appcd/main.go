// Command appcd runs the local RPC daemon. Grounded on
// cmd/viiper/viiper.go's kong.Parse/ctx.Run() shape: a top-level CLI
// struct embeds one sub-struct per subcommand, each implementing
// Run(...) so kong dispatches to it directly.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"

	appcdconfig "github.com/jhaynie/appc-daemon/config"
	"github.com/jhaynie/appc-daemon/control"
	"github.com/jhaynie/appc-daemon/daemonsvc"
	"github.com/jhaynie/appc-daemon/dispatch"
	"github.com/jhaynie/appc-daemon/logging"
	"github.com/jhaynie/appc-daemon/protocol"
	"github.com/jhaynie/appc-daemon/service"
	"github.com/jhaynie/appc-daemon/transport/httpmw"
	"github.com/jhaynie/appc-daemon/transport/wsrpc"
)

type cli struct {
	Config string   `help:"Path to a JSON/YAML/TOML config file." optional:""`
	Start  startCmd `cmd:"" help:"Start the daemon and block until shutdown."`
	Stop   stopCmd  `cmd:"" help:"Request a running daemon to shut down."`
}

type startCmd struct {
	Addr     string `help:"WebSocket RPC listen address." default:"127.0.0.1:1732"`
	HTTPAddr string `help:"HTTP diagnostics listen address; empty disables it." default:""`
	LogLevel string `help:"Log level: trace, debug, info, warn, error." default:"info" enum:"trace,debug,info,warn,error"`
	LogFile  string `help:"Rotating log file path; empty logs to stderr only." default:""`
}

type stopCmd struct {
	Addr string `help:"WebSocket RPC address of the running daemon." default:"127.0.0.1:1732"`
}

func main() {
	var c cli
	jsonPaths, yamlPaths, tomlPaths := appcdconfig.CandidatePaths(findConfigFlag(os.Args[1:]))

	kctx := kong.Parse(&c,
		kong.Name("appcd"),
		kong.Description("Local daemon exposing a path-addressed RPC surface over WebSocket."),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	err := kctx.Run()
	kctx.FatalIfErrorf(err)
}

func findConfigFlag(args []string) string {
	for i, a := range args {
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if len(a) > len("--config=") && a[:len("--config=")] == "--config=" {
			return a[len("--config="):]
		}
	}
	return ""
}

func (s *startCmd) Run() error {
	logger, fw := logging.New(logging.Options{Level: s.LogLevel, FilePath: s.LogFile})
	if fw != nil {
		defer fw.Close()
	}
	dlog := logging.SlogAdapter{L: logger}

	runtime := appcdconfig.NewRuntime(s.Addr, s.LogLevel)
	control.RegisterReloadHook(func() {
		logger.Info("config reloaded", "log_level", runtime.LogLevel())
	})
	runtime.OnReload(control.TriggerHotReload)

	metrics := control.NewMetricsRegistry()
	probes := control.NewDebugProbes()
	probes.RegisterProbe("config", func() any { return runtime.Snapshot() })
	control.RegisterPlatformProbes(probes)

	registry := service.NewRegistry(16)
	root := dispatch.New(dispatch.WithLogger(dlog), dispatch.WithName("root"))

	mustHandle(root, "/_daemon/status", daemonsvc.Status(metrics).Handler())
	mustHandle(root, "/_daemon/debug", daemonsvc.Debug(probes).Handler())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	wsServer := wsrpc.NewServer(root, registry, dlog)
	mustHandle(root, "/_daemon/stop", daemonsvc.Stop(func() {
		logger.Info("stop requested via RPC")
		_ = wsServer.Close()
	}).Handler())

	metrics.Set("started_at", time.Now().Format(time.RFC3339))
	logger.Info("appcd starting", "addr", s.Addr)

	errCh := make(chan error, 1)
	go func() { errCh <- wsServer.ListenAndServe(s.Addr) }()

	var httpSrv *http.Server
	if s.HTTPAddr != "" {
		mw := httpmw.New(root, dlog)
		mux := http.NewServeMux()
		mux.Handle("/", mw.Middleware(http.NotFoundHandler()))
		httpSrv = &http.Server{Addr: s.HTTPAddr, Handler: mux}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http diagnostics server failed", "err", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("wsrpc server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("appcd shutting down")
		_ = wsServer.Close()
		if httpSrv != nil {
			_ = httpSrv.Close()
		}
		return nil
	}
}

func (s *stopCmd) Run() error {
	conn, err := net.DialTimeout("tcp", s.Addr, 3*time.Second)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w", s.Addr, err)
	}
	defer conn.Close()

	upgrade := "GET / HTTP/1.1\r\n" +
		"Host: " + s.Addr + "\r\n" +
		"Connection: Upgrade\r\n" +
		"Upgrade: websocket\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"Sec-WebSocket-Key: YXBwY2QtY2xpLXN0b3A=\r\n\r\n"
	if _, err := conn.Write([]byte(upgrade)); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return fmt.Errorf("read handshake response: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return fmt.Errorf("daemon refused upgrade: %s", resp.Status)
	}

	body := []byte(`{"version":"1.0","id":"stop-cmd","path":"/_daemon/stop","type":"call"}`)
	payload, err := protocol.EncodeFrameToBytesWithMask(&protocol.WSFrame{
		IsFinal: true, Opcode: protocol.OpcodeText, PayloadLen: int64(len(body)), Payload: body,
	}, true)
	if err != nil {
		return fmt.Errorf("encode stop frame: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("send stop request: %w", err)
	}
	return nil
}

func mustHandle(d *dispatch.Dispatcher, pattern string, fn dispatch.HandlerFunc) {
	if err := d.Handle(pattern, fn); err != nil {
		panic(fmt.Sprintf("appcd: invalid built-in route %q: %v", pattern, err))
	}
}
