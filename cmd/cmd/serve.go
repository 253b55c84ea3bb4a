// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ostafen/digler-tftpd/internal/boot"
	"github.com/ostafen/digler-tftpd/internal/config"
	"github.com/ostafen/digler-tftpd/internal/disk"
	"github.com/ostafen/digler-tftpd/internal/diskio"
	"github.com/ostafen/digler-tftpd/internal/logger"
	"github.com/ostafen/digler-tftpd/internal/tftp/server"
)

// shutdownGrace bounds how long Shutdown waits for in-flight transfers to
// reach a terminal state before force-closing their sockets (§5
// Cancellation).
const shutdownGrace = 5 * time.Second

// DefineServeCommand builds the `serve` subcommand: load the board
// registry from an INI config file and/or `--board` flags, bind the TFTP
// listener, and run until SIGINT/SIGTERM, reloading the registry in place
// on SIGHUP (§6).
func DefineServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "serve [config_path]",
		Short:        "Run the TFTP netboot server",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         runServe,
	}
	cmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().String("listen", "", `listen address: an IP, "stdin" (inherit fd 0), or "systemd" (sd_listen_fds)`)
	cmd.Flags().String("port", "", "listen port, numeric or a well-known service name")
	cmd.Flags().StringArray("board", nil, "SERIAL,PATH[,PARTITION[,IP]], repeatable; appended to the config file's [board:*] sections")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	levelFlag, _ := cmd.Flags().GetString("log-level")
	log := logger.New(os.Stderr, logger.ParseLevel(strings.ToUpper(levelFlag)))

	var configPath string
	if len(args) == 1 {
		configPath = args[0]
	}

	cfg, err := loadServeConfig(cmd, args)
	if err != nil {
		return exitErr(1, fmt.Errorf("serve: %w", err))
	}

	reg, err := boot.NewRegistry(cfg.Boards)
	if err != nil {
		return exitErr(1, fmt.Errorf("serve: %w", err))
	}

	resolver := boot.NewBoardResolver(reg, disk.NewMBRLocator(), diskio.Open)
	if err := resolver.Validate(); err != nil {
		log.Warnf("some boards are degraded and will refuse requests: %v", err)
	}

	srv, err := newServer(cfg, resolver, log)
	if err != nil {
		return exitErr(2, fmt.Errorf("serve: %w", err))
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	log.Infof("listening on %s with %d board(s)", srv.LocalAddr(), len(reg.Boards()))

	for {
		select {
		case err := <-serveErr:
			return exitErr(2, fmt.Errorf("serve: %w", err))
		case sig := <-sigc:
			if sig == syscall.SIGHUP {
				if configPath == "" {
					log.Warnf("SIGHUP received but serve was started without a config file, ignoring")
					continue
				}
				log.Infof("SIGHUP received, reloading %s", configPath)
				if err := reloadBoards(resolver, configPath); err != nil {
					log.Errorf("reload failed, keeping previous configuration: %v", err)
				} else {
					log.Infof("reloaded %d board(s)", len(resolver.Boards()))
					if err := resolver.Validate(); err != nil {
						log.Warnf("some boards are degraded and will refuse requests: %v", err)
					}
				}
				continue
			}
			log.Infof("%v received, shutting down", sig)
			srv.Shutdown(shutdownGrace)
			return exitErr(130, fmt.Errorf("%v received", sig))
		}
	}
}

// loadServeConfig builds a Config from the optional positional config file
// augmented by the `--listen`/`--port`/`--board` flags (§6: "configuration
// plus command-line augmentation, frozen thereafter"). Flags win over the
// file's [tftp] section; --board entries are appended to the file's
// [board:*] sections rather than replacing them, so a bare-flag invocation
// with no config file works equally well.
func loadServeConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := &config.Config{Port: config.DefaultPort}
	if len(args) == 1 {
		loaded, err := config.Load(args[0])
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	boardFlags, _ := cmd.Flags().GetStringArray("board")
	for _, spec := range boardFlags {
		b, err := config.ParseBoardFlag(spec)
		if err != nil {
			return nil, err
		}
		cfg.Boards = append(cfg.Boards, b)
	}

	if len(cfg.Boards) == 0 {
		return nil, fmt.Errorf("no boards configured: pass a config file or one or more --board flags")
	}

	return cfg, nil
}

// newServer binds the listener socket. cfg.Listen's two special values pick
// an inherited fd instead of binding fresh (§6): "systemd" requires an
// sd_listen_fds-activated socket, "stdin" inherits fd 0 directly. Any other
// LISTEN_FDS/LISTEN_PID-activated process is also honored automatically
// even without the explicit "systemd" value, for operators whose service
// manager sets those variables without being told the listen address.
func newServer(cfg *config.Config, resolver boot.Resolver, log *logger.Logger) (*server.Server, error) {
	switch cfg.Listen {
	case "systemd":
		conn, err := systemdListenUDP()
		if err != nil {
			return nil, err
		}
		if conn == nil {
			return nil, fmt.Errorf(`listen "systemd": no socket-activated fd found (LISTEN_FDS/LISTEN_PID unset)`)
		}
		log.Infof("using systemd-activated socket %s", conn.LocalAddr())
		return server.NewFromConn(conn, resolver, log), nil

	case "stdin":
		conn, err := net.FilePacketConn(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf(`listen "stdin": inherited fd 0 is not a usable socket: %w`, err)
		}
		udpConn, ok := conn.(*net.UDPConn)
		if !ok {
			conn.Close()
			return nil, fmt.Errorf(`listen "stdin": inherited fd 0 is not a UDP socket`)
		}
		log.Infof("using inherited stdin socket %s", udpConn.LocalAddr())
		return server.NewFromConn(udpConn, resolver, log), nil

	default:
		conn, err := systemdListenUDP()
		if err != nil {
			return nil, err
		}
		if conn != nil {
			log.Infof("using systemd-activated socket %s", conn.LocalAddr())
			return server.NewFromConn(conn, resolver, log), nil
		}
		return server.New(net.JoinHostPort(cfg.Listen, cfg.Port), resolver, log)
	}
}

// reloadBoards re-parses configPath and swaps the resulting registry into
// resolver, keeping its opened-image and parsed-filesystem caches warm
// across the swap (§5, §6 SIGHUP reload).
func reloadBoards(resolver *boot.BoardResolver, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	reg, err := boot.NewRegistry(cfg.Boards)
	if err != nil {
		return err
	}
	resolver.SetRegistry(reg)
	return nil
}
