// Package main provides the CLI entry point for the tunnel agent.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Mukthiteja/Secure-VPN/internal/auth"
	"github.com/Mukthiteja/Secure-VPN/internal/client"
	"github.com/Mukthiteja/Secure-VPN/internal/config"
	"github.com/Mukthiteja/Secure-VPN/internal/logging"
	"github.com/Mukthiteja/Secure-VPN/internal/metrics"
	"github.com/Mukthiteja/Secure-VPN/internal/server"
	"github.com/Mukthiteja/Secure-VPN/internal/sysinfo"
	"github.com/Mukthiteja/Secure-VPN/internal/transport"
	"github.com/Mukthiteja/Secure-VPN/internal/wizard"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "tunnelagent",
		Short:   "Point-to-point encrypted tunnel agent",
		Version: sysinfo.Version,
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "start", Title: "Getting Started:"},
		&cobra.Group{ID: "admin", Title: "Administration:"},
	)

	setup := setupCmd()
	setup.GroupID = "start"
	serve := serveCmd()
	serve.GroupID = "start"
	connect := connectCmd()
	connect.GroupID = "start"
	adduser := adduserCmd()
	adduser.GroupID = "admin"

	rootCmd.AddCommand(setup, serve, connect, adduser, versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := wizard.New().Run()
			return err
		},
	}
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tunnel server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrDefault(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	return cmd
}

func runServe(cfg *config.Config) error {
	logger := logging.NewLogger(cfg.Agent.LogLevel, cfg.Agent.LogFormat)
	slog.SetDefault(logger)

	if cfg.Server.CredentialFile == "" {
		return fmt.Errorf("server.credential_file must be set")
	}
	store, err := auth.LoadFromFile(cfg.Server.CredentialFile)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	certPEM, err := cfg.TLS.GetCertPEM()
	if err != nil {
		return fmt.Errorf("load TLS certificate: %w", err)
	}
	keyPEM, err := cfg.TLS.GetKeyPEM()
	if err != nil {
		return fmt.Errorf("load TLS key: %w", err)
	}
	if len(certPEM) == 0 || len(keyPEM) == 0 {
		return fmt.Errorf("tls.cert and tls.key (or their _pem forms) must be set")
	}
	tlsConfig, err := transport.TLSConfigFromPEM(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("build TLS config: %w", err)
	}
	if cfg.TLS.RequireClientCert {
		caPEM, err := cfg.TLS.GetCAPEM()
		if err != nil {
			return fmt.Errorf("load client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return fmt.Errorf("parse client CA certificate")
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	m := metrics.Default()
	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Address, logger)
	}

	srv := server.New(server.Config{
		Address:               cfg.Server.Address,
		TLSConfig:             tlsConfig,
		Verifier:              store,
		MaxConcurrent:         cfg.Server.MaxConcurrent,
		QueueDepth:            cfg.Server.QueueDepth,
		HandshakeTimeout:      cfg.Session.HandshakeTimeout,
		AuthTimeout:           cfg.Session.AuthTimeout,
		AuthAttemptsPerSecond: cfg.RateLimit.AuthAttemptsPerSecond,
		AuthBurst:             cfg.RateLimit.AuthBurst,
		Logger:                logger,
		Metrics:               m,
	})

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	logger.Info("tunnel server listening", "address", srv.Address())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	return srv.Stop()
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics server listening", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

func connectCmd() *cobra.Command {
	var configPath, username, password string

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Dial a tunnel server and exchange lines of stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrDefault(configPath)
			if err != nil {
				return err
			}
			if username != "" {
				cfg.Client.Username = username
			}
			if password != "" {
				cfg.Client.Password = password
			}
			return runConnect(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (overrides config)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (overrides config; omit to be prompted)")
	return cmd
}

func runConnect(cfg *config.Config) error {
	logger := logging.NewLogger(cfg.Agent.LogLevel, cfg.Agent.LogFormat)

	if cfg.Client.Password == "" {
		pw, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		cfg.Client.Password = pw
	}

	tlsConfig, err := transport.LoadClientTLSConfig(cfg.TLS.CA, cfg.TLS.InsecureSkipVerify)
	if err != nil {
		return fmt.Errorf("build client TLS config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := client.Connect(ctx, client.Config{
		ServerAddress:    cfg.Client.ServerAddress,
		TLSConfig:        tlsConfig,
		Username:         cfg.Client.Username,
		Password:         cfg.Client.Password,
		SessionID:        cfg.Client.SessionID,
		HandshakeTimeout: cfg.Session.HandshakeTimeout,
		AuthTimeout:      cfg.Session.AuthTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()

	logger.Info("session established", "session", sess.PeerID, "user", sess.AuthenticatedUser)
	fmt.Fprintln(os.Stderr, "connected; type a line and press enter to send it")

	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			if err := sess.Send(buf[:n]); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			reply, err := sess.Recv(cfg.Session.HeartbeatInterval)
			if err != nil {
				return fmt.Errorf("recv: %w", err)
			}
			os.Stdout.Write(reply)
		}
		if err != nil {
			return nil
		}
	}
}

func adduserCmd() *cobra.Command {
	var credentialFile, username, password string

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Add or update a user in a credential file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if credentialFile == "" {
				return fmt.Errorf("--credential-file is required")
			}
			if username == "" {
				return fmt.Errorf("--username is required")
			}
			if password == "" {
				pw, err := promptPasswordConfirmed()
				if err != nil {
					return err
				}
				password = pw
			}
			if err := auth.AddUser(credentialFile, username, password); err != nil {
				return fmt.Errorf("add user: %w", err)
			}
			fmt.Printf("user %q added to %s\n", username, credentialFile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&credentialFile, "credential-file", "f", "", "Path to the JSON credential file")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username to add")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (omit to be prompted)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agent version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("tunnelagent %s (uptime %s)\n", sysinfo.Version, sysinfo.Uptime().Round(time.Second))
			return nil
		},
	}
}

func loadOrDefault(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func promptPassword(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func promptPasswordConfirmed() (string, error) {
	pw, err := promptPassword("Password: ")
	if err != nil {
		return "", err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	if pw == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return pw, nil
}
