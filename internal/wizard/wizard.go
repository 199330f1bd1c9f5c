// Package wizard provides an interactive first-run setup flow for the
// tunnel agent: listen address, TLS material, and the first admin
// credential, written out as a ready-to-use config file.
package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/Mukthiteja/Secure-VPN/internal/auth"
	"github.com/Mukthiteja/Secure-VPN/internal/config"
	"github.com/Mukthiteja/Secure-VPN/internal/transport"
)

// certMode is the wizard's choice for how TLS material is obtained.
type certMode string

const (
	certModeGenerate certMode = "generate"
	certModeExisting certMode = "existing"
)

// answers collects everything the interactive form gathers before the
// wizard acts on it. Kept separate from the huh form so buildResult can
// be exercised by tests without a terminal.
type answers struct {
	dataDir       string
	listenAddr    string
	certMode      certMode
	certFile      string
	keyFile       string
	requireMTLS   bool
	adminUsername string
	adminPassword string
	logLevel      string
}

// Result is what the wizard produced: a ready-to-load config file and the
// credential file backing it.
type Result struct {
	ConfigPath     string
	CredentialFile string
	Config         *config.Config
}

// Wizard runs the interactive setup flow.
type Wizard struct{}

// New creates a setup wizard.
func New() *Wizard {
	return &Wizard{}
}

// Run prompts the operator for the fields needed to stand up a server,
// generates TLS material and the first admin credential if requested,
// and writes a config file.
func (w *Wizard) Run() (*Result, error) {
	w.printBanner()

	a := answers{
		dataDir:    "./tunnel-data",
		listenAddr: "0.0.0.0:44350",
		certMode:   certModeGenerate,
		logLevel:   "info",
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("Where certificates and the credential file are stored").
				Value(&a.dataDir),
			huh.NewInput().
				Title("Listen address").
				Description("Address the tunnel server binds to").
				Value(&a.listenAddr),
		),
		huh.NewGroup(
			huh.NewSelect[certMode]().
				Title("TLS certificate").
				Options(
					huh.NewOption("Generate a self-signed certificate", certModeGenerate),
					huh.NewOption("Use an existing certificate and key", certModeExisting),
				).
				Value(&a.certMode),
			huh.NewConfirm().
				Title("Require client certificates (mutual TLS)?").
				Value(&a.requireMTLS),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("First admin username").
				Value(&a.adminUsername),
			huh.NewInput().
				Title("First admin password").
				EchoMode(huh.EchoModePassword).
				Value(&a.adminPassword),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("debug", "debug"),
					huh.NewOption("info", "info"),
					huh.NewOption("warn", "warn"),
					huh.NewOption("error", "error"),
				).
				Value(&a.logLevel),
		),
	)

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard: form: %w", err)
	}

	if a.certMode == certModeExisting {
		existing := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Certificate file path").Value(&a.certFile),
			huh.NewInput().Title("Key file path").Value(&a.keyFile),
		))
		if err := existing.Run(); err != nil {
			return nil, fmt.Errorf("wizard: form: %w", err)
		}
	}

	result, err := w.buildResult(a)
	if err != nil {
		return nil, err
	}

	w.printSummary(result)
	return result, nil
}

// buildResult performs the non-interactive side effects (directory
// creation, certificate generation, credential file, config file) once
// the operator's answers are known.
func (w *Wizard) buildResult(a answers) (*Result, error) {
	if err := os.MkdirAll(a.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("wizard: create data directory: %w", err)
	}

	certFile, keyFile := a.certFile, a.keyFile
	if a.certMode == certModeGenerate {
		certFile = filepath.Join(a.dataDir, "server.crt")
		keyFile = filepath.Join(a.dataDir, "server.key")
		if err := transport.GenerateAndSaveCert(certFile, keyFile, "localhost", 825*24*time.Hour); err != nil {
			return nil, fmt.Errorf("wizard: generate certificate: %w", err)
		}
	}

	credentialFile := filepath.Join(a.dataDir, "credentials.json")
	if a.adminUsername != "" {
		if err := auth.AddUser(credentialFile, a.adminUsername, a.adminPassword); err != nil {
			return nil, fmt.Errorf("wizard: write credential file: %w", err)
		}
	}

	cfg := config.Default()
	cfg.Agent.LogLevel = a.logLevel
	cfg.Server.Address = a.listenAddr
	cfg.Server.CredentialFile = credentialFile
	cfg.TLS.Cert = certFile
	cfg.TLS.Key = keyFile
	cfg.TLS.RequireClientCert = a.requireMTLS

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("wizard: built an invalid config: %w", err)
	}

	configPath := filepath.Join(a.dataDir, "config.yaml")
	if err := writeConfig(cfg, configPath); err != nil {
		return nil, err
	}

	return &Result{
		ConfigPath:     configPath,
		CredentialFile: credentialFile,
		Config:         cfg,
	}, nil
}

func writeConfig(cfg *config.Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("wizard: encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("wizard: write config: %w", err)
	}
	return nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func (w *Wizard) printBanner() {
	fmt.Println(titleStyle.Render("Secure Tunnel — first-run setup"))
}

func (w *Wizard) printSummary(r *Result) {
	fmt.Println()
	fmt.Println(titleStyle.Render("Setup complete"))
	fmt.Printf("%s %s\n", labelStyle.Render("Config file:"), r.ConfigPath)
	fmt.Printf("%s %s\n", labelStyle.Render("Credential file:"), r.CredentialFile)
	fmt.Printf("%s %s\n", labelStyle.Render("Listen address:"), r.Config.Server.Address)
}
