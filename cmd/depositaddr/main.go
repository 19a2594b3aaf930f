// Package main provides depositaddr, a command line tool that derives and
// verifies LBTC deposit addresses.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/klingon-exchange/depositaddr/internal/chain"
	"github.com/klingon-exchange/depositaddr/internal/config"
	"github.com/klingon-exchange/depositaddr/internal/deposit"
	"github.com/klingon-exchange/depositaddr/internal/lombard"
	"github.com/klingon-exchange/depositaddr/internal/storage"
	"github.com/klingon-exchange/depositaddr/internal/verify"
	"github.com/klingon-exchange/depositaddr/pkg/helpers"
	"github.com/klingon-exchange/depositaddr/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

var (
	baseStyle  = lipgloss.NewStyle().Margin(0, 0, 1, 2) //nolint:mnd
	red        = lipgloss.Color(completeColor("#FF4444", "196", "9"))
	green      = lipgloss.Color(completeColor("#43BF6D", "35", "2"))
	errorStyle = baseStyle.
			Foreground(red).
			Background(lipgloss.AdaptiveColor{Light: completeColor("#FFEBEB", "255", "7"), Dark: completeColor("#2B1A1A", "235", "8")}).
			Padding(1, 2) //nolint:mnd
	okStyle    = lipgloss.NewStyle().Foreground(green).Bold(true)
	badStyle   = lipgloss.NewStyle().Foreground(red).Bold(true)
	labelStyle = lipgloss.NewStyle().Faint(true)
)

// Settings pinned in the history database.
const (
	settingRegistryVersion = "registry_version"
	settingRootKeyPrefix   = "root_key_"
)

// globalFlags are shared by every subcommand and override the config file.
type globalFlags struct {
	dataDir  string
	network  string
	apiURL   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "depositaddr",
		Short: "Derive and verify LBTC deposit addresses",
		Long: `Derive and verify LBTC deposit addresses.

A deposit address is a P2WPKH address of the root public key tweaked with a
commitment to the destination chain, destination address, token, referral
and nonce. Anyone holding the root public key can recompute it, so the
addresses returned by the deposit API can be checked offline.`,
		Example: `  depositaddr derive --chain ethereum --to 0x0F90793a54E809bf708bd0FbCC63d311E3bb1BE1 --referral lombard
  depositaddr verify ethereum 0x0F90793a54E809bf708bd0FbCC63d311E3bb1BE1
  depositaddr verify solana 9Yb3kJXMMHUN9ry1w7UTFETe1zuM2pGzM66d4aBjtMCh --network signet
  depositaddr history --chain ethereum
  depositaddr serve --listen 127.0.0.1:8645`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.dataDir, "data-dir", config.DefaultDataDir, "Data directory for config and history")
	pf.StringVar(&g.network, "network", "", "Bitcoin network (mainnet, signet), overrides config")
	pf.StringVar(&g.apiURL, "api-url", "", "Deposit API base URL for the selected network, overrides config")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error), overrides config")

	rootCmd.AddCommand(
		newDeriveCmd(g),
		newVerifyCmd(g),
		newChainsCmd(),
		newHistoryCmd(g),
		newServeCmd(g),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the services a subcommand runs with.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	network  chain.Network
	service  *deposit.Service
	verifier *verify.Verifier
	store    *storage.Storage
}

// storeMode selects when setup opens the history database.
type storeMode int

const (
	storeNever storeMode = iota
	storeIfRecording
	storeAlways
)

// setup loads the config, applies flag overrides and builds the services.
// When the database is open and recording is enabled every verification
// report is saved.
func setup(g *globalFlags, mode storeMode) (*app, error) {
	cfg, err := config.LoadConfig(g.dataDir)
	if err != nil {
		return nil, err
	}
	cfg.Storage.DataDir = g.dataDir

	if g.network != "" {
		cfg.Network = g.network
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	network, err := cfg.NetworkType()
	if err != nil {
		return nil, err
	}
	if g.apiURL != "" {
		switch network {
		case chain.Mainnet:
			cfg.API.MainnetURL = g.apiURL
		case chain.Signet:
			cfg.API.SignetURL = g.apiURL
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logging.New(cfg.LoggerConfig())
	logging.SetDefault(log)
	log.Debug("Config loaded", "path", config.ConfigPath(g.dataDir), "network", network)

	depCfg, err := cfg.DepositConfig()
	if err != nil {
		return nil, err
	}
	service, err := deposit.NewService(depCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create deposit service: %w", err)
	}

	client, err := lombard.NewClient(cfg.LombardConfig(), network)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	verifier, err := verify.New(service, client, cfg.VerifierConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create verifier: %w", err)
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		network:  network,
		service:  service,
		verifier: verifier,
	}

	if mode == storeAlways || (mode == storeIfRecording && cfg.Storage.Record) {
		store, err := storage.New(&storage.Config{DataDir: config.ExpandPath(cfg.Storage.DataDir)})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.store = store
		if err := a.pinSettings(); err != nil {
			store.Close()
			return nil, err
		}
		if cfg.Storage.Record {
			verifier.OnReport(verify.RecordTo(store))
		}
		log.Debug("Storage initialized", "path", store.Path(), "record", cfg.Storage.Record)
	}
	return a, nil
}

// pinSettings remembers the root key and chain table used for the stored
// history and warns when either changed since the last run.
func (a *app) pinSettings() error {
	key := helpers.BytesToHex(a.service.RootPublicKey())
	prev, changed, err := a.store.PinSetting(settingRootKeyPrefix+string(a.network), key)
	if err != nil {
		return fmt.Errorf("failed to pin root key: %w", err)
	}
	if changed {
		a.log.Warn("Root public key changed since last run; older history was checked against another key",
			"network", a.network, "previous", prev, "current", key)
	}

	prev, changed, err = a.store.PinSetting(settingRegistryVersion, strconv.Itoa(chain.RegistryVersion))
	if err != nil {
		return fmt.Errorf("failed to pin registry version: %w", err)
	}
	if changed {
		a.log.Warn("Chain table changed since last run", "previous", prev, "current", chain.RegistryVersion)
	}
	return nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

// styled reports whether w is a terminal that gets colored output.
func styled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func printError(w io.Writer, err error) {
	if styled(w) {
		_, _ = io.WriteString(w, "\n"+errorStyle.Render(err.Error())+"\n")
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func render(w io.Writer, s lipgloss.Style, str string) string {
	if !styled(w) {
		return str
	}
	return s.Render(str)
}

func completeColor(truecolor, ansi256, ansi string) string {
	//nolint: exhaustive
	switch lipgloss.ColorProfile() {
	case termenv.TrueColor:
		return truecolor
	case termenv.ANSI256:
		return ansi256
	}
	return ansi
}
