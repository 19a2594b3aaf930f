package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/klingon-exchange/depositaddr/internal/chain"
	"github.com/klingon-exchange/depositaddr/internal/deposit"
	"github.com/klingon-exchange/depositaddr/internal/rpc"
	"github.com/klingon-exchange/depositaddr/internal/storage"
	"github.com/klingon-exchange/depositaddr/internal/verify"
	"github.com/klingon-exchange/depositaddr/pkg/helpers"
)

// ========================================
// derive
// ========================================

type deriveFlags struct {
	chain      string
	to         string
	token      string
	referral   string
	nonce      int64
	auxVersion int64
	json       bool
	quiet      bool
}

// deriveOutput is the --json form of derive.
type deriveOutput struct {
	Address      string `json:"address"`
	Network      string `json:"network"`
	Chain        string `json:"chain"`
	ToAddress    string `json:"to_address"`
	DerivedTo    string `json:"derived_to"`
	TokenAddress string `json:"token_address"`
	ReferralID   string `json:"referral_id"`
	Nonce        uint32 `json:"nonce"`
	AuxVersion   uint8  `json:"aux_version"`
	AuxData      string `json:"aux_data"`
	Tweak        string `json:"tweak"`
	PublicKey    string `json:"public_key"`
}

func newDeriveCmd(g *globalFlags) *cobra.Command {
	f := &deriveFlags{}

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive a deposit address offline",
		Long: `Derive a deposit address offline from the root public key.

--to is the destination address: hex for EVM and Sui chains, the base58
wallet for Solana (its token account is resolved locally). --token takes a
contract address or a registered symbol (stLBTC, LBTC) and defaults to the
chain's stLBTC contract.`,
		Example: `  depositaddr derive --chain ethereum --to 0x0F90793a54E809bf708bd0FbCC63d311E3bb1BE1 --referral lombard
  depositaddr derive --chain katana --to 0x0F90793a54E809bf708bd0FbCC63d311E3bb1BE1 --token LBTC
  depositaddr derive --chain solana --to 9Yb3kJXMMHUN9ry1w7UTFETe1zuM2pGzM66d4aBjtMCh --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(g, storeNever)
			if err != nil {
				return err
			}
			defer a.close()
			return runDerive(cmd.OutOrStdout(), a, f)
		},
	}

	cmd.Flags().StringVar(&f.chain, "chain", "", "Destination chain ("+strings.Join(chain.List(), ", ")+")")
	cmd.Flags().StringVar(&f.to, "to", "", "Destination address")
	cmd.Flags().StringVar(&f.token, "token", "", "Token contract address or symbol (default: chain stLBTC)")
	cmd.Flags().StringVar(&f.referral, "referral", "", "Referral id")
	cmd.Flags().Int64Var(&f.nonce, "nonce", 0, "Deposit nonce (0 to 4294967295)")
	cmd.Flags().Int64Var(&f.auxVersion, "aux-version", 0, "Aux data version (0 or 1)")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print the derivation as JSON")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Print only the address")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runDerive(w io.Writer, a *app, f *deriveFlags) error {
	nonce, err := deposit.NonceFromInt64(f.nonce)
	if err != nil {
		return fmt.Errorf("--nonce: %w", err)
	}
	auxVersion, err := deposit.AuxVersionFromInt64(f.auxVersion)
	if err != nil {
		return fmt.Errorf("--aux-version: %w", err)
	}

	params, ok := chain.Get(f.chain)
	if !ok {
		return fmt.Errorf("%w: %q (supported: %s)", deposit.ErrUnsupportedChain, f.chain, strings.Join(chain.List(), ", "))
	}

	token := f.token
	if tok, ok := chain.GetToken(params.Name, f.token); ok {
		token = tok.Address
	}

	p := &deposit.ComputeParams{
		Chain:        params.Name,
		ToAddress:    f.to,
		TokenAddress: token,
		ReferralID:   f.referral,
		Nonce:        nonce,
		AuxVersion:   auxVersion,
	}
	d, err := a.verifier.ComputeAddress(p)
	if err != nil {
		return err
	}

	// Re-resolve the inputs for display; ComputeAddress already validated them.
	req, err := deposit.BuildRequest(p)
	if err != nil {
		return err
	}
	derivedTo := f.to
	if params.Ecosystem == chain.EcosystemSolana {
		if ata, err := a.verifier.Resolver().AssociatedTokenAddress(req.ToAddress, req.TokenAddress); err == nil {
			derivedTo = chain.FormatAddress(params.Ecosystem, ata)
		}
	}

	out := &deriveOutput{
		Address:      d.Address,
		Network:      string(a.network),
		Chain:        params.Name,
		ToAddress:    f.to,
		DerivedTo:    derivedTo,
		TokenAddress: chain.FormatAddress(params.Ecosystem, req.TokenAddress),
		ReferralID:   f.referral,
		Nonce:        nonce,
		AuxVersion:   auxVersion,
		AuxData:      helpers.BytesToHex(d.AuxData[:]),
		Tweak:        helpers.BytesToHex(d.Tweak[:]),
		PublicKey:    helpers.BytesToHex(d.PublicKey),
	}

	switch {
	case f.quiet:
		fmt.Fprintln(w, out.Address)
		return nil
	case f.json:
		return writeJSON(w, out)
	}

	rows := [][2]string{
		{"Address", render(w, okStyle, out.Address)},
		{"Network", out.Network},
		{"Chain", out.Chain},
		{"To", out.ToAddress},
	}
	if out.DerivedTo != out.ToAddress {
		rows = append(rows, [2]string{"Token account", out.DerivedTo})
	}
	rows = append(rows,
		[2]string{"Token", out.TokenAddress},
		[2]string{"Referral", out.ReferralID},
		[2]string{"Nonce", strconv.FormatUint(uint64(out.Nonce), 10)},
		[2]string{"Aux version", strconv.Itoa(int(out.AuxVersion))},
		[2]string{"Aux data", out.AuxData},
		[2]string{"Tweak", out.Tweak},
		[2]string{"Public key", out.PublicKey},
	)
	writeFields(w, rows)
	return nil
}

// ========================================
// verify
// ========================================

func newVerifyCmd(g *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify <chain> <to-address>",
		Short: "Check the deposit addresses the API returns for a destination",
		Long: `Fetch the deposit addresses registered for a destination from the deposit
API and recompute each of them from the root public key.

Exits non-zero when any address cannot be reproduced or when the API
answers for another destination.`,
		Example: `  depositaddr verify ethereum 0x0F90793a54E809bf708bd0FbCC63d311E3bb1BE1
  depositaddr verify solana 9Yb3kJXMMHUN9ry1w7UTFETe1zuM2pGzM66d4aBjtMCh --json`,
		Args: cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, storeIfRecording)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, verr := a.verifier.Verify(ctx, args[0], args[1])
			if report == nil {
				return verr
			}

			w := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(w, report); err != nil {
					return err
				}
			} else {
				writeReport(w, report)
			}
			if verr != nil {
				return fmt.Errorf("%d of %d deposit addresses do not match: %w",
					len(report.Mismatches()), len(report.Results), deposit.ErrVerificationMismatch)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func writeReport(w io.Writer, r *verify.Report) {
	fmt.Fprintf(w, "%s %s on %s (%s)\n\n",
		render(w, labelStyle, "Destination"), r.ToAddress, r.Chain, r.Network)

	for _, res := range r.Results {
		if res.Match {
			fmt.Fprintf(w, "  %s %s\n", render(w, okStyle, "OK      "), res.Claimed)
		} else {
			fmt.Fprintf(w, "  %s %s\n", render(w, badStyle, "MISMATCH"), res.Claimed)
			fmt.Fprintf(w, "           %s %s\n", render(w, labelStyle, "computed"), res.Computed)
		}
		details := fmt.Sprintf("referral=%q nonce=%d aux_version=%d token=%s",
			res.ReferralID, res.Nonce, res.AuxVersion, res.TokenAddress)
		if res.DerivedTo != r.ToAddress {
			details += " token_account=" + res.DerivedTo
		}
		fmt.Fprintf(w, "           %s\n", render(w, labelStyle, details))
	}

	summary := fmt.Sprintf("%d/%d addresses verified", len(r.Results)-len(r.Mismatches()), len(r.Results))
	if r.OK() {
		fmt.Fprintf(w, "\n%s\n", render(w, okStyle, summary))
	} else {
		fmt.Fprintf(w, "\n%s\n", render(w, badStyle, summary))
	}
}

// ========================================
// chains
// ========================================

func newChainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List supported destination chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()

			t := newTable(w, "NAME", "LABEL", "ECOSYSTEM", "CHAIN ID", "STLBTC")
			for _, p := range chain.All() {
				token := "-"
				if tok, ok := chain.GetToken(p.Name, chain.TokenStLBTC); ok {
					token = tok.Address
				}
				t.Row(p.Name, p.Label, string(p.Ecosystem), p.ChainID.String(), token)
			}
			fmt.Fprintln(w, t.Render())
			fmt.Fprintf(w, "registry version %d\n", chain.RegistryVersion)
			return nil
		},
	}
}

// ========================================
// history
// ========================================

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var (
		filter storage.VerificationFilter
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show recorded verifications",
		Example: `  depositaddr history
  depositaddr history --chain solana --limit 5
  depositaddr history 6f1c2a9e-3d0b-4c55-9a47-1f3e2b7c8d90`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(g, storeAlways)
			if err != nil {
				return err
			}
			defer a.close()

			w := cmd.OutOrStdout()
			if len(args) == 1 {
				v, err := a.store.GetVerification(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(w, v)
				}
				writeVerification(w, v)
				return nil
			}

			list, err := a.store.ListVerifications(filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(w, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(w, "No verifications recorded.")
				return nil
			}

			t := newTable(w, "ID", "CHECKED", "NETWORK", "CHAIN", "DESTINATION", "RESULT")
			for _, v := range list {
				result := "ok"
				if !v.OK {
					result = "mismatch"
				}
				t.Row(v.ID, v.CheckedAt.Local().Format(time.DateTime), v.Network, v.Chain, v.ToAddress, result)
			}
			fmt.Fprintln(w, t.Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Chain, "chain", "", "Only show this chain")
	cmd.Flags().StringVar(&filter.ToAddress, "to", "", "Only show this destination address")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum number of verifications") //nolint:mnd
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func writeVerification(w io.Writer, v *storage.Verification) {
	result := render(w, okStyle, "ok")
	if !v.OK {
		result = render(w, badStyle, "mismatch")
	}
	writeFields(w, [][2]string{
		{"ID", v.ID},
		{"Checked", v.CheckedAt.Local().Format(time.DateTime)},
		{"Network", v.Network},
		{"Chain", v.Chain},
		{"Destination", v.ToAddress},
		{"Result", result},
	})
	fmt.Fprintln(w)

	t := newTable(w, "CLAIMED", "COMPUTED", "REFERRAL", "NONCE", "MATCH")
	for _, r := range v.Results {
		t.Row(r.Claimed, r.Computed, r.ReferralID, strconv.FormatUint(uint64(r.Nonce), 10), strconv.FormatBool(r.Match))
	}
	fmt.Fprintln(w, t.Render())
}

// ========================================
// serve
// ========================================

func newServeCmd(g *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC server",
		Long: `Run the JSON-RPC server with a WebSocket event stream at /ws and
Prometheus metrics at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(g, storeAlways)
			if err != nil {
				return err
			}
			defer a.close()

			if listen == "" {
				listen = a.cfg.RPC.Listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, overrides config")
	return cmd
}

// serve runs the RPC server until ctx is done.
func serve(ctx context.Context, a *app, listen string) error {
	srv := rpc.NewServer(a.verifier, a.store)
	if err := srv.Start(listen); err != nil {
		return err
	}

	a.log.Info("depositaddr started",
		"version", version,
		"network", a.network,
		"chains", len(chain.All()),
		"record", a.cfg.Storage.Record,
	)

	<-ctx.Done()
	a.log.Info("Shutting down...")

	if err := srv.Stop(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to stop RPC server: %w", err)
	}
	return nil
}

// ========================================
// output helpers
// ========================================

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeFields(w io.Writer, rows [][2]string) {
	width := 0
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}
	for _, r := range rows {
		label := r[0] + strings.Repeat(" ", width-len(r[0]))
		fmt.Fprintf(w, "%s  %s\n", render(w, labelStyle, label), r[1])
	}
}

func newTable(w io.Writer, headers ...string) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
	if styled(w) {
		t = t.BorderStyle(labelStyle)
	}
	return t
}
