// Package verify recomputes the deposit addresses the Lombard API reports for
// a destination and checks them against the claimed ones.
package verify

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/klingon-exchange/depositaddr/internal/chain"
	"github.com/klingon-exchange/depositaddr/internal/deposit"
	"github.com/klingon-exchange/depositaddr/internal/lombard"
	"github.com/klingon-exchange/depositaddr/internal/solana"
	"github.com/klingon-exchange/depositaddr/pkg/logging"
)

// MetadataSource supplies the deposit records held for a destination.
// *lombard.Client satisfies it.
type MetadataSource interface {
	FetchAddressMetadata(ctx context.Context, params *chain.Params, toAddress string) ([]*lombard.DepositRecord, error)
}

// ReportHandler is called with every completed report, matching or not.
type ReportHandler func(*Report)

// Config configures a Verifier.
type Config struct {
	// Workers bounds concurrent derivations. Zero uses GOMAXPROCS.
	Workers int

	// TokenProgram is the base58 program id used to resolve Solana associated
	// token accounts. Empty selects the SPL Token program.
	TokenProgram string
}

// Verifier checks API-reported deposit addresses against local derivation.
type Verifier struct {
	service  *deposit.Service
	source   MetadataSource
	resolver *solana.Resolver
	workers  int
	log      *logging.Logger

	mu       sync.RWMutex
	handlers []ReportHandler
}

// New creates a Verifier.
func New(service *deposit.Service, source MetadataSource, cfg *Config) (*Verifier, error) {
	if service == nil {
		return nil, fmt.Errorf("%w: nil deposit service", deposit.ErrInvalidInput)
	}
	if cfg == nil {
		cfg = &Config{}
	}

	resolver, err := solana.NewResolver(cfg.TokenProgram)
	if err != nil {
		return nil, fmt.Errorf("solana resolver: %w", err)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Verifier{
		service:  service,
		source:   source,
		resolver: resolver,
		workers:  workers,
		log:      logging.GetDefault().Component("verify"),
	}, nil
}

// Service returns the underlying deposit service.
func (v *Verifier) Service() *deposit.Service {
	return v.service
}

// Resolver returns the Solana token account resolver.
func (v *Verifier) Resolver() *solana.Resolver {
	return v.resolver
}

// OnReport registers a handler for completed reports.
func (v *Verifier) OnReport(h ReportHandler) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handlers = append(v.handlers, h)
}

// Result is the outcome for one deposit address.
type Result struct {
	Computed     string `json:"computed"`
	Claimed      string `json:"claimed"`
	ReferralID   string `json:"referral_id"`
	Nonce        uint32 `json:"nonce"`
	AuxVersion   uint8  `json:"aux_version"`
	TokenAddress string `json:"token_address"`

	// DerivedTo is the destination committed to by the tweak. It differs from
	// the user's address only on Solana, where it is the token account.
	DerivedTo string `json:"derived_to"`
	Match     bool   `json:"match"`
}

// Report collects the results of one verification, in API order.
type Report struct {
	ID        string        `json:"id"`
	Network   chain.Network `json:"network"`
	Chain     string        `json:"chain"`
	ToAddress string        `json:"to_address"`
	CheckedAt time.Time     `json:"checked_at"`
	Results   []Result      `json:"results"`
}

// OK reports whether every claimed address was reproduced.
func (r *Report) OK() bool {
	for i := range r.Results {
		if !r.Results[i].Match {
			return false
		}
	}
	return len(r.Results) > 0
}

// Mismatches returns the results whose computed address differs.
func (r *Report) Mismatches() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Match {
			out = append(out, res)
		}
	}
	return out
}

// Verify fetches the deposit records for (chainName, toAddress), checks that
// they belong to that destination, and recomputes every address.
//
// A record naming another destination fails with *deposit.MismatchError and
// no report. When a computed address differs the report is returned together
// with an error wrapping deposit.ErrVerificationMismatch.
func (v *Verifier) Verify(ctx context.Context, chainName, toAddress string) (*Report, error) {
	params, ok := chain.Get(chainName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", deposit.ErrUnsupportedChain, chainName)
	}
	if v.source == nil {
		return nil, fmt.Errorf("%w: no metadata source configured", deposit.ErrInvalidInput)
	}

	to, err := chain.ParseAddress(params.Ecosystem, toAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: to address: %v", deposit.ErrInvalidInput, err)
	}

	records, err := v.source.FetchAddressMetadata(ctx, params, toAddress)
	if err != nil {
		return nil, fmt.Errorf("fetching deposit metadata: %w", err)
	}

	for _, rec := range records {
		if rec.ToBlockchain != params.Label {
			return nil, &deposit.MismatchError{Field: "to_blockchain", Expected: params.Label, Got: rec.ToBlockchain}
		}
		if !chain.SameAddress(params.Ecosystem, toAddress, rec.ToAddress) {
			return nil, &deposit.MismatchError{Field: "to_address", Expected: toAddress, Got: rec.ToAddress}
		}
	}

	results := make([]Result, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)

	for i, rec := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := v.check(params, to, rec)
			if err != nil {
				return fmt.Errorf("address %s: %w", rec.BTCAddress, err)
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		ID:        uuid.NewString(),
		Network:   v.service.Network(),
		Chain:     params.Name,
		ToAddress: toAddress,
		CheckedAt: time.Now().UTC(),
		Results:   results,
	}

	v.log.Info("Verified deposit addresses",
		"chain", params.Name,
		"to", toAddress,
		"addresses", len(results),
		"ok", report.OK(),
	)
	v.notify(report)

	if bad := report.Mismatches(); len(bad) > 0 {
		return report, fmt.Errorf("%w: %d of %d addresses, first claimed %s computed %s",
			deposit.ErrVerificationMismatch, len(bad), len(results), bad[0].Claimed, bad[0].Computed)
	}
	return report, nil
}

func (v *Verifier) check(params *chain.Params, to []byte, rec *lombard.DepositRecord) (*Result, error) {
	derivedTo, err := v.destination(params, to, rec.TokenAddress)
	if err != nil {
		return nil, err
	}

	computed, err := v.service.DeriveDepositAddress(&deposit.DeriveRequest{
		Chain:        params.Name,
		TokenAddress: rec.TokenAddress,
		ToAddress:    derivedTo,
		ReferralID:   []byte(rec.ReferralID),
		Nonce:        rec.Nonce,
		AuxVersion:   rec.AuxVersion,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Computed:     computed,
		Claimed:      rec.BTCAddress,
		ReferralID:   rec.ReferralID,
		Nonce:        rec.Nonce,
		AuxVersion:   rec.AuxVersion,
		TokenAddress: chain.FormatAddress(params.Ecosystem, rec.TokenAddress),
		DerivedTo:    chain.FormatAddress(params.Ecosystem, derivedTo),
		Match:        computed == rec.BTCAddress,
	}, nil
}

// destination returns the address bytes the tweak commits to.
func (v *Verifier) destination(params *chain.Params, to, token []byte) ([]byte, error) {
	if params.Ecosystem != chain.EcosystemSolana {
		return to, nil
	}
	ata, err := v.resolver.AssociatedTokenAddress(to, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", deposit.ErrInvalidInput, err)
	}
	return ata, nil
}

func (v *Verifier) notify(r *Report) {
	v.mu.RLock()
	handlers := v.handlers
	v.mu.RUnlock()
	for _, h := range handlers {
		h(r)
	}
}

// ComputeAddress derives an address offline. For Solana, p.ToAddress is the
// user's wallet and the token account is resolved here.
func (v *Verifier) ComputeAddress(p *deposit.ComputeParams) (*deposit.Derivation, error) {
	req, err := deposit.BuildRequest(p)
	if err != nil {
		return nil, err
	}
	params, _ := chain.Get(req.Chain)

	req.ToAddress, err = v.destination(params, req.ToAddress, req.TokenAddress)
	if err != nil {
		return nil, err
	}
	return v.service.Derive(req)
}
