package verify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/depositaddr/internal/chain"
	"github.com/klingon-exchange/depositaddr/internal/deposit"
	"github.com/klingon-exchange/depositaddr/internal/lombard"
	"github.com/klingon-exchange/depositaddr/internal/solana"
)

const (
	ethUser    = "0x0F90793a54E809bf708bd0FbCC63d311E3bb1BE1"
	ethLabel   = "DESTINATION_BLOCKCHAIN_ETHEREUM"
	solWallet  = "9Yb3kJXMMHUN9ry1w7UTFETe1zuM2pGzM66d4aBjtMCh"
	solMint    = "LomP48F7bLbKyMRHHsDVt7wuHaUQvQnVVspjcbfuAek"
	lombardBTC = "bc1q24ens7l06vt8p6qqw3zvfmyh6ky0csxa7nwhcd"
	okxBTC     = "bc1qaqaz88s7h55acxkt0jmzc4ey6gpt5pwe3e0k8y"
)

type fakeSource struct {
	records []*lombard.DepositRecord
	err     error
	calls   atomic.Int32
}

func (f *fakeSource) FetchAddressMetadata(ctx context.Context, params *chain.Params, toAddress string) ([]*lombard.DepositRecord, error) {
	f.calls.Add(1)
	return f.records, f.err
}

func newVerifier(t *testing.T, src MetadataSource) *Verifier {
	t.Helper()
	svc, err := deposit.NewService(&deposit.Config{Network: chain.Mainnet})
	require.NoError(t, err)
	v, err := New(svc, src, &Config{Workers: 2})
	require.NoError(t, err)
	return v
}

func ethRecord(t *testing.T, btc, to, referral string, nonce uint32) *lombard.DepositRecord {
	t.Helper()
	params, _ := chain.Get("ethereum")
	token, err := params.DefaultToken()
	require.NoError(t, err)
	return &lombard.DepositRecord{
		BTCAddress:   btc,
		ToAddress:    to,
		ToBlockchain: ethLabel,
		ReferralID:   referral,
		Nonce:        nonce,
		TokenAddress: token,
	}
}

func TestVerifyMatches(t *testing.T) {
	src := &fakeSource{records: []*lombard.DepositRecord{
		ethRecord(t, lombardBTC, ethUser, "lombard", 0),
		ethRecord(t, okxBTC, "0x0f90793a54e809bf708bd0fbcc63d311e3bb1be1", "okx", 0),
		ethRecord(t, "bc1qud6apcaa63nqemx3m2fju77lq27lkx7mp0cmlf", ethUser, "lombard", 1),
	}}
	v := newVerifier(t, src)

	var seen *Report
	v.OnReport(func(r *Report) { seen = r })

	report, err := v.Verify(context.Background(), "ethereum", ethUser)
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Empty(t, report.Mismatches())
	require.Same(t, report, seen)

	require.Len(t, report.Results, 3)
	require.Equal(t, lombardBTC, report.Results[0].Computed)
	require.Equal(t, okxBTC, report.Results[1].Computed)
	require.Equal(t, "okx", report.Results[1].ReferralID)
	require.Equal(t, uint32(1), report.Results[2].Nonce)
	require.Equal(t, "0x8236a87084f8B84306f72007F36F2618A5634494", report.Results[0].TokenAddress)
	require.Equal(t, chain.Mainnet, report.Network)
	require.NotEmpty(t, report.ID)
}

func TestVerifyComputedMismatch(t *testing.T) {
	src := &fakeSource{records: []*lombard.DepositRecord{
		ethRecord(t, lombardBTC, ethUser, "lombard", 0),
		ethRecord(t, "bc1qfakeaddress", ethUser, "lombard", 0),
	}}
	v := newVerifier(t, src)

	report, err := v.Verify(context.Background(), "ethereum", ethUser)
	require.ErrorIs(t, err, deposit.ErrVerificationMismatch)
	require.NotNil(t, report)
	require.False(t, report.OK())

	bad := report.Mismatches()
	require.Len(t, bad, 1)
	require.Equal(t, "bc1qfakeaddress", bad[0].Claimed)
	require.Equal(t, lombardBTC, bad[0].Computed)
	require.Contains(t, err.Error(), "bc1qfakeaddress")
	require.Contains(t, err.Error(), lombardBTC)
}

func TestVerifyDestinationMismatch(t *testing.T) {
	attacker := "0xATTACKER1234567890123456789012345678901"

	tests := []struct {
		name    string
		record  func() *lombard.DepositRecord
		wantMsg string
	}{
		{
			name: "to_address",
			record: func() *lombard.DepositRecord {
				return ethRecord(t, lombardBTC, attacker, "lombard", 0)
			},
			wantMsg: "API returned mismatched to_address: expected " + ethUser + ", got " + attacker,
		},
		{
			name: "to_blockchain",
			record: func() *lombard.DepositRecord {
				rec := ethRecord(t, lombardBTC, ethUser, "lombard", 0)
				rec.ToBlockchain = "DESTINATION_BLOCKCHAIN_BASE"
				return rec
			},
			wantMsg: "API returned mismatched to_blockchain: expected DESTINATION_BLOCKCHAIN_ETHEREUM, got DESTINATION_BLOCKCHAIN_BASE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVerifier(t, &fakeSource{records: []*lombard.DepositRecord{tt.record()}})

			called := false
			v.OnReport(func(*Report) { called = true })

			report, err := v.Verify(context.Background(), "ethereum", ethUser)
			require.Nil(t, report)
			require.EqualError(t, err, tt.wantMsg)

			var mm *deposit.MismatchError
			require.True(t, errors.As(err, &mm))
			require.Equal(t, tt.name, mm.Field)
			require.ErrorIs(t, err, deposit.ErrVerificationMismatch)
			require.False(t, called)
		})
	}
}

func TestVerifySolana(t *testing.T) {
	params, _ := chain.Get("solana")
	mint, err := params.DefaultToken()
	require.NoError(t, err)

	rec := func(to string) *lombard.DepositRecord {
		return &lombard.DepositRecord{
			BTCAddress:   "bc1qmsq30ks836vd59jr2u9p222z7vvxnltfcqmj2z",
			ToAddress:    to,
			ToBlockchain: params.Label,
			ReferralID:   "lombard",
			TokenAddress: mint,
		}
	}

	v := newVerifier(t, &fakeSource{records: []*lombard.DepositRecord{rec(solWallet)}})
	report, err := v.Verify(context.Background(), "solana", solWallet)
	require.NoError(t, err)
	require.Equal(t, "3tNwMmyxPiZsBgUTnHBEbbuAd4Y5mzSAcZBVh9oqrPTC", report.Results[0].DerivedTo)
	require.Equal(t, solMint, report.Results[0].TokenAddress)

	// Base58 comparison is case-sensitive.
	lower := "9yb3kjxmmhun9ry1w7utfete1zum2pgzm66d4abjtmch"
	v = newVerifier(t, &fakeSource{records: []*lombard.DepositRecord{rec(lower)}})
	_, err = v.Verify(context.Background(), "solana", solWallet)
	var mm *deposit.MismatchError
	require.True(t, errors.As(err, &mm))
	require.Equal(t, "to_address", mm.Field)
}

func TestVerifyInputErrors(t *testing.T) {
	src := &fakeSource{}
	v := newVerifier(t, src)

	_, err := v.Verify(context.Background(), "dogecoin", ethUser)
	require.ErrorIs(t, err, deposit.ErrUnsupportedChain)

	_, err = v.Verify(context.Background(), "ethereum", "0x1234")
	require.ErrorIs(t, err, deposit.ErrInvalidInput)
	require.Zero(t, src.calls.Load(), "source must not be queried for bad input")

	src.err = lombard.ErrNoActiveAddresses
	_, err = v.Verify(context.Background(), "ethereum", ethUser)
	require.ErrorIs(t, err, lombard.ErrNoActiveAddresses)
}

func TestVerifyDerivationFailure(t *testing.T) {
	rec := ethRecord(t, lombardBTC, ethUser, "lombard", 0)
	rec.AuxVersion = 7
	v := newVerifier(t, &fakeSource{records: []*lombard.DepositRecord{rec}})

	report, err := v.Verify(context.Background(), "ethereum", ethUser)
	require.Nil(t, report)
	require.ErrorIs(t, err, deposit.ErrInvalidInput)
	require.Contains(t, err.Error(), lombardBTC)
}

func TestVerifyCanceledContext(t *testing.T) {
	v := newVerifier(t, &fakeSource{records: []*lombard.DepositRecord{ethRecord(t, lombardBTC, ethUser, "lombard", 0)}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Verify(ctx, "ethereum", ethUser)
	require.ErrorIs(t, err, context.Canceled)
}

func TestComputeAddress(t *testing.T) {
	v := newVerifier(t, nil)

	d, err := v.ComputeAddress(&deposit.ComputeParams{Chain: "ethereum", ToAddress: ethUser, ReferralID: "lombard"})
	require.NoError(t, err)
	require.Equal(t, lombardBTC, d.Address)

	d, err = v.ComputeAddress(&deposit.ComputeParams{Chain: "solana", ToAddress: solWallet, ReferralID: "lombard"})
	require.NoError(t, err)
	require.Equal(t, "bc1qmsq30ks836vd59jr2u9p222z7vvxnltfcqmj2z", d.Address)

	// The raw wallet is not what the tweak commits to.
	raw, err := v.Service().ComputeAddress(&deposit.ComputeParams{Chain: "solana", ToAddress: solWallet, ReferralID: "lombard"})
	require.NoError(t, err)
	require.Equal(t, "bc1qm0ucme442kfc2vxl773yu8vvjzt8yrquhn03k5", raw)

	_, err = v.ComputeAddress(&deposit.ComputeParams{Chain: "nowhere", ToAddress: ethUser})
	require.ErrorIs(t, err, deposit.ErrUnsupportedChain)
}

func TestVerifyWithoutSource(t *testing.T) {
	v := newVerifier(t, nil)
	_, err := v.Verify(context.Background(), "ethereum", ethUser)
	require.ErrorIs(t, err, deposit.ErrInvalidInput)
}

func TestNewRejectsBadTokenProgram(t *testing.T) {
	svc, err := deposit.NewService(nil)
	require.NoError(t, err)

	_, err = New(svc, nil, &Config{TokenProgram: "short"})
	require.Error(t, err)

	v, err := New(svc, nil, &Config{TokenProgram: solana.Token2022ProgramID})
	require.NoError(t, err)
	require.Equal(t, solana.Token2022ProgramID, v.resolver.TokenProgram())
}
