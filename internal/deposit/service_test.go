package deposit

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck
	"pgregory.net/rapid"

	"github.com/klingon-exchange/depositaddr/internal/chain"
)

func TestKnownVectors(t *testing.T) {
	svc := newMainnet(t)

	tests := []struct {
		name string
		req  *DeriveRequest
		want string
	}{
		{"lombard referral", ethRequest(t, "lombard"), "bc1q24ens7l06vt8p6qqw3zvfmyh6ky0csxa7nwhcd"},
		{"okx referral", ethRequest(t, "okx"), "bc1qaqaz88s7h55acxkt0jmzc4ey6gpt5pwe3e0k8y"},
		{"empty referral", ethRequest(t, ""), "bc1qq9kcf88mvfjmp3cupmxpsw2gpcj6knzwx3tpzs"},
		{"max referral", ethRequest(t, string(make256('a'))), "bc1qankxy2733k3mvvq7yhymjeg4988sj6mdhzlfds"},
		{"nonce 1", func() *DeriveRequest {
			r := ethRequest(t, "lombard")
			r.Nonce = 1
			return r
		}(), "bc1qud6apcaa63nqemx3m2fju77lq27lkx7mp0cmlf"},
		{"aux version 1", func() *DeriveRequest {
			r := ethRequest(t, "lombard")
			r.AuxVersion = AuxVersion1
			return r
		}(), "bc1qtvmgdtrdalh2dmlfqdpd99c6y7w28tchx482ck"},
		{"base", &DeriveRequest{
			Chain:        "base",
			TokenAddress: mustHex(t, "ecAc9C5F704e954931349Da37F60E39f515c11c1"),
			ToAddress:    mustHex(t, userAddress),
			ReferralID:   []byte("lombard"),
		}, "bc1q28a6cvm8t5pszz3srvc9qxx7wluzkfwj5940yv"},
		{"katana LBTC", &DeriveRequest{
			Chain:        "katana",
			TokenAddress: mustHex(t, "B0F70C0bD6FD87dbEb7C10dC692a2a6106817072"),
			ToAddress:    mustHex(t, userAddress),
			ReferralID:   []byte("lombard"),
		}, "bc1qx5jr3wadnv7nr8v9cv3xc3sadntxtpa0kph5k9"},
		{"sui", &DeriveRequest{
			Chain:        "sui",
			TokenAddress: mustHex(t, "3e8e9423d80e1774a7ca128fccd8bf5f1f7753be658c5e645929037f7c819040"),
			ToAddress:    mustHex(t, "a51d5c52371626bb6894ce9b599c935f8dea92ca34668f2da7148df2458640b8"),
			ReferralID:   []byte("lombard"),
		}, "bc1qzqy9pxzqpksqrcgwh4mfklhzx3fj76dfend937"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.DeriveDepositAddress(tt.req)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func make256(c byte) []byte {
	b := make([]byte, MaxReferralIDSize)
	for i := range b {
		b[i] = c
	}
	return b
}

func TestSignetVector(t *testing.T) {
	svc, err := NewService(&Config{Network: chain.Signet})
	require.NoError(t, err)
	require.Equal(t, chain.Signet, svc.Network())

	got, err := svc.DeriveDepositAddress(ethRequest(t, "lombard"))
	require.NoError(t, err)
	require.Equal(t, "tb1qsxq32edyggg8rgtszwj4aze52yf2e955tuhwyk", got)
}

func TestDeriveIntermediates(t *testing.T) {
	d, err := newMainnet(t).Derive(ethRequest(t, "lombard"))
	require.NoError(t, err)
	require.Equal(t, "78593b74ee4f0cbef226b50d76aae2c5ffd501c5feb0ac5fc8b575e053b163bc", hex.EncodeToString(d.AuxData[:]))
	require.Equal(t, "442d305a36aff550b9c08082ae5f9fe85ade14b1e2a568c4b0cfa4aa33f34c49", hex.EncodeToString(d.Tweak[:]))
	require.Equal(t, "028ca34b3e22cf3bc56b4e3ccaf4eeea91c92cdda294121b19843fd69feaec9f53", hex.EncodeToString(d.PublicKey))
}

func TestAddressCommitsToHash160(t *testing.T) {
	d, err := newMainnet(t).Derive(ethRequest(t, "lombard"))
	require.NoError(t, err)

	sum := sha256.Sum256(d.PublicKey)
	r := ripemd160.New()
	r.Write(sum[:])
	want := r.Sum(nil)

	addr, err := btcutil.DecodeAddress(d.Address, &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.Equal(t, want, addr.ScriptAddress())
}

func TestPackageLevelDerive(t *testing.T) {
	got, err := DeriveDepositAddress(mustHex(t, mainnetRootKey), chain.Mainnet, ethRequest(t, "lombard"))
	require.NoError(t, err)
	require.Equal(t, "bc1q24ens7l06vt8p6qqw3zvfmyh6ky0csxa7nwhcd", got)

	_, err = DeriveDepositAddress(mustHex(t, mainnetRootKey), chain.Network("regtest"), ethRequest(t, "lombard"))
	require.ErrorIs(t, err, chain.ErrUnknownNetwork)
}

func TestNewServiceErrors(t *testing.T) {
	_, err := NewService(&Config{Network: "regtest"})
	require.ErrorIs(t, err, chain.ErrUnknownNetwork)

	_, err = NewService(&Config{Network: chain.Mainnet, RootPublicKey: []byte{0x02, 0x01}})
	require.ErrorIs(t, err, ErrInvalidPublicKey)

	svc, err := NewService(nil)
	require.NoError(t, err)
	require.Equal(t, mainnetRootKey, hex.EncodeToString(svc.RootPublicKey()))
}

func TestDeriveErrorsPropagate(t *testing.T) {
	svc := newMainnet(t)

	req := ethRequest(t, "lombard")
	req.Chain = "dogecoin"
	_, err := svc.DeriveDepositAddress(req)
	require.ErrorIs(t, err, ErrUnsupportedChain)

	req = ethRequest(t, string(make([]byte, MaxReferralIDSize+1)))
	_, err = svc.DeriveDepositAddress(req)
	require.ErrorIs(t, err, ErrInvalidInput)

	req = ethRequest(t, "lombard")
	req.AuxVersion = 2
	_, err = svc.DeriveDepositAddress(req)
	require.ErrorIs(t, err, ErrInvalidInput)

	req = ethRequest(t, "lombard")
	req.ToAddress = make([]byte, 32)
	_, err = svc.DeriveDepositAddress(req)
	require.ErrorIs(t, err, ErrInvalidAddressLength)
	require.Contains(t, err.Error(), "Bad ToAddress (got 32 bytes, expected 20)")
}

func TestComputeAddress(t *testing.T) {
	svc := newMainnet(t)

	withPrefix, err := svc.ComputeAddress(&ComputeParams{
		Chain:        "ethereum",
		ToAddress:    "0x0F90793a54E809bf708bd0FbCC63d311E3bb1BE1",
		TokenAddress: "0x8236a87084f8B84306f72007F36F2618A5634494",
		ReferralID:   "lombard",
	})
	require.NoError(t, err)
	require.Equal(t, "bc1q24ens7l06vt8p6qqw3zvfmyh6ky0csxa7nwhcd", withPrefix)

	withoutPrefix, err := svc.ComputeAddress(&ComputeParams{
		Chain:        "ethereum",
		ToAddress:    "0F90793a54E809bf708bd0FbCC63d311E3bb1BE1",
		TokenAddress: "8236a87084f8B84306f72007F36F2618A5634494",
		ReferralID:   "lombard",
	})
	require.NoError(t, err)
	require.Equal(t, withPrefix, withoutPrefix)

	// An empty token selects the chain's stLBTC contract.
	defaulted, err := svc.ComputeAddress(&ComputeParams{
		Chain:      "ethereum",
		ToAddress:  "0x0F90793a54E809bf708bd0FbCC63d311E3bb1BE1",
		ReferralID: "lombard",
	})
	require.NoError(t, err)
	require.Equal(t, withPrefix, defaulted)

	okx, err := svc.ComputeAddress(&ComputeParams{
		Chain:      "ethereum",
		ToAddress:  "0x0F90793a54E809bf708bd0FbCC63d311E3bb1BE1",
		ReferralID: "okx",
	})
	require.NoError(t, err)
	require.Equal(t, "bc1qaqaz88s7h55acxkt0jmzc4ey6gpt5pwe3e0k8y", okx)
}

func TestComputeAddressErrors(t *testing.T) {
	svc := newMainnet(t)

	_, err := svc.ComputeAddress(&ComputeParams{Chain: "starknet", ToAddress: "0x1"})
	require.ErrorIs(t, err, ErrUnsupportedChain)

	_, err = svc.ComputeAddress(&ComputeParams{Chain: "ethereum", ToAddress: "0x0F90793a54E809bf708bd0FbCC63d311E3bb1B"})
	require.ErrorIs(t, err, ErrInvalidAddressLength)

	_, err = svc.ComputeAddress(&ComputeParams{Chain: "ethereum", ToAddress: "not-an-address"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.ComputeAddress(&ComputeParams{Chain: "solana", ToAddress: "0OIl"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestConcurrentDerivation(t *testing.T) {
	svc := newMainnet(t)
	req := ethRequest(t, "lombard")

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr, err := svc.DeriveDepositAddress(req)
			if err == nil {
				results[i] = addr
			}
		}(i)
	}
	wg.Wait()

	for _, addr := range results {
		require.Equal(t, "bc1q24ens7l06vt8p6qqw3zvfmyh6ky0csxa7nwhcd", addr)
	}
}

func genRequest(t *rapid.T) *DeriveRequest {
	return &DeriveRequest{
		Chain:        "ethereum",
		TokenAddress: rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(t, "token"),
		ToAddress:    rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(t, "to"),
		ReferralID:   rapid.SliceOfN(rapid.Byte(), 0, MaxReferralIDSize).Draw(t, "referral"),
		Nonce:        rapid.Uint32().Draw(t, "nonce"),
		AuxVersion:   rapid.SampledFrom([]uint8{AuxVersion0, AuxVersion1}).Draw(t, "version"),
	}
}

func TestPropertyDeterministic(t *testing.T) {
	svc := newMainnet(t)

	rapid.Check(t, func(t *rapid.T) {
		req := genRequest(t)

		a, err := svc.DeriveDepositAddress(req)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		b, err := svc.DeriveDepositAddress(req)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		if a != b {
			t.Fatalf("non-deterministic: %s != %s", a, b)
		}
	})
}

func TestPropertySensitive(t *testing.T) {
	svc := newMainnet(t)

	rapid.Check(t, func(t *rapid.T) {
		req := genRequest(t)
		base, err := svc.DeriveDepositAddress(req)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}

		changed := *req
		switch rapid.IntRange(0, 4).Draw(t, "field") {
		case 0:
			changed.Nonce = req.Nonce + 1
		case 1:
			changed.ReferralID = append([]byte{}, req.ReferralID...)
			if len(changed.ReferralID) == 0 {
				changed.ReferralID = []byte{0}
			} else {
				changed.ReferralID[0] ^= 0x01
			}
		case 2:
			changed.ToAddress = append([]byte{}, req.ToAddress...)
			changed.ToAddress[19] ^= 0x01
		case 3:
			changed.TokenAddress = append([]byte{}, req.TokenAddress...)
			changed.TokenAddress[0] ^= 0x80
		case 4:
			changed.Chain = "bsc"
		}

		other, err := svc.DeriveDepositAddress(&changed)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		if base == other {
			t.Fatalf("address unchanged after modifying input: %s", base)
		}
	})
}
