package deposit

import (
	"errors"
	"fmt"

	"github.com/klingon-exchange/depositaddr/internal/chain"
	"github.com/klingon-exchange/depositaddr/pkg/helpers"
	"github.com/klingon-exchange/depositaddr/pkg/logging"
)

// Config configures a Service.
type Config struct {
	Network chain.Network

	// RootPublicKey overrides the network's built-in root key when set.
	RootPublicKey []byte
}

// Service derives deposit addresses for one network and root key.
type Service struct {
	network *chain.NetworkParams
	tweaker *Tweaker
	log     *logging.Logger
}

// NewService validates the network and root key. An unknown network or a
// malformed key is a configuration error.
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = &Config{Network: chain.Mainnet}
	}

	network, err := chain.GetNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}

	rootKey := cfg.RootPublicKey
	if len(rootKey) == 0 {
		rootKey, err = helpers.HexToBytes(network.RootPublicKey)
		if err != nil {
			return nil, fmt.Errorf("bad built-in root key for %s: %w", network.Network, err)
		}
	}

	tweaker, err := NewTweaker(rootKey)
	if err != nil {
		return nil, fmt.Errorf("bad public deposit key: %w", err)
	}

	return &Service{
		network: network,
		tweaker: tweaker,
		log:     logging.GetDefault().Component("deposit"),
	}, nil
}

// Network returns the Bitcoin network addresses are encoded for.
func (s *Service) Network() chain.Network {
	return s.network.Network
}

// RootPublicKey returns the compressed root key.
func (s *Service) RootPublicKey() []byte {
	return s.tweaker.PublicKey()
}

// DeriveRequest holds the byte-exact inputs of a derivation. For Solana the
// ToAddress is the associated token account, not the wallet.
type DeriveRequest struct {
	Chain        string
	TokenAddress []byte
	ToAddress    []byte
	ReferralID   []byte
	Nonce        uint32
	AuxVersion   uint8
}

// Derivation is the result of a derivation with its intermediate values.
type Derivation struct {
	Address   string
	AuxData   AuxData
	Tweak     Tweak
	PublicKey []byte // tweaked, compressed
}

// Derive runs aux data, tweak, key tweak and segwit encoding in order and
// stops at the first failure.
func (s *Service) Derive(req *DeriveRequest) (*Derivation, error) {
	params, ok := chain.Get(req.Chain)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChain, req.Chain)
	}

	aux, err := ComputeAuxData(req.Nonce, req.ReferralID, req.AuxVersion)
	if err != nil {
		return nil, fmt.Errorf("computing aux data for nonce=%d, referral_id=%x: %w", req.Nonce, req.ReferralID, err)
	}

	tweak, err := ComputeTweak(params.Ecosystem, params.ChainID, req.ToAddress, req.TokenAddress, aux)
	if err != nil {
		return nil, fmt.Errorf("computing tweak for %s: %w", params.Name, err)
	}

	segwit, err := s.tweaker.DeriveSegwit(tweak[:], s.network.ChainParams)
	if err != nil {
		return nil, fmt.Errorf("deriving segwit address: %w", err)
	}

	s.log.Debug("Derived deposit address",
		"chain", params.Name,
		"network", s.network.Network,
		"nonce", req.Nonce,
		"address", segwit.Address,
	)

	return &Derivation{
		Address:   segwit.Address,
		AuxData:   aux,
		Tweak:     tweak,
		PublicKey: segwit.PublicKey,
	}, nil
}

// DeriveDepositAddress returns only the address of Derive.
func (s *Service) DeriveDepositAddress(req *DeriveRequest) (string, error) {
	d, err := s.Derive(req)
	if err != nil {
		return "", err
	}
	return d.Address, nil
}

// DeriveDepositAddress derives an address without keeping a Service around.
func DeriveDepositAddress(rootPublicKey []byte, network chain.Network, req *DeriveRequest) (string, error) {
	svc, err := NewService(&Config{Network: network, RootPublicKey: rootPublicKey})
	if err != nil {
		return "", err
	}
	return svc.DeriveDepositAddress(req)
}

// ComputeParams are the textual inputs of an offline derivation.
type ComputeParams struct {
	Chain        string
	ToAddress    string // hex for EVM/Sui, base58 token account for Solana
	TokenAddress string // empty selects the chain's stLBTC contract
	ReferralID   string
	Nonce        uint32
	AuxVersion   uint8
}

// ComputeAddress parses textual addresses and derives the deposit address.
func (s *Service) ComputeAddress(p *ComputeParams) (string, error) {
	req, err := BuildRequest(p)
	if err != nil {
		return "", err
	}
	return s.DeriveDepositAddress(req)
}

// BuildRequest converts ComputeParams into a DeriveRequest.
func BuildRequest(p *ComputeParams) (*DeriveRequest, error) {
	params, ok := chain.Get(p.Chain)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChain, p.Chain)
	}

	to, err := chain.ParseAddress(params.Ecosystem, p.ToAddress)
	if err != nil {
		return nil, addressError("ToAddress", err)
	}

	var token []byte
	if p.TokenAddress == "" {
		token, err = params.DefaultToken()
	} else {
		token, err = chain.ParseAddress(params.Ecosystem, p.TokenAddress)
	}
	if err != nil {
		return nil, addressError("TokenAddress", err)
	}

	return &DeriveRequest{
		Chain:        params.Name,
		TokenAddress: token,
		ToAddress:    to,
		ReferralID:   []byte(p.ReferralID),
		Nonce:        p.Nonce,
		AuxVersion:   p.AuxVersion,
	}, nil
}

func addressError(field string, err error) error {
	if errors.Is(err, chain.ErrAddressLength) {
		return fmt.Errorf("%w: %s: %v", ErrInvalidAddressLength, field, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrInvalidInput, field, err)
}
