package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/depositaddr/internal/chain"
	"github.com/klingon-exchange/depositaddr/internal/deposit"
	"github.com/klingon-exchange/depositaddr/internal/lombard"
	"github.com/klingon-exchange/depositaddr/internal/storage"
	"github.com/klingon-exchange/depositaddr/internal/verify"
	"github.com/klingon-exchange/depositaddr/pkg/helpers"
)

// Version of the server
const Version = "0.1.0-dev"

func parseParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return &Error{Code: InvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &Error{Code: InvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

// invalidParams maps input errors onto InvalidParams and keeps everything
// else as an internal error.
func invalidParams(err error) error {
	switch {
	case errors.Is(err, deposit.ErrInvalidInput),
		errors.Is(err, deposit.ErrInvalidAddressLength),
		errors.Is(err, deposit.ErrUnsupportedChain):
		return &Error{Code: InvalidParams, Message: err.Error()}
	}
	return err
}

// ========================================
// Node handlers
// ========================================

// NodeInfoResult is the response for node_info.
type NodeInfoResult struct {
	Version         string `json:"version"`
	Network         string `json:"network"`
	RootPublicKey   string `json:"root_public_key"`
	RegistryVersion int    `json:"registry_version"`
	Uptime          string `json:"uptime"`
	WSClients       int    `json:"ws_clients"`
	History         bool   `json:"history"`
}

func (s *Server) nodeInfo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	svc := s.verifier.Service()
	return &NodeInfoResult{
		Version:         Version,
		Network:         string(svc.Network()),
		RootPublicKey:   helpers.BytesToHex(svc.RootPublicKey()),
		RegistryVersion: chain.RegistryVersion,
		Uptime:          time.Since(s.started).Round(time.Second).String(),
		WSClients:       s.events.Subscribers(),
		History:         s.store != nil,
	}, nil
}

// ========================================
// Chain handlers
// ========================================

// ChainInfo describes a destination chain.
type ChainInfo struct {
	Name          string `json:"name"`
	DisplayName   string `json:"display_name"`
	Label         string `json:"label"`
	Ecosystem     string `json:"ecosystem"`
	ChainID       string `json:"chain_id"`
	AddressLength int    `json:"address_length"`
	Encoding      string `json:"encoding"`
	DefaultToken  string `json:"default_token,omitempty"`
}

// ChainsListResult is the response for chains_list.
type ChainsListResult struct {
	RegistryVersion int          `json:"registry_version"`
	Chains          []*ChainInfo `json:"chains"`
}

func (s *Server) chainsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	result := &ChainsListResult{RegistryVersion: chain.RegistryVersion}
	for _, p := range chain.All() {
		info := &ChainInfo{
			Name:          p.Name,
			DisplayName:   p.DisplayName,
			Label:         p.Label,
			Ecosystem:     string(p.Ecosystem),
			ChainID:       p.ChainID.String(),
			AddressLength: p.Ecosystem.AddressLength(),
			Encoding:      string(p.Ecosystem.Encoding()),
		}
		if tok, ok := chain.GetToken(p.Name, chain.TokenStLBTC); ok {
			info.DefaultToken = tok.Address
		}
		result.Chains = append(result.Chains, info)
	}
	return result, nil
}

// ========================================
// Deposit handlers
// ========================================

// DeriveParams is the request for deposit_deriveAddress.
type DeriveParams struct {
	Chain        string `json:"chain"`
	ToAddress    string `json:"to_address"`
	TokenAddress string `json:"token_address,omitempty"`
	ReferralID   string `json:"referral_id"`
	Nonce        int64  `json:"nonce"`
	AuxVersion   int64  `json:"aux_version"`
}

// DeriveResult is the response for deposit_deriveAddress.
type DeriveResult struct {
	Address   string `json:"address"`
	Chain     string `json:"chain"`
	Network   string `json:"network"`
	AuxData   string `json:"aux_data"`
	Tweak     string `json:"tweak"`
	PublicKey string `json:"public_key"`
}

func (s *Server) depositDeriveAddress(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p DeriveParams
	if err := parseParams(params, &p); err != nil {
		return nil, err
	}

	nonce, err := deposit.NonceFromInt64(p.Nonce)
	if err != nil {
		return nil, invalidParams(err)
	}
	version, err := deposit.AuxVersionFromInt64(p.AuxVersion)
	if err != nil {
		return nil, invalidParams(err)
	}

	d, err := s.verifier.ComputeAddress(&deposit.ComputeParams{
		Chain:        p.Chain,
		ToAddress:    p.ToAddress,
		TokenAddress: p.TokenAddress,
		ReferralID:   p.ReferralID,
		Nonce:        nonce,
		AuxVersion:   version,
	})
	if err != nil {
		return nil, invalidParams(err)
	}

	chainParams, _ := chain.Get(p.Chain)
	s.metrics.observeDerivation(chainParams.Name)

	result := &DeriveResult{
		Address:   d.Address,
		Chain:     chainParams.Name,
		Network:   string(s.verifier.Service().Network()),
		AuxData:   helpers.BytesToHex(d.AuxData[:]),
		Tweak:     helpers.BytesToHex(d.Tweak[:]),
		PublicKey: helpers.BytesToHex(d.PublicKey),
	}
	s.events.Publish(EventAddressDerived, result)
	return result, nil
}

// VerifyParams is the request for deposit_verify.
type VerifyParams struct {
	Chain     string `json:"chain"`
	ToAddress string `json:"to_address"`
}

// VerificationFailure is the payload of verification_failed events.
type VerificationFailure struct {
	Chain     string         `json:"chain"`
	ToAddress string         `json:"to_address"`
	Error     string         `json:"error"`
	Report    *verify.Report `json:"report,omitempty"`
}

func (s *Server) depositVerify(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p VerifyParams
	if err := parseParams(params, &p); err != nil {
		return nil, err
	}

	report, err := s.verifier.Verify(ctx, p.Chain, p.ToAddress)
	if err == nil {
		s.metrics.observeVerification(report.Chain, "ok")
		s.events.Publish(EventVerificationCompleted, report)
		return report, nil
	}

	chainName := p.Chain
	if params, ok := chain.Get(p.Chain); ok {
		chainName = params.Name
	}

	s.log.Warn("Verification failed", "chain", chainName, "to", p.ToAddress, "error", err)
	s.events.Publish(EventVerificationFailed, &VerificationFailure{
		Chain:     chainName,
		ToAddress: p.ToAddress,
		Error:     err.Error(),
		Report:    report,
	})

	switch {
	case errors.Is(err, deposit.ErrVerificationMismatch):
		s.metrics.observeVerification(chainName, "mismatch")
		rpcErr := &Error{Code: VerificationMismatch, Message: err.Error()}
		if report != nil {
			rpcErr.Data = report
		}
		return nil, rpcErr
	case errors.Is(err, deposit.ErrInvalidInput), errors.Is(err, deposit.ErrUnsupportedChain):
		s.metrics.observeVerification(chainName, "invalid")
		return nil, invalidParams(err)
	case isUpstream(err):
		s.metrics.observeVerification(chainName, "upstream")
		return nil, &Error{Code: UpstreamError, Message: err.Error()}
	}
	s.metrics.observeVerification(chainName, "error")
	return nil, err
}

func isUpstream(err error) bool {
	var apiErr *lombard.APIError
	return errors.As(err, &apiErr) ||
		errors.Is(err, lombard.ErrNoAddresses) ||
		errors.Is(err, lombard.ErrNoActiveAddresses) ||
		errors.Is(err, lombard.ErrNotFound) ||
		errors.Is(err, lombard.ErrRateLimited)
}

// ========================================
// History handlers
// ========================================

// ListVerificationsParams is the request for verifications_list.
type ListVerificationsParams struct {
	Chain     string `json:"chain,omitempty"`
	ToAddress string `json:"to_address,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// ListVerificationsResult is the response for verifications_list.
type ListVerificationsResult struct {
	Verifications []*storage.Verification `json:"verifications"`
	Count         int                     `json:"count"`
}

func (s *Server) verificationsList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.store == nil {
		return nil, &Error{Code: HistoryDisabled, Message: "verification history is disabled"}
	}

	var p ListVerificationsParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &Error{Code: InvalidParams, Message: "invalid params: " + err.Error()}
		}
	}
	if p.Limit <= 0 || p.Limit > 500 {
		p.Limit = 50
	}
	if p.Chain != "" {
		params, ok := chain.Get(p.Chain)
		if !ok {
			return nil, &Error{Code: InvalidParams, Message: fmt.Sprintf("unknown chain %q", p.Chain)}
		}
		p.Chain = params.Name
	}

	list, err := s.store.ListVerifications(storage.VerificationFilter{
		Chain:     p.Chain,
		ToAddress: p.ToAddress,
		Limit:     p.Limit,
	})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*storage.Verification{}
	}
	return &ListVerificationsResult{Verifications: list, Count: len(list)}, nil
}

// GetVerificationParams is the request for verifications_get.
type GetVerificationParams struct {
	ID string `json:"id"`
}

func (s *Server) verificationsGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.store == nil {
		return nil, &Error{Code: HistoryDisabled, Message: "verification history is disabled"}
	}

	var p GetVerificationParams
	if err := parseParams(params, &p); err != nil {
		return nil, err
	}

	v, err := s.store.GetVerification(p.ID)
	if errors.Is(err, storage.ErrVerificationNotFound) {
		return nil, &Error{Code: NotFound, Message: err.Error()}
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
