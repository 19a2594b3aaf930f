// Package lombard fetches deposit address metadata from the Lombard API.
package lombard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klingon-exchange/depositaddr/internal/chain"
	"github.com/klingon-exchange/depositaddr/internal/deposit"
	"github.com/klingon-exchange/depositaddr/pkg/logging"
)

// Default API endpoints.
const (
	DefaultMainnetURL = "https://mainnet.prod.lombard.finance/api/v1/address/destination/"
	DefaultSignetURL  = "https://gastald-testnet.prod.lombard.finance/api/v1/address/destination/"
)

// Common errors
var (
	ErrNoAddresses       = errors.New("No addresses returned from API")
	ErrNoActiveAddresses = errors.New("No non-deprecated addresses found")
	ErrNotFound          = errors.New("destination not found")
	ErrRateLimited       = errors.New("rate limited")
)

// APIError is returned for any non-200 response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status: %d", e.StatusCode)
}

// Config holds API endpoints per network.
type Config struct {
	MainnetURL string
	SignetURL  string
	Timeout    time.Duration
}

// DefaultConfig returns the production endpoints.
func DefaultConfig() *Config {
	return &Config{
		MainnetURL: DefaultMainnetURL,
		SignetURL:  DefaultSignetURL,
		Timeout:    30 * time.Second,
	}
}

// BaseURL returns the endpoint for a network.
func (c *Config) BaseURL(network chain.Network) (string, error) {
	switch network {
	case chain.Mainnet:
		return c.MainnetURL, nil
	case chain.Signet:
		return c.SignetURL, nil
	default:
		return "", fmt.Errorf("%w: %q", chain.ErrUnknownNetwork, network)
	}
}

// Client talks to the address-by-destination endpoint of one network.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logging.Logger
}

// NewClient creates a client for the given network.
func NewClient(cfg *Config, network chain.Network) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	base, err := cfg.BaseURL(network)
	if err != nil {
		return nil, err
	}
	if base == "" {
		return nil, fmt.Errorf("no API url configured for %s", network)
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		log:        logging.GetDefault().Component("lombard"),
	}, nil
}

// depositMetadata is the wire format of deposit_metadata.
type depositMetadata struct {
	ToAddress    string  `json:"to_address"`
	ToBlockchain string  `json:"to_blockchain"`
	Referral     string  `json:"referral"`
	Nonce        *int64  `json:"nonce,omitempty"`
	TokenAddress *string `json:"token_address,omitempty"`
	AuxVersion   *int64  `json:"aux_version,omitempty"`
}

type addressInfo struct {
	BTCAddress      string          `json:"btc_address"`
	Type            string          `json:"type"`
	DepositMetadata depositMetadata `json:"deposit_metadata"`
	CreatedAt       string          `json:"created_at"`
	Deprecated      bool            `json:"deprecated"`
}

type addressesResponse struct {
	Addresses []addressInfo `json:"addresses"`
}

// DepositRecord is one active deposit address with the metadata needed to
// recompute it.
type DepositRecord struct {
	BTCAddress   string
	Type         string
	ToAddress    string
	ToBlockchain string
	ReferralID   string
	Nonce        uint32
	AuxVersion   uint8
	TokenAddress []byte
	CreatedAt    string
}

// FetchAddressMetadata returns the non-deprecated deposit addresses the API
// holds for a destination. Missing nonce and aux version default to 0 and a
// missing token defaults to the chain's stLBTC contract.
func (c *Client) FetchAddressMetadata(ctx context.Context, params *chain.Params, toAddress string) ([]*DepositRecord, error) {
	var resp addressesResponse
	path := params.Label + "/" + url.PathEscape(toAddress)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	if len(resp.Addresses) == 0 {
		return nil, ErrNoAddresses
	}

	records := make([]*DepositRecord, 0, len(resp.Addresses))
	for i := range resp.Addresses {
		info := &resp.Addresses[i]
		if info.Deprecated {
			continue
		}
		rec, err := toRecord(params, info)
		if err != nil {
			return nil, fmt.Errorf("address %s: %w", info.BTCAddress, err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, ErrNoActiveAddresses
	}

	c.log.Debug("Fetched deposit metadata",
		"chain", params.Name,
		"to", toAddress,
		"total", len(resp.Addresses),
		"active", len(records),
	)
	return records, nil
}

func toRecord(params *chain.Params, info *addressInfo) (*DepositRecord, error) {
	md := info.DepositMetadata
	rec := &DepositRecord{
		BTCAddress:   info.BTCAddress,
		Type:         info.Type,
		ToAddress:    md.ToAddress,
		ToBlockchain: md.ToBlockchain,
		ReferralID:   md.Referral,
		CreatedAt:    info.CreatedAt,
	}

	if md.Nonce != nil {
		nonce, err := deposit.NonceFromInt64(*md.Nonce)
		if err != nil {
			return nil, err
		}
		rec.Nonce = nonce
	}
	if md.AuxVersion != nil {
		version, err := deposit.AuxVersionFromInt64(*md.AuxVersion)
		if err != nil {
			return nil, err
		}
		rec.AuxVersion = version
	}

	var err error
	if md.TokenAddress != nil {
		rec.TokenAddress, err = chain.ParseAddress(params.Ecosystem, *md.TokenAddress)
	} else {
		rec.TokenAddress, err = params.DefaultToken()
	}
	if err != nil {
		return nil, fmt.Errorf("token address: %w", err)
	}
	return rec, nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Failed to fetch address data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, &APIError{StatusCode: resp.StatusCode})
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrRateLimited, &APIError{StatusCode: resp.StatusCode})
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("Failed to fetch address data: %w", err)
	}
	return nil
}
