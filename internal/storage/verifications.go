package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Verification errors
var (
	ErrVerificationNotFound = errors.New("verification not found")
)

// Verification is a stored verification run.
type Verification struct {
	ID        string               `json:"id"`
	Network   string               `json:"network"`
	Chain     string               `json:"chain"`
	ToAddress string               `json:"to_address"`
	OK        bool                 `json:"ok"`
	CheckedAt time.Time            `json:"checked_at"`
	Results   []VerificationResult `json:"results,omitempty"`
}

// VerificationResult is one checked deposit address.
type VerificationResult struct {
	Claimed      string `json:"claimed"`
	Computed     string `json:"computed"`
	ReferralID   string `json:"referral_id"`
	Nonce        uint32 `json:"nonce"`
	AuxVersion   uint8  `json:"aux_version"`
	TokenAddress string `json:"token_address"`
	DerivedTo    string `json:"derived_to"`
	Match        bool   `json:"match"`
}

// VerificationFilter narrows ListVerifications.
type VerificationFilter struct {
	Chain     string
	ToAddress string
	Limit     int
}

// SaveVerification stores a run and its results in one transaction.
func (s *Storage) SaveVerification(v *Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO verifications (id, network, chain, to_address, ok, address_count, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.Network, v.Chain, v.ToAddress, boolToInt(v.OK), len(v.Results), v.CheckedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert verification: %w", err)
	}

	for i, r := range v.Results {
		_, err = tx.Exec(`
			INSERT INTO verification_results (
				verification_id, position, claimed, computed,
				referral_id, nonce, aux_version, token_address, derived_to, matched
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, v.ID, i, r.Claimed, r.Computed,
			r.ReferralID, r.Nonce, r.AuxVersion, r.TokenAddress, r.DerivedTo, boolToInt(r.Match))
		if err != nil {
			return fmt.Errorf("failed to insert verification result: %w", err)
		}
	}

	return tx.Commit()
}

// GetVerification returns a run with its results.
func (s *Storage) GetVerification(id string) (*Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, network, chain, to_address, ok, checked_at
		FROM verifications WHERE id = ?
	`, id)

	v, err := scanVerification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVerificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get verification: %w", err)
	}

	v.Results, err = s.loadResults(v.ID)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListVerifications returns runs newest first, without their results.
func (s *Storage) ListVerifications(filter VerificationFilter) ([]*Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, network, chain, to_address, ok, checked_at
		FROM verifications WHERE 1=1
	`
	args := []interface{}{}

	if filter.Chain != "" {
		query += " AND chain = ?"
		args = append(args, filter.Chain)
	}
	if filter.ToAddress != "" {
		query += " AND to_address = ?"
		args = append(args, filter.ToAddress)
	}

	query += " ORDER BY checked_at DESC, rowid DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list verifications: %w", err)
	}
	defer rows.Close()

	var out []*Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountVerifications returns the number of stored runs.
func (s *Storage) CountVerifications() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM verifications").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count verifications: %w", err)
	}
	return n, nil
}

func (s *Storage) loadResults(id string) ([]VerificationResult, error) {
	rows, err := s.db.Query(`
		SELECT claimed, computed, referral_id, nonce, aux_version, token_address, derived_to, matched
		FROM verification_results WHERE verification_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}
	defer rows.Close()

	var out []VerificationResult
	for rows.Next() {
		var r VerificationResult
		var referral, token, derivedTo sql.NullString
		var match int
		if err := rows.Scan(&r.Claimed, &r.Computed, &referral, &r.Nonce, &r.AuxVersion, &token, &derivedTo, &match); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.ReferralID = referral.String
		r.TokenAddress = token.String
		r.DerivedTo = derivedTo.String
		r.Match = match == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanVerification(row scanner) (*Verification, error) {
	var v Verification
	var ok int
	var checkedAt int64
	if err := row.Scan(&v.ID, &v.Network, &v.Chain, &v.ToAddress, &ok, &checkedAt); err != nil {
		return nil, err
	}
	v.OK = ok == 1
	v.CheckedAt = time.Unix(checkedAt, 0).UTC()
	return &v, nil
}
