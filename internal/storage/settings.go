package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSettingNotFound is returned when a setting has never been written.
var ErrSettingNotFound = errors.New("setting not found")

// GetSetting returns a stored setting.
func (s *Storage) GetSetting(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting writes or replaces a setting.
func (s *Storage) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// PinSetting stores value under key the first time it is seen and reports
// the previously stored value when it differs. It is used to notice a root
// key or chain table that changed between runs.
func (s *Storage) PinSetting(key, value string) (previous string, changed bool, err error) {
	prev, err := s.GetSetting(key)
	switch {
	case errors.Is(err, ErrSettingNotFound):
		return "", false, s.SetSetting(key, value)
	case err != nil:
		return "", false, err
	case prev == value:
		return prev, false, nil
	}
	return prev, true, s.SetSetting(key, value)
}
