package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/depositaddr/internal/lombard"
	"github.com/klingon-exchange/depositaddr/internal/storage"
)

type failingRecorder struct{ calls int }

func (f *failingRecorder) SaveVerification(*storage.Verification) error {
	f.calls++
	return errors.New("disk full")
}

func TestRecordToStorage(t *testing.T) {
	store, err := storage.New(&storage.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	v := newVerifier(t, &fakeSource{records: []*lombard.DepositRecord{
		ethRecord(t, lombardBTC, ethUser, "lombard", 0),
		ethRecord(t, "bc1qfakeaddress", ethUser, "okx", 0),
	}})
	v.OnReport(RecordTo(store))

	report, err := v.Verify(context.Background(), "ethereum", ethUser)
	require.Error(t, err)

	saved, err := store.GetVerification(report.ID)
	require.NoError(t, err)
	require.False(t, saved.OK)
	require.Equal(t, "mainnet", saved.Network)
	require.Len(t, saved.Results, 2)
	require.True(t, saved.Results[0].Match)
	require.Equal(t, okxBTC, saved.Results[1].Computed)
	require.Equal(t, "bc1qfakeaddress", saved.Results[1].Claimed)
}

func TestRecordFailureDoesNotFailVerify(t *testing.T) {
	rec := &failingRecorder{}
	v := newVerifier(t, &fakeSource{records: []*lombard.DepositRecord{
		ethRecord(t, lombardBTC, ethUser, "lombard", 0),
	}})
	v.OnReport(RecordTo(rec))

	report, err := v.Verify(context.Background(), "ethereum", ethUser)
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Equal(t, 1, rec.calls)
}
