package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/pkg/quant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	sm := NewSnapshotManager(dir)
	reg := domain.NewRegistry()
	usdt, btc := reg.Asset("USDT"), reg.Asset("BTC")

	book := domain.NewBalanceBook()
	book.Get(usdt).Credit(quant.MustParse("9800.5"), 1)
	book.Get(btc).Credit(quant.MustParse("0.01"), 2)
	book.Get(reg.Asset("ETH"))

	snap := CreateSnapshot(100, "simulated/binance", book.Snapshot(), time.Unix(1700000000, 0))
	assert.Len(t, snap.Balances, 2)
	require.NoError(t, sm.Save(snap))

	loaded, err := sm.LoadLatest()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint64(100), loaded.Seq)
	assert.Equal(t, "simulated/binance", loaded.Venue)

	amounts, err := loaded.Amounts(reg)
	require.NoError(t, err)
	assert.True(t, amounts[usdt].Equal(quant.MustParse("9800.5")))
	assert.True(t, amounts[btc].Equal(quant.MustParse("0.01")))
}

func TestSnapshot_LoadLatest_MultipleSnapshots(t *testing.T) {
	dir := t.TempDir()
	sm := NewSnapshotManager(dir)

	for _, seq := range []uint64{10, 50, 30} {
		snap := &Snapshot{Seq: seq, TsUnix: int64(seq), Balances: map[string]string{}}
		require.NoError(t, sm.Save(snap))
	}
	// Not a snapshot.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot_99_1.json.tmp"), []byte("{"), 0644))

	loaded, err := sm.LoadLatest()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint64(50), loaded.Seq)
}

func TestSnapshot_LoadLatest_Empty(t *testing.T) {
	sm := NewSnapshotManager(filepath.Join(t.TempDir(), "missing"))
	loaded, err := sm.LoadLatest()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSnapshot_Cleanup(t *testing.T) {
	dir := t.TempDir()
	sm := NewSnapshotManager(dir)

	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, sm.Save(&Snapshot{Seq: seq, TsUnix: int64(seq)}))
	}
	require.NoError(t, sm.Cleanup(2))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	loaded, err := sm.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), loaded.Seq)
}

func TestSnapshot_AmountsRejectsCorrupt(t *testing.T) {
	snap := &Snapshot{Seq: 1, Balances: map[string]string{"BTC": "one"}}
	_, err := snap.Amounts(domain.NewRegistry())
	assert.Error(t, err)
}
