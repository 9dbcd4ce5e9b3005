package archsim

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManualPortAdvanceDrivesCallback(t *testing.T) {
	p := NewManual()
	var calls int32
	require.NoError(t, p.TickInit(1, func() { atomic.AddInt32(&calls, 1) }))

	p.Advance(7)

	require.EqualValues(t, 7, p.TickGet())
	require.EqualValues(t, 7, atomic.LoadInt32(&calls))
}

func TestManualPortDoesNotAdvanceOnItsOwn(t *testing.T) {
	p := NewManual()
	require.NoError(t, p.TickInit(1, func() {}))
	require.EqualValues(t, 0, p.TickGet())
}

func TestTickInitRejectsNilCallback(t *testing.T) {
	p := NewManual()
	require.Error(t, p.TickInit(1, nil))
}

func TestPendSVTriggerSetsPending(t *testing.T) {
	p := NewManual()
	require.False(t, p.PendSVPending())
	p.PendSVTrigger()
	require.True(t, p.PendSVPending())
}

func TestCLZMatchesBitsLeadingZeros(t *testing.T) {
	cases := []struct {
		word uint32
		want uint32
	}{
		{0x80000000, 0},
		{0x1, 31},
		{0x0, 32},
		{0x00FF0000, 8},
	}
	for _, c := range cases {
		require.Equal(t, c.want, (&Port{}).CLZ(c.word))
	}
}

func TestNewStackSizing(t *testing.T) {
	p := New()
	s := p.NewStack(1024)
	require.Len(t, s, 1024)
}
