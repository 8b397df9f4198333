package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/sisco70/tabacchi/internal/catalog"
)

func TestRegistryKeepsOneSessionPerOrder(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	open := func(context.Context) (*Session, error) {
		calls++
		return NewSession(7, nil, nil, nil), nil
	}
	first, created, err := reg.Open(context.Background(), 7, open)
	require.NoError(t, err)
	require.True(t, created)
	second, created, err := reg.Open(context.Background(), 7, open)
	require.NoError(t, err)
	require.False(t, created)
	require.Same(t, first, second)
	require.Equal(t, 1, calls)

	reg.Remove(7)
	_, ok := reg.Get(7)
	require.False(t, ok)

	boom := errors.New("boom")
	_, _, err = reg.Open(context.Background(), 8, func(context.Context) (*Session, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	_, ok = reg.Get(8)
	require.False(t, ok)
}

func TestScannerAppliesLoadsAndQueuesDecisions(t *testing.T) {
	articles := []catalog.Article{{ID: "N", Description: "Extra", Barcode: "800N", UnitWeight: 1, PricePerKg: 10}}
	live := NewLive(NewSession(1, []Line{line("X", "800X", "2", "0", "1", "10")}, nil, articles))

	var (
		mu      sync.Mutex
		effects []Effect
	)
	scanner := NewScanner(live, func(e Effect, _ error) {
		mu.Lock()
		effects = append(effects, e)
		mu.Unlock()
	}, nil)

	codes := make(chan string, 5)
	for _, c := range []string{"800X", "800X", "800X", "800N", "bad"} {
		codes <- c
	}
	close(codes)
	require.NoError(t, scanner.Run(context.Background(), codes))

	require.Len(t, effects, 5)
	require.Equal(t, EffectLoad, effects[0].Kind)
	require.Equal(t, EffectLoad, effects[1].Kind)
	require.Equal(t, EffectOverDelivery, effects[2].Kind)
	require.Equal(t, EffectAddArticle, effects[3].Kind)
	require.Equal(t, EffectUnknownCode, effects[4].Kind)

	pending := live.Pending()
	require.Len(t, pending, 2)

	_ = live.Do(func(s *Session) error {
		l, _ := s.Line("X")
		require.True(t, l.Loaded.Equal(kg("2")))
		require.True(t, l.Verified())
		return nil
	})

	_, err := live.Resolve("800N", true)
	require.NoError(t, err)
	_, err = live.Resolve("800X", false)
	require.NoError(t, err)
	_, err = live.Resolve("800X", true)
	require.ErrorIs(t, err, ErrNoPendingScan)
	require.Empty(t, live.Pending())

	_ = live.Do(func(s *Session) error {
		_, ok := s.Line("N")
		require.True(t, ok)
		l, _ := s.Line("X")
		require.True(t, l.Ordered.Equal(kg("2")))
		require.True(t, s.CanFinalize())
		return nil
	})
}

func TestScannerStopsOnCancel(t *testing.T) {
	live := NewLive(NewSession(1, []Line{line("X", "800X", "10", "0", "1", "10")}, nil, nil))
	ctx, cancel := context.WithCancel(context.Background())
	codes := make(chan string)
	applied := make(chan struct{}, 1)
	scanner := NewScanner(live, func(Effect, error) { applied <- struct{}{} }, nil)

	done := make(chan error, 1)
	go func() { done <- scanner.Run(ctx, codes) }()

	codes <- "800X"
	<-applied
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scanner did not stop")
	}
	_ = live.Do(func(s *Session) error {
		l, _ := s.Line("X")
		require.True(t, l.Loaded.Equal(kg("1")))
		return nil
	})
}

func TestLateConfirmationUsesCurrentLine(t *testing.T) {
	live := NewLive(NewSession(1, []Line{line("X", "800X", "1", "0", "1", "10")}, nil, nil))
	_, err := live.Scan("800X")
	require.NoError(t, err)
	e, err := live.Scan("800X")
	require.NoError(t, err)
	require.Equal(t, EffectOverDelivery, e.Kind)

	require.NoError(t, live.Do(func(s *Session) error { return s.SetLoaded("X", kg("0.5"), false) }))
	_, err = live.Resolve("800X", true)
	require.NoError(t, err)
	_ = live.Do(func(s *Session) error {
		l, _ := s.Line("X")
		require.True(t, l.Loaded.Equal(kg("1.5")))
		require.True(t, l.Ordered.Equal(kg("1.5")))
		return nil
	})
}

func TestFormatTotalsItalian(t *testing.T) {
	labels := FormatTotals(Totals{Loaded: kg("17"), Ordered: kg("25"), LoadedValue: kg("34"), OrderedValue: kg("50")}, language.Italian)
	require.Equal(t, "17,000kg / 25,000kg", labels.Weight)
	require.Equal(t, "€ 34,00 / € 50,00", labels.Value)
}
