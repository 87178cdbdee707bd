package menu

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/mslinn/sqlite_wal_bench/pkg/ledger"
)

var defaults = Defaults{TotalRecords: 10_000_000, RecordsPerTransaction: 1}

func collect(t *testing.T, input string, handlerErr error) ([]Selection, string) {
	t.Helper()
	var out bytes.Buffer
	var got []Selection
	err := New(strings.NewReader(input), &out, defaults).Loop(context.Background(),
		func(_ context.Context, sel Selection) error {
			got = append(got, sel)
			return handlerErr
		})
	require.NoError(t, err)
	return got, out.String()
}

func TestScriptedSession(t *testing.T) {
	got, out := collect(t, "2\n5000\n10\n250\n\n0\n", nil)
	require.Equal(t, []Selection{{
		TestType:              ledger.Concurrency,
		TotalRecords:          5000,
		RecordsPerTransaction: 10,
		UpdateInterval:        250,
	}}, got)
	require.Contains(t, out, "Press Enter to return to the menu")
	require.True(t, strings.HasSuffix(out, "Bye\n"))
}

func TestBlankPromptsUseDefaults(t *testing.T) {
	got, out := collect(t, "1\n\n\n\n\n3\n1,000\n\n\n\n0\n", nil)
	require.Len(t, got, 2)
	require.Equal(t, Selection{TestType: ledger.Performance, TotalRecords: 10_000_000, RecordsPerTransaction: 1}, got[0])
	require.Equal(t, Selection{TestType: ledger.Split, TotalRecords: 1000, RecordsPerTransaction: 1}, got[1])
	require.Contains(t, out, "Total records [10,000,000]: ")
	require.Contains(t, out, "[derived from records per transaction]")
}

func TestInvalidInput(t *testing.T) {
	got, out := collect(t, "9\nperformance\n-5\nmany\n7\n\n0\n", nil)
	require.Len(t, got, 1)
	require.Equal(t, 10_000_000, got[0].TotalRecords)
	require.Equal(t, 1, got[0].RecordsPerTransaction)
	require.Equal(t, 7, got[0].UpdateInterval)
	require.Contains(t, out, `Invalid choice "9"`)
	require.Contains(t, out, `Invalid value "-5", using 10,000,000`)
	require.Contains(t, out, `Invalid value "many", using 1`)
}

func TestEndOfInputExits(t *testing.T) {
	got, _ := collect(t, "2\n500", nil)
	require.Equal(t, []Selection{{TestType: ledger.Concurrency, TotalRecords: 500, RecordsPerTransaction: 1}}, got)

	got, _ = collect(t, "", nil)
	require.Empty(t, got)
}

func TestHandlerErrorKeepsMenuRunning(t *testing.T) {
	got, out := collect(t, "1\n\n\n\n\n1\n\n\n\n\n0\n", errors.New("disk full"))
	require.Len(t, got, 2)
	require.Equal(t, 2, strings.Count(out, "Error: disk full"))
}

func TestLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(strings.NewReader("1\n"), &bytes.Buffer{}, defaults).Loop(ctx,
		func(context.Context, Selection) error {
			t.Fatal("handler must not run")
			return nil
		})
	require.ErrorIs(t, err, context.Canceled)
}
