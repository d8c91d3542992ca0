package diff

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"dashwatch/internal/faults"
	"dashwatch/internal/snapshot"
)

var (
	keys   = []string{"Tribunal", "Requisito"}
	values = []string{"Pontuação", "Resultado"}
)

// rowComparer compares rows by their ordered JSON form.
var rowComparer = cmp.Comparer(func(a, b snapshot.Row) bool {
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) == string(jb)
})

func snap(rows ...snapshot.Row) snapshot.Snapshot { return snapshot.New(rows) }

func row(trib, req, pont, res string) snapshot.Row {
	return snapshot.StringRow("Tribunal", trib, "Requisito", req, "Pontuação", pont, "Resultado", res)
}

func TestDiffIdenticalInputIsEmpty(t *testing.T) {
	s := snap(row("A", "X", "10", "Sim"), row("B", "Y", "5", "Não"), row("A", "X", "10", "Sim"))
	got, err := Diff(s, s, keys, values)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDiffModifiedExample(t *testing.T) {
	prev := snap(row("A", "X", "10", "Sim"))
	cur := snap(row("A", "X", "20", "Sim"))

	got, err := Diff(cur, prev, keys, values)
	require.NoError(t, err)

	want := []Entry{{
		Kind:     Modified,
		Key:      "A|X",
		Previous: row("A", "X", "10", "Sim"),
		Current:  row("A", "X", "20", "Sim"),
		Changed:  []string{"Pontuação"},
	}}
	if d := cmp.Diff(want, got, rowComparer); d != "" {
		t.Fatalf("unexpected entries (-want +got):\n%s", d)
	}
}

func TestDiffAddedAgainstEmptyPrevious(t *testing.T) {
	cur := snap(snapshot.StringRow("Tribunal", "B", "Requisito", "Y", "Pontuação", "5"))

	got, err := Diff(cur, snapshot.Snapshot{}, keys, values)
	require.NoError(t, err)
	require.Len(t, got, 1)

	e := got[0]
	require.Equal(t, Added, e.Kind)
	for _, c := range Columns(keys, values) {
		require.True(t, e.Previous.Get(c).IsNotFound(), "previous %s", c)
	}
	require.Equal(t, "5", e.Current.Get("Pontuação").String())
	// Resultado is absent from the current row, so it reads as NotFound.
	require.True(t, e.Current.Get("Resultado").IsNotFound())
	require.Equal(t, Columns(keys, values), e.Current.Columns())
}

func TestDiffRemovedAndAddedCounts(t *testing.T) {
	prev := snap(row("A", "1", "1", "Sim"), row("B", "1", "1", "Sim"), row("C", "1", "1", "Sim"))
	cur := snap(row("B", "1", "1", "Sim"), row("D", "1", "1", "Sim"), row("E", "1", "1", "Sim"))

	got, err := Diff(cur, prev, keys, values)
	require.NoError(t, err)
	require.Equal(t, Summary{Added: 2, Removed: 2}, Summarize(got))

	kinds := make([]string, 0, len(got))
	for _, e := range got {
		kinds = append(kinds, string(e.Kind)+":"+e.Key)
	}
	require.Equal(t, []string{"removed:A|1", "removed:C|1", "added:D|1", "added:E|1"}, kinds)

	for _, e := range got {
		if e.Kind == Removed {
			for _, c := range Columns(keys, values) {
				require.True(t, e.Current.Get(c).IsNotFound())
			}
		}
	}
}

func TestDiffOrderFollowsPreviousThenCurrent(t *testing.T) {
	prev := snap(row("Z", "1", "1", "Sim"), row("M", "1", "1", "Sim"), row("A", "1", "1", "Sim"))
	cur := snap(row("N", "1", "1", "Sim"), row("A", "1", "2", "Sim"), row("B", "1", "1", "Sim"), row("Z", "1", "1", "Não"))

	for i := 0; i < 20; i++ {
		got, err := Diff(cur, prev, keys, values)
		require.NoError(t, err)
		var order []string
		for _, e := range got {
			order = append(order, e.Key)
		}
		require.Equal(t, []string{"Z|1", "M|1", "A|1", "N|1", "B|1"}, order)
		require.Equal(t, []string{"Resultado"}, got[0].Changed)
	}
}

func TestDiffStringCoercion(t *testing.T) {
	var numeric snapshot.Row
	numeric.Set("Tribunal", snapshot.Str("A"))
	numeric.Set("Requisito", snapshot.Str("X"))
	numeric.Set("Pontuação", snapshot.Num(10))
	numeric.Set("Resultado", snapshot.Str("Sim"))

	got, err := Diff(snap(numeric), snap(row("A", "X", "10", "Sim")), keys, values)
	require.NoError(t, err)
	require.Empty(t, got, `"10" and 10 must compare equal`)

	got, err = Diff(snap(row("A", "X", "10.0", "Sim")), snap(row("A", "X", "10", "Sim")), keys, values)
	require.NoError(t, err)
	require.Len(t, got, 1, `"10.0" and "10" must differ`)
	require.Equal(t, []string{"Pontuação"}, got[0].Changed)
}

func TestDiffDuplicateKeysLastWins(t *testing.T) {
	prev := snap(row("A", "X", "10", "Sim"))
	cur := snap(row("A", "X", "99", "Sim"), row("B", "Y", "1", "Sim"), row("A", "X", "10", "Sim"))

	got, err := Diff(cur, prev, keys, values)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, Added, got[0].Kind)
	require.Equal(t, "B|Y", got[0].Key)

	n, err := DuplicateKeys(cur, keys)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDiffMissingValueColumnIsNotFound(t *testing.T) {
	prev := snap(snapshot.StringRow("Tribunal", "A", "Requisito", "X", "Pontuação", "10"))
	cur := snap(snapshot.StringRow("Tribunal", "A", "Requisito", "X", "Pontuação", "10", "Resultado", "Sim"))

	got, err := Diff(cur, prev, keys, values)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []string{"Resultado"}, got[0].Changed)
	require.Equal(t, snapshot.NotFoundText, got[0].Previous.Get("Resultado").String())
}

func TestDiffEveryValueColumnChangeIsReported(t *testing.T) {
	base := row("A", "X", "10", "Sim")
	for _, col := range values {
		changed := row("A", "X", "10", "Sim")
		changed.Set(col, snapshot.Str("other"))
		got, err := Diff(snap(changed), snap(base), keys, values)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, Modified, got[0].Kind)
		require.Equal(t, []string{col}, got[0].Changed)
	}
}

func TestDiffEmptyKeyColumns(t *testing.T) {
	_, err := Diff(snap(row("A", "X", "1", "Sim")), snapshot.Snapshot{}, nil, values)
	require.Error(t, err)
	require.True(t, faults.IsConfiguration(err))
	require.ErrorIs(t, err, snapshot.ErrNoKeyColumns)
}

func TestForBindsColumns(t *testing.T) {
	fn := For(keys, values)
	got, err := fn(snap(row("A", "X", "2", "Sim")), snap(row("A", "X", "1", "Sim")))
	require.NoError(t, err)
	require.Len(t, got, 1)
}
