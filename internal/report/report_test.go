package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dashwatch/internal/diff"
	"dashwatch/internal/snapshot"
)

var (
	keys   = []string{"Tribunal", "Requisito"}
	values = []string{"Pontuação", "Resultado"}
	opts   = Options{Monitor: "CNJ", KeyColumns: keys, ValueColumns: values}
)

func row(trib, req, pont, res string) snapshot.Row {
	return snapshot.StringRow("Tribunal", trib, "Requisito", req, "Pontuação", pont, "Resultado", res)
}

func entries(t *testing.T, prev, cur []snapshot.Row) []diff.Entry {
	t.Helper()
	got, err := diff.Diff(snapshot.New(cur), snapshot.New(prev), keys, values)
	require.NoError(t, err)
	return got
}

func TestGeneralReportShape(t *testing.T) {
	es := entries(t, []snapshot.Row{row("A", "X", "10", "Sim")}, []snapshot.Row{row("A", "X", "20", "Sim")})
	reps := Build(es, snapshot.Snapshot{}, nil, opts)
	require.Len(t, reps, 1)

	r := reps[0]
	require.Equal(t, "Diferencas_CNJ", r.Name)
	require.Equal(t, KindDiff, r.Kind)
	require.Equal(t, []string{
		"Tribunal (Ant)", "Requisito (Ant)", "Pontuação (Ant)", "Resultado (Ant)",
		"Tribunal (Atual)", "Requisito (Atual)", "Pontuação (Atual)", "Resultado (Atual)",
	}, r.Columns)
	require.Len(t, r.Rows, 1)
	require.Equal(t, "10", r.Rows[0][2].String())
	require.Equal(t, "20", r.Rows[0][6].String())
}

func TestAddedRowHasNotFoundPreviousSide(t *testing.T) {
	es := entries(t, nil, []snapshot.Row{snapshot.StringRow("Tribunal", "B", "Requisito", "Y", "Pontuação", "5")})
	r := Build(es, snapshot.Snapshot{}, nil, opts)[0]
	for i := 0; i < 4; i++ {
		require.Equal(t, snapshot.NotFoundText, r.Rows[0][i].String())
	}
	require.Equal(t, "5", r.Rows[0][6].String())
	require.Equal(t, snapshot.NotFoundText, r.Rows[0][7].String())
}

func TestEmptyEntriesStillEmitGeneralReport(t *testing.T) {
	reps := Build(nil, snapshot.Snapshot{}, []Filter{{Name: "TJMT", Field: "Tribunal", Value: "TJMT"}}, opts)
	require.Len(t, reps, 1)
	require.Zero(t, reps[0].Len())
}

func TestFilteredSubReports(t *testing.T) {
	prev := []snapshot.Row{row("TJMT", "1", "10", "Sim"), row("TJSP", "1", "10", "Sim"), row("TJMT", "2", "1", "Sim")}
	cur := []snapshot.Row{row("TJMT", "1", "11", "Sim"), row("TJSP", "1", "12", "Sim")}
	es := entries(t, prev, cur)
	filters := []Filter{
		{Name: "TJMT", Field: "Tribunal", Value: "TJMT"},
		{Name: "TJRO", Field: "Tribunal", Value: "TJRO"},
	}

	reps := Build(es, snapshot.New(cur), filters, opts)
	require.Len(t, reps, 2, "empty TJRO sub-report is omitted")
	require.Equal(t, "Diferencas_CNJ_TJMT", reps[1].Name)
	require.Equal(t, "TJMT", reps[1].Filter)
	require.Equal(t, reps[0].Columns, reps[1].Columns)
	// Modified TJMT|1 and removed TJMT|2.
	require.Len(t, reps[1].Rows, 2)
	require.Equal(t, "2", reps[1].Rows[1][1].String())
}

func TestSnapshotExports(t *testing.T) {
	cur := snapshot.New([]snapshot.Row{
		row("TJMT", "1", "11", "Sim"),
		snapshot.StringRow("Tribunal", "TJSP", "Requisito", "1"),
	})
	o := opts
	o.SnapshotPrefix = "Prêmio"
	reps := Snapshots(cur, []Filter{{Name: "TJMT", Field: "Tribunal", Value: "TJMT"}, {Name: "X", Field: "Tribunal", Value: "X"}}, o)
	require.Len(t, reps, 2)

	require.Equal(t, "PrêmioGeral", reps[0].Name)
	require.Equal(t, cur.Columns, reps[0].Columns)
	require.Len(t, reps[0].Rows, 2)
	require.Equal(t, "", reps[0].Rows[1][2].String())

	require.Equal(t, "PrêmioTJMT", reps[1].Name)
	require.Len(t, reps[1].Rows, 1)

	require.Nil(t, Snapshots(cur, nil, opts))
}

func TestFilenameAndCaption(t *testing.T) {
	date := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	diffRep := Report{Name: "Diferencas_CNJ_TJMT", Kind: KindDiff, Filter: "TJMT"}
	snapRep := Report{Name: "PrêmioGeral", Kind: KindSnapshot}
	subRep := Report{Name: "PrêmioTJMT", Kind: KindSnapshot, Filter: "TJMT"}

	require.Equal(t, "Diferencas_CNJ_TJMT.xlsx", Filename(diffRep, snapshot.FormatXLSX, date))
	require.Equal(t, "PrêmioGeral-05-03-2024.xlsx", Filename(snapRep, "", date))
	require.Equal(t, "PrêmioTJMT-05-03-2024.csv", Filename(subRep, snapshot.FormatCSV, date))

	require.Equal(t, "📊 Diferenças TJMT", Caption(diffRep, "CNJ", date))
	require.Equal(t, "📊 Diferenças CNJ", Caption(Report{Name: "Diferencas_CNJ", Kind: KindDiff}, "CNJ", date))
	require.Equal(t, "🏆 Prêmio Geral 05-03-2024", Caption(snapRep, "CNJ", date))
	require.Equal(t, "🏆 Prêmio TJMT 05-03-2024", Caption(subRep, "CNJ", date))
}

func TestEncodeXLSXRoundTrip(t *testing.T) {
	r := Report{
		Name:    "r",
		Columns: []string{"Tribunal", "Pontuação"},
		Rows: [][]snapshot.Value{
			{snapshot.Str("TJMT"), snapshot.Num(10.5)},
			{snapshot.Str("TJSP"), snapshot.NotFound},
		},
	}
	b, err := EncodeXLSX(r)
	require.NoError(t, err)

	s, err := snapshot.ReadXLSX(bytes.NewReader(b), "")
	require.NoError(t, err)
	require.Equal(t, []string{"Tribunal", "Pontuação"}, s.Columns)
	require.Len(t, s.Rows, 2)
	require.Equal(t, snapshot.KindNumber, s.Rows[0].Get("Pontuação").Kind())
	require.Equal(t, "10.5", s.Rows[0].Get("Pontuação").String())
	require.Equal(t, snapshot.NotFoundText, s.Rows[1].Get("Pontuação").String())
}

func TestEncodeCSV(t *testing.T) {
	r := Report{
		Columns: []string{"a", "b"},
		Rows:    [][]snapshot.Value{{snapshot.Num(1), snapshot.Str("x,y")}},
	}
	b, err := Encode(r, snapshot.FormatCSV)
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,\"x,y\"\n", string(b))

	_, err = Encode(r, snapshot.FormatJSON)
	require.Error(t, err)
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	RenderText(&buf, Report{Name: "Diferencas_CNJ", Columns: []string{"a"}, Rows: [][]snapshot.Value{{snapshot.Str("hello")}}})
	out := buf.String()
	require.True(t, strings.Contains(out, "hello"), out)
	require.True(t, strings.Contains(out, "Diferencas_CNJ"), out)
}
