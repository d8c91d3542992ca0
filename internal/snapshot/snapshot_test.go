package snapshot

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestValueCoercion(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Str("10"), "10"},
		{Num(10), "10"},
		{Num(10.5), "10.5"},
		{Str("10.0"), "10.0"},
		{Num(-0.25), "-0.25"},
		{Num(1e21), "1e+21"},
		{Num(1e-7), "1e-7"},
		{Num(123456789012), "123456789012"},
		{NotFound, NotFoundText},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, tc.v.String())
	}

	require.True(t, Str("10").Equal(Num(10)))
	require.False(t, Str("10.0").Equal(Str("10")))
	require.False(t, Str("10.0").Equal(Num(10)))
}

func TestKey(t *testing.T) {
	cols := []string{"Tribunal", "Requisito"}

	k, err := Key(StringRow("Tribunal", "A", "Requisito", "X", "Pontuação", "10"), cols)
	require.NoError(t, err)
	require.Equal(t, "A|X", k)

	// Missing key columns coerce to "" and collide.
	k1, _ := Key(StringRow("Tribunal", "A"), cols)
	k2, _ := Key(StringRow("Tribunal", "A", "Outro", "z"), cols)
	require.Equal(t, "A|", k1)
	require.Equal(t, k1, k2)

	var num Row
	num.Set("Tribunal", Num(7))
	num.Set("Requisito", Str("X"))
	k, _ = Key(num, cols)
	require.Equal(t, "7|X", k)

	_, err = Key(StringRow("Tribunal", "A"), nil)
	require.ErrorIs(t, err, ErrNoKeyColumns)
}

func TestRowJSONKeepsOrder(t *testing.T) {
	var r Row
	r.Set("z", Str("last-alpha"))
	r.Set("a", Num(2))
	r.Set("m", NotFound)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	require.Equal(t, `{"z":"last-alpha","a":2,"m":null}`, string(b))

	var back Row
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, []string{"z", "a", "m"}, back.Columns())
	require.Equal(t, KindNumber, back.Get("a").Kind())
	require.True(t, back.Get("m").IsNotFound())
	require.True(t, back.Get("missing").IsNotFound())
}

func TestRowSetKeepsPosition(t *testing.T) {
	r := StringRow("a", "1", "b", "2")
	r.Set("a", Str("3"))
	require.Equal(t, []string{"a", "b"}, r.Columns())
	require.Equal(t, "3", r.Get("a").String())
}

func TestReadCSV(t *testing.T) {
	in := "\ufeffTribunal,Requisito,Pontuação\nA,X,10\nB,,5\n,,\n"
	s, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, []string{"Tribunal", "Requisito", "Pontuação"}, s.Columns)
	require.Len(t, s.Rows, 2)
	require.Equal(t, "10", s.Rows[0].Get("Pontuação").String())
	require.False(t, s.Rows[1].Has("Requisito"))
}

func TestReadJSON(t *testing.T) {
	in := `[{"Tribunal":"A","Pontuação":10},{"Tribunal":"B","Resultado":"Sim"}]`
	s, err := ReadJSON(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, []string{"Tribunal", "Pontuação", "Resultado"}, s.Columns)
	require.Equal(t, KindNumber, s.Rows[0].Get("Pontuação").Kind())

	_, err = ReadJSON(strings.NewReader(`{"not":"array"}`))
	require.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Tribunal", "Requisito", "Pontuação"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"A", "X", 10}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"B", "Y", "20"}))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	s, err := ReadXLSX(&buf, "")
	require.NoError(t, err)
	require.Len(t, s.Rows, 2)
	require.Equal(t, KindNumber, s.Rows[0].Get("Pontuação").Kind())
	require.Equal(t, KindString, s.Rows[1].Get("Pontuação").Kind())
	require.Equal(t, "10", s.Rows[0].Get("Pontuação").String())
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("/tmp/tabela_atual.XLSX")
	require.NoError(t, err)
	require.Equal(t, FormatXLSX, f)

	_, err = FormatFromPath("/tmp/tabela")
	require.Error(t, err)
}

func TestSnapshotFilter(t *testing.T) {
	s := New([]Row{StringRow("T", "A"), StringRow("T", "B"), StringRow("T", "A", "x", "1")})
	require.Equal(t, []string{"T", "x"}, s.Columns)
	got := s.Filter(func(r Row) bool { return r.Get("T").String() == "A" })
	require.Equal(t, 2, got.Len())
	require.Equal(t, s.Columns, got.Columns)
}
