package tgui

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataRoundTrip(t *testing.T) {
	d := Data("wiz", "pick", "-1001:x")
	require.Equal(t, "wiz:pick:-1001:x", d)

	prefix, action, payload, ok := ParseData(d)
	require.True(t, ok)
	require.Equal(t, "wiz", prefix)
	require.Equal(t, "pick", action)
	require.Equal(t, "-1001:x", payload)

	_, action, payload, ok = ParseData(Data("wiz", "cancel", ""))
	require.True(t, ok)
	require.Equal(t, "cancel", action)
	require.Empty(t, payload)

	for _, bad := range []string{"", "wiz", "wiz:", ":x"} {
		_, _, _, ok := ParseData(bad)
		require.False(t, ok, bad)
	}
}

func TestCheckData(t *testing.T) {
	require.NoError(t, CheckData("wiz:pick:-1001234567890"))
	long := make([]byte, MaxCallbackDataLen+1)
	for i := range long {
		long[i] = 'a'
	}
	require.ErrorIs(t, CheckData(string(long)), ErrCallbackDataTooLong)
}

func TestTruncRunes(t *testing.T) {
	require.Equal(t, "Радио", TruncRunes("Радио", 5))
	require.Equal(t, "Рад…", TruncRunes("Радио", 3))
	require.Empty(t, TruncRunes("x", 0))
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	p := Paginate(items, 1, 2)
	require.Equal(t, []int{3, 4}, p.Items)
	require.True(t, p.HasPrev)
	require.True(t, p.HasNext)
	require.Equal(t, "Стр. 2/3", p.Label())

	p = Paginate(items, 9, 2)
	require.Equal(t, 2, p.Index)
	require.Equal(t, []int{5}, p.Items)
	require.False(t, p.HasNext)

	p = Paginate([]int(nil), 0, 2)
	require.Empty(t, p.Items)
	require.Equal(t, 1, p.Pages)
}

func TestInlineRows(t *testing.T) {
	in := NewInline().Row(Btn("a", "wiz:a")).Row().Row(URLBtn("b", "https://example.test"), WebAppBtn("c", "https://example.test/app"))
	require.Equal(t, 2, in.Rows())
	require.Len(t, in.Markup().InlineKeyboard, 2)
	require.Len(t, in.Markup().InlineKeyboard[1], 2)
}
