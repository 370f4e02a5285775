package adapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestSplitTextShortPassesThrough(t *testing.T) {
	require.Equal(t, []string{"hi"}, splitText("hi", 10))
	require.Equal(t, []string{""}, splitText("", 10))
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	require.Equal(t, []string{"aaaaaa", "bbbbbb"}, splitText(s, 10))
}

func TestSplitTextHardCut(t *testing.T) {
	got := splitText(strings.Repeat("x", 25), 10)
	require.Len(t, got, 3)
	require.Equal(t, strings.Repeat("x", 5), got[2])
}

func TestMemberCanPost(t *testing.T) {
	admin := &tele.ChatMember{Role: tele.Administrator}
	poster := &tele.ChatMember{Role: tele.Administrator, Rights: tele.Rights{CanPostMessages: true}}

	require.False(t, memberCanPost(tele.ChatChannel, admin))
	require.True(t, memberCanPost(tele.ChatChannel, poster))
	require.True(t, memberCanPost(tele.ChatSuperGroup, admin))
	require.True(t, memberCanPost(tele.ChatChannel, &tele.ChatMember{Role: tele.Creator}))
	require.False(t, memberCanPost(tele.ChatGroup, &tele.ChatMember{Role: tele.Member}))
	require.False(t, memberCanPost(tele.ChatChannel, &tele.ChatMember{Role: tele.Left}))
	require.False(t, memberCanPost(tele.ChatChannel, nil))
}

func TestMembershipUpdate(t *testing.T) {
	up := membershipUpdate(&tele.ChatMemberUpdate{
		Chat:          &tele.Chat{ID: -1001, Type: tele.ChatChannel},
		Sender:        &tele.User{ID: 42},
		NewChatMember: &tele.ChatMember{Role: tele.Kicked},
	})
	require.NotNil(t, up)
	require.EqualValues(t, -1001, up.ChatID)
	require.EqualValues(t, 42, up.ByID)
	require.False(t, up.CanPost)

	require.Nil(t, membershipUpdate(nil))
	require.Nil(t, membershipUpdate(&tele.ChatMemberUpdate{Chat: &tele.Chat{ID: 1}}))
}
