package chatref_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/tweetheart/internal/chatref"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		want chatref.Ref
		err  bool
	}{
		{raw: "3_7", want: chatref.Ref{Kind: chatref.Preparation, User1: 3, User2: 7}},
		{raw: "7_3", want: chatref.Ref{Kind: chatref.Preparation, User1: 3, User2: 7}},
		{raw: "chat_1700000000000_ab12cd34", want: chatref.Ref{Kind: chatref.Persisted, ChatID: "chat_1700000000000_ab12cd34"}},
		{raw: "3_3", err: true},
		{raw: "0_3", err: true},
		{raw: "abc", err: true},
		{raw: "chat_", err: true},
		{raw: "", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := chatref.Parse(tt.raw)
			if tt.err {
				assert.ErrorIs(t, err, chatref.ErrInvalidRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPreparationKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "2_9", chatref.PreparationKey(9, 2))
	assert.Equal(t, chatref.PreparationKey(2, 9), chatref.ForPair(9, 2).String())
	assert.Equal(t, uint64(9), chatref.ForPair(2, 9).Other(2))
}

func TestNewChatID(t *testing.T) {
	id := chatref.NewChatID(time.UnixMilli(1700000000123))
	assert.True(t, strings.HasPrefix(id, "chat_1700000000123_"))
	assert.Len(t, id, len("chat_1700000000123_")+8)

	ref, err := chatref.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, chatref.Persisted, ref.Kind)
}
