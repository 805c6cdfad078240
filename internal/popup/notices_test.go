package popup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoticeTTLs(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	n := NewNoticeCenter().WithClock(func() time.Time { return now })

	n.Error("boom")
	require.NotNil(t, n.Current())

	now = now.Add(4 * time.Second)
	require.NotNil(t, n.Current(), "errors stay for 5 seconds")

	now = now.Add(2 * time.Second)
	assert.Nil(t, n.Current())

	n.Success("ok")
	now = now.Add(2 * time.Second)
	require.NotNil(t, n.Current(), "successes stay for 3 seconds")

	now = now.Add(2 * time.Second)
	assert.Nil(t, n.Current())
}

func TestNoticeReplacement(t *testing.T) {
	n := NewNoticeCenter()
	n.Error("first")
	n.Success("second")

	notice := n.Current()
	require.NotNil(t, notice)
	assert.Equal(t, NoticeSuccess, notice.Kind)
	assert.Equal(t, "second", notice.Text)
}

func TestNoticeClear(t *testing.T) {
	n := NewNoticeCenter()
	n.Error("boom")
	n.Clear()
	assert.Nil(t, n.Current())
}

func TestLoadingFlag(t *testing.T) {
	n := NewNoticeCenter()
	assert.False(t, n.Loading())
	n.SetLoading(true)
	assert.True(t, n.Loading())
	n.SetLoading(false)
	assert.False(t, n.Loading())
}
