package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentID_Equality(t *testing.T) {
	a := NewAgentID("echo", "default")
	b := AgentID{Type: "echo", Key: "default"}
	c := AgentID{Type: "echo", Key: "other"}

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	m := map[AgentID]int{a: 1}
	assert.Equal(t, 1, m[b])
	assert.Equal(t, "echo/default", a.String())
}

func TestParseAgentID(t *testing.T) {
	tests := []struct {
		in      string
		want    AgentID
		wantErr bool
	}{
		{in: "echo/k1", want: AgentID{Type: "echo", Key: "k1"}},
		{in: "echo", want: AgentID{Type: "echo", Key: DefaultKey}},
		{in: "echo/", want: AgentID{Type: "echo", Key: DefaultKey}},
		{in: "echo/a/b", want: AgentID{Type: "echo", Key: "a/b"}},
		{in: "", wantErr: true},
		{in: "/k", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAgentID(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAgentID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTopicID(t *testing.T) {
	got, err := ParseTopicID("ticks/room1")
	require.NoError(t, err)
	assert.Equal(t, TopicID{Type: "ticks", Source: "room1"}, got)

	got, err = ParseTopicID("ticks")
	require.NoError(t, err)
	assert.Equal(t, TopicID{Type: "ticks", Source: DefaultKey}, got)

	_, err = ParseTopicID("/x")
	assert.Error(t, err)
}

type described struct{}

func (described) Handlers() *Table     { return NewTable() }
func (described) Description() string { return "says things" }

type plain struct{}

func (plain) Handlers() *Table { return NewTable() }

func TestMetadataOf(t *testing.T) {
	id := NewAgentID("talker", "k")
	assert.Equal(t, Metadata{Type: "talker", Key: "k", Description: "says things"}, MetadataOf(id, described{}))
	assert.Equal(t, Metadata{Type: "talker", Key: "k"}, MetadataOf(id, plain{}))
}

func TestSubscriptions(t *testing.T) {
	ts := NewTypeSubscription("ticks", "counter")
	assert.NotEmpty(t, ts.ID())
	assert.True(t, ts.Matches(TopicID{Type: "ticks", Source: "a"}))
	assert.False(t, ts.Matches(TopicID{Type: "ticks.more", Source: "a"}))

	id, err := ts.MapToAgent(TopicID{Type: "ticks", Source: "a"})
	require.NoError(t, err)
	assert.Equal(t, AgentID{Type: "counter", Key: "a"}, id)

	_, err = ts.MapToAgent(TopicID{Type: "other", Source: "a"})
	assert.Error(t, err)

	ps := NewTypePrefixSubscription("ticks", "logger")
	assert.NotEqual(t, ts.ID(), ps.ID())
	assert.True(t, ps.Matches(TopicID{Type: "ticks.more"}))
	id, err = ps.MapToAgent(TopicID{Type: "ticks.more", Source: "b"})
	require.NoError(t, err)
	assert.Equal(t, AgentID{Type: "logger", Key: "b"}, id)
}
