package nats

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/dispatch-go/core/actor"
	"github.com/codewandler/dispatch-go/core/supervision"
)

func TestEventPublisher_requiresConnector(t *testing.T) {
	_, err := NewEventPublisher(PublisherOptions{})
	require.Error(t, err)
}

func TestEventPublisher_stageEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	connect := Shared(NewTestContainer(t))

	pub, err := NewEventPublisher(PublisherOptions{Connect: connect, SubjectPrefix: "test"})
	require.NoError(t, err)
	t.Cleanup(pub.Close)

	nc, release, err := connect()
	require.NoError(t, err)
	t.Cleanup(release)

	sub, err := nc.SubscribeSync("test.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	stage, err := actor.NewStage(actor.Options{
		Observers:   []supervision.Observer{pub},
		DeadLetters: []actor.DeadLettersListener{pub},
	})
	require.NoError(t, err)
	t.Cleanup(stage.Close)

	a, err := stage.Spawn(actor.SpawnOptions{Protocol: "test.Failing"})
	require.NoError(t, err)
	require.NoError(t, a.Tell("fail()", func() error { return errors.New("boom") }))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "test.supervision.resume", msg.Subject)
	require.Equal(t, "application/json", msg.Header.Get("Content-Type"))

	var ev DirectiveEvent
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	require.Equal(t, a.Address(), ev.Unit)
	require.Equal(t, "test.Failing", ev.Protocol)
	require.Equal(t, "resume", ev.Directive)
	require.Contains(t, ev.Error, "boom")

	a.Stop(supervision.ScopeOne)
	require.NoError(t, a.Tell("late()", func() error { return nil }))

	msg, err = sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, pub.DeadLettersSubject(), msg.Subject)

	var dl actor.DeadLetter
	require.NoError(t, json.Unmarshal(msg.Data, &dl))
	require.Equal(t, "late()", dl.Representation)
	require.Equal(t, actor.ReasonStopped, dl.Reason)
	require.Equal(t, int64(2), pub.Published())
}
