package scenario

import (
	"errors"
	"testing"

	"apiprobe/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooks_AfterFailureAttachesLastResponse(t *testing.T) {
	rec := &Recorder{}
	hooks := Hooks{Sink: rec}
	sc := NewContext(nil, nil, WithInfo(Info{Name: "get user", Tags: []string{"@smoke"}}))

	hooks.Before(sc)
	sc.SetLastResponse(protocol.NewResponseBuilder().StatusCode(500).Body("boom").Build())
	sc.Set("k", "v")

	attachments := hooks.After(sc, StatusFailed, errors.New("expected 200"))

	require.Len(t, attachments, 1)
	assert.Equal(t, LastResponseAttachment, attachments[0].Name)
	assert.Equal(t, "text/plain", attachments[0].MediaType)
	assert.Equal(t, []byte("boom"), attachments[0].Body)

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, ScenarioStarted, events[0].Kind)
	assert.Equal(t, "get user", events[0].Scenario.Name)
	assert.Equal(t, ScenarioFinished, events[1].Kind)
	assert.Equal(t, StatusFailed, events[1].Status)
	assert.Len(t, events[1].Attachments, 1)

	// Cleanup ran.
	assert.Nil(t, sc.LastResponse())
	assert.Equal(t, 0, sc.Len())
}

func TestHooks_AfterSuccessDoesNotAttach(t *testing.T) {
	sc := NewContext(nil, nil)
	sc.SetLastResponse(protocol.NewResponseBuilder().StatusCode(200).Body("ok").Build())

	attachments := Hooks{}.After(sc, StatusPassed, nil)
	assert.Empty(t, attachments)
}

func TestHooks_AfterFailureWithoutResponse(t *testing.T) {
	sc := NewContext(nil, nil)
	attachments := Hooks{}.After(sc, StatusFailed, errors.New("unknown protocol"))
	assert.Empty(t, attachments)
}

func TestHooks_StepDone(t *testing.T) {
	rec := &Recorder{}
	sc := NewContext(nil, nil, WithInfo(Info{Name: "s"}))
	Hooks{Sink: MultiSink{rec, nil}}.StepDone(sc, "the response status code should be 200", StatusPassed, nil, 0)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, StepFinished, events[0].Kind)
	assert.Equal(t, "the response status code should be 200", events[0].Step)
	assert.False(t, events[0].Time.IsZero())
}
