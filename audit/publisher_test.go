package audit

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	publisher := NewPublisher(nil, "", nil)
	require.NotNil(t, publisher)
	assert.Equal(t, "fsaudit", publisher.Prefix())
	assert.Equal(t, byte(0), publisher.qos)
	assert.True(t, publisher.retain)

	assert.Equal(t, "lab", NewPublisher(nil, "lab", nil).Prefix())

	t.Setenv("MQTT_PUBLISH_PREFIX", "override")
	assert.Equal(t, "override", NewPublisher(nil, "lab", nil).Prefix())
}

func TestPublisher_NotConnected(t *testing.T) {
	publisher := NewPublisher(nil, "fsaudit", nil)
	assert.Error(t, publisher.PublishReport("text"))

	mock := NewMockClient()
	publisher = NewPublisher(mock, "fsaudit", nil)
	assert.Error(t, publisher.PublishBudget(BudgetMessage{}))
	assert.Empty(t, mock.GetPublishedMessages())
}

func TestPublisher_PublishBudget(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	mock := NewMockClient()
	mock.SetConnected(true)
	publisher := NewPublisher(mock, "fsaudit", nil)

	s := NewSession()
	require.NoError(t, s.AddTrials(5.00, 5.02, 4.98))
	require.NoError(t, s.SetCoverageFactor(2))

	msg := NewBudgetMessage(s.ID(), s.Settings(), s.Budget())
	require.NoError(t, publisher.PublishBudget(msg))

	published := mock.GetPublishedMessages()
	require.Len(t, published, 1)
	assert.Equal(t, "fsaudit/budget", published[0].Topic)
	assert.True(t, published[0].Retain)

	var decoded BudgetMessage
	require.NoError(t, json.Unmarshal(published[0].Payload, &decoded))
	assert.Equal(t, s.ID(), decoded.SessionID)
	assert.Equal(t, 3, decoded.TrialCount)
	require.NotNil(t, decoded.Mean)
	assert.InDelta(t, 5.0, *decoded.Mean, 1e-9)
	assert.Equal(t, "95.4%", decoded.Confidence)
	assert.Equal(t, "5.0000m ± 0.4261m", decoded.Result)
}

func TestNewBudgetMessage_NoData(t *testing.T) {
	s := NewSession()
	msg := NewBudgetMessage(s.ID(), s.Settings(), s.Budget())

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	mean, present := raw["mean"]
	assert.True(t, present, "mean key should be present")
	assert.Nil(t, mean, "mean should be null without trials")
	assert.Nil(t, raw["observerUncertainty"])
	assert.Equal(t, "15_30CM", raw["resolution"])
	assert.Equal(t, float64(0), raw["trialCount"])
}

func TestPublisher_PublishReport(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	publisher := NewPublisher(mock, "lab", nil)
	publisher.SetQoS(1)
	publisher.SetRetain(false)

	require.NoError(t, publisher.PublishReport("FINAL RESULT"))

	published := mock.GetPublishedMessages()
	require.Len(t, published, 1)
	assert.Contains(t, published[0].Topic, "/report")
	assert.Equal(t, "FINAL RESULT", string(published[0].Payload))
	assert.Equal(t, byte(1), published[0].QoS)
	assert.False(t, published[0].Retain)
}

func TestPublisher_PublishError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.SetPublishError(errors.New("broker full"))
	publisher := NewPublisher(mock, "fsaudit", nil)

	err := publisher.PublishReport("text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker full")
}

func TestPublisher_SetQoSIgnoresInvalid(t *testing.T) {
	publisher := NewPublisher(nil, "fsaudit", nil)
	publisher.SetQoS(5)
	assert.Equal(t, byte(0), publisher.qos)
}
