package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"route-aggregator/internal/config"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestNATSPublisherPrefixesAndEncodes(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "aggregator", logrus.New())

	p.Publish(SubjectCircuitOpened, CircuitOpened{Source: "lifi", Reason: "401", Class: "auth", Timestamp: time.Unix(0, 0)})

	require.Len(t, conn.subjects, 1)
	assert.Equal(t, "aggregator.source.circuit_opened", conn.subjects[0])

	var decoded CircuitOpened
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, "lifi", decoded.Source)
	assert.Equal(t, "auth", decoded.Class)
}

func TestNATSPublisherSwallowsErrors(t *testing.T) {
	conn := &fakeConn{err: errors.New("disconnected")}
	p := NewNATSPublisher(conn, "", logrus.New())

	assert.NotPanics(t, func() {
		p.Publish(SubjectQuoteCompleted, QuoteCompleted{RequestID: "r1"})
	})
	assert.Empty(t, conn.subjects)
}

func TestInitPublisherWithoutURL(t *testing.T) {
	p, closeFn := InitPublisher(config.NATSConfig{}, logrus.New())
	assert.IsType(t, NoopPublisher{}, p)
	assert.NotPanics(t, closeFn)
}
