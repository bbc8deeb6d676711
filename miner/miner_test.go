package miner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guachain/guachain/chainmodel"
	"github.com/guachain/guachain/ulogger"
)

func newTestMiner() *Miner {
	logger := ulogger.New("test", "debug", false)
	return New(nil, nil, nil, logger, 1, false)
}

func payloadTemplate() *chainmodel.Block {
	return &chainmodel.Block{Index: 1, Transaction: &chainmodel.Transaction{Class: chainmodel.ClassZone}}
}

func signingTemplate() *chainmodel.Block {
	return &chainmodel.Block{Index: 2}
}

func TestEnqueuePayloadNeverDiscardsExistingJobs(t *testing.T) {
	m := newTestMiner()

	m.EnqueuePayload(payloadTemplate())
	m.EnqueuePayload(payloadTemplate())

	require.Len(t, m.jobs, 2)
}

func TestEnqueueSigningDiscardsOnlyPreviousSigningJob(t *testing.T) {
	m := newTestMiner()

	m.EnqueuePayload(payloadTemplate())
	m.enqueueSigning(signingTemplate(), time.Time{})
	m.enqueueSigning(signingTemplate(), time.Time{})

	require.Len(t, m.jobs, 2, "the payload job survives, the stale signing job is replaced")

	payloadCount, signingCount := 0, 0
	for _, j := range m.jobs {
		if j.Template.IsPayload() {
			payloadCount++
		} else {
			signingCount++
		}
	}
	require.Equal(t, 1, payloadCount)
	require.Equal(t, 1, signingCount)
}

func TestPopDueJobReturnsOnlyDueJobs(t *testing.T) {
	m := newTestMiner()

	future := &MineJob{StartTime: time.Now().Add(time.Hour), Template: signingTemplate()}
	m.jobs = append(m.jobs, future)

	require.Nil(t, m.popDueJob(), "no job is due yet")

	due := &MineJob{Template: payloadTemplate()}
	m.jobs = append(m.jobs, due)

	popped := m.popDueJob()
	require.Same(t, due, popped)
	require.Len(t, m.jobs, 1, "only the due job is removed")
}

func TestHasDueSigningJobIgnoresPayloadJobs(t *testing.T) {
	m := newTestMiner()

	m.jobs = append(m.jobs, &MineJob{Template: payloadTemplate()})
	require.False(t, m.hasDueSigningJob())

	m.jobs = append(m.jobs, &MineJob{StartTime: time.Now().Add(time.Hour), Template: signingTemplate()})
	require.False(t, m.hasDueSigningJob(), "a not-yet-due signing job doesn't count")

	m.jobs = append(m.jobs, &MineJob{Template: signingTemplate()})
	require.True(t, m.hasDueSigningJob())
}

func TestRequeueFrontPlacesJobAtHeadDueImmediately(t *testing.T) {
	m := newTestMiner()

	m.jobs = append(m.jobs, &MineJob{Template: signingTemplate()})

	preempted := &MineJob{StartTime: time.Now().Add(time.Hour), Template: payloadTemplate()}
	m.requeueFront(preempted)

	require.Len(t, m.jobs, 2)
	require.Same(t, preempted, m.jobs[0])
	require.True(t, m.jobs[0].StartTime.IsZero(), "requeued job is due immediately")
}
