package comm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinKickass/OpenRoadwayCore/internal/comm"
)

func TestOpQueuePriorityOrderFIFOTies(t *testing.T) {
	q := comm.NewOpQueue()
	c := comm.NewController("ctl", 1)

	prios := []comm.Priority{
		comm.PriorityPoll5Min,
		comm.PriorityUrgent,
		comm.PriorityPoll30Sec,
		comm.PriorityUrgent,
		comm.PriorityDownload,
		comm.PriorityPoll5Min,
		comm.PriorityCommand,
	}
	for i, p := range prios {
		require.NoError(t, q.Push(comm.NewOperation(string(rune('a'+i)), c, p, nil)))
	}

	var got []string
	for q.Len() > 0 {
		op, err := q.Next(context.Background())
		require.NoError(t, err)
		got = append(got, op.Name)
	}
	assert.Equal(t, []string{"b", "d", "g", "e", "c", "a", "f"}, got)
}

func TestOpQueueNextBlocksUntilPush(t *testing.T) {
	q := comm.NewOpQueue()
	op := comm.NewOperation("late", comm.NewController("ctl", 1), comm.PriorityCommand, nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(op)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := q.Next(ctx)
	require.NoError(t, err)
	assert.Same(t, op, got)
}

func TestOpQueueNextHonorsContext(t *testing.T) {
	q := comm.NewOpQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpQueueClose(t *testing.T) {
	q := comm.NewOpQueue()
	c := comm.NewController("ctl", 1)
	require.NoError(t, q.Push(comm.NewOperation("slow", c, comm.PriorityDiagnostic, nil)))
	require.NoError(t, q.Push(comm.NewOperation("fast", c, comm.PriorityUrgent, nil)))

	drained := q.Close()
	require.Len(t, drained, 2)
	assert.Equal(t, "fast", drained[0].Name)
	assert.Equal(t, "slow", drained[1].Name)

	assert.ErrorIs(t, q.Push(comm.NewOperation("x", c, comm.PriorityUrgent, nil)), comm.ErrLinkClosed)
	_, err := q.Next(context.Background())
	assert.ErrorIs(t, err, comm.ErrLinkClosed)
	assert.Nil(t, q.Close())
}

func TestParsePriority(t *testing.T) {
	p, err := comm.ParsePriority("download")
	require.NoError(t, err)
	assert.Equal(t, comm.PriorityDownload, p)
	assert.Equal(t, "POLL_30_SEC", comm.PriorityPoll30Sec.String())

	_, err = comm.ParsePriority("soon")
	assert.Error(t, err)
}
