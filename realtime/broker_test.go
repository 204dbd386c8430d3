package realtime_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jrsteele09/go-task-client/realtime"
	"github.com/stretchr/testify/require"
)

func event(kind realtime.Kind, data string) realtime.Event {
	return realtime.Event{Kind: kind, Data: json.RawMessage(data), ReceivedAt: time.Now()}
}

func TestBroker_LateSubscriberMissesHistory(t *testing.T) {
	b := realtime.NewBroker()
	early := b.Subscribe(realtime.KindNotification)
	defer early.Close()

	b.Publish(event(realtime.KindNotification, `"first"`))
	late := b.Subscribe(realtime.KindNotification)
	defer late.Close()
	b.Publish(event(realtime.KindNotification, `"second"`))

	require.JSONEq(t, `"first"`, string(receive(t, early).Data))
	require.JSONEq(t, `"second"`, string(receive(t, early).Data))
	require.JSONEq(t, `"second"`, string(receive(t, late).Data))
}

func TestBroker_UnboundedAndOrdered(t *testing.T) {
	const n = 1000

	b := realtime.NewBroker()
	s := b.Subscribe(realtime.KindTaskUpdated)
	defer s.Close()

	for i := 0; i < n; i++ {
		raw, _ := json.Marshal(i)
		b.Publish(event(realtime.KindTaskUpdated, string(raw)))
	}
	b.Publish(event(realtime.KindTaskDeleted, `"x"`))

	for i := 0; i < n; i++ {
		var got int
		require.NoError(t, json.Unmarshal(receive(t, s).Data, &got))
		require.Equal(t, i, got)
	}
	select {
	case ev := <-s.C():
		t.Fatalf("unexpected event %s", ev.Kind)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroker_Close(t *testing.T) {
	b := realtime.NewBroker()
	s := b.Subscribe()
	require.NotEmpty(t, s.ID())

	s.Close()
	s.Close()
	_, ok := <-s.C()
	require.False(t, ok)

	other := b.Subscribe(realtime.KindUserUpdated)
	b.Close()
	_, ok = <-other.C()
	require.False(t, ok)

	afterClose := b.Subscribe(realtime.KindUserUpdated)
	_, ok = <-afterClose.C()
	require.False(t, ok)
	b.Publish(event(realtime.KindUserUpdated, `{}`))
}

func TestEvent_TypedPayloads(t *testing.T) {
	bulk := event(realtime.KindTasksBulkUpdated, `{"taskIds":["a","b"],"updateData":{"status":"completed"}}`)
	change, err := bulk.Bulk()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, change.TaskIDs)
	require.JSONEq(t, `{"status":"completed"}`, string(change.UpdateData))

	deleted := event(realtime.KindTaskDeleted, `{"taskId":"t9"}`)
	id, err := deleted.TaskID()
	require.NoError(t, err)
	require.Equal(t, "t9", id)

	user := event(realtime.KindUserUpdated, `{"_id":"u1","username":"ada","fullName":"Ada Lovelace"}`)
	p, err := user.User()
	require.NoError(t, err)
	require.Equal(t, "u1", p.ID)
	require.Equal(t, "Ada Lovelace", p.DisplayName)

	_, err = user.Task()
	require.ErrorIs(t, err, realtime.ErrWrongKind)
	_, err = bulk.TaskID()
	require.ErrorIs(t, err, realtime.ErrWrongKind)

	require.True(t, realtime.KindNotification.Valid())
	require.False(t, realtime.Kind("join_user_room").Valid())
	require.Len(t, realtime.Kinds(), 7)
}
