package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/noticeflow/internal/notice"
)

type fakeStore struct {
	mu          sync.Mutex
	subscribers map[int64][]string
	lookupErr   error
	logErr      error
	logs        []notice.DeliveryLog
}

func (s *fakeStore) SubscribersBySource(context.Context) (map[int64][]string, error) {
	return s.subscribers, s.lookupErr
}

func (s *fakeStore) LogDelivery(_ context.Context, entry notice.DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return s.logErr
}

func (s *fakeStore) sortedLogs() []notice.DeliveryLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]notice.DeliveryLog(nil), s.logs...)
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

type fakeSender struct {
	mu     sync.Mutex
	failOn map[string]bool
	sent   map[string][]string
}

func (f *fakeSender) Send(_ context.Context, to []string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[msg.Subject] {
		return errors.New("smtp: 550 mailbox unavailable")
	}
	if f.sent == nil {
		f.sent = map[string][]string{}
	}
	f.sent[msg.Subject] = to
	return nil
}

func processed(sourceID int64, title string) notice.Processed {
	return notice.Processed{
		Item:    notice.Item{SourceID: sourceID, Link: "https://example.com/" + title, Title: title, Category: "장학공지"},
		Summary: notice.Summary{Title: title, Target: "재학생", Summary: "내용"},
	}
}

func newTestDistributor(t *testing.T, store Store, sender Sender) *Distributor {
	t.Helper()
	r, err := NewRenderer("테스트")
	require.NoError(t, err)
	return NewDistributor(store, sender, r, 4)
}

func TestDistributeOneSendPerItem(t *testing.T) {
	store := &fakeStore{subscribers: map[int64][]string{
		1: {"a@example.com", "b@example.com"},
		2: {"c@example.com"},
	}}
	sender := &fakeSender{}

	res, err := newTestDistributor(t, store, sender).Run(context.Background(), []notice.Processed{
		processed(1, "first"),
		processed(2, "second"),
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 2}, res)

	assert.Equal(t, []string{"a@example.com", "b@example.com"}, sender.sent["first"])
	assert.Equal(t, []string{"c@example.com"}, sender.sent["second"])

	logs := store.sortedLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, 2, logs[0].RecipientCount)
	assert.Equal(t, notice.DeliverySuccess, logs[0].Status)
	assert.False(t, logs[0].SentAt.IsZero())
}

func TestDistributeIsolatesFailures(t *testing.T) {
	store := &fakeStore{subscribers: map[int64][]string{1: {"a@example.com"}, 2: {"b@example.com"}}}
	sender := &fakeSender{failOn: map[string]bool{"bad": true}}

	res, err := newTestDistributor(t, store, sender).Run(context.Background(), []notice.Processed{
		processed(1, "bad"),
		processed(2, "good"),
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 1, Failed: 1}, res)

	logs := store.sortedLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, notice.DeliveryError, logs[0].Status)
	assert.Contains(t, logs[0].Error, "550")
	assert.Equal(t, notice.DeliverySuccess, logs[1].Status)
}

func TestDistributeWithoutSubscribersIsNoop(t *testing.T) {
	store := &fakeStore{subscribers: map[int64][]string{2: {"b@example.com"}}}
	sender := &fakeSender{}

	res, err := newTestDistributor(t, store, sender).Run(context.Background(), []notice.Processed{
		processed(1, "orphan"),
		processed(2, "covered"),
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 1, Skipped: 1}, res)
	assert.Len(t, store.sortedLogs(), 1, "no audit row for a source without subscribers")
}

func TestDistributeLookupFailure(t *testing.T) {
	store := &fakeStore{lookupErr: errors.New("db locked")}
	_, err := newTestDistributor(t, store, &fakeSender{}).Run(context.Background(), []notice.Processed{processed(1, "x")})
	assert.Error(t, err)
	assert.Empty(t, store.sortedLogs())
}

func TestDistributeCollectsAuditErrors(t *testing.T) {
	store := &fakeStore{
		subscribers: map[int64][]string{1: {"a@example.com"}},
		logErr:      errors.New("disk full"),
	}
	res, err := newTestDistributor(t, store, &fakeSender{}).Run(context.Background(), []notice.Processed{
		processed(1, "a"),
		processed(1, "b"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.Equal(t, 2, res.Sent)
}
