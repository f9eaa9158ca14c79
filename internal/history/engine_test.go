package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/encore/internal/core"
	encerr "github.com/tessro/encore/internal/errors"
	"github.com/tessro/encore/internal/store"
)

// fakeRemote is an in-memory remote that can be switched off.
type fakeRemote struct {
	mu      sync.Mutex
	data    map[string][]core.HistoryRecord
	down    bool
	calls   int
	fetched []core.HistoryRecord
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: make(map[string][]core.HistoryRecord)}
}

var errDown = errors.New("connection refused")

func (f *fakeRemote) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *fakeRemote) Fetch(ctx context.Context, userID string) ([]core.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return nil, errDown
	}
	return append([]core.HistoryRecord(nil), f.data[userID]...), nil
}

func (f *fakeRemote) Upsert(ctx context.Context, userID string, rec core.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return errDown
	}
	f.data[userID] = core.Prepend(f.data[userID], rec, DefaultRemoteCap)
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, userID, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return errDown
	}
	f.data[userID] = core.Without(f.data[userID], filename)
	return nil
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func song(filename string) core.Song {
	return core.Song{Filename: filename, Title: filename}
}

func newEngine(t *testing.T, remote Remote, opts ...Option) (*Engine, *store.MemoryStore) {
	t.Helper()
	local := store.NewMemoryStore()
	opts = append([]Option{WithClock(stepClock())}, opts...)
	return New(local, remote, opts...), local
}

func TestGuestDedup(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)

	e.Record(ctx, core.Song{Filename: "a.mp3", Title: "A"}, core.Guest)
	e.Record(ctx, core.Song{Filename: "a.mp3", Title: "A-updated"}, core.Guest)

	res := e.Load(ctx, core.Guest)
	require.Equal(t, Ok, res.Kind)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "A-updated", res.Records[0].Title)
	assert.Equal(t, core.BackendLocal, res.Backend)
}

func TestGuestCapacity(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)

	for i := 1; i <= 12; i++ {
		e.Record(ctx, song(fmt.Sprintf("%02d.mp3", i)), core.Guest)
	}

	res := e.Load(ctx, core.Guest)
	require.Len(t, res.Records, 10)
	assert.Equal(t, "12.mp3", res.Records[0].Filename)
	assert.Equal(t, "03.mp3", res.Records[9].Filename)
}

func TestTiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e, _ := newEngine(t, nil, WithClock(func() time.Time { return fixed }))

	e.Record(ctx, song("z.mp3"), core.Guest)
	e.Record(ctx, song("a.mp3"), core.Guest)
	e.Record(ctx, song("m.mp3"), core.Guest)

	res := e.Load(ctx, core.Guest)
	assert.Equal(t, []string{"m.mp3", "a.mp3", "z.mp3"}, core.Filenames(res.Records))
}

func TestRecordDefaultsAndIDs(t *testing.T) {
	ctx := context.Background()
	n := 0
	e, _ := newEngine(t, nil, WithIDFunc(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))

	res := e.Record(ctx, core.Song{Filename: "a.mp3"}, core.Guest)
	require.Equal(t, Ok, res.Kind)
	rec := res.Records[0]
	assert.Equal(t, "id-1", rec.ID)
	assert.Equal(t, core.DefaultTitle, rec.Title)
	assert.Equal(t, core.DefaultArtist, rec.Artist)
	assert.Equal(t, "guest", rec.UserID)
	assert.Nil(t, rec.Emotion)
}

func TestRecordRejectsMissingFilename(t *testing.T) {
	e, local := newEngine(t, nil)

	res := e.Record(context.Background(), core.Song{Title: "no file"}, core.Guest)
	assert.Equal(t, Fail, res.Kind)
	assert.ErrorIs(t, res.Err(), encerr.ErrMissingLocator)

	_, ok, _ := local.Get(context.Background(), store.GuestKey)
	assert.False(t, ok)
}

func TestRemoteRecord(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	e, local := newEngine(t, remote)

	e.Load(ctx, "alice")
	res := e.Record(ctx, song("a.mp3"), "alice")

	require.Equal(t, Ok, res.Kind)
	assert.Equal(t, core.BackendRemote, res.Backend)
	assert.Equal(t, []string{"a.mp3"}, core.Filenames(e.View().Records))
	assert.Equal(t, []string{"a.mp3"}, core.Filenames(remote.data["alice"]))

	_, ok, _ := local.Get(ctx, store.UserKey("alice"))
	assert.False(t, ok, "successful remote writes do not touch the fallback partition")
}

func TestRemoteRecordViewCap(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	e, _ := newEngine(t, remote)
	e.Load(ctx, "alice")

	for i := 1; i <= 15; i++ {
		e.Record(ctx, song(fmt.Sprintf("%02d.mp3", i)), "alice")
	}

	assert.Len(t, e.View().Records, DefaultLocalCap)
	assert.Len(t, remote.data["alice"], 15)

	res := e.Load(ctx, "alice")
	assert.Len(t, res.Records, 15, "a load shows the remote list up to its own cap")
}

func TestLoadTruncatesToRemoteCap(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	for i := 0; i < 25; i++ {
		remote.data["alice"] = append(remote.data["alice"], core.HistoryRecord{Filename: fmt.Sprintf("%02d.mp3", i)})
	}
	e, _ := newEngine(t, remote)

	res := e.Load(ctx, "alice")
	assert.Len(t, res.Records, DefaultRemoteCap)
	assert.Equal(t, "00.mp3", res.Records[0].Filename)
}

func TestFallbackLaw(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.setDown(true)
	e, local := newEngine(t, remote)

	e.Load(ctx, "bob")
	r1 := e.Record(ctx, song("a.mp3"), "bob")
	r2 := e.Record(ctx, song("b.mp3"), "bob")
	assert.Equal(t, Fallback, r1.Kind)
	assert.Equal(t, Fallback, r2.Kind)
	assert.ErrorIs(t, r2.Reason, errDown)
	assert.NoError(t, r2.Err(), "fallbacks are not failures")

	_, ok, _ := local.Get(ctx, store.UserKey("bob"))
	require.True(t, ok)

	res := e.Load(ctx, "bob")
	assert.Equal(t, Fallback, res.Kind)
	assert.Equal(t, []string{"b.mp3", "a.mp3"}, core.Filenames(res.Records))

	res = e.Remove(ctx, "a.mp3", "bob")
	assert.Equal(t, Fallback, res.Kind)
	assert.Equal(t, []string{"b.mp3"}, core.Filenames(res.Records))

	res = e.Load(ctx, "bob")
	assert.Equal(t, []string{"b.mp3"}, core.Filenames(res.Records))
}

func TestFallbackEmptyPartition(t *testing.T) {
	remote := newFakeRemote()
	remote.setDown(true)
	e, _ := newEngine(t, remote)

	res := e.Load(context.Background(), "carol")
	assert.Equal(t, Fallback, res.Kind)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.Empty(t, e.View().Records)
}

func TestNilRemoteFallsBack(t *testing.T) {
	e, _ := newEngine(t, nil)

	res := e.Record(context.Background(), song("a.mp3"), "dave")
	assert.Equal(t, Fallback, res.Kind)
	assert.ErrorIs(t, res.Reason, encerr.ErrRemoteDisabled)
	assert.False(t, e.HasRemote())
}

func TestRemoteRemove(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	e, _ := newEngine(t, remote)

	e.Load(ctx, "alice")
	e.Record(ctx, song("a.mp3"), "alice")
	e.Record(ctx, song("b.mp3"), "alice")

	res := e.Remove(ctx, "a.mp3", "alice")
	assert.Equal(t, Ok, res.Kind)
	assert.Equal(t, []string{"b.mp3"}, core.Filenames(res.Records))
	assert.Equal(t, []string{"b.mp3"}, core.Filenames(remote.data["alice"]))
}

func TestGuestRemove(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)

	e.Record(ctx, song("a.mp3"), core.Guest)
	e.Record(ctx, song("b.mp3"), core.Guest)

	res := e.Remove(ctx, "a.mp3", core.Guest)
	assert.Equal(t, Ok, res.Kind)
	assert.Equal(t, []string{"b.mp3"}, core.Filenames(e.View().Records))

	res = e.Remove(ctx, "missing.mp3", core.Guest)
	assert.Equal(t, Ok, res.Kind)
	assert.Len(t, res.Records, 1)
}

func TestClearIsLocalOnly(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	e, local := newEngine(t, remote)

	e.Load(ctx, "alice")
	e.Record(ctx, song("a.mp3"), "alice")
	require.NoError(t, local.Set(ctx, store.UserKey("alice"), []byte(`[{"filename":"old.mp3"}]`)))
	calls := remote.calls

	res := e.Clear(ctx, "alice")
	assert.Equal(t, Ok, res.Kind)
	assert.Empty(t, e.View().Records)
	assert.Equal(t, calls, remote.calls, "clear never calls the remote")

	_, ok, _ := local.Get(ctx, store.UserKey("alice"))
	assert.False(t, ok)

	res = e.Load(ctx, "alice")
	assert.Equal(t, []string{"a.mp3"}, core.Filenames(res.Records), "remote history returns on load")
}

func TestCorruptPartition(t *testing.T) {
	ctx := context.Background()
	e, local := newEngine(t, nil)
	require.NoError(t, local.Set(ctx, store.GuestKey, []byte("{not json")))

	res := e.Load(ctx, core.Guest)
	assert.Equal(t, Fail, res.Kind)
	assert.ErrorIs(t, res.Err(), encerr.ErrStoreCorrupt)
	assert.Empty(t, e.View().Records)

	res = e.Record(ctx, song("a.mp3"), core.Guest)
	assert.Equal(t, Fail, res.Kind)

	e.Clear(ctx, core.Guest)
	res = e.Record(ctx, song("a.mp3"), core.Guest)
	assert.Equal(t, Ok, res.Kind)
}

func TestRecordForStaleIdentityKeepsView(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.setDown(true)
	e, local := newEngine(t, remote)

	e.Load(ctx, "bob")
	e.Record(ctx, song("bob.mp3"), "bob")

	// A record stamped with alice resolves after the view moved to bob.
	res := e.Record(ctx, song("alice.mp3"), "alice")
	assert.Equal(t, Fallback, res.Kind)

	view := e.View()
	assert.Equal(t, core.Identity("bob"), view.Identity)
	assert.Equal(t, []string{"bob.mp3"}, core.Filenames(view.Records))

	data, ok, _ := local.Get(ctx, store.UserKey("alice"))
	require.True(t, ok)
	assert.Contains(t, string(data), "alice.mp3")
}

func TestIdentitySwitchEmptiesView(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)

	e.Record(ctx, song("g.mp3"), core.Guest)
	require.Len(t, e.View().Records, 1)

	var views []View
	e.Subscribe(func(v View) { views = append(views, v) })

	e.Load(ctx, "erin")
	require.NotEmpty(t, views)
	assert.Equal(t, core.Identity("erin"), views[0].Identity)
	assert.Empty(t, views[0].Records)
	assert.Equal(t, core.Identity("erin"), e.Identity())
}

func TestConcurrentRecordsSamePartition(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil, WithLocalCap(50))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.Record(ctx, song(fmt.Sprintf("%02d.mp3", i)), core.Guest)
			e.Record(ctx, song("same.mp3"), core.Guest)
		}(i)
	}
	wg.Wait()

	res := e.Load(ctx, core.Guest)
	assert.Len(t, res.Records, 21)

	count := 0
	for _, r := range res.Records {
		if r.Filename == "same.mp3" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestSubscribeCancel(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, nil)

	var mu sync.Mutex
	got := 0
	cancel := e.Subscribe(func(View) {
		mu.Lock()
		got++
		mu.Unlock()
	})

	e.Record(ctx, song("a.mp3"), core.Guest)
	cancel()
	e.Record(ctx, song("b.mp3"), core.Guest)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, got)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "ok", Ok.String())
	assert.Equal(t, "fallback", Fallback.String())
	assert.Equal(t, "fail", Fail.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
