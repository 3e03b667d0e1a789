package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/totegamma/spamguard/internal/domain"
)

func newScannerFixture() (*ringFixture, *RingScanner, *mockJobs) {
	f := newRingFixture()
	// 400 is active but spreads reactions over many authors.
	for author := int64(10); author < 20; author++ {
		f.react(400, author, 6)
	}
	f.reactions.organic[ringSubject] = 60
	f.reactions.organic[400] = 60
	f.reactions.organic[201] = 12
	f.users.users[400] = domain.User{ID: 400}

	jobs := &mockJobs{}
	return f, NewRingScanner(f.reactions, f.detector(), jobs, 2, zap.NewNop()), jobs
}

func TestRingScannerScanRecent(t *testing.T) {
	defer goleak.VerifyNone(t)

	f, scanner, _ := newScannerFixture()
	report, err := scanner.ScanRecent(context.Background(), fixedNow.AddDate(0, -3, 0))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, []int64{ringSubject}, report.Detected)
	assert.Zero(t, report.Failed)
	assert.Len(t, f.moderation.penalties, 1)
}

func TestRingScannerCollectsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	f, scanner, _ := newScannerFixture()
	boom := errors.New("statement timeout")
	f.reactions.failFor[400] = boom

	report, err := scanner.ScanRecent(context.Background(), fixedNow.AddDate(0, -3, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []int64{ringSubject}, report.Detected)
}

func TestRingScannerListFailure(t *testing.T) {
	f, scanner, _ := newScannerFixture()
	f.reactions.err = errors.New("connection reset")

	_, err := scanner.ScanRecent(context.Background(), fixedNow)
	assert.Error(t, err)
}

func TestRingScannerEnqueue(t *testing.T) {
	_, scanner, jobs := newScannerFixture()

	n, err := scanner.Enqueue(context.Background(), fixedNow.AddDate(0, -3, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{ringSubject, 400}, jobs.ids)
}

func TestRingScannerEnqueueWithoutPublisher(t *testing.T) {
	f := newRingFixture()
	scanner := NewRingScanner(f.reactions, f.detector(), nil, 0, zap.NewNop())
	_, err := scanner.Enqueue(context.Background(), fixedNow)
	assert.Error(t, err)
}
