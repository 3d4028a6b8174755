package discount

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-pricing/internal/domain/pricing"
)

type staticLister struct {
	codes []string
	err   error
}

func (s *staticLister) ListCodes(_ context.Context) ([]string, error) {
	return s.codes, s.err
}

func TestCodeFilter_AdmitsEverythingBeforeRebuild(t *testing.T) {
	f := NewCodeFilter(&staticLister{}, 100, 0.01)
	assert.True(t, f.MayContain("ANYTHING"))

	var nilFilter *CodeFilter
	assert.True(t, nilFilter.MayContain("ANYTHING"))
	nilFilter.Add("NOOP")
}

func TestCodeFilter_Rebuild(t *testing.T) {
	f := NewCodeFilter(&staticLister{codes: []string{"save10", "WELCOME"}}, 100, 0.001)
	assert.False(t, f.Ready())
	require.NoError(t, f.Rebuild(context.Background()))
	assert.True(t, f.Ready())

	assert.True(t, f.MayContain("SAVE10"))
	assert.True(t, f.MayContain("WELCOME"))
	assert.False(t, f.MayContain("NEVERISSUED"))

	f.Add("NEWCODE")
	assert.True(t, f.MayContain("NEWCODE"))
}

func TestCodeFilter_RebuildErrorKeepsPrevious(t *testing.T) {
	src := &staticLister{codes: []string{"KEEP"}}
	f := NewCodeFilter(src, 100, 0.001)
	require.NoError(t, f.Rebuild(context.Background()))

	src.err = errors.New("db down")
	require.Error(t, f.Rebuild(context.Background()))
	assert.True(t, f.MayContain("KEEP"))
}

func TestCodeFilter_RunStopsOnCancel(t *testing.T) {
	f := NewCodeFilter(&staticLister{codes: []string{"RUN"}}, 100, 0.001)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return !f.MayContain("ABSENT") }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestService_ValidateSkipsRepositoryForFilteredCodes(t *testing.T) {
	repo := &mockRepo{
		codes:   map[string]*Code{"REAL": newCode("REAL", pricing.DiscountFixedAmount, "5")},
		findErr: nil,
	}
	f := NewCodeFilter(repo, 100, 0.001)
	require.NoError(t, f.Rebuild(context.Background()))

	// A repository failure would surface as an error if the lookup happened.
	repo.findErr = errors.New("should not be called")
	svc := NewService(repo, f)

	got, err := svc.Validate(context.Background(), ValidateRequest{Code: "FAKE", Subtotal: d("10")})
	require.NoError(t, err)
	assert.False(t, got.Valid)
	assert.Equal(t, "Invalid discount code", got.Message)
}
