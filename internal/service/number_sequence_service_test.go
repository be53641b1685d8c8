package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/straye-as/pipeline-api/internal/repository"
	"github.com/straye-as/pipeline-api/internal/service"
	"github.com/straye-as/pipeline-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFormatDisplayID(t *testing.T) {
	assert.Equal(t, "CT-2025-07", service.FormatDisplayID(service.PrefixContact, 2025, 7))
	assert.Equal(t, "CHR-2025-112", service.FormatDisplayID(service.PrefixChangeRequest, 2025, 112))
}

func TestNumberSequenceService_Next(t *testing.T) {
	db := testutil.NewTestDB(t)
	numbers := service.NewNumberSequenceService(repository.NewNumberSequenceRepository(db), zap.NewNop())
	ctx := context.Background()
	year := time.Now().UTC().Year()

	first, err := numbers.Next(ctx, nil, service.PrefixMSA)
	require.NoError(t, err)
	second, err := numbers.Next(ctx, nil, service.PrefixMSA)
	require.NoError(t, err)
	other, err := numbers.Next(ctx, nil, service.PrefixSOW)
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("MSA-%d-01", year), first)
	assert.Equal(t, fmt.Sprintf("MSA-%d-02", year), second)
	assert.Equal(t, fmt.Sprintf("SOW-%d-01", year), other)
}

func TestNumberSequenceService_ConcurrentNumbersAreUnique(t *testing.T) {
	db := testutil.NewTestDB(t)
	numbers := service.NewNumberSequenceService(repository.NewNumberSequenceRepository(db), zap.NewNop())

	const n = 8
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = numbers.Next(context.Background(), nil, service.PrefixContact)
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range ids {
		require.NoError(t, errs[i])
		assert.False(t, seen[ids[i]], "duplicate %s", ids[i])
		seen[ids[i]] = true
	}
}
