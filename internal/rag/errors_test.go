package rag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"revisely-go/internal/vectorstore"
	"revisely-go/pkg/embedding"
	"revisely-go/pkg/llm"
)

func TestBuildErrorUnwrapsStageCause(t *testing.T) {
	cause := fmt.Errorf("%w: connection refused", embedding.ErrUnavailable)
	err := &BuildError{Stage: "embed", Err: cause}

	assert.Contains(t, err.Error(), `"embed"`)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, embedding.ErrUnavailable)

	var buildErr *BuildError
	assert.True(t, errors.As(error(err), &buildErr))
	assert.Equal(t, "embed", buildErr.Stage)
}

func TestSentinelAliasesMatchClientErrors(t *testing.T) {
	// 调用方只依赖本包即可做 errors.Is 判定
	assert.ErrorIs(t, embedding.ErrUnavailable, ErrEmbeddingUnavailable)
	assert.ErrorIs(t, llm.ErrUnavailable, ErrGenerationUnavailable)
	assert.ErrorIs(t, vectorstore.ErrPersistFailure, ErrIndexPersistFailure)
}
