package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SakenW/transhub/internal/domain"
	"github.com/SakenW/transhub/internal/ports"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	d := NewDebug("")
	r.Register(d)

	got, err := r.Get("debug")
	require.NoError(t, err)
	assert.Same(t, ports.Engine(d), got)

	_, err = r.Get("missing")
	var notFound *domain.EngineNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Name)

	assert.ElementsMatch(t, []string{"debug"}, r.Names())
}

func TestDebug_Template(t *testing.T) {
	d := NewDebug("")
	res, err := d.TranslateBatch(context.Background(), []string{"Submit", "Cancel"}, "en", "de")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "Translated(Submit) to de", res[0].Text)
	assert.Equal(t, "Translated(Cancel) to de", res[1].Text)
	assert.Nil(t, res[0].Err)
}

func TestDebug_FailNext(t *testing.T) {
	d := NewDebug("")
	d.FailNext(1, ports.EngineError{Message: "boom", Retryable: true})

	res, err := d.TranslateBatch(context.Background(), []string{"x"}, "en", "fr")
	require.NoError(t, err)
	require.NotNil(t, res[0].Err)
	assert.True(t, res[0].Err.Retryable)

	res, err = d.TranslateBatch(context.Background(), []string{"x"}, "en", "fr")
	require.NoError(t, err)
	assert.Nil(t, res[0].Err)
	assert.Equal(t, 2, d.Batches())
}

func TestDebug_AlwaysFail(t *testing.T) {
	d := NewDebug("")
	d.FailNext(-1, ports.EngineError{Message: "down", Retryable: true})
	for i := 0; i < 3; i++ {
		res, err := d.TranslateBatch(context.Background(), []string{"x"}, "en", "de")
		require.NoError(t, err)
		require.NotNil(t, res[0].Err)
	}
}

func TestNewHTTP_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTP("remote", "", "", 0)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
