package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestClassifyNil(t *testing.T) {
	require.Nil(t, Classify(nil))
}

func TestClassifyKeepsExistingFault(t *testing.T) {
	original := Business("Мест больше нет")
	wrapped := fmt.Errorf("обертка: %w", original)

	f := Classify(wrapped)
	require.Equal(t, KindBusiness, f.Kind)
	require.Equal(t, "Мест больше нет", f.Message)
}

func TestClassifyContextErrors(t *testing.T) {
	f := Classify(context.DeadlineExceeded)
	require.Equal(t, KindTimeout, f.Kind)
	require.False(t, f.Retryable())

	f = Classify(context.Canceled)
	require.Equal(t, KindTimeout, f.Kind)
}

func TestClassifyNetError(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}

	f := Classify(opErr)
	require.Equal(t, KindNetwork, f.Kind)
	require.True(t, f.Retryable())
}

func TestClassifyPostgresSchemaCodes(t *testing.T) {
	cases := []struct {
		code string
	}{
		{"42P01"},
		{"42703"},
		{"42501"},
	}
	for _, tc := range cases {
		f := Classify(&pq.Error{Code: pq.ErrorCode(tc.code)})
		require.Equal(t, KindSchema, f.Kind, "код %s", tc.code)
		require.False(t, f.Retryable())
	}
}

func TestClassifyWrappedDriverMessages(t *testing.T) {
	f := Classify(errors.New("dial tcp 127.0.0.1:5432: connection refused"))
	require.Equal(t, KindNetwork, f.Kind)

	f = Classify(errors.New(`pq: relation "rides" does not exist`))
	require.Equal(t, KindSchema, f.Kind)

	f = Classify(errors.New("pq: permission denied for table rides"))
	require.Equal(t, KindSchema, f.Kind)
}

func TestClassifyUnknownErrorIsNetwork(t *testing.T) {
	// Неизвестная ошибка считается повторяемой
	f := Classify(errors.New("что-то пошло не так"))
	require.Equal(t, KindNetwork, f.Kind)
	require.True(t, f.Retryable())
}

func TestIsNotFound(t *testing.T) {
	require.True(t, IsNotFound(gorm.ErrRecordNotFound))
	require.True(t, IsNotFound(fmt.Errorf("поиск: %w", gorm.ErrRecordNotFound)))
	require.False(t, IsNotFound(errors.New("другая ошибка")))
}

func TestFaultUnwrap(t *testing.T) {
	cause := errors.New("исходная ошибка")
	f := Network("Сеть недоступна", cause)
	require.ErrorIs(t, f, cause)
}
