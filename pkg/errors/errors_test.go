package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	cases := map[Code]struct {
		status    int
		retryable bool
		details   bool
	}{
		CodeValidation:          {status: http.StatusBadRequest, details: true},
		CodeUnauthorized:        {status: http.StatusUnauthorized},
		CodeForbidden:           {status: http.StatusForbidden},
		CodeNotFound:            {status: http.StatusNotFound},
		CodeConflict:            {status: http.StatusConflict},
		CodeStateConflict:       {status: http.StatusBadRequest, details: true},
		CodeIdempotency:         {status: http.StatusConflict, details: true},
		CodeInsufficientCredits: {status: http.StatusBadRequest, details: true},
		CodeGateway:             {status: http.StatusBadGateway, retryable: true, details: true},
		CodeInternal:            {status: http.StatusInternalServerError, retryable: true},
		CodeDependency:          {status: http.StatusServiceUnavailable, retryable: true, details: true},
	}
	for code, want := range cases {
		meta := MetadataFor(code)
		assert.Equal(t, want.status, meta.HTTPStatus, code)
		assert.Equal(t, want.retryable, meta.Retryable, code)
		assert.Equal(t, want.details, meta.DetailsAllowed, code)
		assert.NotEmpty(t, meta.PublicMessage, code)
	}
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("NOT_A_CODE"))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "reserve range")

	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeConflict, wrapped.Code())
	assert.Equal(t, "CONFLICT: reserve range: boom", wrapped.Error())
	assert.Nil(t, wrapped.Details())
	assert.Equal(t, "x", wrapped.WithDetails("x").Details())
}

func TestNilError(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Error())
	assert.Nil(t, e.WithDetails("ignored"))
	assert.Nil(t, As(nil))
}

func TestIsFindsWrappedCode(t *testing.T) {
	outer := fmt.Errorf("authorize: %w", New(CodeInsufficientCredits, "not enough"))

	require.NotNil(t, As(outer))
	assert.True(t, Is(outer, CodeInsufficientCredits))
	assert.False(t, Is(outer, CodeValidation))
	assert.False(t, Is(stdErrors.New("plain"), CodeInternal))
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "order not found", New(CodeNotFound, "order not found").PublicMessage())
	assert.Equal(t, "dependency unavailable", Wrap(CodeDependency, stdErrors.New("dial tcp"), "load balance").PublicMessage())
	assert.Equal(t, "validation failed", New(CodeValidation, "").PublicMessage())
	assert.Equal(t, "internal server error", Newf(CodeInternal, "row %d vanished", 7).PublicMessage())
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(New(CodeValidation, "bad")))
	assert.True(t, Retryable(fmt.Errorf("gateway: %w", New(CodeGateway, "timeout"))))
	assert.True(t, Retryable(stdErrors.New("plain")))
}

func TestLogFields(t *testing.T) {
	assert.Empty(t, LogFields(nil))

	t.Run("pq", func(t *testing.T) {
		err := Wrap(CodeConflict, &pq.Error{Code: "23505", Constraint: "qr_sequences_pkey", Table: "qr_sequences"}, "allocate qr range")
		fields := LogFields(err)

		assert.Equal(t, string(CodeConflict), fields["error_code"])
		assert.Equal(t, "23505", fields["pg_code"])
		assert.Equal(t, "qr_sequences_pkey", fields["pg_constraint"])
		assert.Len(t, fields["error_chain"], 2)
	})

	t.Run("pgx", func(t *testing.T) {
		err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "payments_merchant_order_id_key", TableName: "payments"})
		fields := LogFields(err)

		assert.NotContains(t, fields, "error_code")
		assert.Equal(t, "payments", fields["pg_table"])
		assert.Equal(t, "payments_merchant_order_id_key", fields["pg_constraint"])
	})
}
