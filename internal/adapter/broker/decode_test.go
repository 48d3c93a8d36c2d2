package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/correlator/internal/core/domain"
)

func TestDecodeBatch_Envelope(t *testing.T) {
	body := []byte(`{
		"correlation_id": "corr-1",
		"source": "producer",
		"timestamp": "2024-01-01T00:00:00Z",
		"data": [
			{"customer_id": "C1", "first_name": "Ann", "last_name": "Lee", "status": "ACTIVE"},
			{"customer_id": "C2", "first_name": "Bo", "last_name": "Kim", "registration_timestamp": "2023-05-01"}
		]
	}`)

	batch, err := DecodeBatch[domain.Customer](body)
	require.NoError(t, err)

	assert.Equal(t, "corr-1", batch.CorrelationID)
	assert.Equal(t, "producer", batch.Source)
	require.Len(t, batch.Records, 2)
	assert.Equal(t, "C1", batch.Records[0].CustomerID)
	assert.Equal(t, domain.CustomerStatusActive, batch.Records[0].Status)
	assert.Equal(t, "2023-05-01", batch.Records[1].RegistrationDate)
}

func TestDecodeBatch_BareArray(t *testing.T) {
	body := []byte(`[{"product_id":"P1","customer_id":"C1","price":10.00},{"product_id":"P2","customer_id":"C1","price":"5.50"}]`)

	batch, err := DecodeBatch[domain.Product](body)
	require.NoError(t, err)

	require.Len(t, batch.Records, 2)
	assert.Equal(t, "10", batch.Records[0].Price.String())
	assert.Equal(t, "5.5", batch.Records[1].Price.String())
	assert.Empty(t, batch.CorrelationID)
}

func TestDecodeBatch_BareObjectBecomesOneRecord(t *testing.T) {
	batch, err := DecodeBatch[domain.Product]([]byte(`{"product_id":"P1","customer_id":"C1","price":1.25}`))
	require.NoError(t, err)

	require.Len(t, batch.Records, 1)
	assert.Equal(t, "P1", batch.Records[0].ProductID)
}

func TestDecodeBatch_DataObjectBecomesOneRecord(t *testing.T) {
	batch, err := DecodeBatch[domain.Customer]([]byte(`{"data":{"customer_id":"C9"}}`))
	require.NoError(t, err)

	require.Len(t, batch.Records, 1)
	assert.Equal(t, "C9", batch.Records[0].CustomerID)
}

func TestDecodeBatch_EmptyArray(t *testing.T) {
	batch, err := DecodeBatch[domain.Customer]([]byte(`{"data":[]}`))
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
}

func TestDecodeBatch_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty body":    ``,
		"not json":      `not json`,
		"scalar":        `42`,
		"string data":   `{"data":"oops"}`,
		"bad element":   `[{"product_id":"P1","price":"abc"}]`,
		"truncated":     `{"data":[{"customer_id":"C1"}`,
		"element wrong": `[1, 2]`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBatch[domain.Product]([]byte(body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}
