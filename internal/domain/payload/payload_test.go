package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladlehq/ladle/internal/domain/model"
)

func TestDecodeEmail(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		raw := json.RawMessage(`{
			"recipients": [{"to": "ops@ladle.test", "name": "Ops"}],
			"subject": "Low stock",
			"body": "Flour is below minimum",
			"order_id": "ord-1"
		}`)
		p, err := Decode(model.JobCategoryEmail, raw)
		require.NoError(t, err)

		email, ok := p.(Email)
		require.True(t, ok)
		assert.Equal(t, "Low stock", email.Subject)
		assert.Equal(t, "ord-1", email.OrderID)
		require.Len(t, email.Recipients, 1)
		assert.Equal(t, "ops@ladle.test", email.Recipients[0].To)
	})

	t.Run("missing recipients", func(t *testing.T) {
		raw := json.RawMessage(`{"recipients": [], "subject": "s", "body": "b"}`)
		_, err := Decode(model.JobCategoryEmail, raw)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("blank recipient address", func(t *testing.T) {
		raw := json.RawMessage(`{"recipients": [{"to": "  "}], "subject": "s", "body": "b"}`)
		_, err := Decode(model.JobCategoryEmail, raw)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		raw := json.RawMessage(`{
			"recipients": [{"to": "ops@ladle.test"}],
			"subject": "s",
			"body": "b",
			"attachments": []
		}`)
		_, err := Decode(model.JobCategoryEmail, raw)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestDecodeSMS(t *testing.T) {
	t.Run("channel accepts the closed set", func(t *testing.T) {
		for _, channel := range []string{"", ChannelSMS, ChannelWhatsApp} {
			p := SMS{
				Recipients: []Recipient{{To: "+15550100"}},
				Body:       "Table ready",
				Channel:    channel,
			}
			raw, err := Encode(p)
			require.NoError(t, err, "channel %q", channel)

			decoded, err := Decode(model.JobCategorySMS, raw)
			require.NoError(t, err, "channel %q", channel)
			assert.Equal(t, channel, decoded.(SMS).Channel)
		}
	})

	t.Run("unknown channel is rejected", func(t *testing.T) {
		raw := json.RawMessage(`{
			"recipients": [{"to": "+15550100"}],
			"body": "b",
			"channel": "carrier-pigeon"
		}`)
		_, err := Decode(model.JobCategorySMS, raw)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestDecodeInventory(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		raw := json.RawMessage(`{
			"order_id": "ord-1",
			"location_id": "loc-1",
			"lines": [{"menu_item_id": "burger", "quantity": 2}]
		}`)
		p, err := Decode(model.JobCategoryInventory, raw)
		require.NoError(t, err)
		inv := p.(Inventory)
		assert.Equal(t, "loc-1", inv.LocationID)
		require.Len(t, inv.Lines, 1)
		assert.Equal(t, 2, inv.Lines[0].Quantity)
	})

	t.Run("non-positive quantity is malformed", func(t *testing.T) {
		raw := json.RawMessage(`{
			"order_id": "ord-1",
			"location_id": "loc-1",
			"lines": [{"menu_item_id": "burger", "quantity": 0}]
		}`)
		_, err := Decode(model.JobCategoryInventory, raw)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestDecodeReport(t *testing.T) {
	t.Run("kind and location are required", func(t *testing.T) {
		_, err := Decode(model.JobCategoryReports,
			json.RawMessage(`{"kind": " ", "location_id": "loc-1"}`))
		assert.ErrorIs(t, err, ErrInvalidPayload)

		_, err = Decode(model.JobCategoryReports,
			json.RawMessage(`{"kind": "daily-sales"}`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestDecodeScheduled(t *testing.T) {
	t.Run("known tasks decode", func(t *testing.T) {
		for _, task := range []string{
			TaskLowStockScan, TaskExpiringLotsScan, TaskReminders, TaskCleanup,
		} {
			raw, err := Encode(Scheduled{Task: task})
			require.NoError(t, err)
			p, err := Decode(model.JobCategoryScheduled, raw)
			require.NoError(t, err)
			assert.Equal(t, task, p.(Scheduled).Task)
		}
	})

	t.Run("unknown task is rejected", func(t *testing.T) {
		_, err := Decode(model.JobCategoryScheduled, json.RawMessage(`{"task": "defrost"}`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestDecodeEdgeCases(t *testing.T) {
	t.Run("empty payload", func(t *testing.T) {
		_, err := Decode(model.JobCategoryEmail, nil)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("unknown category", func(t *testing.T) {
		_, err := Decode("laundry", json.RawMessage(`{}`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := Decode(model.JobCategoryEmail, json.RawMessage(`{"recipients":`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestEncode(t *testing.T) {
	t.Run("nil payload", func(t *testing.T) {
		_, err := Encode(nil)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("invalid payload never serialises", func(t *testing.T) {
		_, err := Encode(Email{Subject: "s", Body: "b"})
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestValidateEmailAddress(t *testing.T) {
	assert.NoError(t, ValidateEmailAddress("ops@ladle.test"))
	assert.NoError(t, ValidateEmailAddress("Ops Team <ops@ladle.test>"))

	err := ValidateEmailAddress("not-an-address")
	require.Error(t, err)
	assert.True(t, model.IsPermanent(err), "bad addresses never become deliverable")
}

func TestValidatePhoneNumber(t *testing.T) {
	assert.NoError(t, ValidatePhoneNumber("+15550100100"))
	assert.NoError(t, ValidatePhoneNumber(" +447700900123 "))

	for _, number := range []string{"", "5550100", "+0123456789", "+1 555 0100"} {
		err := ValidatePhoneNumber(number)
		require.Error(t, err, "number %q", number)
		assert.True(t, model.IsPermanent(err))
	}
}
