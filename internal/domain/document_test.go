package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMetadata() map[string]any {
	return map[string]any{"client": "Acme Corp", "email": "billing@acme.test"}
}

// TestNewDocumentValidation tests document creation invariants
func TestNewDocumentValidation(t *testing.T) {
	t.Run("valid document starts as draft", func(t *testing.T) {
		doc, err := NewDocument(DocumentTypeInvoice, decimal.NewFromInt(500), validMetadata(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, DocumentStatusDraft, doc.Status)
		assert.Equal(t, "user-1", doc.CreatedBy)
		assert.False(t, doc.CreatedAt.IsZero())
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		_, err := NewDocument("contract", decimal.NewFromInt(500), validMetadata(), "user-1")
		assert.ErrorIs(t, err, ErrInvalidDocumentType)
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		_, err := NewDocument(DocumentTypeInvoice, decimal.Zero, validMetadata(), "user-1")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		_, err := NewDocument(DocumentTypeInvoice, decimal.NewFromInt(-10), validMetadata(), "user-1")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("metadata over the key cap rejected", func(t *testing.T) {
		meta := map[string]any{}
		for i := 0; i <= MaxMetadataKeys; i++ {
			meta[string(rune('a'+i))] = i
		}
		_, err := NewDocument(DocumentTypeInvoice, decimal.NewFromInt(500), meta, "user-1")
		assert.ErrorIs(t, err, ErrMetadataTooLarge)
	})

	t.Run("nil metadata becomes empty map", func(t *testing.T) {
		doc, err := NewDocument(DocumentTypeReceipt, decimal.NewFromInt(1), nil, "user-1")
		require.NoError(t, err)
		assert.NotNil(t, doc.Metadata)
	})
}

// TestChangeStatus tests lifecycle transitions on the document itself
func TestChangeStatus(t *testing.T) {
	doc, err := NewDocument(DocumentTypeInvoice, decimal.NewFromInt(100), validMetadata(), "user-1")
	require.NoError(t, err)

	require.NoError(t, doc.ChangeStatus(DocumentStatusPending))
	assert.Equal(t, DocumentStatusPending, doc.Status)

	err = doc.ChangeStatus(DocumentStatusDraft)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, DocumentStatusPending, doc.Status, "status must not change on a refused transition")

	require.NoError(t, doc.ChangeStatus(DocumentStatusRejected))
	require.NoError(t, doc.ChangeStatus(DocumentStatusDraft), "rejected documents re-open into draft")
}

// TestUpdateOnlyInDraft verifies the edit rules
func TestUpdateOnlyInDraft(t *testing.T) {
	doc, err := NewDocument(DocumentTypeInvoice, decimal.NewFromInt(100), validMetadata(), "user-1")
	require.NoError(t, err)

	newAmount := decimal.NewFromInt(250)
	require.NoError(t, doc.Update(nil, &newAmount, nil))
	assert.True(t, doc.Amount.Equal(newAmount))
	assert.Equal(t, DocumentTypeInvoice, doc.Type, "nil type leaves field untouched")

	require.NoError(t, doc.ChangeStatus(DocumentStatusPending))
	err = doc.Update(nil, &newAmount, nil)
	assert.ErrorIs(t, err, ErrNotEditable)

	badAmount := decimal.NewFromInt(-5)
	doc2, err := NewDocument(DocumentTypeInvoice, decimal.NewFromInt(100), validMetadata(), "user-1")
	require.NoError(t, err)
	assert.ErrorIs(t, doc2.Update(nil, &badAmount, nil), ErrInvalidAmount)
}

// TestEvaluateForAutoProcessing covers the four processing outcomes
func TestEvaluateForAutoProcessing(t *testing.T) {
	t.Run("complete document goes to pending", func(t *testing.T) {
		doc, err := NewDocument(DocumentTypeInvoice, decimal.NewFromInt(9000), validMetadata(), "user-1")
		require.NoError(t, err)

		status, reason := doc.EvaluateForAutoProcessing()
		assert.Equal(t, DocumentStatusPending, status)
		assert.Empty(t, reason)
	})

	t.Run("amount above limit rejected", func(t *testing.T) {
		doc, err := NewDocument(DocumentTypeInvoice, AutoProcessingAmountLimit.Add(decimal.NewFromInt(1)), validMetadata(), "user-1")
		require.NoError(t, err)

		status, reason := doc.EvaluateForAutoProcessing()
		assert.Equal(t, DocumentStatusRejected, status)
		assert.Equal(t, RejectionReasonAmountExceedsLimit, reason)
	})

	t.Run("amount exactly at limit passes", func(t *testing.T) {
		doc, err := NewDocument(DocumentTypeInvoice, AutoProcessingAmountLimit, validMetadata(), "user-1")
		require.NoError(t, err)

		status, _ := doc.EvaluateForAutoProcessing()
		assert.Equal(t, DocumentStatusPending, status)
	})

	t.Run("missing required metadata rejected", func(t *testing.T) {
		doc, err := NewDocument(DocumentTypeInvoice, decimal.NewFromInt(100),
			map[string]any{"client": "Acme Corp"}, "user-1")
		require.NoError(t, err)

		status, reason := doc.EvaluateForAutoProcessing()
		assert.Equal(t, DocumentStatusRejected, status)
		assert.Equal(t, RejectionReasonMissingRequiredFields, reason)
	})

	t.Run("empty required metadata value counts as missing", func(t *testing.T) {
		doc, err := NewDocument(DocumentTypeInvoice, decimal.NewFromInt(100),
			map[string]any{"client": "Acme Corp", "email": ""}, "user-1")
		require.NoError(t, err)

		status, reason := doc.EvaluateForAutoProcessing()
		assert.Equal(t, DocumentStatusRejected, status)
		assert.Equal(t, RejectionReasonMissingRequiredFields, reason)
	})

	t.Run("amount check takes priority over metadata", func(t *testing.T) {
		doc, err := NewDocument(DocumentTypeInvoice, AutoProcessingAmountLimit.Mul(decimal.NewFromInt(2)),
			map[string]any{}, "user-1")
		require.NoError(t, err)

		_, reason := doc.EvaluateForAutoProcessing()
		assert.Equal(t, RejectionReasonAmountExceedsLimit, reason)
	})

	t.Run("evaluation is deterministic", func(t *testing.T) {
		doc, err := NewDocument(DocumentTypeInvoice, decimal.NewFromInt(100), validMetadata(), "user-1")
		require.NoError(t, err)

		s1, r1 := doc.EvaluateForAutoProcessing()
		s2, r2 := doc.EvaluateForAutoProcessing()
		assert.Equal(t, s1, s2)
		assert.Equal(t, r1, r2)
	})
}
