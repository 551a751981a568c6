package service_test

import (
	"context"
	"testing"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAuditLogs_Filters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	vet := env.seedUser(t, model.RoleVeterinarian)
	client, _ := env.seedClient(t)

	invoice := env.createInvoice(t, vet.ID.String(), client, nil, serviceLine("Exam", 1, "30.00"))
	_, err := env.invoice.ApproveInvoice(ctx, vet.ID.String(), invoice.ID, service.ApproveInvoiceRequest{})
	require.NoError(t, err)

	audits := service.NewAuditService(repository.NewAuditRepository(env.db))

	// Create + approve leave one row each
	all, total, err := audits.GetAuditLogs(ctx, service.AuditLogFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	approvals, total, err := audits.GetAuditLogs(ctx, service.AuditLogFilter{Action: model.ActionApproveInvoice})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, approvals, 1)
	assert.Equal(t, invoice.ID, approvals[0].EntityID)

	_, total, err = audits.GetAuditLogs(ctx, service.AuditLogFilter{EntityID: invoice.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}
