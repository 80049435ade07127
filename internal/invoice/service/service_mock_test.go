package service

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"invoicevault/internal/invoice/invoicetest"
	"invoicevault/internal/invoice/models"
	"invoicevault/internal/invoice/service/mocks"
	"invoicevault/internal/invoice/storage/drive"
	"invoicevault/internal/invoice/store"
	"invoicevault/internal/invoice/validation"
)

func TestSecondaryReconcilesOnlyKindsStoredByPrimary(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	st := store.NewInMemory()
	blobs := mocks.NewMockBlobStore(ctrl)
	docs := mocks.NewMockDocumentStore(ctrl)

	gomock.InOrder(
		blobs.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), "application/xml").
			Return("https://blob.local/a_xml.xml", nil),
		blobs.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), "application/pdf").
			Return("", errors.New("timeout")),
		docs.EXPECT().Save(gomock.Any(), gomock.Len(3), "AAAAAAAA-1111-2222-3333-444444444444_xml.xml", "application/xml", gomock.Any()).
			Return(drive.File{ID: "d-1", WebLink: "https://docs.local/d-1"}, nil),
		docs.EXPECT().Save(gomock.Any(), gomock.Len(3), "AAAAAAAA-1111-2222-3333-444444444444_pdf.pdf", "application/pdf", gomock.Any()).
			Return(drive.File{ID: "d-2", WebLink: "https://docs.local/d-2"}, nil),
	)

	svc := New(st, st, validation.New(invoicetest.ReceiverRFC), blobs, WithDocumentStore(docs, nil))
	res, err := svc.Submit(ctx, invoicetest.Submission())
	require.NoError(t, err)

	require.Len(t, res.Files, 1)
	assert.Equal(t, "https://docs.local/d-1", res.Files[models.KindXML].BackupURL)
	_, hasPDF := res.Files[models.KindPDF]
	assert.False(t, hasPDF, "pdf failed in the primary tier")

	refs, err := st.ListFileReferences(ctx, models.OwnerInvoice, res.InvoiceID)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "d-1", refs[0].SecondaryID)
}

func TestSecondaryFailureOnOneKindKeepsTheOther(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	st := store.NewInMemory()
	blobs := mocks.NewMockBlobStore(ctrl)
	docs := mocks.NewMockDocumentStore(ctrl)

	blobs.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, key string, _ []byte, _ string) (string, error) {
			return "https://blob.local/" + key, nil
		}).Times(2)
	gomock.InOrder(
		docs.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), "application/xml", gomock.Any()).
			Return(drive.File{}, errors.New("permission grant failed")),
		docs.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), "application/pdf", gomock.Any()).
			Return(drive.File{ID: "d-2", WebLink: "https://docs.local/d-2"}, nil),
	)

	svc := New(st, st, validation.New(invoicetest.ReceiverRFC), blobs, WithDocumentStore(docs, nil))
	res, err := svc.Submit(ctx, invoicetest.Submission())
	require.NoError(t, err)

	assert.Empty(t, res.Files[models.KindXML].BackupURL)
	assert.Equal(t, "https://docs.local/d-2", res.Files[models.KindPDF].BackupURL)
}

func TestValidationFailureTouchesNoCollaborator(t *testing.T) {
	ctrl := gomock.NewController(t)

	st := mocks.NewMockStore(ctrl)
	tx := mocks.NewMockTxRunner(ctrl)
	blobs := mocks.NewMockBlobStore(ctrl)
	docs := mocks.NewMockDocumentStore(ctrl)
	locker := mocks.NewMockLocker(ctrl)
	appender := mocks.NewMockOutboxAppender(ctrl)

	svc := New(st, tx, validation.New(invoicetest.ReceiverRFC), blobs,
		WithDocumentStore(docs, nil), WithLocker(locker), WithOutbox(appender, ""))

	sub := invoicetest.Submission()
	sub.Invoice.UUID = "short"
	_, err := svc.Submit(context.Background(), sub)
	require.Error(t, err)
}

func TestLockUnavailableFallsBackToConstraint(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	st := store.NewInMemory()
	locker := mocks.NewMockLocker(ctrl)
	locker.EXPECT().Acquire(gomock.Any(), invoicetest.DocumentID).Return(nil, errors.New("redis down"))
	blobs := mocks.NewMockBlobStore(ctrl)
	blobs.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("https://blob.local/x", nil).Times(2)

	svc := New(st, st, validation.New(invoicetest.ReceiverRFC), blobs, WithLocker(locker))
	res, err := svc.Submit(ctx, invoicetest.Submission())
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCreated, res.Outcome)
}
