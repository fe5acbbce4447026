package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurelienallenic/api/models"
)

func TestCVStoreLifecycle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewCVStore(db)
	now := time.Now().UTC()

	mock.ExpectQuery("FROM cvs WHERE id = 1").
		WillReturnRows(sqlmock.NewRows([]string{"image_webp_fr", "image_webp_en", "pdf_fr", "pdf_en", "created_at", "updated_at"}))
	_, err = s.GetCV(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery("INSERT INTO cvs").
		WithArgs("fr.webp", "en.webp", "fr.pdf", "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	cv := &models.Cv{ImageWebpFr: "fr.webp", ImageWebpEn: "en.webp", PdfFr: "fr.pdf"}
	require.NoError(t, s.UpsertCV(context.Background(), cv))
	assert.Equal(t, now, cv.CreatedAt)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cvs WHERE id = 1")).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.DeleteCV(context.Background()))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cvs WHERE id = 1")).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.DeleteCV(context.Background()), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func messageRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "message", "sent", "error", "created_at", "updated_at"})
}

func TestMessageStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewMessageStore(db)
	now := time.Now().UTC()
	providerErr := "brevo: 401"

	mock.ExpectQuery("INSERT INTO messages").
		WithArgs("m1", "enc-email", "enc-body", false, providerErr).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	require.NoError(t, s.CreateMessage(context.Background(), &models.Message{
		ID: "m1", Email: "enc-email", Body: "enc-body", Sent: false, Error: &providerErr,
	}))

	mock.ExpectQuery("FROM messages ORDER BY created_at DESC").
		WillReturnRows(messageRows().
			AddRow("m2", "e2", "b2", true, nil, now, now).
			AddRow("m1", "e1", "b1", false, providerErr, now.Add(-time.Minute), now))
	msgs, err := s.ListMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].Error)
	require.NotNil(t, msgs[1].Error)
	assert.Equal(t, providerErr, *msgs[1].Error)

	mock.ExpectQuery("FROM messages WHERE id = \\$1").WithArgs("missing").WillReturnRows(messageRows())
	_, err = s.GetMessage(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectExec("DELETE FROM messages").WithArgs("m1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.DeleteMessage(context.Background(), "m1"))

	mock.ExpectExec("DELETE FROM messages").WithArgs("m1").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.DeleteMessage(context.Background(), "m1"), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
