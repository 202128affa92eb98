package util

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/sentichat/sentichat/pkg/db"
	"github.com/sentichat/sentichat/pkg/db/models"
)

// CreateE2EPostgresConnection connects to the database named by SENTICHAT_E2E_DSN and migrates
// it. Tests are skipped when the variable is unset.
func CreateE2EPostgresConnection(t *testing.T) *db.DB {
	dsn := os.Getenv("SENTICHAT_E2E_DSN")
	if dsn == "" {
		t.Skip("SENTICHAT_E2E_DSN environment variable not set")
	}

	dbc, err := db.New(dsn, logger.Warn)
	require.NoError(t, err, "error connecting to db")
	require.NoError(t, dbc.UpdateSchema(), "error migrating db")
	t.Cleanup(func() { _ = dbc.Close() })

	// Simple check that someone doesn't accidentally run the e2es against the prod db:
	var totalConversations int64
	dbc.DB.Model(&models.ChatConversation{}).Count(&totalConversations)
	require.Less(t, int(totalConversations), 1000, "found too many conversations in db, possible indicator someone is running e2e against prod, please clean out chat_conversations if this is not the case")

	return dbc
}
