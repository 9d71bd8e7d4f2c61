package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"syncServer/backend/internal/errs"
)

// newTestStore connects to a local MySQL; without one the tests are skipped
// so the rest of the suite stays runnable anywhere.
func newTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	dsn := os.Getenv("SYNC_MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(127.0.0.1:3306)/syncserver?charset=utf8mb4&parseTime=True&loc=Local"
	}
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("mysql not available: %v", err)
	}
	s := NewDocumentStore(db)
	require.NoError(t, s.Migrate())
	return s
}

func testProjectID() string {
	return fmt.Sprintf("test-%d", time.Now().UnixNano())
}

func TestCreateAndGetContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	project := testProjectID()

	require.NoError(t, s.Create(ctx, project, "f1", "hello"))

	content, err := s.GetContent(ctx, project, "f1")
	require.NoError(t, err)
	require.Equal(t, "hello", content)
}

func TestCreateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	project := testProjectID()

	require.NoError(t, s.Create(ctx, project, "f1", "first"))
	// Duplicate create reports success and keeps the original content.
	require.NoError(t, s.Create(ctx, project, "f1", "second"))

	content, err := s.GetContent(ctx, project, "f1")
	require.NoError(t, err)
	require.Equal(t, "first", content)
}

func TestGetContentNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetContent(context.Background(), testProjectID(), "ghost")
	require.Error(t, err)
	require.True(t, errs.IsCode(err, errs.CodeNotFound))
}

func TestReplaceContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	project := testProjectID()

	require.NoError(t, s.Create(ctx, project, "f1", "v1"))
	require.NoError(t, s.ReplaceContent(ctx, project, "f1", "v2"))

	content, err := s.GetContent(ctx, project, "f1")
	require.NoError(t, err)
	require.Equal(t, "v2", content)

	// Replacing with identical content still succeeds.
	require.NoError(t, s.ReplaceContent(ctx, project, "f1", "v2"))
}

func TestReplaceContentNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.ReplaceContent(context.Background(), testProjectID(), "ghost", "x")
	require.Error(t, err)
	require.True(t, errs.IsCode(err, errs.CodeNotFound))
}
