package nostrdice_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nostrdice/nostrdice/internal/sqlitestore"
	"github.com/nostrdice/nostrdice/pkg/logger"
)

func init() {
	logger.Init(logger.Config{Level: "debug", Format: "console"})
}

var (
	testSeq  int
	testSeqM sync.Mutex
)

func newStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	testSeqM.Lock()
	testSeq++
	n := testSeq
	testSeqM.Unlock()

	s, err := sqlitestore.New(fmt.Sprintf("file:nostrdice_lifecycle_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), n))
	require.NoError(t, err)
	return s
}
