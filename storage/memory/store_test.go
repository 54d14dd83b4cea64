package memory

import (
	"testing"

	"github.com/c0deZ3R0/go-offline-queue/queuekit"
	"github.com/c0deZ3R0/go-offline-queue/queuekit/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) queuekit.Store {
		return New()
	})
}
