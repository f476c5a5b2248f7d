package core

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// NewInstanceID tags log lines from this process: "<host>:<pid>:<8 hex>".
func NewInstanceID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "auth-api"
	}
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString()[:8])
}
