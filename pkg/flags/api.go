package flags

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/sentichat/sentichat/pkg/uploads"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// APIFlags holds configuration information for the chat API server.
type APIFlags struct {
	ListenAddr     string
	MetricsAddr    string
	UploadDir      string
	MaxUploadBytes int64
	Storage        string
}

func NewAPIFlags() *APIFlags {
	return &APIFlags{
		ListenAddr:     ":5001",
		MetricsAddr:    ":2112",
		MaxUploadBytes: uploads.DefaultMaxImageBytes,
		Storage:        StoragePostgres,
	}
}

func (f *APIFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ListenAddr, "listen", f.ListenAddr, "The address to serve the chat API on")
	fs.StringVar(&f.MetricsAddr, "listen-metrics", f.MetricsAddr, "The address to serve prometheus metrics on")
	fs.StringVar(&f.UploadDir, "upload-dir", f.UploadDir, "Directory for images while a message is processed (default a directory under the system temp dir)")
	fs.Int64Var(&f.MaxUploadBytes, "max-upload-bytes", f.MaxUploadBytes, "Largest image accepted with a message")
	fs.StringVar(&f.Storage, "storage", f.Storage, fmt.Sprintf("Chat history storage backend (%s or %s)", StoragePostgres, StorageMemory))
}

func (f *APIFlags) Validate() error {
	switch f.Storage {
	case StoragePostgres, StorageMemory:
		return nil
	default:
		return fmt.Errorf("unknown storage backend %q, must be %s or %s", f.Storage, StoragePostgres, StorageMemory)
	}
}

func (f *APIFlags) GetUploadReceiver() (*uploads.Receiver, error) {
	return uploads.NewReceiver(f.UploadDir, f.MaxUploadBytes)
}
