package flags

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/sentichat/sentichat/pkg/chatclient"
)

// ClientFlags configures the terminal chat client.
type ClientFlags struct {
	ServerURL    string
	IdentityFile string
}

func NewClientFlags() *ClientFlags {
	serverURL := os.Getenv("SENTICHAT_SERVER_URL")
	if serverURL == "" {
		serverURL = chatclient.DefaultServerURL
	}
	return &ClientFlags{
		ServerURL:    serverURL,
		IdentityFile: chatclient.DefaultIdentityFile(),
	}
}

func (f *ClientFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ServerURL, "server", f.ServerURL, "Chat API server URL (env SENTICHAT_SERVER_URL)")
	fs.StringVar(&f.IdentityFile, "identity-file", f.IdentityFile, "File holding this device's chat user id")
}

func (f *ClientFlags) GetClient() *chatclient.Client {
	return chatclient.New(chatclient.WithServerURL(f.ServerURL))
}

func (f *ClientFlags) GetUserID() (string, error) {
	return chatclient.LoadOrCreateUserID(f.IdentityFile)
}
