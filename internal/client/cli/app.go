package cli

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/dmitrijs2005/blobkeeper/internal/client/client"
	"github.com/dmitrijs2005/blobkeeper/internal/client/config"
	"github.com/dmitrijs2005/blobkeeper/internal/client/models"
)

// API is the server surface the commands use. *client.Client satisfies it.
type API interface {
	SetToken(token string)
	Token() string
	Health(ctx context.Context) error
	Enroll(ctx context.Context, userID string) (*models.Enrollment, error)
	UserInfo(ctx context.Context, rotate bool) (*models.UserInfo, error)
	Upload(ctx context.Context, name string, r io.Reader) (*models.FileSummary, error)
	List(ctx context.Context) ([]models.FileSummary, error)
	Download(ctx context.Context, id string, w io.Writer) (int64, error)
	Delete(ctx context.Context, id string) (int64, error)
	DeleteAll(ctx context.Context, function string) (int, error)
}

type App struct {
	config   *config.Config
	api      API
	userName string
	reader   *bufio.Reader
	out      io.Writer
}

func NewApp(c *config.Config) *App {
	api := client.New(c.ServerURL, c.RequestTimeout)
	api.SetToken(c.Token)
	return newApp(c, api, os.Stdin, os.Stdout)
}

func newApp(c *config.Config, api API, in io.Reader, out io.Writer) *App {
	return &App{config: c, api: api, reader: bufio.NewReader(in), out: out}
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}

func (a *App) status() string {
	if a.userName == "" {
		return "anonymous"
	}
	return a.userName
}

// Run checks the server, resolves a configured token and starts the REPL.
func (a *App) Run(ctx context.Context) {
	printlnFn("blobkeeper CLI (type 'help' for commands)")

	if err := a.api.Health(ctx); err != nil {
		printlnFn("server unreachable:", err)
	}
	if a.api.Token() != "" {
		_ = a.WhoAmI(ctx)
	}

	runREPL(ctx, a, a.status, a.reader)
}
