package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/dmitrijs2005/blobkeeper/internal/client/client"
)

var errUsage = errors.New("wrong arguments, see 'help'")

func (a *App) requireToken() error {
	if a.api.Token() == "" {
		return client.ErrNoToken
	}
	return nil
}

func (a *App) Enroll(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: enroll <user>", errUsage)
	}

	en, err := a.api.Enroll(ctx, args[0])
	if err != nil {
		return err
	}
	if !en.Created {
		fmt.Fprintf(a.out, "%s is already enrolled; use 'login' with its token\n", en.UserID)
		return nil
	}

	a.api.SetToken(en.Token)
	a.userName = en.UserID
	fmt.Fprintf(a.out, "Enrolled %s. Keep this token, it is shown only once:\n%s\n", en.UserID, en.Token)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	token, err := GetToken(a.out)
	if err != nil {
		return err
	}
	if token == "" {
		return client.ErrNoToken
	}

	a.api.SetToken(token)
	if err := a.WhoAmI(ctx); err != nil {
		a.api.SetToken("")
		a.userName = ""
		return err
	}
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	if err := a.requireToken(); err != nil {
		return err
	}

	info, err := a.api.UserInfo(ctx, false)
	if err != nil {
		return err
	}
	a.userName = info.ID
	fmt.Fprintf(a.out, "%s: %d files, %s used, %s available\n", info.ID, info.FileCount,
		humanize.IBytes(uint64(info.UsedBytes)), humanize.IBytes(uint64(info.AvailableBytes)))

	tr := info.Traffic
	fmt.Fprintf(a.out, "uploaded %d times (%s), downloaded %d times (%s)\n",
		tr.UploadTimes, humanize.IBytes(uint64(tr.UploadBytes)),
		tr.DownloadTimes, humanize.IBytes(uint64(tr.DownloadBytes)))
	if tr.LastUploadAt != nil {
		fmt.Fprintf(a.out, "last upload %s\n", humanize.Time(*tr.LastUploadAt))
	}
	return nil
}

func (a *App) Rotate(ctx context.Context) error {
	if err := a.requireToken(); err != nil {
		return err
	}
	if !Confirm(a.reader, "The current token will stop working. Continue?", a.out) {
		return nil
	}

	info, err := a.api.UserInfo(ctx, true)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "New token for %s:\n%s\n", info.ID, info.Token)
	return nil
}

func (a *App) Upload(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: upload <path>", errUsage)
	}
	if err := a.requireToken(); err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	sum, err := a.api.Upload(ctx, filepath.Base(args[0]), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s uploaded (%s)\n  url:     %s\n  preview: %s\n  %s left\n",
		sum.FileName, humanize.IBytes(uint64(sum.Size)), sum.URL, sum.PreviewURL,
		humanize.IBytes(uint64(sum.AvailableBytes)))
	return nil
}

func (a *App) List(ctx context.Context) error {
	if err := a.requireToken(); err != nil {
		return err
	}

	files, err := a.api.List(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(a.out, "No files.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tDOWNLOADS\tLAST ACCESS")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", f.ID, f.FileName, humanize.IBytes(uint64(f.Size)),
			f.Downloads, humanize.Time(f.LastAccessAt))
	}
	return tw.Flush()
}

// Get saves file id as dest, or under its identifier when dest is omitted.
func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("%w: get <id> [dest]", errUsage)
	}
	dest := args[0]
	if len(args) == 2 {
		dest = args[1]
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}

	n, err := a.api.Download(ctx, args[0], f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return err
	}

	fmt.Fprintf(a.out, "saved %s (%s)\n", dest, humanize.IBytes(uint64(n)))
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: delete <id>", errUsage)
	}
	if err := a.requireToken(); err != nil {
		return err
	}

	freed, err := a.api.Delete(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s, %s freed\n", args[0], humanize.IBytes(uint64(freed)))
	return nil
}

func (a *App) Purge(ctx context.Context, args []string) error {
	function := "all"
	if len(args) == 1 {
		function = args[0]
	}
	if len(args) > 1 || (function != "all" && function != "expired") {
		return fmt.Errorf("%w: purge [all|expired]", errUsage)
	}
	if err := a.requireToken(); err != nil {
		return err
	}
	if !Confirm(a.reader, fmt.Sprintf("Delete %s files?", function), a.out) {
		fmt.Fprintln(a.out, "Nothing deleted.")
		return nil
	}

	n, err := a.api.DeleteAll(ctx, function)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d files deleted\n", n)
	return nil
}

func (a *App) Logout(context.Context) error {
	a.api.SetToken("")
	a.userName = ""
	return nil
}
