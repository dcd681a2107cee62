package certificate

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// DefaultRenderTimeout bounds one render, navigation and printing included.
const DefaultRenderTimeout = 120 * time.Second

// Renderer prints HTML to a PDF file.
type Renderer interface {
	// Render writes the PDF of html to outPath, creating parent
	// directories. It returns the browser profile directory it used, which
	// the caller removes; the directory is returned even on error.
	Render(ctx context.Context, html, outPath string) (profileDir string, err error)
}

// ChromeConfig configures a ChromeRenderer.
type ChromeConfig struct {
	// ExecPath is the Chrome binary. Empty searches the usual locations.
	ExecPath string

	// ProfileRoot holds the per-render user data directories.
	ProfileRoot string

	Timeout time.Duration
}

// ChromeRenderer launches one headless Chrome per render. Browsers are not
// pooled.
type ChromeRenderer struct {
	cfg ChromeConfig
	ids IDGenerator
	log *zap.Logger
}

// NewChromeRenderer creates a renderer.
func NewChromeRenderer(cfg ChromeConfig, ids IDGenerator, log *zap.Logger) *ChromeRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRenderTimeout
	}
	if cfg.ProfileRoot == "" {
		cfg.ProfileRoot = os.TempDir()
	}
	if ids == nil {
		ids = NewULIDGenerator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ChromeRenderer{cfg: cfg, ids: ids, log: log}
}

// allocatorOptions returns the Chrome flags for a render. The sandbox is
// disabled so Chrome starts inside containers without extra privileges.
func (r *ChromeRenderer) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-zygote", true),
		chromedp.UserDataDir(profileDir),
	)
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	return opts
}

func (r *ChromeRenderer) Render(ctx context.Context, html, outPath string) (string, error) {
	profileDir := filepath.Join(r.cfg.ProfileRoot, "credtrack-chrome-"+r.ids.Generate())

	ctx, cancelTimeout := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancelTimeout()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions(profileDir)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			pdf = buf
			return err
		}),
	)
	if err != nil {
		return profileDir, errors.Wrap(err, "render certificate in browser")
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return profileDir, errors.Wrap(err, "create certificate directory")
	}
	if err := os.WriteFile(outPath, pdf, 0o644); err != nil {
		return profileDir, errors.Wrap(err, "write certificate PDF")
	}

	r.log.Debug("certificate rendered",
		zap.String("path", outPath),
		zap.Int("bytes", len(pdf)))
	return profileDir, nil
}
